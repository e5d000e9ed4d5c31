package ledger

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/intentline-hq/intentline/pkg/events"
	"github.com/intentline-hq/intentline/pkg/logger"
	"github.com/intentline-hq/intentline/pkg/metrics"
	"github.com/intentline-hq/intentline/pkg/models"
	"github.com/intentline-hq/intentline/pkg/roles"
)

// Intent field bounds
const (
	// MaxDescriptionLen caps the registered description in bytes
	MaxDescriptionLen = 512
	// MaxCostEstimate caps the declared resource budget
	MaxCostEstimate = 1_000_000_000
)

// Ledger owns the intent records and enforces the lifecycle state machine.
// Every mutation is checked against the current status under the ledger
// lock, and the matching event is emitted after the mutation is applied.
type Ledger struct {
	mu       sync.Mutex
	store    Store
	registry *roles.Registry
	sink     events.Sink
	logger   logger.Logger
	seq      atomic.Uint64
}

// New creates a ledger over the given store. A nil sink or logger falls
// back to an in-memory sink and a no-op logger.
func New(store Store, registry *roles.Registry, sink events.Sink, lg logger.Logger) *Ledger {
	if sink == nil {
		sink = events.NewMemorySink()
	}
	if lg == nil {
		lg = &logger.EmptyLogger{}
	}
	return &Ledger{
		store:    store,
		registry: registry,
		sink:     sink,
		logger:   lg,
	}
}

// NewIntentID derives the intent id from the owner, description, creation
// time, and a process-wide sequence number. The sequence keeps ids distinct
// when one owner registers the same description within a clock tick.
func NewIntentID(owner common.Address, description string, createdAt time.Time, seq uint64) common.Hash {
	var nanos, seqBuf [8]byte
	binary.BigEndian.PutUint64(nanos[:], uint64(createdAt.UnixNano()))
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	return crypto.Keccak256Hash(owner.Bytes(), []byte(description), nanos[:], seqBuf[:])
}

// Register validates the input, stores a new Pending intent, and returns
// its id. Payload is optional at registration; the parser fills it later.
func (l *Ledger) Register(owner common.Address, description string, payload []byte, costEstimate uint64) (common.Hash, error) {
	if owner == (common.Address{}) {
		return common.Hash{}, fmt.Errorf("owner is the zero address: %w", models.ErrInvalidInput)
	}
	if description == "" {
		return common.Hash{}, fmt.Errorf("description is empty: %w", models.ErrInvalidInput)
	}
	if len(description) > MaxDescriptionLen {
		return common.Hash{}, fmt.Errorf("description exceeds %d bytes: %w", MaxDescriptionLen, models.ErrInvalidInput)
	}
	if costEstimate == 0 {
		return common.Hash{}, fmt.Errorf("cost estimate must be positive: %w", models.ErrInvalidInput)
	}
	if costEstimate > MaxCostEstimate {
		return common.Hash{}, fmt.Errorf("cost estimate %d exceeds ceiling %d: %w", costEstimate, MaxCostEstimate, models.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	id := NewIntentID(owner, description, now, l.seq.Add(1))

	intent := models.Intent{
		ID:           id,
		Owner:        owner,
		Description:  description,
		Payload:      payload,
		Status:       models.StatusPending,
		CreatedAt:    now,
		CostEstimate: costEstimate,
	}
	if err := l.store.Put(intent); err != nil {
		return common.Hash{}, fmt.Errorf("failed to store intent: %w", err)
	}

	metrics.IntentsRegistered.Inc()
	l.logger.Info("Registered intent %s for owner %s", id.Hex(), owner.Hex())

	e := events.New(events.TypeRegistered, id)
	e.Owner = owner
	e.NewStatus = models.StatusPending
	l.emit(e)

	return id, nil
}

// AttachPlan stores the parsed payload and moves the intent from Pending to
// Parsed. Only executors may attach plans.
func (l *Ledger) AttachPlan(id common.Hash, payload []byte, caller common.Address) error {
	if !l.registry.IsExecutor(caller) {
		return fmt.Errorf("caller %s lacks the executor role: %w", caller.Hex(), models.ErrUnauthorized)
	}
	if len(payload) == 0 {
		return fmt.Errorf("payload is empty: %w", models.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	intent, err := l.store.Get(id)
	if err != nil {
		return err
	}
	if !models.CanTransition(intent.Status, models.StatusParsed) {
		return fmt.Errorf("cannot attach plan in status %s: %w", intent.Status, models.ErrInvalidTransition)
	}

	old := intent.Status
	intent.Payload = payload
	intent.Status = models.StatusParsed
	if err := l.store.Update(intent); err != nil {
		return fmt.Errorf("failed to update intent: %w", err)
	}

	l.logger.Debug("Attached plan to intent %s (%d bytes)", id.Hex(), len(payload))
	l.emitStatusChange(intent, old)
	return nil
}

// SetStatus applies a status transition requested by an executor. It fails
// with ErrInvalidTransition when the lifecycle forbids the move, including
// any move out of a terminal status.
func (l *Ledger) SetStatus(id common.Hash, newStatus models.IntentStatus, caller common.Address) error {
	if !l.registry.IsExecutor(caller) {
		return fmt.Errorf("caller %s lacks the executor role: %w", caller.Hex(), models.ErrUnauthorized)
	}
	if !models.ValidStatus(newStatus) {
		return fmt.Errorf("undefined status %q: %w", newStatus, models.ErrInvalidTransition)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	intent, err := l.store.Get(id)
	if err != nil {
		return err
	}
	if !models.CanTransition(intent.Status, newStatus) {
		return fmt.Errorf("cannot move %s to %s: %w", intent.Status, newStatus, models.ErrInvalidTransition)
	}

	old := intent.Status
	intent.Status = newStatus
	if newStatus == models.StatusCompleted || newStatus == models.StatusFailed {
		now := time.Now().UTC()
		intent.ExecutedAt = &now
	}
	if err := l.store.Update(intent); err != nil {
		return fmt.Errorf("failed to update intent: %w", err)
	}

	l.logger.Debug("Intent %s moved %s -> %s", id.Hex(), old, newStatus)
	l.emitStatusChange(intent, old)
	return nil
}

// MarkExecuted completes an intent after a successful execution attempt:
// it stamps the execution time, advances the attempt count, and stores the
// execution commitment. Completing twice fails with ErrAlreadyCompleted.
func (l *Ledger) MarkExecuted(id common.Hash, resourceUsed uint64, commitment common.Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	intent, err := l.store.Get(id)
	if err != nil {
		return err
	}
	if intent.Status == models.StatusCompleted {
		return fmt.Errorf("intent %s: %w", id.Hex(), models.ErrAlreadyCompleted)
	}

	old := intent.Status
	now := time.Now().UTC()
	intent.Status = models.StatusCompleted
	intent.ExecutedAt = &now
	intent.ExecutionCount++
	intent.ExecutionCommitment = commitment
	if err := l.store.Update(intent); err != nil {
		return fmt.Errorf("failed to update intent: %w", err)
	}

	metrics.CompletedIntents.Inc()
	l.logger.Notice("Intent %s completed on attempt %d (resource used %d)", id.Hex(), intent.ExecutionCount, resourceUsed)

	e := events.New(events.TypeExecuted, id)
	e.Owner = intent.Owner
	e.Attempt = intent.ExecutionCount
	e.ResourceUsed = resourceUsed
	e.Commitment = commitment.Hex()
	l.emit(e)
	l.emitStatusChange(intent, old)
	return nil
}

// MarkFailed records a failed execution attempt: it stamps the attempt
// time, advances the attempt count, and moves the intent to Failed. The
// failure classification is preserved in the emitted event.
func (l *Ledger) MarkFailed(id common.Hash, resourceUsed uint64, kind models.FailureKind, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	intent, err := l.store.Get(id)
	if err != nil {
		return err
	}
	if intent.Status == models.StatusCompleted {
		return fmt.Errorf("intent %s: %w", id.Hex(), models.ErrAlreadyCompleted)
	}

	old := intent.Status
	now := time.Now().UTC()
	intent.Status = models.StatusFailed
	intent.ExecutedAt = &now
	intent.ExecutionCount++
	if err := l.store.Update(intent); err != nil {
		return fmt.Errorf("failed to update intent: %w", err)
	}

	metrics.FailedIntents.WithLabelValues(string(kind)).Inc()
	l.logger.Error("Intent %s failed on attempt %d (%s: %s)", id.Hex(), intent.ExecutionCount, kind, reason)

	e := events.New(events.TypeExecutionFailed, id)
	e.Owner = intent.Owner
	e.Attempt = intent.ExecutionCount
	e.ResourceUsed = resourceUsed
	e.FailureKind = kind
	e.FailureReason = reason
	l.emit(e)
	l.emitStatusChange(intent, old)
	return nil
}

// Cancel withdraws an intent. Only the owner may cancel, and only while the
// intent is Pending or Parsed. Cancelling an already cancelled intent is a
// no-op.
func (l *Ledger) Cancel(id common.Hash, caller common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	intent, err := l.store.Get(id)
	if err != nil {
		return err
	}
	if caller != intent.Owner {
		return fmt.Errorf("caller %s does not own intent %s: %w", caller.Hex(), id.Hex(), models.ErrUnauthorized)
	}
	if intent.Status == models.StatusCancelled {
		return nil
	}
	if intent.Status == models.StatusCompleted {
		return fmt.Errorf("intent %s: %w", id.Hex(), models.ErrAlreadyCompleted)
	}
	if !models.CanTransition(intent.Status, models.StatusCancelled) {
		return fmt.Errorf("cannot cancel in status %s: %w", intent.Status, models.ErrInvalidTransition)
	}

	old := intent.Status
	intent.Status = models.StatusCancelled
	if err := l.store.Update(intent); err != nil {
		return fmt.Errorf("failed to update intent: %w", err)
	}

	l.logger.Info("Intent %s cancelled by owner", id.Hex())
	l.emitStatusChange(intent, old)
	return nil
}

// Get returns the intent with the given id
func (l *Ledger) Get(id common.Hash) (models.Intent, error) {
	return l.store.Get(id)
}

// StatusOf returns the current status of an intent
func (l *Ledger) StatusOf(id common.Hash) (models.IntentStatus, error) {
	intent, err := l.store.Get(id)
	if err != nil {
		return "", err
	}
	return intent.Status, nil
}

// ListByOwner returns every intent registered by owner, oldest first
func (l *Ledger) ListByOwner(owner common.Address) ([]models.Intent, error) {
	return l.store.ListByOwner(owner)
}

// ListByStatus returns every intent in the given status, oldest first
func (l *Ledger) ListByStatus(status models.IntentStatus) ([]models.Intent, error) {
	if !models.ValidStatus(status) {
		return nil, fmt.Errorf("undefined status %q: %w", status, models.ErrInvalidInput)
	}
	return l.store.ListByStatus(status)
}

// Count returns the total number of registered intents
func (l *Ledger) Count() (uint64, error) {
	return l.store.Count()
}

// CountByOwner returns the number of intents registered by owner
func (l *Ledger) CountByOwner(owner common.Address) (uint64, error) {
	return l.store.CountByOwner(owner)
}

func (l *Ledger) emitStatusChange(intent models.Intent, old models.IntentStatus) {
	e := events.New(events.TypeStatusChanged, intent.ID)
	e.Owner = intent.Owner
	e.OldStatus = old
	e.NewStatus = intent.Status
	l.emit(e)
}

func (l *Ledger) emit(e events.Event) {
	if err := l.sink.Emit(e); err != nil {
		l.logger.Error("Failed to emit %s event for intent %s: %v", e.Type, e.IntentID.Hex(), err)
	}
}
