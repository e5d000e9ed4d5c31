package events

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/intentline-hq/intentline/pkg/logger"
	"github.com/intentline-hq/intentline/pkg/metrics"
	"github.com/intentline-hq/intentline/pkg/models"
)

// Type identifies a lifecycle event
type Type string

const (
	// TypeRegistered is emitted once when an intent enters the ledger
	TypeRegistered Type = "registered"
	// TypeStatusChanged is emitted on every accepted status transition
	TypeStatusChanged Type = "status_changed"
	// TypeExecuted is emitted when an execution attempt completes an intent
	TypeExecuted Type = "executed"
	// TypeExecutionFailed is emitted when an execution attempt fails,
	// carrying the failure classification
	TypeExecutionFailed Type = "execution_failed"
)

// Event is an append-only record of a ledger mutation. Events are emitted
// after the mutation is applied and are never read back by the engine.
type Event struct {
	ID            string              `json:"id"`
	Type          Type                `json:"type"`
	IntentID      common.Hash         `json:"intent_id"`
	Owner         common.Address      `json:"owner"`
	OldStatus     models.IntentStatus `json:"old_status,omitempty"`
	NewStatus     models.IntentStatus `json:"new_status,omitempty"`
	Attempt       uint64              `json:"attempt,omitempty"`
	ResourceUsed  uint64              `json:"resource_used,omitempty"`
	Commitment    string              `json:"commitment,omitempty"`
	FailureKind   models.FailureKind  `json:"failure_kind,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
	Timestamp     time.Time           `json:"timestamp"`
}

// New creates an event of the given type with a fresh id and timestamp
func New(t Type, intentID common.Hash) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		IntentID:  intentID,
		Timestamp: time.Now().UTC(),
	}
}

// Sink receives emitted events
type Sink interface {
	Emit(e Event) error
	Close() error
}

// Broker fans events out to the configured sinks. A failing sink is logged
// and skipped so event delivery never fails the mutation that produced the
// event.
type Broker struct {
	sinks  []Sink
	logger logger.Logger
}

var _ Sink = (*Broker)(nil)

// NewBroker creates a broker over the given sinks
func NewBroker(lg logger.Logger, sinks ...Sink) *Broker {
	if lg == nil {
		lg = &logger.EmptyLogger{}
	}
	return &Broker{sinks: sinks, logger: lg}
}

func (b *Broker) Emit(e Event) error {
	metrics.EventsEmitted.WithLabelValues(string(e.Type)).Inc()
	for _, s := range b.sinks {
		if err := s.Emit(e); err != nil {
			b.logger.Error("Failed to deliver %s event for intent %s: %v", e.Type, e.IntentID.Hex(), err)
		}
	}
	return nil
}

func (b *Broker) Close() error {
	var firstErr error
	for _, s := range b.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// MemorySink keeps emitted events in memory. It backs tests and the status
// endpoint's recent-events view.
type MemorySink struct {
	mu     sync.RWMutex
	events []Event
}

var _ Sink = (*MemorySink)(nil)

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Emit(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *MemorySink) Close() error {
	return nil
}

// Events returns a copy of every emitted event, oldest first
func (s *MemorySink) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByType returns the emitted events of the given type, oldest first
func (s *MemorySink) ByType(t Type) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of emitted events
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
