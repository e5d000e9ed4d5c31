// Package executor settles parsed intents against venues with
// all-or-nothing semantics. A failed step rolls back every step applied
// before it, in reverse order, and the attempt is recorded as failed on
// the ledger.
package executor

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/intentline-hq/intentline/pkg/circuitbreaker"
	"github.com/intentline-hq/intentline/pkg/ledger"
	"github.com/intentline-hq/intentline/pkg/logger"
	"github.com/intentline-hq/intentline/pkg/metrics"
	"github.com/intentline-hq/intentline/pkg/models"
	"github.com/intentline-hq/intentline/pkg/plan"
	"github.com/intentline-hq/intentline/pkg/roles"
	"github.com/intentline-hq/intentline/pkg/stats"
	"github.com/intentline-hq/intentline/pkg/venues"
)

// BreakerConfig tunes the per-venue circuit breakers
type BreakerConfig struct {
	Enabled      bool
	Threshold    int
	Window       time.Duration
	ResetTimeout time.Duration
}

// Orchestrator coordinates execution attempts end to end. It claims the
// intent, applies steps through venue handlers, meters resource usage, and
// settles the outcome on the ledger.
type Orchestrator struct {
	ledger   *ledger.Ledger
	venues   *venues.Registry
	stats    *stats.Service
	logger   logger.Logger
	identity common.Address

	meter    *resourceMeter
	inflight *inflightTracker

	breakerCfg BreakerConfig
	mu         sync.Mutex
	breakers   map[common.Address]*circuitbreaker.CircuitBreaker
}

// New creates an orchestrator settling intents under the given identity.
// The identity must hold the executor role on the registry so status
// transitions are authorized.
func New(ldg *ledger.Ledger, reg *roles.Registry, vreg *venues.Registry, st *stats.Service, lg logger.Logger, identity common.Address, breakerCfg BreakerConfig) *Orchestrator {
	if lg == nil {
		lg = &logger.EmptyLogger{}
	}
	if !reg.IsExecutor(identity) {
		lg.Notice("Orchestrator identity %s lacks the executor role, attempts will fail to claim intents", identity.Hex())
	}
	return &Orchestrator{
		ledger:     ldg,
		venues:     vreg,
		stats:      st,
		logger:     lg,
		identity:   identity,
		meter:      &resourceMeter{},
		inflight:   newInflightTracker(),
		breakerCfg: breakerCfg,
		breakers:   make(map[common.Address]*circuitbreaker.CircuitBreaker),
	}
}

// appliedStep pairs an applied step with the venue that settled it and the
// realized output, for reverse-order compensation
type appliedStep struct {
	step     models.ExecutionStep
	venue    venues.Venue
	realized *big.Int
}

// Execute runs the steps of an intent as a single all-or-nothing attempt.
// The caller must be the intent owner. On success the intent completes and
// the realized total output is returned. On a step failure every applied
// step is compensated in reverse order, the intent is marked failed, and
// the returned error is an *ExecError carrying the classification.
func (o *Orchestrator) Execute(ctx context.Context, intentID common.Hash, steps []models.ExecutionStep, caller common.Address) (*big.Int, error) {
	intent, err := o.ledger.Get(intentID)
	if err != nil {
		return nil, err
	}
	if caller != intent.Owner {
		return nil, fmt.Errorf("caller %s does not own intent %s: %w", caller.Hex(), intentID.Hex(), models.ErrUnauthorized)
	}
	if !intent.Executable() {
		return nil, fmt.Errorf("intent %s in status %s: %w", intentID.Hex(), intent.Status, models.ErrInvalidState)
	}
	if err := plan.Validate(steps); err != nil {
		return nil, err
	}
	if estimated := plan.Estimate(steps); estimated > intent.CostEstimate {
		return nil, fmt.Errorf("estimated cost %d exceeds budget %d: %w", estimated, intent.CostEstimate, models.ErrBudgetExceeded)
	}

	if !o.inflight.Begin(intentID, caller) {
		return nil, fmt.Errorf("intent %s already executing: %w", intentID.Hex(), models.ErrInvalidState)
	}
	defer o.inflight.End(intentID)

	if err := o.ledger.SetStatus(intentID, models.StatusExecuting, o.identity); err != nil {
		return nil, fmt.Errorf("claim intent %s: %w", intentID.Hex(), err)
	}

	// From here on the attempt always settles through MarkExecuted or
	// MarkFailed, never a dangling Executing status
	attempt := intent.ExecutionCount + 1
	start := time.Now()
	resourceStart := o.meter.Reading()
	o.meter.Charge(plan.BaseCost)

	o.logger.Info("Executing intent %s attempt %d with %d steps", intentID.Hex(), attempt, len(steps))

	total := new(big.Int)
	applied := make([]appliedStep, 0, len(steps))
	failedVenue := "none"
	var stepErr error

	for i, step := range steps {
		v, ok := o.venues.Lookup(step.Action)
		if !ok {
			stepErr = fmt.Errorf("step %d: no venue handles action %q: %w", i, step.Action, models.ErrInvalidInput)
			break
		}
		if step.Venue != v.Address() {
			stepErr = fmt.Errorf("step %d: venue %s does not handle action %q: %w", i, step.Venue.Hex(), step.Action, models.ErrInvalidInput)
			break
		}
		if cb := o.breakerFor(v); cb.IsEnabled() && cb.IsOpen() {
			failedVenue = v.Name()
			stepErr = fmt.Errorf("step %d: venue %s: %w", i, v.Name(), models.ErrVenueSuspended)
			break
		}

		o.meter.Charge(plan.CostOf(step.Action))
		stepStart := time.Now()
		realized, err := v.Apply(ctx, step)
		metrics.StepTime.WithLabelValues(string(step.Action), v.Name()).Observe(time.Since(stepStart).Seconds())
		if err != nil {
			failedVenue = v.Name()
			o.recordVenueFailure(v)
			stepErr = fmt.Errorf("step %d on %s: %w", i, v.Name(), err)
			break
		}
		applied = append(applied, appliedStep{step: step, venue: v, realized: realized})

		if step.MinOutput != nil && realized.Cmp(step.MinOutput) < 0 {
			failedVenue = v.Name()
			o.recordVenueFailure(v)
			stepErr = fmt.Errorf("step %d on %s: realized %s below min output %s: %w", i, v.Name(), realized, step.MinOutput, models.ErrSlippageExceeded)
			break
		}
		total.Add(total, realized)
	}

	if stepErr != nil {
		o.compensate(applied)
		return nil, o.settleFailure(intentID, attempt, failedVenue, resourceStart, start, stepErr)
	}

	resourceEnd := o.meter.Reading()
	used := resourceEnd - resourceStart
	commitment := Commitment(intentID, attempt, steps, total)

	if err := o.ledger.MarkExecuted(intentID, used, commitment); err != nil {
		// Settlement raced with a concurrent transition. Roll the venue
		// state back so nothing leaks from a voided attempt.
		o.compensate(applied)
		return nil, fmt.Errorf("settle intent %s: %w", intentID.Hex(), err)
	}

	elapsed := time.Since(start)
	o.stats.RecordSuccess()
	o.stats.RecordReceipt(models.ExecutionReceipt{
		AttemptID:       uuid.NewString(),
		IntentID:        intentID,
		Attempt:         attempt,
		Success:         true,
		TotalOutput:     new(big.Int).Set(total),
		ResourceAtStart: resourceStart,
		ResourceAtEnd:   resourceEnd,
		ResourceUsed:    used,
		Elapsed:         elapsed,
		Timestamp:       time.Now().UTC(),
	})
	metrics.IntentsExecuted.WithLabelValues("completed").Inc()
	metrics.ExecutionTime.WithLabelValues("completed").Observe(elapsed.Seconds())
	metrics.ResourceUsed.Observe(float64(used))

	o.logger.Info("Intent %s completed: total output %s, resource used %d", intentID.Hex(), total.String(), used)
	return total, nil
}

// compensate reverts applied steps in reverse order. Revert failures are
// logged and skipped so the remaining steps still unwind.
func (o *Orchestrator) compensate(applied []appliedStep) {
	// A fresh context so rollback still runs when the attempt's context
	// was the thing that failed
	ctx := context.Background()
	for i := len(applied) - 1; i >= 0; i-- {
		a := applied[i]
		if err := a.venue.Revert(ctx, a.step, a.realized); err != nil {
			o.logger.ErrorWithVenue(a.venue.Name(), "Compensation failed for %s step: %v", a.step.Action, err)
		}
	}
}

// settleFailure records a failed attempt on the ledger, the stats service,
// and the metrics, and wraps the step error with its classification
func (o *Orchestrator) settleFailure(intentID common.Hash, attempt uint64, failedVenue string, resourceStart uint64, start time.Time, stepErr error) error {
	kind, label := Classify(stepErr)
	resourceEnd := o.meter.Reading()
	used := resourceEnd - resourceStart
	elapsed := time.Since(start)

	if err := o.ledger.MarkFailed(intentID, used, kind, stepErr.Error()); err != nil {
		o.logger.Error("Recording failure for intent %s: %v", intentID.Hex(), err)
	}
	o.stats.RecordFailure()
	o.stats.RecordReceipt(models.ExecutionReceipt{
		AttemptID:       uuid.NewString(),
		IntentID:        intentID,
		Attempt:         attempt,
		Success:         false,
		ResourceAtStart: resourceStart,
		ResourceAtEnd:   resourceEnd,
		ResourceUsed:    used,
		Elapsed:         elapsed,
		FailureKind:     kind,
		FailureReason:   stepErr.Error(),
		Timestamp:       time.Now().UTC(),
	})
	metrics.IntentsExecuted.WithLabelValues("failed").Inc()
	metrics.ExecutionTime.WithLabelValues("failed").Observe(elapsed.Seconds())
	metrics.ExecutionErrors.WithLabelValues(failedVenue, label).Inc()

	o.logger.Error("Intent %s attempt %d failed (%s/%s): %v", intentID.Hex(), attempt, kind, label, stepErr)
	return &ExecError{Kind: kind, Reason: label, Venue: failedVenue, Err: stepErr}
}

// breakerFor returns the circuit breaker guarding the venue, creating it
// on first use
func (o *Orchestrator) breakerFor(v venues.Venue) *circuitbreaker.CircuitBreaker {
	o.mu.Lock()
	defer o.mu.Unlock()

	cb, ok := o.breakers[v.Address()]
	if !ok {
		cb = circuitbreaker.NewCircuitBreaker(v.Name(), o.breakerCfg.Enabled, o.breakerCfg.Threshold, o.breakerCfg.Window, o.breakerCfg.ResetTimeout)
		o.breakers[v.Address()] = cb
	}
	return cb
}

func (o *Orchestrator) recordVenueFailure(v venues.Venue) {
	if o.breakerFor(v).RecordFailure() {
		metrics.VenueSuspensions.WithLabelValues(v.Name()).Inc()
		o.logger.ErrorWithVenue(v.Name(), "Venue suspended after repeated failures")
	}
}

// InflightCount returns the number of attempts currently running
func (o *Orchestrator) InflightCount() int {
	return o.inflight.Count()
}

// MeterReading returns the cumulative resource meter value
func (o *Orchestrator) MeterReading() uint64 {
	return o.meter.Reading()
}

// Identity returns the address the orchestrator settles under
func (o *Orchestrator) Identity() common.Address {
	return o.identity
}

// BreakerState is a snapshot of one venue breaker for monitoring
type BreakerState struct {
	Open        bool      `json:"open"`
	Failures    int       `json:"failures"`
	Threshold   int       `json:"threshold"`
	LastFailure time.Time `json:"last_failure"`
	TrippedAt   time.Time `json:"tripped_at"`
}

// BreakerStates reports the status of every venue breaker created so far
func (o *Orchestrator) BreakerStates() map[string]BreakerState {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[string]BreakerState, len(o.breakers))
	for _, cb := range o.breakers {
		failures, lastFailure, _, threshold := cb.GetState()
		out[cb.Name()] = BreakerState{
			Open:        cb.IsOpen(),
			Failures:    failures,
			Threshold:   threshold,
			LastFailure: lastFailure,
			TrippedAt:   cb.GetTripTime(),
		}
	}
	return out
}

// ResetBreaker manually closes the breaker for the named venue. It returns
// false when no breaker exists for that venue.
func (o *Orchestrator) ResetBreaker(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, cb := range o.breakers {
		if cb.Name() == name {
			cb.Reset()
			return true
		}
	}
	return false
}
