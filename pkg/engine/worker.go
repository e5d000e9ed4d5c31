package engine

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/intentline-hq/intentline/pkg/executor"
	"github.com/intentline-hq/intentline/pkg/metrics"
	"github.com/intentline-hq/intentline/pkg/models"
)

// worker processes execution jobs from the queue until it closes
func (s *Service) worker(ctx context.Context, id int) {
	s.logger.Debug("Starting worker %d", id)
	for {
		job, ok := <-s.pendingJobs
		if !ok {
			s.logger.Debug("Worker %d shutting down: channel closed", id)
			return
		}

		s.logger.Debug("Worker %d executing intent %s (%d steps)", id, job.IntentID.Hex(), len(job.Steps))

		total, err := s.orch.Execute(ctx, job.IntentID, job.Steps, job.Caller)
		if err != nil {
			s.handleExecutionError(ctx, job, err)
		} else {
			s.logger.Info("Worker %d completed intent %s (output: %s)", id, job.IntentID.Hex(), total.String())
			s.unmarkQueued(job.IntentID)
		}
		s.wg.Done()
	}
}

// handleExecutionError decides whether a failed job is retried. Preflight
// rejections never settled an attempt and are released immediately; settled
// failures are classified and scheduled with exponential backoff.
func (s *Service) handleExecutionError(ctx context.Context, job models.ExecutionJob, err error) {
	var execErr *executor.ExecError
	if !errors.As(err, &execErr) {
		s.logger.Error("Intent %s rejected before execution: %v", job.IntentID.Hex(), err)
		s.unmarkQueued(job.IntentID)
		return
	}

	shouldRetry, errorType := ShouldRetry(execErr)
	s.logger.Debug("Error executing intent %s classified as %s (retry: %v)", job.IntentID.Hex(), errorType, shouldRetry)

	if !shouldRetry {
		s.logger.Notice("Not retrying intent %s due to permanent error type: %s", job.IntentID.Hex(), errorType)
		metrics.PermanentErrors.WithLabelValues(execErr.Venue, errorType).Inc()
		s.unmarkQueued(job.IntentID)
		return
	}

	// The settled attempt count on the intent is the retry bookkeeping;
	// attempt 1 is the initial execution.
	intent, getErr := s.ledger.Get(job.IntentID)
	if getErr != nil {
		s.logger.Error("Error loading intent %s after failed attempt: %v", job.IntentID.Hex(), getErr)
		s.unmarkQueued(job.IntentID)
		return
	}
	retriesUsed := int(intent.ExecutionCount) - 1
	if retriesUsed < 0 {
		retriesUsed = 0
	}

	if retriesUsed >= s.config.MaxRetries {
		s.logger.Notice("Max retries reached for intent %s, giving up (error: %s)", job.IntentID.Hex(), errorType)
		metrics.MaxRetriesReached.WithLabelValues(errorType).Inc()
		s.unmarkQueued(job.IntentID)
		return
	}

	if ctx.Err() != nil {
		s.logger.Notice("Engine shutting down, not scheduling retry for intent %s", job.IntentID.Hex())
		s.unmarkQueued(job.IntentID)
		return
	}

	backoff := CalculateBackoff(retriesUsed)
	retryJob := models.RetryJob{
		Job:         job,
		RetryCount:  retriesUsed + 1,
		NextAttempt: time.Now().Add(backoff),
		ErrorType:   errorType,
	}

	metrics.RetryCount.WithLabelValues(errorType).Inc()
	s.logger.Info("Scheduling retry #%d for intent %s in %v (error: %s)", retryJob.RetryCount, job.IntentID.Hex(), backoff, errorType)
	s.wg.Add(1)
	s.retryJobs <- retryJob
}

// ShouldRetry reports whether a retry can change the outcome of a settled
// failure, along with the error type label. Named rejections are
// deterministic business outcomes and replay identically, except a
// suspended venue whose breaker may close before the next attempt.
func ShouldRetry(execErr *executor.ExecError) (bool, string) {
	if execErr.Kind == models.FailureNamed {
		if execErr.Reason == "venue_suspended" {
			return true, execErr.Reason
		}
		return false, execErr.Reason
	}
	return true, execErr.Reason
}

// CalculateBackoff returns the delay before retry number retriesUsed+1
func CalculateBackoff(retriesUsed int) time.Duration {
	// Calculate exponential backoff (2^retries * 10 seconds)
	backoff := time.Duration(math.Pow(2, float64(retriesUsed))) * 10 * time.Second

	// Set a maximum backoff of 2 minutes
	maxBackoff := 2 * time.Minute
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}
