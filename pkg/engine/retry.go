package engine

import (
	"context"
	"sort"
	"time"

	"github.com/intentline-hq/intentline/pkg/metrics"
	"github.com/intentline-hq/intentline/pkg/models"
)

const (
	// retryTickInterval is how often the retry queue is checked
	retryTickInterval = 10 * time.Second

	// maxRetryQueueSize limits how many retry jobs wait at once
	maxRetryQueueSize = 1000

	// maxRetriesPerTick keeps a single tick from flooding the workers
	maxRetriesPerTick = 10
)

// retryHandler manages the retry queue. Jobs wait out their backoff here and
// go back to the worker pool when due.
func (s *Service) retryHandler(ctx context.Context) {
	ticker := time.NewTicker(retryTickInterval)
	defer ticker.Stop()

	var retryQueue []models.RetryJob

	for {
		select {
		case <-ctx.Done():
			// Release slots for retries that will never run, then drain
			// the channel until the engine closes it
			for _, job := range retryQueue {
				s.unmarkQueued(job.Job.IntentID)
				s.wg.Done()
			}
			close(s.retrierDone)
			for job := range s.retryJobs {
				s.unmarkQueued(job.Job.IntentID)
				s.wg.Done()
			}
			close(s.handlerDone)
			return

		case job := <-s.retryJobs:
			if len(retryQueue) >= maxRetryQueueSize {
				s.logger.Error("Retry queue at capacity (%d jobs), dropping retry for intent %s", maxRetryQueueSize, job.Job.IntentID.Hex())
				s.unmarkQueued(job.Job.IntentID)
				s.wg.Done()
				metrics.DroppedRetries.Inc()
				continue
			}

			retryQueue = append(retryQueue, job)
			sort.Slice(retryQueue, func(i, j int) bool {
				return retryQueue[i].NextAttempt.Before(retryQueue[j].NextAttempt)
			})

		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}

			now := time.Now()
			var remainingJobs []models.RetryJob
			processed := 0

			metrics.RetryQueueSize.Set(float64(len(retryQueue)))
			if len(retryQueue) > 0 {
				nextRetryIn := retryQueue[0].NextAttempt.Sub(now).Seconds()
				if nextRetryIn < 0 {
					nextRetryIn = 0
				}
				metrics.NextRetryIn.Set(nextRetryIn)
			}

			for _, job := range retryQueue {
				if !job.NextAttempt.Before(now) {
					remainingJobs = append(remainingJobs, job)
					continue
				}
				if processed >= maxRetriesPerTick {
					remainingJobs = append(remainingJobs, job)
					continue
				}

				// The intent must still be in the retryable state; a
				// settled or cancelled intent leaves the queue here
				status, err := s.ledger.StatusOf(job.Job.IntentID)
				if err != nil || status != models.StatusFailed {
					s.logger.Notice("Intent %s is no longer retryable (status: %s), removing from retry queue", job.Job.IntentID.Hex(), status)
					s.unmarkQueued(job.Job.IntentID)
					s.wg.Done()
					metrics.RetriesSkipped.WithLabelValues("not_retryable").Inc()
					continue
				}

				s.logger.Info("Retrying intent %s (attempt #%d, error type: %s)", job.Job.IntentID.Hex(), job.RetryCount, job.ErrorType)
				s.pendingJobs <- job.Job
				processed++
				metrics.RetriesExecuted.WithLabelValues(job.ErrorType).Inc()
			}

			retryQueue = remainingJobs

			// Adjust the ticker to the next due job
			if processed >= maxRetriesPerTick && len(retryQueue) > 0 {
				ticker.Reset(1 * time.Second)
			} else if len(retryQueue) > 0 {
				waitTime := retryQueue[0].NextAttempt.Sub(now)
				if waitTime < 0 {
					waitTime = 1 * time.Second
				} else if waitTime > retryTickInterval {
					waitTime = retryTickInterval
				}
				ticker.Reset(waitTime)
			} else {
				ticker.Reset(retryTickInterval)
			}
		}
	}
}
