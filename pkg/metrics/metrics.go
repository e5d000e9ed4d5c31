package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	IntentsRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "intentline_intents_registered_total",
		Help: "The total number of intents registered with the ledger",
	})

	IntentsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentline_intents_executed_total",
		Help: "The total number of execution attempts by outcome",
	}, []string{"status"})

	ExecutionTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "intentline_execution_seconds",
		Help:    "Time taken to execute intent plans",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // Start at 1ms with 12 buckets doubling in size
	}, []string{"status"})

	StepTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "intentline_step_seconds",
		Help:    "Time taken to apply individual plan steps",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // Start at 0.5ms with 12 buckets doubling in size
	}, []string{"action", "venue"})

	ResourceUsed = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "intentline_resource_used",
		Help:    "Resource units consumed per execution attempt",
		Buckets: prometheus.ExponentialBuckets(21000, 2, 10), // Start at 21000 with 10 buckets doubling in size
	})

	PendingIntents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "intentline_pending_intents",
		Help: "The number of pending intents waiting to be parsed",
	})

	InflightExecutions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "intentline_inflight_executions",
		Help: "The number of execution attempts currently in progress",
	})

	RetryCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentline_retry_count_total",
		Help: "The total number of retried executions by error type",
	}, []string{"error_type"})

	// New metrics for error tracking
	ExecutionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentline_errors_total",
		Help: "Total number of execution errors by venue and type",
	}, []string{"venue", "error_type"})

	PermanentErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentline_permanent_errors_total",
		Help: "Total number of permanent errors that won't be retried",
	}, []string{"venue", "error_type"})

	VenueSuspensions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentline_venue_suspensions_total",
		Help: "Number of executions rejected because a venue breaker was open",
	}, []string{"venue"})

	// Retry related metrics
	MaxRetriesReached = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentline_max_retries_reached_total",
		Help: "Number of intents that reached maximum retry attempts",
	}, []string{"error_type"})

	RetryQueueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "intentline_retry_queue_size",
		Help: "Current size of the retry queue",
	})

	NextRetryIn = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "intentline_next_retry_seconds",
		Help: "Seconds until the next scheduled retry",
	})

	RetriesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentline_retries_executed_total",
		Help: "Number of retries that were executed",
	}, []string{"error_type"})

	RetriesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentline_retries_skipped_total",
		Help: "Number of retries that were skipped",
	}, []string{"reason"})

	DroppedRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "intentline_retries_dropped_total",
		Help: "Number of retries that were dropped due to queue capacity",
	})

	// CompletedIntents tracks the number of intents that reached Completed
	CompletedIntents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "intentline_completed_intents_total",
		Help: "The total number of intents that completed successfully",
	})

	// FailedIntents tracks the number of failed execution attempts
	FailedIntents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentline_failed_intents_total",
		Help: "The total number of failed execution attempts by failure kind",
	}, []string{"kind"})

	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentline_events_emitted_total",
		Help: "The total number of lifecycle events emitted by type",
	}, []string{"type"})
)
