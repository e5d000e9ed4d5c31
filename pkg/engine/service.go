package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/intentline-hq/intentline/pkg/config"
	"github.com/intentline-hq/intentline/pkg/events"
	"github.com/intentline-hq/intentline/pkg/executor"
	"github.com/intentline-hq/intentline/pkg/health"
	"github.com/intentline-hq/intentline/pkg/ledger"
	"github.com/intentline-hq/intentline/pkg/logger"
	"github.com/intentline-hq/intentline/pkg/metrics"
	"github.com/intentline-hq/intentline/pkg/models"
	"github.com/intentline-hq/intentline/pkg/parser"
	"github.com/intentline-hq/intentline/pkg/plan"
	"github.com/intentline-hq/intentline/pkg/roles"
	"github.com/intentline-hq/intentline/pkg/stats"
	"github.com/intentline-hq/intentline/pkg/store"
	"github.com/intentline-hq/intentline/pkg/venues"
)

// Service drives the intent lifecycle end to end: it parses pending
// descriptions into plans, queues executable intents to a worker pool, and
// schedules retries for failed attempts.
type Service struct {
	config      *config.Config
	logger      logger.Logger
	registry    *roles.Registry
	ledger      *ledger.Ledger
	store       *store.Store
	venues      *venues.Registry
	parser      *parser.Parser
	orch        *executor.Orchestrator
	stats       *stats.Service
	broker      *events.Broker
	health      *health.Server
	workers     int
	pendingJobs chan models.ExecutionJob
	retryJobs   chan models.RetryJob
	wg          sync.WaitGroup

	// retrierDone closes when the retry handler stops feeding the worker
	// queue; handlerDone closes when it has fully drained and exited.
	retrierDone chan struct{}
	handlerDone chan struct{}

	sendMu  sync.Mutex
	stopped bool

	mu     sync.Mutex
	queued map[common.Hash]struct{}
}

// New wires an engine from its configuration
func New(cfg *config.Config) (*Service, error) {
	lg := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	registry, err := roles.NewRegistry(cfg.OwnerAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to create role registry: %v", err)
	}
	if err := registry.AddExecutor(cfg.OrchestratorAddress, cfg.OwnerAddress); err != nil {
		return nil, fmt.Errorf("failed to grant executor role: %v", err)
	}

	// Assemble event sinks
	var sinks []events.Sink
	if cfg.EventsWebhookURL != "" {
		sinks = append(sinks, events.NewWebhookSink(cfg.EventsWebhookURL, cfg.WebhookAuthToken))
		lg.Info("Delivering lifecycle events to webhook %s", cfg.EventsWebhookURL)
	}
	if cfg.NATSURL != "" {
		connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		natsSink, err := events.ConnectNATS(connectCtx, cfg.NATSURL)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %v", err)
		}
		sinks = append(sinks, natsSink)
		lg.Info("Publishing lifecycle events to NATS at %s", cfg.NATSURL)
	}
	broker := events.NewBroker(lg, sinks...)

	// Open the intent store
	var (
		ledgerStore ledger.Store
		sqlStore    *store.Store
	)
	if cfg.StorePath != "" {
		sqlStore, err = store.New(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open intent store: %v", err)
		}
		ledgerStore = sqlStore
		lg.Info("Using SQLite intent store at %s", cfg.StorePath)
	} else {
		ledgerStore = ledger.NewMemoryStore()
		lg.Info("Using in-memory intent store")
	}

	ldg := ledger.New(ledgerStore, registry, broker, lg)

	// Register venues from the manifest
	venues.SetGlobalQuoteTTL(cfg.QuoteCacheTTL)
	vreg := venues.NewRegistry()
	for _, vc := range cfg.Venues {
		venue := venues.NewMockVenue(vc.Name, common.HexToAddress(vc.Address), vc.FeeBps)
		for _, action := range vc.Actions {
			vreg.Register(models.ActionType(action), venue)
		}
		lg.InfoWithVenue(vc.Name, "Registered venue at %s handling %v", vc.Address, vc.Actions)
	}

	st := stats.NewService()

	orch := executor.New(ldg, registry, vreg, st, lg, cfg.OrchestratorAddress, executor.BreakerConfig{
		Enabled:      cfg.CircuitBreaker.Enabled,
		Threshold:    cfg.CircuitBreaker.Threshold,
		Window:       cfg.CircuitBreaker.WindowDuration,
		ResetTimeout: cfg.CircuitBreaker.ResetTimeout,
	})

	return &Service{
		config:      cfg,
		logger:      lg,
		registry:    registry,
		ledger:      ldg,
		store:       sqlStore,
		venues:      vreg,
		parser:      parser.NewParser(vreg, cfg.Assets, cfg.SlippageBps),
		orch:        orch,
		stats:       st,
		broker:      broker,
		workers:     cfg.WorkerCount,
		pendingJobs: make(chan models.ExecutionJob, 100), // Buffer for executable intents
		retryJobs:   make(chan models.RetryJob, 100),     // Buffer for retry jobs
		retrierDone: make(chan struct{}),
		handlerDone: make(chan struct{}),
		queued:      make(map[common.Hash]struct{}),
	}, nil
}

// Ledger exposes the intent ledger for registration and queries
func (s *Service) Ledger() *ledger.Ledger {
	return s.ledger
}

// Orchestrator exposes the execution orchestrator
func (s *Service) Orchestrator() *executor.Orchestrator {
	return s.orch
}

// Stats exposes the execution statistics service
func (s *Service) Stats() *stats.Service {
	return s.stats
}

// Start begins the orchestration engine and blocks until ctx is cancelled
func (s *Service) Start(ctx context.Context) {
	// Start health monitoring server
	s.health = health.NewServer(s.config.MetricsPort, s.ledger, s.orch, s.stats, s.venues, s.logger)
	go s.health.Start()

	// Start worker pool
	s.logger.Info("Starting %d worker goroutines", s.workers)
	for i := 0; i < s.workers; i++ {
		go s.worker(ctx, i)
	}

	// Start retry handler
	go s.retryHandler(ctx)

	s.logger.Info("Starting orchestration engine with polling interval %v", s.config.PollingInterval)
	ticker := time.NewTicker(s.config.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Context cancelled, shutting down engine")
			s.sendMu.Lock()
			s.stopped = true
			s.sendMu.Unlock()
			<-s.retrierDone      // retry handler stopped feeding workers
			close(s.pendingJobs) // workers drain the queue and exit
			s.wg.Wait()          // every queued job settled or released
			close(s.retryJobs)
			<-s.handlerDone
			s.shutdown()
			return
		case <-ticker.C:
			s.pollOnce()
		}
	}
}

// pollOnce runs one scheduling pass: parse newly registered intents, then
// queue every executable intent that is not already in flight.
func (s *Service) pollOnce() {
	s.parsePending()

	parsed, err := s.ledger.ListByStatus(models.StatusParsed)
	if err != nil {
		s.logger.Error("Error listing parsed intents: %v", err)
		return
	}
	metrics.PendingIntents.Set(float64(len(parsed)))

	queued := 0
	queued += s.queueIntents(parsed)

	// Re-queue failed intents with retry budget left. In-flight retries
	// are skipped through the queued map; this picks up intents left
	// Failed by a previous run.
	failed, err := s.ledger.ListByStatus(models.StatusFailed)
	if err != nil {
		s.logger.Error("Error listing failed intents: %v", err)
	} else {
		var retryable []models.Intent
		for _, intent := range failed {
			if int(intent.ExecutionCount) <= s.config.MaxRetries {
				retryable = append(retryable, intent)
			}
		}
		queued += s.queueIntents(retryable)
	}

	if queued > 0 {
		s.logger.Info("Queued %d intents for execution", queued)
	}
}

// parsePending turns pending descriptions into attached execution plans
func (s *Service) parsePending() {
	pending, err := s.ledger.ListByStatus(models.StatusPending)
	if err != nil {
		s.logger.Error("Error listing pending intents: %v", err)
		return
	}

	for _, intent := range pending {
		steps, err := s.parser.Parse(intent.Description)
		if err != nil {
			s.logger.Error("Error parsing intent %s (%q): %v", intent.ID.Hex(), intent.Description, err)
			continue
		}
		payload, err := parser.EncodePlan(steps)
		if err != nil {
			s.logger.Error("Error encoding plan for intent %s: %v", intent.ID.Hex(), err)
			continue
		}
		if err := s.ledger.AttachPlan(intent.ID, payload, s.orch.Identity()); err != nil {
			s.logger.Error("Error attaching plan to intent %s: %v", intent.ID.Hex(), err)
			continue
		}
		s.logger.Debug("Parsed intent %s into %d steps", intent.ID.Hex(), len(steps))
	}
}

// queueIntents decodes plans and hands intents to the worker pool, skipping
// any already queued or whose plan cannot fit its declared budget. Returns
// the number queued.
func (s *Service) queueIntents(intents []models.Intent) int {
	queued := 0
	for _, intent := range intents {
		if !s.markQueued(intent.ID) {
			continue
		}
		steps, err := parser.DecodePlan(intent.Payload)
		if err != nil {
			s.logger.Error("Error decoding plan for intent %s: %v", intent.ID.Hex(), err)
			s.unmarkQueued(intent.ID)
			continue
		}
		// The orchestrator would reject the job before claiming it, so
		// skipping here avoids queue churn on every tick
		if estimated := plan.Estimate(steps); estimated > intent.CostEstimate {
			s.logger.Debug("Skipping intent %s: estimated cost %d exceeds budget %d", intent.ID.Hex(), estimated, intent.CostEstimate)
			s.unmarkQueued(intent.ID)
			continue
		}
		s.wg.Add(1)
		s.pendingJobs <- models.ExecutionJob{
			IntentID: intent.ID,
			Caller:   intent.Owner,
			Steps:    steps,
		}
		queued++
	}
	return queued
}

// Submit queues an already parsed intent for execution without waiting for
// the next poll tick
func (s *Service) Submit(intentID common.Hash) error {
	intent, err := s.ledger.Get(intentID)
	if err != nil {
		return err
	}
	if !intent.Executable() {
		return fmt.Errorf("intent %s is not executable in status %s: %w", intentID.Hex(), intent.Status, models.ErrInvalidState)
	}
	steps, err := parser.DecodePlan(intent.Payload)
	if err != nil {
		return err
	}
	if estimated := plan.Estimate(steps); estimated > intent.CostEstimate {
		return fmt.Errorf("estimated cost %d exceeds budget %d: %w", estimated, intent.CostEstimate, models.ErrBudgetExceeded)
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.stopped {
		return fmt.Errorf("engine is shutting down")
	}
	if !s.markQueued(intentID) {
		return fmt.Errorf("intent %s is already queued: %w", intentID.Hex(), models.ErrInvalidState)
	}
	s.wg.Add(1)
	s.pendingJobs <- models.ExecutionJob{
		IntentID: intent.ID,
		Caller:   intent.Owner,
		Steps:    steps,
	}
	return nil
}

// markQueued claims the intent for the queue. Returns false when it is
// already in flight.
func (s *Service) markQueued(id common.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queued[id]; ok {
		return false
	}
	s.queued[id] = struct{}{}
	return true
}

// unmarkQueued releases the intent once its job settled or was dropped
func (s *Service) unmarkQueued(id common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queued, id)
}

// QueuedCount reports how many intents are queued or in flight
func (s *Service) QueuedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queued)
}

// shutdown releases held resources after the worker pool has drained
func (s *Service) shutdown() {
	if s.health != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.health.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Error shutting down health server: %v", err)
		}
		cancel()
	}
	if err := s.broker.Close(); err != nil {
		s.logger.Error("Error closing event broker: %v", err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("Error closing intent store: %v", err)
		}
	}
	s.logger.Info("Engine shut down")
}
