package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/intentline-hq/intentline/pkg/executor"
	"github.com/intentline-hq/intentline/pkg/ledger"
	"github.com/intentline-hq/intentline/pkg/logger"
	"github.com/intentline-hq/intentline/pkg/models"
	"github.com/intentline-hq/intentline/pkg/stats"
	"github.com/intentline-hq/intentline/pkg/venues"
)

// Server represents a health check HTTP server. It exposes liveness and
// readiness probes, venue and intent status, and Prometheus metrics.
type Server struct {
	port          string
	ledger        *ledger.Ledger
	orch          *executor.Orchestrator
	stats         *stats.Service
	venues        *venues.Registry
	logger        logger.Logger
	metricsAPIKey string
	httpServer    *http.Server
}

// NewServer creates a new health check server
func NewServer(port string, ldg *ledger.Ledger, orch *executor.Orchestrator, st *stats.Service, vreg *venues.Registry, lg logger.Logger) *Server {
	if lg == nil {
		lg = &logger.EmptyLogger{}
	}
	return &Server{
		port:          port,
		ledger:        ldg,
		orch:          orch,
		stats:         st,
		venues:        vreg,
		logger:        lg,
		metricsAPIKey: os.Getenv("METRICS_API_KEY"),
	}
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		// Get API key from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		// Check if the header has the correct format
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		// Validate API key
		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// routes builds the HTTP router
func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/status", s.handleStatus)
	r.Get("/stats", s.handleStats)
	r.Get("/intents", s.handleListIntents)
	r.Get("/intents/{id}", s.handleGetIntent)
	r.Post("/circuit/reset", s.handleCircuitReset)

	// Expose Prometheus metrics with API key authentication
	r.Method(http.MethodGet, "/metrics", s.metricsAuthMiddleware(promhttp.Handler()))

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	// Check that the ledger store answers queries
	if _, err := s.ledger.Count(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(fmt.Sprintf("Ledger not ready: %v", err)))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	breakers := s.orch.BreakerStates()

	venueStatuses := make(map[string]interface{})
	for _, v := range s.venues.Venues() {
		circuitStatus := "closed"
		if state, ok := breakers[v.Name()]; ok && state.Open {
			circuitStatus = "open"
		}

		actions := make([]string, 0)
		for _, action := range s.venues.ActionsOf(v.Name()) {
			actions = append(actions, string(action))
		}

		venueStatuses[v.Name()] = map[string]interface{}{
			"address": v.Address().Hex(),
			"actions": actions,
			"circuit": circuitStatus,
		}
	}

	total, successful, failed := s.stats.GetStats()
	status := map[string]interface{}{
		"venues":        venueStatuses,
		"inflight":      s.orch.InflightCount(),
		"resource_used": s.orch.MeterReading(),
		"executions": map[string]interface{}{
			"total":        total,
			"successful":   successful,
			"failed":       failed,
			"success_rate": s.stats.GetSuccessRate(),
		},
	}
	if count, err := s.ledger.Count(); err == nil {
		status["intents"] = count
	}

	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	total, successful, failed := s.stats.GetStats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":        total,
		"successful":   successful,
		"failed":       failed,
		"success_rate": s.stats.GetSuccessRate(),
	})
}

func (s *Server) handleGetIntent(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	if !strings.HasPrefix(raw, "0x") || len(raw) != 2+2*common.HashLength {
		writeError(w, http.StatusBadRequest, "invalid intent id")
		return
	}

	intent, err := s.ledger.Get(common.HexToHash(raw))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusNotFound, "intent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	payload := s.intentPayload(intent)
	if receipts := s.stats.GetReceipts(intent.ID); len(receipts) > 0 {
		payload["receipts"] = receipts
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleListIntents(w http.ResponseWriter, r *http.Request) {
	var (
		intents []models.Intent
		err     error
	)
	switch {
	case r.URL.Query().Get("owner") != "":
		raw := r.URL.Query().Get("owner")
		if !common.IsHexAddress(raw) {
			writeError(w, http.StatusBadRequest, "invalid owner address")
			return
		}
		intents, err = s.ledger.ListByOwner(common.HexToAddress(raw))
	case r.URL.Query().Get("status") != "":
		status := models.IntentStatus(r.URL.Query().Get("status"))
		if !models.ValidStatus(status) {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		intents, err = s.ledger.ListByStatus(status)
	default:
		writeError(w, http.StatusBadRequest, "owner or status query parameter is required")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]map[string]interface{}, 0, len(intents))
	for _, intent := range intents {
		out = append(out, s.intentPayload(intent))
	}
	writeJSON(w, http.StatusOK, out)
}

// Circuit breaker admin control endpoint
func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	venue := r.URL.Query().Get("venue")
	if venue == "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Missing venue parameter"))
		return
	}

	if !s.orch.ResetBreaker(venue) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(fmt.Sprintf("No circuit breaker for venue %s", venue)))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(fmt.Sprintf("Circuit breaker for venue %s reset", venue)))
}

// intentPayload maps an intent into its JSON representation
func (s *Server) intentPayload(intent models.Intent) map[string]interface{} {
	payload := map[string]interface{}{
		"id":              intent.ID.Hex(),
		"owner":           intent.Owner.Hex(),
		"description":     intent.Description,
		"status":          string(intent.Status),
		"created_at":      intent.CreatedAt.Format(time.RFC3339Nano),
		"cost_estimate":   intent.CostEstimate,
		"execution_count": intent.ExecutionCount,
	}
	if intent.ExecutedAt != nil {
		payload["executed_at"] = intent.ExecutedAt.Format(time.RFC3339Nano)
	}
	if intent.ExecutionCommitment != (common.Hash{}) {
		payload["commitment"] = intent.ExecutionCommitment.Hex()
	}
	return payload
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Error encoding status JSON: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Start starts the health check server and blocks until it shuts down
func (s *Server) Start() {
	s.httpServer = &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("Starting health and metrics server on port %s", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Health server error: %v", err)
	}
}

// Shutdown gracefully stops the health check server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
