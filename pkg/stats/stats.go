package stats

import (
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/intentline-hq/intentline/pkg/models"
)

// Service accumulates global execution counters and per-intent attempt
// receipts. Counters are atomic so the orchestrator can record outcomes
// from concurrent attempts without holding a lock.
type Service struct {
	total      atomic.Uint64
	successful atomic.Uint64
	failed     atomic.Uint64

	mu       sync.RWMutex
	receipts map[common.Hash][]models.ExecutionReceipt
}

// NewService creates an empty statistics service
func NewService() *Service {
	return &Service{
		receipts: make(map[common.Hash][]models.ExecutionReceipt),
	}
}

// RecordSuccess counts one successful execution attempt
func (s *Service) RecordSuccess() {
	s.total.Add(1)
	s.successful.Add(1)
}

// RecordFailure counts one failed execution attempt
func (s *Service) RecordFailure() {
	s.total.Add(1)
	s.failed.Add(1)
}

// RecordReceipt appends a per-attempt receipt keyed by intent id
func (s *Service) RecordReceipt(r models.ExecutionReceipt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[r.IntentID] = append(s.receipts[r.IntentID], r)
}

// GetReceipts returns the recorded attempts for an intent, oldest first
func (s *Service) GetReceipts(id common.Hash) []models.ExecutionReceipt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ExecutionReceipt, len(s.receipts[id]))
	copy(out, s.receipts[id])
	return out
}

// GetLastReceipt returns the most recent attempt receipt for an intent
func (s *Service) GetLastReceipt(id common.Hash) (models.ExecutionReceipt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs := s.receipts[id]
	if len(rs) == 0 {
		return models.ExecutionReceipt{}, false
	}
	return rs[len(rs)-1], true
}

// GetStats returns the global execution counters
func (s *Service) GetStats() (total, successful, failed uint64) {
	return s.total.Load(), s.successful.Load(), s.failed.Load()
}

// GetSuccessRate returns the percentage of successful attempts, 0 when no
// attempt has been recorded yet
func (s *Service) GetSuccessRate() float64 {
	total := s.total.Load()
	if total == 0 {
		return 0
	}
	return float64(s.successful.Load()) / float64(total) * 100
}
