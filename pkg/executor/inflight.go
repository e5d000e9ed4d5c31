package executor

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/intentline-hq/intentline/pkg/metrics"
)

// attemptInfo holds bookkeeping for one in-flight execution
type attemptInfo struct {
	Caller  common.Address
	Started time.Time
}

// inflightTracker serializes execution attempts so at most one runs per
// intent at a time
type inflightTracker struct {
	mu       sync.Mutex
	attempts map[common.Hash]attemptInfo
}

func newInflightTracker() *inflightTracker {
	return &inflightTracker{
		attempts: make(map[common.Hash]attemptInfo),
	}
}

// Begin claims the intent for execution. It returns false when another
// attempt already holds the claim.
func (it *inflightTracker) Begin(id common.Hash, caller common.Address) bool {
	it.mu.Lock()
	defer it.mu.Unlock()

	if _, exists := it.attempts[id]; exists {
		return false
	}
	it.attempts[id] = attemptInfo{Caller: caller, Started: time.Now()}
	metrics.InflightExecutions.Set(float64(len(it.attempts)))
	return true
}

// End releases the claim after the attempt settles
func (it *inflightTracker) End(id common.Hash) {
	it.mu.Lock()
	defer it.mu.Unlock()

	delete(it.attempts, id)
	metrics.InflightExecutions.Set(float64(len(it.attempts)))
}

// Count returns the number of executions currently running
func (it *inflightTracker) Count() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	return len(it.attempts)
}
