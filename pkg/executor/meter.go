package executor

import "sync/atomic"

// resourceMeter is a monotonically increasing counter of abstract resource
// units charged by executed steps. Receipts record the readings around an
// attempt, so per-attempt usage is the end reading minus the start reading.
type resourceMeter struct {
	used atomic.Uint64
}

// Reading returns the current cumulative meter value
func (m *resourceMeter) Reading() uint64 {
	return m.used.Load()
}

// Charge adds n units to the meter and returns the new reading
func (m *resourceMeter) Charge(n uint64) uint64 {
	return m.used.Add(n)
}
