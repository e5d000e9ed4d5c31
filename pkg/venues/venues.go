package venues

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/intentline-hq/intentline/pkg/models"
)

// Venue executes typed steps against an external protocol. Apply settles a
// step and returns the realized output amount. Revert compensates a
// previously applied step during rollback.
type Venue interface {
	Name() string
	Address() common.Address
	Apply(ctx context.Context, step models.ExecutionStep) (*big.Int, error)
	Revert(ctx context.Context, step models.ExecutionStep, realized *big.Int) error
}

// VenueError is a recognized business rejection reported by a venue
type VenueError struct {
	Venue  string
	Reason string
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("venue %s rejected step: %s", e.Venue, e.Reason)
}

// Registry maps action types to the venue handling them
type Registry struct {
	mu       sync.RWMutex
	handlers map[models.ActionType]Venue
}

// NewRegistry creates an empty venue registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[models.ActionType]Venue),
	}
}

// Register assigns a venue to handle an action type, replacing any previous
// assignment
func (r *Registry) Register(action models.ActionType, v Venue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[action] = v
}

// Lookup returns the venue handling the given action type
func (r *Registry) Lookup(action models.ActionType) (Venue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.handlers[action]
	return v, ok
}

// Venues returns the distinct registered venues
func (r *Registry) Venues() []Venue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[common.Address]struct{})
	var out []Venue
	for _, v := range r.handlers {
		if _, ok := seen[v.Address()]; ok {
			continue
		}
		seen[v.Address()] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ByName returns the registered venue with the given name
func (r *Registry) ByName(name string) (Venue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.handlers {
		if v.Name() == name {
			return v, true
		}
	}
	return nil, false
}

// ActionsOf returns the action types the named venue handles, sorted
func (r *Registry) ActionsOf(name string) []models.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.ActionType
	for action, v := range r.handlers {
		if v.Name() == name {
			out = append(out, action)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
