package roles

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/intentline-hq/intentline/pkg/models"
)

// Registry tracks the owner identity and the set of granted executors
type Registry struct {
	mu        sync.RWMutex
	owner     common.Address
	executors map[common.Address]struct{}
}

// NewRegistry creates a registry with the given owner. The owner holds the
// executor role implicitly and is never stored in the executor set.
func NewRegistry(owner common.Address) (*Registry, error) {
	if owner == (common.Address{}) {
		return nil, fmt.Errorf("owner is the zero address: %w", models.ErrInvalidInput)
	}
	return &Registry{
		owner:     owner,
		executors: make(map[common.Address]struct{}),
	}, nil
}

// Owner returns the current owner identity
func (r *Registry) Owner() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner
}

// IsOwner reports whether identity is the current owner
func (r *Registry) IsOwner(identity common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return identity == r.owner
}

// IsExecutor reports whether identity holds the executor role. The owner
// always does.
func (r *Registry) IsExecutor(identity common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if identity == r.owner {
		return true
	}
	_, ok := r.executors[identity]
	return ok
}

// Executors returns the granted executor identities, owner excluded
func (r *Registry) Executors() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]common.Address, 0, len(r.executors))
	for id := range r.executors {
		out = append(out, id)
	}
	return out
}

// AddExecutor grants the executor role to identity. Only the owner may grant.
func (r *Registry) AddExecutor(identity, caller common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return fmt.Errorf("caller %s is not the owner: %w", caller.Hex(), models.ErrUnauthorized)
	}
	if identity == (common.Address{}) {
		return fmt.Errorf("executor is the zero address: %w", models.ErrInvalidInput)
	}
	if identity == r.owner {
		return fmt.Errorf("owner %s holds the role implicitly: %w", identity.Hex(), models.ErrAlreadyExecutor)
	}
	if _, ok := r.executors[identity]; ok {
		return fmt.Errorf("executor %s: %w", identity.Hex(), models.ErrAlreadyExecutor)
	}

	r.executors[identity] = struct{}{}
	return nil
}

// RemoveExecutor revokes the executor role from identity. Only the owner may
// revoke, and the owner's implicit role cannot be revoked.
func (r *Registry) RemoveExecutor(identity, caller common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return fmt.Errorf("caller %s is not the owner: %w", caller.Hex(), models.ErrUnauthorized)
	}
	if _, ok := r.executors[identity]; !ok {
		return fmt.Errorf("executor %s: %w", identity.Hex(), models.ErrNotFound)
	}

	delete(r.executors, identity)
	return nil
}

// TransferOwnership moves the owner role to newOwner. Only the current owner
// may transfer. The previous owner keeps no role unless it was separately
// granted the executor role.
func (r *Registry) TransferOwnership(newOwner, caller common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return fmt.Errorf("caller %s is not the owner: %w", caller.Hex(), models.ErrUnauthorized)
	}
	if newOwner == (common.Address{}) {
		return fmt.Errorf("new owner is the zero address: %w", models.ErrInvalidInput)
	}
	if newOwner == r.owner {
		return fmt.Errorf("new owner equals current owner: %w", models.ErrInvalidInput)
	}

	r.owner = newOwner
	return nil
}
