package ledger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/intentline-hq/intentline/pkg/models"
)

// Store persists intent records. Implementations must be safe for
// concurrent use.
type Store interface {
	Put(intent models.Intent) error
	Get(id common.Hash) (models.Intent, error)
	Update(intent models.Intent) error
	ListByOwner(owner common.Address) ([]models.Intent, error)
	ListByStatus(status models.IntentStatus) ([]models.Intent, error)
	Count() (uint64, error)
	CountByOwner(owner common.Address) (uint64, error)
	Close() error
}

// MemoryStore keeps intents in a guarded map. It backs tests and runs
// without a store path configured.
type MemoryStore struct {
	mu      sync.RWMutex
	intents map[common.Hash]models.Intent
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		intents: make(map[common.Hash]models.Intent),
	}
}

func (s *MemoryStore) Put(intent models.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.intents[intent.ID]; ok {
		return fmt.Errorf("intent %s: %w", intent.ID.Hex(), models.ErrAlreadyExists)
	}
	s.intents[intent.ID] = intent
	return nil
}

func (s *MemoryStore) Get(id common.Hash) (models.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	intent, ok := s.intents[id]
	if !ok {
		return models.Intent{}, fmt.Errorf("intent %s: %w", id.Hex(), models.ErrNotFound)
	}
	return intent, nil
}

func (s *MemoryStore) Update(intent models.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.intents[intent.ID]; !ok {
		return fmt.Errorf("intent %s: %w", intent.ID.Hex(), models.ErrNotFound)
	}
	s.intents[intent.ID] = intent
	return nil
}

func (s *MemoryStore) ListByOwner(owner common.Address) ([]models.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Intent
	for _, intent := range s.intents {
		if intent.Owner == owner {
			out = append(out, intent)
		}
	}
	sortIntents(out)
	return out, nil
}

func (s *MemoryStore) ListByStatus(status models.IntentStatus) ([]models.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Intent
	for _, intent := range s.intents {
		if intent.Status == status {
			out = append(out, intent)
		}
	}
	sortIntents(out)
	return out, nil
}

func (s *MemoryStore) Count() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.intents)), nil
}

func (s *MemoryStore) CountByOwner(owner common.Address) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n uint64
	for _, intent := range s.intents {
		if intent.Owner == owner {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// sortIntents orders listings by creation time, with the id as tiebreaker
// so results are stable
func sortIntents(intents []models.Intent) {
	sort.Slice(intents, func(i, j int) bool {
		if intents[i].CreatedAt.Equal(intents[j].CreatedAt) {
			return intents[i].ID.Hex() < intents[j].ID.Hex()
		}
		return intents[i].CreatedAt.Before(intents[j].CreatedAt)
	})
}
