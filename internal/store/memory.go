package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/papertrade/engine/internal/catalog"
	"github.com/papertrade/engine/internal/ledger"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development; nothing survives a restart. Stored accounts are cloned on
// the way in and out to avoid external mutation.
type MemoryStore struct {
	mu          sync.RWMutex
	accounts    map[string]*ledger.Account
	instruments []catalog.Instrument
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*ledger.Account)}
}

func (s *MemoryStore) SaveAccount(_ context.Context, a *ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[a.ID()] = a.Clone()
	return nil
}

func (s *MemoryStore) LoadAccount(_ context.Context, id string) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return a.Clone(), nil
}

func (s *MemoryStore) LoadAccounts(_ context.Context) ([]*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.Clone())
	}
	return out, nil
}

func (s *MemoryStore) SaveCatalog(_ context.Context, instruments []catalog.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instruments = append([]catalog.Instrument(nil), instruments...)
	return nil
}

func (s *MemoryStore) LoadCatalog(_ context.Context) ([]catalog.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]catalog.Instrument(nil), s.instruments...), nil
}
