package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/papertrade/engine/internal/catalog"
	"github.com/papertrade/engine/internal/ledger"
)

const (
	accountsFile = "accounts.json"
	catalogFile  = "catalog.json"
)

// FileStore implements Store with two JSON files in a data directory:
// accounts.json maps account ID to the account record, catalog.json maps
// symbols to instruments. Writes replace the whole file atomically via a
// temp file and rename.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates the data directory if needed and returns the store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) SaveAccount(_ context.Context, a *ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.readAccounts()
	if err != nil {
		return err
	}
	accounts[a.ID()] = a
	return s.writeJSON(accountsFile, accounts)
}

func (s *FileStore) LoadAccount(_ context.Context, id string) (*ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.readAccounts()
	if err != nil {
		return nil, err
	}
	a, ok := accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return a, nil
}

func (s *FileStore) LoadAccounts(_ context.Context) ([]*ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.readAccounts()
	if err != nil {
		return nil, err
	}
	out := make([]*ledger.Account, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a)
	}
	return out, nil
}

func (s *FileStore) SaveCatalog(_ context.Context, instruments []catalog.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bySymbol := make(map[string]catalog.Instrument, len(instruments))
	for _, inst := range instruments {
		bySymbol[inst.Symbol] = inst
	}
	return s.writeJSON(catalogFile, bySymbol)
}

func (s *FileStore) LoadCatalog(_ context.Context) ([]catalog.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFile(catalogFile)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []catalog.Instrument{}, nil
	}

	var bySymbol map[string]catalog.Instrument
	if err := json.Unmarshal(data, &bySymbol); err != nil {
		return nil, fmt.Errorf("%w: catalog file: %v", ledger.ErrCorruptData, err)
	}
	out := make([]catalog.Instrument, 0, len(bySymbol))
	for _, inst := range bySymbol {
		out = append(out, inst)
	}
	return out, nil
}

// readAccounts decodes the accounts file. Missing or empty file yields an
// empty map; a syntactically invalid file or an invalid account record
// yields an error wrapping ledger.ErrCorruptData.
func (s *FileStore) readAccounts() (map[string]*ledger.Account, error) {
	data, err := s.readFile(accountsFile)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return make(map[string]*ledger.Account), nil
	}

	var accounts map[string]*ledger.Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		if errors.Is(err, ledger.ErrCorruptData) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: accounts file: %v", ledger.ErrCorruptData, err)
	}
	if accounts == nil {
		accounts = make(map[string]*ledger.Account)
	}
	return accounts, nil
}

func (s *FileStore) readFile(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (s *FileStore) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
