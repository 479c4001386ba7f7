// Package store defines the persistence adapters for accounts and the
// price catalog. The JSON file store is the default; PostgreSQL can serve
// as the source of truth with Redis as a read-through cache, and the
// in-memory store backs tests.
//
// Persistence is synchronous and out-of-band: callers save after a trade,
// never as part of the atomic trade operation itself. Store failures are
// reported but never corrupt in-memory state.
package store

import (
	"context"
	"errors"

	"github.com/papertrade/engine/internal/catalog"
	"github.com/papertrade/engine/internal/ledger"
)

// ErrAccountNotFound is returned when loading an unknown account ID.
var ErrAccountNotFound = errors.New("store: account not found")

// AccountStore persists accounts keyed by ID.
type AccountStore interface {
	// SaveAccount persists one account's balance, holdings, and history.
	SaveAccount(ctx context.Context, a *ledger.Account) error

	// LoadAccount retrieves one account, or ErrAccountNotFound.
	LoadAccount(ctx context.Context, id string) (*ledger.Account, error)

	// LoadAccounts retrieves all persisted accounts. A missing or empty
	// backing file yields an empty slice, not an error.
	LoadAccounts(ctx context.Context) ([]*ledger.Account, error)
}

// CatalogStore persists the instrument catalog.
type CatalogStore interface {
	// SaveCatalog persists a full catalog snapshot.
	SaveCatalog(ctx context.Context, instruments []catalog.Instrument) error

	// LoadCatalog retrieves all persisted instruments. A missing or empty
	// backing file yields an empty slice, not an error.
	LoadCatalog(ctx context.Context) ([]catalog.Instrument, error)
}

// Store combines account and catalog persistence.
type Store interface {
	AccountStore
	CatalogStore
}
