package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/papertrade/engine/internal/catalog"
	"github.com/papertrade/engine/internal/ledger"
)

// CachedStore wraps a primary Store with a Redis read-through cache.
// Writes go to the primary store and refresh the cache; reads check Redis
// first and fall back to the primary. Cache failures are never fatal: a
// broken cache degrades to primary-only operation.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{primary: primary, rdb: rdb, ttl: ttl}
}

func (s *CachedStore) SaveAccount(ctx context.Context, a *ledger.Account) error {
	if err := s.primary.SaveAccount(ctx, a); err != nil {
		return err
	}
	s.cacheAccount(ctx, a)
	return nil
}

func (s *CachedStore) LoadAccount(ctx context.Context, id string) (*ledger.Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(id)).Bytes()
	if err == nil {
		var a ledger.Account
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
		// Cached bytes failed ledger validation: drop and re-read.
		s.rdb.Del(ctx, accountKey(id))
	}

	a, err := s.primary.LoadAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheAccount(ctx, a)
	return a, nil
}

// LoadAccounts always hits the primary: the cache has no authoritative
// view of the full account set.
func (s *CachedStore) LoadAccounts(ctx context.Context) ([]*ledger.Account, error) {
	return s.primary.LoadAccounts(ctx)
}

func (s *CachedStore) SaveCatalog(ctx context.Context, instruments []catalog.Instrument) error {
	if err := s.primary.SaveCatalog(ctx, instruments); err != nil {
		return err
	}
	if data, err := json.Marshal(instruments); err == nil {
		s.rdb.Set(ctx, catalogKey(), data, s.ttl)
	}
	return nil
}

func (s *CachedStore) LoadCatalog(ctx context.Context) ([]catalog.Instrument, error) {
	data, err := s.rdb.Get(ctx, catalogKey()).Bytes()
	if err == nil {
		var instruments []catalog.Instrument
		if json.Unmarshal(data, &instruments) == nil {
			return instruments, nil
		}
		s.rdb.Del(ctx, catalogKey())
	}

	instruments, err := s.primary.LoadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(instruments); err == nil {
		s.rdb.Set(ctx, catalogKey(), data, s.ttl)
	}
	return instruments, nil
}

func (s *CachedStore) cacheAccount(ctx context.Context, a *ledger.Account) {
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, accountKey(a.ID()), data, s.ttl)
	}
}

func accountKey(id string) string { return fmt.Sprintf("account:%s", id) }
func catalogKey() string          { return "catalog:snapshot" }
