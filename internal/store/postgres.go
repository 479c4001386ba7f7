package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/papertrade/engine/internal/catalog"
	"github.com/papertrade/engine/internal/ledger"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
//
// Schema:
//
//	accounts(id TEXT PK, name TEXT, cash_balance NUMERIC)
//	holdings(account_id TEXT, symbol TEXT, quantity BIGINT, PK(account_id, symbol))
//	transactions(id TEXT PK, account_id TEXT, symbol TEXT, kind TEXT,
//	             quantity BIGINT, price_per_unit NUMERIC, at TIMESTAMPTZ)
//	instruments(symbol TEXT PK, name TEXT, current_price NUMERIC)
//	price_history(symbol TEXT, price NUMERIC, at TIMESTAMPTZ)
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// SaveAccount upserts the account row, replaces its holdings, and appends
// any transactions not yet recorded, all in one database transaction.
func (s *PostgresStore) SaveAccount(ctx context.Context, a *ledger.Account) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save account %s: %w", a.ID(), err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO accounts (id, name, cash_balance)
		 VALUES ($1, $2, $3::NUMERIC)
		 ON CONFLICT (id) DO UPDATE SET name = $2, cash_balance = $3::NUMERIC`,
		a.ID(), a.Name(), a.Balance().String(),
	)
	if err != nil {
		return fmt.Errorf("save account %s: %w", a.ID(), err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM holdings WHERE account_id = $1`, a.ID()); err != nil {
		return fmt.Errorf("save account %s: %w", a.ID(), err)
	}
	for sym, qty := range a.Holdings().Snapshot() {
		_, err := tx.Exec(ctx,
			`INSERT INTO holdings (account_id, symbol, quantity) VALUES ($1, $2, $3)`,
			a.ID(), sym, qty,
		)
		if err != nil {
			return fmt.Errorf("save account %s: %w", a.ID(), err)
		}
	}

	// History is append-only; re-saving already-persisted records is a no-op.
	for _, t := range a.History() {
		_, err := tx.Exec(ctx,
			`INSERT INTO transactions (id, account_id, symbol, kind, quantity, price_per_unit, at)
			 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7)
			 ON CONFLICT (id) DO NOTHING`,
			t.ID, a.ID(), t.Symbol, string(t.Kind), t.Quantity, t.PricePerUnit.String(), t.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("save account %s: %w", a.ID(), err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) LoadAccount(ctx context.Context, id string) (*ledger.Account, error) {
	var name, cashS string
	err := s.pool.QueryRow(ctx,
		`SELECT name, cash_balance::TEXT FROM accounts WHERE id = $1`, id).
		Scan(&name, &cashS)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", id, err)
	}

	holdings := make(map[string]int64)
	rows, err := s.pool.Query(ctx,
		`SELECT symbol, quantity FROM holdings WHERE account_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var sym string
		var qty int64
		if err := rows.Scan(&sym, &qty); err != nil {
			return nil, fmt.Errorf("load account %s: %w", id, err)
		}
		holdings[sym] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load account %s: %w", id, err)
	}

	history, err := s.loadTransactions(ctx, id)
	if err != nil {
		return nil, err
	}

	return assembleAccount(id, name, cashS, holdings, history)
}

func (s *PostgresStore) LoadAccounts(ctx context.Context) ([]*ledger.Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("load accounts: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	accounts := make([]*ledger.Account, 0, len(ids))
	for _, id := range ids {
		a, err := s.LoadAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

func (s *PostgresStore) loadTransactions(ctx context.Context, accountID string) ([]ledger.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, symbol, kind, quantity, price_per_unit::TEXT, at
		 FROM transactions WHERE account_id = $1 ORDER BY at, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", accountID, err)
	}
	defer rows.Close()

	var history []ledger.Transaction
	for rows.Next() {
		var t ledger.Transaction
		var kindS, priceS string
		if err := rows.Scan(&t.ID, &t.Symbol, &kindS, &t.Quantity, &priceS, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("load account %s: %w", accountID, err)
		}
		kind, err := ledger.ParseKind(kindS)
		if err != nil {
			return nil, err
		}
		t.Kind = kind
		t.PricePerUnit, err = decimal.NewFromString(priceS)
		if err != nil {
			return nil, fmt.Errorf("%w: transaction %s price %q", ledger.ErrCorruptData, t.ID, priceS)
		}
		history = append(history, t)
	}
	return history, rows.Err()
}

func (s *PostgresStore) SaveCatalog(ctx context.Context, instruments []catalog.Instrument) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save catalog: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, inst := range instruments {
		_, err := tx.Exec(ctx,
			`INSERT INTO instruments (symbol, name, current_price)
			 VALUES ($1, $2, $3::NUMERIC)
			 ON CONFLICT (symbol) DO UPDATE SET name = $2, current_price = $3::NUMERIC`,
			inst.Symbol, inst.Name, inst.CurrentPrice.String(),
		)
		if err != nil {
			return fmt.Errorf("save catalog: %w", err)
		}

		// History is append-only: replace the persisted rows with the
		// full snapshot rather than diffing.
		if _, err := tx.Exec(ctx, `DELETE FROM price_history WHERE symbol = $1`, inst.Symbol); err != nil {
			return fmt.Errorf("save catalog: %w", err)
		}
		for _, pt := range inst.History {
			_, err := tx.Exec(ctx,
				`INSERT INTO price_history (symbol, price, at) VALUES ($1, $2::NUMERIC, $3)`,
				inst.Symbol, pt.Price.String(), pt.Timestamp,
			)
			if err != nil {
				return fmt.Errorf("save catalog: %w", err)
			}
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) LoadCatalog(ctx context.Context) ([]catalog.Instrument, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT symbol, name, current_price::TEXT FROM instruments ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	defer rows.Close()

	var instruments []catalog.Instrument
	for rows.Next() {
		var inst catalog.Instrument
		var priceS string
		if err := rows.Scan(&inst.Symbol, &inst.Name, &priceS); err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		inst.CurrentPrice, err = decimal.NewFromString(priceS)
		if err != nil {
			return nil, fmt.Errorf("%w: instrument %s price %q", ledger.ErrCorruptData, inst.Symbol, priceS)
		}
		instruments = append(instruments, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	for i := range instruments {
		history, err := s.loadPriceHistory(ctx, instruments[i].Symbol)
		if err != nil {
			return nil, err
		}
		instruments[i].History = history
	}
	return instruments, nil
}

func (s *PostgresStore) loadPriceHistory(ctx context.Context, symbol string) ([]catalog.PricePoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT price::TEXT, at FROM price_history WHERE symbol = $1 ORDER BY at`, symbol)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	defer rows.Close()

	var history []catalog.PricePoint
	for rows.Next() {
		var pt catalog.PricePoint
		var priceS string
		if err := rows.Scan(&priceS, &pt.Timestamp); err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		pt.Price, err = decimal.NewFromString(priceS)
		if err != nil {
			return nil, fmt.Errorf("%w: price history for %s: %q", ledger.ErrCorruptData, symbol, priceS)
		}
		history = append(history, pt)
	}
	return history, rows.Err()
}

// assembleAccount rebuilds a ledger.Account from persisted columns by
// round-tripping through the account's own JSON codec, so every invariant
// check lives in one place.
func assembleAccount(id, name, cashS string, holdings map[string]int64, history []ledger.Transaction) (*ledger.Account, error) {
	raw, err := json.Marshal(struct {
		ID          string               `json:"id"`
		Name        string               `json:"name"`
		CashBalance json.RawMessage      `json:"cash_balance"`
		Holdings    map[string]int64     `json:"holdings"`
		History     []ledger.Transaction `json:"history"`
	}{
		ID:          id,
		Name:        name,
		CashBalance: json.RawMessage(`"` + cashS + `"`),
		Holdings:    holdings,
		History:     history,
	})
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", id, err)
	}

	var a ledger.Account
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
