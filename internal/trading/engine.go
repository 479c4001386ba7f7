// Package trading orchestrates buy and sell operations against the shared
// price catalog and the registered accounts, and exposes them over HTTP.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trading

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/engine/internal/catalog"
	"github.com/papertrade/engine/internal/ledger"
	"github.com/papertrade/engine/internal/metrics"
)

var (
	// ErrAccountNotFound is returned for operations on unknown account IDs.
	ErrAccountNotFound = errors.New("trading: account not found")

	// ErrDuplicateName is returned when registering an already-taken name.
	ErrDuplicateName = errors.New("trading: account name already registered")
)

// Engine executes validated buy/sell state transitions. A single mutex
// serializes all account mutation (single-instance deployment); the
// validate-then-mutate sequence of a trade is never interleaved. The
// catalog handles its own locking, so price reads stay concurrent.
type Engine struct {
	catalog *catalog.Catalog

	mu       sync.Mutex
	accounts map[string]*ledger.Account

	hub *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewEngine creates a trading engine over the given catalog.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewEngine(cat *catalog.Catalog, hub *WSHub) *Engine {
	return &Engine{
		catalog:  cat,
		accounts: make(map[string]*ledger.Account),
		hub:      hub,
	}
}

// Catalog returns the shared price catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Register creates an account with the given starting balance. Names are
// unique case-insensitively.
func (e *Engine) Register(name string, initialBalance decimal.Decimal) (*ledger.Account, error) {
	a, err := ledger.NewAccount(name, initialBalance)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, existing := range e.accounts {
		if strings.EqualFold(existing.Name(), a.Name()) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, a.Name())
		}
	}
	e.accounts[a.ID()] = a
	metrics.Accounts.Set(float64(len(e.accounts)))

	slog.Info("account registered", "id", a.ID(), "name", a.Name(), "balance", a.Balance().String())
	return a.Clone(), nil
}

// Restore seeds the registry with accounts loaded from a store.
func (e *Engine) Restore(accounts []*ledger.Account) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, a := range accounts {
		e.accounts[a.ID()] = a
	}
	metrics.Accounts.Set(float64(len(e.accounts)))
}

// Account returns a snapshot of a registered account. The clone is taken
// under the engine mutex, so callers read a consistent state and never
// hold a mutable alias into engine-owned accounts.
func (e *Engine) Account(id string) (*ledger.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return a.Clone(), nil
}

// Accounts returns snapshots of all registered accounts sorted by name.
func (e *Engine) Accounts() []*ledger.Account {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*ledger.Account, 0, len(e.accounts))
	for _, a := range e.accounts {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Buy purchases quantity units of symbol at the current catalog price.
// The price is read once and used for both the balance debit and the
// recorded transaction, so the record and the balance delta always agree.
// On any failure the account is left exactly as it was.
func (e *Engine) Buy(accountID, symbol string, quantity int64) (*ledger.Transaction, error) {
	start := time.Now()

	if quantity <= 0 {
		metrics.TradeRejections.WithLabelValues("invalid_argument").Inc()
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", ledger.ErrInvalidArgument, quantity)
	}

	price, err := e.catalog.Price(symbol)
	if err != nil {
		metrics.TradeRejections.WithLabelValues("instrument_not_found").Inc()
		return nil, err
	}
	cost := price.Mul(decimal.NewFromInt(quantity))

	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}

	if err := a.Withdraw(cost); err != nil {
		metrics.TradeRejections.WithLabelValues("insufficient_balance").Inc()
		return nil, err
	}
	// Cannot fail: quantity and symbol were validated above.
	if err := a.AddHolding(symbol, quantity); err != nil {
		a.Deposit(cost)
		return nil, err
	}

	t, err := ledger.NewTransaction(ledger.KindBuy, symbol, quantity, price)
	if err != nil {
		a.RemoveHolding(symbol, quantity)
		a.Deposit(cost)
		return nil, err
	}
	a.Record(t)

	metrics.TradesTotal.WithLabelValues(string(ledger.KindBuy)).Inc()
	metrics.TradeLatency.WithLabelValues(string(ledger.KindBuy)).Observe(time.Since(start).Seconds())

	slog.Info("trade executed",
		"trade_id", t.ID,
		"account", accountID,
		"kind", t.Kind,
		"symbol", t.Symbol,
		"quantity", quantity,
		"price", price.String(),
		"cost", cost.String(),
	)

	e.broadcastTrade(t)
	return &t, nil
}

// Sell disposes quantity units of symbol at the current catalog price.
// Semantics mirror Buy: single price read, no mutation on failure.
func (e *Engine) Sell(accountID, symbol string, quantity int64) (*ledger.Transaction, error) {
	start := time.Now()

	if quantity <= 0 {
		metrics.TradeRejections.WithLabelValues("invalid_argument").Inc()
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", ledger.ErrInvalidArgument, quantity)
	}

	price, err := e.catalog.Price(symbol)
	if err != nil {
		metrics.TradeRejections.WithLabelValues("instrument_not_found").Inc()
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}

	if err := a.RemoveHolding(symbol, quantity); err != nil {
		metrics.TradeRejections.WithLabelValues("insufficient_holdings").Inc()
		return nil, err
	}
	revenue := price.Mul(decimal.NewFromInt(quantity))
	if err := a.Deposit(revenue); err != nil {
		a.AddHolding(symbol, quantity)
		return nil, err
	}

	t, err := ledger.NewTransaction(ledger.KindSell, symbol, quantity, price)
	if err != nil {
		a.Withdraw(revenue)
		a.AddHolding(symbol, quantity)
		return nil, err
	}
	a.Record(t)

	metrics.TradesTotal.WithLabelValues(string(ledger.KindSell)).Inc()
	metrics.TradeLatency.WithLabelValues(string(ledger.KindSell)).Observe(time.Since(start).Seconds())

	slog.Info("trade executed",
		"trade_id", t.ID,
		"account", accountID,
		"kind", t.Kind,
		"symbol", t.Symbol,
		"quantity", quantity,
		"price", price.String(),
		"revenue", revenue.String(),
	)

	e.broadcastTrade(t)
	return &t, nil
}

// PurchaseCost previews the cost of buying quantity units at the current
// price. Pure read; mutates nothing.
func (e *Engine) PurchaseCost(symbol string, quantity int64) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: quantity must be positive, got %d", ledger.ErrInvalidArgument, quantity)
	}
	price, err := e.catalog.Price(symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return price.Mul(decimal.NewFromInt(quantity)), nil
}

// SaleRevenue previews the revenue of selling quantity units at the
// current price. Pure read; mutates nothing.
func (e *Engine) SaleRevenue(symbol string, quantity int64) (decimal.Decimal, error) {
	return e.PurchaseCost(symbol, quantity)
}

// Deposit adds cash to an account, independent of trading. Routed through
// the engine so all account mutation is serialized.
func (e *Engine) Deposit(accountID string, amount decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	return a.Deposit(amount)
}

// Withdraw removes cash from an account, independent of trading.
func (e *Engine) Withdraw(accountID string, amount decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	return a.Withdraw(amount)
}

// SimulateMovement applies one random movement tick to the catalog and
// broadcasts the new quotes.
func (e *Engine) SimulateMovement() []catalog.Quote {
	quotes := e.catalog.SimulateMovement()
	for _, q := range quotes {
		metrics.PriceUpdates.WithLabelValues("simulation").Inc()
		e.broadcastQuote(q)
	}
	slog.Info("price movement simulated", "instruments", len(quotes))
	return quotes
}

func (e *Engine) broadcastTrade(t ledger.Transaction) {
	if e.hub == nil {
		return
	}
	e.hub.Broadcast(WSMessage{
		Type:     "trade_executed",
		Symbol:   t.Symbol,
		Kind:     string(t.Kind),
		Quantity: t.Quantity,
		Price:    t.PricePerUnit.String(),
	})
}

func (e *Engine) broadcastQuote(q catalog.Quote) {
	if e.hub == nil {
		return
	}
	e.hub.Broadcast(WSMessage{
		Type:   "price_update",
		Symbol: q.Symbol,
		Price:  q.Price.String(),
	})
}
