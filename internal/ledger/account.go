package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account holds one user's cash balance, holdings, and append-only
// transaction history. The cash balance is never negative: every mutation
// validates before applying, never after. Accounts are not safe for
// concurrent use on their own; the trading engine serializes all mutation.
type Account struct {
	id       string
	name     string
	cash     decimal.Decimal
	holdings *Holdings
	history  []Transaction
}

// NewAccount creates an account with a fresh ID and the given starting
// balance (≥ 0).
func NewAccount(name string, initialBalance decimal.Decimal) (*Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: account name must not be empty", ErrInvalidArgument)
	}
	if initialBalance.IsNegative() {
		return nil, fmt.Errorf("%w: initial balance must not be negative, got %s", ErrInvalidArgument, initialBalance)
	}
	return &Account{
		id:       uuid.New().String(),
		name:     name,
		cash:     initialBalance,
		holdings: NewHoldings(),
	}, nil
}

// ID returns the account's unique identifier.
func (a *Account) ID() string { return a.id }

// Name returns the account's display name.
func (a *Account) Name() string { return a.name }

// Balance returns the current cash balance.
func (a *Account) Balance() decimal.Decimal { return a.cash }

// Holdings returns an independent copy of the account's holdings ledger.
// Callers never receive a mutable alias into account-owned state; mutation
// goes through AddHolding and RemoveHolding.
func (a *Account) Holdings() *Holdings { return a.holdings.clone() }

// AddHolding increments the owned quantity for a symbol.
func (a *Account) AddHolding(symbol string, quantity int64) error {
	return a.holdings.Add(symbol, quantity)
}

// RemoveHolding decrements the owned quantity for a symbol. Fails without
// mutation if the quantity exceeds what is held.
func (a *Account) RemoveHolding(symbol string, quantity int64) error {
	return a.holdings.Remove(symbol, quantity)
}

// History returns a copy of the ordered transaction history.
func (a *Account) History() []Transaction {
	out := make([]Transaction, len(a.history))
	copy(out, a.history)
	return out
}

// Deposit adds cash to the balance, independent of trading.
func (a *Account) Deposit(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: deposit amount must be positive, got %s", ErrInvalidArgument, amount)
	}
	a.cash = a.cash.Add(amount)
	return nil
}

// Withdraw removes cash from the balance. Fails without mutation if the
// amount exceeds the balance.
func (a *Account) Withdraw(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: withdrawal amount must be positive, got %s", ErrInvalidArgument, amount)
	}
	if a.cash.LessThan(amount) {
		return fmt.Errorf("%w: available %s, requested %s", ErrInsufficientBalance, a.cash, amount)
	}
	a.cash = a.cash.Sub(amount)
	return nil
}

// Record appends a transaction to the history. The history is append-only;
// no edit or delete operation exists.
func (a *Account) Record(t Transaction) {
	a.history = append(a.history, t)
}

// TotalValue returns cash plus holdings valued at the given price lookup.
func (a *Account) TotalValue(price func(symbol string) (decimal.Decimal, error)) decimal.Decimal {
	return a.cash.Add(a.holdings.ValueAt(price))
}

// Clone returns an independent deep copy of the account.
func (a *Account) Clone() *Account {
	return &Account{
		id:       a.id,
		name:     a.name,
		cash:     a.cash,
		holdings: a.holdings.clone(),
		history:  a.History(),
	}
}

// accountJSON is the persisted shape of an account.
type accountJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	CashBalance decimal.Decimal `json:"cash_balance"`
	Holdings    *Holdings       `json:"holdings"`
	History     []Transaction   `json:"history"`
}

// MarshalJSON encodes the account for persistence.
func (a *Account) MarshalJSON() ([]byte, error) {
	return json.Marshal(accountJSON{
		ID:          a.id,
		Name:        a.name,
		CashBalance: a.cash,
		Holdings:    a.holdings,
		History:     a.history,
	})
}

// UnmarshalJSON decodes a persisted account, rejecting states that violate
// the ledger invariants as corrupt data.
func (a *Account) UnmarshalJSON(data []byte) error {
	var raw accountJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		if errors.Is(err, ErrCorruptData) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if raw.ID == "" {
		return fmt.Errorf("%w: account missing id", ErrCorruptData)
	}
	if raw.CashBalance.IsNegative() {
		return fmt.Errorf("%w: account %s has negative balance %s", ErrCorruptData, raw.ID, raw.CashBalance)
	}
	for _, t := range raw.History {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	if raw.Holdings == nil {
		raw.Holdings = NewHoldings()
	}
	a.id = raw.ID
	a.name = raw.Name
	a.cash = raw.CashBalance
	a.holdings = raw.Holdings
	a.history = raw.History
	return nil
}
