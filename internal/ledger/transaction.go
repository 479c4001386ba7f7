// Package ledger defines the core trading-ledger types: immutable
// transaction records, per-account holdings, and accounts with a cash
// balance and append-only history.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind is the transaction discriminator. It is persisted verbatim, and an
// unrecognized value on decode is rejected as corrupt data rather than
// mapped to a default.
type Kind string

const (
	KindBuy  Kind = "BUY"
	KindSell Kind = "SELL"
)

// ParseKind validates a kind tag read from persisted data.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindBuy:
		return KindBuy, nil
	case KindSell:
		return KindSell, nil
	default:
		return "", fmt.Errorf("%w: unknown transaction kind %q", ErrCorruptData, s)
	}
}

// UnmarshalJSON rejects unknown discriminator values.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Transaction is an immutable record of one executed trade. Once created,
// these are never modified or deleted.
type Transaction struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	Quantity     int64           `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	Kind         Kind            `json:"kind"`
	Timestamp    time.Time       `json:"timestamp"`
}

// NewTransaction creates a trade record with a fresh ID and timestamp.
func NewTransaction(kind Kind, symbol string, quantity int64, pricePerUnit decimal.Decimal) (Transaction, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return Transaction{}, err
	}
	if quantity <= 0 {
		return Transaction{}, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidArgument, quantity)
	}
	if pricePerUnit.LessThanOrEqual(decimal.Zero) {
		return Transaction{}, fmt.Errorf("%w: price per unit must be positive, got %s", ErrInvalidArgument, pricePerUnit)
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return Transaction{}, fmt.Errorf("%w: unknown transaction kind %q", ErrInvalidArgument, kind)
	}
	return Transaction{
		ID:           uuid.New().String(),
		Symbol:       sym,
		Quantity:     quantity,
		PricePerUnit: pricePerUnit,
		Kind:         kind,
		Timestamp:    time.Now().UTC(),
	}, nil
}

// TotalValue returns pricePerUnit * quantity.
func (t Transaction) TotalValue() decimal.Decimal {
	return t.PricePerUnit.Mul(decimal.NewFromInt(t.Quantity))
}

// CashEffect returns the signed impact on the account's cash balance:
// negative for a buy, positive for a sell.
func (t Transaction) CashEffect() decimal.Decimal {
	switch t.Kind {
	case KindSell:
		return t.TotalValue()
	default: // KindBuy; unknown kinds never survive construction or decode
		return t.TotalValue().Neg()
	}
}

// Validate checks a transaction decoded from persisted data.
func (t Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: transaction missing id", ErrCorruptData)
	}
	if _, err := ParseKind(string(t.Kind)); err != nil {
		return err
	}
	if t.Quantity <= 0 {
		return fmt.Errorf("%w: transaction %s has non-positive quantity %d", ErrCorruptData, t.ID, t.Quantity)
	}
	if t.PricePerUnit.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: transaction %s has non-positive price %s", ErrCorruptData, t.ID, t.PricePerUnit)
	}
	return nil
}
