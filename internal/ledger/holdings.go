package ledger

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Holdings maps instrument symbols to owned quantities for one account.
// A symbol present in the map always has quantity > 0; reaching zero
// removes the entry. Holdings is owned exclusively by one Account and is
// not safe for concurrent use; the trading engine serializes mutation.
type Holdings struct {
	quantities map[string]int64
}

// NewHoldings creates an empty holdings ledger.
func NewHoldings() *Holdings {
	return &Holdings{quantities: make(map[string]int64)}
}

// Add increments the owned quantity for a symbol, creating the entry if
// absent.
func (h *Holdings) Add(symbol string, quantity int64) error {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidArgument, quantity)
	}
	h.quantities[sym] += quantity
	return nil
}

// Remove decrements the owned quantity for a symbol. Exact depletion
// removes the entry; keys are never retained at zero.
func (h *Holdings) Remove(symbol string, quantity int64) error {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidArgument, quantity)
	}
	owned := h.quantities[sym]
	if owned < quantity {
		return fmt.Errorf("%w: have %d, tried to remove %d of %s", ErrInsufficientHoldings, owned, quantity, sym)
	}
	if owned == quantity {
		delete(h.quantities, sym)
		return nil
	}
	h.quantities[sym] = owned - quantity
	return nil
}

// Quantity returns the owned quantity for a symbol, or 0 if absent.
func (h *Holdings) Quantity(symbol string) int64 {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return 0
	}
	return h.quantities[sym]
}

// ValueAt sums quantity * price over all holdings using the given price
// lookup. Symbols the lookup no longer recognizes are skipped, not fatal:
// a stale holding must not make the whole valuation fail.
func (h *Holdings) ValueAt(price func(symbol string) (decimal.Decimal, error)) decimal.Decimal {
	total := decimal.Zero
	for sym, qty := range h.quantities {
		p, err := price(sym)
		if err != nil {
			continue
		}
		total = total.Add(p.Mul(decimal.NewFromInt(qty)))
	}
	return total
}

// Symbols returns the held symbols in sorted order.
func (h *Holdings) Symbols() []string {
	syms := make([]string, 0, len(h.quantities))
	for sym := range h.quantities {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}

// Snapshot returns a copy of the symbol→quantity map. Callers never
// receive a mutable alias into ledger-owned state.
func (h *Holdings) Snapshot() map[string]int64 {
	out := make(map[string]int64, len(h.quantities))
	for sym, qty := range h.quantities {
		out[sym] = qty
	}
	return out
}

// IsEmpty reports whether no positions are held.
func (h *Holdings) IsEmpty() bool {
	return len(h.quantities) == 0
}

// Len returns the number of distinct held symbols.
func (h *Holdings) Len() int {
	return len(h.quantities)
}

// clone returns an independent copy.
func (h *Holdings) clone() *Holdings {
	return &Holdings{quantities: h.Snapshot()}
}

// MarshalJSON encodes holdings as a plain symbol→quantity object.
func (h *Holdings) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.quantities)
}

// UnmarshalJSON decodes holdings, rejecting non-positive quantities as
// corrupt data.
func (h *Holdings) UnmarshalJSON(data []byte) error {
	var raw map[string]int64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	quantities := make(map[string]int64, len(raw))
	for sym, qty := range raw {
		canonical, err := NormalizeSymbol(sym)
		if err != nil {
			return fmt.Errorf("%w: malformed holding symbol %q", ErrCorruptData, sym)
		}
		if qty <= 0 {
			return fmt.Errorf("%w: holding %s has non-positive quantity %d", ErrCorruptData, canonical, qty)
		}
		quantities[canonical] = qty
	}
	h.quantities = quantities
	return nil
}
