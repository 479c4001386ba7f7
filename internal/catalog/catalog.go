// Package catalog maintains the shared price catalog: current price and
// append-only price history per instrument symbol. Exactly one catalog is
// constructed per process and passed by reference to its collaborators;
// there is no hidden global instance.
//
// All monetary values use shopspring/decimal — never float64 for money.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/engine/internal/ledger"
	"github.com/papertrade/engine/internal/movement"
)

var (
	// ErrInstrumentNotFound is returned for lookups of unknown symbols.
	ErrInstrumentNotFound = errors.New("catalog: instrument not found")

	// ErrInvalidPrice is returned when a price update is not positive.
	ErrInvalidPrice = errors.New("catalog: price must be positive")

	// ErrDuplicateInstrument is returned when adding an already-listed symbol.
	ErrDuplicateInstrument = errors.New("catalog: instrument already listed")
)

// PricePoint is one entry in an instrument's append-only price history.
type PricePoint struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// Instrument is a tradable symbol with its current price and history.
// Instances handed out by the catalog are snapshots, never aliases into
// catalog-owned state.
type Instrument struct {
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	History      []PricePoint    `json:"price_history"`
}

// Quote pairs a symbol with its current price.
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// Catalog holds all listed instruments. Reads take a shared lock; price
// writes are serialized against each other. Instruments are never deleted
// during normal operation.
type Catalog struct {
	mu          sync.RWMutex
	instruments map[string]*Instrument
	policy      *movement.Policy
	now         func() time.Time
}

// New creates an empty catalog using the given movement policy for
// simulation ticks.
func New(policy *movement.Policy) *Catalog {
	return &Catalog{
		instruments: make(map[string]*Instrument),
		policy:      policy,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Add lists a new instrument at the given initial price and seeds its
// history with one point.
func (c *Catalog) Add(symbol, name string, initialPrice decimal.Decimal) (Instrument, error) {
	sym, err := ledger.NormalizeSymbol(symbol)
	if err != nil {
		return Instrument{}, err
	}
	if strings.TrimSpace(name) == "" {
		return Instrument{}, fmt.Errorf("%w: instrument name must not be empty", ledger.ErrInvalidArgument)
	}
	if initialPrice.LessThanOrEqual(decimal.Zero) {
		return Instrument{}, fmt.Errorf("%w: got %s", ErrInvalidPrice, initialPrice)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.instruments[sym]; ok {
		return Instrument{}, fmt.Errorf("%w: %s", ErrDuplicateInstrument, sym)
	}
	inst := &Instrument{
		Symbol:       sym,
		Name:         strings.TrimSpace(name),
		CurrentPrice: initialPrice,
		History:      []PricePoint{{Price: initialPrice, Timestamp: c.now()}},
	}
	c.instruments[sym] = inst
	return snapshotInstrument(inst), nil
}

// Price returns the current price for a symbol. Lookup is case-insensitive.
func (c *Catalog) Price(symbol string) (decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	inst, ok := c.instruments[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrInstrumentNotFound, symbol)
	}
	return inst.CurrentPrice, nil
}

// Instrument returns a snapshot of one instrument including its history.
func (c *Catalog) Instrument(symbol string) (Instrument, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	inst, ok := c.instruments[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Instrument{}, fmt.Errorf("%w: %s", ErrInstrumentNotFound, symbol)
	}
	return snapshotInstrument(inst), nil
}

// UpdatePrice replaces the current price and appends a history point.
func (c *Catalog) UpdatePrice(symbol string, newPrice decimal.Decimal) error {
	if newPrice.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: got %s", ErrInvalidPrice, newPrice)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	inst, ok := c.instruments[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInstrumentNotFound, symbol)
	}
	inst.CurrentPrice = newPrice
	inst.History = append(inst.History, PricePoint{Price: newPrice, Timestamp: c.now()})
	return nil
}

// SimulateMovement applies one policy move to every instrument, appending
// one history point each, and returns the new quotes sorted by symbol.
func (c *Catalog) SimulateMovement() []Quote {
	c.mu.Lock()
	defer c.mu.Unlock()

	quotes := make([]Quote, 0, len(c.instruments))
	at := c.now()
	for _, inst := range c.instruments {
		next := c.policy.Next(inst.CurrentPrice)
		inst.CurrentPrice = next
		inst.History = append(inst.History, PricePoint{Price: next, Timestamp: at})
		quotes = append(quotes, Quote{Symbol: inst.Symbol, Price: next})
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Symbol < quotes[j].Symbol })
	return quotes
}

// Snapshot returns copies of all instruments sorted by symbol.
func (c *Catalog) Snapshot() []Instrument {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Instrument, 0, len(c.instruments))
	for _, inst := range c.instruments {
		out = append(out, snapshotInstrument(inst))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Len returns the number of listed instruments.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.instruments)
}

// Restore replaces the catalog contents with instruments loaded from a
// store. Invalid entries are rejected as corrupt data.
func (c *Catalog) Restore(instruments []Instrument) error {
	restored := make(map[string]*Instrument, len(instruments))
	for _, in := range instruments {
		sym, err := ledger.NormalizeSymbol(in.Symbol)
		if err != nil {
			return fmt.Errorf("%w: malformed instrument symbol %q", ledger.ErrCorruptData, in.Symbol)
		}
		if in.CurrentPrice.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%w: instrument %s has non-positive price %s", ledger.ErrCorruptData, sym, in.CurrentPrice)
		}
		inst := snapshotInstrument(&in)
		inst.Symbol = sym
		restored[sym] = &inst
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.instruments = restored
	return nil
}

func snapshotInstrument(inst *Instrument) Instrument {
	history := make([]PricePoint, len(inst.History))
	copy(history, inst.History)
	return Instrument{
		Symbol:       inst.Symbol,
		Name:         inst.Name,
		CurrentPrice: inst.CurrentPrice,
		History:      history,
	}
}
