// Package movement implements the random price-movement policy applied by
// the catalog's simulation tick.
//
// The exact distribution is a replaceable policy, not a guaranteed
// contract: the default walks every price by a bounded uniform percentage
// and floors the result at a minimum positive price. The random source is
// injected so tests can seed it deterministically.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Only the dimensionless percentage draw uses float64.
package movement

import (
	"errors"
	"math/rand"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidMaxMove is returned when the bound is outside (0, 1].
	ErrInvalidMaxMove = errors.New("movement: max move must be in (0, 1]")

	// ErrInvalidFloor is returned when the price floor is not positive.
	ErrInvalidFloor = errors.New("movement: price floor must be positive")
)

// PriceScale is the number of decimal places prices are rounded to after
// a move.
const PriceScale int32 = 2

// Policy draws bounded random percentage moves. It is stateless apart
// from the random source; current prices are passed as arguments.
type Policy struct {
	maxMove decimal.Decimal
	floor   decimal.Decimal
	rng     *rand.Rand
}

// NewPolicy creates a movement policy. maxMove is the largest fractional
// change per tick (0.05 → ±5%), floor the lowest price a move may produce.
func NewPolicy(maxMove, floor decimal.Decimal, src rand.Source) (*Policy, error) {
	if maxMove.LessThanOrEqual(decimal.Zero) || maxMove.GreaterThan(decimal.NewFromInt(1)) {
		return nil, ErrInvalidMaxMove
	}
	if floor.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidFloor
	}
	return &Policy{
		maxMove: maxMove,
		floor:   floor,
		rng:     rand.New(src),
	}, nil
}

// MaxMove returns the fractional bound per tick.
func (p *Policy) MaxMove() decimal.Decimal { return p.maxMove }

// Floor returns the minimum price a move may produce.
func (p *Policy) Floor() decimal.Decimal { return p.floor }

// Next applies one random move to the current price: a uniform draw in
// [-maxMove, +maxMove] scales the price, then the result is floored and
// rounded to PriceScale.
func (p *Policy) Next(current decimal.Decimal) decimal.Decimal {
	// Uniform in [-maxMove, +maxMove]; the draw itself is dimensionless.
	pct := decimal.NewFromFloat(p.rng.Float64()*2 - 1).Mul(p.maxMove)
	next := current.Add(current.Mul(pct)).Round(PriceScale)
	if next.LessThan(p.floor) {
		return p.floor
	}
	return next
}
