// Package trigger implements ratcheting price trigger sessions over the
// streaming order book.
package trigger

import (
	"github.com/shopspring/decimal"
)

// BandParams configures one trigger session. A non-zero InitialFloor selects
// floor mode, a non-zero InitialCeiling selects ceiling mode (floor wins when
// both are set), and with neither the band runs unbounded on whichever of the
// two percentages is non-zero.
type BandParams struct {
	InitialFloor   decimal.Decimal
	Depreciation   decimal.Decimal
	InitialCeiling decimal.Decimal
	Appreciation   decimal.Decimal
}

// Band is the ratchet over a stream of best-price observations. The lower
// bound only ever rises and the upper bound only ever falls; a fire means the
// price retraced through its bound after trending favorably.
//
// The band is session state: it must be reset whenever the feed delivers a
// fresh snapshot, because the price history it ratcheted over is gone.
type Band struct {
	params   BandParams
	lower    decimal.Decimal
	upper    decimal.Decimal
	lowerSet bool
	upperSet bool
}

// NewBand creates a band with unset bounds.
func NewBand(params BandParams) *Band {
	return &Band{params: params}
}

// Reset clears the ratcheted bounds, starting a fresh session.
func (b *Band) Reset() {
	b.lower = decimal.Zero
	b.upper = decimal.Zero
	b.lowerSet = false
	b.upperSet = false
}

// Bounds returns the current ratcheted bounds and whether each is set.
func (b *Band) Bounds() (lower, upper decimal.Decimal, lowerSet, upperSet bool) {
	return b.lower, b.upper, b.lowerSet, b.upperSet
}

// Observe feeds one best-price observation through the ratchet and reports
// whether the trigger fired.
func (b *Band) Observe(price decimal.Decimal) bool {
	one := decimal.NewFromInt(1)
	discounted := price.Mul(one.Sub(b.params.Depreciation))
	inflated := price.Mul(one.Add(b.params.Appreciation))

	switch {
	case b.params.InitialFloor.IsPositive():
		// Floor mode: the discounted price must first clear the initial
		// floor; from there the lower bound trails it upward and a retrace
		// through the bound fires.
		if !b.lowerSet {
			b.lower = discounted
			b.lowerSet = true
		}
		if discounted.GreaterThan(b.params.InitialFloor) {
			if discounted.LessThan(b.lower) {
				return true
			}
			b.lower = discounted
		}

	case b.params.InitialCeiling.IsPositive():
		// Ceiling mode: mirror image of floor mode for falling prices.
		if !b.upperSet {
			b.upper = inflated
			b.upperSet = true
		}
		if inflated.LessThan(b.params.InitialCeiling) {
			if inflated.GreaterThan(b.upper) {
				return true
			}
			b.upper = inflated
		}

	default:
		if b.params.Depreciation.IsPositive() {
			if !b.lowerSet || discounted.GreaterThan(b.lower) {
				b.lower = discounted
				b.lowerSet = true
			} else if price.LessThan(b.lower) {
				return true
			}
		}
		if b.params.Appreciation.IsPositive() {
			if !b.upperSet || inflated.LessThan(b.upper) {
				b.upper = inflated
				b.upperSet = true
			} else if price.GreaterThan(b.upper) {
				return true
			}
		}
		// With no percentages configured there is nothing to wait for.
		if b.params.Depreciation.IsZero() && b.params.Appreciation.IsZero() {
			return true
		}
	}

	return false
}
