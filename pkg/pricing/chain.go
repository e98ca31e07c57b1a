// Package pricing computes nightly rates for inventory cells through a fixed
// chain of price adjustments.
package pricing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultPlaces is the number of decimal places a final price is rounded to.
const DefaultPlaces int32 = 2

var (
	// ErrInvalidChain reports a chain built without a base function.
	ErrInvalidChain = errors.New("invalid pricing chain")
	// ErrInvalidHoliday reports a holiday date that cannot be parsed.
	ErrInvalidHoliday = errors.New("invalid holiday date")
)

// Subject is what a chain prices: one room on one calendar day.
type Subject struct {
	Date time.Time
	// Today is the calendar day the price is computed on. A zero value means the
	// chain's own clock is read.
	Today     time.Time
	BasePrice decimal.Decimal
	// SurgeFactor multiplies the base price. Provisioned cells start at 1; a zero
	// factor is unset and leaves the price unchanged.
	SurgeFactor decimal.Decimal
}

// BaseFunc produces the starting price for a subject.
type BaseFunc func(subject Subject) decimal.Decimal

// Adjustment transforms the price produced by the preceding stage.
type Adjustment func(subject Subject, price decimal.Decimal) decimal.Decimal

// Chain is an immutable composition of a base function and ordered adjustments.
// It holds no mutable state and is safe for concurrent use.
type Chain struct {
	base        BaseFunc
	adjustments []Adjustment
	places      int32
}

// NewChain composes base with adjustments applied in the given order.
func NewChain(base BaseFunc, adjustments ...Adjustment) (Chain, error) {
	if base == nil {
		return Chain{}, ErrInvalidChain
	}
	stages := make([]Adjustment, 0, len(adjustments))
	for _, adjustment := range adjustments {
		if adjustment != nil {
			stages = append(stages, adjustment)
		}
	}
	return Chain{base: base, adjustments: stages, places: DefaultPlaces}, nil
}

// Price runs the subject through every stage and rounds the result once.
func (chain Chain) Price(subject Subject) decimal.Decimal {
	price := chain.base(subject)
	for _, adjustment := range chain.adjustments {
		price = adjustment(subject, price)
	}
	return price.Round(chain.places)
}

// Stages returns the number of adjustments after the base.
func (chain Chain) Stages() int {
	return len(chain.adjustments)
}

func dateOf(moment time.Time) time.Time {
	year, month, day := moment.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
