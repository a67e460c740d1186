// Package core holds the domain model: accounts, transactions,
// categories and fixed-point money.
//
// Monetary amounts are carried as integer minor units (cents) so that
// applying and reversing a balance delta are exact inverses. Decimal
// strings are converted at the boundary and nowhere else.
package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a fixed-point monetary amount in minor units.
type Money struct {
	Cents int64
}

var centsPerUnit = decimal.NewFromInt(100)

// ParseAmount converts a decimal string such as "45.50" to cents,
// rounding half-up on the third decimal place. Amounts must be
// strictly positive; transaction kind decides the sign later.
func ParseAmount(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	cents := d.Mul(centsPerUnit).Round(0)
	if !cents.IsPositive() {
		return Money{}, ErrInvalidAmount
	}
	v := cents.IntPart()
	if v <= 0 {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: v}, nil
}

// ParseSignedAmount converts a decimal string to cents, allowing zero
// and negative values. Account balances use this; transaction amounts
// go through ParseAmount.
func ParseSignedAmount(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: d.Mul(centsPerUnit).Round(0).IntPart()}, nil
}

// FromUnits builds a Money from whole units and a cent remainder,
// mostly useful in tests.
func FromUnits(units, cents int64) Money {
	return Money{Cents: units*100 + cents}
}

// Validate rejects non-positive magnitudes. Stored transaction amounts
// are magnitudes; signed values only exist as balance deltas.
func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Neg returns the negated amount.
func (m Money) Neg() Money {
	return Money{Cents: -m.Cents}
}

// Add returns the sum of two amounts.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// Decimal returns the amount as a decimal in major units, for display
// and serialization boundaries only.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(m.Cents).Div(centsPerUnit)
}

// String formats the amount as a plain decimal, e.g. "-45.50".
func (m Money) String() string {
	c := m.Cents
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}
