// Package money provides exact fixed-point monetary amounts.
//
// Amounts are stored as int64 minor units (cents) with two decimal places.
// Floating point is never used for storage or arithmetic; request payloads
// are parsed through decimal.Decimal at the boundary and rejected if they
// carry sub-cent precision.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Precision is the number of decimal places carried by an Amount.
const Precision = 2

var (
	// ErrPrecision is returned when a value has more decimal places than an
	// Amount can represent exactly.
	ErrPrecision = errors.New("money: more than 2 decimal places")

	// ErrRange is returned when a value does not fit in an int64 cent count.
	ErrRange = errors.New("money: amount out of range")
)

// Amount is a monetary value in minor units (cents).
type Amount int64

// FromCents builds an Amount from a raw cent count.
func FromCents(cents int64) Amount {
	return Amount(cents)
}

// FromDecimal converts a decimal value into an Amount.
// Values with sub-cent precision are rejected rather than rounded.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	if d.Exponent() < -Precision {
		// Trailing zeros are fine ("10.500"), real sub-cent digits are not.
		if !d.Equal(d.Truncate(Precision)) {
			return 0, fmt.Errorf("%w: %s", ErrPrecision, d.String())
		}
	}
	cents := d.Shift(Precision)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("%w: %s", ErrPrecision, d.String())
	}
	if !cents.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %s", ErrRange, d.String())
	}
	return Amount(cents.IntPart()), nil
}

// Parse converts a decimal string such as "500.00" into an Amount.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return FromDecimal(d)
}

// Cents returns the raw minor-unit count.
func (a Amount) Cents() int64 {
	return int64(a)
}

// Decimal returns the amount as an exact decimal value.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Precision)
}

// IsPositive reports whether the amount is strictly greater than zero.
func (a Amount) IsPositive() bool {
	return a > 0
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return a + b
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount {
	return a - b
}

// String renders the amount with two decimal places, e.g. "1234.50".
func (a Amount) String() string {
	return a.Decimal().StringFixed(Precision)
}

// MarshalJSON encodes the amount as a quoted decimal string. Encoding as a
// JSON number would push the value through float64 on many consumers.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON number or a quoted decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("money: %w", err)
	}
	v, err := FromDecimal(d)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
