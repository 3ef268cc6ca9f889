// Package money provides the decimal amount type used for every charge,
// payment, and balance on a folio.
//
// Amounts are kept at two decimal places. Comparisons that decide business
// rules go through Equal and ExceedsEpsilon so rounding drift of up to one
// cent never flips a decision.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Places is the number of decimal places every amount is rounded to.
const Places = 2

// Epsilon is the tolerance used when comparing amounts.
var Epsilon = Money{amount: decimal.New(1, -Places)}

var hundred = decimal.NewFromInt(100)

// Money is an immutable amount in the folio's single currency.
// The zero value is 0.00.
type Money struct {
	amount decimal.Decimal
}

// Zero returns 0.00.
func Zero() Money {
	return Money{amount: decimal.Zero}
}

// New rounds d to two places.
func New(d decimal.Decimal) Money {
	return Money{amount: d.Round(Places)}
}

// FromString parses a decimal string such as "120.50".
func FromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string %q: %w", s, err)
	}
	return New(d), nil
}

// MustFromString is FromString for literals; it panics on malformed input.
func MustFromString(s string) Money {
	m, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

// FromFloat converts a float amount, rounding to two places.
func FromFloat(f float64) Money {
	return New(decimal.NewFromFloat(f))
}

// FromCents builds an amount from an integer number of cents.
func FromCents(cents int64) Money {
	return Money{amount: decimal.New(cents, -Places)}
}

// Decimal returns the underlying decimal value.
func (m Money) Decimal() decimal.Decimal {
	return m.amount
}

// Cents returns the amount as an integer number of cents.
func (m Money) Cents() int64 {
	return m.amount.Round(Places).Shift(Places).IntPart()
}

// Float returns the amount as a float64, for metrics only.
func (m Money) Float() float64 {
	f, _ := m.amount.Float64()
	return f
}

func (m Money) Add(other Money) Money {
	return New(m.amount.Add(other.amount))
}

func (m Money) Sub(other Money) Money {
	return New(m.amount.Sub(other.amount))
}

// MulPercent returns m × pct / 100 rounded to two places.
func (m Money) MulPercent(pct decimal.Decimal) Money {
	return New(m.amount.Mul(pct).Div(hundred))
}

// DivideInto returns m / n rounded to two places.
func (m Money) DivideInto(n int) (Money, error) {
	if n <= 0 {
		return Money{}, errors.New("cannot divide into a non-positive number of parts")
	}
	return New(m.amount.Div(decimal.NewFromInt(int64(n)))), nil
}

func (m Money) Neg() Money {
	return Money{amount: m.amount.Neg()}
}

func (m Money) Abs() Money {
	return Money{amount: m.amount.Abs()}
}

func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// Cmp compares exactly: -1 if m < other, 0 if equal, +1 if m > other.
func (m Money) Cmp(other Money) int {
	return m.amount.Cmp(other.amount)
}

// Equal reports whether the two amounts differ by at most Epsilon.
func (m Money) Equal(other Money) bool {
	return m.Sub(other).Abs().Cmp(Epsilon) <= 0
}

// ExceedsEpsilon reports whether m is strictly greater than Epsilon.
func (m Money) ExceedsEpsilon() bool {
	return m.Cmp(Epsilon) > 0
}

// FloorZero returns m, or zero when m is negative.
func (m Money) FloorZero() Money {
	if m.IsNegative() {
		return Zero()
	}
	return m
}

// Min returns the smaller of m and other.
func (m Money) Min(other Money) Money {
	if m.Cmp(other) <= 0 {
		return m
	}
	return other
}

// String formats the amount with exactly two decimals.
func (m Money) String() string {
	return m.amount.StringFixed(Places)
}

// Sum adds all amounts.
func Sum(amounts ...Money) Money {
	total := Zero()
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// MarshalJSON encodes the amount as a quoted decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts either a quoted decimal string or a bare number.
func (m *Money) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var d decimal.Decimal
		if err := d.UnmarshalJSON(data); err != nil {
			return fmt.Errorf("invalid amount %s: %w", string(data), err)
		}
		*m = New(d)
		return nil
	}
	parsed, err := FromString(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Scan implements sql.Scanner.
func (m *Money) Scan(value interface{}) error {
	var d decimal.Decimal
	if err := d.Scan(value); err != nil {
		return fmt.Errorf("failed to scan amount: %w", err)
	}
	*m = New(d)
	return nil
}

// Value implements driver.Valuer.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}
