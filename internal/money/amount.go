// Package money implements fixed-point monetary amounts stored as integer minor units.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by every Amount.
const Scale = 2

const unitsPerMajor = 100

var (
	// ErrPrecision indicates the input carries more fractional digits than Scale.
	ErrPrecision = errors.New("money: more than two fractional digits")
	// ErrOverflow indicates the value exceeds Max in magnitude.
	ErrOverflow = errors.New("money: amount out of range")
)

// Max is the largest magnitude a NUMERIC(18,2) column holds, in minor units
// (9,999,999,999,999,999.99).
const Max Amount = 999_999_999_999_999_999

// Amount counts minor currency units (cents). The zero value is 0.00.
type Amount int64

// Zero is the empty amount.
const Zero Amount = 0

// FromMinor wraps a minor-unit count.
func FromMinor(units int64) Amount {
	return Amount(units)
}

// FromMajor converts whole currency units.
func FromMajor(units int64) Amount {
	return Amount(units * unitsPerMajor)
}

// Parse reads a decimal string such as "125.50".
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("money: empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return FromDecimal(d)
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromDecimal converts d exactly, rejecting values that need rounding.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	minor := d.Shift(Scale)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s", ErrPrecision, d.String())
	}
	return fromMinorDecimal(minor, d)
}

// FromDecimalRound converts d using banker's rounding at the cent.
func FromDecimalRound(d decimal.Decimal) (Amount, error) {
	return fromMinorDecimal(d.RoundBank(Scale).Shift(Scale), d)
}

var maxMinor = decimal.New(int64(Max), 0)

func fromMinorDecimal(minor, original decimal.Decimal) (Amount, error) {
	if minor.Abs().GreaterThan(maxMinor) {
		return 0, fmt.Errorf("%w: %s", ErrOverflow, original.String())
	}
	return Amount(minor.IntPart()), nil
}

// Decimal returns the amount as a decimal with Scale fractional digits.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Scale)
}

// Minor returns the raw minor-unit count.
func (a Amount) Minor() int64 {
	return int64(a)
}

// String renders the amount with exactly two fractional digits.
func (a Amount) String() string {
	return a.Decimal().StringFixed(Scale)
}

// IsZero reports whether a is 0.00.
func (a Amount) IsZero() bool { return a == 0 }

// IsPositive reports whether a > 0.
func (a Amount) IsPositive() bool { return a > 0 }

// Neg returns -a.
func (a Amount) Neg() Amount { return -a }

// Abs returns |a|.
func (a Amount) Abs() Amount {
	if a < 0 {
		return -a
	}
	return a
}

// InRange reports whether |a| <= Max.
func (a Amount) InRange() bool { return a >= -Max && a <= Max }

// Add returns a+b, or ErrOverflow when an operand or the result leaves
// [-Max, Max]. Operands in range cannot wrap int64.
func (a Amount) Add(b Amount) (Amount, error) {
	if !a.InRange() || !b.InRange() {
		return 0, ErrOverflow
	}
	sum := a + b
	if !sum.InRange() {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sum adds amounts with the same range check as Add.
func Sum(amounts ...Amount) (Amount, error) {
	var total Amount
	for _, a := range amounts {
		var err error
		if total, err = total.Add(a); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// MarshalJSON encodes the amount as a quoted decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts "12.50" or 12.5.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*a = 0
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
