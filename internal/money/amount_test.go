package money

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Amount
	}{
		{"0", 0},
		{"100", 10000},
		{"100.5", 10050},
		{"0.01", 1},
		{"-3.25", -325},
		{" 42.10 ", 4210},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseRejectsExtraPrecision(t *testing.T) {
	_, err := Parse("1.005")
	require.ErrorIs(t, err, ErrPrecision)

	_, err = Parse("abc")
	require.Error(t, err)

	_, err = Parse("")
	require.Error(t, err)
}

func TestStringAlwaysTwoDigits(t *testing.T) {
	assert.Equal(t, "0.00", Zero.String())
	assert.Equal(t, "1.50", FromMinor(150).String())
	assert.Equal(t, "-0.07", FromMinor(-7).String())
	assert.Equal(t, "12.00", FromMajor(12).String())
}

func TestFromDecimalRound(t *testing.T) {
	got, err := FromDecimalRound(decimal.RequireFromString("12.34"))
	require.NoError(t, err)
	assert.Equal(t, Amount(1234), got)
	got, err = FromDecimalRound(decimal.RequireFromString("0.025"))
	require.NoError(t, err)
	assert.Equal(t, Amount(2), got)

	_, err = FromDecimalRound(decimal.RequireFromString("10000000000000000.004"))
	require.ErrorIs(t, err, ErrOverflow)
}

func TestColumnRange(t *testing.T) {
	top, err := Parse("9999999999999999.99")
	require.NoError(t, err)
	assert.Equal(t, Max, top)

	_, err = Parse("10000000000000000.00")
	require.ErrorIs(t, err, ErrOverflow)
	_, err = Parse("92233720368547758.07")
	require.ErrorIs(t, err, ErrOverflow)
	_, err = Parse("-10000000000000000")
	require.ErrorIs(t, err, ErrOverflow)

	require.Error(t, json.Unmarshal([]byte(`"10000000000000000"`), new(Amount)))
}

func TestAddChecksRange(t *testing.T) {
	sum, err := Max.Add(Max.Neg())
	require.NoError(t, err)
	assert.Equal(t, Zero, sum)

	_, err = Max.Add(1)
	require.ErrorIs(t, err, ErrOverflow)
	_, err = Max.Neg().Add(-1)
	require.ErrorIs(t, err, ErrOverflow)
	// Out-of-range operands are refused even when the wrapped sum would look small.
	_, err = Amount(math.MaxInt64).Add(Amount(math.MaxInt64))
	require.ErrorIs(t, err, ErrOverflow)

	_, err = Sum(Max, Max, Max.Neg())
	require.ErrorIs(t, err, ErrOverflow)
}

func TestJSON(t *testing.T) {
	type payload struct {
		Total Amount `json:"total"`
		Tax   Amount `json:"tax"`
	}
	var p payload
	require.NoError(t, json.Unmarshal([]byte(`{"total":"110.00","tax":10}`), &p))
	assert.Equal(t, FromMajor(110), p.Total)
	assert.Equal(t, FromMajor(10), p.Tax)

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":"110.00","tax":"10.00"}`, string(out))

	require.Error(t, json.Unmarshal([]byte(`{"total":"1.001"}`), &p))
}

func TestSumExact(t *testing.T) {
	// 0.1 + 0.2 drifts in floating point; minor units do not.
	sum, err := Sum(MustParse("0.10"), MustParse("0.20"))
	require.NoError(t, err)
	assert.Equal(t, MustParse("0.30"), sum)
}
