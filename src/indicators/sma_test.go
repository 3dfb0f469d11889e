package indicators

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decimals(values ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func TestSMA(t *testing.T) {
	t.Run("uses the most recent values", func(t *testing.T) {
		got, err := SMA(decimals(1, 2, 3, 4, 5), 3)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(4).Equal(got), got.String())
	})

	t.Run("invalid period", func(t *testing.T) {
		_, err := SMA(decimals(1, 2), 0)
		assert.ErrorIs(t, err, ErrInvalidPeriod)
	})

	t.Run("insufficient data", func(t *testing.T) {
		_, err := SMA(decimals(1, 2), 3)
		assert.ErrorIs(t, err, ErrInsufficientData)
	})
}

func TestSMASeries(t *testing.T) {
	series, err := SMASeries(decimals(2, 4, 6, 8), 2)
	require.NoError(t, err)
	require.Len(t, series, 4)

	assert.True(t, series[0].IsZero())
	assert.True(t, decimal.NewFromInt(3).Equal(series[1]))
	assert.True(t, decimal.NewFromInt(5).Equal(series[2]))
	assert.True(t, decimal.NewFromInt(7).Equal(series[3]))

	last, err := SMA(decimals(2, 4, 6, 8), 2)
	require.NoError(t, err)
	assert.True(t, last.Equal(series[3]))
}

func TestCrossover(t *testing.T) {
	tests := []struct {
		name                         string
		prevFast, prevSlow, fast, sl float64
		expected                     Cross
	}{
		{"golden cross", 9, 10, 11, 10, CrossUp},
		{"touch then above", 10, 10, 10.5, 10, CrossUp},
		{"death cross", 11, 10, 9, 10, CrossDown},
		{"stays above", 11, 10, 12, 10, CrossNone},
		{"stays below", 8, 10, 9, 10, CrossNone},
		{"equal both times", 10, 10, 10, 10, CrossNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Crossover(decimal.NewFromFloat(tt.prevFast), decimal.NewFromFloat(tt.prevSlow),
				decimal.NewFromFloat(tt.fast), decimal.NewFromFloat(tt.sl))
			assert.Equal(t, tt.expected, got, got.String())
		})
	}
}

func TestCrossoverAt(t *testing.T) {
	// fast=2, slow=3: 前一根 fast=(10+10)/2=10 slow=10, 当前 fast=(10+13)/2=11.5 slow=11
	cross, err := CrossoverAt(decimals(10, 10, 10, 13), 2, 3)
	require.NoError(t, err)
	assert.Equal(t, CrossUp, cross)

	cross, err = CrossoverAt(decimals(10, 10, 10, 7), 2, 3)
	require.NoError(t, err)
	assert.Equal(t, CrossDown, cross)

	_, err = CrossoverAt(decimals(10, 10, 10), 2, 3)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestProximity(t *testing.T) {
	got, err := Proximity(decimal.NewFromInt(101), decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromFloat(0.01).Equal(got))

	got, err = Proximity(decimal.NewFromInt(99), decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromFloat(0.01).Equal(got))

	_, err = Proximity(decimal.NewFromInt(1), decimal.Zero)
	assert.ErrorIs(t, err, ErrZeroReference)
}
