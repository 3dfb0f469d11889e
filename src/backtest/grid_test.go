package backtest

import (
	"context"
	"errors"
	"math"
	"testing"

	"tradingbot/src/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridSpec_Points(t *testing.T) {
	spec := GridSpec{
		FastExponents: Exponents(3),
		SlowExponents: Exponents(3),
		StopPcts:      []float64{0, 2},
	}

	points := spec.Points()

	// (1,2) (1,4) (1,8) (2,4) (2,8) (4,8) × 2 个止损
	require.Len(t, points, 12)
	for _, p := range points {
		assert.Less(t, p.Fast, p.Slow)
		assert.True(t, p.Leverage.Equal(decimal.NewFromInt(1)))
	}
	assert.Equal(t, 1, points[0].Fast)
	assert.Equal(t, 2, points[0].Slow)
}

func waveCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = math.Round((100+10*math.Sin(float64(i)/8))*100) / 100
	}
	return closes
}

func TestRunGrid(t *testing.T) {
	bars := barsFromCloses(waveCloses(200)...)
	spec := GridSpec{
		FastExponents: []int{1, 2},
		SlowExponents: []int{2, 3},
		Leverages:     []decimal.Decimal{d("1"), d("2")},
	}
	base := testConfig()
	base.FeeRate = d("0.001")

	results, err := RunGrid(context.Background(), bars, spec, base, SMACrossFactory(strategy.GetDefaultParams()), 3)
	require.NoError(t, err)

	points := spec.Points()
	require.Len(t, results, len(points))
	for i, r := range results {
		assert.Equal(t, points[i], r.Point)
		assert.Empty(t, r.Err)
		require.NotNil(t, r.Result)
		assert.True(t, r.Result.Config.Leverage.Equal(points[i].Leverage))
		assert.NotEmpty(t, r.Result.Trades)
	}

	// 并行结果与单独运行一致
	params := strategy.GetDefaultParams()
	params.Fast, params.Slow = points[0].Fast, points[0].Slow
	provider, err := strategy.NewProvider(strategy.ProviderSMACross, params, nil)
	require.NoError(t, err)
	single := runEngine(t, base, provider, bars)
	assert.Equal(t, len(single.Trades), len(results[0].Result.Trades))
	assert.True(t, single.FinalEquity().Equal(results[0].Result.FinalEquity()))

	survivors := Survivors(results, 1)
	assert.Len(t, survivors, len(results))

	SortBySharpe(survivors)
	for i := 1; i < len(survivors); i++ {
		assert.GreaterOrEqual(t, survivors[i-1].Result.Statistics.SharpeRatio.Float64(), survivors[i].Result.Statistics.SharpeRatio.Float64())
	}

	SortByFinalEquity(survivors)
	for i := 1; i < len(survivors); i++ {
		assert.True(t, survivors[i-1].Result.FinalEquity().GreaterThanOrEqual(survivors[i].Result.FinalEquity()))
	}
}

func TestRunGrid_FailedPointsAreIsolated(t *testing.T) {
	bars := flatBars(20, 100)
	spec := GridSpec{FastExponents: []int{0, 1}, SlowExponents: []int{2}}
	factory := func(p GridPoint) (strategy.Provider, error) {
		if p.Fast == 1 {
			return nil, errors.New("boom")
		}
		return &scriptedProvider{}, nil
	}

	results, err := RunGrid(context.Background(), bars, spec, testConfig(), factory, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "boom", results[0].Err)
	assert.Nil(t, results[0].Result)
	assert.Empty(t, results[1].Err)

	assert.Len(t, Survivors(results, 0), 1)
	assert.Empty(t, Survivors(results, 1))
}

func TestRunGrid_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	spec := GridSpec{FastExponents: []int{0}, SlowExponents: []int{1, 2}}
	_, err := RunGrid(ctx, flatBars(10, 100), spec, testConfig(), SMACrossFactory(strategy.GetDefaultParams()), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSurvivors_DropsLiquidated(t *testing.T) {
	ok := &GridResult{Result: &Result{Statistics: &Statistics{TotalTrades: 5}}}
	liquidated := &GridResult{Result: &Result{Liquidated: true, Statistics: &Statistics{TotalTrades: 5}}}

	assert.Equal(t, []*GridResult{ok}, Survivors([]*GridResult{ok, liquidated, nil}, 1))
}
