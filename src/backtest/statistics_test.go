package backtest

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"tradingbot/src/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tradeWith(side strategy.Direction, net, ret string, entry, exit int) *TradeRecord {
	return &TradeRecord{
		Side:      side,
		EntryTime: barTime(entry),
		ExitTime:  barTime(exit),
		Reason:    ExitSignalFlip,
		PnL:       d(net),
		NetPnL:    d(net),
		ReturnPct: d(ret),
	}
}

func curveOf(equities ...string) []EquityPoint {
	curve := make([]EquityPoint, len(equities))
	for i, e := range equities {
		curve[i] = EquityPoint{Timestamp: testStart.Add(time.Duration(i) * 24 * time.Hour), Equity: d(e), Balance: d(e)}
	}
	return curve
}

func TestComputeStatistics_Basic(t *testing.T) {
	trades := []*TradeRecord{
		tradeWith(strategy.DirectionLong, "10", "10", 0, 2),
		tradeWith(strategy.DirectionShort, "-5", "-5", 3, 5),
		tradeWith(strategy.DirectionLong, "20", "20", 6, 8),
	}
	account := AccountState{InitialBalance: d("100"), Balance: d("125")}
	stats := ComputeStatistics(trades, curveOf("110", "105", "125"), account)

	assert.Equal(t, 3, stats.TotalTrades)
	assert.Equal(t, 2, stats.WinningTrades)
	assert.Equal(t, 1, stats.LosingTrades)
	assert.Equal(t, 2, stats.LongTrades)
	assert.Equal(t, 1, stats.ShortTrades)
	assert.InDelta(t, 2.0/3.0, stats.WinRate.Float64(), 1e-12)
	assert.InDelta(t, 6.0, stats.ProfitFactor.Float64(), 1e-12)
	// 2/3 × 15 + 1/3 × (−5)
	assert.InDelta(t, 25.0/3.0, stats.Expectancy.Float64(), 1e-9)
	assert.True(t, stats.AvgWin.Equal(d("15")))
	assert.True(t, stats.LargestWin.Equal(d("20")))
	assert.True(t, stats.LargestLoss.Equal(d("-5")))
	assert.True(t, stats.TotalReturn.Equal(d("0.25")))
	assert.True(t, stats.TotalPnL.Equal(d("25")))
	assert.Equal(t, 3, stats.ExitReasons[ExitSignalFlip])
}

func TestComputeStatistics_Sentinels(t *testing.T) {
	t.Run("no trades", func(t *testing.T) {
		stats := ComputeStatistics(nil, nil, AccountState{InitialBalance: d("100"), Balance: d("100")})
		assert.Zero(t, stats.WinRate.Float64())
		assert.Zero(t, stats.ProfitFactor.Float64())
		assert.Zero(t, stats.Expectancy.Float64())
		assert.Zero(t, stats.SharpeRatio.Float64())
		assert.Zero(t, stats.SortinoRatio.Float64())
		assert.True(t, stats.FinalEquity.Equal(d("100")))
	})

	t.Run("only winners", func(t *testing.T) {
		trades := []*TradeRecord{tradeWith(strategy.DirectionLong, "3", "3", 0, 1)}
		stats := ComputeStatistics(trades, curveOf("101", "103"), AccountState{InitialBalance: d("100"), Balance: d("103")})
		assert.True(t, math.IsInf(stats.ProfitFactor.Float64(), 1))
		assert.True(t, math.IsInf(stats.SortinoRatio.Float64(), 1))
	})

	t.Run("only losers", func(t *testing.T) {
		trades := []*TradeRecord{tradeWith(strategy.DirectionLong, "-3", "-3", 0, 1)}
		stats := ComputeStatistics(trades, curveOf("99", "97"), AccountState{InitialBalance: d("100"), Balance: d("97")})
		assert.Zero(t, stats.ProfitFactor.Float64())
		assert.Zero(t, stats.WinRate.Float64())
	})

	t.Run("constant equity", func(t *testing.T) {
		stats := ComputeStatistics(nil, curveOf("100", "100", "100"), AccountState{InitialBalance: d("100"), Balance: d("100")})
		assert.Zero(t, stats.SharpeRatio.Float64())
		assert.False(t, math.IsNaN(stats.SortinoRatio.Float64()))
	})
}

func TestDailyReturns_ResamplesToLastPointPerDay(t *testing.T) {
	day := 24 * time.Hour
	curve := []EquityPoint{
		{Timestamp: testStart, Equity: d("100")},
		{Timestamp: testStart.Add(12 * time.Hour), Equity: d("110")},
		{Timestamp: testStart.Add(day), Equity: d("105")},
		{Timestamp: testStart.Add(day + 23*time.Hour), Equity: d("99")},
	}

	returns := DailyReturns(curve, d("100"))

	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-12)
	assert.InDelta(t, -0.10, returns[1], 1e-12)
}

func TestSharpeAndSortino(t *testing.T) {
	returns := []float64{0.01, 0.02, -0.01, 0.03, -0.02}

	mean := 0.006
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / 4)
	assert.InDelta(t, mean/std*math.Sqrt(365), sharpe(returns).Float64(), 1e-9)

	downStd := math.Sqrt(((-0.01+0.015)*(-0.01+0.015) + (-0.02+0.015)*(-0.02+0.015)) / 1)
	assert.InDelta(t, mean/downStd*math.Sqrt(365), sortino(returns).Float64(), 1e-9)

	assert.Zero(t, sharpe([]float64{0.01}).Float64())
	assert.Zero(t, sortino(nil).Float64())
	assert.Zero(t, sortino([]float64{0.01, -0.01}).Float64())
	assert.True(t, sortino([]float64{0.01, 0.02}).IsInf())
}

func TestTimeInMarket_MergesOverlaps(t *testing.T) {
	trades := []*TradeRecord{
		tradeWith(strategy.DirectionLong, "1", "1", 0, 4),
		tradeWith(strategy.DirectionLong, "1", "1", 2, 6),
	}
	curve := make([]EquityPoint, 11)
	for i := range curve {
		curve[i] = EquityPoint{Timestamp: barTime(i), Equity: decimal.NewFromInt(100)}
	}

	assert.InDelta(t, 0.6, timeInMarket(trades, curve).Float64(), 1e-12)
}

func TestRatio_JSON(t *testing.T) {
	type wrapper struct {
		PF Ratio `json:"pf"`
		SR Ratio `json:"sr"`
	}

	data, err := json.Marshal(wrapper{PF: Ratio(math.Inf(1)), SR: 1.5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"pf":"+Inf","sr":1.5}`, string(data))

	var back wrapper
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.PF.IsInf())
	assert.Equal(t, Ratio(1.5), back.SR)

	assert.Equal(t, "inf", Ratio(math.Inf(1)).String())
	assert.Equal(t, "1.50", Ratio(1.5).String())
}
