package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"tradingbot/src/cex"
	"tradingbot/src/executor"
	"tradingbot/src/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runEngine(t *testing.T, cfg Config, p strategy.Provider, bars []*cex.KlineData, opts ...Option) *Result {
	t.Helper()
	engine, err := NewEngine(cfg, p, opts...)
	require.NoError(t, err)
	result, err := engine.Run(context.Background(), bars)
	require.NoError(t, err)
	return result
}

func TestEngine_StopExit(t *testing.T) {
	bars := []*cex.KlineData{
		makeBar(0, 100, 100, 100, 100),
		makeBar(1, 100, 101, 89, 95),
		makeBar(2, 95, 95, 95, 95),
	}
	p := &scriptedProvider{signals: map[int]*strategy.Signal{0: long(10, 20)}}

	result := runEngine(t, testConfig(), p, bars)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, ExitStop, trade.Reason)
	assert.True(t, trade.EntryPrice.Equal(d("100")))
	assert.True(t, trade.ExitPrice.Equal(d("90")))
	assert.True(t, trade.PnL.Equal(d("-10")))
	assert.True(t, trade.ReturnPct.Equal(d("-10")))
	assert.Equal(t, barTime(0), trade.EntryTime)
	assert.Equal(t, barTime(1), trade.ExitTime)
	assert.True(t, result.FinalEquity().Equal(d("90")))
	assert.Equal(t, TerminationSeriesEnd, result.Termination)
}

func TestEngine_StopExitWithSlippage(t *testing.T) {
	cfg := testConfig()
	cfg.Slippage = d("0.5")
	bars := []*cex.KlineData{
		makeBar(0, 100, 100, 100, 100),
		makeBar(1, 100, 101, 89, 95),
		makeBar(2, 95, 95, 95, 95),
	}
	p := &scriptedProvider{signals: map[int]*strategy.Signal{0: long(10, 20)}}

	result := runEngine(t, cfg, p, bars)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	// 开仓 100.5，止损价 100.5 × 0.9 = 90.45，成交 89.95
	assert.True(t, trade.EntryPrice.Equal(d("100.5")))
	assert.True(t, trade.ExitPrice.Equal(d("89.95")))
	assert.Equal(t, ExitStop, trade.Reason)
}

func TestEngine_TargetExit(t *testing.T) {
	bars := []*cex.KlineData{
		makeBar(0, 100, 100, 100, 100),
		makeBar(1, 100, 121, 95, 118),
		makeBar(2, 118, 118, 118, 118),
	}
	p := &scriptedProvider{signals: map[int]*strategy.Signal{0: long(10, 20)}}

	result := runEngine(t, testConfig(), p, bars)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, ExitTarget, trade.Reason)
	assert.True(t, trade.ExitPrice.Equal(d("120")))
	assert.True(t, trade.PnL.Equal(d("20")))
	assert.True(t, trade.ReturnPct.Equal(d("20")))
}

func TestEngine_StopBeforeTarget(t *testing.T) {
	bars := []*cex.KlineData{
		makeBar(0, 100, 100, 100, 100),
		makeBar(1, 100, 125, 85, 100),
		makeBar(2, 100, 100, 100, 100),
	}
	p := &scriptedProvider{signals: map[int]*strategy.Signal{0: long(10, 20)}}

	result := runEngine(t, testConfig(), p, bars)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, ExitStop, result.Trades[0].Reason)
}

func TestEngine_StopBoundaryInclusive(t *testing.T) {
	bars := []*cex.KlineData{
		makeBar(0, 100, 100, 100, 100),
		makeBar(1, 100, 100, 90, 95),
		makeBar(2, 95, 95, 95, 95),
	}
	p := &scriptedProvider{signals: map[int]*strategy.Signal{0: long(10, 20)}}

	result := runEngine(t, testConfig(), p, bars)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, ExitStop, result.Trades[0].Reason)
	assert.True(t, result.Trades[0].ExitPrice.Equal(d("90")))
}

func TestEngine_GapThroughStopFillsAtStop(t *testing.T) {
	bars := []*cex.KlineData{
		makeBar(0, 100, 100, 100, 100),
		makeBar(1, 85, 86, 84, 85),
		makeBar(2, 85, 85, 85, 85),
	}
	p := &scriptedProvider{signals: map[int]*strategy.Signal{0: long(10, 20)}}

	result := runEngine(t, testConfig(), p, bars)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, ExitStop, result.Trades[0].Reason)
	assert.True(t, result.Trades[0].ExitPrice.Equal(d("90")))
}

func TestEngine_ShortStopAndTarget(t *testing.T) {
	t.Run("stop", func(t *testing.T) {
		bars := []*cex.KlineData{
			makeBar(0, 100, 100, 100, 100),
			makeBar(1, 100, 111, 99, 105),
			makeBar(2, 105, 105, 105, 105),
		}
		p := &scriptedProvider{signals: map[int]*strategy.Signal{0: short(10, 20)}}
		result := runEngine(t, testConfig(), p, bars)

		require.Len(t, result.Trades, 1)
		trade := result.Trades[0]
		assert.Equal(t, ExitStop, trade.Reason)
		assert.True(t, trade.ExitPrice.Equal(d("110")))
		assert.True(t, trade.Size.IsNegative())
		assert.True(t, trade.PnL.Equal(d("-10")))
	})

	t.Run("target", func(t *testing.T) {
		bars := []*cex.KlineData{
			makeBar(0, 100, 100, 100, 100),
			makeBar(1, 100, 101, 79, 82),
			makeBar(2, 82, 82, 82, 82),
		}
		p := &scriptedProvider{signals: map[int]*strategy.Signal{0: short(10, 20)}}
		result := runEngine(t, testConfig(), p, bars)

		require.Len(t, result.Trades, 1)
		trade := result.Trades[0]
		assert.Equal(t, ExitTarget, trade.Reason)
		assert.True(t, trade.ExitPrice.Equal(d("80")))
		assert.True(t, trade.PnL.Equal(d("20")))
	})
}

func TestEngine_Liquidation(t *testing.T) {
	cfg := testConfig()
	cfg.InitialBalance = d("10000")
	cfg.Leverage = d("5")
	cfg.LiquidationThreshold = d("1000")

	bars := []*cex.KlineData{
		makeBar(0, 100, 100, 100, 100),
		makeBar(1, 95, 96, 90, 92),
		makeBar(2, 90, 90, 82, 85),
		makeBar(3, 85, 120, 85, 110),
		makeBar(4, 110, 110, 110, 110),
	}
	p := &scriptedProvider{signals: map[int]*strategy.Signal{0: long(0, 0), 3: short(0, 0)}}

	result := runEngine(t, cfg, p, bars)

	assert.True(t, result.Liquidated)
	require.NotNil(t, result.LiquidatedAt)
	assert.Equal(t, barTime(2), *result.LiquidatedAt)
	assert.Equal(t, TerminationLiquidated, result.Termination)
	assert.Empty(t, result.Trades)
	assert.True(t, result.FinalEquity().Equal(d("1000")))
	assert.Equal(t, 2, p.calls)
}

func TestEngine_MalformedSignalIsFlat(t *testing.T) {
	bars := flatBars(5, 100)
	p := &scriptedProvider{
		signals: map[int]*strategy.Signal{
			0: {Direction: "BUY?", StopPct: 5, TargetPct: 5},
			1: {Direction: strategy.DirectionLong, StopPct: -1, TargetPct: 5},
		},
		errs: map[int]error{2: errors.New("connection reset")},
	}

	result := runEngine(t, testConfig(), p, bars)

	assert.Empty(t, result.Trades)
	assert.Equal(t, 3, result.SignalErrors)
	assert.Equal(t, 4, result.Signals)
	assert.True(t, result.FinalEquity().Equal(d("100")))
}

func TestEngine_OracleGarbageReply(t *testing.T) {
	params := strategy.GetDefaultParams()
	params.Fast, params.Slow, params.Lookback, params.Proximity = 2, 4, 4, 0
	provider := strategy.NewOracle(replyClient("I think you should buy!"), params)

	result := runEngine(t, testConfig(), provider, flatBars(8, 100))

	assert.Empty(t, result.Trades)
	assert.Equal(t, result.Signals, result.SignalErrors)
	assert.Positive(t, result.SignalErrors)
}

type replyClient string

func (r replyClient) Complete(context.Context, string) (string, error) {
	return string(r), nil
}

func TestEngine_TimeExit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxHold = 24 * time.Hour

	bars := flatBars(30, 100)
	bars[24] = makeBar(24, 101, 102, 100, 101)
	p := &scriptedProvider{signals: map[int]*strategy.Signal{0: long(0, 0)}}

	result := runEngine(t, cfg, p, bars)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, ExitTime, trade.Reason)
	assert.Equal(t, barTime(24), trade.ExitTime)
	assert.True(t, trade.ExitPrice.Equal(d("101")))
	assert.Equal(t, 24*time.Hour, trade.HoldDuration())
}

func TestEngine_SignalFlip(t *testing.T) {
	bars := barsFromCloses(100, 102, 104, 103, 101)
	p := &scriptedProvider{signals: map[int]*strategy.Signal{0: long(0, 0), 2: short(0, 0)}}

	result := runEngine(t, testConfig(), p, bars)

	require.Len(t, result.Trades, 2)
	flip := result.Trades[0]
	assert.Equal(t, ExitSignalFlip, flip.Reason)
	assert.Equal(t, strategy.DirectionLong, flip.Side)
	assert.True(t, flip.ExitPrice.Equal(d("104")))

	final := result.Trades[1]
	assert.Equal(t, ExitFinalForceClose, final.Reason)
	assert.Equal(t, strategy.DirectionShort, final.Side)
	assert.True(t, final.EntryPrice.Equal(d("104")))
	assert.True(t, final.ExitPrice.Equal(d("101")))
	assert.Equal(t, barTime(4), final.ExitTime)
}

func TestEngine_StopThenOpposingSignalSameBar(t *testing.T) {
	bars := []*cex.KlineData{
		makeBar(0, 100, 100, 100, 100),
		makeBar(1, 100, 100, 88, 89),
		makeBar(2, 89, 89, 89, 89),
	}
	p := &scriptedProvider{signals: map[int]*strategy.Signal{0: long(10, 0), 1: short(0, 0)}}

	result := runEngine(t, testConfig(), p, bars)

	require.Len(t, result.Trades, 2)
	assert.Equal(t, ExitStop, result.Trades[0].Reason)
	assert.Equal(t, ExitFinalForceClose, result.Trades[1].Reason)
	assert.Equal(t, strategy.DirectionShort, result.Trades[1].Side)
}

func TestEngine_SingleModeIgnoresRepeatSignals(t *testing.T) {
	bars := flatBars(6, 100)
	p := &scriptedProvider{signals: map[int]*strategy.Signal{0: long(0, 0), 1: long(0, 0), 2: long(0, 0)}}

	result := runEngine(t, testConfig(), p, bars)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, ExitFinalForceClose, result.Trades[0].Reason)
}

func TestEngine_MultiModeSlices(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = ModeMulti
	cfg.MaxSlices = 2

	bars := flatBars(6, 100)
	p := &scriptedProvider{signals: map[int]*strategy.Signal{0: long(0, 0), 1: long(0, 0), 2: long(0, 0)}}

	result := runEngine(t, cfg, p, bars)

	require.Len(t, result.Trades, 2)
	assert.NotEqual(t, result.Trades[0].ID, result.Trades[1].ID)
	assert.Equal(t, barTime(0), result.Trades[0].EntryTime)
	assert.Equal(t, barTime(1), result.Trades[1].EntryTime)
	for _, trade := range result.Trades {
		assert.Equal(t, ExitFinalForceClose, trade.Reason)
	}
}

func TestEngine_MultiModeFlipClosesAllSlices(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = ModeMulti

	bars := flatBars(6, 100)
	p := &scriptedProvider{signals: map[int]*strategy.Signal{0: long(0, 0), 1: long(0, 0), 3: short(0, 0)}}

	result := runEngine(t, cfg, p, bars)

	require.Len(t, result.Trades, 3)
	assert.Equal(t, ExitSignalFlip, result.Trades[0].Reason)
	assert.Equal(t, ExitSignalFlip, result.Trades[1].Reason)
	assert.Equal(t, ExitFinalForceClose, result.Trades[2].Reason)
	assert.Equal(t, strategy.DirectionShort, result.Trades[2].Side)
}

func TestEngine_TradeCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTrades = 1

	bars := []*cex.KlineData{
		makeBar(0, 100, 100, 100, 100),
		makeBar(1, 100, 100, 85, 90),
		makeBar(2, 90, 90, 90, 90),
		makeBar(3, 90, 90, 90, 90),
	}
	p := &scriptedProvider{signals: map[int]*strategy.Signal{0: long(10, 0), 1: long(10, 0), 2: long(10, 0)}}

	result := runEngine(t, cfg, p, bars)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, TerminationTradeCap, result.Termination)
	assert.Equal(t, 1, p.calls)
}

func TestEngine_ShortSeriesProducesNoTrades(t *testing.T) {
	p := &scriptedProvider{lookback: 10, signals: map[int]*strategy.Signal{0: long(0, 0)}}

	result := runEngine(t, testConfig(), p, flatBars(5, 100))

	assert.Empty(t, result.Trades)
	assert.Zero(t, p.calls)
	assert.Len(t, result.EquityCurve, 5)
}

func TestEngine_EmptySeries(t *testing.T) {
	p := &scriptedProvider{}

	result := runEngine(t, testConfig(), p, nil)

	assert.Empty(t, result.Trades)
	assert.Equal(t, 0, result.Bars)
	assert.True(t, result.FinalEquity().Equal(d("100")))
	assert.Zero(t, result.Statistics.TotalTrades)
	assert.Zero(t, result.Statistics.SharpeRatio.Float64())
}

func TestEngine_FinalBarDoesNotOpen(t *testing.T) {
	p := &scriptedProvider{signals: map[int]*strategy.Signal{2: long(0, 0)}}

	result := runEngine(t, testConfig(), p, flatBars(3, 100))

	assert.Empty(t, result.Trades)
	assert.Equal(t, 2, p.calls)
}

func TestEngine_RejectsBadInput(t *testing.T) {
	cfg := testConfig()
	cfg.FeeRate = d("-0.001")
	_, err := NewEngine(cfg, &scriptedProvider{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewEngine(testConfig(), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	engine, err := NewEngine(testConfig(), &scriptedProvider{})
	require.NoError(t, err)

	bars := flatBars(3, 100)
	bars[2].OpenTime = bars[1].OpenTime
	_, err = engine.Run(context.Background(), bars)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, cex.ErrNonMonotonicBars)

	bad := flatBars(3, 100)
	bad[1].Low = d("101")
	_, err = engine.Run(context.Background(), bad)
	assert.ErrorIs(t, err, cex.ErrInvalidBar)
}

// scenarioBars 有涨有跌的一段行情，配合交替信号产生各类平仓
func scenarioBars() []*cex.KlineData {
	return []*cex.KlineData{
		makeBar(0, 100, 101, 99, 100),
		makeBar(1, 100, 104, 99, 103),
		makeBar(2, 103, 106, 95, 96),
		makeBar(3, 96, 97, 90, 92),
		makeBar(4, 92, 95, 91, 94),
		makeBar(5, 94, 110, 93, 108),
		makeBar(6, 108, 109, 100, 101),
		makeBar(7, 101, 103, 97, 98),
		makeBar(8, 98, 99, 96, 97),
		makeBar(9, 97, 100, 95, 99),
	}
}

func scenarioProvider() *scriptedProvider {
	return &scriptedProvider{signals: map[int]*strategy.Signal{
		0: long(3, 5),
		3: short(5, 0),
		4: long(0, 10),
		6: short(0, 0),
		7: long(2, 2),
	}}
}

func TestEngine_Invariants(t *testing.T) {
	cfg := testConfig()
	cfg.FeeRate = d("0.0025")
	cfg.Slippage = d("0.1")
	cfg.Leverage = d("2")

	result := runEngine(t, cfg, scenarioProvider(), scenarioBars())
	require.NotEmpty(t, result.Trades)

	netSum := decimal.Zero
	feeSum := decimal.Zero
	for _, trade := range result.Trades {
		assert.True(t, trade.EntryTime.Before(trade.ExitTime), "trade %s", trade.ID)
		assert.True(t, trade.NetPnL.Equal(trade.PnL.Sub(trade.Fees)))
		netSum = netSum.Add(trade.NetPnL)
		feeSum = feeSum.Add(trade.Fees)

		switch trade.Reason {
		case ExitStop:
			expected := StopPrice(trade.Side, trade.EntryPrice, trade.StopPct)
			move := expected.Sub(trade.EntryPrice).Abs().Div(trade.EntryPrice).Mul(hundred)
			assert.True(t, move.Sub(trade.StopPct).Abs().LessThan(d("0.0000001")))
			assert.True(t, trade.ExitPrice.Sub(expected).Abs().Equal(cfg.Slippage))
		case ExitTarget:
			expected := TargetPrice(trade.Side, trade.EntryPrice, trade.TargetPct)
			move := expected.Sub(trade.EntryPrice).Abs().Div(trade.EntryPrice).Mul(hundred)
			assert.True(t, move.Sub(trade.TargetPct).Abs().LessThan(d("0.0000001")))
			assert.True(t, trade.ExitPrice.Sub(expected).Abs().Equal(cfg.Slippage))
		}
	}

	// 没有资金凭空产生或消失
	assert.True(t, cfg.InitialBalance.Add(netSum).Equal(result.Account.Balance),
		"initial %s + net %s != balance %s", cfg.InitialBalance, netSum, result.Account.Balance)
	assert.True(t, feeSum.Equal(result.Account.TotalFees))
	assert.True(t, result.FinalEquity().Equal(result.Account.Balance))
	assert.Equal(t, len(result.Trades), result.Account.TradeCount)
}

func TestEngine_Idempotent(t *testing.T) {
	cfg := testConfig()
	cfg.FeeRate = d("0.001")
	cfg.Mode = ModeMulti

	engine, err := NewEngine(cfg, scenarioProvider())
	require.NoError(t, err)

	first, err := engine.Run(context.Background(), scenarioBars())
	require.NoError(t, err)
	second, err := engine.Run(context.Background(), scenarioBars())
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestEngine_ExecutorHandOff(t *testing.T) {
	paper := executor.NewPaperExecutor()
	bars := barsFromCloses(100, 102, 104, 103, 101)
	p := &scriptedProvider{signals: map[int]*strategy.Signal{0: long(0, 0), 2: short(0, 0)}}

	result := runEngine(t, testConfig(), p, bars, WithExecutor(paper))

	orders := paper.Orders()
	require.Len(t, orders, 4)
	assert.Equal(t, cex.OrderSideBuy, orders[0].Side)  // 开多
	assert.Equal(t, cex.OrderSideSell, orders[1].Side) // 平多
	assert.Equal(t, cex.OrderSideSell, orders[2].Side) // 开空
	assert.Equal(t, cex.OrderSideBuy, orders[3].Side)  // 平空
	assert.Equal(t, 4, result.Orders)
	assert.Zero(t, result.OrderErrors)
	assert.Equal(t, result.Trades[0].ID, orders[1].IntentID)
}
