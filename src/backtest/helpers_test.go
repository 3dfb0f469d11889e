package backtest

import (
	"context"
	"time"

	"tradingbot/src/cex"
	"tradingbot/src/strategy"

	"github.com/shopspring/decimal"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

var testPair = cex.TradingPair{Base: "BTC", Quote: "USD"}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func barTime(i int) time.Time {
	return testStart.Add(time.Duration(i) * time.Hour)
}

// makeBar 第 i 根小时K线
func makeBar(i int, o, h, l, c float64) *cex.KlineData {
	return &cex.KlineData{
		TradingPair: testPair,
		OpenTime:    barTime(i),
		Open:        decimal.NewFromFloat(o),
		High:        decimal.NewFromFloat(h),
		Low:         decimal.NewFromFloat(l),
		Close:       decimal.NewFromFloat(c),
		Volume:      decimal.NewFromInt(1),
		CloseTime:   barTime(i + 1).Add(-time.Millisecond),
	}
}

// flatBars n 根价格不变的K线
func flatBars(n int, price float64) []*cex.KlineData {
	bars := make([]*cex.KlineData, n)
	for i := range bars {
		bars[i] = makeBar(i, price, price, price, price)
	}
	return bars
}

// barsFromCloses 每根K线 open=high=low=close
func barsFromCloses(closes ...float64) []*cex.KlineData {
	bars := make([]*cex.KlineData, len(closes))
	for i, c := range closes {
		bars[i] = makeBar(i, c, c, c, c)
	}
	return bars
}

// scriptedProvider 按窗口最后一根K线的序号返回预设信号，其余返回 FLAT
type scriptedProvider struct {
	lookback int
	signals  map[int]*strategy.Signal
	errs     map[int]error
	calls    int
}

func (p *scriptedProvider) Evaluate(_ context.Context, window []*cex.KlineData) (*strategy.Signal, error) {
	p.calls++
	idx := int(window[len(window)-1].OpenTime.Sub(testStart) / time.Hour)
	if err, ok := p.errs[idx]; ok {
		return nil, err
	}
	if sig, ok := p.signals[idx]; ok {
		copied := *sig
		return &copied, nil
	}
	return strategy.Flat("scripted"), nil
}

func (p *scriptedProvider) Lookback() int {
	if p.lookback == 0 {
		return 1
	}
	return p.lookback
}

func (p *scriptedProvider) GetName() string {
	return "scripted"
}

func long(stop, target float64) *strategy.Signal {
	return &strategy.Signal{Direction: strategy.DirectionLong, StopPct: stop, TargetPct: target, Reason: "test_long"}
}

func short(stop, target float64) *strategy.Signal {
	return &strategy.Signal{Direction: strategy.DirectionShort, StopPct: stop, TargetPct: target, Reason: "test_short"}
}

// testConfig 100 USD，无手续费、无滑点、无杠杆
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FeeRate = decimal.Zero
	return cfg
}
