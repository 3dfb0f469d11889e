package config

import (
	"errors"
	"testing"
	"time"

	"tradingbot/src/backtest"
	"tradingbot/src/cex"
	"tradingbot/src/strategy"
	"tradingbot/src/timeframes"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	c := *AppConfig
	c.Grid.Leverages = append([]float64(nil), AppConfig.Grid.Leverages...)
	return &c
}

func TestAppConfig_DefaultValues(t *testing.T) {
	assert.NotNil(t, AppConfig)
	assert.Equal(t, "backtest", AppConfig.Trading.Mode)
	assert.Equal(t, "1h", AppConfig.Trading.Timeframe)
	assert.Equal(t, 100.0, AppConfig.Backtest.InitialBalance)
	assert.Equal(t, 0.0025, AppConfig.Backtest.FeeRate)
	assert.Equal(t, strategy.ProviderSMACross, AppConfig.Strategy.Provider)
	assert.NotEmpty(t, AppConfig.Symbols)
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"bad symbol", func(c *Config) { c.Trading.Symbol = "???" }, "trading.symbol"},
		{"bad timeframe", func(c *Config) { c.Trading.Timeframe = "7x" }, "trading.timeframe"},
		{"bad mode", func(c *Config) { c.Trading.Mode = "yolo" }, "trading.mode"},
		{"bad start date", func(c *Config) { c.Backtest.StartDate = "01/02/2024" }, "backtest.start_date"},
		{"zero balance", func(c *Config) { c.Backtest.InitialBalance = 0 }, "initial balance"},
		{"negative fee", func(c *Config) { c.Backtest.FeeRate = -0.1 }, "fee rate"},
		{"zero leverage", func(c *Config) { c.Backtest.Leverage = 0 }, "leverage"},
		{"threshold above balance", func(c *Config) { c.Backtest.LiquidationThreshold = 500 }, "liquidation threshold"},
		{"unknown position mode", func(c *Config) { c.Backtest.PositionMode = "hedge" }, "position mode"},
		{"fast not below slow", func(c *Config) { c.Strategy.Fast = 60 }, "strategy"},
		{"unknown provider", func(c *Config) { c.Strategy.Provider = "magic" }, "strategy.provider"},
		{"bad sort key", func(c *Config) { c.Grid.SortBy = "luck" }, "grid.sort_by"},
		{"bad grid leverage", func(c *Config) { c.Grid.Leverages = []float64{1, 0} }, "grid.leverages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)

			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, backtest.ErrInvalidConfig), "got %v", err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestConfig_BacktestConfig(t *testing.T) {
	c := validConfig()
	c.Backtest.Leverage = 5
	c.Backtest.Slippage = 0.1
	c.Backtest.LiquidationThreshold = 10
	c.Backtest.MaxHoldHours = 24
	c.Backtest.PositionMode = "multi"
	c.Backtest.MaxSlices = 3

	kernel := c.BacktestConfig()

	assert.Equal(t, "BTC/USD", kernel.Symbol)
	assert.True(t, kernel.InitialBalance.Equal(decimal.NewFromInt(100)))
	assert.True(t, kernel.FeeRate.Equal(decimal.RequireFromString("0.0025")))
	assert.True(t, kernel.Slippage.Equal(decimal.RequireFromString("0.1")))
	assert.True(t, kernel.Leverage.Equal(decimal.NewFromInt(5)))
	assert.True(t, kernel.LiquidationThreshold.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 24*time.Hour, kernel.MaxHold)
	assert.Equal(t, backtest.ModeMulti, kernel.Mode)
	assert.Equal(t, 3, kernel.MaxSlices)
	assert.Equal(t, strategy.DefaultBounds(), kernel.Bounds)
	assert.NoError(t, kernel.Validate())
}

func TestConfig_StrategyParams(t *testing.T) {
	c := validConfig()
	require.NoError(t, c.ApplyStrategyOverrides("fast=5, slow=30, stop=2"))

	params := c.StrategyParams()
	assert.Equal(t, 5, params.Fast)
	assert.Equal(t, 30, params.Slow)
	assert.Equal(t, 2.0, params.StopPct)
	assert.Equal(t, 0.001, params.Proximity)

	assert.Error(t, c.ApplyStrategyOverrides("speed=3"))
	assert.Error(t, c.ApplyStrategyOverrides("fast"))
	assert.NoError(t, c.ApplyStrategyOverrides(""))
	assert.Equal(t, 5, c.Strategy.Fast)
}

func TestConfig_GridSpec(t *testing.T) {
	c := validConfig()
	c.Grid = GridConfig{
		FastExponents: []int{1, 2},
		SlowExponents: []int{2, 3},
		StopPcts:      []float64{0, 5},
		Leverages:     []float64{1, 2.5},
	}

	spec := c.GridSpec()

	require.Len(t, spec.Leverages, 2)
	assert.True(t, spec.Leverages[1].Equal(decimal.RequireFromString("2.5")))
	// (2,4) (2,8) (4,8) × 2 stops × 2 leverages
	assert.Len(t, spec.Points(), 12)
}

func TestConfig_Dates(t *testing.T) {
	c := validConfig()
	c.Backtest.StartDate = "2024-01-01"
	c.Backtest.EndDate = ""

	start, err := c.GetStartTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)

	end, err := c.GetEndTime()
	require.NoError(t, err)
	assert.True(t, end.IsZero())

	tf, err := c.GetTimeframe()
	require.NoError(t, err)
	assert.Equal(t, timeframes.Timeframe1h, tf)
}

func TestConfig_Modes(t *testing.T) {
	c := validConfig()
	assert.True(t, c.IsBacktestMode())

	c.Trading.Mode = "paper"
	assert.True(t, c.IsPaperMode())

	c.Trading.Mode = "live"
	assert.True(t, c.IsLiveMode())
	assert.False(t, c.IsBacktestMode())
}

func TestConfig_LotSize(t *testing.T) {
	c := validConfig()
	c.Symbols = []SymbolRule{{Symbol: "ETHUSDT", MinQty: 0.001, StepSize: 0.001}}

	lot := c.LotSize(cex.TradingPair{Base: "ETH", Quote: "USDT"})
	assert.True(t, lot.MinQty.Equal(decimal.RequireFromString("0.001")))

	lot = c.LotSize(cex.TradingPair{Base: "BTC", Quote: "USD"})
	assert.True(t, lot.MinQty.Equal(decimal.RequireFromString("0.0001")))

	assert.Equal(t, []string{"ETHUSDT"}, c.SupportedSymbols())
}
