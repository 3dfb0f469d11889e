package config

import (
	"fmt"
	"time"

	"tradingbot/src/backtest"
	"tradingbot/src/cex"
	"tradingbot/src/strategy"
	"tradingbot/src/timeframes"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-config/configs"
)

// Config 主配置结构；交易所、大模型和数据库配置由各自的包注册
type Config struct {
	Trading  TradingConfig  `conf:"trading,交易基础配置"`
	Backtest BacktestConfig `conf:"backtest,回测配置"`
	Strategy StrategyConfig `conf:"strategy,信号源配置"`
	Grid     GridConfig     `conf:"grid,参数扫描配置"`
	Symbols  []SymbolRule   `conf:"symbols,交易对下单规则"`
}

// TradingConfig 交易配置
type TradingConfig struct {
	Symbol    string `conf:"symbol,交易对 - 可通过命令行参数-s覆盖，如BTCUSD、BTC/USDT"`
	Timeframe string `conf:"timeframe,K线周期 - 支持1m,5m,15m,30m,1h,2h,4h,6h,12h,1d,1w"`
	Exchange  string `conf:"exchange,数据与下单使用的交易所 - 目前支持binance"`
	Mode      string `conf:"mode,运行模式 - backtest=回测,paper=模拟,live=实盘"`
}

// BacktestConfig 回测配置
type BacktestConfig struct {
	InitialBalance       float64 `conf:"initial_balance,起始资金(USD)"`
	FeeRate              float64 `conf:"fee_rate,手续费率 - 开仓按名义价值，平仓按盈亏绝对值，0.0025=0.25%"`
	Slippage             float64 `conf:"slippage,滑点 - 固定价格偏移(USD)，总是对交易者不利"`
	Leverage             float64 `conf:"leverage,杠杆倍数 - 名义价值=余额×杠杆"`
	SizingCap            float64 `conf:"sizing_cap,仓位参考余额上限 - 名义价值不超过 杠杆×该值，0不限制"`
	LiquidationThreshold float64 `conf:"liquidation_threshold,爆仓线 - 权益低于等于该值时终止回测，0关闭"`
	MaxHoldHours         int     `conf:"max_hold_hours,最长持仓小时数 - 0不限制"`
	PositionMode         string  `conf:"position_mode,持仓模式 - single=单仓,multi=切片"`
	MaxSlices            int     `conf:"max_slices,multi模式下同时持有的切片上限 - 0不限制"`
	MaxTrades            int     `conf:"max_trades,平仓笔数上限 - 达到后提前结束，0不限制"`
	Lookback             int     `conf:"lookback,信号窗口长度 - 0使用信号源自身的要求"`
	StartDate            string  `conf:"start_date,回测开始日期 - 2006-01-02，空表示不限制"`
	EndDate              string  `conf:"end_date,回测结束日期 - 2006-01-02，空表示不限制"`
	DataFile             string  `conf:"data_file,K线CSV文件 - 为空时从数据库读取"`
}

// StrategyConfig 信号源配置
type StrategyConfig struct {
	Provider  string  `conf:"provider,信号源 - sma_cross 或 oracle"`
	Fast      int     `conf:"fast,快线周期"`
	Slow      int     `conf:"slow,慢线周期"`
	StopPct   float64 `conf:"stop_pct,均线信号默认止损百分比 - 0不止损"`
	TargetPct float64 `conf:"target_pct,均线信号默认止盈百分比 - 0不止盈"`
	Proximity float64 `conf:"proximity,预筛选阈值 |fast-slow|/slow - 0不过滤"`
	Lookback  int     `conf:"lookback,oracle使用的K线窗口长度"`
	StopMin   float64 `conf:"stop_min,止损百分比下限"`
	StopMax   float64 `conf:"stop_max,止损百分比上限"`
	TargetMin float64 `conf:"target_min,止盈百分比下限"`
	TargetMax float64 `conf:"target_max,止盈百分比上限"`
}

// GridConfig 参数扫描配置
type GridConfig struct {
	FastExponents []int     `conf:"fast_exponents,快线周期的2的幂指数列表"`
	SlowExponents []int     `conf:"slow_exponents,慢线周期的2的幂指数列表"`
	StopPcts      []float64 `conf:"stop_pcts,止损百分比列表 - 0表示不止损"`
	TargetPcts    []float64 `conf:"target_pcts,止盈百分比列表 - 0表示不止盈"`
	Leverages     []float64 `conf:"leverages,杠杆倍数列表"`
	MinTrades     int       `conf:"min_trades,入选结果的最少交易笔数"`
	Workers       int       `conf:"workers,并行数 - 0使用CPU核数"`
	SortBy        string    `conf:"sort_by,结果排序 - sharpe 或 equity"`
}

// AppConfig 全局配置实例
var AppConfig = &Config{
	Trading: TradingConfig{
		Symbol:    "BTC/USD",
		Timeframe: "1h",
		Exchange:  "binance",
		Mode:      "backtest",
	},
	Backtest: BacktestConfig{
		InitialBalance: 100,
		FeeRate:        0.0025, // 0.25%
		Slippage:       0,
		Leverage:       1,
		PositionMode:   string(backtest.ModeSingle),
		StartDate:      "",
		EndDate:        "",
	},
	Strategy: StrategyConfig{
		Provider:  strategy.ProviderSMACross,
		Fast:      20,
		Slow:      50,
		Proximity: 0.001, // 0.1%
		Lookback:  50,
		StopMin:   0.5,
		StopMax:   10,
		TargetMin: 1,
		TargetMax: 20,
	},
	Grid: GridConfig{
		FastExponents: []int{1, 2, 3, 4, 5, 6},
		SlowExponents: []int{2, 3, 4, 5, 6, 7, 8},
		StopPcts:      []float64{0, 2, 5},
		TargetPcts:    []float64{0},
		Leverages:     []float64{1, 2, 5},
		MinTrades:     10,
		Workers:       0,
		SortBy:        "sharpe",
	},
	Symbols: []SymbolRule{
		{Symbol: "BTCUSDT", MinQty: 0.0001, StepSize: 0.0001},
		{Symbol: "BTCUSD", MinQty: 0.0001, StepSize: 0.0001},
	},
}

// 在包的 init() 函数中注册配置
func init() {
	configs.Unmarshal(AppConfig)
}

const dateLayout = "2006-01-02"

// Validate 验证配置，错误包装 backtest.ErrInvalidConfig 并指明字段
func (c *Config) Validate() error {
	if _, err := c.GetTradingPair(); err != nil {
		return err
	}

	if _, err := c.GetTimeframe(); err != nil {
		return fmt.Errorf("%w: trading.timeframe: %v", backtest.ErrInvalidConfig, err)
	}

	switch c.Trading.Mode {
	case "backtest", "paper", "live":
	default:
		return fmt.Errorf("%w: trading.mode: invalid mode %q", backtest.ErrInvalidConfig, c.Trading.Mode)
	}

	if _, err := c.GetStartTime(); err != nil {
		return fmt.Errorf("%w: backtest.start_date: %v", backtest.ErrInvalidConfig, err)
	}
	if _, err := c.GetEndTime(); err != nil {
		return fmt.Errorf("%w: backtest.end_date: %v", backtest.ErrInvalidConfig, err)
	}

	kernel := c.BacktestConfig()
	if err := kernel.Validate(); err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	if err := c.StrategyParams().Validate(); err != nil {
		return fmt.Errorf("%w: strategy: %w", backtest.ErrInvalidConfig, err)
	}
	switch c.Strategy.Provider {
	case strategy.ProviderSMACross, strategy.ProviderOracle:
	default:
		return fmt.Errorf("%w: strategy.provider: %w: %s", backtest.ErrInvalidConfig, strategy.ErrUnknownProvider, c.Strategy.Provider)
	}

	switch c.Grid.SortBy {
	case "", "sharpe", "equity":
	default:
		return fmt.Errorf("%w: grid.sort_by: unknown key %q", backtest.ErrInvalidConfig, c.Grid.SortBy)
	}
	for _, l := range c.Grid.Leverages {
		if l <= 0 {
			return fmt.Errorf("%w: grid.leverages: leverage must be positive, got %g", backtest.ErrInvalidConfig, l)
		}
	}

	return nil
}

// GetTradingPair 解析交易对
func (c *Config) GetTradingPair() (cex.TradingPair, error) {
	pair, ok := cex.ParseSymbol(c.Trading.Symbol)
	if !ok {
		return cex.TradingPair{}, fmt.Errorf("%w: trading.symbol: cannot parse %q", backtest.ErrInvalidConfig, c.Trading.Symbol)
	}
	return pair, nil
}

// GetTimeframe 获取时间周期
func (c *Config) GetTimeframe() (timeframes.Timeframe, error) {
	return timeframes.ParseTimeframe(c.Trading.Timeframe)
}

// GetStartTime 获取回测开始时间，未配置时返回零值
func (c *Config) GetStartTime() (time.Time, error) {
	return parseDate(c.Backtest.StartDate)
}

// GetEndTime 获取回测结束时间，未配置时返回零值
func (c *Config) GetEndTime() (time.Time, error) {
	return parseDate(c.Backtest.EndDate)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}

// BacktestConfig 转换为回测内核参数
func (c *Config) BacktestConfig() backtest.Config {
	b := c.Backtest
	return backtest.Config{
		Symbol:               c.Trading.Symbol,
		InitialBalance:       decimal.NewFromFloat(b.InitialBalance),
		FeeRate:              decimal.NewFromFloat(b.FeeRate),
		Slippage:             decimal.NewFromFloat(b.Slippage),
		Leverage:             decimal.NewFromFloat(b.Leverage),
		SizingCap:            decimal.NewFromFloat(b.SizingCap),
		LiquidationThreshold: decimal.NewFromFloat(b.LiquidationThreshold),
		MaxHold:              time.Duration(b.MaxHoldHours) * time.Hour,
		Mode:                 backtest.PositionMode(b.PositionMode),
		MaxSlices:            b.MaxSlices,
		MaxTrades:            b.MaxTrades,
		Lookback:             b.Lookback,
		Bounds:               c.bounds(),
	}
}

func (c *Config) bounds() strategy.Bounds {
	s := c.Strategy
	return strategy.Bounds{StopMin: s.StopMin, StopMax: s.StopMax, TargetMin: s.TargetMin, TargetMax: s.TargetMax}
}

// StrategyParams 获取信号源参数
func (c *Config) StrategyParams() *strategy.Params {
	s := c.Strategy
	return &strategy.Params{
		Fast:      s.Fast,
		Slow:      s.Slow,
		StopPct:   s.StopPct,
		TargetPct: s.TargetPct,
		Proximity: s.Proximity,
		Lookback:  s.Lookback,
		Bounds:    c.bounds(),
	}
}

// GridSpec 获取参数扫描范围
func (c *Config) GridSpec() backtest.GridSpec {
	g := c.Grid
	leverages := make([]decimal.Decimal, len(g.Leverages))
	for i, l := range g.Leverages {
		leverages[i] = decimal.NewFromFloat(l)
	}
	return backtest.GridSpec{
		FastExponents: g.FastExponents,
		SlowExponents: g.SlowExponents,
		StopPcts:      g.StopPcts,
		TargetPcts:    g.TargetPcts,
		Leverages:     leverages,
	}
}

// IsLiveMode 是否为实盘模式
func (c *Config) IsLiveMode() bool {
	return c.Trading.Mode == "live"
}

// IsPaperMode 是否为模拟交易模式
func (c *Config) IsPaperMode() bool {
	return c.Trading.Mode == "paper"
}

// IsBacktestMode 是否为回测模式
func (c *Config) IsBacktestMode() bool {
	return c.Trading.Mode == "backtest"
}

// ApplyStrategyOverrides 用命令行 "k=v,k=v" 覆盖信号源参数
func (c *Config) ApplyStrategyOverrides(paramsStr string) error {
	if paramsStr == "" {
		return nil
	}
	overrides, err := strategy.ParseParams(paramsStr)
	if err != nil {
		return err
	}
	params := c.StrategyParams()
	if err := params.Apply(overrides); err != nil {
		return err
	}
	c.Strategy.Fast = params.Fast
	c.Strategy.Slow = params.Slow
	c.Strategy.StopPct = params.StopPct
	c.Strategy.TargetPct = params.TargetPct
	c.Strategy.Proximity = params.Proximity
	c.Strategy.Lookback = params.Lookback
	return nil
}
