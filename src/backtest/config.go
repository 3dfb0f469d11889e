package backtest

import (
	"errors"
	"fmt"
	"time"

	"tradingbot/src/strategy"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidConfig 回测配置不合法，运行前拒绝
	ErrInvalidConfig = errors.New("invalid backtest config")

	// ErrNonPositiveBalance 余额不为正时拒绝开仓
	ErrNonPositiveBalance = errors.New("balance must be positive to open a position")

	// ErrPositionNotOpen 平仓目标不在持仓集合中
	ErrPositionNotOpen = errors.New("position is not open")
)

// PositionMode 持仓模式
type PositionMode string

const (
	// ModeSingle 同一时间最多一个持仓
	ModeSingle PositionMode = "single"
	// ModeMulti 每个信号可新开一个切片，切片各自平仓
	ModeMulti PositionMode = "multi"
)

// Config 单次回测的参数
type Config struct {
	Symbol               string          `json:"symbol"`
	InitialBalance       decimal.Decimal `json:"initial_balance"`
	FeeRate              decimal.Decimal `json:"fee_rate"`              // 开仓按名义价值，平仓按 |pnl| 收取
	Slippage             decimal.Decimal `json:"slippage"`              // 固定价格偏移，总是对交易者不利
	Leverage             decimal.Decimal `json:"leverage"`              // 名义价值 = 余额 × 杠杆
	SizingCap            decimal.Decimal `json:"sizing_cap"`            // 参考余额，名义价值不超过 杠杆 × SizingCap，0 不限制
	LiquidationThreshold decimal.Decimal `json:"liquidation_threshold"` // 权益 <= 该值时爆仓终止，0 关闭
	MaxHold              time.Duration   `json:"max_hold"`              // 最长持仓时间，0 不限制
	Mode                 PositionMode    `json:"mode"`
	MaxSlices            int             `json:"max_slices"` // multi 模式下同时持有的切片上限，0 不限制
	MaxTrades            int             `json:"max_trades"` // 平仓笔数达到后提前结束，0 不限制
	Lookback             int             `json:"lookback"`   // 信号窗口长度，0 使用信号源自身的要求
	Bounds               strategy.Bounds `json:"bounds"`
}

// DefaultConfig 默认参数: 100 USD 起始资金，0.25% 手续费，无杠杆
func DefaultConfig() Config {
	return Config{
		Symbol:         "BTC/USD",
		InitialBalance: decimal.NewFromInt(100),
		FeeRate:        decimal.RequireFromString("0.0025"),
		Slippage:       decimal.Zero,
		Leverage:       decimal.NewFromInt(1),
		SizingCap:      decimal.Zero,
		Mode:           ModeSingle,
		Bounds:         strategy.DefaultBounds(),
	}
}

// Validate 检查配置，错误均包装 ErrInvalidConfig
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("%w: symbol cannot be empty", ErrInvalidConfig)
	}
	if !c.InitialBalance.IsPositive() {
		return fmt.Errorf("%w: initial balance must be positive, got %s", ErrInvalidConfig, c.InitialBalance)
	}
	if c.FeeRate.IsNegative() {
		return fmt.Errorf("%w: fee rate must be non-negative, got %s", ErrInvalidConfig, c.FeeRate)
	}
	if c.Slippage.IsNegative() {
		return fmt.Errorf("%w: slippage must be non-negative, got %s", ErrInvalidConfig, c.Slippage)
	}
	if !c.Leverage.IsPositive() {
		return fmt.Errorf("%w: leverage must be positive, got %s", ErrInvalidConfig, c.Leverage)
	}
	if c.SizingCap.IsNegative() {
		return fmt.Errorf("%w: sizing cap must be non-negative, got %s", ErrInvalidConfig, c.SizingCap)
	}
	if c.LiquidationThreshold.IsNegative() || c.LiquidationThreshold.GreaterThanOrEqual(c.InitialBalance) {
		return fmt.Errorf("%w: liquidation threshold must be in [0, initial balance), got %s", ErrInvalidConfig, c.LiquidationThreshold)
	}
	if c.MaxHold < 0 {
		return fmt.Errorf("%w: max hold must be non-negative, got %s", ErrInvalidConfig, c.MaxHold)
	}
	if c.Mode != ModeSingle && c.Mode != ModeMulti {
		return fmt.Errorf("%w: unknown position mode %q", ErrInvalidConfig, c.Mode)
	}
	if c.MaxSlices < 0 || c.MaxTrades < 0 || c.Lookback < 0 {
		return fmt.Errorf("%w: max slices, max trades and lookback must be non-negative", ErrInvalidConfig)
	}
	if err := c.Bounds.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
