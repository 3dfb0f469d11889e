package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradingbot/src/cex"
	"tradingbot/src/strategy"

	"github.com/shopspring/decimal"
)

var (
	// ErrBelowMinimum 下单数量低于交易所最小下单量
	ErrBelowMinimum = errors.New("order quantity below exchange minimum")

	// ErrInvalidIntent 订单意图缺少方向或数量
	ErrInvalidIntent = errors.New("invalid order intent")
)

// Intent 回测引擎产生的订单意图，执行器决定如何成交
type Intent struct {
	ID          string          `json:"id"`
	TradingPair cex.TradingPair `json:"trading_pair"`
	Side        cex.OrderSide   `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"` // 基础资产数量，非负
	Price       decimal.Decimal `json:"price"`    // 参考价格
	Reason      string          `json:"reason"`
	Timestamp   time.Time       `json:"timestamp"`
}

// OrderResult 订单执行结果
type OrderResult struct {
	OrderID     string          `json:"order_id"`
	IntentID    string          `json:"intent_id"`
	TradingPair cex.TradingPair `json:"trading_pair"`
	Side        cex.OrderSide   `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"` // 实际成交价格
	Timestamp   time.Time       `json:"timestamp"`
	Success     bool            `json:"success"`
	Error       string          `json:"error,omitempty"`
}

// Executor 交易执行器接口
type Executor interface {
	// Submit 提交一个订单意图
	Submit(ctx context.Context, intent *Intent) (*OrderResult, error)

	// GetName 获取执行器名称
	GetName() string

	// Close 关闭执行器，清理资源
	Close() error
}

// OpenSide 开仓方向对应的订单方向
func OpenSide(dir strategy.Direction) cex.OrderSide {
	if dir == strategy.DirectionShort {
		return cex.OrderSideSell
	}
	return cex.OrderSideBuy
}

// CloseSide 平仓方向对应的订单方向
func CloseSide(dir strategy.Direction) cex.OrderSide {
	if dir == strategy.DirectionShort {
		return cex.OrderSideBuy
	}
	return cex.OrderSideSell
}

// NewOpenIntent 开仓意图，size 带符号，数量取绝对值
func NewOpenIntent(id string, pair cex.TradingPair, dir strategy.Direction, size, price decimal.Decimal, at time.Time, reason string) *Intent {
	return &Intent{
		ID:          id,
		TradingPair: pair,
		Side:        OpenSide(dir),
		Quantity:    size.Abs(),
		Price:       price,
		Reason:      reason,
		Timestamp:   at,
	}
}

// NewCloseIntent 平仓意图
func NewCloseIntent(id string, pair cex.TradingPair, dir strategy.Direction, size, price decimal.Decimal, at time.Time, reason string) *Intent {
	return &Intent{
		ID:          id,
		TradingPair: pair,
		Side:        CloseSide(dir),
		Quantity:    size.Abs(),
		Price:       price,
		Reason:      reason,
		Timestamp:   at,
	}
}

// Validate 检查意图是否可提交
func (i *Intent) Validate() error {
	if i == nil {
		return ErrInvalidIntent
	}
	if i.Side != cex.OrderSideBuy && i.Side != cex.OrderSideSell {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidIntent, i.Side)
	}
	if !i.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive, got %s", ErrInvalidIntent, i.Quantity)
	}
	return nil
}
