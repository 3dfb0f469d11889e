package executor

import (
	"context"
	"fmt"

	"tradingbot/src/cex"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"
)

const quantityPrecision = 4

// MinQuantity 最小下单量 0.0001 BTC
var MinQuantity = decimal.New(1, -quantityPrecision)

// LotSize 交易所下单数量规则
type LotSize struct {
	MinQty   decimal.Decimal
	StepSize decimal.Decimal
}

// DefaultLotSize BTC 现货规则: 最小 0.0001，步长 0.0001
func DefaultLotSize() LotSize {
	return LotSize{MinQty: MinQuantity, StepSize: MinQuantity}
}

// Round 按步长向下取整，步长为 0 时原样返回
func (l LotSize) Round(quantity decimal.Decimal) decimal.Decimal {
	if !l.StepSize.IsPositive() {
		return quantity
	}
	return quantity.Div(l.StepSize).Floor().Mul(l.StepSize)
}

// LiveExecutor 实盘交易执行器，通过交易所市价单成交
type LiveExecutor struct {
	cexClient   cex.CEXClient
	tradingPair cex.TradingPair
	lot         LotSize
}

// NewLiveExecutor 创建实盘交易执行器
func NewLiveExecutor(cexClient cex.CEXClient, pair cex.TradingPair) *LiveExecutor {
	return &LiveExecutor{
		cexClient:   cexClient,
		tradingPair: pair,
		lot:         DefaultLotSize(),
	}
}

// WithLotSize 使用交易对自己的下单规则
func (e *LiveExecutor) WithLotSize(lot LotSize) *LiveExecutor {
	e.lot = lot
	return e
}

// Submit 将数量按步长向下取整后提交市价单，低于最小下单量时拒绝
func (e *LiveExecutor) Submit(ctx context.Context, intent *Intent) (*OrderResult, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("LiveExecutor")

	quantity := e.lot.Round(intent.Quantity)
	if quantity.LessThan(e.lot.MinQty) || !quantity.IsPositive() {
		logger.Error(fmt.Sprintf("下单数量过小: %s < %s", intent.Quantity.String(), e.lot.MinQty.String()))
		return &OrderResult{
			IntentID:    intent.ID,
			TradingPair: e.tradingPair,
			Side:        intent.Side,
			Quantity:    quantity,
			Timestamp:   intent.Timestamp,
			Error:       ErrBelowMinimum.Error(),
		}, fmt.Errorf("%w: %s", ErrBelowMinimum, intent.Quantity)
	}

	logger.Info(fmt.Sprintf("执行实盘%s订单: quantity=%s, reason=%s", intent.Side, quantity.String(), intent.Reason))

	req := cex.OrderRequest{
		TradingPair: e.tradingPair,
		Type:        cex.OrderTypeMarket,
		Quantity:    quantity,
	}

	var res *cex.OrderResult
	var err error
	if intent.Side == cex.OrderSideBuy {
		res, err = e.cexClient.Buy(ctx, req)
	} else {
		res, err = e.cexClient.Sell(ctx, req)
	}
	if err != nil {
		logger.Error(fmt.Sprintf("实盘下单失败: %v", err))
		return &OrderResult{
			IntentID:    intent.ID,
			TradingPair: e.tradingPair,
			Side:        intent.Side,
			Quantity:    quantity,
			Timestamp:   intent.Timestamp,
			Error:       err.Error(),
		}, fmt.Errorf("failed to submit %s order: %w", intent.Side, err)
	}

	result := &OrderResult{
		OrderID:     res.OrderID,
		IntentID:    intent.ID,
		TradingPair: res.TradingPair,
		Side:        res.Side,
		Quantity:    res.Quantity,
		Price:       res.Price,
		Timestamp:   res.TransactTime,
		Success:     true,
	}
	logger.Info(fmt.Sprintf("实盘订单已成交: order_id=%s, price=%s", result.OrderID, result.Price.String()))
	return result, nil
}

// GetName 获取执行器名称
func (e *LiveExecutor) GetName() string {
	return "LiveExecutor"
}

// Close 关闭执行器
func (e *LiveExecutor) Close() error {
	return nil
}
