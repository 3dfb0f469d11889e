package backtest

import (
	"time"

	"tradingbot/src/strategy"

	"github.com/shopspring/decimal"
)

// ExitReason 平仓原因
type ExitReason string

const (
	ExitStop            ExitReason = "STOP"
	ExitTarget          ExitReason = "TARGET"
	ExitTime            ExitReason = "TIME"
	ExitSignalFlip      ExitReason = "SIGNAL_FLIP"
	ExitFinalForceClose ExitReason = "FINAL_FORCE_CLOSE"
)

// TradeRecord 平仓后生成的交易记录，生成后不再修改
type TradeRecord struct {
	ID         string             `json:"id"`
	Side       strategy.Direction `json:"side"`
	Size       decimal.Decimal    `json:"size"` // 带符号，空头为负
	EntryTime  time.Time          `json:"entry_time"`
	ExitTime   time.Time          `json:"exit_time"`
	EntryPrice decimal.Decimal    `json:"entry_price"`
	ExitPrice  decimal.Decimal    `json:"exit_price"`
	StopPct    decimal.Decimal    `json:"stop_pct"`
	TargetPct  decimal.Decimal    `json:"target_pct"`
	Reason     ExitReason         `json:"exit_reason"`
	PnL        decimal.Decimal    `json:"pnl"`        // size × (exit − entry)
	Fees       decimal.Decimal    `json:"fees"`       // 开仓 + 平仓手续费
	NetPnL     decimal.Decimal    `json:"net_pnl"`    // PnL − Fees
	ReturnPct  decimal.Decimal    `json:"return_pct"` // NetPnL / 保证金 × 100
	Balance    decimal.Decimal    `json:"balance"`    // 平仓后余额
	Signal     string             `json:"signal,omitempty"`
}

// PriceMovePct 按方向计算的价格变动百分比，多头上涨为正
func (t *TradeRecord) PriceMovePct() decimal.Decimal {
	move := t.ExitPrice.Sub(t.EntryPrice).Div(t.EntryPrice).Mul(hundred)
	if t.Side == strategy.DirectionShort {
		return move.Neg()
	}
	return move
}

// HoldDuration 持仓时长
func (t *TradeRecord) HoldDuration() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}
