package backtest

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account 资金账户: 余额、峰值、回撤与手续费累计
type Account struct {
	initial      decimal.Decimal
	balance      decimal.Decimal
	peak         decimal.Decimal
	drawdown     decimal.Decimal
	maxDrawdown  decimal.Decimal
	fees         decimal.Decimal
	tradeCount   int
	liquidated   bool
	liquidatedAt time.Time
}

// AccountState 账户快照，用于结果输出
type AccountState struct {
	InitialBalance decimal.Decimal `json:"initial_balance"`
	Balance        decimal.Decimal `json:"balance"`
	PeakEquity     decimal.Decimal `json:"peak_equity"`
	Drawdown       decimal.Decimal `json:"drawdown"`
	MaxDrawdown    decimal.Decimal `json:"max_drawdown"`
	TotalFees      decimal.Decimal `json:"total_fees"`
	TradeCount     int             `json:"trade_count"`
	Liquidated     bool            `json:"liquidated"`
	LiquidatedAt   *time.Time      `json:"liquidated_at,omitempty"`
}

// NewAccount 创建账户
func NewAccount(initial decimal.Decimal) *Account {
	return &Account{
		initial: initial,
		balance: initial,
		peak:    initial,
	}
}

// Balance 当前余额
func (a *Account) Balance() decimal.Decimal {
	return a.balance
}

// Equity 余额加未实现盈亏
func (a *Account) Equity(unrealized decimal.Decimal) decimal.Decimal {
	return a.balance.Add(unrealized)
}

// ChargeFee 扣除开仓手续费
func (a *Account) ChargeFee(fee decimal.Decimal) {
	a.balance = a.balance.Sub(fee)
	a.fees = a.fees.Add(fee)
}

// Realize 记入一笔平仓盈亏并扣除平仓手续费
func (a *Account) Realize(pnl, fee decimal.Decimal) {
	a.balance = a.balance.Add(pnl).Sub(fee)
	a.fees = a.fees.Add(fee)
	a.tradeCount++
}

// Observe 用最新权益更新峰值和回撤
func (a *Account) Observe(equity decimal.Decimal) {
	if equity.GreaterThan(a.peak) {
		a.peak = equity
	}
	if a.peak.IsPositive() {
		a.drawdown = a.peak.Sub(equity).Div(a.peak)
	}
	if a.drawdown.GreaterThan(a.maxDrawdown) {
		a.maxDrawdown = a.drawdown
	}
}

// CheckLiquidation 权益不高于阈值时标记爆仓，阈值为 0 时不生效
func (a *Account) CheckLiquidation(equity, threshold decimal.Decimal, at time.Time) bool {
	if a.liquidated {
		return true
	}
	if !threshold.IsPositive() || equity.GreaterThan(threshold) {
		return false
	}
	a.liquidated = true
	a.liquidatedAt = at
	a.Observe(equity)
	return true
}

// Liquidated 是否已爆仓
func (a *Account) Liquidated() bool {
	return a.liquidated
}

// TradeCount 已平仓笔数
func (a *Account) TradeCount() int {
	return a.tradeCount
}

// State 生成快照
func (a *Account) State() AccountState {
	state := AccountState{
		InitialBalance: a.initial,
		Balance:        a.balance,
		PeakEquity:     a.peak,
		Drawdown:       a.drawdown,
		MaxDrawdown:    a.maxDrawdown,
		TotalFees:      a.fees,
		TradeCount:     a.tradeCount,
		Liquidated:     a.liquidated,
	}
	if a.liquidated {
		at := a.liquidatedAt
		state.LiquidatedAt = &at
	}
	return state
}
