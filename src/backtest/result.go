package backtest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Termination 回测结束原因
type Termination string

const (
	TerminationSeriesEnd  Termination = "series_end"
	TerminationLiquidated Termination = "liquidated"
	TerminationTradeCap   Termination = "trade_cap"
)

// Result 单次回测结果，可直接序列化为 JSON
type Result struct {
	Symbol       string         `json:"symbol"`
	Provider     string         `json:"provider"`
	Config       Config         `json:"config"`
	Bars         int            `json:"bars"`
	Start        time.Time      `json:"start"`
	End          time.Time      `json:"end"`
	Trades       []*TradeRecord `json:"trades"`
	EquityCurve  []EquityPoint  `json:"equity_curve"`
	Statistics   *Statistics    `json:"statistics"`
	Account      AccountState   `json:"account"`
	Liquidated   bool           `json:"liquidated"`
	LiquidatedAt *time.Time     `json:"liquidated_at,omitempty"`
	Termination  Termination    `json:"termination"`
	Signals      int            `json:"signals"`
	SignalErrors int            `json:"signal_errors"`
	Orders       int            `json:"orders"`
	OrderErrors  int            `json:"order_errors"`
}

// FinalEquity 结束时的权益；爆仓时为按不利价格标记的权益
func (r *Result) FinalEquity() decimal.Decimal {
	if r.Statistics == nil {
		return r.Account.Balance
	}
	return r.Statistics.FinalEquity
}

// Summary 一行摘要
func (r *Result) Summary() string {
	s := r.Statistics
	return fmt.Sprintf("%s %s: trades=%d win=%.1f%% pf=%s sharpe=%s sortino=%s mdd=%s%% final=%s (%s)",
		r.Symbol, r.Provider, s.TotalTrades, s.WinRate.Float64()*100, s.ProfitFactor, s.SharpeRatio,
		s.SortinoRatio, s.MaxDrawdown.Mul(hundred).StringFixed(2), s.FinalEquity.StringFixed(2), r.Termination)
}
