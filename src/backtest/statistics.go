package backtest

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"tradingbot/src/strategy"
	"tradingbot/src/timeframes"

	"github.com/shopspring/decimal"
)

var annualization = math.Sqrt(365)

// Ratio 比率类统计量，±Inf 序列化为字符串 "+Inf" / "-Inf"
type Ratio float64

// Float64 返回原始值
func (r Ratio) Float64() float64 {
	return float64(r)
}

// IsInf 是否为无穷哨兵值
func (r Ratio) IsInf() bool {
	return math.IsInf(float64(r), 0)
}

// MarshalJSON 实现 json.Marshaler
func (r Ratio) MarshalJSON() ([]byte, error) {
	f := float64(r)
	switch {
	case math.IsInf(f, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Inf"`), nil
	case math.IsNaN(f):
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// UnmarshalJSON 实现 json.Unmarshaler
func (r *Ratio) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"+Inf"`, `"Inf"`:
		*r = Ratio(math.Inf(1))
		return nil
	case `"-Inf"`:
		*r = Ratio(math.Inf(-1))
		return nil
	case "null":
		*r = 0
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid ratio %s: %w", data, err)
	}
	*r = Ratio(f)
	return nil
}

// String 便于表格输出
func (r Ratio) String() string {
	if math.IsInf(float64(r), 1) {
		return "inf"
	}
	return strconv.FormatFloat(float64(r), 'f', 2, 64)
}

// EquityPoint 权益曲线上的一个点
type EquityPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Equity    decimal.Decimal `json:"equity"`
	Balance   decimal.Decimal `json:"balance"`
	Price     decimal.Decimal `json:"price"`
	Positions int             `json:"positions"`
}

// Statistics 回测统计
type Statistics struct {
	TotalTrades   int `json:"total_trades"`
	WinningTrades int `json:"winning_trades"`
	LosingTrades  int `json:"losing_trades"`
	LongTrades    int `json:"long_trades"`
	ShortTrades   int `json:"short_trades"`

	InitialEquity decimal.Decimal `json:"initial_equity"`
	FinalEquity   decimal.Decimal `json:"final_equity"`
	TotalReturn   decimal.Decimal `json:"total_return"` // final/initial − 1
	TotalPnL      decimal.Decimal `json:"total_pnl"`    // 已扣手续费
	TotalFees     decimal.Decimal `json:"total_fees"`
	MaxDrawdown   decimal.Decimal `json:"max_drawdown"`

	WinRate      Ratio `json:"win_rate"`
	ProfitFactor Ratio `json:"profit_factor"` // 无亏损交易时为 +Inf
	Expectancy   Ratio `json:"expectancy"`    // 每笔期望收益(%)
	SharpeRatio  Ratio `json:"sharpe_ratio"`
	SortinoRatio Ratio `json:"sortino_ratio"` // 无下跌日时为 +Inf
	TimeInMarket Ratio `json:"time_in_market"`

	AvgWin      decimal.Decimal `json:"avg_win"`  // 收益率(%)
	AvgLoss     decimal.Decimal `json:"avg_loss"` // 收益率(%)
	LargestWin  decimal.Decimal `json:"largest_win"`
	LargestLoss decimal.Decimal `json:"largest_loss"`

	ExitReasons  map[ExitReason]int `json:"exit_reasons"`
	DailyReturns []float64          `json:"daily_returns,omitempty"`
}

// ComputeStatistics 根据交易记录和权益曲线计算统计量，任何除零都返回哨兵值
func ComputeStatistics(trades []*TradeRecord, curve []EquityPoint, account AccountState) *Statistics {
	stats := &Statistics{
		TotalTrades:   len(trades),
		InitialEquity: account.InitialBalance,
		FinalEquity:   account.Balance,
		TotalFees:     account.TotalFees,
		MaxDrawdown:   account.MaxDrawdown,
		ExitReasons:   make(map[ExitReason]int),
	}
	if len(curve) > 0 {
		stats.FinalEquity = curve[len(curve)-1].Equity
	}
	if account.InitialBalance.IsPositive() {
		stats.TotalReturn = stats.FinalEquity.Div(account.InitialBalance).Sub(decimal.NewFromInt(1))
	}

	tradeStats(stats, trades)

	stats.DailyReturns = DailyReturns(curve, account.InitialBalance)
	stats.SharpeRatio = sharpe(stats.DailyReturns)
	stats.SortinoRatio = sortino(stats.DailyReturns)
	stats.TimeInMarket = timeInMarket(trades, curve)

	return stats
}

func tradeStats(stats *Statistics, trades []*TradeRecord) {
	grossWin := decimal.Zero
	grossLoss := decimal.Zero
	sumWinPct := decimal.Zero
	sumLossPct := decimal.Zero

	for _, t := range trades {
		stats.ExitReasons[t.Reason]++
		stats.TotalPnL = stats.TotalPnL.Add(t.NetPnL)
		if t.Side == strategy.DirectionShort {
			stats.ShortTrades++
		} else {
			stats.LongTrades++
		}

		if t.NetPnL.IsPositive() {
			stats.WinningTrades++
			grossWin = grossWin.Add(t.NetPnL)
			sumWinPct = sumWinPct.Add(t.ReturnPct)
			if stats.WinningTrades == 1 || t.ReturnPct.GreaterThan(stats.LargestWin) {
				stats.LargestWin = t.ReturnPct
			}
		} else {
			stats.LosingTrades++
			grossLoss = grossLoss.Add(t.NetPnL.Neg())
			sumLossPct = sumLossPct.Add(t.ReturnPct)
			if stats.LosingTrades == 1 || t.ReturnPct.LessThan(stats.LargestLoss) {
				stats.LargestLoss = t.ReturnPct
			}
		}
	}

	if stats.WinningTrades > 0 {
		stats.AvgWin = sumWinPct.Div(decimal.NewFromInt(int64(stats.WinningTrades)))
	}
	if stats.LosingTrades > 0 {
		stats.AvgLoss = sumLossPct.Div(decimal.NewFromInt(int64(stats.LosingTrades)))
	}

	if stats.TotalTrades == 0 {
		return
	}

	wr := float64(stats.WinningTrades) / float64(stats.TotalTrades)
	stats.WinRate = Ratio(wr)
	stats.Expectancy = Ratio(wr*stats.AvgWin.InexactFloat64() + (1-wr)*stats.AvgLoss.InexactFloat64())

	switch {
	case grossLoss.IsPositive():
		stats.ProfitFactor = Ratio(grossWin.Div(grossLoss).InexactFloat64())
	case grossWin.IsPositive():
		stats.ProfitFactor = Ratio(math.Inf(1))
	default:
		stats.ProfitFactor = 0
	}
}

// DailyReturns 按UTC自然日取每日最后一个权益点，计算相邻日的收益率，首日以初始资金为基准
func DailyReturns(curve []EquityPoint, initial decimal.Decimal) []float64 {
	if len(curve) == 0 || !initial.IsPositive() {
		return nil
	}

	var closes []decimal.Decimal
	var lastDay time.Time
	for _, p := range curve {
		day := timeframes.Timeframe1d.Truncate(p.Timestamp)
		if len(closes) > 0 && day.Equal(lastDay) {
			closes[len(closes)-1] = p.Equity
			continue
		}
		closes = append(closes, p.Equity)
		lastDay = day
	}

	returns := make([]float64, 0, len(closes))
	prev := initial
	for _, eq := range closes {
		if prev.IsPositive() {
			returns = append(returns, eq.Sub(prev).Div(prev).InexactFloat64())
		} else {
			returns = append(returns, 0)
		}
		prev = eq
	}
	return returns
}

func meanStd(values []float64) (mean, std float64, ok bool) {
	if len(values) < 2 {
		return 0, 0, false
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	std = math.Sqrt(ss / float64(len(values)-1))
	return mean, std, true
}

func sharpe(returns []float64) Ratio {
	mean, std, ok := meanStd(returns)
	if !ok || std == 0 || math.IsNaN(std) {
		return 0
	}
	return Ratio(mean / std * annualization)
}

func sortino(returns []float64) Ratio {
	if len(returns) == 0 {
		return 0
	}

	var mean float64
	var downside []float64
	for _, r := range returns {
		mean += r
		if r < 0 {
			downside = append(downside, r)
		}
	}
	mean /= float64(len(returns))

	if len(downside) == 0 {
		return Ratio(math.Inf(1))
	}
	_, std, ok := meanStd(downside)
	if !ok || std == 0 || math.IsNaN(std) {
		return 0
	}
	return Ratio(mean / std * annualization)
}

// timeInMarket 有持仓的时间占回测区间的比例，重叠切片只计一次
func timeInMarket(trades []*TradeRecord, curve []EquityPoint) Ratio {
	if len(trades) == 0 || len(curve) < 2 {
		return 0
	}
	span := curve[len(curve)-1].Timestamp.Sub(curve[0].Timestamp)
	if span <= 0 {
		return 0
	}

	sorted := make([]*TradeRecord, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EntryTime.Before(sorted[j].EntryTime)
	})

	var held time.Duration
	start, end := sorted[0].EntryTime, sorted[0].ExitTime
	for _, t := range sorted[1:] {
		if t.EntryTime.After(end) {
			held += end.Sub(start)
			start, end = t.EntryTime, t.ExitTime
			continue
		}
		if t.ExitTime.After(end) {
			end = t.ExitTime
		}
	}
	held += end.Sub(start)

	return Ratio(math.Min(1, float64(held)/float64(span)))
}
