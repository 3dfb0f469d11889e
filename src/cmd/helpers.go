package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tradingbot/src/backtest"
	"tradingbot/src/cex"
	_ "tradingbot/src/cex/binance"
	"tradingbot/src/config"
	"tradingbot/src/database"
	"tradingbot/src/oracle"
	"tradingbot/src/strategy"
	"tradingbot/src/timeframes"

	"github.com/shopspring/decimal"
)

// CreateTradingPair 创建交易对
func CreateTradingPair(base, quote string) cex.TradingPair {
	return cex.TradingPair{
		Base:  strings.ToUpper(base),
		Quote: strings.ToUpper(quote),
	}
}

// resolvePair 命令行未指定时使用配置中的交易对
func resolvePair(symbol string) (cex.TradingPair, error) {
	if symbol == "" {
		return config.AppConfig.GetTradingPair()
	}
	pair, ok := cex.ParseSymbol(symbol)
	if !ok {
		return cex.TradingPair{}, fmt.Errorf("cannot parse trading pair %q", symbol)
	}
	return pair, nil
}

// resolveTimeframe 命令行未指定时使用配置中的周期
func resolveTimeframe(tf string) (timeframes.Timeframe, error) {
	if tf == "" {
		return config.AppConfig.GetTimeframe()
	}
	return timeframes.ParseTimeframe(tf)
}

// parseDateFlag 解析 YYYY-MM-DD 或 YYYY-MM-DD HH:MM:SS，空字符串返回零值
func parseDateFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD or YYYY-MM-DD HH:MM:SS)", s)
}

// barSource K线来源
type barSource struct {
	pair      cex.TradingPair
	timeframe timeframes.Timeframe
	dataFile  string
	start     time.Time
	end       time.Time
	resample  string
}

// load 从 CSV 或数据库(缺失部分从交易所补齐)读取K线，按时间范围过滤并可选重采样
func (s barSource) load(ctx context.Context) ([]*cex.KlineData, error) {
	var bars []*cex.KlineData
	var err error

	if s.dataFile != "" {
		bars, err = database.LoadCSV(s.dataFile, s.pair)
		if err != nil {
			return nil, err
		}
		bars = filterRange(bars, s.start, s.end)
	} else {
		if s.start.IsZero() {
			return nil, fmt.Errorf("start date is required when loading bars from the database")
		}
		end := s.end
		if end.IsZero() {
			end = time.Now().UTC()
		}

		db, err := database.NewPostgresDB(database.GlobalDatabaseConfig)
		if err != nil {
			return nil, err
		}
		defer db.Close()

		client, err := cex.CreateCEXClient(config.AppConfig.Trading.Exchange)
		if err != nil {
			return nil, err
		}

		km := database.NewKlineManager(db, client)
		bars, err = km.GetKlinesInRange(ctx, s.pair, s.timeframe, s.start, end)
		if err != nil {
			return nil, err
		}
	}

	if s.resample != "" {
		tf, err := timeframes.ParseTimeframe(s.resample)
		if err != nil {
			return nil, err
		}
		bars, err = timeframes.Resample(bars, tf)
		if err != nil {
			return nil, err
		}
	}
	return bars, nil
}

func filterRange(bars []*cex.KlineData, start, end time.Time) []*cex.KlineData {
	if start.IsZero() && end.IsZero() {
		return bars
	}
	out := make([]*cex.KlineData, 0, len(bars))
	for _, b := range bars {
		if !start.IsZero() && b.OpenTime.Before(start) {
			continue
		}
		if !end.IsZero() && b.OpenTime.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// newProvider 按名称创建信号源，oracle 使用配置中的大模型接口
func newProvider(name string, params *strategy.Params) (strategy.Provider, error) {
	var client oracle.Client
	if name == strategy.ProviderOracle {
		client = oracle.NewChatClient(oracle.ConfigValue)
	}
	return strategy.NewProvider(name, params, client)
}

// printResult 打印单次回测结果
func printResult(result *backtest.Result) {
	s := result.Statistics

	fmt.Println()
	fmt.Println("📊 回测结果")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("🔸 交易对: %s  信号源: %s\n", result.Symbol, result.Provider)
	if result.Bars > 0 {
		fmt.Printf("🔸 区间: %s ~ %s (%d 根K线)\n", formatTime(result.Start), formatTime(result.End), result.Bars)
	}
	fmt.Printf("💰 初始权益: %s  最终权益: %s\n", s.InitialEquity.StringFixed(2), s.FinalEquity.StringFixed(2))
	fmt.Printf("📈 总收益率: %s%%\n", s.TotalReturn.Mul(decimal.NewFromInt(100)).StringFixed(2))
	fmt.Printf("📉 最大回撤: %s%%\n", s.MaxDrawdown.Mul(decimal.NewFromInt(100)).StringFixed(2))
	fmt.Printf("🔢 交易笔数: %d (多 %d / 空 %d)  胜率: %.1f%%\n",
		s.TotalTrades, s.LongTrades, s.ShortTrades, s.WinRate.Float64()*100)
	fmt.Printf("⚖️  盈亏比: %s  期望: %s%%\n", s.ProfitFactor, s.Expectancy)
	fmt.Printf("📐 Sharpe: %s  Sortino: %s\n", s.SharpeRatio, s.SortinoRatio)
	fmt.Printf("💸 手续费合计: %s\n", s.TotalFees.StringFixed(4))
	fmt.Printf("⏱️  持仓时间占比: %.1f%%\n", s.TimeInMarket.Float64()*100)

	if len(s.ExitReasons) > 0 {
		fmt.Print("🚪 平仓原因:")
		for _, reason := range []backtest.ExitReason{
			backtest.ExitStop, backtest.ExitTarget, backtest.ExitTime, backtest.ExitSignalFlip, backtest.ExitFinalForceClose,
		} {
			if n := s.ExitReasons[reason]; n > 0 {
				fmt.Printf(" %s=%d", reason, n)
			}
		}
		fmt.Println()
	}

	if result.SignalErrors > 0 {
		fmt.Printf("⚠️ 信号源错误: %d / %d\n", result.SignalErrors, result.Signals)
	}
	if result.Liquidated {
		fmt.Printf("❌ 已爆仓: %s\n", formatTime(*result.LiquidatedAt))
	}
	fmt.Printf("🏁 结束原因: %s\n", result.Termination)
}

// formatTime 格式化时间
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04")
}

// formatPrice 格式化价格
func formatPrice(price decimal.Decimal) string {
	return price.StringFixed(2)
}

// formatVolume 格式化成交量
func formatVolume(volume decimal.Decimal) string {
	if volume.GreaterThan(decimal.NewFromFloat(1000)) {
		return volume.Div(decimal.NewFromFloat(1000)).StringFixed(1) + "K"
	}
	return volume.StringFixed(2)
}
