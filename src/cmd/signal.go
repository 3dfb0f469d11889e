package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"tradingbot/src/backtest"
	"tradingbot/src/cex"
	"tradingbot/src/config"
	"tradingbot/src/executor"
	"tradingbot/src/strategy"

	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"
	"github.com/xpwu/go-log/log"
)

// RegisterSignalCmd 注册信号评估命令
func RegisterSignalCmd() {
	var symbol string
	var interval string
	var provider string
	var params string
	var balance float64
	var live bool

	cmd.RegisterCmd("signal", "evaluate the provider once on the latest closed bars and hand the order intent to an executor", func(args *arg.Arg) {
		args.String(&symbol, "s", "trading symbol (default: config trading.symbol)")
		args.String(&interval, "i", "kline interval (default: config trading.timeframe)")
		args.String(&provider, "provider", "signal provider: sma_cross | oracle (default: config strategy.provider)")
		args.String(&params, "params", "provider overrides, e.g. 'fast=10,slow=40'")
		args.Float64(&balance, "balance", "balance used for sizing (default: config backtest.initial_balance)")
		args.Bool(&live, "live", "submit a real market order (requires trading.mode=live)")
		args.Parse()

		conf := *config.AppConfig
		if symbol != "" {
			conf.Trading.Symbol = symbol
		}
		if interval != "" {
			conf.Trading.Timeframe = interval
		}
		if provider != "" {
			conf.Strategy.Provider = provider
		}
		if balance > 0 {
			conf.Backtest.InitialBalance = balance
		}

		if err := runSignal(&conf, params, live); err != nil {
			fmt.Printf("❌ 信号评估失败: %v\n", err)
			os.Exit(1)
		}
	})
}

func runSignal(conf *config.Config, params string, live bool) error {
	if err := conf.ApplyStrategyOverrides(params); err != nil {
		return err
	}
	if err := conf.Validate(); err != nil {
		return err
	}
	if live && !conf.IsLiveMode() {
		return fmt.Errorf("-live requires trading.mode=live in the config file")
	}

	pair, err := conf.GetTradingPair()
	if err != nil {
		return err
	}
	tf, err := conf.GetTimeframe()
	if err != nil {
		return err
	}

	provider, err := newProvider(conf.Strategy.Provider, conf.StrategyParams())
	if err != nil {
		return err
	}
	kernel := conf.BacktestConfig()
	engine, err := backtest.NewEngine(kernel, provider)
	if err != nil {
		return err
	}

	client, err := cex.CreateCEXClient(conf.Trading.Exchange)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Signal")

	// 多取一根，最后一根可能尚未收盘
	bars, err := client.GetKlines(ctx, pair, tf.String(), engine.Lookback()+1)
	if err != nil {
		return fmt.Errorf("failed to fetch klines: %w", err)
	}
	window := closedWindow(bars, engine.Lookback(), time.Now())
	if window == nil {
		return fmt.Errorf("need %d closed bars, got %d", engine.Lookback(), len(bars))
	}
	if err := cex.ValidateSeries(window); err != nil {
		return err
	}
	last := window[len(window)-1]

	fmt.Println("🔮 Signal Evaluation")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("📊 %s %s  provider=%s  bars=%d\n", pair, tf, provider.GetName(), len(window))
	fmt.Printf("🕐 Last closed bar: %s close=%s\n", formatTime(last.OpenTime), formatPrice(last.Close))

	sig, evalErr := provider.Evaluate(ctx, window)
	if evalErr != nil {
		logger.Error("信号源评估失败", "error", evalErr)
	}
	sig, sanitizeErr := strategy.Sanitize(sig, kernel.Bounds)
	if sanitizeErr != nil {
		logger.Error("信号不合法", "error", sanitizeErr)
	}

	fmt.Printf("🧭 Direction: %s  stop=%g%%  target=%g%%  reason=%s\n", sig.Direction, sig.StopPct, sig.TargetPct, sig.Reason)
	if sig.Direction == strategy.DirectionFlat {
		fmt.Println("➡️ 无交易")
		return nil
	}

	intent, err := openIntent(kernel, pair, sig, last, time.Now().UTC())
	if err != nil {
		return err
	}

	var exec executor.Executor = executor.NewPaperExecutor()
	if live {
		exec = executor.NewLiveExecutor(client, pair).WithLotSize(conf.LotSize(pair))
		fmt.Println("🔴 Live mode: this will place a real market order!")
	}
	defer exec.Close()

	fmt.Printf("🧾 Intent: %s %s %s @ ~%s (%s)\n", intent.Side, intent.Quantity.StringFixed(6), pair.Base, formatPrice(intent.Price), exec.GetName())
	res, err := exec.Submit(ctx, intent)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Order %s accepted: quantity=%s\n", res.OrderID, res.Quantity)
	return nil
}

// closedWindow 去掉尚未收盘的K线后取最后 lookback 根，不足时返回 nil
func closedWindow(bars []*cex.KlineData, lookback int, now time.Time) []*cex.KlineData {
	if n := len(bars); n > 0 && !bars[n-1].CloseTime.IsZero() && bars[n-1].CloseTime.After(now) {
		bars = bars[:n-1]
	}
	if len(bars) < lookback {
		return nil
	}
	return bars[len(bars)-lookback:]
}

// openIntent 按回测相同的仓位规则计算开仓数量，生成订单意图
func openIntent(kernel backtest.Config, pair cex.TradingPair, sig *strategy.Signal, last *cex.KlineData, at time.Time) (*executor.Intent, error) {
	tracker := backtest.NewTracker(kernel, backtest.NewAccount(kernel.InitialBalance))
	price := backtest.NewExitEvaluator(kernel.Slippage, 0).EntryPrice(sig.Direction, last.Close)

	pos, err := tracker.Open(sig.Direction, price, last.OpenTime, sig)
	if err != nil {
		return nil, err
	}
	if pos.Size.IsZero() {
		return nil, fmt.Errorf("position size is zero at price %s", price)
	}
	return executor.NewOpenIntent(pos.ID, pair, pos.Side, pos.Size, pos.EntryPrice, at, sig.Reason), nil
}
