package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"tradingbot/src/backtest"
	"tradingbot/src/config"
	"tradingbot/src/database"
	"tradingbot/src/executor"

	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"
	"github.com/xpwu/go-log/log"
)

// backtestFlags 回测命令参数，零值表示使用配置文件
type backtestFlags struct {
	symbol    string
	timeframe string
	dataFile  string
	resample  string
	startDate string
	endDate   string
	provider  string
	params    string
	capital   float64
	leverage  float64
	slippage  float64
	mode      string
	tradesOut string
	jsonOut   string
	save      bool
	name      string
	paper     bool
}

// RegisterBacktestCmd 注册回测命令
func RegisterBacktestCmd() {
	var f backtestFlags

	cmd.RegisterCmd("backtest", "run a single backtest over historical bars", func(args *arg.Arg) {
		args.String(&f.symbol, "s", "trading symbol, e.g. BTCUSD or BTC/USDT (default: config trading.symbol)")
		args.String(&f.timeframe, "t", "bar timeframe (default: config trading.timeframe)")
		args.String(&f.dataFile, "data", "kline csv file (default: config backtest.data_file, empty = database)")
		args.String(&f.resample, "resample", "resample bars to this timeframe before running, e.g. 1d")
		args.String(&f.startDate, "start", "start date YYYY-MM-DD (default: config backtest.start_date)")
		args.String(&f.endDate, "end", "end date YYYY-MM-DD (default: config backtest.end_date)")
		args.String(&f.provider, "provider", "signal provider: sma_cross | oracle (default: config strategy.provider)")
		args.String(&f.params, "params", "provider overrides, e.g. 'fast=10,slow=40,stop=2'")
		args.Float64(&f.capital, "capital", "initial balance (default: config backtest.initial_balance)")
		args.Float64(&f.leverage, "leverage", "leverage (default: config backtest.leverage)")
		args.Float64(&f.slippage, "slippage", "absolute slippage offset (default: config backtest.slippage)")
		args.String(&f.mode, "mode", "position mode: single | multi (default: config backtest.position_mode)")
		args.String(&f.tradesOut, "trades", "write trade records to this csv file")
		args.String(&f.jsonOut, "json", "write the full result as json to this file")
		args.Bool(&f.save, "save", "save the run summary and trades to the database")
		args.String(&f.name, "name", "run name used when saving (default: provider name)")
		args.Bool(&f.paper, "paper", "hand every order intent to the paper executor and report the count")
		args.Parse()

		if err := runBacktest(f); err != nil {
			fmt.Printf("❌ 回测失败: %v\n", err)
			os.Exit(1)
		}
	})
}

// applyBacktestFlags 命令行参数覆盖配置
func applyBacktestFlags(conf *config.Config, f backtestFlags) error {
	if f.symbol != "" {
		conf.Trading.Symbol = f.symbol
	}
	if f.timeframe != "" {
		conf.Trading.Timeframe = f.timeframe
	}
	if f.dataFile != "" {
		conf.Backtest.DataFile = f.dataFile
	}
	if f.startDate != "" {
		conf.Backtest.StartDate = f.startDate
	}
	if f.endDate != "" {
		conf.Backtest.EndDate = f.endDate
	}
	if f.provider != "" {
		conf.Strategy.Provider = f.provider
	}
	if f.capital > 0 {
		conf.Backtest.InitialBalance = f.capital
	}
	if f.leverage > 0 {
		conf.Backtest.Leverage = f.leverage
	}
	if f.slippage > 0 {
		conf.Backtest.Slippage = f.slippage
	}
	if f.mode != "" {
		conf.Backtest.PositionMode = f.mode
	}
	if err := conf.ApplyStrategyOverrides(f.params); err != nil {
		return err
	}
	return conf.Validate()
}

func runBacktest(f backtestFlags) error {
	conf := *config.AppConfig
	if err := applyBacktestFlags(&conf, f); err != nil {
		return err
	}

	pair, err := conf.GetTradingPair()
	if err != nil {
		return err
	}
	tf, err := conf.GetTimeframe()
	if err != nil {
		return err
	}
	start, err := parseDateFlag(conf.Backtest.StartDate)
	if err != nil {
		return err
	}
	end, err := parseDateFlag(conf.Backtest.EndDate)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Backtest")

	fmt.Println("🤖 BTC/USD Backtest")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("📊 Trading Pair: %s\n", pair)
	fmt.Printf("⏰ Timeframe: %s\n", tf)
	fmt.Printf("🧠 Provider: %s\n", conf.Strategy.Provider)

	bars, err := barSource{
		pair:      pair,
		timeframe: tf,
		dataFile:  conf.Backtest.DataFile,
		start:     start,
		end:       end,
		resample:  f.resample,
	}.load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load bars: %w", err)
	}
	fmt.Printf("📥 Loaded %d bars\n", len(bars))

	provider, err := newProvider(conf.Strategy.Provider, conf.StrategyParams())
	if err != nil {
		return err
	}

	kernel := conf.BacktestConfig()
	var opts []backtest.Option
	var paper *executor.PaperExecutor
	if f.paper {
		paper = executor.NewPaperExecutor()
		opts = append(opts, backtest.WithExecutor(paper))
	}

	engine, err := backtest.NewEngine(kernel, provider, opts...)
	if err != nil {
		return err
	}
	fmt.Printf("💰 Initial Balance: $%s  Leverage: %sx\n", kernel.InitialBalance.StringFixed(2), kernel.Leverage)

	result, err := engine.Run(ctx, bars)
	if err != nil {
		return err
	}
	logger.Info(result.Summary())
	printResult(result)

	if paper != nil {
		fmt.Printf("🧾 Paper orders: %d (errors: %d)\n", len(paper.Orders()), result.OrderErrors)
	}

	if f.tradesOut != "" {
		if err := writeTrades(f.tradesOut, result.Trades); err != nil {
			return err
		}
		fmt.Printf("💾 Trades written to %s\n", f.tradesOut)
	}

	if f.jsonOut != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		if err := os.WriteFile(f.jsonOut, data, 0o644); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
		fmt.Printf("💾 Result written to %s\n", f.jsonOut)
	}

	if f.save {
		name := f.name
		if name == "" {
			name = provider.GetName()
		}
		runID, err := saveResult(ctx, name, string(tf), result)
		if err != nil {
			return err
		}
		fmt.Printf("💾 Saved run %s\n", runID)
	}

	if result.FinalEquity().LessThan(kernel.InitialBalance) {
		fmt.Printf("📉 Net loss: %s\n", result.FinalEquity().Sub(kernel.InitialBalance).StringFixed(2))
	} else {
		fmt.Printf("📈 Net gain: %s\n", result.FinalEquity().Sub(kernel.InitialBalance).StringFixed(2))
	}
	fmt.Println("✅ 回测完成!")
	return nil
}

func writeTrades(path string, trades []*backtest.TradeRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trades file: %w", err)
	}
	defer file.Close()
	return database.WriteTradesCSV(file, trades)
}

func saveResult(ctx context.Context, name, timeframe string, result *backtest.Result) (string, error) {
	db, err := database.NewPostgresDB(database.GlobalDatabaseConfig)
	if err != nil {
		return "", err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return "", err
	}
	return db.SaveResult(ctx, name, timeframe, result)
}

