package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"tradingbot/src/backtest"
	"tradingbot/src/config"
	"tradingbot/src/database"

	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"
)

// RegisterGridCmd 注册参数扫描命令
func RegisterGridCmd() {
	var f backtestFlags
	var workers int
	var minTrades int
	var top int
	var sortBy string
	var out string

	cmd.RegisterCmd("grid", "scan SMA cross parameters in parallel and rank the survivors", func(args *arg.Arg) {
		args.String(&f.symbol, "s", "trading symbol (default: config trading.symbol)")
		args.String(&f.timeframe, "t", "bar timeframe (default: config trading.timeframe)")
		args.String(&f.dataFile, "data", "kline csv file (default: config backtest.data_file, empty = database)")
		args.String(&f.resample, "resample", "resample bars to this timeframe before scanning, e.g. 1d")
		args.String(&f.startDate, "start", "start date YYYY-MM-DD")
		args.String(&f.endDate, "end", "end date YYYY-MM-DD")
		args.Float64(&f.capital, "capital", "initial balance (default: config backtest.initial_balance)")
		args.Int(&workers, "workers", "parallel runs (default: config grid.workers, 0 = CPU count)")
		args.Int(&minTrades, "min-trades", "minimum closed trades for a run to be ranked (default: config grid.min_trades)")
		args.Int(&top, "top", "number of ranked runs to print (default: 10)")
		args.String(&sortBy, "sort", "ranking key: sharpe | equity (default: config grid.sort_by)")
		args.String(&out, "out", "write every grid point to this csv file")
		args.Bool(&f.save, "save", "save every grid point to the database")
		args.Parse()

		if top <= 0 {
			top = 10
		}

		conf := *config.AppConfig
		if workers > 0 {
			conf.Grid.Workers = workers
		}
		if minTrades > 0 {
			conf.Grid.MinTrades = minTrades
		}
		if sortBy != "" {
			conf.Grid.SortBy = sortBy
		}

		if err := runGrid(&conf, f, top, out); err != nil {
			fmt.Printf("❌ 参数扫描失败: %v\n", err)
			os.Exit(1)
		}
	})
}

func runGrid(conf *config.Config, f backtestFlags, top int, out string) error {
	if err := applyBacktestFlags(conf, f); err != nil {
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

	spec := conf.GridSpec()
	fmt.Println("🔬 SMA Cross Parameter Scan")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("📊 %s %s, %d bars, %d grid points\n", pair, tf, len(bars), len(spec.Points()))

	results, err := backtest.RunGrid(ctx, bars, spec, conf.BacktestConfig(), backtest.SMACrossFactory(conf.StrategyParams()), conf.Grid.Workers)
	if err != nil {
		return err
	}

	if out != "" {
		file, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create grid file: %w", err)
		}
		defer file.Close()
		if err := database.WriteGridCSV(file, results); err != nil {
			return err
		}
		fmt.Printf("💾 Grid written to %s\n", out)
	}

	if f.save {
		db, err := database.NewPostgresDB(database.GlobalDatabaseConfig)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		scanID, err := db.SaveGridResults(ctx, results)
		if err != nil {
			return err
		}
		fmt.Printf("💾 Saved scan %s\n", scanID)
	}

	survivors := backtest.Survivors(results, conf.Grid.MinTrades)
	if conf.Grid.SortBy == "equity" {
		backtest.SortByFinalEquity(survivors)
	} else {
		backtest.SortBySharpe(survivors)
	}

	fmt.Printf("✅ %d / %d runs survived (min trades %d, not liquidated)\n", len(survivors), len(results), conf.Grid.MinTrades)
	if len(survivors) == 0 {
		fmt.Println("⚠️ 没有满足条件的参数组合")
		return nil
	}

	fmt.Println()
	fmt.Println("排名 | 参数                                         | 交易 | Sharpe | 回撤%  | 最终权益")
	fmt.Println("-----|----------------------------------------------|------|--------|--------|----------")
	for i, r := range survivors {
		if i >= top {
			break
		}
		s := r.Result.Statistics
		fmt.Printf("%4d | %-44s | %4d | %6s | %6s | %s\n",
			i+1, r.Point, s.TotalTrades, s.SharpeRatio,
			s.MaxDrawdown.Shift(2).StringFixed(2), s.FinalEquity.StringFixed(2))
	}
	return nil
}
