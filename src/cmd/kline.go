package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"tradingbot/src/cex"
	"tradingbot/src/config"
	"tradingbot/src/database"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"
)

// RegisterKlineCmd 注册K线数据命令
func RegisterKlineCmd() {
	var symbol string
	var interval string
	var limit int
	var verbose bool
	var sync bool
	var startDate string

	cmd.RegisterCmd("kline", "fetch klines from the exchange, or sync them into the database with -sync", func(args *arg.Arg) {
		args.String(&symbol, "s", "trading symbol (default: config trading.symbol)")
		args.String(&interval, "i", "kline interval (default: config trading.timeframe)")
		args.Int(&limit, "l", "number of klines (default: 10, max: 1000)")
		args.Bool(&verbose, "v", "verbose output with detailed information")
		args.Bool(&sync, "sync", "sync klines into the database incrementally")
		args.String(&startDate, "start", "first date to sync when the database is empty (YYYY-MM-DD)")
		args.Parse()

		// 设置默认值
		if limit <= 0 {
			limit = 10
		}
		if limit > 1000 {
			limit = 1000
		}

		var err error
		if sync {
			err = runKlineSync(symbol, interval, startDate)
		} else {
			err = runKlineTest(symbol, interval, limit, verbose)
		}
		if err != nil {
			fmt.Printf("❌ K线数据命令失败: %v\n", err)
			os.Exit(1)
		}
	})
}

// runKlineTest 获取最近的K线数据并展示
func runKlineTest(symbol, interval string, limit int, verbose bool) error {
	pair, err := resolvePair(symbol)
	if err != nil {
		return err
	}
	tf, err := resolveTimeframe(interval)
	if err != nil {
		return err
	}

	fmt.Printf("📊 K线数据获取测试\n")
	fmt.Printf("================================\n")
	fmt.Printf("🔸 交易对: %s\n", pair)
	fmt.Printf("🔸 时间周期: %s\n", tf)
	fmt.Printf("🔸 数据条数: %d\n", limit)
	fmt.Printf("🔸 交易所: %s\n", config.AppConfig.Trading.Exchange)
	fmt.Println()

	client, err := cex.CreateCEXClient(config.AppConfig.Trading.Exchange)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Print("🔄 正在获取K线数据...")
	startTime := time.Now()

	klines, err := client.GetKlines(ctx, pair, tf.String(), limit)
	if err != nil {
		fmt.Printf("\n❌ 获取失败: %v\n", err)
		return err
	}

	fmt.Printf(" 完成! (耗时: %v)\n", time.Since(startTime))

	if len(klines) == 0 {
		fmt.Println("⚠️ 未获取到数据")
		return nil
	}

	fmt.Printf("✅ 成功获取 %d 条K线数据\n\n", len(klines))

	latest := klines[len(klines)-1]
	fmt.Println("📈 数据概览:")
	fmt.Printf("├─ 最新时间: %s\n", formatTime(latest.OpenTime))
	fmt.Printf("├─ 最早时间: %s\n", formatTime(klines[0].OpenTime))
	fmt.Printf("├─ 最新价格: %s %s\n", latest.Close.String(), pair.Quote)
	fmt.Printf("└─ 最新成交量: %s %s\n", latest.Volume.String(), pair.Base)
	fmt.Println()

	if err := cex.ValidateSeries(klines); err != nil {
		fmt.Printf("⚠️ 数据校验未通过: %v\n", err)
	}

	if verbose {
		fmt.Println("📋 详细K线数据 (最近5条):")
		fmt.Println("时间              | 开盘价    | 最高价    | 最低价    | 收盘价    | 成交量")
		fmt.Println("------------------|----------|----------|----------|----------|----------")

		displayCount := 5
		if len(klines) < 5 {
			displayCount = len(klines)
		}

		for i := len(klines) - displayCount; i < len(klines); i++ {
			kline := klines[i]
			fmt.Printf("%s | %8s | %8s | %8s | %8s | %8s\n",
				formatTime(kline.OpenTime),
				formatPrice(kline.Open),
				formatPrice(kline.High),
				formatPrice(kline.Low),
				formatPrice(kline.Close),
				formatVolume(kline.Volume),
			)
		}
		fmt.Println()

		if len(klines) >= 2 {
			previous := klines[len(klines)-2]

			priceChange := latest.Close.Sub(previous.Close)
			priceChangePercent := priceChange.Div(previous.Close).Mul(decimal.NewFromFloat(100))

			fmt.Println("📊 价格变化:")
			fmt.Printf("├─ 价格变化: %s %s\n", priceChange.String(), pair.Quote)
			fmt.Printf("├─ 变化幅度: %s%%\n", priceChangePercent.StringFixed(2))

			if priceChange.IsPositive() {
				fmt.Printf("└─ 趋势: 📈 上涨\n")
			} else if priceChange.IsNegative() {
				fmt.Printf("└─ 趋势: 📉 下跌\n")
			} else {
				fmt.Printf("└─ 趋势: ➡️ 平盘\n")
			}
		}
	}

	fmt.Println("\n✅ K线数据测试完成!")
	return nil
}

// runKlineSync 把交易所K线增量同步到数据库
func runKlineSync(symbol, interval, startDate string) error {
	pair, err := resolvePair(symbol)
	if err != nil {
		return err
	}
	tf, err := resolveTimeframe(interval)
	if err != nil {
		return err
	}
	start, err := parseDateFlag(startDate)
	if err != nil {
		return err
	}
	if start.IsZero() {
		if start, err = config.AppConfig.GetStartTime(); err != nil {
			return err
		}
	}
	if start.IsZero() {
		start = time.Now().UTC().AddDate(0, -1, 0)
	}

	client, err := cex.CreateCEXClient(config.AppConfig.Trading.Exchange)
	if err != nil {
		return err
	}
	db, err := database.NewPostgresDB(database.GlobalDatabaseConfig)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	fmt.Printf("🔄 同步 %s %s K线 (起点 %s)...\n", pair, tf, formatTime(start))
	n, err := database.NewKlineManager(db, client).Sync(ctx, pair, tf, start, time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Printf("✅ 新增 %d 条K线\n", n)
	return nil
}
