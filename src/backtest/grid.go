package backtest

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"tradingbot/src/cex"
	"tradingbot/src/strategy"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"
	"golang.org/x/sync/errgroup"
)

// GridSpec 参数扫描空间: 快慢均线取 2 的幂，与止损、止盈、杠杆做笛卡尔积
type GridSpec struct {
	FastExponents []int             `json:"fast_exponents"`
	SlowExponents []int             `json:"slow_exponents"`
	StopPcts      []float64         `json:"stop_pcts"`
	TargetPcts    []float64         `json:"target_pcts"`
	Leverages     []decimal.Decimal `json:"leverages"`
}

// GridPoint 扫描中的一组参数
type GridPoint struct {
	Fast      int             `json:"fast"`
	Slow      int             `json:"slow"`
	StopPct   float64         `json:"stop_pct"`
	TargetPct float64         `json:"target_pct"`
	Leverage  decimal.Decimal `json:"leverage"`
}

// String 便于日志输出
func (p GridPoint) String() string {
	return fmt.Sprintf("fast=%d slow=%d stop=%g target=%g lev=%s", p.Fast, p.Slow, p.StopPct, p.TargetPct, p.Leverage)
}

// GridResult 单组参数的回测结果，Err 非空时 Result 为 nil
type GridResult struct {
	Point  GridPoint `json:"point"`
	Result *Result   `json:"result,omitempty"`
	Err    string    `json:"error,omitempty"`
}

// ProviderFactory 按参数组创建信号源
type ProviderFactory func(p GridPoint) (strategy.Provider, error)

// Exponents 返回 0..n 的指数列表
func Exponents(n int) []int {
	out := make([]int, 0, n+1)
	for i := 0; i <= n; i++ {
		out = append(out, i)
	}
	return out
}

// Points 展开参数组合，跳过 fast >= slow；空列表按单个默认值处理
func (g GridSpec) Points() []GridPoint {
	stops := g.StopPcts
	if len(stops) == 0 {
		stops = []float64{0}
	}
	targets := g.TargetPcts
	if len(targets) == 0 {
		targets = []float64{0}
	}
	leverages := g.Leverages
	if len(leverages) == 0 {
		leverages = []decimal.Decimal{decimal.NewFromInt(1)}
	}

	var points []GridPoint
	for _, fe := range g.FastExponents {
		for _, se := range g.SlowExponents {
			fast, slow := 1<<fe, 1<<se
			if fast >= slow {
				continue
			}
			for _, stop := range stops {
				for _, target := range targets {
					for _, lev := range leverages {
						points = append(points, GridPoint{
							Fast:      fast,
							Slow:      slow,
							StopPct:   stop,
							TargetPct: target,
							Leverage:  lev,
						})
					}
				}
			}
		}
	}
	return points
}

// SMACrossFactory 以 base 为模板为每组参数创建均线交叉信号源
func SMACrossFactory(base *strategy.Params) ProviderFactory {
	return func(p GridPoint) (strategy.Provider, error) {
		params := *base
		params.Fast = p.Fast
		params.Slow = p.Slow
		params.StopPct = p.StopPct
		params.TargetPct = p.TargetPct
		return strategy.NewProvider(strategy.ProviderSMACross, &params, nil)
	}
}

// RunGrid 并行运行所有参数组合。每次运行拥有独立状态，K线序列只读共享。
// 单组参数失败记录在对应结果里，不影响其他组合；结果顺序与 Points() 一致。
func RunGrid(ctx context.Context, bars []*cex.KlineData, spec GridSpec, base Config, factory ProviderFactory, workers int) ([]*GridResult, error) {
	if err := cex.ValidateSeries(bars); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("GridScan")

	points := spec.Points()
	logger.Info(fmt.Sprintf("参数扫描: %d 组参数, %d 根K线, workers=%d", len(points), len(bars), workers))

	results := make([]*GridResult, len(points))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, point := range points {
		i, point := i, point
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = runPoint(gctx, bars, point, base, factory)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("grid scan aborted: %w", err)
	}

	failed := 0
	for _, r := range results {
		if r.Err != "" {
			failed++
		}
	}
	logger.Info(fmt.Sprintf("参数扫描完成: %d 组成功, %d 组失败", len(results)-failed, failed))
	return results, nil
}

func runPoint(ctx context.Context, bars []*cex.KlineData, point GridPoint, base Config, factory ProviderFactory) *GridResult {
	out := &GridResult{Point: point}

	provider, err := factory(point)
	if err != nil {
		out.Err = err.Error()
		return out
	}

	cfg := base
	cfg.Leverage = point.Leverage
	engine, err := NewEngine(cfg, provider)
	if err != nil {
		out.Err = err.Error()
		return out
	}

	result, err := engine.Run(ctx, bars)
	if err != nil {
		out.Err = err.Error()
		return out
	}
	out.Result = result
	return out
}

// Survivors 去掉失败、爆仓以及交易笔数不足 minTrades 的结果
func Survivors(results []*GridResult, minTrades int) []*GridResult {
	var out []*GridResult
	for _, r := range results {
		if r == nil || r.Err != "" || r.Result == nil {
			continue
		}
		if r.Result.Liquidated || r.Result.Statistics.TotalTrades < minTrades {
			continue
		}
		out = append(out, r)
	}
	return out
}

// SortBySharpe 按夏普比率降序，相同时按最终权益降序
func SortBySharpe(results []*GridResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].Result.Statistics, results[j].Result.Statistics
		if a.SharpeRatio != b.SharpeRatio {
			return a.SharpeRatio > b.SharpeRatio
		}
		return a.FinalEquity.GreaterThan(b.FinalEquity)
	})
}

// SortByFinalEquity 按最终权益降序
func SortByFinalEquity(results []*GridResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Result.Statistics.FinalEquity.GreaterThan(results[j].Result.Statistics.FinalEquity)
	})
}
