package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tradingbot/src/cex"
	"tradingbot/src/timeframes"

	"github.com/xpwu/go-log/log"
)

// KlineManager K线数据管理器: 优先读数据库，缺失部分从交易所补齐并写回
type KlineManager struct {
	db     *PostgresDB
	client cex.CEXClient
}

// NewKlineManager 创建K线数据管理器
func NewKlineManager(db *PostgresDB, client cex.CEXClient) *KlineManager {
	return &KlineManager{
		db:     db,
		client: client,
	}
}

// TimeRange 时间范围，两端都包含
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// GetKlinesInRange 获取指定时间范围的K线数据
func (km *KlineManager) GetKlinesInRange(ctx context.Context, pair cex.TradingPair, tf timeframes.Timeframe, startTime, endTime time.Time) ([]*cex.KlineData, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("KlineManager")

	interval, err := tf.GetDuration()
	if err != nil {
		return nil, err
	}

	logger.Debug("获取时间范围K线数据",
		"symbol", pair.Symbol(),
		"timeframe", tf.String(),
		"start", startTime.Format("2006-01-02 15:04"),
		"end", endTime.Format("2006-01-02 15:04"))

	// 1. 从数据库获取范围内的数据
	dbKlines, err := km.db.GetKlines(ctx, pair, tf.String(), startTime, endTime, 0)
	if err != nil {
		logger.Error("从数据库获取范围K线数据失败", "error", err)
	}

	// 2. 检查数据完整性
	missing := FindMissingRanges(dbKlines, startTime, endTime, interval)
	if len(missing) == 0 {
		logger.Info("数据库数据完整", "count", len(dbKlines))
		return dbKlines, nil
	}

	// 3. 补充缺失的数据
	logger.Info("发现缺失数据段", "missing_ranges", len(missing))

	var fetched []*cex.KlineData
	for _, r := range missing {
		newKlines, err := km.client.GetKlinesWithTimeRange(ctx, pair, tf.String(), r.Start, r.End, 0)
		if err != nil {
			logger.Error("获取缺失数据失败", "error", err)
			continue
		}
		fetched = append(fetched, newKlines...)
	}

	if len(fetched) == 0 {
		if len(dbKlines) == 0 {
			return nil, fmt.Errorf("no klines available for %s %s", pair.Symbol(), tf)
		}
		return dbKlines, nil
	}

	if err := km.db.SaveKlinesBatch(ctx, pair.Symbol(), tf.String(), fetched); err != nil {
		logger.Error("批量保存缺失数据失败", "error", err)
	} else {
		logger.Info("批量保存缺失数据", "count", len(fetched))
	}

	merged := MergeKlines(dbKlines, fetched)
	logger.Info("获取完整K线数据", "total_count", len(merged))
	return merged, nil
}

// Sync 从数据库中最新一根K线之后增量拉取到 endTime，返回新增条数
func (km *KlineManager) Sync(ctx context.Context, pair cex.TradingPair, tf timeframes.Timeframe, defaultStart, endTime time.Time) (int, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("KlineManager")

	interval, err := tf.GetDuration()
	if err != nil {
		return 0, err
	}

	latest, err := km.db.GetLatestKlineTime(ctx, pair.Symbol(), tf.String())
	if err != nil {
		return 0, err
	}

	start := defaultStart
	if !latest.IsZero() {
		start = latest.Add(interval)
	}
	if !start.Before(endTime) {
		logger.Info("数据已是最新", "symbol", pair.Symbol(), "latest", latest.Format("2006-01-02 15:04"))
		return 0, nil
	}

	klines, err := km.client.GetKlinesWithTimeRange(ctx, pair, tf.String(), start, endTime, 0)
	if err != nil {
		_ = km.db.UpdateSyncStatus(ctx, pair.Symbol(), tf.String(), latest, 0, "failed", err.Error())
		return 0, fmt.Errorf("failed to fetch klines: %w", err)
	}
	if err := cex.ValidateSeries(klines); err != nil {
		return 0, err
	}

	if err := km.db.SaveKlinesBatch(ctx, pair.Symbol(), tf.String(), klines); err != nil {
		return 0, err
	}

	if len(klines) > 0 {
		latest = klines[len(klines)-1].OpenTime
	}
	if err := km.db.UpdateSyncStatus(ctx, pair.Symbol(), tf.String(), latest, len(klines), "ok", ""); err != nil {
		logger.Error("更新同步状态失败", "error", err)
	}

	logger.Info("同步完成", "symbol", pair.Symbol(), "count", len(klines))
	return len(klines), nil
}

// MergeKlines 按开盘时间合并去重，后者覆盖前者，结果升序
func MergeKlines(base, overlay []*cex.KlineData) []*cex.KlineData {
	byTime := make(map[int64]*cex.KlineData, len(base)+len(overlay))
	for _, k := range base {
		byTime[k.OpenTime.UnixMilli()] = k
	}
	for _, k := range overlay {
		byTime[k.OpenTime.UnixMilli()] = k
	}

	result := make([]*cex.KlineData, 0, len(byTime))
	for _, k := range byTime {
		result = append(result, k)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].OpenTime.Before(result[j].OpenTime)
	})
	return result
}

// FindMissingRanges 查找 [startTime, endTime] 内按 interval 应有但缺失的区间
func FindMissingRanges(klines []*cex.KlineData, startTime, endTime time.Time, interval time.Duration) []TimeRange {
	if len(klines) == 0 {
		return []TimeRange{{Start: startTime, End: endTime}}
	}
	if interval <= 0 {
		return nil
	}

	var missing []TimeRange

	// 开始时间之前
	if first := klines[0].OpenTime; first.Sub(startTime) >= interval {
		missing = append(missing, TimeRange{Start: startTime, End: first.Add(-interval)})
	}

	// 中间的缺口
	for i := 0; i < len(klines)-1; i++ {
		expectedNext := klines[i].OpenTime.Add(interval)
		if klines[i+1].OpenTime.After(expectedNext) {
			missing = append(missing, TimeRange{
				Start: expectedNext,
				End:   klines[i+1].OpenTime.Add(-interval),
			})
		}
	}

	// 结束时间之后
	if last := klines[len(klines)-1].OpenTime; endTime.Sub(last) >= interval {
		missing = append(missing, TimeRange{Start: last.Add(interval), End: endTime})
	}

	return missing
}
