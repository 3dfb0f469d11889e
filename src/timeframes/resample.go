package timeframes

import (
	"fmt"

	"tradingbot/src/cex"
)

// Resample 把升序K线按 tf 的周期桶聚合: 开盘取第一根，收盘取最后一根，
// 最高/最低取极值，成交量累加。桶的时间戳为周期起点(UTC)，最后一个桶可能不完整。
func Resample(bars []*cex.KlineData, tf Timeframe) ([]*cex.KlineData, error) {
	if _, err := tf.GetDuration(); err != nil {
		return nil, err
	}

	var out []*cex.KlineData
	var cur *cex.KlineData
	for i, bar := range bars {
		if i > 0 && !bar.OpenTime.After(bars[i-1].OpenTime) {
			return nil, fmt.Errorf("bar %d: %w", i, cex.ErrNonMonotonicBars)
		}

		bucket := tf.Truncate(bar.OpenTime)
		if cur == nil || !cur.OpenTime.Equal(bucket) {
			cur = &cex.KlineData{
				TradingPair: bar.TradingPair,
				OpenTime:    bucket,
				Open:        bar.Open,
				High:        bar.High,
				Low:         bar.Low,
				Close:       bar.Close,
				Volume:      bar.Volume,
				CloseTime:   bar.CloseTime,
				QuoteVolume: bar.QuoteVolume,
			}
			out = append(out, cur)
			continue
		}

		if bar.High.GreaterThan(cur.High) {
			cur.High = bar.High
		}
		if bar.Low.LessThan(cur.Low) {
			cur.Low = bar.Low
		}
		cur.Close = bar.Close
		cur.Volume = cur.Volume.Add(bar.Volume)
		cur.QuoteVolume = cur.QuoteVolume.Add(bar.QuoteVolume)
		cur.CloseTime = bar.CloseTime
	}
	return out, nil
}
