package timeframes

import (
	"fmt"
	"time"
)

// Timeframe K线周期，与币安 interval 字符串一致
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe2h  Timeframe = "2h"
	Timeframe4h  Timeframe = "4h"
	Timeframe6h  Timeframe = "6h"
	Timeframe12h Timeframe = "12h"
	Timeframe1d  Timeframe = "1d"
	Timeframe1w  Timeframe = "1w"
	Timeframe1M  Timeframe = "1M" // 自然月
)

var durations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe30m: 30 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe2h:  2 * time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe6h:  6 * time.Hour,
	Timeframe12h: 12 * time.Hour,
	Timeframe1d:  24 * time.Hour,
	Timeframe1w:  7 * 24 * time.Hour,
	Timeframe1M:  30 * 24 * time.Hour, // 近似值
}

// ParseTimeframe 解析周期字符串
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := durations[tf]; !ok {
		return "", fmt.Errorf("invalid timeframe: %q", s)
	}
	return tf, nil
}

// GetDuration 周期对应的时长，1M 为30天近似值
func (tf Timeframe) GetDuration() (time.Duration, error) {
	d, ok := durations[tf]
	if !ok {
		return 0, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	return d, nil
}

// String 返回字符串表示
func (tf Timeframe) String() string {
	return string(tf)
}

// Truncate 返回 t 所在周期桶的起点(UTC)
func (tf Timeframe) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch tf {
	case Timeframe1M:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Timeframe1d:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	d, ok := durations[tf]
	if !ok {
		return t
	}
	return t.Truncate(d)
}

// BarsFor 覆盖时长 d 需要的最少K线根数
func (tf Timeframe) BarsFor(d time.Duration) (int, error) {
	step, err := tf.GetDuration()
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, nil
	}
	n := int(d / step)
	if d%step != 0 {
		n++
	}
	return n, nil
}
