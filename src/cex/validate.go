package cex

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidBar K线价格关系不成立
	ErrInvalidBar = errors.New("invalid bar")

	// ErrNonMonotonicBars K线时间戳不是严格递增
	ErrNonMonotonicBars = errors.New("bar timestamps are not strictly increasing")
)

// ValidateKline 检查单根K线: 价格为正, high >= max(open, close), low <= min(open, close)
func ValidateKline(k *KlineData) error {
	if k == nil {
		return fmt.Errorf("%w: nil bar", ErrInvalidBar)
	}
	if k.OpenTime.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidBar)
	}
	if !k.Open.IsPositive() || !k.High.IsPositive() || !k.Low.IsPositive() || !k.Close.IsPositive() {
		return fmt.Errorf("%w: non-positive price at %s", ErrInvalidBar, k.OpenTime.UTC().Format("2006-01-02 15:04"))
	}
	if k.Volume.IsNegative() {
		return fmt.Errorf("%w: negative volume at %s", ErrInvalidBar, k.OpenTime.UTC().Format("2006-01-02 15:04"))
	}
	if k.High.LessThan(k.Open) || k.High.LessThan(k.Close) || k.High.LessThan(k.Low) {
		return fmt.Errorf("%w: high %s below open/close at %s", ErrInvalidBar, k.High, k.OpenTime.UTC().Format("2006-01-02 15:04"))
	}
	if k.Low.GreaterThan(k.Open) || k.Low.GreaterThan(k.Close) {
		return fmt.Errorf("%w: low %s above open/close at %s", ErrInvalidBar, k.Low, k.OpenTime.UTC().Format("2006-01-02 15:04"))
	}
	return nil
}

// ValidateSeries 检查整段序列，间隔可以不固定
func ValidateSeries(bars []*KlineData) error {
	for i, bar := range bars {
		if err := ValidateKline(bar); err != nil {
			return fmt.Errorf("bar %d: %w", i, err)
		}
		if i > 0 && !bar.OpenTime.After(bars[i-1].OpenTime) {
			return fmt.Errorf("bar %d (%s): %w", i, bar.OpenTime.UTC().Format("2006-01-02 15:04"), ErrNonMonotonicBars)
		}
	}
	return nil
}
