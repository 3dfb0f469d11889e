package indicators

import (
	"github.com/shopspring/decimal"
)

// Cross 均线交叉方向
type Cross int

const (
	CrossNone Cross = iota
	CrossUp         // 快线上穿慢线
	CrossDown       // 快线下穿慢线
)

// String 返回交叉方向的名称
func (c Cross) String() string {
	switch c {
	case CrossUp:
		return "up"
	case CrossDown:
		return "down"
	default:
		return "none"
	}
}

// SMA 最近 period 个值的简单移动平均
func SMA(values []decimal.Decimal, period int) (decimal.Decimal, error) {
	if period <= 0 {
		return decimal.Zero, ErrInvalidPeriod
	}
	if len(values) < period {
		return decimal.Zero, ErrInsufficientData
	}

	sum := decimal.Zero
	for _, v := range values[len(values)-period:] {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(period))), nil
}

// SMASeries 滚动均线，结果与 values 等长，前 period-1 个位置为零值
func SMASeries(values []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(values) < period {
		return nil, ErrInsufficientData
	}

	out := make([]decimal.Decimal, len(values))
	n := decimal.NewFromInt(int64(period))
	sum := decimal.Zero
	for i, v := range values {
		sum = sum.Add(v)
		if i >= period {
			sum = sum.Sub(values[i-period])
		}
		if i >= period-1 {
			out[i] = sum.Div(n)
		}
	}
	return out, nil
}

// Crossover 比较前后两个时点的快慢线关系
func Crossover(prevFast, prevSlow, fast, slow decimal.Decimal) Cross {
	switch {
	case prevFast.LessThanOrEqual(prevSlow) && fast.GreaterThan(slow):
		return CrossUp
	case prevFast.GreaterThanOrEqual(prevSlow) && fast.LessThan(slow):
		return CrossDown
	default:
		return CrossNone
	}
}

// CrossoverAt 用收盘价序列判断最后一根是否出现 fast/slow 交叉，需要 slow+1 个值
func CrossoverAt(closes []decimal.Decimal, fast, slow int) (Cross, error) {
	if fast <= 0 || slow <= 0 {
		return CrossNone, ErrInvalidPeriod
	}
	if len(closes) < slow+1 || len(closes) < fast+1 {
		return CrossNone, ErrInsufficientData
	}

	prev := closes[:len(closes)-1]
	prevFast, _ := SMA(prev, fast)
	prevSlow, _ := SMA(prev, slow)
	curFast, _ := SMA(closes, fast)
	curSlow, _ := SMA(closes, slow)

	return Crossover(prevFast, prevSlow, curFast, curSlow), nil
}

// Proximity |a-b|/|b|，用于均线贴合度判断
func Proximity(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrZeroReference
	}
	return a.Sub(b).Abs().Div(b.Abs()), nil
}
