package strategy

import (
	"tradingbot/src/cex"
	"tradingbot/src/indicators"

	"github.com/shopspring/decimal"
)

// Preselect 均线贴合度预筛选: |SMA(fast) - SMA(slow)| / SMA(slow) <= threshold 才放行
type Preselect struct {
	Fast      int
	Slow      int
	Threshold decimal.Decimal
}

// NewPreselect 创建预筛选器，threshold 为比例(0.001 = 0.1%)
func NewPreselect(fast, slow int, threshold float64) *Preselect {
	return &Preselect{Fast: fast, Slow: slow, Threshold: decimal.NewFromFloat(threshold)}
}

// Pass 返回是否放行以及当前贴合度，历史不足时不放行
func (p *Preselect) Pass(window []*cex.KlineData) (bool, decimal.Decimal, error) {
	values := closes(window)

	fast, err := indicators.SMA(values, p.Fast)
	if err != nil {
		return false, decimal.Zero, err
	}
	slow, err := indicators.SMA(values, p.Slow)
	if err != nil {
		return false, decimal.Zero, err
	}

	gap, err := indicators.Proximity(fast, slow)
	if err != nil {
		return false, decimal.Zero, err
	}
	return gap.LessThanOrEqual(p.Threshold), gap, nil
}
