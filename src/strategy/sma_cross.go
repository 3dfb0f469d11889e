package strategy

import (
	"context"
	"fmt"

	"tradingbot/src/cex"
	"tradingbot/src/indicators"
)

// SMACross 快慢均线交叉信号: 上穿做多，下穿做空，其余空仓
type SMACross struct {
	fast      int
	slow      int
	stopPct   float64
	targetPct float64
}

var _ Provider = (*SMACross)(nil)

// NewSMACross 创建均线交叉信号源
func NewSMACross(p *Params) *SMACross {
	return &SMACross{
		fast:      p.Fast,
		slow:      p.Slow,
		stopPct:   p.StopPct,
		targetPct: p.TargetPct,
	}
}

// GetName 获取信号源名称
func (s *SMACross) GetName() string {
	return fmt.Sprintf("sma_cross_%d_%d", s.fast, s.slow)
}

// Lookback 判断交叉需要 slow+1 根K线
func (s *SMACross) Lookback() int {
	return s.slow + 1
}

// Evaluate 只看窗口最后一根是否发生交叉
func (s *SMACross) Evaluate(_ context.Context, window []*cex.KlineData) (*Signal, error) {
	if len(window) < s.Lookback() {
		return Flat("insufficient_history"), nil
	}

	cross, err := indicators.CrossoverAt(closes(window), s.fast, s.slow)
	if err != nil {
		return Flat("indicator_error"), err
	}

	switch cross {
	case indicators.CrossUp:
		return &Signal{Direction: DirectionLong, StopPct: s.stopPct, TargetPct: s.targetPct, Reason: "sma_cross_up"}, nil
	case indicators.CrossDown:
		return &Signal{Direction: DirectionShort, StopPct: s.stopPct, TargetPct: s.targetPct, Reason: "sma_cross_down"}, nil
	default:
		return Flat("no_cross"), nil
	}
}
