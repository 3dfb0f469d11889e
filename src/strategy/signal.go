package strategy

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformedSignal 信号方向或百分比无法使用
var ErrMalformedSignal = errors.New("malformed signal")

// Direction 信号方向
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionFlat  Direction = "FLAT"
)

// IsValid 是否为已知方向
func (d Direction) IsValid() bool {
	switch d {
	case DirectionLong, DirectionShort, DirectionFlat:
		return true
	}
	return false
}

// Opposes 两个方向是否相反，FLAT 不与任何方向相反
func (d Direction) Opposes(other Direction) bool {
	return (d == DirectionLong && other == DirectionShort) || (d == DirectionShort && other == DirectionLong)
}

// Signal 一次评估产生的交易信号，StopPct/TargetPct 为百分数，0 表示不设置
type Signal struct {
	Direction Direction `json:"direction"`
	StopPct   float64   `json:"stop_pct"`
	TargetPct float64   `json:"target_pct"`
	Reason    string    `json:"reason,omitempty"` // 仅用于诊断
}

// Flat 构造空仓信号
func Flat(reason string) *Signal {
	return &Signal{Direction: DirectionFlat, Reason: reason}
}

// String 便于日志输出
func (s *Signal) String() string {
	if s == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s stop=%.2f%% target=%.2f%% (%s)", s.Direction, s.StopPct, s.TargetPct, s.Reason)
}

// Bounds 止损/止盈百分比的合法区间
type Bounds struct {
	StopMin   float64 `json:"stop_min"`
	StopMax   float64 `json:"stop_max"`
	TargetMin float64 `json:"target_min"`
	TargetMax float64 `json:"target_max"`
}

// DefaultBounds 止损 0.5%~10%，止盈 1%~20%
func DefaultBounds() Bounds {
	return Bounds{StopMin: 0.5, StopMax: 10, TargetMin: 1, TargetMax: 20}
}

// Validate 检查区间本身是否合理
func (b Bounds) Validate() error {
	if b.StopMin < 0 || b.StopMax < b.StopMin {
		return fmt.Errorf("invalid stop bounds [%g, %g]", b.StopMin, b.StopMax)
	}
	if b.TargetMin < 0 || b.TargetMax < b.TargetMin {
		return fmt.Errorf("invalid target bounds [%g, %g]", b.TargetMin, b.TargetMax)
	}
	return nil
}

// Sanitize 规整信号: 非法方向、NaN/Inf、负数一律降级为 FLAT 0/0 并返回 ErrMalformedSignal；
// 正值夹到区间内，0 保持为“不设置”。FLAT 信号的百分比总是清零。
func Sanitize(sig *Signal, b Bounds) (*Signal, error) {
	if sig == nil {
		return Flat("empty_signal"), fmt.Errorf("%w: nil signal", ErrMalformedSignal)
	}
	if !sig.Direction.IsValid() {
		return Flat("bad_direction"), fmt.Errorf("%w: direction %q", ErrMalformedSignal, sig.Direction)
	}
	if badPct(sig.StopPct) || badPct(sig.TargetPct) {
		return Flat("bad_pct"), fmt.Errorf("%w: stop=%v target=%v", ErrMalformedSignal, sig.StopPct, sig.TargetPct)
	}
	if sig.Direction == DirectionFlat {
		return Flat(sig.Reason), nil
	}

	return &Signal{
		Direction: sig.Direction,
		StopPct:   clampPct(sig.StopPct, b.StopMin, b.StopMax),
		TargetPct: clampPct(sig.TargetPct, b.TargetMin, b.TargetMax),
		Reason:    sig.Reason,
	}, nil
}

func badPct(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0) || v < 0
}

func clampPct(v, lo, hi float64) float64 {
	if v == 0 {
		return 0
	}
	return math.Min(math.Max(v, lo), hi)
}
