package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidParams 策略参数不合法
var ErrInvalidParams = errors.New("invalid strategy params")

// Params 信号源参数
type Params struct {
	Fast      int     // 快线周期，默认20
	Slow      int     // 慢线周期，默认50
	StopPct   float64 // 均线信号附带的止损百分比，0 表示不止损
	TargetPct float64 // 均线信号附带的止盈百分比，0 表示不止盈
	Proximity float64 // 预筛选阈值 |fast-slow|/slow，0 表示不过滤
	Lookback  int     // oracle 使用的窗口长度，默认50
	Bounds    Bounds
}

// GetDefaultParams 获取默认参数
func GetDefaultParams() *Params {
	return &Params{
		Fast:      20,
		Slow:      50,
		StopPct:   0,
		TargetPct: 0,
		Proximity: 0.001, // 0.1%
		Lookback:  50,
		Bounds:    DefaultBounds(),
	}
}

// Validate 验证参数有效性
func (p *Params) Validate() error {
	if p.Fast <= 0 || p.Slow <= 0 {
		return fmt.Errorf("%w: periods must be positive, got fast=%d slow=%d", ErrInvalidParams, p.Fast, p.Slow)
	}
	if p.Fast >= p.Slow {
		return fmt.Errorf("%w: fast period %d must be less than slow period %d", ErrInvalidParams, p.Fast, p.Slow)
	}
	if p.StopPct < 0 || p.TargetPct < 0 {
		return fmt.Errorf("%w: stop/target must be non-negative", ErrInvalidParams)
	}
	if p.Proximity < 0 {
		return fmt.Errorf("%w: proximity must be non-negative, got %f", ErrInvalidParams, p.Proximity)
	}
	if p.Lookback < 0 {
		return fmt.Errorf("%w: lookback must be non-negative, got %d", ErrInvalidParams, p.Lookback)
	}
	if err := p.Bounds.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

// ParseParams 解析命令行参数，格式 "fast=10,slow=30,stop=2"
func ParseParams(paramsStr string) (map[string]float64, error) {
	params := make(map[string]float64)

	for _, pair := range strings.Split(paramsStr, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		key, valueStr, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid parameter format: %s (expected key=value)", pair)
		}
		key = strings.TrimSpace(key)

		value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid parameter value for %s: %s", key, valueStr)
		}
		params[key] = value
	}

	return params, nil
}

// Apply 用解析出的键值覆盖参数，未知键报错
func (p *Params) Apply(overrides map[string]float64) error {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		v := overrides[key]
		switch key {
		case "fast":
			p.Fast = int(v)
		case "slow":
			p.Slow = int(v)
		case "stop":
			p.StopPct = v
		case "target":
			p.TargetPct = v
		case "proximity":
			p.Proximity = v
		case "lookback":
			p.Lookback = int(v)
		default:
			return fmt.Errorf("%w: unknown parameter %q", ErrInvalidParams, key)
		}
	}
	return p.Validate()
}
