package strategy

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"tradingbot/src/cex"
	"tradingbot/src/oracle"

	"github.com/bitly/go-simplejson"
	"github.com/xpwu/go-log/log"
)

// Oracle 外部大模型信号源，前置均线贴合度过滤，避免无谓的远程调用
type Oracle struct {
	client       oracle.Client
	gate         *Preselect
	lookback     int
	maxHoldHours int
}

var _ Provider = (*Oracle)(nil)

// NewOracle 创建大模型信号源，Proximity 为 0 时不做预筛选
func NewOracle(client oracle.Client, p *Params) *Oracle {
	o := &Oracle{
		client:       client,
		lookback:     p.Lookback,
		maxHoldHours: oracle.ConfigValue.MaxHoldHint,
	}
	if o.lookback < p.Slow {
		o.lookback = p.Slow
	}
	if p.Proximity > 0 {
		o.gate = NewPreselect(p.Fast, p.Slow, p.Proximity)
	}
	return o
}

// GetName 获取信号源名称
func (o *Oracle) GetName() string {
	return "oracle"
}

// Lookback 窗口长度
func (o *Oracle) Lookback() int {
	return o.lookback
}

// Evaluate 预筛选通过后询问大模型，任何失败都返回 FLAT 0/0 和错误
func (o *Oracle) Evaluate(ctx context.Context, window []*cex.KlineData) (*Signal, error) {
	if len(window) < o.lookback {
		return Flat("insufficient_history"), nil
	}
	window = window[len(window)-o.lookback:]

	if o.gate != nil {
		pass, gap, err := o.gate.Pass(window)
		if err != nil {
			return Flat("preselect_error"), err
		}
		if !pass {
			return Flat("preselect " + gap.StringFixed(5)), nil
		}
	}

	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Oracle")

	reply, err := o.client.Complete(ctx, oracle.BuildPrompt(window, o.maxHoldHours))
	if err != nil {
		return Flat("oracle_error"), err
	}

	sig, err := ParseDecision(reply)
	if err != nil {
		return Flat("bad_json"), err
	}
	logger.Debug("大模型决策", "signal", sig.String())
	return sig, nil
}

// ParseDecision 解析 {"action":"BUY|SELL|FLAT","stop":x,"target":y,"reason":"..."}，
// 数字允许以字符串形式给出
func ParseDecision(reply string) (*Signal, error) {
	raw := oracle.StripFences(reply)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrMalformedSignal)
	}

	js, err := simplejson.NewJson([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}

	action, err := js.Get("action").String()
	if err != nil {
		return nil, fmt.Errorf("%w: missing action", ErrMalformedSignal)
	}

	var dir Direction
	switch strings.ToUpper(strings.TrimSpace(action)) {
	case "BUY", "LONG":
		dir = DirectionLong
	case "SELL", "SHORT":
		dir = DirectionShort
	case "FLAT", "HOLD", "NONE":
		dir = DirectionFlat
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrMalformedSignal, action)
	}

	stop, err := number(js, "stop")
	if err != nil {
		return nil, err
	}
	target, err := number(js, "target")
	if err != nil {
		return nil, err
	}
	reason, _ := js.Get("reason").String()

	return &Signal{Direction: dir, StopPct: stop, TargetPct: target, Reason: reason}, nil
}

// number 读取数字字段，缺失视为 0
func number(js *simplejson.Json, key string) (float64, error) {
	field, ok := js.CheckGet(key)
	if !ok || field.Interface() == nil {
		return 0, nil
	}
	if v, err := field.Float64(); err == nil {
		return v, nil
	}
	if s, err := field.String(); err == nil {
		v, perr := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
		if perr == nil {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: field %s is not a number", ErrMalformedSignal, key)
}
