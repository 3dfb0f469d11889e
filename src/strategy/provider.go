package strategy

import (
	"context"
	"errors"
	"fmt"

	"tradingbot/src/cex"
	"tradingbot/src/oracle"

	"github.com/shopspring/decimal"
)

// ErrUnknownProvider 未知的信号源名称
var ErrUnknownProvider = errors.New("unknown signal provider")

const (
	ProviderSMACross = "sma_cross"
	ProviderOracle   = "oracle"
)

// Provider 信号源: 输入最近 Lookback() 根K线，输出一个方向信号。
// 返回错误时 Signal 仍应为可用的 FLAT 信号，调用方只做计数和日志。
type Provider interface {
	// Evaluate 对窗口做一次评估，窗口按时间升序，最后一根为当前K线
	Evaluate(ctx context.Context, window []*cex.KlineData) (*Signal, error)

	// Lookback 需要的历史K线根数
	Lookback() int

	// GetName 获取信号源名称
	GetName() string
}

// NewProvider 按名称创建信号源，oracle 需要传入客户端
func NewProvider(name string, params *Params, client oracle.Client) (Provider, error) {
	if params == nil {
		params = GetDefaultParams()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	switch name {
	case ProviderSMACross:
		return NewSMACross(params), nil
	case ProviderOracle:
		if client == nil {
			return nil, fmt.Errorf("oracle provider requires a client")
		}
		return NewOracle(client, params), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
}

func closes(window []*cex.KlineData) []decimal.Decimal {
	out := make([]decimal.Decimal, len(window))
	for i, k := range window {
		out[i] = k.Close
	}
	return out
}
