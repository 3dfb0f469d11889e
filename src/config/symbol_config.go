package config

import (
	"strings"

	"tradingbot/src/cex"
	"tradingbot/src/executor"

	"github.com/shopspring/decimal"
)

// SymbolRule 交易对下单规则
type SymbolRule struct {
	Symbol   string  `conf:"symbol,交易所格式的交易对代码，如BTCUSDT"`
	MinQty   float64 `conf:"min_qty,最小下单量"`
	StepSize float64 `conf:"step_size,下单量步长"`
}

// LotSize 获取交易对的下单规则，未配置时使用默认规则
func (c *Config) LotSize(pair cex.TradingPair) executor.LotSize {
	for _, rule := range c.Symbols {
		if strings.EqualFold(rule.Symbol, pair.Symbol()) {
			return executor.LotSize{
				MinQty:   decimal.NewFromFloat(rule.MinQty),
				StepSize: decimal.NewFromFloat(rule.StepSize),
			}
		}
	}
	return executor.DefaultLotSize()
}

// SupportedSymbols 已配置下单规则的交易对
func (c *Config) SupportedSymbols() []string {
	symbols := make([]string, 0, len(c.Symbols))
	for _, rule := range c.Symbols {
		symbols = append(symbols, rule.Symbol)
	}
	return symbols
}
