package oracle

import (
	"fmt"
	"strings"

	"tradingbot/src/cex"
)

// BuildPrompt 生成决策提示词: K线列表 + 期望的 JSON 回复格式
func BuildPrompt(window []*cex.KlineData, maxHoldHours int) string {
	var b strings.Builder

	b.WriteString("You are a crypto strategist. If you can identify a trading signal in either direction, ")
	b.WriteString("buy or sell and set stop/target percentages according to sound risk management. ")
	b.WriteString("If unsure, reply FLAT with stop 0 and target 0. ")
	if maxHoldHours > 0 {
		fmt.Fprintf(&b, "If no stop or target has been triggered after %d hours, the trade is closed automatically. ", maxHoldHours)
	}

	symbol := "BTC/USD"
	if len(window) > 0 && window[0].TradingPair.Base != "" {
		symbol = window[0].TradingPair.String()
	}
	fmt.Fprintf(&b, "Last %d %s candles (t=unix seconds, o,h,l,c,v):\n[", len(window), symbol)
	for i, k := range window {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"t":%d,"o":%s,"h":%s,"l":%s,"c":%s,"v":%s}`,
			k.OpenTime.Unix(), k.Open.String(), k.High.String(), k.Low.String(), k.Close.String(), k.Volume.String())
	}
	b.WriteString("]\n")
	b.WriteString(`Reply JSON only: {"action":"BUY"|"SELL"|"FLAT","stop":<percent>,"target":<percent>,"reason":<string>}`)

	return b.String()
}

// StripFences 去掉 ```json ... ``` 包裹
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
