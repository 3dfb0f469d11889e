package strategy

import (
	"time"

	"tradingbot/src/cex"

	"github.com/shopspring/decimal"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// barsFromCloses 每根K线 open=high=low=close，按小时递增
func barsFromCloses(closes ...float64) []*cex.KlineData {
	bars := make([]*cex.KlineData, len(closes))
	for i, c := range closes {
		price := decimal.NewFromFloat(c)
		bars[i] = &cex.KlineData{
			TradingPair: cex.TradingPair{Base: "BTC", Quote: "USD"},
			OpenTime:    testStart.Add(time.Duration(i) * time.Hour),
			Open:        price,
			High:        price,
			Low:         price,
			Close:       price,
			Volume:      decimal.NewFromInt(1),
		}
	}
	return bars
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
