package cex

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TradingPair 标准化的交易对
type TradingPair struct {
	Base  string // 基础货币，如 BTC
	Quote string // 计价货币，如 USDT, USD
}

// String 返回标准化的交易对字符串表示
func (tp TradingPair) String() string {
	return tp.Base + "/" + tp.Quote
}

// Symbol 返回交易所格式的代码，如 BTCUSDT
func (tp TradingPair) Symbol() string {
	return strings.ToUpper(tp.Base) + strings.ToUpper(tp.Quote)
}

var knownQuotes = []string{"USDT", "USDC", "BUSD", "USD", "BTC", "ETH"}

// ParseSymbol 解析 BTCUSDT / BTC/USDT / BTC-USD 形式的交易对
func ParseSymbol(symbol string) (TradingPair, bool) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, sep := range []string{"/", "-", "_"} {
		if parts := strings.SplitN(s, sep, 2); len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return TradingPair{Base: parts[0], Quote: parts[1]}, true
		}
	}
	for _, quote := range knownQuotes {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return TradingPair{Base: strings.TrimSuffix(s, quote), Quote: quote}, true
		}
	}
	return TradingPair{}, false
}

// KlineData 标准化的K线数据，回测内核中的一根 Bar
type KlineData struct {
	TradingPair TradingPair     `json:"trading_pair"`
	OpenTime    time.Time       `json:"open_time"`    // 开盘时间，即 Bar 时间戳
	Open        decimal.Decimal `json:"open"`         // 开盘价
	High        decimal.Decimal `json:"high"`         // 最高价
	Low         decimal.Decimal `json:"low"`          // 最低价
	Close       decimal.Decimal `json:"close"`        // 收盘价
	Volume      decimal.Decimal `json:"volume"`       // 成交量
	CloseTime   time.Time       `json:"close_time"`   // 收盘时间
	QuoteVolume decimal.Decimal `json:"quote_volume"` // 成交额
}

// OrderSide 订单方向
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderRequest 下单请求
type OrderRequest struct {
	TradingPair TradingPair     `json:"trading_pair"`
	Type        OrderType       `json:"type"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price,omitempty"` // 限价单时需要
}

// OrderResult 订单结果
type OrderResult struct {
	TradingPair   TradingPair     `json:"trading_pair"`
	OrderID       string          `json:"order_id"`
	ClientOrderID string          `json:"client_order_id"`
	Price         decimal.Decimal `json:"price"`
	Quantity      decimal.Decimal `json:"quantity"`
	Side          OrderSide       `json:"side"`
	Status        string          `json:"status"`
	Type          OrderType       `json:"type"`
	TransactTime  time.Time       `json:"transact_time"`
}

// AccountBalance 账户余额
type AccountBalance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

// CEXClient 中心化交易所客户端接口
type CEXClient interface {
	// GetName 获取交易所名称
	GetName() string

	// GetKlines 获取最近的K线数据
	GetKlines(ctx context.Context, pair TradingPair, interval string, limit int) ([]*KlineData, error)

	// GetKlinesWithTimeRange 获取指定时间范围的K线数据
	GetKlinesWithTimeRange(ctx context.Context, pair TradingPair, interval string, startTime, endTime time.Time, limit int) ([]*KlineData, error)

	// Buy 买入
	Buy(ctx context.Context, order OrderRequest) (*OrderResult, error)

	// Sell 卖出
	Sell(ctx context.Context, order OrderRequest) (*OrderResult, error)

	// GetAccount 获取账户信息
	GetAccount(ctx context.Context) ([]*AccountBalance, error)

	// Ping 测试连接
	Ping(ctx context.Context) error
}
