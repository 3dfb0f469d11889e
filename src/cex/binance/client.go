package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tradingbot/src/cex"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// ErrReadOnly 只读模式下拒绝下单
var ErrReadOnly = errors.New("binance client is read-only")

// Client Binance客户端实现
type Client struct {
	client    *binance.Client
	readOnly  bool
	batchSize int
}

var _ cex.CEXClient = (*Client)(nil)

// NewClient 创建Binance客户端，K线与ping不需要API密钥
func NewClient(conf Config) *Client {
	c := binance.NewClient(conf.APIKey, conf.SecretKey)
	if conf.BaseURL != "" {
		c.BaseURL = conf.BaseURL
	}
	if conf.Timeout > 0 {
		c.HTTPClient = &http.Client{Timeout: time.Duration(conf.Timeout) * time.Second}
	}

	batch := conf.BatchSize
	if batch <= 0 || batch > 1000 {
		batch = 1000
	}

	return &Client{
		client:    c,
		readOnly:  conf.ReadOnly,
		batchSize: batch,
	}
}

// GetName 获取交易所名称
func (c *Client) GetName() string {
	return "binance"
}

// convertKlineData 转换Binance K线数据为标准格式
func convertKlineData(kline *binance.Kline, pair cex.TradingPair) (*cex.KlineData, error) {
	fields := []string{kline.Open, kline.High, kline.Low, kline.Close, kline.Volume, kline.QuoteAssetVolume}
	values := make([]decimal.Decimal, len(fields))
	for i, field := range fields {
		v, err := decimal.NewFromString(field)
		if err != nil {
			return nil, fmt.Errorf("failed to parse kline field %q: %w", field, err)
		}
		values[i] = v
	}

	return &cex.KlineData{
		TradingPair: pair,
		OpenTime:    time.UnixMilli(kline.OpenTime).UTC(),
		Open:        values[0],
		High:        values[1],
		Low:         values[2],
		Close:       values[3],
		Volume:      values[4],
		CloseTime:   time.UnixMilli(kline.CloseTime).UTC(),
		QuoteVolume: values[5],
	}, nil
}

func convertKlines(klines []*binance.Kline, pair cex.TradingPair) ([]*cex.KlineData, error) {
	result := make([]*cex.KlineData, 0, len(klines))
	for _, kline := range klines {
		k, err := convertKlineData(kline, pair)
		if err != nil {
			return nil, err
		}
		result = append(result, k)
	}
	return result, nil
}

// GetKlines 获取K线数据
func (c *Client) GetKlines(ctx context.Context, pair cex.TradingPair, interval string, limit int) ([]*cex.KlineData, error) {
	klines, err := c.client.NewKlinesService().
		Symbol(pair.Symbol()).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines from Binance: %w", err)
	}

	return convertKlines(klines, pair)
}

// GetKlinesWithTimeRange 分批获取指定时间范围的K线数据
func (c *Client) GetKlinesWithTimeRange(ctx context.Context, pair cex.TradingPair, interval string, startTime, endTime time.Time, limit int) ([]*cex.KlineData, error) {
	if limit <= 0 || limit > c.batchSize {
		limit = c.batchSize
	}

	var all []*cex.KlineData
	currentStart := startTime

	for currentStart.Before(endTime) {
		klines, err := c.client.NewKlinesService().
			Symbol(pair.Symbol()).
			Interval(interval).
			StartTime(currentStart.UnixMilli()).
			EndTime(endTime.UnixMilli()).
			Limit(limit).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get klines from Binance: %w", err)
		}
		if len(klines) == 0 {
			break
		}

		batch, err := convertKlines(klines, pair)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)

		currentStart = time.UnixMilli(klines[len(klines)-1].CloseTime + 1)
		if len(klines) < limit {
			break
		}
	}

	return all, nil
}

// Buy 市价或限价买入
func (c *Client) Buy(ctx context.Context, order cex.OrderRequest) (*cex.OrderResult, error) {
	return c.placeOrder(ctx, binance.SideTypeBuy, order)
}

// Sell 市价或限价卖出
func (c *Client) Sell(ctx context.Context, order cex.OrderRequest) (*cex.OrderResult, error) {
	return c.placeOrder(ctx, binance.SideTypeSell, order)
}

func (c *Client) placeOrder(ctx context.Context, side binance.SideType, order cex.OrderRequest) (*cex.OrderResult, error) {
	if c.readOnly {
		return nil, ErrReadOnly
	}

	service := c.client.NewCreateOrderService().
		Symbol(order.TradingPair.Symbol()).
		Side(side).
		Type(binance.OrderType(order.Type)).
		Quantity(order.Quantity.String())

	if order.Type == cex.OrderTypeLimit {
		service = service.Price(order.Price.String()).TimeInForce(binance.TimeInForceTypeGTC)
	}

	result, err := service.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to place %s order on Binance: %w", side, err)
	}

	price, _ := decimal.NewFromString(result.Price)
	quantity, _ := decimal.NewFromString(result.ExecutedQuantity)

	return &cex.OrderResult{
		TradingPair:   order.TradingPair,
		OrderID:       fmt.Sprintf("%d", result.OrderID),
		ClientOrderID: result.ClientOrderID,
		Price:         price,
		Quantity:      quantity,
		Side:          cex.OrderSide(side),
		Status:        string(result.Status),
		Type:          cex.OrderType(result.Type),
		TransactTime:  time.UnixMilli(result.TransactTime),
	}, nil
}

// GetAccount 获取账户余额，只返回非零资产
func (c *Client) GetAccount(ctx context.Context) ([]*cex.AccountBalance, error) {
	account, err := c.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get account from Binance: %w", err)
	}

	balances := make([]*cex.AccountBalance, 0, len(account.Balances))
	for _, balance := range account.Balances {
		free, _ := decimal.NewFromString(balance.Free)
		locked, _ := decimal.NewFromString(balance.Locked)
		if free.IsZero() && locked.IsZero() {
			continue
		}
		balances = append(balances, &cex.AccountBalance{
			Asset:  balance.Asset,
			Free:   free,
			Locked: locked,
		})
	}

	return balances, nil
}

// Ping 测试连接
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.NewPingService().Do(ctx); err != nil {
		return fmt.Errorf("binance ping failed: %w", err)
	}
	return nil
}
