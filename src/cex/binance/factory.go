package binance

import (
	"tradingbot/src/cex"
)

// Factory Binance工厂实现
type Factory struct{}

// CreateClient 按全局配置创建Binance客户端
func (f *Factory) CreateClient() (cex.CEXClient, error) {
	return NewClient(ConfigValue), nil
}

func init() {
	cex.RegisterCEXFactory("binance", &Factory{})
}
