package binance

import (
	"github.com/xpwu/go-config/configs"
)

// Config 币安配置
type Config struct {
	APIKey    string `json:"api_key"`    // API密钥
	SecretKey string `json:"secret_key"` // API私钥
	BaseURL   string `json:"base_url"`   // API地址
	Timeout   int    `json:"timeout"`    // 请求超时时间(秒)
	ReadOnly  bool   `json:"read_only"`  // 只读模式，禁止下单
	BatchSize int    `json:"batch_size"` // 单次K线请求条数，最大1000
}

// ConfigValue 币安配置实例
var ConfigValue = Config{
	BaseURL:   "https://api.binance.com",
	Timeout:   10,
	ReadOnly:  true,
	BatchSize: 1000,
}

func init() {
	configs.Unmarshal(&ConfigValue)
}
