package oracle

import (
	"github.com/xpwu/go-config/configs"
)

// Config 大模型接口配置，兼容 OpenAI chat completions 协议
type Config struct {
	BaseURL     string  `json:"base_url"`      // 接口地址，如 https://api.deepseek.com/v1
	APIKey      string  `json:"api_key"`       // API密钥
	Model       string  `json:"model"`         // 模型名称
	Temperature float64 `json:"temperature"`   // 采样温度
	Timeout     int     `json:"timeout"`       // 请求超时时间(秒)
	JSONMode    bool    `json:"json_mode"`     // 请求 response_format=json_object
	MaxHoldHint int     `json:"max_hold_hint"` // 提示词中告知的自动平仓小时数，0 不提示
}

// ConfigValue 大模型配置实例
var ConfigValue = Config{
	BaseURL:     "https://api.deepseek.com/v1",
	Model:       "deepseek-chat",
	Temperature: 1.0,
	Timeout:     60,
	JSONMode:    true,
	MaxHoldHint: 24,
}

func init() {
	configs.Unmarshal(&ConfigValue)
}
