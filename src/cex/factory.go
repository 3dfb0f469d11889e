package cex

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnsupportedCEX 未注册的交易所
var ErrUnsupportedCEX = errors.New("unsupported CEX")

// CEXFactory 交易所客户端工厂
type CEXFactory interface {
	CreateClient() (CEXClient, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]CEXFactory)
)

// RegisterCEXFactory 注册交易所工厂，通常在实现包的 init 中调用
func RegisterCEXFactory(name string, factory CEXFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// CreateCEXClient 按名称创建交易所客户端
func CreateCEXClient(name string) (CEXClient, error) {
	registryMu.RLock()
	factory, exists := registry[name]
	registryMu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCEX, name)
	}

	client, err := factory.CreateClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", name, err)
	}
	return client, nil
}

// GetSupportedCEXes 已注册的交易所名称（排序后）
func GetSupportedCEXes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
