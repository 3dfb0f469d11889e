package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/xpwu/go-log/log"
)

// PaperExecutor 模拟执行器: 按参考价格立即成交，只记录不下单
type PaperExecutor struct {
	mu     sync.Mutex
	orders []*OrderResult
	seq    int
}

// NewPaperExecutor 创建模拟执行器
func NewPaperExecutor() *PaperExecutor {
	return &PaperExecutor{}
}

// Submit 记录意图并返回成交结果
func (e *PaperExecutor) Submit(ctx context.Context, intent *Intent) (*OrderResult, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	_, logger := log.WithCtx(ctx)
	logger.PushPrefix("PaperExecutor")

	e.mu.Lock()
	e.seq++
	result := &OrderResult{
		OrderID:     fmt.Sprintf("paper_%d", e.seq),
		IntentID:    intent.ID,
		TradingPair: intent.TradingPair,
		Side:        intent.Side,
		Quantity:    intent.Quantity,
		Price:       intent.Price,
		Timestamp:   intent.Timestamp,
		Success:     true,
	}
	e.orders = append(e.orders, result)
	e.mu.Unlock()

	logger.Debug(fmt.Sprintf("模拟成交: %s %s @ %s (%s)",
		intent.Side, intent.Quantity.String(), intent.Price.String(), intent.Reason))
	return result, nil
}

// Orders 已记录的成交
func (e *PaperExecutor) Orders() []*OrderResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*OrderResult, len(e.orders))
	copy(out, e.orders)
	return out
}

// GetName 获取执行器名称
func (e *PaperExecutor) GetName() string {
	return "PaperExecutor"
}

// Close 关闭执行器
func (e *PaperExecutor) Close() error {
	return nil
}
