package backtest

import (
	"time"

	"tradingbot/src/cex"
	"tradingbot/src/strategy"

	"github.com/shopspring/decimal"
)

// StopPrice 多头 entry×(1−pct/100)，空头 entry×(1+pct/100)
func StopPrice(side strategy.Direction, entry, pct decimal.Decimal) decimal.Decimal {
	move := entry.Mul(pct).Div(hundred)
	if side == strategy.DirectionShort {
		return entry.Add(move)
	}
	return entry.Sub(move)
}

// TargetPrice 多头 entry×(1+pct/100)，空头 entry×(1−pct/100)
func TargetPrice(side strategy.Direction, entry, pct decimal.Decimal) decimal.Decimal {
	move := entry.Mul(pct).Div(hundred)
	if side == strategy.DirectionShort {
		return entry.Sub(move)
	}
	return entry.Add(move)
}

// ExitDecision 平仓判定结果
type ExitDecision struct {
	Reason ExitReason
	Price  decimal.Decimal
}

// ExitEvaluator 逐根K线判断持仓是否需要平仓
type ExitEvaluator struct {
	slippage decimal.Decimal
	maxHold  time.Duration
}

// NewExitEvaluator 创建平仓判定器
func NewExitEvaluator(slippage decimal.Decimal, maxHold time.Duration) *ExitEvaluator {
	return &ExitEvaluator{slippage: slippage, maxHold: maxHold}
}

// Evaluate 依次检查止损、止盈、持仓超时；同一根K线同时触及止损和止盈时按止损处理。
// 价格穿越(含跳空越过)即视为触发，成交价取止损/止盈价再加不利滑点。
func (e *ExitEvaluator) Evaluate(pos *Position, bar *cex.KlineData) (ExitDecision, bool) {
	if pos.HasStop() && stopHit(pos, bar) {
		return ExitDecision{Reason: ExitStop, Price: e.ExitPrice(pos.Side, pos.StopPrice)}, true
	}
	if pos.HasTarget() && targetHit(pos, bar) {
		return ExitDecision{Reason: ExitTarget, Price: e.ExitPrice(pos.Side, pos.TargetPrice)}, true
	}
	if e.maxHold > 0 && bar.OpenTime.Sub(pos.EntryTime) >= e.maxHold {
		return ExitDecision{Reason: ExitTime, Price: e.ExitPrice(pos.Side, bar.Open)}, true
	}
	return ExitDecision{}, false
}

// Flip 反向信号平仓，按收盘价加不利滑点
func (e *ExitEvaluator) Flip(pos *Position, bar *cex.KlineData) ExitDecision {
	return ExitDecision{Reason: ExitSignalFlip, Price: e.ExitPrice(pos.Side, bar.Close)}
}

// ForceClose 序列结束时按最后收盘价平仓，不计滑点
func (e *ExitEvaluator) ForceClose(bar *cex.KlineData) ExitDecision {
	return ExitDecision{Reason: ExitFinalForceClose, Price: bar.Close}
}

// ExitPrice 平仓成交价: 多头卖出减滑点，空头买回加滑点
func (e *ExitEvaluator) ExitPrice(side strategy.Direction, price decimal.Decimal) decimal.Decimal {
	if side == strategy.DirectionShort {
		return price.Add(e.slippage)
	}
	return price.Sub(e.slippage)
}

// EntryPrice 开仓成交价: 多头买入加滑点，空头卖出减滑点
func (e *ExitEvaluator) EntryPrice(side strategy.Direction, price decimal.Decimal) decimal.Decimal {
	if side == strategy.DirectionShort {
		return price.Sub(e.slippage)
	}
	return price.Add(e.slippage)
}

// AdverseMark K线内对持仓最不利的价格，多头取最低价，空头取最高价
func AdverseMark(pos *Position, bar *cex.KlineData) decimal.Decimal {
	if pos.Side == strategy.DirectionShort {
		return bar.High
	}
	return bar.Low
}

func stopHit(pos *Position, bar *cex.KlineData) bool {
	if pos.Side == strategy.DirectionShort {
		return bar.High.GreaterThanOrEqual(pos.StopPrice)
	}
	return bar.Low.LessThanOrEqual(pos.StopPrice)
}

func targetHit(pos *Position, bar *cex.KlineData) bool {
	if pos.Side == strategy.DirectionShort {
		return bar.Low.LessThanOrEqual(pos.TargetPrice)
	}
	return bar.High.GreaterThanOrEqual(pos.TargetPrice)
}
