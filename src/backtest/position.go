package backtest

import (
	"fmt"
	"time"

	"tradingbot/src/strategy"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)

	// sliceNamespace 切片ID的命名空间，相同输入得到相同ID
	sliceNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("tradingbot/backtest/slice"))
)

// Position 持仓，只能整体平仓
type Position struct {
	ID          string             `json:"id"`
	Side        strategy.Direction `json:"side"`
	Size        decimal.Decimal    `json:"size"` // 带符号，多头为正
	EntryPrice  decimal.Decimal    `json:"entry_price"`
	EntryTime   time.Time          `json:"entry_time"`
	EntryFee    decimal.Decimal    `json:"entry_fee"`
	Margin      decimal.Decimal    `json:"margin"` // 名义价值 / 杠杆
	StopPct     decimal.Decimal    `json:"stop_pct"`
	TargetPct   decimal.Decimal    `json:"target_pct"`
	StopPrice   decimal.Decimal    `json:"stop_price"`   // 0 表示未设置
	TargetPrice decimal.Decimal    `json:"target_price"` // 0 表示未设置
	Signal      string             `json:"signal,omitempty"`
}

// HasStop 是否设置了止损
func (p *Position) HasStop() bool {
	return p.StopPct.IsPositive()
}

// HasTarget 是否设置了止盈
func (p *Position) HasTarget() bool {
	return p.TargetPct.IsPositive()
}

// Unrealized 按标记价格计算的未实现盈亏
func (p *Position) Unrealized(mark decimal.Decimal) decimal.Decimal {
	return p.Size.Mul(mark.Sub(p.EntryPrice))
}

// Tracker 持仓管理: 开仓定量、平仓结算、single/multi 模式约束
type Tracker struct {
	mode      PositionMode
	maxSlices int
	leverage  decimal.Decimal
	sizingCap decimal.Decimal
	feeRate   decimal.Decimal
	account   *Account
	open      []*Position
	seq       int
}

// NewTracker 创建持仓管理器，资金变动都通过 account 记账
func NewTracker(cfg Config, account *Account) *Tracker {
	return &Tracker{
		mode:      cfg.Mode,
		maxSlices: cfg.MaxSlices,
		leverage:  cfg.Leverage,
		sizingCap: cfg.SizingCap,
		feeRate:   cfg.FeeRate,
		account:   account,
	}
}

// Positions 当前持仓的副本，按开仓顺序
func (t *Tracker) Positions() []*Position {
	out := make([]*Position, len(t.open))
	copy(out, t.open)
	return out
}

// IsFlat 是否无持仓
func (t *Tracker) IsFlat() bool {
	return len(t.open) == 0
}

// CanOpen single 模式要求空仓；multi 模式受切片上限约束
func (t *Tracker) CanOpen() bool {
	if t.mode == ModeSingle {
		return len(t.open) == 0
	}
	return t.maxSlices == 0 || len(t.open) < t.maxSlices
}

// Unrealized 所有持仓按 mark 计算的未实现盈亏之和
func (t *Tracker) Unrealized(mark func(*Position) decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, p := range t.open {
		total = total.Add(p.Unrealized(mark(p)))
	}
	return total
}

// Notional 按余额和杠杆计算名义价值，可选参考余额封顶
func (t *Tracker) Notional(balance decimal.Decimal) decimal.Decimal {
	notional := balance.Mul(t.leverage)
	if t.sizingCap.IsPositive() {
		if limit := t.sizingCap.Mul(t.leverage); notional.GreaterThan(limit) {
			notional = limit
		}
	}
	return notional
}

// Open 以 price 开仓并立即扣除开仓手续费
func (t *Tracker) Open(side strategy.Direction, price decimal.Decimal, at time.Time, sig *strategy.Signal) (*Position, error) {
	if side != strategy.DirectionLong && side != strategy.DirectionShort {
		return nil, fmt.Errorf("cannot open %s position", side)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("entry price must be positive, got %s", price)
	}
	balance := t.account.Balance()
	if !balance.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrNonPositiveBalance, balance)
	}

	notional := t.Notional(balance)
	size := notional.Div(price)
	if side == strategy.DirectionShort {
		size = size.Neg()
	}
	fee := size.Mul(price).Abs().Mul(t.feeRate)

	t.seq++
	pos := &Position{
		ID:         uuid.NewSHA1(sliceNamespace, []byte(fmt.Sprintf("%s|%d|%d", side, at.UnixNano(), t.seq))).String(),
		Side:       side,
		Size:       size,
		EntryPrice: price,
		EntryTime:  at,
		EntryFee:   fee,
		Margin:     notional.Div(t.leverage),
	}
	if sig != nil {
		pos.StopPct = decimal.NewFromFloat(sig.StopPct)
		pos.TargetPct = decimal.NewFromFloat(sig.TargetPct)
		pos.Signal = sig.Reason
	}
	if pos.HasStop() {
		pos.StopPrice = StopPrice(side, price, pos.StopPct)
	}
	if pos.HasTarget() {
		pos.TargetPrice = TargetPrice(side, price, pos.TargetPct)
	}

	t.account.ChargeFee(fee)
	t.open = append(t.open, pos)
	return pos, nil
}

// Close 以 exitPrice 平掉 pos，结算盈亏与平仓手续费，返回交易记录
func (t *Tracker) Close(pos *Position, exitPrice decimal.Decimal, at time.Time, reason ExitReason) (*TradeRecord, error) {
	idx := -1
	for i, p := range t.open {
		if p == pos {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrPositionNotOpen
	}

	pnl := pos.Size.Mul(exitPrice.Sub(pos.EntryPrice))
	exitFee := pnl.Abs().Mul(t.feeRate)
	t.account.Realize(pnl, exitFee)
	t.open = append(t.open[:idx], t.open[idx+1:]...)

	fees := pos.EntryFee.Add(exitFee)
	net := pnl.Sub(fees)
	ret := decimal.Zero
	if pos.Margin.IsPositive() {
		ret = net.Div(pos.Margin).Mul(hundred)
	}

	return &TradeRecord{
		ID:         pos.ID,
		Side:       pos.Side,
		Size:       pos.Size,
		EntryTime:  pos.EntryTime,
		ExitTime:   at,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		StopPct:    pos.StopPct,
		TargetPct:  pos.TargetPct,
		Reason:     reason,
		PnL:        pnl,
		Fees:       fees,
		NetPnL:     net,
		ReturnPct:  ret,
		Balance:    t.account.Balance(),
		Signal:     pos.Signal,
	}, nil
}
