package backtest

import (
	"context"
	"errors"
	"fmt"

	"tradingbot/src/cex"
	"tradingbot/src/executor"
	"tradingbot/src/strategy"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"
)

// Option 引擎可选项
type Option func(*Engine)

// WithExecutor 每次开平仓都转换为订单意图交给执行器，执行失败只记录日志
func WithExecutor(e executor.Executor) Option {
	return func(engine *Engine) {
		engine.executor = e
	}
}

// Engine 回测引擎: 按时间顺序逐根K线推进，处理平仓、爆仓检查、信号和开仓
type Engine struct {
	cfg      Config
	provider strategy.Provider
	executor executor.Executor
	pair     cex.TradingPair
	lookback int
}

// NewEngine 创建回测引擎，配置不合法时立即返回 ErrInvalidConfig
func NewEngine(cfg Config, provider strategy.Provider, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: signal provider is required", ErrInvalidConfig)
	}
	pair, ok := cex.ParseSymbol(cfg.Symbol)
	if !ok {
		return nil, fmt.Errorf("%w: cannot parse symbol %q", ErrInvalidConfig, cfg.Symbol)
	}

	lookback := provider.Lookback()
	if cfg.Lookback > lookback {
		lookback = cfg.Lookback
	}
	if lookback < 1 {
		lookback = 1
	}

	e := &Engine{
		cfg:      cfg,
		provider: provider,
		pair:     pair,
		lookback: lookback,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config 引擎使用的配置
func (e *Engine) Config() Config {
	return e.cfg
}

// Lookback 信号窗口长度
func (e *Engine) Lookback() int {
	return e.lookback
}

// Run 对一段K线运行回测。每次调用使用独立的账户和持仓状态，相同输入得到相同结果。
// K线序列不合法时在处理任何K线之前返回错误。
func (e *Engine) Run(ctx context.Context, bars []*cex.KlineData) (*Result, error) {
	if err := cex.ValidateSeries(bars); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("BacktestEngine")

	s := e.newSession(ctx)
	if len(bars) == 0 {
		logger.Info("no bars supplied, returning empty result")
		return s.result(bars, TerminationSeriesEnd), nil
	}

	logger.Info(fmt.Sprintf("开始回测: %s, provider=%s, bars=%d, lookback=%d, mode=%s",
		e.cfg.Symbol, e.provider.GetName(), len(bars), e.lookback, e.cfg.Mode))

	last := len(bars) - 1
	stopped := last
	termination := TerminationSeriesEnd

	for i, bar := range bars {
		stopped = i

		s.applyExits(bar)
		if s.capReached() {
			s.mark(bar)
			termination = TerminationTradeCap
			break
		}

		if s.checkLiquidation(bar) {
			termination = TerminationLiquidated
			break
		}

		if i < last && i+1 >= e.lookback {
			sig := s.evaluate(bars[i+1-e.lookback : i+1])
			s.act(sig, bar)
		}

		s.mark(bar)
		if s.capReached() {
			termination = TerminationTradeCap
			break
		}
	}

	if termination != TerminationLiquidated {
		s.forceCloseAll(bars[stopped])
	}

	result := s.result(bars, termination)
	logger.Info(fmt.Sprintf("回测完成: trades=%d, final_equity=%s, termination=%s, signal_errors=%d",
		len(result.Trades), result.Statistics.FinalEquity.StringFixed(2), termination, result.SignalErrors))
	return result, nil
}

// session 单次运行的可变状态，不在多次运行之间共享
type session struct {
	engine       *Engine
	ctx          context.Context
	account      *Account
	tracker      *Tracker
	exits        *ExitEvaluator
	trades       []*TradeRecord
	curve        []EquityPoint
	signals      int
	signalErrors int
	orders       int
	orderErrors  int
}

func (e *Engine) newSession(ctx context.Context) *session {
	account := NewAccount(e.cfg.InitialBalance)
	return &session{
		engine:  e,
		ctx:     ctx,
		account: account,
		tracker: NewTracker(e.cfg, account),
		exits:   NewExitEvaluator(e.cfg.Slippage, e.cfg.MaxHold),
	}
}

func (s *session) capReached() bool {
	return s.engine.cfg.MaxTrades > 0 && len(s.trades) >= s.engine.cfg.MaxTrades
}

// applyExits 止损、止盈、超时平仓，只作用于之前K线开出的持仓
func (s *session) applyExits(bar *cex.KlineData) {
	for _, pos := range s.tracker.Positions() {
		if d, ok := s.exits.Evaluate(pos, bar); ok {
			s.close(pos, d, bar)
		}
	}
}

// checkLiquidation 按K线内最不利价格标记权益，低于阈值则终止
func (s *session) checkLiquidation(bar *cex.KlineData) bool {
	_, logger := log.WithCtx(s.ctx)
	threshold := s.engine.cfg.LiquidationThreshold
	if !threshold.IsPositive() {
		return false
	}

	unrealized := s.tracker.Unrealized(func(p *Position) decimal.Decimal {
		return AdverseMark(p, bar)
	})
	equity := s.account.Equity(unrealized)
	if !s.account.CheckLiquidation(equity, threshold, bar.OpenTime) {
		return false
	}

	logger.Error(fmt.Sprintf("爆仓: time=%s, equity=%s <= threshold=%s",
		bar.OpenTime.Format("2006-01-02 15:04"), equity.StringFixed(2), threshold.String()))
	s.curve = append(s.curve, EquityPoint{
		Timestamp: bar.OpenTime,
		Equity:    equity,
		Balance:   s.account.Balance(),
		Price:     bar.Close,
		Positions: len(s.tracker.Positions()),
	})
	return true
}

// evaluate 调用信号源并规整结果，任何失败都按 FLAT 处理并计数
func (s *session) evaluate(window []*cex.KlineData) *strategy.Signal {
	_, logger := log.WithCtx(s.ctx)
	s.signals++

	sig, err := s.engine.provider.Evaluate(s.ctx, window)
	if err != nil {
		s.signalErrors++
		logger.Error(fmt.Sprintf("signal provider %s failed: %v", s.engine.provider.GetName(), err))
		return strategy.Flat("provider_error")
	}

	clean, err := strategy.Sanitize(sig, s.engine.cfg.Bounds)
	if err != nil {
		s.signalErrors++
		logger.Error(fmt.Sprintf("malformed signal from %s: %v", s.engine.provider.GetName(), err))
	}
	return clean
}

// act 反向信号先平掉相反方向的持仓，再按持仓模式开仓
func (s *session) act(sig *strategy.Signal, bar *cex.KlineData) {
	_, logger := log.WithCtx(s.ctx)
	if sig.Direction == strategy.DirectionFlat {
		return
	}

	for _, pos := range s.tracker.Positions() {
		if pos.Side.Opposes(sig.Direction) {
			s.close(pos, s.exits.Flip(pos, bar), bar)
		}
	}

	if s.capReached() || !s.tracker.CanOpen() {
		return
	}

	price := s.exits.EntryPrice(sig.Direction, bar.Close)
	pos, err := s.tracker.Open(sig.Direction, price, bar.OpenTime, sig)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to open %s position: %v", sig.Direction, err))
		return
	}

	logger.Debug(fmt.Sprintf("开仓 %s size=%s @ %s stop=%s target=%s (%s)",
		pos.Side, pos.Size.StringFixed(6), pos.EntryPrice.StringFixed(2),
		pos.StopPrice.StringFixed(2), pos.TargetPrice.StringFixed(2), sig.Reason))
	s.submit(executor.NewOpenIntent(pos.ID, s.engine.pair, pos.Side, pos.Size, pos.EntryPrice, pos.EntryTime, sig.Reason))
}

func (s *session) close(pos *Position, d ExitDecision, bar *cex.KlineData) {
	_, logger := log.WithCtx(s.ctx)
	trade, err := s.tracker.Close(pos, d.Price, bar.OpenTime, d.Reason)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to close position %s: %v", pos.ID, err))
		return
	}
	s.trades = append(s.trades, trade)

	logger.Debug(fmt.Sprintf("平仓 %s %s @ %s pnl=%s net=%s balance=%s",
		trade.Side, trade.Reason, trade.ExitPrice.StringFixed(2), trade.PnL.StringFixed(4),
		trade.NetPnL.StringFixed(4), trade.Balance.StringFixed(2)))
	s.submit(executor.NewCloseIntent(trade.ID, s.engine.pair, trade.Side, trade.Size, trade.ExitPrice, trade.ExitTime, string(trade.Reason)))
}

func (s *session) submit(intent *executor.Intent) {
	_, logger := log.WithCtx(s.ctx)
	if s.engine.executor == nil {
		return
	}
	s.orders++
	if _, err := s.engine.executor.Submit(s.ctx, intent); err != nil {
		s.orderErrors++
		if !errors.Is(err, executor.ErrBelowMinimum) {
			logger.Error(fmt.Sprintf("executor %s rejected %s intent: %v", s.engine.executor.GetName(), intent.Side, err))
		}
	}
}

// mark 按收盘价计算权益，更新回撤并记录权益曲线
func (s *session) mark(bar *cex.KlineData) {
	unrealized := s.tracker.Unrealized(func(*Position) decimal.Decimal {
		return bar.Close
	})
	equity := s.account.Equity(unrealized)
	s.account.Observe(equity)
	s.curve = append(s.curve, EquityPoint{
		Timestamp: bar.OpenTime,
		Equity:    equity,
		Balance:   s.account.Balance(),
		Price:     bar.Close,
		Positions: len(s.tracker.Positions()),
	})
}

// forceCloseAll 结束时按收盘价平掉剩余持仓，不计滑点
func (s *session) forceCloseAll(bar *cex.KlineData) {
	positions := s.tracker.Positions()
	if len(positions) == 0 {
		return
	}

	d := s.exits.ForceClose(bar)
	for _, pos := range positions {
		s.close(pos, d, bar)
	}

	balance := s.account.Balance()
	s.account.Observe(balance)
	if n := len(s.curve); n > 0 && s.curve[n-1].Timestamp.Equal(bar.OpenTime) {
		s.curve[n-1].Equity = balance
		s.curve[n-1].Balance = balance
		s.curve[n-1].Positions = 0
		return
	}
	s.curve = append(s.curve, EquityPoint{
		Timestamp: bar.OpenTime,
		Equity:    balance,
		Balance:   balance,
		Price:     bar.Close,
	})
}

func (s *session) result(bars []*cex.KlineData, termination Termination) *Result {
	state := s.account.State()
	r := &Result{
		Symbol:       s.engine.cfg.Symbol,
		Provider:     s.engine.provider.GetName(),
		Config:       s.engine.cfg,
		Bars:         len(bars),
		Trades:       s.trades,
		EquityCurve:  s.curve,
		Account:      state,
		Liquidated:   state.Liquidated,
		LiquidatedAt: state.LiquidatedAt,
		Termination:  termination,
		Signals:      s.signals,
		SignalErrors: s.signalErrors,
		Orders:       s.orders,
		OrderErrors:  s.orderErrors,
	}
	if len(bars) > 0 {
		r.Start = bars[0].OpenTime
		r.End = bars[len(bars)-1].OpenTime
	}
	if r.Trades == nil {
		r.Trades = []*TradeRecord{}
	}
	if r.EquityCurve == nil {
		r.EquityCurve = []EquityPoint{}
	}
	r.Statistics = ComputeStatistics(r.Trades, r.EquityCurve, state)
	return r
}
