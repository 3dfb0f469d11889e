package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"tradingbot/src/backtest"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// BacktestRun 回测运行记录
type BacktestRun struct {
	ID             string               `json:"id"`
	Name           string               `json:"name"`
	Symbol         string               `json:"symbol"`
	Timeframe      string               `json:"timeframe"`
	Provider       string               `json:"provider"`
	Config         json.RawMessage      `json:"config"`
	StartTime      time.Time            `json:"start_time"`
	EndTime        time.Time            `json:"end_time"`
	InitialCapital decimal.Decimal      `json:"initial_capital"`
	FinalEquity    decimal.Decimal      `json:"final_equity"`
	TotalReturn    decimal.Decimal      `json:"total_return"`
	MaxDrawdown    decimal.Decimal      `json:"max_drawdown"`
	SharpeRatio    backtest.Ratio       `json:"sharpe_ratio"`
	SortinoRatio   backtest.Ratio       `json:"sortino_ratio"`
	ProfitFactor   backtest.Ratio       `json:"profit_factor"`
	WinRate        backtest.Ratio       `json:"win_rate"`
	TotalTrades    int                  `json:"total_trades"`
	WinningTrades  int                  `json:"winning_trades"`
	LosingTrades   int                  `json:"losing_trades"`
	TotalFees      decimal.Decimal      `json:"total_fees"`
	Liquidated     bool                 `json:"liquidated"`
	Termination    backtest.Termination `json:"termination"`
	SignalErrors   int                  `json:"signal_errors"`
	DailyReturns   []float64            `json:"daily_returns"`
}

// NewBacktestRun 由回测结果生成运行记录，ID 为随机 UUID
func NewBacktestRun(name, timeframe string, result *backtest.Result) (*BacktestRun, error) {
	cfg, err := json.Marshal(result.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal backtest config: %w", err)
	}

	stats := result.Statistics
	return &BacktestRun{
		ID:             uuid.NewString(),
		Name:           name,
		Symbol:         result.Symbol,
		Timeframe:      timeframe,
		Provider:       result.Provider,
		Config:         cfg,
		StartTime:      result.Start,
		EndTime:        result.End,
		InitialCapital: stats.InitialEquity,
		FinalEquity:    stats.FinalEquity,
		TotalReturn:    stats.TotalReturn,
		MaxDrawdown:    stats.MaxDrawdown,
		SharpeRatio:    stats.SharpeRatio,
		SortinoRatio:   stats.SortinoRatio,
		ProfitFactor:   stats.ProfitFactor,
		WinRate:        stats.WinRate,
		TotalTrades:    stats.TotalTrades,
		WinningTrades:  stats.WinningTrades,
		LosingTrades:   stats.LosingTrades,
		TotalFees:      stats.TotalFees,
		Liquidated:     result.Liquidated,
		Termination:    result.Termination,
		SignalErrors:   result.SignalErrors,
		DailyReturns:   stats.DailyReturns,
	}, nil
}

// ratioValue 无穷值写入 NULL
func ratioValue(r backtest.Ratio) sql.NullFloat64 {
	f := r.Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

// SaveBacktestRun 保存回测运行记录
func (p *PostgresDB) SaveBacktestRun(ctx context.Context, run *BacktestRun) error {
	query := `
		INSERT INTO backtest_runs (
			id, name, symbol, timeframe, provider, config,
			start_time, end_time, initial_capital, final_equity,
			total_return, max_drawdown, sharpe_ratio, sortino_ratio, profit_factor, win_rate,
			total_trades, winning_trades, losing_trades, total_fees,
			liquidated, termination, signal_errors, daily_returns
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24
		)
	`

	_, err := p.db.ExecContext(ctx, query,
		run.ID, run.Name, run.Symbol, run.Timeframe, run.Provider, string(run.Config),
		run.StartTime, run.EndTime, run.InitialCapital, run.FinalEquity,
		run.TotalReturn, run.MaxDrawdown, ratioValue(run.SharpeRatio), ratioValue(run.SortinoRatio),
		ratioValue(run.ProfitFactor), run.WinRate.Float64(),
		run.TotalTrades, run.WinningTrades, run.LosingTrades, run.TotalFees,
		run.Liquidated, string(run.Termination), run.SignalErrors, pq.Array(run.DailyReturns),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateRun, run.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert backtest run: %w", err)
	}
	return nil
}

// SaveTrades 批量保存交易记录
func (p *PostgresDB) SaveTrades(ctx context.Context, runID string, trades []*backtest.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (
			backtest_run_id, position_id, side, size, entry_time, exit_time,
			entry_price, exit_price, exit_reason, pnl, fees, net_pnl, return_pct, balance
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, trade := range trades {
		_, err = stmt.ExecContext(ctx,
			runID, trade.ID, string(trade.Side), trade.Size, trade.EntryTime, trade.ExitTime,
			trade.EntryPrice, trade.ExitPrice, string(trade.Reason), trade.PnL, trade.Fees,
			trade.NetPnL, trade.ReturnPct, trade.Balance,
		)
		if err != nil {
			return fmt.Errorf("failed to insert trade: %w", err)
		}
	}

	return tx.Commit()
}

// SaveResult 保存运行摘要和全部交易，返回运行ID
func (p *PostgresDB) SaveResult(ctx context.Context, name, timeframe string, result *backtest.Result) (string, error) {
	run, err := NewBacktestRun(name, timeframe, result)
	if err != nil {
		return "", err
	}
	if err := p.SaveBacktestRun(ctx, run); err != nil {
		return "", err
	}
	if err := p.SaveTrades(ctx, run.ID, result.Trades); err != nil {
		return "", err
	}
	return run.ID, nil
}

// SaveGridResults 保存一次参数扫描的全部结果，返回扫描ID
func (p *PostgresDB) SaveGridResults(ctx context.Context, results []*backtest.GridResult) (string, error) {
	scanID := uuid.NewString()
	if len(results) == 0 {
		return scanID, nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO grid_results (
			scan_id, fast, slow, stop_pct, target_pct, leverage,
			total_trades, final_equity, sharpe_ratio, max_drawdown, liquidated, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		var trades sql.NullInt64
		var final, mdd decimal.NullDecimal
		var sharpe sql.NullFloat64
		liquidated := false
		if r.Result != nil {
			stats := r.Result.Statistics
			trades = sql.NullInt64{Int64: int64(stats.TotalTrades), Valid: true}
			final = decimal.NullDecimal{Decimal: stats.FinalEquity, Valid: true}
			mdd = decimal.NullDecimal{Decimal: stats.MaxDrawdown, Valid: true}
			sharpe = ratioValue(stats.SharpeRatio)
			liquidated = r.Result.Liquidated
		}

		_, err = stmt.ExecContext(ctx,
			scanID, r.Point.Fast, r.Point.Slow, r.Point.StopPct, r.Point.TargetPct, r.Point.Leverage,
			trades, final, sharpe, mdd, liquidated, r.Err,
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert grid result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit grid results: %w", err)
	}
	return scanID, nil
}
