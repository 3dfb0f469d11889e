package database

// schema 建表语句，按顺序执行
var schema = []string{
	`CREATE TABLE IF NOT EXISTS klines (
		id BIGSERIAL PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL,
		timeframe VARCHAR(10) NOT NULL,
		open_time BIGINT NOT NULL,
		close_time BIGINT NOT NULL,
		open_price NUMERIC(20, 8) NOT NULL,
		high_price NUMERIC(20, 8) NOT NULL,
		low_price NUMERIC(20, 8) NOT NULL,
		close_price NUMERIC(20, 8) NOT NULL,
		volume NUMERIC(30, 8) NOT NULL,
		quote_volume NUMERIC(30, 8),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (symbol, timeframe, open_time)
	)`,
	`CREATE TABLE IF NOT EXISTS sync_status (
		id SERIAL PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL,
		timeframe VARCHAR(10) NOT NULL,
		last_sync_time BIGINT NOT NULL,
		last_open_time BIGINT NOT NULL,
		total_records INTEGER NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (symbol, timeframe)
	)`,
	`CREATE TABLE IF NOT EXISTS backtest_runs (
		id UUID PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		symbol VARCHAR(20) NOT NULL,
		timeframe VARCHAR(10) NOT NULL,
		provider VARCHAR(50) NOT NULL,
		config JSONB NOT NULL,
		start_time TIMESTAMPTZ,
		end_time TIMESTAMPTZ,
		initial_capital NUMERIC(20, 8) NOT NULL,
		final_equity NUMERIC(20, 8) NOT NULL,
		total_return NUMERIC(20, 8) NOT NULL,
		max_drawdown NUMERIC(20, 8) NOT NULL,
		sharpe_ratio DOUBLE PRECISION,
		sortino_ratio DOUBLE PRECISION,
		profit_factor DOUBLE PRECISION,
		win_rate DOUBLE PRECISION NOT NULL,
		total_trades INTEGER NOT NULL,
		winning_trades INTEGER NOT NULL,
		losing_trades INTEGER NOT NULL,
		total_fees NUMERIC(20, 8) NOT NULL,
		liquidated BOOLEAN NOT NULL DEFAULT FALSE,
		termination VARCHAR(20) NOT NULL,
		signal_errors INTEGER NOT NULL DEFAULT 0,
		daily_returns DOUBLE PRECISION[],
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id BIGSERIAL PRIMARY KEY,
		backtest_run_id UUID NOT NULL REFERENCES backtest_runs(id) ON DELETE CASCADE,
		position_id UUID NOT NULL,
		side VARCHAR(10) NOT NULL,
		size NUMERIC(30, 12) NOT NULL,
		entry_time TIMESTAMPTZ NOT NULL,
		exit_time TIMESTAMPTZ NOT NULL,
		entry_price NUMERIC(20, 8) NOT NULL,
		exit_price NUMERIC(20, 8) NOT NULL,
		exit_reason VARCHAR(20) NOT NULL,
		pnl NUMERIC(30, 12) NOT NULL,
		fees NUMERIC(30, 12) NOT NULL,
		net_pnl NUMERIC(30, 12) NOT NULL,
		return_pct NUMERIC(20, 8) NOT NULL,
		balance NUMERIC(30, 12) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS grid_results (
		id BIGSERIAL PRIMARY KEY,
		scan_id UUID NOT NULL,
		fast INTEGER NOT NULL,
		slow INTEGER NOT NULL,
		stop_pct DOUBLE PRECISION NOT NULL,
		target_pct DOUBLE PRECISION NOT NULL,
		leverage NUMERIC(10, 4) NOT NULL,
		total_trades INTEGER,
		final_equity NUMERIC(20, 8),
		sharpe_ratio DOUBLE PRECISION,
		max_drawdown NUMERIC(20, 8),
		liquidated BOOLEAN NOT NULL DEFAULT FALSE,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
}
