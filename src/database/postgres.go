package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradingbot/src/cex"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// uniqueViolation PostgreSQL 唯一约束冲突错误码
const uniqueViolation = "23505"

// ErrDuplicateRun 回测记录ID已存在
var ErrDuplicateRun = errors.New("backtest run already saved")

// PostgresDB PostgreSQL数据库连接
type PostgresDB struct {
	db *sql.DB
}

// SyncStatus 数据同步状态
type SyncStatus struct {
	ID           int       `json:"id"`
	Symbol       string    `json:"symbol"`
	Timeframe    string    `json:"timeframe"`
	LastSyncTime time.Time `json:"last_sync_time"`
	LastOpenTime time.Time `json:"last_open_time"`
	TotalRecords int       `json:"total_records"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message"`
}

// NewPostgresDB 创建PostgreSQL数据库连接
func NewPostgresDB(conf DatabaseConfig) (*PostgresDB, error) {
	db, err := sql.Open("postgres", conf.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试连接
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if conf.MaxOpenConns > 0 {
		db.SetMaxOpenConns(conf.MaxOpenConns)
	}
	if conf.MaxIdleConns > 0 {
		db.SetMaxIdleConns(conf.MaxIdleConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresDB{db: db}, nil
}

// Close 关闭数据库连接
func (p *PostgresDB) Close() error {
	return p.db.Close()
}

// Migrate 创建缺失的表
func (p *PostgresDB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

const upsertKlineColumns = `
		INSERT INTO klines (
			symbol, timeframe, open_time, close_time,
			open_price, high_price, low_price, close_price,
			volume, quote_volume
		) VALUES `

const upsertKlineConflict = `
		ON CONFLICT (symbol, timeframe, open_time)
		DO UPDATE SET
			close_time = EXCLUDED.close_time,
			open_price = EXCLUDED.open_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			close_price = EXCLUDED.close_price,
			volume = EXCLUDED.volume,
			quote_volume = EXCLUDED.quote_volume,
			updated_at = CURRENT_TIMESTAMP
		WHERE (
			klines.close_time != EXCLUDED.close_time OR
			klines.open_price != EXCLUDED.open_price OR
			klines.high_price != EXCLUDED.high_price OR
			klines.low_price != EXCLUDED.low_price OR
			klines.close_price != EXCLUDED.close_price OR
			klines.volume != EXCLUDED.volume OR
			klines.quote_volume IS DISTINCT FROM EXCLUDED.quote_volume
		)
	`

func klineArgs(symbol, timeframe string, k *cex.KlineData) []interface{} {
	return []interface{}{
		symbol, timeframe, k.OpenTime.UnixMilli(), k.CloseTime.UnixMilli(),
		k.Open, k.High, k.Low, k.Close,
		k.Volume, k.QuoteVolume,
	}
}

// SaveKlines 批量保存K线数据，已存在的K线按 (symbol, timeframe, open_time) 更新
func (p *PostgresDB) SaveKlines(ctx context.Context, symbol, timeframe string, klines []*cex.KlineData) error {
	if len(klines) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertKlineColumns+`($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`+upsertKlineConflict)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, kline := range klines {
		if _, err = stmt.ExecContext(ctx, klineArgs(symbol, timeframe, kline)...); err != nil {
			return fmt.Errorf("failed to insert kline: %w", err)
		}
	}

	return tx.Commit()
}

// SaveKlinesBatch 批量保存K线数据（多行 VALUES 版本）
func (p *PostgresDB) SaveKlinesBatch(ctx context.Context, symbol, timeframe string, klines []*cex.KlineData) error {
	// 分批处理，避免SQL语句过长
	const batchSize = 100
	for i := 0; i < len(klines); i += batchSize {
		end := i + batchSize
		if end > len(klines) {
			end = len(klines)
		}

		if err := p.saveBatch(ctx, symbol, timeframe, klines[i:end]); err != nil {
			return err
		}
	}

	return nil
}

// saveBatch 保存一批K线数据
func (p *PostgresDB) saveBatch(ctx context.Context, symbol, timeframe string, klines []*cex.KlineData) error {
	const columns = 10

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	valueStrings := make([]string, 0, len(klines))
	valueArgs := make([]interface{}, 0, len(klines)*columns)

	for i, kline := range klines {
		placeholders := make([]string, columns)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", i*columns+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ", ")+")")
		valueArgs = append(valueArgs, klineArgs(symbol, timeframe, kline)...)
	}

	query := upsertKlineColumns + strings.Join(valueStrings, ",") + upsertKlineConflict
	if _, err = tx.ExecContext(ctx, query, valueArgs...); err != nil {
		return fmt.Errorf("failed to batch insert klines: %w", err)
	}

	return tx.Commit()
}

// GetKlines 获取K线数据，startTime/endTime 为零值时不限制，limit <= 0 时不限制
func (p *PostgresDB) GetKlines(ctx context.Context, pair cex.TradingPair, timeframe string, startTime, endTime time.Time, limit int) ([]*cex.KlineData, error) {
	query := `
		SELECT open_time, close_time, open_price, high_price, low_price, close_price,
		       volume, quote_volume
		FROM klines
		WHERE symbol = $1 AND timeframe = $2
	`
	args := []interface{}{pair.Symbol(), timeframe}
	argIndex := 3

	if !startTime.IsZero() {
		query += fmt.Sprintf(" AND open_time >= $%d", argIndex)
		args = append(args, startTime.UnixMilli())
		argIndex++
	}

	if !endTime.IsZero() {
		query += fmt.Sprintf(" AND open_time <= $%d", argIndex)
		args = append(args, endTime.UnixMilli())
		argIndex++
	}

	query += " ORDER BY open_time ASC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query klines: %w", err)
	}
	defer rows.Close()

	var klines []*cex.KlineData
	for rows.Next() {
		var openTime, closeTime int64
		var quoteVolume decimal.NullDecimal
		kline := &cex.KlineData{TradingPair: pair}
		err := rows.Scan(
			&openTime, &closeTime,
			&kline.Open, &kline.High, &kline.Low, &kline.Close,
			&kline.Volume, &quoteVolume,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan kline: %w", err)
		}
		kline.OpenTime = time.UnixMilli(openTime).UTC()
		kline.CloseTime = time.UnixMilli(closeTime).UTC()
		if quoteVolume.Valid {
			kline.QuoteVolume = quoteVolume.Decimal
		}
		klines = append(klines, kline)
	}

	return klines, rows.Err()
}

// GetLatestKlineTime 获取最新K线时间，没有数据时返回零值
func (p *PostgresDB) GetLatestKlineTime(ctx context.Context, symbol, timeframe string) (time.Time, error) {
	var openTime sql.NullInt64
	err := p.db.QueryRowContext(ctx,
		"SELECT MAX(open_time) FROM klines WHERE symbol = $1 AND timeframe = $2",
		symbol, timeframe,
	).Scan(&openTime)

	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest kline time: %w", err)
	}

	if !openTime.Valid {
		return time.Time{}, nil
	}

	return time.UnixMilli(openTime.Int64).UTC(), nil
}

// UpdateSyncStatus 更新同步状态
func (p *PostgresDB) UpdateSyncStatus(ctx context.Context, symbol, timeframe string, lastOpenTime time.Time, totalRecords int, status, errorMsg string) error {
	query := `
		INSERT INTO sync_status (symbol, timeframe, last_sync_time, last_open_time, total_records, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, timeframe)
		DO UPDATE SET
			last_sync_time = $3,
			last_open_time = $4,
			total_records = $5,
			status = $6,
			error_message = $7,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := p.db.ExecContext(ctx, query,
		symbol, timeframe, time.Now().UnixMilli(), lastOpenTime.UnixMilli(), totalRecords, status, errorMsg,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}
	return nil
}

// GetSyncStatus 获取同步状态，不存在时返回 nil
func (p *PostgresDB) GetSyncStatus(ctx context.Context, symbol, timeframe string) (*SyncStatus, error) {
	var status SyncStatus
	var lastSync, lastOpen int64
	err := p.db.QueryRowContext(ctx,
		"SELECT id, symbol, timeframe, last_sync_time, last_open_time, total_records, status, error_message FROM sync_status WHERE symbol = $1 AND timeframe = $2",
		symbol, timeframe,
	).Scan(
		&status.ID, &status.Symbol, &status.Timeframe, &lastSync,
		&lastOpen, &status.TotalRecords, &status.Status, &status.ErrorMessage,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get sync status: %w", err)
	}

	status.LastSyncTime = time.UnixMilli(lastSync).UTC()
	status.LastOpenTime = time.UnixMilli(lastOpen).UTC()
	return &status, nil
}

// isUniqueViolation 判断是否为唯一约束冲突
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
