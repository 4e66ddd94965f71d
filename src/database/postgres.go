package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"stocksense/src/endpoint"

	_ "github.com/lib/pq"
)

// 单条 INSERT 的最大行数，避免SQL语句过长
const batchSize = 100

const postgresSchema = `
CREATE TABLE IF NOT EXISTS klines (
	id           BIGSERIAL PRIMARY KEY,
	symbol       VARCHAR(32) NOT NULL,
	timeframe    VARCHAR(8)  NOT NULL,
	open_time    BIGINT      NOT NULL,
	close_time   BIGINT      NOT NULL,
	open_price   NUMERIC     NOT NULL,
	high_price   NUMERIC     NOT NULL,
	low_price    NUMERIC     NOT NULL,
	close_price  NUMERIC     NOT NULL,
	volume       NUMERIC     NOT NULL,
	quote_volume NUMERIC     NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (symbol, timeframe, open_time)
);
CREATE TABLE IF NOT EXISTS episode_runs (
	id              UUID PRIMARY KEY,
	name            TEXT        NOT NULL,
	endpoint        TEXT        NOT NULL,
	symbols         TEXT        NOT NULL,
	timeframe       VARCHAR(8)  NOT NULL,
	policy          TEXT        NOT NULL,
	split           VARCHAR(8)  NOT NULL,
	start_time      TIMESTAMPTZ NOT NULL,
	end_time        TIMESTAMPTZ NOT NULL,
	initial_capital NUMERIC     NOT NULL,
	final_value     NUMERIC     NOT NULL,
	total_return    NUMERIC     NOT NULL,
	max_drawdown    NUMERIC     NOT NULL,
	sharpe_ratio    NUMERIC     NOT NULL,
	fees_paid       NUMERIC     NOT NULL,
	steps           INTEGER     NOT NULL,
	trades          INTEGER     NOT NULL,
	status          VARCHAR(16) NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const klineUpsert = `
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
			klines.close_price != EXCLUDED.close_price OR
			klines.volume != EXCLUDED.volume
		)
`

// PostgresDB PostgreSQL数据库连接
type PostgresDB struct {
	db *sql.DB
}

// NewPostgresDB 创建PostgreSQL数据库连接并建表
func NewPostgresDB(cfg Config) (*PostgresDB, error) {
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	psqlInfo := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslmode)

	db, err := sql.Open(DriverPostgres, psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试连接
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	p := &PostgresDB{db: db}
	if err := p.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// Migrate 创建缺失的表
func (p *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close 关闭数据库连接
func (p *PostgresDB) Close() error {
	return p.db.Close()
}

// SaveKlines 保存K线数据，超过一批时走批量插入
func (p *PostgresDB) SaveKlines(ctx context.Context, symbol, timeframe string, klines []*endpoint.KlineData) error {
	if len(klines) == 0 {
		return nil
	}
	if len(klines) > batchSize {
		return p.SaveKlinesBatch(ctx, symbol, timeframe, klines)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO klines (
			symbol, timeframe, open_time, close_time,
			open_price, high_price, low_price, close_price,
			volume, quote_volume
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`+klineUpsert)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, kline := range klines {
		_, err = stmt.ExecContext(ctx,
			symbol, timeframe, toMillis(kline.OpenTime), toMillis(kline.CloseTime),
			kline.Open, kline.High, kline.Low, kline.Close,
			kline.Volume, kline.QuoteVolume,
		)
		if err != nil {
			return fmt.Errorf("failed to insert kline: %w", err)
		}
	}

	return tx.Commit()
}

// SaveKlinesBatch 分批写入K线数据
func (p *PostgresDB) SaveKlinesBatch(ctx context.Context, symbol, timeframe string, klines []*endpoint.KlineData) error {
	for i := 0; i < len(klines); i += batchSize {
		end := min(i+batchSize, len(klines))
		if err := p.saveBatch(ctx, symbol, timeframe, klines[i:end]); err != nil {
			return err
		}
	}
	return nil
}

// saveBatch 用一条多值 INSERT 保存一批K线
func (p *PostgresDB) saveBatch(ctx context.Context, symbol, timeframe string, klines []*endpoint.KlineData) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const columns = 10
	valueStrings := make([]string, 0, len(klines))
	valueArgs := make([]any, 0, len(klines)*columns)

	for i, kline := range klines {
		placeholders := make([]string, columns)
		for c := range placeholders {
			placeholders[c] = fmt.Sprintf("$%d", i*columns+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ", ")+")")

		valueArgs = append(valueArgs,
			symbol, timeframe, toMillis(kline.OpenTime), toMillis(kline.CloseTime),
			kline.Open, kline.High, kline.Low, kline.Close,
			kline.Volume, kline.QuoteVolume,
		)
	}

	query := `
		INSERT INTO klines (
			symbol, timeframe, open_time, close_time,
			open_price, high_price, low_price, close_price,
			volume, quote_volume
		) VALUES ` + strings.Join(valueStrings, ",") + klineUpsert

	if _, err = tx.ExecContext(ctx, query, valueArgs...); err != nil {
		return fmt.Errorf("failed to batch insert klines: %w", err)
	}

	return tx.Commit()
}

// GetKlines 获取K线数据
func (p *PostgresDB) GetKlines(ctx context.Context, symbol, timeframe string, startTime, endTime int64, limit int) ([]*endpoint.KlineData, error) {
	query := `
		SELECT open_time, close_time, open_price, high_price, low_price, close_price,
		       volume, quote_volume
		FROM klines
		WHERE symbol = $1 AND timeframe = $2
	`
	args := []any{symbol, timeframe}
	argIndex := 3

	if startTime > 0 {
		query += fmt.Sprintf(" AND open_time >= $%d", argIndex)
		args = append(args, startTime)
		argIndex++
	}

	if endTime > 0 {
		query += fmt.Sprintf(" AND open_time < $%d", argIndex)
		args = append(args, endTime)
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

	return scanKlines(rows)
}

// GetLatestKlineTime 获取最新K线时间
func (p *PostgresDB) GetLatestKlineTime(ctx context.Context, symbol, timeframe string) (int64, error) {
	var openTime sql.NullInt64
	err := p.db.QueryRowContext(ctx,
		"SELECT MAX(open_time) FROM klines WHERE symbol = $1 AND timeframe = $2",
		symbol, timeframe,
	).Scan(&openTime)

	if err != nil {
		return 0, fmt.Errorf("failed to get latest kline time: %w", err)
	}

	if !openTime.Valid {
		return 0, nil
	}

	return openTime.Int64, nil
}

// SaveEpisodeRun 保存回合运行记录
func (p *PostgresDB) SaveEpisodeRun(ctx context.Context, run *EpisodeRun) error {
	query := `
		INSERT INTO episode_runs (
			id, name, endpoint, symbols, timeframe, policy, split,
			start_time, end_time, initial_capital, final_value,
			total_return, max_drawdown, sharpe_ratio, fees_paid,
			steps, trades, status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18
		)
	`

	_, err := p.db.ExecContext(ctx, query, episodeRunArgs(run)...)
	if err != nil {
		return fmt.Errorf("failed to save episode run: %w", err)
	}
	return nil
}

func episodeRunArgs(run *EpisodeRun) []any {
	return []any{
		run.ID, run.Name, run.Endpoint, run.Symbols, run.Timeframe, run.Policy, run.Split,
		run.StartTime, run.EndTime, run.InitialCapital, run.FinalValue,
		run.TotalReturn, run.MaxDrawdown, run.SharpeRatio, run.FeesPaid,
		run.Steps, run.Trades, run.Status,
	}
}

func scanKlines(rows *sql.Rows) ([]*endpoint.KlineData, error) {
	var klines []*endpoint.KlineData
	for rows.Next() {
		var openTime, closeTime int64
		kline := &endpoint.KlineData{}
		err := rows.Scan(
			&openTime, &closeTime,
			&kline.Open, &kline.High, &kline.Low, &kline.Close,
			&kline.Volume, &kline.QuoteVolume,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan kline: %w", err)
		}
		kline.OpenTime = fromMillis(openTime)
		kline.CloseTime = fromMillis(closeTime)
		klines = append(klines, kline)
	}

	return klines, rows.Err()
}
