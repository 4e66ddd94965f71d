package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"stocksense/src/endpoint"

	// Register sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS klines (
	symbol       TEXT    NOT NULL,
	timeframe    TEXT    NOT NULL,
	open_time    INTEGER NOT NULL,
	close_time   INTEGER NOT NULL,
	open_price   TEXT    NOT NULL,
	high_price   TEXT    NOT NULL,
	low_price    TEXT    NOT NULL,
	close_price  TEXT    NOT NULL,
	volume       TEXT    NOT NULL,
	quote_volume TEXT    NOT NULL,
	PRIMARY KEY (symbol, timeframe, open_time)
);
CREATE TABLE IF NOT EXISTS episode_runs (
	id              TEXT PRIMARY KEY,
	name            TEXT    NOT NULL,
	endpoint        TEXT    NOT NULL,
	symbols         TEXT    NOT NULL,
	timeframe       TEXT    NOT NULL,
	policy          TEXT    NOT NULL,
	split           TEXT    NOT NULL,
	start_time      DATETIME NOT NULL,
	end_time        DATETIME NOT NULL,
	initial_capital TEXT    NOT NULL,
	final_value     TEXT    NOT NULL,
	total_return    TEXT    NOT NULL,
	max_drawdown    TEXT    NOT NULL,
	sharpe_ratio    TEXT    NOT NULL,
	fees_paid       TEXT    NOT NULL,
	steps           INTEGER NOT NULL,
	trades          INTEGER NOT NULL,
	status          TEXT    NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteDB 本地文件K线缓存，未配置 PostgreSQL 时使用
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB 打开 sqlite 文件并建表，path 为 ":memory:" 时使用内存库
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open(DriverSQLite, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// sqlite 单写者
	db.SetMaxOpenConns(1)

	s := &SQLiteDB{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate 创建缺失的表
func (s *SQLiteDB) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to migrate sqlite: %w", err)
	}
	return nil
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// SaveKlines 在一个事务中写入K线，主键冲突时覆盖
func (s *SQLiteDB) SaveKlines(ctx context.Context, symbol, timeframe string, klines []*endpoint.KlineData) error {
	if len(klines) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO klines (
			symbol, timeframe, open_time, close_time,
			open_price, high_price, low_price, close_price,
			volume, quote_volume
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
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

func (s *SQLiteDB) GetKlines(ctx context.Context, symbol, timeframe string, startTime, endTime int64, limit int) ([]*endpoint.KlineData, error) {
	query := `
		SELECT open_time, close_time, open_price, high_price, low_price, close_price,
		       volume, quote_volume
		FROM klines
		WHERE symbol = ? AND timeframe = ?`
	args := []any{symbol, timeframe}

	if startTime > 0 {
		query += " AND open_time >= ?"
		args = append(args, startTime)
	}
	if endTime > 0 {
		query += " AND open_time < ?"
		args = append(args, endTime)
	}
	query += " ORDER BY open_time ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query klines: %w", err)
	}
	defer rows.Close()

	return scanKlines(rows)
}

func (s *SQLiteDB) GetLatestKlineTime(ctx context.Context, symbol, timeframe string) (int64, error) {
	var openTime sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(open_time) FROM klines WHERE symbol = ? AND timeframe = ?",
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

func (s *SQLiteDB) SaveEpisodeRun(ctx context.Context, run *EpisodeRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episode_runs (
			id, name, endpoint, symbols, timeframe, policy, split,
			start_time, end_time, initial_capital, final_value,
			total_return, max_drawdown, sharpe_ratio, fees_paid,
			steps, trades, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		episodeRunArgs(run)...,
	)
	if err != nil {
		return fmt.Errorf("failed to save episode run: %w", err)
	}
	return nil
}
