package database

import (
	"context"
	"fmt"
	"time"

	"stocksense/src/endpoint"

	"github.com/shopspring/decimal"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// KlineStore K线缓存与回合记录存储
type KlineStore interface {
	// SaveKlines 写入K线，已存在的 (symbol, timeframe, open_time) 覆盖
	SaveKlines(ctx context.Context, symbol, timeframe string, klines []*endpoint.KlineData) error

	// GetKlines 读取 [startTime, endTime) 内的K线，单位毫秒，0 表示不限
	GetKlines(ctx context.Context, symbol, timeframe string, startTime, endTime int64, limit int) ([]*endpoint.KlineData, error)

	// GetLatestKlineTime 最新一根K线的开盘时间（毫秒），无数据时为 0
	GetLatestKlineTime(ctx context.Context, symbol, timeframe string) (int64, error)

	// SaveEpisodeRun 保存一次回合的汇总
	SaveEpisodeRun(ctx context.Context, run *EpisodeRun) error

	Close() error
}

// EpisodeRun 回合运行记录
type EpisodeRun struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Endpoint       string          `json:"endpoint"`
	Symbols        string          `json:"symbols"` // 逗号分隔
	Timeframe      string          `json:"timeframe"`
	Policy         string          `json:"policy"`
	Split          string          `json:"split"` // train / val / test
	StartTime      time.Time       `json:"start_time"`
	EndTime        time.Time       `json:"end_time"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	FinalValue     decimal.Decimal `json:"final_value"`
	TotalReturn    decimal.Decimal `json:"total_return"`
	MaxDrawdown    decimal.Decimal `json:"max_drawdown"`
	SharpeRatio    decimal.Decimal `json:"sharpe_ratio"`
	FeesPaid       decimal.Decimal `json:"fees_paid"`
	Steps          int             `json:"steps"`
	Trades         int             `json:"trades"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Open 按配置打开存储，postgres 未配置 host 时使用 sqlite3
func Open(cfg Config) (KlineStore, error) {
	switch {
	case cfg.Driver == DriverPostgres && cfg.Host != "":
		db, err := NewPostgresDB(cfg)
		if err != nil {
			return nil, err
		}
		return db, nil
	case cfg.Driver == DriverPostgres, cfg.Driver == DriverSQLite, cfg.Driver == "":
		db, err := NewSQLiteDB(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
