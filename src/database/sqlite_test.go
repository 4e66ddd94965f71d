package database

import (
	"context"
	"testing"

	"stocksense/src/endpoint"
	"stocksense/src/timeframes"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteDB_SaveKlines(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := &SQLiteDB{db: db}
	kline := createTestKline(testStart, timeframes.Timeframe1d, 0)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT OR REPLACE INTO klines").ExpectExec().
		WithArgs("ETHUSDT", "1d", int64(1640995200000), int64(1641081599999),
			kline.Open, kline.High, kline.Low, kline.Close,
			kline.Volume, kline.QuoteVolume).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = store.SaveKlines(context.Background(), "ETHUSDT", "1d", []*endpoint.KlineData{kline})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteDB_GetKlines(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := &SQLiteDB{db: db}
	rows := sqlmock.NewRows([]string{
		"open_time", "close_time", "open_price", "high_price", "low_price", "close_price",
		"volume", "quote_volume",
	}).
		AddRow(int64(1640995200000), int64(1641081599999), "1", "2", "0.5", "1.5", "10", "15").
		AddRow(int64(1641081600000), int64(1641167999999), "1.5", "2", "1", "1.8", "12", "21.6")

	mock.ExpectQuery("SELECT (.+) FROM klines WHERE symbol = \\? AND timeframe = \\? AND open_time >= \\?").
		WithArgs("ETHUSDT", "1d", int64(1640995200000)).
		WillReturnRows(rows)

	klines, err := store.GetKlines(context.Background(), "ETHUSDT", "1d", 1640995200000, 0, 0)
	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.Equal(t, "1.8", klines[1].Close.String())
	assert.True(t, klines[0].OpenTime.Before(klines[1].OpenTime))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteDB_GetLatestKlineTime(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := &SQLiteDB{db: db}
	mock.ExpectQuery("SELECT MAX\\(open_time\\) FROM klines").
		WithArgs("ETHUSDT", "1d").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(1641081600000)))

	latest, err := store.GetLatestKlineTime(context.Background(), "ETHUSDT", "1d")
	require.NoError(t, err)
	assert.Equal(t, int64(1641081600000), latest)
}

func TestSQLiteDB_SaveEpisodeRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := &SQLiteDB{db: db}
	run := &EpisodeRun{ID: "run-1", Name: "bench", Policy: "hold", Split: "val", Status: "completed"}

	mock.ExpectExec("INSERT INTO episode_runs").
		WithArgs(episodeRunValues(run)...).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.SaveEpisodeRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(Config{Driver: "mysql"})
	assert.Error(t, err)
}

func TestConfig_ForEndpoint(t *testing.T) {
	cfg := Config{DBName: "stocksense", Host: "db", SQLitePath: "data/klines.db"}
	got := cfg.ForEndpoint("binance")
	assert.Equal(t, "stocksense_binance", got.DBName)
	assert.Equal(t, "data/klines_binance.db", got.SQLitePath)
	assert.Equal(t, "stocksense", cfg.DBName)

	mem := Config{SQLitePath: ":memory:"}
	assert.Equal(t, ":memory:", mem.ForEndpoint("binance").SQLitePath)
}
