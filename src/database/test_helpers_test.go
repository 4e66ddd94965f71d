package database

import (
	"context"
	"database/sql/driver"
	"sort"
	"sync"
	"time"

	"stocksense/src/endpoint"
	"stocksense/src/timeframes"

	"github.com/shopspring/decimal"
)

var testStart = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

// episodeRunValues 与 episodeRunArgs 相同的参数，供 sqlmock.WithArgs 使用
func episodeRunValues(run *EpisodeRun) []driver.Value {
	args := episodeRunArgs(run)
	values := make([]driver.Value, len(args))
	for i, a := range args {
		values[i] = a
	}
	return values
}

// createTestKline 构造一根K线，close 由 i 决定
func createTestKline(openTime time.Time, tf timeframes.Timeframe, i int) *endpoint.KlineData {
	c := decimal.NewFromInt(int64(50000 + i))
	return &endpoint.KlineData{
		OpenTime:    openTime,
		Open:        c.Sub(decimal.NewFromInt(10)),
		High:        c.Add(decimal.NewFromInt(100)),
		Low:         c.Sub(decimal.NewFromInt(100)),
		Close:       c,
		Volume:      decimal.NewFromInt(100),
		CloseTime:   openTime.Add(tf.Duration() - time.Millisecond),
		QuoteVolume: c.Mul(decimal.NewFromInt(100)),
	}
}

// memoryStore 内存版 KlineStore
type memoryStore struct {
	mu     sync.Mutex
	klines map[string]map[int64]*endpoint.KlineData
	runs   []*EpisodeRun
	getErr error
	saves  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{klines: make(map[string]map[int64]*endpoint.KlineData)}
}

func (m *memoryStore) SaveKlines(_ context.Context, symbol, timeframe string, klines []*endpoint.KlineData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := symbol + "|" + timeframe
	if m.klines[key] == nil {
		m.klines[key] = make(map[int64]*endpoint.KlineData)
	}
	for _, k := range klines {
		m.klines[key][k.OpenTime.UnixMilli()] = k
	}
	m.saves++
	return nil
}

func (m *memoryStore) GetKlines(_ context.Context, symbol, timeframe string, startTime, endTime int64, limit int) ([]*endpoint.KlineData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*endpoint.KlineData
	for ms, k := range m.klines[symbol+"|"+timeframe] {
		if (startTime == 0 || ms >= startTime) && (endTime == 0 || ms < endTime) {
			result = append(result, k)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OpenTime.Before(result[j].OpenTime) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *memoryStore) GetLatestKlineTime(_ context.Context, symbol, timeframe string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest int64
	for ms := range m.klines[symbol+"|"+timeframe] {
		latest = max(latest, ms)
	}
	return latest, nil
}

func (m *memoryStore) SaveEpisodeRun(_ context.Context, run *EpisodeRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memoryStore) Close() error {
	return nil
}

// fakeFetcher 为任意区间生成连续K线，并记录请求的区间
type fakeFetcher struct {
	mu    sync.Mutex
	calls []TimeRange
	err   error
}

func (f *fakeFetcher) FetchKlines(_ context.Context, _ string, tf timeframes.Timeframe, startTime, endTime int64) ([]*endpoint.KlineData, error) {
	f.mu.Lock()
	f.calls = append(f.calls, TimeRange{Start: startTime, End: endTime})
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	var klines []*endpoint.KlineData
	step := tf.Milliseconds()
	for ms := startTime; ms < endTime; ms += step {
		i := int((ms - testStart.UnixMilli()) / step)
		klines = append(klines, createTestKline(fromMillis(ms), tf, i))
	}
	return klines, nil
}
