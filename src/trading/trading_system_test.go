package trading

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"stocksense/src/config"
	"stocksense/src/database"
	"stocksense/src/endpoint"
	"stocksense/src/endpoint/endpointtest"
	"stocksense/src/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	btc = endpoint.TradingPair{Base: "BTC", Quote: "USDT"}
	eth = endpoint.TradingPair{Base: "ETH", Quote: "USDT"}
)

// createTestConfig 480 根小时K线，成交量窗口 24，预处理后 457 行
func createTestConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Data.Endpoint = endpointtest.Name
	cfg.Data.Symbols = []string{"BTC/USDT", "ETH/USDT"}
	cfg.Data.Timeframe = "1h"
	cfg.Data.Since = "2024-01-01"
	cfg.Data.Until = "2024-01-21"
	cfg.Data.VolumeWindow = 24
	cfg.Environment.Window = 5
	cfg.Environment.TradingFee = 0.001
	cfg.Environment.NValEpisodes = 2
	cfg.Policy.Memory = 50
	cfg.Output.Dir = t.TempDir()
	return &cfg
}

func createTestRegistry() (*endpoint.Registry, *endpointtest.Endpoint) {
	registry := endpoint.NewRegistry()
	ep := endpointtest.New(btc, eth)
	endpointtest.Register(registry, ep)
	return registry, ep
}

// recordingStore 只记录回合的存储
type recordingStore struct {
	mu   sync.Mutex
	runs []*database.EpisodeRun
}

func (s *recordingStore) SaveKlines(context.Context, string, string, []*endpoint.KlineData) error {
	return nil
}

func (s *recordingStore) GetKlines(context.Context, string, string, int64, int64, int) ([]*endpoint.KlineData, error) {
	return nil, nil
}

func (s *recordingStore) GetLatestKlineTime(context.Context, string, string) (int64, error) {
	return 0, nil
}

func (s *recordingStore) SaveEpisodeRun(_ context.Context, run *database.EpisodeRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *recordingStore) Close() error {
	return nil
}

func TestTradingSystem_LoadFrame(t *testing.T) {
	registry, ep := createTestRegistry()
	ts, err := NewTradingSystem(createTestConfig(t), registry)
	require.NoError(t, err)

	frame, err := ts.LoadFrame(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 457, frame.Len())
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, frame.Symbols)
	assert.Equal(t, 10, frame.NumFeatures())
	assert.Equal(t, 2, ep.Calls())
}

func TestTradingSystem_Run(t *testing.T) {
	registry, _ := createTestRegistry()
	cfg := createTestConfig(t)
	store := &recordingStore{}
	cfg.Output.SaveRuns = true

	var events atomic.Int64
	ts, err := NewTradingSystem(cfg, registry,
		WithStore(store),
		WithObserver(func(StepEvent) { events.Add(1) }),
	)
	require.NoError(t, err)

	result, err := ts.Run(context.Background())
	require.NoError(t, err)

	// 457 行按 0.7/0.1/0.2 切分：验证集 45 行，测试集 91 行
	require.Len(t, result.Validation, 2)
	for i, v := range result.Validation {
		assert.Equal(t, SplitVal, v.Split)
		assert.Equal(t, i, v.Episode)
		assert.Equal(t, metrics.OutcomeTruncated, v.Outcome)
		assert.Equal(t, 40, v.Summary.Steps)
	}

	require.NotNil(t, result.Test)
	assert.Equal(t, SplitTest, result.Test.Split)
	assert.Equal(t, metrics.OutcomeTruncated, result.Test.Outcome)
	assert.Equal(t, 86, result.Test.Summary.Steps)
	assert.Len(t, result.Test.Points, 87)
	assert.Equal(t, 1000.0, result.Test.Points[0].Value)
	assert.Equal(t, 0.0, result.Test.Points[0].Reward)
	require.NotNil(t, result.Test.Stats)
	assert.Equal(t, 86, result.Test.Stats.Steps)
	assert.True(t, result.Test.End.After(result.Test.Start))

	assert.Equal(t, int64(40+40+86), events.Load())
	assert.Equal(t, 50, ts.Memory().Len())

	// 输出文件
	raw, err := os.ReadFile(filepath.Join(result.OutputDir, "results.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Equal(t, "date,history,reward", lines[0])
	assert.Len(t, lines, 88)
	assert.FileExists(t, filepath.Join(result.OutputDir, "summary.json"))
	assert.FileExists(t, filepath.Join(result.OutputDir, "equity.png"))

	// 回合记录
	require.Len(t, store.runs, 3)
	assert.Equal(t, SplitTest, store.runs[0].Split)
	assert.Equal(t, "BTC/USDT,ETH/USDT", store.runs[0].Symbols)
	assert.Equal(t, 86, store.runs[0].Steps)
	assert.Equal(t, metrics.OutcomeTruncated, store.runs[0].Status)
	assert.True(t, strings.HasPrefix(store.runs[0].Name, result.Name))
}

func TestTradingSystem_Deterministic(t *testing.T) {
	registry, _ := createTestRegistry()
	cfg := createTestConfig(t)
	cfg.Environment.NValEpisodes = 0

	run := func() float64 {
		ts, err := NewTradingSystem(cfg.Clone(), registry)
		require.NoError(t, err)
		result, err := ts.Run(context.Background())
		require.NoError(t, err)
		return result.Test.Summary.FinalValue
	}

	assert.Equal(t, run(), run())
}

func TestTradingSystem_Policies(t *testing.T) {
	registry, _ := createTestRegistry()

	t.Run("现金不动", func(t *testing.T) {
		cfg := createTestConfig(t)
		cfg.Policy.Name = "cash"
		ts, err := NewTradingSystem(cfg, registry)
		require.NoError(t, err)

		frame, err := ts.LoadFrame(context.Background())
		require.NoError(t, err)
		result, err := ts.RunEpisode(context.Background(), "run", frame, SplitTrain, 0)
		require.NoError(t, err)

		assert.Equal(t, "hold", result.Policy)
		assert.Equal(t, 1000.0, result.Summary.FinalValue)
		assert.Equal(t, 0, result.Summary.Trades)
		for _, p := range result.Points {
			assert.Equal(t, 0.0, p.Reward)
		}
	})

	t.Run("循环动作", func(t *testing.T) {
		cfg := createTestConfig(t)
		cfg.Policy.Name = "sequence"
		cfg.Policy.Sequence = []int{0, 1, 2}
		ts, err := NewTradingSystem(cfg, registry)
		require.NoError(t, err)

		frame, err := ts.LoadFrame(context.Background())
		require.NoError(t, err)
		result, err := ts.RunEpisode(context.Background(), "run", frame.Slice(0, 20), SplitTrain, 0)
		require.NoError(t, err)

		assert.Equal(t, "sequence", result.Policy)
		assert.Greater(t, result.Summary.FeesPaid, 0.0)
		assert.Less(t, result.Summary.FinalValue, 1000.0*1.5)
	})

	t.Run("未知策略", func(t *testing.T) {
		cfg := createTestConfig(t)
		cfg.Policy.Name = "ppo"
		ts, err := NewTradingSystem(cfg, registry)
		require.NoError(t, err)

		_, err = ts.Run(context.Background())
		assert.ErrorContains(t, err, "unknown policy")
	})
}

func TestTradingSystem_ConfigurationErrors(t *testing.T) {
	registry, _ := createTestRegistry()

	t.Run("非法配置", func(t *testing.T) {
		cfg := createTestConfig(t)
		cfg.Environment.TradingFee = 1

		_, err := NewTradingSystem(cfg, registry)
		assert.True(t, IsConfigurationError(err))
	})

	t.Run("空注册表", func(t *testing.T) {
		_, err := NewTradingSystem(createTestConfig(t), nil)
		assert.True(t, IsConfigurationError(err))
	})

	t.Run("测试集不足一个窗口", func(t *testing.T) {
		cfg := createTestConfig(t)
		cfg.Data.TestRatio = 0.01
		ts, err := NewTradingSystem(cfg, registry)
		require.NoError(t, err)

		_, err = ts.Run(context.Background())
		assert.True(t, IsConfigurationError(err))
	})

	t.Run("未知数据源", func(t *testing.T) {
		cfg := createTestConfig(t)
		cfg.Data.Endpoint = "kraken"
		ts, err := NewTradingSystem(cfg, registry)
		require.NoError(t, err)

		_, err = ts.Run(context.Background())
		assert.ErrorIs(t, err, endpoint.ErrUnknownEndpoint)
	})
}

func TestTradingSystem_Cancelled(t *testing.T) {
	registry, _ := createTestRegistry()
	ts, err := NewTradingSystem(createTestConfig(t), registry)
	require.NoError(t, err)

	frame, err := ts.LoadFrame(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := ts.RunEpisode(ctx, "run", frame, SplitTrain, 0)

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, metrics.OutcomeError, result.Outcome)
	assert.Len(t, result.Points, 1)
}
