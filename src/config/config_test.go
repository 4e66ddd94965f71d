package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"stocksense/src/endpoint"
	"stocksense/src/environment"
	"stocksense/src/timeframes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{"默认配置", func(c *Config) {}, ""},
		{"空数据源", func(c *Config) { c.Data.Endpoint = "" }, "endpoint"},
		{"无交易对", func(c *Config) { c.Data.Symbols = nil }, "symbol"},
		{"非法交易对", func(c *Config) { c.Data.Symbols = []string{"BTCUSDT"} }, "invalid symbol"},
		{"非法周期", func(c *Config) { c.Data.Timeframe = "7m" }, "timeframe"},
		{"非法日期", func(c *Config) { c.Data.Since = "01/02/2023" }, "since"},
		{"结束早于开始", func(c *Config) { c.Data.Until = "2022-01-01" }, "must be after"},
		{"比例之和超过1", func(c *Config) { c.Data.TestRatio = 0.5 }, "sum"},
		{"负比例", func(c *Config) { c.Data.ValRatio = -0.1 }, "out of [0,1]"},
		{"零资金", func(c *Config) { c.Environment.InitialAmount = 0 }, "initial amount"},
		{"手续费为1", func(c *Config) { c.Environment.TradingFee = 1 }, "trading fee"},
		{"负窗口", func(c *Config) { c.Environment.Window = -1 }, "window"},
		{"负步数", func(c *Config) { c.Environment.MaxEpisodeSteps = -1 }, "max episode steps"},
		{"未知动作空间", func(c *Config) { c.Environment.ActionSpace = "box" }, "action space"},
		{"空策略", func(c *Config) { c.Policy.Name = "" }, "policy"},
		{"持有资产越界", func(c *Config) {
			c.Policy.Name = "hold"
			c.Policy.HoldAsset = 2
		}, "hold_asset"},
		{"持有现金", func(c *Config) {
			c.Policy.Name = "hold"
			c.Policy.HoldAsset = 1
		}, ""},
		{"空动作序列", func(c *Config) { c.Policy.Name = "sequence" }, "at least one action"},
		{"序列配连续空间", func(c *Config) {
			c.Policy.Name = "sequence"
			c.Policy.Sequence = []int{0, 1}
			c.Environment.ActionSpace = "continuous"
		}, "discrete action space"},
		{"序列动作越界", func(c *Config) {
			c.Policy.Name = "sequence"
			c.Policy.Sequence = []int{0, 2}
		}, "out of [0,1]"},
		{"合法序列", func(c *Config) {
			c.Policy.Name = "sequence"
			c.Policy.Sequence = []int{0, 1, 0}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(&c)

			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Accessors(t *testing.T) {
	c := Default()
	c.Data.Symbols = []string{"btc/usdt", "ETH/USDT"}
	c.Data.Timeframe = "4h"

	tf, err := c.GetTimeframe()
	require.NoError(t, err)
	assert.Equal(t, timeframes.Timeframe4h, tf)

	pairs, err := c.Pairs()
	require.NoError(t, err)
	assert.Equal(t, []endpoint.TradingPair{{Base: "BTC", Quote: "USDT"}, {Base: "ETH", Quote: "USDT"}}, pairs)

	since, err := c.GetSince()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), since)

	c.Data.Until = ""
	until, err := c.GetUntil()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), until, time.Minute)

	opts, err := c.EnvOptions()
	require.NoError(t, err)
	assert.Equal(t, 1000.0, opts.InitialCapital)
	assert.Equal(t, 0.0001, opts.FeeRate)
	assert.Equal(t, 10, opts.Window)
	assert.IsType(t, &environment.DiscreteSpace{}, opts.ActionSpace)
	assert.Equal(t, 2, opts.ActionSpace.NumAssets())
}

func TestAppConfig_Registered(t *testing.T) {
	// init 已把 AppConfig 交给 configs.Unmarshal，切片字段不能为 nil
	require.NotNil(t, AppConfig)
	assert.NotNil(t, AppConfig.Data.Symbols)
	assert.NotNil(t, AppConfig.Policy.Sequence)
	assert.NoError(t, AppConfig.Validate())

	c := Default()
	assert.NotNil(t, c.Policy.Sequence)
	assert.Empty(t, c.Policy.Sequence)
}

func TestConfig_Clone(t *testing.T) {
	t.Run("空切片保持非nil", func(t *testing.T) {
		c := Default()
		c.Policy.Sequence = nil
		clone := c.Clone()
		assert.NotNil(t, clone.Policy.Sequence)
		assert.NotNil(t, clone.Data.Symbols)
	})

	c := Default()
	c.Policy.Sequence = []int{0, 1}

	clone := c.Clone()
	clone.Data.Symbols[0] = "ETH/USDT"
	clone.Policy.Sequence[0] = 5

	assert.Equal(t, "BTC/USDT", c.Data.Symbols[0])
	assert.Equal(t, 0, c.Policy.Sequence[0])
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{"日期", "2023-03-04", time.Date(2023, 3, 4, 0, 0, 0, 0, time.UTC), false},
		{"日期时间", "2023-03-04 05:06:07", time.Date(2023, 3, 4, 5, 6, 7, 0, time.UTC), false},
		{"RFC3339", "2023-03-04T05:06:07+02:00", time.Date(2023, 3, 4, 3, 6, 7, 0, time.UTC), false},
		{"Unix秒", "1700000000", time.Unix(1700000000, 0).UTC(), false},
		{"空字符串", "", time.Time{}, true},
		{"非法格式", "03/04/2023", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestLoadBenchFile(t *testing.T) {
	dir := t.TempDir()
	base := Default()

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "bench.json")
		content := `{
  "data": {"endpoint": "csv", "symbols": ["ETH/USDT", "BTC/USDT"], "since": "2022-01-01", "until": "2022-06-01", "timeframe": "1h"},
  "environment": {"initial_amount": 5000, "trading_fee": 0.001, "window": 5}
}`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := LoadBenchFile(path, &base)
		require.NoError(t, err)
		assert.Equal(t, "csv", cfg.Data.Endpoint)
		assert.Equal(t, []string{"ETH/USDT", "BTC/USDT"}, cfg.Data.Symbols)
		assert.Equal(t, 5000.0, cfg.Environment.InitialAmount)
		assert.Equal(t, 5, cfg.Environment.Window)
		// 未出现的字段沿用默认值
		assert.Equal(t, 0.7, cfg.Data.TrainRatio)
		assert.Equal(t, "random", cfg.Policy.Name)
		// base 不被修改
		assert.Equal(t, "binance", base.Data.Endpoint)
	})

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bench.yaml")
		content := `
data:
  endpoint: binance
  symbols: [BTC/USDT]
  since: "2021-01-01 00:00:00"
  until: "2021-12-31"
  train_ratio: 0.5
  val_ratio: 0.25
  test_ratio: 0.25
environment:
  action_space: continuous
  n_val_episodes: 3
policy:
  name: hold
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := LoadBenchFile(path, &base)
		require.NoError(t, err)
		assert.Equal(t, 0.5, cfg.Data.TrainRatio)
		assert.Equal(t, "continuous", cfg.Environment.ActionSpace)
		assert.Equal(t, 3, cfg.Environment.NValEpisodes)
		assert.Equal(t, "hold", cfg.Policy.Name)
	})

	t.Run("非法比例", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"data": {"train_ratio": 0.9}}`), 0o644))

		_, err := LoadBenchFile(path, &base)
		assert.ErrorContains(t, err, "sum")
	})

	t.Run("不支持的扩展名", func(t *testing.T) {
		path := filepath.Join(dir, "bench.toml")
		require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

		_, err := LoadBenchFile(path, &base)
		assert.ErrorContains(t, err, "unsupported")
	})

	t.Run("文件不存在", func(t *testing.T) {
		_, err := LoadBenchFile(filepath.Join(dir, "missing.json"), &base)
		assert.Error(t, err)
	})
}
