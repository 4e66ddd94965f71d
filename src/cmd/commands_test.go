package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"stocksense/src/endpoint"
	"stocksense/src/endpoint/csvfile"
	"stocksense/src/endpoint/endpointtest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestRegistry() *endpoint.Registry {
	registry := endpoint.NewRegistry()
	endpointtest.Register(registry, endpointtest.New(
		endpoint.TradingPair{Base: "BTC", Quote: "USDT"},
		endpoint.TradingPair{Base: "ETH", Quote: "BTC"},
	))
	return registry
}

func TestParseSymbols(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []endpoint.TradingPair
		wantErr bool
	}{
		{"单个", "BTC/USDT", []endpoint.TradingPair{{Base: "BTC", Quote: "USDT"}}, false},
		{"多个带空格", "btc/usdt, ETH/USDT,", []endpoint.TradingPair{{Base: "BTC", Quote: "USDT"}, {Base: "ETH", Quote: "USDT"}}, false},
		{"空", " , ", nil, true},
		{"缺少分隔符", "BTCUSDT", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSymbols(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "42000.50", formatPrice(decimal.RequireFromString("42000.5")))
	assert.Equal(t, "1.5K", formatVolume(decimal.NewFromInt(1500)))
	assert.Equal(t, "12.00", formatVolume(decimal.NewFromInt(12)))
	assert.Equal(t, "-1.25%", formatPercent(decimal.RequireFromString("-0.0125")))
}

func TestListSymbols(t *testing.T) {
	registry := createTestRegistry()

	all, err := listSymbols(registry, endpointtest.Name, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	usdt, err := listSymbols(registry, endpointtest.Name, "usdt")
	require.NoError(t, err)
	assert.Equal(t, []endpoint.TradingPair{{Base: "BTC", Quote: "USDT"}}, usdt)

	_, err = listSymbols(registry, "kraken", "")
	assert.ErrorIs(t, err, endpoint.ErrUnknownEndpoint)
}

func TestRunDownload(t *testing.T) {
	registry := createTestRegistry()
	dir := t.TempDir()

	err := runDownload(registry, endpointtest.Name, "BTC/USDT", "1h", "2024-01-01", "2024-01-02", dir, true)
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(dir, "BTC-USDT_1h.csv"))
	require.NoError(t, err)
	defer f.Close()

	klines, err := csvfile.Read(f)
	require.NoError(t, err)
	assert.Len(t, klines, 24)

	t.Run("非法周期", func(t *testing.T) {
		err := runDownload(registry, endpointtest.Name, "BTC/USDT", "7m", "2024-01-01", "", dir, false)
		assert.Error(t, err)
	})
}

func TestRunPingTest(t *testing.T) {
	registry := endpoint.NewRegistry()
	ep := endpointtest.New()
	endpointtest.Register(registry, ep)

	assert.NoError(t, runPingTest(registry, endpointtest.Name, true, 1))

	ep.PingOK = false
	assert.Error(t, runPingTest(registry, endpointtest.Name, false, 1))
}
