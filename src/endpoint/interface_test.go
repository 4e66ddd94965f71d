package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradingPair_String(t *testing.T) {
	tests := []struct {
		name     string
		pair     TradingPair
		expected string
	}{
		{"BTC/USDT pair", TradingPair{Base: "BTC", Quote: "USDT"}, "BTC/USDT"},
		{"ETH/BTC pair", TradingPair{Base: "ETH", Quote: "BTC"}, "ETH/BTC"},
		{"empty pair", TradingPair{}, "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.pair.String())
		})
	}
}

func TestParseTradingPair(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    TradingPair
		wantErr bool
	}{
		{"标准格式", "BTC/USDT", TradingPair{Base: "BTC", Quote: "USDT"}, false},
		{"小写转大写", "eth/usdt", TradingPair{Base: "ETH", Quote: "USDT"}, false},
		{"首尾空白", " LTC/BTC ", TradingPair{Base: "LTC", Quote: "BTC"}, false},
		{"缺少分隔符", "BTCUSDT", TradingPair{}, true},
		{"缺少计价货币", "BTC/", TradingPair{}, true},
		{"多个分隔符", "BTC/USDT/X", TradingPair{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTradingPair(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
