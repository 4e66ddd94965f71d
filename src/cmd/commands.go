package cmd

import (
	"fmt"
	"strings"

	"stocksense/src/endpoint"

	"github.com/shopspring/decimal"
)

// RegisterAllCommands 注册所有命令，registry 在 main 中创建一次
func RegisterAllCommands(registry *endpoint.Registry) {
	RegisterSimulateCmd(registry)
	RegisterDownloadCmd(registry)
	RegisterSymbolsCmd(registry)
	RegisterPingCmd(registry)
	RegisterServeCmd(registry)
}

// parseSymbols 解析逗号分隔的交易对，如 "BTC/USDT,ETH/USDT"
func parseSymbols(s string) ([]endpoint.TradingPair, error) {
	var pairs []endpoint.TradingPair
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		pair, err := endpoint.ParseTradingPair(part)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no symbols given")
	}
	return pairs, nil
}

// formatPrice 格式化价格
func formatPrice(price decimal.Decimal) string {
	return price.StringFixed(2)
}

// formatVolume 格式化成交量
func formatVolume(volume decimal.Decimal) string {
	if volume.GreaterThan(decimal.NewFromFloat(1000)) {
		return volume.Div(decimal.NewFromFloat(1000)).StringFixed(1) + "K"
	}
	return volume.StringFixed(2)
}

// formatPercent 小数转百分比
func formatPercent(v decimal.Decimal) string {
	return v.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}
