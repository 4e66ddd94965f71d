package features

import (
	"time"

	"stocksense/src/endpoint"

	"github.com/shopspring/decimal"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// createTestSeries 按小时生成K线，open/high/low 相对 close 固定偏移
func createTestSeries(base string, closes, volumes []float64) endpoint.Series {
	klines := make([]*endpoint.KlineData, len(closes))
	for i, c := range closes {
		openTime := testStart.Add(time.Duration(i) * time.Hour)
		klines[i] = &endpoint.KlineData{
			OpenTime:  openTime,
			Open:      decimal.NewFromFloat(c - 1),
			High:      decimal.NewFromFloat(c + 1),
			Low:       decimal.NewFromFloat(c - 2),
			Close:     decimal.NewFromFloat(c),
			Volume:    decimal.NewFromFloat(volumes[i]),
			CloseTime: openTime.Add(time.Hour - time.Millisecond),
		}
	}
	return endpoint.Series{
		Pair:   endpoint.TradingPair{Base: base, Quote: "USDT"},
		Klines: klines,
	}
}
