package endpoint

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stocksense/src/timeframes"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// TradingPair 标准化的交易对
type TradingPair struct {
	Base  string // 基础货币，如 BTC, ETH
	Quote string // 计价货币，如 USDT, BTC
}

// String 返回 BASE/QUOTE 形式
func (tp TradingPair) String() string {
	return tp.Base + "/" + tp.Quote
}

// ParseTradingPair 解析 "BTC/USDT" 形式的交易对
func ParseTradingPair(s string) (TradingPair, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return TradingPair{}, fmt.Errorf("invalid trading pair %q, expected BASE/QUOTE", s)
	}
	return TradingPair{
		Base:  strings.ToUpper(parts[0]),
		Quote: strings.ToUpper(parts[1]),
	}, nil
}

// KlineData 标准化的K线数据
type KlineData struct {
	OpenTime    time.Time       `json:"open_time"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Volume      decimal.Decimal `json:"volume"`
	CloseTime   time.Time       `json:"close_time"`
	QuoteVolume decimal.Decimal `json:"quote_volume"`
}

// Series 单个资产的K线序列
type Series struct {
	Pair   TradingPair
	Klines []*KlineData
}

// Endpoint 行情数据源
type Endpoint interface {
	// Name 数据源名称，如 binance
	Name() string

	// ListSymbols 列出可用交易对
	ListSymbols(ctx context.Context) ([]TradingPair, error)

	// GetKlines 获取 [since, until) 范围内的K线，按时间升序
	GetKlines(ctx context.Context, pair TradingPair, tf timeframes.Timeframe, since, until time.Time) ([]*KlineData, error)

	// Ping 测试连接
	Ping(ctx context.Context) error
}

// GetMultipleKlines 并发获取多个交易对的K线，返回顺序与 pairs 一致
func GetMultipleKlines(ctx context.Context, ep Endpoint, pairs []TradingPair, tf timeframes.Timeframe, since, until time.Time) ([]Series, error) {
	result := make([]Series, len(pairs))

	g, ctx := errgroup.WithContext(ctx)
	for i, pair := range pairs {
		g.Go(func() error {
			klines, err := ep.GetKlines(ctx, pair, tf, since, until)
			if err != nil {
				return fmt.Errorf("failed to get klines for %s from %s: %w", pair, ep.Name(), err)
			}
			result[i] = Series{Pair: pair, Klines: klines}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
