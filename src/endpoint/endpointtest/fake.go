// Package endpointtest 供测试使用的内存数据源
package endpointtest

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"stocksense/src/endpoint"
	"stocksense/src/timeframes"

	"github.com/shopspring/decimal"
)

// Name 假数据源名称
const Name = "fake"

// Endpoint 按确定性公式生成K线的数据源
type Endpoint struct {
	mu     sync.Mutex
	pairs  []endpoint.TradingPair
	calls  int
	PingOK bool
}

// New 创建假数据源
func New(pairs ...endpoint.TradingPair) *Endpoint {
	return &Endpoint{pairs: pairs, PingOK: true}
}

// Register 注册到 registry
func Register(registry *endpoint.Registry, ep *Endpoint) {
	registry.Register(Name, endpoint.FactoryFunc(func() (endpoint.Endpoint, error) {
		return ep, nil
	}))
}

func (e *Endpoint) Name() string {
	return Name
}

func (e *Endpoint) ListSymbols(_ context.Context) ([]endpoint.TradingPair, error) {
	return append([]endpoint.TradingPair(nil), e.pairs...), nil
}

// Calls GetKlines 被调用的次数
func (e *Endpoint) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// GetKlines 生成 [since, until) 内的K线，价格为按资产错开相位的正弦波
func (e *Endpoint) GetKlines(ctx context.Context, pair endpoint.TradingPair, tf timeframes.Timeframe, since, until time.Time) ([]*endpoint.KlineData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	known := false
	for _, p := range e.pairs {
		if p == pair {
			known = true
		}
	}
	if !known {
		return nil, fmt.Errorf("unknown pair %s", pair)
	}

	phase := float64(len(pair.Base))
	d := tf.Duration()
	var klines []*endpoint.KlineData
	for i, t := 0, tf.Align(since); t.Before(until); i, t = i+1, t.Add(d) {
		if t.Before(since) {
			continue
		}
		c := 100 + 10*math.Sin(float64(i)/7+phase)
		klines = append(klines, &endpoint.KlineData{
			OpenTime:    t,
			Open:        decimal.NewFromFloat(c - 0.5),
			High:        decimal.NewFromFloat(c + 1),
			Low:         decimal.NewFromFloat(c - 1),
			Close:       decimal.NewFromFloat(c),
			Volume:      decimal.NewFromFloat(50 + 25*math.Cos(float64(i)/5)),
			CloseTime:   t.Add(d - time.Millisecond),
			QuoteVolume: decimal.NewFromFloat(c * 50),
		})
	}
	return klines, nil
}

func (e *Endpoint) Ping(_ context.Context) error {
	if !e.PingOK {
		return fmt.Errorf("ping failed")
	}
	return nil
}
