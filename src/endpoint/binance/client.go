package binance

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"stocksense/src/database"
	"stocksense/src/endpoint"
	"stocksense/src/timeframes"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"
	"golang.org/x/time/rate"
)

// Name 数据源名称
const Name = "binance"

// Client 币安行情数据源
type Client struct {
	client  *binance.Client
	limiter *rate.Limiter
	limits  Limits
	store   database.KlineStore
	klines  *database.KlineManager
}

// NewClient 创建币安数据源，store 为 nil 时不缓存
func NewClient(cfg Config, store database.KlineStore) *Client {
	binanceClient := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.BaseURL != "" {
		binanceClient.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		binanceClient.HTTPClient = &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}
	}

	limits := cfg.Limits()
	if limits.PageLimit <= 0 {
		limits.PageLimit = 1000
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	c := &Client{
		client:  binanceClient,
		limiter: rate.NewLimiter(limit, 1),
		limits:  limits,
		store:   store,
	}
	c.klines = database.NewKlineManager(store, c)
	return c
}

func (c *Client) Name() string {
	return Name
}

// Close 关闭缓存连接
func (c *Client) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

// Store K线缓存，可能为 nil
func (c *Client) Store() database.KlineStore {
	return c.store
}

// tradingPairToSymbol 将标准化交易对转换为币安格式，如 BTCUSDT
func tradingPairToSymbol(pair endpoint.TradingPair) string {
	return strings.ToUpper(pair.Base) + strings.ToUpper(pair.Quote)
}

// convertKline 转换币安K线为标准格式
func convertKline(kline *binance.Kline) (*endpoint.KlineData, error) {
	values := []string{kline.Open, kline.High, kline.Low, kline.Close, kline.Volume, kline.QuoteAssetVolume}
	parsed := make([]decimal.Decimal, len(values))
	for i, v := range values {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("invalid kline value %q at %d: %w", v, kline.OpenTime, err)
		}
		parsed[i] = d
	}

	return &endpoint.KlineData{
		OpenTime:    time.UnixMilli(kline.OpenTime).UTC(),
		Open:        parsed[0],
		High:        parsed[1],
		Low:         parsed[2],
		Close:       parsed[3],
		Volume:      parsed[4],
		CloseTime:   time.UnixMilli(kline.CloseTime).UTC(),
		QuoteVolume: parsed[5],
	}, nil
}

// GetKlines 获取 [since, until) 的K线，优先读缓存
func (c *Client) GetKlines(ctx context.Context, pair endpoint.TradingPair, tf timeframes.Timeframe, since, until time.Time) ([]*endpoint.KlineData, error) {
	if !tf.IsValid() {
		return nil, fmt.Errorf("invalid timeframe: %s", tf)
	}
	if !until.After(since) {
		return nil, fmt.Errorf("until %s must be after since %s", until.Format(time.RFC3339), since.Format(time.RFC3339))
	}

	return c.klines.GetKlinesInRange(ctx, tradingPairToSymbol(pair), tf, since.UnixMilli(), until.UnixMilli())
}

// Sync 将缓存补齐到 until，返回新增条数
func (c *Client) Sync(ctx context.Context, pair endpoint.TradingPair, tf timeframes.Timeframe, since, until time.Time) (int, error) {
	return c.klines.Sync(ctx, tradingPairToSymbol(pair), tf, since, until)
}

// FetchKlines 分页从网络获取 [startTime, endTime) 的K线，单位毫秒
func (c *Client) FetchKlines(ctx context.Context, symbol string, tf timeframes.Timeframe, startTime, endTime int64) ([]*endpoint.KlineData, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("BinanceClient")

	var allKlines []*endpoint.KlineData
	current := startTime

	for page := 1; current < endTime; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		// 币安的 endTime 为闭区间
		klines, err := c.client.NewKlinesService().
			Symbol(symbol).
			Interval(tf.String()).
			StartTime(current).
			EndTime(endTime - 1).
			Limit(c.limits.PageLimit).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get klines from Binance: %w", err)
		}

		for _, k := range klines {
			kline, err := convertKline(k)
			if err != nil {
				return nil, err
			}
			allKlines = append(allKlines, kline)
		}

		logger.Debug("下载K线分页", "symbol", symbol, "page", page, "count", len(klines))

		// 返回的数据少于限制，说明已经获取完毕
		if len(klines) < c.limits.PageLimit {
			break
		}
		current = klines[len(klines)-1].OpenTime + tf.Milliseconds()

		if c.limits.PauseEvery > 0 && page%c.limits.PauseEvery == 0 && c.limits.Pause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.limits.Pause):
			}
		}
	}

	return allKlines, nil
}

// ListSymbols 列出处于交易状态的交易对
func (c *Client) ListSymbols(ctx context.Context) ([]endpoint.TradingPair, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	info, err := c.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange info from Binance: %w", err)
	}

	pairs := make([]endpoint.TradingPair, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		pairs = append(pairs, endpoint.TradingPair{Base: s.BaseAsset, Quote: s.QuoteAsset})
	}
	return pairs, nil
}

// Ping 测试连接
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.NewPingService().Do(ctx); err != nil {
		return fmt.Errorf("Binance ping failed: %w", err)
	}
	return nil
}

// ServerTime 获取服务器时间
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	ms, err := c.client.NewServerTimeService().Do(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get server time: %w", err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
