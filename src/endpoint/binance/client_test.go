package binance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"stocksense/src/endpoint"
	"stocksense/src/timeframes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// newTestServer 模拟币安行情接口：按 startTime/endTime/limit 返回连续的小时K线
func newTestServer(t *testing.T, pages *int32) *httptest.Server {
	t.Helper()
	hour := time.Hour.Milliseconds()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(pages, 1)
		q := r.URL.Query()
		start, _ := strconv.ParseInt(q.Get("startTime"), 10, 64)
		end, _ := strconv.ParseInt(q.Get("endTime"), 10, 64)
		limit, _ := strconv.Atoi(q.Get("limit"))

		var rows [][]any
		for ms := start; ms <= end && len(rows) < limit; ms += hour {
			i := (ms - testStart.UnixMilli()) / hour
			c := strconv.FormatInt(100+i, 10)
			rows = append(rows, []any{
				ms, c, c, c, c, "10", ms + hour - 1, "1000", 5, "5", "500", "0",
			})
		}
		json.NewEncoder(w).Encode(rows)
	})
	mux.HandleFunc("/api/v3/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	})
	mux.HandleFunc("/api/v3/time", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"serverTime":1704067200000}`))
	})
	mux.HandleFunc("/api/v3/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols":[
			{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT"},
			{"symbol":"LUNAUSDT","status":"BREAK","baseAsset":"LUNA","quoteAsset":"USDT"},
			{"symbol":"ETHBTC","status":"TRADING","baseAsset":"ETH","quoteAsset":"BTC"}
		]}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, pageLimit int) (*Client, *int32) {
	var pages int32
	server := newTestServer(t, &pages)
	client := NewClient(Config{
		BaseURL:   server.URL,
		Timeout:   5,
		PageLimit: pageLimit,
	}, nil)
	return client, &pages
}

func TestClient_FetchKlinesPaged(t *testing.T) {
	client, pages := newTestClient(t, 10)
	pair := endpoint.TradingPair{Base: "BTC", Quote: "USDT"}

	// 25 根，分 3 页
	klines, err := client.GetKlines(context.Background(), pair, timeframes.Timeframe1h,
		testStart, testStart.Add(25*time.Hour))
	require.NoError(t, err)

	require.Len(t, klines, 25)
	assert.Equal(t, int32(3), atomic.LoadInt32(pages))
	for i, k := range klines {
		assert.Equal(t, testStart.Add(time.Duration(i)*time.Hour), k.OpenTime)
		assert.Equal(t, strconv.Itoa(100+i), k.Close.String())
	}
	assert.Equal(t, "1000", klines[0].QuoteVolume.String())
}

func TestClient_FetchKlinesExactPage(t *testing.T) {
	client, pages := newTestClient(t, 10)

	klines, err := client.FetchKlines(context.Background(), "BTCUSDT", timeframes.Timeframe1h,
		testStart.UnixMilli(), testStart.Add(10*time.Hour).UnixMilli())
	require.NoError(t, err)
	assert.Len(t, klines, 10)
	// 整页返回后下一页起点已到达结束时间
	assert.Equal(t, int32(1), atomic.LoadInt32(pages))
}

func TestClient_GetKlinesValidation(t *testing.T) {
	client, _ := newTestClient(t, 10)
	pair := endpoint.TradingPair{Base: "BTC", Quote: "USDT"}

	_, err := client.GetKlines(context.Background(), pair, timeframes.Timeframe("3h"), testStart, testStart.Add(time.Hour))
	assert.Error(t, err)

	_, err = client.GetKlines(context.Background(), pair, timeframes.Timeframe1h, testStart, testStart)
	assert.Error(t, err)
}

func TestClient_ListSymbols(t *testing.T) {
	client, _ := newTestClient(t, 10)

	pairs, err := client.ListSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []endpoint.TradingPair{
		{Base: "BTC", Quote: "USDT"},
		{Base: "ETH", Quote: "BTC"},
	}, pairs)
}

func TestClient_PingAndServerTime(t *testing.T) {
	client, _ := newTestClient(t, 10)

	assert.NoError(t, client.Ping(context.Background()))

	serverTime, err := client.ServerTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testStart, serverTime)
}

func TestTradingPairToSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", tradingPairToSymbol(endpoint.TradingPair{Base: "btc", Quote: "usdt"}))
}

func TestRegister(t *testing.T) {
	registry := endpoint.NewRegistry()
	Register(registry)
	assert.Equal(t, []string{Name}, registry.Names())
}
