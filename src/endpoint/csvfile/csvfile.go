package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"stocksense/src/endpoint"
	"stocksense/src/timeframes"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-config/configs"
)

// Name 数据源名称
const Name = "csv"

// Header 写出的列
var Header = []string{"time", "open", "high", "low", "close", "volume", "quote_volume"}

// Config 本地 CSV 数据源配置
type Config struct {
	Dir string `conf:"dir,CSV 文件目录 - 文件名形如 BTC-USDT_1h.csv"`
}

// ConfigValue 配置实例
var ConfigValue = Config{
	Dir: "data/csv",
}

func init() {
	configs.Unmarshal(&ConfigValue)
}

// Endpoint 从本地 CSV 文件读取K线
type Endpoint struct {
	dir string
}

// New 创建 CSV 数据源
func New(dir string) *Endpoint {
	return &Endpoint{dir: dir}
}

// Register 向注册表登记 CSV 数据源
func Register(registry *endpoint.Registry) {
	registry.Register(Name, endpoint.FactoryFunc(func() (endpoint.Endpoint, error) {
		return New(ConfigValue.Dir), nil
	}))
}

func (e *Endpoint) Name() string {
	return Name
}

// FileName 交易对与周期对应的文件名
func FileName(pair endpoint.TradingPair, tf timeframes.Timeframe) string {
	return fmt.Sprintf("%s-%s_%s.csv", pair.Base, pair.Quote, tf)
}

// ListSymbols 目录中出现过的交易对
func (e *Endpoint) ListSymbols(_ context.Context) ([]endpoint.TradingPair, error) {
	files, err := filepath.Glob(filepath.Join(e.dir, "*_*.csv"))
	if err != nil {
		return nil, err
	}

	seen := make(map[endpoint.TradingPair]bool)
	var pairs []endpoint.TradingPair
	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), ".csv")
		idx := strings.LastIndex(name, "_")
		pair, err := endpoint.ParseTradingPair(strings.Replace(name[:idx], "-", "/", 1))
		if err != nil {
			continue
		}
		if !seen[pair] {
			seen[pair] = true
			pairs = append(pairs, pair)
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].String() < pairs[j].String() })
	return pairs, nil
}

// GetKlines 读取文件并保留 [since, until) 内的K线
func (e *Endpoint) GetKlines(_ context.Context, pair endpoint.TradingPair, tf timeframes.Timeframe, since, until time.Time) ([]*endpoint.KlineData, error) {
	f, err := os.Open(filepath.Join(e.dir, FileName(pair, tf)))
	if err != nil {
		return nil, fmt.Errorf("failed to open csv for %s: %w", pair, err)
	}
	defer f.Close()

	klines, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv for %s: %w", pair, err)
	}

	result := make([]*endpoint.KlineData, 0, len(klines))
	for _, k := range klines {
		if !k.OpenTime.Before(since) && k.OpenTime.Before(until) {
			result = append(result, k)
		}
	}
	return result, nil
}

// Ping 检查目录可读
func (e *Endpoint) Ping(_ context.Context) error {
	info, err := os.Stat(e.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", e.dir)
	}
	return nil
}

// Read 读取带表头的K线 CSV：time|timestamp|date, open, high, low, close, volume[, quote_volume]。
// 时间无法解析的行被跳过，结果按时间升序。
func Read(r io.Reader) ([]*endpoint.KlineData, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for i, h := range headers {
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}

	var out []*endpoint.KlineData
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		row := make(map[string]string, len(headers))
		for j, h := range headers {
			if j < len(rec) {
				row[h] = strings.TrimSpace(rec[j])
			}
		}

		ts, err := parseTimeFlexible(first(row, "time", "timestamp", "date", "open_time"))
		if err != nil {
			continue
		}

		values := make([]decimal.Decimal, 6)
		for i, key := range []string{"open", "high", "low", "close", "volume", "quote_volume"} {
			raw := row[key]
			if raw == "" && key == "quote_volume" {
				continue
			}
			values[i], err = decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid %s %q: %w", line, key, raw, err)
			}
		}

		out = append(out, &endpoint.KlineData{
			OpenTime:    ts,
			Open:        values[0],
			High:        values[1],
			Low:         values[2],
			Close:       values[3],
			Volume:      values[4],
			QuoteVolume: values[5],
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out, nil
}

// Write 以 Header 为表头写出K线
func Write(w io.Writer, klines []*endpoint.KlineData) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return err
	}
	for _, k := range klines {
		err := writer.Write([]string{
			k.OpenTime.UTC().Format(time.RFC3339),
			k.Open.String(),
			k.High.String(),
			k.Low.String(),
			k.Close.String(),
			k.Volume.String(),
			k.QuoteVolume.String(),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// parseTimeFlexible 支持 RFC3339、"2006-01-02 15:04:05"、"2006-01-02"、Unix 秒或毫秒
func parseTimeFlexible(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.DateTime, time.DateOnly} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		// 13 位视为毫秒
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time: %s", s)
}

// first 按顺序返回第一个非空值
func first(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}
