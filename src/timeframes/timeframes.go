package timeframes

import (
	"fmt"
	"time"
)

// Timeframe K线周期，如 1h、1d
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe2h  Timeframe = "2h"
	Timeframe4h  Timeframe = "4h"
	Timeframe6h  Timeframe = "6h"
	Timeframe12h Timeframe = "12h"
	Timeframe1d  Timeframe = "1d"
	Timeframe1w  Timeframe = "1w"
)

// Default 未指定时使用的周期
const Default = Timeframe1d

var durations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe30m: 30 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe2h:  2 * time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe6h:  6 * time.Hour,
	Timeframe12h: 12 * time.Hour,
	Timeframe1d:  24 * time.Hour,
	Timeframe1w:  7 * 24 * time.Hour,
}

// ParseTimeframe 解析周期字符串，空字符串返回 Default
func ParseTimeframe(s string) (Timeframe, error) {
	if s == "" {
		return Default, nil
	}
	tf := Timeframe(s)
	if _, ok := durations[tf]; !ok {
		return "", fmt.Errorf("invalid timeframe: %s", s)
	}
	return tf, nil
}

// Duration 单根K线的时长，无效周期返回 0
func (tf Timeframe) Duration() time.Duration {
	return durations[tf]
}

// Milliseconds 单根K线的毫秒数
func (tf Timeframe) Milliseconds() int64 {
	return tf.Duration().Milliseconds()
}

// IsValid 是否为支持的周期
func (tf Timeframe) IsValid() bool {
	return tf.Duration() > 0
}

func (tf Timeframe) String() string {
	return string(tf)
}

// Align 将时间向下对齐到周期边界（UTC）
func (tf Timeframe) Align(t time.Time) time.Time {
	d := tf.Duration()
	if d == 0 {
		return t
	}
	return t.UTC().Truncate(d)
}

// Bars 计算 [since, until) 内的K线数量
func (tf Timeframe) Bars(since, until time.Time) int {
	d := tf.Duration()
	if d == 0 || !until.After(since) {
		return 0
	}
	return int((until.Sub(since) + d - 1) / d)
}

// PageSpan 一次分页请求 limit 根K线覆盖的时间跨度
func (tf Timeframe) PageSpan(limit int) time.Duration {
	return time.Duration(limit) * tf.Duration()
}

// All 所有支持的周期，按时长升序
func All() []Timeframe {
	return []Timeframe{
		Timeframe1m, Timeframe5m, Timeframe15m, Timeframe30m,
		Timeframe1h, Timeframe2h, Timeframe4h, Timeframe6h, Timeframe12h,
		Timeframe1d, Timeframe1w,
	}
}
