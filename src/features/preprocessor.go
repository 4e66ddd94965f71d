package features

import (
	"fmt"
	"math"
	"sort"
	"time"

	"stocksense/src/endpoint"
)

// VolumeWindow 成交量归一化的滚动窗口长度
const VolumeWindow = 168

// 单个资产的特征名，按输出顺序排列
var baseColumns = []string{
	"feature_close",
	"feature_open",
	"feature_high",
	"feature_low",
	"feature_volume",
}

type assetRows struct {
	features map[int64][]float64 // 按 UnixNano 索引
	closes   map[int64]float64
	times    []time.Time
}

// Preprocess 计算归一化特征并按时间戳内连接多个资产。
// 输入不会被修改。
func Preprocess(series []endpoint.Series) (*Frame, error) {
	return PreprocessWindow(series, VolumeWindow)
}

// PreprocessWindow 同 Preprocess，但使用指定的成交量窗口
func PreprocessWindow(series []endpoint.Series, volumeWindow int) (*Frame, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: no series", ErrInsufficientData)
	}
	if volumeWindow < 1 {
		return nil, fmt.Errorf("volume window must be positive, got %d", volumeWindow)
	}

	assets := make([]assetRows, len(series))
	for i, s := range series {
		rows, err := computeAsset(s, volumeWindow)
		if err != nil {
			return nil, fmt.Errorf("asset %d (%s): %w", i, s.Pair, err)
		}
		assets[i] = rows
	}

	for i, a := range assets {
		if len(a.times) == 0 {
			return nil, fmt.Errorf("%w: asset %d (%s) has no complete rows", ErrInsufficientData, i, series[i].Pair)
		}
	}

	timestamps := intersect(assets)
	if len(timestamps) == 0 {
		return nil, ErrNoOverlap
	}

	frame := &Frame{
		Timestamps: timestamps,
		Symbols:    make([]string, len(series)),
		Columns:    columnNames(len(series)),
		Features:   make([][]float64, len(timestamps)),
		Closes:     make([][]float64, len(timestamps)),
	}
	for i, s := range series {
		frame.Symbols[i] = s.Pair.String()
	}

	width := len(baseColumns) * len(series)
	for r, ts := range timestamps {
		row := make([]float64, 0, width)
		closes := make([]float64, len(series))
		for i, a := range assets {
			row = append(row, a.features[ts.UnixNano()]...)
			closes[i] = a.closes[ts.UnixNano()]
		}
		frame.Features[r] = row
		frame.Closes[r] = closes
	}

	return frame, nil
}

// computeAsset 计算单个资产的特征行，丢弃任何特征未定义的行
func computeAsset(s endpoint.Series, volumeWindow int) (assetRows, error) {
	klines := make([]*endpoint.KlineData, len(s.Klines))
	copy(klines, s.Klines)
	sort.SliceStable(klines, func(i, j int) bool {
		return klines[i].OpenTime.Before(klines[j].OpenTime)
	})

	n := len(klines)
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	volume := make([]float64, n)
	for i, k := range klines {
		if i > 0 && k.OpenTime.Equal(klines[i-1].OpenTime) {
			return assetRows{}, fmt.Errorf("%w: %s", ErrDuplicateTimestamp, k.OpenTime.Format(time.RFC3339))
		}
		open[i] = k.Open.InexactFloat64()
		high[i] = k.High.InexactFloat64()
		low[i] = k.Low.InexactFloat64()
		closes[i] = k.Close.InexactFloat64()
		volume[i] = k.Volume.InexactFloat64()
	}

	rolling := rollingMax(volume, volumeWindow)

	rows := assetRows{
		features: make(map[int64][]float64),
		closes:   make(map[int64]float64),
	}
	for t := 1; t < n; t++ {
		if math.IsNaN(rolling[t]) {
			continue
		}
		c := closes[t]
		feats := []float64{
			c/closes[t-1] - 1,
			open[t] / c,
			high[t] / c,
			low[t] / c,
			volume[t] / rolling[t],
		}
		if !allFinite(feats) || !isFinite(c) {
			continue
		}
		ts := klines[t].OpenTime
		rows.features[ts.UnixNano()] = feats
		rows.closes[ts.UnixNano()] = c
		rows.times = append(rows.times, ts)
	}

	return rows, nil
}

// rollingMax 包含当前行的尾随窗口最大值，窗口未满时为 NaN
func rollingMax(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	// 单调递减队列，保存下标
	deque := make([]int, 0, window)
	for i, v := range values {
		for len(deque) > 0 && values[deque[len(deque)-1]] <= v {
			deque = deque[:len(deque)-1]
		}
		deque = append(deque, i)
		if deque[0] <= i-window {
			deque = deque[1:]
		}
		if i+1 < window {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[deque[0]]
	}
	return out
}

// intersect 所有资产共有的时间戳，升序
func intersect(assets []assetRows) []time.Time {
	var result []time.Time
	for _, ts := range assets[0].times {
		shared := true
		for _, a := range assets[1:] {
			if _, ok := a.features[ts.UnixNano()]; !ok {
				shared = false
				break
			}
		}
		if shared {
			result = append(result, ts)
		}
	}
	return result
}

func columnNames(numAssets int) []string {
	if numAssets == 1 {
		return append([]string(nil), baseColumns...)
	}
	names := make([]string, 0, numAssets*len(baseColumns))
	for i := 0; i < numAssets; i++ {
		for _, c := range baseColumns {
			names = append(names, fmt.Sprintf("%s_%d", c, i))
		}
	}
	return names
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if !isFinite(v) {
			return false
		}
	}
	return true
}
