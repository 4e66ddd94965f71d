package database

import (
	"context"
	"sort"
	"time"

	"stocksense/src/endpoint"
	"stocksense/src/timeframes"

	"github.com/xpwu/go-log/log"
)

// Fetcher 从网络获取 [startTime, endTime) 内的K线，单位毫秒
type Fetcher interface {
	FetchKlines(ctx context.Context, symbol string, tf timeframes.Timeframe, startTime, endTime int64) ([]*endpoint.KlineData, error)
}

// KlineManager K线数据管理器：优先读库，缺失的区间从网络补齐并写回
type KlineManager struct {
	store   KlineStore
	fetcher Fetcher
}

// NewKlineManager 创建K线数据管理器，store 为 nil 时直接走网络
func NewKlineManager(store KlineStore, fetcher Fetcher) *KlineManager {
	return &KlineManager{
		store:   store,
		fetcher: fetcher,
	}
}

// GetKlinesInRange 获取指定时间范围的K线数据
func (km *KlineManager) GetKlinesInRange(ctx context.Context, symbol string, tf timeframes.Timeframe, startTime, endTime int64) ([]*endpoint.KlineData, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("KlineManager")

	if km.store == nil {
		return km.fetcher.FetchKlines(ctx, symbol, tf, startTime, endTime)
	}

	logger.Debug("获取时间范围K线数据",
		"symbol", symbol,
		"timeframe", tf,
		"start", fromMillis(startTime).Format("2006-01-02 15:04"),
		"end", fromMillis(endTime).Format("2006-01-02 15:04"))

	// 1. 从数据库获取范围内的数据
	dbKlines, err := km.store.GetKlines(ctx, symbol, tf.String(), startTime, endTime, 0)
	if err != nil {
		logger.Error("从数据库获取范围K线数据失败，改为从网络获取", "error", err)
		return km.fetcher.FetchKlines(ctx, symbol, tf, startTime, endTime)
	}

	// 2. 检查数据完整性
	missingRanges := findMissingRanges(dbKlines, startTime, endTime, tf.Milliseconds())
	if len(missingRanges) == 0 {
		logger.Info("数据库数据完整", "symbol", symbol, "count", len(dbKlines))
		return dbKlines, nil
	}

	// 3. 补充缺失的数据
	logger.Info("发现缺失数据段", "symbol", symbol, "missing_ranges", len(missingRanges))

	var fetched []*endpoint.KlineData
	for _, missing := range missingRanges {
		logger.Debug("补充缺失数据段",
			"start", fromMillis(missing.Start).Format("2006-01-02 15:04"),
			"end", fromMillis(missing.End).Format("2006-01-02 15:04"))

		newKlines, err := km.fetcher.FetchKlines(ctx, symbol, tf, missing.Start, missing.End)
		if err != nil {
			return nil, err
		}
		if len(newKlines) == 0 {
			continue
		}

		if err := km.store.SaveKlines(ctx, symbol, tf.String(), newKlines); err != nil {
			logger.Error("保存缺失数据失败", "error", err)
		} else {
			logger.Info("保存缺失数据", "count", len(newKlines))
		}
		fetched = append(fetched, newKlines...)
	}

	return mergeKlines(dbKlines, fetched), nil
}

// Sync 将库中最新一根K线之后到 until 的数据补齐，返回新增条数
func (km *KlineManager) Sync(ctx context.Context, symbol string, tf timeframes.Timeframe, since, until time.Time) (int, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("KlineManager")

	start := toMillis(since)
	if km.store != nil {
		latest, err := km.store.GetLatestKlineTime(ctx, symbol, tf.String())
		if err != nil {
			return 0, err
		}
		if latest > 0 && latest+tf.Milliseconds() > start {
			start = latest + tf.Milliseconds()
		}
	}
	if start >= toMillis(until) {
		logger.Info("数据已是最新", "symbol", symbol)
		return 0, nil
	}

	klines, err := km.fetcher.FetchKlines(ctx, symbol, tf, start, toMillis(until))
	if err != nil {
		return 0, err
	}
	if km.store != nil {
		if err := km.store.SaveKlines(ctx, symbol, tf.String(), klines); err != nil {
			return 0, err
		}
	}

	logger.Info("同步完成", "symbol", symbol, "count", len(klines))
	return len(klines), nil
}

// mergeKlines 合并K线数据，按开盘时间去重并排序，后者覆盖前者
func mergeKlines(dbKlines, networkKlines []*endpoint.KlineData) []*endpoint.KlineData {
	klineMap := make(map[int64]*endpoint.KlineData, len(dbKlines)+len(networkKlines))
	for _, kline := range dbKlines {
		klineMap[toMillis(kline.OpenTime)] = kline
	}
	for _, kline := range networkKlines {
		klineMap[toMillis(kline.OpenTime)] = kline
	}

	result := make([]*endpoint.KlineData, 0, len(klineMap))
	for _, kline := range klineMap {
		result = append(result, kline)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].OpenTime.Before(result[j].OpenTime)
	})
	return result
}

// TimeRange 半开时间范围 [Start, End)，单位毫秒
type TimeRange struct {
	Start int64
	End   int64
}

// findMissingRanges 查找 [startTime, endTime) 中缺少整根K线的区间，klines 须按时间升序
func findMissingRanges(klines []*endpoint.KlineData, startTime, endTime, interval int64) []TimeRange {
	if interval <= 0 || startTime >= endTime {
		return nil
	}
	if len(klines) == 0 {
		return []TimeRange{{Start: startTime, End: endTime}}
	}

	var missingRanges []TimeRange

	// 开始时间之后至少缺一整根
	first := toMillis(klines[0].OpenTime)
	if first-startTime >= interval {
		missingRanges = append(missingRanges, TimeRange{Start: startTime, End: first})
	}

	// 中间的缺口
	for i := 0; i < len(klines)-1; i++ {
		expectedNext := toMillis(klines[i].OpenTime) + interval
		actualNext := toMillis(klines[i+1].OpenTime)
		if actualNext > expectedNext {
			missingRanges = append(missingRanges, TimeRange{Start: expectedNext, End: actualNext})
		}
	}

	// 结束时间之前的尾部
	next := toMillis(klines[len(klines)-1].OpenTime) + interval
	if next < endTime {
		missingRanges = append(missingRanges, TimeRange{Start: next, End: endTime})
	}

	return missingRanges
}
