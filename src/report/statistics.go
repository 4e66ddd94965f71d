package report

import (
	"fmt"
	"math"
	"time"

	"stocksense/src/history"
	"stocksense/src/timeframes"

	"github.com/shopspring/decimal"
)

// EquityPoint 权益曲线点
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Reward    float64   `json:"reward"`
}

// Statistics 回合统计
type Statistics struct {
	Steps            int             `json:"steps"`
	TotalTrades      int             `json:"total_trades"`
	InitialValue     decimal.Decimal `json:"initial_value"`
	FinalValue       decimal.Decimal `json:"final_value"`
	TotalReturn      decimal.Decimal `json:"total_return"`
	AnnualizedReturn decimal.Decimal `json:"annualized_return"`
	MaxDrawdown      decimal.Decimal `json:"max_drawdown"`
	SharpeRatio      decimal.Decimal `json:"sharpe_ratio"`
	TotalFees        decimal.Decimal `json:"total_fees"`
	TotalReward      float64         `json:"total_reward"`

	PeriodReturns []decimal.Decimal `json:"-"`
}

// EquityCurve 将历史记录与时间戳配对
func EquityCurve(timestamps []time.Time, entries []history.Entry) ([]EquityPoint, error) {
	if len(timestamps) != len(entries) {
		return nil, fmt.Errorf("got %d timestamps for %d history entries", len(timestamps), len(entries))
	}
	points := make([]EquityPoint, len(entries))
	for i, e := range entries {
		points[i] = EquityPoint{Timestamp: timestamps[i], Value: e.Value, Reward: e.Reward}
	}
	return points, nil
}

// Calculate 计算统计指标，夏普比率按周期年化，无风险利率为 0
func Calculate(points []EquityPoint, tf timeframes.Timeframe, fees float64, trades int) *Statistics {
	stats := &Statistics{
		TotalTrades: trades,
		TotalFees:   decimal.NewFromFloat(fees),
	}
	if len(points) == 0 {
		return stats
	}

	stats.Steps = len(points) - 1
	stats.InitialValue = decimal.NewFromFloat(points[0].Value)
	stats.FinalValue = decimal.NewFromFloat(points[len(points)-1].Value)
	for _, p := range points[1:] {
		stats.TotalReward += p.Reward
	}

	// 计算总收益率
	if stats.InitialValue.GreaterThan(decimal.Zero) {
		stats.TotalReturn = stats.FinalValue.Sub(stats.InitialValue).Div(stats.InitialValue)
	}

	// 计算年化收益率
	days := points[len(points)-1].Timestamp.Sub(points[0].Timestamp).Hours() / 24
	if days > 0 {
		totalReturnFloat, _ := stats.TotalReturn.Float64()
		annualizedReturn := math.Pow(1+totalReturnFloat, 365/days) - 1
		if !math.IsNaN(annualizedReturn) && !math.IsInf(annualizedReturn, 0) {
			stats.AnnualizedReturn = decimal.NewFromFloat(annualizedReturn)
		}
	}

	stats.MaxDrawdown = maxDrawdown(points)
	stats.PeriodReturns = periodReturns(points)
	stats.SharpeRatio = sharpeRatio(stats.PeriodReturns, periodsPerYear(tf))

	return stats
}

// periodsPerYear 一年内的K线数量，用于年化
func periodsPerYear(tf timeframes.Timeframe) float64 {
	d := tf.Duration()
	if d == 0 {
		return 365
	}
	return float64(365*24*time.Hour) / float64(d)
}

// maxDrawdown 计算最大回撤
func maxDrawdown(points []EquityPoint) decimal.Decimal {
	maxPortfolio := decimal.NewFromFloat(points[0].Value)
	drawdownMax := decimal.Zero

	for _, point := range points {
		value := decimal.NewFromFloat(point.Value)
		if value.GreaterThan(maxPortfolio) {
			maxPortfolio = value
		}
		if !maxPortfolio.IsPositive() {
			continue
		}

		drawdown := maxPortfolio.Sub(value).Div(maxPortfolio)
		if drawdown.GreaterThan(drawdownMax) {
			drawdownMax = drawdown
		}
	}

	return drawdownMax
}

// periodReturns 逐周期的简单收益率
func periodReturns(points []EquityPoint) []decimal.Decimal {
	if len(points) < 2 {
		return nil
	}

	returns := make([]decimal.Decimal, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prevValue := decimal.NewFromFloat(points[i-1].Value)
		currValue := decimal.NewFromFloat(points[i].Value)

		if prevValue.GreaterThan(decimal.Zero) {
			returns = append(returns, currValue.Sub(prevValue).Div(prevValue))
		}
	}
	return returns
}

// sharpeRatio 计算年化夏普比率
func sharpeRatio(returns []decimal.Decimal, periods float64) decimal.Decimal {
	if len(returns) < 2 {
		return decimal.Zero
	}

	sum := decimal.Zero
	for _, ret := range returns {
		sum = sum.Add(ret)
	}
	meanReturn := sum.Div(decimal.NewFromInt(int64(len(returns))))

	varianceSum := decimal.Zero
	for _, ret := range returns {
		diff := ret.Sub(meanReturn)
		varianceSum = varianceSum.Add(diff.Mul(diff))
	}

	variance := varianceSum.Div(decimal.NewFromInt(int64(len(returns) - 1)))
	varianceFloat, _ := variance.Float64()
	std := decimal.NewFromFloat(math.Sqrt(varianceFloat))
	if !std.GreaterThan(decimal.Zero) {
		return decimal.Zero
	}

	return meanReturn.Div(std).Mul(decimal.NewFromFloat(math.Sqrt(periods)))
}
