// Package metrics 模拟运行的 Prometheus 指标，在 init() 中注册到默认注册表，
// 由 server 在 /metrics 暴露。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 回合结束方式
const (
	OutcomeDone      = "done"
	OutcomeTruncated = "truncated"
	OutcomeError     = "error"
)

var (
	episodes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksense_episodes_total",
			Help: "Finished episodes",
		},
		[]string{"policy", "split", "outcome"},
	)

	steps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksense_steps_total",
			Help: "Simulator steps executed",
		},
		[]string{"policy"},
	)

	trades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksense_trades_total",
			Help: "Per-asset fills produced by rebalancing",
		},
		[]string{"policy"},
	)

	fees = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksense_fees_paid_total",
			Help: "Portfolio value lost to trading fees",
		},
		[]string{"policy"},
	)

	portfolioValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stocksense_portfolio_value",
			Help: "Portfolio value after the latest step",
		},
		[]string{"policy"},
	)

	episodeReturn = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stocksense_episode_return_pct",
			Help:    "Total return of finished episodes in percent",
			Buckets: []float64{-50, -20, -10, -5, -1, 0, 1, 5, 10, 20, 50, 100},
		},
		[]string{"policy"},
	)

	klinesFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksense_klines_fetched_total",
			Help: "Candles loaded from an endpoint",
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(episodes, steps, trades, fees)
	prometheus.MustRegister(portfolioValue, episodeReturn)
	prometheus.MustRegister(klinesFetched)
}

// ObserveStep 记录一步及其后的组合价值
func ObserveStep(policy string, value float64) {
	steps.WithLabelValues(policy).Inc()
	portfolioValue.WithLabelValues(policy).Set(value)
}

// Episode 回合结束时上报的数据
type Episode struct {
	Policy    string
	Split     string
	Outcome   string
	ReturnPct float64
	FeesPaid  float64
	Trades    int
}

// ObserveEpisode 记录一个结束的回合
func ObserveEpisode(e Episode) {
	episodes.WithLabelValues(e.Policy, e.Split, e.Outcome).Inc()
	if e.Outcome == OutcomeError {
		return
	}
	episodeReturn.WithLabelValues(e.Policy).Observe(e.ReturnPct)
	fees.WithLabelValues(e.Policy).Add(e.FeesPaid)
	trades.WithLabelValues(e.Policy).Add(float64(e.Trades))
}

func AddKlinesFetched(endpoint string, n int) { klinesFetched.WithLabelValues(endpoint).Add(float64(n)) }

// Handler Prometheus 文本格式的 /metrics 处理器
func Handler() http.Handler {
	return promhttp.Handler()
}
