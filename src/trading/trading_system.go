package trading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"stocksense/src/config"
	"stocksense/src/database"
	"stocksense/src/endpoint"
	"stocksense/src/environment"
	"stocksense/src/features"
	"stocksense/src/memory"
	"stocksense/src/metrics"
	"stocksense/src/policy"
	"stocksense/src/report"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"
	"golang.org/x/sync/errgroup"
)

// 数据集名称
const (
	SplitTrain = "train"
	SplitVal   = "val"
	SplitTest  = "test"
)

// StepEvent 每一步推送给观察者的事件
type StepEvent struct {
	RunID     string    `json:"run_id"`
	Split     string    `json:"split"`
	Episode   int       `json:"episode"`
	Step      int       `json:"step"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Reward    float64   `json:"reward"`
	Done      bool      `json:"done"`
	Truncated bool      `json:"truncated"`
}

// StepObserver 接收步事件，验证回合并发执行时会被并发调用
type StepObserver func(StepEvent)

// Option 交易系统选项
type Option func(*TradingSystem)

// WithStore 运行结束后把回合记录写入数据库
func WithStore(store database.KlineStore) Option {
	return func(ts *TradingSystem) { ts.store = store }
}

// WithObserver 订阅每一步
func WithObserver(fn StepObserver) Option {
	return func(ts *TradingSystem) { ts.observer = fn }
}

// TradingSystem 把数据源、预处理、模拟器、策略和报告串起来
type TradingSystem struct {
	config   *config.Config
	registry *endpoint.Registry
	store    database.KlineStore
	observer StepObserver

	mu     sync.Mutex
	memory *memory.ReplayMemory
}

// EpisodeResult 单个回合的结果
type EpisodeResult struct {
	RunID   string                     `json:"run_id"`
	Split   string                     `json:"split"`
	Episode int                        `json:"episode"`
	Policy  string                     `json:"policy"`
	Outcome string                     `json:"outcome"`
	Summary environment.EpisodeSummary `json:"summary"`
	Stats   *report.Statistics         `json:"statistics"`
	Points  []report.EquityPoint       `json:"-"`
	Start   time.Time                  `json:"start"`
	End     time.Time                  `json:"end"`
}

// RunResult 一次完整运行的结果
type RunResult struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Rows       int              `json:"rows"`
	Validation []*EpisodeResult `json:"validation"`
	Test       *EpisodeResult   `json:"test"`
	OutputDir  string           `json:"output_dir"`
}

// NewTradingSystem 创建交易系统，配置错误时不运行任何回合
func NewTradingSystem(cfg *config.Config, registry *endpoint.Registry, opts ...Option) (*TradingSystem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", environment.ErrConfiguration, err)
	}
	if registry == nil {
		return nil, fmt.Errorf("%w: nil endpoint registry", environment.ErrConfiguration)
	}

	ts := &TradingSystem{
		config:   cfg,
		registry: registry,
	}
	for _, opt := range opts {
		opt(ts)
	}

	if cfg.Policy.Memory > 0 {
		m, err := memory.NewReplayMemory(cfg.Policy.Memory)
		if err != nil {
			return nil, err
		}
		ts.memory = m
	}
	return ts, nil
}

// GetConfig 获取配置
func (ts *TradingSystem) GetConfig() *config.Config {
	return ts.config
}

// Memory 回合中记录的状态转移，未启用时为 nil
func (ts *TradingSystem) Memory() *memory.ReplayMemory {
	return ts.memory
}

// LoadFrame 下载并预处理配置中的全部交易对
func (ts *TradingSystem) LoadFrame(ctx context.Context) (*features.Frame, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("TradingSystem")

	ep, err := ts.registry.Get(ts.config.Data.Endpoint)
	if err != nil {
		return nil, err
	}
	pairs, err := ts.config.Pairs()
	if err != nil {
		return nil, err
	}
	tf, err := ts.config.GetTimeframe()
	if err != nil {
		return nil, err
	}
	since, err := ts.config.GetSince()
	if err != nil {
		return nil, err
	}
	until, err := ts.config.GetUntil()
	if err != nil {
		return nil, err
	}

	series, err := endpoint.GetMultipleKlines(ctx, ep, pairs, tf, since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to load klines: %w", err)
	}
	for _, s := range series {
		metrics.AddKlinesFetched(ep.Name(), len(s.Klines))
		logger.Info("加载K线", "symbol", s.Pair.String(), "count", len(s.Klines))
	}

	frame, err := features.PreprocessWindow(series, ts.config.Data.VolumeWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to preprocess klines: %w", err)
	}
	logger.Info("预处理完成", "rows", frame.Len(), "features", frame.NumFeatures())
	return frame, nil
}

// Run 加载数据、切分数据集，在验证集上并发运行 n_val_episodes 个回合，
// 再在测试集上运行一个回合并输出报告
func (ts *TradingSystem) Run(ctx context.Context) (*RunResult, error) {
	frame, err := ts.LoadFrame(ctx)
	if err != nil {
		return nil, err
	}
	return ts.RunFrame(ctx, frame)
}

// RunFrame 同 Run，使用已经预处理好的数据
func (ts *TradingSystem) RunFrame(ctx context.Context, frame *features.Frame) (*RunResult, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("TradingSystem")

	_, valFrame, testFrame, err := frame.Split(ts.config.Data.TrainRatio, ts.config.Data.ValRatio, ts.config.Data.TestRatio)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", environment.ErrConfiguration, err)
	}
	if !ts.usable(testFrame) {
		return nil, fmt.Errorf("%w: test split has %d rows, window %d", environment.ErrConfiguration, testFrame.Len(), ts.config.Environment.Window)
	}

	id := uuid.New().String()
	result := &RunResult{
		ID:   id,
		Name: fmt.Sprintf("%s_%s", time.Now().UTC().Format("20060102_150405"), id[:8]),
		Rows: frame.Len(),
	}

	if n := ts.config.Environment.NValEpisodes; n > 0 {
		if ts.usable(valFrame) {
			result.Validation, err = ts.runValidation(ctx, id, valFrame, n)
			if err != nil {
				return result, err
			}
		} else {
			logger.Info("验证集行数不足，跳过验证", "rows", valFrame.Len())
		}
	}

	result.Test, err = ts.RunEpisode(ctx, id, testFrame, SplitTest, 0)
	if err != nil {
		return result, err
	}

	result.OutputDir, err = report.Save(ts.config.Output.Dir, &report.Run{
		Name:   result.Name,
		Title:  fmt.Sprintf("%s %s", strings.Join(ts.config.Data.Symbols, ","), ts.config.Policy.Name),
		Points: result.Test.Points,
		Stats:  result.Test.Stats,
		Params: map[string]any{
			"run_id":      id,
			"endpoint":    ts.config.Data.Endpoint,
			"symbols":     ts.config.Data.Symbols,
			"timeframe":   ts.config.Data.Timeframe,
			"policy":      ts.config.Policy.Name,
			"environment": ts.config.Environment,
		},
	})
	if err != nil {
		return result, err
	}
	logger.Info("结果已保存", "dir", result.OutputDir)

	if ts.store != nil && ts.config.Output.SaveRuns {
		episodes := append([]*EpisodeResult{result.Test}, result.Validation...)
		for _, ep := range episodes {
			if err := ts.store.SaveEpisodeRun(ctx, ts.episodeRun(result.Name, ep)); err != nil {
				logger.Error("保存回合记录失败", "error", err)
			}
		}
	}

	return result, nil
}

// runValidation 并发运行验证回合，每个回合使用独立的模拟器
func (ts *TradingSystem) runValidation(ctx context.Context, runID string, frame *features.Frame, n int) ([]*EpisodeResult, error) {
	results := make([]*EpisodeResult, n)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			res, err := ts.RunEpisode(ctx, runID, frame, SplitVal, i)
			if err != nil {
				return fmt.Errorf("validation episode %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RunEpisode 在给定数据上运行一个完整回合，种子为配置种子加回合序号
func (ts *TradingSystem) RunEpisode(ctx context.Context, runID string, frame *features.Frame, split string, episode int) (*EpisodeResult, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Episode")

	opts, err := ts.config.EnvOptions()
	if err != nil {
		return nil, err
	}
	env, err := environment.New(frame, opts)
	if err != nil {
		return nil, err
	}

	seed := ts.config.Environment.Seed + int64(episode)
	pol, err := ts.newPolicy(env, seed)
	if err != nil {
		return nil, err
	}
	if closer, ok := pol.(interface{ Close() }); ok {
		defer closer.Close()
	}

	result := &EpisodeResult{
		RunID:   runID,
		Split:   split,
		Episode: episode,
		Policy:  pol.Name(),
	}

	obs, _, err := env.Reset(&seed)
	if err != nil {
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			ts.finish(result, env, metrics.OutcomeError)
			return result, err
		}

		action, err := pol.Act(ctx, obs)
		if err != nil {
			ts.finish(result, env, metrics.OutcomeError)
			return result, fmt.Errorf("policy %s failed at step %d: %w", pol.Name(), env.Steps(), err)
		}

		step, err := env.Step(action)
		if err != nil {
			ts.finish(result, env, metrics.OutcomeError)
			return result, err
		}

		ts.remember(obs, action, step)
		metrics.ObserveStep(pol.Name(), step.Info["value"].(float64))
		event := StepEvent{
			RunID:     runID,
			Split:     split,
			Episode:   episode,
			Step:      env.Steps(),
			Timestamp: env.Timestamp(),
			Value:     step.Info["value"].(float64),
			Reward:    step.Reward,
			Done:      step.Done,
			Truncated: step.Truncated,
		}
		if ts.observer != nil {
			ts.observer(event)
		}
		if ts.config.Environment.Verbose > 0 {
			logger.Debug("步进", "split", split, "episode", episode, "step", event.Step,
				"value", event.Value, "reward", event.Reward)
		}

		obs = step.Observation
		switch {
		case step.Done:
			ts.finish(result, env, metrics.OutcomeDone)
			logger.Info("组合价值归零，回合结束", "split", split, "episode", episode, "step", env.Steps())
			return result, nil
		case step.Truncated:
			ts.finish(result, env, metrics.OutcomeTruncated)
			logger.Info("回合结束", "split", split, "episode", episode,
				"steps", result.Summary.Steps, "return_pct", result.Summary.TotalReturnPct)
			return result, nil
		}
	}
}

// finish 汇总回合并上报指标，出错时保留到出错为止的历史
func (ts *TradingSystem) finish(result *EpisodeResult, env *environment.Env, outcome string) {
	result.Outcome = outcome
	if summary, err := env.Summary(); err == nil {
		result.Summary = summary
	}

	timestamps := env.Timestamps()
	if len(timestamps) > 0 {
		result.Start = timestamps[0]
		result.End = timestamps[len(timestamps)-1]
	}
	if points, err := report.EquityCurve(timestamps, env.History().Export()); err == nil {
		result.Points = points
		tf, _ := ts.config.GetTimeframe()
		result.Stats = report.Calculate(points, tf, result.Summary.FeesPaid, result.Summary.Trades)
	}

	metrics.ObserveEpisode(metrics.Episode{
		Policy:    result.Policy,
		Split:     result.Split,
		Outcome:   outcome,
		ReturnPct: result.Summary.TotalReturnPct,
		FeesPaid:  result.Summary.FeesPaid,
		Trades:    result.Summary.Trades,
	})
}

func (ts *TradingSystem) remember(obs environment.Observation, action environment.Action, step environment.StepResult) {
	if ts.memory == nil {
		return
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.memory.Push(memory.Transition{
		State:     obs,
		Action:    action,
		NextState: step.Observation,
		Reward:    step.Reward,
		Done:      step.Done || step.Truncated,
	})
}

func (ts *TradingSystem) newPolicy(env *environment.Env, seed int64) (policy.Policy, error) {
	p := ts.config.Policy
	sequence := make([]environment.Action, len(p.Sequence))
	for i, idx := range p.Sequence {
		sequence[i] = environment.DiscreteAction(idx)
	}
	return policy.New(p.Name, env.ActionSpace(), env.ObservationShape(), policy.Options{
		Seed:      uint64(seed),
		HoldAsset: p.HoldAsset,
		Sequence:  sequence,
		ONNX: policy.ONNXConfig{
			ModelPath:   p.ModelPath,
			LibraryPath: p.LibraryPath,
			InputName:   p.InputName,
			OutputName:  p.OutputName,
		},
	})
}

// usable 数据足够构造模拟器
func (ts *TradingSystem) usable(frame *features.Frame) bool {
	return frame.Len() >= 2 && ts.config.Environment.Window < frame.Len()
}

func (ts *TradingSystem) episodeRun(name string, ep *EpisodeResult) *database.EpisodeRun {
	run := &database.EpisodeRun{
		ID:             uuid.New().String(),
		Name:           fmt.Sprintf("%s/%s/%d", name, ep.Split, ep.Episode),
		Endpoint:       ts.config.Data.Endpoint,
		Symbols:        strings.Join(ts.config.Data.Symbols, ","),
		Timeframe:      ts.config.Data.Timeframe,
		Policy:         ep.Policy,
		Split:          ep.Split,
		StartTime:      ep.Start,
		EndTime:        ep.End,
		InitialCapital: decimal.NewFromFloat(ep.Summary.InitialValue),
		FinalValue:     decimal.NewFromFloat(ep.Summary.FinalValue),
		FeesPaid:       decimal.NewFromFloat(ep.Summary.FeesPaid),
		Steps:          ep.Summary.Steps,
		Trades:         ep.Summary.Trades,
		Status:         ep.Outcome,
		CreatedAt:      time.Now().UTC(),
	}
	if ep.Stats != nil {
		run.TotalReturn = ep.Stats.TotalReturn
		run.MaxDrawdown = ep.Stats.MaxDrawdown
		run.SharpeRatio = ep.Stats.SharpeRatio
	}
	return run
}

// IsConfigurationError 配置错误，调用方应在运行任何回合前终止
func IsConfigurationError(err error) bool {
	return errors.Is(err, environment.ErrConfiguration)
}
