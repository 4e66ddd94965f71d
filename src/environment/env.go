package environment

import (
	"fmt"
	"math"
	"time"

	"stocksense/src/features"
	"stocksense/src/history"
	"stocksense/src/portfolio"
)

// WipeoutReward 组合价值归零时的奖励，取代 ln(0) = -Inf
var WipeoutReward = math.Log(math.SmallestNonzeroFloat64)

// State 模拟器状态
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateStepping
	StateDone
	StateTruncated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateStepping:
		return "stepping"
	case StateDone:
		return "done"
	case StateTruncated:
		return "truncated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options 模拟器参数
type Options struct {
	InitialCapital  float64
	FeeRate         float64
	Window          int // 0 表示不使用窗口
	MaxEpisodeSteps int // 0 表示不限制
	ActionSpace     ActionSpace
}

// StepResult Step 的返回值
type StepResult struct {
	Observation Observation
	Reward      float64
	Done        bool
	Truncated   bool
	Info        Info
}

// Snapshot 当前持仓快照
type Snapshot struct {
	Units      []float64 `json:"units"`
	Cash       float64   `json:"cash"`
	Allocation []float64 `json:"allocation"`
	Value      float64   `json:"value"`
}

// EpisodeSummary 回合汇总
type EpisodeSummary struct {
	history.Summary
	Steps    int     `json:"steps"`
	FeesPaid float64 `json:"fees_paid"`
	Trades   int     `json:"trades"`
}

// Env 多资产交易模拟器。
// 每个实例由单个 goroutine 使用；多个实例可共享同一个只读 Frame。
type Env struct {
	frame    *features.Frame
	opts     Options
	ledger   *portfolio.Ledger
	recorder *history.Recorder

	state  State
	start  int
	cursor int
	steps  int
	value  float64

	seed    int64
	hasSeed bool
}

// New 创建模拟器并校验参数与数据
func New(frame *features.Frame, opts Options) (*Env, error) {
	if frame == nil {
		return nil, fmt.Errorf("%w: nil frame", ErrConfiguration)
	}
	if err := frame.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if frame.NumAssets() == 0 {
		return nil, fmt.Errorf("%w: frame has no assets", ErrConfiguration)
	}
	if opts.InitialCapital <= 0 || math.IsNaN(opts.InitialCapital) || math.IsInf(opts.InitialCapital, 0) {
		return nil, fmt.Errorf("%w: initial capital must be positive, got %v", ErrConfiguration, opts.InitialCapital)
	}
	if opts.FeeRate < 0 || opts.FeeRate >= 1 || math.IsNaN(opts.FeeRate) {
		return nil, fmt.Errorf("%w: fee rate must be in [0,1), got %v", ErrConfiguration, opts.FeeRate)
	}
	if opts.Window < 0 {
		return nil, fmt.Errorf("%w: window must not be negative, got %d", ErrConfiguration, opts.Window)
	}
	if opts.MaxEpisodeSteps < 0 {
		return nil, fmt.Errorf("%w: max episode steps must not be negative, got %d", ErrConfiguration, opts.MaxEpisodeSteps)
	}
	if frame.Len() < 2 {
		return nil, fmt.Errorf("%w: need at least 2 rows, got %d", ErrConfiguration, frame.Len())
	}
	if opts.Window >= frame.Len() {
		return nil, fmt.Errorf("%w: window %d must be smaller than series length %d", ErrConfiguration, opts.Window, frame.Len())
	}
	if opts.ActionSpace == nil {
		return nil, fmt.Errorf("%w: action space is required", ErrConfiguration)
	}
	if opts.ActionSpace.NumAssets() != frame.NumAssets() {
		return nil, fmt.Errorf("%w: action space has %d assets, frame has %d",
			ErrConfiguration, opts.ActionSpace.NumAssets(), frame.NumAssets())
	}

	start := 0
	if opts.Window > 0 {
		start = opts.Window - 1
	}

	return &Env{
		frame:    frame,
		opts:     opts,
		ledger:   portfolio.NewLedger(frame.NumAssets(), opts.InitialCapital),
		recorder: history.NewRecorder(),
		state:    StateUninitialized,
		start:    start,
	}, nil
}

// Reset 开始新回合：游标回到起点，账本恢复全现金，清空历史
func (e *Env) Reset(seed *int64) (Observation, Info, error) {
	if seed != nil {
		e.seed = *seed
		e.hasSeed = true
	}

	e.cursor = e.start
	e.steps = 0
	e.ledger.Reset(e.opts.InitialCapital)
	e.recorder.Reset()

	value, err := e.ledger.TotalValue(e.frame.Prices(e.cursor))
	if err != nil {
		return Observation{}, nil, err
	}
	e.value = value
	e.recorder.Append(value, 0)
	e.state = StateReady

	return e.observation(), Info{}, nil
}

// Step 执行一步：解码动作、必要时调仓、推进游标、结算价值与奖励
func (e *Env) Step(a Action) (StepResult, error) {
	switch e.state {
	case StateUninitialized:
		return StepResult{}, ErrNotReset
	case StateDone, StateTruncated:
		return StepResult{}, ErrEpisodeEnded
	}

	target, err := e.opts.ActionSpace.Decode(a)
	if err != nil {
		return StepResult{}, fmt.Errorf("failed to decode action: %w", err)
	}

	if !portfolio.SameAllocation(target, e.ledger.Allocation()) {
		if err := e.ledger.Rebalance(target, e.frame.Prices(e.cursor), e.opts.FeeRate); err != nil {
			return StepResult{}, fmt.Errorf("failed to rebalance at row %d: %w", e.cursor, err)
		}
	}

	e.cursor++
	e.steps++

	value, err := e.ledger.TotalValue(e.frame.Prices(e.cursor))
	if err != nil {
		return StepResult{}, err
	}

	prev, err := e.recorder.At(-1)
	if err != nil {
		return StepResult{}, err
	}
	reward, err := LogReturn(prev.Value, value)
	if err != nil {
		return StepResult{}, err
	}
	e.value = value
	e.recorder.Append(value, reward)

	result := StepResult{
		Observation: e.observation(),
		Reward:      reward,
		Info: Info{
			"step":      e.steps,
			"index":     e.cursor,
			"timestamp": e.frame.Timestamps[e.cursor],
			"value":     value,
		},
	}

	// 破产优先于截断
	switch {
	case value <= 0:
		result.Done = true
		e.state = StateDone
	case e.cursor >= e.frame.Len()-1 ||
		(e.opts.MaxEpisodeSteps > 0 && e.steps >= e.opts.MaxEpisodeSteps):
		result.Truncated = true
		e.state = StateTruncated
	default:
		e.state = StateStepping
	}

	return result, nil
}

// LogReturn 对数收益 ln(cur/prev)；cur 非正时返回 WipeoutReward
func LogReturn(prev, cur float64) (float64, error) {
	if prev <= 0 || math.IsNaN(prev) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidReward, prev)
	}
	if cur <= 0 {
		return WipeoutReward, nil
	}
	return math.Log(cur / prev), nil
}

func (e *Env) observation() Observation {
	if e.opts.Window == 0 {
		return Observation{Rows: [][]float64{copyRow(e.frame.Row(e.cursor))}}
	}

	rows := make([][]float64, 0, e.opts.Window)
	for i := e.cursor - e.opts.Window + 1; i <= e.cursor; i++ {
		rows = append(rows, copyRow(e.frame.Row(i)))
	}
	return Observation{Rows: rows, Windowed: true}
}

func copyRow(row []float64) []float64 {
	return append([]float64(nil), row...)
}

// State 当前状态
func (e *Env) State() State {
	return e.state
}

// ObservationShape 观测形状
func (e *Env) ObservationShape() []int {
	if e.opts.Window == 0 {
		return []int{e.frame.NumFeatures()}
	}
	return []int{e.opts.Window, e.frame.NumFeatures()}
}

// ActionSpace 动作空间
func (e *Env) ActionSpace() ActionSpace {
	return e.opts.ActionSpace
}

// Options 构造参数
func (e *Env) Options() Options {
	return e.opts
}

// Frame 底层数据
func (e *Env) Frame() *features.Frame {
	return e.frame
}

// History 本回合的价值与奖励记录，调用方只读
func (e *Env) History() *history.Recorder {
	return e.recorder
}

// Seed 最近一次 Reset 传入的种子
func (e *Env) Seed() (int64, bool) {
	return e.seed, e.hasSeed
}

// Steps 本回合已执行步数
func (e *Env) Steps() int {
	return e.steps
}

// Timestamp 游标所在行的时间
func (e *Env) Timestamp() time.Time {
	return e.frame.Timestamps[e.cursor]
}

// Timestamps 与历史记录逐条对应的时间戳
func (e *Env) Timestamps() []time.Time {
	return e.frame.Timestamps[e.start : e.start+e.recorder.Len()]
}

// Portfolio 当前持仓快照
func (e *Env) Portfolio() Snapshot {
	return Snapshot{
		Units:      e.ledger.Units(),
		Cash:       e.ledger.Cash(),
		Allocation: e.ledger.Allocation(),
		Value:      e.value,
	}
}

// Summary 本回合汇总
func (e *Env) Summary() (EpisodeSummary, error) {
	s, err := e.recorder.Summary()
	if err != nil {
		return EpisodeSummary{}, err
	}
	return EpisodeSummary{
		Summary:  s,
		Steps:    e.steps,
		FeesPaid: e.ledger.FeesPaid(),
		Trades:   e.ledger.Trades(),
	}, nil
}
