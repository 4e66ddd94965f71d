package policy

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"stocksense/src/environment"
)

// ErrUnknownPolicy 未知策略名称
var ErrUnknownPolicy = errors.New("unknown policy")

// Policy 根据观测给出动作
type Policy interface {
	Name() string
	Act(ctx context.Context, obs environment.Observation) (environment.Action, error)
}

// Options 创建策略的参数
type Options struct {
	Seed      uint64
	HoldAsset int
	Sequence  []environment.Action
	ONNX      ONNXConfig
}

// New 按名称创建策略：random, hold, cash, sequence, onnx
func New(name string, space environment.ActionSpace, obsShape []int, opts Options) (Policy, error) {
	switch name {
	case "", "random":
		return NewRandom(space, opts.Seed), nil
	case "hold":
		return NewHold(space.NumAssets(), opts.HoldAsset)
	case "cash":
		return NewHold(space.NumAssets(), space.NumAssets())
	case "sequence":
		return NewSequence(opts.Sequence)
	case "onnx":
		return NewONNX(opts.ONNX, obsShape, space)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownPolicy, name)
	}
}

// Random 在动作空间中均匀采样
type Random struct {
	space environment.ActionSpace
	rng   *rand.Rand
}

// NewRandom 创建随机策略，相同种子产生相同动作序列
func NewRandom(space environment.ActionSpace, seed uint64) *Random {
	return &Random{
		space: space,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (p *Random) Name() string {
	return "random"
}

func (p *Random) Act(_ context.Context, _ environment.Observation) (environment.Action, error) {
	return p.space.Sample(p.rng), nil
}

// Hold 始终满仓同一个资产，asset == N 表示持有现金。
// 动作同时带 Index 与 Weights，离散与连续空间都可解码。
type Hold struct {
	action environment.Action
}

// NewHold 创建持有策略
func NewHold(numAssets, asset int) (*Hold, error) {
	if asset < 0 || asset > numAssets {
		return nil, fmt.Errorf("hold asset %d out of range [0,%d]", asset, numAssets)
	}
	weights := make([]float64, numAssets+1)
	weights[asset] = 1
	return &Hold{action: environment.Action{Index: asset, Weights: weights}}, nil
}

func (p *Hold) Name() string {
	return "hold"
}

func (p *Hold) Act(_ context.Context, _ environment.Observation) (environment.Action, error) {
	return p.action, nil
}

// Sequence 按顺序回放固定动作，用完后从头循环
type Sequence struct {
	actions []environment.Action
	next    int
}

// NewSequence 创建回放策略
func NewSequence(actions []environment.Action) (*Sequence, error) {
	if len(actions) == 0 {
		return nil, errors.New("sequence policy needs at least one action")
	}
	return &Sequence{actions: actions}, nil
}

func (p *Sequence) Name() string {
	return "sequence"
}

func (p *Sequence) Act(_ context.Context, _ environment.Observation) (environment.Action, error) {
	a := p.actions[p.next]
	p.next = (p.next + 1) % len(p.actions)
	return a, nil
}

// Reset 回到第一个动作
func (p *Sequence) Reset() {
	p.next = 0
}
