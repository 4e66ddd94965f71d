package environment

import (
	"fmt"
	"math/rand/v2"

	"stocksense/src/portfolio"
)

// Action 策略给出的动作。离散动作空间读取 Index，连续动作空间读取 Weights。
type Action struct {
	Index   int       `json:"index"`
	Weights []float64 `json:"weights,omitempty"`
}

// DiscreteAction 离散动作：选择一个资产满仓，Index == N 表示全现金
func DiscreteAction(i int) Action {
	return Action{Index: i}
}

// ContinuousAction 连续动作：直接给出 N+1 维配置
func ContinuousAction(weights []float64) Action {
	return Action{Weights: weights}
}

// ActionSpace 将动作解码为目标配置
type ActionSpace interface {
	// Decode 返回长度 N+1 的配置
	Decode(a Action) ([]float64, error)

	// NumAssets 资产数量 N
	NumAssets() int

	// Shape 动作形状
	Shape() []int

	// Sample 随机采样一个合法动作
	Sample(rng *rand.Rand) Action

	// Name 动作空间名称
	Name() string
}

// DiscreteSpace 取值 [0, N] 的离散动作空间，解码为 one-hot 配置
type DiscreteSpace struct {
	Assets int
}

// NewDiscreteSpace 创建离散动作空间
func NewDiscreteSpace(assets int) *DiscreteSpace {
	return &DiscreteSpace{Assets: assets}
}

func (s *DiscreteSpace) Decode(a Action) ([]float64, error) {
	if a.Index < 0 || a.Index > s.Assets {
		return nil, fmt.Errorf("%w: discrete action %d out of range [0,%d]",
			portfolio.ErrInvalidAllocation, a.Index, s.Assets)
	}
	target := make([]float64, s.Assets+1)
	target[a.Index] = 1
	return target, nil
}

func (s *DiscreteSpace) NumAssets() int {
	return s.Assets
}

// Shape 动作个数 N+1
func (s *DiscreteSpace) Shape() []int {
	return []int{s.Assets + 1}
}

func (s *DiscreteSpace) Sample(rng *rand.Rand) Action {
	return DiscreteAction(rng.IntN(s.Assets + 1))
}

func (s *DiscreteSpace) Name() string {
	return "discrete"
}

// ContinuousSpace N+1 维权重向量动作空间
type ContinuousSpace struct {
	Assets int
}

// NewContinuousSpace 创建连续动作空间
func NewContinuousSpace(assets int) *ContinuousSpace {
	return &ContinuousSpace{Assets: assets}
}

func (s *ContinuousSpace) Decode(a Action) ([]float64, error) {
	if err := portfolio.ValidateAllocation(a.Weights, s.Assets); err != nil {
		return nil, err
	}
	return append([]float64(nil), a.Weights...), nil
}

func (s *ContinuousSpace) NumAssets() int {
	return s.Assets
}

func (s *ContinuousSpace) Shape() []int {
	return []int{s.Assets + 1}
}

// Sample 对指数分布归一化，得到单纯形上的均匀样本
func (s *ContinuousSpace) Sample(rng *rand.Rand) Action {
	weights := make([]float64, s.Assets+1)
	sum := 0.0
	for i := range weights {
		weights[i] = rng.ExpFloat64()
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return ContinuousAction(weights)
}

func (s *ContinuousSpace) Name() string {
	return "continuous"
}

// NewActionSpace 按名称创建动作空间
func NewActionSpace(name string, assets int) (ActionSpace, error) {
	switch name {
	case "", "discrete":
		return NewDiscreteSpace(assets), nil
	case "continuous":
		return NewContinuousSpace(assets), nil
	default:
		return nil, fmt.Errorf("%w: unknown action space %q", ErrConfiguration, name)
	}
}
