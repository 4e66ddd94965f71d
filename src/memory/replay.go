package memory

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"stocksense/src/environment"
)

// ErrNotEnoughSamples 样本数少于批大小
var ErrNotEnoughSamples = errors.New("not enough transitions in memory")

// Transition 一次状态转移
type Transition struct {
	State     environment.Observation
	Action    environment.Action
	NextState environment.Observation
	Reward    float64
	Done      bool
}

// ReplayMemory 定长先进先出的经验回放缓冲，非并发安全
type ReplayMemory struct {
	capacity int
	buf      []Transition
	next     int
}

// NewReplayMemory 创建容量为 capacity 的缓冲
func NewReplayMemory(capacity int) (*ReplayMemory, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("replay memory capacity must be positive, got %d", capacity)
	}
	return &ReplayMemory{
		capacity: capacity,
		buf:      make([]Transition, 0, capacity),
	}, nil
}

// Push 追加一条转移，满时覆盖最旧的一条
func (m *ReplayMemory) Push(t Transition) {
	if len(m.buf) < m.capacity {
		m.buf = append(m.buf, t)
		return
	}
	m.buf[m.next] = t
	m.next = (m.next + 1) % m.capacity
}

// Sample 无放回随机抽取 batchSize 条
func (m *ReplayMemory) Sample(batchSize int, rng *rand.Rand) ([]Transition, error) {
	if batchSize > len(m.buf) {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrNotEnoughSamples, batchSize, len(m.buf))
	}
	batch := make([]Transition, batchSize)
	for i, idx := range rng.Perm(len(m.buf))[:batchSize] {
		batch[i] = m.buf[idx]
	}
	return batch, nil
}

// Len 当前条数
func (m *ReplayMemory) Len() int {
	return len(m.buf)
}

// Cap 容量
func (m *ReplayMemory) Cap() int {
	return m.capacity
}

// All 按写入顺序返回全部转移，旧在前
func (m *ReplayMemory) All() []Transition {
	out := make([]Transition, 0, len(m.buf))
	out = append(out, m.buf[m.next:]...)
	return append(out, m.buf[:m.next]...)
}
