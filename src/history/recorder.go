package history

import (
	"errors"
	"fmt"
)

// ErrIndexOutOfRange 索引超出记录范围
var ErrIndexOutOfRange = errors.New("history index out of range")

// Entry 单步记录
type Entry struct {
	Value  float64 `json:"value"`
	Reward float64 `json:"reward"`
}

// Summary 回合汇总
type Summary struct {
	InitialValue   float64 `json:"initial_value"`
	FinalValue     float64 `json:"final_value"`
	TotalReturnPct float64 `json:"total_return_pct"`
}

// Recorder 只追加的组合价值与奖励记录
type Recorder struct {
	entries []Entry
}

// NewRecorder 创建空记录器
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Append 追加一条记录
func (r *Recorder) Append(value, reward float64) {
	r.entries = append(r.entries, Entry{Value: value, Reward: reward})
}

// Len 记录条数
func (r *Recorder) Len() int {
	return len(r.entries)
}

// At 按索引读取，负数从末尾计数，-1 为最新一条
func (r *Recorder) At(i int) (Entry, error) {
	idx := i
	if idx < 0 {
		idx += len(r.entries)
	}
	if idx < 0 || idx >= len(r.entries) {
		return Entry{}, fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(r.entries))
	}
	return r.entries[idx], nil
}

// Values 价值序列副本
func (r *Recorder) Values() []float64 {
	values := make([]float64, len(r.entries))
	for i, e := range r.entries {
		values[i] = e.Value
	}
	return values
}

// Rewards 奖励序列副本
func (r *Recorder) Rewards() []float64 {
	rewards := make([]float64, len(r.entries))
	for i, e := range r.entries {
		rewards[i] = e.Reward
	}
	return rewards
}

// Export 全部记录的副本
func (r *Recorder) Export() []Entry {
	return append([]Entry(nil), r.entries...)
}

// Reset 清空记录
func (r *Recorder) Reset() {
	r.entries = r.entries[:0]
}

// Summary 以首条记录为初始价值计算汇总
func (r *Recorder) Summary() (Summary, error) {
	if len(r.entries) == 0 {
		return Summary{}, fmt.Errorf("%w: empty history", ErrIndexOutOfRange)
	}

	initial := r.entries[0].Value
	final := r.entries[len(r.entries)-1].Value

	s := Summary{InitialValue: initial, FinalValue: final}
	if initial > 0 {
		s.TotalReturnPct = (final/initial - 1) * 100
	}
	return s, nil
}
