package features

import (
	"fmt"
	"iter"
	"math"
	"time"
)

// Frame 预处理后的对齐特征表，创建后只读，可在多个模拟器间共享。
//
// Features 与 Closes 按行对齐：Features[t] 是第 t 行的全部特征，
// Closes[t][i] 是第 i 个资产在该行的收盘价。
type Frame struct {
	Timestamps []time.Time
	Symbols    []string
	Columns    []string
	Features   [][]float64
	Closes     [][]float64
}

// Len 行数
func (f *Frame) Len() int {
	return len(f.Timestamps)
}

// NumAssets 资产数量
func (f *Frame) NumAssets() int {
	return len(f.Symbols)
}

// NumFeatures 每行特征数量
func (f *Frame) NumFeatures() int {
	return len(f.Columns)
}

// Row 第 i 行特征，调用方不得修改
func (f *Frame) Row(i int) []float64 {
	return f.Features[i]
}

// Prices 第 i 行各资产收盘价，调用方不得修改
func (f *Frame) Prices(i int) []float64 {
	return f.Closes[i]
}

// Rows 按时间顺序惰性遍历特征行
func (f *Frame) Rows() iter.Seq2[time.Time, []float64] {
	return func(yield func(time.Time, []float64) bool) {
		for i, ts := range f.Timestamps {
			if !yield(ts, f.Features[i]) {
				return
			}
		}
	}
}

// Validate 检查形状一致、时间戳严格递增、价格非负有限
func (f *Frame) Validate() error {
	n := f.Len()
	if len(f.Features) != n || len(f.Closes) != n {
		return fmt.Errorf("%w: %d timestamps, %d feature rows, %d price rows",
			ErrMisaligned, n, len(f.Features), len(f.Closes))
	}

	for i := 0; i < n; i++ {
		if len(f.Features[i]) != len(f.Columns) {
			return fmt.Errorf("%w: row %d has %d features, expected %d",
				ErrMisaligned, i, len(f.Features[i]), len(f.Columns))
		}
		if len(f.Closes[i]) != len(f.Symbols) {
			return fmt.Errorf("%w: row %d has %d prices, expected %d",
				ErrMisaligned, i, len(f.Closes[i]), len(f.Symbols))
		}
		for _, p := range f.Closes[i] {
			if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
				return fmt.Errorf("%w: row %d has invalid price %v", ErrMisaligned, i, p)
			}
		}
		if i > 0 && !f.Timestamps[i].After(f.Timestamps[i-1]) {
			return fmt.Errorf("%w: row %d at %s", ErrNotMonotonic, i, f.Timestamps[i].Format(time.RFC3339))
		}
	}

	return nil
}

// Slice 返回 [from, to) 行的视图，共享底层数据
func (f *Frame) Slice(from, to int) *Frame {
	return &Frame{
		Timestamps: f.Timestamps[from:to],
		Symbols:    f.Symbols,
		Columns:    f.Columns,
		Features:   f.Features[from:to],
		Closes:     f.Closes[from:to],
	}
}

// Split 按比例切分训练、验证、测试集，比例之和不得超过 1。
// 每段行数向下取整，剩余的尾部行被丢弃。
func (f *Frame) Split(train, val, test float64) (*Frame, *Frame, *Frame, error) {
	for _, r := range []float64{train, val, test} {
		if r < 0 || r > 1 || math.IsNaN(r) {
			return nil, nil, nil, fmt.Errorf("split ratio %v out of [0,1]", r)
		}
	}
	if train+val+test > 1+1e-9 {
		return nil, nil, nil, fmt.Errorf("split ratios sum to %v, must not exceed 1", train+val+test)
	}

	n := f.Len()
	nTrain := int(float64(n) * train)
	nVal := int(float64(n) * val)
	nTest := int(float64(n) * test)

	trainFrame := f.Slice(0, nTrain)
	valFrame := f.Slice(nTrain, nTrain+nVal)
	testFrame := f.Slice(nTrain+nVal, nTrain+nVal+nTest)

	return trainFrame, valFrame, testFrame, nil
}
