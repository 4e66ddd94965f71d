package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFrame(n int) *Frame {
	frame := &Frame{
		Symbols: []string{"BTC/USDT"},
		Columns: []string{"feature_close"},
	}
	for i := 0; i < n; i++ {
		frame.Timestamps = append(frame.Timestamps, testStart.Add(time.Duration(i)*time.Hour))
		frame.Features = append(frame.Features, []float64{float64(i)})
		frame.Closes = append(frame.Closes, []float64{100 + float64(i)})
	}
	return frame
}

func TestFrame_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *Frame)
		wantErr error
	}{
		{"valid", func(f *Frame) {}, nil},
		{"行数不一致", func(f *Frame) { f.Closes = f.Closes[:2] }, ErrMisaligned},
		{"特征列数不一致", func(f *Frame) { f.Features[1] = []float64{1, 2} }, ErrMisaligned},
		{"价格列数不一致", func(f *Frame) { f.Closes[1] = []float64{1, 2} }, ErrMisaligned},
		{"负价格", func(f *Frame) { f.Closes[0][0] = -1 }, ErrMisaligned},
		{"NaN价格", func(f *Frame) { f.Closes[0][0] = math.NaN() }, ErrMisaligned},
		{"时间戳重复", func(f *Frame) { f.Timestamps[2] = f.Timestamps[1] }, ErrNotMonotonic},
		{"时间戳倒序", func(f *Frame) { f.Timestamps[0] = f.Timestamps[3] }, ErrNotMonotonic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := newTestFrame(4)
			tt.mutate(frame)
			err := frame.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestFrame_Rows(t *testing.T) {
	frame := newTestFrame(5)

	var seen []float64
	for ts, row := range frame.Rows() {
		assert.False(t, ts.IsZero())
		seen = append(seen, row[0])
		if len(seen) == 3 {
			break
		}
	}

	assert.Equal(t, []float64{0, 1, 2}, seen)
}

func TestFrame_Split(t *testing.T) {
	frame := newTestFrame(10)

	train, val, test, err := frame.Split(0.6, 0.2, 0.2)
	require.NoError(t, err)

	assert.Equal(t, 6, train.Len())
	assert.Equal(t, 2, val.Len())
	assert.Equal(t, 2, test.Len())
	assert.Equal(t, frame.Timestamps[6], val.Timestamps[0])
	assert.Equal(t, 108.0, test.Prices(0)[0])
	assert.NoError(t, val.Validate())

	t.Run("比例之和小于1丢弃尾部", func(t *testing.T) {
		train, val, test, err := frame.Split(0.5, 0.2, 0)
		require.NoError(t, err)
		assert.Equal(t, 5, train.Len())
		assert.Equal(t, 2, val.Len())
		assert.Equal(t, 0, test.Len())
	})

	t.Run("比例之和超过1", func(t *testing.T) {
		_, _, _, err := frame.Split(0.7, 0.3, 0.2)
		assert.Error(t, err)
	})

	t.Run("负比例", func(t *testing.T) {
		_, _, _, err := frame.Split(-0.1, 0.3, 0.2)
		assert.Error(t, err)
	})
}
