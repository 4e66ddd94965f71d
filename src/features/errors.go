package features

import "errors"

var (
	// ErrInsufficientData 预处理后没有可用的行
	ErrInsufficientData = errors.New("insufficient data for feature calculation")

	// ErrNoOverlap 各资产单独有数据，但没有共同的时间戳
	ErrNoOverlap = errors.New("assets share no timestamps")

	// ErrDuplicateTimestamp 同一资产存在重复时间戳
	ErrDuplicateTimestamp = errors.New("duplicate timestamp")

	// ErrMisaligned 帧内各列长度不一致
	ErrMisaligned = errors.New("frame columns are misaligned")

	// ErrNotMonotonic 时间戳不是严格递增
	ErrNotMonotonic = errors.New("timestamps are not strictly increasing")
)
