package environment

import "errors"

var (
	// ErrConfiguration 构造参数或数据不合法
	ErrConfiguration = errors.New("invalid environment configuration")

	// ErrEpisodeEnded 回合已结束，需要先 Reset
	ErrEpisodeEnded = errors.New("episode has ended, call Reset")

	// ErrNotReset 尚未调用 Reset
	ErrNotReset = errors.New("environment has not been reset")

	// ErrInvalidReward 上一步组合价值非正，无法计算对数收益
	ErrInvalidReward = errors.New("cannot compute reward from non-positive previous value")
)
