package binance

import (
	"time"

	"github.com/xpwu/go-config/configs"
)

// Config 币安行情配置
type Config struct {
	APIKey     string  `conf:"api_key,API密钥 - 只读取公开行情时可为空"`
	SecretKey  string  `conf:"secret_key,API私钥"`
	BaseURL    string  `conf:"base_url,API地址"`
	Timeout    int     `conf:"timeout,请求超时时间(秒)"`
	PageLimit  int     `conf:"page_limit,单次请求的最大K线条数 - 币安上限1000"`
	PauseEvery int     `conf:"pause_every,每请求多少页暂停一次"`
	PauseMs    int     `conf:"pause_ms,暂停时长(毫秒)"`
	RateLimit  float64 `conf:"rate_limit,每秒最多请求次数"`
	UseCache   bool    `conf:"use_cache,是否使用数据库缓存K线"`
}

// ConfigValue 币安配置实例
var ConfigValue = Config{
	APIKey:     "",
	SecretKey:  "",
	BaseURL:    "https://api.binance.com",
	Timeout:    10,
	PageLimit:  1000,
	PauseEvery: 10,
	PauseMs:    1000,
	RateLimit:  10,
	UseCache:   true,
}

// Limits 分页下载限制
type Limits struct {
	PageLimit  int
	PauseEvery int
	Pause      time.Duration
}

// Limits 配置对应的分页限制
func (c Config) Limits() Limits {
	return Limits{
		PageLimit:  c.PageLimit,
		PauseEvery: c.PauseEvery,
		Pause:      time.Duration(c.PauseMs) * time.Millisecond,
	}
}

func init() {
	configs.Unmarshal(&ConfigValue)
}
