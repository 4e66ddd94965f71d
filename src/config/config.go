package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"stocksense/src/endpoint"
	"stocksense/src/environment"
	"stocksense/src/timeframes"

	"github.com/xpwu/go-config/configs"
)

// Config 主配置结构
type Config struct {
	Data        DataConfig        `conf:"data,行情数据配置" json:"data" yaml:"data"`
	Environment EnvironmentConfig `conf:"environment,模拟器配置" json:"environment" yaml:"environment"`
	Policy      PolicyConfig      `conf:"policy,策略配置" json:"policy" yaml:"policy"`
	Server      ServerConfig      `conf:"server,HTTP服务配置" json:"server" yaml:"server"`
	Output      OutputConfig      `conf:"output,输出配置" json:"output" yaml:"output"`
}

// DataConfig 行情数据配置
type DataConfig struct {
	Endpoint     string   `conf:"endpoint,数据源 - binance 或 csv" json:"endpoint" yaml:"endpoint"`
	Symbols      []string `conf:"symbols,交易对列表 - 如 BTC/USDT" json:"symbols" yaml:"symbols"`
	Since        string   `conf:"since,开始时间 - YYYY-MM-DD 或 YYYY-MM-DD HH:MM:SS" json:"since" yaml:"since"`
	Until        string   `conf:"until,结束时间 - 为空表示当前时间" json:"until" yaml:"until"`
	Timeframe    string   `conf:"timeframe,K线周期 - 支持1m,5m,15m,30m,1h,2h,4h,6h,12h,1d,1w" json:"timeframe" yaml:"timeframe"`
	TrainRatio   float64  `conf:"train_ratio,训练集比例" json:"train_ratio" yaml:"train_ratio"`
	ValRatio     float64  `conf:"val_ratio,验证集比例" json:"val_ratio" yaml:"val_ratio"`
	TestRatio    float64  `conf:"test_ratio,测试集比例 - 三者之和不超过1" json:"test_ratio" yaml:"test_ratio"`
	VolumeWindow int      `conf:"volume_window,成交量归一化窗口" json:"volume_window" yaml:"volume_window"`
}

// EnvironmentConfig 模拟器配置
type EnvironmentConfig struct {
	InitialAmount   float64 `conf:"initial_amount,初始资金" json:"initial_amount" yaml:"initial_amount"`
	TradingFee      float64 `conf:"trading_fee,交易手续费率 - 0.0001=0.01%" json:"trading_fee" yaml:"trading_fee"`
	Window          int     `conf:"window,观测窗口 - 0表示只观测当前行" json:"window" yaml:"window"`
	MaxEpisodeSteps int     `conf:"max_episode_steps,单回合最大步数 - 0表示不限制" json:"max_episode_steps" yaml:"max_episode_steps"`
	ActionSpace     string  `conf:"action_space,动作空间 - discrete 或 continuous" json:"action_space" yaml:"action_space"`
	NValEpisodes    int     `conf:"n_val_episodes,验证集回合数" json:"n_val_episodes" yaml:"n_val_episodes"`
	Seed            int64   `conf:"seed,随机种子" json:"seed" yaml:"seed"`
	Verbose         int     `conf:"verbose,日志详细程度 - 0只输出汇总,1输出每一步" json:"verbose" yaml:"verbose"`
}

// PolicyConfig 策略配置
type PolicyConfig struct {
	Name        string `conf:"name,策略名称 - random,hold,cash,sequence,onnx" json:"name" yaml:"name"`
	HoldAsset   int    `conf:"hold_asset,hold策略持有的资产下标" json:"hold_asset" yaml:"hold_asset"`
	Sequence    []int  `conf:"sequence,sequence策略循环执行的离散动作" json:"sequence" yaml:"sequence"`
	ModelPath   string `conf:"model_path,ONNX模型路径" json:"model_path" yaml:"model_path"`
	LibraryPath string `conf:"library_path,onnxruntime动态库路径" json:"library_path" yaml:"library_path"`
	InputName   string `conf:"input_name,模型输入名" json:"input_name" yaml:"input_name"`
	OutputName  string `conf:"output_name,模型输出名" json:"output_name" yaml:"output_name"`
	Memory      int    `conf:"memory,经验回放缓存容量 - 0表示不记录转移" json:"memory" yaml:"memory"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Addr         string `conf:"addr,监听地址" json:"addr" yaml:"addr"`
	ReadTimeout  int    `conf:"read_timeout,读超时(秒)" json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout int    `conf:"write_timeout,写超时(秒)" json:"write_timeout" yaml:"write_timeout"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	Dir      string `conf:"dir,结果输出目录" json:"dir" yaml:"dir"`
	SaveRuns bool   `conf:"save_runs,是否将运行结果写入数据库" json:"save_runs" yaml:"save_runs"`
}

// Default 默认配置
func Default() Config {
	return Config{
		Data: DataConfig{
			Endpoint:     "binance",
			Symbols:      []string{"BTC/USDT"},
			Since:        "2023-01-01",
			Until:        "2024-01-01",
			Timeframe:    "1d",
			TrainRatio:   0.7,
			ValRatio:     0.1,
			TestRatio:    0.2,
			VolumeWindow: 168,
		},
		Environment: EnvironmentConfig{
			InitialAmount:   1000,
			TradingFee:      0.0001,
			Window:          10,
			MaxEpisodeSteps: 0,
			ActionSpace:     "discrete",
			NValEpisodes:    1,
			Seed:            42,
		},
		Policy: PolicyConfig{
			Name:       "random",
			Sequence:   []int{},
			InputName:  "obs",
			OutputName: "action",
			Memory:     100,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15,
			WriteTimeout: 60,
		},
		Output: OutputConfig{
			Dir:      "output",
			SaveRuns: false,
		},
	}
}

// AppConfig 全局配置实例
var AppConfig = func() *Config {
	c := Default()
	return &c
}()

// 在包的 init() 函数中注册配置
func init() {
	configs.Unmarshal(AppConfig)
}

// Clone 深拷贝，供单次运行修改
func (c *Config) Clone() *Config {
	out := *c
	out.Data.Symbols = append([]string{}, c.Data.Symbols...)
	out.Policy.Sequence = append([]int{}, c.Policy.Sequence...)
	return &out
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Data.Endpoint == "" {
		return fmt.Errorf("data endpoint cannot be empty")
	}
	if len(c.Data.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if _, err := c.Pairs(); err != nil {
		return err
	}

	// 验证时间周期
	if _, err := c.GetTimeframe(); err != nil {
		return fmt.Errorf("invalid timeframe: %w", err)
	}

	since, err := c.GetSince()
	if err != nil {
		return fmt.Errorf("invalid since: %w", err)
	}
	until, err := c.GetUntil()
	if err != nil {
		return fmt.Errorf("invalid until: %w", err)
	}
	if !until.After(since) {
		return fmt.Errorf("until %s must be after since %s", until.Format(time.DateTime), since.Format(time.DateTime))
	}

	// 验证数据集划分
	ratios := []float64{c.Data.TrainRatio, c.Data.ValRatio, c.Data.TestRatio}
	sum := 0.0
	for _, r := range ratios {
		if r < 0 || r > 1 || math.IsNaN(r) {
			return fmt.Errorf("split ratio %v out of [0,1]", r)
		}
		sum += r
	}
	if sum > 1+1e-9 {
		return fmt.Errorf("the sum of train_ratio, val_ratio and test_ratio must be between 0 and 1, got %v", sum)
	}
	if c.Data.VolumeWindow < 1 {
		return fmt.Errorf("volume window must be positive")
	}

	// 验证模拟器参数
	env := c.Environment
	if env.InitialAmount <= 0 {
		return fmt.Errorf("initial amount must be positive")
	}
	if env.TradingFee < 0 || env.TradingFee >= 1 {
		return fmt.Errorf("trading fee must be in [0,1)")
	}
	if env.Window < 0 {
		return fmt.Errorf("window must not be negative")
	}
	if env.MaxEpisodeSteps < 0 {
		return fmt.Errorf("max episode steps must not be negative")
	}
	if env.NValEpisodes < 0 {
		return fmt.Errorf("n_val_episodes must not be negative")
	}
	space, err := environment.NewActionSpace(env.ActionSpace, len(c.Data.Symbols))
	if err != nil {
		return err
	}

	// 验证策略
	return c.Policy.validate(space)
}

// validate 检查策略参数与动作空间是否匹配
func (p PolicyConfig) validate(space environment.ActionSpace) error {
	n := space.NumAssets()
	switch p.Name {
	case "":
		return fmt.Errorf("policy name cannot be empty")
	case "hold":
		if p.HoldAsset < 0 || p.HoldAsset > n {
			return fmt.Errorf("hold_asset %d out of [0,%d]", p.HoldAsset, n)
		}
	case "sequence":
		if _, ok := space.(*environment.DiscreteSpace); !ok {
			return fmt.Errorf("sequence policy requires the discrete action space, got %s", space.Name())
		}
		if len(p.Sequence) == 0 {
			return fmt.Errorf("sequence policy needs at least one action")
		}
		for i, a := range p.Sequence {
			if a < 0 || a > n {
				return fmt.Errorf("sequence action %d at position %d out of [0,%d]", a, i, n)
			}
		}
	}

	return nil
}

// GetTimeframe 获取时间周期
func (c *Config) GetTimeframe() (timeframes.Timeframe, error) {
	return timeframes.ParseTimeframe(c.Data.Timeframe)
}

// GetSince 获取开始时间
func (c *Config) GetSince() (time.Time, error) {
	return ParseDate(c.Data.Since)
}

// GetUntil 获取结束时间，为空时取当前时间
func (c *Config) GetUntil() (time.Time, error) {
	if strings.TrimSpace(c.Data.Until) == "" {
		return time.Now().UTC(), nil
	}
	return ParseDate(c.Data.Until)
}

// Pairs 解析交易对列表
func (c *Config) Pairs() ([]endpoint.TradingPair, error) {
	pairs := make([]endpoint.TradingPair, 0, len(c.Data.Symbols))
	for _, s := range c.Data.Symbols {
		pair, err := endpoint.ParseTradingPair(s)
		if err != nil {
			return nil, fmt.Errorf("invalid symbol %q: %w", s, err)
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// EnvOptions 模拟器构造参数
func (c *Config) EnvOptions() (environment.Options, error) {
	space, err := environment.NewActionSpace(c.Environment.ActionSpace, len(c.Data.Symbols))
	if err != nil {
		return environment.Options{}, err
	}
	return environment.Options{
		InitialCapital:  c.Environment.InitialAmount,
		FeeRate:         c.Environment.TradingFee,
		Window:          c.Environment.Window,
		MaxEpisodeSteps: c.Environment.MaxEpisodeSteps,
		ActionSpace:     space,
	}, nil
}
