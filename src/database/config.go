package database

import (
	"path/filepath"
	"strings"

	"github.com/xpwu/go-config/configs"
)

// Config 数据库配置
type Config struct {
	Driver       string `conf:"driver,数据库驱动 - postgres 或 sqlite3，host 为空时回退到 sqlite3"`
	Host         string `conf:"host,数据库主机地址"`
	Port         string `conf:"port,数据库端口"`
	User         string `conf:"user,数据库用户名"`
	Password     string `conf:"password,数据库密码"`
	DBName       string `conf:"dbname,数据库名称"`
	SSLMode      string `conf:"sslmode,SSL模式"`
	MaxOpenConns int    `conf:"max_open_conns,最大连接数"`
	MaxIdleConns int    `conf:"max_idle_conns,最大空闲连接数"`
	SQLitePath   string `conf:"sqlite_path,sqlite 缓存文件路径"`
}

// ConfigValue 全局数据库配置实例
var ConfigValue = Config{
	Driver:       DriverSQLite,
	Host:         "",
	Port:         "5432",
	User:         "stocksense",
	Password:     "",
	DBName:       "stocksense",
	SSLMode:      "disable",
	MaxOpenConns: 25,
	MaxIdleConns: 5,
	SQLitePath:   "data/klines.db",
}

// ForEndpoint 指定数据源的数据库配置，每个数据源使用独立的库
func (c Config) ForEndpoint(name string) Config {
	cfg := c
	cfg.DBName = c.DBName + "_" + name
	if c.SQLitePath != "" && c.SQLitePath != ":memory:" {
		ext := filepath.Ext(c.SQLitePath)
		cfg.SQLitePath = strings.TrimSuffix(c.SQLitePath, ext) + "_" + name + ext
	}
	return cfg
}

func init() {
	configs.Unmarshal(&ConfigValue)
}
