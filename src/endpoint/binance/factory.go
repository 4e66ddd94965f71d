package binance

import (
	"context"

	"stocksense/src/database"
	"stocksense/src/endpoint"

	"github.com/xpwu/go-log/log"
)

// Factory 按全局配置创建币安数据源
type Factory struct{}

// CreateEndpoint 创建数据源，数据库不可用时退化为只走网络
func (f *Factory) CreateEndpoint() (endpoint.Endpoint, error) {
	_, logger := log.WithCtx(context.Background())
	logger.PushPrefix("BinanceFactory")

	cfg := ConfigValue
	var store database.KlineStore
	if cfg.UseCache {
		var err error
		store, err = database.Open(database.ConfigValue.ForEndpoint(Name))
		if err != nil {
			logger.Error("数据库不可用，只使用网络数据", "error", err)
			store = nil
		}
	}

	return NewClient(cfg, store), nil
}

// Register 向注册表登记币安数据源
func Register(registry *endpoint.Registry) {
	registry.Register(Name, &Factory{})
}
