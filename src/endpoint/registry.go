package endpoint

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

// ErrUnknownEndpoint 未注册的数据源
var ErrUnknownEndpoint = errors.New("unknown endpoint")

// Factory 数据源工厂
type Factory interface {
	CreateEndpoint() (Endpoint, error)
}

// FactoryFunc 函数形式的工厂
type FactoryFunc func() (Endpoint, error)

// CreateEndpoint 实现 Factory
func (f FactoryFunc) CreateEndpoint() (Endpoint, error) {
	return f()
}

// Registry 数据源注册表。启动时创建一次，按引用传递。
// 每个名称的数据源只创建一次，之后复用同一实例（及其缓存）。
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	endpoints map[string]Endpoint
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		endpoints: make(map[string]Endpoint),
	}
}

// Register 注册数据源工厂，同名覆盖并丢弃已创建的实例
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[name] = factory
	delete(r.endpoints, name)
}

// Get 获取数据源实例，首次访问时创建
func (r *Registry) Get(name string) (Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ep, ok := r.endpoints[name]; ok {
		return ep, nil
	}

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEndpoint, name)
	}

	ep, err := factory.CreateEndpoint()
	if err != nil {
		return nil, fmt.Errorf("failed to create endpoint %s: %w", name, err)
	}
	r.endpoints[name] = ep

	return ep, nil
}

// Names 已注册的数据源名称，按字母排序
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close 关闭所有已创建且实现了 io.Closer 的数据源
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, ep := range r.endpoints {
		if closer, ok := ep.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
		delete(r.endpoints, name)
	}
	return errors.Join(errs...)
}
