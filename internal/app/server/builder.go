package server

import (
	"context"

	"relaybus-core/internal/broker"
	"relaybus-core/internal/config/schema"
	coreerrors "relaybus-core/internal/core/errors"
	corelog "relaybus-core/internal/core/log"
	"relaybus-core/internal/core/metrics"
)

// ============================================================================
// ServerBuilder - 服务器构建器
// ============================================================================

// ServerBuilder 服务器构建器
// 使用 Builder 模式组装服务器，支持自定义组件组合
type ServerBuilder struct {
	config     *schema.Root
	components []Component
	deps       *Dependencies
}

// NewServerBuilder 创建服务器构建器
func NewServerBuilder(config *schema.Root) *ServerBuilder {
	return &ServerBuilder{
		config:     config,
		components: make([]Component, 0),
		deps:       &Dependencies{Config: config},
	}
}

// With 添加组件
func (b *ServerBuilder) With(c Component) *ServerBuilder {
	b.components = append(b.components, c)
	return b
}

// WithDefaults 添加默认组件（按依赖顺序）
func (b *ServerBuilder) WithDefaults() *ServerBuilder {
	return b.
		With(&NodeComponent{}).
		With(&BusComponent{}).
		With(&EngineComponent{}).
		With(&HTTPComponent{})
}

// WithConfigPath 记录配置文件路径，用于启动横幅
func (b *ServerBuilder) WithConfigPath(path string) *ServerBuilder {
	b.deps.ConfigPath = path
	return b
}

// WithLogger 使用给定 Logger，跳过按配置初始化全局日志
func (b *ServerBuilder) WithLogger(logger corelog.Logger) *ServerBuilder {
	b.deps.Logger = logger
	return b
}

// WithHub 指定内存引擎的交换点，同一进程内的多个服务器可借此互通
func (b *ServerBuilder) WithHub(hub *broker.MemoryHub) *ServerBuilder {
	b.deps.Hub = hub
	return b
}

// Build 构建服务器
// 按顺序初始化所有组件，任何组件失败都会释放已初始化的组件并返回错误
func (b *ServerBuilder) Build(parentCtx context.Context) (*Server, error) {
	if b.config == nil {
		return nil, coreerrors.New(coreerrors.CodeConfigError, "server config is required")
	}

	// 初始化日志（在组件初始化之前）
	if b.deps.Logger == nil {
		closer, err := corelog.Configure(corelog.Config{
			Level:  b.config.Log.Level,
			Format: b.config.Log.Format,
			Output: b.config.Log.Output,
			File:   b.config.Log.File,
		})
		if err != nil {
			return nil, err
		}
		b.deps.Logger = corelog.Default()
		b.deps.LogCloser = closer
	}
	if b.deps.Metrics == nil {
		b.deps.Metrics = metrics.NewMemoryMetrics()
	}

	server := &Server{
		config: b.config,
		deps:   b.deps,
	}

	for _, c := range b.components {
		b.deps.Logger.Debugf("Initializing component: %s", c.Name())

		if err := c.Initialize(parentCtx, b.deps); err != nil {
			_ = server.stopComponents()
			server.closeLog()
			return nil, NewComponentError(c.Name(), err)
		}
		server.components = append(server.components, c)

		b.deps.Logger.Debugf("Component initialized: %s", c.Name())
	}

	server.logger = corelog.Component(b.deps.Logger, "server")
	return server, nil
}
