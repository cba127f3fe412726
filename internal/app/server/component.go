package server

import (
	"context"
	"fmt"
	"io"

	"relaybus-core/internal/broker"
	"relaybus-core/internal/config/schema"
	corelog "relaybus-core/internal/core/log"
	"relaybus-core/internal/core/metrics"
	"relaybus-core/internal/httpservice"
	"relaybus-core/internal/pubsub"
)

// ============================================================================
// 组件接口定义
// ============================================================================

// Component 服务器组件接口
// 每个组件负责自己的初始化、启动和停止逻辑
type Component interface {
	// Name 返回组件名称（用于日志和错误信息）
	Name() string

	// Initialize 初始化组件，注入依赖
	// 返回 error 表示初始化失败，服务器应该停止启动
	Initialize(ctx context.Context, deps *Dependencies) error

	// Start 启动组件
	Start() error

	// Stop 停止组件，按初始化的逆序调用
	Stop() error
}

// Dependencies 依赖容器
// 组件初始化时从这里获取依赖，初始化完成后将自己的产出注入回来
type Dependencies struct {
	// 配置
	Config     *schema.Root
	ConfigPath string

	// 基础设施
	Logger    corelog.Logger
	LogCloser io.Closer
	Metrics   metrics.Metrics

	// 节点信息
	NodeID string

	// 分发
	Bus    *pubsub.Bus
	Engine broker.Engine
	Hub    *broker.MemoryHub

	// HTTP 服务
	HTTPService *httpservice.HTTPService
}

// ============================================================================
// 基础组件实现
// ============================================================================

// BaseComponent 组件基类，提供默认的 Start/Stop 实现
type BaseComponent struct {
	name string
}

// NewBaseComponent 创建基础组件
func NewBaseComponent(name string) *BaseComponent {
	return &BaseComponent{name: name}
}

func (c *BaseComponent) Name() string {
	return c.name
}

func (c *BaseComponent) Start() error {
	return nil
}

func (c *BaseComponent) Stop() error {
	return nil
}

// ============================================================================
// 组件初始化错误
// ============================================================================

// ComponentError 组件初始化错误
type ComponentError struct {
	ComponentName string
	Err           error
}

func (e *ComponentError) Error() string {
	return fmt.Sprintf("component %s initialization failed: %v", e.ComponentName, e.Err)
}

func (e *ComponentError) Unwrap() error {
	return e.Err
}

// NewComponentError 创建组件错误
func NewComponentError(name string, err error) *ComponentError {
	return &ComponentError{
		ComponentName: name,
		Err:           err,
	}
}
