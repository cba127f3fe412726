// Package httpservice 提供统一的 HTTP 服务框架
// 支持模块化设计，各模块自注册路由，独立配置启用/禁用
package httpservice

import (
	"context"

	"github.com/gorilla/mux"

	corelog "relaybus-core/internal/core/log"
	"relaybus-core/internal/pubsub"
)

// HTTPModule HTTP 服务模块接口
// 所有 HTTP 子服务（WebSocket、管理 API 等）都需要实现此接口
type HTTPModule interface {
	// Name 模块名称（用于日志和配置）
	Name() string

	// RegisterRoutes 注册路由到 router
	// 模块自行决定注册哪些路径
	RegisterRoutes(router *mux.Router)

	// SetDependencies 注入依赖
	SetDependencies(deps *ModuleDependencies)

	// Start 启动模块（可选的后台任务）
	Start() error

	// Stop 停止模块
	Stop() error
}

// HealthChecker 健康检查，返回 nil 表示可用
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// ModuleDependencies 模块依赖
// 包含所有模块可能需要的公共依赖
type ModuleDependencies struct {
	// Bus 发布订阅总线
	Bus *pubsub.Bus

	// Engine 默认引擎的健康检查，单机运行时为 nil
	Engine HealthChecker

	// NodeID 当前节点ID
	NodeID string

	Logger corelog.Logger
}
