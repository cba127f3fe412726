// Package management 提供管理 API 模块
// 包含 HTTP 发布、统计与订阅查询接口
package management

import (
	"context"

	"github.com/gorilla/mux"

	"relaybus-core/internal/core/dispose"
	coreerrors "relaybus-core/internal/core/errors"
	corelog "relaybus-core/internal/core/log"
	"relaybus-core/internal/httpservice"
	"relaybus-core/internal/pubsub"
)

// ManagementModule 管理 API 模块
type ManagementModule struct {
	*dispose.ServiceBase

	config *httpservice.ManagementAPIModuleConfig
	deps   *httpservice.ModuleDependencies
	bus    *pubsub.Bus
	logger corelog.Logger
}

// NewManagementModule 创建管理 API 模块
func NewManagementModule(ctx context.Context, config *httpservice.ManagementAPIModuleConfig) *ManagementModule {
	if config == nil {
		config = &httpservice.DefaultHTTPServiceConfig().Modules.ManagementAPI
	}
	return &ManagementModule{
		ServiceBase: dispose.NewService("ManagementModule", ctx),
		config:      config,
		logger:      corelog.Default(),
	}
}

// Name 返回模块名称
func (m *ManagementModule) Name() string {
	return "ManagementAPI"
}

// SetDependencies 注入依赖
func (m *ManagementModule) SetDependencies(deps *httpservice.ModuleDependencies) {
	m.deps = deps
	m.bus = deps.Bus
	m.logger = corelog.Component(deps.Logger, "management")
}

// RegisterRoutes 注册路由
func (m *ManagementModule) RegisterRoutes(router *mux.Router) {
	if !m.config.Enabled {
		m.logger.Info("ManagementModule: disabled, skipping route registration")
		return
	}

	// API 基础路径
	api := router.PathPrefix("/api").Subrouter()

	// 应用认证中间件
	api.Use(httpservice.AuthMiddleware(&m.config.Auth))

	api.HandleFunc("/publish/{channel}", m.handlePublish).Methods("POST")
	api.HandleFunc("/stats", m.handleGetStats).Methods("GET")
	api.HandleFunc("/subscriptions", m.handleListSubscriptions).Methods("GET")
	api.HandleFunc("/engines", m.handleListEngines).Methods("GET")
	api.HandleFunc("/version", m.handleGetVersion).Methods("GET")
}

// Start 启动模块
func (m *ManagementModule) Start() error {
	if m.config.Enabled && m.bus == nil {
		return coreerrors.New(coreerrors.CodeConfigError, "management module requires a bus")
	}
	return nil
}

// Stop 停止模块
func (m *ManagementModule) Stop() error {
	return m.CloseWithError()
}
