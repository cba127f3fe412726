package httpservice

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"relaybus-core/internal/core/dispose"
	coreerrors "relaybus-core/internal/core/errors"
	corelog "relaybus-core/internal/core/log"
	"relaybus-core/internal/core/safe"
	"relaybus-core/internal/version"
)

// HTTPService 统一 HTTP 服务
// 管理所有 HTTP 模块，提供统一的入口
type HTTPService struct {
	*dispose.ServiceBase

	config  *HTTPServiceConfig
	router  *mux.Router
	server  *http.Server
	modules []HTTPModule
	deps    *ModuleDependencies
	logger  corelog.Logger

	listener net.Listener
	serveErr chan error
}

// NewHTTPService 创建统一 HTTP 服务
func NewHTTPService(ctx context.Context, config *HTTPServiceConfig, deps *ModuleDependencies) *HTTPService {
	if config == nil {
		config = DefaultHTTPServiceConfig()
	}
	if deps == nil {
		deps = &ModuleDependencies{}
	}
	deps.Logger = corelog.Component(deps.Logger, "http")

	s := &HTTPService{
		ServiceBase: dispose.NewService("HTTPService", ctx),
		config:      config,
		router:      mux.NewRouter(),
		modules:     make([]HTTPModule, 0),
		deps:        deps,
		logger:      deps.Logger,
		serveErr:    make(chan error, 1),
	}

	s.server = &http.Server{
		Addr:           config.ListenAddr,
		Handler:        s.router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// 注册通用中间件
	s.router.Use(loggingMiddleware(s.logger))
	s.router.Use(corsMiddleware(&s.config.CORS))
	if s.config.MaxBodySize > 0 {
		s.router.Use(bodySizeLimitMiddleware(s.config.MaxBodySize))
	}
	s.registerHealthRoutes()

	// 添加清理处理器
	s.AddCleanHandler(func() error {
		s.logger.Info("HTTPService: shutting down...")
		timeout := s.config.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	})

	return s
}

// RegisterModule 注册模块并挂载路由
func (s *HTTPService) RegisterModule(module HTTPModule) {
	if module == nil {
		return
	}

	// 注入依赖
	module.SetDependencies(s.deps)
	module.RegisterRoutes(s.router)
	s.modules = append(s.modules, module)

	s.logger.Infof("HTTPService: registered module %s", module.Name())
}

// GetDependencies 获取依赖（供模块使用）
func (s *HTTPService) GetDependencies() *ModuleDependencies {
	return s.deps
}

// Start 监听并在后台提供服务
func (s *HTTPService) Start() error {
	// 启动各模块
	for _, module := range s.modules {
		if err := module.Start(); err != nil {
			s.logger.Errorf("HTTPService: failed to start module %s: %v", module.Name(), err)
			return err
		}
	}

	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return coreerrors.Wrapf(err, coreerrors.CodeNetworkError, "listen on %s", s.config.ListenAddr)
	}
	s.listener = ln
	s.logger.Infof("HTTPService: listening on %s", ln.Addr())

	safe.Go("http-server", func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("HTTPService: Serve error: %v", err)
			s.serveErr <- err
		}
		close(s.serveErr)
	})
	return nil
}

// Err 服务退出时关闭；异常退出时先送出错误
func (s *HTTPService) Err() <-chan error {
	return s.serveErr
}

// Addr 实际监听地址，未启动时返回配置值
func (s *HTTPService) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.ListenAddr
}

// Stop 停止服务
func (s *HTTPService) Stop() error {
	s.logger.Info("HTTPService: stopping...")

	// 停止各模块（逆序）
	for i := len(s.modules) - 1; i >= 0; i-- {
		module := s.modules[i]
		if err := module.Stop(); err != nil {
			s.logger.Warnf("HTTPService: failed to stop module %s: %v", module.Name(), err)
		}
	}

	// 关闭服务
	return s.CloseWithError()
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	NodeID  string `json:"node_id,omitempty"`
	Version string `json:"version"`
	Engine  string `json:"engine,omitempty"`
	Time    string `json:"time"`
}

// registerHealthRoutes 注册健康检查路由
func (s *HTTPService) registerHealthRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
}

// handleHealthz 健康检查：总线未关闭且默认引擎可达
func (s *HTTPService) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		NodeID:  s.deps.NodeID,
		Version: version.GetShortVersion(),
		Time:    time.Now().Format(time.RFC3339),
	}
	if s.deps.Bus == nil || s.deps.Bus.IsClosed() {
		resp.Status = "closed"
		RespondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	if s.deps.Engine != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Engine.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Engine = err.Error()
			RespondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	RespondJSON(w, http.StatusOK, resp)
}

// GetRouter 获取路由器（供测试使用）
func (s *HTTPService) GetRouter() *mux.Router {
	return s.router
}

// GetConfig 获取配置
func (s *HTTPService) GetConfig() *HTTPServiceConfig {
	return s.config
}
