package server

import (
	"context"
	"time"

	"github.com/google/uuid"

	"relaybus-core/internal/broker"
	"relaybus-core/internal/config/schema"
	corelog "relaybus-core/internal/core/log"
	"relaybus-core/internal/httpservice"
	"relaybus-core/internal/httpservice/modules/management"
	wsmodule "relaybus-core/internal/httpservice/modules/websocket"
	"relaybus-core/internal/pubsub"
)

// busCloseTimeout 关闭总线时等待引擎队列排空的上限
const busCloseTimeout = 5 * time.Second

// ============================================================================
// NodeComponent - 节点标识
// ============================================================================

// NodeComponent 确定节点ID，未配置时生成 UUID
type NodeComponent struct {
	*BaseComponent
}

func (c *NodeComponent) Name() string {
	return "Node"
}

func (c *NodeComponent) Initialize(ctx context.Context, deps *Dependencies) error {
	nodeID := deps.Config.Node.ID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	deps.NodeID = nodeID
	deps.Logger = deps.Logger.WithField(corelog.FieldNode, nodeID)

	deps.Logger.Infof("Node initialized: id=%s", nodeID)
	return nil
}

func (c *NodeComponent) Start() error { return nil }

func (c *NodeComponent) Stop() error { return nil }

// ============================================================================
// BusComponent - 分发总线
// ============================================================================

// BusComponent 创建订阅分发总线
type BusComponent struct {
	*BaseComponent
	bus *pubsub.Bus
}

func (c *BusComponent) Name() string {
	return "Bus"
}

func (c *BusComponent) Initialize(ctx context.Context, deps *Dependencies) error {
	dispatch := deps.Config.Dispatch
	bus, err := pubsub.New(pubsub.Options{
		EngineQueueSize:  dispatch.EngineQueueSize,
		ConnQueueSize:    dispatch.ConnQueueSize,
		PatternCacheSize: dispatch.PatternCacheSize,
		Logger:           deps.Logger,
		Metrics:          deps.Metrics,
	})
	if err != nil {
		return err
	}
	c.bus = bus
	deps.Bus = bus
	return nil
}

func (c *BusComponent) Start() error { return nil }

// Stop 关闭总线，等待引擎队列中未完成的调用
func (c *BusComponent) Stop() error {
	if c.bus == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), busCloseTimeout)
	defer cancel()
	return c.bus.Close(ctx)
}

// ============================================================================
// EngineComponent - 传播引擎
// ============================================================================

// EngineComponent 按配置创建引擎并注册为总线默认引擎
type EngineComponent struct {
	*BaseComponent
	engine broker.Engine
}

func (c *EngineComponent) Name() string {
	return "Engine"
}

func (c *EngineComponent) Initialize(ctx context.Context, deps *Dependencies) error {
	cfg := deps.Config.Engine
	eng, err := broker.NewEngine(ctx, &broker.Config{
		Type:   broker.Type(cfg.Type),
		NodeID: deps.NodeID,
		Redis:  redisConfig(&cfg.Redis),
		Hub:    deps.Hub,
		Logger: deps.Logger,
	}, deps.Bus.Deliverer())
	if err != nil {
		return err
	}

	if eng == nil {
		deps.Logger.Warn("Engine: none configured, only local publish is available")
		return nil
	}

	c.engine = eng
	deps.Engine = eng
	deps.Bus.Register(eng)
	if rc, ok := eng.(broker.Reconnector); ok {
		bus := deps.Bus
		rc.OnReconnect(func() {
			bus.Reset(eng)
			deps.Logger.Infof("Engine: subscriptions replayed to %s after reconnect", eng.Name())
		})
	}
	deps.Logger.Infof("Engine initialized: type=%s name=%s", cfg.Type, eng.Name())
	return nil
}

func (c *EngineComponent) Start() error { return nil }

func (c *EngineComponent) Stop() error {
	if c.engine == nil {
		return nil
	}
	return c.engine.Close()
}

func redisConfig(cfg *schema.RedisConfig) *broker.RedisConfig {
	return &broker.RedisConfig{
		Addrs:        cfg.Addrs,
		Password:     cfg.Password.Value(),
		DB:           cfg.DB,
		ClusterMode:  cfg.ClusterMode,
		PoolSize:     cfg.PoolSize,
		Prefix:       cfg.Prefix,
		DedupeWindow: cfg.DedupeWindow,
	}
}

// ============================================================================
// HTTPComponent - HTTP 服务
// ============================================================================

// HTTPComponent 创建 HTTP 服务并注册 WebSocket 与管理 API 模块
type HTTPComponent struct {
	*BaseComponent
	service *httpservice.HTTPService
}

func (c *HTTPComponent) Name() string {
	return "HTTP"
}

func (c *HTTPComponent) Initialize(ctx context.Context, deps *Dependencies) error {
	httpConfig := HTTPServiceConfig(deps.Config)

	moduleDeps := &httpservice.ModuleDependencies{
		Bus:    deps.Bus,
		NodeID: deps.NodeID,
		Logger: deps.Logger,
	}
	// 避免把 nil 引擎包装成非 nil 接口
	if deps.Engine != nil {
		moduleDeps.Engine = deps.Engine
	}

	svc := httpservice.NewHTTPService(ctx, httpConfig, moduleDeps)
	svc.RegisterModule(wsmodule.NewWebSocketModule(ctx, &httpConfig.Modules.WebSocket))
	svc.RegisterModule(management.NewManagementModule(ctx, &httpConfig.Modules.ManagementAPI))

	c.service = svc
	deps.HTTPService = svc
	return nil
}

func (c *HTTPComponent) Start() error {
	return c.service.Start()
}

func (c *HTTPComponent) Stop() error {
	if c.service == nil {
		return nil
	}
	return c.service.Stop()
}

// HTTPServiceConfig 由根配置生成 HTTP 服务配置
func HTTPServiceConfig(cfg *schema.Root) *httpservice.HTTPServiceConfig {
	httpConfig := httpservice.DefaultHTTPServiceConfig()
	httpConfig.ListenAddr = cfg.Server.Listen
	if cfg.Server.MaxMessageSize > 0 {
		httpConfig.MaxBodySize = cfg.Server.MaxMessageSize
	}

	ws := &httpConfig.Modules.WebSocket
	ws.Enabled = true
	ws.Path = cfg.Server.Path
	ws.PublishRate = cfg.Server.PublishRate
	ws.PublishBurst = cfg.Server.PublishBurst
	ws.MaxMessageSize = cfg.Server.MaxMessageSize

	api := &httpConfig.Modules.ManagementAPI
	api.Enabled = true
	if !cfg.Server.APIToken.IsEmpty() {
		api.Auth = httpservice.AuthConfig{Type: "bearer", Secret: cfg.Server.APIToken.Value()}
	}
	return httpConfig
}
