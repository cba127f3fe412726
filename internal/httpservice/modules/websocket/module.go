// Package websocket 提供 WebSocket 传输模块
// 客户端通过 JSON 命令订阅、退订与发布，消息按订阅的编码以原始帧下发
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"relaybus-core/internal/core/dispose"
	coreerrors "relaybus-core/internal/core/errors"
	corelog "relaybus-core/internal/core/log"
	"relaybus-core/internal/core/metrics"
	"relaybus-core/internal/engine"
	"relaybus-core/internal/httpservice"
	"relaybus-core/internal/match"
	"relaybus-core/internal/pubsub"
	"relaybus-core/internal/registry"
)

const bufferSize = 4096

// WebSocketModule WebSocket 传输模块
type WebSocketModule struct {
	*dispose.ServiceBase

	config   *httpservice.WebSocketModuleConfig
	deps     *httpservice.ModuleDependencies
	bus      *pubsub.Bus
	logger   corelog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*WebSocketServerConn
}

// NewWebSocketModule 创建 WebSocket 模块
func NewWebSocketModule(ctx context.Context, config *httpservice.WebSocketModuleConfig) *WebSocketModule {
	if config == nil {
		config = &httpservice.DefaultHTTPServiceConfig().Modules.WebSocket
	}
	m := &WebSocketModule{
		ServiceBase: dispose.NewService("WebSocketModule", ctx),
		config:      config,
		logger:      corelog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  bufferSize,
			WriteBufferSize: bufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		conns: make(map[string]*WebSocketServerConn),
	}
	m.AddCleanHandler(m.closeAll)
	return m
}

// Name 返回模块名称
func (m *WebSocketModule) Name() string {
	return "WebSocket"
}

// SetDependencies 注入依赖
func (m *WebSocketModule) SetDependencies(deps *httpservice.ModuleDependencies) {
	m.deps = deps
	m.bus = deps.Bus
	m.logger = corelog.Component(deps.Logger, "websocket")
}

// RegisterRoutes 注册路由
func (m *WebSocketModule) RegisterRoutes(router *mux.Router) {
	if !m.config.Enabled {
		m.logger.Info("WebSocketModule: disabled, skipping route registration")
		return
	}
	path := m.config.Path
	if path == "" {
		path = "/ws"
	}
	router.HandleFunc(path, m.handleWebSocket).Methods(http.MethodGet)
	m.logger.Infof("WebSocketModule: registered route %s", path)
}

// Start 启动模块
func (m *WebSocketModule) Start() error {
	if m.config.Enabled && m.bus == nil {
		return coreerrors.New(coreerrors.CodeConfigError, "websocket module requires a bus")
	}
	return nil
}

// Stop 停止模块并断开所有连接
func (m *WebSocketModule) Stop() error {
	return m.CloseWithError()
}

// Len 当前连接数
func (m *WebSocketModule) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

func (m *WebSocketModule) closeAll() error {
	m.mu.Lock()
	conns := make([]*WebSocketServerConn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	m.logger.Infof("WebSocketModule: stopped, closed %d connections", len(conns))
	return nil
}

// handleWebSocket 处理 WebSocket 升级请求，并在当前 goroutine 内读取命令直到连接断开
func (m *WebSocketModule) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if m.IsClosed() {
		httpservice.RespondError(w, http.StatusServiceUnavailable, "websocket module stopped")
		return
	}

	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.WithError(err).Warnf("WebSocketModule: upgrade failed from %s", r.RemoteAddr)
		return
	}

	var limiter *rate.Limiter
	if m.config.PublishRate > 0 {
		burst := m.config.PublishBurst
		if burst <= 0 {
			burst = int(m.config.PublishRate) + 1
		}
		limiter = rate.NewLimiter(rate.Limit(m.config.PublishRate), burst)
	}

	conn := newServerConn(m.Ctx(), ws, r.RemoteAddr, limiter)
	log := m.logger.WithField(corelog.FieldConn, conn.ID())

	m.mu.Lock()
	m.conns[conn.ID()] = conn
	m.mu.Unlock()
	conn.OnClose(func() error {
		m.mu.Lock()
		delete(m.conns, conn.ID())
		m.mu.Unlock()
		return nil
	})

	log.Infof("WebSocketModule: connection established from %s", r.RemoteAddr)
	m.readLoop(conn, log)
}

func (m *WebSocketModule) readLoop(conn *WebSocketServerConn, log corelog.Logger) {
	defer func() {
		conn.Close()
		log.Debug("WebSocketModule: connection closed")
	}()

	if m.config.MaxMessageSize > 0 {
		conn.conn.SetReadLimit(m.config.MaxMessageSize)
	}

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !conn.IsClosed() {
				log.WithError(err).Warn("WebSocketModule: read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			m.reply(conn, log, errorFor(nil, coreerrors.New(coreerrors.CodeInvalidData, "commands must be sent as text frames")))
			continue
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			m.reply(conn, log, errorFor(nil, coreerrors.Wrap(err, coreerrors.CodeInvalidData, "malformed command")))
			continue
		}
		m.reply(conn, log, m.handleCommand(conn, &cmd))
	}
}

// handleCommand 执行一条命令并返回应答
func (m *WebSocketModule) handleCommand(conn *WebSocketServerConn, cmd *Command) *Reply {
	m.bus.Metrics().IncrementCounter(metrics.TransportCommandsTotal, map[string]string{"op": cmd.Op})

	switch cmd.Op {
	case OpSubscribe:
		sub, err := m.bus.Subscribe(conn, cmd.Channel, pubsub.SubscribeOptions{
			Match: match.Mode(cmd.Match),
			As:    registry.Encoding(cmd.As),
		})
		if err != nil {
			if !coreerrors.IsSubscribeRejected(err) {
				m.logger.WithError(err).Warnf("WebSocketModule: subscribe %s failed for %s", cmd.Channel, conn.ID())
			}
			return errorFor(cmd, err)
		}
		r := ackFor(cmd)
		r.SubscriptionID = sub.ID
		return r

	case OpUnsubscribe:
		removed := m.bus.Unsubscribe(conn, cmd.Channel)
		r := ackFor(cmd)
		r.Removed = &removed
		return r

	case OpPublish:
		if cmd.Channel == "" {
			return errorFor(cmd, coreerrors.ErrInvalidChannel)
		}
		if !conn.allowPublish() {
			m.bus.Metrics().IncrementCounter(metrics.TransportRateLimitedTotal, nil)
			return errorFor(cmd, coreerrors.ErrRateLimited)
		}
		if cmd.Local {
			n, ok := m.bus.Dispatch(cmd.Channel, []byte(cmd.Message), engine.LocalOnly())
			if !ok {
				return errorFor(cmd, coreerrors.ErrServiceClosed)
			}
			r := ackFor(cmd)
			r.Matched = &n
			return r
		}
		if !m.bus.Publish(cmd.Channel, []byte(cmd.Message)) {
			return errorFor(cmd, coreerrors.ErrEngineUnavailable)
		}
		return ackFor(cmd)

	default:
		return errorFor(cmd, coreerrors.Newf(coreerrors.CodeInvalidParam, "unknown op %q", cmd.Op))
	}
}

func (m *WebSocketModule) reply(conn *WebSocketServerConn, log corelog.Logger, r *Reply) {
	if err := conn.WriteJSON(r); err != nil {
		log.WithError(err).Debug("WebSocketModule: failed to write reply")
	}
}
