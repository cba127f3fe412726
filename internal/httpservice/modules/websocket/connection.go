package websocket

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"relaybus-core/internal/core/dispose"
	coreerrors "relaybus-core/internal/core/errors"
	"relaybus-core/internal/registry"
)

const writeWait = 10 * time.Second

var _ registry.Conn = (*WebSocketServerConn)(nil)

// WebSocketServerConn 包装 WebSocket 连接，作为总线的订阅连接
//
// 关闭回调由 dispose.Dispose 管理：总线在首次订阅时登记清理回调，
// 连接关闭时执行，订阅随之删除。
type WebSocketServerConn struct {
	id         string
	conn       *websocket.Conn
	remoteAddr string
	limiter    *rate.Limiter

	writeMu   sync.Mutex
	closeOnce sync.Once
	d         *dispose.Dispose
}

func newServerConn(ctx context.Context, conn *websocket.Conn, remoteAddr string, limiter *rate.Limiter) *WebSocketServerConn {
	c := &WebSocketServerConn{
		id:         uuid.New().String(),
		conn:       conn,
		remoteAddr: remoteAddr,
		limiter:    limiter,
	}
	c.d = dispose.NewDispose(ctx, nil)
	c.d.SetName("ws:" + c.id)
	return c
}

// ID 连接ID
func (c *WebSocketServerConn) ID() string { return c.id }

// IsClosed 是否已关闭
func (c *WebSocketServerConn) IsClosed() bool { return c.d.IsClosed() }

// OnClose 登记关闭回调，已关闭时返回 false
func (c *WebSocketServerConn) OnClose(fn func() error) bool { return c.d.AddCleanHandler(fn) }

// RemoteAddr 对端地址
func (c *WebSocketServerConn) RemoteAddr() net.Addr {
	return &wsAddr{addr: c.remoteAddr}
}

// Transmit 按编码下发一帧：text 为文本帧，binary 为二进制帧
func (c *WebSocketServerConn) Transmit(message []byte, enc registry.Encoding) error {
	messageType := websocket.TextMessage
	if enc.Normalize() == registry.EncodingBinary {
		messageType = websocket.BinaryMessage
	}
	return c.write(messageType, message)
}

// WriteJSON 下发一条 JSON 文本帧
func (c *WebSocketServerConn) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeInvalidData, "encode reply")
	}
	return c.write(websocket.TextMessage, data)
}

func (c *WebSocketServerConn) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.d.IsClosed() {
		return coreerrors.ErrAlreadyClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeNetworkError, "websocket write")
	}
	return nil
}

// allowPublish 发布限流，未配置时总是允许
func (c *WebSocketServerConn) allowPublish() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// Close 执行关闭回调并断开底层连接
func (c *WebSocketServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.d.CloseWithError()

		c.writeMu.Lock()
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
		c.writeMu.Unlock()

		if cerr := c.conn.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

// wsAddr 实现 net.Addr
type wsAddr struct {
	addr string
}

func (a *wsAddr) Network() string {
	return "websocket"
}

func (a *wsAddr) String() string {
	return a.addr
}
