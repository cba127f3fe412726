package testutils

import (
	"context"
	"sync"

	"relaybus-core/internal/core/dispose"
	"relaybus-core/internal/registry"
)

// Frame 一次下发
type Frame struct {
	Data     []byte
	Encoding registry.Encoding
}

// FakeConn 内存连接，关闭回调由 dispose.Dispose 管理
type FakeConn struct {
	id string
	d  *dispose.Dispose

	mu          sync.Mutex
	frames      []Frame
	transmitErr error
}

// NewFakeConn 创建内存连接
func NewFakeConn(id string) *FakeConn {
	d := dispose.NewDispose(context.Background(), nil)
	d.SetName("conn:" + id)
	return &FakeConn{id: id, d: d}
}

func (c *FakeConn) ID() string { return c.id }

func (c *FakeConn) IsClosed() bool { return c.d.IsClosed() }

func (c *FakeConn) OnClose(fn func() error) bool { return c.d.AddCleanHandler(fn) }

// Transmit 记录下发内容
func (c *FakeConn) Transmit(message []byte, enc registry.Encoding) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transmitErr != nil {
		return c.transmitErr
	}
	c.frames = append(c.frames, Frame{Data: append([]byte(nil), message...), Encoding: enc})
	return nil
}

// FailTransmit 之后的 Transmit 返回 err
func (c *FakeConn) FailTransmit(err error) {
	c.mu.Lock()
	c.transmitErr = err
	c.mu.Unlock()
}

// Close 关闭连接并同步执行关闭回调
func (c *FakeConn) Close() error {
	return c.d.CloseWithError()
}

// Frames 已下发内容的副本
func (c *FakeConn) Frames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.frames...)
}

// Messages 已下发内容的字符串形式
func (c *FakeConn) Messages() []string {
	frames := c.Frames()
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = string(f.Data)
	}
	return out
}
