// Package dispose 提供资源生命周期管理：上下文取消与按序执行的清理回调
package dispose

import (
	"context"
	"fmt"
	"sync"

	corelog "relaybus-core/internal/core/log"
)

// DisposeError 清理过程中的错误信息
type DisposeError struct {
	HandlerIndex int
	ResourceName string
	Err          error
}

func (e *DisposeError) Error() string {
	if e.ResourceName != "" {
		return fmt.Sprintf("cleanup resource[%s] handler[%d] failed: %v", e.ResourceName, e.HandlerIndex, e.Err)
	}
	return fmt.Sprintf("cleanup handler[%d] failed: %v", e.HandlerIndex, e.Err)
}

func (e *DisposeError) Unwrap() error {
	return e.Err
}

// DisposeResult 清理结果
type DisposeResult struct {
	Errors         []*DisposeError
	ActualDisposal bool // 本次调用是否实际执行了释放
}

func (r *DisposeResult) HasErrors() bool {
	return len(r.Errors) > 0
}

func (r *DisposeResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	return fmt.Sprintf("dispose cleanup failed with %d errors", len(r.Errors))
}

// Disposable 统一的资源释放接口
type Disposable interface {
	Dispose() error
}

// Dispose 资源管理结构体
// 清理回调按注册顺序执行，且只执行一次；关闭后注册的回调被拒绝
type Dispose struct {
	mu            sync.Mutex
	name          string
	closed        bool
	ctx           context.Context
	cancel        context.CancelFunc
	cleanHandlers []func() error
	errors        []*DisposeError
	closedCh      chan struct{}
}

// NewDispose 创建绑定到 parent 的 Dispose
func NewDispose(parent context.Context, onClose func() error) *Dispose {
	d := &Dispose{}
	d.SetCtx(parent, onClose)
	return d
}

// SetCtx 设置上下文，parent 取消时自动执行清理
func (c *Dispose) SetCtx(parent context.Context, onClose func() error) {
	c.mu.Lock()
	if c.ctx != nil {
		c.mu.Unlock()
		corelog.Warnf("dispose[%s]: ctx already set", c.name)
		return
	}
	if parent == nil {
		parent = context.Background()
	}
	c.ctx, c.cancel = context.WithCancel(parent)
	c.closedCh = make(chan struct{})
	if onClose != nil {
		c.cleanHandlers = append(c.cleanHandlers, onClose)
	}
	ctx, closedCh := c.ctx, c.closedCh
	c.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-closedCh:
		}
	}()
}

// SetName 设置资源名称（用于日志）
func (c *Dispose) SetName(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

func (c *Dispose) Ctx() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *Dispose) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// AddCleanHandler 添加清理回调，已关闭时返回 false 且不会执行 f
func (c *Dispose) AddCleanHandler(f func() error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.cleanHandlers = append(c.cleanHandlers, f)
	return true
}

// Close 关闭并执行清理回调，重复调用返回首次的错误
func (c *Dispose) Close() *DisposeResult {
	c.mu.Lock()
	if c.closed {
		errs := c.errors
		c.mu.Unlock()
		return &DisposeResult{Errors: errs}
	}
	c.closed = true
	handlers := c.cleanHandlers
	c.cleanHandlers = nil
	name := c.name
	if c.cancel != nil {
		c.cancel()
	}
	if c.closedCh != nil {
		close(c.closedCh)
	}
	c.mu.Unlock()

	result := &DisposeResult{ActualDisposal: true}
	for i, handler := range handlers {
		if err := handler(); err != nil {
			result.Errors = append(result.Errors, &DisposeError{HandlerIndex: i, ResourceName: name, Err: err})
			corelog.Errorf("dispose[%s]: cleanup handler[%d] failed: %v", name, i, err)
		}
	}

	c.mu.Lock()
	c.errors = result.Errors
	c.mu.Unlock()
	return result
}

// CloseWithError 关闭并返回第一个清理错误
func (c *Dispose) CloseWithError() error {
	result := c.Close()
	if result.HasErrors() {
		return result.Errors[0].Err
	}
	return nil
}

// ServiceBase 带名称的服务基类
type ServiceBase struct {
	Dispose
}

// NewService 创建服务基类
func NewService(name string, parentCtx context.Context) *ServiceBase {
	s := &ServiceBase{}
	s.SetName(name)
	s.SetCtx(parentCtx, func() error {
		corelog.Debugf("%s resources cleaned up", name)
		return nil
	})
	return s
}

// Name 服务名称
func (s *ServiceBase) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}
