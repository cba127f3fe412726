package broker

import (
	"context"
	"sync"

	"relaybus-core/internal/core/dispose"
	coreerrors "relaybus-core/internal/core/errors"
	corelog "relaybus-core/internal/core/log"
	"relaybus-core/internal/core/safe"
	"relaybus-core/internal/engine"
	"relaybus-core/internal/match"
)

// DefaultInboxSize 内存引擎收件箱容量
const DefaultInboxSize = 1024

// MemoryHub 进程内的消息交换点
// 多个总线各自挂一个 MemoryEngine，发布会送达其他订阅了该频道的引擎
type MemoryHub struct {
	mu      sync.RWMutex
	members []*MemoryEngine
}

// NewMemoryHub 创建交换点
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{}
}

// Attach 创建挂在交换点上的引擎，d 接收其他节点发来的消息
func (h *MemoryHub) Attach(parentCtx context.Context, nodeID string, d engine.Deliverer, logger corelog.Logger) *MemoryEngine {
	e := &MemoryEngine{
		ServiceBase: dispose.NewService("MemoryEngine", parentCtx),
		hub:         h,
		nodeID:      nodeID,
		deliverer:   d,
		interests:   newInterestSet(),
		inbox:       make(chan *Envelope, DefaultInboxSize),
		logger:      corelog.Component(logger, "memory-engine").WithField(corelog.FieldNode, nodeID),
	}
	e.AddCleanHandler(func() error {
		h.detach(e)
		return nil
	})

	h.mu.Lock()
	h.members = append(h.members, e)
	h.mu.Unlock()

	safe.GoWithContext(e.Ctx(), "memory-engine:"+nodeID, e.receiveLoop)
	e.logger.Info("memory engine attached")
	return e
}

func (h *MemoryHub) detach(e *MemoryEngine) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, m := range h.members {
		if m == e {
			h.members = append(h.members[:i:i], h.members[i+1:]...)
			return
		}
	}
}

// Len 挂载的引擎数
func (h *MemoryHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

func (h *MemoryHub) broadcast(from *MemoryEngine, env *Envelope) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for _, m := range h.members {
		if m == from || !m.interests.matches(env.Channel) {
			continue
		}
		if m.offer(env) {
			sent++
		}
	}
	return sent
}

// MemoryEngine 进程内引擎
type MemoryEngine struct {
	*dispose.ServiceBase

	hub       *MemoryHub
	nodeID    string
	deliverer engine.Deliverer
	interests *interestSet
	inbox     chan *Envelope
	logger    corelog.Logger
}

// Name 实现 engine.Named
func (e *MemoryEngine) Name() string {
	return "memory:" + e.nodeID
}

// NodeID 节点 ID
func (e *MemoryEngine) NodeID() string {
	return e.nodeID
}

// Subscribe 记录订阅意图
func (e *MemoryEngine) Subscribe(channel string, mode match.Mode) bool {
	if e.IsClosed() {
		return false
	}
	if _, _, err := e.interests.add(channel, mode); err != nil {
		e.logger.WithField(corelog.FieldChannel, channel).WithError(err).Warn("subscribe rejected")
		return false
	}
	return true
}

// Unsubscribe 释放一次订阅意图
func (e *MemoryEngine) Unsubscribe(channel string, mode match.Mode) bool {
	if e.IsClosed() {
		return false
	}
	_, _, ok := e.interests.remove(channel, mode)
	return ok
}

// ResetState 实现 engine.Resetter，丢弃已记录的订阅意图，由随后的重放重建
func (e *MemoryEngine) ResetState() {
	e.interests.reset()
}

// Publish 发给交换点上其他订阅了该频道的引擎
func (e *MemoryEngine) Publish(channel string, message []byte) {
	if e.IsClosed() {
		return
	}
	env := NewEnvelope(e.nodeID, channel, append([]byte(nil), message...))
	n := e.hub.broadcast(e, env)
	e.logger.WithField(corelog.FieldChannel, channel).Debugf("published to %d peers", n)
}

// Ping 内存引擎未关闭即健康
func (e *MemoryEngine) Ping(ctx context.Context) error {
	if e.IsClosed() {
		return coreerrors.ErrServiceClosed
	}
	return nil
}

// Close 从交换点摘除并停止接收
func (e *MemoryEngine) Close() error {
	return e.CloseWithError()
}

func (e *MemoryEngine) offer(env *Envelope) bool {
	select {
	case e.inbox <- env:
		return true
	default:
		e.logger.WithField(corelog.FieldChannel, env.Channel).Warn("inbox full, dropping message")
		return false
	}
}

func (e *MemoryEngine) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-e.inbox:
			e.deliverer.PublishLocal(env.Channel, env.Payload)
		}
	}
}
