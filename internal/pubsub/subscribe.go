package pubsub

import (
	"fmt"

	coreerrors "relaybus-core/internal/core/errors"
	corelog "relaybus-core/internal/core/log"
	"relaybus-core/internal/core/metrics"
	"relaybus-core/internal/core/safe"
	"relaybus-core/internal/registry"
)

// Subscribe 为连接订阅频道或模式；conn 为 nil 时等同 SubscribeGlobal
// 同一连接对同一频道再次订阅会替换旧订阅：先通知引擎退订旧的，再订阅新的
// 连接已关闭时返回 (nil, ErrAlreadyClosed)，不改变任何状态
func (b *Bus) Subscribe(conn Conn, channel string, opts SubscribeOptions) (*Subscription, error) {
	if conn == nil {
		return b.SubscribeGlobal(channel, opts)
	}
	if conn.IsClosed() {
		return nil, coreerrors.ErrAlreadyClosed
	}
	sub, err := b.newSubscription(conn, channel, opts)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.bindLocked(conn); err != nil {
		return nil, err
	}
	b.putLocked(sub)
	return sub, nil
}

// SubscribeGlobal 订阅不属于任何连接的全局订阅，必须提供 Handler
// 全局订阅不会被自动清理
func (b *Bus) SubscribeGlobal(channel string, opts SubscribeOptions) (*Subscription, error) {
	if opts.Handler == nil {
		return nil, coreerrors.ErrMissingHandler
	}
	sub, err := b.newSubscription(nil, channel, opts)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.putLocked(sub)
	return sub, nil
}

// Unsubscribe 取消连接对频道的订阅；conn 为 nil 时等同 UnsubscribeGlobal
func (b *Bus) Unsubscribe(conn Conn, channel string) bool {
	if conn == nil {
		return b.UnsubscribeGlobal(channel)
	}
	return b.remove(conn.ID(), channel)
}

// UnsubscribeGlobal 取消全局订阅
func (b *Bus) UnsubscribeGlobal(channel string) bool {
	return b.remove("", channel)
}

// Subscriptions 当前全部订阅
func (b *Bus) Subscriptions() []*Subscription {
	return b.subs.Snapshot()
}

func (b *Bus) newSubscription(conn Conn, channel string, opts SubscribeOptions) (*Subscription, error) {
	if b.closed.Load() {
		return nil, coreerrors.ErrServiceClosed
	}
	if channel == "" {
		return nil, coreerrors.ErrInvalidChannel
	}
	if !opts.As.Valid() {
		return nil, coreerrors.Newf(coreerrors.CodeInvalidParam, "unsupported encoding %q", opts.As)
	}
	pattern, err := b.patterns.Compile(channel, opts.Match)
	if err != nil {
		return nil, err
	}
	return registry.NewSubscription(conn, pattern, opts.Handler, opts.As), nil
}

func (b *Bus) putLocked(sub *Subscription) {
	old, replaced := b.subs.Put(sub)
	if replaced {
		b.engines.NotifyUnsubscribe(old.Channel, old.Mode)
		b.metrics.IncrementCounter(metrics.SubscriptionsReplaced, nil)
	}
	synced := b.engines.NotifySubscribe(sub.Channel, sub.Mode)
	b.metrics.SetGauge(metrics.SubscriptionsActive, float64(b.subs.Len()), nil)

	b.logger.WithFields(map[string]interface{}{
		corelog.FieldConn:    sub.Owner,
		corelog.FieldChannel: sub.Channel,
		corelog.FieldMode:    sub.Mode.String(),
	}).Debugf("subscribed (replaced=%v, engines=%d/%d)", replaced, synced, b.engines.Len())
}

func (b *Bus) remove(owner, channel string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs.Remove(owner, channel)
	if !ok {
		return false
	}
	synced := b.engines.NotifyUnsubscribe(sub.Channel, sub.Mode)
	b.metrics.SetGauge(metrics.SubscriptionsActive, float64(b.subs.Len()), nil)
	b.logger.WithFields(map[string]interface{}{
		corelog.FieldConn:    owner,
		corelog.FieldChannel: channel,
	}).Debugf("unsubscribed (engines=%d/%d)", synced, b.engines.Len())
	return true
}

// ============================================================================
// 连接绑定
// ============================================================================

// bindLocked 首次订阅时为连接注册关闭回调并创建投递队列
func (b *Bus) bindLocked(conn Conn) error {
	id := conn.ID()
	b.bindMu.RLock()
	_, ok := b.bindings[id]
	b.bindMu.RUnlock()
	if ok {
		return nil
	}

	bnd := &binding{
		id:    id,
		queue: safe.NewQueue(fmt.Sprintf("conn:%s", id), b.connQueueSize),
	}
	if !conn.OnClose(func() error { return b.release(bnd) }) {
		bnd.queue.Close()
		return coreerrors.ErrAlreadyClosed
	}

	b.bindMu.Lock()
	b.bindings[id] = bnd
	n := len(b.bindings)
	b.bindMu.Unlock()
	b.metrics.SetGauge(metrics.ConnectionsActive, float64(n), nil)
	return nil
}

// release 连接关闭时执行：删除其全部订阅、通知引擎退订、停止投递队列
// 引擎通知是尽力而为，本地删除总会发生
func (b *Bus) release(bnd *binding) error {
	b.mu.Lock()
	removed := b.subs.RemoveAllForOwner(bnd.id)
	for _, sub := range removed {
		b.engines.NotifyUnsubscribe(sub.Channel, sub.Mode)
	}
	b.bindMu.Lock()
	if b.bindings[bnd.id] == bnd {
		delete(b.bindings, bnd.id)
	}
	n := len(b.bindings)
	b.bindMu.Unlock()
	b.mu.Unlock()

	bnd.queue.Close()

	b.metrics.SetGauge(metrics.ConnectionsActive, float64(n), nil)
	b.metrics.SetGauge(metrics.SubscriptionsActive, float64(b.subs.Len()), nil)
	b.metrics.IncrementCounter(metrics.ConnectionCleanupsTotal, nil)
	b.logger.WithField(corelog.FieldConn, bnd.id).Debugf("connection closed, removed %d subscriptions", len(removed))
	return nil
}

func (b *Bus) bindingFor(id string) *binding {
	b.bindMu.RLock()
	defer b.bindMu.RUnlock()
	return b.bindings[id]
}
