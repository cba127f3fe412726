package pubsub

import (
	coreerrors "relaybus-core/internal/core/errors"
	corelog "relaybus-core/internal/core/log"
	"relaybus-core/internal/core/metrics"
	"relaybus-core/internal/core/safe"
	"relaybus-core/internal/engine"
)

// Publish 经默认引擎发布并投递给本地订阅者
// 没有默认引擎时返回 false，且不做本地投递
func (b *Bus) Publish(channel string, message []byte) bool {
	return b.PublishTo(channel, message, engine.DefaultRoute())
}

// PublishTo 按路由发布
//
//	engine.DefaultRoute()  默认引擎
//	engine.Via(e)          只发往 e
//	engine.LocalOnly()     不转发
//
// 引擎转发只是入队，不等待完成；本地投递随后立即进行
func (b *Bus) PublishTo(channel string, message []byte, route engine.Route) bool {
	_, ok := b.Dispatch(channel, message, route)
	return ok
}

// Dispatch 与 PublishTo 相同，同时返回本地命中的订阅数
// ok 为 false 时消息既未转发也未投递
func (b *Bus) Dispatch(channel string, message []byte, route engine.Route) (matched int, ok bool) {
	if b.closed.Load() || channel == "" {
		b.metrics.IncrementCounter(metrics.PublishRejectedTotal, nil)
		return 0, false
	}

	if err := b.engines.Forward(route, channel, message); err != nil {
		if coreerrors.IsCode(err, coreerrors.CodeEngineUnavailable) {
			b.metrics.IncrementCounter(metrics.PublishRejectedTotal, nil)
			b.logger.WithField(corelog.FieldChannel, channel).WithError(err).Debug("publish rejected")
			return 0, false
		}
		// 引擎队列已满：已计入引擎失败，本地投递照常进行
	}

	b.metrics.IncrementCounter(metrics.PublishTotal, nil)
	return b.deliver(channel, message), true
}

// PublishLocal 只投递给本地订阅者，返回命中的订阅数
// 引擎收到外部消息时调用，从不转发给任何引擎；客户端发起的本地发布使用 Dispatch(..., engine.LocalOnly())
func (b *Bus) PublishLocal(channel string, message []byte) int {
	if b.closed.Load() {
		return 0
	}
	b.metrics.IncrementCounter(metrics.InboundTotal, nil)
	return b.deliver(channel, message)
}

// deliver 全局订阅在当前 goroutine 内回调；
// 连接订阅经该连接的串行队列投递，保证单连接内的顺序且不被慢连接阻塞
func (b *Bus) deliver(channel string, message []byte) int {
	matched := 0
	for sub := range b.subs.Match(channel) {
		matched++
		if sub.IsGlobal() {
			b.invoke(sub, channel, message)
			continue
		}

		bnd := b.bindingFor(sub.Owner)
		if bnd == nil || !bnd.queue.Submit(func() { b.invoke(sub, channel, message) }) {
			b.metrics.IncrementCounter(metrics.DeliveriesDroppedTotal, nil)
			b.logger.WithFields(map[string]interface{}{
				corelog.FieldConn:    sub.Owner,
				corelog.FieldChannel: channel,
			}).Warn("delivery dropped")
		}
	}
	return matched
}

func (b *Bus) invoke(sub *Subscription, channel string, message []byte) {
	if sub.Handler != nil {
		if safe.Recover("pubsub-handler", func() { sub.Handler(channel, message) }) {
			b.metrics.IncrementCounter(metrics.DeliveriesDroppedTotal, nil)
			return
		}
		b.metrics.IncrementCounter(metrics.DeliveriesTotal, nil)
		return
	}

	if err := sub.Conn.Transmit(message, sub.As); err != nil {
		b.metrics.IncrementCounter(metrics.DeliveriesDroppedTotal, nil)
		b.logger.WithFields(map[string]interface{}{
			corelog.FieldConn:    sub.Owner,
			corelog.FieldChannel: channel,
		}).WithError(err).Debug("transmit failed")
		return
	}
	b.metrics.IncrementCounter(metrics.DeliveriesTotal, nil)
}
