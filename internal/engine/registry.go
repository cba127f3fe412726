package engine

import (
	"context"
	"sync"
	"sync/atomic"

	coreerrors "relaybus-core/internal/core/errors"
	corelog "relaybus-core/internal/core/log"
	"relaybus-core/internal/core/metrics"
	"relaybus-core/internal/core/safe"
	"relaybus-core/internal/match"
)

// DefaultQueueSize 每个引擎的默认队列长度
const DefaultQueueSize = 4096

// Options 注册表配置
type Options struct {
	QueueSize int
	Logger    corelog.Logger
	Metrics   metrics.Metrics
}

// Registry 引擎注册表
//
// 每个引擎有独立的串行队列：对调用方是 fire-and-forget，
// 对单个引擎保持 FIFO，慢引擎不会拖慢其他引擎。
// 订阅意图与重放从不丢弃，队列满时进入该引擎的积压；发布在队列满时丢弃并计为失败。
// 注册表自身不感知订阅，重放内容由调用方在同一把锁内提供。
type Registry struct {
	mu      sync.RWMutex
	entries []*entry
	def     *entry

	queueSize int
	logger    corelog.Logger
	metrics   metrics.Metrics
	failures  atomic.Int64
}

// NewRegistry 创建引擎注册表
func NewRegistry(opts Options) *Registry {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewMemoryMetrics()
	}
	return &Registry{
		queueSize: opts.QueueSize,
		logger:    corelog.Component(opts.Logger, "engine-registry"),
		metrics:   opts.Metrics,
	}
}

func (r *Registry) findLocked(e Engine) (int, *entry) {
	for i, ent := range r.entries {
		if ent.engine == e {
			return i, ent
		}
	}
	return -1, nil
}

// Register 注册引擎并把 replay 逐条以 Subscribe 重放给它
// 返回的 channel 在重放完成后关闭；已注册时 added 为 false
// 注册表为空且没有默认引擎时，新引擎成为默认引擎
func (r *Registry) Register(e Engine, replay []Interest) (done <-chan struct{}, added bool) {
	if e == nil {
		return closedChan(), false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ent := r.findLocked(e); ent != nil {
		return closedChan(), false
	}
	ent := newEntry(e, r.queueSize)
	r.insertLocked(ent)
	return r.scheduleReplay(ent, replay, false), true
}

// Reset 等同于 Deregister 之后立即 Register，未注册的引擎直接注册
// 复用原有队列，之前排队的调用先于重放执行；默认引擎身份保留
// 引擎实现 Resetter 时，重放前先清空它已同步的订阅状态
func (r *Registry) Reset(e Engine, replay []Interest) <-chan struct{} {
	if e == nil {
		return closedChan()
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	wasDefault := r.def != nil && r.def.engine == e
	ent := r.removeLocked(e)
	if ent == nil {
		ent = newEntry(e, r.queueSize)
	}
	r.insertLocked(ent)
	if wasDefault {
		r.def = ent
	}
	r.logger.WithField(corelog.FieldEngine, ent.name).Infof("resetting engine, replaying %d subscriptions", len(replay))
	return r.scheduleReplay(ent, replay, true)
}

func (r *Registry) insertLocked(ent *entry) {
	if len(r.entries) == 0 && r.def == nil {
		r.def = ent
	}
	r.entries = append(r.entries, ent)
	r.metrics.SetGauge(metrics.EnginesRegistered, float64(len(r.entries)), nil)
}

// scheduleReplay 把重放排到引擎队列上，不阻塞；返回的 channel 在重放执行或被丢弃后关闭
func (r *Registry) scheduleReplay(ent *entry, replay []Interest, reset bool) <-chan struct{} {
	done := make(chan struct{})
	interests := append([]Interest(nil), replay...)
	accepted, deferred := ent.submit(task{
		run: func() {
			defer close(done)
			if reset {
				r.resetState(ent)
			}
			r.replay(ent, interests)
		},
		discard: func() { close(done) },
	})
	if !accepted {
		r.fail(ent.name, "replay", "", coreerrors.ErrServiceClosed)
	} else if deferred {
		r.deferred(ent, "replay", "")
	}
	return done
}

func (r *Registry) resetState(ent *entry) {
	rs, ok := ent.engine.(Resetter)
	if !ok {
		return
	}
	if safe.Recover("engine:"+ent.name, rs.ResetState) {
		r.fail(ent.name, "reset", "", coreerrors.Newf(coreerrors.CodeEngineFailure, "reset panicked"))
	}
}

func (r *Registry) replay(ent *entry, interests []Interest) {
	log := r.logger.WithField(corelog.FieldEngine, ent.name)
	ok := 0
	for _, in := range interests {
		if r.call(ent, "subscribe", in.Channel, func() bool {
			return ent.engine.Subscribe(in.Channel, in.Mode)
		}) {
			ok++
		}
	}
	r.metrics.AddCounter(metrics.EngineReplayedTotal, int64(ok), map[string]string{"engine": ent.name})
	log.Debugf("replayed %d/%d subscriptions", ok, len(interests))
}

// Deregister 移除引擎；若为默认引擎则默认引擎置空
// 已排队的调用执行完后该引擎的队列停止
func (r *Registry) Deregister(e Engine) bool {
	if e == nil {
		return false
	}
	r.mu.Lock()
	ent := r.removeLocked(e)
	r.mu.Unlock()

	if ent == nil {
		return false
	}
	ent.stop()
	r.logger.WithField(corelog.FieldEngine, ent.name).Info("engine deregistered")
	return true
}

func (r *Registry) removeLocked(e Engine) *entry {
	i, ent := r.findLocked(e)
	if ent == nil {
		return nil
	}
	r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
	if r.def == ent {
		r.def = nil
	}
	r.metrics.SetGauge(metrics.EnginesRegistered, float64(len(r.entries)), nil)
	return ent
}

// SetDefault 设置默认引擎，nil 表示取消默认
func (r *Registry) SetDefault(e Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e == nil {
		r.def = nil
		return nil
	}
	_, ent := r.findLocked(e)
	if ent == nil {
		return coreerrors.ErrEngineNotRegistered.WithDetail("engine", NameOf(e))
	}
	r.def = ent
	return nil
}

// Default 默认引擎，未设置时返回 nil
func (r *Registry) Default() Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.def == nil {
		return nil
	}
	return r.def.engine
}

// Engines 按注册顺序返回全部引擎
func (r *Registry) Engines() []Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Engine, len(r.entries))
	for i, ent := range r.entries {
		out[i] = ent.engine
	}
	return out
}

// Len 已注册引擎数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Failures 累计引擎调用失败次数
func (r *Registry) Failures() int64 {
	return r.failures.Load()
}

// NotifySubscribe 把订阅意图投递到每个引擎，返回已接收该意图的引擎数
// 意图从不丢弃：队列满时进入积压；单个引擎返回 false 或 panic 只记录失败，不影响其他引擎
func (r *Registry) NotifySubscribe(channel string, mode match.Mode) int {
	return r.fanOut("subscribe", channel, func(e Engine) bool {
		return e.Subscribe(channel, mode)
	})
}

// NotifyUnsubscribe 把退订意图投递到每个引擎，返回已接收该意图的引擎数
func (r *Registry) NotifyUnsubscribe(channel string, mode match.Mode) int {
	return r.fanOut("unsubscribe", channel, func(e Engine) bool {
		return e.Unsubscribe(channel, mode)
	})
}

func (r *Registry) fanOut(op, channel string, fn func(Engine) bool) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	scheduled := 0
	for _, ent := range r.entries {
		accepted, deferred := ent.submit(task{run: func() {
			r.call(ent, op, channel, func() bool { return fn(ent.engine) })
		}})
		if !accepted {
			r.fail(ent.name, op, channel, coreerrors.ErrServiceClosed)
			continue
		}
		if deferred {
			r.deferred(ent, op, channel)
		}
		scheduled++
	}
	return scheduled
}

func (r *Registry) deferred(ent *entry, op, channel string) {
	r.metrics.IncrementCounter(metrics.EngineDeferredTotal, map[string]string{"engine": ent.name, "op": op})
	r.logger.WithFields(map[string]interface{}{
		corelog.FieldEngine:  ent.name,
		corelog.FieldChannel: channel,
		"op":                 op,
	}).Debug("engine queue full, call deferred")
}

// Pending 某引擎积压中尚未进入队列的调用数，未注册时为 0
func (r *Registry) Pending(e Engine) int {
	r.mu.RLock()
	_, ent := r.findLocked(e)
	r.mu.RUnlock()
	if ent == nil {
		return 0
	}
	return ent.pending()
}

// Forward 按路由把发布交给引擎，不等待引擎执行
// 默认路由且没有默认引擎时返回 ErrEngineUnavailable
// 显式指定但未注册的引擎在独立 goroutine 中调用
func (r *Registry) Forward(route Route, channel string, message []byte) error {
	if route.IsLocal() {
		return nil
	}

	r.mu.RLock()
	var ent *entry
	if route.IsDefault() {
		ent = r.def
	} else {
		_, ent = r.findLocked(route.Engine())
	}
	if ent != nil {
		ok := ent.submitLossy(func() {
			r.call(ent, "publish", channel, func() bool {
				ent.engine.Publish(channel, message)
				return true
			})
		})
		r.mu.RUnlock()
		if !ok {
			r.fail(ent.name, "publish", channel, coreerrors.ErrQueueFull)
			return coreerrors.ErrQueueFull
		}
		return nil
	}
	r.mu.RUnlock()

	if route.IsDefault() {
		return coreerrors.ErrEngineUnavailable
	}

	detached := &entry{engine: route.Engine(), name: NameOf(route.Engine())}
	safe.Go("engine-publish:"+detached.name, func() {
		r.call(detached, "publish", channel, func() bool {
			detached.engine.Publish(channel, message)
			return true
		})
	})
	return nil
}

// call 执行单次引擎调用，false 或 panic 计为失败
func (r *Registry) call(ent *entry, op, channel string, fn func() bool) bool {
	ok := false
	if safe.Recover("engine:"+ent.name, func() { ok = fn() }) {
		r.fail(ent.name, op, channel, coreerrors.Newf(coreerrors.CodeEngineFailure, "%s panicked", op))
		return false
	}
	if !ok {
		r.fail(ent.name, op, channel, coreerrors.ErrEngineFailure)
	}
	return ok
}

func (r *Registry) fail(name, op, channel string, err error) {
	r.failures.Add(1)
	r.metrics.IncrementCounter(metrics.EngineFailuresTotal, map[string]string{"engine": name, "op": op})
	r.logger.WithFields(map[string]interface{}{
		corelog.FieldEngine:  name,
		corelog.FieldChannel: channel,
		"op":                 op,
	}).WithError(err).Warn("engine call failed")
}

// Flush 等待所有引擎已提交的调用（含积压）执行完
func (r *Registry) Flush(ctx context.Context) error {
	r.mu.RLock()
	entries := append([]*entry(nil), r.entries...)
	r.mu.RUnlock()

	for _, ent := range entries {
		if err := ent.flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close 移除全部引擎并等待各自队列排空
// ctx 结束时丢弃尚未入队的积压
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	entries := r.entries
	r.entries = nil
	r.def = nil
	r.metrics.SetGauge(metrics.EnginesRegistered, 0, nil)
	r.mu.Unlock()

	for _, ent := range entries {
		ent.stop()
	}
	for _, ent := range entries {
		select {
		case <-ent.queue.Done():
		case <-ctx.Done():
			for _, ent := range entries {
				ent.abort()
			}
			return ctx.Err()
		}
	}
	return nil
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
