// Package pubsub 发布订阅总线
//
// Bus 把订阅注册表、引擎注册表和连接绑定组合在一起：
//   - Subscribe/Unsubscribe 修改注册表并把意图同步给所有引擎
//   - Publish 转发给路由选中的引擎，同时投递给本地订阅者
//   - PublishLocal 是引擎回推入口，只做本地投递，从不转发
//
// 一把变更锁串行化注册表修改、引擎通知入队与引擎注册重放，
// 因此任何引擎看到的都是某次变更之前或之后的完整视图。
// 该锁从不跨越引擎调用，引擎调用都在各自的串行队列上执行。
package pubsub

import (
	"context"
	"sync"
	"sync/atomic"

	coreerrors "relaybus-core/internal/core/errors"
	corelog "relaybus-core/internal/core/log"
	"relaybus-core/internal/core/metrics"
	"relaybus-core/internal/core/safe"
	"relaybus-core/internal/engine"
	"relaybus-core/internal/match"
	"relaybus-core/internal/registry"
)

type (
	Conn         = registry.Conn
	Encoding     = registry.Encoding
	Handler      = registry.Handler
	Subscription = registry.Subscription
)

const (
	EncodingText   = registry.EncodingText
	EncodingBinary = registry.EncodingBinary
)

// 默认配置
const (
	DefaultConnQueueSize    = 256
	DefaultPatternCacheSize = match.DefaultCacheSize
)

// Options 总线配置
type Options struct {
	EngineQueueSize  int
	ConnQueueSize    int
	PatternCacheSize int
	Logger           corelog.Logger
	Metrics          metrics.Metrics
}

// SubscribeOptions 订阅参数
// Handler 为空时按 As 编码把消息原样下发给所属连接
type SubscribeOptions struct {
	Match   match.Mode
	Handler Handler
	As      Encoding
}

// binding 连接绑定：一个关闭回调与一个串行投递队列
type binding struct {
	id    string
	queue *safe.Queue
}

// Bus 发布订阅总线
type Bus struct {
	mu sync.Mutex // 变更锁

	subs     *registry.Registry
	engines  *engine.Registry
	patterns *match.Cache

	bindMu   sync.RWMutex
	bindings map[string]*binding

	connQueueSize int
	logger        corelog.Logger
	metrics       metrics.Metrics
	closed        atomic.Bool
}

// New 创建总线
func New(opts Options) (*Bus, error) {
	if opts.ConnQueueSize <= 0 {
		opts.ConnQueueSize = DefaultConnQueueSize
	}
	if opts.PatternCacheSize <= 0 {
		opts.PatternCacheSize = DefaultPatternCacheSize
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewMemoryMetrics()
	}
	patterns, err := match.NewCache(opts.PatternCacheSize)
	if err != nil {
		return nil, err
	}

	return &Bus{
		subs: registry.New(),
		engines: engine.NewRegistry(engine.Options{
			QueueSize: opts.EngineQueueSize,
			Logger:    opts.Logger,
			Metrics:   opts.Metrics,
		}),
		patterns:      patterns,
		bindings:      make(map[string]*binding),
		connQueueSize: opts.ConnQueueSize,
		logger:        corelog.Component(opts.Logger, "pubsub"),
		metrics:       opts.Metrics,
	}, nil
}

// Deliverer 引擎使用的本地投递入口
func (b *Bus) Deliverer() engine.Deliverer {
	return b
}

// ============================================================================
// 引擎管理
// ============================================================================

func (b *Bus) interestsLocked() []engine.Interest {
	snap := b.subs.Snapshot()
	interests := make([]engine.Interest, len(snap))
	for i, sub := range snap {
		interests[i] = engine.Interest{Channel: sub.Channel, Mode: sub.Mode}
	}
	return interests
}

// Register 注册引擎，返回前已把全部活跃订阅重放给它
// 不能在引擎自身的回调中调用
func (b *Bus) Register(e engine.Engine) bool {
	b.mu.Lock()
	done, added := b.engines.Register(e, b.interestsLocked())
	b.mu.Unlock()

	<-done
	if added {
		b.logger.WithField(corelog.FieldEngine, engine.NameOf(e)).Info("engine registered")
	}
	return added
}

// Deregister 移除引擎，不影响本地订阅
func (b *Bus) Deregister(e engine.Engine) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.engines.Deregister(e)
}

// Reset 重新注册引擎并重放全部订阅，用于引擎重连后补齐状态
func (b *Bus) Reset(e engine.Engine) {
	b.mu.Lock()
	done := b.engines.Reset(e, b.interestsLocked())
	b.mu.Unlock()
	<-done
}

// DefaultEngine 默认引擎，未设置时为 nil
func (b *Bus) DefaultEngine() engine.Engine {
	return b.engines.Default()
}

// SetDefaultEngine 设置默认引擎，e 必须已注册；nil 取消默认
func (b *Bus) SetDefaultEngine(e engine.Engine) error {
	return b.engines.SetDefault(e)
}

// Engines 已注册引擎
func (b *Bus) Engines() []engine.Engine {
	return b.engines.Engines()
}

// Flush 等待已排队的引擎调用执行完，主要用于测试与优雅退出
func (b *Bus) Flush(ctx context.Context) error {
	if err := b.engines.Flush(ctx); err != nil {
		return err
	}
	b.bindMu.RLock()
	queues := make([]*safe.Queue, 0, len(b.bindings))
	for _, bnd := range b.bindings {
		queues = append(queues, bnd.queue)
	}
	b.bindMu.RUnlock()

	for _, q := range queues {
		if err := q.Flush(ctx); err != nil && !coreerrors.IsCode(err, coreerrors.CodeServiceClosed) {
			return err
		}
	}
	return nil
}

// ============================================================================
// 统计与关闭
// ============================================================================

// Stats 总线统计
type Stats struct {
	Subscriptions  int   `json:"subscriptions"`
	Connections    int   `json:"connections"`
	Engines        int   `json:"engines"`
	Published      int64 `json:"published"`
	Rejected       int64 `json:"rejected"`
	Inbound        int64 `json:"inbound"`
	Delivered      int64 `json:"delivered"`
	Dropped        int64 `json:"dropped"`
	EngineFailures int64 `json:"engine_failures"`
}

// Stats 当前统计
func (b *Bus) Stats() Stats {
	b.bindMu.RLock()
	conns := len(b.bindings)
	b.bindMu.RUnlock()

	return Stats{
		Subscriptions:  b.subs.Len(),
		Connections:    conns,
		Engines:        b.engines.Len(),
		Published:      b.metrics.GetCounter(metrics.PublishTotal, nil),
		Rejected:       b.metrics.GetCounter(metrics.PublishRejectedTotal, nil),
		Inbound:        b.metrics.GetCounter(metrics.InboundTotal, nil),
		Delivered:      b.metrics.GetCounter(metrics.DeliveriesTotal, nil),
		Dropped:        b.metrics.GetCounter(metrics.DeliveriesDroppedTotal, nil),
		EngineFailures: b.engines.Failures(),
	}
}

// Metrics 指标收集器
func (b *Bus) Metrics() metrics.Metrics {
	return b.metrics
}

// Close 停止发布，排空引擎队列与连接投递队列
// 不关闭连接本身，连接之后关闭时的清理仍然安全
func (b *Bus) Close(ctx context.Context) error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := b.engines.Close(ctx)

	b.bindMu.RLock()
	for _, bnd := range b.bindings {
		bnd.queue.Close()
	}
	b.bindMu.RUnlock()

	b.logger.Info("bus closed")
	return err
}

// IsClosed 总线是否已关闭
func (b *Bus) IsClosed() bool {
	return b.closed.Load()
}
