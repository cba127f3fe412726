package broker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"relaybus-core/internal/core/dispose"
	coreerrors "relaybus-core/internal/core/errors"
	corelog "relaybus-core/internal/core/log"
	"relaybus-core/internal/core/safe"
	"relaybus-core/internal/engine"
	"relaybus-core/internal/match"
)

// Redis 引擎默认值
const (
	DefaultRedisPrefix       = "relaybus:"
	DefaultRedisPoolSize     = 100
	DefaultRedisDedupeWindow = 4096

	redisCallTimeout = 5 * time.Second

	reconnectMinBackoff = 100 * time.Millisecond
	reconnectMaxBackoff = 5 * time.Second
)

// RedisConfig Redis 引擎配置
type RedisConfig struct {
	Addrs        []string // Redis 地址列表
	Password     string   // 密码
	DB           int      // 数据库编号
	ClusterMode  bool     // 是否集群模式
	PoolSize     int      // 连接池大小
	Prefix       string   // 频道前缀
	DedupeWindow int      // 去重窗口（消息 ID 数）
}

// RedisEngine 基于 Redis Pub/Sub 的引擎
//
// 订阅连接断开后，接收循环等待 Redis 恢复，然后调用 OnReconnect 注册的回调，
// 由总线 Reset 本引擎：ResetState 清空引用计数并退订，重放重新建立全部订阅。
//
// exact 订阅（以及不含通配符的模式）使用 SUBSCRIBE，其余方言转换为 glob 后使用 PSUBSCRIBE。
// glob 是超集，收到消息后按本地订阅再精确过滤一次。
// 本节点发出的消息按 NodeID 丢弃，SUBSCRIBE 与 PSUBSCRIBE 同时命中造成的重复按消息 ID 丢弃。
type RedisEngine struct {
	*dispose.ServiceBase

	client    redis.UniversalClient
	pubsub    *redis.PubSub
	nodeID    string
	prefix    string
	deliverer engine.Deliverer
	logger    corelog.Logger

	interests *interestSet
	seen      *lru.Cache[string, struct{}]

	mu       sync.Mutex
	channels map[string]int // SUBSCRIBE 频道 -> 引用数
	globs    map[string]int // PSUBSCRIBE 模式 -> 引用数
	loopOnce sync.Once

	reconnect atomic.Pointer[func()]
}

// NewRedisEngine 创建 Redis 引擎，创建时检查连通性
func NewRedisEngine(parentCtx context.Context, config *RedisConfig, nodeID string, d engine.Deliverer, logger corelog.Logger) (*RedisEngine, error) {
	if config == nil {
		return nil, coreerrors.New(coreerrors.CodeConfigError, "redis engine config is required")
	}
	if d == nil {
		return nil, coreerrors.New(coreerrors.CodeInvalidParam, "redis engine requires a deliverer")
	}

	poolSize := config.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultRedisPoolSize
	}
	prefix := config.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	window := config.DedupeWindow
	if window <= 0 {
		window = DefaultRedisDedupeWindow
	}

	var client redis.UniversalClient
	if config.ClusterMode {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    config.Addrs,
			Password: config.Password,
			PoolSize: poolSize,
		})
	} else {
		addr := "localhost:6379"
		if len(config.Addrs) > 0 {
			addr = config.Addrs[0]
		}
		client = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.Password,
			DB:       config.DB,
			PoolSize: poolSize,
		})
	}

	pingCtx, pingCancel := context.WithTimeout(parentCtx, redisCallTimeout)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, coreerrors.Wrap(err, coreerrors.CodeEngineUnavailable, "failed to connect to Redis")
	}

	seen, err := lru.New[string, struct{}](window)
	if err != nil {
		client.Close()
		return nil, coreerrors.Wrap(err, coreerrors.CodeConfigError, "create dedupe window")
	}

	r := &RedisEngine{
		ServiceBase: dispose.NewService("RedisEngine", parentCtx),
		client:      client,
		nodeID:      nodeID,
		prefix:      prefix,
		deliverer:   d,
		logger:      corelog.Component(logger, "redis-engine").WithField(corelog.FieldNode, nodeID),
		interests:   newInterestSet(),
		seen:        seen,
		channels:    make(map[string]int),
		globs:       make(map[string]int),
	}
	// 先订阅空集合，建立 PubSub 连接；之后按需追加频道
	r.pubsub = client.Subscribe(r.Ctx())
	r.AddCleanHandler(r.release)

	r.logger.Infof("redis engine initialized (cluster_mode: %v, prefix: %s)", config.ClusterMode, prefix)
	return r, nil
}

// Name 实现 engine.Named
func (r *RedisEngine) Name() string {
	return "redis:" + r.nodeID
}

// NodeID 节点 ID
func (r *RedisEngine) NodeID() string {
	return r.nodeID
}

// target 计算 (channel, mode) 对应的 Redis 订阅目标
func (r *RedisEngine) target(p *match.Pattern) (name string, isGlob bool, err error) {
	if lit, ok := p.Literal(); ok {
		return r.prefix + lit, false, nil
	}
	glob, err := match.ToGlob(p.String(), p.Mode())
	if err != nil {
		return "", false, err
	}
	return match.EscapeGlob(r.prefix) + glob, true, nil
}

// Subscribe 引用计数，首次出现时向 Redis 订阅
func (r *RedisEngine) Subscribe(channel string, mode match.Mode) bool {
	if r.IsClosed() {
		return false
	}
	log := r.logger.WithFields(map[string]interface{}{corelog.FieldChannel: channel, corelog.FieldMode: mode.String()})

	p, first, err := r.interests.add(channel, mode)
	if err != nil {
		log.WithError(err).Warn("subscribe rejected")
		return false
	}
	if !first {
		return true
	}
	name, isGlob, err := r.target(p)
	if err != nil {
		r.interests.remove(channel, mode)
		log.WithError(err).Warn("subscribe rejected")
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	refs := r.channels
	if isGlob {
		refs = r.globs
	}
	refs[name]++
	if refs[name] > 1 {
		return true
	}

	ctx, cancel := context.WithTimeout(r.Ctx(), redisCallTimeout)
	defer cancel()
	if isGlob {
		err = r.pubsub.PSubscribe(ctx, name)
	} else {
		err = r.pubsub.Subscribe(ctx, name)
	}
	if err != nil {
		refs[name]--
		if refs[name] == 0 {
			delete(refs, name)
		}
		r.interests.remove(channel, mode)
		log.WithError(err).Error("failed to subscribe to Redis")
		return false
	}

	r.loopOnce.Do(func() { safe.GoWithContext(r.Ctx(), "redis-engine:"+r.nodeID, r.receiveLoop) })
	log.Debugf("subscribed %s (glob=%v)", name, isGlob)
	return true
}

// Unsubscribe 引用归零时向 Redis 退订
func (r *RedisEngine) Unsubscribe(channel string, mode match.Mode) bool {
	if r.IsClosed() {
		return false
	}
	p, last, ok := r.interests.remove(channel, mode)
	if !ok {
		return false
	}
	if !last {
		return true
	}
	name, isGlob, err := r.target(p)
	if err != nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	refs := r.channels
	if isGlob {
		refs = r.globs
	}
	refs[name]--
	if refs[name] > 0 {
		return true
	}
	delete(refs, name)

	ctx, cancel := context.WithTimeout(r.Ctx(), redisCallTimeout)
	defer cancel()
	if isGlob {
		err = r.pubsub.PUnsubscribe(ctx, name)
	} else {
		err = r.pubsub.Unsubscribe(ctx, name)
	}
	if err != nil {
		r.logger.WithField(corelog.FieldChannel, channel).WithError(err).Warn("failed to unsubscribe from Redis")
		return false
	}
	return true
}

// Publish 以 JSON 信封发布到 Redis
func (r *RedisEngine) Publish(channel string, message []byte) {
	if r.IsClosed() {
		return
	}
	log := r.logger.WithField(corelog.FieldChannel, channel)

	data, err := NewEnvelope(r.nodeID, channel, message).Encode()
	if err != nil {
		log.WithError(err).Error("failed to encode message")
		return
	}

	ctx, cancel := context.WithTimeout(r.Ctx(), redisCallTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.prefix+channel, data).Err(); err != nil {
		log.WithError(err).Error("failed to publish to Redis")
		return
	}
	log.Debug("published")
}

// ResetState 实现 engine.Resetter：退订全部 Redis 频道并清空引用计数
// 总线随后的重放会重新订阅当前的全部本地订阅
func (r *RedisEngine) ResetState() {
	if r.IsClosed() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.interests.reset()
	channels := make([]string, 0, len(r.channels))
	for name := range r.channels {
		channels = append(channels, name)
	}
	globs := make([]string, 0, len(r.globs))
	for name := range r.globs {
		globs = append(globs, name)
	}
	r.channels = make(map[string]int)
	r.globs = make(map[string]int)

	ctx, cancel := context.WithTimeout(r.Ctx(), redisCallTimeout)
	defer cancel()
	// 不带参数的 UNSUBSCRIBE 会退订全部，只在非空时调用
	if len(channels) > 0 {
		if err := r.pubsub.Unsubscribe(ctx, channels...); err != nil {
			r.logger.WithError(err).Warn("failed to release channels on reset")
		}
	}
	if len(globs) > 0 {
		if err := r.pubsub.PUnsubscribe(ctx, globs...); err != nil {
			r.logger.WithError(err).Warn("failed to release patterns on reset")
		}
	}
	r.logger.Infof("state reset, released %d channels and %d patterns", len(channels), len(globs))
}

// OnReconnect 设置 Redis 连接恢复后的回调，通常为 bus.Reset(engine)
// 回调在独立 goroutine 中执行
func (r *RedisEngine) OnReconnect(fn func()) {
	if fn == nil {
		r.reconnect.Store(nil)
		return
	}
	r.reconnect.Store(&fn)
}

// Ping 检查 Redis 连接
func (r *RedisEngine) Ping(ctx context.Context) error {
	if r.IsClosed() {
		return coreerrors.ErrServiceClosed
	}
	return r.client.Ping(ctx).Err()
}

// Close 关闭 PubSub 与客户端
func (r *RedisEngine) Close() error {
	return r.CloseWithError()
}

func (r *RedisEngine) release() error {
	var errs []error
	if err := r.pubsub.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := r.client.Close(); err != nil {
		errs = append(errs, err)
	}
	r.logger.Info("redis engine closed")
	return coreerrors.Join(errs...)
}

func (r *RedisEngine) receiveLoop(ctx context.Context) {
	r.logger.Debug("receive loop started")
	for {
		msg, err := r.pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || r.IsClosed() {
				r.logger.Debug("receive loop stopped")
				return
			}
			r.logger.WithError(err).Warn("lost Redis subscription connection")
			if !r.awaitRecovery(ctx) {
				return
			}
			r.logger.Info("Redis connection recovered")
			r.notifyReconnect()
			continue
		}
		r.handle(msg.Payload)
	}
}

// awaitRecovery 指数退避 PING 直到 Redis 可用；ctx 结束时返回 false
func (r *RedisEngine) awaitRecovery(ctx context.Context) bool {
	backoff := reconnectMinBackoff
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		pingCtx, cancel := context.WithTimeout(ctx, redisCallTimeout)
		err := r.client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			return true
		}
		r.logger.WithError(err).Debugf("Redis still unavailable, retrying in %v", backoff)
		if backoff < reconnectMaxBackoff {
			backoff = min(backoff*2, reconnectMaxBackoff)
		}
	}
}

func (r *RedisEngine) notifyReconnect() {
	fn := r.reconnect.Load()
	if fn == nil {
		return
	}
	safe.Go("redis-engine-reconnect:"+r.nodeID, *fn)
}

// handle 处理一条 Redis 消息，返回是否做了本地投递
func (r *RedisEngine) handle(payload string) bool {
	env, err := DecodeEnvelope([]byte(payload))
	if err != nil {
		r.logger.WithError(err).Warn("dropping malformed message")
		return false
	}
	if env.NodeID == r.nodeID {
		return false
	}
	if env.ID != "" {
		if ok, _ := r.seen.ContainsOrAdd(env.ID, struct{}{}); ok {
			return false
		}
	}
	if !r.interests.matches(env.Channel) {
		return false
	}
	r.deliverer.PublishLocal(env.Channel, env.Payload)
	return true
}

// Subscriptions 当前 Redis 订阅数（SUBSCRIBE 与 PSUBSCRIBE 合计）
func (r *RedisEngine) Subscriptions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels) + len(r.globs)
}
