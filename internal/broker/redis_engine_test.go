package broker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "relaybus-core/internal/core/errors"
	corelog "relaybus-core/internal/core/log"
	"relaybus-core/internal/engine"
	"relaybus-core/internal/match"
	"relaybus-core/internal/pubsub"
	"relaybus-core/internal/testutils"
)

// setupTestRedis 创建一个测试用的 Redis 实例
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisConfig) {
	mr := miniredis.RunT(t)
	config := &RedisConfig{
		Addrs:       []string{mr.Addr()},
		Password:    "",
		DB:          0,
		ClusterMode: false,
		PoolSize:    10,
	}
	return mr, config
}

func newRedisEngine(t *testing.T, config *RedisConfig, nodeID string, d engine.Deliverer) *RedisEngine {
	t.Helper()
	r, err := NewRedisEngine(context.Background(), config, nodeID, d, corelog.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// 等待订阅生效
func settle() {
	time.Sleep(100 * time.Millisecond)
}

func TestRedisEngine_CrossNode(t *testing.T) {
	_, config := setupTestRedis(t)

	var gotA, gotB inbox
	a := newRedisEngine(t, config, "node-a", &gotA)
	b := newRedisEngine(t, config, "node-b", &gotB)

	require.True(t, a.Subscribe("news", match.ModeExact))
	settle()

	b.Publish("news", []byte("hello"))

	require.Eventually(t, func() bool { return len(gotA.got()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"news=hello"}, gotA.got())
	assert.Empty(t, gotB.got())
}

func TestRedisEngine_OwnMessagesAreDropped(t *testing.T) {
	_, config := setupTestRedis(t)

	var got inbox
	a := newRedisEngine(t, config, "node-a", &got)
	require.True(t, a.Subscribe("news", match.ModeExact))
	settle()

	a.Publish("news", []byte("echo"))
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, got.got())

	own, err := NewEnvelope("node-a", "news", []byte("x")).Encode()
	require.NoError(t, err)
	assert.False(t, a.handle(string(own)))
}

func TestRedisEngine_DuplicateMessageIDs(t *testing.T) {
	_, config := setupTestRedis(t)

	var got inbox
	a := newRedisEngine(t, config, "node-a", &got)
	require.True(t, a.Subscribe("news", match.ModeExact))

	data, err := NewEnvelope("node-b", "news", []byte("once")).Encode()
	require.NoError(t, err)
	assert.True(t, a.handle(string(data)))
	assert.False(t, a.handle(string(data)), "same message id is delivered once")
	assert.Equal(t, []string{"news=once"}, got.got())
}

func TestRedisEngine_PatternSubscription(t *testing.T) {
	_, config := setupTestRedis(t)

	var got inbox
	a := newRedisEngine(t, config, "node-a", &got)
	b := newRedisEngine(t, config, "node-b", &inbox{})

	require.True(t, a.Subscribe("news.*", match.ModeNATS))
	settle()

	// glob 会命中 news.a.b，本地精确匹配将其过滤
	b.Publish("news.a.b", []byte("deep"))
	b.Publish("news.sports", []byte("goal"))

	require.Eventually(t, func() bool { return len(got.got()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"news.sports=goal"}, got.got())
}

func TestRedisEngine_RabbitMQTopic(t *testing.T) {
	_, config := setupTestRedis(t)

	var got inbox
	a := newRedisEngine(t, config, "node-a", &got)
	b := newRedisEngine(t, config, "node-b", &inbox{})

	require.True(t, a.Subscribe("stock.#.nyse", match.ModeRabbitMQ))
	settle()

	b.Publish("stock.nyse", []byte("1"))
	b.Publish("stock.usd.nyse", []byte("2"))
	b.Publish("stock.usd.nasdaq", []byte("3"))

	require.Eventually(t, func() bool { return len(got.got()) == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.ElementsMatch(t, []string{"stock.nyse=1", "stock.usd.nyse=2"}, got.got())
}

func TestRedisEngine_ExactChannelWithGlobCharacters(t *testing.T) {
	_, config := setupTestRedis(t)

	var got inbox
	a := newRedisEngine(t, config, "node-a", &got)
	b := newRedisEngine(t, config, "node-b", &inbox{})

	require.True(t, a.Subscribe("a*b", match.ModeExact))
	settle()

	b.Publish("axb", []byte("no"))
	b.Publish("a*b", []byte("yes"))

	require.Eventually(t, func() bool { return len(got.got()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"a*b=yes"}, got.got())
}

func TestRedisEngine_UnsubscribeRefcount(t *testing.T) {
	mr, config := setupTestRedis(t)

	a := newRedisEngine(t, config, "node-a", &inbox{})
	require.True(t, a.Subscribe("news", match.ModeExact))
	require.True(t, a.Subscribe("news", match.ModeExact))
	require.True(t, a.Subscribe("news", match.ModeRedis), "literal glob shares the SUBSCRIBE channel")
	require.True(t, a.Subscribe("news.*", match.ModeRedis))
	assert.Equal(t, 2, a.Subscriptions())
	settle()
	assert.Equal(t, 1, mr.PubSubNumPat())

	assert.True(t, a.Unsubscribe("news", match.ModeExact))
	assert.True(t, a.Unsubscribe("news", match.ModeExact))
	assert.Equal(t, 2, a.Subscriptions(), "redis-glob literal still holds the channel")

	assert.True(t, a.Unsubscribe("news", match.ModeRedis))
	assert.True(t, a.Unsubscribe("news.*", match.ModeRedis))
	assert.Equal(t, 0, a.Subscriptions())
	assert.False(t, a.Unsubscribe("news", match.ModeExact))

	settle()
	assert.Equal(t, 0, mr.PubSubNumPat())
}

func TestRedisEngine_MalformedMessage(t *testing.T) {
	mr, config := setupTestRedis(t)

	var got inbox
	a := newRedisEngine(t, config, "node-a", &got)
	require.True(t, a.Subscribe("news", match.ModeExact))
	settle()

	mr.Publish(DefaultRedisPrefix+"news", "invalid json")
	valid, err := NewEnvelope("node-b", "news", []byte("ok")).Encode()
	require.NoError(t, err)
	mr.Publish(DefaultRedisPrefix+"news", string(valid))

	require.Eventually(t, func() bool { return len(got.got()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"news=ok"}, got.got())
}

func TestRedisEngine_CustomPrefix(t *testing.T) {
	mr, config := setupTestRedis(t)
	config.Prefix = "app[1]:"

	var got inbox
	a := newRedisEngine(t, config, "node-a", &got)
	b := newRedisEngine(t, config, "node-b", &inbox{})
	require.True(t, a.Subscribe("news.*", match.ModeRedis))
	settle()
	assert.Equal(t, 1, mr.PubSubNumPat())

	b.Publish("news.x", []byte("1"))
	require.Eventually(t, func() bool { return len(got.got()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestRedisEngine_ConnectionFailure(t *testing.T) {
	config := &RedisConfig{
		Addrs:       []string{"localhost:9999"},
		Password:    "",
		DB:          0,
		ClusterMode: false,
		PoolSize:    10,
	}

	r, err := NewRedisEngine(context.Background(), config, "test-node", &inbox{}, corelog.NewNopLogger())
	assert.Error(t, err)
	assert.Nil(t, r)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeEngineUnavailable))
}

func TestRedisEngine_ResetStateReleasesChannels(t *testing.T) {
	mr, config := setupTestRedis(t)

	a := newRedisEngine(t, config, "node-a", &inbox{})
	require.True(t, a.Subscribe("news", match.ModeExact))
	require.True(t, a.Subscribe("news", match.ModeExact))
	require.True(t, a.Subscribe("news.*", match.ModeRedis))
	settle()
	assert.Equal(t, 1, mr.PubSubNumPat())

	a.ResetState()
	settle()
	assert.Equal(t, 0, a.Subscriptions())
	assert.Equal(t, 0, mr.PubSubNumPat())
	assert.False(t, a.Unsubscribe("news", match.ModeExact), "refcounts are cleared")
}

func TestRedisEngine_BusResetDoesNotDoubleRefcounts(t *testing.T) {
	_, config := setupTestRedis(t)

	bus, err := pubsub.New(pubsub.Options{Logger: corelog.NewNopLogger()})
	require.NoError(t, err)
	r := newRedisEngine(t, config, "node-a", bus.Deliverer())
	require.True(t, bus.Register(r))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = bus.Close(ctx)
	})

	conn := testutils.NewFakeConn("c1")
	_, err = bus.Subscribe(conn, "news", pubsub.SubscribeOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Flush(ctx))

	bus.Reset(r)
	require.NoError(t, bus.Flush(ctx))
	assert.Equal(t, 1, r.Subscriptions())

	// 一次退订即释放 Redis 频道，说明重放没有叠加引用
	require.NoError(t, conn.Close())
	require.NoError(t, bus.Flush(ctx))
	assert.Equal(t, 0, r.Subscriptions())
}

func TestRedisEngine_ReconnectReplaysSubscriptions(t *testing.T) {
	mr, config := setupTestRedis(t)

	bus, err := pubsub.New(pubsub.Options{Logger: corelog.NewNopLogger()})
	require.NoError(t, err)
	r := newRedisEngine(t, config, "node-a", bus.Deliverer())
	require.True(t, bus.Register(r))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = bus.Close(ctx)
	})

	var resets atomic.Int32
	r.OnReconnect(func() {
		bus.Reset(r)
		resets.Add(1)
	})

	conn := testutils.NewFakeConn("c1")
	_, err = bus.Subscribe(conn, "news", pubsub.SubscribeOptions{})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Flush(ctx))
	settle()

	mr.Close()
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, mr.Restart())

	require.Eventually(t, func() bool { return resets.Load() >= 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, r.Subscriptions())

	other := newRedisEngine(t, config, "node-b", &inbox{})
	require.Eventually(t, func() bool {
		other.Publish("news", []byte("back"))
		return len(conn.Messages()) > 0
	}, 5*time.Second, 100*time.Millisecond)
	assert.Equal(t, "back", conn.Messages()[0])
}

func TestRedisEngine_Close(t *testing.T) {
	_, config := setupTestRedis(t)

	r, err := NewRedisEngine(context.Background(), config, "node-a", &inbox{}, corelog.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, r.Ping(context.Background()))
	assert.Equal(t, "redis:node-a", r.Name())

	require.NoError(t, r.Close())
	assert.True(t, r.IsClosed())
	assert.ErrorIs(t, r.Ping(context.Background()), coreerrors.ErrServiceClosed)
	assert.False(t, r.Subscribe("news", match.ModeExact))
}

func TestRedisEngine_WithBus(t *testing.T) {
	_, config := setupTestRedis(t)

	newRedisNode := func(id string) *pubsub.Bus {
		bus, err := pubsub.New(pubsub.Options{Logger: corelog.NewNopLogger()})
		require.NoError(t, err)
		r, err := NewRedisEngine(context.Background(), config, id, bus.Deliverer(), corelog.NewNopLogger())
		require.NoError(t, err)
		require.True(t, bus.Register(r))
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = bus.Close(ctx)
			_ = r.Close()
		})
		return bus
	}
	left, right := newRedisNode("left"), newRedisNode("right")

	conn := testutils.NewFakeConn("c1")
	_, err := right.Subscribe(conn, "orders.*", pubsub.SubscribeOptions{Match: match.ModeRedis})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, right.Flush(ctx))
	settle()

	require.True(t, left.Publish("orders.42", []byte("paid")))
	require.Eventually(t, func() bool { return len(conn.Messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"paid"}, conn.Messages())

	// 连接关闭后退订同步到 Redis
	require.NoError(t, conn.Close())
	require.NoError(t, right.Flush(ctx))
	assert.Equal(t, 0, right.Stats().Subscriptions)
}
