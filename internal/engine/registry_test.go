package engine_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "relaybus-core/internal/core/errors"
	corelog "relaybus-core/internal/core/log"
	"relaybus-core/internal/core/metrics"
	"relaybus-core/internal/engine"
	"relaybus-core/internal/match"
	"relaybus-core/internal/testutils"
)

func newRegistry(t *testing.T) (*engine.Registry, *metrics.MemoryMetrics) {
	t.Helper()
	m := metrics.NewMemoryMetrics()
	r := engine.NewRegistry(engine.Options{
		QueueSize: 16,
		Logger:    corelog.NewTestLogger(t),
		Metrics:   m,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = r.Close(ctx)
	})
	return r, m
}

func flush(t *testing.T, r *engine.Registry) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Flush(ctx))
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("replay did not complete")
	}
}

func TestRoute(t *testing.T) {
	e := testutils.NewRecordingEngine("a")

	assert.True(t, engine.DefaultRoute().IsDefault())
	assert.True(t, engine.Route{}.IsDefault())
	assert.True(t, engine.LocalOnly().IsLocal())
	assert.True(t, engine.Via(nil).IsDefault())

	via := engine.Via(e)
	assert.False(t, via.IsDefault())
	assert.False(t, via.IsLocal())
	assert.Same(t, e, via.Engine())
	assert.Equal(t, "engine:a", via.String())
}

func TestRegister_ReplaysAndSetsDefault(t *testing.T) {
	r, m := newRegistry(t)
	e := testutils.NewRecordingEngine("a")

	done, added := r.Register(e, []engine.Interest{
		{Channel: "a", Mode: match.ModeExact},
		{Channel: "b.*", Mode: match.ModeRedis},
		{Channel: "c.#", Mode: match.ModeRabbitMQ},
	})
	require.True(t, added)
	waitDone(t, done)

	assert.Equal(t, []string{"subscribe:a", "subscribe:b.*", "subscribe:c.#"}, e.Ops())
	assert.Same(t, e, r.Default())
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, float64(1), m.GetGauge(metrics.EnginesRegistered, nil))
	assert.Equal(t, int64(3), m.GetCounter(metrics.EngineReplayedTotal, map[string]string{"engine": "a"}))

	// 重复注册不再重放
	done, added = r.Register(e, []engine.Interest{{Channel: "x"}})
	assert.False(t, added)
	waitDone(t, done)
	flush(t, r)
	assert.Equal(t, 3, e.Count(testutils.OpSubscribe))
}

func TestRegister_SecondEngineIsNotDefault(t *testing.T) {
	r, _ := newRegistry(t)
	a, b := testutils.NewRecordingEngine("a"), testutils.NewRecordingEngine("b")

	r.Register(a, nil)
	r.Register(b, nil)
	assert.Same(t, a, r.Default())
	assert.Equal(t, []engine.Engine{a, b}, r.Engines())
}

func TestDeregister(t *testing.T) {
	r, _ := newRegistry(t)
	a, b := testutils.NewRecordingEngine("a"), testutils.NewRecordingEngine("b")
	r.Register(a, nil)
	r.Register(b, nil)

	assert.True(t, r.Deregister(a))
	assert.False(t, r.Deregister(a))
	assert.Nil(t, r.Default(), "removing the default leaves it unset")
	assert.Equal(t, []engine.Engine{b}, r.Engines())

	n := r.NotifySubscribe("news", match.ModeExact)
	assert.Equal(t, 1, n)
	flush(t, r)
	assert.Empty(t, a.Calls())
	assert.Equal(t, []string{"subscribe:news"}, b.Ops())
}

func TestDeregister_DrainsPendingCalls(t *testing.T) {
	r, _ := newRegistry(t)
	e := testutils.NewRecordingEngine("a")
	done, _ := r.Register(e, nil)
	waitDone(t, done)

	release := e.Block()
	r.NotifySubscribe("one", match.ModeExact)
	r.NotifySubscribe("two", match.ModeExact)
	r.Deregister(e)
	release()

	assert.Eventually(t, func() bool { return e.Count(testutils.OpSubscribe) == 2 },
		time.Second, 5*time.Millisecond)
}

func TestReset_ReplaysAgain(t *testing.T) {
	r, _ := newRegistry(t)
	e := testutils.NewRecordingEngine("a")
	replay := []engine.Interest{{Channel: "a"}, {Channel: "b"}}

	done, _ := r.Register(e, replay)
	waitDone(t, done)
	waitDone(t, r.Reset(e, replay))

	assert.Equal(t, []string{"subscribe:a", "subscribe:b", "subscribe:a", "subscribe:b"}, e.Ops())
	assert.Equal(t, 1, r.Len())
	assert.Same(t, e, r.Default())

	// 未注册的引擎直接注册
	other := testutils.NewRecordingEngine("other")
	waitDone(t, r.Reset(other, replay))
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 2, other.Count(testutils.OpSubscribe))
}

func TestSetDefault(t *testing.T) {
	r, _ := newRegistry(t)
	a, b := testutils.NewRecordingEngine("a"), testutils.NewRecordingEngine("b")
	r.Register(a, nil)

	err := r.SetDefault(b)
	assert.ErrorIs(t, err, coreerrors.ErrEngineNotRegistered)
	assert.Same(t, a, r.Default())

	r.Register(b, nil)
	require.NoError(t, r.SetDefault(b))
	assert.Same(t, b, r.Default())

	require.NoError(t, r.SetDefault(nil))
	assert.Nil(t, r.Default())
}

func TestNotify_FailureDoesNotBlockOthers(t *testing.T) {
	r, m := newRegistry(t)
	bad, panicky, good := testutils.NewRecordingEngine("bad"),
		testutils.NewRecordingEngine("panicky"),
		testutils.NewRecordingEngine("good")
	bad.FailOn(testutils.OpSubscribe)
	panicky.PanicOn(testutils.OpSubscribe)
	r.Register(bad, nil)
	r.Register(panicky, nil)
	r.Register(good, nil)

	n := r.NotifySubscribe("news", match.ModeExact)
	assert.Equal(t, 3, n)
	flush(t, r)

	assert.Equal(t, []string{"subscribe:news"}, good.Ops())
	assert.Equal(t, int64(2), r.Failures())
	assert.Equal(t, int64(1), m.GetCounter(metrics.EngineFailuresTotal, map[string]string{"engine": "bad", "op": "subscribe"}))
	assert.Equal(t, int64(1), m.GetCounter(metrics.EngineFailuresTotal, map[string]string{"engine": "panicky", "op": "subscribe"}))

	// panic 之后队列仍然可用
	r.NotifyUnsubscribe("news", match.ModeExact)
	flush(t, r)
	assert.Equal(t, 1, panicky.Count(testutils.OpUnsubscribe))
}

func TestNotify_SlowEngineDoesNotDelayOthers(t *testing.T) {
	r, _ := newRegistry(t)
	slow, fast := testutils.NewRecordingEngine("slow"), testutils.NewRecordingEngine("fast")
	r.Register(slow, nil)
	r.Register(fast, nil)

	release := slow.Block()
	defer release()

	r.NotifySubscribe("news", match.ModeExact)
	assert.Eventually(t, func() bool { return fast.Count(testutils.OpSubscribe) == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, slow.Count(testutils.OpSubscribe))
}

func TestNotify_QueueFullDefersIntents(t *testing.T) {
	m := metrics.NewMemoryMetrics()
	r := engine.NewRegistry(engine.Options{QueueSize: 1, Logger: corelog.NewNopLogger(), Metrics: m})
	e := testutils.NewRecordingEngine("a")
	done, _ := r.Register(e, nil)
	waitDone(t, done)

	release := e.Block()
	scheduled := 0
	for _, ch := range []string{"c1", "c2", "c3", "c4", "c5"} {
		scheduled += r.NotifySubscribe(ch, match.ModeExact)
	}
	assert.Equal(t, 5, scheduled, "intents are never dropped")
	assert.Greater(t, r.Pending(e), 0)

	// 发布在积压期间可以丢弃
	assert.ErrorIs(t, r.Forward(engine.DefaultRoute(), "c1", []byte("x")), coreerrors.ErrQueueFull)

	release()
	flush(t, r)
	assert.Equal(t, []string{"subscribe:c1", "subscribe:c2", "subscribe:c3", "subscribe:c4", "subscribe:c5"}, e.Ops())
	assert.Equal(t, 0, r.Pending(e))
	assert.Equal(t, int64(1), r.Failures(), "only the dropped publish counts as a failure")
	assert.Positive(t, m.GetCounter(metrics.EngineDeferredTotal, map[string]string{"engine": "a", "op": "subscribe"}))
	require.NoError(t, r.Close(context.Background()))
}

func TestReset_DoesNotBlockOnFullQueue(t *testing.T) {
	r := engine.NewRegistry(engine.Options{QueueSize: 1, Logger: corelog.NewNopLogger()})
	slow, other := testutils.NewRecordingEngine("slow"), testutils.NewRecordingEngine("other")
	done, _ := r.Register(slow, nil)
	waitDone(t, done)
	done, _ = r.Register(other, nil)
	waitDone(t, done)

	release := slow.Block()
	for _, ch := range []string{"c1", "c2", "c3"} {
		r.NotifySubscribe(ch, match.ModeExact)
	}

	returned := make(chan (<-chan struct{}), 1)
	go func() { returned <- r.Reset(slow, []engine.Interest{{Channel: "c1"}, {Channel: "c2"}, {Channel: "c3"}}) }()

	var replayed <-chan struct{}
	select {
	case replayed = <-returned:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Reset blocked behind a slow engine")
	}

	// 其他引擎的通知与查询不受影响
	r.NotifySubscribe("c4", match.ModeExact)
	assert.Eventually(t, func() bool { return other.Count(testutils.OpSubscribe) == 4 }, time.Second, 5*time.Millisecond)
	assert.Same(t, slow, r.Default())

	release()
	waitDone(t, replayed)
	flush(t, r)
	assert.Equal(t, []string{
		"subscribe:c1", "subscribe:c2", "subscribe:c3",
		"subscribe:c1", "subscribe:c2", "subscribe:c3",
		"subscribe:c4",
	}, slow.Ops())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))
}

func TestReset_KeepsDefault(t *testing.T) {
	r, _ := newRegistry(t)
	a, b := testutils.NewRecordingEngine("a"), testutils.NewRecordingEngine("b")
	r.Register(a, nil)
	r.Register(b, nil)
	require.Same(t, a, r.Default())

	waitDone(t, r.Reset(a, nil))
	assert.Same(t, a, r.Default())
	assert.Equal(t, []engine.Engine{b, a}, r.Engines())
	require.NoError(t, r.Forward(engine.DefaultRoute(), "news", []byte("x")))
	flush(t, r)
	assert.Equal(t, 1, a.Count(testutils.OpPublish))
}

type resettableEngine struct {
	*testutils.RecordingEngine
	resets atomic.Int32
	seen   atomic.Int32 // ResetState 时已记录的调用数
}

func (e *resettableEngine) ResetState() {
	e.resets.Add(1)
	e.seen.Store(int32(len(e.Calls())))
}

func TestReset_ClearsEngineStateBeforeReplay(t *testing.T) {
	r, _ := newRegistry(t)
	e := &resettableEngine{RecordingEngine: testutils.NewRecordingEngine("stateful")}
	replay := []engine.Interest{{Channel: "a"}, {Channel: "b"}}

	done, _ := r.Register(e, replay)
	waitDone(t, done)
	assert.Equal(t, int32(0), e.resets.Load(), "first registration does not reset")

	waitDone(t, r.Reset(e, replay))
	assert.Equal(t, int32(1), e.resets.Load())
	assert.Equal(t, int32(2), e.seen.Load(), "reset runs after earlier calls and before the replay")
	assert.Equal(t, 4, e.Count(testutils.OpSubscribe))
}

func TestForward(t *testing.T) {
	r, _ := newRegistry(t)
	a, b := testutils.NewRecordingEngine("a"), testutils.NewRecordingEngine("b")

	err := r.Forward(engine.DefaultRoute(), "news", []byte("x"))
	assert.ErrorIs(t, err, coreerrors.ErrEngineUnavailable)

	assert.NoError(t, r.Forward(engine.LocalOnly(), "news", []byte("x")))

	r.Register(a, nil)
	r.Register(b, nil)
	require.NoError(t, r.Forward(engine.DefaultRoute(), "news", []byte("1")))
	require.NoError(t, r.Forward(engine.Via(b), "news", []byte("2")))
	flush(t, r)

	assert.Equal(t, []string{"publish:news"}, a.Ops())
	assert.Equal(t, []string{"publish:news"}, b.Ops())
	assert.Equal(t, "2", string(b.Calls()[0].Message))
}

func TestForward_UnregisteredEngineRunsDetached(t *testing.T) {
	r, _ := newRegistry(t)
	loose := testutils.NewRecordingEngine("loose")

	require.NoError(t, r.Forward(engine.Via(loose), "news", []byte("x")))
	assert.Eventually(t, func() bool { return loose.Count(testutils.OpPublish) == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, r.Len())
}

func TestClose(t *testing.T) {
	m := metrics.NewMemoryMetrics()
	r := engine.NewRegistry(engine.Options{Logger: corelog.NewNopLogger(), Metrics: m})
	e := testutils.NewRecordingEngine("a")
	r.Register(e, []engine.Interest{{Channel: "a"}})

	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Default())
	assert.Equal(t, 1, e.Count(testutils.OpSubscribe), "queued replay drains before close returns")
	assert.Equal(t, float64(0), m.GetGauge(metrics.EnginesRegistered, nil))
}
