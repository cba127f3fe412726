package engine

import (
	"context"
	"sync"

	"relaybus-core/internal/core/safe"
)

// task 排队的引擎调用；discard 在任务被丢弃、未执行时调用
type task struct {
	run     func()
	discard func()
}

// entry 一个已注册引擎：串行队列加上溢出积压
//
// 订阅意图与重放不能丢：队列满时进入积压，由独立 goroutine 按序阻塞写入队列，
// 写入方从不在持有注册表或总线锁时等待。积压非空时新的意图也进入积压，保持 FIFO。
type entry struct {
	engine Engine
	name   string
	queue  *safe.Queue

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	backlog  []task
	draining bool
	stopped  bool
}

func newEntry(e Engine, queueSize int) *entry {
	name := NameOf(e)
	ctx, cancel := context.WithCancel(context.Background())
	return &entry{
		engine: e,
		name:   name,
		queue:  safe.NewQueue("engine:"+name, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// submit 提交不可丢弃的任务，返回 false 表示引擎已停止
// deferred 为 true 表示队列已满，任务进入积压
func (ent *entry) submit(t task) (accepted, deferred bool) {
	ent.mu.Lock()
	defer ent.mu.Unlock()

	if ent.stopped {
		if t.discard != nil {
			t.discard()
		}
		return false, false
	}
	if len(ent.backlog) == 0 && ent.queue.Submit(t.run) {
		return true, false
	}
	ent.backlog = append(ent.backlog, t)
	if !ent.draining {
		ent.draining = true
		safe.Go("engine-backlog:"+ent.name, ent.drain)
	}
	return true, true
}

// submitLossy 提交可丢弃的任务（发布），队列满或积压非空时直接丢弃
func (ent *entry) submitLossy(fn func()) bool {
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.stopped || len(ent.backlog) > 0 {
		return false
	}
	return ent.queue.Submit(fn)
}

func (ent *entry) drain() {
	for {
		ent.mu.Lock()
		if len(ent.backlog) == 0 {
			ent.draining = false
			stopped := ent.stopped
			ent.mu.Unlock()
			if stopped {
				ent.queue.Close()
			}
			return
		}
		t := ent.backlog[0]
		ent.mu.Unlock()

		if err := ent.queue.SubmitWait(ent.ctx, t.run); err != nil {
			ent.mu.Lock()
			rest := ent.backlog
			ent.backlog = nil
			ent.draining = false
			ent.mu.Unlock()

			for _, t := range rest {
				if t.discard != nil {
					t.discard()
				}
			}
			ent.queue.Close()
			return
		}

		ent.mu.Lock()
		ent.backlog[0] = task{}
		ent.backlog = ent.backlog[1:]
		ent.mu.Unlock()
	}
}

// pending 积压任务数
func (ent *entry) pending() int {
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return len(ent.backlog)
}

// stop 不再接收任务；积压与队列中的任务执行完后队列关闭
func (ent *entry) stop() {
	ent.mu.Lock()
	if ent.stopped {
		ent.mu.Unlock()
		return
	}
	ent.stopped = true
	idle := !ent.draining
	ent.mu.Unlock()

	if idle {
		ent.queue.Close()
	}
}

// abort 停止并丢弃尚未进入队列的积压
func (ent *entry) abort() {
	ent.cancel()
	ent.stop()
}

// flush 等待此前提交的任务（含积压）全部执行完
func (ent *entry) flush(ctx context.Context) error {
	barrier := make(chan struct{})
	accepted, _ := ent.submit(task{
		run:     func() { close(barrier) },
		discard: func() { close(barrier) },
	})
	if !accepted {
		return nil
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
