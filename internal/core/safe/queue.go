package safe

import (
	"context"
	"sync"
	"sync/atomic"

	coreerrors "relaybus-core/internal/core/errors"
)

// Queue 单 worker 有界任务队列
// 任务按提交顺序执行，单个任务 panic 不影响后续任务
type Queue struct {
	name  string
	tasks chan func()
	done  chan struct{}

	mu     sync.RWMutex // 保护 closed 与向 tasks 发送
	closed bool

	executed atomic.Int64
	dropped  atomic.Int64
	panics   atomic.Int64
}

// QueueStats 队列统计
type QueueStats struct {
	Pending  int
	Executed int64
	Dropped  int64
	Panics   int64
}

// NewQueue 创建并启动队列，size <= 0 时使用 1
func NewQueue(name string, size int) *Queue {
	if size <= 0 {
		size = 1
	}
	q := &Queue{
		name:  name,
		tasks: make(chan func(), size),
		done:  make(chan struct{}),
	}
	Go(name, q.run)
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for fn := range q.tasks {
		if Recover(q.name, fn) {
			q.panics.Add(1)
		}
		q.executed.Add(1)
	}
}

// Name 队列名称
func (q *Queue) Name() string {
	return q.name
}

// Submit 非阻塞提交，队列已满或已关闭时返回 false
func (q *Queue) Submit(fn func()) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.dropped.Add(1)
		return false
	}
	select {
	case q.tasks <- fn:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// SubmitWait 阻塞提交，直到入队、队列关闭或 ctx 结束
func (q *Queue) SubmitWait(ctx context.Context, fn func()) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return coreerrors.ErrServiceClosed
	}
	select {
	case q.tasks <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush 等待此前提交的任务全部执行完
// 不能在本队列的任务内调用
func (q *Queue) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if err := q.SubmitWait(ctx, func() { close(barrier) }); err != nil {
		return err
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 停止接收新任务，worker 执行完已入队任务后退出
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.tasks)
}

// Done worker 退出后关闭
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Stats 获取统计
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Pending:  len(q.tasks),
		Executed: q.executed.Load(),
		Dropped:  q.dropped.Load(),
		Panics:   q.panics.Load(),
	}
}
