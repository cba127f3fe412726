// Package safe 提供带 panic 恢复的 Goroutine 启动与串行任务队列
package safe

import (
	"context"
	"runtime/debug"
	"sync/atomic"

	corelog "relaybus-core/internal/core/log"
)

// manager Goroutine 统计
type manager struct {
	activeCount atomic.Int64
	totalCount  atomic.Int64
	panicCount  atomic.Int64
}

var globalManager = &manager{}

// Stats Goroutine 统计信息
type Stats struct {
	Active     int64 // 当前活跃数量
	Total      int64 // 累计创建数量
	PanicCount int64 // panic 次数
}

// GetStats 获取统计信息
func GetStats() Stats {
	return Stats{
		Active:     globalManager.activeCount.Load(),
		Total:      globalManager.totalCount.Load(),
		PanicCount: globalManager.panicCount.Load(),
	}
}

// Recover 执行 fn，recover 其中的 panic 并记录日志，返回是否发生 panic
func Recover(name string, fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			globalManager.panicCount.Add(1)
			corelog.Errorf("SafeGo[%s]: panic recovered: %v\n%s", name, r, debug.Stack())
			panicked = true
		}
	}()
	fn()
	return false
}

// Go 安全启动 Goroutine（带 panic 恢复）
// name 用于日志标识
func Go(name string, fn func()) {
	globalManager.totalCount.Add(1)
	globalManager.activeCount.Add(1)

	go func() {
		defer globalManager.activeCount.Add(-1)
		Recover(name, fn)
	}()
}

// GoWithContext 带 context 的安全 Goroutine
// 当 context 取消时，fn 应该检查 ctx.Done() 并退出
func GoWithContext(ctx context.Context, name string, fn func(ctx context.Context)) {
	Go(name, func() { fn(ctx) })
}
