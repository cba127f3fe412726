// Package testutils 测试辅助：记录调用的引擎、内存连接与并发测试工具
package testutils

import (
	"sync"

	"relaybus-core/internal/match"
)

// 引擎调用类型
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPublish     = "publish"
)

// Call 一次引擎调用
type Call struct {
	Op      string
	Channel string
	Mode    match.Mode
	Message []byte
}

// RecordingEngine 记录全部调用的引擎
type RecordingEngine struct {
	name string

	mu      sync.Mutex
	calls   []Call
	failOn  map[string]bool
	panicOn map[string]bool
	gate    chan struct{}

	// OnPublish 非 nil 时在 Publish 中调用，可用来模拟外部回推
	OnPublish func(channel string, message []byte)
}

// NewRecordingEngine 创建记录引擎
func NewRecordingEngine(name string) *RecordingEngine {
	return &RecordingEngine{
		name:    name,
		failOn:  make(map[string]bool),
		panicOn: make(map[string]bool),
	}
}

// Name 引擎名
func (e *RecordingEngine) Name() string { return e.name }

// FailOn 指定操作返回 false
func (e *RecordingEngine) FailOn(op string) {
	e.mu.Lock()
	e.failOn[op] = true
	e.mu.Unlock()
}

// PanicOn 指定操作 panic
func (e *RecordingEngine) PanicOn(op string) {
	e.mu.Lock()
	e.panicOn[op] = true
	e.mu.Unlock()
}

// Block 之后的调用阻塞，直到返回的函数被调用
func (e *RecordingEngine) Block() (release func()) {
	gate := make(chan struct{})
	e.mu.Lock()
	e.gate = gate
	e.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			if e.gate == gate {
				e.gate = nil
			}
			e.mu.Unlock()
			close(gate)
		})
	}
}

func (e *RecordingEngine) record(c Call) bool {
	e.mu.Lock()
	gate := e.gate
	e.mu.Unlock()
	if gate != nil {
		<-gate
	}

	e.mu.Lock()
	e.calls = append(e.calls, c)
	fail, boom := e.failOn[c.Op], e.panicOn[c.Op]
	e.mu.Unlock()

	if boom {
		panic("recording engine: " + c.Op)
	}
	return !fail
}

// Subscribe 实现 engine.Engine
func (e *RecordingEngine) Subscribe(channel string, mode match.Mode) bool {
	return e.record(Call{Op: OpSubscribe, Channel: channel, Mode: mode})
}

// Unsubscribe 实现 engine.Engine
func (e *RecordingEngine) Unsubscribe(channel string, mode match.Mode) bool {
	return e.record(Call{Op: OpUnsubscribe, Channel: channel, Mode: mode})
}

// Publish 实现 engine.Engine
func (e *RecordingEngine) Publish(channel string, message []byte) {
	e.record(Call{Op: OpPublish, Channel: channel, Message: append([]byte(nil), message...)})
	if e.OnPublish != nil {
		e.OnPublish(channel, message)
	}
}

// Calls 全部调用的副本
func (e *RecordingEngine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// Ops 按顺序返回 "op:channel"
func (e *RecordingEngine) Ops() []string {
	calls := e.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Op + ":" + c.Channel
	}
	return out
}

// Count 指定操作的调用次数
func (e *RecordingEngine) Count(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Clear 清空记录
func (e *RecordingEngine) Clear() {
	e.mu.Lock()
	e.calls = nil
	e.mu.Unlock()
}
