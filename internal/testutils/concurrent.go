package testutils

import (
	"context"
	"testing"
	"time"

	coreerrors "relaybus-core/internal/core/errors"
)

// ConcurrentTest 并发测试工具
type ConcurrentTest struct {
	t             *testing.T
	numGoroutines int
	results       chan error
	timeout       time.Duration
}

// NewConcurrentTest 创建并发测试工具
func NewConcurrentTest(t *testing.T, numGoroutines int) *ConcurrentTest {
	return &ConcurrentTest{
		t:             t,
		numGoroutines: numGoroutines,
		results:       make(chan error, numGoroutines),
		timeout:       30 * time.Second,
	}
}

// SetTimeout 设置超时时间
func (ct *ConcurrentTest) SetTimeout(timeout time.Duration) {
	ct.timeout = timeout
}

// RunConcurrent 以 numGoroutines 个 goroutine 运行 testFunc，参数为 goroutine 序号
func (ct *ConcurrentTest) RunConcurrent(testFunc func(worker int) error) {
	ctx, cancel := context.WithTimeout(context.Background(), ct.timeout)
	defer cancel()

	for i := 0; i < ct.numGoroutines; i++ {
		go func(worker int) {
			err := testFunc(worker)
			select {
			case ct.results <- err:
			case <-ctx.Done():
			}
		}(i)
	}

	for i := 0; i < ct.numGoroutines; i++ {
		select {
		case err := <-ct.results:
			if err != nil {
				ct.t.Errorf("concurrent test failed: %v", err)
			}
		case <-ctx.Done():
			ct.t.Fatalf("concurrent test timeout after %v: %v", ct.timeout,
				coreerrors.Wrap(ctx.Err(), coreerrors.CodeTimeout, "concurrent test"))
		}
	}
}
