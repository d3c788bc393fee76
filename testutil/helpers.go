// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 调度循环、监控和日志 sink 都在后台 goroutine 中运行，
// 这里的辅助函数负责轮询等待和检查活动日志。
//
//	testutil.AssertEventuallyTrue(t, func() bool { return !sched.Status().Draining }, 5*time.Second)
//	testutil.AssertLogContains(t, sink.Lines(), "Loop stopped")
//
// =============================================================================
package testutil

import (
	"context"
	"strings"
	"testing"
	"time"
)

// pollInterval 轮询条件的间隔
const pollInterval = 10 * time.Millisecond

// TestContextWithTimeout 返回在测试结束时自动取消的上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回一个已经取消的上下文，用于验证提前退出的路径
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// WaitFor 轮询 cond 直到返回 true 或超时，超时前会再检查一次
func WaitFor(cond func() bool, timeout time.Duration) bool {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if cond() {
			return true
		}
		select {
		case <-ticker.C:
		case <-timer.C:
			return cond()
		}
	}
}

// AssertEventuallyTrue 在 timeout 内等待 cond 成立，否则标记失败
func AssertEventuallyTrue(t *testing.T, cond func() bool, timeout time.Duration) {
	t.Helper()
	if !WaitFor(cond, timeout) {
		t.Errorf("condition still false after %v", timeout)
	}
}

// WaitForChannel 从 ch 接收一个值，超时返回零值和 false
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v := <-ch:
		return v, true
	case <-timer.C:
		var zero T
		return zero, false
	}
}

// =============================================================================
// 📜 活动日志
// =============================================================================

// CountLogLines 统计包含 substr 的日志行数
func CountLogLines(lines []string, substr string) int {
	n := 0
	for _, line := range lines {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}

// AssertLogContains 要求至少一行日志包含 substr，失败时打印全部日志
func AssertLogContains(t *testing.T, lines []string, substr string) {
	t.Helper()
	if CountLogLines(lines, substr) > 0 {
		return
	}
	t.Errorf("activity log has no line containing %q (%d lines):\n%s",
		substr, len(lines), strings.Join(lines, "\n"))
}
