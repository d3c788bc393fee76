// MockRunner 的会话执行器测试模拟实现。
//
// 支持固定延迟、手动放行与按 URL 注入失败。
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/puppeteerthegoat5-eng/puppeter-godlike/internal/session"
	"github.com/puppeteerthegoat5-eng/puppeter-godlike/types"
)

// MockRunner 记录调用并模拟一次访问
type MockRunner struct {
	mu sync.Mutex

	delay   time.Duration
	gate    chan struct{}
	errs    map[string]error
	started chan session.Job

	calls     []session.Job
	active    int
	maxActive int
}

// NewMockRunner 创建 MockRunner，默认立即完成
func NewMockRunner() *MockRunner {
	return &MockRunner{errs: make(map[string]error)}
}

// WithDelay 每次访问耗时 d
func (m *MockRunner) WithDelay(d time.Duration) *MockRunner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithGate 访问阻塞直到 gate 关闭（或 ctx 取消）
func (m *MockRunner) WithGate(gate chan struct{}) *MockRunner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = gate
	return m
}

// WithURLError 访问该 URL 时返回导航错误
func (m *MockRunner) WithURLError(url string, err error) *MockRunner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[url] = err
	return m
}

// WithStarted 每次访问开始时把 Job 发送到 ch
func (m *MockRunner) WithStarted(ch chan session.Job) *MockRunner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = ch
	return m
}

// Run 实现 scheduler.Runner
func (m *MockRunner) Run(ctx context.Context, job session.Job, logf session.LogFunc) session.Result {
	start := time.Now()

	m.mu.Lock()
	m.calls = append(m.calls, job)
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
	delay, gate, started := m.delay, m.gate, m.started
	navErr := m.errs[job.URL]
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()

	log := func(format string, args ...any) {
		if logf != nil {
			logf(fmt.Sprintf("[Bot-%d] ", job.BotID) + fmt.Sprintf(format, args...))
		}
	}
	log("Starting... Target: %s, Proxy: %s, Headless: %v", job.URL, job.ProxyLabel(), job.Headless)

	if started != nil {
		select {
		case started <- job:
		case <-ctx.Done():
		}
	}

	res := session.Result{Job: job}
	if navErr != nil {
		log("Navigation FAILED: %v", navErr)
		res.Err = types.NewNavigationError(job.URL, navErr)
		res.Duration = time.Since(start)
		return res
	}

	switch {
	case gate != nil:
		select {
		case <-gate:
		case <-ctx.Done():
			res.Err = types.NewSessionFatalError("session interrupted", ctx.Err())
		}
	case delay > 0:
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			res.Err = types.NewSessionFatalError("session interrupted", ctx.Err())
		}
		t.Stop()
	}

	if res.Err == nil {
		log("Session finished. Closing.")
	}
	res.Duration = time.Since(start)
	return res
}

// Calls 返回所有调用的 Job
func (m *MockRunner) Calls() []session.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]session.Job(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockRunner) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Active 返回正在执行的访问数
func (m *MockRunner) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// MaxActive 返回观察到的最大并发
func (m *MockRunner) MaxActive() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxActive
}
