package session

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/puppeteerthegoat5-eng/puppeter-godlike/internal/ctxkeys"
	"github.com/puppeteerthegoat5-eng/puppeter-godlike/types"
)

const instrumentationName = "github.com/puppeteerthegoat5-eng/puppeter-godlike/internal/session"

// 截图的独立超时，导航超时后页面上下文仍可用
const screenshotTimeout = 10 * time.Second

// Outcome labels used for metrics and spans.
const (
	OutcomeSuccess    = "success"
	OutcomePartial    = "partial"
	OutcomeNavigation = "navigation_failed"
	OutcomeFatal      = "fatal"
)

// =============================================================================
// 🧭 会话类型
// =============================================================================

// Job 描述一次访问
type Job struct {
	// BotID 批内编号，从 1 开始，跨批次复用
	BotID    int    `json:"botId"`
	URL      string `json:"url"`
	Proxy    string `json:"proxy,omitempty"`
	Headless bool   `json:"headless"`
}

// ProxyLabel 返回日志中显示的代理
func (j Job) ProxyLabel() string {
	if j.Proxy == "" {
		return "None"
	}
	return j.Proxy
}

// LogFunc 接收带 [Bot-N] 前缀的进度行
type LogFunc func(msg string)

// Result 是一次访问的结果。调度器只把它当作完成信号，用于记录和计数。
type Result struct {
	Job        Job
	Err        error
	StepErrors int
	Duration   time.Duration
	// Screenshot 导航失败时保存的截图路径
	Screenshot string
}

// Outcome 返回结果分类
func (r Result) Outcome() string {
	switch {
	case r.Err == nil && r.StepErrors == 0:
		return OutcomeSuccess
	case r.Err == nil:
		return OutcomePartial
	case types.IsErrorCode(r.Err, types.ErrNavigationFailed):
		return OutcomeNavigation
	default:
		return OutcomeFatal
	}
}

// Config 会话编排参数
type Config struct {
	NavigationTimeout time.Duration
	SettleDelay       time.Duration

	// 滚动距离范围 [ScrollMin, ScrollMax)
	ScrollMin int
	ScrollMax int

	PostScrollDelay time.Duration
	PostClickDelay  time.Duration

	// 结束前停留 [DwellMin, DwellMax)
	DwellMin time.Duration
	DwellMax time.Duration

	ViewportWidth  int
	ViewportHeight int

	UserAgent            string
	AcceptLanguage       string
	Accept               string
	BlockedResourceTypes []string

	ScreenshotOnError bool
	ScreenshotDir     string

	// ExecPath Chrome 可执行文件，为空时自动查找
	ExecPath string
}

// DefaultConfig 返回默认会话配置
func DefaultConfig() Config {
	return Config{
		NavigationTimeout:    60 * time.Second,
		SettleDelay:          3 * time.Second,
		ScrollMin:            200,
		ScrollMax:            1200,
		PostScrollDelay:      2 * time.Second,
		PostClickDelay:       2 * time.Second,
		DwellMin:             5 * time.Second,
		DwellMax:             10 * time.Second,
		ViewportWidth:        1920,
		ViewportHeight:       1080,
		AcceptLanguage:       "en-US,en;q=0.9",
		BlockedResourceTypes: []string{"image", "media", "font"},
		ScreenshotOnError:    true,
		ScreenshotDir:        ".",
	}
}

// LaunchOptions 每次会话的浏览器参数
type LaunchOptions struct {
	Headless bool
	Proxy    string
}

// Launcher 启动隔离的浏览器上下文
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Page, error)
}

// Page 是会话需要的页面能力
type Page interface {
	Navigate(ctx context.Context, url string) error
	ScrollBy(ctx context.Context, dy int) error
	MoveAndClick(ctx context.Context, x, y int) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// SleepFunc 可取消的等待
type SleepFunc func(ctx context.Context, d time.Duration) error

// =============================================================================
// 🏃 Runner
// =============================================================================

// Option 配置 Runner
type Option func(*Runner)

// WithLogger 设置 logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger.With(zap.String("component", "session"))
		}
	}
}

// WithSleep 替换等待实现
func WithSleep(sleep SleepFunc) Option {
	return func(r *Runner) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// WithRand 使用固定的随机源
func WithRand(rng *rand.Rand) Option {
	return func(r *Runner) {
		r.rng = rng
	}
}

// WithClock 替换时间源
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithTracer 设置 tracer，默认使用全局 TracerProvider
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// Runner 执行单次访问：启动 → 导航 → 滚动/点击 → 停留 → 关闭
type Runner struct {
	launcher Launcher
	cfg      Config
	logger   *zap.Logger
	sleep    SleepFunc
	now      func() time.Time
	tracer   trace.Tracer

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewRunner 创建 Runner
func NewRunner(launcher Launcher, cfg Config, opts ...Option) *Runner {
	r := &Runner{
		launcher: launcher,
		cfg:      cfg,
		logger:   zap.NewNop(),
		sleep:    sleepContext,
		now:      time.Now,
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cfg.NavigationTimeout <= 0 {
		r.cfg.NavigationTimeout = DefaultConfig().NavigationTimeout
	}
	return r
}

// Config 返回生效的配置
func (r *Runner) Config() Config {
	return r.cfg
}

// Run 执行一次访问。任何失败都记录到 logf 并体现在 Result 中，不会 panic 或向上抛出。
func (r *Runner) Run(ctx context.Context, job Job, logf LogFunc) (res Result) {
	start := r.now()
	res.Job = job

	prefix := fmt.Sprintf("[Bot-%d] ", job.BotID)
	log := func(format string, args ...any) {
		if logf != nil {
			logf(prefix + fmt.Sprintf(format, args...))
		}
	}

	ctx = ctxkeys.WithBotID(ctx, job.BotID)
	ctx, span := r.tracer.Start(ctx, "session.visit", trace.WithAttributes(
		attribute.Int("bot.id", job.BotID),
		attribute.String("visit.url", job.URL),
		attribute.Bool("visit.headless", job.Headless),
		attribute.Bool("visit.proxied", job.Proxy != ""),
	))

	var page Page
	defer func() {
		if p := recover(); p != nil {
			log("CRITICAL ERROR: %v", p)
			res.Err = types.NewSessionFatalError(fmt.Sprintf("panic: %v", p), nil)
			r.logger.Error("session panicked",
				zap.Int("bot_id", job.BotID),
				zap.Any("panic", p),
				zap.Stack("stack"))
		}
		if page != nil {
			if err := page.Close(); err != nil {
				r.logger.Debug("page close failed", zap.Int("bot_id", job.BotID), zap.Error(err))
			}
		}

		res.Duration = r.now().Sub(start)
		span.SetAttributes(
			attribute.String("visit.outcome", res.Outcome()),
			attribute.Int("visit.step_errors", res.StepErrors),
		)
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
		}
		span.End()
	}()

	log("Starting... Target: %s, Proxy: %s, Headless: %v", job.URL, job.ProxyLabel(), job.Headless)

	var err error
	page, err = r.launcher.Launch(ctx, LaunchOptions{Headless: job.Headless, Proxy: job.Proxy})
	if err != nil {
		log("CRITICAL ERROR: %v", err)
		res.Err = types.NewSessionFatalError("browser launch failed", err)
		return res
	}

	log("Navigating to %s...", job.URL)
	navCtx, cancel := context.WithTimeout(ctx, r.cfg.NavigationTimeout)
	err = page.Navigate(navCtx, job.URL)
	cancel()
	if err != nil {
		log("Navigation FAILED: %v", err)
		res.Err = types.NewNavigationError(job.URL, err)
		if job.Headless && r.cfg.ScreenshotOnError {
			res.Screenshot = r.captureError(ctx, page, job, log)
		}
		return res
	}
	log("Page loaded.")

	if err := r.sleep(ctx, r.cfg.SettleDelay); err != nil {
		return r.interrupted(res, err, log)
	}

	dy := r.intRange(r.cfg.ScrollMin, r.cfg.ScrollMax)
	if err := page.ScrollBy(ctx, dy); err != nil {
		log("Scroll failed: %v", err)
		res.StepErrors++
	} else {
		log("Scrolled %dpx.", dy)
	}

	if err := r.sleep(ctx, r.cfg.PostScrollDelay); err != nil {
		return r.interrupted(res, err, log)
	}

	x := r.intRange(0, r.cfg.ViewportWidth)
	y := r.intRange(0, r.cfg.ViewportHeight)
	log("Clicking random coordinate (%d, %d)...", x, y)
	// 点击后的等待只在点击成功时发生
	if err := page.MoveAndClick(ctx, x, y); err != nil {
		log("Click failed: %v", err)
		res.StepErrors++
	} else if err := r.sleep(ctx, r.cfg.PostClickDelay); err != nil {
		return r.interrupted(res, err, log)
	}

	dwell := r.durationRange(r.cfg.DwellMin, r.cfg.DwellMax)
	log("Waiting %dms before finishing session...", dwell.Milliseconds())
	if err := r.sleep(ctx, dwell); err != nil {
		return r.interrupted(res, err, log)
	}

	log("Session finished. Closing.")
	return res
}

// =============================================================================
// 🔧 内部方法
// =============================================================================

func (r *Runner) interrupted(res Result, err error, log func(string, ...any)) Result {
	log("CRITICAL ERROR: %v", err)
	res.Err = types.NewSessionFatalError("session interrupted", err)
	return res
}

func (r *Runner) captureError(ctx context.Context, page Page, job Job, log func(string, ...any)) string {
	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), screenshotTimeout)
	defer cancel()

	data, err := page.Screenshot(shotCtx)
	if err != nil {
		log("Failed to take error screenshot: %v", err)
		return ""
	}

	name := fmt.Sprintf("error_bot_%d_%d.png", job.BotID, r.now().UnixMilli())
	path := filepath.Join(r.cfg.ScreenshotDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log("Failed to save error screenshot: %v", err)
		return ""
	}
	log("Saved error screenshot %s", name)
	return path
}

// intRange 返回 [lo, hi) 内的随机整数
func (r *Runner) intRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	n := hi - lo
	if r.rng == nil {
		return lo + rand.IntN(n)
	}
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return lo + r.rng.IntN(n)
}

func (r *Runner) durationRange(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	n := int64(hi - lo)
	if r.rng == nil {
		return lo + time.Duration(rand.Int64N(n))
	}
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return lo + time.Duration(r.rng.Int64N(n))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
