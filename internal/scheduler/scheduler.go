package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/puppeteerthegoat5-eng/puppeter-godlike/internal/ctxkeys"
	"github.com/puppeteerthegoat5-eng/puppeter-godlike/internal/session"
	"github.com/puppeteerthegoat5-eng/puppeter-godlike/types"
)

const instrumentationName = "github.com/puppeteerthegoat5-eng/puppeter-godlike/internal/scheduler"

// shutdownGrace 取消会话后等待循环退出的时间
const shutdownGrace = 5 * time.Second

// =============================================================================
// 🔌 依赖接口
// =============================================================================

// Runner 执行一次访问，由 *session.Runner 实现
type Runner interface {
	Run(ctx context.Context, job session.Job, logf session.LogFunc) session.Result
}

// Sink 接收活动日志，由 *logsink.Sink 实现
type Sink interface {
	Add(msg string)
}

// Recorder 接收调度指标
type Recorder interface {
	RecordBatch(size, launched int, duration time.Duration)
	RecordSession(outcome string, duration time.Duration)
	SetInFlight(n int)
	SetConcurrencyLimit(n int)
	SetRunning(running bool)
}

// =============================================================================
// ⚙️ 配置
// =============================================================================

// Config 调度配置
type Config struct {
	// DefaultURLs 启动请求未提供 URL 时使用
	DefaultURLs []string

	// InitialLimit 初始并发上限（批大小）
	InitialLimit int

	// Stagger 批内两次启动之间的间隔
	Stagger time.Duration

	// BatchDelay 批次之间的等待
	BatchDelay time.Duration
}

// DefaultConfig 返回默认调度配置
func DefaultConfig() Config {
	return Config{
		DefaultURLs:  []string{"https://example.com/"},
		InitialLimit: 2,
		Stagger:      500 * time.Millisecond,
		BatchDelay:   5 * time.Second,
	}
}

// StartRequest 启动参数
type StartRequest struct {
	URLs     []string
	Proxies  []string
	Headless bool
	// BotCount 仅用于日志和状态展示，批大小始终取当前并发上限
	BotCount int
}

// Option 配置 Scheduler
type Option func(*Scheduler)

// WithLogger 设置 logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger.With(zap.String("component", "scheduler"))
		}
	}
}

// WithRecorder 设置指标接收方
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		s.recorder = r
	}
}

// WithTracer 设置 tracer
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Scheduler) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// =============================================================================
// 🔁 Scheduler
// =============================================================================

type params struct {
	urls     []string
	proxies  []string
	headless bool
	botCount int
}

// runState 只能在持有 Scheduler.mu 时访问
type runState struct {
	running  bool
	limit    int
	cursor   uint64
	looping  bool
	inFlight int
	batches  uint64
	params   params
	// stopCh 由 Stop 关闭，用于打断批间等待；每次 Start 重新创建
	stopCh chan struct{}
}

// Scheduler 循环执行批次：每批并发启动 limit 个会话，全部结束后等待
// BatchDelay 再开始下一批，直到 Stop。
type Scheduler struct {
	runner   Runner
	sink     Sink
	cfg      Config
	logger   *zap.Logger
	recorder Recorder
	tracer   trace.Tracer

	mu       sync.Mutex
	state    runState
	loopDone chan struct{}

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// New 创建调度器，初始状态为 Idle
func New(runner Runner, sink Sink, cfg Config, opts ...Option) *Scheduler {
	if cfg.InitialLimit < 1 {
		cfg.InitialLimit = 1
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())

	s := &Scheduler{
		runner:     runner,
		sink:       sink,
		cfg:        cfg,
		logger:     zap.NewNop(),
		tracer:     otel.Tracer(instrumentationName),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state.limit = cfg.InitialLimit

	if s.recorder != nil {
		s.recorder.SetConcurrencyLimit(s.state.limit)
		s.recorder.SetRunning(false)
	}
	return s
}

// Start 进入 Looping。已在运行时返回 ALREADY_RUNNING；
// 上一轮仍在收尾时复用现有循环，不会出现两个循环。
func (s *Scheduler) Start(req StartRequest) error {
	urls := cleanList(req.URLs)
	if len(urls) == 0 {
		urls = cleanList(s.cfg.DefaultURLs)
	}
	if len(urls) == 0 {
		return types.NewInvalidRequestError("no target URLs configured")
	}
	proxies := cleanList(req.Proxies)

	s.mu.Lock()
	if s.baseCtx.Err() != nil {
		s.mu.Unlock()
		return types.NewError(types.ErrServiceUnavailable, "scheduler is shut down")
	}
	if s.state.running {
		s.mu.Unlock()
		return types.NewAlreadyRunningError()
	}
	s.state.running = true
	s.state.params = params{
		urls:     urls,
		proxies:  proxies,
		headless: req.Headless,
		botCount: req.BotCount,
	}
	s.state.stopCh = make(chan struct{})

	spawn := !s.state.looping
	var done chan struct{}
	if spawn {
		s.state.looping = true
		done = make(chan struct{})
		s.loopDone = done
	}
	s.mu.Unlock()

	s.sink.Add(fmt.Sprintf("Starting Loop: Initial target %d bots.", req.BotCount))
	s.logger.Info("scheduler started",
		zap.Int("urls", len(urls)),
		zap.Int("proxies", len(proxies)),
		zap.Bool("headless", req.Headless),
		zap.Bool("reused_loop", !spawn))
	if s.recorder != nil {
		s.recorder.SetRunning(true)
	}

	if spawn {
		go s.loop(done)
	}
	return nil
}

// Stop 进入 Idle 并打断批间等待，正在执行的会话不受影响。
// 已是 Idle 时返回 false。
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	if !s.state.running {
		s.mu.Unlock()
		return false
	}
	s.state.running = false
	close(s.state.stopCh)
	s.mu.Unlock()

	s.sink.Add("Stopping loop...")
	s.sink.Add("Loop stopped. Active bots will finish their session shortly.")
	s.logger.Info("scheduler stopped")
	if s.recorder != nil {
		s.recorder.SetRunning(false)
	}
	return true
}

// AdjustLimit 设置并发上限（最小为 1），从下一批开始生效
func (s *Scheduler) AdjustLimit(n int) {
	if n < 1 {
		n = 1
	}

	s.mu.Lock()
	old := s.state.limit
	s.state.limit = n
	s.mu.Unlock()

	if old == n {
		return
	}
	s.logger.Info("concurrency limit changed", zap.Int("from", old), zap.Int("to", n))
	if s.recorder != nil {
		s.recorder.SetConcurrencyLimit(n)
	}
}

// WatchLimits 应用监控发出的并发上限，直到 ctx 结束或通道关闭
func (s *Scheduler) WatchLimits(ctx context.Context, limits <-chan int) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-limits:
			if !ok {
				return
			}
			s.AdjustLimit(n)
		}
	}
}

// Status 返回状态快照
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:         StateIdle,
		CurrentLimit:  s.state.limit,
		InFlight:      s.state.inFlight,
		Cursor:        s.state.cursor,
		Batches:       s.state.batches,
		RequestedBots: s.state.params.botCount,
		Headless:      s.state.params.headless,
		URLs:          len(s.state.params.urls),
		Proxies:       len(s.state.params.proxies),
	}
	if s.state.running {
		st.State = StateLooping
	} else {
		st.Draining = s.state.looping || s.state.inFlight > 0
	}
	return st
}

// Shutdown 停止循环并等待当前批次结束；ctx 到期后取消所有会话
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.Stop()

	s.mu.Lock()
	done := s.loopDone
	looping := s.state.looping
	s.mu.Unlock()

	if !looping || done == nil {
		s.baseCancel()
		return nil
	}

	select {
	case <-done:
		s.baseCancel()
		return nil
	case <-ctx.Done():
	}

	s.logger.Warn("shutdown deadline reached, cancelling active sessions")
	s.baseCancel()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		s.logger.Error("scheduler loop did not exit after cancellation")
	}
	return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
}

// =============================================================================
// 🔧 循环
// =============================================================================

func (s *Scheduler) loop(done chan struct{}) {
	defer close(done)

	for {
		n, p, stopCh, ok := s.nextBatch()
		if !ok {
			return
		}

		s.runBatch(n, p, stopCh)

		// 收尾期间可能被重新 Start，取最新的 stopCh
		s.mu.Lock()
		running := s.state.running
		stopCh = s.state.stopCh
		s.mu.Unlock()
		if !running {
			continue
		}

		s.sink.Add(fmt.Sprintf("Batch finished. Waiting %s before next batch...", formatDelay(s.cfg.BatchDelay)))
		s.pause(stopCh, s.cfg.BatchDelay)
	}
}

// nextBatch 在开始新批次前读取一次并发上限；不再运行时在同一临界区内
// 清除 looping，保证 Start 能看到并重新拉起循环
func (s *Scheduler) nextBatch() (int, params, chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.running || s.baseCtx.Err() != nil {
		s.state.looping = false
		return 0, params{}, nil, false
	}
	s.state.batches++
	return s.state.limit, s.state.params, s.state.stopCh, true
}

func (s *Scheduler) runBatch(n int, p params, stopCh chan struct{}) {
	start := time.Now()
	batchID := uuid.NewString()
	ctx := ctxkeys.WithBatchID(s.baseCtx, batchID)
	ctx, span := s.tracer.Start(ctx, "scheduler.batch", trace.WithAttributes(
		attribute.String("batch.id", batchID),
		attribute.Int("batch.size", n),
	))
	defer span.End()

	logger := s.logger.With(zap.String("batch_id", batchID))
	s.sink.Add(fmt.Sprintf("--- Starting New Batch (%d Bots) ---", n))

	var g errgroup.Group
	g.SetLimit(n)

	launched := 0
	for i := 0; i < n; i++ {
		if i > 0 && !s.pause(stopCh, s.cfg.Stagger) {
			break
		}
		job, ok := s.claim(i, p)
		if !ok {
			break
		}
		launched++

		g.Go(func() error {
			s.execute(ctx, job, logger)
			return nil
		})
	}

	_ = g.Wait()

	elapsed := time.Since(start)
	span.SetAttributes(attribute.Int("batch.launched", launched))
	logger.Info("batch finished",
		zap.Int("size", n),
		zap.Int("launched", launched),
		zap.Duration("duration", elapsed))
	if s.recorder != nil {
		s.recorder.RecordBatch(n, launched, elapsed)
	}
}

// claim 选择第 i 个会话的目标；已停止时返回 false
func (s *Scheduler) claim(i int, p params) (session.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.running {
		return session.Job{}, false
	}

	job := session.Job{
		BotID:    i + 1,
		URL:      p.urls[s.state.cursor%uint64(len(p.urls))],
		Headless: p.headless,
	}
	s.state.cursor++
	if len(p.proxies) > 0 {
		job.Proxy = p.proxies[i%len(p.proxies)]
	}
	s.state.inFlight++
	if s.recorder != nil {
		s.recorder.SetInFlight(s.state.inFlight)
	}
	return job, true
}

func (s *Scheduler) execute(ctx context.Context, job session.Job, logger *zap.Logger) {
	var res session.Result
	defer func() {
		if p := recover(); p != nil {
			s.sink.Add(fmt.Sprintf("Bot-%d Error: %v", job.BotID, p))
			res = session.Result{Job: job, Err: types.NewSessionFatalError(fmt.Sprintf("panic: %v", p), nil)}
		}
		s.finish(res, logger)
	}()

	res = s.runner.Run(ctx, job, s.sink.Add)
}

func (s *Scheduler) finish(res session.Result, logger *zap.Logger) {
	s.mu.Lock()
	s.state.inFlight--
	inFlight := s.state.inFlight
	s.mu.Unlock()

	fields := []zap.Field{
		zap.Int("bot_id", res.Job.BotID),
		zap.String("url", res.Job.URL),
		zap.String("outcome", res.Outcome()),
		zap.Duration("duration", res.Duration),
	}
	if res.Err != nil {
		logger.Warn("session failed", append(fields, zap.Error(res.Err))...)
	} else {
		logger.Debug("session finished", append(fields, zap.Int("step_errors", res.StepErrors))...)
	}

	if s.recorder != nil {
		s.recorder.SetInFlight(inFlight)
		s.recorder.RecordSession(res.Outcome(), res.Duration)
	}
}

// pause 等待 d；被 Stop 或关闭打断时返回 false
func (s *Scheduler) pause(stopCh <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-stopCh:
			return false
		case <-s.baseCtx.Done():
			return false
		default:
			return true
		}
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-stopCh:
		return false
	case <-s.baseCtx.Done():
		return false
	}
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func formatDelay(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%ds", int(d/time.Second))
	}
	return d.String()
}
