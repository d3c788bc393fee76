package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink 接收扩缩容日志
type Sink interface {
	Add(msg string)
}

// Recorder 接收监控指标
type Recorder interface {
	SetMemoryBytes(bytes uint64)
	RecordTierChange(direction string)
	RecordSampleError()
}

// Config 监控配置
type Config struct {
	// Interval 采样间隔
	Interval time.Duration
	// InitialTier 启动时的档位，应与调度器的初始并发一致
	InitialTier int
}

// DefaultConfig 返回默认监控配置
func DefaultConfig() Config {
	return Config{
		Interval:    5 * time.Second,
		InitialTier: 2,
	}
}

// Option 配置 Monitor
type Option func(*Monitor)

// WithLogger 设置 logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger.With(zap.String("component", "monitor"))
		}
	}
}

// WithSink 设置活动日志
func WithSink(sink Sink) Option {
	return func(m *Monitor) {
		m.sink = sink
	}
}

// WithRecorder 设置指标接收方
func WithRecorder(r Recorder) Option {
	return func(m *Monitor) {
		m.recorder = r
	}
}

// =============================================================================
// 📈 Monitor
// =============================================================================

// Monitor 周期采样内存，档位变化时通过 Limits 通道通知调度器
type Monitor struct {
	sampler  Sampler
	policy   Policy
	cfg      Config
	sink     Sink
	logger   *zap.Logger
	recorder Recorder

	mu      sync.Mutex
	tier    int
	last    Sample
	sampled bool

	emitMu sync.Mutex
	limits chan int
}

// New 创建监控器
func New(sampler Sampler, policy Policy, cfg Config, opts ...Option) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.InitialTier < 1 {
		cfg.InitialTier = policy.HighTier
	}

	m := &Monitor{
		sampler: sampler,
		policy:  policy,
		cfg:     cfg,
		logger:  zap.NewNop(),
		tier:    cfg.InitialTier,
		limits:  make(chan int, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Limits 返回档位变化通道。通道只保留最新的值，消费方读到的总是最近一次决定。
func (m *Monitor) Limits() <-chan int {
	return m.limits
}

// Tier 返回当前档位
func (m *Monitor) Tier() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tier
}

// LastSample 返回最近一次成功的采样
func (m *Monitor) LastSample() (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.sampled
}

// Run 每个 Interval 采样一次，直到 ctx 结束
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.logger.Info("memory monitor started",
		zap.Duration("interval", m.cfg.Interval),
		zap.Uint64("high_water_mb", m.policy.HighWaterMB),
		zap.Uint64("low_water_mb", m.policy.LowWaterMB))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("memory monitor stopped")
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check 采样一次并应用策略，返回当前档位以及是否发生变化。
// 采样失败只记录，不改变档位。
func (m *Monitor) Check(ctx context.Context) (int, bool) {
	s, err := m.sampler.Sample(ctx)
	if err != nil {
		m.logger.Debug("memory sample failed", zap.Error(err))
		if m.recorder != nil {
			m.recorder.RecordSampleError()
		}
		return m.Tier(), false
	}

	mb := s.MB()

	m.mu.Lock()
	m.last = s
	m.sampled = true
	current := m.tier
	next := m.policy.Next(current, mb)
	m.tier = next
	m.mu.Unlock()

	if m.recorder != nil {
		m.recorder.SetMemoryBytes(s.Bytes)
	}
	if next == current {
		return current, false
	}

	direction := "up"
	msg := fmt.Sprintf("✅ Low Memory (%dMB). Scaling up to %s.", mb, botsLabel(next))
	if mb > m.policy.HighWaterMB {
		direction = "down"
		msg = fmt.Sprintf("⚠️ High Memory (%dMB). Scaling down to %s.", mb, botsLabel(next))
	}

	if m.sink != nil {
		m.sink.Add(msg)
	}
	m.logger.Info("concurrency tier changed",
		zap.Int("from", current),
		zap.Int("to", next),
		zap.Uint64("usage_mb", mb),
		zap.String("source", s.Source))
	if m.recorder != nil {
		m.recorder.RecordTierChange(direction)
	}

	m.emit(next)
	return next, true
}

// emit 写入最新档位，通道已满时替换旧值
func (m *Monitor) emit(n int) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	select {
	case m.limits <- n:
		return
	default:
	}
	select {
	case <-m.limits:
	default:
	}
	m.limits <- n
}

func botsLabel(n int) string {
	if n == 1 {
		return "1 bot"
	}
	return fmt.Sprintf("%d bots", n)
}
