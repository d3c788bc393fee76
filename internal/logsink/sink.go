package logsink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultCapacity 内存中保留的活动日志行数
const DefaultCapacity = 1000

// mirrorWriteTimeout 单次镜像写入的超时
const mirrorWriteTimeout = 5 * time.Second

// =============================================================================
// 📜 活动日志
// =============================================================================

// Config 活动日志配置
type Config struct {
	// 内存环形缓冲的容量，超出后最早的行被淘汰
	Capacity int `yaml:"capacity" json:"capacity"`

	// 镜像写入队列长度，队列满时丢弃
	QueueSize int `yaml:"queue_size" json:"queue_size"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Capacity:  DefaultCapacity,
		QueueSize: 256,
	}
}

// Mirror 是活动日志的持久化镜像，写入为尽力而为
type Mirror interface {
	Name() string
	Write(ctx context.Context, line string) error
	Close() error
}

// Recorder 接收活动日志的指标事件
type Recorder interface {
	RecordLogLine()
	RecordMirrorError(mirror string)
	RecordMirrorDrop()
}

// Option 配置 Sink
type Option func(*Sink)

// WithLogger 设置 zap logger，每行活动日志同时以 info 级别输出
func WithLogger(logger *zap.Logger) Option {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger.With(zap.String("component", "logsink"))
		}
	}
}

// WithMirror 追加一个镜像
func WithMirror(m Mirror) Option {
	return func(s *Sink) {
		if m != nil {
			s.mirrors = append(s.mirrors, m)
		}
	}
}

// WithClock 替换时间源
func WithClock(now func() time.Time) Option {
	return func(s *Sink) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRecorder 设置指标接收方
func WithRecorder(r Recorder) Option {
	return func(s *Sink) {
		s.recorder = r
	}
}

// Sink 有界的活动日志：内存环形缓冲 + 异步镜像 + 实时订阅
type Sink struct {
	mu       sync.Mutex
	buf      []string
	start    int
	size     int
	closed   bool
	subs     map[int]chan string
	nextSub  int
	queue    chan string
	errCh    chan error
	done     chan struct{}
	mirrors  []Mirror
	now      func() time.Time
	logger   *zap.Logger
	recorder Recorder
}

// New 创建活动日志。存在镜像时启动后台写入 goroutine，需调用 Close 释放。
func New(cfg Config, opts ...Option) *Sink {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	s := &Sink{
		buf:    make([]string, cfg.Capacity),
		subs:   make(map[int]chan string),
		errCh:  make(chan error, 16),
		done:   make(chan struct{}),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if len(s.mirrors) > 0 {
		s.queue = make(chan string, cfg.QueueSize)
		go s.drain()
	} else {
		close(s.done)
	}

	return s
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Add 追加一行，格式为 "[HH:MM:SS] msg"
func (s *Sink) Add(msg string) {
	line := fmt.Sprintf("[%s] %s", s.now().Format("15:04:05"), msg)

	s.mu.Lock()
	capacity := len(s.buf)
	if s.size < capacity {
		s.buf[(s.start+s.size)%capacity] = line
		s.size++
	} else {
		s.buf[s.start] = line
		s.start = (s.start + 1) % capacity
	}

	// 在锁内投递，保证镜像与订阅者看到的顺序与内存一致
	if s.queue != nil && !s.closed {
		select {
		case s.queue <- line:
		default:
			if s.recorder != nil {
				s.recorder.RecordMirrorDrop()
			}
		}
	}
	for _, ch := range s.subs {
		select {
		case ch <- line:
		default:
		}
	}
	s.mu.Unlock()

	s.logger.Info(msg)
	if s.recorder != nil {
		s.recorder.RecordLogLine()
	}
}

// Addf 格式化后追加
func (s *Sink) Addf(format string, args ...any) {
	s.Add(fmt.Sprintf(format, args...))
}

// Entries 返回当前所有行的副本，最早的在前
func (s *Sink) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.buf[(s.start+i)%len(s.buf)]
	}
	return out
}

// Len 返回当前行数
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Capacity 返回容量
func (s *Sink) Capacity() int {
	return len(s.buf)
}

// Subscribe 订阅新行。跟不上的订阅者会丢行，不会阻塞写入方。
// 返回的函数取消订阅并关闭通道，可重复调用。
func (s *Sink) Subscribe(buffer int) (<-chan string, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan string, buffer)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
}

// Errors 返回镜像写入错误。通道满时新的错误被丢弃。
func (s *Sink) Errors() <-chan error {
	return s.errCh
}

// Close 停止接收镜像写入，等待队列写完后关闭所有镜像
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.queue != nil {
		close(s.queue)
	}
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()

	var errs []error
	select {
	case <-s.done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("drain mirror queue: %w", ctx.Err()))
	}

	for _, m := range s.mirrors {
		if err := m.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s mirror: %w", m.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// 🔧 内部方法
// =============================================================================

func (s *Sink) drain() {
	defer close(s.done)

	for line := range s.queue {
		for _, m := range s.mirrors {
			ctx, cancel := context.WithTimeout(context.Background(), mirrorWriteTimeout)
			err := m.Write(ctx, line)
			cancel()
			if err != nil {
				s.report(m.Name(), err)
			}
		}
	}
}

func (s *Sink) report(mirror string, err error) {
	if s.recorder != nil {
		s.recorder.RecordMirrorError(mirror)
	}
	select {
	case s.errCh <- fmt.Errorf("%s mirror: %w", mirror, err):
	default:
	}
}
