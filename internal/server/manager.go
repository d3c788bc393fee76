package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/netutil"
)

// =============================================================================
// 🌐 HTTP 服务器管理器
// =============================================================================

// Manager 管理一个 http.Server 的监听、关闭与异常退出通知。
// 控制面和 metrics 端口各用一个 Manager。
type Manager struct {
	srv    *http.Server
	cfg    Config
	logger *zap.Logger
	errCh  chan error

	mu       sync.RWMutex
	listener net.Listener
	closed   bool
}

// Config 监听与超时参数，由 config.ServerConfig 映射而来
type Config struct {
	// Addr 形如 ":3000"，端口为 0 时由系统分配
	Addr string

	ReadTimeout time.Duration
	// WriteTimeout 对日志流不生效，日志流会在升级前清除连接的截止时间
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// ShutdownTimeout 在调用方 ctx 之上再加的关闭时限，0 表示只看 ctx
	ShutdownTimeout time.Duration

	// MaxConnections 同时接受的连接上限，0 表示不限制
	MaxConnections int
}

// DefaultConfig 返回控制面的默认参数
func DefaultConfig() Config {
	return Config{
		Addr:            ":3000",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     2 * time.Minute,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 30 * time.Second,
	}
}

// NewManager 创建 Manager，此时还未监听
func NewManager(handler http.Handler, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		srv: &http.Server{
			Addr:           cfg.Addr,
			Handler:        handler,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			IdleTimeout:    cfg.IdleTimeout,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
		cfg:    cfg,
		logger: logger.With(zap.String("component", "http_server"), zap.String("addr", cfg.Addr)),
		errCh:  make(chan error, 1),
	}
}

// =============================================================================
// 🎯 生命周期
// =============================================================================

// Start 绑定端口后立即返回，Serve 在后台 goroutine 中运行。
// 端口被占用等错误同步返回，之后的异常通过 Errors 通知。
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closed:
		return errors.New("server is closed")
	case m.listener != nil:
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", m.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.cfg.Addr, err)
	}
	if m.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, m.cfg.MaxConnections)
	}
	m.listener = ln

	m.logger.Info("HTTP server listening",
		zap.String("listen", ln.Addr().String()),
		zap.Int("max_connections", m.cfg.MaxConnections))

	go func() {
		err := m.srv.Serve(ln)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		m.logger.Error("HTTP server exited", zap.Error(err))
		select {
		case m.errCh <- err:
		default:
		}
	}()
	return nil
}

// Shutdown 停止接受新连接并等待进行中的请求结束，可重复调用
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
		defer cancel()
	}

	m.logger.Info("HTTP server shutting down")
	err := m.srv.Shutdown(ctx)
	m.listener = nil
	if err != nil {
		m.logger.Error("HTTP server shutdown incomplete", zap.Error(err))
		return fmt.Errorf("shutdown %s: %w", m.cfg.Addr, err)
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// RegisterOnShutdown 注册关闭时的回调，用于通知长连接（如日志流）退出
func (m *Manager) RegisterOnShutdown(f func()) {
	m.srv.RegisterOnShutdown(f)
}

// WaitForShutdown 阻塞直到收到 SIGINT/SIGTERM、服务器异常退出或 ctx 结束。
// 只负责等待，关闭顺序由调用方决定。
func (m *Manager) WaitForShutdown(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		m.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-m.errCh:
		if err != nil {
			m.logger.Error("server exited unexpectedly", zap.Error(err))
		}
	case <-ctx.Done():
	}
}

// Errors 返回 Serve 的异常退出错误，最多缓存一个
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// =============================================================================
// 🔧 辅助方法
// =============================================================================

// Addr 返回配置的监听地址
func (m *Manager) Addr() string {
	return m.cfg.Addr
}

// ListenAddr 返回实际监听地址，未启动时为空
func (m *Manager) ListenAddr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// IsRunning 检查服务器是否运行中
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}
