package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/puppeteerthegoat5-eng/puppeter-godlike/api/handlers"
	"github.com/puppeteerthegoat5-eng/puppeter-godlike/config"
	"github.com/puppeteerthegoat5-eng/puppeter-godlike/internal/logsink"
	"github.com/puppeteerthegoat5-eng/puppeter-godlike/internal/metrics"
	"github.com/puppeteerthegoat5-eng/puppeter-godlike/internal/monitor"
	"github.com/puppeteerthegoat5-eng/puppeter-godlike/internal/scheduler"
	"github.com/puppeteerthegoat5-eng/puppeter-godlike/internal/server"
	"github.com/puppeteerthegoat5-eng/puppeter-godlike/internal/session"
	"github.com/puppeteerthegoat5-eng/puppeter-godlike/internal/telemetry"
	"github.com/puppeteerthegoat5-eng/puppeter-godlike/web"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 持有所有组件，负责按顺序启动与关闭
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 领域组件
	sink        *logsink.Sink
	redisMirror *logsink.RedisMirror
	scheduler   *scheduler.Scheduler
	monitor     *monitor.Monitor

	// Handlers
	healthHandler  *handlers.HealthHandler
	controlHandler *handlers.ControlHandler
	streamHandler  *handlers.LogStreamHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// 后台 goroutine（监控、并发上限监听、镜像错误）的生命周期
	bgCancel context.CancelFunc
	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc

	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, providers *telemetry.Providers) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		otel:   providers,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	bgCtx, bgCancel := context.WithCancel(context.Background())
	s.bgCancel = bgCancel

	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("godlike", s.logger)

	// 2. 活动日志
	s.initLogSink(bgCtx)

	// 3. 调度器与内存监控
	s.initScheduler()
	s.initMonitor(bgCtx)

	// 4. 初始化 Handlers
	s.initHandlers()

	// 5. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 6. 启动 Metrics 服务器
	if s.cfg.Server.MetricsPort > 0 {
		if err := s.startMetricsServer(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	s.sink.Addf("Server started on port %d", s.cfg.Server.HTTPPort)
	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("monitor_enabled", s.monitor != nil),
	)

	// 7. 自动启动
	if s.cfg.Scheduler.AutoStart {
		s.autoStart()
	}
	return nil
}

func (s *Server) autoStart() {
	s.sink.Add("Auto-starting bots with default URLs...")
	err := s.scheduler.Start(scheduler.StartRequest{
		URLs:     s.cfg.Scheduler.DefaultURLs,
		BotCount: s.cfg.Scheduler.DefaultBotCount,
		Headless: s.cfg.Scheduler.DefaultHeadless,
	})
	if err != nil {
		s.logger.Warn("auto-start failed", zap.Error(err))
	}
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initLogSink 创建活动日志及其镜像。镜像不可用时只告警，内存日志照常工作。
func (s *Server) initLogSink(ctx context.Context) {
	lc := s.cfg.LogSink
	opts := []logsink.Option{
		logsink.WithLogger(s.logger),
		logsink.WithRecorder(s.metricsCollector),
	}

	if lc.FilePath != "" {
		fm, err := logsink.OpenFileMirror(lc.FilePath)
		if err != nil {
			s.logger.Warn("activity log file disabled", zap.String("path", lc.FilePath), zap.Error(err))
		} else {
			opts = append(opts, logsink.WithMirror(fm))
		}
	}

	if lc.Redis.Enabled {
		rm, err := logsink.NewRedisMirror(logsink.RedisConfig{
			Addr:     lc.Redis.Addr,
			Password: lc.Redis.Password,
			DB:       lc.Redis.DB,
			Key:      lc.Redis.Key,
			MaxLen:   lc.Capacity,
			PoolSize: lc.Redis.PoolSize,
			TLS:      lc.Redis.TLS,
		}, s.logger)
		if err != nil {
			s.logger.Warn("redis mirror disabled", zap.String("addr", lc.Redis.Addr), zap.Error(err))
		} else {
			s.redisMirror = rm
			opts = append(opts, logsink.WithMirror(rm))
		}
	}

	s.sink = logsink.New(logsink.Config{
		Capacity:  lc.Capacity,
		QueueSize: lc.QueueSize,
	}, opts...)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-s.sink.Errors():
				s.logger.Warn("activity log mirror write failed", zap.Error(err))
			}
		}
	}()
}

func sessionConfig(c config.SessionConfig) session.Config {
	return session.Config{
		NavigationTimeout:    c.NavigationTimeout,
		SettleDelay:          c.SettleDelay,
		ScrollMin:            c.ScrollMin,
		ScrollMax:            c.ScrollMax,
		PostScrollDelay:      c.PostScrollDelay,
		PostClickDelay:       c.PostClickDelay,
		DwellMin:             c.DwellMin,
		DwellMax:             c.DwellMax,
		ViewportWidth:        c.ViewportWidth,
		ViewportHeight:       c.ViewportHeight,
		UserAgent:            c.UserAgent,
		AcceptLanguage:       c.AcceptLanguage,
		Accept:               c.Accept,
		BlockedResourceTypes: c.BlockedResourceTypes,
		ScreenshotOnError:    c.ScreenshotOnError,
		ScreenshotDir:        c.ScreenshotDir,
		ExecPath:             c.ExecPath,
	}
}

func (s *Server) initScheduler() {
	sessCfg := sessionConfig(s.cfg.Session)
	runner := session.NewRunner(
		session.NewChromeLauncher(sessCfg, s.logger),
		sessCfg,
		session.WithLogger(s.logger),
		session.WithTracer(otel.Tracer("godlike/session")),
	)

	sc := s.cfg.Scheduler
	s.scheduler = scheduler.New(runner, s.sink, scheduler.Config{
		DefaultURLs:  sc.DefaultURLs,
		InitialLimit: sc.InitialLimit,
		Stagger:      sc.Stagger,
		BatchDelay:   sc.BatchDelay,
	},
		scheduler.WithLogger(s.logger),
		scheduler.WithRecorder(s.metricsCollector),
		scheduler.WithTracer(otel.Tracer("godlike/scheduler")),
	)

	if err := s.otel.ObserveLoop(nil, func() telemetry.LoopStats {
		st := s.scheduler.Status()
		return telemetry.LoopStats{
			InFlight:     st.InFlight,
			CurrentLimit: st.CurrentLimit,
			Running:      st.Running(),
		}
	}); err != nil {
		s.logger.Warn("failed to register loop gauges", zap.Error(err))
	}
}

// initMonitor 优先读取 cgroup，读不到时退回 procfs 的整机内存
func (s *Server) initMonitor(ctx context.Context) {
	mc := s.cfg.Monitor
	if !mc.Enabled {
		s.logger.Info("memory monitor disabled")
		return
	}

	var sampler monitor.Sampler = monitor.NewCgroupSampler(mc.CgroupPaths...)
	host, err := monitor.NewHostSampler(mc.ProcPath)
	if err != nil {
		s.logger.Warn("procfs sampler unavailable, using cgroup only", zap.Error(err))
	} else {
		sampler = monitor.NewFallbackSampler(sampler, host, s.logger)
	}

	s.monitor = monitor.New(sampler, monitor.Policy{
		HighWaterMB: uint64(mc.HighWaterMB),
		LowWaterMB:  uint64(mc.LowWaterMB),
		LowTier:     mc.LowTier,
		HighTier:    mc.HighTier,
	}, monitor.Config{
		Interval:    mc.Interval,
		InitialTier: s.cfg.Scheduler.InitialLimit,
	},
		monitor.WithLogger(s.logger),
		monitor.WithSink(s.sink),
		monitor.WithRecorder(s.metricsCollector),
	)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.monitor.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.scheduler.WatchLimits(ctx, s.monitor.Limits())
	}()
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.controlHandler = handlers.NewControlHandler(s.scheduler, s.sink, s.logger)
	s.streamHandler = handlers.NewLogStreamHandler(s.sink, s.cfg.Server.CORSAllowedOrigins, s.logger)

	s.healthHandler = handlers.NewHealthHandler(Version, s.logger)
	if s.redisMirror != nil {
		s.healthHandler.RegisterCheck(s.redisMirror)
	}

	s.logger.Info("Handlers initialized")
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 注册所有路由。/start 等无前缀路径保留给旧面板。
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(BuildTime, GitCommit))

	// ========================================
	// 控制 API
	// ========================================
	for _, prefix := range []string{"/api", ""} {
		mux.HandleFunc("POST "+prefix+"/start", s.controlHandler.HandleStart)
		mux.HandleFunc("POST "+prefix+"/stop", s.controlHandler.HandleStop)
		mux.HandleFunc("GET "+prefix+"/status", s.controlHandler.HandleStatus)
		mux.HandleFunc("GET "+prefix+"/logs", s.controlHandler.HandleLogs)
	}
	mux.Handle("GET /api/logs/stream", s.streamHandler)

	// ========================================
	// 控制面板
	// ========================================
	dashboard := web.Handler()
	mux.Handle("GET /{$}", dashboard)
	mux.Handle("GET /app.js", dashboard)
	mux.Handle("GET /style.css", dashboard)

	return mux
}

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	handler := Chain(s.routes(),
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.metricsCollector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		MaxConnections:  s.cfg.Server.MaxConnections,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown(context.Background())
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务，可重复调用。
// 顺序：调度器 → 监控 → 活动日志 → HTTP → 遥测，保证最后的日志行写入镜像。
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(s.shutdown)
}

func (s *Server) shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 1. 停止调度，等待当前批次结束
	if s.scheduler != nil {
		if err := s.scheduler.Shutdown(ctx); err != nil {
			s.logger.Error("Scheduler shutdown error", zap.Error(err))
		}
	}

	// 2. 停止监控和后台 goroutine
	if s.bgCancel != nil {
		s.bgCancel()
	}
	s.wg.Wait()

	// 3. 关闭活动日志（同时断开日志流订阅）
	if s.sink != nil {
		if err := s.sink.Close(ctx); err != nil {
			s.logger.Error("Activity log shutdown error", zap.Error(err))
		}
	}

	// 4. 关闭 HTTP 与 Metrics 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 5. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 6. 刷新遥测数据
	if err := s.otel.Shutdown(ctx); err != nil {
		s.logger.Error("Telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
