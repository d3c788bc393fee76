// =============================================================================
// godlike 主入口
// =============================================================================
// 无头浏览器访问机器人：批次调度、内存自适应并发、活动日志与 HTTP 控制面
//
// 使用方法:
//
//	godlike serve                         # 启动服务（默认自动开始循环）
//	godlike serve --config config.yaml    # 指定配置文件
//	godlike visit --url https://a.test/   # 只跑一次会话，用于排查
//	godlike health --addr http://localhost:3000
//	godlike version
// =============================================================================

// @title godlike control API
// @version 1.0.0
// @description Start, stop and observe the headless browser visit loop.
// @license.name MIT
// @host localhost:3000
// @BasePath /

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/puppeteerthegoat5-eng/puppeter-godlike/config"
	"github.com/puppeteerthegoat5-eng/puppeter-godlike/internal/session"
	"github.com/puppeteerthegoat5-eng/puppeter-godlike/internal/telemetry"
	"github.com/puppeteerthegoat5-eng/puppeter-godlike/internal/tlsutil"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	// 与原始服务一致：不带子命令时直接启动
	if len(os.Args) < 2 {
		runServe(nil)
		return
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "visit":
		os.Exit(runVisit(os.Args[2:]))
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	noAutoStart := fs.Bool("no-auto-start", false, "Do not start the loop at launch")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *noAutoStart {
		cfg.Scheduler.AutoStart = false
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting godlike",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(context.Background(), cfg.Telemetry, Version, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	srv := NewServer(cfg, logger, otelProviders)
	if err := srv.Start(); err != nil {
		logger.Error("Failed to start server", zap.Error(err))
		srv.Shutdown()
		os.Exit(1)
	}

	srv.WaitForShutdown()

	logger.Info("godlike stopped")
}

// =============================================================================
// 🌐 visit 命令
// =============================================================================

// runVisit 执行单次会话并把进度打印到标准输出，返回进程退出码
func runVisit(args []string) int {
	fs := flag.NewFlagSet("visit", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	url := fs.String("url", "", "Target URL (required)")
	proxy := fs.String("proxy", "", "Proxy server, e.g. http://host:port")
	headful := fs.Bool("headful", false, "Show the browser window")
	_ = fs.Parse(args)

	if strings.TrimSpace(*url) == "" {
		fmt.Fprintln(os.Stderr, "visit: --url is required")
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessCfg := sessionConfig(cfg.Session)
	runner := session.NewRunner(session.NewChromeLauncher(sessCfg, logger), sessCfg, session.WithLogger(logger))
	res := runner.Run(ctx, session.Job{
		BotID:    1,
		URL:      strings.TrimSpace(*url),
		Proxy:    *proxy,
		Headless: !*headful,
	}, func(line string) {
		fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05"), line)
	})

	fmt.Printf("outcome=%s duration=%s step_errors=%d\n", res.Outcome(), res.Duration.Truncate(time.Millisecond), res.StepErrors)
	if res.Screenshot != "" {
		fmt.Printf("screenshot=%s\n", res.Screenshot)
	}
	if res.Err != nil {
		return 1
	}
	return 0
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:3000", "Server address")
	ready := fs.Bool("ready", false, "Check readiness instead of liveness")
	_ = fs.Parse(args)

	path := "/health"
	if *ready {
		path = "/ready"
	}

	client := tlsutil.HTTPClient(5 * time.Second)
	resp, err := client.Get(strings.TrimRight(*addr, "/") + path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("godlike %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`godlike - headless browser visit bot

Usage:
  godlike [command] [options]

Commands:
  serve     Start the control server and the batch loop (default)
  visit     Run a single browser session and exit
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  --config <path>     Path to configuration file (YAML)
  --no-auto-start     Wait for POST /api/start instead of starting at launch

Options for 'visit':
  --url <url>         Target URL (required)
  --proxy <addr>      Proxy server
  --headful           Show the browser window
  --config <path>     Path to configuration file (YAML)

Environment:
  PORT                HTTP port (overrides server.http_port)
  GODLIKE_*           Any config field, e.g. GODLIKE_SCHEDULER_BATCH_DELAY=5s

Examples:
  godlike serve --config /etc/godlike/config.yaml
  godlike visit --url https://example.com/ --headful
  godlike health --addr http://localhost:3000 --ready`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	console := cfg.Format == "console"

	var encoderConfig zapcore.EncoderConfig
	if console {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(parseLevel(cfg.Level)),
		Development:       console,
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if console {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
		logger.Warn("invalid log config, falling back to defaults", zap.Error(err))
	}
	return logger
}
