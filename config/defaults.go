// =============================================================================
// 📦 godlike 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultUserAgent 桌面 Chrome 的 UA 字符串
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Scheduler: DefaultSchedulerConfig(),
		Session:   DefaultSessionConfig(),
		Monitor:   DefaultMonitorConfig(),
		LogSink:   DefaultLogSinkConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:           3000,
		MetricsPort:        9091,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		ShutdownTimeout:    90 * time.Second,
		MaxConnections:     0,
		CORSAllowedOrigins: []string{"*"},
		RateLimitRPS:       20,
		RateLimitBurst:     40,
	}
}

// DefaultSchedulerConfig 返回默认调度配置
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		DefaultURLs:     []string{"https://example.com/"},
		DefaultBotCount: 2,
		DefaultHeadless: true,
		AutoStart:       true,
		InitialLimit:    2,
		Stagger:         500 * time.Millisecond,
		BatchDelay:      5 * time.Second,
	}
}

// DefaultSessionConfig 返回默认会话配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
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
		UserAgent:            DefaultUserAgent,
		AcceptLanguage:       "en-US,en;q=0.9",
		Accept:               "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		BlockedResourceTypes: []string{"image", "media", "font"},
		ScreenshotOnError:    true,
		ScreenshotDir:        ".",
	}
}

// DefaultMonitorConfig 返回默认监控配置
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:     true,
		Interval:    5 * time.Second,
		HighWaterMB: 500,
		LowWaterMB:  230,
		LowTier:     1,
		HighTier:    2,
		CgroupPaths: []string{
			"/sys/fs/cgroup/memory/memory.usage_in_bytes",
			"/sys/fs/cgroup/memory.current",
		},
		ProcPath: "/proc",
	}
}

// DefaultLogSinkConfig 返回默认活动日志配置
func DefaultLogSinkConfig() LogSinkConfig {
	return LogSinkConfig{
		Capacity:  1000,
		FilePath:  "bot_activity.log",
		QueueSize: 256,
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			DB:       0,
			Key:      "godlike:activity",
			PoolSize: 4,
		},
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "godlike",
		SampleRate:   0.1,
	}
}
