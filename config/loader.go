// =============================================================================
// 📦 godlike 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("GODLIKE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → PORT → 前缀环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 godlike 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Scheduler 批次调度配置
	Scheduler SchedulerConfig `yaml:"scheduler" env:"SCHEDULER"`

	// Session 单次访问（浏览器会话）配置
	Session SessionConfig `yaml:"session" env:"SESSION"`

	// Monitor 内存监控配置
	Monitor MonitorConfig `yaml:"monitor" env:"MONITOR"`

	// LogSink 活动日志配置
	LogSink LogSinkConfig `yaml:"logsink" env:"LOGSINK"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口（也可通过 PORT 环境变量设置）
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口，0 表示不启动
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 最大并发连接数，0 表示不限制
	MaxConnections int `yaml:"max_connections" env:"MAX_CONNECTIONS"`
	// 允许的跨域来源，"*" 表示全部
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// 每 IP 每秒请求数
	RateLimitRPS int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 每 IP 突发请求数
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// SchedulerConfig 批次调度配置
type SchedulerConfig struct {
	// 请求未提供 URL 时使用的默认目标
	DefaultURLs []string `yaml:"default_urls" env:"DEFAULT_URLS"`
	// 自动启动时的目标 bot 数
	DefaultBotCount int `yaml:"default_bot_count" env:"DEFAULT_BOT_COUNT"`
	// 自动启动时是否无头
	DefaultHeadless bool `yaml:"default_headless" env:"DEFAULT_HEADLESS"`
	// 进程启动后自动开始循环
	AutoStart bool `yaml:"auto_start" env:"AUTO_START"`
	// 初始并发上限
	InitialLimit int `yaml:"initial_limit" env:"INITIAL_LIMIT"`
	// 批内两次启动之间的间隔
	Stagger time.Duration `yaml:"stagger" env:"STAGGER"`
	// 批次之间的等待
	BatchDelay time.Duration `yaml:"batch_delay" env:"BATCH_DELAY"`
}

// SessionConfig 浏览器会话配置
type SessionConfig struct {
	NavigationTimeout    time.Duration `yaml:"navigation_timeout" env:"NAVIGATION_TIMEOUT"`
	SettleDelay          time.Duration `yaml:"settle_delay" env:"SETTLE_DELAY"`
	ScrollMin            int           `yaml:"scroll_min" env:"SCROLL_MIN"`
	ScrollMax            int           `yaml:"scroll_max" env:"SCROLL_MAX"`
	PostScrollDelay      time.Duration `yaml:"post_scroll_delay" env:"POST_SCROLL_DELAY"`
	PostClickDelay       time.Duration `yaml:"post_click_delay" env:"POST_CLICK_DELAY"`
	DwellMin             time.Duration `yaml:"dwell_min" env:"DWELL_MIN"`
	DwellMax             time.Duration `yaml:"dwell_max" env:"DWELL_MAX"`
	ViewportWidth        int           `yaml:"viewport_width" env:"VIEWPORT_WIDTH"`
	ViewportHeight       int           `yaml:"viewport_height" env:"VIEWPORT_HEIGHT"`
	UserAgent            string        `yaml:"user_agent" env:"USER_AGENT"`
	AcceptLanguage       string        `yaml:"accept_language" env:"ACCEPT_LANGUAGE"`
	Accept               string        `yaml:"accept" env:"ACCEPT"`
	BlockedResourceTypes []string      `yaml:"blocked_resource_types" env:"BLOCKED_RESOURCE_TYPES"`
	ScreenshotOnError    bool          `yaml:"screenshot_on_error" env:"SCREENSHOT_ON_ERROR"`
	ScreenshotDir        string        `yaml:"screenshot_dir" env:"SCREENSHOT_DIR"`
	// Chrome 可执行文件路径，为空时由 chromedp 自动查找
	ExecPath string `yaml:"exec_path" env:"EXEC_PATH"`
}

// MonitorConfig 内存监控配置
type MonitorConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 采样间隔
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
	// 高水位（MB），超过则降到低档
	HighWaterMB int `yaml:"high_water_mb" env:"HIGH_WATER_MB"`
	// 低水位（MB），低于则升到高档
	LowWaterMB int `yaml:"low_water_mb" env:"LOW_WATER_MB"`
	// 低档并发
	LowTier int `yaml:"low_tier" env:"LOW_TIER"`
	// 高档并发
	HighTier int `yaml:"high_tier" env:"HIGH_TIER"`
	// cgroup 内存文件，按顺序尝试
	CgroupPaths []string `yaml:"cgroup_paths" env:"CGROUP_PATHS"`
	// procfs 挂载点
	ProcPath string `yaml:"proc_path" env:"PROC_PATH"`
}

// LogSinkConfig 活动日志配置
type LogSinkConfig struct {
	// 内存中保留的行数
	Capacity int `yaml:"capacity" env:"CAPACITY"`
	// 追加写入的文件，为空则不写文件
	FilePath string `yaml:"file_path" env:"FILE_PATH"`
	// 镜像写入队列长度
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
	// Redis 镜像
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 列表键
	Key string `yaml:"key" env:"KEY"`
	// 是否使用 TLS
	TLS bool `yaml:"tls" env:"TLS"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 按 默认值 → 文件 → 环境变量 的顺序构建 Config
type Loader struct {
	path       string
	prefix     string
	portEnv    string
	validators []func(*Config) error
}

// NewLoader 返回使用 GODLIKE 前缀并读取 PORT 的加载器
func NewLoader() *Loader {
	return &Loader{prefix: "GODLIKE", portEnv: "PORT"}
}

// WithConfigPath 指定 YAML 文件，文件不存在时静默使用默认值
func (l *Loader) WithConfigPath(path string) *Loader {
	l.path = path
	return l
}

// WithEnvPrefix 替换环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.prefix = prefix
	return l
}

// WithPortEnv 设置承载 HTTP 端口的环境变量名，空字符串表示忽略
func (l *Loader) WithPortEnv(name string) *Loader {
	l.portEnv = name
	return l
}

// WithValidator 追加一个在加载完成后执行的校验
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 构建配置。Load 本身不调用 Validate，由调用方决定。
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := l.applyFile(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", l.path, err)
	}
	if err := l.applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	for _, validate := range l.validators {
		if err := validate(cfg); err != nil {
			return nil, fmt.Errorf("config rejected: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) applyFile(cfg *Config) error {
	if l.path == "" {
		return nil
	}
	raw, err := os.ReadFile(l.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return err
	}
	return yaml.Unmarshal(raw, cfg)
}

// applyEnv 先应用 PORT，再应用前缀变量，
// 因此 GODLIKE_SERVER_HTTP_PORT 优先。
func (l *Loader) applyEnv(cfg *Config) error {
	if v := l.lookup(l.portEnv); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s=%q: %w", l.portEnv, v, err)
		}
		cfg.Server.HTTPPort = port
	}
	return l.walk(reflect.ValueOf(cfg).Elem(), l.prefix)
}

func (l *Loader) lookup(key string) string {
	if key == "" {
		return ""
	}
	return os.Getenv(key)
}

// walk 按 env 标签拼出 PREFIX_SECTION_FIELD 并写入字段，嵌套结构体递归处理
func (l *Loader) walk(v reflect.Value, prefix string) error {
	for i := range v.NumField() {
		tag := v.Type().Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag
		field := v.Field(i)

		if field.Kind() == reflect.Struct {
			if err := l.walk(field, key); err != nil {
				return err
			}
			continue
		}
		raw := l.lookup(key)
		if raw == "" || !field.CanSet() {
			continue
		}
		if err := assign(field, raw); err != nil {
			return fmt.Errorf("%s=%q: %w", key, raw, err)
		}
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// assign 把字符串解析为字段的类型。时长用 "5s" 形式，字符串切片用逗号分隔。
func assign(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err == nil {
			field.SetInt(int64(d))
		}
		return err
	}

	var err error
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		var b bool
		if b, err = strconv.ParseBool(raw); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var n int64
		if n, err = strconv.ParseInt(raw, 10, field.Type().Bits()); err == nil {
			field.SetInt(n)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var n uint64
		if n, err = strconv.ParseUint(raw, 10, field.Type().Bits()); err == nil {
			field.SetUint(n)
		}
	case reflect.Float32, reflect.Float64:
		var f float64
		if f, err = strconv.ParseFloat(raw, field.Type().Bits()); err == nil {
			field.SetFloat(f)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			field.Set(reflect.ValueOf(splitList(raw)))
		}
	}
	return err
}

// splitList 按逗号切分并丢弃空项
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 用于测试和示例，加载失败直接 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.MetricsPort != 0 && c.Server.MetricsPort == c.Server.HTTPPort {
		errs = append(errs, "metrics port must differ from HTTP port")
	}

	if c.Scheduler.InitialLimit < 1 {
		errs = append(errs, "scheduler.initial_limit must be at least 1")
	}
	if c.Scheduler.Stagger < 0 || c.Scheduler.BatchDelay < 0 {
		errs = append(errs, "scheduler delays must not be negative")
	}
	if c.Scheduler.AutoStart && len(c.Scheduler.DefaultURLs) == 0 {
		errs = append(errs, "scheduler.auto_start requires default_urls")
	}

	if c.Session.NavigationTimeout <= 0 {
		errs = append(errs, "session.navigation_timeout must be positive")
	}
	if c.Session.ScrollMin < 0 || c.Session.ScrollMax <= c.Session.ScrollMin {
		errs = append(errs, "session.scroll_max must be greater than scroll_min")
	}
	if c.Session.DwellMin < 0 || c.Session.DwellMax <= c.Session.DwellMin {
		errs = append(errs, "session.dwell_max must be greater than dwell_min")
	}
	if c.Session.ViewportWidth <= 0 || c.Session.ViewportHeight <= 0 {
		errs = append(errs, "session viewport must be positive")
	}

	if c.Monitor.Enabled {
		if c.Monitor.Interval <= 0 {
			errs = append(errs, "monitor.interval must be positive")
		}
		if c.Monitor.LowWaterMB >= c.Monitor.HighWaterMB {
			errs = append(errs, "monitor.low_water_mb must be below high_water_mb")
		}
		if c.Monitor.LowTier < 1 || c.Monitor.HighTier < c.Monitor.LowTier {
			errs = append(errs, "monitor tiers must satisfy 1 <= low_tier <= high_tier")
		}
	}

	if c.LogSink.Capacity <= 0 {
		errs = append(errs, "logsink.capacity must be positive")
	}
	if c.LogSink.Redis.Enabled && c.LogSink.Redis.Addr == "" {
		errs = append(errs, "logsink.redis.addr is required when redis is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
