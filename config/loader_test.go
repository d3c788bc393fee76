// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 3000, cfg.Server.HTTPPort)
	assert.Equal(t, 2, cfg.Scheduler.InitialLimit)
	assert.Equal(t, 1000, cfg.LogSink.Capacity)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	t.Setenv("PORT", "")
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s

scheduler:
  default_urls:
    - "https://a.example/"
    - "https://b.example/"
  auto_start: false
  stagger: 250ms
  batch_delay: 10s

session:
  navigation_timeout: 30s
  blocked_resource_types: ["image"]

monitor:
  high_water_mb: 800
  low_water_mb: 400

logsink:
  capacity: 50
  redis:
    enabled: true
    addr: "redis.example.com:6379"

log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, []string{"https://a.example/", "https://b.example/"}, cfg.Scheduler.DefaultURLs)
	assert.False(t, cfg.Scheduler.AutoStart)
	assert.Equal(t, 250*time.Millisecond, cfg.Scheduler.Stagger)
	assert.Equal(t, 10*time.Second, cfg.Scheduler.BatchDelay)
	// YAML 未覆盖的字段保留默认值
	assert.Equal(t, 2, cfg.Scheduler.DefaultBotCount)

	assert.Equal(t, 30*time.Second, cfg.Session.NavigationTimeout)
	assert.Equal(t, []string{"image"}, cfg.Session.BlockedResourceTypes)
	assert.Equal(t, 1920, cfg.Session.ViewportWidth)

	assert.Equal(t, 800, cfg.Monitor.HighWaterMB)
	assert.Equal(t, 400, cfg.Monitor.LowWaterMB)

	assert.Equal(t, 50, cfg.LogSink.Capacity)
	assert.True(t, cfg.LogSink.Redis.Enabled)
	assert.Equal(t, "redis.example.com:6379", cfg.LogSink.Redis.Addr)
	assert.Equal(t, "godlike:activity", cfg.LogSink.Redis.Key)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "")
	envVars := map[string]string{
		"GODLIKE_SERVER_HTTP_PORT":       "7777",
		"GODLIKE_SCHEDULER_DEFAULT_URLS": "https://a.example/, https://b.example/,",
		"GODLIKE_SCHEDULER_BATCH_DELAY":  "2s",
		"GODLIKE_SCHEDULER_AUTO_START":   "false",
		"GODLIKE_SESSION_SCROLL_MAX":     "900",
		"GODLIKE_MONITOR_INTERVAL":       "1s",
		"GODLIKE_LOGSINK_REDIS_ADDR":     "env-redis:6379",
		"GODLIKE_TELEMETRY_SAMPLE_RATE":  "0.5",
		"GODLIKE_LOG_LEVEL":              "warn",
	}
	for k, v := range envVars {
		t.Setenv(k, v)
	}

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, []string{"https://a.example/", "https://b.example/"}, cfg.Scheduler.DefaultURLs)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.BatchDelay)
	assert.False(t, cfg.Scheduler.AutoStart)
	assert.Equal(t, 900, cfg.Session.ScrollMax)
	assert.Equal(t, time.Second, cfg.Monitor.Interval)
	assert.Equal(t, "env-redis:6379", cfg.LogSink.Redis.Addr)
	assert.InDelta(t, 0.5, cfg.Telemetry.SampleRate, 0.0001)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_PortEnv(t *testing.T) {
	t.Setenv("PORT", "4321")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 4321, cfg.Server.HTTPPort)

	// 前缀变量优先于 PORT
	t.Setenv("GODLIKE_SERVER_HTTP_PORT", "5555")
	cfg, err = NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 5555, cfg.Server.HTTPPort)

	// 关闭 PORT 支持
	t.Setenv("GODLIKE_SERVER_HTTP_PORT", "")
	cfg, err = NewLoader().WithPortEnv("").Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.HTTPPort)
}

func TestLoader_InvalidPortEnv(t *testing.T) {
	t.Setenv("PORT", "not-a-port")

	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	t.Setenv("PORT", "")
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
scheduler:
  default_bot_count: 4
  initial_limit: 3
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	t.Setenv("GODLIKE_SERVER_HTTP_PORT", "9999")
	t.Setenv("GODLIKE_SCHEDULER_DEFAULT_BOT_COUNT", "6")

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, 6, cfg.Scheduler.DefaultBotCount)
	// YAML 值应该保留（没有被环境变量覆盖）
	assert.Equal(t, 3, cfg.Scheduler.InitialLimit)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")
	t.Setenv("MYAPP_LOGSINK_FILE_PATH", "/tmp/activity.log")

	cfg, err := NewLoader().
		WithEnvPrefix("MYAPP").
		Load()
	require.NoError(t, err)

	assert.Equal(t, 6666, cfg.Server.HTTPPort)
	assert.Equal(t, "/tmp/activity.log", cfg.LogSink.FilePath)
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("PORT", "")
	validator := func(cfg *Config) error {
		if cfg.Server.HTTPPort < 1024 {
			return assert.AnError
		}
		return nil
	}

	t.Setenv("GODLIKE_SERVER_HTTP_PORT", "80")

	_, err := NewLoader().
		WithValidator(validator).
		Load()
	assert.Error(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	t.Setenv("PORT", "")
	cfg, err := NewLoader().
		WithConfigPath("/non/existent/path/config.yaml").
		Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 3000, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
server:
  http_port: [invalid
  this is not valid yaml
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidYAML), 0644))

	_, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	assert.Error(t, err)
}

func TestLoader_InvalidDurationEnv(t *testing.T) {
	t.Setenv("GODLIKE_SCHEDULER_STAGGER", "soon")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GODLIKE_SCHEDULER_STAGGER")
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid default config", modify: func(c *Config) {}, wantErr: false},
		{name: "invalid HTTP port (negative)", modify: func(c *Config) { c.Server.HTTPPort = -1 }, wantErr: true},
		{name: "invalid HTTP port (too large)", modify: func(c *Config) { c.Server.HTTPPort = 70000 }, wantErr: true},
		{name: "metrics port collides", modify: func(c *Config) { c.Server.MetricsPort = c.Server.HTTPPort }, wantErr: true},
		{name: "metrics disabled", modify: func(c *Config) { c.Server.MetricsPort = 0 }, wantErr: false},
		{name: "zero initial limit", modify: func(c *Config) { c.Scheduler.InitialLimit = 0 }, wantErr: true},
		{name: "negative batch delay", modify: func(c *Config) { c.Scheduler.BatchDelay = -time.Second }, wantErr: true},
		{
			name: "auto start without urls",
			modify: func(c *Config) {
				c.Scheduler.DefaultURLs = nil
			},
			wantErr: true,
		},
		{
			name: "no urls without auto start",
			modify: func(c *Config) {
				c.Scheduler.DefaultURLs = nil
				c.Scheduler.AutoStart = false
			},
			wantErr: false,
		},
		{name: "inverted scroll range", modify: func(c *Config) { c.Session.ScrollMax = c.Session.ScrollMin }, wantErr: true},
		{name: "inverted dwell range", modify: func(c *Config) { c.Session.DwellMax = c.Session.DwellMin }, wantErr: true},
		{name: "zero navigation timeout", modify: func(c *Config) { c.Session.NavigationTimeout = 0 }, wantErr: true},
		{name: "inverted watermarks", modify: func(c *Config) { c.Monitor.LowWaterMB = 600 }, wantErr: true},
		{
			name: "watermarks ignored when monitor disabled",
			modify: func(c *Config) {
				c.Monitor.Enabled = false
				c.Monitor.LowWaterMB = 600
			},
			wantErr: false,
		},
		{name: "zero low tier", modify: func(c *Config) { c.Monitor.LowTier = 0 }, wantErr: true},
		{name: "zero capacity", modify: func(c *Config) { c.LogSink.Capacity = 0 }, wantErr: true},
		{
			name: "redis without addr",
			modify: func(c *Config) {
				c.LogSink.Redis.Enabled = true
				c.LogSink.Redis.Addr = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// --- MustLoad 测试 ---

func TestMustLoad_Success(t *testing.T) {
	t.Setenv("PORT", "")
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: 8081\n"), 0644))

	cfg := MustLoad(configPath)
	assert.Equal(t, 8081, cfg.Server.HTTPPort)
}

func TestMustLoad_Panics(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [oops"), 0644))

	assert.Panics(t, func() { MustLoad(configPath) })
}
