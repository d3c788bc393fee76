package logsink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/puppeteerthegoat5-eng/puppeter-godlike/internal/tlsutil"
)

// =============================================================================
// 💾 Redis 镜像
// =============================================================================

// RedisConfig Redis 镜像配置
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`

	// 列表键
	Key string `yaml:"key" json:"key"`

	// 列表最多保留的行数，与内存容量一致
	MaxLen int `yaml:"max_len" json:"max_len"`

	PoolSize int  `yaml:"pool_size" json:"pool_size"`
	TLS      bool `yaml:"tls" json:"tls"`
}

// RedisMirror 将活动日志写入 Redis 列表并裁剪到固定长度，
// 供多副本部署时集中查看
type RedisMirror struct {
	client *redis.Client
	key    string
	maxLen int64
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewRedisMirror 创建 Redis 镜像并测试连接
func NewRedisMirror(cfg RedisConfig, logger *zap.Logger) (*RedisMirror, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis mirror key is required")
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = DefaultCapacity
	}

	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}
	if cfg.TLS {
		opts.TLSConfig = tlsutil.RedisConfig(cfg.Addr)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &RedisMirror{
		client: client,
		key:    cfg.Key,
		maxLen: int64(cfg.MaxLen),
		logger: logger.With(zap.String("component", "logsink_redis")),
	}
	m.logger.Info("redis mirror initialized",
		zap.String("addr", cfg.Addr),
		zap.String("key", cfg.Key),
		zap.Int("max_len", cfg.MaxLen),
	)
	return m, nil
}

// Name 返回镜像名称，同时作为健康检查名称
func (m *RedisMirror) Name() string { return "redis" }

// Write 追加一行并裁剪列表
func (m *RedisMirror) Write(ctx context.Context, line string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("redis mirror is closed")
	}

	pipe := m.client.Pipeline()
	pipe.RPush(ctx, m.key, line)
	pipe.LTrim(ctx, m.key, -m.maxLen, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append failed: %w", err)
	}
	return nil
}

// Check 检查 Redis 连接
func (m *RedisMirror) Check(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("redis mirror is closed")
	}
	return m.client.Ping(ctx).Err()
}

// Close 关闭连接
func (m *RedisMirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.logger.Info("closing redis mirror")
	return m.client.Close()
}
