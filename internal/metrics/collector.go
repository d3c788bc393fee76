// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，同时实现调度、监控和活动日志的 Recorder 接口
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 会话与批次指标
	sessionsTotal    *prometheus.CounterVec
	sessionDuration  *prometheus.HistogramVec
	batchesTotal     prometheus.Counter
	batchSize        prometheus.Histogram
	batchLaunched    prometheus.Histogram
	batchDuration    prometheus.Histogram
	concurrencyLimit prometheus.Gauge
	sessionsInFlight prometheus.Gauge
	schedulerRunning prometheus.Gauge

	// 内存监控指标
	memoryUsageBytes   prometheus.Gauge
	tierChangesTotal   *prometheus.CounterVec
	memorySampleErrors prometheus.Counter

	// 活动日志指标
	logLinesTotal   prometheus.Counter
	logMirrorErrors *prometheus.CounterVec
	logMirrorDrops  prometheus.Counter

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)

	// 会话与批次指标
	c.sessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of browser sessions by outcome",
		},
		[]string{"outcome"},
	)

	c.sessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Browser session duration in seconds",
			Buckets:   []float64{1, 5, 10, 15, 20, 30, 45, 60, 90, 120},
		},
		[]string{"outcome"},
	)

	c.batchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_total",
		Help:      "Total number of completed batches",
	})

	c.batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_size",
		Help:      "Concurrency limit captured at batch start",
		Buckets:   prometheus.LinearBuckets(1, 1, 8),
	})

	c.batchLaunched = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_launched",
		Help:      "Number of sessions actually launched per batch",
		Buckets:   prometheus.LinearBuckets(0, 1, 9),
	})

	c.batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_duration_seconds",
		Help:      "Batch duration in seconds",
		Buckets:   []float64{1, 5, 10, 20, 30, 60, 120, 300},
	})

	c.concurrencyLimit = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "concurrency_limit",
		Help:      "Current concurrency limit used for the next batch",
	})

	c.sessionsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_in_flight",
		Help:      "Number of browser sessions currently running",
	})

	c.schedulerRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scheduler_running",
		Help:      "1 when the batch loop is running, 0 otherwise",
	})

	// 内存监控指标
	c.memoryUsageBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "memory_usage_bytes",
		Help:      "Last sampled memory usage in bytes",
	})

	c.tierChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_changes_total",
			Help:      "Total number of concurrency tier changes",
		},
		[]string{"direction"},
	)

	c.memorySampleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "memory_sample_errors_total",
		Help:      "Total number of failed memory samples",
	})

	// 活动日志指标
	c.logLinesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "log_lines_total",
		Help:      "Total number of activity log lines",
	})

	c.logMirrorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_mirror_errors_total",
			Help:      "Total number of failed activity log mirror writes",
		},
		[]string{"mirror"},
	)

	c.logMirrorDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "log_mirror_drops_total",
		Help:      "Total number of activity log lines dropped because the mirror queue was full",
	})

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🤖 调度指标记录
// =============================================================================

// RecordBatch 记录一个结束的批次
func (c *Collector) RecordBatch(size, launched int, duration time.Duration) {
	c.batchesTotal.Inc()
	c.batchSize.Observe(float64(size))
	c.batchLaunched.Observe(float64(launched))
	c.batchDuration.Observe(duration.Seconds())
}

// RecordSession 记录一次会话结果
func (c *Collector) RecordSession(outcome string, duration time.Duration) {
	c.sessionsTotal.WithLabelValues(outcome).Inc()
	c.sessionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (c *Collector) SetInFlight(n int) {
	c.sessionsInFlight.Set(float64(n))
}

func (c *Collector) SetConcurrencyLimit(n int) {
	c.concurrencyLimit.Set(float64(n))
}

func (c *Collector) SetRunning(running bool) {
	if running {
		c.schedulerRunning.Set(1)
		return
	}
	c.schedulerRunning.Set(0)
}

// =============================================================================
// 🧠 内存监控指标记录
// =============================================================================

func (c *Collector) SetMemoryBytes(bytes uint64) {
	c.memoryUsageBytes.Set(float64(bytes))
}

// RecordTierChange 记录档位变化，direction 为 up 或 down
func (c *Collector) RecordTierChange(direction string) {
	c.tierChangesTotal.WithLabelValues(direction).Inc()
}

func (c *Collector) RecordSampleError() {
	c.memorySampleErrors.Inc()
}

// =============================================================================
// 📜 活动日志指标记录
// =============================================================================

func (c *Collector) RecordLogLine() {
	c.logLinesTotal.Inc()
}

func (c *Collector) RecordMirrorError(mirror string) {
	c.logMirrorErrors.WithLabelValues(mirror).Inc()
}

func (c *Collector) RecordMirrorDrop() {
	c.logMirrorDrops.Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
