// =============================================================================
// godlike OpenTelemetry SDK Initialization
// =============================================================================
// Wraps OTel SDK setup for traces and metrics. When telemetry is disabled,
// no exporters are created and global providers remain noop. Spans from the
// scheduler ("scheduler.batch") and the session runner ("session.visit")
// flow through whatever provider is global at that point.
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"github.com/puppeteerthegoat5-eng/puppeter-godlike/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/puppeteerthegoat5-eng/puppeter-godlike/internal/telemetry"

// LoopStats is sampled by the observable gauges on every collection.
type LoopStats struct {
	InFlight     int
	CurrentLimit int
	Running      bool
}

// Providers 持有 SDK 的 TracerProvider 与 MeterProvider。
// 遥测关闭时两者为 nil，Shutdown 只注销回调。
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider

	mu   sync.Mutex
	regs []metric.Registration
}

// Init 按配置安装全局 provider。Enabled 为 false 时不建立任何连接，
// version 为空时从 build info 中取模块版本。
func Init(ctx context.Context, cfg config.TelemetryConfig, version string, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}
	if version == "" {
		version = buildVersion()
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(version),
		semconv.ServiceInstanceIDKey.String(uuid.NewString()),
	))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	spans, points, err := dialExporters(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return nil, err
	}

	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))
	p := &Providers{
		tp: sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler),
			sdktrace.WithBatcher(spans),
		),
		mp: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(points)),
		),
	}

	otel.SetTracerProvider(p.tp)
	otel.SetMeterProvider(p.mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.String("version", version),
		zap.Float64("sample_rate", cfg.SampleRate),
	)
	return p, nil
}

// dialExporters 创建 OTLP/gRPC 导出器。gRPC 连接是惰性的，collector 不在线也不会失败。
func dialExporters(ctx context.Context, endpoint string) (*otlptrace.Exporter, *otlpmetricgrpc.Exporter, error) {
	spans, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, nil, fmt.Errorf("otlp trace exporter: %w", err)
	}
	points, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(endpoint), otlpmetricgrpc.WithInsecure())
	if err != nil {
		_ = spans.Shutdown(ctx)
		return nil, nil, fmt.Errorf("otlp metric exporter: %w", err)
	}
	return spans, points, nil
}

// ObserveLoop registers observable gauges for the batch loop on the given
// meter provider. A nil provider means the global one.
func (p *Providers) ObserveLoop(mp metric.MeterProvider, stats func() LoopStats) error {
	if p == nil || stats == nil {
		return nil
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	inFlight, err := meter.Int64ObservableGauge("godlike.sessions.in_flight",
		metric.WithDescription("Browser sessions currently running"))
	if err != nil {
		return fmt.Errorf("create in-flight gauge: %w", err)
	}
	limit, err := meter.Int64ObservableGauge("godlike.concurrency.limit",
		metric.WithDescription("Concurrency limit used for the next batch"))
	if err != nil {
		return fmt.Errorf("create limit gauge: %w", err)
	}
	running, err := meter.Int64ObservableGauge("godlike.loop.running",
		metric.WithDescription("1 when the batch loop is running"))
	if err != nil {
		return fmt.Errorf("create running gauge: %w", err)
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := stats()
		o.ObserveInt64(inFlight, int64(s.InFlight))
		o.ObserveInt64(limit, int64(s.CurrentLimit))
		var r int64
		if s.Running {
			r = 1
		}
		o.ObserveInt64(running, r)
		return nil
	}, inFlight, limit, running)
	if err != nil {
		return fmt.Errorf("register loop callback: %w", err)
	}

	p.mu.Lock()
	p.regs = append(p.regs, reg)
	p.mu.Unlock()
	return nil
}

// Shutdown 注销回调并刷新未导出的数据，对 nil 和 noop Providers 都安全
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}

	p.mu.Lock()
	regs := p.regs
	p.regs = nil
	p.mu.Unlock()

	var errs []error
	for _, reg := range regs {
		errs = append(errs, reg.Unregister())
	}
	if p.tp != nil {
		errs = append(errs, p.tp.Shutdown(ctx))
	}
	if p.mp != nil {
		errs = append(errs, p.mp.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("telemetry shutdown: %w", err)
	}
	return nil
}

// buildVersion 读取模块版本，本地构建得到 "dev"
func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		switch v := info.Main.Version; v {
		case "", "(devel)":
		default:
			return v
		}
	}
	return "dev"
}
