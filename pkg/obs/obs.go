// Package obs wraps log/slog structured logging and an OpenTelemetry
// tracer/meter pair around the two operations worth instrumenting in the
// core: ledger append and verifier run (spec.md §9's ambient observability
// stack, carried regardless of the spec's Non-goals around metrics
// surfaces).
//
// Grounded on the teacher's pkg/observability/observability.go: a
// Config/Provider pair, RED-style request/error/duration metrics, and a
// TrackOperation helper that starts a span, increments an active-operation
// gauge, and records duration on completion. Disabled by default so the
// core needs no collector to run; a COC_OTEL_ENDPOINT activates the same
// otlptracegrpc/otlpmetricgrpc exporters the teacher wires up. Each tracked
// operation gets a google/uuid correlation ID (the teacher's
// pkg/audit/logger.go does the same for its request IDs), stamped on both
// log lines and the span so entry/exit pairs can be matched even with
// tracing disabled.
package obs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config configures a Provider. Enabled defaults to false: the chain-of-
// custody core must run standalone with no collector present.
type Config struct {
	ServiceName  string
	OTLPEndpoint string
	Enabled      bool
	Insecure     bool
}

// Provider bundles the logger, tracer, and meter used by ledger.AppendEvent
// and verifier.Pipeline.Run when attached via their WithObserver options.
type Provider struct {
	config         Config
	logger         *slog.Logger
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	opCounter       metric.Int64Counter
	errCounter      metric.Int64Counter
	durationHist    metric.Float64Histogram
	activeOperation metric.Int64UpDownCounter
}

// NewLogger returns a JSON slog.Logger at the given level ("debug", "info",
// "warn", "error"), writing to stderr so stdout stays reserved for CLI
// output per spec.md §6.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler).With("component", "coc-core")
}

// New constructs a Provider. With cfg.Enabled false, no exporter is created
// and no network connection is attempted; TrackOperation still writes its
// log lines but records no spans or metrics.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Provider, error) {
	p := &Provider{config: cfg, logger: logger}
	if !cfg.Enabled {
		p.logger.InfoContext(ctx, "observability disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("coc.component", "core"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("obs: build resource: %w", err)
	}

	if err := p.initTracing(ctx, res); err != nil {
		return nil, fmt.Errorf("obs: init tracing: %w", err)
	}
	if err := p.initMetrics(ctx, res); err != nil {
		return nil, fmt.Errorf("obs: init metrics: %w", err)
	}

	p.tracer = otel.Tracer("coc.core")
	p.meter = otel.Meter("coc.core")

	if err := p.initInstruments(); err != nil {
		return nil, fmt.Errorf("obs: init instruments: %w", err)
	}

	p.logger.InfoContext(ctx, "observability initialized", "endpoint", cfg.OTLPEndpoint)
	return p, nil
}

func (p *Provider) initTracing(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return err
	}
	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(p.tracerProvider)
	return nil
}

func (p *Provider) initMetrics(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return err
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initInstruments() error {
	var err error
	if p.opCounter, err = p.meter.Int64Counter("coc.operations.total"); err != nil {
		return err
	}
	if p.errCounter, err = p.meter.Int64Counter("coc.operations.errors"); err != nil {
		return err
	}
	if p.durationHist, err = p.meter.Float64Histogram("coc.operations.duration", metric.WithUnit("s")); err != nil {
		return err
	}
	if p.activeOperation, err = p.meter.Int64UpDownCounter("coc.operations.active"); err != nil {
		return err
	}
	return nil
}

// Shutdown drains and closes any active exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "shutdown trace provider failed", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "shutdown meter provider failed", "error", err)
		}
	}
	return nil
}

// TrackOperation starts a span (when enabled) and logs entry/exit around
// name; the returned function must be called with the operation's error
// (nil on success) when it completes. Every call gets its own correlation
// ID, attached to the span and to both log lines, so entry/exit pairs and
// concurrent AppendEvent/Run calls can be matched up in a log aggregator
// without depending on the OTel collector being present.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	correlationID := uuid.NewString()
	attrs = append(attrs, attribute.String("coc.correlation_id", correlationID))

	p.logger.DebugContext(ctx, "operation started", "operation", name, "correlation_id", correlationID)

	var span trace.Span
	if p.config.Enabled && p.tracer != nil {
		ctx, span = p.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
		if p.activeOperation != nil {
			p.activeOperation.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
	}

	return ctx, func(err error) {
		duration := time.Since(start)
		if p.config.Enabled {
			if p.activeOperation != nil {
				p.activeOperation.Add(ctx, -1, metric.WithAttributes(attrs...))
			}
			if p.opCounter != nil {
				p.opCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
			}
			if p.durationHist != nil {
				p.durationHist.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
			}
			if err != nil && p.errCounter != nil {
				p.errCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
			}
			if span != nil {
				if err != nil {
					span.RecordError(err)
				}
				span.End()
			}
		}
		if err != nil {
			p.logger.ErrorContext(ctx, "operation failed", "operation", name, "correlation_id", correlationID, "duration_ms", duration.Milliseconds(), "error", err)
		} else {
			p.logger.DebugContext(ctx, "operation completed", "operation", name, "correlation_id", correlationID, "duration_ms", duration.Milliseconds())
		}
	}
}
