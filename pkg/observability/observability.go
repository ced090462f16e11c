// Package observability sets up structured logging and the OpenTelemetry
// trace and metric providers, and exposes the counters the pipeline records:
// approval transitions, SLA alerts, escalations and job runs.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/hotdash/opsgate/pkg/approval"
	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/sla"
)

// ServiceName identifies the process in logs and telemetry.
const ServiceName = "opsgate"

const instrumentation = "github.com/hotdash/opsgate"

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string        // host:port of a gRPC collector
	SampleRate     float64       // 0.0 to 1.0
	BatchTimeout   time.Duration // span batch flush interval
	ExportInterval time.Duration // metric push interval
	Insecure       bool
}

// Enabled reports whether telemetry is exported at all.
func (c Config) Enabled() bool { return c.OTLPEndpoint != "" }

// DefaultConfig returns the defaults used when only an endpoint is set.
func DefaultConfig() Config {
	return Config{
		ServiceVersion: "dev",
		Environment:    "development",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		ExportInterval: 15 * time.Second,
	}
}

// Provider owns the trace and metric providers and the instruments.
type Provider struct {
	config         Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	tp             trace.TracerProvider
	mp             metric.MeterProvider
	logger         *slog.Logger

	operations   metric.Int64Counter
	errors       metric.Int64Counter
	duration     metric.Float64Histogram
	active       metric.Int64UpDownCounter
	transitions  metric.Int64Counter
	slaAlerts    metric.Int64Counter
	escalations  metric.Int64Counter
	openRequests metric.Int64UpDownCounter
}

// New builds a provider. With no endpoint configured the global no-op
// providers are used and every recording method is still safe to call.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	p := &Provider{
		config: cfg,
		logger: slog.Default().With("component", "observability"),
	}
	if !cfg.Enabled() {
		p.logger.InfoContext(ctx, "telemetry export disabled")
		return p, p.bind(otel.GetMeterProvider(), otel.GetTracerProvider())
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to init trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to init metric provider: %w", err)
	}
	if err := p.bind(p.meterProvider, p.tracerProvider); err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "telemetry initialized",
		"endpoint", cfg.OTLPEndpoint,
		"environment", cfg.Environment,
		"sample_rate", cfg.SampleRate,
		"insecure", cfg.Insecure,
	)
	return p, nil
}

// NewWithProviders builds a provider over caller-owned providers. Shutdown
// leaves them alone.
func NewWithProviders(mp metric.MeterProvider, tp trace.TracerProvider) (*Provider, error) {
	p := &Provider{logger: slog.Default().With("component", "observability")}
	return p, p.bind(mp, tp)
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(p.config.BatchTimeout)),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create metric exporter: %w", err)
	}
	interval := p.config.ExportInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) bind(mp metric.MeterProvider, tp trace.TracerProvider) error {
	p.tp, p.mp = tp, mp
	p.tracer = tp.Tracer(instrumentation)
	p.meter = mp.Meter(instrumentation)

	var err error
	if p.operations, err = p.meter.Int64Counter("opsgate.operations",
		metric.WithDescription("Operations started"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return err
	}
	if p.errors, err = p.meter.Int64Counter("opsgate.errors",
		metric.WithDescription("Operations that failed"),
		metric.WithUnit("{error}"),
	); err != nil {
		return err
	}
	if p.duration, err = p.meter.Float64Histogram("opsgate.operation.duration",
		metric.WithDescription("Operation duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120),
	); err != nil {
		return err
	}
	if p.active, err = p.meter.Int64UpDownCounter("opsgate.operations.active",
		metric.WithDescription("Operations in flight"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return err
	}
	if p.transitions, err = p.meter.Int64Counter("opsgate.approval.transitions",
		metric.WithDescription("Committed approval transitions"),
		metric.WithUnit("{transition}"),
	); err != nil {
		return err
	}
	if p.openRequests, err = p.meter.Int64UpDownCounter("opsgate.approval.open",
		metric.WithDescription("Approval requests awaiting a terminal state"),
		metric.WithUnit("{request}"),
	); err != nil {
		return err
	}
	if p.slaAlerts, err = p.meter.Int64Counter("opsgate.sla.alerts",
		metric.WithDescription("SLA alerts raised"),
		metric.WithUnit("{alert}"),
	); err != nil {
		return err
	}
	if p.escalations, err = p.meter.Int64Counter("opsgate.escalations",
		metric.WithDescription("Escalation decisions that escalated"),
		metric.WithUnit("{escalation}"),
	); err != nil {
		return err
	}
	return nil
}

// Shutdown flushes and stops the providers New created.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown trace provider", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown metric provider", "error", err)
		}
	}
	return nil
}

// Tracer returns the configured tracer.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// StartSpan starts a new span with the given name.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, opts...)
}

// HTTPHandler wraps h in a server span per request. Incoming trace context is
// extracted with the global propagator.
func (p *Provider) HTTPHandler(h http.Handler, operation string) http.Handler {
	return otelhttp.NewHandler(h, operation,
		otelhttp.WithTracerProvider(p.tp),
		otelhttp.WithMeterProvider(p.mp),
	)
}

// TrackOperation starts a span and counts the operation. Call the returned
// function with the operation's error when it completes.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := p.StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	base := append([]attribute.KeyValue{attribute.String("operation", name)}, attrs...)
	set := metric.WithAttributes(base...)
	p.active.Add(ctx, 1, set)
	p.operations.Add(ctx, 1, set)

	return ctx, func(err error) {
		p.active.Add(ctx, -1, set)
		p.duration.Record(ctx, time.Since(start).Seconds(), set)
		if err != nil {
			SetSpanStatus(ctx, err)
			failed := append(base[:len(base):len(base)], attribute.String("error.type", fmt.Sprintf("%T", err)))
			p.errors.Add(ctx, 1, metric.WithAttributes(failed...))
		}
		span.End()
	}
}

// ApprovalHook returns a hook counting committed transitions and tracking the
// number of open requests.
func (p *Provider) ApprovalHook() approval.Hook {
	return func(ctx context.Context, op string, req *contracts.ApprovalRequest) {
		p.transitions.Add(ctx, 1, metric.WithAttributes(
			TransitionAttrs(op, string(req.Kind), string(req.State))...))
		kind := metric.WithAttributes(AttrKind.String(string(req.Kind)))
		switch {
		case op == "create":
			p.openRequests.Add(ctx, 1, kind)
		case req.State.Terminal():
			p.openRequests.Add(ctx, -1, kind)
		}
		AddSpanEvent(ctx, "approval."+op, AttrRequestID.String(req.ID), AttrState.String(string(req.State)))
	}
}

// RecordSLAReport counts the alerts of one monitor pass.
func (p *Provider) RecordSLAReport(ctx context.Context, rep sla.Report) {
	for _, a := range rep.Alerts {
		p.slaAlerts.Add(ctx, 1, metric.WithAttributes(
			AttrAlert.String(string(a.Kind)),
			AttrSeverity.String(string(a.Severity)),
		))
	}
}

// RecordEscalations counts decisions that escalated.
func (p *Provider) RecordEscalations(ctx context.Context, ds []contracts.EscalationDecision) {
	for _, d := range ds {
		if !d.ShouldEscalate {
			continue
		}
		p.escalations.Add(ctx, 1, metric.WithAttributes(
			AttrTarget.String(d.Target),
			AttrUrgency.String(string(d.Urgency)),
		))
	}
}
