// Package telemetry installs the OpenTelemetry providers of a site and offers
// the tracer used by the packages that make outgoing or slow calls.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"runtime"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/contrib/propagators/autoprop"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklogs "go.opentelemetry.io/otel/sdk/log"
	sdkmetrics "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.40.0"

	"github.com/pitabwire/sitekit/config"
)

const defaultSamplingRatio = 1.0

type Manager interface {
	Init(ctx context.Context) error
	Disabled() bool
	LogHandler() slog.Handler
	Shutdown(ctx context.Context) error
}

type manager struct {
	serviceName        string
	serviceVersion     string
	serviceEnvironment string

	cfg config.ConfigurationTelemetry

	disabled bool

	textMap       propagation.TextMapPropagator
	traceExporter sdktrace.SpanExporter
	traceSampler  sdktrace.Sampler
	metricsReader sdkmetrics.Reader
	logsExporter  sdklogs.Exporter
	views         []sdkmetrics.View

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetrics.MeterProvider
	loggerProvider *sdklogs.LoggerProvider

	logHandler slog.Handler
}

// NewManager creates a telemetry manager. Nothing is installed until Init.
func NewManager(ctx context.Context, cfg config.ConfigurationTelemetry, opts ...Option) Manager {
	m := &manager{cfg: cfg}
	if cfg != nil && cfg.DisableOpenTelemetry() {
		m.disabled = true
	}

	for _, opt := range opts {
		opt(ctx, m)
	}

	return m
}

func (m *manager) Disabled() bool {
	return m.disabled
}

// LogHandler is the otel log bridge, nil until Init succeeds.
func (m *manager) LogHandler() slog.Handler {
	return m.logHandler
}

func (m *manager) Init(ctx context.Context) error {
	if m.disabled {
		return nil
	}

	res, err := m.setupResource()
	if err != nil {
		return err
	}

	m.setupTextMapPropagator()
	m.setupTraceSampler()

	if err = m.setupTraceExporter(ctx); err != nil {
		return err
	}
	if err = m.setupMetricsReader(ctx); err != nil {
		return err
	}
	if err = m.setupLogsExporter(ctx); err != nil {
		return err
	}

	m.setupProviders(res)
	return nil
}

// Shutdown flushes and stops the installed providers.
func (m *manager) Shutdown(ctx context.Context) error {
	var errs []error
	if m.tracerProvider != nil {
		errs = append(errs, m.tracerProvider.Shutdown(ctx))
	}
	if m.meterProvider != nil {
		errs = append(errs, m.meterProvider.Shutdown(ctx))
	}
	if m.loggerProvider != nil {
		errs = append(errs, m.loggerProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func (m *manager) setupResource() (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(m.serviceName),
		semconv.ServiceVersion(m.serviceVersion),
		semconv.ServiceNamespace(m.serviceEnvironment),
		semconv.DeploymentEnvironmentName(m.serviceEnvironment),
		semconv.ProcessPID(os.Getpid()),
		semconv.ProcessRuntimeName("go"),
		semconv.ProcessRuntimeVersion(runtime.Version()),
	}

	return resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
}

func (m *manager) setupTextMapPropagator() {
	if m.textMap == nil {
		m.textMap = autoprop.NewTextMapPropagator()
	}
}

func (m *manager) setupTraceSampler() {
	if m.traceSampler != nil {
		return
	}

	ratio := defaultSamplingRatio
	if m.cfg != nil {
		ratio = m.cfg.SamplingRatio()
	}
	m.traceSampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Exporters default to "none" so a site without an OTEL_* environment exports nothing.
func (m *manager) setupTraceExporter(ctx context.Context) error {
	if m.traceExporter != nil {
		return nil
	}
	defaultExporter("OTEL_TRACES_EXPORTER")

	var err error
	m.traceExporter, err = autoexport.NewSpanExporter(ctx)
	return err
}

func (m *manager) setupMetricsReader(ctx context.Context) error {
	if m.metricsReader != nil {
		return nil
	}
	defaultExporter("OTEL_METRICS_EXPORTER")

	var err error
	m.metricsReader, err = autoexport.NewMetricReader(ctx)
	return err
}

func (m *manager) setupLogsExporter(ctx context.Context) error {
	if m.logsExporter != nil {
		return nil
	}
	defaultExporter("OTEL_LOGS_EXPORTER")

	var err error
	m.logsExporter, err = autoexport.NewLogExporter(ctx)
	return err
}

func defaultExporter(env string) {
	if os.Getenv(env) == "" {
		_ = os.Setenv(env, "none")
	}
}

func (m *manager) setupProviders(res *resource.Resource) {
	otel.SetTextMapPropagator(m.textMap)

	m.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithSampler(m.traceSampler),
		sdktrace.WithBatcher(m.traceExporter),
		sdktrace.WithResource(res))
	otel.SetTracerProvider(m.tracerProvider)

	m.meterProvider = sdkmetrics.NewMeterProvider(
		sdkmetrics.WithReader(m.metricsReader),
		sdkmetrics.WithResource(res),
		sdkmetrics.WithView(append(LatencyViews(), m.views...)...),
	)
	otel.SetMeterProvider(m.meterProvider)

	m.loggerProvider = sdklogs.NewLoggerProvider(
		sdklogs.WithResource(res),
		sdklogs.WithProcessor(sdklogs.NewBatchProcessor(m.logsExporter)),
	)
	global.SetLoggerProvider(m.loggerProvider)

	m.logHandler = otelslog.NewHandler(m.serviceName,
		otelslog.WithSource(true),
		otelslog.WithLoggerProvider(m.loggerProvider),
		otelslog.WithAttributes(res.Attributes()...))
}
