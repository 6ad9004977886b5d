package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

//nolint:gochecknoglobals // OpenTelemetry attribute keys are shared by every tracer
var (
	AttrMethodKey  = attribute.Key("sitekit_method")
	AttrPackageKey = attribute.Key("sitekit_package")
	AttrStatusKey  = attribute.Key("sitekit_status")
	AttrErrorKey   = attribute.Key("sitekit_error")
)

// Tracer starts spans and records their latency when they end.
type Tracer interface {
	Start(ctx context.Context, spanName string, options ...trace.SpanStartOption) (context.Context, trace.Span)
	End(ctx context.Context, span trace.Span, err error, options ...trace.SpanEndOption)
}

type contextKey string

func (c contextKey) String() string {
	return "sitekit/telemetry/" + string(c)
}

const ctxKeySpanStart = contextKey("spanStart")

type spanStart struct {
	at     time.Time
	method string
}

type tracer struct {
	name    string
	tracer  trace.Tracer
	latency metric.Float64Histogram
}

// NewTracer creates the tracer of the package called name. It resolves the
// global providers lazily so it can be created before Init.
func NewTracer(name string, options ...trace.TracerOption) Tracer {
	return &tracer{
		name:    name,
		tracer:  otel.Tracer(name, options...),
		latency: LatencyMeasure(name),
	}
}

//nolint:spancheck // the span is ended by End
func (t *tracer) Start(ctx context.Context, spanName string, options ...trace.SpanStartOption) (context.Context, trace.Span) {
	options = append(options, trace.WithAttributes(AttrMethodKey.String(spanName)))

	ctx, span := t.tracer.Start(ctx, spanName, options...)
	return context.WithValue(ctx, ctxKeySpanStart, spanStart{at: time.Now(), method: t.name + "/" + spanName}), span
}

func (t *tracer) End(ctx context.Context, span trace.Span, err error, options ...trace.SpanEndOption) {
	if err != nil {
		options = append(options, trace.WithStackTrace(true))
		span.SetAttributes(AttrErrorKey.String(err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(options...)

	start, ok := ctx.Value(ctxKeySpanStart).(spanStart)
	if !ok {
		return
	}

	t.latency.Record(ctx,
		float64(time.Since(start.at).Milliseconds()),
		metric.WithAttributes(
			AttrStatusKey.String(ErrorCode(err)),
			AttrMethodKey.String(start.method)),
	)
}

// ErrorCode is the status attribute recorded for err.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline exceeded"
	default:
		return "err"
	}
}
