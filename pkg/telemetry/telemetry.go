package telemetry

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Stage names used for span naming and metric labels.
const (
	StageRequest      = "http_request"
	StageRouteResolve = "route_resolve"
	StageBodyParse    = "body_parse"
	StageContextBuild = "context_build"
	StageMiddleware   = "middleware"
	StageResponse     = "response"
)

// Manager creates and finishes spans and records counters for pipeline
// stages. The zero value and nil are valid no-op managers.
type Manager struct {
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics *metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithTracer sets the tracing backend. Without it, span methods are no-ops.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) {
		m.tracer = tracer
	}
}

// WithLogger sets the logger used to report contained telemetry failures.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.logger = log
		}
	}
}

// New creates a Manager. Without options it is a no-op manager.
func New(opts ...Option) *Manager {
	m := &Manager{logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Span wraps one traced unit of work. It must be finished (or cleaned up)
// exactly once; repeated finish calls have no effect.
type Span struct {
	span  trace.Span
	ctx   context.Context
	start time.Time
	name  string
	done  atomic.Bool
}

// Context returns the context carrying the span, for propagation into the
// next stage. Returns the original context when tracing is disabled.
func (s *Span) Context() context.Context {
	if s == nil || s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// Duration returns the elapsed time since the span started.
func (s *Span) Duration() time.Duration {
	if s == nil || s.start.IsZero() {
		return 0
	}
	return time.Since(s.start)
}

// recoverTelemetry contains panics raised inside telemetry calls.
// Telemetry must never be able to fail a request.
func (m *Manager) recoverTelemetry(op string) {
	if r := recover(); r != nil {
		if m != nil && m.logger != nil {
			m.logger.Error("telemetry call panicked",
				slog.String("op", op),
				slog.Any("panic", r),
			)
		}
	}
}

// StartRequestSpan opens the root span for one HTTP request.
// Returns a context carrying the span and the span handle; both are usable
// (as pass-throughs) when tracing is disabled.
func (m *Manager) StartRequestSpan(ctx context.Context, method, path string) (context.Context, *Span) {
	if m == nil || m.tracer == nil {
		return ctx, &Span{ctx: ctx, start: time.Now(), name: StageRequest}
	}
	defer m.recoverTelemetry("start_request_span")

	spanCtx, span := m.tracer.Start(ctx, "http.request",
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
		),
	)
	return spanCtx, &Span{span: span, ctx: spanCtx, start: time.Now(), name: StageRequest}
}

// FinishRequestSpan closes the request span with the resolved status code.
// A non-nil err marks the span as failed.
func (m *Manager) FinishRequestSpan(s *Span, status int, err error) {
	if s == nil || !s.done.CompareAndSwap(false, true) {
		return
	}
	if m == nil || s.span == nil {
		return
	}
	defer m.recoverTelemetry("finish_request_span")

	s.span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

// StartStageSpan opens a span for one pipeline stage, parented to the span
// in ctx.
func (m *Manager) StartStageSpan(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	if m == nil || m.tracer == nil {
		return ctx, &Span{ctx: ctx, start: time.Now(), name: stage}
	}
	defer m.recoverTelemetry("start_stage_span")

	spanCtx, span := m.tracer.Start(ctx, "pipeline."+stage, trace.WithAttributes(attrs...))
	return spanCtx, &Span{span: span, ctx: spanCtx, start: time.Now(), name: stage}
}

// FinishStageSpan closes a stage span. A non-nil err marks it failed.
func (m *Manager) FinishStageSpan(s *Span, err error, attrs ...attribute.KeyValue) {
	if s == nil || !s.done.CompareAndSwap(false, true) {
		return
	}
	if m == nil || s.span == nil {
		return
	}
	defer m.recoverTelemetry("finish_stage_span")

	s.span.SetAttributes(attrs...)
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}

// CleanupSpan closes a span whose owning stage aborted before its normal
// finish call. It records the status code and duration but no stage detail.
func (m *Manager) CleanupSpan(s *Span, status int) {
	if s == nil || !s.done.CompareAndSwap(false, true) {
		return
	}
	if m == nil || s.span == nil {
		return
	}
	defer m.recoverTelemetry("cleanup_span")

	s.span.SetAttributes(
		attribute.Int("http.status_code", status),
		attribute.Bool("aborted", true),
	)
	s.span.SetStatus(codes.Error, "stage aborted")
	s.span.End()
}

// RecordRequest records the outcome of one request.
func (m *Manager) RecordRequest(method, route string, status int, dur time.Duration) {
	if m == nil || m.metrics == nil {
		return
	}
	defer m.recoverTelemetry("record_request")

	m.metrics.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.metrics.requestDuration.WithLabelValues(method, route).Observe(dur.Seconds())
}

// RecordMiddleware records one middleware invocation.
// Outcome is one of success, early_return, error.
func (m *Manager) RecordMiddleware(scope, name, outcome string, dur time.Duration) {
	if m == nil || m.metrics == nil {
		return
	}
	defer m.recoverTelemetry("record_middleware")

	m.metrics.middlewareTotal.WithLabelValues(scope, name, outcome).Inc()
	m.metrics.middlewareDuration.WithLabelValues(scope, name).Observe(dur.Seconds())
}

// RecordBodyParse records one body parsing attempt with its byte size.
func (m *Manager) RecordBodyParse(contentType string, size int64, dur time.Duration, success bool) {
	if m == nil || m.metrics == nil {
		return
	}
	defer m.recoverTelemetry("record_body_parse")

	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.metrics.bodyParseTotal.WithLabelValues(contentType, outcome).Inc()
	if size >= 0 {
		m.metrics.bodyParseBytes.WithLabelValues(contentType).Observe(float64(size))
	}
	m.metrics.bodyParseDuration.WithLabelValues(contentType).Observe(dur.Seconds())
}

// RecordContextBuild records one context build with its plugin count.
func (m *Manager) RecordContextBuild(pluginCount int, dur time.Duration) {
	if m == nil || m.metrics == nil {
		return
	}
	defer m.recoverTelemetry("record_context_build")

	m.metrics.contextBuildTotal.WithLabelValues(strconv.FormatBool(pluginCount > 0)).Inc()
	m.metrics.contextBuildDuration.Observe(dur.Seconds())
}
