package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the Prometheus collectors for the pipeline.
type metrics struct {
	requestsTotal        *prometheus.CounterVec
	requestDuration      *prometheus.HistogramVec
	middlewareTotal      *prometheus.CounterVec
	middlewareDuration   *prometheus.HistogramVec
	bodyParseTotal       *prometheus.CounterVec
	bodyParseBytes       *prometheus.HistogramVec
	bodyParseDuration    *prometheus.HistogramVec
	contextBuildTotal    *prometheus.CounterVec
	contextBuildDuration prometheus.Histogram
}

// WithMetrics registers pipeline collectors on the given registerer under
// the given namespace. Collectors already registered (e.g. across manager
// instances in tests) are reused instead of failing.
func WithMetrics(reg prometheus.Registerer, namespace string) Option {
	return func(m *Manager) {
		if reg == nil {
			return
		}
		if namespace == "" {
			namespace = "routekit"
		}
		m.metrics = newMetrics(reg, namespace)
	}
}

func newMetrics(reg prometheus.Registerer, namespace string) *metrics {
	mt := &metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests processed by the pipeline.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end request processing duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		middlewareTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "middleware_total",
			Help:      "Middleware invocations by outcome.",
		}, []string{"scope", "procedure", "outcome"}),
		middlewareDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "middleware_duration_seconds",
			Help:      "Single middleware invocation duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"scope", "procedure"}),
		bodyParseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "body_parse_total",
			Help:      "Body parsing attempts by outcome.",
		}, []string{"content_type", "outcome"}),
		bodyParseBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "body_parse_bytes",
			Help:      "Parsed request body size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
		}, []string{"content_type"}),
		bodyParseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "body_parse_duration_seconds",
			Help:      "Body parsing duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"content_type"}),
		contextBuildTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_build_total",
			Help:      "Context builds, labelled by plugin presence.",
		}, []string{"has_plugins"}),
		contextBuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_build_duration_seconds",
			Help:      "Context build duration.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	mt.requestsTotal = registerCounterVec(reg, mt.requestsTotal)
	mt.requestDuration = registerHistogramVec(reg, mt.requestDuration)
	mt.middlewareTotal = registerCounterVec(reg, mt.middlewareTotal)
	mt.middlewareDuration = registerHistogramVec(reg, mt.middlewareDuration)
	mt.bodyParseTotal = registerCounterVec(reg, mt.bodyParseTotal)
	mt.bodyParseBytes = registerHistogramVec(reg, mt.bodyParseBytes)
	mt.bodyParseDuration = registerHistogramVec(reg, mt.bodyParseDuration)
	mt.contextBuildTotal = registerCounterVec(reg, mt.contextBuildTotal)
	mt.contextBuildDuration = registerHistogram(reg, mt.contextBuildDuration)

	return mt
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	return c
}

func registerHistogramVec(reg prometheus.Registerer, h *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := reg.Register(h); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(*prometheus.HistogramVec)
		}
	}
	return h
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram) prometheus.Histogram {
	if err := reg.Register(h); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(prometheus.Histogram)
		}
	}
	return h
}
