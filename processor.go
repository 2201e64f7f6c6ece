package routekit

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/routekit/pkg/bodyparser"
	"github.com/dmitrymomot/routekit/pkg/logger"
	"github.com/dmitrymomot/routekit/pkg/plugin"
	"github.com/dmitrymomot/routekit/pkg/telemetry"
)

// ContextFactory builds the application-level context values for one
// request. A failing factory degrades the request to an empty context
// instead of failing it.
type ContextFactory func(r *http.Request) (map[string]any, error)

// Processor is the request pipeline entry point. For each request it
// resolves the route, builds the context, binds plugin proxies, runs global
// then action middleware, invokes the handler, and renders the result. Every
// failure on that path converges on the error handler, and the request span
// is always finalized.
type Processor struct {
	router    Router
	global    []Procedure
	factory   ContextFactory
	plugins   *plugin.Manager
	parser    *bodyparser.Parser
	executor  *Executor
	errors    *ErrorHandler
	telemetry *telemetry.Manager
	log       *slog.Logger
	store     any
	jobs      any
	tracker   Tracker
	cfg       Config
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithConfig applies environment-driven settings. The default error handler
// inherits the config's detail exposure policy.
func WithConfig(cfg Config) ProcessorOption {
	return func(p *Processor) {
		p.cfg = cfg
	}
}

// WithRouter sets the route matcher.
func WithRouter(router Router) ProcessorOption {
	return func(p *Processor) {
		p.router = router
	}
}

// WithGlobalProcedures sets the middleware list run before every action's
// own list.
func WithGlobalProcedures(procs ...Procedure) ProcessorOption {
	return func(p *Processor) {
		p.global = procs
	}
}

// WithContextFactory sets the application context factory.
func WithContextFactory(factory ContextFactory) ProcessorOption {
	return func(p *Processor) {
		p.factory = factory
	}
}

// WithContextValues sets a static application context shared by every
// request. It is a shorthand for a factory returning a fixed map.
func WithContextValues(values map[string]any) ProcessorOption {
	return func(p *Processor) {
		p.factory = func(*http.Request) (map[string]any, error) {
			return values, nil
		}
	}
}

// WithErrorTracker sets the tracking hook on the default error handler. It
// is ignored when tracking is disabled via config or when a custom error
// handler is supplied.
func WithErrorTracker(track Tracker) ProcessorOption {
	return func(p *Processor) {
		p.tracker = track
	}
}

// WithPlugins sets the plugin manager whose proxies are bound per request.
func WithPlugins(manager *plugin.Manager) ProcessorOption {
	return func(p *Processor) {
		p.plugins = manager
	}
}

// WithBodyParser sets the body parser.
func WithBodyParser(parser *bodyparser.Parser) ProcessorOption {
	return func(p *Processor) {
		if parser != nil {
			p.parser = parser
		}
	}
}

// WithTelemetry sets the telemetry manager shared by all pipeline stages.
func WithTelemetry(tm *telemetry.Manager) ProcessorOption {
	return func(p *Processor) {
		p.telemetry = tm
	}
}

// WithErrorHandler sets the error handler.
func WithErrorHandler(h *ErrorHandler) ProcessorOption {
	return func(p *Processor) {
		if h != nil {
			p.errors = h
		}
	}
}

// WithProcessorLogger sets the pipeline logger.
func WithProcessorLogger(log *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if log != nil {
			p.log = log.With(logger.Component("processor"))
		}
	}
}

// WithStore injects the value exposed to middleware under the reserved
// "store" context key.
func WithStore(store any) ProcessorOption {
	return func(p *Processor) {
		p.store = store
	}
}

// WithJobs injects the value exposed under the reserved "jobs" context key.
func WithJobs(jobs any) ProcessorOption {
	return func(p *Processor) {
		p.jobs = jobs
	}
}

// NewProcessor creates a pipeline processor. Without options it uses a fresh
// router, a default body parser, and no-op telemetry.
func NewProcessor(opts ...ProcessorOption) *Processor {
	p := &Processor{
		router: NewMuxRouter(),
		log:    slog.Default().With(logger.Component("processor")),
		cfg:    Config{Environment: "production"},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.telemetry == nil {
		p.telemetry = telemetry.New()
	}
	if p.parser == nil {
		p.parser = bodyparser.New(
			bodyparser.WithLogger(p.log),
			bodyparser.WithTelemetry(p.telemetry),
		)
	}
	if p.executor == nil {
		p.executor = NewExecutor(
			WithExecutorLogger(p.log),
			WithExecutorTelemetry(p.telemetry),
		)
	}
	if p.errors == nil {
		errOpts := []ErrorHandlerOption{
			WithErrorLogger(p.log),
			WithErrorTelemetry(p.telemetry),
			WithDetailsExposed(p.cfg.ExposeErrorDetails()),
		}
		if p.tracker != nil && !p.cfg.ErrorTrackingDisabled {
			errOpts = append(errOpts, WithTracker(p.tracker))
		}
		p.errors = NewErrorHandler(errOpts...)
	}
	return p
}

// ServeHTTP implements http.Handler.
func (p *Processor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

	spanCtx, span := p.telemetry.StartRequestSpan(r.Context(), r.Method, r.URL.Path)
	r = r.WithContext(spanCtx)

	resp, route := p.process(r, span, start)
	p.render(ww, r, resp)

	status := ww.Status()
	if status == 0 {
		status = http.StatusOK
	}
	// No-op when the error handler already finished the span.
	p.telemetry.FinishRequestSpan(span, status, nil)
	p.telemetry.RecordRequest(r.Method, route, status, time.Since(start))
}

// process runs the pipeline and always produces a response. The returned
// route is the matched pattern, or the raw path when no route matched.
func (p *Processor) process(r *http.Request, span *telemetry.Span, start time.Time) (resp Response, route string) {
	route = r.URL.Path

	_, resolveSpan := p.telemetry.StartStageSpan(r.Context(), telemetry.StageRouteResolve)
	action, params, ok := p.router.Resolve(r.Method, r.URL.Path)
	p.telemetry.FinishStageSpan(resolveSpan, nil)

	if !ok {
		c := p.bareContext(r)
		return p.errors.Handle(c, NewNotFoundError(r.Method, r.URL.Path), span, start), route
	}
	route = action.Path

	c, initErr := p.buildContext(r, action, params, span)
	if initErr != nil {
		return p.errors.HandleInitialization(r, initErr, span), route
	}

	// Middleware and handler panics are programmer errors surfaced as 500s,
	// never crashes.
	defer func() {
		if rec := recover(); rec != nil {
			resp = p.errors.Handle(c, rec, span, start)
		}
	}()

	c = p.enhanceWithPlugins(c)

	if res := p.executor.ExecuteGlobal(c, p.global); !res.Success {
		return p.shortCircuit(c, res, span, start), route
	} else {
		c = res.Ctx
	}

	if res := p.executor.ExecuteAction(c, action.Procedures); !res.Success {
		return p.shortCircuit(c, res, span, start), route
	} else {
		c = res.Ctx
	}

	// The transport may have aborted the request while middleware was
	// suspended; treat that as a pipeline error instead of running the
	// handler against a dead connection.
	if err := r.Context().Err(); err != nil {
		return p.errors.Handle(c, err, span, start), route
	}

	value, err := action.Handler(c)
	if err != nil {
		return p.errors.Handle(c, err, span, start), route
	}
	if rv, ok := value.(Response); ok {
		return rv, route
	}
	return c.Response.JSON(value), route
}

// shortCircuit converts a non-success middleware result into a response.
func (p *Processor) shortCircuit(c *Context, res Result, span *telemetry.Span, start time.Time) Response {
	switch {
	case res.Err != nil:
		return p.errors.Handle(c, res.Err, span, start)
	case res.EarlyReturn != nil:
		return res.EarlyReturn
	case res.HasCustom:
		return c.Response.JSON(res.CustomResult)
	default:
		return p.errors.Handle(c, fmt.Errorf("middleware stopped without a result"), span, start)
	}
}

// bareContext builds a minimal context for failures that happen before the
// normal context build, e.g. unmatched routes.
func (p *Processor) bareContext(r *http.Request) *Context {
	return NewContext(newRequest(r, nil, nil))
}

// buildContext assembles the per-request context. Factory failures degrade
// to an empty value bag and body parsing failures degrade to a nil body;
// only a panic escaping both recoveries is reported as an initialization
// failure.
func (p *Processor) buildContext(r *http.Request, action *Action, params Params, span *telemetry.Span) (c *Context, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("context build panicked: %v", rec)
		}
	}()

	_, stage := p.telemetry.StartStageSpan(r.Context(), telemetry.StageContextBuild)
	defer func() {
		p.telemetry.FinishStageSpan(stage, err)
	}()

	values := p.factoryValues(r)
	body := p.parseBody(r, action)

	c = NewContext(newRequest(r, params, body))
	c = c.withValues(values, false, p.log)
	c = c.withValues(map[string]any{
		KeyLogger:       p.log.With(logger.Route(action.Name)),
		KeyTelemetry:    p.telemetry,
		KeySpan:         span,
		KeyTraceContext: span.Context(),
		KeyStore:        p.store,
		KeyJobs:         p.jobs,
	}, true, nil)

	pluginCount := 0
	if p.plugins != nil {
		pluginCount = len(p.plugins.Proxies())
	}
	p.telemetry.RecordContextBuild(pluginCount, stage.Duration())

	return c, nil
}

// factoryValues runs the context factory, degrading any failure to an empty
// bag. Validation downstream is the real gate for missing context values.
func (p *Processor) factoryValues(r *http.Request) map[string]any {
	if p.factory == nil {
		return map[string]any{}
	}

	defer func() {
		if rec := recover(); rec != nil {
			p.log.Warn("context factory panicked, continuing with empty context",
				slog.Any("panic", rec),
				logger.Path(r.URL.Path),
			)
		}
	}()

	values, err := p.factory(r)
	if err != nil {
		p.log.Warn("context factory failed, continuing with empty context",
			logger.Error(err),
			logger.Path(r.URL.Path),
		)
		return map[string]any{}
	}
	if values == nil {
		return map[string]any{}
	}
	return values
}

// parseBody parses the request body, degrading any failure to a nil body.
func (p *Processor) parseBody(r *http.Request, action *Action) any {
	body, err := p.parser.Parse(r, action.HasBodySchema)
	if err != nil {
		p.log.Warn("body parsing failed, continuing with nil body",
			logger.Error(err),
			logger.Path(r.URL.Path),
			logger.ContentType(r.Header.Get("Content-Type")),
		)
		return nil
	}
	return body
}

// enhanceWithPlugins binds every registered plugin proxy to this request's
// context bag. One misbehaving plugin is dropped for this request; it never
// takes the pipeline down.
func (p *Processor) enhanceWithPlugins(c *Context) *Context {
	if p.plugins == nil {
		return c
	}

	proxies := p.plugins.Proxies()
	bound := make(map[string]*plugin.Proxy, len(proxies))
	for name, proxy := range proxies {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					p.log.Error("plugin proxy binding failed",
						logger.Plugin(name),
						slog.Any("panic", rec),
					)
				}
			}()
			bound[name] = proxy.Bind(c.Values)
		}()
	}
	return c.withPlugins(bound)
}

// render writes the response. A serialization failure that happens before
// any bytes were written is replaced with a plain 500 envelope; after bytes
// were written there is nothing safe to send, so it is only logged.
func (p *Processor) render(w middleware.WrapResponseWriter, r *http.Request, resp Response) {
	_, stage := p.telemetry.StartStageSpan(r.Context(), telemetry.StageResponse)
	err := resp.Render(w, r)
	p.telemetry.FinishStageSpan(stage, err)
	if err == nil {
		return
	}

	p.log.Error("response rendering failed",
		logger.Error(err),
		logger.Path(r.URL.Path),
		logger.Method(r.Method),
	)
	if w.BytesWritten() == 0 {
		fallback := JSONError(http.StatusInternalServerError, &ErrorDetail{
			Message: "Failed to serialize response",
			Code:    CodeInternal,
		})
		if ferr := fallback.Render(w, r); ferr != nil {
			p.log.Error("fallback response rendering failed", logger.Error(ferr))
		}
	}
}
