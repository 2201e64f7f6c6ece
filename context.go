package routekit

import (
	"context"
	"log/slog"
	"maps"

	"github.com/dmitrymomot/routekit/pkg/logger"
	"github.com/dmitrymomot/routekit/pkg/plugin"
)

// Reserved context keys only the framework may set. A procedure attempting
// to write one of these has the write silently dropped and logged; the
// request never fails because of it.
const (
	KeyStore        = "store"
	KeyLogger       = "logger"
	KeyJobs         = "jobs"
	KeyTelemetry    = "telemetry"
	KeySpan         = "span"
	KeyTraceContext = "traceContext"
)

var reservedKeys = map[string]struct{}{
	KeyStore:        {},
	KeyLogger:       {},
	KeyJobs:         {},
	KeyTelemetry:    {},
	KeySpan:         {},
	KeyTraceContext: {},
}

// IsReservedKey reports whether the given context key is framework-owned.
func IsReservedKey(key string) bool {
	_, ok := reservedKeys[key]
	return ok
}

// Context is the per-request unit threaded through every pipeline stage.
//
// Stages never mutate a Context in place across stage boundaries: a stage
// that changes the value bag produces a new Context with a fresh merged map,
// so a reference captured before the stage ran (e.g. by a background
// telemetry callback) is guaranteed not to observe later writes.
type Context struct {
	// Request is built once by the context builder and never reassigned.
	Request *Request

	// Response is the response builder owned by this request.
	Response *ResponseBuilder

	// Values is the extensible application context bag. Procedures may add
	// new keys or overwrite non-reserved ones via returned patches.
	Values map[string]any

	// Plugins holds the request-bound plugin proxies injected by the
	// pipeline; read-only from a procedure's perspective.
	Plugins map[string]*plugin.Proxy
}

// NewContext creates a context for req with a fresh response builder and an
// empty value bag.
func NewContext(req *Request) *Context {
	return &Context{
		Request:  req,
		Response: newResponseBuilder(),
		Values:   map[string]any{},
	}
}

// Value returns a value from the context bag.
func (c *Context) Value(key string) any {
	return c.Values[key]
}

// Std returns the standard library context of the underlying request.
func (c *Context) Std() context.Context {
	if c.Request != nil && c.Request.Raw != nil {
		return c.Request.Raw.Context()
	}
	return context.Background()
}

// Logger returns the request-scoped logger injected by the context builder,
// falling back to the default logger.
func (c *Context) Logger() *slog.Logger {
	if log, ok := c.Values[KeyLogger].(*slog.Logger); ok {
		return log
	}
	return slog.Default()
}

// withValues returns a new Context whose bag is the shallow-merged union of
// the current bag and patch. Reserved keys in patch are dropped and logged
// unless fromFramework is set.
func (c *Context) withValues(patch map[string]any, fromFramework bool, log *slog.Logger) *Context {
	merged := make(map[string]any, len(c.Values)+len(patch))
	maps.Copy(merged, c.Values)

	for key, value := range patch {
		if !fromFramework && IsReservedKey(key) {
			if log != nil {
				log.Warn("dropped reserved context key from middleware",
					slog.String("key", key),
					logger.Path(c.Request.Path),
					logger.Method(c.Request.Method),
				)
			}
			continue
		}
		merged[key] = value
	}

	return &Context{
		Request:  c.Request,
		Response: c.Response,
		Values:   merged,
		Plugins:  c.Plugins,
	}
}

// withPlugins returns a new Context carrying the given request-bound proxies.
// The bag also exposes them under the "plugins" key for bag-style access.
func (c *Context) withPlugins(proxies map[string]*plugin.Proxy) *Context {
	next := c.withValues(map[string]any{"plugins": proxies}, true, nil)
	next.Plugins = proxies
	return next
}
