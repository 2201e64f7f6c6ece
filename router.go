package routekit

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ActionHandler is the business handler of a matched route. Its return value
// becomes the envelope data unless it is already a Response.
type ActionHandler func(c *Context) (any, error)

// Action describes one routable operation.
type Action struct {
	Name   string
	Method string
	Path   string

	// Handler runs after all middleware passed.
	Handler ActionHandler

	// Procedures is the action-scoped middleware list, run after the
	// global one.
	Procedures []Procedure

	// HasBodySchema marks actions that expect a request body. Body parsing
	// is skipped entirely for actions without one.
	HasBodySchema bool
}

// Params are the path parameters extracted by route matching.
type Params map[string]string

// Router resolves a method and path to a registered action.
type Router interface {
	Resolve(method, path string) (*Action, Params, bool)
}

// MuxRouter matches routes with a chi mux. Registration happens at startup;
// afterwards the router is read-only and safe for concurrent resolution.
type MuxRouter struct {
	mux     *chi.Mux
	actions map[string]*Action
}

// NewMuxRouter creates an empty router.
func NewMuxRouter() *MuxRouter {
	return &MuxRouter{
		mux:     chi.NewRouter(),
		actions: make(map[string]*Action),
	}
}

// Register adds an action to the routing table. The path uses chi's pattern
// syntax, e.g. /users/{id}.
func (rt *MuxRouter) Register(a *Action) {
	rt.mux.Method(a.Method, a.Path, http.NotFoundHandler())
	rt.actions[a.Method+" "+a.Path] = a
}

// Resolve matches a request against the routing table and extracts the path
// parameters.
func (rt *MuxRouter) Resolve(method, path string) (*Action, Params, bool) {
	rctx := chi.NewRouteContext()
	if !rt.mux.Match(rctx, method, path) {
		return nil, nil, false
	}

	pattern := rctx.RoutePattern()
	action, ok := rt.actions[method+" "+pattern]
	if !ok {
		return nil, nil, false
	}

	params := make(Params, len(rctx.URLParams.Keys))
	for i, key := range rctx.URLParams.Keys {
		if key == "*" {
			continue
		}
		params[key] = rctx.URLParams.Values[i]
	}
	return action, params, true
}
