// Package routekit implements an HTTP request pipeline: route resolution,
// body parsing, context building, plugin proxy binding, middleware
// execution, handler invocation, and response rendering.
//
// The entry point is Processor, an http.Handler that runs every request
// through the same staged pipeline. All failures converge on a single error
// handler producing the fixed JSON error envelope, and telemetry spans are
// finalized on every path.
//
// # Basic usage
//
//	router := routekit.NewMuxRouter()
//	router.Register(&routekit.Action{
//		Name:   "get_user",
//		Method: http.MethodGet,
//		Path:   "/users/{id}",
//		Handler: func(c *routekit.Context) (any, error) {
//			return userByID(c.Std(), c.Request.Params["id"])
//		},
//	})
//
//	processor := routekit.NewProcessor(
//		routekit.WithRouter(router),
//		routekit.WithGlobalProcedures(authProcedure),
//	)
//	http.ListenAndServe(":8080", processor)
//
// Middleware comes in two control styles. Returning a map merges it into
// the request's context bag; returning a Response or calling the Next
// callback short-circuits the pipeline. Context merging is copy-on-write,
// so concurrent requests and earlier pipeline stages never observe later
// writes, and framework-reserved keys cannot be overwritten by middleware.
package routekit
