package routekit

import (
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dmitrymomot/routekit/pkg/logger"
	"github.com/dmitrymomot/routekit/pkg/telemetry"
)

// Procedure is one named middleware unit run before an action handler.
type Procedure struct {
	Name    string
	Handler ProcedureFunc
}

// ProcedureFunc is the middleware signature. Two control styles coexist:
//
//   - Return a map[string]any patch to merge into the context bag, or a
//     Response to short-circuit the pipeline with that exact response, or an
//     error to abort the request with a 500.
//   - Call pc.Next to issue an explicit instruction: Next(err, nil) aborts
//     with err, Next(nil, result) short-circuits with result as the success
//     payload, NextStop halts the remaining middleware while letting the
//     handler run, NextSkip moves on ignoring the return value.
//
// When a procedure both calls Next and returns a value, the Next instruction
// wins and the return value is ignored.
type ProcedureFunc func(pc *ProcedureContext) (any, error)

// ProcedureContext is the scoped view a procedure receives. Values is the
// current context bag; writes go through returned patches, not through this
// map.
type ProcedureContext struct {
	Request  *Request
	Values   map[string]any
	Response *ResponseBuilder

	// Next issues an explicit control instruction for this invocation.
	// Only the first call takes effect.
	Next NextFunc
}

// NextFunc carries an explicit middleware instruction back to the executor.
type NextFunc func(err error, result any, opts ...NextOption)

// NextOption modifies a Next instruction.
type NextOption func(*nextInstruction)

// NextStop halts the remaining middleware in the list; the pipeline then
// continues past middleware to the handler.
func NextStop() NextOption {
	return func(n *nextInstruction) { n.stop = true }
}

// NextSkip moves on to the next middleware, discarding this procedure's
// return value.
func NextSkip() NextOption {
	return func(n *nextInstruction) { n.skip = true }
}

// nextInstruction captures at most one Next call per procedure invocation.
// It is created right before the call, read right after, then discarded.
type nextInstruction struct {
	called bool
	err    error
	result any
	skip   bool
	stop   bool
}

func (n *nextInstruction) record(err error, result any, opts ...NextOption) {
	if n.called {
		return
	}
	n.called = true
	n.err = err
	n.result = result
	for _, opt := range opts {
		opt(n)
	}
}

// Result is the outcome of running one middleware list. When Success is
// true, Ctx is the authoritative updated context. When false, exactly one of
// EarlyReturn, Err, or CustomResult explains why the list stopped.
type Result struct {
	Success bool
	Ctx     *Context

	// EarlyReturn is a fully formed response returned by a procedure.
	EarlyReturn Response

	// Err aborts the request through the error handler.
	Err error

	// CustomResult short-circuits the pipeline with a success payload that
	// is rendered the same way a handler result would be. HasCustom
	// distinguishes an explicit nil result from absence.
	CustomResult any
	HasCustom    bool
}

// Middleware telemetry scopes.
const (
	ScopeGlobal = "global"
	ScopeAction = "action"
)

// Executor runs middleware lists against a request context.
type Executor struct {
	log       *slog.Logger
	telemetry *telemetry.Manager
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the executor's logger.
func WithExecutorLogger(log *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if log != nil {
			e.log = log.With(logger.Component("middleware_executor"))
		}
	}
}

// WithExecutorTelemetry sets the telemetry manager.
func WithExecutorTelemetry(tm *telemetry.Manager) ExecutorOption {
	return func(e *Executor) {
		e.telemetry = tm
	}
}

// NewExecutor creates a middleware executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		log: slog.Default().With(logger.Component("middleware_executor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteGlobal runs the application-wide middleware list.
func (e *Executor) ExecuteGlobal(c *Context, procs []Procedure) Result {
	return e.execute(c, procs, ScopeGlobal)
}

// ExecuteAction runs the matched action's middleware list.
func (e *Executor) ExecuteAction(c *Context, procs []Procedure) Result {
	return e.execute(c, procs, ScopeAction)
}

func (e *Executor) execute(c *Context, procs []Procedure, scope string) Result {
	for _, proc := range procs {
		if proc.Handler == nil {
			e.log.Warn("skipping middleware without handler",
				logger.Procedure(proc.Name),
				slog.String("scope", scope),
			)
			continue
		}

		_, span := e.telemetry.StartStageSpan(c.Std(), telemetry.StageMiddleware,
			attribute.String("middleware.scope", scope),
			attribute.String("middleware.name", proc.Name),
		)

		instr := &nextInstruction{}
		pc := &ProcedureContext{
			Request:  c.Request,
			Values:   c.Values,
			Response: c.Response,
			Next:     instr.record,
		}

		value, err := proc.Handler(pc)

		switch {
		case instr.called && instr.err != nil:
			e.finish(span, scope, proc.Name, "error", instr.err)
			return Result{Ctx: c, Err: instr.err}

		case instr.called && instr.result != nil:
			e.finish(span, scope, proc.Name, "early_return", nil)
			return Result{Ctx: c, CustomResult: instr.result, HasCustom: true}

		case instr.called && instr.stop:
			e.finish(span, scope, proc.Name, "success", nil)
			return Result{Success: true, Ctx: c}

		case instr.called && instr.skip:
			e.finish(span, scope, proc.Name, "success", nil)
			continue

		case err != nil:
			e.finish(span, scope, proc.Name, "error", err)
			return Result{Ctx: c, Err: err}
		}

		switch v := value.(type) {
		case Response:
			e.finish(span, scope, proc.Name, "early_return", nil)
			return Result{Ctx: c, EarlyReturn: v}

		case map[string]any:
			c = c.withValues(v, false, e.log)
		}

		e.finish(span, scope, proc.Name, "success", nil)
	}

	return Result{Success: true, Ctx: c}
}

func (e *Executor) finish(span *telemetry.Span, scope, name, outcome string, err error) {
	dur := span.Duration()
	e.telemetry.FinishStageSpan(span, err,
		attribute.String("middleware.outcome", outcome),
	)
	e.telemetry.RecordMiddleware(scope, name, outcome, dur)
}
