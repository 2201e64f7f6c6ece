// Package telemetry instruments the request pipeline with tracing spans and
// Prometheus metrics.
//
// The Manager is strictly best-effort: a nil Manager, a Manager without a
// tracer, and a Manager without metrics are all total no-ops, and any panic
// raised inside a telemetry call is contained and logged instead of
// propagating. Pipeline correctness never depends on telemetry being present
// or healthy.
//
// Each traced unit of work is represented by a Span with a strict lifecycle:
// created, then consumed exactly once by a finish call (success or error) or
// by Cleanup when the owning stage aborted early. Finishing a span twice is
// a no-op.
package telemetry
