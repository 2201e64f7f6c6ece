// Package logger provides a context-aware wrapper around Go's slog package
// adding functional options for configuration, helper attribute constructors,
// and transparent injection of values stored in context.Context.
//
// The package standardises structured logging across the framework by
// exposing a single factory - New - that creates a *slog.Logger configured by
// a set of Option functions:
//
//   - Select an output format (text or json)
//   - Set the minimum log level
//   - Supply default slog.Attr values applied to every record
//   - Register ContextExtractor callbacks that inject attributes pulled from
//     a context value (for example a request id) every time Handle is invoked
//
// New builds a decorated slog.Handler: the concrete handler implementation
// (slog.NewTextHandler or slog.NewJSONHandler) is selected by the configured
// Format, then wrapped with LogHandlerDecorator which executes registered
// ContextExtractor callbacks before delegating to the underlying handler.
//
// Helper constructors such as Error, RequestID, Procedure, Plugin, Stage
// live in attr.go and keep attribute naming consistent across the pipeline.
//
// # Usage
//
//	import "github.com/dmitrymomot/routekit/pkg/logger"
//
//	func main() {
//	    log := logger.New(
//	        logger.WithDevelopment("api"),
//	        logger.WithContextValue("request_id", ctxKeyRequestID),
//	    )
//	    logger.SetAsDefault(log)
//	}
package logger
