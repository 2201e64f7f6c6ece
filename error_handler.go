package routekit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/dmitrymomot/routekit/pkg/logger"
	"github.com/dmitrymomot/routekit/pkg/requestid"
	"github.com/dmitrymomot/routekit/pkg/telemetry"
)

// NormalizedError is the canonical shape every failure is reduced to for
// logging and tracking, regardless of what was raised.
type NormalizedError struct {
	Message string
	Code    string
	Details any
	Stack   string
}

// normalizeError reduces an arbitrary raised value to NormalizedError.
// The mapping is part of the public contract:
//
//	nil            -> UNKNOWN_ERROR
//	string         -> GENERIC_ERROR with the string as message
//	*Error         -> its own code, message, and details
//	error          -> GENERIC_ERROR with err.Error() as message
//	map            -> GENERIC_ERROR shaped from its message/code keys
//	anything else  -> UNKNOWN_ERROR with the value's string form
//
// A value carrying validation issues normalizes to VALIDATION_ERROR even
// when it arrives outside the validation classification path.
func normalizeError(v any) NormalizedError {
	if issues, ok := validationIssuesOf(v); ok {
		return NormalizedError{
			Message: "Validation Error",
			Code:    CodeValidation,
			Details: issues,
		}
	}

	switch err := v.(type) {
	case nil:
		return NormalizedError{Message: "Unknown error", Code: CodeUnknown}
	case string:
		return NormalizedError{Message: err, Code: CodeGeneric}
	case *Error:
		return NormalizedError{Message: err.Message, Code: err.Code, Details: err.Details}
	case error:
		var fe *Error
		if errors.As(err, &fe) {
			return NormalizedError{Message: fe.Message, Code: fe.Code, Details: fe.Details}
		}
		return NormalizedError{Message: err.Error(), Code: CodeGeneric}
	case map[string]any:
		message, _ := err["message"].(string)
		if message == "" {
			message = "Object-based error"
		}
		code, _ := err["code"].(string)
		if code == "" {
			code = CodeGeneric
		}
		return NormalizedError{Message: message, Code: code, Details: err["details"]}
	default:
		return NormalizedError{Message: fmt.Sprint(v), Code: CodeUnknown}
	}
}

// Tracker receives normalized errors for external bookkeeping (an error
// tracking service, an audit sink). Failures are discarded; tracking may
// never affect the request.
type Tracker func(ctx context.Context, err NormalizedError) error

// ErrorHandler is the single convergence point for every pipeline failure.
// It classifies the raised value, logs it once, finishes the telemetry span
// with the resolved status, and produces the error envelope response.
type ErrorHandler struct {
	log           *slog.Logger
	telemetry     *telemetry.Manager
	exposeDetails bool
	track         Tracker
	fallback      *slog.Logger
}

// ErrorHandlerOption configures an ErrorHandler.
type ErrorHandlerOption func(*ErrorHandler)

// WithErrorLogger sets the handler's logger.
func WithErrorLogger(log *slog.Logger) ErrorHandlerOption {
	return func(h *ErrorHandler) {
		if log != nil {
			h.log = log.With(logger.Component("error_handler"))
		}
	}
}

// WithErrorTelemetry sets the telemetry manager.
func WithErrorTelemetry(tm *telemetry.Manager) ErrorHandlerOption {
	return func(h *ErrorHandler) {
		h.telemetry = tm
	}
}

// WithDetailsExposed controls whether generic 500s echo the underlying error
// in the details field. Enable only in development-like environments.
func WithDetailsExposed(expose bool) ErrorHandlerOption {
	return func(h *ErrorHandler) {
		h.exposeDetails = expose
	}
}

// WithTracker sets the best-effort error tracking hook.
func WithTracker(track Tracker) ErrorHandlerOption {
	return func(h *ErrorHandler) {
		h.track = track
	}
}

// NewErrorHandler creates an error handler.
func NewErrorHandler(opts ...ErrorHandlerOption) *ErrorHandler {
	h := &ErrorHandler{
		log:      slog.Default().With(logger.Component("error_handler")),
		fallback: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle converts a raised value into the error envelope response.
// Classification order: validation, framework error, generic. The span is
// finished with the resolved status exactly once.
func (h *ErrorHandler) Handle(c *Context, v any, span *telemetry.Span, start time.Time) Response {
	status, detail, level := h.classify(v)

	norm := normalizeError(v)
	norm.Stack = string(debug.Stack())
	h.logOnce(c.Std(), level, norm, status, c.Request.Path, c.Request.Method,
		logger.Duration(time.Since(start)))

	h.telemetry.FinishRequestSpan(span, status, asError(v))
	h.trackError(c.Std(), norm)

	return JSONError(status, detail)
}

// HandleInitialization renders failures that happened before a usable
// context existed. It skips request tracking against the partial context and
// cleans up the span instead of finishing it normally.
func (h *ErrorHandler) HandleInitialization(r *http.Request, v any, span *telemetry.Span) Response {
	norm := normalizeError(v)
	norm.Stack = string(debug.Stack())

	path, method := "", ""
	ctx := context.Background()
	if r != nil {
		path, method = r.URL.Path, r.Method
		ctx = r.Context()
	}
	h.logOnce(ctx, slog.LevelError, norm, http.StatusInternalServerError, path, method)

	h.telemetry.CleanupSpan(span, http.StatusInternalServerError)

	return JSONError(http.StatusInternalServerError, &ErrorDetail{
		Message: "Failed to initialize request context",
		Code:    CodeInitialization,
		Details: h.gatedDetails(norm.Message),
	})
}

func (h *ErrorHandler) classify(v any) (int, *ErrorDetail, slog.Level) {
	if issues, ok := validationIssuesOf(v); ok {
		return http.StatusBadRequest, &ErrorDetail{
			Message: "Validation Error",
			Code:    CodeValidation,
			Details: issues,
		}, slog.LevelWarn
	}

	if fe := frameworkErrorOf(v); fe != nil {
		return fe.StatusCode, &ErrorDetail{
			Message: fe.Message,
			Code:    fe.Code,
			Details: fe.Details,
		}, slog.LevelError
	}

	norm := normalizeError(v)
	details := norm.Details
	if details == nil {
		details = norm.Message
	}
	return http.StatusInternalServerError, &ErrorDetail{
		Message: norm.Message,
		Code:    norm.Code,
		Details: h.gatedDetails(details),
	}, slog.LevelError
}

func (h *ErrorHandler) gatedDetails(details any) any {
	if h.exposeDetails {
		return details
	}
	return nil
}

func (h *ErrorHandler) logOnce(ctx context.Context, level slog.Level, norm NormalizedError, status int, path, method string, extra ...slog.Attr) {
	attrs := []any{
		slog.String("message", norm.Message),
		logger.ErrorCode(norm.Code),
		logger.Status(status),
		logger.Path(path),
		logger.Method(method),
	}
	for _, a := range extra {
		attrs = append(attrs, a)
	}
	if id := requestid.FromContext(ctx); id != "" {
		attrs = append(attrs, logger.RequestID(id))
	}
	h.log.Log(ctx, level, "request failed", attrs...)
}

// trackError runs the tracking hook. Tracking is strictly best-effort: a
// panicking or failing tracker is logged to the fallback logger and dropped.
func (h *ErrorHandler) trackError(ctx context.Context, norm NormalizedError) {
	if h.track == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.fallback.Error("error tracking panicked", slog.Any("panic", r))
		}
	}()
	if err := h.track(ctx, norm); err != nil {
		h.fallback.Error("error tracking failed", logger.Error(err))
	}
}

// frameworkErrorOf extracts a framework error from an arbitrary raised
// value, unwrapping wrapped errors.
func frameworkErrorOf(v any) *Error {
	switch err := v.(type) {
	case *Error:
		return err
	case error:
		var fe *Error
		if errors.As(err, &fe) {
			return fe
		}
	}
	return nil
}

func asError(v any) error {
	switch err := v.(type) {
	case nil:
		return nil
	case error:
		return err
	default:
		return fmt.Errorf("%v", v)
	}
}
