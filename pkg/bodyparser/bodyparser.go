package bodyparser

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrymomot/routekit/pkg/logger"
	"github.com/dmitrymomot/routekit/pkg/telemetry"
)

// DefaultMaxMemory bounds in-memory buffering for form and text bodies (10MB).
const DefaultMaxMemory = 10 << 20

// Blob is a pass-through handle to a body that is not buffered into memory.
// The caller owns consumption and must close the reader.
type Blob struct {
	ContentType string
	Reader      io.ReadCloser
}

// Parser parses request bodies by content type.
type Parser struct {
	log       *slog.Logger
	telemetry *telemetry.Manager
	maxMemory int64
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the parser's logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Parser) {
		if log != nil {
			p.log = log.With(logger.Component("bodyparser"))
		}
	}
}

// WithTelemetry sets the telemetry manager recording parse spans.
func WithTelemetry(tm *telemetry.Manager) Option {
	return func(p *Parser) {
		p.telemetry = tm
	}
}

// WithMaxMemory sets the in-memory buffering limit for form and text bodies.
func WithMaxMemory(limit int64) Option {
	return func(p *Parser) {
		if limit > 0 {
			p.maxMemory = limit
		}
	}
}

// New creates a Parser.
func New(opts ...Option) *Parser {
	p := &Parser{
		log:       slog.Default().With(logger.Component("bodyparser")),
		maxMemory: DefaultMaxMemory,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse consumes the request body according to its content type.
// Routes without a body schema, and requests without a body, parse to nil
// with no error. A malformed body for a schema'd route returns a *ParseError.
func (p *Parser) Parse(r *http.Request, hasBodySchema bool) (any, error) {
	if !hasBodySchema || r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}

	contentType := mediaType(r.Header.Get("Content-Type"))
	start := time.Now()

	_, stage := p.telemetry.StartStageSpan(r.Context(), telemetry.StageBodyParse)
	body, err := p.dispatch(r, contentType)
	p.telemetry.FinishStageSpan(stage, err)

	size := r.ContentLength
	if size < 0 {
		size = measuredSize(body)
	}
	p.telemetry.RecordBodyParse(contentType, size, time.Since(start), err == nil)

	if err != nil {
		p.log.DebugContext(r.Context(), "body parsing failed",
			logger.ContentType(contentType),
			logger.Error(err),
		)
		return nil, err
	}
	return body, nil
}

func (p *Parser) dispatch(r *http.Request, contentType string) (any, error) {
	switch {
	case strings.Contains(contentType, "application/json"):
		return p.parseJSON(r)

	case strings.Contains(contentType, "application/x-www-form-urlencoded"):
		return p.parseForm(r)

	case strings.Contains(contentType, "multipart/form-data"):
		return p.parseMultipart(r)

	case strings.Contains(contentType, "text/plain"):
		return p.parseText(r)

	case strings.Contains(contentType, "application/octet-stream"):
		return p.parseBytes(r)

	case strings.Contains(contentType, "application/pdf"),
		strings.Contains(contentType, "image/"),
		strings.Contains(contentType, "video/"),
		strings.Contains(contentType, "application/stream"):
		// Live stream passes through uninterpreted; the caller owns it.
		return &Blob{ContentType: contentType, Reader: r.Body}, nil

	default:
		return p.parseText(r)
	}
}

// parseJSON decodes the body into a generic value. An empty or blank body
// decodes to an empty object rather than an error.
func (p *Parser) parseJSON(r *http.Request) (any, error) {
	raw, err := p.readAll(r)
	if err != nil {
		return nil, newParseError("application/json", err.Error())
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return map[string]any{}, nil
	}

	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, newParseError("application/json", err.Error())
	}
	return v, nil
}

func (p *Parser) parseForm(r *http.Request) (any, error) {
	raw, err := p.readAll(r)
	if err != nil {
		return nil, newParseError("application/x-www-form-urlencoded", err.Error())
	}

	// Restore the body so net/http form parsing can consume it.
	r.Body = io.NopCloser(strings.NewReader(string(raw)))
	if err := r.ParseForm(); err != nil {
		return nil, newParseError("application/x-www-form-urlencoded", err.Error())
	}

	values := make(map[string]any, len(r.PostForm))
	for key, vals := range r.PostForm {
		if len(vals) == 1 {
			values[key] = vals[0]
		} else {
			values[key] = vals
		}
	}
	return values, nil
}

// parseMultipart decodes a multipart form. File parts are surfaced as
// *multipart.FileHeader values, not coerced to strings.
func (p *Parser) parseMultipart(r *http.Request) (any, error) {
	if err := r.ParseMultipartForm(p.maxMemory); err != nil {
		return nil, newParseError("multipart/form-data", err.Error())
	}

	form := r.MultipartForm
	values := make(map[string]any, len(form.Value)+len(form.File))
	for key, vals := range form.Value {
		if len(vals) == 1 {
			values[key] = vals[0]
		} else {
			values[key] = vals
		}
	}
	for key, files := range form.File {
		if len(files) == 1 {
			values[key] = files[0]
		} else {
			values[key] = files
		}
	}
	return values, nil
}

func (p *Parser) parseText(r *http.Request) (any, error) {
	raw, err := p.readAll(r)
	if err != nil {
		return nil, newParseError("text/plain", err.Error())
	}
	return string(raw), nil
}

func (p *Parser) parseBytes(r *http.Request) (any, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, newParseError("application/octet-stream", err.Error())
	}
	return raw, nil
}

func (p *Parser) readAll(r *http.Request) ([]byte, error) {
	limited := io.LimitReader(r.Body, p.maxMemory+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > p.maxMemory {
		return nil, fmt.Errorf("request body too large (max %d bytes)", p.maxMemory)
	}
	return raw, nil
}

// mediaType extracts the lowercase media type without parameters.
func mediaType(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// measuredSize reports the post-hoc byte size of in-memory representations.
// Streams and unknown shapes report -1.
func measuredSize(body any) int64 {
	switch v := body.(type) {
	case nil:
		return 0
	case string:
		return int64(len(v))
	case []byte:
		return int64(len(v))
	case *multipart.FileHeader:
		return v.Size
	default:
		return -1
	}
}
