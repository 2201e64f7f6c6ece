package routekit

import (
	"encoding/json"
	"net/http"
)

// Response renders itself to an http.ResponseWriter.
// Implementations should set headers, status code, and write body.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// Envelope is the fixed JSON body shape for every pipeline response.
// Data carries the handler's success payload and is explicitly null on
// error paths so clients can branch on a stable shape.
type Envelope struct {
	Data  any            `json:"data"`
	Error *ErrorDetail   `json:"error,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// ErrorDetail is the error half of the envelope.
type ErrorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

type jsonResponse struct {
	status int
	header http.Header
	body   Envelope
}

func (j *jsonResponse) Render(w http.ResponseWriter, r *http.Request) error {
	// Marshal before touching the writer so a serialization failure can
	// still be turned into an error response.
	body, err := json.Marshal(j.body)
	if err != nil {
		return err
	}

	for key, vals := range j.header {
		for _, v := range vals {
			w.Header().Add(key, v)
		}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	_, err = w.Write(body)
	return err
}

// JSONOption configures a JSON response.
type JSONOption func(*jsonResponse)

// WithStatus sets a custom HTTP status code.
func WithStatus(status int) JSONOption {
	return func(r *jsonResponse) {
		r.status = status
	}
}

// WithMeta attaches metadata to the response envelope.
func WithMeta(meta map[string]any) JSONOption {
	return func(r *jsonResponse) {
		r.body.Meta = meta
	}
}

// WithHeader adds a response header.
func WithHeader(key, value string) JSONOption {
	return func(r *jsonResponse) {
		r.header.Add(key, value)
	}
}

// JSON creates a success response carrying v as the envelope data.
func JSON(v any, opts ...JSONOption) Response {
	r := &jsonResponse{
		status: http.StatusOK,
		header: http.Header{},
		body:   Envelope{Data: v},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// JSONError creates an error response with the fixed error envelope and a
// null data field.
func JSONError(status int, detail *ErrorDetail, opts ...JSONOption) Response {
	r := &jsonResponse{
		status: status,
		header: http.Header{},
		body:   Envelope{Data: nil, Error: detail},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResponseBuilder accumulates status, headers, and a payload for the response
// of one request. Each Context owns exactly one builder; it must not be
// shared across requests. The builder itself satisfies Response, so a
// procedure may return it to short-circuit the pipeline with its current
// state.
type ResponseBuilder struct {
	status int
	header http.Header
	data   any
}

func newResponseBuilder() *ResponseBuilder {
	return &ResponseBuilder{
		status: http.StatusOK,
		header: http.Header{},
	}
}

// Status sets the HTTP status code.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	if code > 0 {
		b.status = code
	}
	return b
}

// Header adds a response header.
func (b *ResponseBuilder) Header(key, value string) *ResponseBuilder {
	b.header.Add(key, value)
	return b
}

// Data sets the payload rendered as the envelope data.
func (b *ResponseBuilder) Data(v any) *ResponseBuilder {
	b.data = v
	return b
}

// JSON finalizes the builder into a JSON response carrying v.
func (b *ResponseBuilder) JSON(v any) Response {
	return &jsonResponse{
		status: b.status,
		header: b.header,
		body:   Envelope{Data: v},
	}
}

// Render implements Response using the builder's accumulated state.
func (b *ResponseBuilder) Render(w http.ResponseWriter, r *http.Request) error {
	return b.JSON(b.data).Render(w, r)
}
