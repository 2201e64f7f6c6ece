package routekit

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
)

// Request is the processed, read-mostly view of an incoming HTTP request.
// It is built once by the context builder and never reassigned afterwards.
type Request struct {
	Path    string
	Method  string
	Params  map[string]string // route parameters extracted by the router
	Query   map[string]string // flattened query string, first value wins
	Headers http.Header
	Cookies *Cookies

	// Body is the parsed request body, nil when the route declares no body
	// schema or parsing was skipped.
	Body any

	// Raw is the original untouched request for consumers that need it,
	// e.g. re-reading a stream.
	Raw *http.Request
}

func newRequest(r *http.Request, params map[string]string, body any) *Request {
	return &Request{
		Path:    r.URL.Path,
		Method:  r.Method,
		Params:  params,
		Query:   flattenQuery(r.URL.Query()),
		Headers: r.Header,
		Cookies: newCookies(r),
		Body:    body,
		Raw:     r,
	}
}

func flattenQuery(values url.Values) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			out[key] = vals[0]
		}
	}
	return out
}

// Cookies is a structured cookie accessor built once from request headers.
type Cookies struct {
	index map[string]*http.Cookie
	all   []*http.Cookie
}

func newCookies(r *http.Request) *Cookies {
	all := r.Cookies()
	index := make(map[string]*http.Cookie, len(all))
	for _, c := range all {
		// First cookie wins on duplicate names.
		if _, exists := index[c.Name]; !exists {
			index[c.Name] = c
		}
	}
	return &Cookies{index: index, all: all}
}

// Get returns the value of the named cookie.
func (c *Cookies) Get(name string) (string, bool) {
	cookie, ok := c.index[name]
	if !ok {
		return "", false
	}
	return cookie.Value, true
}

// Has reports whether the named cookie is present.
func (c *Cookies) Has(name string) bool {
	_, ok := c.index[name]
	return ok
}

// All returns every cookie sent with the request.
func (c *Cookies) All() []*http.Cookie {
	return c.all
}

// GetSigned returns the value of a signed cookie after verifying its HMAC.
// The format is base64(value)|base64(hmac-sha256(value)). All secrets are
// tried to support key rotation.
func (c *Cookies) GetSigned(name string, secrets ...string) (string, bool) {
	signed, ok := c.Get(name)
	if !ok {
		return "", false
	}

	parts := strings.SplitN(signed, "|", 2)
	if len(parts) != 2 {
		return "", false
	}

	value, err := base64.URLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", false
	}

	for _, secret := range secrets {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(value)
		expected := base64.URLEncoding.EncodeToString(mac.Sum(nil))
		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(expected)) == 1 {
			return string(value), true
		}
	}
	return "", false
}

// SignCookieValue produces a signed cookie value readable by
// Cookies.GetSigned. Intended for response-side helpers and tests.
func SignCookieValue(value, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(value))
	signature := base64.URLEncoding.EncodeToString(mac.Sum(nil))
	return base64.URLEncoding.EncodeToString([]byte(value)) + "|" + signature
}
