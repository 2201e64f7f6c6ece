package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"

	"github.com/dmitrymomot/routekit"
)

// maxKeyLength is the maximum allowed length for a rate limit key
// to prevent excessively long storage keys in backends like Redis.
const maxKeyLength = 64

// KeyFunc extracts a unique identifier from a pipeline request for rate
// limiting. An empty key disables rate limiting for that request.
type KeyFunc func(*routekit.Request) string

// KeyByIP keys requests by client IP, honoring X-Forwarded-For and
// X-Real-IP when present.
func KeyByIP() KeyFunc {
	return func(r *routekit.Request) string {
		if fwd := r.Headers.Get("X-Forwarded-For"); fwd != "" {
			// First address is the original client.
			if idx := strings.IndexByte(fwd, ','); idx > 0 {
				return strings.TrimSpace(fwd[:idx])
			}
			return strings.TrimSpace(fwd)
		}
		if real := r.Headers.Get("X-Real-IP"); real != "" {
			return real
		}
		if r.Raw != nil {
			if host, _, err := net.SplitHostPort(r.Raw.RemoteAddr); err == nil {
				return host
			}
			return r.Raw.RemoteAddr
		}
		return ""
	}
}

// KeyByHeader keys requests by a header value, e.g. an API key.
func KeyByHeader(name string) KeyFunc {
	return func(r *routekit.Request) string {
		return r.Headers.Get(name)
	}
}

// KeyByParam keys requests by a route parameter value.
func KeyByParam(name string) KeyFunc {
	return func(r *routekit.Request) string {
		return r.Params[name]
	}
}

// Composite combines multiple key extraction functions into a single key.
// Long keys (>64 chars) are hashed to 32 hex chars using SHA256 to prevent
// storage issues while avoiding collisions.
func Composite(keyFuncs ...KeyFunc) KeyFunc {
	return func(r *routekit.Request) string {
		parts := make([]string, 0, len(keyFuncs))
		for _, fn := range keyFuncs {
			if key := fn(r); key != "" {
				parts = append(parts, key)
			}
		}

		if len(parts) == 0 {
			return ""
		}

		if len(parts) == 1 && len(parts[0]) <= maxKeyLength {
			return parts[0]
		}

		combined := strings.Join(parts, ":")

		if len(combined) > maxKeyLength {
			hash := sha256.Sum256([]byte(combined))
			// 128-bit hash provides sufficient collision resistance
			return hex.EncodeToString(hash[:16])
		}

		return combined
	}
}
