package ratelimit

import (
	"context"
	"strconv"

	"github.com/dmitrymomot/routekit"
)

type procedureConfig struct {
	name     string
	skipFunc func(*routekit.Request) bool
}

// ProcedureOption configures the rate limit procedure.
type ProcedureOption func(*procedureConfig)

// WithProcedureName overrides the procedure name used in logs and metrics.
func WithProcedureName(name string) ProcedureOption {
	return func(c *procedureConfig) {
		if name != "" {
			c.name = name
		}
	}
}

// WithSkipFunc exempts matching requests from rate limiting.
func WithSkipFunc(fn func(*routekit.Request) bool) ProcedureOption {
	return func(c *procedureConfig) {
		c.skipFunc = fn
	}
}

// Procedure builds a pipeline middleware that enforces rate limits with the
// given limiter. Exceeded limits abort the request with the 429 framework
// error; store failures fail open so a storage outage never takes the API
// down with it.
func Procedure(limiter Limiter, keyFunc KeyFunc, opts ...ProcedureOption) routekit.Procedure {
	if keyFunc == nil {
		panic("ratelimit.Procedure: keyFunc is required")
	}

	cfg := &procedureConfig{name: "rate_limit"}
	for _, opt := range opts {
		opt(cfg)
	}

	return routekit.Procedure{
		Name: cfg.name,
		Handler: func(pc *routekit.ProcedureContext) (any, error) {
			if cfg.skipFunc != nil && cfg.skipFunc(pc.Request) {
				return nil, nil
			}

			key := keyFunc(pc.Request)
			if key == "" {
				return nil, nil
			}

			ctx := context.Background()
			if pc.Request.Raw != nil {
				ctx = pc.Request.Raw.Context()
			}

			result, err := limiter.Allow(ctx, key)
			if err != nil {
				return nil, nil
			}

			pc.Response.
				Header("X-RateLimit-Limit", strconv.Itoa(result.Limit)).
				Header("X-RateLimit-Remaining", strconv.Itoa(max(0, result.Remaining))).
				Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed() {
				return nil, routekit.NewRateLimitError(result.RetryAfter())
			}
			return nil, nil
		},
	}
}
