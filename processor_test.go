package routekit_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/routekit"
	"github.com/dmitrymomot/routekit/pkg/plugin"
)

func doRequest(t *testing.T, p *routekit.Processor, r *http.Request) (int, map[string]any) {
	t.Helper()

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, r)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return rec.Code, body
}

func echoBodyAction() *routekit.Action {
	return &routekit.Action{
		Name:          "echo",
		Method:        http.MethodPost,
		Path:          "/echo",
		HasBodySchema: true,
		Handler: func(c *routekit.Context) (any, error) {
			return c.Request.Body, nil
		},
	}
}

func TestProcessorEmptyJSONBody(t *testing.T) {
	t.Parallel()

	router := routekit.NewMuxRouter()
	router.Register(echoBodyAction())
	p := routekit.NewProcessor(routekit.WithRouter(router))

	r := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(""))
	r.Header.Set("Content-Type", "application/json")

	status, body := doRequest(t, p, r)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{}, body["data"], "empty JSON body parses to an empty object, not an error")
}

func TestProcessorParsesJSONBody(t *testing.T) {
	t.Parallel()

	router := routekit.NewMuxRouter()
	router.Register(echoBodyAction())
	p := routekit.NewProcessor(routekit.WithRouter(router))

	r := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"name":"alice","age":30}`))
	r.Header.Set("Content-Type", "application/json")

	status, body := doRequest(t, p, r)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"name": "alice", "age": float64(30)}, body["data"])
}

func TestProcessorMiddlewareError(t *testing.T) {
	t.Parallel()

	router := routekit.NewMuxRouter()
	router.Register(&routekit.Action{
		Name:   "get",
		Method: http.MethodGet,
		Path:   "/things",
		Handler: func(c *routekit.Context) (any, error) {
			t.Fatal("handler must not run after a middleware error")
			return nil, nil
		},
	})
	p := routekit.NewProcessor(
		routekit.WithRouter(router),
		routekit.WithGlobalProcedures(routekit.Procedure{
			Name: "broken",
			Handler: func(pc *routekit.ProcedureContext) (any, error) {
				return nil, errors.New("db down")
			},
		}),
	)

	status, body := doRequest(t, p, httptest.NewRequest(http.MethodGet, "/things", nil))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Nil(t, body["data"])

	errObj := errorField(t, body)
	assert.Equal(t, "db down", errObj["message"])
	assert.Equal(t, "GENERIC_ERROR", errObj["code"])
}

func TestProcessorMiddlewarePatchesReachHandler(t *testing.T) {
	t.Parallel()

	router := routekit.NewMuxRouter()
	router.Register(&routekit.Action{
		Name:   "whoami",
		Method: http.MethodGet,
		Path:   "/whoami",
		Procedures: []routekit.Procedure{
			{Name: "role", Handler: func(pc *routekit.ProcedureContext) (any, error) {
				return map[string]any{"role": "admin", "scope": "write"}, nil
			}},
		},
		Handler: func(c *routekit.Context) (any, error) {
			return map[string]any{
				"user":  c.Value("user"),
				"role":  c.Value("role"),
				"scope": c.Value("scope"),
			}, nil
		},
	})
	p := routekit.NewProcessor(
		routekit.WithRouter(router),
		routekit.WithGlobalProcedures(routekit.Procedure{
			Name: "auth",
			Handler: func(pc *routekit.ProcedureContext) (any, error) {
				return map[string]any{"user": "alice", "role": "viewer"}, nil
			},
		}),
	)

	status, body := doRequest(t, p, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{
		"user":  "alice",
		"role":  "admin", // action middleware runs after global and wins
		"scope": "write",
	}, body["data"])
}

func TestProcessorRateLimitError(t *testing.T) {
	t.Parallel()

	router := routekit.NewMuxRouter()
	router.Register(&routekit.Action{
		Name:   "limited",
		Method: http.MethodGet,
		Path:   "/limited",
		Handler: func(c *routekit.Context) (any, error) {
			t.Fatal("handler must not run when rate limited")
			return nil, nil
		},
	})
	p := routekit.NewProcessor(
		routekit.WithRouter(router),
		routekit.WithGlobalProcedures(routekit.Procedure{
			Name: "ratelimit",
			Handler: func(pc *routekit.ProcedureContext) (any, error) {
				return nil, routekit.NewRateLimitError(500 * time.Millisecond)
			},
		}),
	)

	status, body := doRequest(t, p, httptest.NewRequest(http.MethodGet, "/limited", nil))
	assert.Equal(t, http.StatusTooManyRequests, status, "framework errors keep their status instead of 500")
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorField(t, body)["code"])
}

func TestProcessorNotFound(t *testing.T) {
	t.Parallel()

	p := routekit.NewProcessor()

	status, body := doRequest(t, p, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, status)
	errObj := errorField(t, body)
	assert.Equal(t, "NOT_FOUND", errObj["code"])
	assert.Contains(t, errObj["message"], "/nowhere")
}

func TestProcessorRouteParams(t *testing.T) {
	t.Parallel()

	router := routekit.NewMuxRouter()
	router.Register(&routekit.Action{
		Name:   "get_user",
		Method: http.MethodGet,
		Path:   "/users/{id}",
		Handler: func(c *routekit.Context) (any, error) {
			return map[string]any{"id": c.Request.Params["id"]}, nil
		},
	})
	p := routekit.NewProcessor(routekit.WithRouter(router))

	status, body := doRequest(t, p, httptest.NewRequest(http.MethodGet, "/users/42", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"id": "42"}, body["data"])
}

func TestProcessorMiddlewareEarlyResponse(t *testing.T) {
	t.Parallel()

	router := routekit.NewMuxRouter()
	router.Register(&routekit.Action{
		Name:   "guarded",
		Method: http.MethodGet,
		Path:   "/guarded",
		Handler: func(c *routekit.Context) (any, error) {
			t.Fatal("handler must not run after an early response")
			return nil, nil
		},
	})
	p := routekit.NewProcessor(
		routekit.WithRouter(router),
		routekit.WithGlobalProcedures(routekit.Procedure{
			Name: "gate",
			Handler: func(pc *routekit.ProcedureContext) (any, error) {
				return routekit.JSON(map[string]any{"gated": true}, routekit.WithStatus(http.StatusForbidden)), nil
			},
		}),
	)

	status, body := doRequest(t, p, httptest.NewRequest(http.MethodGet, "/guarded", nil))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, map[string]any{"gated": true}, body["data"])
}

func TestProcessorNextResultShortCircuits(t *testing.T) {
	t.Parallel()

	router := routekit.NewMuxRouter()
	router.Register(&routekit.Action{
		Name:   "cached",
		Method: http.MethodGet,
		Path:   "/cached",
		Handler: func(c *routekit.Context) (any, error) {
			t.Fatal("handler must not run when middleware short-circuits")
			return nil, nil
		},
	})
	p := routekit.NewProcessor(
		routekit.WithRouter(router),
		routekit.WithGlobalProcedures(routekit.Procedure{
			Name: "cache",
			Handler: func(pc *routekit.ProcedureContext) (any, error) {
				pc.Next(nil, map[string]any{"from": "cache"})
				return nil, nil
			},
		}),
	)

	status, body := doRequest(t, p, httptest.NewRequest(http.MethodGet, "/cached", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"from": "cache"}, body["data"])
}

func TestProcessorHandlerPanicBecomes500(t *testing.T) {
	t.Parallel()

	router := routekit.NewMuxRouter()
	router.Register(&routekit.Action{
		Name:   "panicky",
		Method: http.MethodGet,
		Path:   "/panic",
		Handler: func(c *routekit.Context) (any, error) {
			panic("handler exploded")
		},
	})
	p := routekit.NewProcessor(routekit.WithRouter(router))

	status, body := doRequest(t, p, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "handler exploded", errorField(t, body)["message"])
}

func TestProcessorHandlerValidationError(t *testing.T) {
	t.Parallel()

	router := routekit.NewMuxRouter()
	router.Register(&routekit.Action{
		Name:   "create",
		Method: http.MethodPost,
		Path:   "/users",
		Handler: func(c *routekit.Context) (any, error) {
			verr := routekit.NewValidationError()
			verr.Add("email", "required")
			return nil, verr
		},
	})
	p := routekit.NewProcessor(routekit.WithRouter(router))

	status, body := doRequest(t, p, httptest.NewRequest(http.MethodPost, "/users", nil))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", errorField(t, body)["code"])
}

func TestProcessorMalformedBodyDegradesToNil(t *testing.T) {
	t.Parallel()

	router := routekit.NewMuxRouter()
	var seenBody any = "sentinel"
	router.Register(&routekit.Action{
		Name:          "create",
		Method:        http.MethodPost,
		Path:          "/create",
		HasBodySchema: true,
		Handler: func(c *routekit.Context) (any, error) {
			seenBody = c.Request.Body
			return map[string]any{"ok": true}, nil
		},
	})
	p := routekit.NewProcessor(routekit.WithRouter(router))

	r := httptest.NewRequest(http.MethodPost, "/create", strings.NewReader("{not json"))
	r.Header.Set("Content-Type", "application/json")

	status, _ := doRequest(t, p, r)
	assert.Equal(t, http.StatusOK, status, "parse failures degrade to a nil body, validation is the real gate")
	assert.Nil(t, seenBody)
}

func TestProcessorContextFactory(t *testing.T) {
	t.Parallel()

	t.Run("values reach middleware and handler", func(t *testing.T) {
		t.Parallel()

		router := routekit.NewMuxRouter()
		router.Register(&routekit.Action{
			Name:   "get",
			Method: http.MethodGet,
			Path:   "/get",
			Handler: func(c *routekit.Context) (any, error) {
				return map[string]any{"tenant": c.Value("tenant")}, nil
			},
		})
		p := routekit.NewProcessor(
			routekit.WithRouter(router),
			routekit.WithContextFactory(func(r *http.Request) (map[string]any, error) {
				return map[string]any{"tenant": "acme"}, nil
			}),
		)

		status, body := doRequest(t, p, httptest.NewRequest(http.MethodGet, "/get", nil))
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, map[string]any{"tenant": "acme"}, body["data"])
	})

	t.Run("failure degrades to empty context", func(t *testing.T) {
		t.Parallel()

		router := routekit.NewMuxRouter()
		router.Register(&routekit.Action{
			Name:   "get",
			Method: http.MethodGet,
			Path:   "/get",
			Handler: func(c *routekit.Context) (any, error) {
				return map[string]any{"tenant": c.Value("tenant")}, nil
			},
		})
		p := routekit.NewProcessor(
			routekit.WithRouter(router),
			routekit.WithContextFactory(func(r *http.Request) (map[string]any, error) {
				return nil, errors.New("session store unavailable")
			}),
		)

		status, body := doRequest(t, p, httptest.NewRequest(http.MethodGet, "/get", nil))
		assert.Equal(t, http.StatusOK, status, "factory failures degrade instead of failing the request")
		assert.Equal(t, map[string]any{"tenant": nil}, body["data"])
	})
}

func TestProcessorBindsPluginProxies(t *testing.T) {
	t.Parallel()

	manager := plugin.NewManager()
	t.Cleanup(func() { _ = manager.Close() })
	require.NoError(t, manager.Register("audit", struct{}{}))

	router := routekit.NewMuxRouter()
	router.Register(&routekit.Action{
		Name:   "get",
		Method: http.MethodGet,
		Path:   "/get",
		Procedures: []routekit.Procedure{
			{Name: "who", Handler: func(pc *routekit.ProcedureContext) (any, error) {
				return map[string]any{"user": "alice"}, nil
			}},
		},
		Handler: func(c *routekit.Context) (any, error) {
			proxy, ok := c.Plugins["audit"]
			require.True(t, ok, "plugin proxy must be bound into the context")
			// The proxy snapshot is from context build, before middleware ran.
			assert.NotContains(t, proxy.Context, "user")
			return map[string]any{"plugin": proxy.Name}, nil
		},
	})
	p := routekit.NewProcessor(
		routekit.WithRouter(router),
		routekit.WithPlugins(manager),
	)

	status, body := doRequest(t, p, httptest.NewRequest(http.MethodGet, "/get", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"plugin": "audit"}, body["data"])
}

func TestProcessorReservedKeysSurviveMiddleware(t *testing.T) {
	t.Parallel()

	store := map[string]string{"kind": "real store"}

	router := routekit.NewMuxRouter()
	router.Register(&routekit.Action{
		Name:   "get",
		Method: http.MethodGet,
		Path:   "/get",
		Handler: func(c *routekit.Context) (any, error) {
			s, ok := c.Value("store").(map[string]string)
			require.True(t, ok, "reserved store must not be overwritten by middleware")
			return map[string]any{"kind": s["kind"]}, nil
		},
	})
	p := routekit.NewProcessor(
		routekit.WithRouter(router),
		routekit.WithStore(store),
		routekit.WithGlobalProcedures(routekit.Procedure{
			Name: "sneaky",
			Handler: func(pc *routekit.ProcedureContext) (any, error) {
				return map[string]any{"store": "hijacked"}, nil
			},
		}),
	)

	status, body := doRequest(t, p, httptest.NewRequest(http.MethodGet, "/get", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"kind": "real store"}, body["data"])
}

func TestProcessorHandlerReturnsResponse(t *testing.T) {
	t.Parallel()

	router := routekit.NewMuxRouter()
	router.Register(&routekit.Action{
		Name:   "create",
		Method: http.MethodPost,
		Path:   "/create",
		Handler: func(c *routekit.Context) (any, error) {
			return routekit.JSON(map[string]any{"id": "new"}, routekit.WithStatus(http.StatusCreated)), nil
		},
	})
	p := routekit.NewProcessor(routekit.WithRouter(router))

	status, body := doRequest(t, p, httptest.NewRequest(http.MethodPost, "/create", nil))
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, map[string]any{"id": "new"}, body["data"])
}

func TestProcessorStaticContextValues(t *testing.T) {
	t.Parallel()

	router := routekit.NewMuxRouter()
	router.Register(&routekit.Action{
		Name:   "whoami",
		Method: http.MethodGet,
		Path:   "/whoami",
		Handler: func(c *routekit.Context) (any, error) {
			return map[string]any{"region": c.Value("region")}, nil
		},
	})
	p := routekit.NewProcessor(
		routekit.WithRouter(router),
		routekit.WithContextValues(map[string]any{"region": "eu-west-1"}),
	)

	status, body := doRequest(t, p, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"region": "eu-west-1"}, body["data"])
}

func TestProcessorErrorTracker(t *testing.T) {
	t.Parallel()

	failingAction := func() *routekit.Action {
		return &routekit.Action{
			Name:   "fail",
			Method: http.MethodGet,
			Path:   "/fail",
			Handler: func(c *routekit.Context) (any, error) {
				return nil, errors.New("db down")
			},
		}
	}

	t.Run("tracker receives handler errors", func(t *testing.T) {
		t.Parallel()

		var tracked []routekit.NormalizedError
		router := routekit.NewMuxRouter()
		router.Register(failingAction())
		p := routekit.NewProcessor(
			routekit.WithRouter(router),
			routekit.WithErrorTracker(func(ctx context.Context, norm routekit.NormalizedError) error {
				tracked = append(tracked, norm)
				return nil
			}),
		)

		status, _ := doRequest(t, p, httptest.NewRequest(http.MethodGet, "/fail", nil))
		assert.Equal(t, http.StatusInternalServerError, status)
		require.Len(t, tracked, 1)
		assert.Equal(t, "db down", tracked[0].Message)
	})

	t.Run("config flag disables tracking", func(t *testing.T) {
		t.Parallel()

		var tracked []routekit.NormalizedError
		router := routekit.NewMuxRouter()
		router.Register(failingAction())
		p := routekit.NewProcessor(
			routekit.WithRouter(router),
			routekit.WithConfig(routekit.Config{Environment: "production", ErrorTrackingDisabled: true}),
			routekit.WithErrorTracker(func(ctx context.Context, norm routekit.NormalizedError) error {
				tracked = append(tracked, norm)
				return nil
			}),
		)

		status, _ := doRequest(t, p, httptest.NewRequest(http.MethodGet, "/fail", nil))
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Empty(t, tracked)
	})
}
