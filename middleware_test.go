package routekit_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/routekit"
)

func testContext(t *testing.T) *routekit.Context {
	t.Helper()
	return routekit.NewContext(&routekit.Request{
		Path:   "/test",
		Method: http.MethodGet,
	})
}

func TestExecutorMergesPatches(t *testing.T) {
	t.Parallel()

	exec := routekit.NewExecutor()
	c := testContext(t)

	procs := []routekit.Procedure{
		{Name: "first", Handler: func(pc *routekit.ProcedureContext) (any, error) {
			return map[string]any{"user": "alice", "role": "viewer"}, nil
		}},
		{Name: "second", Handler: func(pc *routekit.ProcedureContext) (any, error) {
			// Later middleware sees what earlier middleware wrote.
			assert.Equal(t, "alice", pc.Values["user"])
			return map[string]any{"role": "admin", "tenant": "acme"}, nil
		}},
	}

	res := exec.ExecuteGlobal(c, procs)
	require.True(t, res.Success)

	assert.Equal(t, "alice", res.Ctx.Value("user"))
	assert.Equal(t, "admin", res.Ctx.Value("role"), "last write wins on the same key")
	assert.Equal(t, "acme", res.Ctx.Value("tenant"))

	// The original context is never mutated in place.
	assert.Empty(t, c.Values)
}

func TestExecutorProtectsReservedKeys(t *testing.T) {
	t.Parallel()

	exec := routekit.NewExecutor()
	c := testContext(t)

	procs := []routekit.Procedure{
		{Name: "sneaky", Handler: func(pc *routekit.ProcedureContext) (any, error) {
			return map[string]any{
				"store":  "hijacked",
				"logger": "hijacked",
				"custom": 42,
			}, nil
		}},
	}

	res := exec.ExecuteGlobal(c, procs)
	require.True(t, res.Success)

	assert.NotContains(t, res.Ctx.Values, "store")
	assert.NotContains(t, res.Ctx.Values, "logger")
	assert.Equal(t, 42, res.Ctx.Value("custom"), "non-reserved keys still merge")
}

func TestExecutorNextError(t *testing.T) {
	t.Parallel()

	exec := routekit.NewExecutor()
	boom := errors.New("auth failed")
	secondRan := false

	procs := []routekit.Procedure{
		{Name: "auth", Handler: func(pc *routekit.ProcedureContext) (any, error) {
			pc.Next(boom, nil)
			return map[string]any{"ignored": true}, nil
		}},
		{Name: "after", Handler: func(pc *routekit.ProcedureContext) (any, error) {
			secondRan = true
			return nil, nil
		}},
	}

	res := exec.ExecuteGlobal(testContext(t), procs)
	require.False(t, res.Success)
	assert.ErrorIs(t, res.Err, boom)
	assert.False(t, secondRan)
	assert.NotContains(t, res.Ctx.Values, "ignored", "next takes priority over the returned patch")
}

func TestExecutorNextResult(t *testing.T) {
	t.Parallel()

	exec := routekit.NewExecutor()
	secondRan := false

	procs := []routekit.Procedure{
		{Name: "cache", Handler: func(pc *routekit.ProcedureContext) (any, error) {
			pc.Next(nil, map[string]any{"cached": true})
			return nil, nil
		}},
		{Name: "after", Handler: func(pc *routekit.ProcedureContext) (any, error) {
			secondRan = true
			return nil, nil
		}},
	}

	res := exec.ExecuteGlobal(testContext(t), procs)
	require.False(t, res.Success)
	require.True(t, res.HasCustom)
	assert.Equal(t, map[string]any{"cached": true}, res.CustomResult)
	assert.Nil(t, res.EarlyReturn)
	assert.NoError(t, res.Err)
	assert.False(t, secondRan)
}

func TestExecutorNextStop(t *testing.T) {
	t.Parallel()

	exec := routekit.NewExecutor()
	secondRan := false

	procs := []routekit.Procedure{
		{Name: "gate", Handler: func(pc *routekit.ProcedureContext) (any, error) {
			pc.Next(nil, nil, routekit.NextStop())
			return nil, nil
		}},
		{Name: "after", Handler: func(pc *routekit.ProcedureContext) (any, error) {
			secondRan = true
			return nil, nil
		}},
	}

	res := exec.ExecuteGlobal(testContext(t), procs)
	require.True(t, res.Success, "stop halts middleware but the pipeline continues")
	assert.False(t, secondRan)
}

func TestExecutorNextSkip(t *testing.T) {
	t.Parallel()

	exec := routekit.NewExecutor()
	secondRan := false

	procs := []routekit.Procedure{
		{Name: "conditional", Handler: func(pc *routekit.ProcedureContext) (any, error) {
			pc.Next(nil, nil, routekit.NextSkip())
			return map[string]any{"discarded": true}, nil
		}},
		{Name: "after", Handler: func(pc *routekit.ProcedureContext) (any, error) {
			secondRan = true
			return nil, nil
		}},
	}

	res := exec.ExecuteGlobal(testContext(t), procs)
	require.True(t, res.Success)
	assert.True(t, secondRan, "skip moves on to the next middleware")
	assert.NotContains(t, res.Ctx.Values, "discarded")
}

func TestExecutorNextWriteOnce(t *testing.T) {
	t.Parallel()

	exec := routekit.NewExecutor()
	first := errors.New("first")

	procs := []routekit.Procedure{
		{Name: "noisy", Handler: func(pc *routekit.ProcedureContext) (any, error) {
			pc.Next(first, nil)
			pc.Next(errors.New("second"), nil)
			return nil, nil
		}},
	}

	res := exec.ExecuteGlobal(testContext(t), procs)
	require.False(t, res.Success)
	assert.ErrorIs(t, res.Err, first, "only the first next call takes effect")
}

func TestExecutorEarlyResponse(t *testing.T) {
	t.Parallel()

	exec := routekit.NewExecutor()
	early := routekit.JSON(map[string]any{"redirected": true}, routekit.WithStatus(http.StatusAccepted))
	secondRan := false

	procs := []routekit.Procedure{
		{Name: "responder", Handler: func(pc *routekit.ProcedureContext) (any, error) {
			return early, nil
		}},
		{Name: "after", Handler: func(pc *routekit.ProcedureContext) (any, error) {
			secondRan = true
			return nil, nil
		}},
	}

	res := exec.ExecuteGlobal(testContext(t), procs)
	require.False(t, res.Success)
	assert.False(t, secondRan)
	require.NotNil(t, res.EarlyReturn)

	rec := httptest.NewRecorder()
	require.NoError(t, res.EarlyReturn.Render(rec, httptest.NewRequest(http.MethodGet, "/test", nil)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestExecutorReturnedErrorAborts(t *testing.T) {
	t.Parallel()

	exec := routekit.NewExecutor()
	boom := errors.New("db down")

	procs := []routekit.Procedure{
		{Name: "broken", Handler: func(pc *routekit.ProcedureContext) (any, error) {
			return nil, boom
		}},
	}

	res := exec.ExecuteGlobal(testContext(t), procs)
	require.False(t, res.Success)
	assert.ErrorIs(t, res.Err, boom)
}

func TestExecutorSkipsNilHandler(t *testing.T) {
	t.Parallel()

	exec := routekit.NewExecutor()
	ran := false

	procs := []routekit.Procedure{
		{Name: "empty"},
		{Name: "real", Handler: func(pc *routekit.ProcedureContext) (any, error) {
			ran = true
			return nil, nil
		}},
	}

	res := exec.ExecuteGlobal(testContext(t), procs)
	require.True(t, res.Success)
	assert.True(t, ran)
}

func TestExecutorEmptyList(t *testing.T) {
	t.Parallel()

	exec := routekit.NewExecutor()
	c := testContext(t)

	res := exec.ExecuteGlobal(c, nil)
	require.True(t, res.Success)
	assert.Same(t, c, res.Ctx)
}
