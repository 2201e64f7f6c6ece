package routekit_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/routekit"
)

func TestJSONResponse(t *testing.T) {
	t.Parallel()

	resp := routekit.JSON(map[string]any{"id": 1},
		routekit.WithStatus(http.StatusCreated),
		routekit.WithMeta(map[string]any{"page": 1}),
		routekit.WithHeader("X-Request-Id", "abc"),
	)

	rec := httptest.NewRecorder()
	require.NoError(t, resp.Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "abc", rec.Header().Get("X-Request-Id"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]any{"id": float64(1)}, body["data"])
	assert.Equal(t, map[string]any{"page": float64(1)}, body["meta"])
	assert.NotContains(t, body, "error")
}

func TestJSONErrorEnvelope(t *testing.T) {
	t.Parallel()

	resp := routekit.JSONError(http.StatusBadRequest, &routekit.ErrorDetail{
		Message: "Validation Error",
		Code:    "VALIDATION_ERROR",
	})

	rec := httptest.NewRecorder()
	require.NoError(t, resp.Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The data field must be explicitly null on error paths.
	assert.Contains(t, rec.Body.String(), `"data":null`)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "VALIDATION_ERROR", errorField(t, body)["code"])
}

func TestJSONResponseSerializationFailure(t *testing.T) {
	t.Parallel()

	resp := routekit.JSON(map[string]any{"bad": make(chan int)})

	rec := httptest.NewRecorder()
	err := resp.Render(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Error(t, err)
	assert.Zero(t, rec.Body.Len(), "nothing is written when serialization fails")
}

func TestResponseBuilder(t *testing.T) {
	t.Parallel()

	c := routekit.NewContext(&routekit.Request{Path: "/", Method: http.MethodGet})
	resp := c.Response.
		Status(http.StatusAccepted).
		Header("X-Job", "42").
		JSON(map[string]any{"queued": true})

	rec := httptest.NewRecorder()
	require.NoError(t, resp.Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("X-Job"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]any{"queued": true}, body["data"])
}

func TestResponseBuilderIsAResponse(t *testing.T) {
	t.Parallel()

	c := routekit.NewContext(&routekit.Request{Path: "/", Method: http.MethodGet})
	c.Response.Status(http.StatusTeapot).Data(map[string]any{"tea": true})

	var resp routekit.Response = c.Response
	rec := httptest.NewRecorder()
	require.NoError(t, resp.Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))

	assert.Equal(t, http.StatusTeapot, rec.Code)
}
