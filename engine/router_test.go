package engine

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
)

func TestRouterHandle(t *testing.T) {
	router := NewRouter()
	assert.NotNil(t, router.Authenticator)

	router.Handle("GET", "/test", func(r *http.Request, ps httprouter.Params) Response {
		return JSON(map[string]string{"ok": "true"})
	})
	router.Handle("GET", "/users/:id", func(r *http.Request, ps httprouter.Params) Response {
		return JSON(map[string]string{"id": ps.ByName("id")})
	})
	router.Handle("GET", "/nil", func(r *http.Request, ps httprouter.Params) Response {
		return nil
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `"ok":"true"`)

	req = httptest.NewRequest("GET", "/users/123", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), `"id":"123"`)

	// nil responses become 204
	req = httptest.NewRequest("GET", "/nil", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestResponses(t *testing.T) {
	tests := []struct {
		name     string
		response Response
		status   int
		contains string
	}{
		{name: "json", response: JSON(map[string]int{"n": 1}), status: 200, contains: `"n":1`},
		{name: "empty", response: Empty(), status: 204},
		{name: "error", response: Error(errors.New("boom")), status: 500, contains: "try again later"},
		{name: "client error", response: ClientErrorf("bad %s", "input"), status: 400, contains: "bad input"},
		{name: "not found", response: NotFoundf("no such thing"), status: 404, contains: "no such thing"},
		{name: "conflict", response: Conflictf("slot taken"), status: 409, contains: "slot taken"},
		{name: "unauthorized", response: Unauthorized(errors.New("nope")), status: 401, contains: "Unauthorized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.response(w)
			assert.Equal(t, tt.status, w.Code)
			if tt.contains != "" {
				assert.Contains(t, w.Body.String(), tt.contains)
			}
		})
	}

	// Internal error details never leak to the client.
	w := httptest.NewRecorder()
	Error(errors.New("secret database path"))(w)
	assert.NotContains(t, w.Body.String(), "secret")
}
