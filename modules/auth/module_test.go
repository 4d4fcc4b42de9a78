package auth

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/classhour/classhour/engine"
	"github.com/gavv/httpexpect/v2"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthn(t *testing.T) {
	db := engine.OpenTestDB(t)
	issuer := engine.NewTokenIssuer(filepath.Join(t.TempDir(), "auth.pem"))

	_, err := New(db, issuer)
	require.NoError(t, err)

	m, err := New(db, issuer) // shouldn't generate a second token
	require.NoError(t, err)

	var token string
	var count int
	err = db.QueryRow("SELECT token, count(*) FROM api_tokens").Scan(&token, &count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	router := engine.NewRouter()
	router.Authenticator = m
	m.AttachRoutes(router)
	router.Handle("GET", "/protected", router.WithAuthn(func(r *http.Request, ps httprouter.Params) engine.Response {
		return engine.JSON(map[string]bool{"ok": true})
	}))

	server := httptest.NewServer(router)
	defer server.Close()
	e := httpexpect.Default(t, server.URL)

	// No token
	e.GET("/protected").
		Expect().
		Status(http.StatusUnauthorized)

	// Wrong token
	e.GET("/protected").
		WithHeader("Authorization", "Bearer nope").
		Expect().
		Status(http.StatusUnauthorized)

	// API token
	e.GET("/protected").
		WithHeader("Authorization", "Bearer "+token).
		Expect().
		Status(http.StatusOK).JSON().Object().
		Value("ok").IsEqual(true)

	// Exchange the API token for a session token, then use it.
	session := e.POST("/api/session").
		WithHeader("Authorization", "Bearer "+token).
		Expect().
		Status(http.StatusOK).JSON().Object()
	session.Value("expires").Number().Gt(0)
	sessionToken := session.Value("token").String().Raw()

	e.GET("/protected").
		WithHeader("Authorization", "Bearer "+sessionToken).
		Expect().
		Status(http.StatusOK)

	// Session exchange requires a real API token, not a session token.
	e.POST("/api/session").
		WithHeader("Authorization", "Bearer "+sessionToken).
		Expect().
		Status(http.StatusUnauthorized)
}
