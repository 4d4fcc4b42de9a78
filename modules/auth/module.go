// Package auth guards the API with bearer tokens. Long-lived API tokens live
// in sqlite (one is generated on first boot); POST /api/session exchanges one
// for a short-lived signed session token, which the middleware also accepts.
package auth

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/classhour/classhour/engine"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

const migration = `
CREATE TABLE IF NOT EXISTS api_tokens (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    label TEXT NOT NULL,
    token TEXT NOT NULL UNIQUE
) STRICT;
`

const sessionTTL = time.Hour

type Module struct {
	db     *sql.DB
	issuer *engine.TokenIssuer
}

func New(db *sql.DB, issuer *engine.TokenIssuer) (*Module, error) {
	engine.MustMigrate(db, migration)

	var id int
	if err := db.QueryRow("SELECT id FROM api_tokens LIMIT 1").Scan(&id); errors.Is(err, sql.ErrNoRows) {
		slog.Info("generating initial API token...")
		token := uuid.Must(uuid.NewRandom()).String() + "-" + uuid.Must(uuid.NewRandom()).String()
		_, err = db.Exec("INSERT INTO api_tokens (label, token) VALUES ('Automatically generated', ?)", token)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	return &Module{db: db, issuer: issuer}, nil
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("POST", "/api/session", m.handleCreateSession)
}

// WithAuthn implements engine.Authenticator. It accepts either a stored API
// token or a session token signed by this server.
func (m *Module) WithAuthn(next engine.Handler) engine.Handler {
	return func(r *http.Request, ps httprouter.Params) engine.Response {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			return engine.Unauthorized(errors.New("missing bearer token"))
		}

		var id int
		err := m.db.QueryRowContext(r.Context(), "SELECT id FROM api_tokens WHERE token = $1", token).Scan(&id)
		if err == nil {
			return next(r, ps)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return engine.Error(err)
		}

		if m.issuer != nil {
			if _, err := m.issuer.Verify(token); err == nil {
				return next(r, ps)
			}
		}
		return engine.Unauthorized(errors.New("unknown token"))
	}
}

// handleCreateSession exchanges a valid API token for a short-lived session
// token.
func (m *Module) handleCreateSession(r *http.Request, ps httprouter.Params) engine.Response {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	var id int64
	err := m.db.QueryRowContext(r.Context(), "SELECT id FROM api_tokens WHERE token = $1", token).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Unauthorized(errors.New("unknown token"))
	}
	if err != nil {
		return engine.Error(err)
	}
	if m.issuer == nil {
		return engine.NotFoundf("session tokens are not enabled")
	}

	expiry := time.Now().Add(sessionTTL)
	signed, err := m.issuer.Sign(&jwt.RegisteredClaims{
		Subject:   "api-token",
		ExpiresAt: jwt.NewNumericDate(expiry),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	if err != nil {
		return engine.Error(err)
	}

	return engine.JSON(map[string]any{
		"token":   signed,
		"expires": expiry.Unix(),
	})
}
