// Package roster maintains the teacher directory. The schedule module uses it
// to put names on conflict messages; the API exposes plain CRUD.
package roster

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/classhour/classhour/engine"
	"github.com/julienschmidt/httprouter"
)

const migration = `
CREATE TABLE IF NOT EXISTS teachers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    name TEXT NOT NULL,
    email TEXT,
    timezone TEXT NOT NULL DEFAULT ''
) STRICT;
`

type Teacher struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

type Module struct {
	db *sql.DB
}

func New(db *sql.DB) *Module {
	engine.MustMigrate(db, migration)
	return &Module{db: db}
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("GET", "/api/teachers", router.WithAuthn(m.handleList))
	router.Handle("POST", "/api/teachers", router.WithAuthn(m.handleCreate))
	router.Handle("DELETE", "/api/teachers/:id", router.WithAuthn(m.handleDelete))
}

// LookupName returns the teacher's display name, or "" when unknown.
// Failures are swallowed: a missing name only degrades an error message.
func (m *Module) LookupName(ctx context.Context, id int64) string {
	var name string
	err := m.db.QueryRowContext(ctx, "SELECT name FROM teachers WHERE id = $1", id).Scan(&name)
	if err != nil {
		return ""
	}
	return name
}

func (m *Module) handleList(r *http.Request, ps httprouter.Params) engine.Response {
	rows, err := m.db.QueryContext(r.Context(),
		"SELECT id, name, COALESCE(email, ''), timezone FROM teachers ORDER BY name, id")
	if err != nil {
		return engine.Error(err)
	}
	defer rows.Close()

	teachers := []*Teacher{}
	for rows.Next() {
		t := &Teacher{}
		if err := rows.Scan(&t.ID, &t.Name, &t.Email, &t.Timezone); err != nil {
			return engine.Error(err)
		}
		teachers = append(teachers, t)
	}
	if err := rows.Err(); err != nil {
		return engine.Error(err)
	}
	return engine.JSON(teachers)
}

func (m *Module) handleCreate(r *http.Request, ps httprouter.Params) engine.Response {
	t := &Teacher{}
	if err := json.NewDecoder(r.Body).Decode(t); err != nil {
		return engine.ClientErrorf("reading request body: %s", err)
	}

	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return engine.ClientErrorf("name is required")
	}
	if t.Timezone != "" {
		if _, err := time.LoadLocation(t.Timezone); err != nil {
			return engine.ClientErrorf("unknown timezone %q", t.Timezone)
		}
	}

	err := m.db.QueryRowContext(r.Context(),
		"INSERT INTO teachers (name, email, timezone) VALUES ($1, $2, $3) RETURNING id",
		t.Name, nullable(t.Email), t.Timezone).Scan(&t.ID)
	if err != nil {
		return engine.Error(err)
	}
	return engine.JSON(t)
}

func (m *Module) handleDelete(r *http.Request, ps httprouter.Params) engine.Response {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		return engine.ClientErrorf("teacher id must be a number")
	}

	result, err := m.db.ExecContext(r.Context(), "DELETE FROM teachers WHERE id = $1", id)
	if err != nil {
		return engine.Error(err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return engine.NotFoundf("teacher not found")
	}
	return engine.Empty()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
