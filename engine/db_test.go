package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenTestDB(t *testing.T) {
	db := OpenTestDB(t)
	require.NoError(t, db.Ping())

	MustMigrate(db, `CREATE TABLE IF NOT EXISTS t (id INTEGER PRIMARY KEY)`)
	MustMigrate(db, `CREATE TABLE IF NOT EXISTS t (id INTEGER PRIMARY KEY)`) // idempotent

	_, err := db.Exec("INSERT INTO t DEFAULT VALUES")
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM t").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestMustMigratePanics(t *testing.T) {
	db := OpenTestDB(t)
	assert.Panics(t, func() {
		MustMigrate(db, "NOT ACTUALLY SQL")
	})
}
