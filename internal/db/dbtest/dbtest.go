// Package dbtest opens migrated databases for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/homebase-app/homebase/internal/db"
)

// NewSQLite opens a migrated SQLite database in a temp dir, closed on cleanup.
func NewSQLite(t testing.TB) *sqlx.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "store.db")
	conn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite"

	database, err := db.Init(db.DriverSQLite, conn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(database) })

	require.NoError(t, db.RunMigrations(database.DB, db.DriverSQLite))
	return database
}
