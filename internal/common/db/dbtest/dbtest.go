// Package dbtest opens throwaway SQLite databases with the full schema applied.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"itsm/internal/common/db"
)

// Open returns a migrated SQLite database that is closed when the test ends.
func Open(t testing.TB) *db.SQLDatabase {
	t.Helper()
	database, err := db.NewSQLite(filepath.Join(t.TempDir(), "itsm.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if _, err := db.Migrate(context.Background(), database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

// Exec runs setup statements and fails the test on the first error.
func Exec(t testing.TB, database db.Database, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		if _, err := database.Exec(context.Background(), stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
}

// Count returns SELECT COUNT(*) for the given query.
func Count(t testing.TB, database db.Database, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	if err := database.QueryRow(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}
