package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/mysql/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Migrate brings the schema up to date using the migrations embedded for the
// database's dialect. It returns the schema version after the run.
func Migrate(ctx context.Context, database Database) (int64, error) {
	var (
		dir     string
		dialect goose.Dialect
	)
	switch database.Dialect() {
	case DialectMySQL:
		dir, dialect = "migrations/mysql", goose.DialectMySQL
	case DialectSQLite:
		dir, dialect = "migrations/sqlite", goose.DialectSQLite3
	default:
		return 0, fmt.Errorf("no migrations for dialect %q", database.Dialect())
	}

	fsys, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return 0, fmt.Errorf("open migrations failed: %w", err)
	}
	provider, err := goose.NewProvider(dialect, database.DB(), fsys)
	if err != nil {
		return 0, fmt.Errorf("create migration provider failed: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return 0, fmt.Errorf("apply migrations failed: %w", err)
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("read schema version failed: %w", err)
	}
	return version, nil
}
