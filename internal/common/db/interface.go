package db

import (
	"context"
	"database/sql"
)

// Dialect names the SQL backend behind a Database.
type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)

// Scanner is satisfied by both Row and Rows.
type Scanner interface {
	Scan(dest ...interface{}) error
}

// Rows is the result of a query that returns a set of rows.
type Rows interface {
	Scanner
	Next() bool
	Close() error
	Err() error
}

// Row is the result of a query that returns at most one row.
type Row interface {
	Scanner
}

// Result summarizes an executed statement.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// Transaction is an in-progress database transaction.
type Transaction interface {
	Querier
	Commit() error
	Rollback() error
}

// Database is a pooled connection handle.
type Database interface {
	Querier
	// Transaction runs fn inside a transaction; fn's error rolls it back.
	Transaction(ctx context.Context, fn func(tx Transaction) error) error
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Transaction, error)
	Ping(ctx context.Context) error
	Close() error
	Dialect() Dialect
	// DB exposes the pool for tooling such as migrations.
	DB() *sql.DB
}
