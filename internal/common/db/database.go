package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLDatabase implements Database over a database/sql pool.
// The same type serves MySQL and SQLite; only the driver and dialect differ.
type SQLDatabase struct {
	db      *sql.DB
	dialect Dialect
}

// NewWithDB wraps an already opened pool, verifying it with a ping.
func NewWithDB(sqlDB *sql.DB, dialect Dialect) (*SQLDatabase, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("sql.DB cannot be nil")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &SQLDatabase{db: sqlDB, dialect: dialect}, nil
}

// Dialect reports the backend.
func (d *SQLDatabase) Dialect() Dialect {
	return d.dialect
}

// DB returns the underlying pool.
func (d *SQLDatabase) DB() *sql.DB {
	return d.db
}

// Query executes a query that returns rows
func (d *SQLDatabase) Query(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return &sqlRows{rows: rows}, nil
}

// QueryRow executes a query that returns at most one row
func (d *SQLDatabase) QueryRow(ctx context.Context, query string, args ...interface{}) Row {
	return &sqlRow{row: d.db.QueryRowContext(ctx, query, args...)}
}

// Exec executes a query that doesn't return rows
func (d *SQLDatabase) Exec(ctx context.Context, query string, args ...interface{}) (Result, error) {
	result, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("exec failed: %w", err)
	}
	return result, nil
}

// Transaction executes fn within a database transaction.
// Any error returned by fn, or a failed commit, leaves nothing behind.
func (d *SQLDatabase) Transaction(ctx context.Context, fn func(tx Transaction) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// BeginTx starts a new transaction with the given options
func (d *SQLDatabase) BeginTx(ctx context.Context, opts *sql.TxOptions) (Transaction, error) {
	tx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("begin transaction failed: %w", err)
	}
	return &sqlTransaction{tx: tx}, nil
}

// Ping verifies a connection to the database is still alive
func (d *SQLDatabase) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// Close closes the database connection
func (d *SQLDatabase) Close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("close failed: %w", err)
	}
	return nil
}

type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool {
	return r.rows.Next()
}

func (r *sqlRows) Scan(dest ...interface{}) error {
	if err := r.rows.Scan(dest...); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	return nil
}

func (r *sqlRows) Close() error {
	return r.rows.Close()
}

func (r *sqlRows) Err() error {
	return r.rows.Err()
}

type sqlRow struct {
	row *sql.Row
}

// Scan keeps sql.ErrNoRows reachable through errors.Is.
func (r *sqlRow) Scan(dest ...interface{}) error {
	if err := r.row.Scan(dest...); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	return nil
}

type sqlTransaction struct {
	tx *sql.Tx
}

func (t *sqlTransaction) Query(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transaction query failed: %w", err)
	}
	return &sqlRows{rows: rows}, nil
}

func (t *sqlTransaction) QueryRow(ctx context.Context, query string, args ...interface{}) Row {
	return &sqlRow{row: t.tx.QueryRowContext(ctx, query, args...)}
}

func (t *sqlTransaction) Exec(ctx context.Context, query string, args ...interface{}) (Result, error) {
	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transaction exec failed: %w", err)
	}
	return result, nil
}

func (t *sqlTransaction) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (t *sqlTransaction) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return nil
}
