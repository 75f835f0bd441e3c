package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"itsm/pkg/repository"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// MySQL server error numbers the store reacts to.
const (
	mysqlDuplicateEntry     = 1062
	mysqlRowIsReferenced    = 1451
	mysqlNoReferencedRow    = 1452
	mysqlRowIsReferencedOld = 1217
	mysqlNoReferencedRowOld = 1216
	mysqlLockWaitTimeout    = 1205
	mysqlDeadlock           = 1213
	mysqlQueryTimeout       = 3024
)

// Querier abstracts database operations for both database and transaction.
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) Row
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
}

// GetQuerier returns transaction if provided, otherwise uses the database.
func GetQuerier(database Database, tx Transaction) Querier {
	if tx != nil {
		return tx
	}
	return database
}

// IsNoRows checks if the error is sql.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// IsUniqueViolation reports a duplicate key on either backend.
func IsUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// IsForeignKeyViolation reports a foreign key failure on either backend.
func IsForeignKeyViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlRowIsReferenced, mysqlNoReferencedRow, mysqlRowIsReferencedOld, mysqlNoReferencedRowOld:
			return true
		}
		return false
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return false
}

// IsConstraintViolation reports any integrity constraint failure.
func IsConstraintViolation(err error) bool {
	if IsUniqueViolation(err) || IsForeignKeyViolation(err) {
		return true
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlLockWaitTimeout, mysqlDeadlock, mysqlQueryTimeout:
			return true
		}
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}

func isConnectionFailure(err error) bool {
	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, sql.ErrConnDone)
}

// Classify maps a driver error onto the repository sentinels while keeping
// the original error in the chain. Unrecognized and already classified
// errors are returned as is.
func Classify(err error) error {
	switch {
	case err == nil, isClassified(err):
		return err
	case IsNoRows(err):
		return fmt.Errorf("%w: %w", repository.ErrNotFound, err)
	case IsConstraintViolation(err):
		return fmt.Errorf("%w: %w", repository.ErrConflict, err)
	case isTimeout(err):
		return fmt.Errorf("%w: %w", repository.ErrTimeout, err)
	case isConnectionFailure(err):
		return fmt.Errorf("%w: %w", repository.ErrConnectionFailed, err)
	default:
		return err
	}
}

func isClassified(err error) bool {
	return errors.Is(err, repository.ErrNotFound) ||
		errors.Is(err, repository.ErrConflict) ||
		errors.Is(err, repository.ErrTimeout) ||
		errors.Is(err, repository.ErrConnectionFailed)
}
