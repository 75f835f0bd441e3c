package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity is not found
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a constraint blocks the write
	// (foreign key still referenced, missing parent, duplicate key)
	ErrConflict = errors.New("entity conflict detected")

	// ErrConnectionFailed is returned when database connection fails
	ErrConnectionFailed = errors.New("database connection failed")

	// ErrTransactionFailed is returned when a transaction fails
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrTimeout is returned when a query times out
	ErrTimeout = errors.New("query timeout")
)

// IsNotFoundError checks if an error is a "not found" error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflictError checks if an error is a constraint conflict
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsTransientError checks if an error is worth retrying by the caller
func IsTransientError(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnectionFailed)
}
