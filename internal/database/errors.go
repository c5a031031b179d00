package database

import (
	"errors"
	"fmt"
)

// Sentinel errors for the storage layer. Stores translate ErrNotFound into
// the matching domain error before it leaves the package.
var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input data")
	ErrQueryFailed  = errors.New("query execution failed")
	ErrNotConnected = errors.New("database not connected")
)

// DBError carries the operation, and optionally the query, that produced an error.
type DBError struct {
	err     error
	context string
	query   string
}

// NewDBError creates a DBError describing the operation that failed.
func NewDBError(err error, context string) *DBError {
	return &DBError{err: err, context: context}
}

// WithQuery records the SurrealQL statement that was running.
func (e *DBError) WithQuery(query string) *DBError {
	e.query = query
	return e
}

func (e *DBError) Error() string {
	msg := e.context
	if e.query != "" {
		msg = fmt.Sprintf("%s (query: %s)", msg, e.query)
	}
	if e.err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.err)
	}
	return msg
}

func (e *DBError) Unwrap() error {
	return e.err
}

// Is matches the package sentinels against the wrapped error.
func (e *DBError) Is(target error) bool {
	switch target {
	case ErrNotFound, ErrInvalidInput, ErrQueryFailed, ErrNotConnected:
		return errors.Is(e.err, target)
	}
	return false
}

// WrapError prefixes err with context. An existing DBError is extended in place.
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}
	var dbErr *DBError
	if errors.As(err, &dbErr) {
		if dbErr.context != "" {
			context = fmt.Sprintf("%s: %s", context, dbErr.context)
		}
		dbErr.context = context
		return dbErr
	}
	return NewDBError(err, context)
}
