package database

import (
	"context"
	"time"

	"github.com/nfrund/relay/internal/config"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Client is a typed view over one table's records.
type Client[T any] interface {
	// Create inserts data under id and returns the stored record.
	Create(ctx context.Context, id surrealmodels.RecordID, data any) (*T, error)
	// Select returns ErrNotFound when id does not exist.
	Select(ctx context.Context, id surrealmodels.RecordID) (*T, error)
	// Merge applies a partial update and returns the record after it.
	// It returns ErrNotFound when id does not exist.
	Merge(ctx context.Context, id surrealmodels.RecordID, data any) (*T, error)
	// Delete returns ErrNotFound when id does not exist.
	Delete(ctx context.Context, id surrealmodels.RecordID) error

	Query(ctx context.Context, query string, params map[string]any) ([]T, error)
	QueryOne(ctx context.Context, query string, params map[string]any) (*T, error)
	Execute(ctx context.Context, query string, params map[string]any) error
}

type client[T any] struct {
	executor       QueryExecutor[T]
	queryTimeout   time.Duration
	executeTimeout time.Duration
}

// ClientOption configures a Client.
type ClientOption[T any] func(*client[T])

// WithExecutor replaces the driver-backed executor.
func WithExecutor[T any](executor QueryExecutor[T]) ClientOption[T] {
	return func(c *client[T]) {
		c.executor = executor
	}
}

// NewClient builds a Client that runs on conn with the configured timeouts.
func NewClient[T any](conn DBConnection, cfg config.Provider, opts ...ClientOption[T]) (Client[T], error) {
	if cfg == nil {
		return nil, NewDBError(ErrInvalidInput, "config provider cannot be nil")
	}
	c := &client[T]{
		queryTimeout:   cfg.GetDBQueryTimeout(),
		executeTimeout: cfg.GetDBExecuteTimeout(),
	}
	if c.queryTimeout <= 0 {
		return nil, NewDBError(ErrInvalidInput, "DB_QUERY_TIMEOUT must be a positive duration")
	}
	if c.executeTimeout <= 0 {
		return nil, NewDBError(ErrInvalidInput, "DB_EXECUTE_TIMEOUT must be a positive duration")
	}
	if conn != nil {
		c.executor = newSurrealExecutor[T](conn)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.executor == nil {
		return nil, NewDBError(ErrInvalidInput, "connection cannot be nil")
	}
	return c, nil
}

func (c *client[T]) Query(ctx context.Context, query string, params map[string]any) ([]T, error) {
	ctx, cancel := getTimeoutFromContext(ctx, c.queryTimeout, ContextKeyQueryTimeout)
	defer cancel()
	rows, err := c.executor.Query(ctx, query, params)
	if err != nil {
		return nil, NewDBError(err, "query").WithQuery(query)
	}
	return rows, nil
}

func (c *client[T]) QueryOne(ctx context.Context, query string, params map[string]any) (*T, error) {
	ctx, cancel := getTimeoutFromContext(ctx, c.queryTimeout, ContextKeyQueryTimeout)
	defer cancel()
	row, err := c.executor.QueryOne(ctx, query, params)
	if err != nil {
		return nil, NewDBError(err, "query one").WithQuery(query)
	}
	return row, nil
}

func (c *client[T]) Execute(ctx context.Context, query string, params map[string]any) error {
	ctx, cancel := getTimeoutFromContext(ctx, c.executeTimeout, ContextKeyExecuteTimeout)
	defer cancel()
	if err := c.executor.Execute(ctx, query, params); err != nil {
		return NewDBError(err, "execute").WithQuery(query)
	}
	return nil
}

func (c *client[T]) Create(ctx context.Context, id surrealmodels.RecordID, data any) (*T, error) {
	if data == nil {
		return nil, NewDBError(ErrInvalidInput, "data cannot be nil")
	}
	ctx, cancel := getTimeoutFromContext(ctx, c.executeTimeout, ContextKeyExecuteTimeout)
	defer cancel()

	const q = "CREATE $id CONTENT $data"
	row, err := c.executor.QueryOne(ctx, q, map[string]any{"id": id, "data": data})
	if err != nil {
		return nil, NewDBError(err, "create").WithQuery(q)
	}
	if row == nil {
		return nil, NewDBError(ErrQueryFailed, "create returned no record")
	}
	return row, nil
}

func (c *client[T]) Select(ctx context.Context, id surrealmodels.RecordID) (*T, error) {
	ctx, cancel := getTimeoutFromContext(ctx, c.queryTimeout, ContextKeyQueryTimeout)
	defer cancel()

	const q = "SELECT * FROM $id"
	row, err := c.executor.QueryOne(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, NewDBError(err, "select").WithQuery(q)
	}
	if row == nil {
		return nil, NewDBError(ErrNotFound, "select "+id.String())
	}
	return row, nil
}

func (c *client[T]) Merge(ctx context.Context, id surrealmodels.RecordID, data any) (*T, error) {
	if data == nil {
		return nil, NewDBError(ErrInvalidInput, "data cannot be nil")
	}
	ctx, cancel := getTimeoutFromContext(ctx, c.executeTimeout, ContextKeyExecuteTimeout)
	defer cancel()

	const q = "UPDATE $id MERGE $data RETURN AFTER"
	row, err := c.executor.QueryOne(ctx, q, map[string]any{"id": id, "data": data})
	if err != nil {
		return nil, NewDBError(err, "merge").WithQuery(q)
	}
	if row == nil {
		return nil, NewDBError(ErrNotFound, "merge "+id.String())
	}
	return row, nil
}

func (c *client[T]) Delete(ctx context.Context, id surrealmodels.RecordID) error {
	ctx, cancel := getTimeoutFromContext(ctx, c.executeTimeout, ContextKeyExecuteTimeout)
	defer cancel()

	const q = "DELETE $id RETURN BEFORE"
	row, err := c.executor.QueryOne(ctx, q, map[string]any{"id": id})
	if err != nil {
		return NewDBError(err, "delete").WithQuery(q)
	}
	if row == nil {
		return NewDBError(ErrNotFound, "delete "+id.String())
	}
	return nil
}
