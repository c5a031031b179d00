package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nfrund/relay/internal/config"
	"github.com/surrealdb/surrealdb.go"
)

// DBConnection is what clients need from a managed connection.
type DBConnection interface {
	WithConnection(ctx context.Context, fn func(*surrealdb.DB) error) error
}

// ExponentialBackoffRetryer retries a function with capped, jittered exponential delays.
type ExponentialBackoffRetryer struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	multiplier float64
	jitter     bool
}

func NewExponentialBackoffRetryer() *ExponentialBackoffRetryer {
	return &ExponentialBackoffRetryer{
		maxRetries: 5,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   30 * time.Second,
		multiplier: 2.0,
		jitter:     true,
	}
}

// Retry calls fn until it succeeds, the attempts run out, or ctx ends.
func (r *ExponentialBackoffRetryer) Retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == r.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.delay(attempt)):
		}
	}
	return fmt.Errorf("operation failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

func (r *ExponentialBackoffRetryer) delay(attempt int) time.Duration {
	d := math.Min(float64(r.baseDelay)*math.Pow(r.multiplier, float64(attempt)), float64(r.maxDelay))
	if r.jitter {
		// up to 25% extra
		d += rand.Float64() * d * 0.25
	}
	return time.Duration(d)
}

// Connection owns the process's SurrealDB session. It signs in as the
// configured root user and reconnects when the link drops.
type Connection struct {
	cfg     config.Provider
	logger  *slog.Logger
	retryer *ExponentialBackoffRetryer

	mu      sync.RWMutex
	conn    *surrealdb.DB
	healthy bool

	done      chan struct{}
	closeOnce sync.Once
}

// ConnectionOption configures a Connection.
type ConnectionOption func(*Connection)

func WithConnectionLogger(logger *slog.Logger) ConnectionOption {
	return func(c *Connection) {
		c.logger = logger
	}
}

func NewConnection(cfg config.Provider, opts ...ConnectionOption) *Connection {
	c := &Connection{
		cfg:     cfg,
		logger:  slog.Default(),
		retryer: NewExponentialBackoffRetryer(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("service", "database")
	return c
}

// Connect opens the initial session. It is a no-op when already connected.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	return c.reconnect(ctx)
}

// WithConnection runs fn on the current session. When fn fails with what
// looks like a transport error the session is re-established before the
// original error is returned. fn is never run twice.
func (c *Connection) WithConnection(ctx context.Context, fn func(*surrealdb.DB) error) error {
	conn := c.current()
	if conn == nil {
		return NewDBError(ErrNotConnected, "no active session")
	}

	err := fn(conn)
	if err == nil || !isConnectionError(err) || ctx.Err() != nil {
		return err
	}

	c.logger.WarnContext(ctx, "Database operation failed, reconnecting", "error", err, "db_url", redactDBURL(c.cfg.GetDBURL()))
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.GetDBExecuteTimeout())
	defer cancel()
	if rerr := c.retryer.Retry(rctx, func() error { return c.forceReconnect(rctx) }); rerr != nil {
		c.logger.ErrorContext(ctx, "Database reconnect failed", "error", rerr)
	}
	return err
}

// StartMonitoring runs a periodic health check until Close.
func (c *Connection) StartMonitoring() {
	go c.monitor(30 * time.Second)
}

func (c *Connection) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.conn != nil {
			err = c.conn.Close(ctx)
			c.conn = nil
		}
		c.healthy = false
	})
	return err
}

// DB returns the session if it is healthy.
func (c *Connection) DB() (*surrealdb.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil || !c.healthy {
		return nil, NewDBError(ErrNotConnected, "database not connected or unhealthy")
	}
	return c.conn, nil
}

func (c *Connection) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

func (c *Connection) current() *surrealdb.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// reconnect replaces the session. Callers hold c.mu.
func (c *Connection) reconnect(ctx context.Context) error {
	if c.conn != nil {
		_ = c.conn.Close(ctx)
		c.conn = nil
	}
	c.healthy = false

	dbURL := c.cfg.GetDBURL()
	safeURL := redactDBURL(dbURL)
	c.logger.DebugContext(ctx, "Connecting to database", "db_url", safeURL)

	conn, err := open(ctx, c.cfg)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to connect to database", "db_url", safeURL, "error", err)
		return err
	}

	c.conn = conn
	c.healthy = true
	c.logger.InfoContext(ctx, "Database connection established", "db_url", safeURL, "namespace", c.cfg.GetDBNs(), "database", c.cfg.GetDBDb())
	return nil
}

// open dials, signs in as the configured user and selects the namespace.
func open(ctx context.Context, cfg config.Provider) (*surrealdb.DB, error) {
	conn, err := surrealdb.FromEndpointURLString(ctx, cfg.GetDBURL())
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", redactDBURL(cfg.GetDBURL()), err)
	}
	if cfg.GetDBUser() != "" {
		if _, err := conn.SignIn(ctx, &surrealdb.Auth{Username: cfg.GetDBUser(), Password: cfg.GetDBPass()}); err != nil {
			_ = conn.Close(ctx)
			return nil, fmt.Errorf("sign in: %w", err)
		}
	}
	if err := conn.Use(ctx, cfg.GetDBNs(), cfg.GetDBDb()); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("use namespace/db: %w", err)
	}
	return conn, nil
}

func (c *Connection) forceReconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return NewDBError(ErrNotConnected, "connection closed")
	default:
	}
	return c.reconnect(ctx)
}

func (c *Connection) monitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.checkHealth(ctx); err != nil {
				c.logger.WarnContext(ctx, "Database health check failed, reconnecting", "error", err)
				if rerr := c.retryer.Retry(ctx, func() error { return c.forceReconnect(ctx) }); rerr != nil {
					c.logger.ErrorContext(ctx, "Database reconnect failed", "error", rerr)
				}
			}
			cancel()
		case <-c.done:
			return
		}
	}
}

func (c *Connection) checkHealth(ctx context.Context) error {
	conn := c.current()
	if conn == nil {
		c.setHealthy(false)
		return errors.New("no active database connection")
	}
	if _, err := conn.Version(ctx); err != nil {
		c.setHealthy(false)
		return fmt.Errorf("version check: %w", err)
	}
	c.setHealthy(true)
	return nil
}

func (c *Connection) setHealthy(v bool) {
	c.mu.Lock()
	c.healthy = v
	c.mu.Unlock()
}

// isConnectionError reports whether err looks like a dropped link rather
// than a query failure.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "broken pipe", "unexpected eof", "use of closed network connection", "connection reset"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// redactDBURL hides the password in dbURL for logging.
func redactDBURL(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "invalid-url"
	}
	return u.Redacted()
}
