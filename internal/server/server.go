package server

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/relay/internal/config"
	"github.com/nfrund/relay/internal/handlers"
	"github.com/nfrund/relay/internal/metrics"
	"github.com/nfrund/relay/internal/middleware"
	"github.com/nfrund/relay/internal/realtime"
)

// Closer releases a resource during shutdown.
type Closer struct {
	Name  string
	Close func(ctx context.Context) error
}

// Deps are the services the HTTP server exposes.
type Deps struct {
	Config   config.Provider
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Hub      *realtime.Hub
	Presence *handlers.PresenceHandler
	// Closers run in order after the hub and the HTTP listener have stopped.
	Closers []Closer
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	E        *echo.Echo
	cfg      config.Provider
	logger   *slog.Logger
	metrics  *metrics.Metrics
	hub      *realtime.Hub
	presence *handlers.PresenceHandler
	closers  []Closer
}

// New builds the echo instance and its middleware chain. Routes are added
// by RegisterRoutes.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.Recover())
	setupErrorHandling(e)

	return &Server{
		E:        e,
		cfg:      deps.Config,
		logger:   logger.With("service", "server"),
		metrics:  deps.Metrics,
		hub:      deps.Hub,
		presence: deps.Presence,
		closers:  deps.Closers,
	}
}
