// Package app is the composition root. It registers every service on a
// samber/do injector and resolves the HTTP server from it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nfrund/relay/internal/auth"
	"github.com/nfrund/relay/internal/chat"
	"github.com/nfrund/relay/internal/config"
	"github.com/nfrund/relay/internal/database"
	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/handlers"
	"github.com/nfrund/relay/internal/metrics"
	"github.com/nfrund/relay/internal/presence"
	"github.com/nfrund/relay/internal/pubsub"
	"github.com/nfrund/relay/internal/realtime"
	"github.com/nfrund/relay/internal/server"
	"github.com/samber/do/v2"
)

// ErrNoVerifier is returned when repositories are supplied without a JWT secret.
var ErrNoVerifier = errors.New("AUTH_JWT_SECRET is required when no database is configured")

// App owns the injector for one process.
type App struct {
	injector *do.RootScope
}

// Option configures New.
type Option func(*options)

type options struct {
	users         domain.UserRepository
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
}

// WithRepositories replaces the SurrealDB stores. No database connection
// is opened, so token verification needs AUTH_JWT_SECRET.
func WithRepositories(users domain.UserRepository, conversations domain.ConversationRepository, messages domain.MessageRepository) Option {
	return func(o *options) {
		o.users = users
		o.conversations = conversations
		o.messages = messages
	}
}

// New registers every provider. Nothing is constructed until Server is called.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *App {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	i := do.New()
	do.ProvideValue(i, cfg)
	do.ProvideValue(i, logger)
	do.Provide(i, newMetrics)

	external := o.users != nil && o.conversations != nil && o.messages != nil
	if external {
		do.ProvideValue(i, o.users)
		do.ProvideValue(i, o.conversations)
		do.ProvideValue(i, o.messages)
	} else {
		do.Provide(i, newConnection)
		do.Provide(i, newUserStore)
		do.Provide(i, func(i do.Injector) (domain.UserRepository, error) {
			return do.Invoke[*database.UserStore](i)
		})
		do.Provide(i, func(i do.Injector) (domain.ConversationRepository, error) {
			conn := do.MustInvoke[*database.Connection](i)
			return database.NewConversationStore(conn, do.MustInvoke[*config.Config](i))
		})
		do.Provide(i, func(i do.Injector) (domain.MessageRepository, error) {
			conn := do.MustInvoke[*database.Connection](i)
			return database.NewMessageStore(conn, do.MustInvoke[*config.Config](i))
		})
	}

	do.Provide(i, newVerifier(external))
	do.Provide(i, newAuthenticator)
	do.Provide(i, newBus)
	do.Provide(i, func(do.Injector) (*presence.MemoryRegistry, error) { return presence.NewMemoryRegistry(), nil })
	do.Provide(i, func(do.Injector) (*chat.Rooms, error) { return chat.NewRooms(), nil })
	do.Provide(i, newDispatcher)
	do.Provide(i, newPresenceService)
	do.Provide(i, func(i do.Injector) (*chat.Guard, error) {
		return chat.NewGuard(do.MustInvoke[domain.ConversationRepository](i)), nil
	})
	do.Provide(i, func(i do.Injector) (*chat.RoomHandler, error) {
		return chat.NewRoomHandler(do.MustInvoke[*chat.Guard](i), do.MustInvoke[*chat.Rooms](i), do.MustInvoke[*slog.Logger](i)), nil
	})
	do.Provide(i, newRouter)
	do.Provide(i, newHub)
	do.Provide(i, func(i do.Injector) (*handlers.PresenceHandler, error) {
		return handlers.NewPresenceHandler(do.MustInvoke[*presence.Service](i)), nil
	})
	do.Provide(i, newServer(external))

	return &App{injector: i}
}

// Server resolves the HTTP server and everything it depends on.
func (a *App) Server() (*server.Server, error) {
	s, err := do.Invoke[*server.Server](a.injector)
	if err != nil {
		return nil, fmt.Errorf("build server: %w", err)
	}
	return s, nil
}

// Release tears the injector down. Call it after the server has stopped.
func (a *App) Release() {
	a.injector.Shutdown()
}

func newMetrics(do.Injector) (*metrics.Metrics, error) {
	return metrics.New(), nil
}

func newConnection(i do.Injector) (*database.Connection, error) {
	cfg := do.MustInvoke[*config.Config](i)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conn := database.NewConnection(cfg, database.WithConnectionLogger(do.MustInvoke[*slog.Logger](i)))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetDBExecuteTimeout())
	defer cancel()
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	conn.StartMonitoring()
	return conn, nil
}

func newUserStore(i do.Injector) (*database.UserStore, error) {
	return database.NewUserStore(do.MustInvoke[*database.Connection](i), do.MustInvoke[*config.Config](i))
}

// newVerifier prefers HMAC JWTs when a secret is configured and falls back
// to SurrealDB record access tokens.
func newVerifier(external bool) func(do.Injector) (auth.TokenVerifier, error) {
	return func(i do.Injector) (auth.TokenVerifier, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if secret := cfg.GetJWTSecret(); secret != "" {
			return auth.NewJWTVerifier(secret), nil
		}
		if external {
			return nil, ErrNoVerifier
		}
		return do.Invoke[*database.UserStore](i)
	}
}

func newAuthenticator(i do.Injector) (*auth.Authenticator, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return auth.NewAuthenticator(
		do.MustInvoke[auth.TokenVerifier](i),
		do.MustInvoke[domain.UserRepository](i),
		auth.WithLogger(do.MustInvoke[*slog.Logger](i)),
		auth.WithCookieName(cfg.GetAuthCookieName()),
	), nil
}

func newBus(i do.Injector) (*pubsub.WatermillBridge, error) {
	return pubsub.NewWatermillBridge(do.MustInvoke[*slog.Logger](i)), nil
}

func newDispatcher(i do.Injector) (*chat.Dispatcher, error) {
	return chat.NewDispatcher(
		do.MustInvoke[*presence.MemoryRegistry](i),
		do.MustInvoke[*chat.Rooms](i),
		realtime.NewBusSender(do.MustInvoke[*pubsub.WatermillBridge](i)),
		chat.WithDispatcherLogger(do.MustInvoke[*slog.Logger](i)),
		chat.WithDispatcherMetrics(do.MustInvoke[*metrics.Metrics](i)),
	), nil
}

func newPresenceService(i do.Injector) (*presence.Service, error) {
	m := do.MustInvoke[*metrics.Metrics](i)
	return presence.NewService(
		do.MustInvoke[*presence.MemoryRegistry](i),
		do.MustInvoke[*chat.Dispatcher](i),
		presence.WithLogger(do.MustInvoke[*slog.Logger](i)),
		presence.WithObserver(m.SetPresence),
	), nil
}

func newRouter(i do.Injector) (*chat.Router, error) {
	logger := do.MustInvoke[*slog.Logger](i)
	dispatcher := do.MustInvoke[*chat.Dispatcher](i)
	guard := do.MustInvoke[*chat.Guard](i)

	messages := chat.NewMessageHandler(
		guard,
		do.MustInvoke[domain.ConversationRepository](i),
		do.MustInvoke[domain.MessageRepository](i),
		do.MustInvoke[domain.UserRepository](i),
		dispatcher,
		logger,
	)
	return chat.NewRouter(
		messages,
		chat.NewTypingHandler(guard, dispatcher, logger),
		do.MustInvoke[*chat.RoomHandler](i),
		dispatcher,
		logger,
		do.MustInvoke[*metrics.Metrics](i),
	), nil
}

func newHub(i do.Injector) (*realtime.Hub, error) {
	cfg := do.MustInvoke[*config.Config](i)
	router := do.MustInvoke[*chat.Router](i)
	hub := realtime.NewHub(
		do.MustInvoke[*auth.Authenticator](i),
		do.MustInvoke[*presence.Service](i),
		router,
		do.MustInvoke[*chat.RoomHandler](i),
		realtime.WithLogger(do.MustInvoke[*slog.Logger](i)),
		realtime.WithMetrics(do.MustInvoke[*metrics.Metrics](i)),
		realtime.WithSendBuffer(cfg.GetWSSendBuffer()),
		realtime.WithRateLimit(cfg.GetWSEventsPerSecond(), cfg.GetWSEventBurst()),
		realtime.WithHandlerTimeout(cfg.GetWSHandlerTimeout()),
		realtime.WithCloseGrace(cfg.GetWSCloseGrace()),
		realtime.WithOriginPatterns(cfg.GetWSAllowedOrigins()...),
	)
	if err := hub.Subscribe(context.Background(), do.MustInvoke[*pubsub.WatermillBridge](i)); err != nil {
		return nil, fmt.Errorf("subscribe hub to bus: %w", err)
	}
	return hub, nil
}

// newServer closes the bus before the database so in-flight deliveries
// finish first.
func newServer(external bool) func(do.Injector) (*server.Server, error) {
	return func(i do.Injector) (*server.Server, error) {
		bus := do.MustInvoke[*pubsub.WatermillBridge](i)
		closers := []server.Closer{{
			Name:  "bus",
			Close: func(context.Context) error { return bus.Close() },
		}}
		if !external {
			conn := do.MustInvoke[*database.Connection](i)
			closers = append(closers, server.Closer{Name: "database", Close: conn.Close})
		}

		s := server.New(server.Deps{
			Config:   do.MustInvoke[*config.Config](i),
			Logger:   do.MustInvoke[*slog.Logger](i),
			Metrics:  do.MustInvoke[*metrics.Metrics](i),
			Hub:      do.MustInvoke[*realtime.Hub](i),
			Presence: do.MustInvoke[*handlers.PresenceHandler](i),
			Closers:  closers,
		})
		s.RegisterRoutes()
		return s, nil
	}
}
