package presence

import (
	"context"
	"log/slog"
	"sync"
)

// EventOnlineUsers carries the full list of online user ids.
const EventOnlineUsers = "update-online-users"

// Broadcaster delivers an event to every live connection.
type Broadcaster interface {
	BroadcastAll(ctx context.Context, event string, payload any)
}

// Service applies connection lifecycle changes to a Registry and announces
// the resulting online list to everyone.
type Service struct {
	// mu orders register/unregister with their announcements so clients
	// never observe an older list after a newer one.
	mu          sync.Mutex
	registry    Registry
	broadcaster Broadcaster
	logger      *slog.Logger
	observe     func(onlineUsers, connections int)
}

// Option is a function that configures a Service.
type Option func(*Service)

// WithLogger overrides the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l.With("service", "presence")
	}
}

// WithObserver registers a callback invoked after every change with the
// number of online users and live connections.
func WithObserver(fn func(onlineUsers, connections int)) Option {
	return func(s *Service) {
		s.observe = fn
	}
}

// NewService creates a presence service over the given registry.
func NewService(registry Registry, broadcaster Broadcaster, opts ...Option) *Service {
	svc := &Service{
		registry:    registry,
		broadcaster: broadcaster,
		logger:      slog.Default().With("service", "presence"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Connect registers a newly authenticated connection and announces the online list.
func (s *Service) Connect(ctx context.Context, userID, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	first := s.registry.Register(userID, connID)
	s.logger.Info("Connection registered", "userID", userID, "connID", connID, "firstConnection", first)
	s.announce(ctx)
}

// Disconnect unregisters a connection and announces the online list.
func (s *Service) Disconnect(ctx context.Context, userID, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offline := s.registry.Unregister(userID, connID)
	s.logger.Info("Connection unregistered", "userID", userID, "connID", connID, "wentOffline", offline)
	s.announce(ctx)
}

// GetOnlineUsers returns the sorted ids of every online user.
func (s *Service) GetOnlineUsers() []string {
	return s.registry.OnlineUserIDs()
}

// GetPresence returns the live connections of userID, or false when offline.
func (s *Service) GetPresence(userID string) ([]Presence, bool) {
	p := s.registry.Presences(userID)
	return p, len(p) > 0
}

func (s *Service) announce(ctx context.Context) {
	online := s.registry.OnlineUserIDs()
	if s.observe != nil {
		s.observe(len(online), len(s.registry.AllConnections()))
	}
	s.broadcaster.BroadcastAll(ctx, EventOnlineUsers, online)
}
