package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/metrics"
	"github.com/nfrund/relay/internal/presence"
)

// Sender hands one encoded frame to each listed connection. Unknown or
// closed connections are skipped. Delivery is best effort.
type Sender interface {
	Send(ctx context.Context, connIDs []string, frame []byte) error
}

// Frame is the wire envelope for outbound events.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// EncodeFrame marshals an outbound event once for the whole fan-out.
func EncodeFrame(event string, payload any) ([]byte, error) {
	b, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", event, err)
	}
	return b, nil
}

// Audience is a set of delivery selectors. Selectors are combined as a set
// union over connection ids; exclusions apply last. The zero value targets
// nobody.
type Audience struct {
	everyone    bool
	rooms       []string
	users       []string
	conns       []string
	exceptConns []string
	exceptUsers []string
}

// Everyone targets every registered connection.
func Everyone() Audience { return Audience{everyone: true} }

// Room targets the connections that joined a conversation room.
func (a Audience) Room(conversationID string) Audience {
	a.rooms = append(slices.Clip(a.rooms), conversationID)
	return a
}

// User targets every connection of a user.
func (a Audience) User(userID string) Audience {
	a.users = append(slices.Clip(a.users), userID)
	return a
}

// Participants targets every connection of every participant.
func (a Audience) Participants(conv *domain.Conversation) Audience {
	if conv == nil {
		return a
	}
	a.users = append(slices.Clip(a.users), conv.Participants...)
	return a
}

// Connection targets a single connection.
func (a Audience) Connection(connID string) Audience {
	a.conns = append(slices.Clip(a.conns), connID)
	return a
}

// ExceptConnection removes a connection from the resolved set.
func (a Audience) ExceptConnection(connID string) Audience {
	a.exceptConns = append(slices.Clip(a.exceptConns), connID)
	return a
}

// ExceptUser removes every connection of a user from the resolved set.
func (a Audience) ExceptUser(userID string) Audience {
	a.exceptUsers = append(slices.Clip(a.exceptUsers), userID)
	return a
}

// Dispatcher resolves audiences through the presence registry and the room
// index and delivers each frame to every resolved connection exactly once.
type Dispatcher struct {
	registry presence.Registry
	rooms    *Rooms
	sender   Sender
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger overrides the dispatcher logger.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l.With("service", "dispatcher") }
}

// WithDispatcherMetrics records delivered frame counts.
func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(registry presence.Registry, rooms *Rooms, sender Sender, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		rooms:    rooms,
		sender:   sender,
		logger:   slog.Default().With("service", "dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Resolve returns the sorted, de-duplicated connection ids of an audience.
func (d *Dispatcher) Resolve(a Audience) []string {
	set := make(map[string]struct{})
	if a.everyone {
		for _, id := range d.registry.AllConnections() {
			set[id] = struct{}{}
		}
	}
	for _, room := range a.rooms {
		for _, id := range d.rooms.Members(room) {
			set[id] = struct{}{}
		}
	}
	for _, user := range a.users {
		for _, id := range d.registry.ConnectionsOf(user) {
			set[id] = struct{}{}
		}
	}
	for _, id := range a.conns {
		set[id] = struct{}{}
	}
	for _, user := range a.exceptUsers {
		for _, id := range d.registry.ConnectionsOf(user) {
			delete(set, id)
		}
	}
	for _, id := range a.exceptConns {
		delete(set, id)
	}

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Emit delivers event to the audience and returns the connection ids it targeted.
func (d *Dispatcher) Emit(ctx context.Context, a Audience, event string, payload any) []string {
	targets := d.Resolve(a)
	if len(targets) == 0 {
		return targets
	}
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to encode frame", "event", event, "error", err)
		return nil
	}
	if err := d.sender.Send(ctx, targets, frame); err != nil {
		d.logger.WarnContext(ctx, "Frame delivery failed", "event", event, "targets", len(targets), "error", err)
		return targets
	}
	d.metrics.FramesDelivered(event, len(targets))
	return targets
}

// BroadcastToRoom delivers to every connection in the room except the listed ones.
func (d *Dispatcher) BroadcastToRoom(ctx context.Context, conversationID, event string, payload any, except ...string) []string {
	a := Audience{}.Room(conversationID)
	for _, id := range except {
		a = a.ExceptConnection(id)
	}
	return d.Emit(ctx, a, event, payload)
}

// DeliverToUser delivers to every connection of userID.
func (d *Dispatcher) DeliverToUser(ctx context.Context, userID, event string, payload any) []string {
	return d.Emit(ctx, Audience{}.User(userID), event, payload)
}

// DeliverToParticipants delivers to every connection of every participant
// except the listed users.
func (d *Dispatcher) DeliverToParticipants(ctx context.Context, conv *domain.Conversation, event string, payload any, exceptUsers ...string) []string {
	a := Audience{}.Participants(conv)
	for _, id := range exceptUsers {
		a = a.ExceptUser(id)
	}
	return d.Emit(ctx, a, event, payload)
}

// DeliverToConnection delivers to a single connection.
func (d *Dispatcher) DeliverToConnection(ctx context.Context, connID, event string, payload any) {
	d.Emit(ctx, Audience{}.Connection(connID), event, payload)
}

// BroadcastAll delivers to every live connection. It satisfies presence.Broadcaster.
func (d *Dispatcher) BroadcastAll(ctx context.Context, event string, payload any) {
	d.Emit(ctx, Everyone(), event, payload)
}
