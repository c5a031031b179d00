package presence

import (
	"slices"
	"sort"
	"sync"
	"time"
)

// Presence describes one live connection of a user.
type Presence struct {
	UserID       string    `json:"user_id"`
	ConnectionID string    `json:"connection_id"`
	ConnectedAt  time.Time `json:"connected_at"`
}

// Registry tracks which users are reachable on which connections.
// A user is online iff it has at least one registered connection.
type Registry interface {
	// Register adds connID to userID's set and reports whether it was the user's first connection.
	Register(userID, connID string) bool
	// Unregister removes connID from userID's set and reports whether the user went offline.
	Unregister(userID, connID string) bool
	// ConnectionsOf returns the user's connection ids, or an empty slice when offline.
	ConnectionsOf(userID string) []string
	// OnlineUserIDs returns every user with at least one connection, sorted.
	OnlineUserIDs() []string
	// AllConnections returns every registered connection id.
	AllConnections() []string
	// Presences returns the live connections of one user.
	Presences(userID string) []Presence
}

// MemoryRegistry is the in-process Registry. It is safe for concurrent use.
type MemoryRegistry struct {
	mu    sync.RWMutex
	users map[string]map[string]time.Time // userID -> connID -> connected at
	now   func() time.Time
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		users: make(map[string]map[string]time.Time),
		now:   Now,
	}
}

// Now returns the current time in UTC
func Now() time.Time {
	return time.Now().UTC()
}

func (r *MemoryRegistry) Register(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userID]
	if !ok {
		conns = make(map[string]time.Time)
		r.users[userID] = conns
	}
	if _, dup := conns[connID]; !dup {
		conns[connID] = r.now()
	}
	return !ok
}

func (r *MemoryRegistry) Unregister(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userID]
	if !ok {
		return false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.users, userID)
		return true
	}
	return false
}

func (r *MemoryRegistry) ConnectionsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.users[userID]
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (r *MemoryRegistry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.users))
	for id := range r.users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *MemoryRegistry) AllConnections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for _, conns := range r.users {
		for id := range conns {
			out = append(out, id)
		}
	}
	return out
}

func (r *MemoryRegistry) Presences(userID string) []Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.users[userID]
	out := make([]Presence, 0, len(conns))
	for id, at := range conns {
		out = append(out, Presence{UserID: userID, ConnectionID: id, ConnectedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}
