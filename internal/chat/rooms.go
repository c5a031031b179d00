package chat

import (
	"slices"
	"sync"
)

// Rooms indexes which connections joined which conversation rooms.
// It is safe for concurrent use.
type Rooms struct {
	mu     sync.RWMutex
	byConn map[string]map[string]struct{} // connID -> rooms
	byRoom map[string]map[string]struct{} // room -> connIDs
}

// NewRooms returns an empty room index.
func NewRooms() *Rooms {
	return &Rooms{
		byConn: make(map[string]map[string]struct{}),
		byRoom: make(map[string]map[string]struct{}),
	}
}

// Join adds connID to room. Callers check membership first.
func (r *Rooms) Join(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	add(r.byConn, connID, room)
	add(r.byRoom, room, connID)
}

// Leave removes connID from room. Leaving a room never joined is a no-op.
func (r *Rooms) Leave(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	remove(r.byConn, connID, room)
	remove(r.byRoom, room, connID)
}

// DropConnection removes connID from every room and returns the rooms it was in.
func (r *Rooms) DropConnection(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := keys(r.byConn[connID])
	for _, room := range rooms {
		remove(r.byRoom, room, connID)
	}
	delete(r.byConn, connID)
	return rooms
}

// Members returns the connections currently in room.
func (r *Rooms) Members(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return keys(r.byRoom[room])
}

// RoomsOf returns the rooms connID has joined.
func (r *Rooms) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return keys(r.byConn[connID])
}

func add(m map[string]map[string]struct{}, k, v string) {
	set, ok := m[k]
	if !ok {
		set = make(map[string]struct{})
		m[k] = set
	}
	set[v] = struct{}{}
}

func remove(m map[string]map[string]struct{}, k, v string) {
	set, ok := m[k]
	if !ok {
		return
	}
	delete(set, v)
	if len(set) == 0 {
		delete(m, k)
	}
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
