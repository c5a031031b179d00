package presence

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBroadcaster records every announcement.
type mockBroadcaster struct {
	mu     sync.Mutex
	events []announcement
}

type announcement struct {
	event   string
	payload any
}

func (m *mockBroadcaster) BroadcastAll(ctx context.Context, event string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, announcement{event: event, payload: payload})
}

func (m *mockBroadcaster) getEvents() []announcement {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]announcement, len(m.events))
	copy(result, m.events)
	return result
}

func TestRegistry_OnlineIffHasConnections(t *testing.T) {
	r := NewMemoryRegistry()

	assert.True(t, r.Register("u1", "c1"))
	assert.False(t, r.Register("u1", "c2"))
	assert.Equal(t, []string{"u1"}, r.OnlineUserIDs())
	assert.Equal(t, []string{"c1", "c2"}, r.ConnectionsOf("u1"))

	assert.False(t, r.Unregister("u1", "c1"))
	assert.Equal(t, []string{"u1"}, r.OnlineUserIDs())

	assert.True(t, r.Unregister("u1", "c2"))
	assert.Empty(t, r.OnlineUserIDs())
	assert.NotNil(t, r.ConnectionsOf("u1"))
	assert.Empty(t, r.ConnectionsOf("u1"))
}

func TestRegistry_UnregisterUnknownIsNoop(t *testing.T) {
	r := NewMemoryRegistry()
	assert.False(t, r.Unregister("ghost", "c1"))

	r.Register("u1", "c1")
	assert.False(t, r.Unregister("u1", "other"))
	assert.Equal(t, []string{"c1"}, r.ConnectionsOf("u1"))
}

func TestRegistry_AllConnectionsAndPresences(t *testing.T) {
	r := NewMemoryRegistry()
	r.Register("u1", "c1")
	r.Register("u1", "c2")
	r.Register("u2", "c3")

	assert.ElementsMatch(t, []string{"c1", "c2", "c3"}, r.AllConnections())

	p := r.Presences("u1")
	require.Len(t, p, 2)
	for _, pr := range p {
		assert.Equal(t, "u1", pr.UserID)
		assert.False(t, pr.ConnectedAt.IsZero())
	}
	assert.Empty(t, r.Presences("u3"))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewMemoryRegistry()

	const numGoroutines = 8
	const numOperations = 50

	var wg sync.WaitGroup
	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			userID := fmt.Sprintf("user%d", g%3)
			for i := 0; i < numOperations; i++ {
				connID := fmt.Sprintf("conn-%d-%d", g, i)
				r.Register(userID, connID)
				_ = r.OnlineUserIDs()
				r.Unregister(userID, connID)
			}
		}(g)
	}
	wg.Wait()

	assert.Empty(t, r.OnlineUserIDs())
	assert.Empty(t, r.AllConnections())
}

func TestService_AnnouncesFullListOnEveryChange(t *testing.T) {
	b := &mockBroadcaster{}
	var observed []int
	svc := NewService(NewMemoryRegistry(), b, WithObserver(func(users, conns int) {
		observed = append(observed, conns)
	}))
	ctx := context.Background()

	svc.Connect(ctx, "alice", "a1")
	svc.Connect(ctx, "bob", "b1")
	svc.Connect(ctx, "alice", "a2")
	svc.Disconnect(ctx, "alice", "a1")
	svc.Disconnect(ctx, "alice", "a2")

	events := b.getEvents()
	require.Len(t, events, 5)
	for _, e := range events {
		assert.Equal(t, EventOnlineUsers, e.event)
	}
	assert.Equal(t, []string{"alice"}, events[0].payload)
	assert.Equal(t, []string{"alice", "bob"}, events[1].payload)
	assert.Equal(t, []string{"alice", "bob"}, events[3].payload)
	assert.Equal(t, []string{"bob"}, events[4].payload)
	assert.Equal(t, []int{1, 2, 3, 2, 1}, observed)

	assert.Equal(t, []string{"bob"}, svc.GetOnlineUsers())
	_, online := svc.GetPresence("alice")
	assert.False(t, online)
}
