package chat

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/logging"
	"github.com/nfrund/relay/internal/presence"
	"github.com/stretchr/testify/require"
)

// memConversations is an in-memory domain.ConversationRepository.
type memConversations struct {
	mu    sync.Mutex
	convs map[string]*domain.Conversation
	finds int
	err   error
}

func newMemConversations(convs ...*domain.Conversation) *memConversations {
	m := &memConversations{convs: make(map[string]*domain.Conversation)}
	for _, c := range convs {
		m.convs[c.ID] = c
	}
	return m
}

func (m *memConversations) FindConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finds++
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.convs[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	cp := *c
	cp.Participants = slices.Clone(c.Participants)
	return &cp, nil
}

func (m *memConversations) SetLastMessage(ctx context.Context, conversationID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[conversationID]
	if !ok {
		return domain.ErrConversationNotFound
	}
	c.LastMessageID = messageID
	return nil
}

func (m *memConversations) setParticipants(id string, participants ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs[id].Participants = participants
}

func (m *memConversations) get(id string) domain.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.convs[id]
}

// memMessages is an in-memory domain.MessageRepository.
type memMessages struct {
	mu   sync.Mutex
	msgs map[string]*domain.Message
	err  error
}

func newMemMessages() *memMessages {
	return &memMessages{msgs: make(map[string]*domain.Message)}
}

func cloneMessage(m *domain.Message) *domain.Message {
	cp := *m
	cp.Reactions = slices.Clone(m.Reactions)
	cp.SeenBy = slices.Clone(m.SeenBy)
	return &cp
}

func (m *memMessages) CreateMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.msgs[msg.ID] = cloneMessage(msg)
	return cloneMessage(msg), nil
}

func (m *memMessages) FindMessage(ctx context.Context, id string) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return cloneMessage(msg), nil
}

func (m *memMessages) UpdateMessageText(ctx context.Context, id, text string, editedAt time.Time) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	msg.Text = text
	msg.IsEdited = true
	msg.EditedAt = &editedAt
	return cloneMessage(msg), nil
}

func (m *memMessages) UpdateReactions(ctx context.Context, id string, reactions []domain.Reaction) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	msg.Reactions = slices.Clone(reactions)
	return cloneMessage(msg), nil
}

func (m *memMessages) DeleteMessage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.msgs[id]; !ok {
		return domain.ErrMessageNotFound
	}
	delete(m.msgs, id)
	return nil
}

func (m *memMessages) MarkSeen(ctx context.Context, conversationID, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, msg := range m.msgs {
		if msg.ConversationID != conversationID || msg.SenderID == userID || msg.SeenByUser(userID) {
			continue
		}
		msg.SeenBy = append(msg.SeenBy, userID)
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *memMessages) put(msg *domain.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs[msg.ID] = cloneMessage(msg)
}

func (m *memMessages) get(id string) (*domain.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[id]
	if !ok {
		return nil, false
	}
	return cloneMessage(msg), true
}

func (m *memMessages) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}

// memUsers is an in-memory domain.UserRepository.
type memUsers map[string]*domain.User

func (m memUsers) FindUser(ctx context.Context, id string) (*domain.User, error) {
	if u, ok := m[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrUserNotFound
}

// recordingSender captures every frame per connection.
type recordingSender struct {
	mu     sync.Mutex
	frames map[string][]Frame
	raw    map[string][]json.RawMessage
	calls  int
	err    error
}

func newRecordingSender() *recordingSender {
	return &recordingSender{frames: make(map[string][]Frame), raw: make(map[string][]json.RawMessage)}
}

func (s *recordingSender) Send(ctx context.Context, connIDs []string, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		return err
	}
	for _, id := range connIDs {
		s.frames[id] = append(s.frames[id], Frame{Event: env.Event, Data: env.Data})
		s.raw[id] = append(s.raw[id], env.Data)
	}
	return nil
}

// events returns the event names delivered to connID in order.
func (s *recordingSender) events(connID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, f := range s.frames[connID] {
		out = append(out, f.Event)
	}
	return out
}

// last decodes the data of the last frame with the given event for connID.
func (s *recordingSender) last(t *testing.T, connID, event string, v any) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.frames[connID]) - 1; i >= 0; i-- {
		if s.frames[connID][i].Event == event {
			require.NoError(t, json.Unmarshal(s.raw[connID][i], v))
			return
		}
	}
	t.Fatalf("no %s frame for %s (got %v)", event, connID, s.frames[connID])
}

func (s *recordingSender) count(connID, event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.frames[connID] {
		if f.Event == event {
			n++
		}
	}
	return n
}

func (s *recordingSender) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, fs := range s.frames {
		n += len(fs)
	}
	return n
}

func (s *recordingSender) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = make(map[string][]Frame)
	s.raw = make(map[string][]json.RawMessage)
	s.calls = 0
}

var errStoreDown = errors.New("connection refused")

// fixture wires every chat component over in-memory fakes.
type fixture struct {
	convs      *memConversations
	msgs       *memMessages
	users      memUsers
	registry   *presence.MemoryRegistry
	rooms      *Rooms
	sender     *recordingSender
	dispatcher *Dispatcher
	guard      *Guard
	messages   *MessageHandler
	typing     *TypingHandler
	roomsH     *RoomHandler
	router     *Router
}

func newFixture(t *testing.T, convs ...*domain.Conversation) *fixture {
	t.Helper()
	logger := logging.Discard()
	f := &fixture{
		convs:    newMemConversations(convs...),
		msgs:     newMemMessages(),
		users:    memUsers{},
		registry: presence.NewMemoryRegistry(),
		rooms:    NewRooms(),
		sender:   newRecordingSender(),
	}
	f.dispatcher = NewDispatcher(f.registry, f.rooms, f.sender, WithDispatcherLogger(logger))
	f.guard = NewGuard(f.convs)
	f.messages = NewMessageHandler(f.guard, f.convs, f.msgs, f.users, f.dispatcher, logger)
	f.typing = NewTypingHandler(f.guard, f.dispatcher, logger)
	f.roomsH = NewRoomHandler(f.guard, f.rooms, logger)
	f.router = NewRouter(f.messages, f.typing, f.roomsH, f.dispatcher, logger, nil)
	return f
}

// connect registers a connection for a user and returns its session.
func (f *fixture) connect(userID, connID string) Session {
	f.registry.Register(userID, connID)
	u := domain.User{ID: userID, Name: "User " + userID}
	f.users[userID] = &u
	return Session{ConnID: connID, User: u}
}

func (f *fixture) seedMessage(convID, senderID string) *domain.Message {
	msg := &domain.Message{
		ID:             domain.NewID(),
		ConversationID: convID,
		SenderID:       senderID,
		Text:           "seed",
		CreatedAt:      time.Now().UTC(),
		Reactions:      []domain.Reaction{},
		SeenBy:         []string{},
	}
	f.msgs.put(msg)
	return msg
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
