package database

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/nfrund/relay/internal/config"
	"github.com/nfrund/relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealdb.go"
)

func TestMain(m *testing.M) {
	if err := godotenv.Load("../../.env.test"); err != nil {
		log.Println("Warning: .env.test file not found, relying on environment variables.")
	}
	os.Exit(m.Run())
}

// setupIntegration connects to the database named by the environment, or
// skips the test when there is none.
func setupIntegration(t *testing.T) (*Connection, config.Provider) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	cfg := config.FromEnv()
	if cfg.Validate() != nil {
		t.Skip("SURREAL_URL, SURREAL_NS and SURREAL_DB not set")
	}

	conn := NewConnection(cfg)
	require.NoError(t, conn.Connect(context.Background()), "failed to connect to test database")
	t.Cleanup(func() { _ = conn.Close(context.Background()) })
	return conn, cfg
}

func TestIntegration_ConversationAndMessageFlow(t *testing.T) {
	conn, cfg := setupIntegration(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	convs, err := NewConversationStore(conn, cfg)
	require.NoError(t, err)
	msgs, err := NewMessageStore(conn, cfg)
	require.NoError(t, err)

	conv, err := convs.CreateConversation(ctx, &domain.Conversation{Participants: []string{"alice", "bob"}})
	require.NoError(t, err)
	t.Cleanup(func() {
		bg := context.Background()
		_ = conn.WithConnection(bg, func(db *surrealdb.DB) error {
			return Execute(bg, db, "DELETE message WHERE conversation = $c; DELETE $id", map[string]any{
				"c":  conv.ID,
				"id": recordID(conversationTable, conv.ID),
			})
		})
	})

	found, err := convs.FindConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, found.Participants)

	var created []string
	for _, text := range []string{"one", "two"} {
		m, err := msgs.CreateMessage(ctx, &domain.Message{
			ID:             domain.NewID(),
			ConversationID: conv.ID,
			SenderID:       "alice",
			Text:           text,
			CreatedAt:      time.Now(),
		})
		require.NoError(t, err)
		created = append(created, m.ID)
	}
	require.NoError(t, convs.SetLastMessage(ctx, conv.ID, created[1]))

	seen, err := msgs.MarkSeen(ctx, conv.ID, "bob")
	require.NoError(t, err)
	assert.ElementsMatch(t, created, seen)

	seen, err = msgs.MarkSeen(ctx, conv.ID, "bob")
	require.NoError(t, err)
	assert.Empty(t, seen)

	seen, err = msgs.MarkSeen(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.Empty(t, seen, "senders never mark their own messages")

	edited, err := msgs.UpdateMessageText(ctx, created[0], "uno", time.Now())
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)
	assert.Equal(t, []string{"bob"}, edited.SeenBy)

	require.NoError(t, msgs.DeleteMessage(ctx, created[0]))
	_, err = msgs.FindMessage(ctx, created[0])
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestIntegration_UserStore(t *testing.T) {
	conn, cfg := setupIntegration(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	users, err := NewUserStore(conn, cfg)
	require.NoError(t, err)

	u, err := users.CreateUser(ctx, &domain.User{Name: "Integration", Email: "integration@example.com"})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.WithConnection(context.Background(), func(db *surrealdb.DB) error {
			return Execute(context.Background(), db, "DELETE $id", map[string]any{"id": recordID(userTable, u.ID)})
		})
	})

	got, err := users.FindUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Integration", got.Name)

	_, err = users.FindUser(ctx, domain.NewID())
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = users.VerifyToken(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)
}
