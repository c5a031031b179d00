package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nfrund/relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

func ptrID(table, id string) *surrealmodels.RecordID {
	rid := recordID(table, id)
	return &rid
}

func TestConversationStore(t *testing.T) {
	ex := &fakeExecutor[conversationRecord]{}
	store := &ConversationStore{client: newFakeClient(t, ex)}
	ctx := context.Background()

	_, err := store.FindConversation(ctx, "c1")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
	assert.ErrorIs(t, store.SetLastMessage(ctx, "c1", "m1"), domain.ErrConversationNotFound)

	ex.rows = []conversationRecord{{ID: ptrID(conversationTable, "c1"), Participants: []string{"alice", "bob"}, Admin: "alice"}}
	conv, err := store.FindConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, &domain.Conversation{ID: "c1", Participants: []string{"alice", "bob"}, AdminID: "alice"}, conv)

	require.NoError(t, store.SetLastMessage(ctx, "c1", "m1"))
	last := ex.last(t)
	assert.Equal(t, map[string]any{"last_message": "m1"}, last.params["data"])
	assert.Equal(t, recordID(conversationTable, "c1"), last.params["id"])

	_, err = store.CreateConversation(ctx, &domain.Conversation{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	ex.err = errors.New("connection refused")
	_, err = store.FindConversation(ctx, "c1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestMessageStore_RoundTrip(t *testing.T) {
	ex := &fakeExecutor[messageRecord]{}
	store := &MessageStore{client: newFakeClient(t, ex)}
	ctx := context.Background()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	msg := &domain.Message{ID: "m1", ConversationID: "c1", SenderID: "alice", Text: "hi", CreatedAt: created}
	ex.rows = []messageRecord{{
		ID:           ptrID(messageTable, "m1"),
		Conversation: "c1",
		Sender:       "alice",
		Text:         "hi",
		CreatedAt:    dateTime(created),
		Reactions:    []reactionRecord{{User: "bob", Emoji: "👍"}},
	}}

	got, err := store.CreateMessage(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, []domain.Reaction{{UserID: "bob", Emoji: "👍"}}, got.Reactions)
	assert.Equal(t, []string{}, got.SeenBy)

	data := ex.last(t).params["data"].(map[string]any)
	assert.Equal(t, "c1", data["conversation"])
	assert.Equal(t, []string{}, data["seen_by"])
	assert.Equal(t, []reactionRecord{}, data["reactions"])

	_, err = store.CreateMessage(ctx, &domain.Message{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMessageStore_UpdatesAndNotFound(t *testing.T) {
	ex := &fakeExecutor[messageRecord]{}
	store := &MessageStore{client: newFakeClient(t, ex)}
	ctx := context.Background()

	_, err := store.FindMessage(ctx, "m1")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	_, err = store.UpdateMessageText(ctx, "m1", "x", time.Now())
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	_, err = store.UpdateReactions(ctx, "m1", nil)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	assert.ErrorIs(t, store.DeleteMessage(ctx, "m1"), domain.ErrMessageNotFound)

	edited := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	ex.rows = []messageRecord{{ID: ptrID(messageTable, "m1"), Text: "new", IsEdited: true, EditedAt: dateTime(edited)}}
	got, err := store.UpdateMessageText(ctx, "m1", "new", edited)
	require.NoError(t, err)
	assert.True(t, got.IsEdited)
	require.NotNil(t, got.EditedAt)
	assert.Equal(t, edited, *got.EditedAt)

	_, err = store.UpdateReactions(ctx, "m1", []domain.Reaction{{UserID: "bob", Emoji: "🎉"}})
	require.NoError(t, err)
	data := ex.last(t).params["data"].(map[string]any)
	assert.Equal(t, []reactionRecord{{User: "bob", Emoji: "🎉"}}, data["reactions"])
}

func TestMessageStore_MarkSeen(t *testing.T) {
	ex := &fakeExecutor[messageRecord]{}
	store := &MessageStore{client: newFakeClient(t, ex)}
	ctx := context.Background()

	ids, err := store.MarkSeen(ctx, "c1", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{}, ids)

	ex.rows = []messageRecord{{ID: ptrID(messageTable, "m2")}, {ID: ptrID(messageTable, "m1")}}
	ids, err = store.MarkSeen(ctx, "c1", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, ids)

	last := ex.last(t)
	assert.Equal(t, markSeenQuery, last.query)
	assert.Equal(t, map[string]any{"conversation": "c1", "user": "bob"}, last.params)
}

func TestUserStore_FindUser(t *testing.T) {
	ex := &fakeExecutor[userRecord]{}
	store := &UserStore{client: newFakeClient(t, ex), cfg: testConfig()}
	ctx := context.Background()

	_, err := store.FindUser(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	ex.rows = []userRecord{{ID: ptrID(userTable, "alice"), Name: "Alice", AvatarURL: "https://cdn/a.png"}}
	u, err := store.FindUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, &domain.User{ID: "alice", Name: "Alice", AvatarURL: "https://cdn/a.png"}, u)
}

func TestUserStore_VerifyTokenRejectsEmptyWithoutDialing(t *testing.T) {
	store := &UserStore{cfg: testConfig(), dial: nil}
	_, err := store.VerifyToken(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrAuthMissing)
}

func TestRecordKey(t *testing.T) {
	assert.Equal(t, "", recordKey(nil))
	assert.Equal(t, "abc", recordKey(ptrID("user", "abc")))
	num := surrealmodels.NewRecordID("user", 42)
	assert.Equal(t, "42", recordKey(&num))
}
