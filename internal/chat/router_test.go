package chat

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nfrund/relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTyping_GoesToOtherParticipantsOnly(t *testing.T) {
	f := newTwoParty(t)
	ctx := context.Background()

	require.NoError(t, f.typing.Started(ctx, f.alice1, f.convID))

	assert.Zero(t, f.sender.count("a1", EventUserTyping))
	assert.Zero(t, f.sender.count("a2", EventUserTyping))
	var got TypingPayload
	f.sender.last(t, "b1", EventUserTyping, &got)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, f.convID, got.ConversationID)
	require.NotNil(t, got.UserInfo)
	assert.Equal(t, "User alice", got.UserInfo.Name)

	require.NoError(t, f.typing.Stopped(ctx, f.alice1, f.convID))
	var stopped TypingPayload
	f.sender.last(t, "b1", EventUserStoppedTyping, &stopped)
	assert.Equal(t, TypingPayload{UserID: "alice", ConversationID: f.convID}, stopped)
}

func TestRouter_JoinAcceptsBareStringAndObject(t *testing.T) {
	f := newTwoParty(t)
	ctx := context.Background()

	f.router.Handle(ctx, f.alice2, EventJoinConversation, raw(t, f.convID))
	assert.Contains(t, f.rooms.Members(f.convID), "a2")

	f.router.Handle(ctx, f.alice2, EventLeaveConversation, raw(t, map[string]string{"conversationId": f.convID}))
	assert.NotContains(t, f.rooms.Members(f.convID), "a2")
	assert.Zero(t, f.sender.total())
}

func TestRouter_JoinByNonParticipantReportsToOriginOnly(t *testing.T) {
	f := newTwoParty(t)
	mallory := f.connect("mallory", "m1")

	f.router.Handle(context.Background(), mallory, EventJoinConversation, raw(t, f.convID))

	assert.NotContains(t, f.rooms.Members(f.convID), "m1")
	var got ErrorPayload
	f.sender.last(t, "m1", EventMessageError, &got)
	assert.Equal(t, domain.CodeNotAParticipant, got.Code)
	assert.Equal(t, domain.ErrNotAParticipant.Error(), got.Error)
	assert.Equal(t, 1, f.sender.total())
}

func TestRouter_SendScenario(t *testing.T) {
	f := newTwoParty(t)

	f.router.Handle(context.Background(), f.alice1, EventSendMessage,
		raw(t, SendMessagePayload{ConversationID: f.convID, Text: "hi"}))

	assert.Equal(t, []string{EventNewMessage}, f.sender.events("a1"))
	assert.Equal(t, []string{EventNewMessage}, f.sender.events("a2"))
	assert.Equal(t, []string{EventNewMessage}, f.sender.events("b1"))
	assert.Equal(t, 1, f.msgs.count())
}

func TestRouter_TypingErrorsAreSilent(t *testing.T) {
	f := newTwoParty(t)
	mallory := f.connect("mallory", "m1")

	f.router.Handle(context.Background(), mallory, EventTypingStarted, raw(t, f.convID))
	f.router.Handle(context.Background(), f.alice1, EventTypingStopped, raw(t, "not-an-id"))

	assert.Zero(t, f.sender.total())
}

func TestRouter_MalformedAndUnknownEvents(t *testing.T) {
	f := newTwoParty(t)
	ctx := context.Background()

	f.router.Handle(ctx, f.alice1, "launch-rockets", raw(t, map[string]string{}))
	f.router.Handle(ctx, f.alice1, EventSendMessage, json.RawMessage(`{"text":`))
	f.router.Handle(ctx, f.alice1, EventMessageEdited, nil)

	assert.Equal(t, 3, f.sender.count("a1", EventMessageError))
	var got ErrorPayload
	f.sender.last(t, "a1", EventMessageError, &got)
	assert.Equal(t, domain.CodeInvalidPayload, got.Code)
	assert.Zero(t, f.sender.count("b1", EventMessageError))
}

func TestRouter_InternalErrorsAreGeneric(t *testing.T) {
	f := newTwoParty(t)
	f.convs.err = errStoreDown

	f.router.Handle(context.Background(), f.alice1, EventMarkMessagesSeen, raw(t, map[string]string{"conversationId": f.convID}))

	var got ErrorPayload
	f.sender.last(t, "a1", EventMessageError, &got)
	assert.Equal(t, domain.CodeInternal, got.Code)
	assert.Equal(t, "internal server error", got.Error)
}

func TestRouter_RecoversFromHandlerPanic(t *testing.T) {
	f := newTwoParty(t)
	f.router.routes["explode"] = route{handle: func(ctx context.Context, sess Session, data json.RawMessage) error {
		panic("kaboom")
	}}

	require.NotPanics(t, func() {
		f.router.Handle(context.Background(), f.alice1, "explode", nil)
	})
	var got ErrorPayload
	f.sender.last(t, "a1", EventMessageError, &got)
	assert.Equal(t, domain.CodeInternal, got.Code)
}

func TestRouter_DeleteAndReactRoutes(t *testing.T) {
	f := newTwoParty(t)
	ctx := context.Background()
	msg := f.seedMessage(f.convID, "alice")

	f.router.Handle(ctx, f.bob1, EventMessageReaction, raw(t, ReactionPayload{MessageID: msg.ID, Emoji: "❤️"}))
	assert.Equal(t, 1, f.sender.count("a1", EventMessageUpdated))

	f.router.Handle(ctx, f.bob1, EventMessageDeleted, raw(t, DeleteMessagePayload{MessageID: msg.ID, DeleteType: DeleteForEveryone}))
	var got ErrorPayload
	f.sender.last(t, "b1", EventMessageError, &got)
	assert.Equal(t, domain.CodeNotSender, got.Code)

	f.router.Handle(ctx, f.alice1, EventMessageDeleted, raw(t, DeleteMessagePayload{MessageID: msg.ID, DeleteType: DeleteForEveryone}))
	assert.Equal(t, 1, f.sender.count("b1", EventMessageRemoved))
}
