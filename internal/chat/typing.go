package chat

import (
	"context"
	"log/slog"

	"github.com/nfrund/relay/internal/domain"
)

// TypingHandler relays typing indicators to the other participants.
// It keeps no state.
type TypingHandler struct {
	guard      *Guard
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewTypingHandler creates a TypingHandler that checks membership with guard.
func NewTypingHandler(guard *Guard, dispatcher *Dispatcher, logger *slog.Logger) *TypingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TypingHandler{guard: guard, dispatcher: dispatcher, logger: logger.With("service", "typing")}
}

// Started tells the other participants the requester is typing.
func (h *TypingHandler) Started(ctx context.Context, sess Session, conversationID string) error {
	conv, err := h.verify(ctx, sess, conversationID)
	if err != nil {
		return err
	}
	info := sess.User
	h.dispatcher.DeliverToParticipants(ctx, conv, EventUserTyping, TypingPayload{
		UserID:         sess.UserID(),
		ConversationID: conv.ID,
		UserInfo:       &info,
	}, sess.UserID())
	return nil
}

// Stopped tells the other participants the requester stopped typing.
func (h *TypingHandler) Stopped(ctx context.Context, sess Session, conversationID string) error {
	conv, err := h.verify(ctx, sess, conversationID)
	if err != nil {
		return err
	}
	h.dispatcher.DeliverToParticipants(ctx, conv, EventUserStoppedTyping, TypingPayload{
		UserID:         sess.UserID(),
		ConversationID: conv.ID,
	}, sess.UserID())
	return nil
}

func (h *TypingHandler) verify(ctx context.Context, sess Session, conversationID string) (*domain.Conversation, error) {
	if err := domain.Validate(ConversationRef{ConversationID: conversationID}); err != nil {
		return nil, err
	}
	return h.guard.Verify(ctx, conversationID, sess.UserID())
}
