package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nfrund/relay/internal/domain"
)

// MessageHandler implements the message lifecycle: send, pre-created
// broadcast, edit, delete, react and mark-seen. Every operation re-checks
// membership before touching persisted state.
type MessageHandler struct {
	guard         *Guard
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	users         domain.UserRepository
	dispatcher    *Dispatcher
	logger        *slog.Logger
	now           func() time.Time
}

// NewMessageHandler wires the message lifecycle to its stores and dispatcher.
func NewMessageHandler(
	guard *Guard,
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	users domain.UserRepository,
	dispatcher *Dispatcher,
	logger *slog.Logger,
) *MessageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageHandler{
		guard:         guard,
		conversations: conversations,
		messages:      messages,
		users:         users,
		dispatcher:    dispatcher,
		logger:        logger.With("service", "messages"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Send persists a new message and delivers it to the conversation room and
// to every participant connection, which covers the sender's other devices.
func (h *MessageHandler) Send(ctx context.Context, sess Session, p SendMessagePayload) (*domain.Message, error) {
	if err := domain.Validate(p); err != nil {
		return nil, err
	}
	conv, err := h.guard.Verify(ctx, p.ConversationID, sess.UserID())
	if err != nil {
		return nil, err
	}

	created, err := h.messages.CreateMessage(ctx, &domain.Message{
		ID:             domain.NewID(),
		ConversationID: conv.ID,
		SenderID:       sess.UserID(),
		Text:           strings.TrimSpace(p.Text),
		CreatedAt:      h.now(),
		Reactions:      []domain.Reaction{},
		SeenBy:         []string{},
	})
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	if err := h.conversations.SetLastMessage(ctx, conv.ID, created.ID); err != nil {
		h.logger.WarnContext(ctx, "Failed to update last message", "conversationID", conv.ID, "messageID", created.ID, "error", err)
	}

	created.Sender = &sess.User
	audience := Audience{}.Room(conv.ID).Participants(conv)
	targets := h.dispatcher.Emit(ctx, audience, EventNewMessage, MessagePayload{Message: created, ConversationID: conv.ID})

	h.logger.InfoContext(ctx, "Message sent", "messageID", created.ID, "conversationID", conv.ID, "userID", sess.UserID(), "targets", len(targets))
	return created, nil
}

// BroadcastPrecreated relays a message persisted elsewhere to the room,
// skipping the originating connection. Nothing is stored.
func (h *MessageHandler) BroadcastPrecreated(ctx context.Context, sess Session, p BroadcastMessagePayload) error {
	if string(p.Message) == "null" {
		return fmt.Errorf("%w: message is required", domain.ErrInvalidPayload)
	}
	if err := domain.Validate(p); err != nil {
		return err
	}
	if _, err := h.guard.Verify(ctx, p.ConversationID, sess.UserID()); err != nil {
		return err
	}

	targets := h.dispatcher.BroadcastToRoom(ctx, p.ConversationID, EventNewMessage,
		MessagePayload{Message: p.Message, ConversationID: p.ConversationID}, sess.ConnID)

	h.logger.InfoContext(ctx, "Message broadcast", "conversationID", p.ConversationID, "userID", sess.UserID(), "targets", len(targets))
	return nil
}

// Edit replaces the text of a message the requester authored.
func (h *MessageHandler) Edit(ctx context.Context, sess Session, p EditMessagePayload) (*domain.Message, error) {
	if err := domain.Validate(p); err != nil {
		return nil, err
	}
	msg, conv, err := h.loadMessage(ctx, sess, p.MessageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != sess.UserID() {
		return nil, domain.ErrNotSender
	}

	updated, err := h.messages.UpdateMessageText(ctx, msg.ID, strings.TrimSpace(p.NewText), h.now())
	if err != nil {
		return nil, fmt.Errorf("update message %s: %w", msg.ID, err)
	}
	updated.Sender = &sess.User

	h.dispatcher.DeliverToParticipants(ctx, conv, EventMessageUpdated, MessagePayload{Message: updated, ConversationID: conv.ID})
	h.logger.InfoContext(ctx, "Message edited", "messageID", msg.ID, "conversationID", conv.ID, "userID", sess.UserID())
	return updated, nil
}

// Delete removes a message for everyone when requested by its sender.
// Other delete types have no server-side effect.
func (h *MessageHandler) Delete(ctx context.Context, sess Session, p DeleteMessagePayload) error {
	if err := domain.Validate(p); err != nil {
		return err
	}
	msg, conv, err := h.loadMessage(ctx, sess, p.MessageID)
	if err != nil {
		return err
	}

	if p.DeleteType != DeleteForEveryone && p.DeleteType != DeleteForEveryoneAlias {
		h.logger.DebugContext(ctx, "Ignoring local delete", "messageID", msg.ID, "deleteType", p.DeleteType)
		return nil
	}
	if msg.SenderID != sess.UserID() {
		return domain.ErrNotSender
	}

	if err := h.messages.DeleteMessage(ctx, msg.ID); err != nil {
		return fmt.Errorf("delete message %s: %w", msg.ID, err)
	}

	h.dispatcher.DeliverToParticipants(ctx, conv, EventMessageRemoved, MessageRemovedPayload{MessageID: msg.ID, ConversationID: conv.ID})
	h.logger.InfoContext(ctx, "Message deleted", "messageID", msg.ID, "conversationID", conv.ID, "userID", sess.UserID())
	return nil
}

// React toggles the requester's emoji on a message.
func (h *MessageHandler) React(ctx context.Context, sess Session, p ReactionPayload) (*domain.Message, error) {
	if err := domain.Validate(p); err != nil {
		return nil, err
	}
	msg, conv, err := h.loadMessage(ctx, sess, p.MessageID)
	if err != nil {
		return nil, err
	}

	added := msg.ToggleReaction(sess.UserID(), p.Emoji)
	updated, err := h.messages.UpdateReactions(ctx, msg.ID, msg.Reactions)
	if err != nil {
		return nil, fmt.Errorf("update reactions on %s: %w", msg.ID, err)
	}
	updated.Sender = h.senderOf(ctx, updated.SenderID)

	h.dispatcher.DeliverToParticipants(ctx, conv, EventMessageUpdated, MessagePayload{Message: updated, ConversationID: conv.ID})
	h.logger.InfoContext(ctx, "Reaction toggled", "messageID", msg.ID, "emoji", p.Emoji, "added", added, "userID", sess.UserID())
	return updated, nil
}

// MarkSeen records that the requester has seen every message in the
// conversation they did not send. Participants are notified only when
// something changed.
func (h *MessageHandler) MarkSeen(ctx context.Context, sess Session, conversationID string) ([]string, error) {
	if err := domain.Validate(ConversationRef{ConversationID: conversationID}); err != nil {
		return nil, err
	}
	conv, err := h.guard.Verify(ctx, conversationID, sess.UserID())
	if err != nil {
		return nil, err
	}

	ids, err := h.messages.MarkSeen(ctx, conv.ID, sess.UserID())
	if err != nil {
		return nil, fmt.Errorf("mark seen in %s: %w", conv.ID, err)
	}
	if len(ids) == 0 {
		return ids, nil
	}

	h.dispatcher.DeliverToParticipants(ctx, conv, EventMessagesSeen, MessagesSeenPayload{
		ConversationID: conv.ID,
		SeenBy:         sess.UserID(),
		MessageIDs:     ids,
	})
	h.logger.InfoContext(ctx, "Messages marked seen", "conversationID", conv.ID, "userID", sess.UserID(), "count", len(ids))
	return ids, nil
}

// loadMessage fetches a message and checks the requester belongs to its conversation.
func (h *MessageHandler) loadMessage(ctx context.Context, sess Session, messageID string) (*domain.Message, *domain.Conversation, error) {
	msg, err := h.messages.FindMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("load message %s: %w", messageID, err)
	}
	if msg == nil {
		return nil, nil, domain.ErrMessageNotFound
	}
	conv, err := h.guard.Verify(ctx, msg.ConversationID, sess.UserID())
	if err != nil {
		return nil, nil, err
	}
	return msg, conv, nil
}

// senderOf hydrates a sender profile, falling back to the bare id.
func (h *MessageHandler) senderOf(ctx context.Context, userID string) *domain.User {
	if h.users != nil {
		if u, err := h.users.FindUser(ctx, userID); err == nil && u != nil {
			return u
		} else if err != nil {
			h.logger.DebugContext(ctx, "Sender lookup failed", "userID", userID, "error", err)
		}
	}
	return &domain.User{ID: userID}
}
