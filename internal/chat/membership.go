package chat

import (
	"context"
	"log/slog"

	"github.com/nfrund/relay/internal/domain"
)

// RoomHandler joins and leaves conversation rooms.
type RoomHandler struct {
	guard  *Guard
	rooms  *Rooms
	logger *slog.Logger
}

// NewRoomHandler creates a RoomHandler over rooms.
func NewRoomHandler(guard *Guard, rooms *Rooms, logger *slog.Logger) *RoomHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomHandler{guard: guard, rooms: rooms, logger: logger.With("service", "rooms")}
}

// Join adds the connection to the conversation room after a membership check.
func (h *RoomHandler) Join(ctx context.Context, sess Session, conversationID string) error {
	if err := domain.Validate(ConversationRef{ConversationID: conversationID}); err != nil {
		return err
	}
	if _, err := h.guard.Verify(ctx, conversationID, sess.UserID()); err != nil {
		return err
	}
	h.rooms.Join(sess.ConnID, conversationID)
	h.logger.InfoContext(ctx, "Joined conversation", "conversationID", conversationID, "userID", sess.UserID(), "connID", sess.ConnID)
	return nil
}

// Leave removes the connection from the room. It is never checked.
func (h *RoomHandler) Leave(ctx context.Context, sess Session, conversationID string) {
	h.rooms.Leave(sess.ConnID, conversationID)
	h.logger.DebugContext(ctx, "Left conversation", "conversationID", conversationID, "connID", sess.ConnID)
}

// Drop removes a closed connection from every room.
func (h *RoomHandler) Drop(connID string) []string {
	return h.rooms.DropConnection(connID)
}
