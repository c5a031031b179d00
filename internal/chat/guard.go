package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/nfrund/relay/internal/domain"
)

// Guard checks conversation membership. It reads the conversation on every
// call so membership changes take effect on the next event.
type Guard struct {
	conversations domain.ConversationRepository
}

// NewGuard creates a Guard over the conversation store.
func NewGuard(conversations domain.ConversationRepository) *Guard {
	return &Guard{conversations: conversations}
}

// Verify returns the conversation if userID participates in it.
func (g *Guard) Verify(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := g.conversations.FindConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	if conv == nil {
		return nil, domain.ErrConversationNotFound
	}
	if !conv.HasParticipant(userID) {
		return nil, domain.ErrNotAParticipant
	}
	return conv, nil
}
