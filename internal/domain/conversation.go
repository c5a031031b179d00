package domain

import (
	"context"
	"slices"
)

// Conversation is a chat thread between two or more participants.
type Conversation struct {
	ID            string   `json:"id"`
	Participants  []string `json:"participants"`
	IsGroup       bool     `json:"isGroup,omitempty"`
	Name          string   `json:"name,omitempty"`
	AvatarURL     string   `json:"avatarUrl,omitempty"`
	AdminID       string   `json:"adminId,omitempty"`
	LastMessageID string   `json:"lastMessageId,omitempty"`
}

// HasParticipant reports whether userID is a member of the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	return c != nil && slices.Contains(c.Participants, userID)
}

// ConversationRepository is the conversation lookup the realtime core depends on.
type ConversationRepository interface {
	// FindConversation returns ErrConversationNotFound when the id is unknown.
	FindConversation(ctx context.Context, id string) (*Conversation, error)
	SetLastMessage(ctx context.Context, conversationID, messageID string) error
}
