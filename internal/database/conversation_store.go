package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/nfrund/relay/internal/config"
	"github.com/nfrund/relay/internal/domain"
)

var _ domain.ConversationRepository = (*ConversationStore)(nil)

// ConversationStore persists conversations in the "conversation" table.
type ConversationStore struct {
	client Client[conversationRecord]
}

// NewConversationStore builds a store running on conn.
func NewConversationStore(conn DBConnection, cfg config.Provider) (*ConversationStore, error) {
	client, err := NewClient[conversationRecord](conn, cfg)
	if err != nil {
		return nil, err
	}
	return &ConversationStore{client: client}, nil
}

// FindConversation always reads through to storage.
func (s *ConversationStore) FindConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	rec, err := s.client.Select(ctx, recordID(conversationTable, id))
	if errors.Is(err, ErrNotFound) {
		return nil, domain.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

func (s *ConversationStore) SetLastMessage(ctx context.Context, conversationID, messageID string) error {
	_, err := s.client.Merge(ctx, recordID(conversationTable, conversationID), map[string]any{"last_message": messageID})
	if errors.Is(err, ErrNotFound) {
		return domain.ErrConversationNotFound
	}
	return err
}

// CreateConversation stores conv under conv.ID, generating the id when empty.
func (s *ConversationStore) CreateConversation(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error) {
	if conv == nil || len(conv.Participants) == 0 {
		return nil, NewDBError(ErrInvalidInput, "conversation needs participants")
	}
	if conv.ID == "" {
		conv.ID = domain.NewID()
	}
	rec, err := s.client.Create(ctx, recordID(conversationTable, conv.ID), map[string]any{
		"participants": conv.Participants,
		"is_group":     conv.IsGroup,
		"name":         conv.Name,
		"avatar_url":   conv.AvatarURL,
		"admin":        conv.AdminID,
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return rec.toDomain(), nil
}
