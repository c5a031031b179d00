package database

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nfrund/relay/internal/config"
	"github.com/nfrund/relay/internal/domain"
)

var _ domain.MessageRepository = (*MessageStore)(nil)

// MessageStore persists messages in the "message" table.
type MessageStore struct {
	client Client[messageRecord]
}

func NewMessageStore(conn DBConnection, cfg config.Provider) (*MessageStore, error) {
	client, err := NewClient[messageRecord](conn, cfg)
	if err != nil {
		return nil, err
	}
	return &MessageStore{client: client}, nil
}

func (s *MessageStore) CreateMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	if msg == nil || msg.ID == "" {
		return nil, NewDBError(ErrInvalidInput, "message id is required")
	}
	rec, err := s.client.Create(ctx, recordID(messageTable, msg.ID), newMessageRecord(msg))
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return rec.toDomain(), nil
}

func (s *MessageStore) FindMessage(ctx context.Context, id string) (*domain.Message, error) {
	rec, err := s.client.Select(ctx, recordID(messageTable, id))
	if err != nil {
		return nil, notFound(err)
	}
	return rec.toDomain(), nil
}

func (s *MessageStore) UpdateMessageText(ctx context.Context, id, text string, editedAt time.Time) (*domain.Message, error) {
	rec, err := s.client.Merge(ctx, recordID(messageTable, id), map[string]any{
		"text":      text,
		"is_edited": true,
		"edited_at": dateTime(editedAt),
	})
	if err != nil {
		return nil, notFound(err)
	}
	return rec.toDomain(), nil
}

// UpdateReactions replaces the whole reaction list.
func (s *MessageStore) UpdateReactions(ctx context.Context, id string, reactions []domain.Reaction) (*domain.Message, error) {
	recs := make([]reactionRecord, 0, len(reactions))
	for _, r := range reactions {
		recs = append(recs, reactionRecord{User: r.UserID, Emoji: r.Emoji})
	}
	rec, err := s.client.Merge(ctx, recordID(messageTable, id), map[string]any{"reactions": recs})
	if err != nil {
		return nil, notFound(err)
	}
	return rec.toDomain(), nil
}

func (s *MessageStore) DeleteMessage(ctx context.Context, id string) error {
	return notFound(s.client.Delete(ctx, recordID(messageTable, id)))
}

const markSeenQuery = `UPDATE message
	SET seen_by = array::union(seen_by, [$user])
	WHERE conversation = $conversation AND sender != $user AND seen_by CONTAINSNOT $user
	RETURN AFTER`

// MarkSeen updates every unseen message in a single statement and returns
// the ids that statement changed.
func (s *MessageStore) MarkSeen(ctx context.Context, conversationID, userID string) ([]string, error) {
	recs, err := s.client.Query(ctx, markSeenQuery, map[string]any{
		"conversation": conversationID,
		"user":         userID,
	})
	if err != nil {
		return nil, fmt.Errorf("mark seen: %w", err)
	}
	ids := make([]string, 0, len(recs))
	for i := range recs {
		ids = append(ids, recordKey(recs[i].ID))
	}
	slices.Sort(ids)
	return ids, nil
}

func notFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return domain.ErrMessageNotFound
	}
	return err
}
