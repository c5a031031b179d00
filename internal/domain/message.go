package domain

import (
	"context"
	"slices"
	"time"
)

// Reaction is a single (user, emoji) pair on a message.
type Reaction struct {
	UserID string `json:"userId"`
	Emoji  string `json:"emoji"`
}

// Message is a persisted chat message. SenderID never changes after creation.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	Sender         *User      `json:"sender,omitempty"`
	Text           string     `json:"text"`
	CreatedAt      time.Time  `json:"createdAt"`
	IsEdited       bool       `json:"isEdited"`
	EditedAt       *time.Time `json:"editedAt,omitempty"`
	Reactions      []Reaction `json:"reactions"`
	SeenBy         []string   `json:"seenBy"`
}

// ToggleReaction adds the (userID, emoji) pair if absent and removes it
// otherwise. It reports whether the pair was added.
func (m *Message) ToggleReaction(userID, emoji string) bool {
	r := Reaction{UserID: userID, Emoji: emoji}
	if i := slices.Index(m.Reactions, r); i >= 0 {
		m.Reactions = slices.Delete(m.Reactions, i, i+1)
		return false
	}
	m.Reactions = append(m.Reactions, r)
	return true
}

// SeenByUser reports whether userID is in the seen set.
func (m *Message) SeenByUser(userID string) bool {
	return slices.Contains(m.SeenBy, userID)
}

// MessageRepository is the message persistence the realtime core depends on.
// Lookups of unknown ids return ErrMessageNotFound.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *Message) (*Message, error)
	FindMessage(ctx context.Context, id string) (*Message, error)
	UpdateMessageText(ctx context.Context, id, text string, editedAt time.Time) (*Message, error)
	UpdateReactions(ctx context.Context, id string, reactions []Reaction) (*Message, error)
	DeleteMessage(ctx context.Context, id string) error
	// MarkSeen adds userID to the seen set of every message in the
	// conversation that userID neither sent nor has already seen, and
	// returns the ids of the messages it changed.
	MarkSeen(ctx context.Context, conversationID, userID string) ([]string, error)
}
