package database

import (
	"fmt"
	"time"

	"github.com/nfrund/relay/internal/domain"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

const (
	userTable         = "user"
	conversationTable = "conversation"
	messageTable      = "message"
)

// Records store cross-table references as bare ids so the domain never
// sees a RecordID.

type userRecord struct {
	ID        *surrealmodels.RecordID `json:"id,omitempty"`
	Name      string                  `json:"name,omitempty"`
	Email     string                  `json:"email,omitempty"`
	AvatarURL string                  `json:"avatar_url,omitempty"`
}

type conversationRecord struct {
	ID           *surrealmodels.RecordID `json:"id,omitempty"`
	Participants []string                `json:"participants"`
	IsGroup      bool                    `json:"is_group"`
	Name         string                  `json:"name,omitempty"`
	AvatarURL    string                  `json:"avatar_url,omitempty"`
	Admin        string                  `json:"admin,omitempty"`
	LastMessage  string                  `json:"last_message,omitempty"`
}

type reactionRecord struct {
	User  string `json:"user"`
	Emoji string `json:"emoji"`
}

type messageRecord struct {
	ID           *surrealmodels.RecordID       `json:"id,omitempty"`
	Conversation string                        `json:"conversation"`
	Sender       string                        `json:"sender"`
	Text         string                        `json:"text"`
	CreatedAt    *surrealmodels.CustomDateTime `json:"created_at,omitempty"`
	IsEdited     bool                          `json:"is_edited"`
	EditedAt     *surrealmodels.CustomDateTime `json:"edited_at,omitempty"`
	Reactions    []reactionRecord              `json:"reactions"`
	SeenBy       []string                      `json:"seen_by"`
}

func recordID(table, id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(table, id)
}

// recordKey returns the id part of a record id ("message:⟨k⟩" -> "k").
func recordKey(id *surrealmodels.RecordID) string {
	if id == nil {
		return ""
	}
	if s, ok := id.ID.(string); ok {
		return s
	}
	return fmt.Sprint(id.ID)
}

func dateTime(t time.Time) *surrealmodels.CustomDateTime {
	return &surrealmodels.CustomDateTime{Time: t.UTC()}
}

func (r *userRecord) toDomain() *domain.User {
	return &domain.User{
		ID:        recordKey(r.ID),
		Name:      r.Name,
		Email:     r.Email,
		AvatarURL: r.AvatarURL,
	}
}

func (r *conversationRecord) toDomain() *domain.Conversation {
	participants := r.Participants
	if participants == nil {
		participants = []string{}
	}
	return &domain.Conversation{
		ID:            recordKey(r.ID),
		Participants:  participants,
		IsGroup:       r.IsGroup,
		Name:          r.Name,
		AvatarURL:     r.AvatarURL,
		AdminID:       r.Admin,
		LastMessageID: r.LastMessage,
	}
}

func newMessageRecord(m *domain.Message) map[string]any {
	reactions := make([]reactionRecord, 0, len(m.Reactions))
	for _, r := range m.Reactions {
		reactions = append(reactions, reactionRecord{User: r.UserID, Emoji: r.Emoji})
	}
	seen := m.SeenBy
	if seen == nil {
		seen = []string{}
	}
	return map[string]any{
		"conversation": m.ConversationID,
		"sender":       m.SenderID,
		"text":         m.Text,
		"created_at":   dateTime(m.CreatedAt),
		"is_edited":    m.IsEdited,
		"reactions":    reactions,
		"seen_by":      seen,
	}
}

func (r *messageRecord) toDomain() *domain.Message {
	m := &domain.Message{
		ID:             recordKey(r.ID),
		ConversationID: r.Conversation,
		SenderID:       r.Sender,
		Text:           r.Text,
		IsEdited:       r.IsEdited,
		Reactions:      make([]domain.Reaction, 0, len(r.Reactions)),
		SeenBy:         r.SeenBy,
	}
	if r.CreatedAt != nil {
		m.CreatedAt = r.CreatedAt.Time
	}
	if r.EditedAt != nil {
		t := r.EditedAt.Time
		m.EditedAt = &t
	}
	for _, rr := range r.Reactions {
		m.Reactions = append(m.Reactions, domain.Reaction{UserID: rr.User, Emoji: rr.Emoji})
	}
	if m.SeenBy == nil {
		m.SeenBy = []string{}
	}
	return m
}
