package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nfrund/relay/internal/domain"
)

// Inbound event names.
const (
	EventJoinConversation    = "join-conversation"
	EventLeaveConversation   = "leave-conversation"
	EventSendMessage         = "send-message"
	EventNewMessageBroadcast = "new-message-broadcast"
	EventMessageEdited       = "message-edited"
	EventMessageDeleted      = "message-deleted"
	EventMessageReaction     = "message-reaction"
	EventTypingStarted       = "typing-started"
	EventTypingStopped       = "typing-stopped"
	EventMarkMessagesSeen    = "mark-messages-seen"
)

// Outbound event names.
const (
	EventNewMessage        = "new-message"
	EventMessageUpdated    = "message-updated"
	EventMessageRemoved    = "message-removed"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventMessagesSeen      = "messages-seen"
	EventMessageError      = "message-error"
)

// Delete types that remove a message for every participant.
const (
	DeleteForEveryone      = "everyone"
	DeleteForEveryoneAlias = "forEveryone"
)

// Session identifies the authenticated connection an event arrived on.
type Session struct {
	ConnID string
	User   domain.User
}

// UserID is a shorthand for s.User.ID.
func (s Session) UserID() string {
	return s.User.ID
}

// Inbound payloads. Validation reports the first failing field in
// declaration order, so field order encodes error precedence.

type SendMessagePayload struct {
	Text           string `json:"text" validate:"notblank"`
	ConversationID string `json:"conversationId" validate:"required,entityid"`
}

type BroadcastMessagePayload struct {
	Message        json.RawMessage `json:"message" validate:"required"`
	ConversationID string          `json:"conversationId" validate:"required,entityid"`
}

type EditMessagePayload struct {
	MessageID string `json:"messageId" validate:"entityid"`
	NewText   string `json:"newText" validate:"notblank"`
}

type DeleteMessagePayload struct {
	MessageID  string `json:"messageId" validate:"entityid"`
	DeleteType string `json:"deleteType"`
}

type ReactionPayload struct {
	MessageID string `json:"messageId" validate:"entityid"`
	Emoji     string `json:"emoji" validate:"notblank"`
}

type ConversationRef struct {
	ConversationID string `json:"conversationId" validate:"entityid"`
}

// Outbound payloads.

type MessagePayload struct {
	Message        any    `json:"message"`
	ConversationID string `json:"conversationId"`
}

type MessageRemovedPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

type TypingPayload struct {
	UserID         string       `json:"userId"`
	ConversationID string       `json:"conversationId"`
	UserInfo       *domain.User `json:"userInfo,omitempty"`
}

type MessagesSeenPayload struct {
	ConversationID string   `json:"conversationId"`
	SeenBy         string   `json:"seenBy"`
	MessageIDs     []string `json:"messageIds"`
}

type ErrorPayload struct {
	Error string      `json:"error"`
	Code  domain.Code `json:"code"`
}

// decodeConversationRef accepts either a bare JSON string or {"conversationId": "..."}.
func decodeConversationRef(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		return id, nil
	}
	var ref ConversationRef
	if err := decode(raw, &ref); err != nil {
		return "", err
	}
	return ref.ConversationID, nil
}

// decode unmarshals an event payload, reporting malformed JSON as ErrInvalidPayload.
func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%w: missing data", domain.ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return nil
}
