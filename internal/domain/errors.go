package domain

import "errors"

// Sentinel errors for the domain layer. Handlers wrap them with detail using
// fmt.Errorf("...: %w", err); callers classify with errors.Is or ErrorCode.
var (
	ErrAuthMissing           = errors.New("no token provided")
	ErrAuthInvalid           = errors.New("invalid token")
	ErrInvalidPayload        = errors.New("invalid payload")
	ErrInvalidConversationID = errors.New("invalid conversation id")
	ErrInvalidMessageID      = errors.New("invalid message id")
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrMessageNotFound       = errors.New("message not found")
	ErrUserNotFound          = errors.New("user not found")
	ErrNotAParticipant       = errors.New("not a participant in this conversation")
	ErrNotSender             = errors.New("only the sender can modify this message")
)

// Code is the machine-readable error kind reported to clients.
type Code string

const (
	CodeAuthMissing           Code = "AuthMissing"
	CodeAuthInvalid           Code = "AuthInvalid"
	CodeInvalidPayload        Code = "InvalidPayload"
	CodeInvalidConversationID Code = "InvalidConversationId"
	CodeInvalidMessageID      Code = "InvalidMessageId"
	CodeConversationNotFound  Code = "ConversationNotFound"
	CodeMessageNotFound       Code = "MessageNotFound"
	CodeNotAParticipant       Code = "NotAParticipant"
	CodeNotSender             Code = "NotSender"
	CodeInternal              Code = "Internal"
)

var codes = []struct {
	err  error
	code Code
}{
	{ErrAuthMissing, CodeAuthMissing},
	{ErrAuthInvalid, CodeAuthInvalid},
	{ErrInvalidPayload, CodeInvalidPayload},
	{ErrInvalidConversationID, CodeInvalidConversationID},
	{ErrInvalidMessageID, CodeInvalidMessageID},
	{ErrConversationNotFound, CodeConversationNotFound},
	{ErrMessageNotFound, CodeMessageNotFound},
	{ErrNotAParticipant, CodeNotAParticipant},
	{ErrNotSender, CodeNotSender},
}

// ErrorCode classifies err. Anything outside the taxonomy is Internal.
func ErrorCode(err error) Code {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// PublicMessage returns the text that may be shown to the requester.
// Internal failures are reduced to a generic description.
func PublicMessage(err error) string {
	if ErrorCode(err) == CodeInternal {
		return "internal server error"
	}
	return err.Error()
}
