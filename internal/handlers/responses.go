package handlers

import "github.com/nfrund/relay/internal/presence"

// ErrorResponse is the standard format for API error responses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OnlineUsersResponse lists every user with at least one live connection.
type OnlineUsersResponse struct {
	OnlineUsers []string `json:"online_users"`
	Count       int      `json:"count"`
}

// UserPresenceResponse lists one user's live connections.
type UserPresenceResponse struct {
	UserID      string              `json:"user_id"`
	Connections []presence.Presence `json:"connections"`
}
