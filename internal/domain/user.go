package domain

import "context"

// User is the profile summary attached to connections and message payloads.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// UserRepository reads user profiles. It lives in the domain because it's a
// requirement OF the domain, not of the database implementation.
type UserRepository interface {
	// FindUser returns ErrUserNotFound when no user has the given id.
	FindUser(ctx context.Context, id string) (*User, error)
}
