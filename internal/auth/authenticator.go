// Package auth resolves the credential presented on a connection attempt
// to a user.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nfrund/relay/internal/domain"
)

// TokenVerifier turns a credential into the id of the user it belongs to.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// Authenticator verifies connection credentials and loads the profile
// summary for the resulting user.
type Authenticator struct {
	verifier   TokenVerifier
	users      domain.UserRepository
	cookieName string
	logger     *slog.Logger
}

// Option configures an Authenticator.
type Option func(*Authenticator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// WithCookieName sets the cookie checked before the handshake fields.
func WithCookieName(name string) Option {
	return func(a *Authenticator) {
		if name != "" {
			a.cookieName = name
		}
	}
}

func NewAuthenticator(verifier TokenVerifier, users domain.UserRepository, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:   verifier,
		users:      users,
		cookieName: "token",
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("service", "auth")
	return a
}

// Credential extracts the token: the cookie first, then the token query
// parameter, then an Authorization bearer header.
func (a *Authenticator) Credential(r *http.Request) string {
	if c, err := r.Cookie(a.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// Authenticate returns the user behind the request's credential. It
// fails with ErrAuthMissing or ErrAuthInvalid only. A profile that can't
// be loaded leaves a summary carrying just the id.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*domain.User, error) {
	token := a.Credential(r)
	if token == "" {
		return nil, domain.ErrAuthMissing
	}

	userID, err := a.verifier.VerifyToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrAuthInvalid) || errors.Is(err, domain.ErrAuthMissing) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthInvalid, err)
	}
	if userID == "" {
		return nil, domain.ErrAuthInvalid
	}

	user, err := a.users.FindUser(ctx, userID)
	if err != nil {
		a.logger.WarnContext(ctx, "Profile lookup failed, continuing with id only", "userID", userID, "error", err)
		return &domain.User{ID: userID}, nil
	}
	user.ID = userID
	return user, nil
}
