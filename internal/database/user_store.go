package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/nfrund/relay/internal/config"
	"github.com/nfrund/relay/internal/domain"
	"github.com/surrealdb/surrealdb.go"
)

var _ domain.UserRepository = (*UserStore)(nil)

// UserStore reads profiles from the "user" table and verifies record
// access tokens issued by SurrealDB.
type UserStore struct {
	client Client[userRecord]
	cfg    config.Provider
	dial   func(ctx context.Context, cfg config.Provider) (*surrealdb.DB, error)
}

func NewUserStore(conn DBConnection, cfg config.Provider) (*UserStore, error) {
	client, err := NewClient[userRecord](conn, cfg)
	if err != nil {
		return nil, err
	}
	return &UserStore{client: client, cfg: cfg, dial: dialAnonymous}, nil
}

func (s *UserStore) FindUser(ctx context.Context, id string) (*domain.User, error) {
	rec, err := s.client.Select(ctx, recordID(userTable, id))
	if errors.Is(err, ErrNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

// CreateUser stores a profile under u.ID, generating the id when empty.
func (s *UserStore) CreateUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	if u == nil {
		return nil, NewDBError(ErrInvalidInput, "user cannot be nil")
	}
	if u.ID == "" {
		u.ID = domain.NewID()
	}
	rec, err := s.client.Create(ctx, recordID(userTable, u.ID), map[string]any{
		"name":       u.Name,
		"email":      u.Email,
		"avatar_url": u.AvatarURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return rec.toDomain(), nil
}

// VerifyToken authenticates token on a short-lived session of its own,
// leaving the shared root session untouched, and returns the user id the
// token belongs to.
func (s *UserStore) VerifyToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", domain.ErrAuthMissing
	}
	ctx, cancel := getTimeoutFromContext(ctx, s.cfg.GetDBQueryTimeout(), ContextKeyQueryTimeout)
	defer cancel()

	db, err := s.dial(ctx, s.cfg)
	if err != nil {
		return "", fmt.Errorf("open verification session: %w", err)
	}
	defer func() { _ = db.Close(context.WithoutCancel(ctx)) }()

	if err := db.Authenticate(ctx, token); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuthInvalid, err)
	}
	rec, err := QueryOne[userRecord](ctx, db, "SELECT * FROM $auth", nil)
	if err != nil {
		return "", fmt.Errorf("load authenticated user: %w", err)
	}
	if rec == nil || rec.ID == nil {
		return "", domain.ErrAuthInvalid
	}
	return recordKey(rec.ID), nil
}

// dialAnonymous opens a session scoped to the namespace without signing in.
func dialAnonymous(ctx context.Context, cfg config.Provider) (*surrealdb.DB, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, cfg.GetDBURL())
	if err != nil {
		return nil, err
	}
	if err := db.Use(ctx, cfg.GetDBNs(), cfg.GetDBDb()); err != nil {
		_ = db.Close(ctx)
		return nil, err
	}
	return db, nil
}
