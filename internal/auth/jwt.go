package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nfrund/relay/internal/domain"
)

// JWTVerifier checks HMAC-signed tokens whose "id" claim names the user.
type JWTVerifier struct {
	secret []byte
}

var _ TokenVerifier = (*JWTVerifier)(nil)

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

type claims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

// VerifyToken validates signature and expiry and returns the id claim,
// falling back to "sub" when "id" is absent.
func (v *JWTVerifier) VerifyToken(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", domain.ErrAuthMissing
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuthInvalid, err)
	}
	id := c.UserID
	if id == "" {
		id = c.Subject
	}
	if id == "" {
		return "", fmt.Errorf("%w: token has no user id", domain.ErrAuthInvalid)
	}
	return id, nil
}

// Issue signs an HS256 token for userID that expires after ttl.
// A zero ttl issues a token without expiry.
func (v *JWTVerifier) Issue(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	c := claims{UserID: userID, RegisteredClaims: jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(time.Now())}}
	if ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}
