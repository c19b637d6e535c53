// Package tokens issues and verifies the HS256 bearer tokens handed to
// clients after registration or login.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Lifetime is fixed; tokens cannot be refreshed.
const Lifetime = 7 * 24 * time.Hour

// ErrInvalidToken covers every reason a presented token is rejected.
var ErrInvalidToken = errors.New("token is not valid")

// UserClaim is the "user" object inside the payload.
type UserClaim struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// Claims is the token payload: {"user":{"id","role"},"iat","exp","jti"}.
type Claims struct {
	User UserClaim `json:"user"`
	jwt.RegisteredClaims
}

// Manager signs and verifies tokens with one process-wide secret.
type Manager struct {
	secret []byte
	now    func() time.Time
}

// NewManager rejects an empty secret.
func NewManager(secret string) (*Manager, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	return &Manager{secret: []byte(trimmed), now: time.Now}, nil
}

// WithClock returns a copy of m that reads time from now. Used in tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	cp := *m
	cp.now = now
	return &cp
}

// Issue signs a token for subject with the given role, valid for Lifetime.
// A signing failure is returned to the caller and never yields a token.
func (m *Manager) Issue(ctx context.Context, subject, role string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if subject == "" {
		return "", errors.New("issue token: empty subject")
	}

	now := m.now().UTC().Truncate(time.Second)
	claims := Claims{
		User: UserClaim{ID: subject, Role: role},
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(Lifetime)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm and expiry and returns the claims.
// Every failure wraps ErrInvalidToken.
func (m *Manager) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
		// Reject non-canonical base64 so no character of the signature
		// can change without invalidating it.
		jwt.WithStrictDecoding(),
	)

	parsed, err := parser.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.User.ID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return claims, nil
}
