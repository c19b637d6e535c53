// Package revocation tracks bearer tokens withdrawn before their expiry.
//
// Tokens are stateless, so a logout cannot retract one by itself. When a
// Redis address is configured, logout records the token's id here until the
// token would have expired anyway, and the auth gate refuses it. Without
// Redis the Nop list is used and logout is an acknowledgement only.
package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist records revoked token ids.
type Denylist interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Nop never revokes anything.
type Nop struct{}

func (Nop) Revoke(context.Context, string, time.Time) error { return nil }
func (Nop) IsRevoked(context.Context, string) (bool, error) { return false, nil }

const keyPrefix = "codestreak:revoked:"

// Redis stores each revoked id as a key that expires with the token.
type Redis struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, now: time.Now}
}

// Dial connects and pings, failing fast on a bad address.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("revocation: ping redis: %w", err)
	}
	return client, nil
}

// Revoke denies tokenID until the given time. Already expired tokens are
// not recorded.
func (r *Redis) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return nil
	}
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, keyPrefix+tokenID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("revocation: revoke: %w", err)
	}
	return nil
}

// IsRevoked reports whether tokenID is denied.
func (r *Redis) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	n, err := r.client.Exists(ctx, keyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("revocation: lookup: %w", err)
	}
	return n > 0, nil
}
