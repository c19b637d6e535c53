// Package passwords hashes and checks account passwords with bcrypt.
package passwords

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/bcrypt"
)

// ErrTooLong is returned by Hash for passwords over 72 bytes.
var ErrTooLong = bcrypt.ErrPasswordTooLong

// Hasher is safe for concurrent use. The zero value uses bcrypt.DefaultCost.
type Hasher struct {
	Cost int
}

// New returns a Hasher with the given cost. Costs outside bcrypt's range
// fall back to bcrypt.DefaultCost.
func New(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{Cost: cost}
}

func (h *Hasher) cost() int {
	if h == nil || h.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return h.Cost
}

// Hash returns a salted bcrypt hash of plaintext.
func (h *Hasher) Hash(plaintext string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost())
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Verify reports whether plaintext matches hash.
// A mismatch is (false, nil); a malformed hash is an error.
func (h *Hasher) Verify(plaintext, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("verify password: %w", err)
	}
}

// Unusable returns the hash of 32 random bytes that are discarded.
// Social-only accounts store it so the password field is never empty and
// password login always fails for them.
func (h *Hasher) Unusable() (string, error) {
	key := securecookie.GenerateRandomKey(32)
	if key == nil {
		return "", errors.New("generate random password: entropy source failed")
	}
	// bcrypt only reads 72 bytes; hex keeps the full 32 random bytes in range.
	return h.Hash(hex.EncodeToString(key))
}
