// Package socialauth verifies identity assertions issued by third-party
// providers and reduces them to the fields account linking needs.
package socialauth

import (
	"context"
	"errors"
	"sort"

	"github.com/dalemusser/codestreak/internal/app/system/normalize"
)

var (
	// ErrInvalidAssertion covers every rejected assertion: bad signature,
	// wrong audience, expired, unverified or missing email.
	ErrInvalidAssertion = errors.New("invalid identity assertion")

	// ErrNotImplemented is returned by providers that are routed but not yet supported.
	ErrNotImplemented = errors.New("provider not implemented")
)

// Identity is what a provider vouches for. Email is normalized.
type Identity struct {
	Email   string
	Subject string
	Name    string
}

// Verifier checks one provider's assertions.
type Verifier interface {
	Verify(ctx context.Context, assertion string) (Identity, error)
}

// Unimplemented is a routed provider with no verifier yet.
type Unimplemented struct{}

// Verify always returns ErrNotImplemented.
func (Unimplemented) Verify(context.Context, string) (Identity, error) {
	return Identity{}, ErrNotImplemented
}

// Registry maps provider names ("google") to verifiers.
// It is built once at startup and read-only afterwards.
type Registry struct {
	verifiers map[string]Verifier
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{verifiers: make(map[string]Verifier)}
}

// Register adds or replaces the verifier for provider.
func (r *Registry) Register(provider string, v Verifier) {
	r.verifiers[normalize.Provider(provider)] = v
}

// Lookup returns the verifier for provider.
func (r *Registry) Lookup(provider string) (Verifier, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.verifiers[normalize.Provider(provider)]
	return v, ok
}

// Providers lists registered provider names in sorted order.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.verifiers))
	for n := range r.verifiers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
