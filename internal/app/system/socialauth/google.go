package socialauth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/dalemusser/codestreak/internal/app/system/normalize"
)

// Google's published OIDC endpoints.
const (
	GoogleIssuer   = "https://accounts.google.com"
	GoogleCertsURL = "https://www.googleapis.com/oauth2/v3/certs"
)

// Google verifies Google-issued ID tokens for one OAuth client id.
//
// The remote key set fetches and caches Google's signing keys; a Google
// verifier is safe for concurrent use and should be built once.
type Google struct {
	verifier *oidc.IDTokenVerifier
}

// NewGoogle builds a verifier bound to clientID using Google's remote key set.
// ctx scopes the key set's HTTP fetches and must outlive the verifier.
func NewGoogle(ctx context.Context, clientID string) (*Google, error) {
	return NewGoogleWithKeySet(clientID, oidc.NewRemoteKeySet(ctx, GoogleCertsURL), nil)
}

// NewGoogleWithKeySet builds a verifier against an explicit key set.
// now overrides the clock when non-nil.
func NewGoogleWithKeySet(clientID string, keys oidc.KeySet, now func() time.Time) (*Google, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, fmt.Errorf("google client id must not be empty")
	}
	cfg := &oidc.Config{ClientID: clientID, Now: now}
	return &Google{verifier: oidc.NewVerifier(GoogleIssuer, keys, cfg)}, nil
}

// googleClaims are the ID token fields we read.
type googleClaims struct {
	Email         string  `json:"email"`
	EmailVerified boolish `json:"email_verified"`
	Name          string  `json:"name"`
	GivenName     string  `json:"given_name"`
	FamilyName    string  `json:"family_name"`
}

// boolish accepts true/false as JSON booleans or strings.
type boolish bool

func (b *boolish) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = boolish(t)
	case string:
		*b = boolish(strings.EqualFold(t, "true"))
	default:
		*b = false
	}
	return nil
}

// Verify checks the ID token's signature, issuer, audience and expiry and
// returns the identity it asserts. Every failure wraps ErrInvalidAssertion.
func (g *Google) Verify(ctx context.Context, assertion string) (Identity, error) {
	assertion = strings.TrimSpace(assertion)
	if assertion == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrInvalidAssertion)
	}

	tok, err := g.verifier.Verify(ctx, assertion)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}

	var c googleClaims
	if err := tok.Claims(&c); err != nil {
		return Identity{}, fmt.Errorf("%w: decode claims: %v", ErrInvalidAssertion, err)
	}

	email := normalize.Email(c.Email)
	if email == "" {
		return Identity{}, fmt.Errorf("%w: token carries no email", ErrInvalidAssertion)
	}
	if !bool(c.EmailVerified) {
		return Identity{}, fmt.Errorf("%w: email not verified", ErrInvalidAssertion)
	}
	if tok.Subject == "" {
		return Identity{}, fmt.Errorf("%w: token carries no subject", ErrInvalidAssertion)
	}

	name := normalize.Name(c.Name)
	if name == "" {
		name = normalize.Name(c.GivenName + " " + c.FamilyName)
	}
	if name == "" {
		// Fall back to the mailbox part of the address.
		name, _, _ = strings.Cut(email, "@")
	}

	return Identity{Email: email, Subject: tok.Subject, Name: name}, nil
}
