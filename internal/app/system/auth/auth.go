package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/codestreak/internal/app/system/apierr"
	"github.com/dalemusser/codestreak/internal/app/system/revocation"
	"github.com/dalemusser/codestreak/internal/app/system/tokens"
	"github.com/dalemusser/codestreak/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// DefaultHeader carries the raw token, without a "Bearer" prefix.
const DefaultHeader = "x-auth-token"

/*─────────────────────────────────────────────────────────────────────────────*
| Request identity                                                            |
*─────────────────────────────────────────────────────────────────────────────*/

// Identity is the verified caller, valid for one request.
type Identity struct {
	ID        primitive.ObjectID
	Role      models.Role
	TokenID   string
	ExpiresAt time.Time
}

type ctxKey string

const identityKey ctxKey = "identity"

// WithIdentity returns ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity stored by the gate.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// CurrentIdentity returns the identity & "found?" flag.
func CurrentIdentity(r *http.Request) (Identity, bool) {
	return IdentityFrom(r.Context())
}

// WithTestIdentity injects id directly, bypassing token verification.
func WithTestIdentity(r *http.Request, id Identity) *http.Request {
	return r.WithContext(WithIdentity(r.Context(), id))
}

/*─────────────────────────────────────────────────────────────────────────────*
| Gate                                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// TokenVerifier is satisfied by *tokens.Manager.
type TokenVerifier interface {
	Verify(token string) (*tokens.Claims, error)
}

// Gate authenticates requests from the token header.
type Gate struct {
	Tokens   TokenVerifier
	Denylist revocation.Denylist
	Header   string
	Errors   *apierr.Writer
	Log      *zap.Logger
}

// NewGate builds a Gate. A nil denylist means no revocation; an empty
// header name means DefaultHeader.
func NewGate(tv TokenVerifier, deny revocation.Denylist, header string, errs *apierr.Writer, logger *zap.Logger) *Gate {
	if deny == nil {
		deny = revocation.Nop{}
	}
	if strings.TrimSpace(header) == "" {
		header = DefaultHeader
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{Tokens: tv, Denylist: deny, Header: header, Errors: errs, Log: logger}
}

// Authenticate extracts and verifies the token on r.
//
//   - no token → Unauthenticated "No token, authorization denied"
//   - bad, expired or revoked token, bad subject or unknown role →
//     Unauthenticated "Token is not valid"
//   - revocation lookup failure → Internal
func (g *Gate) Authenticate(r *http.Request) (Identity, error) {
	raw := strings.TrimSpace(r.Header.Get(g.Header))
	if raw == "" {
		return Identity{}, apierr.New(apierr.Unauthenticated, apierr.MsgNoToken)
	}

	claims, err := g.Tokens.Verify(raw)
	if err != nil {
		return Identity{}, apierr.Wrap(apierr.Unauthenticated, apierr.MsgTokenInvalid, err)
	}

	oid, err := primitive.ObjectIDFromHex(claims.User.ID)
	if err != nil {
		return Identity{}, apierr.Wrap(apierr.Unauthenticated, apierr.MsgTokenInvalid, err)
	}
	role, err := models.ParseRole(claims.User.Role)
	if err != nil {
		return Identity{}, apierr.Wrap(apierr.Unauthenticated, apierr.MsgTokenInvalid, err)
	}

	revoked, err := g.Denylist.IsRevoked(r.Context(), claims.ID)
	if err != nil {
		return Identity{}, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err)
	}
	if revoked {
		return Identity{}, apierr.Wrap(apierr.Unauthenticated, apierr.MsgTokenInvalid, errors.New("token revoked"))
	}

	id := Identity{ID: oid, Role: role, TokenID: claims.ID}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// Require rejects unauthenticated requests and stores the identity in the
// request context for the rest of the chain.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := g.Authenticate(r)
		if err != nil {
			g.Errors.Write(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}
