// internal/app/system/authz/authz.go
package authz

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dalemusser/codestreak/internal/app/system/apierr"
	"github.com/dalemusser/codestreak/internal/app/system/auth"
	"github.com/dalemusser/codestreak/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Capabilities that can be granted to non-admin users.
const (
	PermUsersView = "users.view"
	PermAuditView = "audit.view"
)

// ErrUnknownUser is returned by a PermissionSource when the id no longer resolves.
var ErrUnknownUser = errors.New("unknown user")

// PermissionSource loads a user's current capability set.
type PermissionSource interface {
	Permissions(ctx context.Context, id primitive.ObjectID) ([]string, error)
}

// PermissionSourceFunc adapts a function to PermissionSource.
type PermissionSourceFunc func(ctx context.Context, id primitive.ObjectID) ([]string, error)

func (f PermissionSourceFunc) Permissions(ctx context.Context, id primitive.ObjectID) ([]string, error) {
	return f(ctx, id)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Checks                                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

// CheckRole passes when allowed is empty or id.Role is in allowed.
func CheckRole(id auth.Identity, allowed ...models.Role) error {
	if len(allowed) == 0 {
		return nil
	}
	for _, r := range allowed {
		if id.Role == r {
			return nil
		}
	}
	return apierr.New(apierr.Forbidden, apierr.MsgInsufficientRole)
}

// CheckPermission passes for admins without any lookup; everyone else must
// hold perm in the set src returns right now.
func CheckPermission(ctx context.Context, src PermissionSource, id auth.Identity, perm string) error {
	if id.Role.IsAdmin() {
		return nil
	}
	denied := apierr.New(apierr.Forbidden, fmt.Sprintf("Permission denied: %s is required", perm))

	perms, err := src.Permissions(ctx, id.ID)
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			return denied
		}
		return apierr.Wrap(apierr.Internal, apierr.MsgServerError, err)
	}
	for _, p := range perms {
		if p == perm {
			return nil
		}
	}
	return denied
}

// CheckOwner passes only when id owns the resource.
func CheckOwner(id auth.Identity, owner primitive.ObjectID) error {
	if owner.IsZero() || id.ID != owner {
		return apierr.New(apierr.Forbidden, apierr.MsgNotAuthorized)
	}
	return nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Middleware                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

// Authorizer turns the checks into chi middleware. It must run after
// auth.Gate.Require.
type Authorizer struct {
	Perms  PermissionSource
	Errors *apierr.Writer
	Log    *zap.Logger
}

// New builds an Authorizer.
func New(perms PermissionSource, errs *apierr.Writer, logger *zap.Logger) *Authorizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authorizer{Perms: perms, Errors: errs, Log: logger}
}

func (a *Authorizer) guard(check func(r *http.Request, id auth.Identity) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.CurrentIdentity(r)
			if !ok {
				a.Errors.Write(w, r, apierr.New(apierr.Unauthenticated, apierr.MsgNoToken))
				return
			}
			if err := check(r, id); err != nil {
				a.Log.Debug("authorization denied",
					zap.String("user_id", id.ID.Hex()),
					zap.String("role", id.Role.String()),
					zap.String("path", r.URL.Path))
				a.Errors.Write(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole admits identities whose role is in allowed (any role when empty).
func (a *Authorizer) RequireRole(allowed ...models.Role) func(http.Handler) http.Handler {
	return a.guard(func(_ *http.Request, id auth.Identity) error {
		return CheckRole(id, allowed...)
	})
}

// RequirePermission admits admins and holders of perm.
func (a *Authorizer) RequirePermission(perm string) func(http.Handler) http.Handler {
	return a.guard(func(r *http.Request, id auth.Identity) error {
		return CheckPermission(r.Context(), a.Perms, id, perm)
	})
}
