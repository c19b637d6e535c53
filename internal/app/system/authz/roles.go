// internal/app/system/authz/roles.go
package authz

import (
	"net/http"

	"github.com/dalemusser/codestreak/internal/app/system/auth"
	"github.com/dalemusser/codestreak/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserCtx returns the caller's role, ObjectID and a found flag.
// Without an identity it returns "", NilObjectID, false.
func UserCtx(r *http.Request) (models.Role, primitive.ObjectID, bool) {
	id, ok := auth.CurrentIdentity(r)
	if !ok {
		return "", primitive.NilObjectID, false
	}
	return id.Role, id.ID, true
}

// HasAnyRole reports whether the caller holds one of roles.
func HasAnyRole(r *http.Request, roles ...models.Role) bool {
	role, _, ok := UserCtx(r)
	if !ok {
		return false
	}
	for _, want := range roles {
		if role == want {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the caller is an admin.
func IsAdmin(r *http.Request) bool {
	return HasAnyRole(r, models.RoleAdmin)
}
