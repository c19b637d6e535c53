// internal/app/features/users/routes.go
package users

import (
	"github.com/dalemusser/codestreak/internal/app/system/auth"
	"github.com/dalemusser/codestreak/internal/app/system/authz"
	"github.com/dalemusser/codestreak/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes returns the /users subrouter. Listing needs the users.view
// capability; changing capabilities is for admins only.
func Routes(h *Handler, gate *auth.Gate, az *authz.Authorizer) chi.Router {
	r := chi.NewRouter()
	r.Use(gate.Require)

	r.With(az.RequirePermission(authz.PermUsersView)).Get("/", h.ServeList)
	r.With(az.RequireRole(models.RoleAdmin)).Put("/{id}/permissions", h.ServeSetPermissions)

	return r
}
