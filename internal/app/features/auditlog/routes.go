// internal/app/features/auditlog/routes.go
package auditlog

import (
	"github.com/dalemusser/codestreak/internal/app/system/auth"
	"github.com/dalemusser/codestreak/internal/app/system/authz"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the audit log viewer (typically at "/audit").
// Admins and holders of the audit.view capability may read it.
func Routes(h *Handler, gate *auth.Gate, az *authz.Authorizer) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(gate.Require)
		pr.Use(az.RequirePermission(authz.PermAuditView))

		pr.Get("/", h.ServeList)
		pr.Get("/failed-logins", h.ServeFailedLogins)
	})

	return r
}
