// internal/app/features/account/routes.go
package account

import (
	"net/http"

	"github.com/dalemusser/codestreak/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes returns the /auth subrouter. limit throttles the credential
// endpoints; gate protects /me and /logout.
func Routes(h *Handler, gate *auth.Gate, limit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/register", h.ServeRegister)
		r.Post("/login", h.ServeLogin)
	})

	r.Group(func(r chi.Router) {
		r.Use(gate.Require)
		r.Get("/me", h.ServeMe)
		r.Post("/logout", h.ServeLogout)
	})

	return r
}
