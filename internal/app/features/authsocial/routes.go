// internal/app/features/authsocial/routes.go
package authsocial

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the provider routes, mounted alongside the account routes
// under /auth. There is one POST per registered provider. These routes are
// public; limit throttles them.
func Routes(h *Handler, limit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	if limit != nil {
		r.Use(limit)
	}

	for _, p := range h.Flow.Social.Providers() {
		r.Post("/"+p, h.ServeAssertion(p))
	}

	r.Get("/google/start", h.ServeGoogleStart)
	r.Get("/google/callback", h.ServeGoogleCallback)

	return r
}
