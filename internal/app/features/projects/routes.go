// internal/app/features/projects/routes.go
package projects

import (
	"github.com/dalemusser/codestreak/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes returns the /projects subrouter. Every route needs a token;
// ownership is checked per project.
func Routes(h *Handler, gate *auth.Gate) chi.Router {
	r := chi.NewRouter()
	r.Use(gate.Require)

	r.Get("/", h.ServeList)
	r.Post("/", h.ServeCreate)
	r.Put("/{id}", h.ServeUpdate)
	r.Delete("/{id}", h.ServeDelete)

	return r
}
