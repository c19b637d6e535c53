// internal/app/features/account/handler.go
package account

import (
	"net/http"

	"github.com/dalemusser/codestreak/internal/app/system/apierr"
	"github.com/dalemusser/codestreak/internal/app/system/auth"
	"github.com/dalemusser/codestreak/internal/app/system/authflow"
	"github.com/dalemusser/codestreak/internal/app/system/formutil"
	"github.com/dalemusser/codestreak/internal/app/system/limits"
	"go.uber.org/zap"
)

// Handler serves the password account endpoints.
type Handler struct {
	Flow   *authflow.Flow
	Errors *apierr.Writer
	Log    *zap.Logger
}

func NewHandler(flow *authflow.Flow, errs *apierr.Writer, logger *zap.Logger) *Handler {
	return &Handler{Flow: flow, Errors: errs, Log: logger}
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /auth/register                                                         |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeRegister(w http.ResponseWriter, r *http.Request) {
	var in authflow.RegisterInput
	if err := formutil.Bind(w, r, &in, limits.MaxAuthBody); err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	s, err := h.Flow.Register(r.Context(), in)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, s)
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /auth/login                                                            |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	var in authflow.LoginInput
	if err := formutil.Bind(w, r, &in, limits.MaxAuthBody); err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	s, err := h.Flow.Login(r.Context(), in)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, s)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /auth/me                                                                |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.CurrentIdentity(r)
	if !ok {
		h.Errors.Write(w, r, apierr.New(apierr.Unauthenticated, apierr.MsgNoToken))
		return
	}
	p, err := h.Flow.CurrentUser(r.Context(), id)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, p)
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /auth/logout                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.CurrentIdentity(r)
	if !ok {
		h.Errors.Write(w, r, apierr.New(apierr.Unauthenticated, apierr.MsgNoToken))
		return
	}
	res, err := h.Flow.Logout(r.Context(), id)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, res)
}
