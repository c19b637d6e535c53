// internal/app/features/users/handler.go
package users

import (
	"context"
	"errors"
	"net/http"

	userstore "github.com/dalemusser/codestreak/internal/app/store/users"
	"github.com/dalemusser/codestreak/internal/app/system/apierr"
	"github.com/dalemusser/codestreak/internal/app/system/auditlog"
	"github.com/dalemusser/codestreak/internal/app/system/auth"
	"github.com/dalemusser/codestreak/internal/app/system/formutil"
	"github.com/dalemusser/codestreak/internal/app/system/limits"
	"github.com/dalemusser/codestreak/internal/app/system/paging"
	"github.com/dalemusser/codestreak/internal/app/system/timeouts"
	"github.com/dalemusser/codestreak/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Store is the slice of the user store this feature needs.
type Store interface {
	List(ctx context.Context, lo userstore.ListOptions) ([]models.User, error)
	SetPermissions(ctx context.Context, id primitive.ObjectID, perms []string) (*models.User, error)
}

// Handler serves the user administration endpoints.
type Handler struct {
	Store  Store
	Audit  *auditlog.Logger
	Errors *apierr.Writer
	Log    *zap.Logger
}

func NewHandler(store Store, audit *auditlog.Logger, errs *apierr.Writer, logger *zap.Logger) *Handler {
	return &Handler{Store: store, Audit: audit, Errors: errs, Log: logger}
}

// GET /users
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	page := paging.Parse(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "user list")
	defer cancel()

	list, err := h.Store.List(ctx, userstore.ListOptions{Limit: page.Limit, Skip: page.Skip})
	if err != nil {
		h.Errors.Write(w, r, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err))
		return
	}
	out := make([]models.PublicUser, len(list))
	for i, u := range list {
		out[i] = u.Public()
	}
	apierr.WriteJSON(w, http.StatusOK, out)
}

type permissionsInput struct {
	Permissions []string `json:"permissions" validate:"required,max=32,dive,required,max=64" msg:"Permissions must be a list of capability names"`
}

// PUT /users/{id}/permissions replaces the user's capability set.
func (h *Handler) ServeSetPermissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentIdentity(r)
	if !ok {
		h.Errors.Write(w, r, apierr.New(apierr.Unauthenticated, apierr.MsgNoToken))
		return
	}
	target, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		h.Errors.Write(w, r, apierr.New(apierr.NotFound, apierr.MsgUserNotFound))
		return
	}

	var in permissionsInput
	if err := formutil.Bind(w, r, &in, limits.MaxJSONBody); err != nil {
		h.Errors.Write(w, r, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "user set permissions")
	defer cancel()

	u, err := h.Store.SetPermissions(ctx, target, in.Permissions)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			h.Errors.Write(w, r, apierr.Wrap(apierr.NotFound, apierr.MsgUserNotFound, err))
			return
		}
		h.Errors.Write(w, r, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err))
		return
	}

	h.Audit.PermissionsChanged(r.Context(), actor.ID, u.ID, u.Permissions)
	h.Log.Info("permissions changed",
		zap.String("actor_id", actor.ID.Hex()),
		zap.String("user_id", u.ID.Hex()),
		zap.Strings("permissions", u.Permissions))
	apierr.WriteJSON(w, http.StatusOK, u.Profile())
}
