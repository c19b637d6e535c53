// internal/app/features/projects/handler.go
package projects

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	projectstore "github.com/dalemusser/codestreak/internal/app/store/projects"
	"github.com/dalemusser/codestreak/internal/app/system/apierr"
	"github.com/dalemusser/codestreak/internal/app/system/auth"
	"github.com/dalemusser/codestreak/internal/app/system/authz"
	"github.com/dalemusser/codestreak/internal/app/system/formutil"
	"github.com/dalemusser/codestreak/internal/app/system/htmlsanitize"
	"github.com/dalemusser/codestreak/internal/app/system/inputval"
	"github.com/dalemusser/codestreak/internal/app/system/limits"
	"github.com/dalemusser/codestreak/internal/app/system/timeouts"
	"github.com/dalemusser/codestreak/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	msgProjectNotFound = "Project not found"
	msgProjectDeleted  = "Project deleted successfully"
)

// Handler serves the owner-scoped project endpoints.
type Handler struct {
	Store  *projectstore.Store
	Errors *apierr.Writer
	Log    *zap.Logger
}

func NewHandler(store *projectstore.Store, errs *apierr.Writer, logger *zap.Logger) *Handler {
	return &Handler{Store: store, Errors: errs, Log: logger}
}

type createInput struct {
	Title       string   `json:"title" validate:"required" msg:"Title is required"`
	Description string   `json:"description" validate:"required" msg:"Description is required"`
	Deadline    string   `json:"deadline"`
	Tags        []string `json:"tags" validate:"max=20,dive,max=50" msg:"Tags must be at most 20 entries of 50 characters"`
}

// updateInput mirrors the partial update: absent or empty fields are left alone.
type updateInput struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Status      *string  `json:"status" validate:"omitempty,projectstatus"`
	Progress    *int     `json:"progress" validate:"omitempty,min=0,max=100" msg:"Progress must be between 0 and 100"`
	Deadline    *string  `json:"deadline"`
	Tags        []string `json:"tags" validate:"omitempty,max=20,dive,max=50" msg:"Tags must be at most 20 entries of 50 characters"`
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /projects                                                               |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "project list")
	defer cancel()

	list, err := h.Store.ListByOwner(ctx, id.ID)
	if err != nil {
		h.Errors.Write(w, r, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err))
		return
	}
	apierr.WriteJSON(w, http.StatusOK, list)
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /projects                                                              |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var in createInput
	if err := formutil.Decode(w, r, &in, limits.MaxJSONBody); err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	in.Title = htmlsanitize.StripTags(in.Title)
	in.Description = htmlsanitize.StripTags(in.Description)
	in.Tags = htmlsanitize.StripAll(in.Tags)

	res := inputval.Validate(in)
	deadline, derr := parseDeadline(in.Deadline)
	if derr != nil {
		res.Errors = append(res.Errors, *derr)
	}
	if res.HasErrors() {
		h.Errors.Write(w, r, apierr.Validation(res.Errors))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "project create")
	defer cancel()

	p, err := h.Store.Create(ctx, models.Project{
		UserID:      id.ID,
		Title:       in.Title,
		Description: in.Description,
		Deadline:    deadline,
		Tags:        in.Tags,
	})
	if err != nil {
		h.Errors.Write(w, r, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err))
		return
	}
	h.Log.Info("project created", zap.String("project_id", p.ID.Hex()), zap.String("user_id", id.ID.Hex()))
	apierr.WriteJSON(w, http.StatusOK, p)
}

/*─────────────────────────────────────────────────────────────────────────────*
| PUT /projects/{id}                                                          |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	pid, ok := h.projectID(w, r)
	if !ok {
		return
	}

	var in updateInput
	if err := formutil.Decode(w, r, &in, limits.MaxJSONBody); err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	u, verr := in.toUpdate()
	if verr != nil {
		h.Errors.Write(w, r, verr)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "project update")
	defer cancel()

	if !h.authorizeOwner(ctx, w, r, id, pid) {
		return
	}

	p, err := h.Store.Update(ctx, pid, id.ID, u)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, p)
}

/*─────────────────────────────────────────────────────────────────────────────*
| DELETE /projects/{id}                                                       |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	pid, ok := h.projectID(w, r)
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "project delete")
	defer cancel()

	if !h.authorizeOwner(ctx, w, r, id, pid) {
		return
	}
	if err := h.Store.Delete(ctx, pid, id.ID); err != nil {
		h.storeError(w, r, err)
		return
	}
	h.Log.Info("project deleted", zap.String("project_id", pid.Hex()), zap.String("user_id", id.ID.Hex()))
	apierr.WriteJSON(w, http.StatusOK, map[string]string{"message": msgProjectDeleted})
}

/*─────────────────────────────────────────────────────────────────────────────*
| helpers                                                                     |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.CurrentIdentity(r)
	if !ok {
		h.Errors.Write(w, r, apierr.New(apierr.Unauthenticated, apierr.MsgNoToken))
	}
	return id, ok
}

// projectID parses {id}. A malformed id cannot name a project, so it is a 404.
func (h *Handler) projectID(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	pid, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		h.Errors.Write(w, r, apierr.New(apierr.NotFound, msgProjectNotFound))
		return primitive.NilObjectID, false
	}
	return pid, true
}

// authorizeOwner separates "missing" (404) from "someone else's" (403).
func (h *Handler) authorizeOwner(ctx context.Context, w http.ResponseWriter, r *http.Request, id auth.Identity, pid primitive.ObjectID) bool {
	p, err := h.Store.GetByID(ctx, pid)
	if err != nil {
		h.storeError(w, r, err)
		return false
	}
	if err := authz.CheckOwner(id, p.UserID); err != nil {
		h.Log.Warn("project access denied",
			zap.String("project_id", pid.Hex()),
			zap.String("user_id", id.ID.Hex()))
		h.Errors.Write(w, r, err)
		return false
	}
	return true
}

func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, projectstore.ErrNotFound) {
		h.Errors.Write(w, r, apierr.Wrap(apierr.NotFound, msgProjectNotFound, err))
		return
	}
	h.Errors.Write(w, r, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err))
}

func (in updateInput) toUpdate() (projectstore.Update, error) {
	var u projectstore.Update

	u.Title = nonEmpty(in.Title)
	u.Description = nonEmpty(in.Description)
	if in.Status != nil && strings.TrimSpace(*in.Status) == "" {
		in.Status = nil
	}
	in.Tags = htmlsanitize.StripAll(in.Tags)

	res := inputval.Validate(in)
	if in.Deadline != nil {
		d, ferr := parseDeadline(*in.Deadline)
		if ferr != nil {
			res.Errors = append(res.Errors, *ferr)
		}
		u.Deadline = d
	}
	if res.HasErrors() {
		return u, apierr.Validation(res.Errors)
	}

	u.Status = in.Status
	u.Progress = in.Progress
	u.Tags = in.Tags
	return u, nil
}

// nonEmpty sanitizes s and drops it when nothing is left.
func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	clean := htmlsanitize.StripTags(*s)
	if clean == "" {
		return nil
	}
	return &clean
}

var deadlineLayouts = []string{time.RFC3339, "2006-01-02"}

// parseDeadline accepts an RFC 3339 timestamp or a calendar date. "" is no deadline.
func parseDeadline(s string) (*time.Time, *inputval.FieldError) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, &inputval.FieldError{Field: "deadline", Message: "Deadline must be a valid date"}
}
