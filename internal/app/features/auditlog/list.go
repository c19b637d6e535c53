// internal/app/features/auditlog/list.go
package auditlog

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/codestreak/internal/app/store/audit"
	"github.com/dalemusser/codestreak/internal/app/system/apierr"
	"github.com/dalemusser/codestreak/internal/app/system/inputval"
	"github.com/dalemusser/codestreak/internal/app/system/paging"
	"github.com/dalemusser/codestreak/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// defaultFailedWindow is how far back /audit/failed-logins looks by default.
const defaultFailedWindow = 24 * time.Hour

// ServeList handles GET /audit.
//
// Query parameters: category, event_type, user_id, start_date and end_date
// (YYYY-MM-DD, end inclusive), limit, skip.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	filter, ferrs := parseFilter(r)
	if len(ferrs) > 0 {
		h.Errors.Write(w, r, apierr.Validation(ferrs))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "audit log list")
	defer cancel()

	events, err := h.Events.Query(ctx, filter)
	if err != nil {
		h.Errors.Write(w, r, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err))
		return
	}
	total, err := h.Events.CountByFilter(ctx, filter)
	if err != nil {
		h.Errors.Write(w, r, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err))
		return
	}

	apierr.WriteJSON(w, http.StatusOK, listResponse{
		Items: h.items(ctx, events),
		Total: total,
		Limit: filter.Limit,
		Skip:  filter.Offset,
	})
}

// ServeFailedLogins handles GET /audit/failed-logins?since=2h.
func (h *Handler) ServeFailedLogins(w http.ResponseWriter, r *http.Request) {
	window := defaultFailedWindow
	if s := query.Get(r, "since"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			h.Errors.Write(w, r, apierr.Validation([]inputval.FieldError{
				{Field: "since", Message: "since must be a positive duration such as 2h"},
			}))
			return
		}
		window = d
	}
	page := paging.Parse(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "audit failed logins")
	defer cancel()

	events, err := h.Events.GetFailedLogins(ctx, time.Now().UTC().Add(-window), page.Limit)
	if err != nil {
		h.Errors.Write(w, r, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err))
		return
	}
	apierr.WriteJSON(w, http.StatusOK, h.items(ctx, events))
}

func parseFilter(r *http.Request) (audit.QueryFilter, []inputval.FieldError) {
	page := paging.Parse(r)
	filter := audit.QueryFilter{
		Category:  strings.TrimSpace(query.Get(r, "category")),
		EventType: strings.TrimSpace(query.Get(r, "event_type")),
		Limit:     page.Limit,
		Offset:    page.Skip,
	}
	var errs []inputval.FieldError

	if filter.Category != "" && eventTypesForCategory(filter.Category) == nil {
		errs = append(errs, inputval.FieldError{Field: "category", Message: "category must be auth or admin"})
	}
	if filter.EventType != "" && !knownEventType(filter.Category, filter.EventType) {
		errs = append(errs, inputval.FieldError{Field: "event_type", Message: "event_type is not a known event"})
	}
	if s := query.Get(r, "user_id"); s != "" {
		id, err := primitive.ObjectIDFromHex(s)
		if err != nil {
			errs = append(errs, inputval.FieldError{Field: "user_id", Message: "user_id is not a valid id"})
		} else {
			filter.UserID = &id
		}
	}
	if s := query.Get(r, "start_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			errs = append(errs, inputval.FieldError{Field: "start_date", Message: "start_date must be YYYY-MM-DD"})
		} else {
			filter.StartTime = &t
		}
	}
	if s := query.Get(r, "end_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			errs = append(errs, inputval.FieldError{Field: "end_date", Message: "end_date must be YYYY-MM-DD"})
		} else {
			// End of day
			endOfDay := t.Add(24*time.Hour - time.Nanosecond)
			filter.EndTime = &endOfDay
		}
	}
	return filter, errs
}

// items converts events and resolves user names in one batch. A failed
// lookup leaves names blank rather than failing the listing.
func (h *Handler) items(ctx context.Context, events []audit.Event) []listItem {
	userIDs := make(map[primitive.ObjectID]struct{})
	for _, e := range events {
		if e.ActorID != nil {
			userIDs[*e.ActorID] = struct{}{}
		}
		if e.UserID != nil {
			userIDs[*e.UserID] = struct{}{}
		}
	}

	names := make(map[primitive.ObjectID]string, len(userIDs))
	if len(userIDs) > 0 && h.Users != nil {
		ids := make([]primitive.ObjectID, 0, len(userIDs))
		for id := range userIDs {
			ids = append(ids, id)
		}
		users, err := h.Users.GetByIDs(ctx, ids)
		if err != nil {
			h.Log.Warn("failed to fetch user names for audit log", zap.Error(err))
		}
		for _, u := range users {
			names[u.ID] = u.Name
		}
	}

	items := make([]listItem, 0, len(events))
	for _, e := range events {
		item := listItem{
			ID:            e.ID.Hex(),
			Timestamp:     e.Timestamp,
			Category:      e.Category,
			EventType:     e.EventType,
			IP:            e.IP,
			Success:       e.Success,
			FailureReason: e.FailureReason,
			Details:       e.Details,
		}
		if e.UserID != nil {
			item.UserID = e.UserID.Hex()
			item.UserName = names[*e.UserID]
		}
		if e.ActorID != nil {
			item.ActorID = e.ActorID.Hex()
			item.ActorName = names[*e.ActorID]
		}
		items = append(items, item)
	}
	return items
}
