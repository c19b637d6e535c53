// internal/app/features/auditlog/handler.go
package auditlog

import (
	"context"
	"time"

	"github.com/dalemusser/codestreak/internal/app/store/audit"
	"github.com/dalemusser/codestreak/internal/app/system/apierr"
	"github.com/dalemusser/codestreak/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Events is the audit store surface the viewer reads. *audit.Store satisfies it.
type Events interface {
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
	CountByFilter(ctx context.Context, filter audit.QueryFilter) (int64, error)
	GetFailedLogins(ctx context.Context, since time.Time, limit int64) ([]audit.Event, error)
}

// Names resolves user ids for display. *userstore.Store satisfies it.
type Names interface {
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
}

type Handler struct {
	Events Events
	Users  Names
	Errors *apierr.Writer
	Log    *zap.Logger
}

// NewHandler constructs an audit log viewer.
func NewHandler(events Events, users Names, errs *apierr.Writer, logger *zap.Logger) *Handler {
	return &Handler{Events: events, Users: users, Errors: errs, Log: logger}
}
