package auditlog_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/codestreak/internal/app/store/audit"
	"github.com/dalemusser/codestreak/internal/app/system/auditlog"
	"github.com/dalemusser/codestreak/internal/app/system/metrics"
	"github.com/dalemusser/codestreak/internal/testutil"
	"github.com/go-chi/chi/v5/middleware"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// memRecorder keeps events in memory.
type memRecorder struct {
	events []audit.Event
	err    error
}

func (m *memRecorder) Log(_ context.Context, e audit.Event) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func TestLogger_NilLogger(t *testing.T) {
	var logger *auditlog.Logger
	ctx := context.Background()

	logger.Log(ctx, audit.Event{EventType: "test"})
	logger.LoginSuccess(ctx, primitive.NewObjectID(), "password")
	logger.Logout(ctx, primitive.NewObjectID(), false)
}

func TestLogger_Modes(t *testing.T) {
	tests := []struct {
		mode    string
		wantDB  int
		wantZap int
	}{
		{auditlog.ModeAll, 1, 1},
		{"", 1, 1},
		{auditlog.ModeDB, 1, 0},
		{auditlog.ModeLog, 0, 1},
		{auditlog.ModeOff, 0, 0},
	}
	for _, tt := range tests {
		t.Run("mode="+tt.mode, func(t *testing.T) {
			rec := &memRecorder{}
			core, logs := observer.New(zapcore.InfoLevel)
			logger := auditlog.New(rec, zap.New(core), auditlog.Config{Auth: tt.mode}, nil)

			logger.LoginSuccess(context.Background(), primitive.NewObjectID(), "password")

			if len(rec.events) != tt.wantDB {
				t.Errorf("db events = %d, want %d", len(rec.events), tt.wantDB)
			}
			if n := logs.FilterMessage("audit event").Len(); n != tt.wantZap {
				t.Errorf("zap events = %d, want %d", n, tt.wantZap)
			}
		})
	}
}

func TestLogger_CategoryRouting(t *testing.T) {
	rec := &memRecorder{}
	logger := auditlog.New(rec, zap.NewNop(), auditlog.Config{Auth: auditlog.ModeOff, Admin: auditlog.ModeDB}, nil)
	ctx := context.Background()

	logger.LoginSuccess(ctx, primitive.NewObjectID(), "password")
	logger.PermissionsChanged(ctx, primitive.NewObjectID(), primitive.NewObjectID(), []string{"users.view"})

	if len(rec.events) != 1 {
		t.Fatalf("expected only the admin event, got %d", len(rec.events))
	}
	e := rec.events[0]
	if e.Category != audit.CategoryAdmin || e.EventType != audit.EventPermissionsChanged {
		t.Errorf("unexpected event %+v", e)
	}
	if e.ActorID == nil || e.Details["permissions"] != "users.view" {
		t.Errorf("missing actor or details: %+v", e)
	}
}

func TestLogger_StoreFailureIsLoggedNotReturned(t *testing.T) {
	rec := &memRecorder{err: errors.New("mongo down")}
	core, logs := observer.New(zapcore.ErrorLevel)
	logger := auditlog.New(rec, zap.New(core), auditlog.Config{Auth: auditlog.ModeDB}, nil)

	logger.LoginFailedUserNotFound(context.Background(), "ghost@example.com")

	if logs.FilterMessage("failed to store audit event").Len() != 1 {
		t.Error("expected storage failure to be logged")
	}
}

func TestLogger_ClientFromContext(t *testing.T) {
	rec := &memRecorder{}
	logger := auditlog.New(rec, zap.NewNop(), auditlog.Config{}, nil)

	var handlerCtx context.Context
	h := auditlog.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCtx = r.Context()
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "203.0.113.195:51234"
	req.Header.Set("User-Agent", "TestBrowser/1.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	logger.LoginSuccess(handlerCtx, primitive.NewObjectID(), "google")

	if len(rec.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rec.events))
	}
	e := rec.events[0]
	if e.IP != "203.0.113.195" {
		t.Errorf("IP = %q", e.IP)
	}
	if e.UserAgent != "TestBrowser/1.0" {
		t.Errorf("UserAgent = %q", e.UserAgent)
	}
	if e.EventType != audit.EventSocialLoginSuccess {
		t.Errorf("EventType = %q, want social login", e.EventType)
	}
}

func TestClientFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded-for ignored", map[string]string{"X-Forwarded-For": "6.6.6.6"}, "10.0.0.5:12345", "10.0.0.5"},
		{"real-ip ignored", map[string]string{"X-Real-IP": "6.6.6.6"}, "10.0.0.5:12345", "10.0.0.5"},
		{"remote addr port stripped", nil, "10.0.0.5:12345", "10.0.0.5"},
		{"bare address from RealIP", nil, "203.0.113.7", "203.0.113.7"},
		{"ipv6", nil, "[2001:db8::1]:443", "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			req.RemoteAddr = tt.remote
			if got := auditlog.ClientFromRequest(req).IP; got != tt.want {
				t.Errorf("IP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLogger_CountsAuthEvents(t *testing.T) {
	m := metrics.New()
	logger := auditlog.New(nil, zap.NewNop(), auditlog.Config{Auth: auditlog.ModeOff}, m)
	ctx := context.Background()

	logger.LoginFailedWrongPassword(ctx, primitive.NewObjectID())
	logger.LoginFailedWrongPassword(ctx, primitive.NewObjectID())
	logger.PermissionsChanged(ctx, primitive.NewObjectID(), primitive.NewObjectID(), nil)

	n, err := promtest.GatherAndCount(m.Registry(), "codestreak_auth_events_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 1 {
		t.Errorf("auth series = %d, want 1 (admin events are not counted)", n)
	}
}

func TestValidMode(t *testing.T) {
	for _, m := range []string{"all", "db", "log", "off"} {
		if !auditlog.ValidMode(m) {
			t.Errorf("ValidMode(%q) = false", m)
		}
	}
	if auditlog.ValidMode("verbose") {
		t.Error("ValidMode(verbose) = true")
	}
}

func TestLogger_WithMongoStore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	logger := auditlog.New(store, zap.NewNop(), auditlog.Config{Auth: auditlog.ModeDB}, nil)
	logger.Logout(ctx, userID, true)

	events, err := store.GetByUser(ctx, userID, 10)
	if err != nil {
		t.Fatalf("GetByUser failed: %v", err)
	}
	if len(events) != 1 || events[0].Details["token_revoked"] != "true" {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestMiddleware_AfterRealIP(t *testing.T) {
	var got auditlog.Client
	h := middleware.RealIP(auditlog.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = auditlog.ClientFrom(r.Context())
	})))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:443"
	req.Header.Set("X-Real-IP", "198.51.100.4")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got.IP != "198.51.100.4" {
		t.Errorf("IP = %q, want the address RealIP resolved", got.IP)
	}
}
