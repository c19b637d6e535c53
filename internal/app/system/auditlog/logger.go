// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/dalemusser/codestreak/internal/app/store/audit"
	"github.com/dalemusser/codestreak/internal/app/system/metrics"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Destinations for a category of events.
const (
	ModeAll = "all" // MongoDB + zap
	ModeDB  = "db"  // MongoDB only
	ModeLog = "log" // zap only
	ModeOff = "off"
)

// ValidMode reports whether s names a destination.
func ValidMode(s string) bool {
	switch s {
	case ModeAll, ModeDB, ModeLog, ModeOff:
		return true
	}
	return false
}

// Config holds audit logging configuration. An empty value means ModeAll.
type Config struct {
	// Auth covers register, login, social login and logout.
	Auth string
	// Admin covers permission grants and admin bootstrap.
	Admin string
}

// Recorder persists events. *audit.Store satisfies it.
type Recorder interface {
	Log(ctx context.Context, event audit.Event) error
}

// Logger records audit events to MongoDB and zap per Config and counts auth
// outcomes in Prometheus.
type Logger struct {
	store   Recorder
	zapLog  *zap.Logger
	config  Config
	metrics *metrics.Metrics
}

// New creates a new audit Logger. store and m may be nil.
func New(store Recorder, zapLog *zap.Logger, config Config, m *metrics.Metrics) *Logger {
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	return &Logger{
		store:   store,
		zapLog:  zapLog,
		config:  config,
		metrics: m,
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Client metadata                                                             |
*─────────────────────────────────────────────────────────────────────────────*/

// Client is where a request came from.
type Client struct {
	IP        string
	UserAgent string
}

type clientKey struct{}

// WithClient stores c in ctx for later audit calls.
func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// ClientFrom returns the Client stored by WithClient, or the zero Client.
func ClientFrom(ctx context.Context) Client {
	c, _ := ctx.Value(clientKey{}).(Client)
	return c
}

// ClientFromRequest extracts the caller address from r.RemoteAddr. Proxy
// headers are not read here; middleware.RealIP runs first and decides
// whether to trust them.
func ClientFromRequest(r *http.Request) Client {
	return Client{IP: clientIP(r), UserAgent: r.UserAgent()}
}

// Middleware attaches the request's Client to its context so the auth flow
// can audit without seeing the *http.Request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithClient(r.Context(), ClientFromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

/*─────────────────────────────────────────────────────────────────────────────*
| Core                                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

func (l *Logger) modeFor(category string) string {
	var setting string
	switch category {
	case audit.CategoryAuth:
		setting = l.config.Auth
	case audit.CategoryAdmin:
		setting = l.config.Admin
	}
	if setting == "" {
		return ModeAll
	}
	return setting
}

// Log records an audit event. A nil Logger is a no-op. Client metadata is
// filled from ctx when the event carries none. Storage failures are logged,
// never returned: auditing must not fail the request.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}
	if event.IP == "" && event.UserAgent == "" {
		c := ClientFrom(ctx)
		event.IP, event.UserAgent = c.IP, c.UserAgent
	}
	if event.Category == audit.CategoryAuth {
		l.metrics.AuthEvent(event.EventType, event.Success)
	}

	mode := l.modeFor(event.Category)
	if mode == ModeOff {
		return
	}
	if mode == ModeAll || mode == ModeLog {
		l.logToZap(event)
	}
	if (mode == ModeAll || mode == ModeDB) && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

func authEvent(eventType string, userID *primitive.ObjectID, success bool, details map[string]string) audit.Event {
	return audit.Event{
		Category:  audit.CategoryAuth,
		EventType: eventType,
		UserID:    userID,
		Success:   success,
		Details:   details,
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Authentication events                                                       |
*─────────────────────────────────────────────────────────────────────────────*/

// RegisterSuccess logs a new password account.
func (l *Logger) RegisterSuccess(ctx context.Context, userID primitive.ObjectID, email string) {
	l.Log(ctx, authEvent(audit.EventRegisterSuccess, &userID, true, map[string]string{"email": email}))
}

// RegisterFailedDuplicate logs a registration for an email already in use.
func (l *Logger) RegisterFailedDuplicate(ctx context.Context, email string) {
	e := authEvent(audit.EventRegisterFailedDuplicate, nil, false, map[string]string{"email": email})
	e.FailureReason = "duplicate email"
	l.Log(ctx, e)
}

// LoginSuccess logs a successful sign-in through provider ("password", "google").
func (l *Logger) LoginSuccess(ctx context.Context, userID primitive.ObjectID, provider string) {
	eventType := audit.EventLoginSuccess
	if provider != "password" {
		eventType = audit.EventSocialLoginSuccess
	}
	l.Log(ctx, authEvent(eventType, &userID, true, map[string]string{"provider": provider}))
}

// LoginFailedUserNotFound logs a password login for an unknown email.
func (l *Logger) LoginFailedUserNotFound(ctx context.Context, attemptedEmail string) {
	e := authEvent(audit.EventLoginFailedUserNotFound, nil, false, map[string]string{"attempted_email": attemptedEmail})
	e.FailureReason = "user not found"
	l.Log(ctx, e)
}

// LoginFailedWrongPassword logs a password mismatch.
func (l *Logger) LoginFailedWrongPassword(ctx context.Context, userID primitive.ObjectID) {
	e := authEvent(audit.EventLoginFailedWrongPassword, &userID, false, nil)
	e.FailureReason = "wrong password"
	l.Log(ctx, e)
}

// SocialLoginFailed logs a rejected provider assertion.
func (l *Logger) SocialLoginFailed(ctx context.Context, provider, reason string) {
	e := authEvent(audit.EventSocialLoginFailed, nil, false, map[string]string{"provider": provider})
	e.FailureReason = reason
	l.Log(ctx, e)
}

// SocialUserProvisioned logs an account created on first social sign-in.
func (l *Logger) SocialUserProvisioned(ctx context.Context, userID primitive.ObjectID, provider string) {
	l.Log(ctx, authEvent(audit.EventSocialUserProvisioned, &userID, true, map[string]string{"provider": provider}))
}

// SocialAccountLinked logs a provider linkage backfilled onto an existing account.
func (l *Logger) SocialAccountLinked(ctx context.Context, userID primitive.ObjectID, provider string) {
	l.Log(ctx, authEvent(audit.EventSocialAccountLinked, &userID, true, map[string]string{"provider": provider}))
}

// Logout logs a logout; revoked tells whether the token was denylisted.
func (l *Logger) Logout(ctx context.Context, userID primitive.ObjectID, revoked bool) {
	details := map[string]string{"token_revoked": "false"}
	if revoked {
		details["token_revoked"] = "true"
	}
	l.Log(ctx, authEvent(audit.EventLogout, &userID, true, details))
}

/*─────────────────────────────────────────────────────────────────────────────*
| Admin events                                                                |
*─────────────────────────────────────────────────────────────────────────────*/

// PermissionsChanged logs an admin replacing a user's capability set.
func (l *Logger) PermissionsChanged(ctx context.Context, actorID, targetUserID primitive.ObjectID, perms []string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventPermissionsChanged,
		UserID:    &targetUserID,
		ActorID:   &actorID,
		Success:   true,
		Details:   map[string]string{"permissions": strings.Join(perms, ",")},
	})
}

// AdminBootstrapped logs the startup promotion of the configured admin email.
func (l *Logger) AdminBootstrapped(ctx context.Context, userID primitive.ObjectID, email string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventAdminBootstrapped,
		UserID:    &userID,
		Success:   true,
		Details:   map[string]string{"email": email},
	})
}
