// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/codestreak/internal/app/system/auditlog"
	"github.com/dalemusser/codestreak/internal/app/system/auth"
	"github.com/dalemusser/codestreak/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// devJWTSecret is the built-in default; ValidateConfig refuses it in prod.
const devJWTSecret = "dev-only-change-me-please-0123456789ABCDEF"

// appConfigKeys defines the configuration keys for CodeStreak.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, jwt_secret, etc.
//   - Environment variables: CODESTREAK_MONGO_URI, CODESTREAK_JWT_SECRET, etc.
//   - Command-line flags: --mongo_uri, --jwt_secret, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "codestreak", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Tokens
	{Name: "jwt_secret", Default: devJWTSecret, Desc: "Token signing secret (must be strong in production)"},
	{Name: "token_header", Default: auth.DefaultHeader, Desc: "Request header carrying the session token"},
	{Name: "bcrypt_cost", Default: bcrypt.DefaultCost, Desc: "bcrypt work factor for password hashes"},

	// HTTP surface
	{Name: "api_prefix", Default: "/api", Desc: "Path prefix for all API routes"},
	{Name: "base_url", Default: "http://localhost:8080", Desc: "Public URL of this API (OAuth callback host)"},
	{Name: "frontend_url", Default: "http://localhost:3000", Desc: "Frontend URL the Google code flow returns to"},
	{Name: "cors_origins", Default: "http://localhost:3000", Desc: "Comma-separated allowed CORS origins"},
	{Name: "rate_limit_auth", Default: 20, Desc: "Requests per minute per IP on register/login/social routes"},

	// Google OAuth configuration
	{Name: "google_client_id", Default: "", Desc: "Google OAuth2 client ID (ID token audience)"},
	{Name: "google_client_secret", Default: "", Desc: "Google OAuth2 client secret (enables the redirect flow)"},

	// Token revocation
	{Name: "revocation_redis_addr", Default: "", Desc: "Redis address for logout revocation (blank disables)"},
	{Name: "revocation_redis_password", Default: "", Desc: "Redis password"},
	{Name: "revocation_redis_db", Default: 0, Desc: "Redis database number"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	// Store timeouts
	{Name: "timeout_ping", Default: "2s", Desc: "Health check ping timeout"},
	{Name: "timeout_short", Default: "5s", Desc: "Single-document store call timeout"},
	{Name: "timeout_medium", Default: "10s", Desc: "Multi-step and outbound call timeout"},

	// Background workers
	{Name: "state_cleanup_interval", Default: "5m", Desc: "How often expired OAuth states are swept"},

	// Admin bootstrap
	{Name: "admin_email", Default: "", Desc: "Email of the admin user (promotes/creates on startup)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles .env files, config files,
// environment variables (WAFFLE_* for core, CODESTREAK_* for app) and
// flags, merged with precedence flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "CODESTREAK", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		JWTSecret:   appValues.String("jwt_secret"),
		TokenHeader: appValues.String("token_header"),
		BcryptCost:  appValues.Int("bcrypt_cost"),

		APIPrefix:     normalizePrefix(appValues.String("api_prefix")),
		BaseURL:       strings.TrimRight(appValues.String("base_url"), "/"),
		FrontendURL:   strings.TrimRight(appValues.String("frontend_url"), "/"),
		CORSOrigins:   splitList(appValues.String("cors_origins")),
		RateLimitAuth: appValues.Int("rate_limit_auth"),

		GoogleClientID:     appValues.String("google_client_id"),
		GoogleClientSecret: appValues.String("google_client_secret"),

		RevocationRedisAddr:     appValues.String("revocation_redis_addr"),
		RevocationRedisPassword: appValues.String("revocation_redis_password"),
		RevocationRedisDB:       appValues.Int("revocation_redis_db"),

		AuditLogAuth:  appValues.String("audit_log_auth"),
		AuditLogAdmin: appValues.String("audit_log_admin"),

		TimeoutPing:   appValues.Duration("timeout_ping", timeouts.DefaultPing),
		TimeoutShort:  appValues.Duration("timeout_short", timeouts.DefaultShort),
		TimeoutMedium: appValues.Duration("timeout_medium", timeouts.DefaultMedium),

		StateCleanupInterval: appValues.Duration("state_cleanup_interval", 5*time.Minute),

		AdminEmail: appValues.String("admin_email"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// It catches configuration errors before any connection is attempted:
// a malformed MongoDB URI, a missing or default signing secret in prod,
// unknown audit modes and an unusable bcrypt cost.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	if strings.TrimSpace(appCfg.JWTSecret) == "" {
		return errors.New("jwt_secret must be set")
	}
	if coreCfg.Env == "prod" && appCfg.JWTSecret == devJWTSecret {
		return errors.New("jwt_secret must be changed from the development default in prod")
	}

	if appCfg.BcryptCost < bcrypt.MinCost || appCfg.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	for name, mode := range map[string]string{"audit_log_auth": appCfg.AuditLogAuth, "audit_log_admin": appCfg.AuditLogAdmin} {
		if !auditlog.ValidMode(mode) {
			return fmt.Errorf("%s must be one of all, db, log, off (got %q)", name, mode)
		}
	}

	if appCfg.GoogleClientSecret != "" {
		if appCfg.GoogleClientID == "" {
			return errors.New("google_client_secret requires google_client_id")
		}
		if _, err := url.ParseRequestURI(appCfg.BaseURL); err != nil {
			return fmt.Errorf("base_url must be an absolute URL for the Google callback: %w", err)
		}
	}

	if appCfg.RateLimitAuth <= 0 {
		return errors.New("rate_limit_auth must be positive")
	}
	if strings.TrimSpace(appCfg.TokenHeader) == "" {
		return errors.New("token_header must be set")
	}
	if appCfg.TimeoutPing <= 0 || appCfg.TimeoutShort <= 0 || appCfg.TimeoutMedium <= 0 {
		return fmt.Errorf("timeouts must be positive (ping=%s short=%s medium=%s)",
			appCfg.TimeoutPing, appCfg.TimeoutShort, appCfg.TimeoutMedium)
	}
	if appCfg.StateCleanupInterval <= 0 {
		return errors.New("state_cleanup_interval must be positive")
	}

	return nil
}

// normalizePrefix returns "/x" for "x", "/x/" and "/x"; "" and "/" mean root.
func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return "/"
	}
	return "/" + p
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
