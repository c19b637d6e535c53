// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// WAFFLE's CoreConfig covers the framework-level settings (ports, TLS,
// logging, env). Everything CodeStreak itself needs lives here and is passed
// to every lifecycle hook.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session tokens
	JWTSecret   string // HMAC key for signing tokens (must be strong in production)
	TokenHeader string // request header carrying the raw token (default: x-auth-token)
	BcryptCost  int

	// HTTP surface
	APIPrefix     string   // mount point for every API route (default: /api)
	BaseURL       string   // public URL of this API, used for the OAuth callback
	FrontendURL   string   // where the code flow sends the browser after sign-in
	CORSOrigins   []string // allowed browser origins
	RateLimitAuth int      // requests per minute per IP on the public auth routes

	// Google sign-in
	GoogleClientID     string
	GoogleClientSecret string // empty disables the server-side code flow

	// Optional Redis-backed token revocation
	RevocationRedisAddr     string
	RevocationRedisPassword string
	RevocationRedisDB       int

	// Audit logging: "all", "db", "log" or "off"
	AuditLogAuth  string
	AuditLogAdmin string

	// Store timeouts
	TimeoutPing   time.Duration
	TimeoutShort  time.Duration
	TimeoutMedium time.Duration

	StateCleanupInterval time.Duration

	// Admin bootstrap
	AdminEmail string // promoted (or created) as admin on startup
}

// RevocationEnabled reports whether logout should revoke tokens.
func (c AppConfig) RevocationEnabled() bool {
	return c.RevocationRedisAddr != ""
}
