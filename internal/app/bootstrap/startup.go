// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dalemusser/codestreak/internal/app/store/audit"
	userstore "github.com/dalemusser/codestreak/internal/app/store/users"
	"github.com/dalemusser/codestreak/internal/app/system/auditlog"
	"github.com/dalemusser/codestreak/internal/app/system/metrics"
	"github.com/dalemusser/codestreak/internal/app/system/normalize"
	"github.com/dalemusser/codestreak/internal/app/system/passwords"
	"github.com/dalemusser/codestreak/internal/app/system/timeouts"
	"github.com/dalemusser/codestreak/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Ping:   appCfg.TimeoutPing,
		Short:  appCfg.TimeoutShort,
		Medium: appCfg.TimeoutMedium,
	})

	al := newAuditLogger(appCfg, deps, nil, logger)
	hasher := passwords.New(appCfg.BcryptCost)
	if err := ensureAdmin(ctx, deps, appCfg.AdminEmail, hasher, al, logger); err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}

	// The first sweep clears any backlog left from downtime.
	if deps.StateCleanup != nil {
		deps.StateCleanup.Start()
	}
	return nil
}

// newAuditLogger builds the audit logger shared by startup and handlers.
func newAuditLogger(appCfg AppConfig, deps DBDeps, m *metrics.Metrics, logger *zap.Logger) *auditlog.Logger {
	return auditlog.New(audit.New(deps.MongoDatabase), logger, auditlog.Config{
		Auth:  appCfg.AuditLogAuth,
		Admin: appCfg.AuditLogAdmin,
	}, m)
}

// ensureAdmin makes the configured email an admin. An existing account is
// promoted; otherwise one is created with an unusable password so the owner
// signs in with Google. A blank email is a no-op.
func ensureAdmin(ctx context.Context, deps DBDeps, email string, hasher *passwords.Hasher, al *auditlog.Logger, logger *zap.Logger) error {
	email = normalize.Email(email)
	if email == "" {
		return nil
	}
	users := userstore.New(deps.MongoDatabase)

	u, err := users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if u.Role.IsAdmin() {
			logger.Debug("admin already present", zap.String("email", email))
			return nil
		}
		if err := users.SetRole(ctx, u.ID, models.RoleAdmin); err != nil {
			return err
		}
		logger.Info("promoted existing user to admin", zap.String("email", email))
		al.AdminBootstrapped(ctx, u.ID, email)
		return nil

	case errors.Is(err, userstore.ErrNotFound):
		hash, err := hasher.Unusable()
		if err != nil {
			return err
		}
		created, err := users.Create(ctx, models.User{
			Name:         strings.SplitN(email, "@", 2)[0],
			Email:        email,
			PasswordHash: hash,
			Role:         models.RoleAdmin,
		})
		if errors.Is(err, userstore.ErrDuplicateEmail) {
			// Another instance won the race on a shared database.
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("created admin user", zap.String("email", email))
		al.AdminBootstrapped(ctx, created.ID, email)
		return nil

	default:
		return err
	}
}
