// internal/app/bootstrap/routes.go
package bootstrap

import (
	"context"
	"net/http"

	accountfeature "github.com/dalemusser/codestreak/internal/app/features/account"
	auditfeature "github.com/dalemusser/codestreak/internal/app/features/auditlog"
	authsocialfeature "github.com/dalemusser/codestreak/internal/app/features/authsocial"
	healthfeature "github.com/dalemusser/codestreak/internal/app/features/health"
	projectsfeature "github.com/dalemusser/codestreak/internal/app/features/projects"
	usersfeature "github.com/dalemusser/codestreak/internal/app/features/users"
	"github.com/dalemusser/codestreak/internal/app/store/audit"
	"github.com/dalemusser/codestreak/internal/app/store/oauthstate"
	projectstore "github.com/dalemusser/codestreak/internal/app/store/projects"
	userstore "github.com/dalemusser/codestreak/internal/app/store/users"
	"github.com/dalemusser/codestreak/internal/app/system/apierr"
	"github.com/dalemusser/codestreak/internal/app/system/auth"
	"github.com/dalemusser/codestreak/internal/app/system/authflow"
	"github.com/dalemusser/codestreak/internal/app/system/authz"
	"github.com/dalemusser/codestreak/internal/app/system/metrics"
	"github.com/dalemusser/codestreak/internal/app/system/passwords"
	"github.com/dalemusser/codestreak/internal/app/system/revocation"
	"github.com/dalemusser/codestreak/internal/app/system/socialauth"
	"github.com/dalemusser/codestreak/internal/app/system/tokens"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup and
// Startup have completed. Every API route is mounted under appCfg.APIPrefix;
// /health and /metrics sit at the root for load balancers and scrapers.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	errs := apierr.NewWriter(logger, coreCfg.Env)
	m := metrics.New()
	al := newAuditLogger(appCfg, deps, m, logger)

	tm, err := tokens.NewManager(appCfg.JWTSecret)
	if err != nil {
		logger.Error("token manager init failed", zap.Error(err))
		return nil, err
	}

	// A nil Denylist keeps logout stateless; the gate then treats it as Nop.
	var deny revocation.Denylist
	if deps.Redis != nil {
		deny = revocation.NewRedis(deps.Redis)
	}

	social, err := socialRegistry(appCfg, logger)
	if err != nil {
		return nil, err
	}

	users := userstore.New(deps.MongoDatabase)
	flow := &authflow.Flow{
		Users:    users,
		Hasher:   passwords.New(appCfg.BcryptCost),
		Tokens:   tm,
		Social:   social,
		Denylist: deny,
		Audit:    al,
		Metrics:  m,
		Log:      logger,
	}

	gate := auth.NewGate(tm, deny, appCfg.TokenHeader, errs, logger)
	az := authz.New(userstore.NewFetcher(deps.MongoDatabase), errs, logger)
	limit := authRateLimit(appCfg.RateLimitAuth, errs)

	r := chi.NewRouter()
	r.Use(middlewareStack(coreCfg.Env, appCfg, m, errs, logger)...)
	r.NotFound(errs.NotFoundHandler())
	r.MethodNotAllowed(errs.MethodNotAllowedHandler())

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, deps.Redis, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	r.Handle("/metrics", m.Handler())

	api := chi.NewRouter()
	api.NotFound(errs.NotFoundHandler())
	api.MethodNotAllowed(errs.MethodNotAllowedHandler())

	// Authentication: password accounts plus provider sign-in under /auth.
	accountHandler := accountfeature.NewHandler(flow, errs, logger)
	authRouter := accountfeature.Routes(accountHandler, gate, limit)

	socialHandler := authsocialfeature.NewHandler(flow, errs,
		oauthstate.New(deps.MongoDatabase),
		googleCodeFlow(appCfg),
		appCfg.FrontendURL, logger)
	authRouter.Mount("/", authsocialfeature.Routes(socialHandler, limit))
	api.Mount("/auth", authRouter)

	projectsHandler := projectsfeature.NewHandler(projectstore.New(deps.MongoDatabase), errs, logger)
	api.Mount("/projects", projectsfeature.Routes(projectsHandler, gate))

	usersHandler := usersfeature.NewHandler(users, al, errs, logger)
	api.Mount("/users", usersfeature.Routes(usersHandler, gate, az))

	auditHandler := auditfeature.NewHandler(audit.New(deps.MongoDatabase), users, errs, logger)
	api.Mount("/audit", auditfeature.Routes(auditHandler, gate, az))

	r.Mount(appCfg.APIPrefix, api)

	logger.Info("routes mounted",
		zap.String("api_prefix", appCfg.APIPrefix),
		zap.Strings("social_providers", social.Providers()),
		zap.Bool("google_code_flow", appCfg.GoogleClientSecret != ""),
		zap.Bool("revocation", deny != nil))
	return r, nil
}

// socialRegistry registers every supported provider. Google verifies ID
// tokens when a client id is configured; Apple and Microsoft always answer
// "not implemented".
func socialRegistry(appCfg AppConfig, logger *zap.Logger) (*socialauth.Registry, error) {
	reg := socialauth.NewRegistry()

	if appCfg.GoogleClientID != "" {
		// The key set fetches lazily and lives as long as the process.
		g, err := socialauth.NewGoogle(context.Background(), appCfg.GoogleClientID)
		if err != nil {
			logger.Error("google verifier init failed", zap.Error(err))
			return nil, err
		}
		reg.Register("google", g)
	} else {
		logger.Warn("google_client_id is blank; Google sign-in is disabled")
		reg.Register("google", socialauth.Unimplemented{})
	}
	reg.Register("apple", socialauth.Unimplemented{})
	reg.Register("microsoft", socialauth.Unimplemented{})
	return reg, nil
}

// googleCodeFlow returns the redirect-flow client, or nil when it is not
// configured. A nil *oauth2.Config must not be stored in the interface.
func googleCodeFlow(appCfg AppConfig) authsocialfeature.OAuthClient {
	redirect := appCfg.BaseURL + joinPath(appCfg.APIPrefix, "/auth/google/callback")
	cfg := authsocialfeature.GoogleOAuthConfig(appCfg.GoogleClientID, appCfg.GoogleClientSecret, redirect)
	if cfg == nil {
		return nil
	}
	return cfg
}

func joinPath(prefix, p string) string {
	if prefix == "/" {
		return p
	}
	return prefix + p
}
