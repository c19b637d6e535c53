// internal/app/bootstrap/middleware.go
package bootstrap

import (
	"net/http"
	"time"

	"github.com/dalemusser/codestreak/internal/app/system/apierr"
	"github.com/dalemusser/codestreak/internal/app/system/auditlog"
	"github.com/dalemusser/codestreak/internal/app/system/metrics"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

// middlewareStack returns the global chain, outermost first.
func middlewareStack(env string, appCfg AppConfig, m *metrics.Metrics, errs *apierr.Writer, logger *zap.Logger) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         env != "prod",
	})

	corsMiddleware := cors.Handler(cors.Options{
		AllowedOrigins: appCfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", appCfg.TokenHeader},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	})

	return []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.RealIP,
		errs.Recoverer,
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					logger.Warn("secure headers blocked request", zap.Error(err))
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		corsMiddleware,
		m.Middleware,
		auditlog.Middleware,
	}
}

// authRateLimit throttles the public credential endpoints per client IP.
func authRateLimit(perMinute int, errs *apierr.Writer) func(http.Handler) http.Handler {
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(errs.TooManyRequestsHandler()),
	)
}
