// Package timeouts holds the deadlines applied to store and network calls
// made while serving a request.
//
//   - Ping: health checks
//   - Short: single-document reads and writes (user lookup, token revocation)
//   - Medium: list queries and multi-step flows (social provisioning)
package timeouts

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPing   = 2 * time.Second
	DefaultShort  = 5 * time.Second
	DefaultMedium = 10 * time.Second
)

// Config overrides the defaults. Zero fields keep the current value.
type Config struct {
	Ping   time.Duration
	Short  time.Duration
	Medium time.Duration
}

var ping, short, medium atomic.Int64

func init() { Reset() }

// Ping is the deadline for health checks.
func Ping() time.Duration { return time.Duration(ping.Load()) }

// Short is the deadline for single-document operations.
func Short() time.Duration { return time.Duration(short.Load()) }

// Medium is the deadline for list queries and multi-step flows.
func Medium() time.Duration { return time.Duration(medium.Load()) }

// Configure is called once from bootstrap before handlers are built.
func Configure(cfg Config) {
	if cfg.Ping > 0 {
		ping.Store(int64(cfg.Ping))
	}
	if cfg.Short > 0 {
		short.Store(int64(cfg.Short))
	}
	if cfg.Medium > 0 {
		medium.Store(int64(cfg.Medium))
	}
}

// Reset restores the defaults. Tests use it after Configure.
func Reset() {
	ping.Store(int64(DefaultPing))
	short.Store(int64(DefaultShort))
	medium.Store(int64(DefaultMedium))
}

// Current reports the active values, for startup logging.
func Current() Config {
	return Config{Ping: Ping(), Short: Short(), Medium: Medium()}
}

// WithTimeout derives a context with the given deadline. The returned cancel
// logs a warning when the deadline, not the caller, ended the operation.
//
//	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "google provisioning")
//	defer cancel()
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if log != nil && ctx.Err() == context.DeadlineExceeded {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
