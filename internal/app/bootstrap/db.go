// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/codestreak/internal/app/store/oauthstate"
	"github.com/dalemusser/codestreak/internal/app/system/indexes"
	"github.com/dalemusser/codestreak/internal/app/system/revocation"
	"github.com/dalemusser/codestreak/internal/app/system/validators"
	"github.com/dalemusser/codestreak/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectDB connects to MongoDB and, when configured, the revocation Redis.
// Both are pinged so a bad address fails startup rather than the first request.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	opts := options.Client().
		ApplyURI(appCfg.MongoURI).
		SetMaxPoolSize(appCfg.MongoMaxPoolSize).
		SetMinPoolSize(appCfg.MongoMinPoolSize)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return DBDeps{}, fmt.Errorf("mongo connect: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, appCfg.TimeoutMedium)
	defer cancel()
	if err := client.Ping(pctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return DBDeps{}, fmt.Errorf("mongo ping: %w", err)
	}
	logger.Info("connected to MongoDB", zap.String("database", appCfg.MongoDatabase))

	deps := DBDeps{
		MongoClient:   client,
		MongoDatabase: client.Database(appCfg.MongoDatabase),
	}
	deps.StateCleanup = workers.NewStateCleanup(oauthstate.New(deps.MongoDatabase), logger, appCfg.StateCleanupInterval)

	if appCfg.RevocationEnabled() {
		rdb, err := revocation.Dial(ctx, appCfg.RevocationRedisAddr, appCfg.RevocationRedisPassword, appCfg.RevocationRedisDB)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return DBDeps{}, err
		}
		deps.Redis = rdb
		logger.Info("token revocation enabled", zap.String("redis_addr", appCfg.RevocationRedisAddr))
	} else {
		logger.Info("token revocation disabled; logout is client-side only")
	}

	return deps, nil
}

// EnsureSchema installs collection validators and reconciles indexes.
// Both are idempotent and run on every start.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if err := validators.EnsureAll(ctx, deps.MongoDatabase, logger); err != nil {
		return fmt.Errorf("ensure validators: %w", err)
	}
	if err := indexes.EnsureAll(ctx, deps.MongoDatabase, logger); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	return nil
}
