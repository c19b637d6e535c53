// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/codestreak/internal/app/system/workers"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// Redis backs token revocation; nil when revocation_redis_addr is blank.
	Redis *redis.Client

	// StateCleanup sweeps expired OAuth states; started by Startup and
	// stopped by Shutdown.
	StateCleanup *workers.StateCleanup
}
