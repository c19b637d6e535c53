// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// AuditRetention is how long audit events are kept before the TTL monitor removes them.
const AuditRetention = 180 * 24 * time.Hour

/*
EnsureAll is called at startup. Each collection set is reconciled
independently and idempotently; problems are aggregated so a single bad
index does not hide the others and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	sets := []struct {
		coll   string
		models []mongo.IndexModel
	}{
		{"users", usersIndexes()},
		{"projects", projectsIndexes()},
		{"audit_events", auditIndexes()},
		{"oauth_states", oauthStateIndexes()},
	}

	var problems []string
	for _, s := range sets {
		r := reconciler{coll: db.Collection(s.coll), log: log.With(zap.String("collection", s.coll))}
		if err := r.ensure(ctx, s.models); err != nil {
			problems = append(problems, s.coll+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func usersIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		// Registration and social linking both rely on this for uniqueness.
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_users_email"),
		},
		// Admin user list ordering.
		{
			Keys:    bson.D{{Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_users_nameci_id"),
		},
		// Lookup by provider subject; only linked users are indexed.
		{
			Keys: bson.D{{Key: "auth_provider", Value: 1}, {Key: "auth_provider_id", Value: 1}},
			Options: options.Index().SetName("idx_users_provider_subject").
				SetPartialFilterExpression(bson.M{"auth_provider_id": bson.M{"$type": "string"}}),
		},
	}
}

func projectsIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		// Owner's project list, newest first.
		{
			Keys:    bson.D{{Key: "user", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_projects_user_created"),
		},
	}
}

func auditIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_ts").SetExpireAfterSeconds(int32(AuditRetention.Seconds())),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_user_ts"),
		},
		{
			Keys:    bson.D{{Key: "event_type", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_type_ts"),
		},
	}
}

func oauthStateIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "state", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_oauth_state"),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_oauth_ttl"),
		},
	}
}

/* -------------------------------------------------------------------------- */
/* Reconcile a desired index set against what exists                           */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name        string `bson:"name"`
	Key         bson.D `bson:"key"`
	Unique      *bool  `bson:"unique,omitempty"`
	ExpireAfter *int32 `bson:"expireAfterSeconds,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func boolVal(p *bool) bool { return p != nil && *p }

func int32Val(p *int32) int32 {
	if p == nil {
		return -1
	}
	return *p
}

// isDuplicateKeyErr reports a unique build that failed on existing data.
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	return mongo.IsDuplicateKeyError(err) || strings.Contains(err.Error(), "E11000")
}

type reconciler struct {
	coll *mongo.Collection
	log  *zap.Logger
}

func (r reconciler) existing(ctx context.Context) (map[string]existingIndex, error) {
	cur, err := r.coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := map[string]existingIndex{}
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			r.log.Warn("failed to decode existing index", zap.Error(err))
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out, cur.Err()
}

// ensure creates missing indexes, reuses matching ones, and drops and
// recreates any index whose keys match but whose name or options differ.
func (r reconciler) ensure(ctx context.Context, models []mongo.IndexModel) error {
	have, err := r.existing(ctx)
	if err != nil {
		// A collection that does not exist yet has no indexes to list.
		have = map[string]existingIndex{}
	}

	var errs []string
	for _, m := range models {
		o := m.Options
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()
		fields := []zap.Field{zap.String("name", *o.Name), zap.String("keys", sig)}

		if ex, ok := have[sig]; ok {
			same := ex.Name == *o.Name &&
				boolVal(ex.Unique) == boolVal(o.Unique) &&
				int32Val(ex.ExpireAfter) == int32Val(o.ExpireAfterSeconds)
			if same {
				r.log.Debug("reusing existing index", fields...)
				continue
			}
			r.log.Info("index differs, recreating", append(fields, zap.String("existing", ex.Name))...)
			if _, err := r.coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s: drop %s failed: %v", *o.Name, ex.Name, err))
				continue
			}
		}

		if _, err := r.coll.Indexes().CreateOne(ctx, m); err != nil {
			if isDuplicateKeyErr(err) && boolVal(o.Unique) {
				errs = append(errs, fmt.Sprintf("%s: cannot create unique index (duplicates present on %s)", *o.Name, sig))
			} else {
				errs = append(errs, fmt.Sprintf("%s: %v", *o.Name, err))
			}
			r.log.Warn("index ensure failed", append(fields, zap.Error(err))...)
			continue
		}
		r.log.Info("index ensured", append(fields, zap.Duration("took", time.Since(start)))...)
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
