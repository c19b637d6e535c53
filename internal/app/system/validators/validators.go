// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/codestreak/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates the app's collections when missing and attaches
// JSON-Schema validators. Deployments without collMod support (some
// DocumentDB versions) are logged and skipped.
func EnsureAll(ctx context.Context, db *mongo.Database, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	existing := map[string]bool{}
	if names, err := db.ListCollectionNames(ctx, bson.M{}); err == nil {
		for _, n := range names {
			existing[n] = true
		}
	}

	var problems []string
	ensure := func(coll string, schema bson.M) {
		l := log.With(zap.String("collection", coll))
		if !existing[coll] {
			if err := db.CreateCollection(ctx, coll); err != nil && !isNamespaceExistsErr(err) {
				problems = append(problems, coll+": "+err.Error())
				return
			}
			l.Info("created collection")
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			if isUnsupported(err) {
				l.Info("validator skipped (unsupported)")
				return
			}
			problems = append(problems, coll+": "+err.Error())
			return
		}
		l.Debug("validator ensured")
	}

	ensure("users", usersSchema())
	ensure("projects", projectsSchema())
	ensure("audit_events", nil)
	ensure("oauth_states", nil)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	return db.RunCommand(ctx, cmd).Err()
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 48 {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

// isUnsupported covers "no such command" (59) and "not implemented" (115).
func isUnsupported(err error) bool {
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || ce.Code == 115) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "no such command") ||
		strings.Contains(s, "not implemented") ||
		strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

func roleEnum() bson.A {
	out := bson.A{}
	for _, r := range models.AllRoles {
		out = append(out, string(r))
	}
	return out
}

func usersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "email", "password", "role"},
			"properties": bson.M{
				"name":             bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"name_ci":          bson.M{"bsonType": "string"},
				"email":            bson.M{"bsonType": "string", "minLength": 3, "pattern": "^[^A-Z\\s]+@[^A-Z\\s]+$"},
				"password":         bson.M{"bsonType": "string", "minLength": 1},
				"role":             bson.M{"enum": roleEnum()},
				"auth_provider":    bson.M{"bsonType": "string"},
				"auth_provider_id": bson.M{"bsonType": "string"},
				"permissions":      bson.M{"bsonType": "array", "items": bson.M{"bsonType": "string"}},
			},
		},
	}
}

func projectsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user", "title", "status"},
			"properties": bson.M{
				"user":     bson.M{"bsonType": "objectId"},
				"title":    bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"status":   bson.M{"enum": bson.A{models.ProjectPlanning, models.ProjectInProgress, models.ProjectCompleted}},
				"progress": bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0, "maximum": 100},
				"tags":     bson.M{"bsonType": "array", "items": bson.M{"bsonType": "string"}},
			},
		},
	}
}
