package indexes_test

import (
	"testing"

	"github.com/dalemusser/codestreak/internal/app/system/indexes"
	"github.com/dalemusser/codestreak/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func indexNames(t *testing.T, db *mongo.Database, coll string) map[string]bson.M {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cur, err := db.Collection(coll).Indexes().List(ctx)
	if err != nil {
		t.Fatalf("List indexes failed: %v", err)
	}
	defer cur.Close(ctx)

	out := map[string]bson.M{}
	for cur.Next(ctx) {
		var idx bson.M
		if err := cur.Decode(&idx); err != nil {
			continue
		}
		if name, ok := idx["name"].(string); ok {
			out[name] = idx
		}
	}
	return out
}

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("first EnsureAll failed: %v", err)
	}
	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("second EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_CreatesIndexes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db, nil); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	want := map[string][]string{
		"users":        {"uniq_users_email", "idx_users_nameci_id", "idx_users_provider_subject"},
		"projects":     {"idx_projects_user_created"},
		"audit_events": {"idx_audit_ts", "idx_audit_user_ts", "idx_audit_type_ts"},
		"oauth_states": {"uniq_oauth_state", "idx_oauth_ttl"},
	}
	for coll, names := range want {
		have := indexNames(t, db, coll)
		for _, n := range names {
			if _, ok := have[n]; !ok {
				t.Errorf("%s: missing index %s", coll, n)
			}
		}
	}

	if u := indexNames(t, db, "users")["uniq_users_email"]; u["unique"] != true {
		t.Errorf("uniq_users_email should be unique, got %v", u)
	}
}

func TestEnsureAll_RenamesMisnamedIndex(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := db.Collection("users").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_1_legacy"),
	})
	if err != nil {
		t.Fatalf("create legacy index: %v", err)
	}

	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	have := indexNames(t, db, "users")
	if _, ok := have["email_1_legacy"]; ok {
		t.Error("legacy index should have been replaced")
	}
	if _, ok := have["uniq_users_email"]; !ok {
		t.Error("expected uniq_users_email")
	}
}

func TestEnsureAll_ReportsDuplicateEmails(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	users := db.Collection("users")
	_, _ = users.InsertOne(ctx, bson.M{"email": "dup@example.com"})
	_, _ = users.InsertOne(ctx, bson.M{"email": "dup@example.com"})

	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err == nil {
		t.Fatal("expected EnsureAll to fail when duplicates exist")
	}
}
