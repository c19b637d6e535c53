package userstore

import (
	"context"
	"errors"

	"github.com/dalemusser/codestreak/internal/app/system/authz"
	"github.com/dalemusser/codestreak/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Fetcher implements authz.PermissionSource. It loads a user's permission
// set fresh on each check, so grants and revocations take effect on the
// next request.
type Fetcher struct {
	users *mongo.Collection
}

// NewFetcher creates a Fetcher that queries the given database.
func NewFetcher(db *mongo.Database) *Fetcher {
	return &Fetcher{users: db.Collection("users")}
}

// Permissions returns the capability set of the user with the given id.
// A missing user is authz.ErrUnknownUser.
func (f *Fetcher) Permissions(ctx context.Context, id primitive.ObjectID) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	var doc struct {
		Permissions []string `bson:"permissions"`
	}
	proj := options.FindOne().SetProjection(bson.M{"permissions": 1})
	if err := f.users.FindOne(ctx, bson.M{"_id": id}, proj).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, authz.ErrUnknownUser
		}
		return nil, err
	}
	return doc.Permissions, nil
}
