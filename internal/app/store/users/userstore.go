package userstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/codestreak/internal/app/system/normalize"
	"github.com/dalemusser/codestreak/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrDuplicateEmail is returned when attempting to create a user with an email that already exists.
	ErrDuplicateEmail = errors.New("a user with this email already exists")
	// ErrNotFound is returned when no user matches.
	ErrNotFound = errors.New("user not found")

	errBadRole       = errors.New(`role must be "user"|"admin"`)
	errEmailRequired = errors.New("email is required")
	errHashRequired  = errors.New("password hash is required")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

func one(res *mongo.SingleResult) (*models.User, error) {
	var u models.User
	if err := res.Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return one(s.c.FindOne(ctx, bson.M{"_id": id}))
}

// GetByIDs loads the users with the given ids, skipping any that are gone.
// Credentials are not loaded.
func (s *Store) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	out := []models.User{}
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"password": 0, "auth_provider_id": 0}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetByEmail looks up a user by normalized email. Returns ErrNotFound if absent.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return one(s.c.FindOne(ctx, bson.M{"email": normalize.Email(email)}))
}

// Create inserts a new user after normalizing & validating fields.
// A unique-index violation on email is reported as ErrDuplicateEmail.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	u.ID = primitive.NewObjectID()
	u.Name = normalize.Name(u.Name)
	u.NameCI = text.Fold(u.Name)
	u.Email = normalize.Email(u.Email)
	u.Role = u.Role.OrDefault()
	u.AuthProvider = normalize.Provider(u.AuthProvider)

	if u.Email == "" {
		return models.User{}, errEmailRequired
	}
	if u.PasswordHash == "" {
		return models.User{}, errHashRequired
	}
	if _, err := models.ParseRole(string(u.Role)); err != nil {
		return models.User{}, errBadRole
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return u, nil
}

// LinkProvider records the social provider linkage on a user that has none.
// It returns false when the user is already linked (or does not exist), so
// repeating it is a no-op.
func (s *Store) LinkProvider(ctx context.Context, id primitive.ObjectID, provider, subject string) (bool, error) {
	filter := bson.M{
		"_id": id,
		"$or": bson.A{
			bson.M{"auth_provider_id": bson.M{"$exists": false}},
			bson.M{"auth_provider_id": ""},
		},
	}
	update := bson.M{"$set": bson.M{
		"auth_provider":    normalize.Provider(provider),
		"auth_provider_id": subject,
		"updated_at":       time.Now().UTC(),
	}}

	res, err := s.c.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// SetPermissions replaces the user's capability set and returns the updated user.
// Permissions are normalized (trimmed, lower-cased, de-duplicated).
func (s *Store) SetPermissions(ctx context.Context, id primitive.ObjectID, perms []string) (*models.User, error) {
	perms = normalize.Tags(perms)
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	return one(s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"permissions": perms, "updated_at": time.Now().UTC()}},
		opts,
	))
}

// SetRole changes a user's role.
func (s *Store) SetRole(ctx context.Context, id primitive.ObjectID, role models.Role) error {
	if _, err := models.ParseRole(string(role)); err != nil {
		return errBadRole
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"role": role, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOptions pages through users ordered by folded name.
type ListOptions struct {
	Limit int64
	Skip  int64
}

// List returns users sorted by name_ci then _id.
func (s *Store) List(ctx context.Context, lo ListOptions) ([]models.User, error) {
	if lo.Limit <= 0 || lo.Limit > 200 {
		lo.Limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(lo.Limit).
		SetSkip(lo.Skip).
		SetProjection(bson.M{"password": 0, "auth_provider_id": 0})

	cur, err := s.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.User{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EmailExists reports whether any user holds the normalized email.
func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	err := s.c.FindOne(ctx, bson.M{"email": normalize.Email(email)},
		options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	return false, err
}
