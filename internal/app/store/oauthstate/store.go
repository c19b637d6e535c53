// internal/app/store/oauthstate/store.go
package oauthstate

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// State is one pending OAuth code flow. It is consumed exactly once.
type State struct {
	State        string    `bson:"state"`
	Provider     string    `bson:"provider"`
	CodeVerifier string    `bson:"code_verifier"`        // PKCE verifier sent on exchange
	ReturnURL    string    `bson:"return_url,omitempty"` // frontend location after sign-in
	ExpiresAt    time.Time `bson:"expires_at"`           // TTL index field
	CreatedAt    time.Time `bson:"created_at"`
}

// Store manages OAuth2 state tokens in MongoDB.
// Indexes (unique state, TTL on expires_at) are created by the indexes package.
type Store struct {
	c   *mongo.Collection
	now func() time.Time
}

// New creates a new OAuth state Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("oauth_states"), now: time.Now}
}

// Save records a pending flow.
func (s *Store) Save(ctx context.Context, st State) error {
	if st.State == "" {
		return errors.New("oauth state must not be empty")
	}
	st.CreatedAt = s.now().UTC()
	_, err := s.c.InsertOne(ctx, st)
	return err
}

// Consume atomically removes and returns an unexpired state.
// ok is false when the state is unknown, expired or already used.
func (s *Store) Consume(ctx context.Context, state string) (st State, ok bool, err error) {
	if state == "" {
		return State{}, false, nil
	}
	err = s.c.FindOneAndDelete(ctx, bson.M{
		"state":      state,
		"expires_at": bson.M{"$gt": s.now().UTC()},
	}).Decode(&st)

	if errors.Is(err, mongo.ErrNoDocuments) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, err
	}
	return st, true, nil
}

// CleanupExpired removes expired states. The TTL monitor runs only once a
// minute, so Startup calls this to clear any backlog.
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": s.now().UTC()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
