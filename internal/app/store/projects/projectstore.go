package projectstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/codestreak/internal/app/system/normalize"
	"github.com/dalemusser/codestreak/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is returned when no project matches.
	ErrNotFound = errors.New("project not found")

	errTitleRequired = errors.New("title is required")
	errOwnerRequired = errors.New("owner is required")
	errBadStatus     = errors.New(`status must be "planning"|"in-progress"|"completed"`)
	errBadProgress   = errors.New("progress must be between 0 and 100")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("projects")}
}

// GetByID loads a project regardless of owner; callers check ownership.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Project, error) {
	var p models.Project
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListByOwner returns the owner's projects, newest first.
func (s *Store) ListByOwner(ctx context.Context, owner primitive.ObjectID) ([]models.Project, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.c.Find(ctx, bson.M{"user": owner}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Project{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create inserts a project. Status defaults to planning and tags are normalized.
func (s *Store) Create(ctx context.Context, p models.Project) (models.Project, error) {
	p.ID = primitive.NewObjectID()
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
	p.Tags = normalize.Tags(p.Tags)
	if p.Status == "" {
		p.Status = models.ProjectPlanning
	}

	if p.UserID.IsZero() {
		return models.Project{}, errOwnerRequired
	}
	if p.Title == "" {
		return models.Project{}, errTitleRequired
	}
	if err := checkState(p.Status, p.Progress); err != nil {
		return models.Project{}, err
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, p); err != nil {
		return models.Project{}, err
	}
	return p, nil
}

// Update is a partial change; nil fields are left alone.
type Update struct {
	Title       *string
	Description *string
	Status      *string
	Progress    *int
	Deadline    *time.Time
	Tags        []string
}

func (u Update) set() (bson.M, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if u.Title != nil {
		t := strings.TrimSpace(*u.Title)
		if t == "" {
			return nil, errTitleRequired
		}
		set["title"] = t
	}
	if u.Description != nil {
		set["description"] = strings.TrimSpace(*u.Description)
	}
	if u.Status != nil {
		if !models.IsValidProjectStatus(*u.Status) {
			return nil, errBadStatus
		}
		set["status"] = *u.Status
	}
	if u.Progress != nil {
		if *u.Progress < 0 || *u.Progress > 100 {
			return nil, errBadProgress
		}
		set["progress"] = *u.Progress
	}
	if u.Deadline != nil {
		set["deadline"] = u.Deadline.UTC()
	}
	if u.Tags != nil {
		set["tags"] = normalize.Tags(u.Tags)
	}
	return set, nil
}

// Update applies u to the project only if owner still owns it and returns
// the updated document. A missing or foreign project is ErrNotFound.
func (s *Store) Update(ctx context.Context, id, owner primitive.ObjectID, u Update) (*models.Project, error) {
	set, err := u.set()
	if err != nil {
		return nil, err
	}
	var p models.Project
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err = s.c.FindOneAndUpdate(ctx, bson.M{"_id": id, "user": owner}, bson.M{"$set": set}, opts).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Delete removes the project only if owner owns it.
func (s *Store) Delete(ctx context.Context, id, owner primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id, "user": owner})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func checkState(status string, progress int) error {
	if !models.IsValidProjectStatus(status) {
		return errBadStatus
	}
	if progress < 0 || progress > 100 {
		return errBadProgress
	}
	return nil
}
