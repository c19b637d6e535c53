package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	userstore "github.com/dalemusser/codestreak/internal/app/store/users"
	"github.com/dalemusser/codestreak/internal/app/system/authz"
	"github.com/dalemusser/codestreak/internal/app/system/normalize"
	"github.com/dalemusser/codestreak/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemUsers is an in-memory user store with the same contract as
// userstore.Store, for flow and handler tests that do not need Mongo.
type MemUsers struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]models.User

	// Err, when set, is returned by every call.
	Err error
	// RaceOnCreate, when set, is inserted just before the next Create as if
	// a concurrent request had won the insert.
	RaceOnCreate *models.User
}

// NewMemUsers returns an empty store.
func NewMemUsers() *MemUsers {
	return &MemUsers{users: make(map[primitive.ObjectID]models.User)}
}

// Seed inserts u as-is (assigning an id if missing) and returns it.
func (m *MemUsers) Seed(u models.User) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	u.Email = normalize.Email(u.Email)
	m.users[u.ID] = u
	return u
}

// Count returns the number of stored users.
func (m *MemUsers) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

// Delete removes a user, simulating an account deleted after token issue.
func (m *MemUsers) Delete(id primitive.ObjectID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
}

func (m *MemUsers) byEmail(email string) (models.User, bool) {
	for _, u := range m.users {
		if u.Email == email {
			return u, true
		}
	}
	return models.User{}, false
}

func (m *MemUsers) GetByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, userstore.ErrNotFound
	}
	return &u, nil
}

func (m *MemUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	u, ok := m.byEmail(normalize.Email(email))
	if !ok {
		return nil, userstore.ErrNotFound
	}
	return &u, nil
}

func (m *MemUsers) Create(_ context.Context, u models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return models.User{}, m.Err
	}
	if m.RaceOnCreate != nil {
		w := *m.RaceOnCreate
		m.RaceOnCreate = nil
		if w.ID.IsZero() {
			w.ID = primitive.NewObjectID()
		}
		w.Email = normalize.Email(w.Email)
		m.users[w.ID] = w
	}

	u.ID = primitive.NewObjectID()
	u.Name = normalize.Name(u.Name)
	u.NameCI = text.Fold(u.Name)
	u.Email = normalize.Email(u.Email)
	u.Role = u.Role.OrDefault()
	u.AuthProvider = normalize.Provider(u.AuthProvider)
	if _, dup := m.byEmail(u.Email); dup {
		return models.User{}, userstore.ErrDuplicateEmail
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	m.users[u.ID] = u
	return u, nil
}

func (m *MemUsers) LinkProvider(_ context.Context, id primitive.ObjectID, provider, subject string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	u, ok := m.users[id]
	if !ok || u.AuthProviderID != "" {
		return false, nil
	}
	u.AuthProvider = normalize.Provider(provider)
	u.AuthProviderID = subject
	u.UpdatedAt = time.Now().UTC()
	m.users[id] = u
	return true, nil
}

func (m *MemUsers) SetPermissions(_ context.Context, id primitive.ObjectID, perms []string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, userstore.ErrNotFound
	}
	u.Permissions = normalize.Tags(perms)
	u.UpdatedAt = time.Now().UTC()
	m.users[id] = u
	return &u, nil
}

func (m *MemUsers) List(_ context.Context, lo userstore.ListOptions) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		u.PasswordHash = ""
		u.AuthProviderID = ""
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NameCI != out[j].NameCI {
			return out[i].NameCI < out[j].NameCI
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	if lo.Skip > 0 {
		if int(lo.Skip) >= len(out) {
			return []models.User{}, nil
		}
		out = out[lo.Skip:]
	}
	if lo.Limit > 0 && int(lo.Limit) < len(out) {
		out = out[:lo.Limit]
	}
	return out, nil
}

func (m *MemUsers) GetByIDs(_ context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := []models.User{}
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			u.PasswordHash = ""
			u.AuthProviderID = ""
			out = append(out, u)
		}
	}
	return out, nil
}

// Permissions implements authz.PermissionSource.
func (m *MemUsers) Permissions(_ context.Context, id primitive.ObjectID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, authz.ErrUnknownUser
	}
	return u.Permissions, nil
}
