// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is a registered account.
//
// NOTE:
//   - PasswordHash is always present. Accounts created through a social
//     provider carry a random hash nobody knows, so password login fails for them.
//   - AuthProviderID is the provider's subject claim and is never sent to clients.
type User struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name           string             `bson:"name" json:"name"`
	NameCI         string             `bson:"name_ci" json:"-"` // lowercase, diacritics-stripped
	Email          string             `bson:"email" json:"email"`
	PasswordHash   string             `bson:"password" json:"-"`
	Role           Role               `bson:"role" json:"role"`
	AuthProvider   string             `bson:"auth_provider,omitempty" json:"auth_provider,omitempty"`
	AuthProviderID string             `bson:"auth_provider_id,omitempty" json:"-"`
	Permissions    []string           `bson:"permissions,omitempty" json:"permissions,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// HasPermission reports whether the capability is in the user's permission set.
func (u User) HasPermission(p string) bool {
	for _, have := range u.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// PublicUser is the view returned alongside a freshly issued token.
type PublicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Public projects the user onto the fields any client may see.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:    u.ID.Hex(),
		Name:  u.Name,
		Email: u.Email,
		Role:  u.Role.OrDefault(),
	}
}

// Profile is the signed-in user's own view of their account.
type Profile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	AuthProvider string    `json:"auth_provider,omitempty"`
	Permissions  []string  `json:"permissions"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Profile projects the user onto the self-service view (no password, no provider subject).
func (u User) Profile() Profile {
	perms := u.Permissions
	if perms == nil {
		perms = []string{}
	}
	return Profile{
		ID:           u.ID.Hex(),
		Name:         u.Name,
		Email:        u.Email,
		Role:         u.Role.OrDefault(),
		AuthProvider: u.AuthProvider,
		Permissions:  perms,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}
