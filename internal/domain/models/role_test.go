package models

import "testing"

func TestParseRole(t *testing.T) {
	tests := []struct {
		input   string
		want    Role
		wantErr bool
	}{
		{"user", RoleUser, false},
		{"admin", RoleAdmin, false},
		{"  ADMIN ", RoleAdmin, false},
		{"superadmin", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRole(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRole(%q) err = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRole(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestUser_PublicOmitsSecrets(t *testing.T) {
	u := User{
		Name:           "Ann",
		Email:          "ann@example.com",
		PasswordHash:   "hash",
		AuthProviderID: "sub-123",
	}

	pub := u.Public()
	if pub.Role != RoleUser {
		t.Errorf("Role: got %q, want %q", pub.Role, RoleUser)
	}
	if pub.Email != "ann@example.com" {
		t.Errorf("Email: got %q", pub.Email)
	}
}

func TestUser_HasPermission(t *testing.T) {
	u := User{Permissions: []string{"projects.delete"}}
	if !u.HasPermission("projects.delete") {
		t.Error("expected projects.delete to be granted")
	}
	if u.HasPermission("users.view") {
		t.Error("expected users.view to be missing")
	}
}
