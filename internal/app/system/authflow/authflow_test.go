package authflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/codestreak/internal/app/store/audit"
	"github.com/dalemusser/codestreak/internal/app/system/apierr"
	"github.com/dalemusser/codestreak/internal/app/system/auditlog"
	"github.com/dalemusser/codestreak/internal/app/system/auth"
	"github.com/dalemusser/codestreak/internal/app/system/authflow"
	"github.com/dalemusser/codestreak/internal/app/system/passwords"
	"github.com/dalemusser/codestreak/internal/app/system/socialauth"
	"github.com/dalemusser/codestreak/internal/app/system/tokens"
	"github.com/dalemusser/codestreak/internal/domain/models"
	"github.com/dalemusser/codestreak/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// objectID parses a hex id taken from a public user view.
func objectID(t *testing.T, hex string) primitive.ObjectID {
	t.Helper()
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		t.Fatalf("ObjectIDFromHex(%q): %v", hex, err)
	}
	return id
}

// fakeVerifier accepts the assertions it knows.
type fakeVerifier map[string]socialauth.Identity

func (f fakeVerifier) Verify(_ context.Context, assertion string) (socialauth.Identity, error) {
	id, ok := f[assertion]
	if !ok {
		return socialauth.Identity{}, fmt.Errorf("%w: signature mismatch for key kid-7", socialauth.ErrInvalidAssertion)
	}
	return id, nil
}

type memRecorder struct{ events []audit.Event }

func (m *memRecorder) Log(_ context.Context, e audit.Event) error {
	m.events = append(m.events, e)
	return nil
}

func (m *memRecorder) types() []string {
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.EventType
	}
	return out
}

type recordingDenylist struct {
	revoked map[string]time.Time
	err     error
}

func (d *recordingDenylist) Revoke(_ context.Context, id string, until time.Time) error {
	if d.err != nil {
		return d.err
	}
	d.revoked[id] = until
	return nil
}

func (d *recordingDenylist) IsRevoked(_ context.Context, id string) (bool, error) {
	_, ok := d.revoked[id]
	return ok, nil
}

type harness struct {
	flow   *authflow.Flow
	users  *testutil.MemUsers
	tokens *tokens.Manager
	audit  *memRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tm, err := tokens.NewManager("test-secret")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	users := testutil.NewMemUsers()
	rec := &memRecorder{}

	social := socialauth.NewRegistry()
	social.Register("google", fakeVerifier{
		"ann-assertion": {Email: "ann@example.com", Subject: "google-sub-ann", Name: "Ann"},
		"bob-assertion": {Email: "bob@example.com", Subject: "google-sub-bob", Name: "<b>Bob</b>"},
	})
	social.Register("apple", socialauth.Unimplemented{})
	social.Register("microsoft", socialauth.Unimplemented{})

	return &harness{
		flow: &authflow.Flow{
			Users:  users,
			Hasher: passwords.New(bcrypt.MinCost),
			Tokens: tm,
			Social: social,
			Audit:  auditlog.New(rec, zap.NewNop(), auditlog.Config{}, nil),
			Log:    zap.NewNop(),
		},
		users:  users,
		tokens: tm,
		audit:  rec,
	}
}

func wantKind(t *testing.T, err error, kind apierr.Kind, msg string) *apierr.Error {
	t.Helper()
	var e *apierr.Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *apierr.Error, got %T: %v", err, err)
	}
	if e.Kind != kind {
		t.Fatalf("kind = %s, want %s (%v)", e.Kind, kind, err)
	}
	if msg != "" && e.Message != msg {
		t.Errorf("message = %q, want %q", e.Message, msg)
	}
	return e
}

/*─────────────────────────────────────────────────────────────────────────────*
| Register                                                                    |
*─────────────────────────────────────────────────────────────────────────────*/

func TestRegister_IssuesUserToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.flow.Register(ctx, authflow.RegisterInput{Name: "Ann", Email: "Ann@Example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if s.User.Email != "ann@example.com" {
		t.Errorf("email = %q", s.User.Email)
	}
	if s.User.Role != models.RoleUser {
		t.Errorf("role = %q", s.User.Role)
	}

	claims, err := h.tokens.Verify(s.Token)
	if err != nil {
		t.Fatalf("Verify issued token: %v", err)
	}
	if claims.User.ID != s.User.ID || claims.User.Role != "user" {
		t.Errorf("claims = %+v, user = %+v", claims.User, s.User)
	}

	body, _ := json.Marshal(s)
	if strings.Contains(string(body), "password") || strings.Contains(string(body), "$2a$") {
		t.Errorf("session leaks password material: %s", body)
	}

	stored, _ := h.users.GetByEmail(ctx, "ann@example.com")
	if stored.PasswordHash == "" || stored.PasswordHash == "secret1" {
		t.Error("password must be stored hashed")
	}
}

func TestRegister_Duplicate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.flow.Register(ctx, authflow.RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret1"}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, err := h.flow.Register(ctx, authflow.RegisterInput{Name: "Other", Email: "ANN@example.com", Password: "different"})
	wantKind(t, err, apierr.DuplicateAccount, "User already exists")

	if h.users.Count() != 1 {
		t.Errorf("users = %d, want 1", h.users.Count())
	}
}

func TestRegister_DuplicateOnInsertRace(t *testing.T) {
	h := newHarness(t)
	h.users.RaceOnCreate = &models.User{Name: "Winner", Email: "ann@example.com", PasswordHash: "x"}

	_, err := h.flow.Register(context.Background(), authflow.RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret1"})
	wantKind(t, err, apierr.DuplicateAccount, "User already exists")
}

func TestRegister_Validation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name  string
		in    authflow.RegisterInput
		field string
		msg   string
	}{
		{"missing name", authflow.RegisterInput{Email: "a@example.com", Password: "secret1"}, "name", "Name is required"},
		{"markup-only name", authflow.RegisterInput{Name: "<i></i>", Email: "a@example.com", Password: "secret1"}, "name", "Name is required"},
		{"bad email", authflow.RegisterInput{Name: "A", Email: "nope", Password: "secret1"}, "email", "Please include a valid email"},
		{"short password", authflow.RegisterInput{Name: "A", Email: "a@example.com", Password: "12345"}, "password", "Please enter a password with 6 or more characters"},
		{"password over bcrypt limit", authflow.RegisterInput{Name: "A", Email: "a@example.com", Password: strings.Repeat("p", 80)}, "password", "Password must be 72 bytes or fewer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.flow.Register(context.Background(), tt.in)
			e := wantKind(t, err, apierr.ValidationFailed, "Validation failed")
			if len(e.Fields) != 1 || e.Fields[0].Field != tt.field || e.Fields[0].Message != tt.msg {
				t.Errorf("fields = %+v", e.Fields)
			}
		})
	}
	if h.users.Count() != 0 {
		t.Error("invalid input must not create users")
	}
}

func TestRegister_StripsMarkupFromName(t *testing.T) {
	h := newHarness(t)
	s, err := h.flow.Register(context.Background(), authflow.RegisterInput{
		Name: "<script>x()</script>Ann <b>Lee</b>", Email: "ann@example.com", Password: "secret1",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if s.User.Name != "Ann Lee" {
		t.Errorf("name = %q", s.User.Name)
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Login                                                                       |
*─────────────────────────────────────────────────────────────────────────────*/

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.flow.Register(ctx, authflow.RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret1"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, errUnknown := h.flow.Login(ctx, authflow.LoginInput{Email: "ghost@example.com", Password: "secret1"})
	_, errWrong := h.flow.Login(ctx, authflow.LoginInput{Email: "ann@example.com", Password: "wrong"})

	a := wantKind(t, errUnknown, apierr.InvalidCredentials, "Invalid Credentials")
	b := wantKind(t, errWrong, apierr.InvalidCredentials, "Invalid Credentials")
	if a.Kind.Status() != http.StatusBadRequest || a.Kind.Status() != b.Kind.Status() {
		t.Errorf("statuses differ: %d vs %d", a.Kind.Status(), b.Kind.Status())
	}

	types := strings.Join(h.audit.types(), ",")
	if !strings.Contains(types, audit.EventLoginFailedUserNotFound) || !strings.Contains(types, audit.EventLoginFailedWrongPassword) {
		t.Errorf("audit trail = %s", types)
	}
}

func TestLogin_Success(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reg, err := h.flow.Register(ctx, authflow.RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	s, err := h.flow.Login(ctx, authflow.LoginInput{Email: " ANN@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if s.User.ID != reg.User.ID || s.Token == "" {
		t.Errorf("session = %+v", s)
	}
}

func TestLogin_SocialOnlyAccountRejectsPasswords(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.flow.SocialLogin(ctx, "google", "ann-assertion"); err != nil {
		t.Fatalf("SocialLogin: %v", err)
	}
	_, err := h.flow.Login(ctx, authflow.LoginInput{Email: "ann@example.com", Password: ""})
	wantKind(t, err, apierr.ValidationFailed, "")
	_, err = h.flow.Login(ctx, authflow.LoginInput{Email: "ann@example.com", Password: "guess123"})
	wantKind(t, err, apierr.InvalidCredentials, "Invalid Credentials")
}

func TestLogin_StoreFailureIsInternal(t *testing.T) {
	h := newHarness(t)
	h.users.Err = errors.New("connection reset")

	_, err := h.flow.Login(context.Background(), authflow.LoginInput{Email: "ann@example.com", Password: "secret1"})
	e := wantKind(t, err, apierr.Internal, "Server Error")
	if !strings.Contains(e.Error(), "connection reset") {
		t.Errorf("cause should be kept for logging: %v", e)
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Social login                                                                |
*─────────────────────────────────────────────────────────────────────────────*/

func TestSocialLogin_ProvisionsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.flow.SocialLogin(ctx, "google", "ann-assertion")
	if err != nil {
		t.Fatalf("first SocialLogin: %v", err)
	}
	second, err := h.flow.SocialLogin(ctx, "Google", "ann-assertion")
	if err != nil {
		t.Fatalf("second SocialLogin: %v", err)
	}
	if first.User.ID != second.User.ID {
		t.Errorf("ids differ: %s vs %s", first.User.ID, second.User.ID)
	}
	if h.users.Count() != 1 {
		t.Errorf("users = %d, want 1", h.users.Count())
	}

	u, _ := h.users.GetByID(ctx, objectID(t, first.User.ID))
	if u.AuthProvider != "google" || u.AuthProviderID != "google-sub-ann" {
		t.Errorf("linkage = %q/%q", u.AuthProvider, u.AuthProviderID)
	}
	if u.PasswordHash == "" {
		t.Error("provisioned user must carry an unusable password hash")
	}
}

func TestSocialLogin_SanitizesProviderName(t *testing.T) {
	h := newHarness(t)
	s, err := h.flow.SocialLogin(context.Background(), "google", "bob-assertion")
	if err != nil {
		t.Fatalf("SocialLogin: %v", err)
	}
	if s.User.Name != "Bob" {
		t.Errorf("name = %q", s.User.Name)
	}
}

func TestSocialLogin_BackfillsExistingPasswordAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reg, err := h.flow.Register(ctx, authflow.RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	s, err := h.flow.SocialLogin(ctx, "google", "ann-assertion")
	if err != nil {
		t.Fatalf("SocialLogin: %v", err)
	}
	if s.User.ID != reg.User.ID {
		t.Error("social login should reuse the password account")
	}
	u, _ := h.users.GetByID(ctx, objectID(t, reg.User.ID))
	if u.AuthProviderID != "google-sub-ann" {
		t.Errorf("linkage not backfilled: %+v", u)
	}
	// Password login still works after linking.
	if _, err := h.flow.Login(ctx, authflow.LoginInput{Email: "ann@example.com", Password: "secret1"}); err != nil {
		t.Errorf("password login after link: %v", err)
	}
	if !strings.Contains(strings.Join(h.audit.types(), ","), audit.EventSocialAccountLinked) {
		t.Errorf("expected link audit event, got %v", h.audit.types())
	}
}

func TestSocialLogin_InsertRaceLinksWinner(t *testing.T) {
	h := newHarness(t)
	winner := models.User{Name: "Ann", Email: "ann@example.com", PasswordHash: "x"}
	h.users.RaceOnCreate = &winner

	s, err := h.flow.SocialLogin(context.Background(), "google", "ann-assertion")
	if err != nil {
		t.Fatalf("SocialLogin: %v", err)
	}
	if h.users.Count() != 1 {
		t.Errorf("users = %d, want 1", h.users.Count())
	}
	u, _ := h.users.GetByID(context.Background(), objectID(t, s.User.ID))
	if u.Name != "Ann" || u.AuthProviderID != "google-sub-ann" {
		t.Errorf("winner not linked: %+v", u)
	}
}

func TestSocialLogin_VerifierFailureHidesCause(t *testing.T) {
	h := newHarness(t)

	_, err := h.flow.SocialLogin(context.Background(), "google", "forged")
	e := wantKind(t, err, apierr.SocialAuthFailed, "Google authentication failed")
	if e.Kind.Status() != http.StatusUnauthorized {
		t.Errorf("status = %d", e.Kind.Status())
	}
	if strings.Contains(e.Message, "kid-7") {
		t.Error("provider detail leaked into client message")
	}
	if !errors.Is(err, socialauth.ErrInvalidAssertion) {
		t.Error("cause should be retained")
	}
	if h.users.Count() != 0 {
		t.Error("failed assertion must not provision")
	}
}

func TestSocialLogin_PlaceholderProviders(t *testing.T) {
	h := newHarness(t)
	for provider, msg := range map[string]string{
		"apple":     "Apple authentication not implemented yet",
		"microsoft": "Microsoft authentication not implemented yet",
		"github":    "Github authentication not implemented yet",
	} {
		t.Run(provider, func(t *testing.T) {
			_, err := h.flow.SocialLogin(context.Background(), provider, "anything")
			e := wantKind(t, err, apierr.NotImplemented, msg)
			if e.Kind.Status() != http.StatusNotImplemented {
				t.Errorf("status = %d", e.Kind.Status())
			}
			if errors.Is(err, socialauth.ErrInvalidAssertion) {
				t.Error("NotImplemented must not look like an invalid assertion")
			}
		})
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Current user and logout                                                     |
*─────────────────────────────────────────────────────────────────────────────*/

func TestCurrentUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s, err := h.flow.Register(ctx, authflow.RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	id := auth.Identity{ID: objectID(t, s.User.ID), Role: models.RoleUser}

	p, err := h.flow.CurrentUser(ctx, id)
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if p.Name != "Ann" || p.Permissions == nil {
		t.Errorf("profile = %+v", p)
	}

	h.users.Delete(id.ID)
	_, err = h.flow.CurrentUser(ctx, id)
	wantKind(t, err, apierr.NotFound, "User not found")
}

func TestLogout_Stateless(t *testing.T) {
	h := newHarness(t)
	res, err := h.flow.Logout(context.Background(), testutil.UserIdentity())
	if err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if res.Message != "Logged out successfully" {
		t.Errorf("message = %q", res.Message)
	}
}

func TestLogout_RevokesWhenDenylistConfigured(t *testing.T) {
	h := newHarness(t)
	deny := &recordingDenylist{revoked: map[string]time.Time{}}
	h.flow.Denylist = deny

	id := testutil.UserIdentity()
	id.TokenID = "jti-1"
	id.ExpiresAt = time.Now().Add(time.Hour)

	if _, err := h.flow.Logout(context.Background(), id); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if until, ok := deny.revoked["jti-1"]; !ok || !until.Equal(id.ExpiresAt) {
		t.Errorf("revoked = %v", deny.revoked)
	}

	deny.err = errors.New("redis down")
	_, err := h.flow.Logout(context.Background(), id)
	wantKind(t, err, apierr.Internal, "Server Error")
}

type failingIssuer struct{}

func (failingIssuer) Issue(context.Context, string, string) (string, error) {
	return "", errors.New("signer unavailable")
}

func TestSigningFailureIsInternal(t *testing.T) {
	h := newHarness(t)
	h.flow.Tokens = failingIssuer{}

	_, err := h.flow.Register(context.Background(), authflow.RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret1"})
	wantKind(t, err, apierr.Internal, "Server Error")
}

func TestDisplayName(t *testing.T) {
	for in, want := range map[string]string{"google": "Google", " APPLE ": "Apple", "": ""} {
		if got := authflow.DisplayName(in); got != want {
			t.Errorf("DisplayName(%q) = %q, want %q", in, got, want)
		}
	}
}
