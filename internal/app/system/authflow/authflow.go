// Package authflow is the one place accounts are created and tokens are
// handed out: password registration and login, social login, the current
// user lookup and logout.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	userstore "github.com/dalemusser/codestreak/internal/app/store/users"
	"github.com/dalemusser/codestreak/internal/app/system/apierr"
	"github.com/dalemusser/codestreak/internal/app/system/auditlog"
	"github.com/dalemusser/codestreak/internal/app/system/auth"
	"github.com/dalemusser/codestreak/internal/app/system/htmlsanitize"
	"github.com/dalemusser/codestreak/internal/app/system/inputval"
	"github.com/dalemusser/codestreak/internal/app/system/metrics"
	"github.com/dalemusser/codestreak/internal/app/system/normalize"
	"github.com/dalemusser/codestreak/internal/app/system/passwords"
	"github.com/dalemusser/codestreak/internal/app/system/revocation"
	"github.com/dalemusser/codestreak/internal/app/system/socialauth"
	"github.com/dalemusser/codestreak/internal/app/system/timeouts"
	"github.com/dalemusser/codestreak/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ProviderPassword tags sessions issued for a password login.
const ProviderPassword = "password"

// MsgLoggedOut acknowledges a logout.
const MsgLoggedOut = "Logged out successfully"

// UserStore is the slice of the user store the flow needs.
// *userstore.Store satisfies it.
type UserStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, u models.User) (models.User, error)
	LinkProvider(ctx context.Context, id primitive.ObjectID, provider, subject string) (bool, error)
}

// Hasher hashes and checks passwords. *passwords.Hasher satisfies it.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) (bool, error)
	Unusable() (string, error)
}

// Issuer signs bearer tokens. *tokens.Manager satisfies it.
type Issuer interface {
	Issue(ctx context.Context, subject, role string) (string, error)
}

// Flow wires the collaborators together. Audit, Metrics and Denylist are
// optional; a nil Denylist means logout does not revoke.
type Flow struct {
	Users    UserStore
	Hasher   Hasher
	Tokens   Issuer
	Social   *socialauth.Registry
	Denylist revocation.Denylist
	Audit    *auditlog.Logger
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

// Session is what a successful sign-in returns to the client.
type Session struct {
	Token string            `json:"token"`
	User  models.PublicUser `json:"user"`
}

// RegisterInput is the body of POST /auth/register.
type RegisterInput struct {
	Name     string `json:"name" validate:"required" msg:"Name is required"`
	Email    string `json:"email" validate:"required,email" msg:"Please include a valid email"`
	Password string `json:"password" validate:"required,min=6,maxbytes=72" msg:"Please enter a password with 6 or more characters" msg_maxbytes:"Password must be 72 bytes or fewer"`
}

// LoginInput is the body of POST /auth/login.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email" msg:"Please include a valid email"`
	Password string `json:"password" validate:"required" msg:"Password is required"`
}

// LogoutResult acknowledges a logout.
type LogoutResult struct {
	Message string `json:"message"`
}

func (f *Flow) log() *zap.Logger {
	if f.Log == nil {
		return zap.NewNop()
	}
	return f.Log
}

func (f *Flow) storeCtx(ctx context.Context, op string) (context.Context, context.CancelFunc) {
	return timeouts.WithTimeout(ctx, timeouts.Short(), f.log(), op)
}

// issue signs a token for u. A signing failure fails the request.
func (f *Flow) issue(ctx context.Context, u *models.User) (Session, error) {
	tok, err := f.Tokens.Issue(ctx, u.ID.Hex(), u.Role.String())
	if err != nil {
		return Session{}, apierr.Wrap(apierr.Internal, apierr.MsgServerError, fmt.Errorf("sign token: %w", err))
	}
	f.Metrics.TokenIssued()
	return Session{Token: tok, User: u.Public()}, nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Password accounts                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

// Register creates a password account with role user and signs it in.
// An email already in use is DuplicateAccount whether it was caught by the
// lookup or by the unique index on insert.
func (f *Flow) Register(ctx context.Context, in RegisterInput) (Session, error) {
	if res := inputval.Validate(in); res.HasErrors() {
		return Session{}, apierr.Validation(res.Errors)
	}
	name := normalize.Name(htmlsanitize.StripTags(in.Name))
	if name == "" {
		return Session{}, apierr.Validation([]inputval.FieldError{{Field: "name", Message: "Name is required"}})
	}
	email := normalize.Email(in.Email)

	sctx, cancel := f.storeCtx(ctx, "register lookup")
	_, err := f.Users.GetByEmail(sctx, email)
	cancel()
	switch {
	case err == nil:
		f.Audit.RegisterFailedDuplicate(ctx, email)
		return Session{}, apierr.New(apierr.DuplicateAccount, apierr.MsgUserExists)
	case !errors.Is(err, userstore.ErrNotFound):
		return Session{}, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err)
	}

	hash, err := f.Hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, passwords.ErrTooLong) {
			return Session{}, apierr.Validation([]inputval.FieldError{{Field: "password", Message: "Password must be 72 bytes or fewer"}})
		}
		return Session{}, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err)
	}

	sctx, cancel = f.storeCtx(ctx, "register insert")
	u, err := f.Users.Create(sctx, models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleUser,
	})
	cancel()
	if err != nil {
		if errors.Is(err, userstore.ErrDuplicateEmail) {
			f.Audit.RegisterFailedDuplicate(ctx, email)
			return Session{}, apierr.New(apierr.DuplicateAccount, apierr.MsgUserExists)
		}
		return Session{}, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err)
	}

	f.Audit.RegisterSuccess(ctx, u.ID, u.Email)
	return f.issue(ctx, &u)
}

// Login checks a password. Unknown email and wrong password produce the
// same InvalidCredentials error.
func (f *Flow) Login(ctx context.Context, in LoginInput) (Session, error) {
	if res := inputval.Validate(in); res.HasErrors() {
		return Session{}, apierr.Validation(res.Errors)
	}
	email := normalize.Email(in.Email)
	invalid := apierr.New(apierr.InvalidCredentials, apierr.MsgInvalidCredentials)

	sctx, cancel := f.storeCtx(ctx, "login lookup")
	u, err := f.Users.GetByEmail(sctx, email)
	cancel()
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			f.Audit.LoginFailedUserNotFound(ctx, email)
			return Session{}, invalid
		}
		return Session{}, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err)
	}

	ok, err := f.Hasher.Verify(in.Password, u.PasswordHash)
	if err != nil {
		return Session{}, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err)
	}
	if !ok {
		f.Audit.LoginFailedWrongPassword(ctx, u.ID)
		return Session{}, invalid
	}

	f.Audit.LoginSuccess(ctx, u.ID, ProviderPassword)
	return f.issue(ctx, u)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Social accounts                                                             |
*─────────────────────────────────────────────────────────────────────────────*/

// DisplayName capitalizes a provider name for client messages ("google" → "Google").
func DisplayName(provider string) string {
	p := normalize.Provider(provider)
	if p == "" {
		return p
	}
	return strings.ToUpper(p[:1]) + p[1:]
}

// SocialLogin verifies a provider assertion and signs in the matching user,
// provisioning or linking the account as needed.
func (f *Flow) SocialLogin(ctx context.Context, provider, assertion string) (Session, error) {
	provider = normalize.Provider(provider)
	display := DisplayName(provider)

	v, ok := f.Social.Lookup(provider)
	if !ok {
		return Session{}, apierr.Wrap(apierr.NotImplemented,
			display+" authentication not implemented yet", socialauth.ErrNotImplemented)
	}

	ident, err := v.Verify(ctx, assertion)
	if err != nil {
		if errors.Is(err, socialauth.ErrNotImplemented) {
			return Session{}, apierr.Wrap(apierr.NotImplemented, display+" authentication not implemented yet", err)
		}
		f.Audit.SocialLoginFailed(ctx, provider, err.Error())
		return Session{}, apierr.Wrap(apierr.SocialAuthFailed, display+" authentication failed", err)
	}

	u, err := f.findOrProvision(ctx, provider, ident)
	if err != nil {
		return Session{}, err
	}

	f.Audit.LoginSuccess(ctx, u.ID, provider)
	return f.issue(ctx, u)
}

// findOrProvision returns the user owning ident.Email, creating it with an
// unusable password on first sight and backfilling provider linkage on an
// unlinked account. A concurrent first sign-in that wins the insert is
// re-read and linked.
func (f *Flow) findOrProvision(ctx context.Context, provider string, ident socialauth.Identity) (*models.User, error) {
	sctx, cancel := f.storeCtx(ctx, provider+" lookup")
	u, err := f.Users.GetByEmail(sctx, ident.Email)
	cancel()

	switch {
	case err == nil:
		return f.link(ctx, provider, ident, u)
	case !errors.Is(err, userstore.ErrNotFound):
		return nil, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err)
	}

	hash, err := f.Hasher.Unusable()
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err)
	}
	name := normalize.Name(htmlsanitize.StripTags(ident.Name))
	if name == "" {
		name, _, _ = strings.Cut(ident.Email, "@")
	}

	sctx, cancel = f.storeCtx(ctx, provider+" provision")
	created, err := f.Users.Create(sctx, models.User{
		Name:           name,
		Email:          ident.Email,
		PasswordHash:   hash,
		Role:           models.RoleUser,
		AuthProvider:   provider,
		AuthProviderID: ident.Subject,
	})
	cancel()
	if err == nil {
		f.Audit.SocialUserProvisioned(ctx, created.ID, provider)
		return &created, nil
	}
	if !errors.Is(err, userstore.ErrDuplicateEmail) {
		return nil, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err)
	}

	f.log().Info("social provisioning lost insert race; linking existing user",
		zap.String("provider", provider))
	sctx, cancel = f.storeCtx(ctx, provider+" race reread")
	u, err = f.Users.GetByEmail(sctx, ident.Email)
	cancel()
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err)
	}
	return f.link(ctx, provider, ident, u)
}

// link backfills provider linkage when u has none. Already linked accounts
// are left as they are.
func (f *Flow) link(ctx context.Context, provider string, ident socialauth.Identity, u *models.User) (*models.User, error) {
	if u.AuthProviderID != "" {
		if u.AuthProvider != provider || u.AuthProviderID != ident.Subject {
			f.log().Warn("social login for account linked to a different identity",
				zap.String("user_id", u.ID.Hex()),
				zap.String("provider", provider),
				zap.String("linked_provider", u.AuthProvider))
		}
		return u, nil
	}

	sctx, cancel := f.storeCtx(ctx, provider+" link")
	linked, err := f.Users.LinkProvider(sctx, u.ID, provider, ident.Subject)
	cancel()
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err)
	}
	if linked {
		u.AuthProvider = provider
		u.AuthProviderID = ident.Subject
		f.Audit.SocialAccountLinked(ctx, u.ID, provider)
	}
	return u, nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Signed-in user                                                              |
*─────────────────────────────────────────────────────────────────────────────*/

// CurrentUser loads the caller's profile. A user deleted after the token was
// issued is NotFound.
func (f *Flow) CurrentUser(ctx context.Context, id auth.Identity) (models.Profile, error) {
	sctx, cancel := f.storeCtx(ctx, "current user")
	u, err := f.Users.GetByID(sctx, id.ID)
	cancel()
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			return models.Profile{}, apierr.Wrap(apierr.NotFound, apierr.MsgUserNotFound, err)
		}
		return models.Profile{}, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err)
	}
	return u.Profile(), nil
}

// Logout acknowledges the client discarding its token. With a Denylist the
// token id is also revoked until it would have expired.
func (f *Flow) Logout(ctx context.Context, id auth.Identity) (LogoutResult, error) {
	revoked := false
	if f.Denylist != nil && id.TokenID != "" {
		if err := f.Denylist.Revoke(ctx, id.TokenID, id.ExpiresAt); err != nil {
			return LogoutResult{}, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err)
		}
		revoked = true
	}
	f.Audit.Logout(ctx, id.ID, revoked)
	return LogoutResult{Message: MsgLoggedOut}, nil
}
