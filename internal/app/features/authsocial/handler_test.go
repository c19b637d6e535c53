package authsocial_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/codestreak/internal/app/features/authsocial"
	"github.com/dalemusser/codestreak/internal/app/store/oauthstate"
	"github.com/dalemusser/codestreak/internal/app/system/apierr"
	"github.com/dalemusser/codestreak/internal/app/system/authflow"
	"github.com/dalemusser/codestreak/internal/app/system/passwords"
	"github.com/dalemusser/codestreak/internal/app/system/socialauth"
	"github.com/dalemusser/codestreak/internal/app/system/tokens"
	"github.com/dalemusser/codestreak/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

type fakeVerifier map[string]socialauth.Identity

func (f fakeVerifier) Verify(_ context.Context, assertion string) (socialauth.Identity, error) {
	id, ok := f[assertion]
	if !ok {
		return socialauth.Identity{}, fmt.Errorf("%w: bad signature", socialauth.ErrInvalidAssertion)
	}
	return id, nil
}

type memStates struct {
	m   map[string]oauthstate.State
	err error
}

func (s *memStates) Save(_ context.Context, st oauthstate.State) error {
	if s.err != nil {
		return s.err
	}
	s.m[st.State] = st
	return nil
}

func (s *memStates) Consume(_ context.Context, state string) (oauthstate.State, bool, error) {
	if s.err != nil {
		return oauthstate.State{}, false, s.err
	}
	st, ok := s.m[state]
	if !ok || time.Now().After(st.ExpiresAt) {
		return oauthstate.State{}, false, nil
	}
	delete(s.m, state)
	return st, true, nil
}

// fakeGoogle records the verifier it was handed and returns idToken.
type fakeGoogle struct {
	idToken      string
	exchangeErr  error
	gotCode      string
	gotVerifier  bool
	authURLCalls int
}

func (g *fakeGoogle) AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string {
	g.authURLCalls++
	cfg := &oauth2.Config{
		ClientID: "client-id",
		Endpoint: oauth2.Endpoint{AuthURL: "https://accounts.example.com/o/oauth2/auth"},
	}
	return cfg.AuthCodeURL(state, opts...)
}

func (g *fakeGoogle) Exchange(_ context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	g.gotCode = code
	g.gotVerifier = len(opts) > 0
	if g.exchangeErr != nil {
		return nil, g.exchangeErr
	}
	tok := &oauth2.Token{AccessToken: "access"}
	if g.idToken == "" {
		return tok, nil
	}
	return tok.WithExtra(map[string]any{"id_token": g.idToken}), nil
}

type env struct {
	router http.Handler
	h      *authsocial.Handler
	users  *testutil.MemUsers
	states *memStates
	google *fakeGoogle
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := zap.NewNop()
	tm, err := tokens.NewManager("social-test-secret")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	users := testutil.NewMemUsers()
	social := socialauth.NewRegistry()
	social.Register("google", fakeVerifier{
		"ann-assertion": {Email: "ann@example.com", Subject: "google-sub-ann", Name: "Ann"},
	})
	social.Register("apple", socialauth.Unimplemented{})
	social.Register("microsoft", socialauth.Unimplemented{})

	flow := &authflow.Flow{
		Users:  users,
		Hasher: passwords.New(bcrypt.MinCost),
		Tokens: tm,
		Social: social,
		Log:    logger,
	}
	errs := apierr.NewWriter(logger, "prod")
	states := &memStates{m: map[string]oauthstate.State{}}
	google := &fakeGoogle{idToken: "ann-assertion"}

	h := authsocial.NewHandler(flow, errs, states, google, "https://app.example.com/", logger)
	r := chi.NewRouter()
	r.Mount("/api/auth", authsocial.Routes(h, nil))
	return &env{router: r, h: h, users: users, states: states, google: google}
}

func (e *env) do(req *http.Request) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

/*─────────────────────────────────────────────────────────────────────────────*
| ID token exchange                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

func TestAssertion_GoogleProvisionsUser(t *testing.T) {
	e := newEnv(t)

	rec := e.do(testutil.NewJSONRequest(t, http.MethodPost, "/api/auth/google", map[string]string{"token": "ann-assertion"}))
	rec.AssertStatus(t, http.StatusOK)

	var body struct {
		Token string `json:"token"`
		User  struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	rec.DecodeJSON(t, &body)
	if body.Token == "" {
		t.Error("expected token")
	}
	if body.User.Email != "ann@example.com" {
		t.Errorf("email = %q", body.User.Email)
	}
	if e.users.Count() != 1 {
		t.Errorf("users = %d, want 1", e.users.Count())
	}
}

func TestAssertion_MissingTokenNamesProvider(t *testing.T) {
	e := newEnv(t)

	for provider, display := range map[string]string{"google": "Google", "apple": "Apple", "microsoft": "Microsoft"} {
		rec := e.do(testutil.NewJSONRequest(t, http.MethodPost, "/api/auth/"+provider, map[string]string{"token": "  "}))
		body := rec.AssertError(t, http.StatusBadRequest, apierr.MsgValidationFailed)
		if len(body.Errors) != 1 || body.Errors[0].Message != display+" token is required" {
			t.Errorf("%s: errors = %+v", provider, body.Errors)
		}
	}
}

func TestAssertion_BadGoogleToken(t *testing.T) {
	e := newEnv(t)

	rec := e.do(testutil.NewJSONRequest(t, http.MethodPost, "/api/auth/google", map[string]string{"token": "forged"}))
	rec.AssertError(t, http.StatusUnauthorized, "Google authentication failed")
	if e.users.Count() != 0 {
		t.Error("no user should be provisioned")
	}
}

func TestAssertion_UnimplementedProviders(t *testing.T) {
	e := newEnv(t)

	rec := e.do(testutil.NewJSONRequest(t, http.MethodPost, "/api/auth/apple", map[string]string{"token": "anything"}))
	rec.AssertError(t, http.StatusNotImplemented, "Apple authentication not implemented yet")

	rec = e.do(testutil.NewJSONRequest(t, http.MethodPost, "/api/auth/microsoft", map[string]string{"token": "anything"}))
	rec.AssertError(t, http.StatusNotImplemented, "Microsoft authentication not implemented yet")
}

func TestAssertion_UnregisteredProviderNotRouted(t *testing.T) {
	e := newEnv(t)

	rec := e.do(testutil.NewJSONRequest(t, http.MethodPost, "/api/auth/github", map[string]string{"token": "x"}))
	if rec.Code == http.StatusOK {
		t.Error("unregistered provider must not sign in")
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Code flow                                                                   |
*─────────────────────────────────────────────────────────────────────────────*/

func startFlow(t *testing.T, e *env, target string) (state string) {
	t.Helper()
	rec := e.do(httptest.NewRequest(http.MethodGet, target, nil))
	rec.AssertStatus(t, http.StatusTemporaryRedirect)

	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse Location: %v", err)
	}
	q := loc.Query()
	if q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
		t.Errorf("missing PKCE challenge: %s", loc)
	}
	state = q.Get("state")
	if state == "" {
		t.Fatalf("missing state: %s", loc)
	}
	return state
}

func TestGoogleStart_StoresStateAndRedirects(t *testing.T) {
	e := newEnv(t)

	state := startFlow(t, e, "/api/auth/google/start?return=/projects")
	st, ok := e.states.m[state]
	if !ok {
		t.Fatal("state not stored")
	}
	if st.Provider != "google" || st.CodeVerifier == "" || st.ReturnURL != "/projects" {
		t.Errorf("stored state = %+v", st)
	}
	if until := time.Until(st.ExpiresAt); until <= 0 || until > authsocial.DefaultStateTTL {
		t.Errorf("expires in %v", until)
	}
}

func TestGoogleStart_NotConfigured(t *testing.T) {
	e := newEnv(t)
	e.h.Google = nil

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/auth/google/start", nil))
	rec.AssertStatus(t, http.StatusNotImplemented)
}

func TestGoogleStart_StateStoreFailure(t *testing.T) {
	e := newEnv(t)
	e.states.err = errors.New("mongo down")

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/auth/google/start", nil))
	rec.AssertError(t, http.StatusInternalServerError, apierr.MsgServerError)
}

func TestGoogleCallback_SignsIn(t *testing.T) {
	e := newEnv(t)
	state := startFlow(t, e, "/api/auth/google/start")

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?state="+state+"&code=abc", nil))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"token"`)

	if e.google.gotCode != "abc" || !e.google.gotVerifier {
		t.Errorf("exchange code=%q verifier=%v", e.google.gotCode, e.google.gotVerifier)
	}
	if _, ok := e.states.m[state]; ok {
		t.Error("state should be consumed")
	}
}

func TestGoogleCallback_RedirectsToFrontend(t *testing.T) {
	e := newEnv(t)
	state := startFlow(t, e, "/api/auth/google/start?return=/projects")

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?state="+state+"&code=abc", nil))
	rec.AssertStatus(t, http.StatusSeeOther)

	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "https://app.example.com/projects#token=") {
		t.Errorf("Location = %q", loc)
	}
}

func TestGoogleCallback_StateIsSingleUse(t *testing.T) {
	e := newEnv(t)
	state := startFlow(t, e, "/api/auth/google/start")

	e.do(httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?state="+state+"&code=abc", nil)).
		AssertStatus(t, http.StatusOK)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?state="+state+"&code=abc", nil))
	rec.AssertError(t, http.StatusUnauthorized, "Google authentication failed")
}

func TestGoogleCallback_Failures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(e *env) string
	}{
		{"provider error", func(e *env) string {
			return "/api/auth/google/callback?error=access_denied"
		}},
		{"unknown state", func(e *env) string {
			return "/api/auth/google/callback?state=nope&code=abc"
		}},
		{"expired state", func(e *env) string {
			e.states.m["old"] = oauthstate.State{State: "old", Provider: "google", ExpiresAt: time.Now().Add(-time.Minute)}
			return "/api/auth/google/callback?state=old&code=abc"
		}},
		{"missing code", func(e *env) string {
			e.states.m["s1"] = oauthstate.State{State: "s1", Provider: "google", ExpiresAt: time.Now().Add(time.Minute)}
			return "/api/auth/google/callback?state=s1"
		}},
		{"exchange error", func(e *env) string {
			e.google.exchangeErr = errors.New("invalid_grant")
			e.states.m["s2"] = oauthstate.State{State: "s2", Provider: "google", ExpiresAt: time.Now().Add(time.Minute)}
			return "/api/auth/google/callback?state=s2&code=abc"
		}},
		{"no id_token", func(e *env) string {
			e.google.idToken = ""
			e.states.m["s3"] = oauthstate.State{State: "s3", Provider: "google", ExpiresAt: time.Now().Add(time.Minute)}
			return "/api/auth/google/callback?state=s3&code=abc"
		}},
		{"forged id_token", func(e *env) string {
			e.google.idToken = "forged"
			e.states.m["s4"] = oauthstate.State{State: "s4", Provider: "google", ExpiresAt: time.Now().Add(time.Minute)}
			return "/api/auth/google/callback?state=s4&code=abc"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			target := tt.setup(e)
			rec := e.do(httptest.NewRequest(http.MethodGet, target, nil))
			rec.AssertError(t, http.StatusUnauthorized, "Google authentication failed")
			if e.users.Count() != 0 {
				t.Error("no user should be provisioned")
			}
		})
	}
}

func TestGoogleOAuthConfig(t *testing.T) {
	if authsocial.GoogleOAuthConfig("id", "", "https://api.example.com/cb") != nil {
		t.Error("missing secret should disable the code flow")
	}
	cfg := authsocial.GoogleOAuthConfig("id", "secret", "https://api.example.com/cb")
	if cfg == nil || cfg.RedirectURL != "https://api.example.com/cb" || len(cfg.Scopes) != 3 {
		t.Errorf("config = %+v", cfg)
	}
}
