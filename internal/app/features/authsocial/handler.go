// internal/app/features/authsocial/handler.go
package authsocial

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/codestreak/internal/app/store/oauthstate"
	"github.com/dalemusser/codestreak/internal/app/system/apierr"
	"github.com/dalemusser/codestreak/internal/app/system/authflow"
	"github.com/dalemusser/codestreak/internal/app/system/formutil"
	"github.com/dalemusser/codestreak/internal/app/system/inputval"
	"github.com/dalemusser/codestreak/internal/app/system/limits"
	"github.com/dalemusser/codestreak/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultStateTTL bounds how long a user may sit on Google's consent screen.
const DefaultStateTTL = 10 * time.Minute

// StateStore keeps pending code flows. *oauthstate.Store satisfies it.
type StateStore interface {
	Save(ctx context.Context, st oauthstate.State) error
	Consume(ctx context.Context, state string) (oauthstate.State, bool, error)
}

// OAuthClient is the part of *oauth2.Config the code flow uses.
type OAuthClient interface {
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
}

// Handler serves provider sign-in: ID-token exchange for every registered
// provider plus Google's server-side code flow.
type Handler struct {
	Flow   *authflow.Flow
	Errors *apierr.Writer
	Log    *zap.Logger

	// Code flow; Google is nil when no client secret is configured.
	States      StateStore
	Google      OAuthClient
	FrontendURL string
	StateTTL    time.Duration
}

func NewHandler(flow *authflow.Flow, errs *apierr.Writer, states StateStore, google OAuthClient, frontendURL string, logger *zap.Logger) *Handler {
	return &Handler{
		Flow:        flow,
		Errors:      errs,
		Log:         logger,
		States:      states,
		Google:      google,
		FrontendURL: strings.TrimRight(frontendURL, "/"),
		StateTTL:    DefaultStateTTL,
	}
}

// GoogleOAuthConfig returns the code flow client, or nil when clientID or
// clientSecret is missing. redirectURL must match the console registration.
func GoogleOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	if clientID == "" || clientSecret == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /auth/{provider}                                                       |
| Exchanges a provider ID token for a session.                                |
*─────────────────────────────────────────────────────────────────────────────*/

type assertionBody struct {
	Token string `json:"token"`
}

// ServeAssertion returns the handler for one provider.
func (h *Handler) ServeAssertion(provider string) http.HandlerFunc {
	display := authflow.DisplayName(provider)
	return func(w http.ResponseWriter, r *http.Request) {
		var in assertionBody
		if err := formutil.Decode(w, r, &in, limits.MaxAuthBody); err != nil {
			h.Errors.Write(w, r, err)
			return
		}
		if strings.TrimSpace(in.Token) == "" {
			h.Errors.Write(w, r, apierr.Validation([]inputval.FieldError{
				{Field: "token", Message: display + " token is required"},
			}))
			return
		}

		s, err := h.Flow.SocialLogin(r.Context(), provider, strings.TrimSpace(in.Token))
		if err != nil {
			h.Errors.Write(w, r, err)
			return
		}
		apierr.WriteJSON(w, http.StatusOK, s)
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /auth/google/start                                                      |
| Redirects to Google's consent screen with a stored state and PKCE verifier. |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeGoogleStart(w http.ResponseWriter, r *http.Request) {
	if h.Google == nil || h.States == nil {
		h.Errors.Write(w, r, apierr.New(apierr.NotImplemented, "Google sign-in redirect is not configured"))
		return
	}

	state, err := generateState()
	if err != nil {
		h.Errors.Write(w, r, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err))
		return
	}
	verifier := oauth2.GenerateVerifier()

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "oauth state save")
	defer cancel()

	err = h.States.Save(ctx, oauthstate.State{
		State:        state,
		Provider:     "google",
		CodeVerifier: verifier,
		ReturnURL:    query.Get(r, "return"),
		ExpiresAt:    time.Now().UTC().Add(h.StateTTL),
	})
	if err != nil {
		h.Errors.Write(w, r, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err))
		return
	}

	dest := h.Google.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	h.Log.Debug("initiating Google OAuth flow", zap.String("return_url", query.Get(r, "return")))
	http.Redirect(w, r, dest, http.StatusTemporaryRedirect)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /auth/google/callback                                                   |
| Consumes the state, exchanges the code and signs in with the ID token.      |
*─────────────────────────────────────────────────────────────────────────────*/

var (
	errProviderDenied = errors.New("provider returned an error")
	errBadState       = errors.New("invalid or expired oauth state")
	errMissingCode    = errors.New("missing authorization code")
	errNoIDToken      = errors.New("token response carried no id_token")
)

func (h *Handler) ServeGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.Google == nil || h.States == nil {
		h.Errors.Write(w, r, apierr.New(apierr.NotImplemented, "Google sign-in redirect is not configured"))
		return
	}
	ctx := r.Context()

	if e := query.Get(r, "error"); e != "" {
		h.fail(w, r, errProviderDenied, zap.String("error", e), zap.String("description", query.Get(r, "error_description")))
		return
	}

	sctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), h.Log, "oauth state consume")
	st, ok, err := h.States.Consume(sctx, query.Get(r, "state"))
	cancel()
	if err != nil {
		h.Errors.Write(w, r, apierr.Wrap(apierr.Internal, apierr.MsgServerError, err))
		return
	}
	if !ok || st.Provider != "google" {
		h.fail(w, r, errBadState)
		return
	}

	code := query.Get(r, "code")
	if code == "" {
		h.fail(w, r, errMissingCode)
		return
	}

	xctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), h.Log, "google code exchange")
	tok, err := h.Google.Exchange(xctx, code, oauth2.VerifierOption(st.CodeVerifier))
	cancel()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		h.fail(w, r, errNoIDToken)
		return
	}

	s, err := h.Flow.SocialLogin(ctx, "google", idToken)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}

	if st.ReturnURL != "" && h.FrontendURL != "" {
		path := urlutil.SafeReturn(st.ReturnURL, "", "/")
		frag := url.Values{"token": {s.Token}}.Encode()
		http.Redirect(w, r, h.FrontendURL+path+"#"+frag, http.StatusSeeOther)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, s)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, cause error, fields ...zap.Field) {
	h.Log.Warn("google code flow rejected", append(fields, zap.Error(cause))...)
	h.Flow.Audit.SocialLoginFailed(r.Context(), "google", cause.Error())
	h.Errors.Write(w, r, apierr.Wrap(apierr.SocialAuthFailed, "Google authentication failed", cause))
}

// generateState returns 32 random bytes, URL-safe encoded.
func generateState() (string, error) {
	key := securecookie.GenerateRandomKey(32)
	if key == nil {
		return "", errors.New("generate oauth state: entropy source failed")
	}
	return base64.RawURLEncoding.EncodeToString(key), nil
}
