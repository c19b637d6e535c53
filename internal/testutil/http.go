package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/codestreak/internal/app/system/auth"
	"github.com/dalemusser/codestreak/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserIdentity returns a fresh identity with role "user".
func UserIdentity() auth.Identity {
	return auth.Identity{
		ID:        primitive.NewObjectID(),
		Role:      models.RoleUser,
		TokenID:   "test-jti",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

// AdminIdentity returns a fresh identity with role "admin".
func AdminIdentity() auth.Identity {
	id := UserIdentity()
	id.Role = models.RoleAdmin
	return id
}

// IdentityFor builds the identity a token for u would produce.
func IdentityFor(u models.User) auth.Identity {
	id := UserIdentity()
	id.ID = u.ID
	id.Role = u.Role.OrDefault()
	return id
}

// NewJSONRequest builds a request whose body is v encoded as JSON.
// A string v is sent verbatim, which lets tests send malformed bodies.
func NewJSONRequest(t *testing.T, method, target string, v any) *http.Request {
	t.Helper()

	var body *bytes.Reader
	switch b := v.(type) {
	case nil:
		body = bytes.NewReader(nil)
	case string:
		body = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewAuthenticatedRequest builds a JSON request with id already in context,
// bypassing the token gate.
func NewAuthenticatedRequest(t *testing.T, method, target string, v any, id auth.Identity) *http.Request {
	t.Helper()
	return auth.WithTestIdentity(NewJSONRequest(t, method, target, v), id)
}

// ResponseRecorder wraps httptest.ResponseRecorder with helper methods.
type ResponseRecorder struct {
	*httptest.ResponseRecorder
}

// NewRecorder creates a new ResponseRecorder.
func NewRecorder() *ResponseRecorder {
	return &ResponseRecorder{httptest.NewRecorder()}
}

// AssertStatus checks the response status code.
func (r *ResponseRecorder) AssertStatus(t interface{ Errorf(string, ...any) }, expected int) {
	if r.Code != expected {
		t.Errorf("status code: got %d, want %d (body %s)", r.Code, expected, r.Body.String())
	}
}

// AssertContains checks if the response body contains the expected string.
func (r *ResponseRecorder) AssertContains(t interface{ Errorf(string, ...any) }, expected string) {
	if !strings.Contains(r.Body.String(), expected) {
		t.Errorf("response body does not contain %q: %s", expected, r.Body.String())
	}
}

// DecodeJSON decodes the body into v or fails the test.
func (r *ResponseRecorder) DecodeJSON(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(r.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", r.Body.String(), err)
	}
}

// ErrorBody is the decoded failure envelope.
type ErrorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
	Stack string `json:"stack"`
}

// AssertError checks status and envelope message together.
func (r *ResponseRecorder) AssertError(t *testing.T, status int, message string) ErrorBody {
	t.Helper()
	r.AssertStatus(t, status)
	var body ErrorBody
	r.DecodeJSON(t, &body)
	if body.Success {
		t.Errorf("success: got true, want false")
	}
	if body.Message != message {
		t.Errorf("message: got %q, want %q", body.Message, message)
	}
	return body
}
