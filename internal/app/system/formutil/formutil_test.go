package formutil_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/codestreak/internal/app/system/apierr"
	"github.com/dalemusser/codestreak/internal/app/system/formutil"
)

type loginBody struct {
	Email    string `json:"email" validate:"required,email" msg:"Please include a valid email"`
	Password string `json:"password" validate:"required" msg:"Password is required"`
}

func bind(body string, max int64) (loginBody, error) {
	var in loginBody
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	err := formutil.Bind(httptest.NewRecorder(), req, &in, max)
	return in, err
}

func fields(t *testing.T, err error) map[string]string {
	t.Helper()
	var e *apierr.Error
	if !errors.As(err, &e) || e.Kind != apierr.ValidationFailed {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
	out := map[string]string{}
	for _, f := range e.Fields {
		out[f.Field] = f.Message
	}
	return out
}

func TestBind(t *testing.T) {
	in, err := bind(`{"email":"ann@example.com","password":"secret1"}`, 1024)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if in.Email != "ann@example.com" {
		t.Errorf("Email = %q", in.Email)
	}
}

func TestBind_MissingFields(t *testing.T) {
	for _, body := range []string{``, `{}`} {
		_, err := bind(body, 1024)
		got := fields(t, err)
		if got["email"] != "Please include a valid email" || got["password"] != "Password is required" {
			t.Errorf("body %q: fields = %v", body, got)
		}
	}
}

func TestBind_NotJSON(t *testing.T) {
	_, err := bind(`email=ann`, 1024)
	if got := fields(t, err); got["body"] != "Request body must be valid JSON" {
		t.Errorf("fields = %v", got)
	}
}

func TestBind_TooLarge(t *testing.T) {
	_, err := bind(`{"email":"`+strings.Repeat("a", 200)+`@example.com"}`, 64)
	if got := fields(t, err); got["body"] != "Request body is too large" {
		t.Errorf("fields = %v", got)
	}
}
