// Package apierr is the JSON error boundary of the API.
//
// Handlers and middleware return or pass *Error values; Writer turns any
// error into the response envelope
//
//	{"success": false, "message": "...", "errors": [...], "stack": "..."}
//
// Only the client message crosses the boundary. Causes are logged, and the
// stack is echoed only in dev mode.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"github.com/dalemusser/codestreak/internal/app/system/inputval"
)

// Kind classifies a failure and fixes its HTTP status.
type Kind int

const (
	Internal Kind = iota
	ValidationFailed
	DuplicateAccount
	InvalidCredentials
	Unauthenticated
	Forbidden
	SocialAuthFailed
	NotImplemented
	NotFound
	MethodNotAllowed
	TooManyRequests
)

var kindNames = map[Kind]string{
	Internal:           "internal",
	ValidationFailed:   "validation_failed",
	DuplicateAccount:   "duplicate_account",
	InvalidCredentials: "invalid_credentials",
	Unauthenticated:    "unauthenticated",
	Forbidden:          "forbidden",
	SocialAuthFailed:   "social_auth_failed",
	NotImplemented:     "not_implemented",
	NotFound:           "not_found",
	MethodNotAllowed:   "method_not_allowed",
	TooManyRequests:    "too_many_requests",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Status returns the HTTP status code for k.
func (k Kind) Status() int {
	switch k {
	case ValidationFailed, DuplicateAccount, InvalidCredentials:
		return http.StatusBadRequest
	case Unauthenticated, SocialAuthFailed:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case MethodNotAllowed:
		return http.StatusMethodNotAllowed
	case TooManyRequests:
		return http.StatusTooManyRequests
	case NotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// Client messages shared by several call sites.
const (
	MsgServerError        = "Server Error"
	MsgValidationFailed   = "Validation failed"
	MsgUserExists         = "User already exists"
	MsgInvalidCredentials = "Invalid Credentials"
	MsgNoToken            = "No token, authorization denied"
	MsgTokenInvalid       = "Token is not valid"
	MsgInsufficientRole   = "Insufficient permissions for this action"
	MsgUserNotFound       = "User not found"
	MsgNotAuthorized      = "Not authorized"
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	Fields  []inputval.FieldError
	Err     error

	pcs []uintptr
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same Kind, so errors.Is(err, apierr.New(k, "")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Stack formats the call stack captured when e was built.
func (e *Error) Stack() string {
	if len(e.pcs) == 0 {
		return ""
	}
	var b strings.Builder
	frames := runtime.CallersFrames(e.pcs)
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}
	return b.String()
}

func callers() []uintptr {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	return pcs[:n]
}

// New builds an Error with a client message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg, pcs: callers()}
}

// Wrap builds an Error that keeps cause for logging.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause, pcs: callers()}
}

// Internalf wraps an unexpected failure. The client only sees "Server Error".
func Internalf(format string, args ...any) *Error {
	return &Error{Kind: Internal, Message: MsgServerError, Err: fmt.Errorf(format, args...), pcs: callers()}
}

// Validation builds a ValidationFailed error listing every failed field.
func Validation(fields []inputval.FieldError) *Error {
	return &Error{Kind: ValidationFailed, Message: MsgValidationFailed, Fields: fields, pcs: callers()}
}

// KindOf returns the Kind of err, or Internal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
