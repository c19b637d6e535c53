package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dalemusser/codestreak/internal/app/system/inputval"
)

// envelope is the wire form of every failed response.
type envelope struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Errors  []inputval.FieldError `json:"errors,omitempty"`
	Stack   string                `json:"stack,omitempty"`
}

// Writer renders errors. Dev enables stack output.
type Writer struct {
	Log *zap.Logger
	Dev bool
}

// NewWriter returns a Writer. env is WAFFLE's execution mode ("dev" or "prod").
func NewWriter(logger *zap.Logger, env string) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{Log: logger, Dev: env == "dev"}
}

// Write classifies err, logs it and sends the envelope.
// Anything that is not an *Error becomes an Internal "Server Error".
func (wr *Writer) Write(w http.ResponseWriter, r *http.Request, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{Kind: Internal, Message: MsgServerError, Err: err, pcs: callers()}
	}
	status := e.Kind.Status()

	fields := []zap.Field{
		zap.String("kind", e.Kind.String()),
		zap.Int("status", status),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}
	if status >= 500 {
		wr.log().Error("request failed", fields...)
	} else {
		wr.log().Debug("request rejected", fields...)
	}

	body := envelope{Success: false, Message: e.Message, Errors: e.Fields}
	if wr != nil && wr.Dev {
		body.Stack = e.Stack()
	}
	WriteJSON(w, status, body)
}

func (wr *Writer) log() *zap.Logger {
	if wr == nil || wr.Log == nil {
		return zap.NewNop()
	}
	return wr.Log
}

// Recoverer turns a handler panic into an Internal error written through wr.
// http.ErrAbortHandler is re-raised so net/http can abort the response.
func (wr *Writer) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			wr.log().Error("handler panic",
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
				zap.String("request_id", middleware.GetReqID(r.Context())))
			wr.Write(w, r, Internalf("panic: %v", rec))
		}()
		next.ServeHTTP(w, r)
	})
}

// WriteJSON sends v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NotFoundHandler answers unmatched routes with the JSON envelope.
func (wr *Writer) NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wr.Write(w, r, New(NotFound, "Route not found"))
	}
}

// MethodNotAllowedHandler answers known paths hit with the wrong method.
func (wr *Writer) MethodNotAllowedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wr.Write(w, r, New(MethodNotAllowed, "Method not allowed"))
	}
}

// TooManyRequestsHandler is the rate limiter's rejection response.
func (wr *Writer) TooManyRequestsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wr.Write(w, r, New(TooManyRequests, "Too many requests, please try again later"))
	}
}
