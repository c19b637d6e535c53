// Package formutil decodes and validates JSON request bodies.
//
// Every failure comes back as an apierr ValidationFailed so handlers can
// pass it straight to apierr.Writer:
//
//	var in authflow.LoginInput
//	if err := formutil.Bind(w, r, &in, limits.MaxAuthBody); err != nil {
//		h.Errors.Write(w, r, err)
//		return
//	}
package formutil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dalemusser/codestreak/internal/app/system/apierr"
	"github.com/dalemusser/codestreak/internal/app/system/inputval"
)

// Decode reads one JSON value from r's body into dst, capped at maxBytes.
// An empty body decodes as {} so required-field rules report what is missing.
func Decode(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64) error {
	body := http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(body)

	err := dec.Decode(dst)
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	default:
		var tooBig *http.MaxBytesError
		msg := "Request body must be valid JSON"
		if errors.As(err, &tooBig) {
			msg = "Request body is too large"
		}
		e := apierr.Validation([]inputval.FieldError{{Field: "body", Message: msg}})
		e.Err = err
		return e
	}
}

// Bind decodes into dst and runs its `validate` rules.
func Bind(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64) error {
	if err := Decode(w, r, dst, maxBytes); err != nil {
		return err
	}
	if res := inputval.Validate(dst); res.HasErrors() {
		return apierr.Validation(res.Errors)
	}
	return nil
}
