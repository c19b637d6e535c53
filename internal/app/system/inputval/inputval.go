// Package inputval validates decoded request bodies with struct tags.
//
// Fields use `validate` rules from go-playground/validator, a `json` name
// reported back to the client and an optional `msg` that replaces the
// generated message for any rule failing on that field. `msg_<rule>` wins
// over `msg` for that one rule:
//
//	Email string `json:"email" validate:"required,email" msg:"Please include a valid email"`
package inputval

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/dalemusser/codestreak/internal/domain/models"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FieldError is one failed field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result holds every failure from one Validate call, in field order.
type Result struct {
	Errors []FieldError
}

// HasErrors reports whether any field failed.
func (r *Result) HasErrors() bool { return len(r.Errors) > 0 }

// First returns the first message or "".
func (r *Result) First() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// All joins every message with "; ".
func (r *Result) All() string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())

	// Report the JSON name rather than the Go field name.
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = val.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
		return IsValidObjectID(fl.Field().String())
	})
	_ = val.RegisterValidation("projectstatus", func(fl validator.FieldLevel) bool {
		return models.IsValidProjectStatus(fl.Field().String())
	})
	// maxbytes counts bytes rather than runes; bcrypt reads at most 72.
	_ = val.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Param())
		return err == nil && len(fl.Field().String()) <= n
	})
	_ = val.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		_, err := models.ParseRole(fl.Field().String())
		return err == nil
	})
	return val
}

// Validate runs the struct's `validate` rules. s must be a struct or pointer to one.
func Validate(s any) *Result {
	res := &Result{}
	err := v.Struct(s)
	if err == nil {
		return res
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		res.Errors = append(res.Errors, FieldError{Message: err.Error()})
		return res
	}

	rt := reflect.TypeOf(s)
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}

	seen := make(map[string]bool)
	for _, fe := range verrs {
		// One message per field, even when several rules fail.
		if seen[fe.Field()] {
			continue
		}
		seen[fe.Field()] = true
		res.Errors = append(res.Errors, FieldError{
			Field:   fe.Field(),
			Message: messageFor(rt, fe),
		})
	}
	return res
}

func messageFor(rt reflect.Type, fe validator.FieldError) string {
	if sf, ok := rt.FieldByName(fe.StructField()); ok {
		if msg := sf.Tag.Get("msg_" + fe.Tag()); msg != "" {
			return msg
		}
		if msg := sf.Tag.Get("msg"); msg != "" {
			return msg
		}
	}

	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return "Please include a valid email"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "maxbytes":
		return fmt.Sprintf("%s must be at most %s bytes", field, fe.Param())
	case "objectid":
		return fmt.Sprintf("%s is not a valid id", field)
	case "projectstatus":
		return fmt.Sprintf("%s must be one of planning, in-progress, completed", field)
	case "role":
		return fmt.Sprintf("%s is not a known role", field)
	case "dive":
		return fmt.Sprintf("%s contains an invalid value", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// IsValidObjectID reports whether s is a 24-char hex ObjectID.
func IsValidObjectID(s string) bool {
	return primitive.IsValidObjectID(strings.TrimSpace(s))
}
