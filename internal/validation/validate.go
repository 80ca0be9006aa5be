// Package validation checks input shapes declared with `validate` struct tags
// and converts failures into apperr.ValidationError.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/aura-attendance/backend/internal/apperr"
	"github.com/aura-attendance/backend/internal/naming"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		// identname: the sanitized form is non-empty and leaves room for a suffix.
		_ = validate.RegisterValidation("identname", func(fl validator.FieldLevel) bool {
			s := naming.Sanitize(fl.Field().String())
			return strings.Trim(s, "_") != "" && len(s)+len(naming.VerificationSuffix) <= naming.MaxIdentifierLen
		})
	})
	return validate
}

// Struct validates v and returns an *apperr.ValidationError listing every violated field.
func Struct(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &apperr.ValidationError{Fields: make([]apperr.FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, apperr.FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "identname":
		return "must contain letters or digits and be short enough to name storage"
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}
