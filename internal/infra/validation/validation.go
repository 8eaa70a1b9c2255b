// Package validation checks struct tagged input and reports problems as
// domain.ValidationErrors keyed by JSON field name.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/mkrupp/joynest/internal/domain"
)

var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

//nolint:gochecknoglobals
var (
	instance *validator.Validate
	once     sync.Once
)

func get() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())

		instance.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}

			if name == "" {
				return field.Name
			}

			return name
		})

		_ = instance.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return usernameRegex.MatchString(fl.Field().String())
		})
	})

	return instance
}

// Struct validates v against its `validate` tags. It returns nil or a
// domain.ValidationErrors.
func Struct(v any) error {
	err := get().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate: %w", err)
	}

	errs := make(domain.ValidationErrors, len(fieldErrs))

	for _, fe := range fieldErrs {
		if _, seen := errs[fe.Field()]; !seen {
			errs[fe.Field()] = message(fe)
		}
	}

	return errs
}

// Merge combines validation problems, returning nil if there are none.
func Merge(errs ...error) error {
	merged := domain.ValidationErrors{}

	for _, err := range errs {
		if err == nil {
			continue
		}

		var verrs domain.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}

		for field, msg := range verrs {
			if _, seen := merged[field]; !seen {
				merged[field] = msg
			}
		}
	}

	if len(merged) == 0 {
		return nil
	}

	return merged
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.String {
			return "must be at least " + fe.Param() + " characters"
		}

		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}

		return "must be at most " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "eqfield":
		return "must match " + strings.ToLower(fe.Param())
	case "username":
		return "may only contain letters, numbers and underscores"
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "is invalid"
	}
}
