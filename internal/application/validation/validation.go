// Package validation wraps go-playground/validator for command and form
// validation. Field names in errors follow the json tags of the struct.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/vibecoding/vibe-academy/internal/domain/onboarding"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

const (
	notBlankTag     = "notblank"
	learningPathTag = "learning_path"
	slugTag         = "slug"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// Validator returns the shared validator instance.
func Validator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})

		_ = validate.RegisterValidation(notBlankTag, notBlank)
		_ = validate.RegisterValidation(learningPathTag, learningPath)
		_ = validate.RegisterValidation(slugTag, slug)
	})
	return validate
}

func notBlank(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return false
}

// learningPath accepts an empty value; required-ness is a separate tag.
func learningPath(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s == "" || onboarding.PathLabel(s).IsValid()
}

func slug(fl validator.FieldLevel) bool {
	return shared.IsSlug(fl.Field().String())
}

// FieldErrors maps a json field name to a human readable message.
type FieldErrors struct {
	Fields map[string]string
}

// Error implements error.
func (e *FieldErrors) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is makes FieldErrors match shared.ErrValidation.
func (e *FieldErrors) Is(target error) bool {
	return target == shared.ErrValidation
}

// Struct validates s and returns *FieldErrors or nil.
func Struct(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = message(fe)
	}
	return &FieldErrors{Fields: fields}
}

// fieldPath drops the top-level struct name: "Cmd.experience.react" -> "experience.react".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", notBlankTag:
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "uuid", "uuid4":
		return "must be a valid UUID"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case learningPathTag:
		return "must be one of beginner, builder, developer, speedrunner, expert"
	case slugTag:
		return "must be a lowercase identifier"
	default:
		return fmt.Sprintf("failed on %s", fe.Tag())
	}
}
