// Package validation checks the structure and format of request payloads.
// It never reports invalid input as an error: malformed payloads produce a
// Result with per-field messages. Errors are reserved for programmer mistakes
// such as a bad tag or a non-struct payload.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/security"
)

// ErrInvalidSchema signals a payload type or tag set the validator cannot evaluate.
var ErrInvalidSchema = errors.New("invalid validation schema")

var (
	personNamePattern = regexp.MustCompile(`^\p{L}[\p{L}\p{M} '’\-]*$`)
	slugPattern       = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	passwordPolicy    = security.DefaultPasswordPolicy()
)

// Result is the outcome of validating one payload.
type Result struct {
	Valid       bool              `json:"valid"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
}

func valid() Result {
	return Result{Valid: true}
}

// Validator wraps go-playground/validator with the newsroom tags.
type Validator struct {
	validate *validator.Validate
}

// New builds a validator with the password, personname and slug tags registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"json", "form", "uri"} {
			name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return field.Name
	})

	// Registration only fails for empty tag names.
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return passwordPolicy.Validate(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		return personNamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})

	v.RegisterStructValidation(signupStructLevel, SignupRequest{})

	return &Validator{validate: v}
}

// Validate evaluates payload against its struct tags.
func (v *Validator) Validate(payload any) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{}
			err = fmt.Errorf("%w: %v", ErrInvalidSchema, r)
		}
	}()

	verr := v.validate.Struct(payload)
	if verr == nil {
		return valid(), nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(verr, &invalid) {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidSchema, verr)
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(verr, &fieldErrs) {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidSchema, verr)
	}

	out := Result{FieldErrors: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		key := fieldKey(fe)
		if _, exists := out.FieldErrors[key]; exists {
			continue
		}
		out.FieldErrors[key] = message(fe)
	}
	return out, nil
}

// Var validates a single value against a tag expression, e.g. "required,email".
func (v *Validator) Var(field string, value any, tag string) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{}
			err = fmt.Errorf("%w: %v", ErrInvalidSchema, r)
		}
	}()

	verr := v.validate.Var(value, tag)
	if verr == nil {
		return valid(), nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(verr, &fieldErrs) || len(fieldErrs) == 0 {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidSchema, verr)
	}
	return Result{FieldErrors: map[string]string{field: message(fieldErrs[0])}}, nil
}

func fieldKey(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url", "http_url":
		return "must be a valid URL"
	case "uuid", "uuid4":
		return "must be a valid UUID"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s items", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at most %s items", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return "must be one of: " + strings.Join(strings.Fields(fe.Param()), ", ")
	case "eqfield":
		return "must match " + strings.ToLower(fe.Param())
	case "personname":
		return "may contain only letters, spaces, hyphens and apostrophes"
	case "slug":
		return "must be lowercase letters, digits and single hyphens"
	case "password":
		return passwordMessage(fe.Value())
	case "password_context":
		return "must not be based on your name or email"
	default:
		return "is invalid"
	}
}

func passwordMessage(value any) string {
	password, _ := value.(string)
	err := passwordPolicy.Validate(password)
	var pErr *security.PasswordViolation
	if errors.As(err, &pErr) {
		return pErr.Message
	}
	return "does not meet the password policy"
}
