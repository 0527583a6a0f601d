package serrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// BaseError is a coded error usable as a sentinel with errors.Is.
type BaseError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	LocaleKey string `json:"locale_key,omitempty"`
}

func NewError(code, message, localeKey string) *BaseError {
	return &BaseError{Code: code, Message: message, LocaleKey: localeKey}
}

func (e *BaseError) Error() string {
	return e.Message
}

// Is matches any *BaseError carrying the same code.
func (e *BaseError) Is(target error) bool {
	var t *BaseError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// ValidationErrors maps a field name to the reason it was rejected.
type ValidationErrors map[string]error

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %v", field, v[field]))
	}
	return strings.Join(parts, "; ")
}

// Messages flattens the map for JSON responses.
func (v ValidationErrors) Messages() map[string]string {
	out := make(map[string]string, len(v))
	for field, err := range v {
		out[field] = err.Error()
	}
	return out
}

// ProcessValidatorErrors converts validator failures into ValidationErrors.
// localeKey may return "" to fall back to the struct field name.
func ProcessValidatorErrors(errs validator.ValidationErrors, localeKey func(field string) string) ValidationErrors {
	out := make(ValidationErrors, len(errs))
	for _, fe := range errs {
		key := fe.Field()
		if localeKey != nil {
			if k := localeKey(fe.Field()); k != "" {
				key = k
			}
		}
		out[key] = fieldError(fe)
	}
	return out
}

func fieldError(fe validator.FieldError) error {
	switch fe.Tag() {
	case "required":
		return errors.New("is required")
	case "min", "gte":
		return fmt.Errorf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Errorf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Errorf("must be one of [%s]", fe.Param())
	default:
		return fmt.Errorf("failed %q validation", fe.Tag())
	}
}
