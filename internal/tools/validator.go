package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sumire/recursiveflow/internal/domain"
)

// Validator wraps go-playground/validator and reports failures by JSON field name.
type Validator struct {
	validator *validator.Validate
}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validator: v}
}

// Validate validates a struct using go-playground/validator tags.
func (v *Validator) Validate(i any) error {
	if err := v.validator.Struct(i); err != nil {
		validationErrors, ok := err.(validator.ValidationErrors)
		if ok && len(validationErrors) > 0 {
			fe := validationErrors[0]
			return &domain.ValidationError{
				Field:   fe.Field(),
				Message: fmt.Sprintf("failed on '%s' validation", fe.Tag()),
			}
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// bind decodes tool arguments into T and validates them. Missing or null
// arguments decode as an empty object.
func bind[T any](v *Validator, raw json.RawMessage) (T, error) {
	var args T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	if err := json.Unmarshal(trimmed, &args); err != nil {
		return args, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := v.Validate(args); err != nil {
		return args, err
	}
	return args, nil
}
