package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator wraps struct-tag validation for service request DTOs.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	return &Validator{validate: validator.New()}
}

// Validate checks s against its validate tags and returns a single error
// summarizing every failed field.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return err
	}

	parts := make([]string, 0, len(invalid))
	for _, fieldErr := range invalid {
		parts = append(parts, fmt.Sprintf("%s failed on %q", fieldErr.Field(), fieldErr.Tag()))
	}
	return fmt.Errorf("invalid request: %s", strings.Join(parts, ", "))
}
