package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate validates the Config using struct tags, skipping the store
// principal requirements in DevMode since the in-memory store is used
// instead of Redis.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if c.DevMode {
		if err := v.StructExcept(c, "Store"); err != nil {
			return formatValidationErrors(err)
		}
		return nil
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "hostname", "hostname|ip":
		return fmt.Sprintf("%s must be a valid host", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
