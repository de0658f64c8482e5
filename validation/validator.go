package validation

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/kbukum/crossmatch/errors"
)

var (
	asinPattern = regexp.MustCompile(`^[A-Z0-9]{10}$`)
	wmIDPattern = regexp.MustCompile(`^[0-9]{1,20}$`)
)

// Validator collects validation errors.
type Validator struct {
	errors []FieldError
}

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates a new Validator.
func New() *Validator {
	return &Validator{}
}

// AddError adds a field error.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, FieldError{Field: field, Message: message})
}

// HasErrors returns true if there are validation errors.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors.
func (v *Validator) Errors() []FieldError {
	return v.errors
}

// Validate returns an INVALID_INPUT AppError if anything failed.
func (v *Validator) Validate() error {
	if !v.HasErrors() {
		return nil
	}
	messages := make([]string, len(v.errors))
	for i, e := range v.errors {
		messages[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return errors.InvalidInput(v.errors[0].Field, strings.Join(messages, "; ")).
		WithDetail("fields", v.errors)
}

// Required checks if a string is non-empty.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
	}
	return v
}

// RequiredUUID checks if a string is a valid non-nil UUID.
func (v *Validator) RequiredUUID(field, value string) *Validator {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	switch {
	case strings.TrimSpace(value) == "":
		v.AddError(field, "is required")
	case err != nil:
		v.AddError(field, "must be a valid UUID")
	case parsed == uuid.Nil:
		v.AddError(field, "must not be empty")
	}
	return v
}

// Range checks if a number is within a range.
func (v *Validator) Range(field string, value, minVal, maxVal int) *Validator {
	if value < minVal || value > maxVal {
		v.AddError(field, fmt.Sprintf("must be between %d and %d", minVal, maxVal))
	}
	return v
}

// OneOf checks if a value is one of the allowed values.
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	if value != "" && !slices.Contains(allowed, value) {
		v.AddError(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
	}
	return v
}

// NonEmpty checks that a list has at least one element.
func (v *Validator) NonEmpty(field string, values []string) *Validator {
	if len(values) == 0 {
		v.AddError(field, "must not be empty")
	}
	return v
}

// ASINs checks every value is a 10 character Amazon identifier.
func (v *Validator) ASINs(field string, values []string) *Validator {
	return v.each(field, values, asinPattern, "is not a valid ASIN")
}

// WmIDs checks every value is a numeric Walmart item id.
func (v *Validator) WmIDs(field string, values []string) *Validator {
	return v.each(field, values, wmIDPattern, "is not a valid Walmart item id")
}

// SKUs checks that no seller SKU is blank.
func (v *Validator) SKUs(field string, values []string) *Validator {
	for i, s := range values {
		if strings.TrimSpace(s) == "" {
			v.AddError(fmt.Sprintf("%s[%d]", field, i), "is required")
		}
	}
	return v
}

func (v *Validator) each(field string, values []string, re *regexp.Regexp, msg string) *Validator {
	for i, s := range values {
		if !re.MatchString(s) {
			v.AddError(fmt.Sprintf("%s[%d]", field, i), fmt.Sprintf("%q %s", s, msg))
		}
	}
	return v
}

// Custom applies a custom validation condition.
func (v *Validator) Custom(condition bool, field, message string) *Validator {
	if !condition {
		v.AddError(field, message)
	}
	return v
}
