package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateText applies the checks every free-text field gets: valid UTF-8,
// no null bytes, bounded length.
func ValidateText(c *Collector, field, value string, max int) {
	c.Add(ValidateUTF8(field, value))
	c.Add(ValidateNoNullBytes(field, value))
	c.Add(ValidateMaxLength(field, value, max))
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{
			Field:   field,
			Message: "must be valid UTF-8",
		}
	}
	return nil
}

// ValidateNoNullBytes returns an error if the value contains null bytes.
func ValidateNoNullBytes(field, value string) *ValidationError {
	if strings.Contains(value, "\x00") {
		return &ValidationError{
			Field:   field,
			Message: "must not contain null bytes",
		}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateEnum returns an error if the value is not in the allowed list.
func ValidateEnum(field, value string, allowed []string) *ValidationError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateIntRange returns an error if the value is outside [min, max].
func ValidateIntRange(field string, value, min, max int) *ValidationError {
	if value < min || value > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be between %d and %d", min, max),
		}
	}
	return nil
}

// ValidateDate returns an error unless value is a YYYY-MM-DD calendar date.
func ValidateDate(field, value string) *ValidationError {
	if _, err := time.Parse(time.DateOnly, value); err != nil {
		return &ValidationError{
			Field:   field,
			Message: "must be a date in YYYY-MM-DD format",
		}
	}
	return nil
}

// ValidateMonthName returns an error unless value is an English month name.
func ValidateMonthName(field, value string) *ValidationError {
	for m := time.January; m <= time.December; m++ {
		if value == m.String() {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Message: "must be a month name such as January",
	}
}
