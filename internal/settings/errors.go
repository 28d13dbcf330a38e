package settings

import (
	"fmt"
	"strings"

	"grimm.is/halyard/internal/fault"
)

// ValidationError is a single field-level problem.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every field problem found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// FaultKind classifies the collection as a validation failure.
func (e ValidationErrors) FaultKind() fault.Kind { return fault.Validation }

// Add appends a problem for field.
func (e *ValidationErrors) Add(field, format string, args ...any) {
	*e = append(*e, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// HasErrors reports whether any problem was collected.
func (e ValidationErrors) HasErrors() bool { return len(e) > 0 }

// Err returns nil when the collection is empty, so callers never see a
// non-nil error interface wrapping an empty slice.
func (e ValidationErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}
