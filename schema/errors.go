package schema

import (
	"fmt"
	"strings"
)

// Reason classifies a single violation.
type Reason string

const (
	ReasonMissing    Reason = "missing"
	ReasonWrongType  Reason = "wrong_type"
	ReasonUnknown    Reason = "unknown_field"
	ReasonNotAllowed Reason = "not_allowed"
)

// Violation describes one field that failed validation. Path is dot separated
// for nested objects and "$" for the value itself.
type Violation struct {
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Reason   Reason `json:"reason"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s (expected %s, got %s)", v.Path, v.Reason, v.Expected, v.Actual)
}

// ValidationError is returned by Schema.Validate.
type ValidationError struct {
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "schema validation failed: " + strings.Join(parts, "; ")
}

// Paths returns the paths of all violations.
func (e *ValidationError) Paths() []string {
	paths := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		paths[i] = v.Path
	}
	return paths
}
