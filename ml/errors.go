package ml

import (
	"errors"
	"fmt"

	"modelkit/schema"
)

// ConstructionError is returned when a model's learned parameters cannot be
// loaded. No instance is produced.
type ConstructionError struct {
	Model string
	Path  string
	Err   error
}

func (e *ConstructionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("construct %s: %v", e.Model, e.Err)
	}
	return fmt.Sprintf("construct %s from %s: %v", e.Model, e.Path, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// SchemaValidationError is returned when a value does not conform to a model
// schema. It is the caller's input (or, for DirectionOutput, the model's
// result) that is at fault, never the model's learned state.
type SchemaValidationError struct {
	Model     string
	Direction Direction
	Err       *schema.ValidationError
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("%s: %s %v", e.Model, e.Direction, e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

// Violations returns the field-level diagnostics.
func (e *SchemaValidationError) Violations() []schema.Violation {
	if e.Err == nil {
		return nil
	}
	return e.Err.Violations
}

// ContractViolation signals a defect in a model implementation, such as a
// classifier emitting a class index with no label. It is raised with panic.
type ContractViolation struct {
	Model  string
	Reason string
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("%s: contract violation: %s", e.Model, e.Reason)
}

// IsSchemaValidation reports whether err carries a SchemaValidationError.
func IsSchemaValidation(err error) bool {
	var target *SchemaValidationError
	return errors.As(err, &target)
}

// IsConstruction reports whether err carries a ConstructionError.
func IsConstruction(err error) bool {
	var target *ConstructionError
	return errors.As(err, &target)
}
