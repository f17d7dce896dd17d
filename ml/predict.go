package ml

import (
	"encoding/json"
	"errors"
	"fmt"

	"modelkit/schema"
)

// Outcome is the terminal state of a single Predict call.
type Outcome string

const (
	OutcomeReturned Outcome = "returned"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// OutcomeOf classifies the error returned by Predict.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeReturned
	case IsSchemaValidation(err):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}

// ErrUnvalidatedInput is returned by models handed an Input that did not come
// from Predict.
var ErrUnvalidatedInput = errors.New("input was not validated against the model's input schema")

// Input is a prediction payload that has passed input schema validation. Only
// Predict can build one that reports Validated.
type Input struct {
	values map[string]any
	schema *schema.Schema
}

// Validated reports whether the payload was built by Predict.
func (in Input) Validated() bool {
	return in.schema != nil
}

// CheckedAgainst reports whether the payload was validated against s.
func (in Input) CheckedAgainst(s *schema.Schema) bool {
	return s != nil && in.schema == s
}

// RequireValidated is the first thing a model's Predict calls: it fails with
// ErrUnvalidatedInput unless in was validated against m's input schema.
func RequireValidated(m Model, in Input) error {
	if in.CheckedAgainst(m.InputSchema()) {
		return nil
	}
	return fmt.Errorf("%s: %w", m.QualifiedName(), ErrUnvalidatedInput)
}

// Float reads a number field. Missing fields read as 0.
func (in Input) Float(name string) float64 {
	switch v := in.values[name].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Vector reads the named number fields in order.
func (in Input) Vector(names ...string) []float64 {
	out := make([]float64, len(names))
	for i, name := range names {
		out[i] = in.Float(name)
	}
	return out
}

// Map returns a copy of the validated payload.
func (in Input) Map() map[string]any {
	return copyMap(in.values)
}

// Predict validates input against m's input schema and, only if it conforms,
// runs m's prediction logic on it. A non-conforming input yields a
// *SchemaValidationError and m is never called.
func Predict(m Model, input map[string]any) (map[string]any, error) {
	in, err := validateInput(m, input)
	if err != nil {
		return nil, err
	}
	return m.Predict(in)
}

func validateInput(m Model, input map[string]any) (Input, error) {
	s := m.InputSchema()
	if s == nil {
		return Input{}, fmt.Errorf("%s: model declares no input schema", m.QualifiedName())
	}
	if err := validateAgainst(m, DirectionInput, s.Validate(input)); err != nil {
		return Input{}, err
	}
	return Input{values: copyMap(input), schema: s}, nil
}

// ValidateOutput checks a prediction result against m's output schema.
// Implementations call it before returning from Predict.
func ValidateOutput(m Model, output map[string]any) error {
	s := m.OutputSchema()
	if s == nil {
		return fmt.Errorf("%s: model declares no output schema", m.QualifiedName())
	}
	return validateAgainst(m, DirectionOutput, s.Validate(output))
}

func validateAgainst(m Model, d Direction, err error) error {
	if err == nil {
		return nil
	}
	verr := asValidationError(err)
	if verr == nil {
		return fmt.Errorf("%s: validate %s: %w", m.QualifiedName(), d, err)
	}
	return &SchemaValidationError{Model: m.QualifiedName(), Direction: d, Err: verr}
}

func asValidationError(err error) *schema.ValidationError {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	return nil
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
