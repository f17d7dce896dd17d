package ml

import "modelkit/schema"

// Model is the contract every packaged model satisfies, independent of the
// algorithm behind it.
//
// Metadata and schema accessors must return the same values for every
// instance of a model type. Predict is only ever reached through the
// package-level Predict function: it receives an Input that has already been
// validated against InputSchema, and it must not mutate instance state.
// Implementations start with RequireValidated so a hand-built Input is
// refused.
type Model interface {
	Name() string
	QualifiedName() string
	Description() string
	MajorVersion() int
	MinorVersion() int

	InputSchema() *schema.Schema
	OutputSchema() *schema.Schema

	Predict(in Input) (map[string]any, error)
}

// Classifier is a trained estimator mapping a feature vector to a class index.
type Classifier interface {
	Train(features [][]float64, labels []int) error
	Predict(features []float64) (int, float64, error)
	Save(path string) error
	Load(path string) error
}

// Direction tells whether a schema applies to a model's input or output.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// SchemaFor returns the model schema for the given direction.
func SchemaFor(m Model, d Direction) *schema.Schema {
	if d == DirectionOutput {
		return m.OutputSchema()
	}
	return m.InputSchema()
}
