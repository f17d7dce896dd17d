// Package iris is the reference model: it predicts the species of an iris
// flower from four measurements using a decision tree trained on Fisher's
// Iris dataset.
//
// Importing the package registers the model with ml under QualifiedName.
package iris

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"modelkit/ml"
	"modelkit/schema"
)

// ArtifactPath locates the trained parameters relative to the model's
// packaging root.
const ArtifactPath = "model_files/tree_model.json"

const QualifiedName = "iris_model"

var descriptor = ml.MustDescriptor(
	"Iris Model",
	QualifiedName,
	"A machine learning model for predicting the species of a flower based on its measurements.",
	0, 1,
)

// featureNames is also the column order the classifier was trained on.
var featureNames = []string{"sepal_length", "sepal_width", "petal_length", "petal_width"}

// species maps classifier output indices to labels, by position.
var species = []string{"setosa", "versicolor", "virginica"}

var (
	inputSchema = schema.MustNew(
		schema.Number("sepal_length", schema.Describe("Sepal length in centimetres.")),
		schema.Number("sepal_width", schema.Describe("Sepal width in centimetres.")),
		schema.Number("petal_length", schema.Describe("Petal length in centimetres.")),
		schema.Number("petal_width", schema.Describe("Petal width in centimetres.")),
	)
	outputSchema = schema.MustNew(
		schema.String("species", schema.OneOf(species...), schema.Describe("Predicted iris species.")),
	)
)

//go:embed model_files/tree_model.json
var packaged embed.FS

func init() {
	ml.Register(QualifiedName, func(dir string) (ml.Model, error) {
		if dir == "" {
			return New()
		}
		return NewFromDir(dir)
	})
}

type Model struct {
	ml.Descriptor
	tree *ml.DecisionTree
}

// New constructs the model from the artifact packaged with this package.
func New() (*Model, error) {
	return construct(packaged, "embedded:"+ArtifactPath)
}

// NewFromDir constructs the model from dir/ArtifactPath, the layout written
// by Train.
func NewFromDir(dir string) (*Model, error) {
	return construct(os.DirFS(dir), filepath.Join(dir, ArtifactPath))
}

// NewFromFS constructs the model from ArtifactPath inside fsys.
func NewFromFS(fsys fs.FS) (*Model, error) {
	return construct(fsys, ArtifactPath)
}

func construct(fsys fs.FS, location string) (*Model, error) {
	fail := func(err error) (*Model, error) {
		return nil, &ml.ConstructionError{Model: QualifiedName, Path: location, Err: err}
	}

	payload, err := fs.ReadFile(fsys, ArtifactPath)
	if err != nil {
		return fail(err)
	}
	tree := &ml.DecisionTree{}
	if err := tree.UnmarshalArtifact(payload); err != nil {
		return fail(err)
	}
	if tree.Features() != len(featureNames) {
		return fail(fmt.Errorf("artifact expects %d features, model provides %d", tree.Features(), len(featureNames)))
	}
	if tree.Classes() > len(species) {
		return fail(fmt.Errorf("artifact emits %d classes, model labels %d", tree.Classes(), len(species)))
	}
	return &Model{Descriptor: descriptor, tree: tree}, nil
}

func (m *Model) InputSchema() *schema.Schema  { return inputSchema }
func (m *Model) OutputSchema() *schema.Schema { return outputSchema }

// Predict classifies a validated measurement set. Callers go through
// ml.Predict, which performs the input validation.
func (m *Model) Predict(in ml.Input) (map[string]any, error) {
	if err := ml.RequireValidated(m, in); err != nil {
		return nil, err
	}
	class, _, err := m.tree.Predict(in.Vector(featureNames...))
	if err != nil {
		return nil, fmt.Errorf("%s: classify: %w", QualifiedName, err)
	}

	out := map[string]any{"species": label(class)}
	if err := ml.ValidateOutput(m, out); err != nil {
		return nil, err
	}
	return out, nil
}

func label(class int) string {
	if class < 0 || class >= len(species) {
		panic(&ml.ContractViolation{
			Model:  QualifiedName,
			Reason: fmt.Sprintf("classifier returned class %d, only %d labels are defined", class, len(species)),
		})
	}
	return species[class]
}

// Species returns the output labels in classifier index order.
func Species() []string {
	return append([]string(nil), species...)
}

// FeatureNames returns the input fields in classifier column order.
func FeatureNames() []string {
	return append([]string(nil), featureNames...)
}
