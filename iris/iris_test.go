package iris

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"

	"modelkit/ml"
)

func newModel(t *testing.T) *Model {
	t.Helper()
	model, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return model
}

func TestNewLoadsPackagedArtifact(t *testing.T) {
	model := newModel(t)
	if model.tree == nil || model.tree.Features() != 4 || model.tree.Classes() != 3 {
		t.Fatalf("unexpected classifier state")
	}
}

func TestMetadata(t *testing.T) {
	model := newModel(t)
	if model.Name() != "Iris Model" {
		t.Fatalf("unexpected name %q", model.Name())
	}
	if model.QualifiedName() != "iris_model" {
		t.Fatalf("unexpected qualified name %q", model.QualifiedName())
	}
	if model.Description() != "A machine learning model for predicting the species of a flower based on its measurements." {
		t.Fatalf("unexpected description %q", model.Description())
	}
	if model.MajorVersion() != 0 || model.MinorVersion() != 1 {
		t.Fatalf("unexpected version %d.%d", model.MajorVersion(), model.MinorVersion())
	}
	other := newModel(t)
	if ml.DescriptorOf(model) != ml.DescriptorOf(other) {
		t.Fatalf("metadata must be identical across instances")
	}
}

func TestSchemasAreStable(t *testing.T) {
	model := newModel(t)
	if model.InputSchema() == nil || model.OutputSchema() == nil {
		t.Fatalf("schemas must not be nil")
	}
	if model.InputSchema() != model.InputSchema() || model.OutputSchema() != newModel(t).OutputSchema() {
		t.Fatalf("schemas must be shared and stable")
	}
}

func TestInputSchemaRejectsWrongData(t *testing.T) {
	err := inputSchema.Validate(map[string]any{"name": "Sue", "age": "28", "gender": "Squid"})
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestInputSchemaAcceptsMeasurements(t *testing.T) {
	err := inputSchema.Validate(map[string]any{
		"sepal_length": 1.0,
		"sepal_width":  1.0,
		"petal_length": 1.0,
		"petal_width":  1.0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOutputSchemaRejectsNumericSpecies(t *testing.T) {
	if err := outputSchema.Validate(map[string]any{"species": 1.0}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestOutputSchemaAcceptsSpecies(t *testing.T) {
	if err := outputSchema.Validate(map[string]any{"species": "setosa"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPredictRejectsWrongData(t *testing.T) {
	model := newModel(t)
	_, err := ml.Predict(model, map[string]any{"name": "Sue", "age": "28", "gender": "Squid"})
	var verr *ml.SchemaValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected schema validation error, got %v", err)
	}
	missing := 0
	for _, v := range verr.Violations() {
		if v.Actual == "missing" {
			missing++
		}
	}
	if missing != 4 {
		t.Fatalf("expected all 4 measurements reported missing, got %v", verr.Violations())
	}
}

func TestPredictRefusesUnvalidatedInput(t *testing.T) {
	var model ml.Model = newModel(t)
	out, err := model.Predict(ml.Input{})
	if !errors.Is(err, ml.ErrUnvalidatedInput) {
		t.Fatalf("expected ErrUnvalidatedInput, got out=%v err=%v", out, err)
	}
	if out != nil {
		t.Fatalf("expected no output, got %v", out)
	}
}

func TestPredictRejectsNonFiniteMeasurements(t *testing.T) {
	model := newModel(t)
	_, err := ml.Predict(model, map[string]any{
		"sepal_length": math.NaN(),
		"sepal_width":  math.Inf(1),
		"petal_length": math.NaN(),
		"petal_width":  math.NaN(),
	})
	var verr *ml.SchemaValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected schema validation error, got %v", err)
	}
	if got := len(verr.Violations()); got != 4 {
		t.Fatalf("expected 4 violations, got %v", verr.Violations())
	}
}

func TestPredictSetosa(t *testing.T) {
	model := newModel(t)
	prediction, err := ml.Predict(model, map[string]any{
		"sepal_length": 1.0,
		"sepal_width":  1.0,
		"petal_length": 1.0,
		"petal_width":  1.0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := outputSchema.Validate(prediction); err != nil {
		t.Fatalf("prediction does not match output schema: %v", err)
	}
	if prediction["species"] != "setosa" {
		t.Fatalf("expected setosa, got %v", prediction["species"])
	}
}

func TestPredictDatasetConformsToOutputSchema(t *testing.T) {
	model := newModel(t)
	data, err := LoadDataset()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	correct := 0
	for i := 0; i < data.Len(); i++ {
		prediction, err := ml.Predict(model, data.Sample(i))
		if err != nil {
			t.Fatalf("row %d: unexpected error: %v", i, err)
		}
		if err := outputSchema.Validate(prediction); err != nil {
			t.Fatalf("row %d: %v", i, err)
		}
		if prediction["species"] == species[data.Labels[i]] {
			correct++
		}
	}
	if accuracy := float64(correct) / float64(data.Len()); accuracy < 0.9 {
		t.Fatalf("packaged artifact accuracy %.2f is too low", accuracy)
	}
}

func TestPredictIsIdempotentAndConcurrent(t *testing.T) {
	model := newModel(t)
	input := map[string]any{"sepal_length": 6.3, "sepal_width": 3.3, "petal_length": 6.0, "petal_width": 2.5}
	want, err := ml.Predict(model, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := ml.Predict(model, input)
			if err != nil {
				errs <- err
				return
			}
			if got["species"] != want["species"] {
				errs <- errors.New("prediction changed between calls")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	if want["species"] != "virginica" {
		t.Fatalf("expected virginica, got %v", want["species"])
	}
}

func TestJSONSchemaGeneration(t *testing.T) {
	model := newModel(t)
	doc := model.OutputSchema().JSONSchema("https://example.com/my-schema.json")
	if doc["$id"] != "https://example.com/my-schema.json" {
		t.Fatalf("unexpected $id %v", doc["$id"])
	}
	payload, err := json.Marshal(model.InputSchema().JSONSchema("https://example.com/input.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded struct {
		Required   []string                  `json:"required"`
		Properties map[string]map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decoded.Required) != 4 || len(decoded.Properties) != 4 {
		t.Fatalf("unexpected input schema document %s", payload)
	}
	for _, name := range featureNames {
		if decoded.Properties[name]["type"] != "number" {
			t.Fatalf("field %s should be a number: %s", name, payload)
		}
	}
}

func TestConstructionFailsForMissingArtifact(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist")
	_, err := NewFromDir(dir)
	var cerr *ml.ConstructionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected construction error, got %v", err)
	}
	if cerr.Path != filepath.Join(dir, ArtifactPath) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("unexpected construction error %v", err)
	}
}

func TestConstructionFailsForIncompatibleArtifacts(t *testing.T) {
	cases := map[string]string{
		"corrupt":       `not json`,
		"wrong width":   `{"format":"modelkit.decision_tree","format_version":1,"features":2,"classes":3,"nodes":[{"is_leaf":true}]}`,
		"extra classes": `{"format":"modelkit.decision_tree","format_version":1,"features":4,"classes":5,"nodes":[{"is_leaf":true}]}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			fsys := fstest.MapFS{ArtifactPath: &fstest.MapFile{Data: []byte(payload)}}
			model, err := NewFromFS(fsys)
			if model != nil || !ml.IsConstruction(err) {
				t.Fatalf("expected construction error, got %v", err)
			}
		})
	}
}

func TestOutOfRangeClassIsContractViolation(t *testing.T) {
	tree := &ml.DecisionTree{}
	err := tree.UnmarshalArtifact([]byte(`{"format":"modelkit.decision_tree","format_version":1,"features":4,"classes":4,` +
		`"nodes":[{"is_leaf":true,"class_label":3}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	model := &Model{Descriptor: descriptor, tree: tree}

	defer func() {
		r := recover()
		cv, ok := r.(*ml.ContractViolation)
		if !ok {
			t.Fatalf("expected *ml.ContractViolation panic, got %v", r)
		}
		if cv.Model != QualifiedName {
			t.Fatalf("unexpected model %q", cv.Model)
		}
	}()
	_, _ = ml.Predict(model, map[string]any{
		"sepal_length": 1.0, "sepal_width": 1.0, "petal_length": 1.0, "petal_width": 1.0,
	})
}

func TestRegisteredWithLoader(t *testing.T) {
	model, err := ml.LoadModel(QualifiedName, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.QualifiedName() != QualifiedName {
		t.Fatalf("unexpected model %s", model.QualifiedName())
	}
	if _, err := ml.LoadModel(QualifiedName, t.TempDir()); !ml.IsConstruction(err) {
		t.Fatalf("expected construction error for empty dir, got %v", err)
	}
}
