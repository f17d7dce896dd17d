package iris

import (
	"os"
	"path/filepath"
	"testing"

	"modelkit/ml"
)

func TestLoadDataset(t *testing.T) {
	data, err := LoadDataset()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data.Len() != 150 {
		t.Fatalf("expected 150 rows, got %d", data.Len())
	}
	counts := make([]int, len(species))
	for _, label := range data.Labels {
		counts[label]++
	}
	for i, count := range counts {
		if count != 50 {
			t.Fatalf("expected 50 %s rows, got %d", species[i], count)
		}
	}
	head := data.Head(3)
	if head.Len() != 3 || len(head.Rows()[0]) != 4 {
		t.Fatalf("unexpected head shape")
	}
	if data.Sample(0)["sepal_length"] != 5.1 {
		t.Fatalf("unexpected first sample %v", data.Sample(0))
	}
}

func TestTrainWithDefaults(t *testing.T) {
	dir := t.TempDir()
	result, err := Train(dir, TrainOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MaxDepth != ml.DefaultMaxDepth || result.MinSamplesSplit != ml.DefaultMinSamplesSplit {
		t.Fatalf("expected default hyperparameters, got %+v", result)
	}
	if result.ArtifactPath != filepath.Join(dir, ArtifactPath) {
		t.Fatalf("unexpected artifact path %s", result.ArtifactPath)
	}
	if result.TrainedSamples != 149 {
		t.Fatalf("expected 149 training samples, got %d", result.TrainedSamples)
	}
	if result.Accuracy < 0.95 {
		t.Fatalf("expected accuracy >= 0.95, got %.3f", result.Accuracy)
	}

	model, err := NewFromDir(dir)
	if err != nil {
		t.Fatalf("trained artifact must be loadable: %v", err)
	}
	prediction, err := ml.Predict(model, map[string]any{
		"sepal_length": 1.0,
		"sepal_width":  1.0,
		"petal_length": 1.0,
		"petal_width":  1.0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prediction["species"] != "setosa" {
		t.Fatalf("expected setosa, got %v", prediction["species"])
	}
}

func TestTrainWithHyperparameters(t *testing.T) {
	cases := []TrainOptions{
		{MaxDepth: 2},
		{MinSamplesSplit: 10},
		{MaxDepth: 3, MinSamplesSplit: 4},
	}
	for _, opts := range cases {
		result, err := Train(t.TempDir(), opts)
		if err != nil {
			t.Fatalf("%+v: unexpected error: %v", opts, err)
		}
		want, err := opts.withDefaults()
		if err != nil {
			t.Fatalf("%+v: unexpected error: %v", opts, err)
		}
		if result.MaxDepth != want.MaxDepth || result.MinSamplesSplit != want.MinSamplesSplit {
			t.Fatalf("%+v: hyperparameters not applied: %+v", opts, result)
		}
	}

	shallow, err := Train(t.TempDir(), TrainOptions{MaxDepth: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shallow.Nodes != 3 {
		t.Fatalf("depth 1 tree should have 3 nodes, got %d", shallow.Nodes)
	}
}

func TestTrainRejectsInvalidHyperparameters(t *testing.T) {
	cases := []TrainOptions{
		{MaxDepth: -1},
		{MinSamplesSplit: 1},
		{MinSamplesSplit: -3},
	}
	for _, opts := range cases {
		dir := t.TempDir()
		if _, err := Train(dir, opts); err == nil {
			t.Fatalf("%+v: expected an error", opts)
		}
		if _, err := os.Stat(filepath.Join(dir, ArtifactPath)); !os.IsNotExist(err) {
			t.Fatalf("%+v: no artifact should be written, stat err=%v", opts, err)
		}
	}
}

type constantClassifier struct {
	ml.Classifier
	class int
}

func (c constantClassifier) Predict([]float64) (int, float64, error) {
	return c.class, 1, nil
}

func TestEvaluateUsesClassifier(t *testing.T) {
	data, err := LoadDataset()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	accuracy, err := evaluate(constantClassifier{class: 0}, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accuracy < 0.333 || accuracy > 0.334 {
		t.Fatalf("a constant classifier should score 1/3 on a balanced dataset, got %.4f", accuracy)
	}
}
