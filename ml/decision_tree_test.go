package ml

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func trainToyTree(t *testing.T) *DecisionTree {
	t.Helper()
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.5, 0.9},
		{0.4, 0.8},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	labels := []int{0, 0, 1, 1, 2, 2}

	model := NewDecisionTree(3, 2)
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return model
}

func TestDecisionTreeTrainPredict(t *testing.T) {
	model := trainToyTree(t)

	cases := []struct {
		features []float64
		label    int
	}{
		{[]float64{0.15, 0.15}, 0},
		{[]float64{0.45, 0.85}, 1},
		{[]float64{0.85, 0.85}, 2},
	}
	for _, c := range cases {
		label, confidence, err := model.Predict(c.features)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if label != c.label {
			t.Fatalf("features %v: expected label %d, got %d", c.features, c.label, label)
		}
		if confidence != 1 {
			t.Fatalf("expected pure leaf confidence 1, got %f", confidence)
		}
	}
	if model.Classes() != 3 || model.Features() != 2 {
		t.Fatalf("unexpected shape: classes=%d features=%d", model.Classes(), model.Features())
	}
}

func TestDecisionTreeChildrenFollowParents(t *testing.T) {
	model := trainToyTree(t)
	nodes := model.Nodes()
	if len(nodes) < 5 {
		t.Fatalf("expected a multi-level tree, got %d nodes", len(nodes))
	}
	for i, node := range nodes {
		if node.IsLeaf {
			continue
		}
		if node.LeftChild <= i || node.RightChild <= i || node.RightChild >= len(nodes) {
			t.Fatalf("node %d has children %d/%d", i, node.LeftChild, node.RightChild)
		}
	}
}

func TestDecisionTreeMaxDepth(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}}
	labels := []int{0, 1, 0, 1}
	model := NewDecisionTree(1, 2)
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(model.Nodes()); n > 3 {
		t.Fatalf("depth 1 tree should have at most 3 nodes, got %d", n)
	}
}

func TestDecisionTreeTrainErrors(t *testing.T) {
	model := NewDecisionTree(0, 0)
	if err := model.Train(nil, nil); err == nil {
		t.Fatalf("expected error for empty data")
	}
	if err := model.Train([][]float64{{1}}, []int{0, 1}); err == nil {
		t.Fatalf("expected error for size mismatch")
	}
	if err := model.Train([][]float64{{1}, {1, 2}}, []int{0, 1}); err == nil {
		t.Fatalf("expected error for ragged rows")
	}
	if err := model.Train([][]float64{{1}}, []int{-1}); err == nil {
		t.Fatalf("expected error for negative label")
	}
}

func TestDecisionTreePredictErrors(t *testing.T) {
	if _, _, err := (&DecisionTree{}).Predict([]float64{1}); err == nil {
		t.Fatalf("expected error for untrained model")
	}
	model := trainToyTree(t)
	if _, _, err := model.Predict([]float64{1}); err == nil {
		t.Fatalf("expected error for wrong feature count")
	}
}

func TestDecisionTreeSaveLoad(t *testing.T) {
	model := trainToyTree(t)
	path := filepath.Join(t.TempDir(), "tree.json")
	if err := model.Save(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded := &DecisionTree{}
	if err := loaded.Load(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, features := range [][]float64{{0.15, 0.15}, {0.45, 0.85}, {0.85, 0.85}} {
		want, _, _ := model.Predict(features)
		got, _, err := loaded.Predict(features)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Fatalf("features %v: expected %d, got %d", features, want, got)
		}
	}
}

func TestDecisionTreeLoadRejectsBadArtifacts(t *testing.T) {
	cases := map[string]string{
		"not json":      `{`,
		"wrong format":  `{"format":"pickle","format_version":1,"features":1,"classes":1,"nodes":[{"is_leaf":true}]}`,
		"wrong version": `{"format":"modelkit.decision_tree","format_version":9,"features":1,"classes":1,"nodes":[{"is_leaf":true}]}`,
		"no nodes":      `{"format":"modelkit.decision_tree","format_version":1,"features":1,"classes":1,"nodes":[]}`,
		"bad class":     `{"format":"modelkit.decision_tree","format_version":1,"features":1,"classes":1,"nodes":[{"is_leaf":true,"class_label":3}]}`,
		"bad feature":   `{"format":"modelkit.decision_tree","format_version":1,"features":1,"classes":1,"nodes":[{"feature_idx":4,"left_child":1,"right_child":2},{"is_leaf":true},{"is_leaf":true}]}`,
		"cycle":         `{"format":"modelkit.decision_tree","format_version":1,"features":1,"classes":1,"nodes":[{"feature_idx":0,"left_child":0,"right_child":1},{"is_leaf":true}]}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			model := &DecisionTree{}
			if err := model.UnmarshalArtifact([]byte(payload)); err == nil {
				t.Fatalf("expected error")
			}
			if len(model.Nodes()) != 0 {
				t.Fatalf("failed load must not populate the tree")
			}
		})
	}
}

func TestDecisionTreeLoadMissingFile(t *testing.T) {
	err := (&DecisionTree{}).Load(filepath.Join(t.TempDir(), "missing.json"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestMarshalArtifactRequiresTraining(t *testing.T) {
	_, err := (&DecisionTree{}).MarshalArtifact()
	if err == nil || !strings.Contains(err.Error(), "not trained") {
		t.Fatalf("expected not trained error, got %v", err)
	}
}
