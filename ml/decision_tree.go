package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

const (
	TreeFormat        = "modelkit.decision_tree"
	TreeFormatVersion = 1

	DefaultMaxDepth        = 5
	DefaultMinSamplesSplit = 2
)

var _ Classifier = (*DecisionTree)(nil)

// DecisionTree is a CART classifier using Gini impurity. Once trained or
// loaded it is read-only and safe for concurrent Predict calls.
type DecisionTree struct {
	MaxDepth        int
	MinSamplesSplit int

	nodes    []TreeNode
	features int
	classes  int
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	Confidence float64 `json:"confidence"`
	Samples    int     `json:"samples"`
	IsLeaf     bool    `json:"is_leaf"`
}

type treeArtifact struct {
	Format        string     `json:"format"`
	FormatVersion int        `json:"format_version"`
	Features      int        `json:"features"`
	Classes       int        `json:"classes"`
	Nodes         []TreeNode `json:"nodes"`
}

func NewDecisionTree(maxDepth, minSamplesSplit int) *DecisionTree {
	return &DecisionTree{MaxDepth: maxDepth, MinSamplesSplit: minSamplesSplit}
}

// Features is the length of the feature vectors the tree was trained on.
func (dt *DecisionTree) Features() int { return dt.features }

// Classes is one more than the largest class index the tree can emit.
func (dt *DecisionTree) Classes() int { return dt.classes }

// Nodes returns a copy of the flattened tree, root first.
func (dt *DecisionTree) Nodes() []TreeNode {
	return append([]TreeNode(nil), dt.nodes...)
}

func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	width := len(features[0])
	if width == 0 {
		return errors.New("feature vectors are empty")
	}
	classes := 0
	for i, row := range features {
		if len(row) != width {
			return fmt.Errorf("row %d has %d features, expected %d", i, len(row), width)
		}
		if labels[i] < 0 {
			return fmt.Errorf("row %d has negative label %d", i, labels[i])
		}
		if labels[i]+1 > classes {
			classes = labels[i] + 1
		}
	}

	maxDepth := dt.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	minSplit := dt.MinSamplesSplit
	if minSplit < 2 {
		minSplit = DefaultMinSamplesSplit
	}

	b := builder{classes: classes, maxDepth: maxDepth, minSplit: minSplit}
	dt.nodes = b.buildNode(features, labels, 0)
	dt.features = width
	dt.classes = classes
	return nil
}

func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	if len(dt.nodes) == 0 {
		return 0, 0, errors.New("model not trained")
	}
	if len(features) != dt.features {
		return 0, 0, fmt.Errorf("expected %d features, got %d", dt.features, len(features))
	}
	idx := 0
	for steps := 0; steps <= len(dt.nodes); steps++ {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.ClassLabel, node.Confidence, nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return 0, 0, errors.New("invalid tree state")
		}
	}
	return 0, 0, errors.New("invalid tree state")
}

func (dt *DecisionTree) Save(path string) error {
	payload, err := dt.MarshalArtifact()
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (dt *DecisionTree) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return dt.UnmarshalArtifact(payload)
}

// MarshalArtifact encodes the trained tree in the artifact envelope.
func (dt *DecisionTree) MarshalArtifact() ([]byte, error) {
	if len(dt.nodes) == 0 {
		return nil, errors.New("model not trained")
	}
	return json.MarshalIndent(treeArtifact{
		Format:        TreeFormat,
		FormatVersion: TreeFormatVersion,
		Features:      dt.features,
		Classes:       dt.classes,
		Nodes:         dt.nodes,
	}, "", "  ")
}

// UnmarshalArtifact decodes and structurally checks an artifact. On error the
// tree is left unchanged.
func (dt *DecisionTree) UnmarshalArtifact(payload []byte) error {
	var artifact treeArtifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return fmt.Errorf("decode artifact: %w", err)
	}
	if artifact.Format != TreeFormat {
		return fmt.Errorf("unexpected artifact format %q", artifact.Format)
	}
	if artifact.FormatVersion != TreeFormatVersion {
		return fmt.Errorf("unsupported artifact format version %d", artifact.FormatVersion)
	}
	if err := checkNodes(artifact); err != nil {
		return err
	}
	dt.nodes = artifact.Nodes
	dt.features = artifact.Features
	dt.classes = artifact.Classes
	return nil
}

// checkNodes requires children to come after their parent, which rules out
// cycles.
func checkNodes(a treeArtifact) error {
	if len(a.Nodes) == 0 {
		return errors.New("artifact has no nodes")
	}
	if a.Features <= 0 || a.Classes <= 0 {
		return fmt.Errorf("artifact declares %d features and %d classes", a.Features, a.Classes)
	}
	for i, node := range a.Nodes {
		if node.IsLeaf {
			if node.ClassLabel < 0 || node.ClassLabel >= a.Classes {
				return fmt.Errorf("node %d: class %d out of range", i, node.ClassLabel)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= a.Features {
			return fmt.Errorf("node %d: feature index %d out of range", i, node.FeatureIdx)
		}
		for _, child := range []int{node.LeftChild, node.RightChild} {
			if child <= i || child >= len(a.Nodes) {
				return fmt.Errorf("node %d: child %d out of range", i, child)
			}
		}
	}
	return nil
}

type builder struct {
	classes  int
	maxDepth int
	minSplit int
}

func (b builder) leaf(labels []int) []TreeNode {
	label, count := majorityLabel(labels, b.classes)
	return []TreeNode{{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: label,
		Confidence: float64(count) / float64(len(labels)),
		Samples:    len(labels),
		IsLeaf:     true,
	}}
}

func (b builder) buildNode(features [][]float64, labels []int, depth int) []TreeNode {
	if depth >= b.maxDepth || len(labels) < b.minSplit || isPure(labels) {
		return b.leaf(labels)
	}

	bestFeature, threshold, ok := b.findBestSplit(features, labels)
	if !ok {
		return b.leaf(labels)
	}

	leftFeatures, leftLabels, rightFeatures, rightLabels := splitData(features, labels, bestFeature, threshold)
	if len(leftLabels) == 0 || len(rightLabels) == 0 {
		return b.leaf(labels)
	}

	leftNodes := b.buildNode(leftFeatures, leftLabels, depth+1)
	rightNodes := b.buildNode(rightFeatures, rightLabels, depth+1)

	label, count := majorityLabel(labels, b.classes)
	root := TreeNode{
		FeatureIdx: bestFeature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
		ClassLabel: label,
		Confidence: float64(count) / float64(len(labels)),
		Samples:    len(labels),
	}

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, offset(leftNodes, 1)...)
	nodes = append(nodes, offset(rightNodes, 1+len(leftNodes))...)
	return nodes
}

// offset shifts child references of a subtree that is placed at position by
// in the parent's node slice.
func offset(nodes []TreeNode, by int) []TreeNode {
	for i := range nodes {
		if !nodes[i].IsLeaf {
			nodes[i].LeftChild += by
			nodes[i].RightChild += by
		}
	}
	return nodes
}

// findBestSplit scans every feature and every midpoint between consecutive
// distinct values. Ties keep the earliest feature and the lowest threshold.
func (b builder) findBestSplit(features [][]float64, labels []int) (int, float64, bool) {
	n := len(features)
	featureCount := len(features[0])
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := gini(labels, b.classes)

	order := make([]int, n)
	for featureIdx := 0; featureIdx < featureCount; featureIdx++ {
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(i, j int) bool {
			return features[order[i]][featureIdx] < features[order[j]][featureIdx]
		})

		left := make([]int, b.classes)
		right := make([]int, b.classes)
		for _, label := range labels {
			right[label]++
		}
		for pos := 0; pos < n-1; pos++ {
			label := labels[order[pos]]
			left[label]++
			right[label]--

			current := features[order[pos]][featureIdx]
			next := features[order[pos+1]][featureIdx]
			if current == next {
				continue
			}
			leftN, rightN := pos+1, n-pos-1
			impurity := (float64(leftN)*giniCounts(left, leftN) + float64(rightN)*giniCounts(right, rightN)) / float64(n)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = featureIdx
				bestThreshold = (current + next) / 2
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func splitData(features [][]float64, labels []int, featureIdx int, threshold float64) ([][]float64, []int, [][]float64, []int) {
	leftFeatures := make([][]float64, 0)
	leftLabels := make([]int, 0)
	rightFeatures := make([][]float64, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftFeatures = append(leftFeatures, feature)
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightFeatures = append(rightFeatures, feature)
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftFeatures, leftLabels, rightFeatures, rightLabels
}

func gini(labels []int, classes int) float64 {
	counts := make([]int, classes)
	for _, label := range labels {
		counts[label]++
	}
	return giniCounts(counts, len(labels))
}

func giniCounts(counts []int, total int) float64 {
	if total == 0 {
		return 0
	}
	impurity := 1.0
	for _, count := range counts {
		prob := float64(count) / float64(total)
		impurity -= prob * prob
	}
	return impurity
}

// majorityLabel breaks ties towards the lower class index.
func majorityLabel(labels []int, classes int) (int, int) {
	counts := make([]int, classes)
	for _, label := range labels {
		counts[label]++
	}
	bestLabel, bestCount := 0, -1
	for label, count := range counts {
		if count > bestCount {
			bestLabel, bestCount = label, count
		}
	}
	return bestLabel, bestCount
}

func isPure(labels []int) bool {
	if len(labels) == 0 {
		return true
	}
	first := labels[0]
	for _, label := range labels[1:] {
		if label != first {
			return false
		}
	}
	return true
}
