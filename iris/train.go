package iris

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/stat"

	"modelkit/ml"
)

// TrainOptions are the two hyperparameters of the classifier. Zero values
// select ml.DefaultMaxDepth and ml.DefaultMinSamplesSplit. MaxDepth must
// otherwise be positive and MinSamplesSplit at least 2.
type TrainOptions struct {
	MaxDepth        int
	MinSamplesSplit int
}

func (o TrainOptions) withDefaults() (TrainOptions, error) {
	switch {
	case o.MaxDepth < 0:
		return o, fmt.Errorf("max depth must be positive, got %d", o.MaxDepth)
	case o.MinSamplesSplit < 0 || o.MinSamplesSplit == 1:
		return o, fmt.Errorf("min samples split must be at least 2, got %d", o.MinSamplesSplit)
	}
	if o.MaxDepth == 0 {
		o.MaxDepth = ml.DefaultMaxDepth
	}
	if o.MinSamplesSplit == 0 {
		o.MinSamplesSplit = ml.DefaultMinSamplesSplit
	}
	return o, nil
}

type TrainResult struct {
	ArtifactPath    string
	MaxDepth        int
	MinSamplesSplit int
	TrainedSamples  int
	Nodes           int
	Accuracy        float64
}

// Train fits the classifier on every sample of the dataset but the last and
// writes the artifact to dir/ArtifactPath, where NewFromDir reads it.
// Accuracy is measured over the full dataset.
func Train(dir string, opts TrainOptions) (*TrainResult, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	data, err := LoadDataset()
	if err != nil {
		return nil, err
	}
	training := data.Head(data.Len() - 1)

	tree := ml.NewDecisionTree(opts.MaxDepth, opts.MinSamplesSplit)
	if err := tree.Train(training.Rows(), training.Labels); err != nil {
		return nil, fmt.Errorf("train decision tree: %w", err)
	}

	accuracy, err := evaluate(tree, data)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, ArtifactPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}
	if err := tree.Save(path); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}

	return &TrainResult{
		ArtifactPath:    path,
		MaxDepth:        opts.MaxDepth,
		MinSamplesSplit: opts.MinSamplesSplit,
		TrainedSamples:  training.Len(),
		Nodes:           len(tree.Nodes()),
		Accuracy:        accuracy,
	}, nil
}

func evaluate(clf ml.Classifier, data *Dataset) (float64, error) {
	hits := make([]float64, data.Len())
	for i, row := range data.Rows() {
		class, _, err := clf.Predict(row)
		if err != nil {
			return 0, fmt.Errorf("evaluate row %d: %w", i, err)
		}
		if class == data.Labels[i] {
			hits[i] = 1
		}
	}
	return stat.Mean(hits, nil), nil
}
