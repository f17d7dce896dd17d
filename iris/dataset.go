package iris

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"fmt"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

//go:embed data/iris.csv
var datasetCSV []byte

// Dataset is a labelled feature matrix, one row per flower in featureNames
// column order.
type Dataset struct {
	Features *mat.Dense
	Labels   []int
}

// LoadDataset parses the embedded Iris dataset.
func LoadDataset() (*Dataset, error) {
	records, err := csv.NewReader(bytes.NewReader(datasetCSV)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("dataset has no rows")
	}
	header, rows := records[0], records[1:]
	if len(header) != len(featureNames)+1 {
		return nil, fmt.Errorf("dataset has %d columns, expected %d", len(header), len(featureNames)+1)
	}
	for i, name := range featureNames {
		if header[i] != name {
			return nil, fmt.Errorf("dataset column %d is %q, expected %q", i, header[i], name)
		}
	}

	classOf := make(map[string]int, len(species))
	for i, s := range species {
		classOf[s] = i
	}

	features := mat.NewDense(len(rows), len(featureNames), nil)
	labels := make([]int, len(rows))
	for r, row := range rows {
		for c := range featureNames {
			v, err := strconv.ParseFloat(row[c], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", r+1, featureNames[c], err)
			}
			features.Set(r, c, v)
		}
		class, ok := classOf[row[len(featureNames)]]
		if !ok {
			return nil, fmt.Errorf("row %d: unknown species %q", r+1, row[len(featureNames)])
		}
		labels[r] = class
	}
	return &Dataset{Features: features, Labels: labels}, nil
}

func (d *Dataset) Len() int {
	return len(d.Labels)
}

// Head returns the first n rows, sharing storage with d.
func (d *Dataset) Head(n int) *Dataset {
	_, cols := d.Features.Dims()
	return &Dataset{
		Features: d.Features.Slice(0, n, 0, cols).(*mat.Dense),
		Labels:   d.Labels[:n],
	}
}

// Rows copies the feature matrix into row vectors.
func (d *Dataset) Rows() [][]float64 {
	rows := make([][]float64, d.Len())
	for i := range rows {
		rows[i] = mat.Row(nil, i, d.Features)
	}
	return rows
}

// Sample returns row i as a prediction payload.
func (d *Dataset) Sample(i int) map[string]any {
	sample := make(map[string]any, len(featureNames))
	for c, name := range featureNames {
		sample[name] = d.Features.At(i, c)
	}
	return sample
}
