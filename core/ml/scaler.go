package ml

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers features to zero mean and unit variance.
// Fields are exported for gob serialization alongside the model.
type StandardScaler struct {
	Mean []float64
	Std  []float64
}

// Fit computes per-column moments from the training matrix only.
// Constant columns get a standard deviation of 1 so they scale to zero
// instead of NaN.
func (s *StandardScaler) Fit(X *mat.Dense) {
	_, cols := X.Dims()
	s.Mean = make([]float64, cols)
	s.Std = make([]float64, cols)
	for j := 0; j < cols; j++ {
		col := mat.Col(nil, j, X)
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		s.Mean[j] = mean
		s.Std[j] = std
	}
}

// Transform returns a scaled copy of X.
func (s *StandardScaler) Transform(X *mat.Dense) *mat.Dense {
	rows, cols := X.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		out.SetRow(i, s.TransformRow(X.RawRowView(i)))
	}
	return out
}

// TransformRow scales a single feature vector.
func (s *StandardScaler) TransformRow(x []float64) []float64 {
	out := make([]float64, len(x))
	for j := range x {
		out[j] = (x[j] - s.Mean[j]) / s.Std[j]
	}
	return out
}
