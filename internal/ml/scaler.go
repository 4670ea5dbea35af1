// Package ml implements the preprocessing, regression and feature selection
// primitives used to train per-target stat models.
package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var ErrNotFitted = errors.New("ml: not fitted")

// StandardScaler standardizes columns to zero mean and unit variance.
// FeatureNames records the exact ordered columns seen at fit time.
type StandardScaler struct {
	FeatureNames []string
	Mean         []float64
	Scale        []float64
}

// Fit computes per-column mean and population standard deviation.
// Constant columns get a scale of 1.
func (s *StandardScaler) Fit(X *mat.Dense, names []string) error {
	_, c := X.Dims()
	if len(names) != c {
		return fmt.Errorf("scaler: %d names for %d columns", len(names), c)
	}
	s.FeatureNames = append([]string(nil), names...)
	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, X)
		mean, variance := stat.PopMeanVariance(col, nil)
		std := math.Sqrt(variance)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = std
	}
	return nil
}

// Transform applies the fitted parameters. It never changes them.
func (s *StandardScaler) Transform(X *mat.Dense) (*mat.Dense, error) {
	if s.Mean == nil {
		return nil, ErrNotFitted
	}
	r, c := X.Dims()
	if c != len(s.Mean) {
		return nil, fmt.Errorf("scaler: fitted on %d columns, got %d", len(s.Mean), c)
	}
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, (X.At(i, j)-s.Mean[j])/s.Scale[j])
		}
	}
	return out, nil
}

// FitTransform fits on X and returns X transformed
func (s *StandardScaler) FitTransform(X *mat.Dense, names []string) (*mat.Dense, error) {
	if err := s.Fit(X, names); err != nil {
		return nil, err
	}
	return s.Transform(X)
}
