package ml

import (
	"fmt"
	"math"
	"sort"

	"github.com/courtvision/nba-analysis/internal/frame"
)

// MedianImputer fills missing numeric values with medians learned at fit time
type MedianImputer struct {
	Columns []string
	Medians []float64
}

// Fit learns the median of every named numeric column, ignoring missing values.
// A column with no observed values imputes 0.
func (m *MedianImputer) Fit(f *frame.Frame, columns []string) error {
	m.Columns = append([]string(nil), columns...)
	m.Medians = make([]float64, len(columns))
	for j, name := range columns {
		values, ok := f.Numeric(name)
		if !ok {
			return fmt.Errorf("imputer: numeric column %q not found", name)
		}
		m.Medians[j] = median(values)
	}
	return nil
}

// Transform returns a copy of f with missing values in the fitted columns
// replaced. Every fitted column must be present in f.
func (m *MedianImputer) Transform(f *frame.Frame) (*frame.Frame, error) {
	if m.Medians == nil {
		return nil, ErrNotFitted
	}
	out := f.Drop()
	for j, name := range m.Columns {
		values, ok := f.Numeric(name)
		if !ok {
			return nil, fmt.Errorf("imputer: numeric column %q not found", name)
		}
		filled := make([]float64, len(values))
		for i, v := range values {
			if math.IsNaN(v) {
				v = m.Medians[j]
			}
			filled[i] = v
		}
		if err := out.SetNumeric(name, filled); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// FitTransform imputes every numeric column of f with its own medians
func (m *MedianImputer) FitTransform(f *frame.Frame) (*frame.Frame, error) {
	if err := m.Fit(f, f.NumericColumns()); err != nil {
		return nil, err
	}
	return m.Transform(f)
}

func median(values []float64) float64 {
	observed := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			observed = append(observed, v)
		}
	}
	n := len(observed)
	if n == 0 {
		return 0
	}
	sort.Float64s(observed)
	if n%2 == 1 {
		return observed[n/2]
	}
	return (observed[n/2-1] + observed[n/2]) / 2
}
