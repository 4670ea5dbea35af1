package ml

import (
	"encoding/gob"
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Regressor is a fitted-or-fittable regression estimator
type Regressor interface {
	Fit(X *mat.Dense, y []float64) error
	Predict(X *mat.Dense) ([]float64, error)
	FeatureImportances() []float64
}

func init() {
	gob.Register(&RandomForestRegressor{})
	gob.Register(&GradientBoostingRegressor{})
	gob.Register(&RegressionTree{})
}

// RandomForestRegressor averages trees grown on bootstrap samples
type RandomForestRegressor struct {
	NEstimators int
	MaxDepth    int
	Seed        int64

	Trees       []*RegressionTree
	Importances []float64
}

// Fit grows NEstimators trees. Bootstrap samples are drawn from a source
// seeded with Seed, so refits on the same data are identical.
func (f *RandomForestRegressor) Fit(X *mat.Dense, y []float64) error {
	if f.NEstimators < 1 {
		return errors.New("random forest: n_estimators must be positive")
	}
	r, c := X.Dims()
	if r != len(y) {
		return fmt.Errorf("random forest: %d rows but %d targets", r, len(y))
	}
	rng := rand.New(rand.NewSource(f.Seed))
	f.Trees = make([]*RegressionTree, f.NEstimators)
	f.Importances = make([]float64, c)
	for k := range f.Trees {
		sample := make([]int, r)
		for i := range sample {
			sample[i] = rng.Intn(r)
		}
		tree := NewRegressionTree(f.MaxDepth)
		if err := tree.fitRows(X, y, sample); err != nil {
			return fmt.Errorf("random forest tree %d: %w", k, err)
		}
		for j, v := range tree.Importances {
			f.Importances[j] += v
		}
		f.Trees[k] = tree
	}
	normalize(f.Importances)
	return nil
}

func (f *RandomForestRegressor) Predict(X *mat.Dense) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, ErrNotFitted
	}
	r, _ := X.Dims()
	out := make([]float64, r)
	for _, tree := range f.Trees {
		pred, err := tree.Predict(X)
		if err != nil {
			return nil, err
		}
		for i, v := range pred {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(f.Trees))
	}
	return out, nil
}

func (f *RandomForestRegressor) FeatureImportances() []float64 { return f.Importances }

// GradientBoostingRegressor fits shallow trees to squared-loss residuals
type GradientBoostingRegressor struct {
	NEstimators  int
	LearningRate float64
	MaxDepth     int

	Init        float64
	Trees       []*RegressionTree
	Importances []float64
}

func (g *GradientBoostingRegressor) Fit(X *mat.Dense, y []float64) error {
	if g.NEstimators < 1 || g.LearningRate <= 0 {
		return errors.New("gradient boosting: n_estimators and learning_rate must be positive")
	}
	r, c := X.Dims()
	if r != len(y) {
		return fmt.Errorf("gradient boosting: %d rows but %d targets", r, len(y))
	}
	g.Init = stat.Mean(y, nil)
	g.Trees = make([]*RegressionTree, 0, g.NEstimators)
	g.Importances = make([]float64, c)

	current := make([]float64, r)
	for i := range current {
		current[i] = g.Init
	}
	residual := make([]float64, r)
	for k := 0; k < g.NEstimators; k++ {
		for i := range residual {
			residual[i] = y[i] - current[i]
		}
		tree := NewRegressionTree(g.MaxDepth)
		if err := tree.Fit(X, residual); err != nil {
			return fmt.Errorf("gradient boosting stage %d: %w", k, err)
		}
		step, err := tree.Predict(X)
		if err != nil {
			return err
		}
		for i, v := range step {
			current[i] += g.LearningRate * v
		}
		for j, v := range tree.Importances {
			g.Importances[j] += v
		}
		g.Trees = append(g.Trees, tree)
	}
	normalize(g.Importances)
	return nil
}

func (g *GradientBoostingRegressor) Predict(X *mat.Dense) ([]float64, error) {
	if g.Trees == nil {
		return nil, ErrNotFitted
	}
	r, _ := X.Dims()
	out := make([]float64, r)
	for i := range out {
		out[i] = g.Init
	}
	for _, tree := range g.Trees {
		step, err := tree.Predict(X)
		if err != nil {
			return nil, err
		}
		for i, v := range step {
			out[i] += g.LearningRate * v
		}
	}
	return out, nil
}

func (g *GradientBoostingRegressor) FeatureImportances() []float64 { return g.Importances }
