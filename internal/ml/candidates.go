package ml

import "fmt"

const (
	KindRandomForest     = "random_forest"
	KindGradientBoosting = "gradient_boosting"
)

// Params configures a candidate estimator. Zero values take the defaults of the kind.
type Params struct {
	NEstimators  int
	MaxDepth     int
	LearningRate float64
	Seed         int64
}

// Candidate is a named estimator factory. Every call to New returns an
// unfitted estimator with identical settings.
type Candidate struct {
	Name string
	Kind string
	New  func() Regressor
}

// NewCandidate builds a candidate of the given kind
func NewCandidate(name, kind string, p Params) (Candidate, error) {
	switch kind {
	case KindRandomForest:
		if p.NEstimators == 0 {
			p.NEstimators = 200
		}
		if p.MaxDepth == 0 {
			p.MaxDepth = 10
		}
		return Candidate{Name: name, Kind: kind, New: func() Regressor {
			return &RandomForestRegressor{NEstimators: p.NEstimators, MaxDepth: p.MaxDepth, Seed: p.Seed}
		}}, nil
	case KindGradientBoosting:
		if p.NEstimators == 0 {
			p.NEstimators = 200
		}
		if p.MaxDepth == 0 {
			p.MaxDepth = 5
		}
		if p.LearningRate == 0 {
			p.LearningRate = 0.05
		}
		return Candidate{Name: name, Kind: kind, New: func() Regressor {
			return &GradientBoostingRegressor{NEstimators: p.NEstimators, LearningRate: p.LearningRate, MaxDepth: p.MaxDepth}
		}}, nil
	}
	return Candidate{}, fmt.Errorf("unknown estimator kind %q", kind)
}
