package ml

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

var ErrTooFewFeatures = errors.New("ml: fewer features than the selection minimum")

// FeatureCountScore is the mean cross-validated R² for a feature count
type FeatureCountScore struct {
	NFeatures int
	MeanR2    float64
}

// RFECV is recursive feature elimination with k-fold cross-validation.
// Each round refits the estimator and drops the Step least important
// features until MinFeatures remain; the feature count with the best mean
// held-out R² is kept.
type RFECV struct {
	Step        int
	Folds       int
	MinFeatures int

	FeatureNames []string
	Support      []bool
	Ranking      []int
	NFeatures    int
	CVScores     []FeatureCountScore
}

// NewRFECV returns an unfitted selector
func NewRFECV(step, folds, minFeatures int) *RFECV {
	return &RFECV{Step: step, Folds: folds, MinFeatures: minFeatures}
}

// Fit selects features for the estimators produced by newEstimator. Folds
// are evaluated in parallel; every fold gets fresh estimators so the result
// does not depend on scheduling.
func (s *RFECV) Fit(ctx context.Context, newEstimator func() Regressor, X *mat.Dense, y []float64, names []string) error {
	r, c := X.Dims()
	if len(names) != c {
		return fmt.Errorf("rfecv: %d names for %d columns", len(names), c)
	}
	if r != len(y) {
		return fmt.Errorf("rfecv: %d rows but %d targets", r, len(y))
	}
	if s.Step < 1 || s.MinFeatures < 1 {
		return errors.New("rfecv: step and min features must be positive")
	}
	if c < s.MinFeatures {
		return fmt.Errorf("%w: %d < %d", ErrTooFewFeatures, c, s.MinFeatures)
	}
	folds, err := KFold(r, s.Folds)
	if err != nil {
		return fmt.Errorf("rfecv: %w", err)
	}

	counts := featureCounts(c, s.MinFeatures, s.Step)
	scores := make([][]float64, len(folds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for f, fold := range folds {
		g.Go(func() error {
			Xtr, ytr := rowsOf(X, fold.Train), pick(y, fold.Train)
			Xte, yte := rowsOf(X, fold.Test), pick(y, fold.Test)
			foldScores := make([]float64, 0, len(counts))
			_, err := eliminate(gctx, newEstimator, Xtr, ytr, s.MinFeatures, s.Step, func(features []int, est Regressor) error {
				pred, err := est.Predict(columnsOf(Xte, features))
				if err != nil {
					return err
				}
				foldScores = append(foldScores, R2(yte, pred))
				return nil
			})
			if err != nil {
				return fmt.Errorf("fold %d: %w", f, err)
			}
			scores[f] = foldScores
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("rfecv: %w", err)
	}

	s.CVScores = make([]FeatureCountScore, len(counts))
	for k, n := range counts {
		var sum float64
		for f := range folds {
			sum += scores[f][k]
		}
		s.CVScores[k] = FeatureCountScore{NFeatures: n, MeanR2: sum / float64(len(folds))}
	}

	// counts run from most to fewest features; walking backwards with a
	// strict comparison keeps the smallest count on ties
	best := len(counts) - 1
	for k := len(counts) - 2; k >= 0; k-- {
		if s.CVScores[k].MeanR2 > s.CVScores[best].MeanR2 {
			best = k
		}
	}

	ranking, err := eliminate(ctx, newEstimator, X, y, counts[best], s.Step, nil)
	if err != nil {
		return fmt.Errorf("rfecv: final elimination: %w", err)
	}
	s.FeatureNames = append([]string(nil), names...)
	s.Ranking = ranking
	s.Support = make([]bool, c)
	s.NFeatures = 0
	for j, rank := range ranking {
		if rank == 1 {
			s.Support[j] = true
			s.NFeatures++
		}
	}
	return nil
}

// Transform keeps the selected columns of X
func (s *RFECV) Transform(X *mat.Dense) (*mat.Dense, error) {
	if s.Support == nil {
		return nil, ErrNotFitted
	}
	_, c := X.Dims()
	if c != len(s.Support) {
		return nil, fmt.Errorf("rfecv: fitted on %d columns, got %d", len(s.Support), c)
	}
	var cols []int
	for j, keep := range s.Support {
		if keep {
			cols = append(cols, j)
		}
	}
	return columnsOf(X, cols), nil
}

// SelectedFeatures returns the names of the kept columns
func (s *RFECV) SelectedFeatures() []string {
	var out []string
	for j, keep := range s.Support {
		if keep {
			out = append(out, s.FeatureNames[j])
		}
	}
	return out
}

// featureCounts lists the feature counts visited by elimination, from n down to keep
func featureCounts(n, keep, step int) []int {
	counts := []int{n}
	for n > keep {
		n -= min(step, n-keep)
		counts = append(counts, n)
	}
	return counts
}

// eliminate runs recursive feature elimination down to keep features and
// returns the ranking (1 = kept, higher = eliminated earlier). visit, when
// set, sees every fitted estimator together with the columns it was fit on.
func eliminate(ctx context.Context, newEstimator func() Regressor, X *mat.Dense, y []float64, keep, step int, visit func(features []int, est Regressor) error) ([]int, error) {
	_, c := X.Dims()
	support := make([]bool, c)
	ranking := make([]int, c)
	for j := range support {
		support[j] = true
		ranking[j] = 1
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var features []int
		for j, ok := range support {
			if ok {
				features = append(features, j)
			}
		}

		est := newEstimator()
		if err := est.Fit(columnsOf(X, features), y); err != nil {
			return nil, err
		}
		if visit != nil {
			if err := visit(features, est); err != nil {
				return nil, err
			}
		}
		if len(features) <= keep {
			return ranking, nil
		}

		importances := est.FeatureImportances()
		order := make([]int, len(features))
		for k := range order {
			order[k] = k
		}
		sort.SliceStable(order, func(a, b int) bool { return importances[order[a]] < importances[order[b]] })
		for _, k := range order[:min(step, len(features)-keep)] {
			support[features[k]] = false
		}
		for j, ok := range support {
			if !ok {
				ranking[j]++
			}
		}
	}
}

func rowsOf(X *mat.Dense, rows []int) *mat.Dense {
	_, c := X.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for k, i := range rows {
		out.SetRow(k, X.RawRowView(i))
	}
	return out
}

func columnsOf(X *mat.Dense, cols []int) *mat.Dense {
	r, _ := X.Dims()
	out := mat.NewDense(r, len(cols), nil)
	for i := 0; i < r; i++ {
		for k, j := range cols {
			out.Set(i, k, X.At(i, j))
		}
	}
	return out
}

func pick(y []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for k, i := range rows {
		out[k] = y[i]
	}
	return out
}
