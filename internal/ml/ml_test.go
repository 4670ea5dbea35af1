package ml

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/courtvision/nba-analysis/internal/frame"
)

func TestStandardScaler_TestPartitionNeverLeaks(t *testing.T) {
	train := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 20,
		3, 30,
		4, 40,
	})
	// adversarially shifted: wildly different scale and location
	test := mat.NewDense(3, 2, []float64{
		1000, -5000,
		2000, -6000,
		3000, -7000,
	})

	var s StandardScaler
	require.NoError(t, s.Fit(train, []string{"FG", "FGA"}))
	meanBefore := append([]float64(nil), s.Mean...)
	scaleBefore := append([]float64(nil), s.Scale...)

	got, err := s.Transform(test)
	require.NoError(t, err)

	for j := 0; j < 2; j++ {
		mean, variance := stat.PopMeanVariance(mat.Col(nil, j, train), nil)
		std := math.Sqrt(variance)
		for i := 0; i < 3; i++ {
			want := (test.At(i, j) - mean) / std
			assert.Equal(t, want, got.At(i, j), "row %d col %d", i, j)
		}
	}
	assert.Equal(t, meanBefore, s.Mean, "transform must not refit")
	assert.Equal(t, scaleBefore, s.Scale, "transform must not refit")
	assert.Equal(t, []string{"FG", "FGA"}, s.FeatureNames)
}

func TestStandardScaler_ConstantColumn(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{5, 5, 5})
	var s StandardScaler
	out, err := s.FitTransform(X, []string{"G"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, s.Scale[0])
	assert.Equal(t, 0.0, out.At(2, 0))

	_, err = s.Transform(mat.NewDense(1, 2, nil))
	assert.Error(t, err)
}

func TestMedianImputer(t *testing.T) {
	ref := frame.New(4)
	require.NoError(t, ref.SetNumeric("FG", []float64{1, 3, math.NaN(), 10}))
	require.NoError(t, ref.SetNumeric("FGA", []float64{2, 4, 6, 8}))
	require.NoError(t, ref.SetNumeric("Empty", []float64{math.NaN(), math.NaN(), math.NaN(), math.NaN()}))

	var imp MedianImputer
	require.NoError(t, imp.Fit(ref, ref.NumericColumns()))
	assert.Equal(t, []float64{3, 5, 0}, imp.Medians)

	target := frame.New(2)
	require.NoError(t, target.SetNumeric("FG", []float64{math.NaN(), 100}))
	require.NoError(t, target.SetNumeric("FGA", []float64{math.NaN(), math.NaN()}))
	require.NoError(t, target.SetNumeric("Empty", []float64{math.NaN(), 1}))

	out, err := imp.Transform(target)
	require.NoError(t, err)
	fg, _ := out.Numeric("FG")
	fga, _ := out.Numeric("FGA")
	empty, _ := out.Numeric("Empty")
	assert.Equal(t, []float64{3, 100}, fg)
	assert.Equal(t, []float64{5, 5}, fga)
	assert.Equal(t, []float64{0, 1}, empty)

	orig, _ := target.Numeric("FG")
	assert.True(t, math.IsNaN(orig[0]), "source frame must be left untouched")
}

func TestTrainTestSplit(t *testing.T) {
	train, test, err := TrainTestSplit(10, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, test, 2)
	assert.Len(t, train, 8)

	seen := make(map[int]bool)
	for _, i := range append(append([]int(nil), train...), test...) {
		assert.False(t, seen[i], "index %d repeated", i)
		seen[i] = true
	}

	train2, test2, err := TrainTestSplit(10, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)

	_, _, err = TrainTestSplit(1, 0.2, 42)
	assert.Error(t, err)
	_, _, err = TrainTestSplit(10, 1.5, 42)
	assert.Error(t, err)
}

func TestKFold(t *testing.T) {
	folds, err := KFold(11, 5)
	require.NoError(t, err)
	require.Len(t, folds, 5)
	assert.Equal(t, []int{0, 1, 2}, folds[0].Test)
	assert.Len(t, folds[4].Test, 2)
	assert.Len(t, folds[4].Train, 9)

	_, err = KFold(3, 5)
	assert.Error(t, err)
}

func TestMetrics(t *testing.T) {
	assert.Equal(t, 1.0, R2([]float64{1, 2, 3}, []float64{1, 2, 3}))
	assert.InDelta(t, 0.75, R2([]float64{1, 2, 3}, []float64{1.5, 2, 2.5}), 1e-12)
	assert.Equal(t, 0.0, R2([]float64{2, 2}, []float64{1, 3}))
	assert.Equal(t, 1.0, R2([]float64{2, 2}, []float64{2, 2}))
	assert.InDelta(t, 0.5, MAE([]float64{1, 2}, []float64{1.5, 1.5}), 1e-12)
}

func TestRegressionTree_FitsStepFunction(t *testing.T) {
	X := mat.NewDense(6, 2, []float64{
		1, 0,
		2, 0,
		3, 0,
		4, 0,
		5, 0,
		6, 0,
	})
	y := []float64{1, 1, 1, 9, 9, 9}
	tree := NewRegressionTree(3)
	require.NoError(t, tree.Fit(X, y))

	pred, err := tree.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, y, pred)
	assert.Equal(t, []float64{1, 0}, tree.FeatureImportances())
}

func linearData(n, features int, seed int64) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, features, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < features; j++ {
			X.Set(i, j, rng.Float64()*10)
		}
		y[i] = 3*X.At(i, 0) + 2*X.At(i, 1)
	}
	return X, y
}

func TestEnsembles_LearnAndAreDeterministic(t *testing.T) {
	X, y := linearData(80, 4, 7)

	tests := []struct {
		name string
		new  func() Regressor
	}{
		{"random forest", func() Regressor { return &RandomForestRegressor{NEstimators: 15, MaxDepth: 6, Seed: 42} }},
		{"gradient boosting", func() Regressor {
			return &GradientBoostingRegressor{NEstimators: 40, LearningRate: 0.3, MaxDepth: 3}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := tt.new(), tt.new()
			require.NoError(t, a.Fit(X, y))
			require.NoError(t, b.Fit(X, y))

			pa, err := a.Predict(X)
			require.NoError(t, err)
			pb, err := b.Predict(X)
			require.NoError(t, err)
			assert.Equal(t, pa, pb)
			assert.Greater(t, R2(y, pa), 0.8)

			imp := a.FeatureImportances()
			assert.Greater(t, imp[0]+imp[1], imp[2]+imp[3])
		})
	}
}

func TestNewCandidate(t *testing.T) {
	rf, err := NewCandidate("RandomForest", KindRandomForest, Params{Seed: 42})
	require.NoError(t, err)
	forest, ok := rf.New().(*RandomForestRegressor)
	require.True(t, ok)
	assert.Equal(t, 200, forest.NEstimators)
	assert.Equal(t, 10, forest.MaxDepth)

	gb, err := NewCandidate("GradientBoosting", KindGradientBoosting, Params{})
	require.NoError(t, err)
	boost := gb.New().(*GradientBoostingRegressor)
	assert.Equal(t, 0.05, boost.LearningRate)
	assert.Equal(t, 5, boost.MaxDepth)

	_, err = NewCandidate("x", "svm", Params{})
	assert.Error(t, err)
}

func TestFeatureCounts(t *testing.T) {
	assert.Equal(t, []int{12, 7, 5}, featureCounts(12, 5, 5))
	assert.Equal(t, []int{5}, featureCounts(5, 5, 5))
}

func TestRFECV_KeepsInformativeFeatures(t *testing.T) {
	X, y := linearData(60, 8, 3)
	names := []string{"FG", "FGA", "n1", "n2", "n3", "n4", "n5", "n6"}
	newEst := func() Regressor { return &GradientBoostingRegressor{NEstimators: 20, LearningRate: 0.3, MaxDepth: 3} }

	sel := NewRFECV(2, 3, 2)
	require.NoError(t, sel.Fit(context.Background(), newEst, X, y, names))

	assert.True(t, sel.Support[0], "FG should survive")
	assert.True(t, sel.Support[1], "FGA should survive")
	assert.Len(t, sel.CVScores, 4)
	assert.Contains(t, []int{2, 4, 6, 8}, sel.NFeatures)
	assert.Subset(t, sel.SelectedFeatures(), []string{"FG", "FGA"})

	out, err := sel.Transform(X)
	require.NoError(t, err)
	_, c := out.Dims()
	assert.Equal(t, sel.NFeatures, c)

	again := NewRFECV(2, 3, 2)
	require.NoError(t, again.Fit(context.Background(), newEst, X, y, names))
	assert.Equal(t, sel.Support, again.Support)
}

func TestRFECV_TooFewFeatures(t *testing.T) {
	X, y := linearData(20, 3, 1)
	sel := NewRFECV(5, 5, 5)
	err := sel.Fit(context.Background(), func() Regressor { return NewRegressionTree(2) }, X, y, []string{"a", "b", "c"})
	assert.ErrorIs(t, err, ErrTooFewFeatures)
}

func TestEvaluate_TieKeepsFirstCandidate(t *testing.T) {
	X, y := linearData(60, 6, 11)
	train, test, err := TrainTestSplit(60, 0.2, 42)
	require.NoError(t, err)
	Xtr, ytr := rowsOf(X, train), pick(y, train)
	Xte, yte := rowsOf(X, test), pick(y, test)
	names := []string{"FG", "FGA", "a", "b", "c", "d"}

	newBoost := func() Regressor { return &GradientBoostingRegressor{NEstimators: 15, LearningRate: 0.3, MaxDepth: 3} }
	cands := []Candidate{
		{Name: "First", Kind: KindGradientBoosting, New: newBoost},
		{Name: "Second", Kind: KindGradientBoosting, New: newBoost},
	}

	ev, err := Evaluate(context.Background(), cands, SelectorSettings{Step: 2, Folds: 3, MinFeatures: 2}, Xtr, ytr, Xte, yte, names)
	require.NoError(t, err)
	require.Len(t, ev.Results, 2)
	assert.Equal(t, ev.Results[0].R2, ev.Results[1].R2)
	assert.Equal(t, "First", ev.Winner().Name)
	assert.NotNil(t, ev.Winner().Selector)
}

func TestEvaluate_SkipsFailedCandidates(t *testing.T) {
	X, y := linearData(40, 3, 5)
	train, test, err := TrainTestSplit(40, 0.2, 42)
	require.NoError(t, err)
	names := []string{"a", "b", "c"}
	cands := []Candidate{
		{Name: "Tree", New: func() Regressor { return NewRegressionTree(3) }},
	}

	_, err = Evaluate(context.Background(), cands, SelectorSettings{Step: 1, Folds: 3, MinFeatures: 5},
		rowsOf(X, train), pick(y, train), rowsOf(X, test), pick(y, test), names)
	assert.ErrorIs(t, err, ErrAllCandidatesFailed)
	assert.ErrorIs(t, err, ErrTooFewFeatures)

	ev, err := Evaluate(context.Background(), cands, SelectorSettings{Step: 1, Folds: 3, MinFeatures: 2},
		rowsOf(X, train), pick(y, train), rowsOf(X, test), pick(y, test), names)
	require.NoError(t, err)
	assert.Equal(t, 0, ev.Best)
	assert.Contains(t, []int{2, 3}, ev.Winner().Selector.NFeatures)
}
