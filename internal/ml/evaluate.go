package ml

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var ErrAllCandidatesFailed = errors.New("ml: every candidate failed to fit")

// SelectorSettings configures the RFECV wrapped around every candidate
type SelectorSettings struct {
	Step        int
	Folds       int
	MinFeatures int
}

// CandidateResult is one candidate's selector, refit model and held-out scores
type CandidateResult struct {
	Name     string
	Model    Regressor
	Selector *RFECV
	R2       float64
	MAE      float64
	Err      error
}

// Evaluation holds every candidate result in candidate order
type Evaluation struct {
	Results []CandidateResult
	Best    int
}

// Winner is the candidate with the highest held-out R²
func (e *Evaluation) Winner() CandidateResult {
	return e.Results[e.Best]
}

// Evaluate fits each candidate with its own feature selector on the
// training partition and scores it on the test partition. The highest R²
// wins; on an exact tie the earlier candidate is kept. Failed candidates are
// recorded and skipped.
func Evaluate(ctx context.Context, candidates []Candidate, sel SelectorSettings,
	Xtrain *mat.Dense, ytrain []float64, Xtest *mat.Dense, ytest []float64, names []string) (*Evaluation, error) {
	if len(candidates) == 0 {
		return nil, errors.New("ml: no candidates")
	}

	ev := &Evaluation{Results: make([]CandidateResult, len(candidates)), Best: -1}
	bestR2 := math.Inf(-1)
	var errs []error
	for i, c := range candidates {
		res := evaluateOne(ctx, c, sel, Xtrain, ytrain, Xtest, ytest, names)
		ev.Results[i] = res
		if res.Err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, res.Err))
			continue
		}
		if ev.Best < 0 || res.R2 > bestR2 {
			ev.Best = i
			bestR2 = res.R2
		}
	}
	if ev.Best < 0 {
		return ev, fmt.Errorf("%w: %w", ErrAllCandidatesFailed, errors.Join(errs...))
	}
	return ev, nil
}

func evaluateOne(ctx context.Context, c Candidate, sel SelectorSettings,
	Xtrain *mat.Dense, ytrain []float64, Xtest *mat.Dense, ytest []float64, names []string) CandidateResult {
	res := CandidateResult{Name: c.Name}

	selector := NewRFECV(sel.Step, sel.Folds, sel.MinFeatures)
	if err := selector.Fit(ctx, c.New, Xtrain, ytrain, names); err != nil {
		res.Err = err
		return res
	}
	trainSel, err := selector.Transform(Xtrain)
	if err != nil {
		res.Err = err
		return res
	}
	testSel, err := selector.Transform(Xtest)
	if err != nil {
		res.Err = err
		return res
	}

	model := c.New()
	if err := model.Fit(trainSel, ytrain); err != nil {
		res.Err = err
		return res
	}
	pred, err := model.Predict(testSel)
	if err != nil {
		res.Err = err
		return res
	}

	res.Model = model
	res.Selector = selector
	res.R2 = R2(ytest, pred)
	res.MAE = MAE(ytest, pred)
	return res
}
