package logic

import (
	"errors"
	"fmt"

	"github.com/courtvision/nba-analysis/internal/frame"
	"github.com/courtvision/nba-analysis/internal/ml"
)

// TeamTotals is the Player value of aggregate team rows
const TeamTotals = "Team Totals"

// IdentityColumns never enter a feature matrix
var IdentityColumns = []string{"Awards", "Pos", "Age", "Rk", "Player", "TEAM"}

var ErrTargetMissing = errors.New("target column not found in dataset")

// RemoveTeamTotals drops aggregate rows. Frames without a text Player
// column are returned unchanged.
func RemoveTeamTotals(f *frame.Frame) *frame.Frame {
	players, ok := f.Text("Player")
	if !ok {
		return f
	}
	return f.Filter(func(i int) bool { return players[i] != TeamTotals })
}

// numericOnly drops every text column left after identity removal
func numericOnly(f *frame.Frame) *frame.Frame {
	return f.Drop(f.TextColumns()...)
}

// PrepareTraining cleans a raw dataset into an all-numeric, fully imputed
// frame. Order: team totals, identity columns, non-numeric leftovers, then
// per-column median imputation fit on this dataset. Targets stay in the
// frame; TrainingData separates them per target.
func PrepareTraining(raw *frame.Frame) (*frame.Frame, error) {
	clean := numericOnly(RemoveTeamTotals(raw).Drop(IdentityColumns...))
	if clean.Len() == 0 {
		return nil, errors.New("dataset has no player rows")
	}
	var imp ml.MedianImputer
	out, err := imp.FitTransform(clean)
	if err != nil {
		return nil, fmt.Errorf("impute: %w", err)
	}
	return out, nil
}

// TrainingData returns the feature frame and target vector for target.
// Every configured target is removed from the features, not just the one
// being trained.
func TrainingData(clean *frame.Frame, target string, targets []string) (*frame.Frame, []float64, error) {
	y, ok := clean.Numeric(target)
	if !ok {
		return nil, nil, fmt.Errorf("%s: %w", target, ErrTargetMissing)
	}
	X := clean.Drop(append([]string{target}, targets...)...)
	if len(X.Columns()) == 0 {
		return nil, nil, fmt.Errorf("%s: no feature columns left", target)
	}
	return X, append([]float64(nil), y...), nil
}
