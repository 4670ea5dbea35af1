package logic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/courtvision/nba-analysis/internal/artifacts"
	"github.com/courtvision/nba-analysis/internal/config"
	"github.com/courtvision/nba-analysis/internal/frame"
	"github.com/courtvision/nba-analysis/internal/ml"
	"github.com/courtvision/nba-analysis/internal/models"
)

var (
	trainedTargets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtvision_training_targets_total",
		Help: "Per-target training outcomes",
	}, []string{"status"})

	targetTrainingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "courtvision_target_training_duration_seconds",
		Help:    "Time to train and stage one target",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"target"})
)

type TrainerConfig struct {
	Datasets DatasetLoader
	Table    string
	Pipeline *config.Pipeline
	Stager   *artifacts.Stager
	History  RunHistory // optional
	Logger   *zap.Logger
}

// Trainer runs the per-target training procedure and stages each winner
type Trainer struct {
	datasets   DatasetLoader
	table      string
	pipeline   *config.Pipeline
	candidates []ml.Candidate
	stager     *artifacts.Stager
	history    RunHistory
	logger     *zap.SugaredLogger
	now        func() time.Time
}

func NewTrainer(cfg TrainerConfig) (*Trainer, error) {
	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, err
	}
	candidates, err := cfg.Pipeline.BuildCandidates()
	if err != nil {
		return nil, err
	}
	return &Trainer{
		datasets:   cfg.Datasets,
		table:      cfg.Table,
		pipeline:   cfg.Pipeline,
		candidates: candidates,
		stager:     cfg.Stager,
		history:    cfg.History,
		logger:     cfg.Logger.Sugar(),
		now:        time.Now,
	}, nil
}

// Run trains every target in order (the configured list when targets is
// empty). A dataset failure aborts the run; a failing target is reported and
// the remaining targets still train.
func (t *Trainer) Run(ctx context.Context, targets []string) (*models.TrainingReport, error) {
	if len(targets) == 0 {
		targets = t.pipeline.Targets
	}
	report := &models.TrainingReport{
		RunID:     uuid.NewString(),
		StartedAt: t.now().UTC(),
	}

	t.logger.Infow("Loading training data", "table", t.table, "run_id", report.RunID)
	raw, err := t.datasets.Load(ctx, t.table, DatasetFilter{})
	if err != nil {
		return nil, fmt.Errorf("load training data: %w", err)
	}
	clean, err := PrepareTraining(raw)
	if err != nil {
		return nil, err
	}
	report.Rows = clean.Len()

	drop := dedupe(append(append([]string(nil), t.pipeline.Targets...), targets...))

	var records []models.RunRecord
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		started := time.Now()
		tr, recs := t.trainTarget(ctx, clean, target, drop, report.RunID)
		if err := ctx.Err(); err != nil {
			return report, err
		}
		targetTrainingDuration.WithLabelValues(target).Observe(time.Since(started).Seconds())
		trainedTargets.WithLabelValues(string(tr.Status)).Inc()
		report.Targets = append(report.Targets, tr)
		records = append(records, recs...)
	}
	report.FinishedAt = t.now().UTC()

	if t.history != nil && len(records) > 0 {
		if err := t.history.Record(ctx, records); err != nil {
			t.logger.Warnw("Failed to record training history", "run_id", report.RunID, "error", err)
		}
	}

	t.logger.Infow("Training complete",
		"run_id", report.RunID,
		"trained", report.Trained(),
		"targets", len(report.Targets),
	)
	return report, nil
}

func (t *Trainer) trainTarget(ctx context.Context, clean *frame.Frame, target string, drop []string, runID string) (models.TargetReport, []models.RunRecord) {
	tr := models.TargetReport{Target: target}
	fail := func(status models.TargetStatus, err error) (models.TargetReport, []models.RunRecord) {
		tr.Status = status
		tr.Error = err.Error()
		return tr, nil
	}

	X, y, err := TrainingData(clean, target, drop)
	if errors.Is(err, ErrTargetMissing) {
		t.logger.Warnw("Skipping target: not found in data", "target", target)
		return fail(models.TargetSkipped, err)
	}
	if err != nil {
		t.logger.Errorw("Cannot build training data", "target", target, "error", err)
		return fail(models.TargetFailed, err)
	}

	t.logger.Infow("Training models for target", "target", target, "rows", X.Len(), "features", len(X.Columns()))
	names := X.Columns()
	trainIdx, testIdx, err := ml.TrainTestSplit(X.Len(), t.pipeline.TestSize, t.pipeline.Seed)
	if err != nil {
		return fail(models.TargetFailed, err)
	}
	Xtrain, err := X.Take(trainIdx).Matrix(names)
	if err != nil {
		return fail(models.TargetFailed, err)
	}
	Xtest, err := X.Take(testIdx).Matrix(names)
	if err != nil {
		return fail(models.TargetFailed, err)
	}
	ytrain, ytest := pickRows(y, trainIdx), pickRows(y, testIdx)

	scaler := &ml.StandardScaler{}
	XtrainScaled, err := scaler.FitTransform(Xtrain, names)
	if err != nil {
		return fail(models.TargetFailed, err)
	}
	XtestScaled, err := scaler.Transform(Xtest)
	if err != nil {
		return fail(models.TargetFailed, err)
	}

	ev, err := ml.Evaluate(ctx, t.candidates, ml.SelectorSettings{
		Step:        t.pipeline.RFEStep,
		Folds:       t.pipeline.CVFolds,
		MinFeatures: t.pipeline.MinFeatures,
	}, XtrainScaled, ytrain, XtestScaled, ytest, names)
	if ev != nil {
		for _, res := range ev.Results {
			score := models.CandidateScore{Name: res.Name, R2: res.R2, MAE: res.MAE}
			if res.Err != nil {
				score.Error = res.Err.Error()
				t.logger.Warnw("Candidate failed", "target", target, "candidate", res.Name, "error", res.Err)
			} else {
				score.NFeatures = res.Selector.NFeatures
				t.logger.Infow("Candidate scored", "target", target, "candidate", res.Name, "r2", res.R2, "mae", res.MAE)
			}
			tr.Candidates = append(tr.Candidates, score)
		}
	}
	if err != nil {
		t.logger.Errorw("Training failed for target", "target", target, "error", err)
		return fail(models.TargetFailed, err)
	}

	winner := ev.Winner()
	entry, err := t.stager.Stage(artifacts.Bundle{
		Target:    target,
		RunID:     runID,
		ModelName: winner.Name,
		Model:     winner.Model,
		Scaler:    scaler,
		Selector:  winner.Selector,
		R2:        winner.R2,
		MAE:       winner.MAE,
	})
	if err != nil {
		t.logger.Errorw("Failed to stage model", "target", target, "error", err)
		return fail(models.TargetFailed, err)
	}

	tr.Status = models.TargetTrained
	tr.Version = entry.VersionString()
	tr.Winner = winner.Name
	tr.R2 = winner.R2
	tr.MAE = winner.MAE
	tr.Features = winner.Selector.SelectedFeatures()

	records := make([]models.RunRecord, 0, len(ev.Results))
	for i, res := range ev.Results {
		if res.Err != nil {
			continue
		}
		records = append(records, models.RunRecord{
			RunID:     runID,
			Target:    target,
			Version:   tr.Version,
			Candidate: res.Name,
			R2:        res.R2,
			MAE:       res.MAE,
			NFeatures: uint32(res.Selector.NFeatures),
			Winner:    i == ev.Best,
			TrainedAt: entry.CreatedAt,
		})
	}
	return tr, records
}

func pickRows(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for k, i := range idx {
		out[k] = y[i]
	}
	return out
}
