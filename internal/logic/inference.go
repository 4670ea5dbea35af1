package logic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/courtvision/nba-analysis/internal/artifacts"
	"github.com/courtvision/nba-analysis/internal/frame"
	"github.com/courtvision/nba-analysis/internal/ml"
	"github.com/courtvision/nba-analysis/internal/models"
)

var (
	predictionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtvision_prediction_requests_total",
		Help: "Prediction requests by outcome",
	}, []string{"outcome"})

	predictionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "courtvision_prediction_duration_seconds",
		Help:    "Time to answer a prediction request",
		Buckets: prometheus.DefBuckets,
	})
)

// UnsupportedTargetsError lists requested targets without production models
type UnsupportedTargetsError struct {
	Targets []string
}

func (e *UnsupportedTargetsError) Error() string {
	return fmt.Sprintf("Unsupported targets: %v", e.Targets)
}

// SchemaMismatchError means a production scaler expects columns the aligned
// data does not have
type SchemaMismatchError struct {
	Target  string
	Missing []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s: scaler expects columns missing from the aligned data: %s",
		e.Target, strings.Join(e.Missing, ", "))
}

// AlignFeatures conforms data to the columns of reference. Reference columns
// absent from data are added as literal zeros, columns only in data are
// dropped, order follows reference, and remaining gaps are filled with
// medians fit on reference alone.
func AlignFeatures(data, reference *frame.Frame) (*frame.Frame, error) {
	out := data.Drop()
	for _, col := range reference.Columns() {
		if !out.Has(col) {
			out.Fill(col, 0)
		}
	}
	aligned, err := out.Select(reference.Columns())
	if err != nil {
		return nil, err
	}

	var imp ml.MedianImputer
	if err := imp.Fit(reference, reference.NumericColumns()); err != nil {
		return nil, err
	}
	return imp.Transform(aligned)
}

// PredictionFrames holds the aligned features and identity columns of the
// rows being predicted
type PredictionFrames struct {
	Features *frame.Frame
	Players  []string
	Teams    []string
}

// PreparePrediction drops identity columns and the requested targets from
// both frames, keeps numeric columns, and aligns the new data to the
// reference.
func PreparePrediction(data, reference *frame.Frame, targets []string) (*PredictionFrames, error) {
	pf := &PredictionFrames{}
	if players, ok := data.Text("Player"); ok {
		pf.Players = players
	}
	if teams, ok := data.Text("TEAM"); ok {
		pf.Teams = teams
	}

	drop := append(append([]string(nil), IdentityColumns...), targets...)
	ref := numericOnly(RemoveTeamTotals(reference).Drop(drop...))
	if ref.Len() == 0 {
		return nil, errors.New("reference dataset has no player rows")
	}
	features, err := AlignFeatures(numericOnly(data.Drop(drop...)), ref)
	if err != nil {
		return nil, fmt.Errorf("align: %w", err)
	}
	pf.Features = features
	return pf, nil
}

// PredictTarget applies the production scaler, selector and model of one
// target to aligned features
func PredictTarget(features *frame.Frame, set *artifacts.ProductionSet) ([]float64, error) {
	expected := set.Scaler.FeatureNames
	var missing []string
	for _, col := range expected {
		if _, ok := features.Numeric(col); !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaMismatchError{Target: set.ID.Target, Missing: missing}
	}

	X, err := features.Matrix(expected)
	if err != nil {
		return nil, err
	}
	scaled, err := set.Scaler.Transform(X)
	if err != nil {
		return nil, fmt.Errorf("scale: %w", err)
	}
	selected, err := set.Selector.Transform(scaled)
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	return set.Model.Predict(selected)
}

type PredictionConfig struct {
	Datasets        DatasetLoader
	HistoricalTable string
	CurrentTable    string
	ProductionDir   string
	DefaultTargets  []string
	Cache           *PredictionCache
	Logger          *zap.Logger
}

type predictionService struct {
	datasets       DatasetLoader
	historical     string
	current        string
	productionDir  string
	defaultTargets []string
	cache          *PredictionCache
	logger         *zap.SugaredLogger
}

func NewPredictionService(cfg PredictionConfig) PredictionService {
	return &predictionService{
		datasets:       cfg.Datasets,
		historical:     cfg.HistoricalTable,
		current:        cfg.CurrentTable,
		productionDir:  cfg.ProductionDir,
		defaultTargets: cfg.DefaultTargets,
		cache:          cfg.Cache,
		logger:         cfg.Logger.Sugar(),
	}
}

func (s *predictionService) Predict(ctx context.Context, req models.PredictRequest) ([]models.PlayerPrediction, error) {
	start := time.Now()
	defer func() { predictionDuration.Observe(time.Since(start).Seconds()) }()

	targets := dedupe(req.Targets)
	if len(targets) == 0 {
		targets = s.defaultTargets
	}

	var unsupported []string
	for _, t := range targets {
		if !artifacts.HasProductionModel(s.productionDir, t) {
			unsupported = append(unsupported, t)
		}
	}
	if len(unsupported) > 0 {
		predictionRequests.WithLabelValues("unsupported").Inc()
		s.logger.Warnw("Unsupported targets requested", "targets", unsupported)
		return nil, &UnsupportedTargetsError{Targets: unsupported}
	}

	filter := DatasetFilter{Team: req.Team, Season: req.Season}
	rows, gen, ok := s.cache.Get(ctx, filter, targets)
	if ok {
		predictionRequests.WithLabelValues("cache_hit").Inc()
		return rows, nil
	}

	var current, reference *frame.Frame
	sets := make([]*artifacts.ProductionSet, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = s.datasets.Load(gctx, s.current, filter)
		return err
	})
	g.Go(func() error {
		var err error
		reference, err = s.datasets.Load(gctx, s.historical, DatasetFilter{})
		return err
	})
	for i, t := range targets {
		g.Go(func() error {
			set, err := artifacts.LoadProduction(s.productionDir, t)
			if errors.Is(err, artifacts.ErrNotPromoted) {
				return &UnsupportedTargetsError{Targets: []string{t}}
			}
			sets[i] = set
			return err
		})
	}
	if err := g.Wait(); err != nil {
		predictionRequests.WithLabelValues("error").Inc()
		return nil, err
	}

	frames, err := PreparePrediction(current, reference, targets)
	if err != nil {
		predictionRequests.WithLabelValues("error").Inc()
		return nil, err
	}

	rows = make([]models.PlayerPrediction, frames.Features.Len())
	for i := range rows {
		if frames.Players != nil {
			rows[i].Player = &frames.Players[i]
		}
		if frames.Teams != nil {
			rows[i].Team = &frames.Teams[i]
		}
		rows[i].Predictions = make([]models.TargetValue, 0, len(targets))
	}
	for k, t := range targets {
		s.logger.Debugw("Predicting target", "target", t, "version", sets[k].ID.VersionString())
		preds, err := PredictTarget(frames.Features, sets[k])
		if err != nil {
			predictionRequests.WithLabelValues("error").Inc()
			s.logger.Errorw("Prediction failed", "target", t, "error", err)
			return nil, err
		}
		for i, v := range preds {
			rows[i].Predictions = append(rows[i].Predictions, models.TargetValue{Target: t, Value: v})
		}
	}

	s.cache.Put(ctx, gen, filter, targets, rows)
	predictionRequests.WithLabelValues("ok").Inc()
	s.logger.Infow("Prediction complete", "targets", targets, "rows", len(rows), "team", req.Team, "season", req.Season)
	return rows, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
