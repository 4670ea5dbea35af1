package logic

import (
	"context"
	"errors"
	"io/fs"
	"sort"

	"go.uber.org/zap"

	"github.com/courtvision/nba-analysis/internal/artifacts"
	"github.com/courtvision/nba-analysis/internal/config"
	"github.com/courtvision/nba-analysis/internal/models"
)

type pipelineService struct {
	trainer  *Trainer
	promoter *artifacts.Promoter
	pipeline *config.Pipeline
	cache    *PredictionCache
	logger   *zap.SugaredLogger
}

func NewPipelineService(trainer *Trainer, promoter *artifacts.Promoter, pipeline *config.Pipeline, cache *PredictionCache, logger *zap.Logger) PipelineService {
	return &pipelineService{
		trainer:  trainer,
		promoter: promoter,
		pipeline: pipeline,
		cache:    cache,
		logger:   logger.Sugar(),
	}
}

func (s *pipelineService) Train(ctx context.Context, targets []string) (*models.TrainingReport, error) {
	return s.trainer.Run(ctx, targets)
}

// Promote promotes targets (all configured targets when empty) and
// invalidates cached predictions if anything changed
func (s *pipelineService) Promote(ctx context.Context, targets []string) ([]artifacts.Result, error) {
	if len(targets) == 0 {
		targets = s.pipeline.Targets
	}
	results, err := s.promoter.Promote(ctx, targets)

	for _, r := range results {
		if r.Status != artifacts.StatusPromoted {
			continue
		}
		if cerr := s.cache.Invalidate(ctx); cerr != nil {
			s.logger.Warnw("Failed to invalidate prediction cache", "error", cerr)
		}
		break
	}
	return results, err
}

type modelService struct {
	stagingDir    string
	productionDir string
	targets       []string
	history       RunHistory
}

// NewModelService reports models from the artifact directories. history may be nil.
func NewModelService(pipeline *config.Pipeline, history RunHistory) ModelService {
	return &modelService{
		stagingDir:    pipeline.StagingDir(),
		productionDir: pipeline.ProductionDir(),
		targets:       pipeline.Targets,
		history:       history,
	}
}

var ErrHistoryDisabled = errors.New("training history is not configured")

func (s *modelService) ListModels(ctx context.Context) ([]models.ModelSummary, error) {
	staged, err := artifacts.LoadManifest(s.stagingDir)
	if err != nil {
		return nil, err
	}
	prod, err := artifacts.LoadProductionManifest(s.productionDir)
	if err != nil {
		return nil, err
	}

	// configured targets first, then anything else found on disk
	extra := staged.Targets()
	for t := range prod.Targets {
		extra = append(extra, t)
	}
	sort.Strings(extra)
	names := dedupe(append(append([]string(nil), s.targets...), extra...))

	out := make([]models.ModelSummary, 0, len(names))
	for _, target := range names {
		sum := models.ModelSummary{Target: target, Staged: []models.ModelVersion{}}
		for _, e := range staged.Versions(target) {
			sum.Staged = append(sum.Staged, models.ModelVersion{Version: e.VersionString(), RunID: e.RunID, CreatedAt: e.CreatedAt})
		}
		if e, ok := prod.Targets[target]; ok {
			sum.Production = &models.ModelVersion{Version: e.VersionString(), RunID: e.RunID, CreatedAt: e.CreatedAt}
			meta, err := artifacts.LoadMetadata(s.productionDir, target)
			switch {
			case err == nil:
				sum.Model = meta.Model
				sum.R2 = &meta.R2
				sum.MAE = &meta.MAE
			case !errors.Is(err, fs.ErrNotExist):
				return nil, err
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

func (s *modelService) History(ctx context.Context, target string, limit int) ([]models.RunRecord, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.History(ctx, target, limit)
}
