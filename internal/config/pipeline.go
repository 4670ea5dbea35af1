package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/courtvision/nba-analysis/internal/ml"
)

// Pipeline is the training and promotion configuration read from YAML
type Pipeline struct {
	Targets     []string    `yaml:"targets"`
	OutputDir   string      `yaml:"output_dir"`
	Seed        int64       `yaml:"seed"`
	TestSize    float64     `yaml:"test_size"`
	CVFolds     int         `yaml:"cv_folds"`
	RFEStep     int         `yaml:"rfe_step"`
	MinFeatures int         `yaml:"min_features"`
	Candidates  []Candidate `yaml:"candidates"`
}

// Candidate configures one estimator compared during training. Candidates
// are evaluated in file order and the earliest wins an R² tie.
type Candidate struct {
	Name         string  `yaml:"name"`
	Kind         string  `yaml:"kind"`
	NEstimators  int     `yaml:"n_estimators"`
	MaxDepth     int     `yaml:"max_depth"`
	LearningRate float64 `yaml:"learning_rate"`
}

// DefaultPipeline mirrors the settings the models were originally tuned with
func DefaultPipeline() *Pipeline {
	return &Pipeline{
		Targets:     []string{"3P", "3PA"},
		OutputDir:   "models",
		Seed:        42,
		TestSize:    0.2,
		CVFolds:     5,
		RFEStep:     5,
		MinFeatures: 5,
		Candidates: []Candidate{
			{Name: "RandomForest", Kind: ml.KindRandomForest, NEstimators: 200, MaxDepth: 10},
			{Name: "GradientBoosting", Kind: ml.KindGradientBoosting, NEstimators: 200, MaxDepth: 5, LearningRate: 0.05},
		},
	}
}

// LoadPipeline reads path over the defaults. A missing file yields the
// defaults; any key present in the file replaces the default.
func LoadPipeline(path string) (*Pipeline, error) {
	p := DefaultPipeline()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return p, p.Validate()
	case err != nil:
		return nil, fmt.Errorf("read pipeline config: %w", err)
	}

	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse pipeline config %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline config %s: %w", path, err)
	}
	return p, nil
}

// Validate rejects settings training cannot run with
func (p *Pipeline) Validate() error {
	if len(p.Targets) == 0 {
		return errors.New("no targets configured")
	}
	seen := make(map[string]bool, len(p.Targets))
	for _, t := range p.Targets {
		if t == "" {
			return errors.New("empty target name")
		}
		if seen[t] {
			return fmt.Errorf("duplicate target %q", t)
		}
		seen[t] = true
	}
	if p.OutputDir == "" {
		return errors.New("output_dir is required")
	}
	if p.TestSize <= 0 || p.TestSize >= 1 {
		return fmt.Errorf("test_size %v must be between 0 and 1", p.TestSize)
	}
	if p.CVFolds < 2 {
		return fmt.Errorf("cv_folds %d must be at least 2", p.CVFolds)
	}
	if p.RFEStep < 1 {
		return fmt.Errorf("rfe_step %d must be at least 1", p.RFEStep)
	}
	if p.MinFeatures < 1 {
		return fmt.Errorf("min_features %d must be at least 1", p.MinFeatures)
	}
	if len(p.Candidates) == 0 {
		return errors.New("no candidates configured")
	}
	names := make(map[string]bool, len(p.Candidates))
	for _, c := range p.Candidates {
		if names[c.Name] {
			return fmt.Errorf("duplicate candidate %q", c.Name)
		}
		names[c.Name] = true
	}
	_, err := p.BuildCandidates()
	return err
}

// BuildCandidates turns the configured candidates into estimator factories,
// keeping file order
func (p *Pipeline) BuildCandidates() ([]ml.Candidate, error) {
	out := make([]ml.Candidate, 0, len(p.Candidates))
	for _, c := range p.Candidates {
		cand, err := ml.NewCandidate(c.Name, c.Kind, ml.Params{
			NEstimators:  c.NEstimators,
			MaxDepth:     c.MaxDepth,
			LearningRate: c.LearningRate,
			Seed:         p.Seed,
		})
		if err != nil {
			return nil, fmt.Errorf("candidate %q: %w", c.Name, err)
		}
		out = append(out, cand)
	}
	return out, nil
}

// StagingDir is output_dir/staging
func (p *Pipeline) StagingDir() string {
	return filepath.Join(p.OutputDir, "staging")
}

// ProductionDir is output_dir/production
func (p *Pipeline) ProductionDir() string {
	return filepath.Join(p.OutputDir, "production")
}

// IsTarget reports whether name is a configured target
func (p *Pipeline) IsTarget(name string) bool {
	for _, t := range p.Targets {
		if t == name {
			return true
		}
	}
	return false
}
