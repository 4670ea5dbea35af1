package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/courtvision/nba-analysis/internal/ml"
)

// ProductionSet is the model, scaler and selector serving uses for a target
type ProductionSet struct {
	ID       ArtifactID
	Model    ml.Regressor
	Scaler   *ml.StandardScaler
	Selector *ml.RFECV
}

// HasProductionModel reports whether target has a production model file
func HasProductionModel(dir, target string) bool {
	info, err := os.Stat(filepath.Join(dir, ProductionFile(target, KindModel)))
	return err == nil && !info.IsDir()
}

// LoadProduction reads the production triple of target. The three files
// must come from the same staged version; a set caught mid-promotion
// returns ErrMixedArtifacts.
func LoadProduction(dir, target string) (*ProductionSet, error) {
	if !HasProductionModel(dir, target) {
		return nil, fmt.Errorf("%s: %w", target, ErrNotPromoted)
	}

	envs := make(map[Kind]*envelope, len(RequiredKinds))
	for _, k := range RequiredKinds {
		env, err := readEnvelope(filepath.Join(dir, ProductionFile(target, k)))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s %s: %w", target, k, ErrNotPromoted)
		}
		if err != nil {
			return nil, fmt.Errorf("load %s %s: %w", target, k, err)
		}
		if env.Kind != k {
			return nil, fmt.Errorf("load %s %s: file holds %s", target, k, env.Kind)
		}
		envs[k] = env
	}

	model, scaler, selector := envs[KindModel], envs[KindScaler], envs[KindSelector]
	if model.ID != scaler.ID || model.ID != selector.ID {
		return nil, fmt.Errorf("%s: model %s, scaler %s, selector %s: %w",
			target, model.ID.VersionString(), scaler.ID.VersionString(), selector.ID.VersionString(), ErrMixedArtifacts)
	}
	if model.ID.Target != target {
		return nil, fmt.Errorf("%s: files belong to %s: %w", target, model.ID.Target, ErrMixedArtifacts)
	}
	if model.Model == nil || scaler.Scaler == nil || selector.Selector == nil {
		return nil, fmt.Errorf("load %s: empty artifact", target)
	}

	return &ProductionSet{
		ID:       model.ID,
		Model:    model.Model,
		Scaler:   scaler.Scaler,
		Selector: selector.Selector,
	}, nil
}

// LoadMetadata reads the production metadata record of target
func LoadMetadata(dir, target string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, ProductionFile(target, KindMetadata)))
	if err != nil {
		return nil, err
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s metadata: %w", target, err)
	}
	return &m, nil
}
