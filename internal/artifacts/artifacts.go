// Package artifacts versions trained model sets in a staging area and
// promotes them into the unversioned production set read by serving.
//
// Layout under the output directory:
//
//	staging/{target}_v{N}_{YYYYMMDD}_{HHMM}_{best_model|scaler|selector}.pkl
//	staging/{target}_v{N}_{YYYYMMDD}_{HHMM}.json
//	staging/manifest.json
//	production/{target}_{best_model|scaler|selector}.pkl
//	production/{target}.json
//	production/manifest.json
//
// The .pkl files hold gob-encoded envelopes; the suffix is kept so existing
// tooling that globs for it keeps working.
package artifacts

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// TimestampLayout formats staging timestamps (minute granularity)
const TimestampLayout = "20060102_1504"

var (
	ErrNotPromoted       = errors.New("artifacts: target has no production model")
	ErrMixedArtifacts    = errors.New("artifacts: production artifacts come from different versions")
	ErrNoCompleteVersion = errors.New("artifacts: no complete staged version")
	ErrLocked            = errors.New("artifacts: promotion already in progress")
)

// Kind names one file of an artifact set
type Kind string

const (
	KindModel    Kind = "best_model"
	KindScaler   Kind = "scaler"
	KindSelector Kind = "selector"
	KindMetadata Kind = "metadata"
)

// RequiredKinds must all exist before a version can be promoted or served
var RequiredKinds = []Kind{KindModel, KindScaler, KindSelector}

// ArtifactID identifies the training run an artifact came from
type ArtifactID struct {
	Target    string
	Version   int
	Timestamp string
	RunID     string
}

// Prefix is the shared staging filename prefix
func (id ArtifactID) Prefix() string {
	return fmt.Sprintf("%s_v%d_%s", id.Target, id.Version, id.Timestamp)
}

// VersionString is the version label recorded in metadata, e.g. v3_20250101_1200
func (id ArtifactID) VersionString() string {
	return fmt.Sprintf("v%d_%s", id.Version, id.Timestamp)
}

// matches compares ids; an empty RunID on id (an index rebuilt from
// filenames) matches any run
func (id ArtifactID) matches(other ArtifactID) bool {
	if id.Target != other.Target || id.Version != other.Version || id.Timestamp != other.Timestamp {
		return false
	}
	return id.RunID == "" || id.RunID == other.RunID
}

func stagingFile(id ArtifactID, kind Kind) string {
	if kind == KindMetadata {
		return id.Prefix() + ".json"
	}
	return fmt.Sprintf("%s_%s.pkl", id.Prefix(), kind)
}

// ProductionFile is the unversioned production filename for a target
func ProductionFile(target string, kind Kind) string {
	if kind == KindMetadata {
		return target + ".json"
	}
	return fmt.Sprintf("%s_%s.pkl", target, kind)
}

var stagedName = regexp.MustCompile(`^(.+)_v(\d+)_(\d{8}_\d{4})(?:_(best_model|scaler|selector)\.pkl|\.json)$`)

// parseStagedName splits a staging filename. The target must match exactly,
// so "3P" never claims files of "3PA".
func parseStagedName(name string) (id ArtifactID, kind Kind, ok bool) {
	m := stagedName.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return ArtifactID{}, "", false
	}
	version, err := strconv.Atoi(m[2])
	if err != nil {
		return ArtifactID{}, "", false
	}
	kind = KindMetadata
	if m[4] != "" {
		kind = Kind(m[4])
	}
	return ArtifactID{Target: m[1], Version: version, Timestamp: m[3]}, kind, true
}

// Metadata describes a staged training run
type Metadata struct {
	Target           string    `json:"target"`
	Version          string    `json:"version"`
	Model            string    `json:"model"`
	R2               float64   `json:"r2"`
	MAE              float64   `json:"mae"`
	RunID            string    `json:"run_id"`
	SelectedFeatures []string  `json:"selected_features"`
	TrainedAt        time.Time `json:"trained_at"`
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}
