package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/courtvision/nba-analysis/internal/ml"
)

// Bundle is the winning output of one training run
type Bundle struct {
	Target    string
	RunID     string
	ModelName string
	Model     ml.Regressor
	Scaler    *ml.StandardScaler
	Selector  *ml.RFECV
	R2        float64
	MAE       float64
}

func (b Bundle) validate() error {
	switch {
	case b.Target == "":
		return errors.New("bundle has no target")
	case b.Model == nil:
		return errors.New("bundle has no model")
	case b.Scaler == nil:
		return errors.New("bundle has no scaler")
	case b.Selector == nil:
		return errors.New("bundle has no selector")
	}
	return nil
}

// StageLockFile is the lock file that serializes staging between processes
// sharing one staging directory
const StageLockFile = ".stage.lock"

const (
	stageLockTTL  = 2 * time.Minute
	stageLockWait = 3 * time.Minute
	stageLockPoll = 50 * time.Millisecond
)

// Stager writes training runs into the staging directory under the next
// free version of their target. Version assignment and the manifest update
// run under a lock file, so the API worker and the pipeline CLI can stage
// into the same directory.
type Stager struct {
	dir    string
	lock   Locker
	now    func() time.Time
	logger *zap.SugaredLogger
	mu     sync.Mutex
}

// NewStager creates a stager for dir
func NewStager(dir string, logger *zap.Logger) *Stager {
	return &Stager{
		dir:    dir,
		lock:   &FileLocker{Path: filepath.Join(dir, StageLockFile), TTL: stageLockTTL},
		now:    time.Now,
		logger: logger.Sugar(),
	}
}

// acquire waits for the staging lock. A lock left by a crashed process is
// taken over once it is older than its TTL.
func (s *Stager) acquire() (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), stageLockWait)
	defer cancel()
	for {
		release, err := s.lock.Acquire(ctx)
		if !errors.Is(err, ErrLocked) {
			return release, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("staging directory %s: %w", s.dir, ErrLocked)
		case <-time.After(stageLockPoll):
		}
	}
}

// Dir is the staging directory
func (s *Stager) Dir() string {
	return s.dir
}

// NextVersion is one past the highest version of target seen either in the
// manifest or among strictly named files on disk.
func (s *Stager) NextVersion(target string) (int, error) {
	m, err := LoadManifest(s.dir)
	if err != nil {
		return 0, err
	}
	return s.nextVersion(m, target)
}

func (s *Stager) nextVersion(m *Manifest, target string) (int, error) {
	max := m.MaxVersion(target)
	scanned, err := scanStaging(s.dir)
	if err != nil {
		return 0, err
	}
	for v := range scanned[target] {
		if v > max {
			max = v
		}
	}
	return max + 1, nil
}

// Stage writes the model, scaler, selector and metadata of b, then records
// the version in the manifest. The manifest entry only appears once all four
// files exist.
func (s *Stager) Stage(b Bundle) (Entry, error) {
	if err := b.validate(); err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("create staging dir: %w", err)
	}
	release, err := s.acquire()
	if err != nil {
		return Entry{}, err
	}
	defer release()

	m, err := LoadManifest(s.dir)
	if err != nil {
		return Entry{}, err
	}
	version, err := s.nextVersion(m, b.Target)
	if err != nil {
		return Entry{}, err
	}

	now := s.now()
	id := ArtifactID{
		Target:    b.Target,
		Version:   version,
		Timestamp: now.Format(TimestampLayout),
		RunID:     b.RunID,
	}
	entry := Entry{
		Target:    id.Target,
		Version:   id.Version,
		Timestamp: id.Timestamp,
		RunID:     id.RunID,
		Files:     make(map[Kind]string, 4),
		CreatedAt: now.UTC(),
	}

	payloads := []*envelope{
		{ID: id, Kind: KindModel, Model: b.Model},
		{ID: id, Kind: KindScaler, Scaler: b.Scaler},
		{ID: id, Kind: KindSelector, Selector: b.Selector},
	}
	for _, env := range payloads {
		name := stagingFile(id, env.Kind)
		if err := writeEnvelope(filepath.Join(s.dir, name), env); err != nil {
			s.discard(entry)
			return Entry{}, fmt.Errorf("stage %s: %w", env.Kind, err)
		}
		entry.Files[env.Kind] = name
	}

	meta := Metadata{
		Target:           b.Target,
		Version:          id.VersionString(),
		Model:            b.ModelName,
		R2:               round4(b.R2),
		MAE:              round4(b.MAE),
		RunID:            b.RunID,
		SelectedFeatures: b.Selector.SelectedFeatures(),
		TrainedAt:        now.UTC(),
	}
	metaName := stagingFile(id, KindMetadata)
	if err := writeJSON(filepath.Join(s.dir, metaName), meta); err != nil {
		s.discard(entry)
		return Entry{}, fmt.Errorf("stage metadata: %w", err)
	}
	entry.Files[KindMetadata] = metaName

	m.Entries = append(m.Entries, entry)
	if err := m.save(s.dir); err != nil {
		s.discard(entry)
		return Entry{}, fmt.Errorf("save manifest: %w", err)
	}

	s.logger.Infow("Saved best model",
		"target", b.Target,
		"prefix", id.Prefix(),
		"model", b.ModelName,
		"r2", meta.R2,
		"mae", meta.MAE,
	)
	return entry, nil
}

// discard removes the files of a version that failed to stage
func (s *Stager) discard(e Entry) {
	for _, name := range e.Files {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warnw("Failed to remove partial artifact", "file", name, "error", err)
		}
	}
}
