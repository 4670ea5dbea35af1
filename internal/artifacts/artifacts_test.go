package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/mat"

	"github.com/courtvision/nba-analysis/internal/ml"
)

func testBundle(t *testing.T, target string) Bundle {
	t.Helper()
	X := mat.NewDense(4, 2, []float64{1, 2, 2, 4, 3, 6, 4, 8})
	tree := ml.NewRegressionTree(2)
	require.NoError(t, tree.Fit(X, []float64{1, 2, 3, 4}))

	return Bundle{
		Target:    target,
		RunID:     "run-" + target,
		ModelName: "RandomForest",
		Model:     tree,
		Scaler:    &ml.StandardScaler{FeatureNames: []string{"FG", "FGA"}, Mean: []float64{2.5, 5}, Scale: []float64{1.1, 2.2}},
		Selector: &ml.RFECV{
			Step: 1, Folds: 2, MinFeatures: 1,
			FeatureNames: []string{"FG", "FGA"},
			Support:      []bool{true, false},
			Ranking:      []int{1, 2},
			NFeatures:    1,
		},
		R2:  0.912345678,
		MAE: 1.234567,
	}
}

// newTestStager returns a stager whose clock advances one minute per run
func newTestStager(dir string) *Stager {
	s := NewStager(dir, zap.NewNop())
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return s
}

func TestParseStagedName(t *testing.T) {
	tests := []struct {
		name       string
		wantOK     bool
		wantTarget string
		wantKind   Kind
		wantVer    int
	}{
		{"3P_v2_20250301_1201_best_model.pkl", true, "3P", KindModel, 2},
		{"3PA_v11_20250301_1201_scaler.pkl", true, "3PA", KindScaler, 11},
		{"3P_v1_20250301_1201_selector.pkl", true, "3P", KindSelector, 1},
		{"PTS_v4_20250301_1201.json", true, "PTS", KindMetadata, 4},
		{"3P_v1_2025031_1201_best_model.pkl", false, "", "", 0},
		{"3P_vX_20250301_1201_best_model.pkl", false, "", "", 0},
		{"3P_v1_20250301_1201_weights.pkl", false, "", "", 0},
		{"manifest.json", false, "", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, kind, ok := parseStagedName(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.wantTarget, id.Target)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantVer, id.Version)
		})
	}
}

func TestStage_VersionsAreMonotonicPerTarget(t *testing.T) {
	dir := t.TempDir()
	s := newTestStager(dir)

	order := []string{"3P", "3PA", "3P", "3P", "3PA", "3P"}
	for _, target := range order {
		_, err := s.Stage(testBundle(t, target))
		require.NoError(t, err)
	}

	m, err := LoadManifest(dir)
	require.NoError(t, err)

	versions := func(target string) []int {
		var out []int
		for _, e := range m.Versions(target) {
			out = append(out, e.Version)
		}
		return out
	}
	assert.Equal(t, []int{4, 3, 2, 1}, versions("3P"))
	assert.Equal(t, []int{2, 1}, versions("3PA"))
	assert.Equal(t, []string{"3P", "3PA"}, m.Targets())

	next, err := s.NextVersion("3P")
	require.NoError(t, err)
	assert.Equal(t, 5, next)
}

func TestStage_WritesFourFilesUnderOnePrefix(t *testing.T) {
	dir := t.TempDir()
	s := newTestStager(dir)

	entry, err := s.Stage(testBundle(t, "3P"))
	require.NoError(t, err)

	prefix := "3P_v1_20250301_1201"
	assert.Equal(t, prefix+"_best_model.pkl", entry.Files[KindModel])
	assert.Equal(t, prefix+"_scaler.pkl", entry.Files[KindScaler])
	assert.Equal(t, prefix+"_selector.pkl", entry.Files[KindSelector])
	assert.Equal(t, prefix+".json", entry.Files[KindMetadata])
	for _, name := range entry.Files {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	data, err := os.ReadFile(filepath.Join(dir, prefix+".json"))
	require.NoError(t, err)
	var meta Metadata
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, "3P", meta.Target)
	assert.Equal(t, "v1_20250301_1201", meta.Version)
	assert.Equal(t, "RandomForest", meta.Model)
	assert.Equal(t, 0.9123, meta.R2)
	assert.Equal(t, 1.2346, meta.MAE)
	assert.Equal(t, []string{"FG"}, meta.SelectedFeatures)
}

func TestStage_RejectsIncompleteBundle(t *testing.T) {
	s := newTestStager(t.TempDir())
	b := testBundle(t, "3P")
	b.Selector = nil
	_, err := s.Stage(b)
	assert.Error(t, err)
}

func TestNextVersion_CountsLegacyFilesWithoutManifest(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"3P_v7_20240101_1200_best_model.pkl",
		"3PA_v9_20240101_1200_best_model.pkl",
		"3P_backup.pkl",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	s := newTestStager(dir)
	next, err := s.NextVersion("3P")
	require.NoError(t, err)
	assert.Equal(t, 8, next)

	next, err = s.NextVersion("PTS")
	require.NoError(t, err)
	assert.Equal(t, 1, next)
}

func TestLoadManifest_RebuildSkipsIncompleteVersions(t *testing.T) {
	dir := t.TempDir()
	s := newTestStager(dir)
	for i := 0; i < 2; i++ {
		_, err := s.Stage(testBundle(t, "3P"))
		require.NoError(t, err)
	}
	require.NoError(t, os.Remove(filepath.Join(dir, ManifestFile)))
	require.NoError(t, os.Remove(filepath.Join(dir, "3P_v2_20250301_1202_scaler.pkl")))

	m, err := LoadManifest(dir)
	require.NoError(t, err)
	require.Len(t, m.Entries, 1)
	assert.Equal(t, 1, m.Entries[0].Version)
	assert.Equal(t, "3P_v1_20250301_1201.json", m.Entries[0].Files[KindMetadata])
}

func TestStage_TwoStagersShareDirectory(t *testing.T) {
	dir := t.TempDir()
	stagers := []*Stager{newTestStager(dir), newTestStager(dir)}
	bundles := []Bundle{testBundle(t, "3P"), testBundle(t, "3PA")}

	var wg sync.WaitGroup
	for _, s := range stagers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_, err := s.Stage(bundles[i%2])
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	// every version must be in the file itself, not only recovered by a scan
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	require.NoError(t, err)
	var onDisk Manifest
	require.NoError(t, json.Unmarshal(data, &onDisk))
	require.Len(t, onDisk.Entries, 20)

	for _, target := range []string{"3P", "3PA"} {
		var versions []int
		for _, e := range onDisk.Versions(target) {
			versions = append(versions, e.Version)
		}
		assert.Equal(t, []int{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}, versions, target)
	}
	assert.NoFileExists(t, filepath.Join(dir, StageLockFile))
}

func TestStage_WaitsForHeldLock(t *testing.T) {
	dir := t.TempDir()
	lock := filepath.Join(dir, StageLockFile)
	require.NoError(t, os.WriteFile(lock, []byte("1"), 0o644))

	go func() {
		time.Sleep(200 * time.Millisecond)
		os.Remove(lock)
	}()

	entry, err := newTestStager(dir).Stage(testBundle(t, "3P"))
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Version)
}

func TestLoadManifest_AddsCompleteVersionsMissingFromManifest(t *testing.T) {
	dir := t.TempDir()
	s := newTestStager(dir)
	for _, target := range []string{"3P", "3PA", "3PA"} {
		_, err := s.Stage(testBundle(t, target))
		require.NoError(t, err)
	}

	// simulate a manifest written by a process that never saw the 3PA runs
	m, err := LoadManifest(dir)
	require.NoError(t, err)
	m.Entries = m.Versions("3P")
	require.NoError(t, m.save(dir))
	require.NoError(t, os.Remove(filepath.Join(dir, "3PA_v1_20250301_1202_selector.pkl")))

	m, err = LoadManifest(dir)
	require.NoError(t, err)
	versions := m.Versions("3PA")
	require.Len(t, versions, 1)
	assert.Equal(t, 2, versions[0].Version)
	assert.Equal(t, "3PA_v2_20250301_1203_best_model.pkl", versions[0].Files[KindModel])

	next, err := s.NextVersion("3PA")
	require.NoError(t, err)
	assert.Equal(t, 3, next)
}

func stageRuns(t *testing.T, staging string, targets ...string) {
	t.Helper()
	s := newTestStager(staging)
	for _, target := range targets {
		_, err := s.Stage(testBundle(t, target))
		require.NoError(t, err)
	}
}

func TestPromote_PicksHighestVersion(t *testing.T) {
	root := t.TempDir()
	staging, production := filepath.Join(root, "staging"), filepath.Join(root, "production")
	stageRuns(t, staging, "3P", "3P", "3P")

	p := NewPromoter(staging, production, nil, zap.NewNop())
	results, err := p.Promote(context.Background(), []string{"3P"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusPromoted, results[0].Status)
	assert.Equal(t, "v3_20250301_1203", results[0].Version)
	assert.Empty(t, results[0].Skipped)

	for _, name := range []string{"3P_best_model.pkl", "3P_scaler.pkl", "3P_selector.pkl", "3P.json"} {
		assert.FileExists(t, filepath.Join(production, name))
	}
	assert.NoFileExists(t, filepath.Join(production, LockFile))

	set, err := LoadProduction(production, "3P")
	require.NoError(t, err)
	assert.Equal(t, 3, set.ID.Version)
	assert.Equal(t, []string{"FG", "FGA"}, set.Scaler.FeatureNames)

	meta, err := LoadMetadata(production, "3P")
	require.NoError(t, err)
	assert.Equal(t, "v3_20250301_1203", meta.Version)

	prod, err := LoadProductionManifest(production)
	require.NoError(t, err)
	assert.Equal(t, 3, prod.Targets["3P"].Version)

	// staging is copied, not moved
	assert.FileExists(t, filepath.Join(staging, "3P_v3_20250301_1203_best_model.pkl"))
}

func TestPromote_PartialInstallIsLogged(t *testing.T) {
	root := t.TempDir()
	staging, production := filepath.Join(root, "staging"), filepath.Join(root, "production")
	stageRuns(t, staging, "3P")

	core, logs := observer.New(zap.ErrorLevel)
	p := NewPromoter(staging, production, nil, zap.New(core))
	calls := 0
	p.rename = func(oldpath, newpath string) error {
		calls++
		if calls == 2 {
			return errors.New("disk full")
		}
		return os.Rename(oldpath, newpath)
	}

	results, err := p.Promote(context.Background(), []string{"3P"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Contains(t, results[0].Reason, "disk full")

	mixed := logs.FilterMessage("Production left with mixed artifacts, restore manually").All()
	require.Len(t, mixed, 1)
	fields := mixed[0].ContextMap()
	assert.Equal(t, "3P", fields["target"])
	assert.Equal(t, "3P_scaler.pkl", fields["failed"])
	assert.Contains(t, fmt.Sprint(fields["installed"]), "3P_best_model.pkl")

	// no temp files are left behind
	entries, err := os.ReadDir(production)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".promote-"), "leftover %s", e.Name())
	}
}

func TestPromote_FallsBackWhenNewestLacksSelector(t *testing.T) {
	root := t.TempDir()
	staging, production := filepath.Join(root, "staging"), filepath.Join(root, "production")
	stageRuns(t, staging, "3P", "3P", "3P")
	require.NoError(t, os.Remove(filepath.Join(staging, "3P_v3_20250301_1203_selector.pkl")))

	p := NewPromoter(staging, production, nil, zap.NewNop())
	results, err := p.Promote(context.Background(), []string{"3P"})
	require.NoError(t, err)
	assert.Equal(t, StatusPromoted, results[0].Status)
	assert.Equal(t, "v2_20250301_1202", results[0].Version)
	assert.Equal(t, []string{"v3_20250301_1203"}, results[0].Skipped)

	set, err := LoadProduction(production, "3P")
	require.NoError(t, err)
	assert.Equal(t, 2, set.ID.Version)
}

func TestPromote_FallsBackWhenNewestIsCorrupt(t *testing.T) {
	root := t.TempDir()
	staging, production := filepath.Join(root, "staging"), filepath.Join(root, "production")
	stageRuns(t, staging, "3P", "3P")
	require.NoError(t, os.WriteFile(filepath.Join(staging, "3P_v2_20250301_1202_best_model.pkl"), []byte("garbage"), 0o644))

	p := NewPromoter(staging, production, nil, zap.NewNop())
	results, err := p.Promote(context.Background(), []string{"3P"})
	require.NoError(t, err)
	assert.Equal(t, "v1_20250301_1201", results[0].Version)

	entries, err := os.ReadDir(production)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".promote-", "temp copies must be cleaned up")
	}
}

func TestPromote_NoCompleteVersionLeavesProductionAlone(t *testing.T) {
	root := t.TempDir()
	staging, production := filepath.Join(root, "staging"), filepath.Join(root, "production")
	stageRuns(t, staging, "3P")

	p := NewPromoter(staging, production, nil, zap.NewNop())
	_, err := p.Promote(context.Background(), []string{"3P"})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(staging, "3P_v1_20250301_1201_scaler.pkl")))
	stageRuns(t, staging, "3P")
	require.NoError(t, os.Remove(filepath.Join(staging, "3P_v2_20250301_1201_selector.pkl")))

	results, err := p.Promote(context.Background(), []string{"3P"})
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, results[0].Status)
	assert.Equal(t, ErrNoCompleteVersion.Error(), results[0].Reason)
	assert.Len(t, results[0].Skipped, 2)

	set, err := LoadProduction(production, "3P")
	require.NoError(t, err)
	assert.Equal(t, 1, set.ID.Version)
}

func TestPromote_OverlappingTargetNames(t *testing.T) {
	root := t.TempDir()
	staging, production := filepath.Join(root, "staging"), filepath.Join(root, "production")
	stageRuns(t, staging, "3PA", "3PA")

	p := NewPromoter(staging, production, nil, zap.NewNop())
	results, err := p.Promote(context.Background(), []string{"3P", "3PA"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, StatusSkipped, results[0].Status)
	assert.Equal(t, StatusPromoted, results[1].Status)
	assert.Equal(t, "v2_20250301_1202", results[1].Version)

	assert.False(t, HasProductionModel(production, "3P"))
	assert.True(t, HasProductionModel(production, "3PA"))
	_, err = LoadProduction(production, "3P")
	assert.ErrorIs(t, err, ErrNotPromoted)
}

func TestPromote_WorksFromLegacyStagingWithoutManifest(t *testing.T) {
	root := t.TempDir()
	staging, production := filepath.Join(root, "staging"), filepath.Join(root, "production")
	stageRuns(t, staging, "3P", "3P")
	require.NoError(t, os.Remove(filepath.Join(staging, ManifestFile)))

	p := NewPromoter(staging, production, nil, zap.NewNop())
	results, err := p.Promote(context.Background(), []string{"3P"})
	require.NoError(t, err)
	assert.Equal(t, StatusPromoted, results[0].Status)
	assert.Equal(t, "v2_20250301_1202", results[0].Version)
}

func TestPromote_HeldLockAborts(t *testing.T) {
	root := t.TempDir()
	staging, production := filepath.Join(root, "staging"), filepath.Join(root, "production")
	stageRuns(t, staging, "3P")
	require.NoError(t, os.MkdirAll(production, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(production, LockFile), []byte("1"), 0o644))

	p := NewPromoter(staging, production, NewFileLocker(production, time.Hour), zap.NewNop())
	_, err := p.Promote(context.Background(), []string{"3P"})
	assert.ErrorIs(t, err, ErrLocked)
	assert.False(t, HasProductionModel(production, "3P"))
}

func TestFileLocker_TakesOverStaleLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockFile)
	require.NoError(t, os.WriteFile(path, []byte("1"), 0o644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	l := NewFileLocker(dir, time.Hour)
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)

	_, err = l.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrLocked)

	release()
	assert.NoFileExists(t, path)
}

func TestLoadProduction_DetectsMixedArtifacts(t *testing.T) {
	root := t.TempDir()
	staging, production := filepath.Join(root, "staging"), filepath.Join(root, "production")
	stageRuns(t, staging, "3P")

	p := NewPromoter(staging, production, nil, zap.NewNop())
	_, err := p.Promote(context.Background(), []string{"3P"})
	require.NoError(t, err)

	// a second run lands in production halfway: only the scaler is new
	stageRuns(t, staging, "3P")
	data, err := os.ReadFile(filepath.Join(staging, "3P_v2_20250301_1201_scaler.pkl"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(production, "3P_scaler.pkl"), data, 0o644))

	_, err = LoadProduction(production, "3P")
	assert.ErrorIs(t, err, ErrMixedArtifacts)
}

func TestResultString(t *testing.T) {
	r := Result{Target: "3P", Status: StatusPromoted, Version: "v2_20250301_1202", Skipped: []string{"v3_20250301_1203"}}
	assert.Equal(t, "3P: promoted v2_20250301_1202 [skipped incomplete: v3_20250301_1203]", r.String())

	r = Result{Target: "3PA", Status: StatusSkipped, Reason: "no staged versions"}
	assert.Equal(t, "3PA: skipped (no staged versions)", r.String())
}

type mockRedisLock struct {
	SetNXFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	EvalFunc  func(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

func (m *mockRedisLock) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	return m.SetNXFunc(ctx, key, value, expiration)
}

func (m *mockRedisLock) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return m.EvalFunc(ctx, script, keys, args...)
}

func TestRedisLocker(t *testing.T) {
	var token interface{}
	var released []interface{}
	client := &mockRedisLock{
		SetNXFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
			assert.Equal(t, "courtvision:promote", key)
			assert.Equal(t, time.Minute, expiration)
			if token != nil {
				return redis.NewBoolResult(false, nil)
			}
			token = value
			return redis.NewBoolResult(true, nil)
		},
		EvalFunc: func(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
			released = append(released, args...)
			return redis.NewCmdResult(int64(1), nil)
		},
	}

	l := NewRedisLocker(client, "courtvision:promote", time.Minute, zap.NewNop())
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)

	_, err = l.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrLocked)

	release()
	assert.Equal(t, []interface{}{token}, released)
}

func TestRedisLocker_ClientError(t *testing.T) {
	client := &mockRedisLock{
		SetNXFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
			return redis.NewBoolResult(false, errors.New("connection refused"))
		},
	}
	l := NewRedisLocker(client, "k", time.Minute, zap.NewNop())
	_, err := l.Acquire(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLocked)
}
