package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	promotionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtvision_promotions_total",
		Help: "Per-target promotion outcomes",
	}, []string{"status"})

	promotionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "courtvision_promotion_duration_seconds",
		Help:    "Time spent promoting all targets",
		Buckets: prometheus.DefBuckets,
	})
)

// errCorrupt marks a staged file that exists but does not decode to the
// artifact its manifest entry describes
var errCorrupt = errors.New("corrupt artifact")

// Status is the outcome of promoting one target
type Status string

const (
	StatusPromoted Status = "promoted"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// Result reports what promotion did for one target
type Result struct {
	Target  string   `json:"target"`
	Status  Status   `json:"status"`
	Version string   `json:"version,omitempty"`
	Skipped []string `json:"skipped_versions,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// String is the per-target status line printed by the promote command
func (r Result) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", r.Target, r.Status)
	if r.Version != "" {
		fmt.Fprintf(&b, " %s", r.Version)
	}
	if r.Reason != "" {
		fmt.Fprintf(&b, " (%s)", r.Reason)
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintf(&b, " [skipped incomplete: %s]", strings.Join(r.Skipped, ", "))
	}
	return b.String()
}

// Promoter copies the newest complete staged version of each target into
// the production directory.
type Promoter struct {
	stagingDir    string
	productionDir string
	locker        Locker
	logger        *zap.SugaredLogger
	rename        func(oldpath, newpath string) error
}

// NewPromoter creates a promoter. A nil locker falls back to a lock file in
// the production directory.
func NewPromoter(stagingDir, productionDir string, locker Locker, logger *zap.Logger) *Promoter {
	if locker == nil {
		locker = NewFileLocker(productionDir, 0)
	}
	return &Promoter{
		stagingDir:    stagingDir,
		productionDir: productionDir,
		locker:        locker,
		logger:        logger.Sugar(),
		rename:        os.Rename,
	}
}

// Promote promotes every target in order. Per-target problems are reported
// in the results; the returned error is reserved for failures that stop the
// whole run (lock held, unreadable manifest, cancelled context).
func (p *Promoter) Promote(ctx context.Context, targets []string) ([]Result, error) {
	start := time.Now()
	defer func() { promotionDuration.Observe(time.Since(start).Seconds()) }()

	if err := os.MkdirAll(p.productionDir, 0o755); err != nil {
		return nil, fmt.Errorf("create production dir: %w", err)
	}
	release, err := p.locker.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	staged, err := LoadManifest(p.stagingDir)
	if err != nil {
		return nil, err
	}
	prod, err := LoadProductionManifest(p.productionDir)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(targets))
	changed := false
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, entry := p.promoteTarget(staged, target)
		promotionsTotal.WithLabelValues(string(res.Status)).Inc()
		if res.Status == StatusPromoted {
			prod.Targets[target] = entry
			changed = true
		}
		results = append(results, res)
	}

	if changed {
		if err := prod.save(p.productionDir); err != nil {
			return results, fmt.Errorf("save production manifest: %w", err)
		}
	}
	return results, nil
}

func (p *Promoter) promoteTarget(staged *Manifest, target string) (Result, Entry) {
	res := Result{Target: target}
	versions := staged.Versions(target)
	if len(versions) == 0 {
		res.Status = StatusSkipped
		res.Reason = "no staged versions"
		p.logger.Warnw("No staged versions to promote", "target", target)
		return res, Entry{}
	}

	for _, e := range versions {
		if missing := p.missingFiles(e); len(missing) > 0 {
			p.logger.Warnw("Skipping incomplete staged version",
				"target", target,
				"version", e.VersionString(),
				"missing", missing,
			)
			res.Skipped = append(res.Skipped, e.VersionString())
			continue
		}

		err := p.install(e)
		if errors.Is(err, errCorrupt) {
			p.logger.Warnw("Skipping corrupt staged version",
				"target", target,
				"version", e.VersionString(),
				"error", err,
			)
			res.Skipped = append(res.Skipped, e.VersionString())
			continue
		}
		if err != nil {
			p.logger.Errorw("Promotion failed", "target", target, "version", e.VersionString(), "error", err)
			res.Status = StatusFailed
			res.Reason = err.Error()
			return res, Entry{}
		}

		p.installMetadata(e)
		p.logger.Infow("Promoted model",
			"target", target,
			"version", e.VersionString(),
			"skipped", res.Skipped,
		)
		res.Status = StatusPromoted
		res.Version = e.VersionString()
		return res, e
	}

	res.Status = StatusSkipped
	res.Reason = ErrNoCompleteVersion.Error()
	p.logger.Warnw("No complete staged version", "target", target, "skipped", res.Skipped)
	return res, Entry{}
}

func (p *Promoter) missingFiles(e Entry) []Kind {
	var missing []Kind
	for _, k := range RequiredKinds {
		name := e.Files[k]
		if name == "" {
			missing = append(missing, k)
			continue
		}
		if _, err := os.Stat(filepath.Join(p.stagingDir, name)); err != nil {
			missing = append(missing, k)
		}
	}
	return missing
}

// install copies the model, scaler and selector of e next to their
// production names, verifies each copy and only then renames all three
// into place.
func (p *Promoter) install(e Entry) error {
	type pending struct{ tmp, dst string }
	var ready []pending
	cleanup := func() {
		for _, f := range ready {
			if f.tmp != "" {
				os.Remove(f.tmp)
			}
		}
	}

	for _, k := range RequiredKinds {
		tmp, err := copyToTemp(filepath.Join(p.stagingDir, e.Files[k]), p.productionDir)
		if err != nil {
			cleanup()
			return fmt.Errorf("copy %s: %w", k, err)
		}
		ready = append(ready, pending{tmp: tmp, dst: filepath.Join(p.productionDir, ProductionFile(e.Target, k))})
		if err := verify(tmp, e.ID(), k); err != nil {
			cleanup()
			return err
		}
	}

	var installed []string
	for i, f := range ready {
		if err := p.rename(f.tmp, f.dst); err != nil {
			cleanup()
			if len(installed) > 0 {
				// production now mixes versions until restored or promoted again
				p.logger.Errorw("Production left with mixed artifacts, restore manually",
					"target", e.Target,
					"version", e.VersionString(),
					"installed", installed,
					"failed", filepath.Base(f.dst),
					"error", err,
				)
			}
			return fmt.Errorf("install %s after %v: %w", filepath.Base(f.dst), installed, err)
		}
		ready[i].tmp = ""
		installed = append(installed, filepath.Base(f.dst))
	}
	return nil
}

func verify(path string, want ArtifactID, kind Kind) error {
	env, err := readEnvelope(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errCorrupt, kind, err)
	}
	if !want.matches(env.ID) || env.Kind != kind {
		return fmt.Errorf("%w: %s holds %s %s", errCorrupt, kind, env.ID.Prefix(), env.Kind)
	}
	if (kind == KindModel && env.Model == nil) ||
		(kind == KindScaler && env.Scaler == nil) ||
		(kind == KindSelector && env.Selector == nil) {
		return fmt.Errorf("%w: %s is empty", errCorrupt, kind)
	}
	return nil
}

// installMetadata promotes the metadata record best-effort
func (p *Promoter) installMetadata(e Entry) {
	name := e.Files[KindMetadata]
	if name == "" {
		p.logger.Warnw("Metadata missing, promoted without it", "target", e.Target, "version", e.VersionString())
		return
	}
	tmp, err := copyToTemp(filepath.Join(p.stagingDir, name), p.productionDir)
	if err != nil {
		p.logger.Warnw("Metadata missing, promoted without it", "target", e.Target, "version", e.VersionString(), "error", err)
		return
	}
	if err := os.Rename(tmp, filepath.Join(p.productionDir, ProductionFile(e.Target, KindMetadata))); err != nil {
		os.Remove(tmp)
		p.logger.Warnw("Failed to promote metadata", "target", e.Target, "error", err)
	}
}
