package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ManifestFile is the index kept in both the staging and production directories
const ManifestFile = "manifest.json"

// Entry is one complete staged version
type Entry struct {
	Target    string          `json:"target"`
	Version   int             `json:"version"`
	Timestamp string          `json:"timestamp"`
	RunID     string          `json:"run_id,omitempty"`
	Files     map[Kind]string `json:"files"`
	CreatedAt time.Time       `json:"created_at"`
}

// ID rebuilds the identifier stored in the entry's artifact envelopes
func (e Entry) ID() ArtifactID {
	return ArtifactID{Target: e.Target, Version: e.Version, Timestamp: e.Timestamp, RunID: e.RunID}
}

// Prefix is the shared filename prefix of the entry's files
func (e Entry) Prefix() string {
	return e.ID().Prefix()
}

// VersionString formats the entry version the way metadata records it
func (e Entry) VersionString() string {
	return e.ID().VersionString()
}

// Manifest lists the staged versions of every target
type Manifest struct {
	Entries []Entry `json:"entries"`
}

// Versions returns the entries of one target, newest first
func (m *Manifest) Versions(target string) []Entry {
	var out []Entry
	for _, e := range m.Entries {
		if e.Target == target {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out
}

// MaxVersion is the highest recorded version of target, 0 if none
func (m *Manifest) MaxVersion(target string) int {
	max := 0
	for _, e := range m.Entries {
		if e.Target == target && e.Version > max {
			max = e.Version
		}
	}
	return max
}

// Targets lists every target with at least one entry, sorted
func (m *Manifest) Targets() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range m.Entries {
		if !seen[e.Target] {
			seen[e.Target] = true
			out = append(out, e.Target)
		}
	}
	sort.Strings(out)
	return out
}

func (m *Manifest) save(dir string) error {
	sortEntries(m.Entries)
	return writeJSON(filepath.Join(dir, ManifestFile), m)
}

// LoadManifest reads the staging manifest. A staging directory without one
// is indexed from its filenames, keeping only versions whose model, scaler
// and selector all exist. Complete strictly named versions missing from an
// existing manifest are added, so a version whose manifest write was lost is
// still promotable.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return rebuildManifest(dir)
	case err != nil:
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	scanned, err := completeScanned(dir)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(m.Entries))
	for _, e := range m.Entries {
		known[e.Prefix()] = true
	}
	added := false
	for _, e := range scanned {
		if !known[e.Prefix()] {
			m.Entries = append(m.Entries, e)
			added = true
		}
	}
	if added {
		sortEntries(m.Entries)
	}
	return &m, nil
}

type scannedVersion struct {
	id    ArtifactID
	files map[Kind]string
	mod   time.Time
}

// scanStaging groups strictly named staging files by target and version
func scanStaging(dir string) (map[string]map[int]*scannedVersion, error) {
	items, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]map[int]*scannedVersion{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan staging: %w", err)
	}

	out := make(map[string]map[int]*scannedVersion)
	for _, item := range items {
		if item.IsDir() {
			continue
		}
		id, kind, ok := parseStagedName(item.Name())
		if !ok {
			continue
		}
		byVersion := out[id.Target]
		if byVersion == nil {
			byVersion = make(map[int]*scannedVersion)
			out[id.Target] = byVersion
		}
		v := byVersion[id.Version]
		if v == nil {
			v = &scannedVersion{id: id, files: make(map[Kind]string)}
			byVersion[id.Version] = v
		}
		// a version carrying two timestamps keeps the first one seen
		if v.id.Timestamp != id.Timestamp {
			continue
		}
		v.files[kind] = item.Name()
		if info, err := item.Info(); err == nil && info.ModTime().After(v.mod) {
			v.mod = info.ModTime()
		}
	}
	return out, nil
}

func rebuildManifest(dir string) (*Manifest, error) {
	entries, err := completeScanned(dir)
	if err != nil {
		return nil, err
	}
	return &Manifest{Entries: entries}, nil
}

// completeScanned returns an entry for every strictly named version on disk
// whose required files all exist
func completeScanned(dir string) ([]Entry, error) {
	scanned, err := scanStaging(dir)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, byVersion := range scanned {
		for _, v := range byVersion {
			if !hasRequired(v.files) {
				continue
			}
			entries = append(entries, Entry{
				Target:    v.id.Target,
				Version:   v.id.Version,
				Timestamp: v.id.Timestamp,
				Files:     v.files,
				CreatedAt: v.mod.UTC(),
			})
		}
	}
	sortEntries(entries)
	return entries, nil
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Target != entries[j].Target {
			return entries[i].Target < entries[j].Target
		}
		return entries[i].Version < entries[j].Version
	})
}

func hasRequired(files map[Kind]string) bool {
	for _, k := range RequiredKinds {
		if files[k] == "" {
			return false
		}
	}
	return true
}

// ProductionManifest records which staged version each production target holds
type ProductionManifest struct {
	Targets map[string]Entry `json:"targets"`
}

// LoadProductionManifest reads production/manifest.json; a missing file is empty
func LoadProductionManifest(dir string) (*ProductionManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return &ProductionManifest{Targets: map[string]Entry{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read production manifest: %w", err)
	}
	var m ProductionManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse production manifest: %w", err)
	}
	if m.Targets == nil {
		m.Targets = map[string]Entry{}
	}
	return &m, nil
}

func (m *ProductionManifest) save(dir string) error {
	return writeJSON(filepath.Join(dir, ManifestFile), m)
}
