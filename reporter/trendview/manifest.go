package trendview

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cimetrics/reporter/report"
)

// ManifestFile is written last into the output directory. Its presence marks
// the artifacts next to it as complete.
const ManifestFile = "manifest.json"

// ErrNoManifest means the output directory holds no completed run
var ErrNoManifest = errors.New("no report manifest found")

// Manifest describes a completed report run
type Manifest struct {
	RunID        string      `json:"run_id"`
	Mode         report.Mode `json:"mode"`
	Stage        string      `json:"stage"`
	BuildID      int64       `json:"build_id"`
	BuildNumber  string      `json:"build_number"`
	Branch       string      `json:"branch"`
	TargetBranch string      `json:"target_branch"`
	// Warning is set when the report is degraded, e.g. compared against
	// itself for lack of target data
	Warning   bool      `json:"warning"`
	Warnings  []string  `json:"warnings,omitempty"`
	Artifacts []string  `json:"artifacts"`
	Created   time.Time `json:"created"`
}

func newManifest(run *Run) *Manifest {
	return &Manifest{
		RunID:        uuid.New().String(),
		Mode:         run.Mode,
		Stage:        Written.String(),
		BuildID:      run.Build.BuildID,
		BuildNumber:  run.Build.BuildNumber,
		Branch:       run.Build.Branch,
		TargetBranch: run.Build.TargetBranch,
		Warning:      len(run.Warnings) > 0,
		Warnings:     run.Warnings,
		Artifacts:    run.Artifacts,
		Created:      time.Now().UTC(),
	}
}

// Complete reports whether the manifest belongs to a finished run of buildID
func (m *Manifest) Complete(buildID int64) bool {
	return m != nil && m.Stage == Written.String() && m.BuildID == buildID
}

// Has reports whether name is one of the run's artifacts
func (m *Manifest) Has(name string) bool {
	for _, a := range m.Artifacts {
		if a == name {
			return true
		}
	}
	return false
}

func writeManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	// Write then rename so a reader never sees half a manifest
	tmp := filepath.Join(dir, ManifestFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, ManifestFile)); err != nil {
		return fmt.Errorf("failed to move manifest into place: %w", err)
	}
	return nil
}

func removeManifest(dir string) error {
	err := os.Remove(filepath.Join(dir, ManifestFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest of the last completed run in dir
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w in %s", ErrNoManifest, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}
