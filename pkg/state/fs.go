package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/taskmill/taskmill/pkg/sched"
)

// FilesystemStore keeps one JSON file per job under a per-application
// directory. The directory also carries a human-readable marker file
// named after the working directory, so a scan of the data root shows
// which application each opaque hash belongs to.
type FilesystemStore struct {
	id     appIdentity
	appDir string
	states string
}

// NewFilesystemStore places state under the platform data directory
// (APPDATA, then XDG_DATA_HOME, then ~/.local/share) and drops a
// marker file identifying the application.
func NewFilesystemStore() (*FilesystemStore, error) {
	base := filepath.Join(defaultDataRoot(), "taskmill_data")
	s, err := newFilesystemStore(base)
	if err != nil {
		return nil, err
	}
	marker := filepath.Join(s.appDir, filepath.Base(s.id.cwd)+".cwd")
	if err := os.WriteFile(marker, []byte(strings.Join(s.id.Info(), "\n")+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write app marker: %w", err)
	}
	return s, nil
}

// NewFilesystemStoreAt places state under the given directory instead
// of the platform default. No marker file is written.
func NewFilesystemStoreAt(dataDir string) (*FilesystemStore, error) {
	return newFilesystemStore(dataDir)
}

func newFilesystemStore(base string) (*FilesystemStore, error) {
	id := currentIdentity()
	appDir := filepath.Join(base, id.Hash())
	states := filepath.Join(appDir, "states")
	if err := os.MkdirAll(states, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FilesystemStore{id: id, appDir: appDir, states: states}, nil
}

func defaultDataRoot() string {
	if v := os.Getenv("APPDATA"); v != "" {
		return v
	}
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".local", "share")
}

// Dir returns the per-application state directory.
func (f *FilesystemStore) Dir() string { return f.appDir }

// SaveJobLogs writes the job's record to <states>/<signature>.json.
func (f *FilesystemStore) SaveJobLogs(j *sched.Job) error {
	data, err := json.Marshal(capture(j))
	if err != nil {
		return fmt.Errorf("failed to encode state for job %d: %w", j.ID(), err)
	}
	path := filepath.Join(f.states, j.SignatureHash()+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// RestoreAllJobLogs loads every state file into the matching job and
// deletes files whose signature no longer matches any registered job.
func (f *FilesystemStore) RestoreAllJobLogs(jobs []*sched.Job) error {
	entries, err := os.ReadDir(f.states)
	if err != nil {
		return fmt.Errorf("failed to list state directory: %w", err)
	}
	bySig := make(map[string]*sched.Job, len(jobs))
	for _, j := range jobs {
		bySig[j.SignatureHash()] = j
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(f.states, e.Name())
		j, ok := bySig[strings.TrimSuffix(e.Name(), ".json")]
		if !ok {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to prune state file %s: %w", e.Name(), err)
			}
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read state file %s: %w", e.Name(), err)
		}
		var st jobState
		if err := json.Unmarshal(data, &st); err != nil {
			return fmt.Errorf("failed to decode state file %s: %w", e.Name(), err)
		}
		apply(j, st)
	}
	return nil
}
