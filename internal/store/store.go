// Package store manages the .crucible state tree beside the governed source
// tree: checkpoints, approvals, pipeline state, audit log and locks.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/crucible-project/crucible/pkg/errclass"
	"github.com/crucible-project/crucible/pkg/fsutil"
	"github.com/crucible-project/crucible/pkg/uuidutil"
)

const (
	FormatVersion     = 1
	StateDirName      = ".crucible"
	FormatVersionFile = "format_version"
	InstallIDFile     = "install_id"
)

// Store represents an initialized pipeline state tree rooted at the governed
// source tree.
type Store struct {
	Root          string
	FormatVersion int
	InstallID     string
}

// Init creates the pipeline state tree under path.
func Init(path string) (*Store, error) {
	stateDir := filepath.Join(path, StateDirName)
	dirs := []string{
		stateDir,
		filepath.Join(stateDir, "checkpoints"),
		filepath.Join(stateDir, "approvals"),
		filepath.Join(stateDir, "pipeline"),
		filepath.Join(stateDir, "audit"),
		filepath.Join(stateDir, "locks"),
		filepath.Join(stateDir, "intents"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	// Write format_version
	if err := os.WriteFile(filepath.Join(stateDir, FormatVersionFile), []byte("1\n"), 0644); err != nil {
		return nil, fmt.Errorf("write format_version: %w", err)
	}

	// Write install_id
	installID := uuidutil.NewV4()
	if err := os.WriteFile(filepath.Join(stateDir, InstallIDFile), []byte(installID+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("write install_id: %w", err)
	}

	// Fsync parent to ensure durability
	if err := fsutil.FsyncDir(path); err != nil {
		return nil, fmt.Errorf("fsync state root: %w", err)
	}

	return &Store{
		Root:          path,
		FormatVersion: FormatVersion,
		InstallID:     installID,
	}, nil
}

// Discover walks up from cwd to find the tree root (directory containing
// .crucible/).
func Discover(cwd string) (*Store, error) {
	path := cwd
	for {
		stateDir := filepath.Join(path, StateDirName)
		if info, err := os.Stat(stateDir); err == nil && info.IsDir() {
			version, err := readFormatVersion(stateDir)
			if err != nil {
				return nil, err
			}
			if version > FormatVersion {
				return nil, errclass.ErrStateInvalid.WithMessagef(
					"format version %d > supported %d", version, FormatVersion)
			}
			installID, _ := readInstallID(stateDir)
			return &Store{
				Root:          path,
				FormatVersion: version,
				InstallID:     installID,
			}, nil
		}

		parent := filepath.Dir(path)
		if parent == path {
			return nil, fmt.Errorf("no pipeline state tree found (no %s/ in parent directories)", StateDirName)
		}
		path = parent
	}
}

// StateDir returns the absolute path of the .crucible directory.
func (s *Store) StateDir() string {
	return filepath.Join(s.Root, StateDirName)
}

// CheckpointsDir returns the root of the backup tree mirroring live paths.
func (s *Store) CheckpointsDir() string {
	return filepath.Join(s.StateDir(), "checkpoints")
}

// ApprovalsDir returns the durable approval-request directory.
func (s *Store) ApprovalsDir() string {
	return filepath.Join(s.StateDir(), "approvals")
}

// PipelineDir returns the resumable pipeline-state directory.
func (s *Store) PipelineDir() string {
	return filepath.Join(s.StateDir(), "pipeline")
}

// AuditLogPath returns the append-only audit log path.
func (s *Store) AuditLogPath() string {
	return filepath.Join(s.StateDir(), "audit", "audit.jsonl")
}

// LocksDir returns the target-path lock directory.
func (s *Store) LocksDir() string {
	return filepath.Join(s.StateDir(), "locks")
}

// IntentsDir returns the apply-intent directory used for crash recovery.
func (s *Store) IntentsDir() string {
	return filepath.Join(s.StateDir(), "intents")
}

// LivePath resolves a relative target path against the governed tree root.
func (s *Store) LivePath(rel string) string {
	return filepath.Join(s.Root, filepath.FromSlash(rel))
}

func readFormatVersion(stateDir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, FormatVersionFile))
	if err != nil {
		return 0, fmt.Errorf("read format_version: %w", err)
	}
	var version int
	if _, err := fmt.Sscanf(string(data), "%d", &version); err != nil {
		return 0, errclass.ErrStateInvalid.WithMessage("format_version is not a number")
	}
	return version, nil
}

func readInstallID(stateDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, InstallIDFile))
	if err != nil {
		return "", err
	}
	id := string(data)
	if n := len(id); n > 0 && id[n-1] == '\n' {
		id = id[:n-1]
	}
	return id, nil
}
