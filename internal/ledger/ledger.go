// Package ledger records hashed checkpoints of live files and restores them
// on demand. Every modification is reversible: rollback itself checkpoints
// the current content first, so no restore destroys information.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/crucible-project/crucible/internal/integrity"
	"github.com/crucible-project/crucible/pkg/config"
	"github.com/crucible-project/crucible/pkg/errclass"
	"github.com/crucible-project/crucible/pkg/fsutil"
	"github.com/crucible-project/crucible/pkg/model"
	"github.com/crucible-project/crucible/pkg/uuidutil"
)

const stablePointerFile = "STABLE"

// Ledger manages per-file checkpoints under .crucible/checkpoints/, laid out
// as a directory per target path mirroring the live tree.
type Ledger struct {
	checkpointsDir string
	liveRoot       string
	retention      config.RetentionConfig
	mu             sync.Mutex
}

// NewLedger creates a ledger storing backups under checkpointsDir for the
// live tree rooted at liveRoot.
func NewLedger(checkpointsDir, liveRoot string, retention config.RetentionConfig) *Ledger {
	if retention.MaxNonStablePerFile == 0 {
		retention.MaxNonStablePerFile = 10
	}
	return &Ledger{
		checkpointsDir: checkpointsDir,
		liveRoot:       liveRoot,
		retention:      retention,
	}
}

// Checkpoint records the current content of targetPath. A path that does not
// exist yet is recorded as missing; restoring that checkpoint removes the
// live file again.
func (l *Ledger) Checkpoint(targetPath, reason string, automatic bool) (*model.Checkpoint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkpointLocked(targetPath, reason, automatic)
}

func (l *Ledger) checkpointLocked(targetPath, reason string, automatic bool) (*model.Checkpoint, error) {
	livePath := filepath.Join(l.liveRoot, filepath.FromSlash(targetPath))
	content, err := os.ReadFile(livePath)
	missing := false
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read live file %s: %w", targetPath, err)
		}
		missing = true
		content = nil
	}

	dir := l.pathDir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}

	id := model.VersionID(uuidutil.NewV4())
	backupPath := filepath.Join(dir, string(id)+".bak")

	cp := &model.Checkpoint{
		VersionID:   id,
		TargetPath:  targetPath,
		BackupPath:  backupPath,
		ContentHash: integrity.ComputeContentHash(content),
		Reason:      reason,
		Automatic:   automatic,
		CreatedAt:   time.Now().UTC(),
		Missing:     missing,
	}

	if !missing {
		if err := fsutil.AtomicWrite(backupPath, content, 0644); err != nil {
			return nil, fmt.Errorf("write backup: %w", err)
		}
	}
	if err := l.writeMeta(cp); err != nil {
		return nil, err
	}

	if _, err := l.pruneNonStableLocked(targetPath); err != nil {
		return nil, err
	}
	return cp, nil
}

// Get loads one checkpoint's metadata and verifies its checksum.
func (l *Ledger) Get(targetPath string, id model.VersionID) (*model.Checkpoint, error) {
	data, err := os.ReadFile(l.metaPath(targetPath, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrCheckpointNotFound.WithMessagef(
				"no checkpoint %s for %s", id.ShortID(), targetPath)
		}
		return nil, fmt.Errorf("read checkpoint meta: %w", err)
	}

	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, errclass.ErrMetaCorrupt.WithMessagef(
			"parse checkpoint %s: %v", id.ShortID(), err)
	}

	ok, err := integrity.VerifyCheckpoint(&cp)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errclass.ErrMetaCorrupt.WithMessagef(
			"checkpoint %s metadata checksum mismatch", id.ShortID())
	}
	return &cp, nil
}

// List returns every checkpoint for a target path, newest first.
func (l *Ledger) List(targetPath string) ([]*model.Checkpoint, error) {
	entries, err := os.ReadDir(l.pathDir(targetPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint dir: %w", err)
	}

	var cps []*model.Checkpoint
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := model.VersionID(strings.TrimSuffix(entry.Name(), ".json"))
		cp, err := l.Get(targetPath, id)
		if err != nil {
			return nil, err
		}
		cps = append(cps, cp)
	}
	sort.Slice(cps, func(i, j int) bool {
		if !cps[i].CreatedAt.Equal(cps[j].CreatedAt) {
			return cps[i].CreatedAt.After(cps[j].CreatedAt)
		}
		return cps[i].VersionID > cps[j].VersionID
	})
	return cps, nil
}

// TrackedPaths returns every target path with at least one checkpoint.
func (l *Ledger) TrackedPaths() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(l.checkpointsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		rel, err := filepath.Rel(l.checkpointsDir, filepath.Dir(path))
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		for _, p := range paths {
			if p == rel {
				return nil
			}
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk checkpoints: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// MarkStable flags a checkpoint as a known-good restore point and moves the
// stable pointer to it.
func (l *Ledger) MarkStable(targetPath string, id model.VersionID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp, err := l.Get(targetPath, id)
	if err != nil {
		return err
	}
	if !cp.Stable {
		cp.Stable = true
		if err := l.writeMeta(cp); err != nil {
			return err
		}
	}

	pointer := filepath.Join(l.pathDir(targetPath), stablePointerFile)
	return fsutil.AtomicWrite(pointer, []byte(string(id)+"\n"), 0644)
}

// LastStable returns the checkpoint the stable pointer names.
func (l *Ledger) LastStable(targetPath string) (*model.Checkpoint, error) {
	data, err := os.ReadFile(filepath.Join(l.pathDir(targetPath), stablePointerFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrNoStableVersion.WithMessagef(
				"no stable checkpoint for %s", targetPath)
		}
		return nil, fmt.Errorf("read stable pointer: %w", err)
	}
	id := model.VersionID(strings.TrimSpace(string(data)))
	return l.Get(targetPath, id)
}

// Restore writes a checkpoint's content back to the live tree. The current
// live content is checkpointed first so the restore itself can be undone.
// Restoring the same checkpoint twice converges on the same content.
func (l *Ledger) Restore(targetPath string, id model.VersionID, automatic bool) (*model.RestoreResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp, err := l.Get(targetPath, id)
	if err != nil {
		return nil, err
	}

	var content []byte
	if !cp.Missing {
		content, err = os.ReadFile(cp.BackupPath)
		if err != nil {
			return nil, fmt.Errorf("read backup: %w", err)
		}
		if got := integrity.ComputeContentHash(content); got != cp.ContentHash {
			return nil, errclass.ErrHashMismatch.WithMessagef(
				"backup for %s was altered: expected %s, got %s",
				targetPath, cp.ContentHash, got)
		}
	}

	pre, err := l.checkpointLocked(targetPath, "pre-rollback", true)
	if err != nil {
		return nil, fmt.Errorf("checkpoint before restore: %w", err)
	}

	livePath := filepath.Join(l.liveRoot, filepath.FromSlash(targetPath))
	result := &model.RestoreResult{
		VersionID:     cp.VersionID,
		TargetPath:    targetPath,
		RestoredHash:  cp.ContentHash,
		PreRollbackID: pre.VersionID,
		Automatic:     automatic,
		RestoredAt:    time.Now().UTC(),
		HashVerified:  true,
	}

	if cp.Missing {
		if err := os.Remove(livePath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove live file: %w", err)
		}
		result.LiveFileRemoved = true
		return result, nil
	}

	if err := os.MkdirAll(filepath.Dir(livePath), 0755); err != nil {
		return nil, fmt.Errorf("create live dir: %w", err)
	}
	if err := fsutil.AtomicWrite(livePath, content, 0644); err != nil {
		return nil, fmt.Errorf("restore live file: %w", err)
	}
	return result, nil
}

// RestoreLastStable restores the stable pointer's checkpoint.
func (l *Ledger) RestoreLastStable(targetPath string, automatic bool) (*model.RestoreResult, error) {
	cp, err := l.LastStable(targetPath)
	if err != nil {
		return nil, err
	}
	return l.Restore(targetPath, cp.VersionID, automatic)
}

// PruneStable removes stable checkpoints older than the retention window,
// keeping the one the stable pointer names. Returns the number removed.
func (l *Ledger) PruneStable(targetPath string, now time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.retention.StableRetention <= 0 {
		return 0, nil
	}

	var pointed model.VersionID
	if data, err := os.ReadFile(filepath.Join(l.pathDir(targetPath), stablePointerFile)); err == nil {
		pointed = model.VersionID(strings.TrimSpace(string(data)))
	}

	cps, err := l.List(targetPath)
	if err != nil {
		return 0, err
	}

	removed := 0
	cutoff := now.Add(-l.retention.StableRetention)
	for _, cp := range cps {
		if !cp.Stable || cp.VersionID == pointed || cp.CreatedAt.After(cutoff) {
			continue
		}
		if err := l.removeCheckpoint(cp); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// pruneNonStableLocked evicts the oldest non-stable checkpoints beyond the
// per-file cap.
func (l *Ledger) pruneNonStableLocked(targetPath string) (int, error) {
	cps, err := l.List(targetPath)
	if err != nil {
		return 0, err
	}

	var nonStable []*model.Checkpoint
	for _, cp := range cps {
		if !cp.Stable {
			nonStable = append(nonStable, cp)
		}
	}
	if len(nonStable) <= l.retention.MaxNonStablePerFile {
		return 0, nil
	}

	// List is newest first; everything past the cap is oldest.
	removed := 0
	for _, cp := range nonStable[l.retention.MaxNonStablePerFile:] {
		if err := l.removeCheckpoint(cp); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (l *Ledger) removeCheckpoint(cp *model.Checkpoint) error {
	if err := os.Remove(l.metaPath(cp.TargetPath, cp.VersionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint meta: %w", err)
	}
	if err := os.Remove(cp.BackupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint backup: %w", err)
	}
	return nil
}

func (l *Ledger) writeMeta(cp *model.Checkpoint) error {
	checksum, err := integrity.ComputeCheckpointChecksum(cp)
	if err != nil {
		return err
	}
	cp.MetaChecksum = checksum

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint meta: %w", err)
	}
	return fsutil.AtomicWrite(l.metaPath(cp.TargetPath, cp.VersionID), data, 0644)
}

func (l *Ledger) pathDir(targetPath string) string {
	return filepath.Join(l.checkpointsDir, filepath.FromSlash(targetPath))
}

func (l *Ledger) metaPath(targetPath string, id model.VersionID) string {
	return filepath.Join(l.pathDir(targetPath), string(id)+".json")
}
