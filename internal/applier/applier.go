// Package applier writes validated patch sets into the live tree. An apply
// is all or nothing: every file is checkpointed first, writes are atomic,
// and any failure restores every touched file before returning.
package applier

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/crucible-project/crucible/internal/ledger"
	"github.com/crucible-project/crucible/internal/lock"
	"github.com/crucible-project/crucible/pkg/errclass"
	"github.com/crucible-project/crucible/pkg/fsutil"
	"github.com/crucible-project/crucible/pkg/model"
	"github.com/crucible-project/crucible/pkg/pathutil"
)

// UnitRegistry resolves which runtime unit serves a target path and reloads
// units after their files change. A nil registry means no live reload.
type UnitRegistry interface {
	// Lookup returns the unit name serving targetPath, if any.
	Lookup(targetPath string) (string, bool)
	// Reload re-reads the unit's code. An error means the unit did not come
	// back healthy.
	Reload(ctx context.Context, unit string) error
}

// Applier applies patch sets under per-path locks with checkpoint-backed
// rollback.
type Applier struct {
	liveRoot   string
	intentsDir string
	ledger     *ledger.Ledger
	locks      *lock.Manager
	registry   UnitRegistry
}

// New creates an applier for the live tree at liveRoot.
func New(liveRoot, intentsDir string, led *ledger.Ledger, locks *lock.Manager, registry UnitRegistry) *Applier {
	return &Applier{
		liveRoot:   liveRoot,
		intentsDir: intentsDir,
		ledger:     led,
		locks:      locks,
		registry:   registry,
	}
}

// Apply writes the patch set into the live tree and reloads affected units.
// On any failure every touched file is restored from its checkpoint and the
// result reports RolledBack. The returned map names the checkpoint taken for
// each target path.
func (a *Applier) Apply(ctx context.Context, patch *model.PatchSet) (*model.ApplyResult, map[string]model.VersionID, error) {
	paths := patch.Paths()

	// A symlink inside the live tree must not let a relative path write
	// outside it.
	for _, path := range paths {
		livePath := filepath.Join(a.liveRoot, filepath.FromSlash(path))
		if err := pathutil.ValidatePathSafety(a.liveRoot, livePath); err != nil {
			return nil, nil, err
		}
	}

	// Sorted acquisition order keeps two concurrent applies from
	// deadlocking on overlapping path sets.
	var held []*model.LockRecord
	releaseAll := func() {
		for _, rec := range held {
			_ = a.locks.Release(rec.TargetPath, rec.HolderNonce)
		}
	}
	for _, path := range paths {
		rec, err := a.locks.Acquire(path, "apply "+string(patch.ID))
		if err != nil {
			releaseAll()
			return nil, nil, err
		}
		held = append(held, rec)
	}
	defer releaseAll()

	if err := a.writeIntent(patch); err != nil {
		return nil, nil, err
	}

	touched := make(map[string]model.VersionID, len(paths))
	for _, path := range paths {
		cp, err := a.ledger.Checkpoint(path, "pre-apply "+patch.ID.ShortID(), false)
		if err != nil {
			return nil, nil, fmt.Errorf("checkpoint %s: %w", path, err)
		}
		touched[path] = cp.VersionID
	}

	result := &model.ApplyResult{}
	for _, path := range paths {
		content, _ := patch.Content(path)
		livePath := filepath.Join(a.liveRoot, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(livePath), 0755); err != nil {
			return a.rollback(patch, result, touched, errclass.ErrApplyFailed.WithMessagef("create dir for %s: %v", path, err))
		}
		if err := fsutil.AtomicWrite(livePath, []byte(content), 0644); err != nil {
			return a.rollback(patch, result, touched, errclass.ErrApplyFailed.WithMessagef("write %s: %v", path, err))
		}
		result.FilesModified = append(result.FilesModified, path)
	}

	if a.registry != nil {
		units := a.affectedUnits(paths)
		for _, unit := range units {
			if err := a.registry.Reload(ctx, unit); err != nil {
				res, touched, applyErr := a.rollback(patch, result, touched,
					errclass.ErrApplyFailed.WithMessagef("reload unit %s: %v", unit, err))
				// Bring the restored code back into the running units.
				for _, u := range units {
					_ = a.registry.Reload(ctx, u)
				}
				return res, touched, applyErr
			}
			result.UnitsReloaded = append(result.UnitsReloaded, unit)
		}
	}

	if err := a.clearIntent(patch.ID); err != nil {
		return nil, nil, err
	}

	result.Success = true
	return result, touched, nil
}

// rollback restores every checkpointed file and reports the triggering error.
// The intent file stays in place when a restore fails, so recovery can see
// the apply never completed.
func (a *Applier) rollback(patch *model.PatchSet, result *model.ApplyResult, touched map[string]model.VersionID, cause error) (*model.ApplyResult, map[string]model.VersionID, error) {
	result.Success = false
	result.Error = cause.Error()

	paths := make([]string, 0, len(touched))
	for path := range touched {
		paths = append(paths, path)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))

	restoreFailed := false
	for _, path := range paths {
		if _, err := a.ledger.Restore(path, touched[path], true); err != nil {
			restoreFailed = true
			result.Error = fmt.Sprintf("%s; restore %s: %v", result.Error, path, err)
		}
	}
	result.RolledBack = !restoreFailed

	if !restoreFailed {
		if err := a.clearIntent(patch.ID); err != nil {
			return result, touched, err
		}
	}
	return result, touched, cause
}

// affectedUnits maps the patch's paths through the registry, deduplicated
// and sorted. Only units directly serving a patched file reload; dependents
// are out of scope for a single apply.
func (a *Applier) affectedUnits(paths []string) []string {
	seen := make(map[string]bool)
	var units []string
	for _, path := range paths {
		unit, ok := a.registry.Lookup(path)
		if !ok || seen[unit] {
			continue
		}
		seen[unit] = true
		units = append(units, unit)
	}
	sort.Strings(units)
	return units
}
