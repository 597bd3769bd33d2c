// Package lock serializes live-tree mutations with exclusive per-target-path
// locks. Two concurrent applies can never interleave on the same file.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/crucible-project/crucible/pkg/errclass"
	"github.com/crucible-project/crucible/pkg/fsutil"
	"github.com/crucible-project/crucible/pkg/model"
	"github.com/crucible-project/crucible/pkg/uuidutil"
)

// Manager handles exclusive per-target-path lock operations.
type Manager struct {
	locksDir string
	policy   model.LockPolicy
	mu       sync.Mutex
}

// NewManager creates a new lock manager rooted at locksDir.
func NewManager(locksDir string, policy model.LockPolicy) *Manager {
	if policy.DefaultLeaseTTL == 0 {
		policy.DefaultLeaseTTL = 5 * time.Minute
	}
	return &Manager{
		locksDir: locksDir,
		policy:   policy,
	}
}

// Acquire attempts to acquire an exclusive lock on the target path.
func (m *Manager) Acquire(targetPath, purpose string) (*model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockPath := m.lockPath(targetPath)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	// Try O_CREAT|O_EXCL for atomic acquire
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			rec, readErr := m.readLock(lockPath)
			if readErr != nil {
				return nil, fmt.Errorf("read existing lock: %w", readErr)
			}
			if rec.IsExpired(time.Now()) {
				return nil, errclass.ErrLockConflict.WithMessage("lock exists but expired, use steal")
			}
			return nil, errclass.ErrLockConflict.WithMessagef("path %s is locked", targetPath)
		}
		return nil, fmt.Errorf("create lock: %w", err)
	}
	defer file.Close()

	token, err := m.nextFencingToken(targetPath, 0)
	if err != nil {
		os.Remove(lockPath)
		return nil, err
	}

	now := time.Now().UTC()
	rec := &model.LockRecord{
		TargetPath:   targetPath,
		HolderNonce:  uuidutil.NewV4(),
		SessionID:    uuidutil.NewV4(),
		AcquiredAt:   now,
		ExpiresAt:    now.Add(m.policy.DefaultLeaseTTL),
		FencingToken: token,
		Purpose:      purpose,
	}

	if err := m.writeLock(file, rec); err != nil {
		os.Remove(lockPath)
		return nil, err
	}

	return rec, nil
}

// Renew extends the lease on an existing lock.
func (m *Manager) Renew(targetPath, holderNonce string) (*model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockPath := m.lockPath(targetPath)
	rec, err := m.readLock(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrLockNotHeld.WithMessage("no lock held")
		}
		return nil, fmt.Errorf("read lock: %w", err)
	}

	if rec.IsExpired(time.Now()) {
		return nil, errclass.ErrLockExpired.WithMessage("lock has expired")
	}
	if rec.HolderNonce != holderNonce {
		return nil, errclass.ErrLockNotHeld.WithMessage("nonce mismatch")
	}

	rec.ExpiresAt = time.Now().UTC().Add(m.policy.DefaultLeaseTTL)
	if err := m.updateLock(lockPath, rec); err != nil {
		return nil, fmt.Errorf("update lock: %w", err)
	}

	return rec, nil
}

// Steal acquires the lock after the previous holder's lease expired.
// The fencing token is incremented so the stale holder's writes can be
// rejected.
func (m *Manager) Steal(targetPath, purpose string) (*model.LockRecord, error) {
	m.mu.Lock()

	lockPath := m.lockPath(targetPath)
	rec, err := m.readLock(lockPath)
	if err != nil {
		m.mu.Unlock()
		if os.IsNotExist(err) {
			// No lock exists, use regular acquire
			return m.Acquire(targetPath, purpose)
		}
		return nil, fmt.Errorf("read lock: %w", err)
	}
	defer m.mu.Unlock()

	if !rec.IsExpired(time.Now()) {
		return nil, errclass.ErrLockConflict.WithMessage("lock not expired yet")
	}

	token, err := m.nextFencingToken(targetPath, rec.FencingToken)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	newRec := &model.LockRecord{
		TargetPath:   targetPath,
		HolderNonce:  uuidutil.NewV4(),
		SessionID:    uuidutil.NewV4(),
		AcquiredAt:   now,
		ExpiresAt:    now.Add(m.policy.DefaultLeaseTTL),
		FencingToken: token,
		Purpose:      purpose,
	}

	if err := m.updateLock(lockPath, newRec); err != nil {
		return nil, fmt.Errorf("steal lock: %w", err)
	}

	return newRec, nil
}

// Release frees the lock. Releasing an unheld lock is a no-op.
func (m *Manager) Release(targetPath, holderNonce string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockPath := m.lockPath(targetPath)
	rec, err := m.readLock(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // already released
		}
		return fmt.Errorf("read lock: %w", err)
	}

	if rec.HolderNonce != holderNonce {
		return errclass.ErrLockNotHeld.WithMessage("cannot release: nonce mismatch")
	}

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock: %w", err)
	}
	return nil
}

// ValidateFencing checks if the provided fencing token matches the current lock.
func (m *Manager) ValidateFencing(targetPath string, token int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockPath := m.lockPath(targetPath)
	rec, err := m.readLock(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errclass.ErrLockNotHeld.WithMessage("no lock held")
		}
		return fmt.Errorf("read lock: %w", err)
	}

	if rec.FencingToken != token {
		return errclass.ErrFencingMismatch.WithMessagef(
			"expected token %d, got %d", rec.FencingToken, token)
	}
	return nil
}

// Status returns the current lock state for a target path.
func (m *Manager) Status(targetPath string) (model.LockState, *model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockPath := m.lockPath(targetPath)
	rec, err := m.readLock(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return model.LockStateFree, nil, nil
		}
		return model.LockStateFree, nil, fmt.Errorf("read lock: %w", err)
	}

	if rec.IsExpired(time.Now()) {
		return model.LockStateExpired, rec, nil
	}
	return model.LockStateHeld, rec, nil
}

// nextFencingToken advances the per-path token counter and returns the new
// value. The counter outlives lock files, so a token issued after release
// and re-acquire can never repeat one from an earlier epoch.
func (m *Manager) nextFencingToken(targetPath string, floor int64) (int64, error) {
	path := m.fencePath(targetPath)

	var last int64
	data, err := os.ReadFile(path)
	if err == nil {
		if v, perr := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); perr == nil {
			last = v
		}
	} else if !os.IsNotExist(err) {
		return 0, fmt.Errorf("read fencing counter: %w", err)
	}

	next := last + 1
	if next <= floor {
		next = floor + 1
	}
	if err := fsutil.AtomicWrite(path, []byte(strconv.FormatInt(next, 10)+"\n"), 0644); err != nil {
		return 0, fmt.Errorf("advance fencing counter: %w", err)
	}
	return next, nil
}

// lockPath flattens the target path so the lock directory stays flat:
// internal/unit/unit.go -> internal__unit__unit.go.lock.json
func (m *Manager) lockPath(targetPath string) string {
	flat := strings.ReplaceAll(filepath.ToSlash(targetPath), "/", "__")
	return filepath.Join(m.locksDir, flat+".lock.json")
}

func (m *Manager) fencePath(targetPath string) string {
	flat := strings.ReplaceAll(filepath.ToSlash(targetPath), "/", "__")
	return filepath.Join(m.locksDir, flat+".fence")
}

func (m *Manager) readLock(path string) (*model.LockRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec model.LockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse lock record: %w", err)
	}
	return &rec, nil
}

func (m *Manager) writeLock(file *os.File, rec *model.LockRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lock record: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("write lock record: %w", err)
	}
	return file.Sync()
}

func (m *Manager) updateLock(path string, rec *model.LockRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lock record: %w", err)
	}
	return fsutil.AtomicWrite(path, data, 0644)
}
