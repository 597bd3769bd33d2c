package lock_test

import (
	"testing"
	"time"

	"github.com/crucible-project/crucible/internal/lock"
	"github.com/crucible-project/crucible/pkg/errclass"
	"github.com/crucible-project/crucible/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, ttl time.Duration) *lock.Manager {
	t.Helper()
	return lock.NewManager(t.TempDir(), model.LockPolicy{DefaultLeaseTTL: ttl})
}

func TestAcquire_Release(t *testing.T) {
	m := newManager(t, time.Minute)

	rec, err := m.Acquire("internal/unit/unit.go", "apply")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.FencingToken)

	state, _, err := m.Status("internal/unit/unit.go")
	require.NoError(t, err)
	assert.Equal(t, model.LockStateHeld, state)

	require.NoError(t, m.Release("internal/unit/unit.go", rec.HolderNonce))

	state, _, err = m.Status("internal/unit/unit.go")
	require.NoError(t, err)
	assert.Equal(t, model.LockStateFree, state)
}

func TestAcquire_Conflict(t *testing.T) {
	m := newManager(t, time.Minute)

	_, err := m.Acquire("a.go", "apply")
	require.NoError(t, err)

	_, err = m.Acquire("a.go", "apply")
	require.ErrorIs(t, err, errclass.ErrLockConflict)
}

func TestAcquire_DisjointPathsIndependent(t *testing.T) {
	m := newManager(t, time.Minute)

	_, err := m.Acquire("a.go", "apply")
	require.NoError(t, err)
	_, err = m.Acquire("b.go", "apply")
	require.NoError(t, err)
}

func TestRelease_WrongNonce(t *testing.T) {
	m := newManager(t, time.Minute)

	_, err := m.Acquire("a.go", "apply")
	require.NoError(t, err)

	err = m.Release("a.go", "bogus-nonce")
	require.ErrorIs(t, err, errclass.ErrLockNotHeld)
}

func TestRelease_Idempotent(t *testing.T) {
	m := newManager(t, time.Minute)
	rec, err := m.Acquire("a.go", "apply")
	require.NoError(t, err)

	require.NoError(t, m.Release("a.go", rec.HolderNonce))
	require.NoError(t, m.Release("a.go", rec.HolderNonce))
}

func TestSteal_ExpiredLock(t *testing.T) {
	m := newManager(t, -time.Second) // leases are born expired

	first, err := m.Acquire("a.go", "apply")
	require.NoError(t, err)

	stolen, err := m.Steal("a.go", "apply")
	require.NoError(t, err)
	assert.Equal(t, first.FencingToken+1, stolen.FencingToken)

	// The stale holder fails fencing validation.
	err = m.ValidateFencing("a.go", first.FencingToken)
	require.ErrorIs(t, err, errclass.ErrFencingMismatch)
	require.NoError(t, m.ValidateFencing("a.go", stolen.FencingToken))
}

func TestFencingToken_MonotonicAcrossReacquire(t *testing.T) {
	m := newManager(t, time.Minute)

	first, err := m.Acquire("a.go", "apply")
	require.NoError(t, err)
	require.NoError(t, m.Release("a.go", first.HolderNonce))

	// A fresh acquire after release must not reissue an earlier token,
	// or a stale holder's fencing check could pass by accident.
	second, err := m.Acquire("a.go", "apply")
	require.NoError(t, err)
	assert.Greater(t, second.FencingToken, first.FencingToken)

	require.NoError(t, m.Release("a.go", second.HolderNonce))
	third, err := m.Acquire("a.go", "apply")
	require.NoError(t, err)
	assert.Greater(t, third.FencingToken, second.FencingToken)
}

func TestFencingToken_ContinuesAfterSteal(t *testing.T) {
	m := newManager(t, -time.Second)

	first, err := m.Acquire("a.go", "apply")
	require.NoError(t, err)
	stolen, err := m.Steal("a.go", "apply")
	require.NoError(t, err)

	require.NoError(t, m.Release("a.go", stolen.HolderNonce))
	next, err := m.Acquire("a.go", "apply")
	require.NoError(t, err)
	assert.Greater(t, next.FencingToken, stolen.FencingToken)
	assert.Greater(t, next.FencingToken, first.FencingToken)
}

func TestSteal_HeldLockRefused(t *testing.T) {
	m := newManager(t, time.Minute)
	_, err := m.Acquire("a.go", "apply")
	require.NoError(t, err)

	_, err = m.Steal("a.go", "apply")
	require.ErrorIs(t, err, errclass.ErrLockConflict)
}

func TestRenew_ExtendsLease(t *testing.T) {
	m := newManager(t, time.Minute)
	rec, err := m.Acquire("a.go", "apply")
	require.NoError(t, err)

	renewed, err := m.Renew("a.go", rec.HolderNonce)
	require.NoError(t, err)
	assert.False(t, renewed.ExpiresAt.Before(rec.ExpiresAt))
}

func TestRenew_WrongNonce(t *testing.T) {
	m := newManager(t, time.Minute)
	_, err := m.Acquire("a.go", "apply")
	require.NoError(t, err)

	_, err = m.Renew("a.go", "bogus")
	require.ErrorIs(t, err, errclass.ErrLockNotHeld)
}

func TestNestedPathsDoNotCollide(t *testing.T) {
	m := newManager(t, time.Minute)
	_, err := m.Acquire("internal/a/b.go", "apply")
	require.NoError(t, err)
	_, err = m.Acquire("internal/a_b.go", "apply")
	require.NoError(t, err)
}
