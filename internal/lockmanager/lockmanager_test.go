package lockmanager

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/gopherdb/internal/common"
	"github.com/tuannm99/gopherdb/internal/txn"
)

func rid(page int32, slot uint16) common.RID {
	return common.RID{PageID: common.PageID(page), Slot: slot}
}

func TestLockManager_SharedLocksAreConcurrentlyCompatible(t *testing.T) {
	m := NewManager()
	t1 := txn.New(txn.NextID(), txn.RepeatableRead)
	t2 := txn.New(txn.NextID(), txn.RepeatableRead)
	r := rid(1, 0)

	require.NoError(t, m.LockShared(t1, r))
	require.NoError(t, m.LockShared(t2, r))
	require.True(t, t1.HasSharedLock(r))
	require.True(t, t2.HasSharedLock(r))
}

func TestLockManager_ExclusiveBlocksShared(t *testing.T) {
	m := NewManager()
	owner := txn.New(txn.NextID(), txn.RepeatableRead)
	waiter := txn.New(txn.NextID(), txn.RepeatableRead)
	r := rid(1, 0)

	require.NoError(t, m.LockExclusive(owner, r))

	done := make(chan error, 1)
	go func() { done <- m.LockShared(waiter, r) }()

	select {
	case <-done:
		t.Fatal("shared lock must not be granted while exclusive lock is held")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, m.Unlock(owner, r))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("shared lock never granted after exclusive release")
	}
}

func TestLockManager_LockOnShrinkingIsRejected(t *testing.T) {
	m := NewManager()
	tr := txn.New(txn.NextID(), txn.RepeatableRead)
	r1, r2 := rid(1, 0), rid(2, 0)

	require.NoError(t, m.LockExclusive(tr, r1))
	require.NoError(t, m.Unlock(tr, r1))
	require.Equal(t, txn.Shrinking, tr.State())

	err := m.LockExclusive(tr, r2)
	require.ErrorIs(t, err, ErrLockOnShrinking)
	require.Equal(t, txn.Aborted, tr.State())
}

func TestLockManager_ReadCommittedSharedReleaseStaysGrowing(t *testing.T) {
	m := NewManager()
	tr := txn.New(txn.NextID(), txn.ReadCommitted)
	r := rid(1, 0)

	require.NoError(t, m.LockShared(tr, r))
	require.NoError(t, m.Unlock(tr, r))
	require.Equal(t, txn.Growing, tr.State())
}

func TestLockManager_SharedLockUnderReadUncommittedRejected(t *testing.T) {
	m := NewManager()
	tr := txn.New(txn.NextID(), txn.ReadUncommitted)
	r := rid(1, 0)

	err := m.LockShared(tr, r)
	require.ErrorIs(t, err, ErrSharedLockOnReadUncommitted)
	require.Equal(t, txn.Aborted, tr.State())
}

func TestLockManager_UpgradeConvertsSharedToExclusive(t *testing.T) {
	m := NewManager()
	tr := txn.New(txn.NextID(), txn.RepeatableRead)
	r := rid(1, 0)

	require.NoError(t, m.LockShared(tr, r))
	require.NoError(t, m.LockUpgrade(tr, r))
	require.False(t, tr.HasSharedLock(r))
	require.True(t, tr.HasExclusiveLock(r))
}

func TestLockManager_ConcurrentUpgradeConflictAbortsSecondUpgrader(t *testing.T) {
	m := NewManager()
	t1 := txn.New(txn.NextID(), txn.RepeatableRead)
	t2 := txn.New(txn.NextID(), txn.RepeatableRead)
	t3 := txn.New(txn.NextID(), txn.RepeatableRead)
	r := rid(1, 0)

	require.NoError(t, m.LockShared(t1, r))
	require.NoError(t, m.LockShared(t2, r))
	require.NoError(t, m.LockShared(t3, r))

	var wg sync.WaitGroup
	wg.Add(1)
	var upgradeErr error
	go func() {
		defer wg.Done()
		upgradeErr = m.LockUpgrade(t2, r)
	}()
	// give the goroutine a chance to register as the in-flight upgrader
	time.Sleep(20 * time.Millisecond)

	err := m.LockUpgrade(t3, r)
	require.ErrorIs(t, err, ErrUpgradeConflict)
	require.Equal(t, txn.Aborted, t3.State())

	require.NoError(t, m.Unlock(t1, r))
	wg.Wait()
	require.NoError(t, upgradeErr)
}

func TestLockManager_DeadlockDetectionAbortsLowestIDVictim(t *testing.T) {
	m := NewManager()
	t1 := txn.New(txn.NextID(), txn.RepeatableRead)
	t2 := txn.New(txn.NextID(), txn.RepeatableRead)
	rA, rB := rid(1, 0), rid(2, 0)

	require.NoError(t, m.LockExclusive(t1, rA))
	require.NoError(t, m.LockExclusive(t2, rB))

	errs := make(chan error, 2)
	go func() { errs <- m.LockExclusive(t1, rB) }()
	go func() { errs <- m.LockExclusive(t2, rA) }()

	// Let both goroutines block and register their wait-for edges.
	time.Sleep(20 * time.Millisecond)
	m.runCycleDetectionOnce()

	var gotAbort bool
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			require.ErrorIs(t, err, ErrTransactionAborted)
			gotAbort = true
		}
	}
	require.True(t, gotAbort, "deadlock detection must abort exactly one side of the cycle")
	require.Equal(t, txn.Aborted, t1.State(), "t1 has the lower id and must be the victim")

	var survivor *txn.Transaction
	if t1.State() == txn.Aborted {
		survivor = t2
	} else {
		survivor = t1
	}
	require.NotEqual(t, txn.Aborted, survivor.State())
}

func TestLockManager_UpgradeDoesNotJumpAheadOfAlreadyQueuedWaiter(t *testing.T) {
	m := NewManager()
	t1 := txn.New(txn.NextID(), txn.RepeatableRead)
	t2 := txn.New(txn.NextID(), txn.RepeatableRead)
	r := rid(1, 0)

	require.NoError(t, m.LockShared(t1, r))

	waiterDone := make(chan error, 1)
	go func() { waiterDone <- m.LockExclusive(t2, r) }()
	// give t2 a chance to queue behind t1's shared lock before t1 upgrades
	time.Sleep(20 * time.Millisecond)

	upgradeDone := make(chan error, 1)
	go func() { upgradeDone <- m.LockUpgrade(t1, r) }()

	// t2 queued before t1's upgrade request moved to the tail, so t2 must
	// be granted first; t1's upgrade must still be waiting on t2.
	select {
	case err := <-waiterDone:
		require.NoError(t, err)
		require.True(t, t2.HasExclusiveLock(r))
	case <-time.After(time.Second):
		t.Fatal("queued waiter must be granted ahead of a later upgrade request")
	}

	select {
	case <-upgradeDone:
		t.Fatal("upgrade must not complete before the already-queued waiter releases its lock")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, m.Unlock(t2, r))
	select {
	case err := <-upgradeDone:
		require.NoError(t, err)
		require.True(t, t1.HasExclusiveLock(r))
	case <-time.After(time.Second):
		t.Fatal("upgrade never granted after the queued waiter released")
	}
}

func TestLockManager_UnlockNonExistentFails(t *testing.T) {
	m := NewManager()
	tr := txn.New(txn.NextID(), txn.RepeatableRead)
	err := m.Unlock(tr, rid(9, 9))
	require.ErrorIs(t, err, ErrNotLocked)
}
