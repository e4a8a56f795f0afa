package txn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/gopherdb/internal/common"
)

func TestNextID_Monotonic(t *testing.T) {
	a := NextID()
	b := NextID()
	require.Less(t, int64(a), int64(b))
}

func TestTransaction_LockSetTracking(t *testing.T) {
	tx := New(NextID(), RepeatableRead)
	rid := common.RID{PageID: 1, Slot: 0}

	require.False(t, tx.HasSharedLock(rid))
	tx.AddSharedLock(rid)
	require.True(t, tx.HasSharedLock(rid))
	require.ElementsMatch(t, []common.RID{rid}, tx.SharedLockSet())

	tx.RemoveSharedLock(rid)
	require.False(t, tx.HasSharedLock(rid))

	tx.AddExclusiveLock(rid)
	require.True(t, tx.HasExclusiveLock(rid))
	require.ElementsMatch(t, []common.RID{rid}, tx.ExclusiveLockSet())
}

func TestTransaction_StateTransitions(t *testing.T) {
	tx := New(NextID(), ReadCommitted)
	require.Equal(t, Growing, tx.State())

	tx.SetState(Shrinking)
	require.Equal(t, Shrinking, tx.State())

	tx.SetState(Committed)
	require.Equal(t, Committed, tx.State())
}

func TestTransaction_LatchedPageStackDrains(t *testing.T) {
	tx := New(NextID(), RepeatableRead)
	tx.PushLatchedPage(1)
	tx.PushLatchedPage(2)
	tx.PushLatchedPage(3)

	pages := tx.DrainLatchedPages()
	require.Equal(t, []common.PageID{1, 2, 3}, pages)
	require.Empty(t, tx.DrainLatchedPages())
}

func TestTransaction_DeletedPagesDrain(t *testing.T) {
	tx := New(NextID(), RepeatableRead)
	tx.AddDeletedPage(5)
	require.Equal(t, []common.PageID{5}, tx.DrainDeletedPages())
	require.Empty(t, tx.DrainDeletedPages())
}

func TestIsolationLevel_String(t *testing.T) {
	require.Equal(t, "READ_UNCOMMITTED", ReadUncommitted.String())
	require.Equal(t, "READ_COMMITTED", ReadCommitted.String())
	require.Equal(t, "REPEATABLE_READ", RepeatableRead.String())
}
