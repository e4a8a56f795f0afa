package btree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/gopherdb/internal/bufferpool"
	"github.com/tuannm99/gopherdb/internal/common"
	"github.com/tuannm99/gopherdb/internal/diskio"
	"github.com/tuannm99/gopherdb/internal/txn"
)

func newTestTree(t *testing.T, capacity int) *Tree[int64] {
	t.Helper()
	dir := t.TempDir()
	fs := diskio.LocalFileSet{Dir: dir, Base: "idx"}
	dm := diskio.NewManager()
	pool := bufferpool.NewPool(dm, fs, capacity)
	return NewTree[int64](pool)
}

// newTestTreeWithSize builds a tree with a small leaf/internal max size so
// split/merge tests can exercise multi-level trees with a handful of keys
// instead of thousands.
func newTestTreeWithSize(t *testing.T, capacity int, leafMaxSize, internalMaxSize int32) *Tree[int64] {
	t.Helper()
	dir := t.TempDir()
	fs := diskio.LocalFileSet{Dir: dir, Base: "idx"}
	dm := diskio.NewManager()
	pool := bufferpool.NewPool(dm, fs, capacity)
	return NewTreeWithSize[int64](pool, leafMaxSize, internalMaxSize)
}

func TestTree_InsertAndGetValue(t *testing.T) {
	tree := newTestTree(t, 32)

	ok, err := tree.Insert(7, common.RID{PageID: 1, Slot: 0}, nil)
	require.NoError(t, err)
	require.True(t, ok)

	rid, found, err := tree.GetValue(7)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, common.PageID(1), rid.PageID)
}

func TestTree_InsertIsIdempotentOnDuplicateKey(t *testing.T) {
	tree := newTestTree(t, 32)

	ok, err := tree.Insert(1, common.RID{PageID: 1, Slot: 0}, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tree.Insert(1, common.RID{PageID: 2, Slot: 0}, nil)
	require.NoError(t, err)
	require.False(t, ok, "inserting an existing key must be a no-op")

	rid, found, err := tree.GetValue(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, common.PageID(1), rid.PageID, "original value must survive the duplicate insert attempt")
}

func TestTree_GetValueMissingKey(t *testing.T) {
	tree := newTestTree(t, 32)
	_, found, err := tree.GetValue(42)
	require.NoError(t, err)
	require.False(t, found)
}

func TestTree_RemoveMissingKeyReportsFalse(t *testing.T) {
	tree := newTestTree(t, 32)
	ok, err := tree.Insert(1, common.RID{PageID: 1}, nil)
	require.NoError(t, err)
	require.True(t, ok)

	removed, err := tree.Remove(99, nil)
	require.NoError(t, err)
	require.False(t, removed)
}

func TestTree_InsertThenRemoveRoundTrips(t *testing.T) {
	tree := newTestTree(t, 32)

	for i := int64(0); i < 20; i++ {
		ok, err := tree.Insert(i, common.RID{PageID: common.PageID(i), Slot: 0}, nil)
		require.NoError(t, err)
		require.True(t, ok)
	}
	for i := int64(0); i < 20; i++ {
		removed, err := tree.Remove(i, nil)
		require.NoError(t, err)
		require.True(t, removed)
		_, found, err := tree.GetValue(i)
		require.NoError(t, err)
		require.False(t, found)
	}
}

func TestTree_IterationIsSortedAcrossLeafSplits(t *testing.T) {
	tree := newTestTreeWithSize(t, 64, 4, 4)

	const n = 40 // several multiples of the forced leaf max size of 4
	for i := int64(n - 1); i >= 0; i-- {
		ok, err := tree.Insert(i, common.RID{PageID: common.PageID(i), Slot: 0}, nil)
		require.NoError(t, err)
		require.True(t, ok)
	}

	it, err := tree.Begin(0)
	require.NoError(t, err)

	var got []int64
	for it.Valid() {
		got = append(got, it.Key())
		require.NoError(t, it.Next())
	}
	require.Len(t, got, n)
	for i, k := range got {
		require.Equal(t, int64(i), k)
	}
}

func TestTree_SplitOnInsertGrowsHeight(t *testing.T) {
	tree := newTestTreeWithSize(t, 64, 4, 4)

	const n = 40
	for i := int64(0); i < n; i++ {
		ok, err := tree.Insert(i, common.RID{PageID: common.PageID(i), Slot: 0}, nil)
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i := int64(0); i < n; i += 7 {
		rid, found, err := tree.GetValue(i)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, common.PageID(i), rid.PageID)
	}
	require.NotEqual(t, common.InvalidPageID, tree.RootPageID())
}

func TestTree_MergeOnDeleteShrinksBackDown(t *testing.T) {
	tree := newTestTreeWithSize(t, 64, 4, 4)

	const n = 40
	for i := int64(0); i < n; i++ {
		ok, err := tree.Insert(i, common.RID{PageID: common.PageID(i), Slot: 0}, nil)
		require.NoError(t, err)
		require.True(t, ok)
	}
	for i := int64(1); i < n; i++ {
		removed, err := tree.Remove(i, nil)
		require.NoError(t, err)
		require.True(t, removed)
	}

	rid, found, err := tree.GetValue(0)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, common.PageID(0), rid.PageID)

	for i := int64(1); i < n; i++ {
		_, found, err := tree.GetValue(i)
		require.NoError(t, err)
		require.False(t, found)
	}
}

func TestTree_RemoveUnderTransactionDefersPageReclaim(t *testing.T) {
	tree := newTestTreeWithSize(t, 64, 4, 4)
	tx := txn.New(txn.NextID(), txn.RepeatableRead)

	const n = 40
	for i := int64(0); i < n; i++ {
		ok, err := tree.Insert(i, common.RID{PageID: common.PageID(i), Slot: 0}, nil)
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i := int64(1); i < n; i++ {
		removed, err := tree.Remove(i, tx)
		require.NoError(t, err)
		require.True(t, removed)
	}

	deleted := tx.DrainDeletedPages()
	require.NotEmpty(t, deleted, "removing 39 of 40 keys from a leafMaxSize=4 tree must merge away pages")

	tx2 := txn.New(txn.NextID(), txn.RepeatableRead)
	for _, pid := range deleted {
		tx2.AddDeletedPage(pid)
	}
	require.NoError(t, tree.FinalizeDeletes(tx2))
}

func TestTree_EndIsTerminalAndMarksDone(t *testing.T) {
	tree := newTestTreeWithSize(t, 64, 4, 4)

	const n = 40
	for i := int64(0); i < n; i++ {
		ok, err := tree.Insert(i, common.RID{PageID: common.PageID(i), Slot: 0}, nil)
		require.NoError(t, err)
		require.True(t, ok)
	}

	end, err := tree.End()
	require.NoError(t, err)
	require.False(t, end.Valid(), "End() must not be usable as a live position")
}

func TestTree_EndOnEmptyTree(t *testing.T) {
	tree := newTestTree(t, 32)
	end, err := tree.End()
	require.NoError(t, err)
	require.False(t, end.Valid())
}

func TestTree_PersistAndLoadRoot(t *testing.T) {
	tree := newTestTree(t, 32)
	ok, err := tree.Insert(5, common.RID{PageID: 5}, nil)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, tree.PersistRoot())
	root := tree.RootPageID()

	reloaded := &Tree[int64]{pool: tree.pool, root: common.InvalidPageID}
	require.NoError(t, reloaded.LoadRoot())
	require.Equal(t, root, reloaded.RootPageID())
}
