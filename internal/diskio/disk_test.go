package diskio

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tuannm99/gopherdb/internal/common"
)

func TestManager_WriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs := LocalFileSet{Dir: dir, Base: "t1"}
	m := NewManager()

	id, err := m.AllocatePage(fs)
	require.NoError(t, err)
	require.Equal(t, common.HeaderPageID+1, id)

	buf := make([]byte, PageSize)
	for i := range buf {
		buf[i] = byte(i)
	}
	require.NoError(t, m.WritePage(fs, id, buf))

	out := make([]byte, PageSize)
	require.NoError(t, m.ReadPage(fs, id, out))
	require.Equal(t, buf, out)
}

func TestManager_UnwrittenPageReadsZero(t *testing.T) {
	dir := t.TempDir()
	fs := LocalFileSet{Dir: dir, Base: "t1"}
	m := NewManager()

	out := make([]byte, PageSize)
	require.NoError(t, m.ReadPage(fs, common.PageID(5), out))
	for _, b := range out {
		require.Zero(t, b)
	}
}

func TestManager_AllocateMonotonicThenReusesFreed(t *testing.T) {
	dir := t.TempDir()
	fs := LocalFileSet{Dir: dir, Base: "t1"}
	m := NewManager()

	p1, _ := m.AllocatePage(fs)
	p2, _ := m.AllocatePage(fs)
	require.Equal(t, p1+1, p2)

	require.NoError(t, m.DeallocatePage(fs, p1))
	p3, _ := m.AllocatePage(fs)
	require.Equal(t, p1, p3, "freed id should be reused before advancing the counter")
}

func TestManager_InvalidPageID(t *testing.T) {
	dir := t.TempDir()
	fs := LocalFileSet{Dir: dir, Base: "t1"}
	m := NewManager()

	buf := make([]byte, PageSize)
	require.ErrorIs(t, m.ReadPage(fs, common.InvalidPageID, buf), ErrInvalidPageID)
	require.ErrorIs(t, m.WritePage(fs, common.InvalidPageID, buf), ErrInvalidPageID)
}
