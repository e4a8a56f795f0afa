package heap

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/gopherdb/internal/bufferpool"
	"github.com/tuannm99/gopherdb/internal/diskio"
	"github.com/tuannm99/gopherdb/internal/record"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()
	dir := t.TempDir()
	fs := diskio.LocalFileSet{Dir: dir, Base: "heap"}
	dm := diskio.NewManager()
	pool := bufferpool.NewPool(dm, fs, 16)
	schema := record.NewSchema(
		record.Column{Name: "id", Type: record.ColInt64},
		record.Column{Name: "name", Type: record.ColText},
	)
	tb, err := NewTable(pool, schema)
	require.NoError(t, err)
	return tb
}

func TestTable_InsertAndGet(t *testing.T) {
	tb := newTestTable(t)
	rid, err := tb.Insert(record.Row{int64(1), "alice"})
	require.NoError(t, err)

	row, ok, err := tb.Get(rid)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record.Row{int64(1), "alice"}, row)
}

func TestTable_DeleteThenGetNotFound(t *testing.T) {
	tb := newTestTable(t)
	rid, err := tb.Insert(record.Row{int64(1), "alice"})
	require.NoError(t, err)

	ok, err := tb.Delete(rid)
	require.NoError(t, err)
	require.True(t, ok)

	_, found, err := tb.Get(rid)
	require.NoError(t, err)
	require.False(t, found)
}

func TestTable_UpdateInPlace(t *testing.T) {
	tb := newTestTable(t)
	rid, err := tb.Insert(record.Row{int64(1), "alice"})
	require.NoError(t, err)

	newRID, err := tb.Update(rid, record.Row{int64(1), "bob"})
	require.NoError(t, err)
	require.Equal(t, rid, newRID, "a same-or-smaller update should stay at the same RID")

	row, ok, err := tb.Get(newRID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record.Row{int64(1), "bob"}, row)
}

func TestTable_UpdateGrownRowReadableAtReturnedRID(t *testing.T) {
	tb := newTestTable(t)
	rid, err := tb.Insert(record.Row{int64(1), "a"})
	require.NoError(t, err)

	bigName := make([]byte, 3000)
	for i := range bigName {
		bigName[i] = 'x'
	}
	newRID, err := tb.Update(rid, record.Row{int64(1), string(bigName)})
	require.NoError(t, err)

	row, ok, err := tb.Get(newRID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, string(bigName), row[1])

	_, stillThere, err := tb.Get(rid)
	require.NoError(t, err)
	if newRID != rid {
		require.False(t, stillThere)
	}
}

func TestTable_ScanVisitsEveryLiveRow(t *testing.T) {
	tb := newTestTable(t)
	const n = 50
	inserted := make(map[int64]bool)
	for i := int64(0); i < n; i++ {
		_, err := tb.Insert(record.Row{i, fmt.Sprintf("row-%d", i)})
		require.NoError(t, err)
		inserted[i] = true
	}

	scanner := tb.Scan()
	seen := make(map[int64]bool)
	for {
		_, row, ok, err := scanner.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		seen[row[0].(int64)] = true
	}
	require.Equal(t, inserted, seen)
}

func TestTable_ReopenPreservesRows(t *testing.T) {
	dir := t.TempDir()
	fs := diskio.LocalFileSet{Dir: dir, Base: "heap"}
	dm := diskio.NewManager()
	schema := record.NewSchema(record.Column{Name: "id", Type: record.ColInt64})

	pool1 := bufferpool.NewPool(dm, fs, 16)
	tb1, err := NewTable(pool1, schema)
	require.NoError(t, err)
	rid, err := tb1.Insert(record.Row{int64(99)})
	require.NoError(t, err)
	require.NoError(t, pool1.FlushAll())
	require.True(t, pool1.Flush(0))

	pool2 := bufferpool.NewPool(dm, fs, 16)
	tb2, err := OpenTable(pool2, schema)
	require.NoError(t, err)
	row, ok, err := tb2.Get(rid)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record.Row{int64(99)}, row)
}
