package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/gopherdb/internal/bufferpool"
	"github.com/tuannm99/gopherdb/internal/diskio"
	"github.com/tuannm99/gopherdb/internal/heap"
	"github.com/tuannm99/gopherdb/internal/record"
)

func newTestTable(t *testing.T) *heap.Table {
	t.Helper()
	dir := t.TempDir()
	fs := diskio.LocalFileSet{Dir: dir, Base: "t"}
	dm := diskio.NewManager()
	pool := bufferpool.NewPool(dm, fs, 16)
	schema := record.NewSchema(record.Column{Name: "id", Type: record.ColInt64})
	tb, err := heap.NewTable(pool, schema)
	require.NoError(t, err)
	return tb
}

func TestSeqScan_CollectsEveryRow(t *testing.T) {
	tb := newTestTable(t)
	for i := int64(0); i < 10; i++ {
		_, err := tb.Insert(record.Row{i})
		require.NoError(t, err)
	}

	rows, err := NewSeqScan(tb, nil).Collect()
	require.NoError(t, err)
	require.Len(t, rows, 10)
}

func TestSeqScan_AppliesPredicate(t *testing.T) {
	tb := newTestTable(t)
	for i := int64(0); i < 10; i++ {
		_, err := tb.Insert(record.Row{i})
		require.NoError(t, err)
	}

	even := func(r record.Row) bool { return r[0].(int64)%2 == 0 }
	rows, err := NewSeqScan(tb, even).Collect()
	require.NoError(t, err)
	require.Len(t, rows, 5)
}
