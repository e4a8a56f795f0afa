package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/gopherdb/internal/common"
	"github.com/tuannm99/gopherdb/internal/record"
)

func TestCatalog_CreateAndGetTable(t *testing.T) {
	dir := t.TempDir()
	cat, err := New(dir, 16)
	require.NoError(t, err)

	schema := record.NewSchema(record.Column{Name: "id", Type: record.ColInt64})
	tb, err := cat.CreateTable("users", schema)
	require.NoError(t, err)

	rid, err := tb.Insert(record.Row{int64(1)})
	require.NoError(t, err)

	got, err := cat.GetTableByName("users")
	require.NoError(t, err)
	row, ok, err := got.Get(rid)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record.Row{int64(1)}, row)
}

func TestCatalog_CreateTableDuplicateFails(t *testing.T) {
	dir := t.TempDir()
	cat, err := New(dir, 16)
	require.NoError(t, err)
	schema := record.NewSchema(record.Column{Name: "id", Type: record.ColInt64})

	_, err = cat.CreateTable("users", schema)
	require.NoError(t, err)
	_, err = cat.CreateTable("users", schema)
	require.Error(t, err)
}

func TestCatalog_CreateIndexOnColumn(t *testing.T) {
	dir := t.TempDir()
	cat, err := New(dir, 16)
	require.NoError(t, err)
	schema := record.NewSchema(record.Column{Name: "id", Type: record.ColInt64})
	_, err = cat.CreateTable("users", schema)
	require.NoError(t, err)

	tree, err := CreateIndexOnColumn[int64](cat, "users_id_idx", "users", "id")
	require.NoError(t, err)

	ok, err := tree.Insert(7, common.RID{PageID: 1, Slot: 0}, nil)
	require.NoError(t, err)
	require.True(t, ok)

	meta, found := cat.GetIndexMeta("users_id_idx")
	require.True(t, found)
	require.Equal(t, "users", meta.TableName)
	require.Equal(t, 8, meta.KeyWidth)
}

func TestCatalog_GetTableByID(t *testing.T) {
	dir := t.TempDir()
	cat, err := New(dir, 16)
	require.NoError(t, err)
	schema := record.NewSchema(record.Column{Name: "id", Type: record.ColInt64})
	tb, err := cat.CreateTable("users", schema)
	require.NoError(t, err)

	meta, ok := cat.tables["users"]
	require.True(t, ok)

	byID, err := cat.GetTableByID(meta.ID)
	require.NoError(t, err)
	require.Same(t, tb, byID)

	_, err = cat.GetTableByID(meta.ID + 1)
	require.Error(t, err)
}

func TestCatalog_GetIndexReturnsOpenedIndex(t *testing.T) {
	dir := t.TempDir()
	cat, err := New(dir, 16)
	require.NoError(t, err)
	schema := record.NewSchema(record.Column{Name: "id", Type: record.ColInt64})
	_, err = cat.CreateTable("users", schema)
	require.NoError(t, err)

	created, err := CreateIndexOnColumn[int64](cat, "users_id_idx", "users", "id")
	require.NoError(t, err)
	ok, err := created.Insert(7, common.RID{PageID: 1, Slot: 0}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, created.PersistRoot())

	fetched, err := GetIndex[int64](cat, "users_id_idx")
	require.NoError(t, err)
	require.Same(t, created, fetched, "GetIndex must return the cached handle once opened")

	_, err = GetIndex[int32](cat, "users_id_idx")
	require.Error(t, err, "requesting the wrong key type for an already-opened index must fail")

	_, err = GetIndex[int64](cat, "no_such_index")
	require.Error(t, err)
}

func TestCatalog_ReopenLoadsMetadata(t *testing.T) {
	dir := t.TempDir()
	cat, err := New(dir, 16)
	require.NoError(t, err)
	schema := record.NewSchema(record.Column{Name: "id", Type: record.ColInt64})
	_, err = cat.CreateTable("users", schema)
	require.NoError(t, err)
	require.NoError(t, cat.Close())

	reopened, err := New(dir, 16)
	require.NoError(t, err)
	_, err = reopened.GetTableByName("users")
	require.NoError(t, err)
}

func TestCatalog_DropIndex(t *testing.T) {
	dir := t.TempDir()
	cat, err := New(dir, 16)
	require.NoError(t, err)
	schema := record.NewSchema(record.Column{Name: "id", Type: record.ColInt64})
	_, err = cat.CreateTable("users", schema)
	require.NoError(t, err)
	_, err = CreateIndexOnColumn[int64](cat, "users_id_idx", "users", "id")
	require.NoError(t, err)

	require.NoError(t, cat.DropIndex("users_id_idx"))
	_, found := cat.GetIndexMeta("users_id_idx")
	require.False(t, found)
}
