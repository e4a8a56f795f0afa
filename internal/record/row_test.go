package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	schema := NewSchema(
		Column{Name: "id", Type: ColInt64},
		Column{Name: "active", Type: ColBool},
		Column{Name: "score", Type: ColFloat64},
		Column{Name: "name", Type: ColText},
		Column{Name: "blob", Type: ColBytes},
	)
	row := Row{int64(42), true, 3.5, "hello", []byte{1, 2, 3}}

	buf, err := Encode(schema, row)
	require.NoError(t, err)

	got, err := Decode(schema, buf)
	require.NoError(t, err)
	require.Equal(t, row, got)
}

func TestEncodeDecode_NullableColumn(t *testing.T) {
	schema := NewSchema(
		Column{Name: "id", Type: ColInt32},
		Column{Name: "nickname", Type: ColText, Nullable: true},
	)
	row := Row{int32(1), nil}

	buf, err := Encode(schema, row)
	require.NoError(t, err)

	got, err := Decode(schema, buf)
	require.NoError(t, err)
	require.Equal(t, row, got)
}

func TestEncode_RejectsNullOnNonNullableColumn(t *testing.T) {
	schema := NewSchema(Column{Name: "id", Type: ColInt32})
	_, err := Encode(schema, Row{nil})
	require.Error(t, err)
}

func TestEncode_RejectsWrongArity(t *testing.T) {
	schema := NewSchema(Column{Name: "id", Type: ColInt32})
	_, err := Encode(schema, Row{int32(1), int32(2)})
	require.Error(t, err)
}

func TestSchema_ColumnIndex(t *testing.T) {
	schema := NewSchema(Column{Name: "id", Type: ColInt32}, Column{Name: "name", Type: ColText})
	idx, err := schema.ColumnIndex("name")
	require.NoError(t, err)
	require.Equal(t, 1, idx)

	_, err = schema.ColumnIndex("missing")
	require.Error(t, err)
}
