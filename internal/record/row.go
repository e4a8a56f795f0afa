package record

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Value is one cell of a Row. A nil Value means SQL NULL.
type Value interface{}

// Row is a single tuple, positionally matching its Schema's columns.
type Row []Value

// Encode packs row into a self-contained byte slice: a leading null
// bitmap (1 bit per column, LSB first), then fixed-width columns in
// schema order, then variable-width columns (TEXT/BYTES) each as a
// 4-byte length prefix followed by raw bytes.
func Encode(schema *Schema, row Row) ([]byte, error) {
	if len(row) != len(schema.Columns) {
		return nil, fmt.Errorf("record: row has %d values, schema has %d columns", len(row), len(schema.Columns))
	}

	bitmapLen := (len(schema.Columns) + 7) / 8
	bitmap := make([]byte, bitmapLen)
	var fixed []byte
	var variable []byte

	for i, col := range schema.Columns {
		v := row[i]
		if v == nil {
			if !col.Nullable {
				return nil, fmt.Errorf("record: column %q is not nullable", col.Name)
			}
			bitmap[i/8] |= 1 << uint(i%8)
			continue
		}
		switch col.Type {
		case ColInt32:
			iv, ok := v.(int32)
			if !ok {
				return nil, fmt.Errorf("record: column %q expects int32, got %T", col.Name, v)
			}
			buf := make([]byte, 4)
			binary.BigEndian.PutUint32(buf, uint32(iv))
			fixed = append(fixed, buf...)
		case ColInt64:
			iv, ok := v.(int64)
			if !ok {
				return nil, fmt.Errorf("record: column %q expects int64, got %T", col.Name, v)
			}
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, uint64(iv))
			fixed = append(fixed, buf...)
		case ColBool:
			bv, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("record: column %q expects bool, got %T", col.Name, v)
			}
			if bv {
				fixed = append(fixed, 1)
			} else {
				fixed = append(fixed, 0)
			}
		case ColFloat64:
			fv, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("record: column %q expects float64, got %T", col.Name, v)
			}
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, math.Float64bits(fv))
			fixed = append(fixed, buf...)
		case ColText:
			sv, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("record: column %q expects string, got %T", col.Name, v)
			}
			lenBuf := make([]byte, 4)
			binary.BigEndian.PutUint32(lenBuf, uint32(len(sv)))
			variable = append(variable, lenBuf...)
			variable = append(variable, sv...)
		case ColBytes:
			bv, ok := v.([]byte)
			if !ok {
				return nil, fmt.Errorf("record: column %q expects []byte, got %T", col.Name, v)
			}
			lenBuf := make([]byte, 4)
			binary.BigEndian.PutUint32(lenBuf, uint32(len(bv)))
			variable = append(variable, lenBuf...)
			variable = append(variable, bv...)
		default:
			return nil, fmt.Errorf("record: unknown column type %v", col.Type)
		}
	}

	out := make([]byte, 0, bitmapLen+len(fixed)+len(variable))
	out = append(out, bitmap...)
	out = append(out, fixed...)
	out = append(out, variable...)
	return out, nil
}

// Decode is Encode's inverse.
func Decode(schema *Schema, data []byte) (Row, error) {
	bitmapLen := (len(schema.Columns) + 7) / 8
	if len(data) < bitmapLen {
		return nil, fmt.Errorf("record: row data shorter than null bitmap")
	}
	bitmap := data[:bitmapLen]
	off := bitmapLen

	row := make(Row, len(schema.Columns))
	var varOffsets []int

	for i, col := range schema.Columns {
		isNull := bitmap[i/8]&(1<<uint(i%8)) != 0
		if isNull {
			row[i] = nil
			continue
		}
		switch col.Type {
		case ColInt32:
			row[i] = int32(binary.BigEndian.Uint32(data[off : off+4]))
			off += 4
		case ColInt64:
			row[i] = int64(binary.BigEndian.Uint64(data[off : off+8]))
			off += 8
		case ColBool:
			row[i] = data[off] != 0
			off++
		case ColFloat64:
			row[i] = math.Float64frombits(binary.BigEndian.Uint64(data[off : off+8]))
			off += 8
		case ColText, ColBytes:
			// Variable-width columns are decoded in a second pass since
			// they're stored after all fixed columns; remember the slot.
			varOffsets = append(varOffsets, i)
		default:
			return nil, fmt.Errorf("record: unknown column type %v", col.Type)
		}
	}

	for _, i := range varOffsets {
		col := schema.Columns[i]
		if bitmap[i/8]&(1<<uint(i%8)) != 0 {
			continue
		}
		if off+4 > len(data) {
			return nil, fmt.Errorf("record: truncated row while decoding column %q", col.Name)
		}
		n := int(binary.BigEndian.Uint32(data[off : off+4]))
		off += 4
		if off+n > len(data) {
			return nil, fmt.Errorf("record: truncated row while decoding column %q", col.Name)
		}
		switch col.Type {
		case ColText:
			row[i] = string(data[off : off+n])
		case ColBytes:
			cp := make([]byte, n)
			copy(cp, data[off:off+n])
			row[i] = cp
		}
		off += n
	}

	return row, nil
}
