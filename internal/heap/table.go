package heap

import (
	"fmt"

	"github.com/tuannm99/gopherdb/internal/alias/bx"
	"github.com/tuannm99/gopherdb/internal/bufferpool"
	"github.com/tuannm99/gopherdb/internal/common"
	"github.com/tuannm99/gopherdb/internal/record"
)

// Table is a heap-organized relation: an append-preferring sequence of
// slotted pages, with no particular row ordering. Grounded in the
// teacher's internal/heap/table.go, re-keyed on common.RID/common.PageID
// and the record.Schema/Row codec.
type Table struct {
	pool     *bufferpool.Pool
	schema   *record.Schema
	pageIDs  []common.PageID
}

// NewTable creates an empty heap table over pool, persisting its (empty)
// page list to the header page.
func NewTable(pool *bufferpool.Pool, schema *record.Schema) (*Table, error) {
	tb := &Table{pool: pool, schema: schema}
	if err := tb.persistPageList(); err != nil {
		return nil, err
	}
	return tb, nil
}

// OpenTable reopens a heap table previously created with NewTable,
// reading its page list back from the header page.
func OpenTable(pool *bufferpool.Pool, schema *record.Schema) (*Table, error) {
	tb := &Table{pool: pool, schema: schema}
	if err := tb.loadPageList(); err != nil {
		return nil, err
	}
	return tb, nil
}

func (tb *Table) persistPageList() error {
	frame, err := tb.pool.Fetch(common.HeaderPageID)
	if err != nil {
		return err
	}
	bx.PutU32BEAt(frame.Data[:], 0, uint32(len(tb.pageIDs)))
	off := 4
	for _, pid := range tb.pageIDs {
		bx.PutU32BEAt(frame.Data[:], off, uint32(pid))
		off += 4
	}
	tb.pool.Unpin(common.HeaderPageID, true)
	return nil
}

func (tb *Table) loadPageList() error {
	frame, err := tb.pool.Fetch(common.HeaderPageID)
	if err != nil {
		return err
	}
	n := bx.U32BEAt(frame.Data[:], 0)
	pageIDs := make([]common.PageID, n)
	off := 4
	for i := range pageIDs {
		pageIDs[i] = common.PageID(bx.U32BEAt(frame.Data[:], off))
		off += 4
	}
	tb.pool.Unpin(common.HeaderPageID, false)
	tb.pageIDs = pageIDs
	return nil
}

func (tb *Table) loadHeapPage(pageID common.PageID) (*Page, *bufferpool.Frame, error) {
	frame, err := tb.pool.Fetch(pageID)
	if err != nil {
		return nil, nil, err
	}
	p := &Page{}
	p.Decode(frame.Data[:])
	return p, frame, nil
}

// Schema returns the table's column schema.
func (tb *Table) Schema() *record.Schema { return tb.schema }

// Insert encodes row and appends it to the last page with room, or
// allocates a fresh page if none exists or none has room.
func (tb *Table) Insert(row record.Row) (common.RID, error) {
	tuple, err := record.Encode(tb.schema, row)
	if err != nil {
		return common.RID{}, err
	}

	if len(tb.pageIDs) > 0 {
		lastID := tb.pageIDs[len(tb.pageIDs)-1]
		p, frame, err := tb.loadHeapPage(lastID)
		if err != nil {
			return common.RID{}, err
		}
		if p.CanFit(len(tuple)) {
			slot, err := p.Insert(tuple)
			if err != nil {
				tb.pool.Unpin(lastID, false)
				return common.RID{}, err
			}
			p.Encode(frame.Data[:])
			tb.pool.Unpin(lastID, true)
			return RID(lastID, slot), nil
		}
		tb.pool.Unpin(lastID, false)
	}

	pageID, frame, err := tb.pool.NewPage()
	if err != nil {
		return common.RID{}, err
	}
	p := NewPage()
	slot, err := p.Insert(tuple)
	if err != nil {
		tb.pool.Unpin(pageID, false)
		return common.RID{}, fmt.Errorf("heap: tuple too large for an empty page: %w", err)
	}
	p.Encode(frame.Data[:])
	tb.pool.Unpin(pageID, true)

	tb.pageIDs = append(tb.pageIDs, pageID)
	if err := tb.persistPageList(); err != nil {
		return common.RID{}, err
	}
	return RID(pageID, slot), nil
}

// Get decodes the row at rid, reporting false if it was deleted or never
// existed.
func (tb *Table) Get(rid common.RID) (record.Row, bool, error) {
	p, _, err := tb.loadHeapPage(rid.PageID)
	if err != nil {
		return nil, false, err
	}
	tuple, ok := p.Get(rid.Slot)
	tb.pool.Unpin(rid.PageID, false)
	if !ok {
		return nil, false, nil
	}
	row, err := record.Decode(tb.schema, tuple)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

// Update rewrites the row at rid in place when it still fits; otherwise
// it deletes the old row and inserts the new one elsewhere, returning the
// (possibly different) RID the caller's indexes must be updated to point
// at.
func (tb *Table) Update(rid common.RID, row record.Row) (common.RID, error) {
	tuple, err := record.Encode(tb.schema, row)
	if err != nil {
		return common.RID{}, err
	}

	p, frame, err := tb.loadHeapPage(rid.PageID)
	if err != nil {
		return common.RID{}, err
	}
	if p.Update(rid.Slot, tuple) {
		p.Encode(frame.Data[:])
		tb.pool.Unpin(rid.PageID, true)
		return rid, nil
	}
	tb.pool.Unpin(rid.PageID, false)

	if _, err := tb.Delete(rid); err != nil {
		return common.RID{}, err
	}
	return tb.Insert(row)
}

// Delete tombstones the row at rid.
func (tb *Table) Delete(rid common.RID) (bool, error) {
	p, frame, err := tb.loadHeapPage(rid.PageID)
	if err != nil {
		return false, err
	}
	ok := p.Delete(rid.Slot)
	if ok {
		p.Encode(frame.Data[:])
	}
	tb.pool.Unpin(rid.PageID, ok)
	return ok, nil
}

// Scanner walks every live row in a Table in page/slot order — the
// sequential-scan contract the executor package relies on.
type Scanner struct {
	tb       *Table
	pageIdx  int
	slotIdx  int
}

func (tb *Table) Scan() *Scanner {
	return &Scanner{tb: tb}
}

// Next returns the next live (rid, row) pair, or ok=false once the table
// is exhausted.
func (s *Scanner) Next() (common.RID, record.Row, bool, error) {
	for s.pageIdx < len(s.tb.pageIDs) {
		pageID := s.tb.pageIDs[s.pageIdx]
		p, _, err := s.tb.loadHeapPage(pageID)
		if err != nil {
			return common.RID{}, nil, false, err
		}
		for s.slotIdx < p.SlotCount() {
			slot := uint16(s.slotIdx)
			s.slotIdx++
			tuple, ok := p.Get(slot)
			if !ok {
				continue
			}
			s.tb.pool.Unpin(pageID, false)
			row, err := record.Decode(s.tb.schema, tuple)
			if err != nil {
				return common.RID{}, nil, false, err
			}
			return RID(pageID, slot), row, true, nil
		}
		s.tb.pool.Unpin(pageID, false)
		s.pageIdx++
		s.slotIdx = 0
	}
	return common.RID{}, nil, false, nil
}
