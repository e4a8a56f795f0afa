// Package heap implements the row-oriented storage external to the index
// subsystems: a slotted page format and a Table built over it, providing
// the sequential-scan contract the executor package wraps. Grounded in
// the teacher's internal/heap/heap_page.go, generalized to the fixed
// 4096-byte page spec.md's disk layer requires.
package heap

import (
	"fmt"

	"github.com/tuannm99/gopherdb/internal/alias/bx"
	"github.com/tuannm99/gopherdb/internal/common"
	"github.com/tuannm99/gopherdb/internal/diskio"
)

// pageHeaderSize: numSlots(2) + freeSpacePtr(2).
const pageHeaderSize = 4

// slotSize: offset(2) + length(2). A length of 0 marks a tombstoned slot
// (deleted row; the slot id stays stable so RIDs never dangle on delete).
const slotSize = 4

// Page is an in-memory view over one heap page's bytes: a slot directory
// growing forward from the header and tuple bytes packed backward from
// the end of the page, the classic slotted-page layout.
type Page struct {
	numSlots      uint16
	freeSpacePtr  uint16 // offset where the next tuple's bytes end (tuples grow downward)
	slots         []slotEntry
	buf           []byte // the full page backing array; tuple bytes referenced by [offset:offset+length]
}

type slotEntry struct {
	offset uint16
	length uint16
}

func NewPage() *Page {
	p := &Page{
		freeSpacePtr: diskio.PageSize,
		buf:          make([]byte, diskio.PageSize),
	}
	return p
}

func (p *Page) freeSpace() int {
	dirEnd := pageHeaderSize + int(p.numSlots)*slotSize
	return int(p.freeSpacePtr) - dirEnd
}

// CanFit reports whether a tuple of tupleLen bytes fits without a new
// page, accounting for the cost of one more slot directory entry if no
// tombstoned slot can be reused.
func (p *Page) CanFit(tupleLen int) bool {
	if _, ok := p.firstTombstone(); ok {
		return p.freeSpace() >= tupleLen
	}
	return p.freeSpace() >= tupleLen+slotSize
}

func (p *Page) firstTombstone() (uint16, bool) {
	for i, s := range p.slots {
		if s.length == 0 && s.offset == 0 {
			return uint16(i), true
		}
	}
	return 0, false
}

// Insert appends (or reuses a tombstoned slot for) tuple, returning its
// slot id.
func (p *Page) Insert(tuple []byte) (uint16, error) {
	if !p.CanFit(len(tuple)) {
		return 0, fmt.Errorf("heap: page full")
	}
	p.freeSpacePtr -= uint16(len(tuple))
	copy(p.buf[p.freeSpacePtr:int(p.freeSpacePtr)+len(tuple)], tuple)

	if slotID, ok := p.firstTombstone(); ok {
		p.slots[slotID] = slotEntry{offset: p.freeSpacePtr, length: uint16(len(tuple))}
		return slotID, nil
	}
	p.slots = append(p.slots, slotEntry{offset: p.freeSpacePtr, length: uint16(len(tuple))})
	p.numSlots++
	return p.numSlots - 1, nil
}

func (p *Page) Get(slotID uint16) ([]byte, bool) {
	if int(slotID) >= len(p.slots) {
		return nil, false
	}
	s := p.slots[slotID]
	if s.length == 0 {
		return nil, false
	}
	out := make([]byte, s.length)
	copy(out, p.buf[s.offset:s.offset+s.length])
	return out, true
}

// Delete tombstones a slot; the slot id remains reserved so outstanding
// RIDs referencing it resolve to "not found" rather than a different row.
func (p *Page) Delete(slotID uint16) bool {
	if int(slotID) >= len(p.slots) {
		return false
	}
	if p.slots[slotID].length == 0 {
		return false
	}
	p.slots[slotID] = slotEntry{}
	return true
}

// Update replaces a slot's tuple in place if it fits in the old tuple's
// bytes, or else in the page's free space (the old tuple's bytes are not
// reclaimed); callers should treat a false return as "relocate the row"
// (delete + insert elsewhere, updating any index entries pointing at the
// old RID).
func (p *Page) Update(slotID uint16, tuple []byte) bool {
	if int(slotID) >= len(p.slots) {
		return false
	}
	old := p.slots[slotID]
	if old.length == 0 {
		return false
	}
	if len(tuple) <= int(old.length) {
		copy(p.buf[old.offset:], tuple)
		p.slots[slotID].length = uint16(len(tuple))
		return true
	}
	if p.freeSpace() < len(tuple) {
		return false
	}
	p.freeSpacePtr -= uint16(len(tuple))
	copy(p.buf[p.freeSpacePtr:int(p.freeSpacePtr)+len(tuple)], tuple)
	p.slots[slotID] = slotEntry{offset: p.freeSpacePtr, length: uint16(len(tuple))}
	return true
}

// SlotCount returns the number of slot directory entries, including
// tombstoned ones.
func (p *Page) SlotCount() int { return len(p.slots) }

func (p *Page) Encode(dst []byte) {
	bx.PutU16BEAt(dst, 0, p.numSlots)
	bx.PutU16BEAt(dst, 2, p.freeSpacePtr)
	off := pageHeaderSize
	for _, s := range p.slots {
		bx.PutU16BEAt(dst, off, s.offset)
		bx.PutU16BEAt(dst, off+2, s.length)
		off += slotSize
	}
	copy(dst[p.freeSpacePtr:], p.buf[p.freeSpacePtr:])
}

func (p *Page) Decode(src []byte) {
	p.numSlots = bx.U16BEAt(src, 0)
	p.freeSpacePtr = bx.U16BEAt(src, 2)
	p.slots = make([]slotEntry, p.numSlots)
	off := pageHeaderSize
	for i := range p.slots {
		p.slots[i] = slotEntry{
			offset: bx.U16BEAt(src, off),
			length: bx.U16BEAt(src, off+2),
		}
		off += slotSize
	}
	p.buf = make([]byte, diskio.PageSize)
	copy(p.buf, src)
}

// RID builds the record id for a slot on pageID.
func RID(pageID common.PageID, slotID uint16) common.RID {
	return common.RID{PageID: pageID, Slot: slotID}
}
