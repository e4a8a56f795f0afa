package btree

import (
	"encoding/binary"

	"github.com/tuannm99/gopherdb/internal/common"
)

// pageType tags a page's on-disk layout, stored as the first header field
// in both internal and leaf pages.
type pageType int32

const (
	invalidPageType pageType = 0
	internalPageT   pageType = 1
	leafPageT       pageType = 2
)

// header fields shared by internal and leaf pages, grounded on
// original_source/src/include/storage/page/b_plus_tree_page.h:
// PageType(4) + LSN(4) + CurrentSize(4) + MaxSize(4) + ParentPageId(4) +
// PageId(4) = 24 bytes. Leaf pages append a 4-byte NextPageId for 28.
const baseHeaderSize = 24
const leafHeaderSize = baseHeaderSize + 4

type header struct {
	typ          pageType
	lsn          int32 // unused (WAL is out of scope); kept for byte-layout fidelity
	size         int32
	maxSize      int32
	parentPageID common.PageID
	pageID       common.PageID
}

func (h *header) encode(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], uint32(h.typ))
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.lsn))
	binary.BigEndian.PutUint32(buf[8:12], uint32(h.size))
	binary.BigEndian.PutUint32(buf[12:16], uint32(h.maxSize))
	binary.BigEndian.PutUint32(buf[16:20], uint32(h.parentPageID))
	binary.BigEndian.PutUint32(buf[20:24], uint32(h.pageID))
}

func (h *header) decode(buf []byte) {
	h.typ = pageType(binary.BigEndian.Uint32(buf[0:4]))
	h.lsn = int32(binary.BigEndian.Uint32(buf[4:8]))
	h.size = int32(binary.BigEndian.Uint32(buf[8:12]))
	h.maxSize = int32(binary.BigEndian.Uint32(buf[12:16]))
	h.parentPageID = common.PageID(binary.BigEndian.Uint32(buf[16:20]))
	h.pageID = common.PageID(binary.BigEndian.Uint32(buf[20:24]))
}

func pageTypeOf(buf []byte) pageType {
	return pageType(binary.BigEndian.Uint32(buf[0:4]))
}
