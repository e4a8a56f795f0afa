// Package common holds the identifier types shared by the disk manager,
// buffer pool, B+Tree and lock manager so none of them needs to import
// the others just to name a page.
package common

import "fmt"

// PageID identifies a page on disk. InvalidPageID is the sentinel used
// for "no page" (an empty tree's root, a frame that owns nothing).
type PageID int32

// InvalidPageID is never a valid on-disk page id.
const InvalidPageID PageID = -1

// HeaderPageID is page 0 of each file set, reserved as its header page: a
// B+Tree stores its root page id there (Tree.PersistRoot) and a heap
// table stores its page list there.
const HeaderPageID PageID = 0

func (p PageID) IsValid() bool { return p != InvalidPageID }

// FrameID indexes into the buffer pool's frame array. Never persisted.
type FrameID int32

// RID (record id) identifies a tuple by its heap page and slot. Stable
// for the tuple's lifetime.
type RID struct {
	PageID PageID
	Slot   uint16
}

func (r RID) String() string {
	return fmt.Sprintf("RID(%d,%d)", r.PageID, r.Slot)
}

// PageSize is fixed at build time per the on-disk page layout.
const PageSize = 4096
