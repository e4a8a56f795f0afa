package btree

import (
	"encoding/binary"
	"sort"

	"github.com/tuannm99/gopherdb/internal/common"
	"github.com/tuannm99/gopherdb/internal/diskio"
)

const childSize = 4 // common.PageID

// InternalPage routes by key to a child page. keys[0] is an unused
// sentinel (original_source's convention: children[0] covers everything
// less than keys[1]), so len(children) == len(keys) always and
// size counts children.
type InternalPage[K Key] struct {
	header
	keys     []K
	children []common.PageID
}

func internalMaxSize[K Key]() int32 {
	entry := keySize[K]() + childSize
	return int32((diskio.PageSize - baseHeaderSize) / entry)
}

// NewInternal initializes a fresh, empty internal page for pageID.
// maxSize overrides the page-capacity-derived default when non-zero.
func NewInternal[K Key](pageID, parentPageID common.PageID, maxSize int32) *InternalPage[K] {
	if maxSize == 0 {
		maxSize = internalMaxSize[K]()
	}
	return &InternalPage[K]{
		header: header{
			typ:          internalPageT,
			size:         0,
			maxSize:      maxSize,
			parentPageID: parentPageID,
			pageID:       pageID,
		},
	}
}

func (n *InternalPage[K]) PageID() common.PageID       { return n.pageID }
func (n *InternalPage[K]) ParentPageID() common.PageID { return n.parentPageID }
func (n *InternalPage[K]) SetParentPageID(p common.PageID) { n.parentPageID = p }
func (n *InternalPage[K]) Size() int                   { return int(n.size) }
func (n *InternalPage[K]) MaxSize() int                { return int(n.maxSize) }
func (n *InternalPage[K]) IsFull() bool                { return n.size > n.maxSize }
func (n *InternalPage[K]) MinSize() int                { return (int(n.maxSize) + 1) / 2 }
func (n *InternalPage[K]) IsHalfFull() bool            { return int(n.size) <= n.MinSize() }

func (n *InternalPage[K]) KeyAt(i int) K                { return n.keys[i] }
func (n *InternalPage[K]) SetKeyAt(i int, k K)          { n.keys[i] = k }
func (n *InternalPage[K]) ChildAt(i int) common.PageID  { return n.children[i] }

// Init seeds a brand-new root internal page with its first two children
// split around splitKey (created when a leaf/internal split propagates up
// past a previously-root node).
func (n *InternalPage[K]) Init(left, right common.PageID, splitKey K) {
	var zero K
	n.keys = []K{zero, splitKey}
	n.children = []common.PageID{left, right}
	n.size = 2
}

// Lookup returns the child page id to descend into for key: the last
// child whose separator key is <= key, searching keys[1:] only (keys[0]
// is the sentinel), and children[0] when key is below keys[1].
func (n *InternalPage[K]) Lookup(key K) common.PageID {
	idx := sort.Search(len(n.keys)-1, func(i int) bool {
		return compareKey(n.keys[i+1], key) > 0
	})
	return n.children[idx]
}

// ChildIndex returns the slot holding childID, or -1.
func (n *InternalPage[K]) ChildIndex(childID common.PageID) int {
	for i, c := range n.children {
		if c == childID {
			return i
		}
	}
	return -1
}

// InsertAfter inserts (splitKey, newChild) immediately after oldChild,
// used when a child splits and the new right sibling needs a separator
// entry in its parent.
func (n *InternalPage[K]) InsertAfter(oldChild common.PageID, splitKey K, newChild common.PageID) {
	idx := n.ChildIndex(oldChild)
	n.keys = append(n.keys, splitKey)
	n.children = append(n.children, newChild)
	copy(n.keys[idx+2:], n.keys[idx+1:len(n.keys)-1])
	copy(n.children[idx+2:], n.children[idx+1:len(n.children)-1])
	n.keys[idx+1] = splitKey
	n.children[idx+1] = newChild
	n.size++
}

// Remove drops the entry at index idx (its key and its child pointer).
func (n *InternalPage[K]) Remove(idx int) {
	n.keys = append(n.keys[:idx], n.keys[idx+1:]...)
	n.children = append(n.children[:idx], n.children[idx+1:]...)
	n.size--
}

// MoveHalfTo splits this internal node, moving its upper half (including
// the separator that becomes dst's unused sentinel) into dst.
func (n *InternalPage[K]) MoveHalfTo(dst *InternalPage[K]) {
	mid := len(n.keys) / 2
	dst.keys = append(dst.keys, n.keys[mid:]...)
	dst.children = append(dst.children, n.children[mid:]...)
	dst.size = int32(len(dst.keys))

	n.keys = n.keys[:mid]
	n.children = n.children[:mid]
	n.size = int32(mid)
}

// MoveAllTo appends this node's entries onto dst, used during a merge.
// The caller is responsible for supplying the separator key that used to
// sit above n in the parent as dst's new trailing entries' first key.
func (n *InternalPage[K]) MoveAllTo(dst *InternalPage[K], middleKey K) {
	n.keys[0] = middleKey
	dst.keys = append(dst.keys, n.keys...)
	dst.children = append(dst.children, n.children...)
	dst.size = int32(len(dst.keys))
	n.keys, n.children, n.size = nil, nil, 0
}

// MoveFirstToEndOf redistributes n's first child onto the end of dst
// (n's left sibling borrowing from n), given the parent separator key
// that used to sit above n's first child.
func (n *InternalPage[K]) MoveFirstToEndOf(dst *InternalPage[K], middleKey K) {
	dst.keys = append(dst.keys, middleKey)
	dst.children = append(dst.children, n.children[0])
	dst.size++

	n.keys = n.keys[1:]
	n.children = n.children[1:]
	n.size--
}

// MoveLastToFrontOf redistributes n's last child onto the front of dst
// (n's right sibling borrowing from n), given the parent separator key
// that used to sit above dst's first child.
func (n *InternalPage[K]) MoveLastToFrontOf(dst *InternalPage[K], middleKey K) {
	last := len(n.children) - 1
	child := n.children[last]
	n.keys = n.keys[:last]
	n.children = n.children[:last]
	n.size--

	dst.keys = append([]K{dst.keys[0]}, dst.keys...)
	dst.keys[1] = middleKey
	dst.children = append([]common.PageID{child}, dst.children...)
	dst.size++
}

func (n *InternalPage[K]) Encode(buf []byte) {
	n.header.encode(buf)
	ks := keySize[K]()
	off := baseHeaderSize
	for i := range n.keys {
		encodeKey(n.keys[i], buf[off:off+ks])
		off += ks
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(n.children[i]))
		off += childSize
	}
}

func (n *InternalPage[K]) Decode(buf []byte) {
	n.header.decode(buf)
	ks := keySize[K]()
	count := int(n.size)
	n.keys = make([]K, count)
	n.children = make([]common.PageID, count)
	off := baseHeaderSize
	for i := 0; i < count; i++ {
		n.keys[i] = decodeKey[K](buf[off : off+ks])
		off += ks
		n.children[i] = common.PageID(binary.BigEndian.Uint32(buf[off : off+4]))
		off += childSize
	}
}
