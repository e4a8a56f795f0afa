package btree

import (
	"encoding/binary"
	"sort"

	"github.com/tuannm99/gopherdb/internal/common"
	"github.com/tuannm99/gopherdb/internal/diskio"
)

const ridSize = 4 + 2 // common.PageID + Slot

// LeafPage is a leaf node: a sorted run of (key, RID) pairs plus a
// forward pointer to the next leaf, forming the ordered chain iteration
// walks (original_source/.../b_plus_tree_leaf_page.h).
type LeafPage[K Key] struct {
	header
	nextPageID common.PageID
	keys       []K
	values     []common.RID
}

func leafMaxSize[K Key]() int32 {
	entry := keySize[K]() + ridSize
	return int32((diskio.PageSize - leafHeaderSize) / entry)
}

// NewLeaf initializes a fresh, empty leaf page for pageID. maxSize
// overrides the page-capacity-derived default when non-zero, letting a
// Tree built with a smaller leafMaxSize exercise splits/merges without
// needing thousands of keys.
func NewLeaf[K Key](pageID, parentPageID common.PageID, maxSize int32) *LeafPage[K] {
	if maxSize == 0 {
		maxSize = leafMaxSize[K]()
	}
	return &LeafPage[K]{
		header: header{
			typ:          leafPageT,
			size:         0,
			maxSize:      maxSize,
			parentPageID: parentPageID,
			pageID:       pageID,
		},
		nextPageID: common.InvalidPageID,
	}
}

func (l *LeafPage[K]) PageID() common.PageID       { return l.pageID }
func (l *LeafPage[K]) ParentPageID() common.PageID { return l.parentPageID }
func (l *LeafPage[K]) SetParentPageID(p common.PageID) { l.parentPageID = p }
func (l *LeafPage[K]) NextPageID() common.PageID   { return l.nextPageID }
func (l *LeafPage[K]) SetNextPageID(p common.PageID) { l.nextPageID = p }
func (l *LeafPage[K]) Size() int                   { return int(l.size) }
func (l *LeafPage[K]) MaxSize() int                { return int(l.maxSize) }
func (l *LeafPage[K]) IsFull() bool                { return l.size >= l.maxSize }

// IsHalfFull reports whether this leaf has fallen to (or below) half
// capacity, the "unsafe for delete" threshold original_source uses to
// decide whether a delete might require borrowing or merging.
func (l *LeafPage[K]) IsHalfFull() bool { return int(l.size) <= l.MinSize() }

// MinSize is the minimum occupancy a non-root leaf must maintain, per the
// ceil(maxSize/2) rule original_source applies.
func (l *LeafPage[K]) MinSize() int { return (int(l.maxSize) + 1) / 2 }

// KeyIndex returns the index of the first key >= target (lower bound).
func (l *LeafPage[K]) KeyIndex(target K) int {
	return sort.Search(len(l.keys), func(i int) bool {
		return compareKey(l.keys[i], target) >= 0
	})
}

func (l *LeafPage[K]) KeyAt(i int) K            { return l.keys[i] }
func (l *LeafPage[K]) SetKeyAt(i int, k K)      { l.keys[i] = k }
func (l *LeafPage[K]) ValueAt(i int) common.RID { return l.values[i] }

// Lookup returns the RID for key, if present.
func (l *LeafPage[K]) Lookup(key K) (common.RID, bool) {
	idx := l.KeyIndex(key)
	if idx < len(l.keys) && compareKey(l.keys[idx], key) == 0 {
		return l.values[idx], true
	}
	return common.RID{}, false
}

// Insert adds (key, rid) in sorted position. Returns false without
// modifying the page if key is already present (insert is idempotent,
// never silently overwriting an existing RID).
func (l *LeafPage[K]) Insert(key K, rid common.RID) bool {
	idx := l.KeyIndex(key)
	if idx < len(l.keys) && compareKey(l.keys[idx], key) == 0 {
		return false
	}
	l.keys = append(l.keys, key)
	l.values = append(l.values, common.RID{})
	copy(l.keys[idx+1:], l.keys[idx:len(l.keys)-1])
	copy(l.values[idx+1:], l.values[idx:len(l.values)-1])
	l.keys[idx] = key
	l.values[idx] = rid
	l.size++
	return true
}

// Remove deletes key if present, reporting whether it was found.
func (l *LeafPage[K]) Remove(key K) bool {
	idx := l.KeyIndex(key)
	if idx >= len(l.keys) || compareKey(l.keys[idx], key) != 0 {
		return false
	}
	l.keys = append(l.keys[:idx], l.keys[idx+1:]...)
	l.values = append(l.values[:idx], l.values[idx+1:]...)
	l.size--
	return true
}

// MoveHalfTo splits this leaf, moving its upper half into dst (a freshly
// allocated sibling), used when Insert overflows a full leaf.
func (l *LeafPage[K]) MoveHalfTo(dst *LeafPage[K]) {
	mid := len(l.keys) / 2
	dst.keys = append(dst.keys, l.keys[mid:]...)
	dst.values = append(dst.values, l.values[mid:]...)
	dst.size = int32(len(dst.keys))

	l.keys = l.keys[:mid]
	l.values = l.values[:mid]
	l.size = int32(mid)

	dst.nextPageID = l.nextPageID
	l.nextPageID = dst.pageID
}

// MoveAllTo appends this entire leaf's contents onto dst and relinks the
// chain, used when merging an underflowed leaf into its left sibling.
func (l *LeafPage[K]) MoveAllTo(dst *LeafPage[K]) {
	dst.keys = append(dst.keys, l.keys...)
	dst.values = append(dst.values, l.values...)
	dst.size = int32(len(dst.keys))
	dst.nextPageID = l.nextPageID
	l.keys, l.values, l.size = nil, nil, 0
}

// MoveFirstToEndOf redistributes this leaf's first entry onto the end of
// dst (dst is l's left sibling borrowing from l).
func (l *LeafPage[K]) MoveFirstToEndOf(dst *LeafPage[K]) {
	dst.keys = append(dst.keys, l.keys[0])
	dst.values = append(dst.values, l.values[0])
	dst.size++
	l.keys = l.keys[1:]
	l.values = l.values[1:]
	l.size--
}

// MoveLastToFrontOf redistributes this leaf's last entry onto the front of
// dst (dst is l's right sibling borrowing from l).
func (l *LeafPage[K]) MoveLastToFrontOf(dst *LeafPage[K]) {
	n := len(l.keys)
	k, v := l.keys[n-1], l.values[n-1]
	dst.keys = append([]K{k}, dst.keys...)
	dst.values = append([]common.RID{v}, dst.values...)
	dst.size++
	l.keys = l.keys[:n-1]
	l.values = l.values[:n-1]
	l.size--
}

// Encode serializes the leaf into a fixed diskio.PageSize buffer.
func (l *LeafPage[K]) Encode(buf []byte) {
	l.header.encode(buf)
	binary.BigEndian.PutUint32(buf[24:28], uint32(l.nextPageID))

	ks := keySize[K]()
	off := leafHeaderSize
	for i := range l.keys {
		encodeKey(l.keys[i], buf[off:off+ks])
		off += ks
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(l.values[i].PageID))
		binary.BigEndian.PutUint16(buf[off+4:off+6], l.values[i].Slot)
		off += ridSize
	}
}

// Decode populates the leaf from a serialized page buffer.
func (l *LeafPage[K]) Decode(buf []byte) {
	l.header.decode(buf)
	l.nextPageID = common.PageID(binary.BigEndian.Uint32(buf[24:28]))

	ks := keySize[K]()
	n := int(l.size)
	l.keys = make([]K, n)
	l.values = make([]common.RID, n)
	off := leafHeaderSize
	for i := 0; i < n; i++ {
		l.keys[i] = decodeKey[K](buf[off : off+ks])
		off += ks
		pid := common.PageID(binary.BigEndian.Uint32(buf[off : off+4]))
		slot := binary.BigEndian.Uint16(buf[off+4 : off+6])
		l.values[i] = common.RID{PageID: pid, Slot: slot}
		off += ridSize
	}
}
