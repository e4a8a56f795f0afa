// tree.go implements the crabbing-based Insert/Remove/GetValue walks,
// grounded in original_source/src/storage/index/b_plus_tree.cpp. The
// original's optimistic-then-pessimistic two-pass search is collapsed
// into a single pessimistic (write-latch-from-root) pass here: simpler,
// strictly more conservative, and still satisfies every safety property
// the optimistic fast path exists only to avoid contending on.
package btree

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/tuannm99/gopherdb/internal/bufferpool"
	"github.com/tuannm99/gopherdb/internal/common"
	"github.com/tuannm99/gopherdb/internal/txn"
)

// Tree is a clustered B+Tree index over key type K, mapping each key to
// the common.RID of its row in a heap table.
type Tree[K Key] struct {
	pool *bufferpool.Pool

	// rootMu serializes operations that may change the root page id
	// (the first insert, or a split/merge that grows/shrinks the tree's
	// height). It is held for the duration of any walk that has not yet
	// proven the root itself is safe from a structural change.
	rootMu sync.Mutex
	root   common.PageID

	// leafMaxSize and internalMaxSize bound a freshly allocated page's
	// entry count before it splits. Zero means "derive from page
	// capacity" (leafMaxSize[K]()/internalMaxSize[K]()).
	leafMaxSize     int32
	internalMaxSize int32
}

// NewTree builds an empty tree over pool using the page-capacity-derived
// leaf/internal node sizes.
func NewTree[K Key](pool *bufferpool.Pool) *Tree[K] {
	return NewTreeWithSize[K](pool, 0, 0)
}

// NewTreeWithSize builds an empty tree over pool with explicit
// leafMaxSize/internalMaxSize overrides (0 keeps the page-capacity
// default for that dimension), per spec.md §4.4's constructor
// parameters — primarily useful for tests that want to force
// splits/merges without inserting thousands of keys.
func NewTreeWithSize[K Key](pool *bufferpool.Pool, leafMaxSize, internalMaxSize int32) *Tree[K] {
	return &Tree[K]{
		pool:            pool,
		root:            common.InvalidPageID,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
	}
}

// IsEmpty reports whether the tree has no root page yet.
func (t *Tree[K]) IsEmpty() bool {
	t.rootMu.Lock()
	defer t.rootMu.Unlock()
	return t.root == common.InvalidPageID
}

func (t *Tree[K]) RootPageID() common.PageID {
	t.rootMu.Lock()
	defer t.rootMu.Unlock()
	return t.root
}

// PersistRoot writes the current root page id into the tree's header
// page, so it survives a restart. Grounded on catalog persistence needing
// a durable handle back into the index (SPEC_FULL.md §4.7).
func (t *Tree[K]) PersistRoot() error {
	t.rootMu.Lock()
	root := t.root
	t.rootMu.Unlock()

	frame, err := t.pool.Fetch(common.HeaderPageID)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(frame.Data[0:4], uint32(root))
	ok := t.pool.Unpin(common.HeaderPageID, true)
	if !ok {
		return fmt.Errorf("btree: failed to unpin header page")
	}
	return nil
}

// LoadRoot reads a previously persisted root page id back from the header
// page, used when reopening an existing index.
func (t *Tree[K]) LoadRoot() error {
	frame, err := t.pool.Fetch(common.HeaderPageID)
	if err != nil {
		return err
	}
	root := common.PageID(binary.BigEndian.Uint32(frame.Data[0:4]))
	t.pool.Unpin(common.HeaderPageID, false)

	t.rootMu.Lock()
	t.root = root
	t.rootMu.Unlock()
	return nil
}

// deletePage reclaims pageID. With a transaction, the delete is deferred
// onto tx's deletion set rather than applied immediately, so a crabbing
// walk that unpins a merged-away page mid-operation doesn't reclaim it
// until the transaction that performed the merge actually commits; call
// FinalizeDeletes once it does. Without a transaction the page is
// reclaimed immediately, which is what every caller passing a nil
// transaction (such as the tests) gets.
func (t *Tree[K]) deletePage(pageID common.PageID, tx *txn.Transaction) error {
	if tx != nil {
		tx.AddDeletedPage(pageID)
		return nil
	}
	_, err := t.pool.Delete(pageID)
	return err
}

// FinalizeDeletes reclaims every page tx accumulated via deletePage during
// its lifetime (one or more Remove calls), draining its deletion set.
// Callers commit a transaction by calling this once locks are released.
func (t *Tree[K]) FinalizeDeletes(tx *txn.Transaction) error {
	for _, pageID := range tx.DrainDeletedPages() {
		if _, err := t.pool.Delete(pageID); err != nil {
			return err
		}
	}
	return nil
}

type pathEntry struct {
	pageID common.PageID
	frame  *bufferpool.Frame
}

func (t *Tree[K]) unlatchUnpin(e pathEntry, dirty bool) {
	e.frame.Latch.WUnlock()
	t.pool.Unpin(e.pageID, dirty)
}

func releaseAllButLast(path []pathEntry, release func(pathEntry)) []pathEntry {
	if len(path) <= 1 {
		return path
	}
	for _, e := range path[:len(path)-1] {
		release(e)
	}
	return path[len(path)-1:]
}

func releaseAll(path []pathEntry, release func(pathEntry)) {
	for _, e := range path {
		release(e)
	}
}

// GetValue performs a read-only latch-crabbing descent: a read latch is
// taken on each page, the parent's read latch is dropped as soon as the
// child is latched, since a read never needs to backtrack.
func (t *Tree[K]) GetValue(key K) (common.RID, bool, error) {
	t.rootMu.Lock()
	root := t.root
	t.rootMu.Unlock()
	if root == common.InvalidPageID {
		return common.RID{}, false, nil
	}

	curID := root
	var prev *bufferpool.Frame
	var prevID common.PageID
	for {
		frame, err := t.pool.Fetch(curID)
		if err != nil {
			return common.RID{}, false, err
		}
		frame.Latch.RLock()
		if prev != nil {
			prev.Latch.RUnlock()
			t.pool.Unpin(prevID, false)
		}

		if pageTypeOf(frame.Data[:]) == leafPageT {
			leaf := &LeafPage[K]{}
			leaf.Decode(frame.Data[:])
			rid, found := leaf.Lookup(key)
			frame.Latch.RUnlock()
			t.pool.Unpin(curID, false)
			return rid, found, nil
		}

		internal := &InternalPage[K]{}
		internal.Decode(frame.Data[:])
		next := internal.Lookup(key)
		prev, prevID = frame, curID
		curID = next
	}
}

// Insert adds key -> rid. Returns false without modifying the tree if key
// is already present. tx may be nil (no transactional bookkeeping); when
// non-nil, every page write-latched during the crabbing walk is recorded
// on tx's latched-page stack for the duration of the call, mirroring the
// ancestor-release discipline the walk already performs internally.
func (t *Tree[K]) Insert(key K, rid common.RID, tx *txn.Transaction) (bool, error) {
	t.rootMu.Lock()
	rootHeld := true
	releaseRoot := func() {
		if rootHeld {
			t.rootMu.Unlock()
			rootHeld = false
		}
	}
	defer releaseRoot()
	if tx != nil {
		defer tx.DrainLatchedPages()
	}

	if t.root == common.InvalidPageID {
		pageID, frame, err := t.pool.NewPage()
		if err != nil {
			return false, err
		}
		leaf := NewLeaf[K](pageID, common.InvalidPageID, t.leafMaxSize)
		leaf.Insert(key, rid)
		leaf.Encode(frame.Data[:])
		t.pool.Unpin(pageID, true)
		t.root = pageID
		return true, nil
	}

	var path []pathEntry
	release := func(e pathEntry) { t.unlatchUnpin(e, false) }

	curID := t.root
	for {
		frame, err := t.pool.Fetch(curID)
		if err != nil {
			releaseAll(path, release)
			return false, err
		}
		frame.Latch.WLock()
		if tx != nil {
			tx.PushLatchedPage(curID)
		}
		path = append(path, pathEntry{pageID: curID, frame: frame})

		if pageTypeOf(frame.Data[:]) == leafPageT {
			leaf := &LeafPage[K]{}
			leaf.Decode(frame.Data[:])

			if leaf.Size() < leaf.MaxSize() {
				path = releaseAllButLast(path, release)
				releaseRoot()
			}

			if !leaf.Insert(key, rid) {
				leaf.Encode(frame.Data[:])
				releaseAll(path, release)
				return false, nil
			}

			if leaf.Size() <= leaf.MaxSize() {
				leaf.Encode(frame.Data[:])
				releaseAll(path, release)
				return true, nil
			}

			if err := t.splitLeafAndInsertParent(leaf, frame, path, releaseRoot); err != nil {
				return false, err
			}
			return true, nil
		}

		internal := &InternalPage[K]{}
		internal.Decode(frame.Data[:])
		if internal.Size() < internal.MaxSize() {
			path = releaseAllButLast(path, release)
			releaseRoot()
		}
		curID = internal.Lookup(key)
	}
}

// splitLeafAndInsertParent handles a leaf overflow: the caller still holds
// write latches/pins on the whole ancestor path in path (leaf is
// path[len(path)-1]). The new sibling is linked in and its separator key
// is pushed into the parent, recursing upward through split if the parent
// itself overflows. releaseRoot is the single shared closure that drops
// t.rootMu exactly once, whenever the structural change is known to have
// stopped propagating (or the root itself just changed).
func (t *Tree[K]) splitLeafAndInsertParent(leaf *LeafPage[K], frame *bufferpool.Frame, path []pathEntry, releaseRoot func()) error {
	siblingID, siblingFrame, err := t.pool.NewPage()
	if err != nil {
		return err
	}
	sibling := NewLeaf[K](siblingID, leaf.ParentPageID(), t.leafMaxSize)
	leaf.MoveHalfTo(sibling)

	leaf.Encode(frame.Data[:])
	sibling.Encode(siblingFrame.Data[:])
	t.pool.Unpin(siblingID, true)

	splitKey := sibling.KeyAt(0)
	return t.insertIntoParent(leaf.PageID(), splitKey, siblingID, path, releaseRoot)
}

// insertIntoParent attaches (splitKey, rightChild) into the parent of
// leftChild. path holds the write-latched ancestor chain down to
// leftChild (exclusive of leftChild's own entry having been handled by
// the caller, inclusive here since leftChild is path's last entry).
func (t *Tree[K]) insertIntoParent(leftChild common.PageID, splitKey K, rightChild common.PageID, path []pathEntry, releaseRoot func()) error {
	// Drop leftChild's own entry; it has already been persisted.
	leftEntry := path[len(path)-1]
	path = path[:len(path)-1]
	t.unlatchUnpin(leftEntry, true)

	if len(path) == 0 {
		// leftChild was the root: grow the tree by one level.
		newRootID, newRootFrame, err := t.pool.NewPage()
		if err != nil {
			return err
		}
		newRoot := NewInternal[K](newRootID, common.InvalidPageID, t.internalMaxSize)
		newRoot.Init(leftChild, rightChild, splitKey)
		newRoot.Encode(newRootFrame.Data[:])
		t.pool.Unpin(newRootID, true)

		if err := t.reparent(leftChild, newRootID); err != nil {
			return err
		}
		if err := t.reparent(rightChild, newRootID); err != nil {
			return err
		}
		t.root = newRootID
		releaseRoot()
		return nil
	}

	parentEntry := path[len(path)-1]
	parent := &InternalPage[K]{}
	parent.Decode(parentEntry.frame.Data[:])
	parent.InsertAfter(leftChild, splitKey, rightChild)

	if err := t.reparent(rightChild, parentEntry.pageID); err != nil {
		return err
	}

	if parent.Size() <= parent.MaxSize() {
		parent.Encode(parentEntry.frame.Data[:])
		releaseAll(path, func(e pathEntry) { t.unlatchUnpin(e, true) })
		releaseRoot()
		return nil
	}

	// Parent overflowed: split it too and recurse upward.
	return t.splitInternalAndInsertParent(parent, parentEntry.frame, path, releaseRoot)
}

func (t *Tree[K]) splitInternalAndInsertParent(node *InternalPage[K], frame *bufferpool.Frame, path []pathEntry, releaseRoot func()) error {
	siblingID, siblingFrame, err := t.pool.NewPage()
	if err != nil {
		return err
	}
	sibling := NewInternal[K](siblingID, node.ParentPageID(), t.internalMaxSize)
	node.MoveHalfTo(sibling)
	middleKey := sibling.KeyAt(0)

	node.Encode(frame.Data[:])
	sibling.Encode(siblingFrame.Data[:])
	t.pool.Unpin(siblingID, true)

	for _, c := range sibling.children {
		if err := t.reparent(c, siblingID); err != nil {
			return err
		}
	}

	return t.insertIntoParent(node.PageID(), middleKey, siblingID, path, releaseRoot)
}

// reparent updates childID's stored parent pointer, used whenever a page
// is relinked under a new parent (splits, merges, root growth/shrink).
func (t *Tree[K]) reparent(childID, parentID common.PageID) error {
	frame, err := t.pool.Fetch(childID)
	if err != nil {
		return err
	}
	frame.Latch.WLock()
	switch pageTypeOf(frame.Data[:]) {
	case leafPageT:
		leaf := &LeafPage[K]{}
		leaf.Decode(frame.Data[:])
		leaf.SetParentPageID(parentID)
		leaf.Encode(frame.Data[:])
	case internalPageT:
		n := &InternalPage[K]{}
		n.Decode(frame.Data[:])
		n.SetParentPageID(parentID)
		n.Encode(frame.Data[:])
	}
	frame.Latch.WUnlock()
	t.pool.Unpin(childID, true)
	return nil
}
