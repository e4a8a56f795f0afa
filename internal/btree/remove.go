// remove.go implements crabbing delete with borrow/merge rebalancing,
// grounded in original_source/src/storage/index/b_plus_tree.cpp's
// Remove/CoalesceOrRedistribute/Coalesce/Redistribute/AdjustRoot.
package btree

import (
	"github.com/tuannm99/gopherdb/internal/bufferpool"
	"github.com/tuannm99/gopherdb/internal/common"
	"github.com/tuannm99/gopherdb/internal/txn"
)

// Remove deletes key, reporting whether it was present. tx may be nil (no
// transactional bookkeeping); when non-nil, every page write-latched
// during the crabbing walk is recorded on tx's latched-page stack for the
// duration of the call, and any page this delete merges away is deferred
// onto tx's deletion set instead of reclaimed immediately — see
// deletePage and FinalizeDeletes.
func (t *Tree[K]) Remove(key K, tx *txn.Transaction) (bool, error) {
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
		return false, nil
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

			isRoot := curID == t.root
			if !isRoot && leaf.Size() > leaf.MinSize() {
				path = releaseAllButLast(path, release)
				releaseRoot()
			}

			if !leaf.Remove(key) {
				leaf.Encode(frame.Data[:])
				releaseAll(path, release)
				return false, nil
			}

			if isRoot || leaf.Size() >= leaf.MinSize() {
				leaf.Encode(frame.Data[:])
				releaseAll(path, release)
				return true, nil
			}

			if err := t.coalesceOrRedistributeLeaf(leaf, frame, path, releaseRoot, tx); err != nil {
				return false, err
			}
			return true, nil
		}

		internal := &InternalPage[K]{}
		internal.Decode(frame.Data[:])
		if curID != t.root && internal.Size() > internal.MinSize() {
			path = releaseAllButLast(path, release)
			releaseRoot()
		}
		curID = internal.Lookup(key)
	}
}

// coalesceOrRedistributeLeaf rebalances an underflowed leaf by borrowing
// from a sibling if one has spare entries, or merging into one otherwise.
func (t *Tree[K]) coalesceOrRedistributeLeaf(leaf *LeafPage[K], frame *bufferpool.Frame, path []pathEntry, releaseRoot func(), tx *txn.Transaction) error {
	parentEntry := path[len(path)-2]
	parent := &InternalPage[K]{}
	parent.Decode(parentEntry.frame.Data[:])
	idx := parent.ChildIndex(leaf.PageID())

	if idx > 0 {
		leftID := parent.ChildAt(idx - 1)
		leftFrame, err := t.pool.Fetch(leftID)
		if err != nil {
			return err
		}
		leftFrame.Latch.WLock()
		left := &LeafPage[K]{}
		left.Decode(leftFrame.Data[:])

		if left.Size() > left.MinSize() {
			left.MoveLastToFrontOf(leaf)
			parent.SetKeyAt(idx, leaf.KeyAt(0))
			left.Encode(leftFrame.Data[:])
			leaf.Encode(frame.Data[:])
			parent.Encode(parentEntry.frame.Data[:])
			leftFrame.Latch.WUnlock()
			t.pool.Unpin(leftID, true)
			releaseAll(path, func(e pathEntry) { t.unlatchUnpin(e, true) })
			releaseRoot()
			return nil
		}

		// Merge leaf into its left sibling.
		leaf.MoveAllTo(left)
		left.Encode(leftFrame.Data[:])
		leftFrame.Latch.WUnlock()
		t.pool.Unpin(leftID, true)

		frame.Latch.WUnlock()
		t.pool.Unpin(leaf.PageID(), false)
		if err := t.deletePage(leaf.PageID(), tx); err != nil {
			return err
		}

		remaining := path[:len(path)-1]
		return t.deleteParentEntry(idx, remaining, releaseRoot, tx)
	}

	rightID := parent.ChildAt(idx + 1)
	rightFrame, err := t.pool.Fetch(rightID)
	if err != nil {
		return err
	}
	rightFrame.Latch.WLock()
	right := &LeafPage[K]{}
	right.Decode(rightFrame.Data[:])

	if right.Size() > right.MinSize() {
		right.MoveFirstToEndOf(leaf)
		parent.SetKeyAt(idx+1, right.KeyAt(0))
		right.Encode(rightFrame.Data[:])
		leaf.Encode(frame.Data[:])
		parent.Encode(parentEntry.frame.Data[:])
		rightFrame.Latch.WUnlock()
		t.pool.Unpin(rightID, true)
		releaseAll(path, func(e pathEntry) { t.unlatchUnpin(e, true) })
		releaseRoot()
		return nil
	}

	// Merge right sibling into leaf.
	right.MoveAllTo(leaf)
	leaf.Encode(frame.Data[:])
	rightFrame.Latch.WUnlock()
	t.pool.Unpin(rightID, false)
	if err := t.deletePage(rightID, tx); err != nil {
		return err
	}

	frame.Latch.WUnlock()
	t.pool.Unpin(leaf.PageID(), true)

	remaining := path[:len(path)-1]
	return t.deleteParentEntry(idx+1, remaining, releaseRoot, tx)
}

// deleteParentEntry removes the separator at index idx from the parent
// (path's last entry), then, if that leaves the parent underflowed,
// recurses the same borrow/merge decision one level up.
func (t *Tree[K]) deleteParentEntry(idx int, path []pathEntry, releaseRoot func(), tx *txn.Transaction) error {
	parentEntry := path[len(path)-1]
	parent := &InternalPage[K]{}
	parent.Decode(parentEntry.frame.Data[:])
	parent.Remove(idx)

	isRoot := len(path) == 1
	if isRoot {
		if parent.Size() == 1 {
			// Root internal node collapsed to a single child: that child
			// becomes the new root.
			onlyChild := parent.ChildAt(0)
			if err := t.reparentRootChild(onlyChild); err != nil {
				return err
			}
			t.root = onlyChild
			parentEntry.frame.Latch.WUnlock()
			t.pool.Unpin(parentEntry.pageID, false)
			if err := t.deletePage(parentEntry.pageID, tx); err != nil {
				return err
			}
			releaseRoot()
			return nil
		}
		parent.Encode(parentEntry.frame.Data[:])
		releaseAll(path, func(e pathEntry) { t.unlatchUnpin(e, true) })
		releaseRoot()
		return nil
	}

	if parent.Size() >= parent.MinSize() {
		parent.Encode(parentEntry.frame.Data[:])
		releaseAll(path, func(e pathEntry) { t.unlatchUnpin(e, true) })
		releaseRoot()
		return nil
	}

	parent.Encode(parentEntry.frame.Data[:])
	return t.coalesceOrRedistributeInternal(parent, parentEntry.frame, path, releaseRoot, tx)
}

func (t *Tree[K]) coalesceOrRedistributeInternal(node *InternalPage[K], frame *bufferpool.Frame, path []pathEntry, releaseRoot func(), tx *txn.Transaction) error {
	grandparentEntry := path[len(path)-2]
	grandparent := &InternalPage[K]{}
	grandparent.Decode(grandparentEntry.frame.Data[:])
	idx := grandparent.ChildIndex(node.PageID())

	if idx > 0 {
		leftID := grandparent.ChildAt(idx - 1)
		leftFrame, err := t.pool.Fetch(leftID)
		if err != nil {
			return err
		}
		leftFrame.Latch.WLock()
		left := &InternalPage[K]{}
		left.Decode(leftFrame.Data[:])

		if left.Size() > left.MinSize() {
			middleKey := grandparent.KeyAt(idx)
			newSeparator := left.KeyAt(left.Size() - 1)
			left.MoveLastToFrontOf(node, middleKey)
			grandparent.SetKeyAt(idx, newSeparator)
			if err := t.reparent(node.ChildAt(0), node.PageID()); err != nil {
				return err
			}
			left.Encode(leftFrame.Data[:])
			node.Encode(frame.Data[:])
			grandparent.Encode(grandparentEntry.frame.Data[:])
			leftFrame.Latch.WUnlock()
			t.pool.Unpin(leftID, true)
			releaseAll(path, func(e pathEntry) { t.unlatchUnpin(e, true) })
			releaseRoot()
			return nil
		}

		middleKey := grandparent.KeyAt(idx)
		for _, c := range node.children {
			if err := t.reparent(c, leftID); err != nil {
				return err
			}
		}
		node.MoveAllTo(left, middleKey)
		left.Encode(leftFrame.Data[:])
		leftFrame.Latch.WUnlock()
		t.pool.Unpin(leftID, true)

		frame.Latch.WUnlock()
		t.pool.Unpin(node.PageID(), false)
		if err := t.deletePage(node.PageID(), tx); err != nil {
			return err
		}

		remaining := path[:len(path)-1]
		return t.deleteParentEntry(idx, remaining, releaseRoot, tx)
	}

	rightID := grandparent.ChildAt(idx + 1)
	rightFrame, err := t.pool.Fetch(rightID)
	if err != nil {
		return err
	}
	rightFrame.Latch.WLock()
	right := &InternalPage[K]{}
	right.Decode(rightFrame.Data[:])

	if right.Size() > right.MinSize() {
		middleKey := grandparent.KeyAt(idx + 1)
		right.MoveFirstToEndOf(node, middleKey)
		grandparent.SetKeyAt(idx+1, right.KeyAt(0))
		if err := t.reparent(node.ChildAt(node.Size()-1), node.PageID()); err != nil {
			return err
		}
		right.Encode(rightFrame.Data[:])
		node.Encode(frame.Data[:])
		grandparent.Encode(grandparentEntry.frame.Data[:])
		rightFrame.Latch.WUnlock()
		t.pool.Unpin(rightID, true)
		releaseAll(path, func(e pathEntry) { t.unlatchUnpin(e, true) })
		releaseRoot()
		return nil
	}

	middleKey := grandparent.KeyAt(idx + 1)
	for _, c := range right.children {
		if err := t.reparent(c, node.PageID()); err != nil {
			return err
		}
	}
	right.MoveAllTo(node, middleKey)
	node.Encode(frame.Data[:])
	rightFrame.Latch.WUnlock()
	t.pool.Unpin(rightID, false)
	if err := t.deletePage(rightID, tx); err != nil {
		return err
	}

	frame.Latch.WUnlock()
	t.pool.Unpin(node.PageID(), true)

	remaining := path[:len(path)-1]
	return t.deleteParentEntry(idx+1, remaining, releaseRoot, tx)
}

// reparentRootChild clears a new root's stored parent pointer (it has
// none, by definition).
func (t *Tree[K]) reparentRootChild(childID common.PageID) error {
	return t.reparent(childID, common.InvalidPageID)
}
