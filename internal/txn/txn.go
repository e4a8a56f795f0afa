// Package txn defines the transaction context shared by the lock manager
// and the B+Tree: isolation level, state machine, and the per-transaction
// lock sets spec.md §4.5 requires for release-on-commit/abort. Grounded in
// original_source/src/include/concurrency/transaction.h, re-expressed with
// Go sets instead of manually managed unordered_set pointers.
package txn

import (
	"sync"

	"github.com/deckarep/golang-set/v2"
	"go.uber.org/atomic"

	"github.com/tuannm99/gopherdb/internal/common"
)

// IsolationLevel controls which locks LockShared acquires and when S-locks
// are released (spec.md §4.5).
type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
)

func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "READ_UNCOMMITTED"
	case ReadCommitted:
		return "READ_COMMITTED"
	case RepeatableRead:
		return "REPEATABLE_READ"
	default:
		return "UNKNOWN"
	}
}

// State is the 2PL state machine: GROWING until the first lock release,
// then SHRINKING, terminating in COMMITTED or ABORTED.
type State int

const (
	Growing State = iota
	Shrinking
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Growing:
		return "GROWING"
	case Shrinking:
		return "SHRINKING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// ID uniquely names a transaction for its lifetime.
type ID int64

var nextID atomic.Int64

// NextID hands out a fresh, monotonically increasing transaction id.
func NextID() ID {
	return ID(nextID.Inc())
}

// Transaction tracks one client session's lock ownership and 2PL state.
// A single mutex guards the mutable fields; the lock manager and the
// caller's goroutine are the only expected concurrent accessors.
type Transaction struct {
	mu sync.Mutex

	id        ID
	isolation IsolationLevel
	state     State

	sharedLocks    mapset.Set[common.RID]
	exclusiveLocks mapset.Set[common.RID]

	// latchedPages records every B+Tree page this transaction's crabbing
	// walk write-latches during one Tree.Insert/Tree.Remove call, in
	// acquisition order; the tree drains it when that call returns.
	latchedPages []common.PageID
	// deletedPages holds pages this transaction's B+Tree removals have
	// merged away; they stay allocated until Tree.FinalizeDeletes drains
	// this list and deletes them from the buffer pool.
	deletedPages []common.PageID
}

func New(id ID, isolation IsolationLevel) *Transaction {
	return &Transaction{
		id:             id,
		isolation:      isolation,
		state:          Growing,
		sharedLocks:    mapset.NewSet[common.RID](),
		exclusiveLocks: mapset.NewSet[common.RID](),
	}
}

func (t *Transaction) ID() ID                      { return t.id }
func (t *Transaction) IsolationLevel() IsolationLevel { return t.isolation }

func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

func (t *Transaction) AddSharedLock(rid common.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sharedLocks.Add(rid)
}

func (t *Transaction) AddExclusiveLock(rid common.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.exclusiveLocks.Add(rid)
}

func (t *Transaction) RemoveSharedLock(rid common.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sharedLocks.Remove(rid)
}

func (t *Transaction) RemoveExclusiveLock(rid common.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.exclusiveLocks.Remove(rid)
}

func (t *Transaction) HasSharedLock(rid common.RID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sharedLocks.Contains(rid)
}

func (t *Transaction) HasExclusiveLock(rid common.RID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exclusiveLocks.Contains(rid)
}

// SharedLockSet returns a snapshot of RIDs this transaction holds in S
// mode.
func (t *Transaction) SharedLockSet() []common.RID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sharedLocks.ToSlice()
}

func (t *Transaction) ExclusiveLockSet() []common.RID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exclusiveLocks.ToSlice()
}

// PushLatchedPage appends a page this transaction's crabbing walk has
// write-latched to the latched-page stack.
func (t *Transaction) PushLatchedPage(id common.PageID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latchedPages = append(t.latchedPages, id)
}

// DrainLatchedPages returns and clears the latched-page stack.
func (t *Transaction) DrainLatchedPages() []common.PageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	pages := t.latchedPages
	t.latchedPages = nil
	return pages
}

func (t *Transaction) AddDeletedPage(id common.PageID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deletedPages = append(t.deletedPages, id)
}

func (t *Transaction) DrainDeletedPages() []common.PageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	pages := t.deletedPages
	t.deletedPages = nil
	return pages
}
