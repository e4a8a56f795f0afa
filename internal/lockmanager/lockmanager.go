// Package lockmanager implements record-granular two-phase locking: S/X
// mode locks keyed by common.RID, FIFO-fair grant ordering, lock upgrade,
// isolation-level-aware release, and background deadlock detection over a
// wait-for graph. Grounded in
// original_source/src/concurrency/lock_manager.cpp, re-expressed with a
// single manager-wide sync.Cond in place of the original's per-queue
// condition_variable plus global latch, and deckarep/golang-set for the
// wait-for graph adjacency (borrowed from the sametree example's
// dependency set, since the graph bookkeeping is the same shape of
// problem it solves there).
package lockmanager

import (
	"errors"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sourcegraph/conc"

	"github.com/tuannm99/gopherdb/internal/common"
	"github.com/tuannm99/gopherdb/internal/txn"
)

// LockMode is the granted mode of a lock request.
type LockMode int

const (
	Shared LockMode = iota
	Exclusive
)

var (
	ErrTransactionAborted          = errors.New("lockmanager: transaction aborted")
	ErrLockOnShrinking             = errors.New("lockmanager: lock request while shrinking")
	ErrSharedLockOnReadUncommitted = errors.New("lockmanager: shared lock under READ_UNCOMMITTED")
	ErrNotLockedBeforeUpgrade      = errors.New("lockmanager: upgrade requested without holding shared lock")
	ErrUpgradeConflict             = errors.New("lockmanager: another transaction is already upgrading this lock")
	ErrNotLocked                   = errors.New("lockmanager: transaction does not hold a lock on this record")
)

const invalidTxnID txn.ID = 0

type lockRequest struct {
	txnID   txn.ID
	mode    LockMode
	granted bool
}

type lockQueue struct {
	requests  []*lockRequest
	upgrading txn.ID
}

// Manager owns every record's lock queue plus the registry of live
// transactions needed to abort a deadlock-cycle victim out of band.
type Manager struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queues map[common.RID]*lockQueue
	txns   map[txn.ID]*txn.Transaction

	detectorWG   *conc.WaitGroup
	stopDetector chan struct{}
}

func NewManager() *Manager {
	m := &Manager{
		queues: make(map[common.RID]*lockQueue),
		txns:   make(map[txn.ID]*txn.Transaction),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *Manager) registerLocked(t *txn.Transaction) {
	m.txns[t.ID()] = t
}

func (m *Manager) queueLocked(rid common.RID) *lockQueue {
	q, ok := m.queues[rid]
	if !ok {
		q = &lockQueue{upgrading: invalidTxnID}
		m.queues[rid] = q
	}
	return q
}

// tryGrant walks a queue front-to-back, granting every request compatible
// with everything already granted ahead of it, stopping at the first
// request that cannot yet be granted. This preserves FIFO fairness: a
// later, currently-compatible request never jumps ahead of an earlier
// blocked one.
func (m *Manager) tryGrant(q *lockQueue) {
	grantedShared := 0
	grantedExclusive := false
	for _, r := range q.requests {
		if r.granted {
			if r.mode == Shared {
				grantedShared++
			} else {
				grantedExclusive = true
			}
			continue
		}
		var compatible bool
		if r.mode == Shared {
			compatible = !grantedExclusive
		} else {
			compatible = !grantedExclusive && grantedShared == 0
		}
		if !compatible {
			break
		}
		r.granted = true
		if r.mode == Shared {
			grantedShared++
		} else {
			grantedExclusive = true
		}
	}
}

func removeRequest(q *lockQueue, pred func(*lockRequest) bool) {
	out := q.requests[:0]
	for _, r := range q.requests {
		if !pred(r) {
			out = append(out, r)
		}
	}
	q.requests = out
}

// checkValidLocked applies the 2PL/isolation-level preconditions a lock
// request must satisfy, aborting the transaction and returning an error
// when violated (spec.md §4.5).
func (m *Manager) checkValidLocked(t *txn.Transaction, mode LockMode) error {
	if t.State() == txn.Aborted {
		return ErrTransactionAborted
	}
	if t.State() == txn.Shrinking {
		t.SetState(txn.Aborted)
		return ErrLockOnShrinking
	}
	if mode == Shared && t.IsolationLevel() == txn.ReadUncommitted {
		t.SetState(txn.Aborted)
		return ErrSharedLockOnReadUncommitted
	}
	return nil
}

// LockShared acquires a shared lock on rid for t, blocking until granted,
// already aborted, or trivially satisfied because t already holds S or X.
func (m *Manager) LockShared(t *txn.Transaction, rid common.RID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.registerLocked(t)
	if t.HasSharedLock(rid) || t.HasExclusiveLock(rid) {
		return nil
	}
	if err := m.checkValidLocked(t, Shared); err != nil {
		return err
	}

	q := m.queueLocked(rid)
	req := &lockRequest{txnID: t.ID(), mode: Shared}
	q.requests = append(q.requests, req)
	m.tryGrant(q)

	for !req.granted {
		if t.State() == txn.Aborted {
			removeRequest(q, func(r *lockRequest) bool { return r == req })
			m.tryGrant(q)
			m.cond.Broadcast()
			return ErrTransactionAborted
		}
		m.cond.Wait()
		m.tryGrant(q)
	}
	t.AddSharedLock(rid)
	return nil
}

// LockExclusive acquires an exclusive lock on rid for t.
func (m *Manager) LockExclusive(t *txn.Transaction, rid common.RID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.registerLocked(t)
	if t.HasExclusiveLock(rid) {
		return nil
	}
	if err := m.checkValidLocked(t, Exclusive); err != nil {
		return err
	}

	q := m.queueLocked(rid)
	req := &lockRequest{txnID: t.ID(), mode: Exclusive}
	q.requests = append(q.requests, req)
	m.tryGrant(q)

	for !req.granted {
		if t.State() == txn.Aborted {
			removeRequest(q, func(r *lockRequest) bool { return r == req })
			m.tryGrant(q)
			m.cond.Broadcast()
			return ErrTransactionAborted
		}
		m.cond.Wait()
		m.tryGrant(q)
	}
	t.AddExclusiveLock(rid)
	return nil
}

// LockUpgrade converts t's shared lock on rid into an exclusive lock.
// Only one transaction may be upgrading a given queue at a time; a second
// concurrent upgrader is aborted (spec.md §4.5).
func (m *Manager) LockUpgrade(t *txn.Transaction, rid common.RID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.HasExclusiveLock(rid) {
		return nil
	}
	if !t.HasSharedLock(rid) {
		return ErrNotLockedBeforeUpgrade
	}
	if err := m.checkValidLocked(t, Exclusive); err != nil {
		return err
	}

	q := m.queueLocked(rid)
	if q.upgrading != invalidTxnID && q.upgrading != t.ID() {
		t.SetState(txn.Aborted)
		return ErrUpgradeConflict
	}
	q.upgrading = t.ID()

	var req *lockRequest
	for _, r := range q.requests {
		if r.txnID == t.ID() && r.mode == Shared {
			req = r
			break
		}
	}
	if req == nil {
		q.upgrading = invalidTxnID
		return ErrNotLockedBeforeUpgrade
	}
	req.mode = Exclusive
	req.granted = false
	// Move the upgrading request to the queue tail so it competes for the
	// lock behind every request already waiting, preserving FIFO fairness
	// instead of letting it win a rescan from its old, earlier position.
	removeRequest(q, func(r *lockRequest) bool { return r == req })
	q.requests = append(q.requests, req)
	m.tryGrant(q)

	for !req.granted {
		if t.State() == txn.Aborted {
			q.upgrading = invalidTxnID
			removeRequest(q, func(r *lockRequest) bool { return r == req })
			m.tryGrant(q)
			m.cond.Broadcast()
			return ErrTransactionAborted
		}
		m.cond.Wait()
		m.tryGrant(q)
	}
	q.upgrading = invalidTxnID
	t.RemoveSharedLock(rid)
	t.AddExclusiveLock(rid)
	return nil
}

// Unlock releases t's lock on rid and, outside READ_COMMITTED's shared-lock
// exemption, transitions a GROWING transaction to SHRINKING.
func (m *Manager) Unlock(t *txn.Transaction, rid common.RID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[rid]
	if !ok {
		return ErrNotLocked
	}
	wasExclusive := t.HasExclusiveLock(rid)
	wasShared := t.HasSharedLock(rid)
	if !wasExclusive && !wasShared {
		return ErrNotLocked
	}

	removeRequest(q, func(r *lockRequest) bool { return r.txnID == t.ID() })
	if wasExclusive {
		t.RemoveExclusiveLock(rid)
	} else {
		t.RemoveSharedLock(rid)
	}

	if t.State() == txn.Growing {
		releasesShrinksPhase := true
		if wasShared && t.IsolationLevel() == txn.ReadCommitted {
			// READ_COMMITTED drops its read locks early without ending the
			// growing phase.
			releasesShrinksPhase = false
		}
		if releasesShrinksPhase {
			t.SetState(txn.Shrinking)
		}
	}

	m.tryGrant(q)
	m.cond.Broadcast()
	return nil
}

// waitsForGraphLocked builds the wait-for graph: an edge from a blocked
// request's transaction to every transaction already granted the
// conflicting lock ahead of it.
func (m *Manager) waitsForGraphLocked() map[txn.ID]mapset.Set[txn.ID] {
	graph := make(map[txn.ID]mapset.Set[txn.ID])
	edge := func(from, to txn.ID) {
		if from == to {
			return
		}
		s, ok := graph[from]
		if !ok {
			s = mapset.NewSet[txn.ID]()
			graph[from] = s
		}
		s.Add(to)
		if _, ok := graph[to]; !ok {
			graph[to] = mapset.NewSet[txn.ID]()
		}
	}
	for _, q := range m.queues {
		var granted []txn.ID
		for _, r := range q.requests {
			if r.granted {
				granted = append(granted, r.txnID)
			}
		}
		for _, r := range q.requests {
			if r.granted {
				continue
			}
			for _, g := range granted {
				edge(r.txnID, g)
			}
		}
	}
	return graph
}

// findCycle runs a deterministic DFS (nodes and neighbors visited in
// ascending id order so repeated runs over the same graph pick the same
// victim) and returns the lowest transaction id participating in the
// first cycle found.
func findCycle(graph map[txn.ID]mapset.Set[txn.ID]) (txn.ID, bool) {
	nodes := make([]txn.ID, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[txn.ID]int, len(nodes))
	var stack []txn.ID

	var dfs func(n txn.ID) (txn.ID, bool)
	dfs = func(n txn.ID) (txn.ID, bool) {
		color[n] = gray
		stack = append(stack, n)

		neighbors := graph[n].ToSlice()
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i] < neighbors[j] })
		for _, nb := range neighbors {
			switch color[nb] {
			case white:
				if victim, found := dfs(nb); found {
					return victim, true
				}
			case gray:
				victim := nb
				for i := len(stack) - 1; stack[i] != nb; i-- {
					if stack[i] < victim {
						victim = stack[i]
					}
				}
				if nb < victim {
					victim = nb
				}
				return victim, true
			}
		}

		stack = stack[:len(stack)-1]
		color[n] = black
		return 0, false
	}

	for _, n := range nodes {
		if color[n] == white {
			if victim, found := dfs(n); found {
				return victim, true
			}
		}
	}
	return 0, false
}

// runCycleDetectionOnce builds the wait-for graph and aborts the
// deterministic lowest-id victim of every cycle found, repeating until the
// graph is acyclic.
func (m *Manager) runCycleDetectionOnce() {
	m.mu.Lock()
	defer m.mu.Unlock()

	graph := m.waitsForGraphLocked()
	for {
		victim, found := findCycle(graph)
		if !found {
			return
		}
		if t, ok := m.txns[victim]; ok {
			t.SetState(txn.Aborted)
		}
		m.cond.Broadcast()
		// Dropping the victim's queued request happens when its blocked
		// LockShared/LockExclusive/LockUpgrade call wakes, observes
		// ABORTED, and removes itself, which cannot happen while this scan
		// holds the mutex; so the victim is taken out of this scan's graph
		// before re-scanning for further cycles.
		delete(graph, victim)
		for _, s := range graph {
			s.Remove(victim)
		}
		delete(m.txns, victim)
	}
}

// StartDeadlockDetector launches the periodic wait-for-graph scan as a
// panic-safe background goroutine.
func (m *Manager) StartDeadlockDetector(interval time.Duration) {
	m.stopDetector = make(chan struct{})
	m.detectorWG = conc.NewWaitGroup()
	m.detectorWG.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopDetector:
				return
			case <-ticker.C:
				m.runCycleDetectionOnce()
			}
		}
	})
}

// StopDeadlockDetector stops the background scan and waits for it to exit,
// re-panicking if the detector goroutine itself panicked.
func (m *Manager) StopDeadlockDetector() {
	if m.stopDetector == nil {
		return
	}
	close(m.stopDetector)
	m.detectorWG.Wait()
	m.stopDetector = nil
}
