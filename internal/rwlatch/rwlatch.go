// Package rwlatch implements a writer-preferring reader-writer latch used
// to guard a single buffer-pool page's data and metadata during B+Tree
// crabbing. It is distinct from a transactional Lock (internal/lockmanager):
// a latch is short-lived and non-transactional.
package rwlatch

import (
	"math"
	"sync"
)

const maxReaders = math.MaxUint32

// Latch is a writer-preferring reader-writer lock: a waiting writer blocks
// new readers from entering, so a steady stream of readers cannot starve a
// writer. Zero value is ready to use.
type Latch struct {
	mu            sync.Mutex
	readerWaiters sync.Cond
	writerWaiters sync.Cond
	condsInit     sync.Once

	readerCount   uint32
	writerEntered bool
}

func (l *Latch) initConds() {
	l.condsInit.Do(func() {
		l.readerWaiters.L = &l.mu
		l.writerWaiters.L = &l.mu
	})
}

// WLock acquires a write latch. Only one writer may be entered at a time,
// and it waits for every already-entered reader to leave.
func (l *Latch) WLock() {
	l.initConds()
	l.mu.Lock()
	defer l.mu.Unlock()

	// At most one writer may be "entered"; a second writer waits on the
	// same condition readers do, so WUnlock's broadcast wakes it too.
	for l.writerEntered {
		l.readerWaiters.Wait()
	}
	l.writerEntered = true
	for l.readerCount > 0 {
		l.writerWaiters.Wait()
	}
}

// WUnlock releases a write latch and wakes every waiting reader and writer;
// they compete for entry via the scheduler.
func (l *Latch) WUnlock() {
	l.mu.Lock()
	l.writerEntered = false
	l.mu.Unlock()
	l.readerWaiters.Broadcast()
}

// RLock acquires a read latch. Blocked while a writer is entered or the
// reader count is saturated.
func (l *Latch) RLock() {
	l.initConds()
	l.mu.Lock()
	defer l.mu.Unlock()

	for l.writerEntered || l.readerCount == maxReaders {
		l.readerWaiters.Wait()
	}
	l.readerCount++
}

// RUnlock releases a read latch, waking a blocked writer once the reader
// count reaches zero, or a blocked reader once the count drops below the
// saturation limit.
func (l *Latch) RUnlock() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.readerCount--
	if l.writerEntered {
		if l.readerCount == 0 {
			l.writerWaiters.Signal()
		}
		return
	}
	if l.readerCount == maxReaders-1 {
		l.readerWaiters.Signal()
	}
}
