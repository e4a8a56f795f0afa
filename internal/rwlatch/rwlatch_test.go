package rwlatch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLatch_MultipleReadersConcurrent(t *testing.T) {
	var l Latch
	var inFlight atomic.Int32
	var maxSeen atomic.Int32

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.RLock()
			defer l.RUnlock()
			n := inFlight.Add(1)
			for {
				cur := maxSeen.Load()
				if n <= cur || maxSeen.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
		}()
	}
	wg.Wait()
	require.Greater(t, maxSeen.Load(), int32(1), "readers should overlap")
}

func TestLatch_WriterExclusive(t *testing.T) {
	var l Latch
	var active atomic.Int32
	var sawOverlap atomic.Bool

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.WLock()
			defer l.WUnlock()
			if active.Add(1) != 1 {
				sawOverlap.Store(true)
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()
	require.False(t, sawOverlap.Load(), "writers must be mutually exclusive")
}

func TestLatch_WriterPreference(t *testing.T) {
	var l Latch
	l.RLock() // hold one reader so a writer must queue

	writerDone := make(chan struct{})
	go func() {
		l.WLock()
		close(writerDone)
		l.WUnlock()
	}()

	// Give the writer time to register as waiting.
	time.Sleep(20 * time.Millisecond)

	readerBlocked := make(chan struct{})
	go func() {
		l.RLock()
		close(readerBlocked)
		l.RUnlock()
	}()

	select {
	case <-readerBlocked:
		t.Fatal("new reader must not enter while a writer is waiting")
	case <-time.After(20 * time.Millisecond):
	}

	l.RUnlock() // release the original reader; writer should proceed next

	select {
	case <-writerDone:
	case <-time.After(time.Second):
		t.Fatal("writer never acquired the latch")
	}

	select {
	case <-readerBlocked:
	case <-time.After(time.Second):
		t.Fatal("reader never acquired the latch after writer released")
	}
}
