package bufferpool

import (
	"go.uber.org/atomic"

	"github.com/tuannm99/gopherdb/internal/common"
	"github.com/tuannm99/gopherdb/internal/diskio"
	"github.com/tuannm99/gopherdb/internal/rwlatch"
)

// Frame is a fixed 4 KiB buffer plus the metadata spec.md §3 requires: the
// owning page id (InvalidPageID when free), a pin count, a dirty flag, and
// a reader-writer latch guarding the page's data during tree crabbing.
//
// Invariants: PinCount() >= 0 always; a frame is evictable iff
// PinCount() == 0; if PageID == InvalidPageID the frame sits on the pool's
// free list and is not tracked by the replacer.
type Frame struct {
	PageID common.PageID
	Data   [diskio.PageSize]byte
	Dirty  bool

	pin   atomic.Int32
	Latch rwlatch.Latch
}

func (f *Frame) PinCount() int32 { return f.pin.Load() }

func (f *Frame) incPin() int32 { return f.pin.Inc() }

// decPin decrements the pin count and reports whether it reached zero.
// Callers hold the pool mutex, so this is not racing concurrent decrements,
// but the counter stays atomic so PinCount() can be read lock-free.
func (f *Frame) decPin() (reachedZero bool) {
	n := f.pin.Dec()
	return n == 0
}

func (f *Frame) reset(pageID common.PageID) {
	f.PageID = pageID
	f.Dirty = false
	f.pin.Store(0)
	for i := range f.Data {
		f.Data[i] = 0
	}
}
