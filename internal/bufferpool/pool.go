// Package bufferpool implements the fixed-size, page-granular cache over a
// disk-backed page store described in spec.md §4.3: pin/unpin ownership
// tracking on top of a clock-based victim policy. Grounded in the
// teacher's internal/bufferpool.Pool, generalized from the teacher's
// variable PostgreSQL-style page to the fixed-size frame spec.md §3
// requires, and re-keyed on common.PageID/common.FrameID.
package bufferpool

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.uber.org/multierr"

	"github.com/tuannm99/gopherdb/internal/common"
	"github.com/tuannm99/gopherdb/internal/diskio"
)

var (
	// ErrNoFrameAvailable is returned by Fetch/NewPage when every frame is
	// pinned. Locally recoverable: callers decide policy (spec.md §7).
	ErrNoFrameAvailable = errors.New("bufferpool: no frame available (all frames pinned)")
	ErrPagePinned       = errors.New("bufferpool: page is pinned")
	ErrInvalidPageID    = errors.New("bufferpool: invalid page id")
)

// DiskManager is the subset of diskio.Manager the pool needs; named
// separately so tests can substitute a mock disk manager (spec.md §8's
// "dirty frame ... observably written" property).
type DiskManager interface {
	ReadPage(fs diskio.FileSet, id common.PageID, dst []byte) error
	WritePage(fs diskio.FileSet, id common.PageID, src []byte) error
	AllocatePage(fs diskio.FileSet) (common.PageID, error)
	DeallocatePage(fs diskio.FileSet, id common.PageID) error
}

// Pool is a fixed-capacity buffer pool over a single FileSet (one relation:
// a heap table or a B+Tree index). A global mutex serializes bookkeeping;
// per-page disk I/O happens while holding it, matching spec.md §4.3's
// simplifying design.
type Pool struct {
	dm DiskManager
	fs diskio.FileSet

	mu        sync.Mutex
	frames    []*Frame
	free      []common.FrameID
	pageTable map[common.PageID]common.FrameID
	replacer  Replacer

	log *slog.Logger
}

// DefaultCapacity mirrors the teacher's default pool size when the caller
// does not specify one.
var DefaultCapacity = 128

func NewPool(dm DiskManager, fs diskio.FileSet, capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	frames := make([]*Frame, capacity)
	free := make([]common.FrameID, capacity)
	for i := range frames {
		frames[i] = &Frame{PageID: common.InvalidPageID}
		free[i] = common.FrameID(i)
	}
	return &Pool{
		dm:        dm,
		fs:        fs,
		frames:    frames,
		free:      free,
		pageTable: make(map[common.PageID]common.FrameID),
		replacer:  newClockReplacer(capacity),
		log:       slog.With("component", "bufferpool"),
	}
}

// Capacity returns the fixed number of frames this pool owns.
func (p *Pool) Capacity() int { return len(p.frames) }

// pickVictim returns a frame ready to be repurposed: free list first, then
// the replacer. Caller holds p.mu.
func (p *Pool) pickVictim() (common.FrameID, bool) {
	if n := len(p.free); n > 0 {
		fid := p.free[n-1]
		p.free = p.free[:n-1]
		return fid, true
	}
	return p.replacer.Victim()
}

// flushFrameLocked writes a frame's current contents to disk under its
// current page id. Caller holds p.mu.
func (p *Pool) flushFrameLocked(f *Frame) error {
	if !f.PageID.IsValid() {
		return nil
	}
	if err := p.dm.WritePage(p.fs, f.PageID, f.Data[:]); err != nil {
		return fmt.Errorf("bufferpool: flush page %d: %w", f.PageID, err)
	}
	return nil
}

// Fetch pins and returns the frame holding pageID, loading it from disk if
// it is not already resident. Returns ErrNoFrameAvailable (a recoverable,
// non-raising condition per spec.md §7) if every frame is pinned.
func (p *Pool) Fetch(pageID common.PageID) (*Frame, error) {
	if !pageID.IsValid() {
		return nil, ErrInvalidPageID
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if fid, ok := p.pageTable[pageID]; ok {
		f := p.frames[fid]
		f.incPin()
		p.replacer.Pin(fid)
		return f, nil
	}

	fid, ok := p.pickVictim()
	if !ok {
		return nil, ErrNoFrameAvailable
	}
	f := p.frames[fid]

	if f.Dirty {
		if err := p.flushFrameLocked(f); err != nil {
			return nil, err
		}
	}
	if f.PageID.IsValid() {
		delete(p.pageTable, f.PageID)
	}

	if err := p.dm.ReadPage(p.fs, pageID, f.Data[:]); err != nil {
		return nil, fmt.Errorf("bufferpool: fetch page %d: %w", pageID, err)
	}
	f.PageID = pageID
	f.Dirty = false
	f.pin.Store(1)

	p.pageTable[pageID] = fid
	p.replacer.Pin(fid)
	p.log.Debug("fetch", "pageID", pageID, "frameID", fid)
	return f, nil
}

// NewPage allocates a fresh page id and returns a pinned, zeroed frame for
// it. Returns ErrNoFrameAvailable if every frame is pinned.
func (p *Pool) NewPage() (common.PageID, *Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.pickVictim()
	if !ok {
		return common.InvalidPageID, nil, ErrNoFrameAvailable
	}
	f := p.frames[fid]

	if f.Dirty {
		if err := p.flushFrameLocked(f); err != nil {
			return common.InvalidPageID, nil, err
		}
	}
	if f.PageID.IsValid() {
		delete(p.pageTable, f.PageID)
	}

	pageID, err := p.dm.AllocatePage(p.fs)
	if err != nil {
		return common.InvalidPageID, nil, fmt.Errorf("bufferpool: allocate page: %w", err)
	}

	f.reset(pageID)
	f.pin.Store(1)
	p.pageTable[pageID] = fid
	p.replacer.Pin(fid)
	p.log.Debug("new_page", "pageID", pageID, "frameID", fid)
	return pageID, f, nil
}

// Unpin decrements pageID's pin count, ORing isDirty into the frame's dirty
// flag. isDirty=false never clears a previously set dirty flag. Returns
// false if the page is not resident or its pin count is already zero.
func (p *Pool) Unpin(pageID common.PageID, isDirty bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.pageTable[pageID]
	if !ok {
		return false
	}
	f := p.frames[fid]
	if f.PinCount() <= 0 {
		return false
	}
	if isDirty {
		f.Dirty = true
	}
	if f.decPin() {
		p.replacer.Unpin(fid)
	}
	return true
}

// Flush writes pageID's current frame contents to disk if resident.
// Returns false on an invalid page id or a non-resident page. Does not
// clear the dirty flag: a deliberate, conservative choice (spec.md §4.3,
// §9) so a concurrent FlushAll never mistakes a just-flushed-but-still
// logically-dirty frame for clean.
func (p *Pool) Flush(pageID common.PageID) bool {
	if !pageID.IsValid() {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.pageTable[pageID]
	if !ok {
		return false
	}
	if err := p.flushFrameLocked(p.frames[fid]); err != nil {
		p.log.Error("flush", "pageID", pageID, "err", err)
		return false
	}
	return true
}

// FlushAll writes every resident, unpinned, dirty frame to disk. Pinned
// dirty frames are left alone (spec.md §4.3). Failures across multiple
// frames are aggregated with multierr rather than stopping at the first.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs error
	for _, f := range p.frames {
		if !f.PageID.IsValid() || !f.Dirty || f.PinCount() > 0 {
			continue
		}
		if err := p.flushFrameLocked(f); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Delete removes pageID from the pool and deallocates it on disk. Succeeds
// trivially if the page is not resident. Fails if resident with a nonzero
// pin count.
func (p *Pool) Delete(pageID common.PageID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.pageTable[pageID]
	if !ok {
		return true, nil
	}
	f := p.frames[fid]
	if f.PinCount() > 0 {
		return false, nil
	}

	delete(p.pageTable, pageID)
	p.replacer.Remove(fid)
	f.reset(common.InvalidPageID)
	p.free = append(p.free, fid)

	if err := p.dm.DeallocatePage(p.fs, pageID); err != nil {
		return false, fmt.Errorf("bufferpool: deallocate page %d: %w", pageID, err)
	}
	return true, nil
}
