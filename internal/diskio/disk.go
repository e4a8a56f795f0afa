// Package diskio is the disk manager: the external collaborator spec.md
// treats as opaque — reads and writes a fixed 4 KiB page by integer page
// id, and allocates/deallocates page ids. Grounded in the teacher's
// internal/storage.StorageManager, generalized to the spec's signed
// PageID and fixed 4096-byte page size.
package diskio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/tuannm99/gopherdb/internal/common"
	"github.com/tuannm99/gopherdb/pkg/util"
)

// Manager maps a logical PageID to (segment, offset) within a FileSet and
// owns the monotonic page-id allocator for that FileSet.
type Manager struct {
	mu       sync.Mutex
	nextID   map[string]common.PageID // FileSet key -> next id to allocate
	freeIDs  map[string]map[common.PageID]struct{}
	log      *slog.Logger
}

func NewManager() *Manager {
	return &Manager{
		nextID:  make(map[string]common.PageID),
		freeIDs: make(map[string]map[common.PageID]struct{}),
		log:     slog.With("component", "diskio"),
	}
}

func (m *Manager) locate(pageID common.PageID) (segNo int32, offset int64) {
	pps := int32(MaxPagesPerSegment)
	segNo = int32(pageID) / pps
	pageInSeg := int32(pageID) % pps
	offset = int64(pageInSeg) * PageSize
	return segNo, offset
}

// ReadPage reads exactly PageSize bytes for pageID into dst. A page that
// was allocated but never written reads back as zeroes (short reads past
// the current file length are zero-filled), matching the teacher's
// StorageManager.ReadPage behavior.
func (m *Manager) ReadPage(fs FileSet, pageID common.PageID, dst []byte) error {
	if !pageID.IsValid() {
		return ErrInvalidPageID
	}
	if len(dst) != PageSize {
		return ErrBadBufferSize
	}
	segNo, off := m.locate(pageID)
	f, err := fs.OpenSegment(segNo)
	if err != nil {
		return err
	}
	defer util.CloseFileFunc(f)

	n, err := f.ReadAt(dst, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("diskio: read page %d: %w", pageID, err)
	}
	for i := n; i < PageSize; i++ {
		dst[i] = 0
	}
	return nil
}

// WritePage writes exactly PageSize bytes for pageID.
func (m *Manager) WritePage(fs FileSet, pageID common.PageID, src []byte) error {
	if !pageID.IsValid() {
		return ErrInvalidPageID
	}
	if len(src) != PageSize {
		return ErrBadBufferSize
	}
	segNo, off := m.locate(pageID)
	f, err := fs.OpenSegment(segNo)
	if err != nil {
		return err
	}
	defer util.CloseFileFunc(f)

	n, err := f.WriteAt(src, off)
	if err != nil {
		return fmt.Errorf("diskio: write page %d: %w", pageID, err)
	}
	if n != PageSize {
		return ErrShortWrite
	}
	return nil
}

// AllocatePage returns a fresh page id for fs, preferring a deallocated id
// if one is available, otherwise bumping the monotonic counter.
func (m *Manager) AllocatePage(fs FileSet) (common.PageID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fs.Key()
	if free := m.freeIDs[key]; len(free) > 0 {
		for id := range free {
			delete(free, id)
			m.log.Debug("diskio.allocate.reused", "pageID", id)
			return id, nil
		}
	}

	id, ok := m.nextID[key]
	if !ok {
		// Page 0 is reserved for the header page (see common.HeaderPageID);
		// the first allocatable data page is 1.
		id = common.HeaderPageID + 1
	}
	m.nextID[key] = id + 1
	m.log.Debug("diskio.allocate.new", "pageID", id)
	return id, nil
}

// DeallocatePage records pageID as free for reuse by a later AllocatePage.
// No on-disk hole-punching is performed (out of scope per the durability
// Non-goal).
func (m *Manager) DeallocatePage(fs FileSet, pageID common.PageID) error {
	if !pageID.IsValid() {
		return ErrInvalidPageID
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fs.Key()
	free := m.freeIDs[key]
	if free == nil {
		free = make(map[common.PageID]struct{})
		m.freeIDs[key] = free
	}
	free[pageID] = struct{}{}
	return nil
}

// InitHeaderPage reads the header page (page 0) of fs, which creates the
// first segment file if it is missing. It writes nothing and leaves the
// allocator state untouched; an unwritten page 0 already reads as zeroes.
func (m *Manager) InitHeaderPage(fs FileSet) error {
	buf := make([]byte, PageSize)
	if err := m.ReadPage(fs, common.HeaderPageID, buf); err != nil {
		return err
	}
	return nil
}

// RemoveAll deletes every segment file backing fs. Used by
// Catalog.DropIndex; best-effort, missing files are not an error.
func (m *Manager) RemoveAll(fs FileSet) error {
	lfs, ok := fs.(LocalFileSet)
	if !ok {
		return fmt.Errorf("diskio: RemoveAll only supports LocalFileSet")
	}
	for segNo := int32(0); ; segNo++ {
		name := lfs.Base
		if segNo > 0 {
			name = fmt.Sprintf("%s.%d", lfs.Base, segNo)
		}
		path := lfs.Dir + string(os.PathSeparator) + name
		err := os.Remove(path)
		if err != nil {
			if os.IsNotExist(err) {
				break
			}
			return err
		}
	}
	return nil
}
