package bufferpool

import (
	"github.com/tuannm99/gopherdb/internal/common"
	"github.com/tuannm99/gopherdb/pkg/clockx"
)

// Replacer chooses an unpinned frame to evict. The buffer pool is the only
// caller; frame ids it hands back always lie within [0, capacity).
type Replacer interface {
	// Victim selects and removes an evictable frame, per the clock policy
	// in spec.md §4.2: scan from the hand, clearing reference bits until
	// one is found already clear.
	Victim() (common.FrameID, bool)
	// Pin removes a frame from eligibility (no-op if absent).
	Pin(common.FrameID)
	// Unpin adds a frame to eligibility with its reference bit set
	// (idempotent if already present).
	Unpin(common.FrameID)
	// Remove drops a frame from replacer tracking entirely, used when the
	// frame's page is deleted and the frame returns to the free list.
	Remove(common.FrameID)
	Size() int
}

// clockReplacer adapts pkg/clockx.Clock (int slot ids) to the FrameID type,
// the same adapter shape as the teacher's replacer_clock_adapter.go.
type clockReplacer struct {
	c *clockx.Clock
}

func newClockReplacer(capacity int) Replacer {
	return &clockReplacer{c: clockx.New(capacity)}
}

func (r *clockReplacer) Victim() (common.FrameID, bool) {
	id, ok := r.c.Evict()
	return common.FrameID(id), ok
}

func (r *clockReplacer) Pin(f common.FrameID) {
	r.c.Touch(int(f))
	r.c.SetEvictable(int(f), false)
}

func (r *clockReplacer) Unpin(f common.FrameID) {
	r.c.Touch(int(f))
	r.c.SetEvictable(int(f), true)
}

func (r *clockReplacer) Remove(f common.FrameID) {
	r.c.Remove(int(f))
}

func (r *clockReplacer) Size() int { return r.c.Size() }
