package bufferpool

import (
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"PagePool/storage_engine/block"
	"PagePool/storage_engine/frame"
)

// FrameTable owns the fixed array of frames, the concurrent block->frame
// index, and the bookkeeping that keeps `available` and the victim set
// consistent with every frame's pin count. Its own mutation lock guards
// victim selection and the available counter; it is acquired above each
// individual frame's own latch and is never held across blocking I/O.
type FrameTable struct {
	frames    []*frame.Frame
	index     *xsync.MapOf[block.ID, *frame.Frame]
	available atomic.Int32
	mu        sync.Mutex
	selector  VictimSelector
}

// NewFrameTable allocates size empty frames, all initially eligible for
// eviction under selector.
func NewFrameTable(size int, selector VictimSelector) *FrameTable {
	frames := make([]*frame.Frame, size)
	for i := range frames {
		frames[i] = frame.New(i)
	}
	ft := &FrameTable{
		frames:   frames,
		index:    xsync.NewMapOf[block.ID, *frame.Frame](),
		selector: selector,
	}
	ft.available.Store(int32(size))
	for _, f := range frames {
		selector.Track(f.Index(), f)
	}
	return ft
}

// Lookup returns the frame currently holding blk, if any.
func (ft *FrameTable) Lookup(blk block.ID) (*frame.Frame, bool) {
	return ft.index.Load(blk)
}

// IndexInsert records that blk now lives in f. Callers must hold f's latch.
func (ft *FrameTable) IndexInsert(blk block.ID, f *frame.Frame) { ft.index.Store(blk, f) }

// Available returns the number of frames with pinCount == 0.
func (ft *FrameTable) Available() int32 { return ft.available.Load() }

// Size returns the total number of frames.
func (ft *FrameTable) Size() int { return len(ft.frames) }

// Frames exposes the underlying frame array, e.g. for FlushAll and the
// retention sweeper.
func (ft *FrameTable) Frames() []*frame.Frame { return ft.frames }

// Lock/Unlock expose the table mutation lock so BufferPool can hold it across
// the hit-path's re-verify+pin+history-update sequence (no I/O occurs in
// that window) and release it before any blocking swap-in.
func (ft *FrameTable) Lock()   { ft.mu.Lock() }
func (ft *FrameTable) Unlock() { ft.mu.Unlock() }

// NoteHitPin is the hit-path bookkeeping step, called with both the table
// lock and f's latch already held: it updates available/victim-set
// membership on f's 0->1 pin transition. The caller does the actual
// f.Pin() and history update itself.
func (ft *FrameTable) NoteHitPin(f *frame.Frame) (wasUnpinned bool) {
	wasUnpinned = !f.IsPinned()
	if wasUnpinned {
		ft.available.Add(-1)
		ft.selector.Untrack(f.Index())
	}
	return wasUnpinned
}

// Victim is a frame claimed by ChooseVictim: the reservation pin is already
// held, and if HadOld is true, OldBlock has already been evicted from the
// index and detached from the frame (Frame.ClearResidence) — it is no longer
// reachable through Lookup or through the frame's own Block(), but its data
// is still sitting in the frame's buffer for the caller to flush.
type Victim struct {
	Frame    *frame.Frame
	OldBlock block.ID
	HadOld   bool
}

// ChooseVictim picks an unpinned frame under the table lock, preferring an
// empty frame and otherwise the coldest frame whose correlated reference
// window has elapsed, and immediately claims it with a reservation pin so no
// concurrent caller can pick the same frame again before the swap that
// follows completes. The reservation pin is also the caller's own resulting
// pin — there is no separate pin() call afterward.
//
// The old residence, if any, is made unreachable right here, still under the
// table lock: its index entry is deleted and the frame is detached from it
// before the lock is released. Without this, a concurrent Pin of the old
// block could re-verify residence under the table lock, see it still intact,
// and hand out the frame as a hit moments before this call's caller
// overwrites its buffer with the new block.
func (ft *FrameTable) ChooseVictim(now, crtMillis int64) (Victim, bool) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	idx, ok := ft.selector.Choose(ft.frames, now, crtMillis)
	if !ok {
		return Victim{}, false
	}
	f := ft.frames[idx]
	f.Lock()
	oldBlk, hadOld := f.ClearResidence()
	f.Pin()
	pinned := f.PinCount()
	f.Unlock()
	assertf(pinned == 1, "victim frame %d has pinCount %d immediately after reservation", idx, pinned)

	if hadOld {
		ft.index.Delete(oldBlk)
	}
	ft.available.Add(-1)
	ft.selector.Untrack(idx)
	return Victim{Frame: f, OldBlock: oldBlk, HadOld: hadOld}, true
}

// UndoReservation releases a frame claimed by ChooseVictim whose swap failed
// after its old residence was already flushed away, returning it to the pool
// as an empty, available frame. Evict runs before Unpin so that any selector
// which has already skipped the frame's latch on the strength of a lock-free
// pinCount read of 0 is guaranteed to see the frame already empty.
func (ft *FrameTable) UndoReservation(f *frame.Frame) {
	f.Lock()
	f.Evict()
	f.Unpin()
	f.Unlock()

	ft.mu.Lock()
	ft.available.Add(1)
	ft.selector.Track(f.Index(), f)
	ft.mu.Unlock()
}

// Unpin decrements f's pin count and, on the 1->0 transition, marks it
// eligible for eviction again.
func (ft *FrameTable) Unpin(f *frame.Frame) {
	f.Lock()
	f.Unpin()
	nowUnpinned := !f.IsPinned()
	f.Unlock()

	if nowUnpinned {
		ft.mu.Lock()
		ft.available.Add(1)
		ft.selector.Track(f.Index(), f)
		ft.mu.Unlock()
	}
}
