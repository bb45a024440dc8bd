// Package frame implements the fixed-size in-memory page slot the buffer
// pool swaps blocks in and out of: pin count, dirty flag and residence live
// here behind a per-frame latch, alongside the LRU-K reference history for
// whatever block currently occupies the frame.
package frame

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"PagePool/storage_engine/block"
	"PagePool/storage_engine/page"
)

// Reader, Writer, Appender and LSNFlusher are the narrow slices of the file
// and log managers that a Frame actually calls. Any concrete implementation
// (storage_engine/disk_manager, storage_engine/wal_manager) satisfies these
// structurally; Frame never imports the bufferpool package that names the
// full interfaces, keeping the dependency arrow pointing only downward.
type Reader interface {
	Read(blk block.ID, into []byte) error
}

type Writer interface {
	Write(blk block.ID, data []byte) error
}

type Appender interface {
	Append(fileName string) (block.ID, error)
}

type LSNFlusher interface {
	FlushTo(lsn uint64) error
}

// Frame is a page-sized slot that may hold a resident block. All mutation of
// its residence, pin count or dirty state happens under its own latch; the
// FrameTable that owns a Frame is responsible for keeping its own index and
// victim-set membership consistent with the Frame's pin count transitions,
// and for holding exactly one reservation pin on a frame for the duration of
// AssignToBlock/AssignToNew so no other caller can observe it mid-swap.
type Frame struct {
	mu sync.RWMutex // the per-frame latch

	index int // this frame's fixed position in FrameTable.frames

	data []byte

	block   *block.ID
	history *block.History

	// pinCount is atomic so the victim selector can skip a pinned frame
	// without taking its latch — a mid-swap frame holds the latch across
	// blocking I/O, and the table's mutation lock must never wait on that.
	pinCount     atomic.Int32
	dirty        bool
	modifyingTxs map[uint64]struct{}

	lsn uint64 // LSN of the last write applied to this frame, for the WAL guard
}

// New constructs an empty frame at the given fixed index within the pool.
func New(index int) *Frame {
	return &Frame{
		index:        index,
		data:         make([]byte, page.Size),
		modifyingTxs: make(map[uint64]struct{}),
	}
}

// Index returns this frame's fixed position in the pool's frame array.
func (f *Frame) Index() int { return f.index }

// Lock/Unlock/RLock/RUnlock expose the frame latch that guards residence,
// pin count and dirty flag during swap-in/flush.
func (f *Frame) Lock()    { f.mu.Lock() }
func (f *Frame) Unlock()  { f.mu.Unlock() }
func (f *Frame) RLock()   { f.mu.RLock() }
func (f *Frame) RUnlock() { f.mu.RUnlock() }

// Data returns the frame's backing page buffer. Callers must hold the latch
// (via Lock/Unlock or the pinned-frame contract) while reading or writing it.
func (f *Frame) Data() []byte { return f.data }

// Block reports the block currently resident in this frame, if any. Callers
// normally hold the latch or rely on the pin they hold to keep the answer
// stable: once pin(blk) returns frame f, f's residence does not change again
// until the caller's matching unpin.
func (f *Frame) Block() (block.ID, bool) {
	if f.block == nil {
		return block.ID{}, false
	}
	return *f.block, true
}

// History returns the LRU-K history for the block currently resident in this
// frame, or nil if the frame is empty.
func (f *Frame) History() *block.History { return f.history }

// IsPinned reports whether the frame has any live pins. Safe to call without
// the latch: the victim selector relies on this to skip a busy frame without
// ever blocking on its latch.
func (f *Frame) IsPinned() bool { return f.pinCount.Load() > 0 }

// PinCount returns the current pin count. Safe to call without the latch.
func (f *Frame) PinCount() int32 { return f.pinCount.Load() }

// Pin increments the pin count. The caller (FrameTable) is responsible for
// noticing a 0->1 transition and removing the frame from the victim set.
func (f *Frame) Pin() { f.pinCount.Add(1) }

// Unpin decrements the pin count. Unpinning an already-unpinned frame is an
// invariant violation and panics rather than silently underflowing. Callers
// that use the 1->0 transition to publish an eviction or reset of this
// frame's residence must make those writes before calling Unpin, not after:
// another goroutine observing pinCount reach 0 is entitled to assume they
// already happened.
func (f *Frame) Unpin() {
	if f.pinCount.Load() == 0 {
		panic(errors.Errorf("frame %d: unpin called with pinCount already 0", f.index))
	}
	f.pinCount.Add(-1)
}

// IsModifiedBy reports whether the given transaction has an unflushed write
// on this frame.
func (f *Frame) IsModifiedBy(txNum uint64) bool {
	_, ok := f.modifyingTxs[txNum]
	return ok
}

// MarkModifiedBy records that txNum wrote to this frame and stamps it dirty
// with the LSN of that write, used by Flush to enforce WAL-before-page-write
// ordering.
func (f *Frame) MarkModifiedBy(txNum uint64, lsn uint64) {
	f.dirty = true
	f.modifyingTxs[txNum] = struct{}{}
	if lsn > f.lsn {
		f.lsn = lsn
	}
}

// IsDirty reports whether the frame has unflushed writes.
func (f *Frame) IsDirty() bool { return f.dirty }

// ClearResidence detaches the frame from its current block without flushing
// or touching data/dirty/lsn, so a reservation holder can make the old
// residence unreachable to concurrent readers before the swap actually
// starts. Callers must hold the frame's latch. After this call f.Block()
// reports empty, so a concurrent hit-path re-verify against the old block id
// fails and retries instead of returning a frame about to be swapped out
// from under it.
func (f *Frame) ClearResidence() (oldBlk block.ID, hadOld bool) {
	if f.block == nil {
		return block.ID{}, false
	}
	oldBlk = *f.block
	f.block = nil
	return oldBlk, true
}

// RestoreResidence undoes ClearResidence when the caller could not complete
// the swap (e.g. the old block's flush failed): the frame goes back to
// looking exactly as it did before the reservation, so it can be unpinned and
// left resident for a later retry instead of losing the unflushed data.
// Callers must hold the frame's latch.
func (f *Frame) RestoreResidence(oldBlk block.ID) {
	id := oldBlk
	f.block = &id
}

// FlushBlock writes back a block already detached from the frame by
// ClearResidence, using the buffer ClearResidence intentionally left in
// place, honoring the same WAL-before-page-write ordering as Flush. A no-op
// if the frame wasn't dirty. Callers must hold the frame's latch.
func (f *Frame) FlushBlock(oldBlk block.ID, lf LSNFlusher, fw Writer) error {
	if !f.dirty {
		return nil
	}
	if err := lf.FlushTo(f.lsn); err != nil {
		return errors.Wrapf(err, "frame %d: flush WAL to lsn %d", f.index, f.lsn)
	}
	if err := fw.Write(oldBlk, f.data); err != nil {
		return errors.Wrapf(err, "frame %d: write block %s", f.index, oldBlk)
	}
	f.dirty = false
	f.modifyingTxs = make(map[uint64]struct{})
	return nil
}

// AssignToBlock reads blk from the file manager into the frame's buffer. The
// caller must hold the frame's latch, must already have detached the frame
// from its previous residence with ClearResidence and removed it from the
// frame table's index, and must hold the single reservation pin that keeps
// this frame from being chosen as a victim again while the swap is in
// flight. The incoming block always starts a fresh history, one per
// residence rather than accumulated across evictions.
func (f *Frame) AssignToBlock(blk block.ID, now int64, k int, fm Reader) error {
	if err := fm.Read(blk, f.data); err != nil {
		f.block = nil
		f.history = nil
		f.dirty = false
		return errors.Wrapf(err, "frame %d: read block %s", f.index, blk)
	}
	id := blk
	f.block = &id
	f.history = block.NewHistory(k, now)
	f.dirty = false
	f.modifyingTxs = make(map[uint64]struct{})
	f.lsn = 0
	return nil
}

// AssignToNew extends fileName by one block, applies fmtr to initialize the
// page in-memory, and marks the frame dirty so it is eventually flushed. Same
// caller obligations as AssignToBlock.
func (f *Frame) AssignToNew(fileName string, fmtr page.Formatter, now int64, k int, fa Appender) (block.ID, error) {
	blk, err := fa.Append(fileName)
	if err != nil {
		return block.ID{}, errors.Wrapf(err, "frame %d: append to file %s", f.index, fileName)
	}
	for i := range f.data {
		f.data[i] = 0
	}
	fmtr(f.data)
	id := blk
	f.block = &id
	f.history = block.NewHistory(k, now)
	f.dirty = true
	f.modifyingTxs = make(map[uint64]struct{})
	f.lsn = 0
	return blk, nil
}

// Flush writes the frame to disk if dirty, first ensuring the log manager
// has durably persisted WAL records up to this frame's LSN. Clears dirty and
// modifyingTxs on success.
func (f *Frame) Flush(lf LSNFlusher, fw Writer) error {
	if !f.dirty || f.block == nil {
		return nil
	}
	if err := lf.FlushTo(f.lsn); err != nil {
		return errors.Wrapf(err, "frame %d: flush WAL to lsn %d", f.index, f.lsn)
	}
	if err := fw.Write(*f.block, f.data); err != nil {
		return errors.Wrapf(err, "frame %d: write block %s", f.index, *f.block)
	}
	f.dirty = false
	f.modifyingTxs = make(map[uint64]struct{})
	return nil
}

// Evict clears the frame back to the empty state without flushing. Used to
// unwind a failed AssignToBlock/AssignToNew that leaves residence ambiguous.
func (f *Frame) Evict() {
	f.block = nil
	f.history = nil
	f.dirty = false
	f.modifyingTxs = make(map[uint64]struct{})
	f.lsn = 0
}
