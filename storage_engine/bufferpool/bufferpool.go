package bufferpool

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"PagePool/clock"
	"PagePool/config"
	"PagePool/storage_engine/block"
	"PagePool/storage_engine/frame"
	"PagePool/storage_engine/page"
)

// BufferPool is the fixed-size pool of frames that all higher layers pin
// blocks through. During disk or WAL I/O the frame table's mutation lock is
// not held; the swapping frame's own latch is, and so is the anchor stripe
// lock of the Pin/PinNew call doing the I/O, which Pin and PinNew keep for
// their whole duration.
type BufferPool struct {
	frames *FrameTable
	anchor *anchorStripe

	fm  FileManager
	lm  LogManager
	clk clock.Clock

	k         int
	crtMillis int64
	ritMillis int64

	stats         statCounters
	starvation    *lru.Cache
	starvationSeq atomic.Uint64
}

// New builds a buffer pool of params.BufferCount frames over fm and lm,
// using the linear-scan victim selector.
func New(params config.Params, fm FileManager, lm LogManager, clk clock.Clock) *BufferPool {
	return newBufferPool(params, fm, lm, clk, NewLinearScanSelector())
}

// NewWithSelector is New but lets the caller pick the victim-selection
// strategy (e.g. NewLazyHeapSelector for large pools).
func NewWithSelector(params config.Params, fm FileManager, lm LogManager, clk clock.Clock, selector VictimSelector) *BufferPool {
	return newBufferPool(params, fm, lm, clk, selector)
}

func newBufferPool(params config.Params, fm FileManager, lm LogManager, clk clock.Clock, selector VictimSelector) *BufferPool {
	return &BufferPool{
		frames:     NewFrameTable(params.BufferCount, selector),
		anchor:     newAnchorStripe(params.AnchorStripeCount),
		fm:         fm,
		lm:         lm,
		clk:        clk,
		k:          params.K,
		crtMillis:  params.CRTMillis,
		ritMillis:  params.RITMillis,
		starvation: newStarvationLog(64),
	}
}

// Available returns the number of frames with no live pins.
func (bp *BufferPool) Available() int32 { return bp.frames.Available() }

// Stats returns a snapshot of cumulative hit/miss/eviction/starvation
// counters.
func (bp *BufferPool) Stats() Stats { return bp.stats.snapshot() }

// Pin returns the frame holding blk, pinned once for the caller, loading it
// from disk first if it is not already resident. Two concurrent Pin calls
// for the same block return the same frame.
func (bp *BufferPool) Pin(blk block.ID) (*frame.Frame, error) {
	lock := bp.anchor.lockFor(blk.String())
	lock.Lock()
	defer lock.Unlock()

	for {
		f, ok := bp.frames.Lookup(blk)
		if ok {
			result, retry, err := bp.tryPinExisting(f, blk)
			if err != nil {
				return nil, err
			}
			if retry {
				continue
			}
			return result, nil
		}
		return bp.pinMiss(blk)
	}
}

// tryPinExisting re-verifies f still holds blk under the table lock and f's
// latch, then pins it and records the reference. If f was swapped out from
// under the lookup, retry=true tells the caller to look the block up again.
func (bp *BufferPool) tryPinExisting(f *frame.Frame, blk block.ID) (result *frame.Frame, retry bool, err error) {
	bp.frames.Lock()
	f.Lock()
	defer f.Unlock()
	defer bp.frames.Unlock()

	cur, resident := f.Block()
	if !resident || cur != blk {
		return nil, true, nil
	}

	bp.frames.NoteHitPin(f)
	f.Pin()
	now := bp.clk.NowNanos()
	f.History().UpdateHit(now, bp.crtMillis)
	bp.stats.hits.Add(1)
	logger.Printf("HIT  block=%s pinCount=%d", blk, f.PinCount())
	return f, false, nil
}

// pinMiss loads blk into a victim frame. Called with the anchor held and no
// resident frame found for blk.
func (bp *BufferPool) pinMiss(blk block.ID) (*frame.Frame, error) {
	now := bp.clk.NowNanos()
	victim, ok := bp.frames.ChooseVictim(now, bp.crtMillis)
	if !ok {
		bp.stats.starved.Add(1)
		bp.recordStarvation(fmt.Sprintf("pin %s", blk))
		logger.Printf("STARVED pin block=%s", blk)
		return nil, ErrNoBufferAvailable
	}
	f := victim.Frame
	logger.Printf("MISS block=%s — loading from disk", blk)

	f.Lock()
	if victim.HadOld {
		if err := bp.flushOldBlock(f, victim.OldBlock); err != nil {
			f.RestoreResidence(victim.OldBlock)
			bp.frames.IndexInsert(victim.OldBlock, f)
			f.Unlock()
			bp.frames.Unpin(f)
			return nil, errors.Wrapf(err, "bufferpool: pin %s", blk)
		}
	}

	if err := f.AssignToBlock(blk, now, bp.k, bp.fm); err != nil {
		f.Unlock()
		bp.frames.UndoReservation(f)
		return nil, errors.Wrapf(err, "bufferpool: pin %s", blk)
	}
	bp.frames.IndexInsert(blk, f)
	if f.History().IsSentinel() {
		f.History().UpdateMiss(now)
	}
	f.Unlock()

	bp.stats.misses.Add(1)
	return f, nil
}

// flushOldBlock writes back a victim frame's previous resident block if it
// was dirty, using the buffer ChooseVictim's ClearResidence deliberately left
// in place, honoring the WAL-before-page-write ordering in Frame.FlushBlock.
// It must be called with f already latched and its reservation pin already
// held, before the frame's buffer is overwritten by AssignToBlock/
// AssignToNew. oldBlk is already gone from the index and from f.Block() by
// the time this runs; on failure the caller is responsible for restoring
// both so the block isn't silently lost.
func (bp *BufferPool) flushOldBlock(f *frame.Frame, oldBlk block.ID) error {
	dirty := f.IsDirty()
	if err := f.FlushBlock(oldBlk, bp.lm, bp.fm); err != nil {
		return errors.Wrapf(err, "flush victim %s", oldBlk)
	}
	if dirty {
		logger.Printf("FLUSH block=%s (evicting)", oldBlk)
	}
	bp.stats.evictions.Add(1)
	logger.Printf("EVICT block=%s dirty=%v", oldBlk, dirty)
	return nil
}

// PinNew extends fileName by one block, initializes it with fmtr, and
// returns it pinned and dirty, ready for the caller to populate further.
func (bp *BufferPool) PinNew(fileName string, fmtr page.Formatter) (*frame.Frame, error) {
	lock := bp.anchor.lockFor(fileName)
	lock.Lock()
	defer lock.Unlock()

	now := bp.clk.NowNanos()
	victim, ok := bp.frames.ChooseVictim(now, bp.crtMillis)
	if !ok {
		bp.stats.starved.Add(1)
		bp.recordStarvation(fmt.Sprintf("pinNew %s", fileName))
		logger.Printf("STARVED pinNew file=%s", fileName)
		return nil, ErrNoBufferAvailable
	}
	f := victim.Frame

	f.Lock()
	if victim.HadOld {
		if err := bp.flushOldBlock(f, victim.OldBlock); err != nil {
			f.RestoreResidence(victim.OldBlock)
			bp.frames.IndexInsert(victim.OldBlock, f)
			f.Unlock()
			bp.frames.Unpin(f)
			return nil, errors.Wrapf(err, "bufferpool: pinNew %s", fileName)
		}
	}

	blk, err := f.AssignToNew(fileName, fmtr, now, bp.k, bp.fm)
	if err != nil {
		f.Unlock()
		bp.frames.UndoReservation(f)
		return nil, errors.Wrapf(err, "bufferpool: pinNew %s", fileName)
	}
	bp.frames.IndexInsert(blk, f)
	f.History().UpdateMiss(now)
	f.Unlock()

	bp.stats.misses.Add(1)
	logger.Printf("MISS block=%s — appended new block in %s", blk, fileName)
	return f, nil
}

// Unpin releases one pin held on f. If markDirty is true, f is marked dirty
// and the write is attributed to txNum with the given LSN for later
// WAL-ordering enforcement in FlushAll.
func (bp *BufferPool) Unpin(f *frame.Frame, txNum uint64, markDirty bool, lsn uint64) {
	if markDirty {
		f.Lock()
		f.MarkModifiedBy(txNum, lsn)
		f.Unlock()
	}
	bp.frames.Unpin(f)
}

// FlushAll flushes every dirty frame modified by txNum, or every dirty frame
// if txNum is 0, honoring the WAL-before-page-write ordering inside each
// frame's own Flush.
func (bp *BufferPool) FlushAll(txNum uint64) error {
	logger.Printf("FlushAll tx=%d — pool size=%d", txNum, bp.frames.Size())
	for _, f := range bp.frames.Frames() {
		f.Lock()
		if txNum != 0 && !f.IsModifiedBy(txNum) {
			f.Unlock()
			continue
		}
		wasDirty := f.IsDirty()
		blk, resident := f.Block()
		err := f.Flush(bp.lm, bp.fm)
		f.Unlock()
		if err != nil {
			return err
		}
		if wasDirty && resident {
			logger.Printf("FLUSH block=%s", blk)
		}
	}
	return nil
}

func (bp *BufferPool) recordStarvation(reason string) {
	seq := bp.starvationSeq.Add(1)
	bp.starvation.Add(seq, starvationEvent{atNanos: bp.clk.NowNanos(), reason: reason})
}

// RecentStarvation returns up to n most recently recorded starvation events,
// most recent last.
func (bp *BufferPool) RecentStarvation(n int) []string {
	keys := bp.starvation.Keys()
	if len(keys) > n {
		keys = keys[len(keys)-n:]
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if v, ok := bp.starvation.Peek(k); ok {
			ev := v.(starvationEvent)
			out = append(out, ev.reason)
		}
	}
	return out
}
