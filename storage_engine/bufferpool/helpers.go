package bufferpool

import (
	"context"
	"time"
)

// RunSweepOnce resets, in place, the LRU-K history of every unpinned resident
// frame whose last reference is older than the pool's retained-info period
// back to the sentinel state (block.History.Reset). The block stays resident
// and indexed. It returns the number of frames swept.
//
// The whole pass runs under the frame table's mutation lock, the same lock
// LinearScanSelector and LazyHeapSelector read frame history under during
// victim selection: History isn't guarded by its own lock, only by whichever
// of the table lock or the frame's own latch happens to be held by its
// reader, so h.Reset here has to take the same one Choose does or the two
// race on the same fields. The loop does no I/O itself, but it takes every
// frame's latch, so it waits (holding the table lock) for any frame whose
// latch is held across a swap-in or flush.
func (bp *BufferPool) RunSweepOnce() int {
	now := bp.clk.NowNanos()
	swept := 0
	bp.frames.Lock()
	defer bp.frames.Unlock()
	for _, f := range bp.frames.Frames() {
		f.Lock()
		if !f.IsPinned() {
			if _, resident := f.Block(); resident {
				h := f.History()
				elapsedMillis := now/1_000_000 - h.LastReferenceTime()/1_000_000
				if elapsedMillis > bp.ritMillis {
					h.Reset(now)
					swept++
				}
			}
		}
		f.Unlock()
	}
	return swept
}

// StartSweeper runs RunSweepOnce on a fixed interval until ctx is canceled.
func (bp *BufferPool) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				bp.RunSweepOnce()
			}
		}
	}()
}
