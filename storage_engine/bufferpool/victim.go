package bufferpool

import (
	"container/heap"
	"sync"

	"PagePool/storage_engine/frame"
)

// VictimSelector picks an unpinned frame to reuse when the pool is full.
// Implementations are called only while the frame table's mutation lock is
// held. A frame mid-swap holds its own latch for the duration of a blocking
// disk read, so Choose must never take a frame's latch — checking pinCount
// (safe lock-free) is enough to skip it without ever waiting behind that I/O.
type VictimSelector interface {
	// Choose returns the index of a frame eligible for eviction, or
	// ok=false if none is eligible right now. An empty frame is always
	// preferred; otherwise the frame with the smallest LRU-K backward
	// distance among those whose correlated reference window has elapsed
	// wins, ties broken toward the smallest index.
	Choose(frames []*frame.Frame, now int64, crtMillis int64) (idx int, ok bool)
	// Track registers frame idx as newly eligible (transitioned to
	// pinCount == 0).
	Track(idx int, f *frame.Frame)
	// Untrack removes frame idx from eligibility (transitioned away from
	// pinCount == 0, or was just claimed as a victim).
	Untrack(idx int)
}

// LinearScanSelector recomputes eligibility by scanning every frame on each
// call. It carries no state of its own — Track and Untrack are no-ops — and
// is the simplest selector to reason about, at O(frames) per eviction.
type LinearScanSelector struct{}

func NewLinearScanSelector() *LinearScanSelector { return &LinearScanSelector{} }

func (LinearScanSelector) Track(int, *frame.Frame) {}
func (LinearScanSelector) Untrack(int)             {}

func (LinearScanSelector) Choose(frames []*frame.Frame, now int64, crtMillis int64) (int, bool) {
	chosen := -1
	var minOrder int64
	for i, f := range frames {
		// A pinned frame may be mid-swap and holding its latch across a
		// blocking disk read; skip it on the lock-free pinCount alone so
		// the table lock this call runs under never waits behind that I/O.
		if f.IsPinned() {
			continue
		}
		blk, resident := f.Block()
		_ = blk
		if !resident {
			return i, true
		}
		h := f.History()
		lastRef := h.LastReferenceTime()
		crtElapsedMillis := now/1_000_000 - lastRef/1_000_000
		if crtElapsedMillis <= crtMillis {
			continue
		}
		order := h.Order()
		if chosen == -1 || order < minOrder {
			chosen = i
			minOrder = order
		}
	}
	if chosen == -1 {
		return 0, false
	}
	return chosen, true
}

type heapItem struct {
	frameIdx int
	order    int64
	gen      uint64
}

type minHeap []heapItem

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	if h[i].order != h[j].order {
		return h[i].order < h[j].order
	}
	return h[i].frameIdx < h[j].frameIdx
}
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// LazyHeapSelector keeps a min-heap ordered by LRU-K backward distance so
// Choose does not need to rescan every frame. Entries are invalidated
// lazily: each frame carries a generation counter, bumped on every
// Track/Untrack, and a popped entry whose generation no longer matches the
// frame's current generation is simply discarded rather than searched for
// and removed up front.
type LazyHeapSelector struct {
	mu  sync.Mutex
	h   minHeap
	gen map[int]uint64
}

func NewLazyHeapSelector() *LazyHeapSelector {
	return &LazyHeapSelector{gen: make(map[int]uint64)}
}

func (s *LazyHeapSelector) Track(idx int, f *frame.Frame) {
	f.RLock()
	_, resident := f.Block()
	var order int64
	if resident {
		order = f.History().Order()
	}
	f.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen[idx]++
	heap.Push(&s.h, heapItem{frameIdx: idx, order: order, gen: s.gen[idx]})
}

func (s *LazyHeapSelector) Untrack(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen[idx]++
}

func (s *LazyHeapSelector) Choose(frames []*frame.Frame, now int64, crtMillis int64) (int, bool) {
	for i, f := range frames {
		// Lock-free pinCount check only — see LinearScanSelector.Choose.
		if f.IsPinned() {
			continue
		}
		if _, resident := f.Block(); !resident {
			return i, true
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var skipped []heapItem
	result := -1
	for s.h.Len() > 0 {
		top := heap.Pop(&s.h).(heapItem)
		if s.gen[top.frameIdx] != top.gen {
			continue
		}
		f := frames[top.frameIdx]
		if f.IsPinned() {
			continue
		}
		var lastRef int64
		if _, resident := f.Block(); resident {
			lastRef = f.History().LastReferenceTime()
		}
		crtElapsedMillis := now/1_000_000 - lastRef/1_000_000
		if crtElapsedMillis <= crtMillis {
			skipped = append(skipped, top)
			continue
		}
		result = top.frameIdx
		break
	}
	for _, item := range skipped {
		heap.Push(&s.h, item)
	}
	if result == -1 {
		return 0, false
	}
	return result, true
}
