// Package block defines the identity of a disk block and the LRU-K reference
// history the buffer pool's replacement policy keys off of. Go map keys must
// be comparable, so identity (ID) and mutable history (History) are split
// into two types: ID is what FrameTable.index is keyed on, History is what a
// Frame owns for whichever ID currently resides in it.
package block

// ID identifies a disk block by file name and block number. Equality and
// hashing (its use as a map key) are defined over exactly this pair.
type ID struct {
	FileName    string
	BlockNumber uint64
}

func (id ID) String() string {
	return id.FileName + "#" + itoa(id.BlockNumber)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// History is the K-sized backward reference window for one block, owned by
// whichever frame currently holds that block resident. It is never persisted
// and never survives an eviction: a frame that swaps in a new block starts
// that block's History fresh at the sentinel state (see NewHistory).
type History struct {
	k                 int
	lastReferenceTime int64
	hist              []int64 // hist[0] newest ... hist[k-1] oldest (the K-th most recent)
}

// NewHistory constructs the sentinel history state: hist[0] = now, the rest
// zero, with last_reference_time also set to now.
func NewHistory(k int, now int64) *History {
	if k < 1 {
		panic("block: K must be >= 1")
	}
	hist := make([]int64, k)
	hist[0] = now
	return &History{k: k, hist: hist, lastReferenceTime: now}
}

// Order is the backward K-distance key victim selection sorts on: the K-th
// most recent reference time. Smaller is colder. A value of 0 is the
// sentinel meaning "fewer than K historical references."
func (h *History) Order() int64 { return h.hist[h.k-1] }

// IsSentinel reports whether this block has not yet accumulated K historical
// references.
func (h *History) IsSentinel() bool { return h.hist[h.k-1] == 0 }

// LastReferenceTime is the monotonic timestamp of the most recent reference.
func (h *History) LastReferenceTime() int64 { return h.lastReferenceTime }

// UpdateMiss records a reference for a block that was just loaded into a
// frame (or is being referenced for the first time despite already being
// resident — the sentinel case): shift hist right by one, then set hist[0]
// and last_reference_time to now.
func (h *History) UpdateMiss(now int64) {
	for i := h.k - 1; i >= 1; i-- {
		h.hist[i] = h.hist[i-1]
	}
	h.hist[0] = now
	h.lastReferenceTime = now
}

// UpdateHit records a reference for a block already resident in a frame. If
// the elapsed time since the last reference is within the correlated
// reference period (CRT, compared in milliseconds), the burst is collapsed
// into a single logical access and only last_reference_time advances.
// Otherwise the correlated period that just closed (delta =
// last_reference_time - hist[0]) is folded into every historical slot before
// hist[0] and last_reference_time move to now.
func (h *History) UpdateHit(now int64, crtMillis int64) {
	if now/1_000_000-h.lastReferenceTime/1_000_000 > crtMillis {
		delta := h.lastReferenceTime - h.hist[0]
		for i := h.k - 1; i >= 1; i-- {
			h.hist[i] = h.hist[i-1] + delta
		}
		h.hist[0] = now
	}
	h.lastReferenceTime = now
}

// Reset drops all history back to the sentinel state as of now. Used by the
// retention sweep (RIT) on a block dormant longer than the retained-info
// period: afterwards Order() is 0, the value victim selection treats as
// coldest, and LastReferenceTime() is now, so the block is inside its
// correlated window again until CRT elapses.
func (h *History) Reset(now int64) {
	for i := range h.hist {
		h.hist[i] = 0
	}
	h.hist[0] = now
	h.lastReferenceTime = now
}
