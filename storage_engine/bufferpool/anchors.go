package bufferpool

import (
	"hash/fnv"
	"sync"
)

// anchorStripe is an array of mutexes keyed by hashing a block or file
// identity, so that concurrent pin() calls for the same block (or pinNew()
// calls appending to the same file) serialize on the same lock while
// unrelated blocks proceed independently.
type anchorStripe struct {
	locks []sync.Mutex
}

func newAnchorStripe(n int) *anchorStripe {
	if n <= 0 {
		n = 1
	}
	return &anchorStripe{locks: make([]sync.Mutex, n)}
}

func (a *anchorStripe) lockFor(key string) *sync.Mutex {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	idx := int(h.Sum64() % uint64(len(a.locks)))
	return &a.locks[idx]
}
