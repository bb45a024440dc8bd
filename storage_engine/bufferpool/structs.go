package bufferpool

import (
	"log"
	"os"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// logger reports hits, misses, evictions and flushes, one line per event.
var logger = log.New(os.Stdout, "[bufferpool] ", log.LstdFlags)

// ErrNoBufferAvailable is returned by Pin/PinNew when every frame is pinned
// and none can be reclaimed.
var ErrNoBufferAvailable = errors.New("bufferpool: no buffer available")

func assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(errors.Errorf("bufferpool: invariant violation: "+format, args...))
	}
}

// Stats are cumulative counters exposed for diagnostics; they never affect
// pool behavior.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Starved   uint64 // Pin/PinNew calls that returned ErrNoBufferAvailable
}

type statCounters struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	starved   atomic.Uint64
}

func (c *statCounters) snapshot() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Starved:   c.starved.Load(),
	}
}

// starvationEvent is a single occurrence of Pin/PinNew failing to find a
// victim, kept in a small bounded LRU for operator diagnostics.
type starvationEvent struct {
	atNanos int64
	reason  string
}

func newStarvationLog(capacity int) *lru.Cache {
	c, err := lru.New(capacity)
	if err != nil {
		// lru.New only errors on capacity <= 0, which never happens here.
		panic(err)
	}
	return c
}
