// Package clock abstracts the monotonic nanosecond timestamp source the
// LRU-K history math (block.History) and the buffer pool's CRT/RIT checks
// read from, so tests can drive exact millisecond-precision scenarios
// instead of racing a real clock.
package clock

import "time"

// Clock returns a monotonic nanosecond timestamp.
type Clock interface {
	NowNanos() int64
}

// processStart pins the monotonic reading every System clock measures from.
// time.Now().UnixNano() would strip the monotonic component and return raw
// wall-clock time, which can jump backward under NTP adjustment and corrupt
// the strictly-increasing timestamps block.History.Order() depends on;
// time.Since keeps comparing the monotonic reading instead.
var processStart = time.Now()

// System is the production Clock. It reports nanoseconds elapsed since
// process start rather than a wall-clock timestamp — history math only ever
// compares two NowNanos() readings, never the absolute value.
type System struct{}

func (System) NowNanos() int64 { return time.Since(processStart).Nanoseconds() }

// Fake is a settable Clock for deterministic tests phrased in exact
// milliseconds ("t=0 pin A", "t=150 pin D").
type Fake struct {
	nanos int64
}

// NewFake creates a Fake clock starting at the given nanosecond timestamp.
func NewFake(startNanos int64) *Fake { return &Fake{nanos: startNanos} }

func (f *Fake) NowNanos() int64 { return f.nanos }

// Set moves the fake clock to an absolute nanosecond timestamp.
func (f *Fake) Set(nanos int64) { f.nanos = nanos }

// Advance moves the fake clock forward by the given number of milliseconds.
func (f *Fake) Advance(millis int64) { f.nanos += millis * 1_000_000 }
