// Package page holds the shared, format-agnostic page constants used by the
// buffer pool and its downward collaborators. The byte layout inside a page
// belongs to whatever access method wrote it; this package only fixes the
// system-wide page size and the formatter hook used to initialize a freshly
// allocated block. Pin count, dirty flag and the frame latch used to live on
// this struct in the original layout; they now live on frame.Frame, since a
// page's on-disk byte layout and a frame's residency bookkeeping are separate
// concerns.
package page

// Size is the fixed unit of disk I/O the buffer pool moves between the file
// manager and a frame.
const Size = 4096

// Formatter initializes the contents of a freshly allocated page, e.g. by
// writing a block header. It is applied once, in-memory, before the frame
// is handed back pinned from BufferPool.PinNew.
type Formatter func(data []byte)
