package bufferpool

import "errors"

var (
	// ErrNoFreeFrame is returned when no unpinned frame is available for
	// replacement (the pool is exhausted: every frame is pinned).
	ErrNoFreeFrame = errors.New("bufferpool: no free frame available (all pinned)")

	// ErrPagePinned is returned when trying to evict/delete a pinned page.
	ErrPagePinned = errors.New("bufferpool: page is pinned")

	// ErrInvalidFrameID is a contract violation: a frame id outside
	// [0, num_frames) was presented to the replacer or the manager.
	ErrInvalidFrameID = errors.New("bufferpool: invalid frame id")

	// ErrFrameTransient is returned by operations that touch a frame's data
	// buffer while it has been handed off to the disk scheduler and not yet
	// returned.
	ErrFrameTransient = errors.New("bufferpool: frame buffer is transient (in flight to disk scheduler)")

	// ErrUnsupportedFileSet is returned when GlobalPool cannot key a FileSet
	// implementation (it only understands storage.LocalFileSet).
	ErrUnsupportedFileSet = errors.New("bufferpool: unsupported FileSet (global pool requires LocalFileSet)")

	// ErrPoolClosed is returned by ReadPage, WritePage and the legacy Pool's
	// GetPage once the manager has been closed.
	ErrPoolClosed = errors.New("bufferpool: manager is closed")
)

// DefaultCapacity is the frame count used by NewPool/NewGlobalPool when the
// caller passes capacity <= 0.
var DefaultCapacity = 128

// DefaultK is the LRU-K history depth used by NewPool and NewGlobalPool, and
// by NewGlobalPoolWithK when it is given k < 1.
const DefaultK = 2
