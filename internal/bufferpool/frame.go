package bufferpool

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/tuannm99/lunadb/internal/storage"
)

// FrameHeader is one slot in the buffer pool's fixed frame array. It owns a
// PAGE_SIZE byte buffer and the metadata needed to decide whether the frame
// may be reused: which page (if any) currently lives there, whether it has
// unflushed writes, and how many guards currently pin it.
//
// frameID never changes after construction. Everything else is mutated
// either under the pool's central lock (pageID, resident, the free/pinned
// bookkeeping) or under the frame's own latch (data, dirty).
type FrameHeader struct {
	frameID int

	latch sync.RWMutex

	pageID   uint32
	resident bool

	dirty atomic.Bool
	pin   atomic.Int32

	data  []byte
	taken bool // true while data has been handed to the disk scheduler
}

func newFrameHeader(frameID int) *FrameHeader {
	return &FrameHeader{
		frameID: frameID,
		data:    make([]byte, storage.PageSize),
	}
}

func (f *FrameHeader) FrameID() int { return f.frameID }

// SetPageID assigns the frame to page id, or marks it free when ok is false.
func (f *FrameHeader) SetPageID(id uint32, ok bool) {
	f.pageID = id
	f.resident = ok
}

// GetPageID reports the frame's current page id, if any.
func (f *FrameHeader) GetPageID() (uint32, bool) {
	return f.pageID, f.resident
}

func (f *FrameHeader) SetDirty(v bool) { f.dirty.Store(v) }
func (f *FrameHeader) IsDirty() bool   { return f.dirty.Load() }

func (f *FrameHeader) IncrPin() int32 { return f.pin.Inc() }

func (f *FrameHeader) DecrPin() int32 {
	if f.pin.Load() == 0 {
		return 0
	}
	return f.pin.Dec()
}

func (f *FrameHeader) PinCount() int32 { return f.pin.Load() }

// TakeData hands the frame's buffer to the caller (the disk scheduler) and
// puts the frame into a transient state. Must be called while holding the
// frame's latch or the central lock during acquisition.
func (f *FrameHeader) TakeData() ([]byte, error) {
	if f.taken {
		return nil, ErrFrameTransient
	}
	f.taken = true
	buf := f.data
	f.data = nil
	return buf, nil
}

// PutData returns a previously-taken buffer, ending the transient state.
func (f *FrameHeader) PutData(buf []byte) {
	f.data = buf
	f.taken = false
}

// ReadableBytes is valid only while the caller holds the frame's latch
// (shared or exclusive) and the frame is not in a transient state.
func (f *FrameHeader) ReadableBytes() ([]byte, error) {
	if f.taken {
		return nil, ErrFrameTransient
	}
	return f.data, nil
}

// WritableBytes is valid only while the caller holds the frame's latch in
// exclusive mode.
func (f *FrameHeader) WritableBytes() ([]byte, error) {
	if f.taken {
		return nil, ErrFrameTransient
	}
	return f.data, nil
}

func (f *FrameHeader) reset() {
	f.pageID = 0
	f.resident = false
	f.dirty.Store(false)
	f.pin.Store(0)
	if f.data == nil {
		f.data = make([]byte, storage.PageSize)
	}
	f.taken = false
}
