package bufferpool

import (
	"github.com/tuannm99/lunadb/internal/storage"
)

// Manager is the simple, pin/unpin-style buffer pool interface used by
// table- and index-level code that predates scoped page guards. Pool
// implements it over a BufferPoolManager and FileSetView over the shared
// GlobalPool, so heap.Table, the btree, and the SQL executor don't need to
// be rewritten against guards.
type Manager interface {
	// GetPage returns a page from the buffer pool (pin count is increased).
	GetPage(pageID uint32) (*storage.Page, error)

	// Unpin decreases pin count and marks the page dirty if needed.
	Unpin(page *storage.Page, dirty bool) error

	// FlushAll flushes all dirty pages to disk.
	FlushAll() error
}

var _ Manager = (*Pool)(nil)

// smFileStore adapts a storage.StorageManager + FileSet pair to PageStore,
// so a BufferPoolManager can sit directly on top of the existing on-disk
// segment format instead of requiring its own file layout.
type smFileStore struct {
	sm *storage.StorageManager
	fs storage.FileSet
}

func (s smFileStore) ReadPage(pageID uint32, buf []byte) error {
	page, err := s.sm.LoadPage(s.fs, pageID)
	if err != nil {
		return err
	}
	copy(buf, page.Buf)
	return nil
}

func (s smFileStore) WritePage(pageID uint32, buf []byte) error {
	return s.sm.SavePage(s.fs, pageID, storage.Page{Buf: buf})
}

// ExistingPages lets the manager seed its written-pages set when the
// relation already has pages on disk.
func (s smFileStore) ExistingPages() (uint32, error) {
	return s.sm.CountPages(s.fs)
}

// Pool is a fixed-size buffer pool bound to one FileSet, backed by a
// BufferPoolManager using LRU-K replacement.
type Pool struct {
	bpm *BufferPoolManager
}

// NewPool creates a new buffer pool with the given capacity. If capacity
// <= 0, DefaultCapacity is used.
func NewPool(sm *storage.StorageManager, fs storage.FileSet, capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	store := smFileStore{sm: sm, fs: fs}
	return &Pool{bpm: NewBufferPoolManager(capacity, DefaultK, store)}
}

// GetPage returns a page from the buffer pool, pinning it. If the page is
// not resident, it is loaded via the pool's PageStore. Replacement for a
// full pool uses LRU-K.
func (p *Pool) GetPage(pageID uint32) (*storage.Page, error) {
	f, err := p.bpm.pinLegacy(pageID)
	if err != nil {
		return nil, err
	}
	buf, err := f.ReadableBytes()
	if err != nil {
		return nil, err
	}
	page := storage.Page{Buf: buf}
	if page.IsUninitialized() {
		// A brand-new page id that has never been flushed: the manager
		// hands back a zeroed buffer (it doesn't know about the slotted
		// page format), so stamp the header here.
		page = storage.NewPage(buf, pageID)
	}
	return &page, nil
}

// Unpin decreases the pin count of a page and marks it dirty if needed.
func (p *Pool) Unpin(page *storage.Page, dirty bool) error {
	if page == nil {
		return nil
	}
	p.bpm.unpinLegacy(page.PageID(), dirty)
	return nil
}

// FlushAll flushes all dirty frames to disk.
func (p *Pool) FlushAll() error {
	return p.bpm.FlushAllPages()
}

// DeletePageFromBuffer removes a page from the buffer pool (buffer only,
// not disk). Fails if the page is currently pinned.
func (p *Pool) DeletePageFromBuffer(pageID uint32) error {
	ok, err := p.bpm.DeletePage(pageID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPagePinned
	}
	return nil
}

// Close flushes and shuts down the underlying manager.
func (p *Pool) Close() error {
	return p.bpm.Close()
}
