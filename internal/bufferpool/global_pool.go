package bufferpool

import (
	"sync"

	"github.com/tuannm99/lunadb/internal/lock"
	"github.com/tuannm99/lunadb/internal/storage"
)

// PageTag identifies a page in the global pool: a relation key plus that
// relation's local page id.
type PageTag struct {
	FSKey  string
	PageID uint32
}

// gFrame is one slot of the GlobalPool. Unlike FrameHeader it remembers
// the owning FileSet, since one global pool multiplexes many relations;
// it has no per-frame latch because the legacy Manager contract was never
// latch-aware (see BufferPoolManager.pinLegacy for the same reasoning).
// pin counts outstanding GetPage calls against the current page.
type gFrame struct {
	tag   PageTag
	fs    storage.LocalFileSet
	page  *storage.Page
	dirty bool
	pin   *lock.RefCount
}

// GlobalPool is one shared buffer pool for every relation in the process
// (heap files, their overflow chains, every index), in the spirit of
// PostgreSQL's shared_buffers: a single LRU-K-managed frame budget that
// all tables and indexes compete for.
type GlobalPool struct {
	sm *storage.StorageManager

	mu     sync.Mutex
	frames []*gFrame
	table  map[PageTag]int // (fsKey,pageID) -> frame index
	repl   *LRUKReplacer
}

func NewGlobalPool(sm *storage.StorageManager, capacity int) *GlobalPool {
	return NewGlobalPoolWithK(sm, capacity, DefaultK)
}

// NewGlobalPoolWithK is NewGlobalPool with an explicit LRU-K history
// depth, for callers that surface it as configuration.
func NewGlobalPoolWithK(sm *storage.StorageManager, capacity, k int) *GlobalPool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if k < 1 {
		k = DefaultK
	}
	return &GlobalPool{
		sm:     sm,
		frames: make([]*gFrame, capacity),
		table:  make(map[PageTag]int),
		repl:   NewLRUKReplacer(capacity, k),
	}
}

// GetPage pins and returns the page (fs, pageID). Repeated calls while
// the page stays resident return the same *storage.Page.
func (g *GlobalPool) GetPage(fs storage.FileSet, pageID uint32) (*storage.Page, error) {
	key, lfs, ok := storage.FsKeyOf(fs)
	if !ok {
		return nil, ErrUnsupportedFileSet
	}
	tag := PageTag{FSKey: key, PageID: pageID}

	g.mu.Lock()
	defer g.mu.Unlock()

	if idx, ok := g.table[tag]; ok {
		f := g.frames[idx]
		wasZero := f.pin.Get() == 0
		f.pin.Inc()
		g.repl.RecordAccess(idx)
		if wasZero {
			g.repl.SetEvictable(idx, false)
		}
		return f.page, nil
	}

	idx, err := g.grabFrameLocked()
	if err != nil {
		return nil, err
	}

	page, err := g.sm.LoadPage(lfs, pageID)
	if err != nil {
		// the freed frame stays empty; nothing to roll back
		return nil, err
	}

	g.frames[idx] = &gFrame{
		tag:  tag,
		fs:   lfs,
		page: page,
		pin:  lock.NewRefCount(),
	}
	g.table[tag] = idx
	g.repl.RecordAccess(idx)
	g.repl.SetEvictable(idx, false)
	return page, nil
}

// grabFrameLocked returns an empty frame slot, evicting (and flushing)
// the LRU-K victim if every slot is occupied. Caller holds g.mu.
func (g *GlobalPool) grabFrameLocked() (int, error) {
	for i, f := range g.frames {
		if f == nil {
			return i, nil
		}
	}

	victimIdx, ok := g.repl.Evict()
	if !ok {
		return -1, ErrNoFreeFrame
	}
	victim := g.frames[victimIdx]

	if victim.dirty {
		if err := g.sm.SavePage(victim.fs, victim.tag.PageID, *victim.page); err != nil {
			// put the victim back; it is still evictable
			g.repl.RecordAccess(victimIdx)
			g.repl.SetEvictable(victimIdx, true)
			return -1, err
		}
		victim.dirty = false
	}

	delete(g.table, victim.tag)
	g.frames[victimIdx] = nil
	return victimIdx, nil
}

// Unpin drops one pin and optionally marks the page dirty. Unpinning a
// non-resident page is a no-op (the caller may have raced a DropFileSet).
func (g *GlobalPool) Unpin(fs storage.FileSet, page *storage.Page, dirty bool) error {
	if page == nil {
		return nil
	}
	key, _, ok := storage.FsKeyOf(fs)
	if !ok {
		return ErrUnsupportedFileSet
	}
	tag := PageTag{FSKey: key, PageID: page.PageID()}

	g.mu.Lock()
	defer g.mu.Unlock()

	idx, ok := g.table[tag]
	if !ok {
		return nil
	}
	f := g.frames[idx]
	if dirty {
		f.dirty = true
	}
	if f.pin.Get() > 0 && f.pin.Dec() {
		g.repl.SetEvictable(idx, true)
	}
	return nil
}

// FlushAll writes back every dirty page in the pool.
func (g *GlobalPool) FlushAll() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, f := range g.frames {
		if f == nil || !f.dirty {
			continue
		}
		if err := g.sm.SavePage(f.fs, f.tag.PageID, *f.page); err != nil {
			return err
		}
		f.dirty = false
	}
	return nil
}

// FlushFileSet writes back the dirty pages of one relation only.
func (g *GlobalPool) FlushFileSet(fs storage.FileSet) error {
	key, _, ok := storage.FsKeyOf(fs)
	if !ok {
		return ErrUnsupportedFileSet
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, f := range g.frames {
		if f == nil || !f.dirty || f.tag.FSKey != key {
			continue
		}
		if err := g.sm.SavePage(f.fs, f.tag.PageID, *f.page); err != nil {
			return err
		}
		f.dirty = false
	}
	return nil
}

// DropFileSet evicts ALL of a relation's pages from the pool, flushing
// dirty ones. Must run before the relation's files are removed or
// renamed; refuses with ErrPagePinned while any of its pages is pinned.
func (g *GlobalPool) DropFileSet(fs storage.FileSet) error {
	key, _, ok := storage.FsKeyOf(fs)
	if !ok {
		return ErrUnsupportedFileSet
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, f := range g.frames {
		if f != nil && f.tag.FSKey == key && f.pin.Get() != 0 {
			return ErrPagePinned
		}
	}

	for i, f := range g.frames {
		if f == nil || f.tag.FSKey != key {
			continue
		}
		if f.dirty {
			if err := g.sm.SavePage(f.fs, f.tag.PageID, *f.page); err != nil {
				return err
			}
		}
		delete(g.table, f.tag)
		g.frames[i] = nil
		g.repl.Remove(i)
	}
	return nil
}
