package bufferpool

import (
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

var logPrefix = "bufferpool: "

// BufferPoolManager owns a fixed array of frames and arbitrates the
// page-to-frame mapping for one page space. It coordinates fetches,
// evictions and flushes with the LRU-K replacer and a backing PageStore,
// and hands out scoped page guards rather than raw pointers.
type BufferPoolManager struct {
	numFrames int
	k         int

	mu        sync.Mutex
	frames    []*FrameHeader
	pageTable map[uint32]int // pageID -> frameID
	freeList  []int
	written   map[uint32]struct{} // pages ever flushed to the store

	replacer *LRUKReplacer
	store    PageStore
	sched    *DiskScheduler

	nextPageID atomic.Uint32

	unpinCh chan unpinRequest
	wg      conc.WaitGroup
	closeCh chan struct{}
	closed  bool
}

// NewBufferPoolManager builds a pool of numFrames frames using k-history
// LRU-K replacement, backed by store. It spawns the disk scheduler and the
// dedicated unpin worker immediately.
func NewBufferPoolManager(numFrames, k int, store PageStore) *BufferPoolManager {
	frames := make([]*FrameHeader, numFrames)
	freeList := make([]int, numFrames)
	for i := range frames {
		frames[i] = newFrameHeader(i)
		freeList[i] = i
	}

	m := &BufferPoolManager{
		numFrames: numFrames,
		k:         k,
		frames:    frames,
		pageTable: make(map[uint32]int, numFrames),
		freeList:  freeList,
		written:   make(map[uint32]struct{}),
		replacer:  NewLRUKReplacer(numFrames, k),
		store:     store,
		sched:     NewDiskScheduler(store),
		unpinCh:   make(chan unpinRequest),
		closeCh:   make(chan struct{}),
	}

	// A store that already holds pages (a reopened relation) seeds the
	// written set, so fetches of pre-existing pages read them back
	// instead of handing out zeroed buffers, and fresh page ids start
	// past them.
	if sized, ok := store.(interface{ ExistingPages() (uint32, error) }); ok {
		if n, err := sized.ExistingPages(); err == nil {
			for pid := uint32(0); pid < n; pid++ {
				m.written[pid] = struct{}{}
			}
			m.nextPageID.Store(n)
		}
	}

	m.wg.Go(m.unpinWorker)
	return m
}

// NewPageID allocates a fresh, never-before-used page id.
func (m *BufferPoolManager) NewPageID() uint32 {
	return m.nextPageID.Inc() - 1
}

// unpinWorker is the dedicated goroutine that performs pin decrements under
// the central lock, breaking the lock-inversion that would otherwise occur
// if guard.Release() acquired the central lock while still holding the
// frame's own latch.
func (m *BufferPoolManager) unpinWorker() {
	for {
		select {
		case req := <-m.unpinCh:
			m.mu.Lock()
			f := m.frames[req.frameID]
			if req.dirty {
				f.SetDirty(true)
			}
			newPin := f.DecrPin()
			if newPin == 0 {
				m.replacer.SetEvictable(req.frameID, true)
			}
			m.mu.Unlock()
			close(req.ack)
		case <-m.closeCh:
			return
		}
	}
}

func (m *BufferPoolManager) requestUnpin(frameID int, dirty bool) {
	ack := make(chan struct{})
	m.unpinCh <- unpinRequest{frameID: frameID, dirty: dirty, ack: ack}
	<-ack
}

// acquireFrameLocked implements the frame acquisition algorithm: reuse a
// resident frame, else a free one, else evict. Must be called with m.mu
// held; returns the frame index or ErrNoFreeFrame.
func (m *BufferPoolManager) acquireFrameLocked(pageID uint32) (int, error) {
	if idx, ok := m.pageTable[pageID]; ok {
		return idx, nil
	}

	var idx int
	if n := len(m.freeList); n > 0 {
		idx = m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
	} else {
		victimIdx, ok := m.replacer.Evict()
		if !ok {
			return -1, ErrNoFreeFrame
		}
		if err := m.evictFrameLocked(victimIdx); err != nil {
			return -1, err
		}
		idx = victimIdx
	}

	f := m.frames[idx]
	f.reset()
	f.SetPageID(pageID, true)

	if _, everWritten := m.written[pageID]; everWritten {
		buf, err := f.TakeData()
		if err != nil {
			return -1, err
		}
		buf, err = m.sched.Read(pageID, buf)
		f.PutData(buf)
		if err != nil {
			return -1, err
		}
	}

	m.pageTable[pageID] = idx
	return idx, nil
}

// evictFrameLocked flushes the victim frame if dirty and detaches it from
// the page table, leaving it ready for reassignment. Called with m.mu held;
// holds the victim's write latch while it works.
func (m *BufferPoolManager) evictFrameLocked(idx int) error {
	f := m.frames[idx]
	f.latch.Lock()
	defer f.latch.Unlock()
	oldID, ok := f.GetPageID()
	if !ok {
		return nil
	}

	if f.IsDirty() {
		buf, err := f.TakeData()
		if err != nil {
			return err
		}
		buf, err = m.sched.Write(oldID, buf)
		f.PutData(buf)
		if err != nil {
			return err
		}
		f.SetDirty(false)
		m.written[oldID] = struct{}{}
	}

	delete(m.pageTable, oldID)
	f.SetPageID(0, false)
	return nil
}

func (m *BufferPoolManager) pinLocked(idx int) {
	f := m.frames[idx]
	f.IncrPin()
	m.replacer.RecordAccess(idx)
	m.replacer.SetEvictable(idx, false)
}

// pinLegacy fetches pageID (allocating/evicting as needed) and increments
// its pin count, but never touches the frame latch: the legacy Manager
// facade predates per-frame latching and its callers (heap.Table, the
// btree) never hold a frame across goroutines, so a coarse central-lock-
// only discipline is sufficient and avoids the self-deadlock that a
// repeated-fetch-before-unpin call pattern would hit against an exclusive
// latch.
func (m *BufferPoolManager) pinLegacy(pageID uint32) (*FrameHeader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrPoolClosed
	}
	idx, err := m.acquireFrameLocked(pageID)
	if err != nil {
		return nil, err
	}
	m.pinLocked(idx)
	return m.frames[idx], nil
}

// unpinLegacy decrements pageID's pin count and marks it dirty if
// requested, symmetric with pinLegacy.
func (m *BufferPoolManager) unpinLegacy(pageID uint32, dirty bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.pageTable[pageID]
	if !ok {
		return
	}
	f := m.frames[idx]
	if dirty {
		f.SetDirty(true)
	}
	if f.DecrPin() == 0 {
		m.replacer.SetEvictable(idx, true)
	}
}

// ReadPage acquires a shared-latch guard on pageID, fetching or evicting as
// needed. Returns ErrNoFreeFrame if the pool is full and nothing is
// evictable.
func (m *BufferPoolManager) ReadPage(pageID uint32) (*ReadPageGuard, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrPoolClosed
	}
	idx, err := m.acquireFrameLocked(pageID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.pinLocked(idx)
	f := m.frames[idx]
	m.mu.Unlock()

	f.latch.RLock()
	return &ReadPageGuard{bpm: m, frame: f, pageID: pageID}, nil
}

// WritePage acquires an exclusive-latch guard on pageID and marks the frame
// dirty immediately.
func (m *BufferPoolManager) WritePage(pageID uint32) (*WritePageGuard, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrPoolClosed
	}
	idx, err := m.acquireFrameLocked(pageID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.pinLocked(idx)
	f := m.frames[idx]
	m.mu.Unlock()

	f.latch.Lock()
	f.SetDirty(true)
	return &WritePageGuard{bpm: m, frame: f, pageID: pageID}, nil
}

// FlushPage synchronously submits pageID's bytes to the page store if
// dirty, clearing the dirty flag on success. A page not currently resident
// is silently ignored. Takes the frame's latch in shared mode only, so
// concurrent readers are unaffected; only a concurrent writer blocks.
func (m *BufferPoolManager) FlushPage(pageID uint32) error {
	m.mu.Lock()
	idx, ok := m.pageTable[pageID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	f := m.frames[idx]
	m.mu.Unlock()

	f.latch.RLock()
	if !f.IsDirty() {
		f.latch.RUnlock()
		return nil
	}
	scratch := newScratchBuffer()
	src, err := f.ReadableBytes()
	if err != nil {
		f.latch.RUnlock()
		return err
	}
	copy(scratch, src)
	f.latch.RUnlock()

	if _, err := m.sched.Write(pageID, scratch); err != nil {
		return err
	}

	m.mu.Lock()
	f.SetDirty(false)
	m.written[pageID] = struct{}{}
	m.mu.Unlock()
	return nil
}

// FlushAllPages flushes every currently resident page, returning a combined
// error (via go.uber.org/multierr) if any individual flush failed.
func (m *BufferPoolManager) FlushAllPages() error {
	m.mu.Lock()
	ids := make([]uint32, 0, len(m.pageTable))
	for id := range m.pageTable {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var errs error
	for _, id := range ids {
		if err := m.FlushPage(id); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// DeletePage removes pageID from the pool if it is resident and unpinned.
// Returns true if the page was absent or successfully removed, false if it
// is currently pinned.
func (m *BufferPoolManager) DeletePage(pageID uint32) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.pageTable[pageID]
	if !ok {
		return true, nil
	}
	f := m.frames[idx]
	if f.PinCount() > 0 {
		return false, nil
	}

	if f.IsDirty() {
		buf, err := f.TakeData()
		if err != nil {
			return false, err
		}
		buf, err = m.sched.Write(pageID, buf)
		f.PutData(buf)
		if err != nil {
			return false, err
		}
		m.written[pageID] = struct{}{}
	}

	delete(m.pageTable, pageID)
	m.replacer.Remove(idx)
	f.reset()
	m.freeList = append(m.freeList, idx)
	return true, nil
}

// GetPinCount is a test-only accessor for a resident page's pin count.
func (m *BufferPoolManager) GetPinCount(pageID uint32) (uint16, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.pageTable[pageID]
	if !ok {
		return 0, false
	}
	return uint16(m.frames[idx].PinCount()), true
}

// Close flushes every dirty page and stops the manager's background
// workers. The manager must not be used afterward.
func (m *BufferPoolManager) Close() error {
	err := m.FlushAllPages()

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	close(m.closeCh)
	m.wg.Wait()
	m.sched.Shutdown()

	if closer, ok := m.store.(interface{ Close() error }); ok {
		if cerr := closer.Close(); cerr != nil {
			slog.Error(logPrefix+"close page store failed", "err", cerr)
			err = multierr.Append(err, cerr)
		}
	}
	return err
}
