package bufferpool

import (
	"github.com/sourcegraph/conc"

	"github.com/tuannm99/lunadb/internal/storage"
)

// diskRequest is a Read or Write submitted to the scheduler. Buffer
// ownership transfers into the request and is returned via ack: no aliasing
// while the request is in flight.
type diskRequest struct {
	write  bool
	pageID uint32
	buf    []byte
	ack    chan diskResult
}

type diskResult struct {
	buf []byte
	err error
}

// DiskScheduler serializes all page I/O for one BufferPoolManager on a
// single background worker, so concurrent evictions and fetches never race
// on the backing PageStore.
type DiskScheduler struct {
	store   PageStore
	reqs    chan diskRequest
	wg      conc.WaitGroup
	closeCh chan struct{}
}

// NewDiskScheduler starts the worker goroutine immediately; call Shutdown
// to stop it once the owning manager is closed.
func NewDiskScheduler(store PageStore) *DiskScheduler {
	s := &DiskScheduler{
		store:   store,
		reqs:    make(chan diskRequest),
		closeCh: make(chan struct{}),
	}
	s.wg.Go(s.run)
	return s
}

func (s *DiskScheduler) run() {
	for {
		select {
		case req := <-s.reqs:
			s.serve(req)
		case <-s.closeCh:
			return
		}
	}
}

func (s *DiskScheduler) serve(req diskRequest) {
	var err error
	if req.write {
		err = s.store.WritePage(req.pageID, req.buf)
	} else {
		err = s.store.ReadPage(req.pageID, req.buf)
	}
	req.ack <- diskResult{buf: req.buf, err: err}
}

// Read blocks until the page has been read into buf (a fresh PAGE_SIZE
// buffer handed to the scheduler and returned on ack).
func (s *DiskScheduler) Read(pageID uint32, buf []byte) ([]byte, error) {
	ack := make(chan diskResult, 1)
	s.reqs <- diskRequest{write: false, pageID: pageID, buf: buf, ack: ack}
	res := <-ack
	return res.buf, res.err
}

// Write blocks until buf has been persisted for pageID.
func (s *DiskScheduler) Write(pageID uint32, buf []byte) ([]byte, error) {
	ack := make(chan diskResult, 1)
	s.reqs <- diskRequest{write: true, pageID: pageID, buf: buf, ack: ack}
	res := <-ack
	return res.buf, res.err
}

// Shutdown stops the worker goroutine. No in-flight request may be pending.
func (s *DiskScheduler) Shutdown() {
	close(s.closeCh)
	s.wg.Wait()
}

func newScratchBuffer() []byte {
	return make([]byte, storage.PageSize)
}
