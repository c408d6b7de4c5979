package bufferpool

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/lunadb/internal/storage"
)

// newTestPool creates a temporary directory, StorageManager and buffer pool for testing.
// It returns the pool and a cleanup function.
func newTestPool(t *testing.T, capacity int) (*Pool, storage.LocalFileSet, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "lunadb-bp-*")
	require.NoError(t, err)

	sm := storage.NewStorageManager()
	fs := storage.LocalFileSet{
		Dir:  dir,
		Base: "testtable",
	}

	pool := NewPool(sm, fs, capacity)

	cleanup := func() {
		_ = os.RemoveAll(dir)
	}

	return pool, fs, cleanup
}

func pinCount(t *testing.T, p *Pool, pageID uint32) int32 {
	t.Helper()
	n, ok := p.bpm.GetPinCount(pageID)
	require.True(t, ok, "page %d not resident", pageID)
	return int32(n)
}

func TestPool_GetPage_LoadsAndPins(t *testing.T) {
	pool, _, cleanup := newTestPool(t, 4)
	defer cleanup()

	page1, err := pool.GetPage(0)
	require.NoError(t, err)
	require.NotNil(t, page1)
	require.Equal(t, uint32(0), page1.PageID())
	require.Equal(t, int32(1), pinCount(t, pool, 0))
	require.False(t, pool.bpm.frames[pool.bpm.pageTable[0]].IsDirty())

	// Second GetPage for the same page increases the pin count.
	page2, err := pool.GetPage(0)
	require.NoError(t, err)
	require.Equal(t, page1.PageID(), page2.PageID())
	require.Equal(t, int32(2), pinCount(t, pool, 0))
}

func TestPool_GetPage_Full_NoFreeFrameError(t *testing.T) {
	pool, _, cleanup := newTestPool(t, 1)
	defer cleanup()

	page0, err := pool.GetPage(0)
	require.NoError(t, err)
	require.NotNil(t, page0)
	require.Equal(t, int32(1), pinCount(t, pool, 0))

	// A different page can't be loaded while the only frame stays pinned.
	_, err = pool.GetPage(1)
	require.ErrorIs(t, err, ErrNoFreeFrame)
}

func TestPool_EvictDirtyFrameAndFlush(t *testing.T) {
	pool, fs, cleanup := newTestPool(t, 1)
	defer cleanup()

	page0, err := pool.GetPage(0)
	require.NoError(t, err)
	require.NotNil(t, page0)

	buf := page0.Buf
	require.NotEmpty(t, buf)
	buf[0] = 42

	require.NoError(t, pool.Unpin(page0, true))
	require.Equal(t, int32(0), pinCount(t, pool, 0))

	// Requesting page 1 forces eviction of page 0, which must flush first.
	page1, err := pool.GetPage(1)
	require.NoError(t, err)
	require.NotNil(t, page1)

	sm := storage.NewStorageManager()
	reloaded, err := sm.LoadPage(fs, 0)
	require.NoError(t, err)
	require.Equal(t, byte(42), reloaded.Buf[0])
}

func TestPool_FlushAll_WritesDirtyFrames(t *testing.T) {
	pool, fs, cleanup := newTestPool(t, 2)
	defer cleanup()

	page0, err := pool.GetPage(0)
	require.NoError(t, err)
	page1, err := pool.GetPage(1)
	require.NoError(t, err)

	page0.Buf[10] = 11
	page1.Buf[20] = 22

	require.NoError(t, pool.Unpin(page0, true))
	require.NoError(t, pool.Unpin(page1, true))

	require.NoError(t, pool.FlushAll())

	sm := storage.NewStorageManager()

	reloaded0, err := sm.LoadPage(fs, 0)
	require.NoError(t, err)
	require.Equal(t, byte(11), reloaded0.Buf[10])

	reloaded1, err := sm.LoadPage(fs, 1)
	require.NoError(t, err)
	require.Equal(t, byte(22), reloaded1.Buf[20])
}

// Optional: verify default capacity is used when capacity <= 0.
func TestNewPool_DefaultCapacity(t *testing.T) {
	sm := storage.NewStorageManager()
	dir := t.TempDir()
	fs := storage.LocalFileSet{
		Dir:  dir,
		Base: "testtable",
	}

	pool := NewPool(sm, fs, 0)
	require.Len(t, pool.bpm.frames, DefaultCapacity)

	page, err := pool.GetPage(0)
	require.NoError(t, err)
	require.NotNil(t, page)
}
