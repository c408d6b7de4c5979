package storage

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// FileSet is a relation's on-disk identity: something that can open its
// numbered segment files.
type FileSet interface {
	OpenSegment(segNo int32) (*os.File, error)
}

var _ FileSet = (*LocalFileSet)(nil)

// LocalFileSet stores a relation as Base, Base.1, Base.2, ... inside Dir.
type LocalFileSet struct {
	Dir  string
	Base string
}

func (lfs LocalFileSet) OpenSegment(segNo int32) (*os.File, error) {
	path := filepath.Join(lfs.Dir, SegFileName(lfs.Base, segNo))
	if err := os.MkdirAll(lfs.Dir, 0o755); err != nil {
		return nil, err
	}
	// read-write, create if missing, never truncate
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
}

func closeQuiet(f *os.File) {
	if err := f.Close(); err != nil {
		slog.Warn("storage: close segment file", "path", f.Name(), "err", err)
	}
}

// StorageManager translates a relation-local page id into (segment,
// offset) and moves whole pages between memory and disk. It is stateless;
// one instance serves every relation in the process.
type StorageManager struct{}

func NewStorageManager() *StorageManager {
	return &StorageManager{}
}

func pagesPerSegment() int32 {
	return int32(SegmentSize / PageSize)
}

func locate(pageID int32) (segNo int32, offset int64) {
	pps := pagesPerSegment()
	return pageID / pps, int64(pageID%pps) * PageSize
}

// ReadPage reads exactly one page into dst. Reads past the current end of
// the segment zero-fill the remainder, so a page that was never written
// comes back as all zeroes rather than an error. Higher layers use this
// to lazily initialize pages.
func (sm *StorageManager) ReadPage(fs FileSet, pageID int32, dst []byte) error {
	if len(dst) != PageSize {
		return fmt.Errorf("storage: dst must be exactly %d bytes", PageSize)
	}
	segNo, off := locate(pageID)
	f, err := fs.OpenSegment(segNo)
	if err != nil {
		return err
	}
	defer closeQuiet(f)

	n, err := f.ReadAt(dst, off)
	if err != nil && err != io.EOF {
		return err
	}
	for i := n; i < PageSize; i++ {
		dst[i] = 0
	}
	return nil
}

// WritePage writes exactly one page from src at pageID's location.
func (sm *StorageManager) WritePage(fs FileSet, pageID int32, src []byte) error {
	if len(src) != PageSize {
		return fmt.Errorf("storage: src must be exactly %d bytes", PageSize)
	}
	segNo, off := locate(pageID)
	f, err := fs.OpenSegment(segNo)
	if err != nil {
		return err
	}
	defer closeQuiet(f)

	n, err := f.WriteAt(src, off)
	if err != nil {
		return err
	}
	if n != PageSize {
		return io.ErrShortWrite
	}
	return nil
}

// LoadPage reads a page into a fresh buffer and wraps it. All-zero bytes
// mean the page was never materialized; it gets a slotted header stamped
// with pageID before being returned.
func (sm *StorageManager) LoadPage(fs FileSet, pageID uint32) (*Page, error) {
	buf := make([]byte, PageSize)
	if err := sm.ReadPage(fs, int32(pageID), buf); err != nil {
		return nil, err
	}
	p := &Page{Buf: buf}
	if p.IsUninitialized() {
		p.init(pageID)
	}
	return p, nil
}

// SavePage writes the in-memory page back to disk.
func (sm *StorageManager) SavePage(fs FileSet, pageID uint32, p Page) error {
	if len(p.Buf) != PageSize {
		return fmt.Errorf("storage: page buffer must be %d bytes", PageSize)
	}
	return sm.WritePage(fs, int32(pageID), p.Buf)
}

// CountPages sums the sizes of a LocalFileSet's existing segment files.
// It scans the directory instead of probing OpenSegment, which would
// create the very files it is looking for.
func (sm *StorageManager) CountPages(fs FileSet) (uint32, error) {
	_, lfs, ok := FsKeyOf(fs)
	if !ok {
		return 0, fmt.Errorf("storage: cannot count pages of non-local FileSet")
	}

	segs, err := listSegmentsLocal(lfs)
	if err != nil {
		return 0, err
	}

	var total uint32
	for _, segNo := range segs {
		info, err := os.Stat(filepath.Join(lfs.Dir, SegFileName(lfs.Base, segNo)))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += uint32(info.Size() / PageSize)
	}
	return total, nil
}
