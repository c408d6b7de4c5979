package storage

import "github.com/tuannm99/lunadb/pkg/bx"

// Overflow pages hold values too large for a heap tuple, chained into a
// singly linked list. Layout:
//
//	off 0  u32  next page id (overflowNoNext on the last page)
//	off 4  u16  bytes used in this page
//	off 6  ...  payload, up to PageSize-6 bytes
const (
	overflowOffNext           = 0
	overflowOffLen            = 4
	overflowHeaderSize        = 6
	overflowNoNext     uint32 = 0xFFFFFFFF
)

// OverflowRef is the small handle a heap tuple keeps in place of the
// actual value: the head of the chain plus the total value length.
type OverflowRef struct {
	FirstPageID uint32 `json:"first_page_id"`
	Length      uint32 `json:"length"`
}

// OverflowManager reads and writes chained overflow values in a dedicated
// FileSet, typically "<table>_ovf" next to the table's data files.
type OverflowManager struct {
	sm *StorageManager
	fs FileSet
}

func NewOverflowManager(sm *StorageManager, fs FileSet) *OverflowManager {
	return &OverflowManager{sm: sm, fs: fs}
}

// allocatePage appends: the next free page id is the current page count.
// Not safe for concurrent writers to the same overflow FileSet; the heap
// layer serializes overflow writes per table.
func (om *OverflowManager) allocatePage() (uint32, error) {
	return om.sm.CountPages(om.fs)
}

// Write chops value into page-sized chunks, links them, and returns the
// ref to store in the owning tuple. A zero-length value still gets one
// (empty) page so the ref always points at a real chain head.
func (om *OverflowManager) Write(value []byte) (OverflowRef, error) {
	payloadMax := PageSize - overflowHeaderSize

	var (
		firstPageID uint32
		prevPageID  uint32
		prevBuf     []byte
	)

	// each page reaches disk only once its successor is known, so the page
	// count is read once and the chain's ids are handed out from it
	nextPageID, err := om.allocatePage()
	if err != nil {
		return OverflowRef{}, err
	}

	offset := 0
	for {
		chunk := len(value) - offset
		if chunk > payloadMax {
			chunk = payloadMax
		}

		pageID := nextPageID
		nextPageID++

		buf := make([]byte, PageSize)
		bx.PutU32(buf[overflowOffNext:], overflowNoNext)
		bx.PutU16(buf[overflowOffLen:], uint16(chunk))
		copy(buf[overflowHeaderSize:], value[offset:offset+chunk])

		if prevBuf == nil {
			firstPageID = pageID
		} else {
			// the previous page only learns its successor now, so it is
			// written one iteration late
			bx.PutU32(prevBuf[overflowOffNext:], pageID)
			if err := om.sm.WritePage(om.fs, int32(prevPageID), prevBuf); err != nil {
				return OverflowRef{}, err
			}
		}
		prevPageID = pageID
		prevBuf = buf

		offset += chunk
		if offset >= len(value) {
			break
		}
	}

	if err := om.sm.WritePage(om.fs, int32(prevPageID), prevBuf); err != nil {
		return OverflowRef{}, err
	}

	return OverflowRef{FirstPageID: firstPageID, Length: uint32(len(value))}, nil
}

// Read walks the chain and reassembles the value described by ref.
func (om *OverflowManager) Read(ref OverflowRef) ([]byte, error) {
	if ref.Length == 0 {
		return []byte{}, nil
	}

	result := make([]byte, ref.Length)
	remaining := int(ref.Length)
	pageID := ref.FirstPageID
	pos := 0

	buf := make([]byte, PageSize)
	for {
		if err := om.sm.ReadPage(om.fs, int32(pageID), buf); err != nil {
			return nil, err
		}

		nextID := bx.U32(buf[overflowOffNext:])
		used := int(bx.U16(buf[overflowOffLen:]))
		if used > PageSize-overflowHeaderSize {
			used = PageSize - overflowHeaderSize
		}
		if used > remaining {
			used = remaining
		}

		copy(result[pos:pos+used], buf[overflowHeaderSize:overflowHeaderSize+used])
		pos += used
		remaining -= used

		if remaining <= 0 || nextID == overflowNoNext {
			break
		}
		pageID = nextID
	}

	if remaining > 0 {
		return nil, ErrPageCorrupted
	}
	return result, nil
}

// Free scrubs the chain behind ref: each page is zeroed and unlinked so
// the dead value can no longer be read. The file space itself is not
// reclaimed or reused.
func (om *OverflowManager) Free(ref OverflowRef) error {
	if ref.Length == 0 {
		return nil
	}

	pageID := ref.FirstPageID
	buf := make([]byte, PageSize)
	zero := make([]byte, PageSize)

	remaining := int(ref.Length)
	for remaining > 0 {
		if err := om.sm.ReadPage(om.fs, int32(pageID), buf); err != nil {
			return err
		}
		nextID := bx.U32(buf[overflowOffNext:])
		used := int(bx.U16(buf[overflowOffLen:]))
		if used > PageSize-overflowHeaderSize {
			used = PageSize - overflowHeaderSize
		}

		if err := om.sm.WritePage(om.fs, int32(pageID), zero); err != nil {
			return err
		}

		remaining -= used
		if nextID == overflowNoNext {
			break
		}
		pageID = nextID
	}
	return nil
}
