package heap

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/tuannm99/lunadb/internal/bufferpool"
	"github.com/tuannm99/lunadb/internal/record"
	"github.com/tuannm99/lunadb/internal/storage"
	"github.com/tuannm99/lunadb/pkg/bx"
)

// A heap tuple starts with one kind byte. Inline rows carry the encoded
// row right after it; overflowed rows carry only the chain ref.
const (
	rowKindInline   = byte(0)
	rowKindOverflow = byte(1)
)

// overflowRefSize is kind + first page id + length.
const overflowRefSize = 1 + 4 + 4

var ErrTableClosed = errors.New("heap: table is closed")

// Table is one heap file: a schema, the FileSet holding its pages, the
// buffer pool view those pages go through, and an overflow manager for
// rows that don't fit a page.
type Table struct {
	Name      string
	Schema    record.Schema
	SM        *storage.StorageManager
	FS        storage.FileSet
	BP        bufferpool.Manager
	PageCount uint32

	Overflow *storage.OverflowManager

	// invoked when PageCount grows, so the catalog can persist it;
	// failures are logged and swallowed
	pageCountHook func(pageCount uint32) error

	closed atomic.Bool
}

func NewTable(
	name string,
	schema record.Schema,
	sm *storage.StorageManager,
	fs storage.FileSet,
	bp bufferpool.Manager,
	ovf *storage.OverflowManager,
	pageCount uint32,
) *Table {
	return &Table{
		Name:      name,
		Schema:    schema,
		SM:        sm,
		FS:        fs,
		BP:        bp,
		PageCount: pageCount,
		Overflow:  ovf,
	}
}

func (t *Table) SetPageCountHook(fn func(pageCount uint32) error) {
	t.pageCountHook = fn
}

// Insert appends a row, growing the heap by one page whenever the last
// page has no room, and returns the new row's TID.
func (t *Table) Insert(values []any) (TID, error) {
	if err := t.ensureOpen(); err != nil {
		return TID{}, err
	}

	tuple, err := t.encodeTuple(values)
	if err != nil {
		return TID{}, err
	}

	pageID := uint32(0)
	if t.PageCount > 0 {
		pageID = t.PageCount - 1
	} else {
		t.PageCount = 1
	}
	grew := false

	for {
		p, err := t.BP.GetPage(pageID)
		if err != nil {
			return TID{}, err
		}

		slot, err := p.InsertTuple(tuple)
		if errors.Is(err, storage.ErrNoSpace) {
			_ = t.BP.Unpin(p, false)
			pageID = t.PageCount
			t.PageCount++
			grew = true
			continue
		}
		if err != nil {
			_ = t.BP.Unpin(p, false)
			return TID{}, err
		}
		if err := t.BP.Unpin(p, true); err != nil {
			return TID{}, err
		}

		if grew {
			t.notifyPageCount()
		}
		if err := t.Flush(); err != nil {
			return TID{}, err
		}
		return TID{PageID: pageID, Slot: uint16(slot)}, nil
	}
}

// Get reads one row. The TID may predate updates that relocated the row
// within its page; the forward pointer chain is followed.
func (t *Table) Get(id TID) ([]any, error) {
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}

	p, err := t.BP.GetPage(id.PageID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = t.BP.Unpin(p, false) }()

	slot, err := p.ResolveSlot(int(id.Slot))
	if err != nil {
		return nil, err
	}
	raw, err := p.ReadTuple(slot)
	if err != nil {
		return nil, err
	}
	return t.decodeTuple(raw)
}

// Update replaces the row at id. The row stays on its page (relocating
// to a fresh slot if it grew); a replaced overflow chain is scrubbed.
func (t *Table) Update(id TID, values []any) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}

	p, err := t.BP.GetPage(id.PageID)
	if err != nil {
		return err
	}
	dirty := false
	defer func() { _ = t.BP.Unpin(p, dirty) }()

	slot, err := p.ResolveSlot(int(id.Slot))
	if err != nil {
		return err
	}
	oldRef := t.overflowRefOf(p, slot)

	tuple, err := t.encodeTuple(values)
	if err != nil {
		return err
	}
	if _, err := p.UpdateTuple(slot, tuple); err != nil {
		return err
	}
	dirty = true

	t.freeOverflow(oldRef, id)
	return t.Flush()
}

// Delete marks the row dead and scrubs its overflow chain if it had one.
func (t *Table) Delete(id TID) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}

	p, err := t.BP.GetPage(id.PageID)
	if err != nil {
		return err
	}
	dirty := false
	defer func() { _ = t.BP.Unpin(p, dirty) }()

	slot, err := p.ResolveSlot(int(id.Slot))
	if err != nil {
		return err
	}
	oldRef := t.overflowRefOf(p, slot)

	p.DeleteTuple(slot)
	dirty = true

	t.freeOverflow(oldRef, id)
	return t.Flush()
}

// Scan calls fn for every live row in TID order. Dead and moved slots are
// skipped (a moved slot's row is visited at its new location).
func (t *Table) Scan(fn func(id TID, row []any) error) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}

	for pageID := uint32(0); pageID < t.PageCount; pageID++ {
		p, err := t.BP.GetPage(pageID)
		if err != nil {
			return err
		}

		err = func() error {
			for slot := 0; slot < p.NumSlots(); slot++ {
				raw, err := p.ReadTuple(slot)
				if errors.Is(err, storage.ErrBadSlot) {
					continue
				}
				if err != nil {
					return err
				}
				row, err := t.decodeTuple(raw)
				if err != nil {
					return err
				}
				if err := fn(TID{PageID: pageID, Slot: uint16(slot)}, row); err != nil {
					return err
				}
			}
			return nil
		}()
		_ = t.BP.Unpin(p, false)
		if err != nil {
			return err
		}
	}
	return t.Flush()
}

// Flush pushes the table's dirty pages down to disk and re-syncs the
// persisted page count.
func (t *Table) Flush() error {
	if err := t.BP.FlushAll(); err != nil {
		return err
	}
	t.notifyPageCount()
	return nil
}

func (t *Table) notifyPageCount() {
	if t.pageCountHook == nil {
		return
	}
	if err := t.pageCountHook(t.PageCount); err != nil {
		slog.Warn("heap: page count hook failed",
			"table", t.Name, "pageCount", t.PageCount, "err", err)
	}
}

// overflowRefOf returns the chain ref if the tuple at slot is an overflow
// pointer, else nil. Decode errors just mean "not an overflow tuple".
func (t *Table) overflowRefOf(p *storage.Page, slot int) *storage.OverflowRef {
	raw, err := p.ReadTuple(slot)
	if err != nil || len(raw) < overflowRefSize || raw[0] != rowKindOverflow {
		return nil
	}
	return &storage.OverflowRef{
		FirstPageID: bx.U32(raw[1:5]),
		Length:      bx.U32(raw[5:9]),
	}
}

// freeOverflow scrubs a dead chain. Failure leaks dead pages, which is
// tolerable; the row itself is already gone.
func (t *Table) freeOverflow(ref *storage.OverflowRef, id TID) {
	if ref == nil || t.Overflow == nil || ref.Length == 0 {
		return
	}
	if err := t.Overflow.Free(*ref); err != nil {
		slog.Warn("heap: freeing overflow chain failed",
			"table", t.Name, "tid", id.String(),
			"first", ref.FirstPageID, "len", ref.Length, "err", err)
	}
}

// encodeTuple encodes the row and decides inline vs overflow. The inline
// limit is one page minus header and one slot; anything bigger goes to
// the overflow manager and only the ref is stored on the heap page.
func (t *Table) encodeTuple(values []any) ([]byte, error) {
	encoded, err := record.EncodeRow(t.Schema, values)
	if err != nil {
		return nil, err
	}

	maxInline := storage.PageSize - storage.HeaderSize - storage.SlotSize
	if len(encoded)+1 <= maxInline {
		out := make([]byte, 0, len(encoded)+1)
		out = append(out, rowKindInline)
		return append(out, encoded...), nil
	}

	if t.Overflow == nil {
		return nil, fmt.Errorf("heap: table %s has no overflow manager for oversized row", t.Name)
	}
	ref, err := t.Overflow.Write(encoded)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, overflowRefSize)
	out = append(out, rowKindOverflow)
	var b [4]byte
	bx.PutU32(b[:], ref.FirstPageID)
	out = append(out, b[:]...)
	bx.PutU32(b[:], ref.Length)
	return append(out, b[:]...), nil
}

func (t *Table) decodeTuple(raw []byte) ([]any, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("heap: empty tuple")
	}

	switch raw[0] {
	case rowKindInline:
		return record.DecodeRow(t.Schema, raw[1:])

	case rowKindOverflow:
		if len(raw) < overflowRefSize {
			return nil, fmt.Errorf("heap: truncated overflow ref")
		}
		if t.Overflow == nil {
			return nil, fmt.Errorf("heap: table %s has no overflow manager", t.Name)
		}
		full, err := t.Overflow.Read(storage.OverflowRef{
			FirstPageID: bx.U32(raw[1:5]),
			Length:      bx.U32(raw[5:9]),
		})
		if err != nil {
			return nil, err
		}
		return record.DecodeRow(t.Schema, full)

	default:
		return nil, fmt.Errorf("heap: unknown row kind %d", raw[0])
	}
}

// Close is idempotent; it flushes through the pool view once.
func (t *Table) Close() error {
	if t == nil || t.closed.Swap(true) {
		return nil
	}
	if t.BP != nil {
		return t.BP.FlushAll()
	}
	return nil
}

func (t *Table) ensureOpen() error {
	if t == nil || t.closed.Load() {
		return ErrTableClosed
	}
	return nil
}
