package storage

import (
	"fmt"

	"github.com/tuannm99/lunadb/pkg/bx"
)

// Slotted page layout, PostgreSQL style:
//
//	+------------------+ 0
//	| header           |
//	| slot array       | <- lower (grows down)
//	+------------------+
//	|   free space     |
//	+------------------+ <- upper (grows up)
//	|  tuple data      |
//	+------------------+ PageSize
//
// Header fields (little-endian):
//
//	off 0  u16  flags
//	off 2  u32  page id
//	off 6  u16  lower  (end of slot array)
//	off 8  u16  upper  (start of tuple data)
//	off 10 u16  special (reserved, currently always PageSize)
//
// Each slot is 6 bytes: u16 tuple offset, u16 tuple length, u16 state.
const (
	hdrOffFlags   = 0
	hdrOffPageID  = 2
	hdrOffLower   = 6
	hdrOffUpper   = 8
	hdrOffSpecial = 10
)

// Slot states. A live slot points at its tuple; dead and moved slots keep
// their position so TIDs of later slots stay stable.
const (
	slotLive  = 0
	slotDead  = 1
	slotMoved = 2
)

// Page is a view over a PageSize byte buffer. It never owns the buffer:
// the buffer pool does. All methods mutate in place.
type Page struct {
	Buf []byte
}

// NewPage zeroes buf and stamps a fresh slotted page header into it.
func NewPage(buf []byte, pageID uint32) Page {
	p := Page{Buf: buf}
	p.init(pageID)
	return p
}

func (p Page) init(pageID uint32) {
	for i := range p.Buf {
		p.Buf[i] = 0
	}
	bx.PutU16At(p.Buf, hdrOffFlags, 0)
	bx.PutU32At(p.Buf, hdrOffPageID, pageID)
	bx.PutU16At(p.Buf, hdrOffLower, HeaderSize)
	bx.PutU16At(p.Buf, hdrOffUpper, PageSize)
	bx.PutU16At(p.Buf, hdrOffSpecial, PageSize)
}

// Reset wipes the page back to an empty slotted page with the given id.
func (p Page) Reset(pageID uint32) {
	p.init(pageID)
}

// IsUninitialized reports whether the buffer holds no page header yet
// (all-zero bytes read from a sparse or never-written page).
func (p Page) IsUninitialized() bool {
	return bx.U16At(p.Buf, hdrOffLower) == 0 && bx.U16At(p.Buf, hdrOffUpper) == 0
}

// PageID returns the id stamped into the header by init.
func (p Page) PageID() uint32 { return bx.U32At(p.Buf, hdrOffPageID) }

func (p Page) Lower() int     { return int(bx.U16At(p.Buf, hdrOffLower)) }
func (p Page) SetLower(v int) { bx.PutU16At(p.Buf, hdrOffLower, uint16(v)) }
func (p Page) Upper() int     { return int(bx.U16At(p.Buf, hdrOffUpper)) }
func (p Page) SetUpper(v int) { bx.PutU16At(p.Buf, hdrOffUpper, uint16(v)) }

// FreeSpace is the gap between the slot array and the tuple area.
func (p Page) FreeSpace() int { return p.Upper() - p.Lower() }

func (p Page) NumSlots() int { return (p.Lower() - HeaderSize) / SlotSize }

func (p Page) slotOff(idx int) int { return HeaderSize + idx*SlotSize }

// GetSlot returns the raw slot triple: tuple offset, tuple length, state.
func (p Page) GetSlot(i int) (offset, length, state int) {
	o := p.slotOff(i)
	return int(bx.U16At(p.Buf, o)),
		int(bx.U16At(p.Buf, o+2)),
		int(bx.U16At(p.Buf, o+4))
}

func (p Page) PutSlot(idx, offset, length, state int) {
	o := p.slotOff(idx)
	bx.PutU16At(p.Buf, o, uint16(offset))
	bx.PutU16At(p.Buf, o+2, uint16(length))
	bx.PutU16At(p.Buf, o+4, uint16(state))
}

func (p Page) appendSlot(offset, length, state int) int {
	i := p.NumSlots()
	p.PutSlot(i, offset, length, state)
	p.SetLower(p.Lower() + SlotSize)
	return i
}

// InsertTuple copies tup into the tuple area and appends a live slot for
// it, returning the slot number. ErrNoSpace if tuple plus slot don't fit.
func (p Page) InsertTuple(tup []byte) (slot int, err error) {
	if p.FreeSpace() < len(tup)+SlotSize {
		return -1, ErrNoSpace
	}
	u := p.Upper() - len(tup)
	copy(p.Buf[u:], tup)
	p.SetUpper(u)
	return p.appendSlot(u, len(tup), slotLive), nil
}

// ReadTuple returns the bytes of a live tuple. The slice aliases the page
// buffer; callers must copy if they keep it past the pin.
func (p Page) ReadTuple(slot int) ([]byte, error) {
	if slot < 0 || slot >= p.NumSlots() {
		return nil, ErrBadSlot
	}
	offset, length, state := p.GetSlot(slot)
	if state != slotLive || offset == 0 || length == 0 {
		return nil, ErrBadSlot
	}
	return p.Buf[offset : offset+length], nil
}

// UpdateTuple overwrites a tuple in place when the new bytes fit in the
// old length; otherwise it inserts the new bytes under a fresh slot and
// turns the old slot into a forward pointer to it, so stale TIDs keep
// resolving (see ResolveSlot). Returns the slot now holding the tuple.
// Old tuple space is not reclaimed (no compaction).
func (p Page) UpdateTuple(slot int, newTuple []byte) (int, error) {
	offset, length, state := p.GetSlot(slot)
	if state != slotLive || offset == 0 || length == 0 {
		return -1, ErrBadSlot
	}
	if len(newTuple) <= length {
		copy(p.Buf[offset:], newTuple)
		p.PutSlot(slot, offset, len(newTuple), slotLive)
		return slot, nil
	}
	newSlot, err := p.InsertTuple(newTuple)
	if err != nil {
		return -1, err
	}
	// moved slots reuse the offset field as the forward slot number
	p.PutSlot(slot, newSlot, 0, slotMoved)
	return newSlot, nil
}

// ResolveSlot follows moved-slot forward pointers until it reaches a live
// slot, so a TID minted before an update still finds the row. ErrBadSlot
// for dead or out-of-range slots.
func (p Page) ResolveSlot(slot int) (int, error) {
	for hops := 0; hops <= p.NumSlots(); hops++ {
		if slot < 0 || slot >= p.NumSlots() {
			return -1, ErrBadSlot
		}
		fwd, _, state := p.GetSlot(slot)
		switch state {
		case slotLive:
			return slot, nil
		case slotMoved:
			slot = fwd
		default:
			return -1, ErrBadSlot
		}
	}
	return -1, ErrPageCorrupted
}

// DeleteTuple marks the slot dead. The slot itself stays, so later slot
// numbers don't shift.
func (p Page) DeleteTuple(slot int) {
	p.PutSlot(slot, 0, 0, slotDead)
}

// DebugString summarizes the header and slot array, for tests and manual
// poking.
func (p Page) DebugString() string {
	s := fmt.Sprintf("page %d: lower=%d upper=%d free=%d slots=%d",
		p.PageID(), p.Lower(), p.Upper(), p.FreeSpace(), p.NumSlots())
	for i := 0; i < p.NumSlots(); i++ {
		off, length, state := p.GetSlot(i)
		s += fmt.Sprintf("\n  slot %d: off=%d len=%d state=%d", i, off, length, state)
	}
	return s
}
