package storage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freshPage(t *testing.T) Page {
	t.Helper()
	p := NewPage(make([]byte, PageSize), 7)

	assert.Equal(t, uint32(7), p.PageID())
	assert.Equal(t, HeaderSize, p.Lower())
	assert.Equal(t, PageSize, p.Upper())
	assert.Equal(t, 0, p.NumSlots())
	assert.False(t, p.IsUninitialized())
	return p
}

func TestPageInsertRead(t *testing.T) {
	p := freshPage(t)

	first := []byte("first tuple")
	second := []byte("second tuple, a bit longer")

	s0, err := p.InsertTuple(first)
	require.NoError(t, err)
	assert.Equal(t, 0, s0)

	s1, err := p.InsertTuple(second)
	require.NoError(t, err)
	assert.Equal(t, 1, s1)

	// slots grow down from the header, tuples up from the end
	assert.Equal(t, HeaderSize+2*SlotSize, p.Lower())
	assert.Equal(t, PageSize-len(first)-len(second), p.Upper())

	got, err := p.ReadTuple(0)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	got, err = p.ReadTuple(1)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	require.NotEmpty(t, p.DebugString())
}

func TestPageBadSlots(t *testing.T) {
	p := freshPage(t)
	_, err := p.InsertTuple([]byte("x"))
	require.NoError(t, err)

	_, err = p.ReadTuple(-1)
	require.ErrorIs(t, err, ErrBadSlot)
	_, err = p.ReadTuple(1)
	require.ErrorIs(t, err, ErrBadSlot)

	p.DeleteTuple(0)
	_, err = p.ReadTuple(0)
	require.ErrorIs(t, err, ErrBadSlot)
}

func TestPageUpdateInPlaceAndMoved(t *testing.T) {
	p := freshPage(t)

	_, err := p.InsertTuple([]byte("abcdef"))
	require.NoError(t, err)

	// shrink-in-place keeps the slot number
	slot, err := p.UpdateTuple(0, []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 0, slot)
	got, err := p.ReadTuple(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	// growing beyond the old length relocates the tuple: the old slot
	// becomes a forward pointer, the bytes land under a fresh slot
	long := bytes.Repeat([]byte("y"), 100)
	slot, err = p.UpdateTuple(0, long)
	require.NoError(t, err)
	assert.Equal(t, 1, slot)

	_, err = p.ReadTuple(0)
	require.ErrorIs(t, err, ErrBadSlot)
	got, err = p.ReadTuple(1)
	require.NoError(t, err)
	assert.Equal(t, long, got)

	// old slot still resolves to the new location
	resolved, err := p.ResolveSlot(0)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	// dead slots don't resolve
	p.DeleteTuple(1)
	_, err = p.ResolveSlot(0)
	require.ErrorIs(t, err, ErrBadSlot)
}

func TestPageFillsUp(t *testing.T) {
	p := freshPage(t)
	tup := bytes.Repeat([]byte("z"), 1000)

	inserted := 0
	for {
		_, err := p.InsertTuple(tup)
		if err != nil {
			require.ErrorIs(t, err, ErrNoSpace)
			break
		}
		inserted++
	}
	// 4 x (1000 + 6) fits into 4096 - 24, a fifth doesn't
	assert.Equal(t, 4, inserted)
}
