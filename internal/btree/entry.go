// Package btree implements a B+Tree secondary index over slotted pages,
// mapping int64 keys to heap TIDs. Nodes live in the same buffer pool as
// table pages, under the index's own FileSet.
package btree

import (
	"github.com/tuannm99/lunadb/internal/heap"
	"github.com/tuannm99/lunadb/pkg/bx"
)

// KeyType is the only key type supported so far.
type KeyType = int64

// Entry layouts. Leaf: key + TID. Internal: key (the child subtree's
// minimum) + child page id. Both fixed size, one page tuple per entry.
const (
	LeafEntrySize     = 8 + 4 + 2
	InternalEntrySize = 8 + 4
)

func EncodeLeafEntry(key KeyType, tid heap.TID) []byte {
	buf := make([]byte, LeafEntrySize)
	bx.PutU64(buf[0:], uint64(key))
	bx.PutU32(buf[8:], tid.PageID)
	bx.PutU16(buf[12:], tid.Slot)
	return buf
}

func DecodeLeafEntry(b []byte) (KeyType, heap.TID) {
	if len(b) < LeafEntrySize {
		// tuple lengths are guaranteed by the page layer
		return 0, heap.TID{}
	}
	return KeyType(bx.U64(b[0:])), heap.TID{
		PageID: bx.U32(b[8:]),
		Slot:   bx.U16(b[12:]),
	}
}

func EncodeInternalEntry(key KeyType, child uint32) []byte {
	buf := make([]byte, InternalEntrySize)
	bx.PutU64(buf[0:], uint64(key))
	bx.PutU32(buf[8:], child)
	return buf
}

func DecodeInternalEntry(b []byte) (KeyType, uint32) {
	if len(b) < InternalEntrySize {
		return 0, 0
	}
	return KeyType(bx.U64(b[0:])), bx.U32(b[8:])
}
