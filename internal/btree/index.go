package btree

import "github.com/tuannm99/lunadb/internal/heap"

// Index is what the planner and executor need from an index; Tree is the
// only implementation.
type Index interface {
	Insert(key KeyType, tid heap.TID) error
	SearchEqual(key KeyType) ([]heap.TID, error)
	RangeScan(minKey, maxKey KeyType) ([]heap.TID, error)
}

var _ Index = (*Tree)(nil)
