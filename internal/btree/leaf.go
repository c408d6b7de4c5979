package btree

import (
	"fmt"
	"sort"

	"github.com/tuannm99/lunadb/internal/heap"
	"github.com/tuannm99/lunadb/internal/storage"
)

// LeafNode views a page as leaf-level index entries. Physical slot order
// is insertion order; query methods sort an in-memory copy, and rebuilds
// after inserts/splits write the page back in sorted order.
type LeafNode struct {
	Page *storage.Page
}

func (n *LeafNode) NumKeys() int {
	return n.Page.NumSlots()
}

func (n *LeafNode) KeyAt(i int) (KeyType, error) {
	data, err := n.Page.ReadTuple(i)
	if err != nil {
		return 0, err
	}
	key, _ := DecodeLeafEntry(data)
	return key, nil
}

func (n *LeafNode) EntryAt(i int) (KeyType, heap.TID, error) {
	data, err := n.Page.ReadTuple(i)
	if err != nil {
		return 0, heap.TID{}, err
	}
	key, tid := DecodeLeafEntry(data)
	return key, tid, nil
}

// AppendEntry adds (key, tid) at the end of the page, regardless of order.
func (n *LeafNode) AppendEntry(key KeyType, tid heap.TID) error {
	_, err := n.Page.InsertTuple(EncodeLeafEntry(key, tid))
	return err
}

type leafEntry struct {
	key KeyType
	tid heap.TID
}

func sortLeafEntries(entries []leafEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].key < entries[j].key
	})
}

// readEntries returns the page's entries in physical order.
func (n *LeafNode) readEntries() ([]leafEntry, error) {
	num := n.NumKeys()
	out := make([]leafEntry, 0, num)
	for i := 0; i < num; i++ {
		k, tid, err := n.EntryAt(i)
		if err != nil {
			return nil, err
		}
		out = append(out, leafEntry{key: k, tid: tid})
	}
	return out, nil
}

// entriesSorted returns the page's entries sorted by key.
func (n *LeafNode) entriesSorted() ([]leafEntry, error) {
	out, err := n.readEntries()
	if err != nil {
		return nil, err
	}
	sortLeafEntries(out)
	return out, nil
}

// rebuildSorted wipes the page and rewrites it with exactly these entries
// (assumed already sorted).
func (n *LeafNode) rebuildSorted(entries []leafEntry) error {
	n.Page.Reset(n.Page.PageID())
	for _, e := range entries {
		if err := n.AppendEntry(e.key, e.tid); err != nil {
			return err
		}
	}
	return nil
}

// lowerBound returns the first index whose key >= target, or
// len(entries).
func lowerBound(entries []leafEntry, target KeyType) int {
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if entries[mid].key < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// FindEqual returns every TID stored under key on this leaf.
func (n *LeafNode) FindEqual(key KeyType) ([]heap.TID, error) {
	entries, err := n.entriesSorted()
	if err != nil {
		return nil, err
	}

	var out []heap.TID
	for i := lowerBound(entries, key); i < len(entries) && entries[i].key == key; i++ {
		out = append(out, entries[i].tid)
	}
	return out, nil
}

// Range returns all TIDs with minKey <= key <= maxKey on this leaf.
func (n *LeafNode) Range(minKey, maxKey KeyType) ([]heap.TID, error) {
	if minKey > maxKey {
		return nil, nil
	}
	entries, err := n.entriesSorted()
	if err != nil {
		return nil, err
	}

	var out []heap.TID
	for i := lowerBound(entries, minKey); i < len(entries) && entries[i].key <= maxKey; i++ {
		out = append(out, entries[i].tid)
	}
	return out, nil
}

// DebugDump lists the leaf in physical slot order.
func (n *LeafNode) DebugDump() string {
	s := "LeafNode{"
	for i := 0; i < n.Page.NumSlots(); i++ {
		k, tid, err := n.EntryAt(i)
		if err != nil {
			s += fmt.Sprintf(" [err: %v]", err)
			continue
		}
		s += fmt.Sprintf(" (%d -> %s)", k, tid)
	}
	return s + " }"
}
