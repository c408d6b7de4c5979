package btree

import (
	"github.com/tuannm99/lunadb/internal/storage"
)

// InternalNode views a page as internal B+Tree entries, each recording
// (minimum key of child subtree, child page id), kept sorted by key.
//
// Routing a search key K over entries e[0..n-1]: take the last child
// whose min key <= K; if K is below every min key, take e[0] (the
// leftmost child doubles as the catch-all for small keys).
type InternalNode struct {
	Page *storage.Page
}

func (n *InternalNode) NumKeys() int {
	return n.Page.NumSlots()
}

func (n *InternalNode) EntryAt(i int) (KeyType, uint32, error) {
	data, err := n.Page.ReadTuple(i)
	if err != nil {
		return 0, 0, err
	}
	key, child := DecodeInternalEntry(data)
	return key, child, nil
}

func (n *InternalNode) AppendEntry(key KeyType, child uint32) error {
	_, err := n.Page.InsertTuple(EncodeInternalEntry(key, child))
	return err
}

type internalEntry struct {
	key   KeyType
	child uint32
}

func (n *InternalNode) readEntries() ([]internalEntry, error) {
	num := n.NumKeys()
	out := make([]internalEntry, 0, num)
	for i := 0; i < num; i++ {
		k, c, err := n.EntryAt(i)
		if err != nil {
			return nil, err
		}
		out = append(out, internalEntry{key: k, child: c})
	}
	return out, nil
}

// rebuild wipes the page and rewrites the given entries in order.
func (n *InternalNode) rebuild(entries []internalEntry) error {
	n.Page.Reset(n.Page.PageID())
	for _, e := range entries {
		if err := n.AppendEntry(e.key, e.child); err != nil {
			return err
		}
	}
	return nil
}

// findChildIndex picks the child to descend into for key, per the routing
// rule in the type comment.
func (n *InternalNode) findChildIndex(key KeyType) (int, uint32, error) {
	num := n.NumKeys()
	if num == 0 {
		return 0, 0, ErrEmptyInternalNode
	}

	for i := 0; i < num-1; i++ {
		nextKey, _, err := n.EntryAt(i + 1)
		if err != nil {
			return 0, 0, err
		}
		if key < nextKey {
			_, child, err := n.EntryAt(i)
			return i, child, err
		}
	}
	_, child, err := n.EntryAt(num - 1)
	return num - 1, child, err
}
