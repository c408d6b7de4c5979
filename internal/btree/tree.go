package btree

import (
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/tuannm99/lunadb/internal/bufferpool"
	"github.com/tuannm99/lunadb/internal/heap"
	"github.com/tuannm99/lunadb/internal/storage"
)

// Meta mirrors the tree's logical shape; it is what gets persisted next
// to the segment files.
type Meta struct {
	Root   uint32
	Height int
}

// Tree is a B+Tree of arbitrary height. Every node is exactly one page,
// fetched through the tree's buffer pool view.
//
// Invariants: Height >= 1; Height == 1 means the root is a leaf. Keys may
// be inserted in any order; duplicates are allowed and kept on one leaf
// (splits never cut through a run of equal keys unless the run alone
// overflows a page).
//
// A Tree is not safe for concurrent use; the database serializes access
// per index.
type Tree struct {
	SM *storage.StorageManager
	FS storage.FileSet
	BP bufferpool.Manager

	Root   uint32
	Height int

	Meta *Meta

	// page 0 is the initial root; allocations start at 1
	nextPageID uint32

	metaEnabled bool
	metaPath    string

	closed atomic.Bool
}

// NewTree creates a fresh tree, resetting page 0 as an empty root leaf.
// Use OpenTree to pick up a persisted one.
func NewTree(sm *storage.StorageManager, fs storage.FileSet, bp bufferpool.Manager) *Tree {
	t := &Tree{
		SM:         sm,
		FS:         fs,
		BP:         bp,
		Root:       0,
		Height:     1,
		nextPageID: 1,
	}

	if root, err := t.BP.GetPage(0); err == nil {
		root.Reset(0)
		_ = t.BP.Unpin(root, true)
	}

	if mp, ok := metaPathForFileSet(fs); ok {
		t.metaEnabled = true
		t.metaPath = mp
	}
	t.Meta = &Meta{Root: t.Root, Height: t.Height}
	if err := t.saveMeta(); err != nil {
		slog.Warn("btree: persisting initial meta failed", "err", err)
	}
	return t
}

// OpenTree restores a tree from its meta file, then clamps nextPageID to
// the on-disk page count so allocations can never overwrite live nodes
// even if the meta file lagged behind.
func OpenTree(sm *storage.StorageManager, fs storage.FileSet, bp bufferpool.Manager) (*Tree, error) {
	t := &Tree{
		SM:         sm,
		FS:         fs,
		BP:         bp,
		Root:       0,
		Height:     1,
		nextPageID: 1,
	}

	if mp, ok := metaPathForFileSet(fs); ok {
		t.metaEnabled = true
		t.metaPath = mp
	}

	if m, ok, err := t.loadMeta(); err != nil {
		return nil, err
	} else if ok {
		t.Root = m.Root
		if m.Height >= 1 {
			t.Height = m.Height
		}
		t.nextPageID = m.NextPageID
	}

	pageCount, err := sm.CountPages(fs)
	if err != nil {
		return nil, err
	}
	if t.nextPageID < pageCount {
		t.nextPageID = pageCount
	}
	if t.nextPageID < 1 {
		t.nextPageID = 1
	}

	t.Meta = &Meta{Root: t.Root, Height: t.Height}
	if err := t.saveMeta(); err != nil {
		slog.Warn("btree: persisting meta on open failed", "err", err)
	}
	return t, nil
}

// allocPage hands out the next page id with a freshly reset, pinned page.
// Segment files grow lazily when the pool flushes.
func (t *Tree) allocPage() (uint32, *storage.Page, error) {
	pid := t.nextPageID
	t.nextPageID++

	p, err := t.BP.GetPage(pid)
	if err != nil {
		return 0, nil, err
	}
	p.Reset(pid)
	return pid, p, nil
}

func (t *Tree) syncMeta() {
	if t.Meta == nil {
		t.Meta = &Meta{}
	}
	t.Meta.Root = t.Root
	t.Meta.Height = t.Height
	if err := t.saveMeta(); err != nil {
		slog.Warn("btree: persisting meta failed", "err", err)
	}
}

// Insert adds (key, tid), splitting nodes bottom-up as needed; the tree
// grows a level when the root itself splits.
func (t *Tree) Insert(key KeyType, tid heap.TID) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}

	res, err := t.insertAt(t.Root, t.Height, key, tid)
	if err != nil {
		return err
	}

	if !res.didSplit {
		t.Root = res.pageID
		t.syncMeta()
		return nil
	}

	// root split: put an internal node above the two halves
	slog.Debug("btree: root split",
		"left", res.pageID, "right", res.rightPageID, "newHeight", t.Height+1)

	rootID, rootPage, err := t.allocPage()
	if err != nil {
		return err
	}
	defer func() { _ = t.BP.Unpin(rootPage, true) }()

	leftMin, err := t.minKeyInSubtree(res.pageID, t.Height)
	if err != nil {
		return err
	}

	root := &InternalNode{Page: rootPage}
	if err := root.AppendEntry(leftMin, res.pageID); err != nil {
		return err
	}
	if err := root.AppendEntry(res.rightMinKey, res.rightPageID); err != nil {
		return err
	}

	t.Root = rootID
	t.Height++
	t.syncMeta()
	return nil
}

// SearchEqual returns every TID under key.
func (t *Tree) SearchEqual(key KeyType) ([]heap.TID, error) {
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}
	if t.Height < 1 {
		return nil, ErrInvalidTreeHeight
	}

	pageID := t.Root
	for level := t.Height; level > 1; level-- {
		p, err := t.BP.GetPage(pageID)
		if err != nil {
			return nil, err
		}
		_, child, err := (&InternalNode{Page: p}).findChildIndex(key)
		_ = t.BP.Unpin(p, false)
		if err != nil {
			return nil, err
		}
		pageID = child
	}

	p, err := t.BP.GetPage(pageID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = t.BP.Unpin(p, false) }()
	return (&LeafNode{Page: p}).FindEqual(key)
}

// RangeScan returns every TID with minKey <= key <= maxKey, walking the
// whole tree: every leaf is visited, since leaves have no sibling links
// and internal nodes are not pruned by key.
func (t *Tree) RangeScan(minKey, maxKey KeyType) ([]heap.TID, error) {
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}
	if t.Height < 1 {
		return nil, ErrInvalidTreeHeight
	}

	var out []heap.TID
	if err := t.rangeScanAt(t.Root, t.Height, minKey, maxKey, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// splitResult carries a subtree insert outcome upward: the (possibly
// rebuilt) subtree root, and the right sibling if it split.
type splitResult struct {
	pageID      uint32
	didSplit    bool
	rightMinKey KeyType
	rightPageID uint32
}

func (t *Tree) insertAt(pageID uint32, level int, key KeyType, tid heap.TID) (splitResult, error) {
	if level < 1 {
		return splitResult{}, ErrInvalidTreeHeight
	}
	if level == 1 {
		return t.insertIntoLeaf(pageID, key, tid)
	}
	return t.insertIntoInternal(pageID, level, key, tid)
}

// splitBoundary picks where to cut an overfull sorted entry slice:
// nearest to the middle without separating equal keys. Falls back to the
// middle when every key is the same.
func splitBoundary(entries []leafEntry) int {
	total := len(entries)
	mid := total / 2
	for d := 0; d < total; d++ {
		for _, b := range []int{mid - d, mid + d} {
			if b >= 1 && b < total && entries[b-1].key != entries[b].key {
				return b
			}
		}
	}
	return mid
}

func (t *Tree) insertIntoLeaf(pageID uint32, key KeyType, tid heap.TID) (splitResult, error) {
	p, err := t.BP.GetPage(pageID)
	if err != nil {
		return splitResult{}, err
	}
	dirty := false
	defer func() { _ = t.BP.Unpin(p, dirty) }()

	leaf := &LeafNode{Page: p}
	entries, err := leaf.readEntries()
	if err != nil {
		return splitResult{}, err
	}
	entries = append(entries, leafEntry{key: key, tid: tid})
	sortLeafEntries(entries)

	maxPerPage := maxLeafEntriesPerPage()
	if maxPerPage <= 0 {
		return splitResult{}, ErrZeroPageCapacity
	}

	if len(entries) <= maxPerPage {
		if err := leaf.rebuildSorted(entries); err != nil {
			return splitResult{}, err
		}
		dirty = true
		return splitResult{pageID: pageID}, nil
	}

	cut := splitBoundary(entries)
	left, right := entries[:cut], entries[cut:]
	if len(right) > maxPerPage {
		return splitResult{}, ErrSplitOverflow
	}

	if err := leaf.rebuildSorted(left); err != nil {
		return splitResult{}, err
	}
	dirty = true

	rightID, rightPage, err := t.allocPage()
	if err != nil {
		return splitResult{}, err
	}
	rightDirty := false
	defer func() { _ = t.BP.Unpin(rightPage, rightDirty) }()

	if err := (&LeafNode{Page: rightPage}).rebuildSorted(right); err != nil {
		return splitResult{}, err
	}
	rightDirty = true

	slog.Debug("btree: leaf split",
		"left", pageID, "right", rightID, "rightMin", right[0].key)

	return splitResult{
		pageID:      pageID,
		didSplit:    true,
		rightMinKey: right[0].key,
		rightPageID: rightID,
	}, nil
}

func (t *Tree) insertIntoInternal(pageID uint32, level int, key KeyType, tid heap.TID) (splitResult, error) {
	p, err := t.BP.GetPage(pageID)
	if err != nil {
		return splitResult{}, err
	}
	dirty := false
	defer func() { _ = t.BP.Unpin(p, dirty) }()

	node := &InternalNode{Page: p}
	idx, childID, err := node.findChildIndex(key)
	if err != nil {
		return splitResult{}, err
	}

	childRes, err := t.insertAt(childID, level-1, key, tid)
	if err != nil {
		return splitResult{}, err
	}

	entries, err := node.readEntries()
	if err != nil {
		return splitResult{}, err
	}
	if idx < 0 || idx >= len(entries) {
		return splitResult{}, ErrChildIndexOutRange
	}
	entries[idx].child = childRes.pageID

	if childRes.didSplit {
		entries = append(entries, internalEntry{
			key:   childRes.rightMinKey,
			child: childRes.rightPageID,
		})
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].key != entries[j].key {
				return entries[i].key < entries[j].key
			}
			return entries[i].child < entries[j].child
		})
	}

	maxPerPage := maxInternalEntriesPerPage()
	if maxPerPage <= 0 {
		return splitResult{}, ErrZeroPageCapacity
	}

	if len(entries) <= maxPerPage {
		if err := node.rebuild(entries); err != nil {
			return splitResult{}, err
		}
		dirty = true
		return splitResult{pageID: pageID}, nil
	}

	// split: current page keeps the left half, right half gets a new page
	cut := len(entries) / 2
	left, right := entries[:cut], entries[cut:]
	if len(right) > maxPerPage {
		return splitResult{}, ErrSplitOverflow
	}

	if err := node.rebuild(left); err != nil {
		return splitResult{}, err
	}
	dirty = true

	rightID, rightPage, err := t.allocPage()
	if err != nil {
		return splitResult{}, err
	}
	rightDirty := false
	defer func() { _ = t.BP.Unpin(rightPage, rightDirty) }()

	if err := (&InternalNode{Page: rightPage}).rebuild(right); err != nil {
		return splitResult{}, err
	}
	rightDirty = true

	return splitResult{
		pageID:      pageID,
		didSplit:    true,
		rightMinKey: right[0].key,
		rightPageID: rightID,
	}, nil
}

func (t *Tree) rangeScanAt(pageID uint32, level int, minKey, maxKey KeyType, out *[]heap.TID) error {
	if level < 1 {
		return ErrInvalidTreeHeight
	}

	p, err := t.BP.GetPage(pageID)
	if err != nil {
		return err
	}

	if level == 1 {
		tids, err := (&LeafNode{Page: p}).Range(minKey, maxKey)
		_ = t.BP.Unpin(p, false)
		if err != nil {
			return err
		}
		*out = append(*out, tids...)
		return nil
	}

	node := &InternalNode{Page: p}
	children := make([]uint32, 0, node.NumKeys())
	for i := 0; i < node.NumKeys(); i++ {
		_, child, err := node.EntryAt(i)
		if err != nil {
			_ = t.BP.Unpin(p, false)
			return err
		}
		children = append(children, child)
	}
	_ = t.BP.Unpin(p, false)

	for _, child := range children {
		if err := t.rangeScanAt(child, level-1, minKey, maxKey, out); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) minKeyInSubtree(pageID uint32, level int) (KeyType, error) {
	if level < 1 {
		return 0, ErrInvalidTreeHeight
	}

	p, err := t.BP.GetPage(pageID)
	if err != nil {
		return 0, err
	}

	if level == 1 {
		defer func() { _ = t.BP.Unpin(p, false) }()
		entries, err := (&LeafNode{Page: p}).entriesSorted()
		if err != nil {
			return 0, err
		}
		if len(entries) == 0 {
			return 0, ErrEmptyLeaf
		}
		return entries[0].key, nil
	}

	node := &InternalNode{Page: p}
	if node.NumKeys() == 0 {
		_ = t.BP.Unpin(p, false)
		return 0, ErrEmptyInternalNode
	}
	_, child, err := node.EntryAt(0)
	_ = t.BP.Unpin(p, false)
	if err != nil {
		return 0, err
	}
	return t.minKeyInSubtree(child, level-1)
}

// Close is idempotent; it flushes the index's dirty pages once.
func (t *Tree) Close() error {
	if t == nil || t.closed.Swap(true) {
		return nil
	}
	if t.BP != nil {
		return t.BP.FlushAll()
	}
	return nil
}

func (t *Tree) ensureOpen() error {
	if t == nil || t.closed.Load() {
		return ErrTreeClosed
	}
	return nil
}
