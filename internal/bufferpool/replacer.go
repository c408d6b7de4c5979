package bufferpool

import "sync"

// lruKNode tracks the bounded access history for one frame.
type lruKNode struct {
	history   []uint64 // oldest first, len <= k
	evictable bool
}

// backwardKDistance returns the timestamp that ranks the node for eviction
// and whether the node has fewer than k accesses (the "infinite distance"
// group). With a full history that is the k-th most recent access, with a
// short one the first access; a smaller timestamp means a larger backward
// k-distance.
func (n *lruKNode) backwardKDistance(k int) (dist uint64, infinite bool) {
	if len(n.history) < k {
		return n.history[0], true
	}
	// history[0] is the oldest of the last k accesses == the k-th most
	// recent access, since older entries are dropped on record_access.
	return n.history[0], false
}

// LRUKReplacer selects eviction victims using backward k-distance: the
// evictable frame whose k-th most recent access is furthest in the past
// loses, with ties among history-short frames broken by earliest first
// access. isBetterVictim holds the full comparison.
type LRUKReplacer struct {
	mu        sync.Mutex
	k         int
	numFrames int
	nodes     map[int]*lruKNode
	clock     uint64 // monotonic, increments once per record_access
	count     int    // number of evictable nodes
}

// NewLRUKReplacer builds a replacer for frame ids in [0, numFrames); k is
// the access-history depth (must be >= 1).
func NewLRUKReplacer(numFrames, k int) *LRUKReplacer {
	if k < 1 {
		k = 1
	}
	return &LRUKReplacer{
		k:         k,
		numFrames: numFrames,
		nodes:     make(map[int]*lruKNode, numFrames),
	}
}

// RecordAccess appends a monotonic timestamp to frameID's history, dropping
// the oldest entry once the history reaches depth k. A frame id outside
// [0, numFrames) is a caller bug and panics.
func (r *LRUKReplacer) RecordAccess(frameID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if frameID < 0 || frameID >= r.numFrames {
		panic(ErrInvalidFrameID)
	}

	r.clock++
	n, ok := r.nodes[frameID]
	if !ok {
		n = &lruKNode{}
		r.nodes[frameID] = n
	}
	n.history = append(n.history, r.clock)
	if len(n.history) > r.k {
		n.history = n.history[len(n.history)-r.k:]
	}
}

// SetEvictable marks frameID evictable or not. A no-op if the frame has no
// node yet (it hasn't been accessed) or the flag is unchanged.
func (r *LRUKReplacer) SetEvictable(frameID int, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[frameID]
	if !ok || n.evictable == evictable {
		return
	}
	n.evictable = evictable
	if evictable {
		r.count++
	} else {
		r.count--
	}
}

// isBetterVictim reports whether candidate should be evicted in preference
// to the current best, per the LRU-K tie-break rules.
func isBetterVictim(k int, cand, cur *lruKNode) bool {
	cDist, cInf := cand.backwardKDistance(k)
	bDist, bInf := cur.backwardKDistance(k)

	if cInf != bInf {
		// The infinite-distance (history-short) group always wins.
		return cInf
	}
	// Same group: both compare on the same rule (smallest timestamp wins --
	// earliest first access for the infinite group, smallest k-th-most-
	// recent timestamp for the finite group).
	return cDist < bDist
}

// Evict removes and returns the chosen victim frame id, or ok=false if no
// frame is currently evictable.
func (r *LRUKReplacer) Evict() (frameID int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	best := -1
	var bestNode *lruKNode
	for id, n := range r.nodes {
		if !n.evictable {
			continue
		}
		if bestNode == nil || isBetterVictim(r.k, n, bestNode) {
			best = id
			bestNode = n
		}
	}
	if best == -1 {
		return 0, false
	}

	delete(r.nodes, best)
	r.count--
	return best, true
}

// Remove drops frameID's node entirely (used by delete_page / frame reuse).
func (r *LRUKReplacer) Remove(frameID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[frameID]
	if !ok {
		return
	}
	if n.evictable {
		r.count--
	}
	delete(r.nodes, frameID)
}

// Size returns the current number of evictable frames.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
