// Package lock holds small concurrency primitives shared by the storage
// layers.
package lock

import (
	"fmt"
	"sync/atomic"
)

// RefCount is an atomic pin counter. A frame starts life with one
// reference (the caller that created it).
type RefCount struct {
	count atomic.Int32
}

func NewRefCount() *RefCount {
	r := &RefCount{}
	r.count.Store(1)
	return r
}

func (r *RefCount) Inc() {
	r.count.Add(1)
}

// Dec drops one reference and reports whether the count reached zero.
func (r *RefCount) Dec() bool {
	n := r.count.Add(-1)
	if n < 0 {
		panic("lock: refcount dropped below zero")
	}
	return n == 0
}

func (r *RefCount) Get() int32 {
	return r.count.Load()
}

func (r *RefCount) String() string {
	return fmt.Sprintf("RefCount(%d)", r.Get())
}
