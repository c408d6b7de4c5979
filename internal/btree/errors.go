package btree

import "errors"

var (
	ErrTreeClosed         = errors.New("btree: tree is closed")
	ErrInvalidTreeHeight  = errors.New("btree: invalid tree height")
	ErrEmptyInternalNode  = errors.New("btree: internal node has no entries")
	ErrEmptyLeaf          = errors.New("btree: leaf has no keys")
	ErrZeroPageCapacity   = errors.New("btree: node page has zero entry capacity")
	ErrSplitOverflow      = errors.New("btree: split would need more than two pages")
	ErrChildIndexOutRange = errors.New("btree: internal child index out of range")
)
