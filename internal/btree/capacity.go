package btree

import "github.com/tuannm99/lunadb/internal/storage"

// maxEntriesPerPage is how many fixed-size entries fit on one slotted
// page: each entry costs its payload plus one slot.
func maxEntriesPerPage(entrySize int) int {
	if entrySize <= 0 {
		return 0
	}
	return (storage.PageSize - storage.HeaderSize) / (storage.SlotSize + entrySize)
}

func maxLeafEntriesPerPage() int     { return maxEntriesPerPage(LeafEntrySize) }
func maxInternalEntriesPerPage() int { return maxEntriesPerPage(InternalEntrySize) }
