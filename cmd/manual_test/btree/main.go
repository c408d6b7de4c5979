// Builds a table plus a standalone B+Tree index over it and probes a few
// keys, printing the rows found.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/tuannm99/lunadb"
	"github.com/tuannm99/lunadb/internal/btree"
	"github.com/tuannm99/lunadb/internal/bufferpool"
	"github.com/tuannm99/lunadb/internal/record"
	"github.com/tuannm99/lunadb/internal/storage"
)

func main() {
	dataDir := filepath.Join("data", "test", "manual_db_btree")
	_ = os.RemoveAll(dataDir)

	db := lunadb.NewDatabase(dataDir)
	defer func() { _ = db.Close() }()

	schema := record.Schema{Cols: []record.Column{
		{Name: "id", Type: record.ColInt64},
		{Name: "name", Type: record.ColText},
		{Name: "active", Type: record.ColBool},
	}}

	tbl, err := db.CreateTable("users", schema)
	if err != nil {
		log.Fatalf("CreateTable: %v", err)
	}

	idxFS := storage.LocalFileSet{
		Dir:  filepath.Join(dataDir, "indexes"),
		Base: "users_id_idx",
	}
	idx := btree.NewTree(db.SM, idxFS, bufferpool.NewPool(db.SM, idxFS, bufferpool.DefaultCapacity))

	for i := 1; i <= 10; i++ {
		tid, err := tbl.Insert([]any{int64(i), fmt.Sprintf("user-%d", i), i%2 == 0})
		if err != nil {
			log.Fatalf("Insert: %v", err)
		}
		if err := idx.Insert(int64(i), tid); err != nil {
			log.Fatalf("index Insert: %v", err)
		}
	}

	for _, key := range []int64{1, 5, 10, 99} {
		tids, err := idx.SearchEqual(key)
		if err != nil {
			log.Fatalf("SearchEqual(%d): %v", key, err)
		}
		if len(tids) == 0 {
			fmt.Printf("key=%d not found\n", key)
			continue
		}
		row, err := tbl.Get(tids[0])
		if err != nil {
			log.Fatalf("Get: %v", err)
		}
		fmt.Printf("key=%d tid=%s row=%v\n", key, tids[0], row)
	}

	if err := idx.Close(); err != nil {
		log.Fatalf("index Close: %v", err)
	}
}
