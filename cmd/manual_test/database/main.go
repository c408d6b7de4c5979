// Smallest possible end-to-end check: create a table, insert one row,
// read it back by TID.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/tuannm99/lunadb"
	"github.com/tuannm99/lunadb/internal/record"
)

func main() {
	dataDir := filepath.Join("data", "test", "manual_db_basic")
	_ = os.RemoveAll(dataDir)

	db := lunadb.NewDatabase(dataDir)
	defer func() { _ = db.Close() }()

	schema := record.Schema{Cols: []record.Column{
		{Name: "id", Type: record.ColInt64},
		{Name: "name", Type: record.ColText},
	}}

	tbl, err := db.CreateTable("users", schema)
	if err != nil {
		log.Fatalf("CreateTable: %v", err)
	}

	tid, err := tbl.Insert([]any{int64(1), "ann"})
	if err != nil {
		log.Fatalf("Insert: %v", err)
	}

	row, err := tbl.Get(tid)
	if err != nil {
		log.Fatalf("Get: %v", err)
	}
	fmt.Printf("tid=%s row=%v\n", tid, row)
}
