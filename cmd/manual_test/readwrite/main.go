// Two-process persistence check. Run with -mode write first, then -mode
// read: the reader opens the same data directory cold and must see
// everything the writer left behind, including an overflowed row.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tuannm99/lunadb"
	"github.com/tuannm99/lunadb/internal/heap"
	"github.com/tuannm99/lunadb/internal/record"
	"github.com/tuannm99/lunadb/internal/storage"
)

func main() {
	mode := flag.String("mode", "write", "write | read")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))

	dataDir := filepath.Join("data", "test", "manual_db_rw")

	switch *mode {
	case "write":
		writePhase(dataDir)
	case "read":
		readPhase(dataDir)
	default:
		log.Fatalf("unknown mode %q", *mode)
	}
}

func writePhase(dataDir string) {
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

	var ids []heap.TID
	for i := 1; i <= 10; i++ {
		tid, err := tbl.Insert([]any{int64(i), fmt.Sprintf("user-%d", i), i%2 == 0})
		if err != nil {
			log.Fatalf("Insert row %d: %v", i, err)
		}
		ids = append(ids, tid)
	}

	if err := tbl.Update(ids[0], []any{int64(1), "user-1-updated", true}); err != nil {
		log.Fatalf("Update: %v", err)
	}
	if err := tbl.Delete(ids[4]); err != nil {
		log.Fatalf("Delete: %v", err)
	}

	// several pages worth of TEXT forces the overflow path
	large := strings.Repeat("abcd", 2*storage.PageSize)
	if _, err := tbl.Insert([]any{int64(11), large, true}); err != nil {
		log.Fatalf("Insert large row: %v", err)
	}

	dumpTable(tbl)

	if err := tbl.Flush(); err != nil {
		log.Fatalf("Flush: %v", err)
	}
	fmt.Println("writer finished; run with -mode read")
}

func readPhase(dataDir string) {
	db := lunadb.NewDatabase(dataDir)
	defer func() { _ = db.Close() }()

	tbl, err := db.OpenTable("users")
	if err != nil {
		log.Fatalf("OpenTable: %v", err)
	}
	dumpTable(tbl)
}

func dumpTable(tbl *heap.Table) {
	err := tbl.Scan(func(id heap.TID, row []any) error {
		name, _ := row[1].(string)
		preview := name
		if len(preview) > 50 {
			preview = preview[:50] + "..."
		}
		fmt.Printf("tid=%s id=%v name_len=%d name=%q active=%v\n",
			id, row[0], len(name), preview, row[2])
		return nil
	})
	if err != nil {
		log.Fatalf("Scan: %v", err)
	}
}
