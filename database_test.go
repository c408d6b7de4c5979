package lunadb

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/lunadb/internal/heap"
	"github.com/tuannm99/lunadb/internal/record"
)

func testSchema() record.Schema {
	return record.Schema{Cols: []record.Column{
		{Name: "id", Type: record.ColInt64},
		{Name: "name", Type: record.ColText},
	}}
}

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db := NewDatabase(t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDatabaseSubDatabases(t *testing.T) {
	db := newTestDatabase(t)

	require.NoError(t, db.CreateDatabase("app"))
	require.ErrorIs(t, db.CreateDatabase("app"), ErrDatabaseExists)
	require.ErrorIs(t, db.CreateDatabase("no good"), ErrInvalidIdent)

	require.NoError(t, db.SelectDatabase("app"))
	require.ErrorIs(t, db.SelectDatabase("ghost"), ErrDatabaseMissing)

	// tables created while "app" is selected live under its directory
	_, err := db.CreateTable("t", testSchema())
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(db.rootDir, "app", "tables", "t.meta.json"))

	// dropping the active sub-database falls back to the root
	require.NoError(t, db.DropDatabase("app"))
	require.NoDirExists(t, filepath.Join(db.rootDir, "app"))
	_, err = db.OpenTable("t")
	require.Error(t, err)
}

func TestDatabaseTableLifecycle(t *testing.T) {
	db := newTestDatabase(t)

	tbl, err := db.CreateTable("users", testSchema())
	require.NoError(t, err)

	var tids []heap.TID
	for i := 1; i <= 10; i++ {
		tid, err := tbl.Insert([]any{int64(i), fmt.Sprintf("u-%d", i)})
		require.NoError(t, err)
		tids = append(tids, tid)
	}

	// reopen goes through the persisted meta and recounted pages
	reopened, err := db.OpenTable("users")
	require.NoError(t, err)
	row, err := reopened.Get(tids[4])
	require.NoError(t, err)
	require.Equal(t, int64(5), row[0])

	metas, err := db.ListTables()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	require.Equal(t, "users", metas[0].Name)
	require.Equal(t, 2, metas[0].Schema.NumCols())

	require.NoError(t, db.DropTable("users"))
	metas, err = db.ListTables()
	require.NoError(t, err)
	require.Empty(t, metas)

	// no stray segment files survive the drop
	entries, err := os.ReadDir(db.tableDir())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestDatabaseIndexRegistry(t *testing.T) {
	db := newTestDatabase(t)

	tbl, err := db.CreateTable("users", testSchema())
	require.NoError(t, err)
	tid, err := tbl.Insert([]any{int64(7), "ann"})
	require.NoError(t, err)

	tree, err := db.CreateBTreeIndex("users", "by_id", "id")
	require.NoError(t, err)
	require.NoError(t, tree.Insert(7, tid))
	require.NoError(t, tree.Close())

	_, err = db.CreateBTreeIndex("users", "by_id", "id")
	require.ErrorIs(t, err, ErrIndexExists)
	_, err = db.CreateBTreeIndex("users", "by_ghost", "ghost")
	require.ErrorIs(t, err, ErrIndexBadColumn)

	idxs, err := db.ListIndexes("users")
	require.NoError(t, err)
	require.Len(t, idxs, 1)
	require.Equal(t, "id", idxs[0].KeyColumn)

	// the index's own meta file must not surface as a table
	metas, err := db.ListTables()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	require.Equal(t, "users", metas[0].Name)

	// reopen the index and look the row up again
	reopened, err := db.OpenBTreeIndex("users", "by_id")
	require.NoError(t, err)
	found, err := reopened.SearchEqual(7)
	require.NoError(t, err)
	require.Equal(t, []heap.TID{tid}, found)
	require.NoError(t, reopened.Close())

	require.NoError(t, db.DropIndex("users", "by_id"))
	require.ErrorIs(t, db.DropIndex("users", "by_id"), ErrIndexNotFound)

	idxs, err = db.ListIndexes("users")
	require.NoError(t, err)
	require.Empty(t, idxs)
}

// Dropping a table must evict its pages from the shared pool before the
// files go away, or a later flush would recreate the segment files of a
// dead relation.
func TestDatabaseDropTableEvictsSharedPoolPages(t *testing.T) {
	db := newTestDatabase(t)

	tbl, err := db.CreateTable("victim", testSchema())
	require.NoError(t, err)
	_, err = tbl.Insert([]any{int64(1), "x"})
	require.NoError(t, err)

	metaPath := db.tableMetaPath("victim")
	require.FileExists(t, metaPath)

	require.NoError(t, db.DropTable("victim"))

	// Close flushes whatever is left in the pool; nothing of the dropped
	// table may reappear on disk.
	require.NoError(t, db.Close())
	entries, _ := os.ReadDir(db.tableDir())
	for _, e := range entries {
		require.NotContains(t, e.Name(), "victim")
	}
}

func TestDatabaseClosedRejectsEverything(t *testing.T) {
	db := NewDatabase(t.TempDir())
	require.NoError(t, db.Close())

	require.ErrorIs(t, db.CreateDatabase("x"), ErrDatabaseClosed)
	_, err := db.CreateTable("t", testSchema())
	require.ErrorIs(t, err, ErrDatabaseClosed)
	_, err = db.ListTables()
	require.ErrorIs(t, err, ErrDatabaseClosed)
}

func TestValidateIdent(t *testing.T) {
	require.NoError(t, validateIdent("users_2"))
	require.NoError(t, validateIdent("_tmp"))
	require.ErrorIs(t, validateIdent("9lives"), ErrInvalidIdent)
	require.ErrorIs(t, validateIdent("has space"), ErrInvalidIdent)
	require.ErrorIs(t, validateIdent("dot.dot"), ErrInvalidIdent)
	require.ErrorIs(t, validateIdent(""), ErrInvalidIdent)
}
