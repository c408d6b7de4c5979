package executor

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/lunadb"
	"github.com/tuannm99/lunadb/internal/btree"
	"github.com/tuannm99/lunadb/internal/bufferpool"
	"github.com/tuannm99/lunadb/internal/heap"
	"github.com/tuannm99/lunadb/internal/record"
	"github.com/tuannm99/lunadb/internal/sql/planner"
	"github.com/tuannm99/lunadb/internal/storage"
)

// fakeDB satisfies executorDB with canned table metas, for unit tests of
// the index maintenance paths.
type fakeDB struct {
	metas []*lunadb.TableMeta
	dir   string
	sm    *storage.StorageManager
	bp    bufferpool.Manager
}

func (f *fakeDB) CreateDatabase(string) error { return nil }
func (f *fakeDB) DropDatabase(string) error   { return nil }
func (f *fakeDB) SelectDatabase(string) error { return nil }
func (f *fakeDB) CreateTable(string, record.Schema) (*heap.Table, error) {
	return nil, nil
}
func (f *fakeDB) DropTable(string) error                  { return nil }
func (f *fakeDB) OpenTable(string) (*heap.Table, error)   { return nil, errors.New("no table") }
func (f *fakeDB) ListTables() ([]*lunadb.TableMeta, error) { return f.metas, nil }
func (f *fakeDB) CreateBTreeIndex(string, string, string) (*btree.Tree, error) {
	return nil, nil
}
func (f *fakeDB) DropIndex(string, string) error                   { return nil }
func (f *fakeDB) TableDir() string                                 { return f.dir }
func (f *fakeDB) BufferView(fs storage.FileSet) bufferpool.Manager { return f.bp }
func (f *fakeDB) StorageManager() *storage.StorageManager          { return f.sm }

func usersMeta(indexes ...lunadb.IndexMeta) *lunadb.TableMeta {
	return &lunadb.TableMeta{
		Name: "users",
		Schema: record.Schema{Cols: []record.Column{
			{Name: "id", Type: record.ColInt64, Nullable: true},
			{Name: "name", Type: record.ColText, Nullable: true},
		}},
		Indexes: indexes,
	}
}

func TestListBTreeIndexes(t *testing.T) {
	e := NewExecutorWith(&fakeDB{metas: []*lunadb.TableMeta{}})
	_, err := e.listBTreeIndexes("users")
	require.ErrorContains(t, err, "table meta not found")

	e = NewExecutorWith(&fakeDB{metas: []*lunadb.TableMeta{usersMeta(
		lunadb.IndexMeta{Kind: lunadb.IndexKindBTree, Name: "i1", KeyColumn: "id", FileBase: "users_idx_i1"},
		lunadb.IndexMeta{Kind: "HASH", Name: "i2", KeyColumn: "name", FileBase: "users_idx_i2"},
	)}})
	idxs, err := e.listBTreeIndexes("users")
	require.NoError(t, err)
	require.Len(t, idxs, 1)
	require.Equal(t, "i1", idxs[0].Name)
}

func TestCatalogLookups(t *testing.T) {
	e := NewExecutorWith(&fakeDB{metas: []*lunadb.TableMeta{usersMeta(
		lunadb.IndexMeta{Kind: lunadb.IndexKindBTree, Name: "i1", KeyColumn: "id", FileBase: "users_idx_i1"},
	)}})

	schema, ok, err := e.TableSchema("users")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, schema.NumCols())

	_, ok, err = e.TableSchema("ghost")
	require.NoError(t, err)
	require.False(t, ok)

	base, ok, err := e.BTreeIndexOn("users", "id")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "users_idx_i1", base)

	_, ok, err = e.BTreeIndexOn("users", "name")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSyncIndexesOnInsert(t *testing.T) {
	meta := usersMeta(
		lunadb.IndexMeta{Kind: lunadb.IndexKindBTree, Name: "by_id", KeyColumn: "id", FileBase: "users_idx_by_id"},
		lunadb.IndexMeta{Kind: lunadb.IndexKindBTree, Name: "by_name", KeyColumn: "name", FileBase: "users_idx_by_name"},
		lunadb.IndexMeta{Kind: lunadb.IndexKindBTree, Name: "ghost", KeyColumn: "nope", FileBase: "users_idx_ghost"},
	)
	e := NewExecutorWith(&fakeDB{metas: []*lunadb.TableMeta{meta}})

	var calls []int64
	e.btreeInsertFn = func(im lunadb.IndexMeta, key int64, tid heap.TID) error {
		require.Equal(t, "by_id", im.Name)
		calls = append(calls, key)
		return nil
	}

	schema := meta.Schema
	tid := heap.TID{PageID: 1, Slot: 2}

	// only the int64-keyed, known-column index fires
	require.NoError(t, e.syncIndexesOnInsert("users", schema, []any{int64(9), "ann"}, tid))
	require.Equal(t, []int64{9}, calls)

	// NULL key gets no entry
	calls = nil
	require.NoError(t, e.syncIndexesOnInsert("users", schema, []any{nil, "bob"}, tid))
	require.Empty(t, calls)

	// insert failure bubbles
	e.btreeInsertFn = func(lunadb.IndexMeta, int64, heap.TID) error {
		return errors.New("boom")
	}
	require.ErrorContains(t, e.syncIndexesOnInsert("users", schema, []any{int64(1), "c"}, tid), "boom")
}

func TestSyncIndexesOnUpdateOnlyAssignedColumns(t *testing.T) {
	meta := usersMeta(
		lunadb.IndexMeta{Kind: lunadb.IndexKindBTree, Name: "by_id", KeyColumn: "id", FileBase: "users_idx_by_id"},
	)
	e := NewExecutorWith(&fakeDB{metas: []*lunadb.TableMeta{meta}})

	var calls int
	e.btreeInsertFn = func(im lunadb.IndexMeta, key int64, tid heap.TID) error {
		calls++
		require.Equal(t, int64(5), key)
		return nil
	}

	tid := heap.TID{PageID: 0, Slot: 1}
	newRow := []any{int64(5), "x"}

	// assignment doesn't touch the indexed column: no index write
	require.NoError(t, e.syncIndexesOnUpdate("users", meta.Schema, newRow, tid,
		[]planner.Assignment{{Column: "name", Value: "x"}}))
	require.Equal(t, 0, calls)

	// assigning the key column adds a fresh entry
	require.NoError(t, e.syncIndexesOnUpdate("users", meta.Schema, newRow, tid,
		[]planner.Assignment{{Column: "id", Value: int64(5)}}))
	require.Equal(t, 1, calls)
}

func TestMatchWhere(t *testing.T) {
	schema := usersMeta().Schema

	ok, err := matchWhere(schema, &planner.WhereEq{Column: "id", Value: int64(4)}, []any{int64(4), "x"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = matchWhere(schema, &planner.WhereEq{Column: "id", Value: int64(4)}, []any{int64(5), "x"})
	require.NoError(t, err)
	require.False(t, ok)

	// NULL only matches NULL
	ok, err = matchWhere(schema, &planner.WhereEq{Column: "name", Value: nil}, []any{int64(1), nil})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = matchWhere(schema, &planner.WhereEq{Column: "name", Value: "a"}, []any{int64(1), nil})
	require.NoError(t, err)
	require.False(t, ok)

	_, err = matchWhere(schema, &planner.WhereEq{Column: "ghost", Value: int64(1)}, []any{int64(1), "x"})
	require.ErrorContains(t, err, "unknown column")
}

// end-to-end: SQL in, rows out, against a real database directory.

func newSQLDatabase(t *testing.T) *Executor {
	t.Helper()
	db := lunadb.NewDatabase(t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	return NewExecutor(db)
}

func TestExecSQLTableLifecycle(t *testing.T) {
	e := newSQLDatabase(t)

	_, err := e.ExecSQL("CREATE TABLE users (id INT, name TEXT, active BOOL);")
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		res, err := e.ExecSQL(fmt.Sprintf("INSERT INTO users VALUES (%d, 'user-%d', %v);", i, i, i%2 == 0))
		require.NoError(t, err)
		require.Equal(t, int64(1), res.AffectedRows)
	}

	res, err := e.ExecSQL("SELECT * FROM users;")
	require.NoError(t, err)
	require.Equal(t, []string{"id", "name", "active"}, res.Columns)
	require.Len(t, res.Rows, 5)

	res, err = e.ExecSQL("SELECT * FROM users WHERE id = 3;")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, "user-3", res.Rows[0][1])

	res, err = e.ExecSQL("UPDATE users SET name = 'renamed' WHERE id = 3;")
	require.NoError(t, err)
	require.Equal(t, int64(1), res.AffectedRows)

	res, err = e.ExecSQL("SELECT * FROM users WHERE id = 3;")
	require.NoError(t, err)
	require.Equal(t, "renamed", res.Rows[0][1])

	res, err = e.ExecSQL("DELETE FROM users WHERE active = true;")
	require.NoError(t, err)
	require.Equal(t, int64(2), res.AffectedRows)

	res, err = e.ExecSQL("SELECT * FROM users;")
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)

	_, err = e.ExecSQL("DROP TABLE users;")
	require.NoError(t, err)
	_, err = e.ExecSQL("SELECT * FROM users;")
	require.Error(t, err)
}

func TestExecSQLIndexLifecycle(t *testing.T) {
	e := newSQLDatabase(t)

	_, err := e.ExecSQL("CREATE TABLE events (id INT, payload TEXT);")
	require.NoError(t, err)

	for i := 1; i <= 20; i++ {
		_, err := e.ExecSQL(fmt.Sprintf("INSERT INTO events VALUES (%d, 'p-%d');", i, i))
		require.NoError(t, err)
	}

	// backfill covers the rows inserted before the index existed
	res, err := e.ExecSQL("CREATE INDEX events_by_id ON events (id);")
	require.NoError(t, err)
	require.Equal(t, int64(20), res.AffectedRows)

	// the WHERE id = ... path now goes through the index
	res, err = e.ExecSQL("SELECT * FROM events WHERE id = 13;")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, "p-13", res.Rows[0][1])

	// rows inserted after the index are indexed on the way in
	_, err = e.ExecSQL("INSERT INTO events VALUES (21, 'p-21');")
	require.NoError(t, err)
	res, err = e.ExecSQL("SELECT * FROM events WHERE id = 21;")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	// deleted rows disappear from index lookups despite stale entries
	_, err = e.ExecSQL("DELETE FROM events WHERE id = 13;")
	require.NoError(t, err)
	res, err = e.ExecSQL("SELECT * FROM events WHERE id = 13;")
	require.NoError(t, err)
	require.Empty(t, res.Rows)

	_, err = e.ExecSQL("DROP INDEX events_by_id ON events;")
	require.NoError(t, err)

	// still answerable, now by seq scan
	res, err = e.ExecSQL("SELECT * FROM events WHERE id = 7;")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
}

func TestExecSQLUseDatabase(t *testing.T) {
	e := newSQLDatabase(t)

	_, err := e.ExecSQL("CREATE DATABASE app;")
	require.NoError(t, err)
	_, err = e.ExecSQL("USE app;")
	require.NoError(t, err)

	_, err = e.ExecSQL("CREATE TABLE t (id INT);")
	require.NoError(t, err)
	_, err = e.ExecSQL("INSERT INTO t VALUES (1);")
	require.NoError(t, err)

	res, err := e.ExecSQL("SELECT * FROM t;")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	_, err = e.ExecSQL("USE nope;")
	require.Error(t, err)
}
