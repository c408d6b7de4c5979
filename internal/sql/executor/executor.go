// Package executor runs plans produced by the planner against a database,
// maintaining secondary indexes as rows change.
package executor

import (
	"fmt"
	"log/slog"

	"github.com/tuannm99/lunadb"
	"github.com/tuannm99/lunadb/internal/btree"
	"github.com/tuannm99/lunadb/internal/bufferpool"
	"github.com/tuannm99/lunadb/internal/heap"
	"github.com/tuannm99/lunadb/internal/record"
	"github.com/tuannm99/lunadb/internal/sql/parser"
	"github.com/tuannm99/lunadb/internal/sql/planner"
	"github.com/tuannm99/lunadb/internal/storage"
)

// executorDB is the seam between the executor and the real database, so
// unit tests can swap in a fake.
type executorDB interface {
	CreateDatabase(name string) error
	DropDatabase(name string) error
	SelectDatabase(name string) error

	CreateTable(table string, schema record.Schema) (*heap.Table, error)
	DropTable(table string) error
	OpenTable(table string) (*heap.Table, error)
	ListTables() ([]*lunadb.TableMeta, error)

	CreateBTreeIndex(table, index, keyColumn string) (*btree.Tree, error)
	DropIndex(table, index string) error

	TableDir() string
	BufferView(fs storage.FileSet) bufferpool.Manager
	StorageManager() *storage.StorageManager
}

// Executor turns SQL text into results. It doubles as the planner's
// Catalog, answering schema and index questions from table meta.
type Executor struct {
	DB executorDB

	// test hook for index maintenance
	btreeInsertFn func(im lunadb.IndexMeta, key int64, tid heap.TID) error
}

func NewExecutor(db *lunadb.Database) *Executor {
	return NewExecutorWith(db)
}

// NewExecutorWith accepts anything satisfying executorDB; used by tests.
func NewExecutorWith(db executorDB) *Executor {
	ex := &Executor{DB: db}
	ex.btreeInsertFn = ex.btreeInsert
	return ex
}

var _ planner.Catalog = (*Executor)(nil)

// TableSchema implements planner.Catalog.
func (e *Executor) TableSchema(table string) (record.Schema, bool, error) {
	tm, err := e.tableMeta(table)
	if err != nil {
		return record.Schema{}, false, err
	}
	if tm == nil {
		return record.Schema{}, false, nil
	}
	return tm.Schema, true, nil
}

// BTreeIndexOn implements planner.Catalog.
func (e *Executor) BTreeIndexOn(table, column string) (string, bool, error) {
	idxs, err := e.listBTreeIndexes(table)
	if err != nil {
		return "", false, err
	}
	for _, im := range idxs {
		if im.KeyColumn == column && im.FileBase != "" {
			return im.FileBase, true, nil
		}
	}
	return "", false, nil
}

// ExecSQL parses, plans and executes one statement.
func (e *Executor) ExecSQL(sql string) (*Result, error) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		return nil, err
	}
	plan, err := planner.BuildPlan(stmt, e)
	if err != nil {
		return nil, err
	}
	return e.execPlan(plan)
}

func (e *Executor) execPlan(p planner.Plan) (*Result, error) {
	switch plan := p.(type) {
	case *planner.CreateDatabasePlan:
		return ddlResult(e.DB.CreateDatabase(plan.Name))
	case *planner.DropDatabasePlan:
		return ddlResult(e.DB.DropDatabase(plan.Name))
	case *planner.UseDatabasePlan:
		return ddlResult(e.DB.SelectDatabase(plan.Name))

	case *planner.CreateTablePlan:
		_, err := e.DB.CreateTable(plan.TableName, plan.Schema)
		return ddlResult(err)
	case *planner.DropTablePlan:
		return ddlResult(e.DB.DropTable(plan.TableName))

	case *planner.CreateIndexPlan:
		return e.execCreateIndex(plan)
	case *planner.DropIndexPlan:
		return ddlResult(e.DB.DropIndex(plan.TableName, plan.IndexName))

	case *planner.InsertPlan:
		return e.execInsert(plan)
	case *planner.IndexLookupPlan:
		return e.execIndexLookup(plan)
	case *planner.SeqScanPlan:
		return e.execSeqScan(plan)
	case *planner.UpdatePlan:
		return e.execUpdate(plan)
	case *planner.DeletePlan:
		return e.execDelete(plan)

	default:
		return nil, fmt.Errorf("executor: unsupported plan type %T", p)
	}
}

func ddlResult(err error) (*Result, error) {
	if err != nil {
		return nil, err
	}
	return &Result{}, nil
}

// execCreateIndex registers the index, then backfills it from the
// existing rows so lookups see data inserted before the index existed.
func (e *Executor) execCreateIndex(p *planner.CreateIndexPlan) (*Result, error) {
	tbl, err := e.DB.OpenTable(p.TableName)
	if err != nil {
		return nil, err
	}
	pos := tbl.Schema.ColIndex(p.Column)
	if pos < 0 {
		return nil, fmt.Errorf("executor: unknown column %q in CREATE INDEX", p.Column)
	}
	if tbl.Schema.Cols[pos].Type != record.ColInt64 {
		return nil, fmt.Errorf("executor: only INT columns can be indexed, %q is not", p.Column)
	}

	tree, err := e.DB.CreateBTreeIndex(p.TableName, p.IndexName, p.Column)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tree.Close() }()

	var backfilled int64
	err = tbl.Scan(func(id heap.TID, row []any) error {
		if row[pos] == nil {
			return nil
		}
		key, ok := row[pos].(int64)
		if !ok {
			return fmt.Errorf("executor: non-int64 key in column %q", p.Column)
		}
		if err := tree.Insert(key, id); err != nil {
			return err
		}
		backfilled++
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Result{AffectedRows: backfilled}, nil
}

func (e *Executor) execInsert(p *planner.InsertPlan) (*Result, error) {
	tbl, err := e.DB.OpenTable(p.TableName)
	if err != nil {
		return nil, err
	}

	tid, err := tbl.Insert(p.Values)
	if err != nil {
		return nil, err
	}

	if err := e.syncIndexesOnInsert(p.TableName, tbl.Schema, p.Values, tid); err != nil {
		return nil, err
	}
	return &Result{AffectedRows: 1}, nil
}

func (e *Executor) execSeqScan(p *planner.SeqScanPlan) (*Result, error) {
	tbl, err := e.DB.OpenTable(p.TableName)
	if err != nil {
		return nil, err
	}

	res := &Result{Columns: columnNames(tbl.Schema)}
	err = tbl.Scan(func(id heap.TID, row []any) error {
		if p.Where != nil {
			ok, err := matchWhere(tbl.Schema, p.Where, row)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}
		res.Rows = append(res.Rows, cloneRow(row))
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.AffectedRows = int64(len(res.Rows))
	return res, nil
}

func (e *Executor) execIndexLookup(p *planner.IndexLookupPlan) (*Result, error) {
	tbl, err := e.DB.OpenTable(p.TableName)
	if err != nil {
		return nil, err
	}

	idxFS := storage.LocalFileSet{Dir: e.DB.TableDir(), Base: p.IndexFileBase}
	tree, err := btree.OpenTree(e.DB.StorageManager(), idxFS, e.DB.BufferView(idxFS))
	if err != nil {
		return nil, err
	}
	defer func() { _ = tree.Close() }()

	tids, err := tree.SearchEqual(p.Key)
	if err != nil {
		return nil, err
	}

	res := &Result{Columns: columnNames(tbl.Schema)}
	for _, tid := range tids {
		row, err := tbl.Get(tid)
		if err != nil {
			// dangling entry for a deleted row
			continue
		}
		// the index can lag behind updates, so the predicate is always
		// re-checked against the heap row
		if p.Where != nil {
			ok, err := matchWhere(tbl.Schema, p.Where, row)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		res.Rows = append(res.Rows, cloneRow(row))
	}

	res.AffectedRows = int64(len(res.Rows))
	return res, nil
}

func (e *Executor) execUpdate(p *planner.UpdatePlan) (*Result, error) {
	tbl, err := e.DB.OpenTable(p.TableName)
	if err != nil {
		return nil, err
	}

	// collect first: an update can relocate a row to a fresh slot on its
	// page, which a running scan would visit a second time
	type pending struct {
		id     heap.TID
		newRow []any
	}
	var updates []pending

	err = tbl.Scan(func(id heap.TID, row []any) error {
		if p.Where != nil {
			ok, err := matchWhere(tbl.Schema, p.Where, row)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}

		newRow := cloneRow(row)
		for _, a := range p.Assigns {
			pos := tbl.Schema.ColIndex(a.Column)
			if pos < 0 {
				return fmt.Errorf("executor: unknown column in UPDATE: %s", a.Column)
			}
			newRow[pos] = a.Value
		}
		updates = append(updates, pending{id: id, newRow: newRow})
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, u := range updates {
		if err := tbl.Update(u.id, u.newRow); err != nil {
			return nil, err
		}
		if err := e.syncIndexesOnUpdate(p.TableName, tbl.Schema, u.newRow, u.id, p.Assigns); err != nil {
			return nil, err
		}
	}
	return &Result{AffectedRows: int64(len(updates))}, nil
}

func (e *Executor) execDelete(p *planner.DeletePlan) (*Result, error) {
	tbl, err := e.DB.OpenTable(p.TableName)
	if err != nil {
		return nil, err
	}

	// collect first: deleting inside Scan would mutate the pages being
	// iterated
	var victims []heap.TID
	err = tbl.Scan(func(id heap.TID, row []any) error {
		if p.Where != nil {
			ok, err := matchWhere(tbl.Schema, p.Where, row)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}
		victims = append(victims, id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, id := range victims {
		if err := tbl.Delete(id); err != nil {
			return nil, err
		}
	}
	// index entries for deleted rows stay behind; lookups drop them when
	// the heap fetch fails
	return &Result{AffectedRows: int64(len(victims))}, nil
}

func columnNames(schema record.Schema) []string {
	out := make([]string, len(schema.Cols))
	for i, c := range schema.Cols {
		out[i] = c.Name
	}
	return out
}

func cloneRow(row []any) []any {
	cp := make([]any, len(row))
	copy(cp, row)
	return cp
}

func matchWhere(schema record.Schema, w *planner.WhereEq, row []any) (bool, error) {
	pos := schema.ColIndex(w.Column)
	if pos < 0 {
		return false, fmt.Errorf("executor: unknown column in WHERE: %s", w.Column)
	}
	got, want := row[pos], w.Value

	if got == nil || want == nil {
		return got == nil && want == nil, nil
	}

	switch schema.Cols[pos].Type {
	case record.ColInt64:
		g, ok1 := got.(int64)
		wv, ok2 := want.(int64)
		if !ok1 || !ok2 {
			return false, fmt.Errorf("executor: WHERE type mismatch on %s", w.Column)
		}
		return g == wv, nil
	case record.ColText:
		g, ok1 := got.(string)
		wv, ok2 := want.(string)
		if !ok1 || !ok2 {
			return false, fmt.Errorf("executor: WHERE type mismatch on %s", w.Column)
		}
		return g == wv, nil
	case record.ColBool:
		g, ok1 := got.(bool)
		wv, ok2 := want.(bool)
		if !ok1 || !ok2 {
			return false, fmt.Errorf("executor: WHERE type mismatch on %s", w.Column)
		}
		return g == wv, nil
	case record.ColFloat64:
		g, ok1 := got.(float64)
		wv, ok2 := want.(float64)
		if !ok1 || !ok2 {
			return false, fmt.Errorf("executor: WHERE type mismatch on %s", w.Column)
		}
		return g == wv, nil
	default:
		return false, fmt.Errorf("executor: unsupported WHERE type on %s", w.Column)
	}
}

// syncIndexesOnInsert adds (key, tid) to every B+Tree index of the table.
// NULL keys get no index entry; non-int64 key columns are skipped.
func (e *Executor) syncIndexesOnInsert(
	tableName string,
	schema record.Schema,
	values []any,
	tid heap.TID,
) error {
	idxs, err := e.listBTreeIndexes(tableName)
	if err != nil {
		return err
	}

	for _, im := range idxs {
		pos := schema.ColIndex(im.KeyColumn)
		if pos < 0 {
			slog.Warn("executor: index refers to unknown column",
				"table", tableName, "index", im.Name, "col", im.KeyColumn)
			continue
		}
		if schema.Cols[pos].Type != record.ColInt64 || values[pos] == nil {
			continue
		}

		key, ok := values[pos].(int64)
		if !ok {
			return fmt.Errorf("executor: index key is not int64: table=%s col=%s got=%T",
				tableName, im.KeyColumn, values[pos])
		}
		if err := e.btreeInsertFn(im, key, tid); err != nil {
			return err
		}
	}
	return nil
}

// syncIndexesOnUpdate inserts entries for newly assigned indexed keys.
// The old entries stay behind; lookups re-check the heap row, so stale
// entries cost time, not correctness.
func (e *Executor) syncIndexesOnUpdate(
	tableName string,
	schema record.Schema,
	newRow []any,
	tid heap.TID,
	assigns []planner.Assignment,
) error {
	idxs, err := e.listBTreeIndexes(tableName)
	if err != nil {
		return err
	}
	if len(idxs) == 0 {
		return nil
	}

	assigned := make(map[string]bool, len(assigns))
	for _, a := range assigns {
		assigned[a.Column] = true
	}

	for _, im := range idxs {
		if !assigned[im.KeyColumn] {
			continue
		}
		pos := schema.ColIndex(im.KeyColumn)
		if pos < 0 || schema.Cols[pos].Type != record.ColInt64 || newRow[pos] == nil {
			continue
		}
		key, ok := newRow[pos].(int64)
		if !ok {
			continue
		}
		if err := e.btreeInsertFn(im, key, tid); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) tableMeta(tableName string) (*lunadb.TableMeta, error) {
	metas, err := e.DB.ListTables()
	if err != nil {
		return nil, err
	}
	for _, m := range metas {
		if m != nil && m.Name == tableName {
			return m, nil
		}
	}
	return nil, nil
}

func (e *Executor) listBTreeIndexes(tableName string) ([]lunadb.IndexMeta, error) {
	tm, err := e.tableMeta(tableName)
	if err != nil {
		return nil, err
	}
	if tm == nil {
		return nil, fmt.Errorf("executor: table meta not found: %s", tableName)
	}

	out := make([]lunadb.IndexMeta, 0, len(tm.Indexes))
	for _, im := range tm.Indexes {
		if im.Kind == lunadb.IndexKindBTree {
			out = append(out, im)
		}
	}
	return out, nil
}

func (e *Executor) btreeInsert(im lunadb.IndexMeta, key int64, tid heap.TID) error {
	if im.FileBase == "" {
		return fmt.Errorf("executor: index %s has no file base", im.Name)
	}

	idxFS := storage.LocalFileSet{Dir: e.DB.TableDir(), Base: im.FileBase}
	tree, err := btree.OpenTree(e.DB.StorageManager(), idxFS, e.DB.BufferView(idxFS))
	if err != nil {
		return err
	}
	defer func() { _ = tree.Close() }()

	return tree.Insert(key, tid)
}
