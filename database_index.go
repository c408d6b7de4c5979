package lunadb

import (
	"errors"
	"os"
	"time"

	"github.com/tuannm99/lunadb/internal/btree"
	"github.com/tuannm99/lunadb/internal/storage"
)

type IndexKind string

const (
	IndexKindBTree IndexKind = "btree"
)

var (
	ErrIndexNotFound  = errors.New("lunadb: index not found")
	ErrIndexExists    = errors.New("lunadb: index already exists")
	ErrIndexBadColumn = errors.New("lunadb: index key column not found")
	ErrIndexBadKind   = errors.New("lunadb: unsupported index kind")
	ErrIndexBadName   = errors.New("lunadb: invalid index name")
	ErrIndexBadTable  = errors.New("lunadb: invalid table name")
	ErrIndexBadKeyCol = errors.New("lunadb: invalid key column")
)

// IndexMeta lives inside the owning table's meta file; there is no
// separate index catalog.
type IndexMeta struct {
	Name      string    `json:"name"`
	Kind      IndexKind `json:"kind"`
	KeyColumn string    `json:"key_column"`
	FileBase  string    `json:"file_base"` // segment base inside db.TableDir()
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// fileSet resolves the index's on-disk location. Old meta entries may
// predate FileBase, in which case the conventional name applies.
func (im *IndexMeta) fileSet(db *Database, table string) storage.LocalFileSet {
	base := im.FileBase
	if base == "" {
		base = db.fmtIndexBase(table, im.Name)
	}
	return storage.LocalFileSet{Dir: db.TableDir(), Base: base}
}

// indexArgs validates the identifiers of an index operation and loads
// the owning table's meta.
func (db *Database) indexArgs(table, indexName string) (*TableMeta, error) {
	if err := db.ensureOpen(); err != nil {
		return nil, err
	}
	if err := validateIdent(table); err != nil {
		return nil, ErrIndexBadTable
	}
	if err := validateIdent(indexName); err != nil {
		return nil, ErrIndexBadName
	}
	return db.readTableMeta(table)
}

// ListIndexes returns a copy of the table's registered indexes.
func (db *Database) ListIndexes(table string) ([]IndexMeta, error) {
	if err := db.ensureOpen(); err != nil {
		return nil, err
	}
	if err := validateIdent(table); err != nil {
		return nil, ErrIndexBadTable
	}
	meta, err := db.readTableMeta(table)
	if err != nil {
		return nil, err
	}
	return append([]IndexMeta(nil), meta.Indexes...), nil
}

func findIndex(meta *TableMeta, indexName string) (int, *IndexMeta) {
	for i := range meta.Indexes {
		if meta.Indexes[i].Name == indexName {
			return i, &meta.Indexes[i]
		}
	}
	return -1, nil
}

// CreateBTreeIndex registers an index in the table meta and returns a
// fresh tree handle. Backfilling existing rows is the caller's job (the
// SQL executor scans the table right after).
func (db *Database) CreateBTreeIndex(table, indexName, keyColumn string) (*btree.Tree, error) {
	tmeta, err := db.indexArgs(table, indexName)
	if err != nil {
		return nil, err
	}
	if err := validateIdent(keyColumn); err != nil {
		return nil, ErrIndexBadKeyCol
	}
	if tmeta.Schema.ColIndex(keyColumn) < 0 {
		return nil, ErrIndexBadColumn
	}
	if _, existing := findIndex(tmeta, indexName); existing != nil {
		return nil, ErrIndexExists
	}

	if err := os.MkdirAll(db.TableDir(), 0o755); err != nil {
		return nil, err
	}

	now := time.Now()
	im := IndexMeta{
		Name:      indexName,
		Kind:      IndexKindBTree,
		KeyColumn: keyColumn,
		FileBase:  db.fmtIndexBase(table, indexName),
		CreatedAt: now,
		UpdatedAt: now,
	}

	fs := im.fileSet(db, table)
	tree := btree.NewTree(db.SM, fs, db.viewFor(fs))

	tmeta.Indexes = append(tmeta.Indexes, im)
	if err := db.writeTableMeta(tmeta); err != nil {
		return nil, err
	}
	return tree, nil
}

// OpenBTreeIndex opens a registered index for reading or further
// inserts.
func (db *Database) OpenBTreeIndex(table, indexName string) (*btree.Tree, error) {
	tmeta, err := db.indexArgs(table, indexName)
	if err != nil {
		return nil, err
	}

	_, im := findIndex(tmeta, indexName)
	if im == nil {
		return nil, ErrIndexNotFound
	}
	if im.Kind != IndexKindBTree {
		return nil, ErrIndexBadKind
	}

	fs := im.fileSet(db, table)
	return btree.OpenTree(db.SM, fs, db.viewFor(fs))
}

// DropIndex unregisters the index and removes its files. Its pages are
// flushed and evicted from the shared pool first, so a later pool flush
// cannot resurrect segment files of a dead index.
func (db *Database) DropIndex(table, indexName string) error {
	tmeta, err := db.indexArgs(table, indexName)
	if err != nil {
		return err
	}

	pos, im := findIndex(tmeta, indexName)
	if im == nil {
		return ErrIndexNotFound
	}
	if im.Kind != IndexKindBTree {
		return ErrIndexBadKind
	}

	fs := im.fileSet(db, table)
	if err := db.flushAndDropFileSet(fs); err != nil {
		return err
	}
	if err := btree.DropIndex(fs); err != nil {
		return err
	}

	tmeta.Indexes = append(tmeta.Indexes[:pos], tmeta.Indexes[pos+1:]...)
	return db.writeTableMeta(tmeta)
}
