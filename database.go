package lunadb

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/tuannm99/lunadb/internal/bufferpool"
	"github.com/tuannm99/lunadb/internal/heap"
	"github.com/tuannm99/lunadb/internal/record"
	"github.com/tuannm99/lunadb/internal/storage"
)

var (
	ErrDatabaseClosed  = errors.New("lunadb: database is closed")
	ErrInvalidPageID   = errors.New("lunadb: invalid page ID")
	ErrInvalidIdent    = errors.New("lunadb: invalid identifier")
	ErrDatabaseExists  = errors.New("lunadb: database already exists")
	ErrDatabaseMissing = errors.New("lunadb: database does not exist")
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validateIdent rejects table/index/database names that aren't safe to use
// as path components or JSON meta file names.
func validateIdent(name string) error {
	if !identRe.MatchString(name) || len(name) > 128 {
		return ErrInvalidIdent
	}
	return nil
}

// TableMeta is the on-disk (JSON) description of a table: its schema, page
// count and registered indexes.
type TableMeta struct {
	Name      string        `json:"name"`
	Schema    record.Schema `json:"schema"`
	PageCount uint32        `json:"page_count"`
	Indexes   []IndexMeta   `json:"indexes"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Database is the top-level handle for a lunadb data directory. A single
// Database process hosts many named sub-databases (CreateDatabase /
// SelectDatabase), each a directory of table/index files, all served by one
// shared buffer pool.
type Database struct {
	mu     sync.RWMutex
	closed bool

	rootDir string // process-wide data directory
	active  string // currently selected sub-database ("" == rootDir itself)

	SM *storage.StorageManager
	gp *bufferpool.GlobalPool
}

// NewDatabase creates a database handle rooted at dataDir without touching
// the filesystem beyond what SelectDatabase/CreateTable need. The shared
// buffer pool uses bufferpool.DefaultCapacity frames and bufferpool.DefaultK
// history depth.
func NewDatabase(dataDir string) *Database {
	return NewDatabaseWithPool(dataDir, bufferpool.DefaultCapacity, bufferpool.DefaultK)
}

// NewDatabaseWithPool is NewDatabase with explicit buffer pool sizing, for
// callers that surface num_frames/k as configuration (see cmd/server).
func NewDatabaseWithPool(dataDir string, numFrames, k int) *Database {
	sm := storage.NewStorageManager()
	return &Database{
		rootDir: dataDir,
		SM:      sm,
		gp:      bufferpool.NewGlobalPoolWithK(sm, numFrames, k),
	}
}

func (db *Database) ensureOpen() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ErrDatabaseClosed
	}
	return nil
}

// dataDir returns the directory of the currently selected sub-database, or
// the root directory when none has been selected.
func (db *Database) dataDir() string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.active == "" {
		return db.rootDir
	}
	return filepath.Join(db.rootDir, db.active)
}

func (db *Database) tableDir() string {
	return filepath.Join(db.dataDir(), "tables")
}

// TableDir exposes the active sub-database's table directory; used by the
// index registry and the SQL executor.
func (db *Database) TableDir() string { return db.tableDir() }

func (db *Database) tableMetaPath(name string) string {
	return filepath.Join(db.tableDir(), name+".meta.json")
}

func (db *Database) tableFileSet(name string) storage.LocalFileSet {
	return storage.LocalFileSet{Dir: db.tableDir(), Base: name}
}

func (db *Database) overflowFileSet(name string) storage.LocalFileSet {
	return storage.LocalFileSet{Dir: db.tableDir(), Base: name + "_ovf"}
}

// fmtIndexBase derives the on-disk file base for an index's segment files.
func (db *Database) fmtIndexBase(table, index string) string {
	return fmt.Sprintf("%s_idx_%s", table, index)
}

// viewFor returns a buffer-pool view scoped to fs, backed by the shared
// GlobalPool so every relation (heap, overflow, index) competes for the
// same frame budget.
func (db *Database) viewFor(fs storage.FileSet) bufferpool.Manager {
	return db.gp.View(fs)
}

// BufferView exposes viewFor to the SQL executor, which needs a Manager per
// FileSet when building query plans that touch secondary indexes.
func (db *Database) BufferView(fs storage.FileSet) bufferpool.Manager {
	return db.viewFor(fs)
}

// flushAndDropFileSet evicts fs's pages from the shared pool, flushing dirty
// ones first. Must be called before the underlying segment files are
// removed or renamed.
func (db *Database) flushAndDropFileSet(fs storage.FileSet) error {
	if err := db.gp.FlushFileSet(fs); err != nil {
		return err
	}
	return db.gp.DropFileSet(fs)
}

func (db *Database) writeTableMeta(meta *TableMeta) error {
	if err := os.MkdirAll(db.tableDir(), 0o755); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(db.tableMetaPath(meta.Name), data, 0o644)
}

func (db *Database) readTableMeta(name string) (*TableMeta, error) {
	data, err := os.ReadFile(db.tableMetaPath(name))
	if err != nil {
		return nil, err
	}
	var meta TableMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// CreateDatabase creates a new, empty sub-database directory under the
// process root. It does not select it.
func (db *Database) CreateDatabase(name string) error {
	if err := db.ensureOpen(); err != nil {
		return err
	}
	if err := validateIdent(name); err != nil {
		return err
	}

	dir := filepath.Join(db.rootDir, name)
	if _, err := os.Stat(dir); err == nil {
		return ErrDatabaseExists
	}
	return os.MkdirAll(filepath.Join(dir, "tables"), 0o755)
}

// DropDatabase removes a sub-database directory. Dropping the currently
// selected sub-database resets the selection to the process root.
func (db *Database) DropDatabase(name string) error {
	if err := db.ensureOpen(); err != nil {
		return err
	}
	if err := validateIdent(name); err != nil {
		return err
	}

	dir := filepath.Join(db.rootDir, name)
	if _, err := os.Stat(dir); err != nil {
		return ErrDatabaseMissing
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}

	db.mu.Lock()
	if db.active == name {
		db.active = ""
	}
	db.mu.Unlock()
	return nil
}

// SelectDatabase switches the active sub-database for subsequent table and
// index operations (the SQL "USE <db>" statement).
func (db *Database) SelectDatabase(name string) error {
	if err := db.ensureOpen(); err != nil {
		return err
	}
	if err := validateIdent(name); err != nil {
		return err
	}
	dir := filepath.Join(db.rootDir, name)
	if _, err := os.Stat(dir); err != nil {
		return ErrDatabaseMissing
	}

	db.mu.Lock()
	db.active = name
	db.mu.Unlock()
	return nil
}

// CreateTable creates a new heap table with the given schema in the active
// sub-database.
func (db *Database) CreateTable(name string, schema record.Schema) (*heap.Table, error) {
	if err := db.ensureOpen(); err != nil {
		return nil, err
	}
	if err := validateIdent(name); err != nil {
		return nil, err
	}

	fs := db.tableFileSet(name)
	bp := db.viewFor(fs)

	meta := &TableMeta{
		Name:      name,
		Schema:    schema,
		PageCount: 0,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.writeTableMeta(meta); err != nil {
		return nil, err
	}

	ovfFS := db.overflowFileSet(name)
	ovf := storage.NewOverflowManager(db.SM, ovfFS)

	return heap.NewTable(name, schema, db.SM, fs, bp, ovf, 0), nil
}

// OpenTable opens an existing table, rebuilding its buffer pool view and
// overflow manager from the persisted meta file.
func (db *Database) OpenTable(name string) (*heap.Table, error) {
	if err := db.ensureOpen(); err != nil {
		return nil, err
	}
	if err := validateIdent(name); err != nil {
		return nil, err
	}

	fs := db.tableFileSet(name)
	meta, err := db.readTableMeta(name)
	if err != nil {
		return nil, err
	}

	pageCount, err := db.SM.CountPages(fs)
	if err != nil {
		return nil, err
	}
	meta.PageCount = pageCount
	if err := db.writeTableMeta(meta); err != nil {
		slog.Info("lunadb: open table: write meta back failed", "table", name, "err", err)
	}

	bp := db.viewFor(fs)
	ovfFS := db.overflowFileSet(name)
	ovf := storage.NewOverflowManager(db.SM, ovfFS)

	return heap.NewTable(name, meta.Schema, db.SM, fs, bp, ovf, pageCount), nil
}

// DropTable drops all indexes registered on the table, evicts its pages
// (and its overflow fileset's pages) from the shared pool, removes its
// segment files, and deletes its meta file.
func (db *Database) DropTable(name string) error {
	if err := db.ensureOpen(); err != nil {
		return err
	}
	if err := validateIdent(name); err != nil {
		return err
	}

	meta, err := db.readTableMeta(name)
	if err != nil {
		return err
	}

	for _, im := range meta.Indexes {
		if err := db.DropIndex(name, im.Name); err != nil {
			return err
		}
	}

	fs := db.tableFileSet(name)
	if err := db.flushAndDropFileSet(fs); err != nil {
		return err
	}
	if err := storage.RemoveAllSegments(fs); err != nil {
		return err
	}

	ovfFS := db.overflowFileSet(name)
	if err := db.flushAndDropFileSet(ovfFS); err != nil {
		return err
	}
	if err := storage.RemoveAllSegments(ovfFS); err != nil {
		return err
	}

	return os.Remove(db.tableMetaPath(name))
}

// ListTables returns the meta of every table in the active sub-database.
func (db *Database) ListTables() ([]*TableMeta, error) {
	if err := db.ensureOpen(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(db.tableDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]*TableMeta, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".meta.json") {
			continue
		}
		// index meta files share the directory and a similar suffix
		if strings.HasSuffix(e.Name(), ".btree.meta.json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".meta.json")
		meta, err := db.readTableMeta(name)
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	return out, nil
}

// StorageManager exposes the process-wide storage manager.
func (db *Database) StorageManager() *storage.StorageManager { return db.SM }

// Close flushes the shared buffer pool and marks the database closed.
func (db *Database) Close() error {
	db.mu.Lock()
	db.closed = true
	db.mu.Unlock()
	return db.gp.FlushAll()
}
