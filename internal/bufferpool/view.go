package bufferpool

import "github.com/tuannm99/lunadb/internal/storage"

// FileSetView is the relation-scoped face of a GlobalPool: it fixes the
// FileSet so table and index code can speak the plain Manager interface
// while still sharing one process-wide frame budget.
type FileSetView struct {
	gp *GlobalPool
	fs storage.FileSet
}

var _ Manager = (*FileSetView)(nil)

func (v *FileSetView) GetPage(pageID uint32) (*storage.Page, error) {
	return v.gp.GetPage(v.fs, pageID)
}

func (v *FileSetView) Unpin(page *storage.Page, dirty bool) error {
	return v.gp.Unpin(v.fs, page, dirty)
}

// FlushAll flushes this relation's dirty pages only, not the whole pool.
func (v *FileSetView) FlushAll() error {
	return v.gp.FlushFileSet(v.fs)
}

// View returns a Manager scoped to fs, backed by the shared pool.
func (gp *GlobalPool) View(fs storage.FileSet) Manager {
	return &FileSetView{gp: gp, fs: fs}
}
