package btree

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/tuannm99/lunadb/internal/storage"
)

// DropIndex removes an index's segment files and its meta file.
// Idempotent: dropping an index that never materialized is fine.
func DropIndex(lfs storage.LocalFileSet) error {
	if err := storage.RemoveAllSegments(lfs); err != nil {
		return err
	}

	metaPath := filepath.Join(lfs.Dir, lfs.Base+metaFileSuffix)
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
