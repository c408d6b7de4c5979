package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// SegFileName maps a segment number to its file name: segment 0 is the
// bare base name, segment N > 0 is "base.N".
func SegFileName(base string, segNo int32) string {
	if segNo <= 0 {
		return base
	}
	return fmt.Sprintf("%s.%d", base, segNo)
}

// listSegmentsLocal scans lfs.Dir for lfs.Base and lfs.Base.<n> files and
// returns the segment numbers in ascending order. A missing directory is
// an empty relation, not an error.
func listSegmentsLocal(lfs LocalFileSet) ([]int32, error) {
	ents, err := os.ReadDir(lfs.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	prefix := lfs.Base + "."
	var segs []int32
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == lfs.Base {
			segs = append(segs, 0)
			continue
		}
		suf, ok := strings.CutPrefix(name, prefix)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(suf, 10, 32)
		if err != nil || n <= 0 {
			continue
		}
		segs = append(segs, int32(n))
	}

	sort.Slice(segs, func(i, j int) bool { return segs[i] < segs[j] })
	return segs, nil
}

// RemoveAllSegments deletes every segment file of the relation. It scans
// the directory rather than trusting a page count, so it also cleans up
// after partial renames.
func RemoveAllSegments(lfs LocalFileSet) error {
	segs, err := listSegmentsLocal(lfs)
	if err != nil {
		return err
	}
	for _, segNo := range segs {
		path := filepath.Join(lfs.Dir, SegFileName(lfs.Base, segNo))
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// RenameAllSegments moves every segment of oldLFS to newLFS. It refuses to
// overwrite: if any target already exists the whole rename is rejected
// before the first os.Rename runs.
func RenameAllSegments(oldLFS, newLFS LocalFileSet) error {
	if err := os.MkdirAll(newLFS.Dir, 0o755); err != nil {
		return err
	}

	segs, err := listSegmentsLocal(oldLFS)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return nil
	}

	for _, segNo := range segs {
		newPath := filepath.Join(newLFS.Dir, SegFileName(newLFS.Base, segNo))
		if _, err := os.Stat(newPath); err == nil {
			return fmt.Errorf("rename segments: target exists: %s", newPath)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	for _, segNo := range segs {
		oldPath := filepath.Join(oldLFS.Dir, SegFileName(oldLFS.Base, segNo))
		newPath := filepath.Join(newLFS.Dir, SegFileName(newLFS.Base, segNo))
		if err := os.Rename(oldPath, newPath); err != nil {
			return err
		}
	}
	return nil
}

// FsKeyOf normalizes a FileSet into a stable string key for caches (the
// global buffer pool keys its page table with it). Only LocalFileSet can
// be keyed.
func FsKeyOf(fs FileSet) (string, LocalFileSet, bool) {
	lfs, ok := fs.(LocalFileSet)
	if !ok {
		return "", LocalFileSet{}, false
	}
	dir := filepath.Clean(lfs.Dir)
	return dir + "|" + lfs.Base, LocalFileSet{Dir: dir, Base: lfs.Base}, true
}
