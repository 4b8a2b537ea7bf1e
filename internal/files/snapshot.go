package files

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Entry is one path found by Snapshot.
type Entry struct {
	Path  string
	IsDir bool
}

// Snapshot walks root once and returns every reachable file and directory,
// root included, ordered by path. Entries that fail during the walk (unreadable
// directories, broken symlinks) are skipped. Names matching any ignore glob
// are left out; an ignored directory is not descended into.
func Snapshot(root string, ignore ...string) []Entry {
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	var entries []Entry
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if path != root && ignored(d.Name(), ignore) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		isDir := d.IsDir()
		if d.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil {
				return nil
			}
			isDir = info.IsDir()
		}
		entries = append(entries, Entry{Path: path, IsDir: isDir})
		return nil
	})

	slices.SortFunc(entries, func(a, b Entry) int {
		return ComparePaths(a.Path, b.Path)
	})
	return entries
}

// ComparePaths orders paths element by element, so a directory sorts directly
// before its own children ("a", "a/b", "a.txt").
func ComparePaths(a, b string) int {
	as := strings.Split(filepath.ToSlash(a), "/")
	bs := strings.Split(filepath.ToSlash(b), "/")
	return slices.Compare(as, bs)
}

func ignored(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}
