package files

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func k(parts ...string) Key {
	return Key(filepath.Join(append([]string{"root"}, parts...)...))
}

func newTestCache(t *testing.T, files map[string]string) (*Cache, string) {
	t.Helper()
	root := mkTree(t, files)
	c, warnings := NewCache(root, "", Snapshot(root), CacheOptions{Workers: 2})
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	return c, root
}

func TestNewCacheSingleFileScenario(t *testing.T) {
	c, _ := newTestCache(t, map[string]string{"a.txt": "line1\nline2"})

	if !c.Has(k()) || !c.IsDir(k()) {
		t.Fatal("root directory missing or not a directory")
	}
	content, ok := c.Get(k("a.txt"))
	if !ok {
		t.Fatal("a.txt not loaded")
	}
	all, _ := content.View(ViewAllLines)
	lines, _ := content.View(ViewLines)
	want := []string{"line1\n", "line2"}
	if !slices.Equal(all, want) || !slices.Equal(lines, want) {
		t.Fatalf("views = %q / %q, want %q", all, lines, want)
	}
}

func TestNewCacheDowngradesLoadFailures(t *testing.T) {
	root := mkTree(t, map[string]string{"good.txt": "ok"})
	if err := os.WriteFile(filepath.Join(root, "bad.bin"), []byte{'a', 0xff, 0xfd}, 0o644); err != nil {
		t.Fatal(err)
	}

	c, warnings := NewCache(root, "", Snapshot(root), CacheOptions{})
	if len(warnings) != 1 || !errors.Is(warnings[0], ErrNotUTF8) {
		t.Fatalf("warnings = %v, want one ErrNotUTF8", warnings)
	}
	if !c.Has(k("bad.bin")) {
		t.Fatal("failed file dropped from cache")
	}
	if _, ok := c.Get(k("bad.bin")); ok {
		t.Fatal("failed file has content")
	}
	if _, ok := c.Get(k("good.txt")); !ok {
		t.Fatal("good file not loaded")
	}
}

func TestCurrentAndSelect(t *testing.T) {
	c, _ := newTestCache(t, map[string]string{"a.txt": "x", "d/e.txt": "y"})

	if _, ok := c.Current(); ok {
		t.Fatal("empty selection returned content")
	}

	c.Select(k("a.txt"))
	if got, ok := c.Current(); !ok || got.Size() != 1 {
		t.Fatalf("Current() = %v, %v", got, ok)
	}

	c.Select(k("d"))
	if _, ok := c.Current(); ok {
		t.Fatal("directory selection returned content")
	}

	c.Select(k("nope.txt"))
	if c.Selected() != k("nope.txt") {
		t.Fatal("Select did not store unknown key")
	}
	if _, ok := c.Current(); ok {
		t.Fatal("unknown selection returned content")
	}
}

func TestApplyContent(t *testing.T) {
	c, _ := newTestCache(t, map[string]string{"a.txt": "old", "b.txt": "b"})
	before := c.Keys()
	bContent, _ := c.Get(k("b.txt"))

	if c.ApplyContent(k("untracked.txt"), NewContent("/x", "new")) {
		t.Fatal("update applied to untracked key")
	}
	if !slices.Equal(c.Keys(), before) {
		t.Fatalf("key set changed: %v -> %v", before, c.Keys())
	}

	fresh := NewContent("/a", "x")
	if !c.ApplyContent(k("a.txt"), fresh) {
		t.Fatal("update to tracked key not applied")
	}
	c.Select(k("a.txt"))
	got, _ := c.Current()
	if v, _ := got.View(ViewAllLines); !slices.Equal(v, []string{"x"}) {
		t.Fatalf("current view = %q, want [x]", v)
	}
	if after, _ := c.Get(k("b.txt")); after != bContent {
		t.Fatal("unrelated entry changed")
	}
}

func TestApplyRename(t *testing.T) {
	c, _ := newTestCache(t, map[string]string{"a.txt": "A"})
	prior, _ := c.Get(k("a.txt"))
	c.Select(k("a.txt"))

	if !c.ApplyRename(k("a.txt"), k("b.txt"), false) {
		t.Fatal("rename of tracked key not applied")
	}
	if c.Has(k("a.txt")) {
		t.Fatal("old key still present")
	}
	if got, _ := c.Get(k("b.txt")); got != prior {
		t.Fatal("renamed entry lost its content")
	}
	if c.Selected() != k("a.txt") {
		t.Fatalf("selection moved without rebind: %q", c.Selected())
	}
}

func TestApplyRenameAbsentFromLeavesKeysAlone(t *testing.T) {
	c, _ := newTestCache(t, map[string]string{"a.txt": "A"})
	before := c.Keys()

	if c.ApplyRename(k("ghost.txt"), k("b.txt"), true) {
		t.Fatal("rename of absent key reported applied")
	}
	if c.Has(k("b.txt")) {
		t.Fatal("spurious destination key inserted")
	}
	if !slices.Equal(c.Keys(), before) {
		t.Fatalf("key set changed: %v -> %v", before, c.Keys())
	}
}

func TestApplyRenameDirectoryRebindsSelection(t *testing.T) {
	c, _ := newTestCache(t, map[string]string{"d/x.txt": "x", "d/sub/y.txt": "y"})
	c.Select(k("d", "sub", "y.txt"))

	if !c.ApplyRename(k("d"), k("e"), true) {
		t.Fatal("directory rename not applied")
	}
	for _, key := range []Key{k("e"), k("e", "x.txt"), k("e", "sub"), k("e", "sub", "y.txt")} {
		if !c.Has(key) {
			t.Errorf("missing %q after rename", key)
		}
	}
	if c.Has(k("d")) || c.Has(k("d", "x.txt")) {
		t.Error("old subtree still present")
	}
	if c.Selected() != k("e", "sub", "y.txt") {
		t.Fatalf("selection = %q, want rebound", c.Selected())
	}
}

func TestApplyDelete(t *testing.T) {
	c, _ := newTestCache(t, map[string]string{"d/x.txt": "x", "keep.txt": "k"})

	if c.ApplyDelete(k("nothing")) {
		t.Fatal("delete of absent key reported applied")
	}
	if !c.ApplyDelete(k("d")) {
		t.Fatal("delete not applied")
	}
	if c.Has(k("d")) || c.Has(k("d", "x.txt")) {
		t.Fatal("subtree not removed")
	}
	if !c.Has(k("keep.txt")) {
		t.Fatal("unrelated key removed")
	}
}

func TestSelectionList(t *testing.T) {
	root := mkTree(t, map[string]string{"b.txt": "b", "a/c.txt": "c"})
	wl, warnings, err := NewWatchList(root, WatchListOptions{})
	if err != nil || len(warnings) != 0 {
		t.Fatalf("NewWatchList: %v %v", err, warnings)
	}

	list := wl.Selection()
	want := []Key{k(), k("a"), k("a", "c.txt"), k("b.txt")}
	if !slices.Equal(list.Keys(), want) {
		t.Fatalf("list = %v, want %v", list.Keys(), want)
	}
	if wl.Cache().Selected() != k("a", "c.txt") {
		t.Fatalf("initial selection = %q, want first file", wl.Cache().Selected())
	}
	if i := list.Index(k("b.txt")); i != 3 {
		t.Fatalf("Index(b.txt) = %d", i)
	}
	if i := list.Index(k("zzz")); i != -1 {
		t.Fatalf("Index(zzz) = %d", i)
	}

	wl.Cache().ApplyRename(k("b.txt"), k("0.txt"), false)
	wl.Refresh()
	if got := wl.Selection().Keys(); got[1] != k("0.txt") {
		t.Fatalf("list not rebuilt after rename: %v", got)
	}
}

func TestNewWatchListBadRoot(t *testing.T) {
	_, _, err := NewWatchList(filepath.Join(t.TempDir(), "missing"), WatchListOptions{})
	if !errors.Is(err, ErrRootUnresolvable) {
		t.Fatalf("err = %v, want ErrRootUnresolvable", err)
	}
}
