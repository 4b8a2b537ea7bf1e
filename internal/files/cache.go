package files

import (
	"fmt"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

// CacheOptions tunes cache construction.
type CacheOptions struct {
	// Modes are the views built for each file. Empty means all.
	Modes []ViewMode
	// Workers bounds concurrent file loads. Zero means GOMAXPROCS.
	Workers int
}

type entry struct {
	content *Content // nil for directories and files that failed to load
	dir     bool
}

// Cache maps Keys to loaded file content plus a single selected Key. It is
// not safe for concurrent use; one goroutine owns it and receives every
// change as a message.
type Cache struct {
	root     string
	selected Key
	entries  map[Key]entry
}

// NewCache keys every snapshot entry against root and loads the files. A file
// that fails to load stays in the cache with no content, and the failure is
// returned as a warning rather than aborting construction.
func NewCache(root string, selected Key, snapshot []Entry, opts CacheOptions) (*Cache, []error) {
	c := &Cache{
		root:     root,
		selected: selected,
		entries:  make(map[Key]entry, len(snapshot)),
	}

	type loaded struct {
		key     Key
		content *Content
		dir     bool
		err     error
	}
	results := make([]loaded, len(snapshot))

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i, e := range snapshot {
		g.Go(func() error {
			key, err := Normalize(root, e.Path)
			if err != nil {
				results[i] = loaded{err: err}
				return nil
			}
			results[i] = loaded{key: key, dir: e.IsDir}
			if e.IsDir {
				return nil
			}
			content, err := Load(e.Path, opts.Modes...)
			results[i].content = content
			results[i].err = err
			return nil
		})
	}
	_ = g.Wait()

	var warnings []error
	for _, r := range results {
		if r.key == "" {
			warnings = append(warnings, fmt.Errorf("skip entry: %w", r.err))
			continue
		}
		if r.err != nil {
			warnings = append(warnings, r.err)
		}
		c.entries[r.key] = entry{content: r.content, dir: r.dir}
	}
	return c, warnings
}

// Root is the directory the cache was built from.
func (c *Cache) Root() string { return c.root }

// Selected returns the selected key. It may not be present in the cache.
func (c *Cache) Selected() Key { return c.selected }

// Select replaces the selected key without checking that it exists.
func (c *Cache) Select(key Key) { c.selected = key }

// Current returns the content of the selected key. It reports false when the
// key is unknown, a directory, or has no content loaded.
func (c *Cache) Current() (*Content, bool) {
	return c.Get(c.selected)
}

// Get returns the content stored for key.
func (c *Cache) Get(key Key) (*Content, bool) {
	e, ok := c.entries[key]
	if !ok || e.content == nil {
		return nil, false
	}
	return e.content, true
}

// Has reports whether key was part of the snapshot (or later renamed into it).
func (c *Cache) Has(key Key) bool {
	_, ok := c.entries[key]
	return ok
}

// IsDir reports whether key is a known directory.
func (c *Cache) IsDir(key Key) bool {
	return c.entries[key].dir
}

// Len is the number of keys.
func (c *Cache) Len() int { return len(c.entries) }

// Keys returns every key in path order.
func (c *Cache) Keys() []Key {
	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Key) int {
		return ComparePaths(string(a), string(b))
	})
	return keys
}

// ApplyContent replaces the content of an existing key. Keys that are not
// tracked are left alone and false is returned.
func (c *Cache) ApplyContent(key Key, content *Content) bool {
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	e.content = content
	e.dir = false
	c.entries[key] = e
	return true
}

// Insert adds or replaces key with content.
func (c *Cache) Insert(key Key, content *Content) {
	c.entries[key] = entry{content: content}
}

// ApplyRename moves from, and everything below it, to to. Nothing changes if
// from is not tracked. When rebindSelection is set, a selection at or below
// from follows the move.
func (c *Cache) ApplyRename(from, to Key, rebindSelection bool) bool {
	if _, ok := c.entries[from]; !ok {
		return false
	}
	if from == to {
		return true
	}

	moved := make(map[Key]entry)
	for k, e := range c.entries {
		if k.Under(from) {
			moved[k.Rebase(from, to)] = e
			delete(c.entries, k)
		}
	}
	for k, e := range moved {
		c.entries[k] = e
	}

	if rebindSelection && c.selected.Under(from) {
		c.selected = c.selected.Rebase(from, to)
	}
	return true
}

// ApplyDelete removes key and everything below it.
func (c *Cache) ApplyDelete(key Key) bool {
	if _, ok := c.entries[key]; !ok {
		return false
	}
	for k := range c.entries {
		if k.Under(key) {
			delete(c.entries, k)
		}
	}
	return true
}
