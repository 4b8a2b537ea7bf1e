package files

import (
	"errors"
	"os"
	"slices"
)

// Item is one row of a SelectionList.
type Item struct {
	Key   Key
	IsDir bool
}

// SelectionList is the ordered set of known keys shown in the browser.
type SelectionList []Item

// Selection builds the list from the cache's current key set.
func (c *Cache) Selection() SelectionList {
	keys := c.Keys()
	list := make(SelectionList, len(keys))
	for i, k := range keys {
		list[i] = Item{Key: k, IsDir: c.entries[k].dir}
	}
	return list
}

// Index returns the position of key, or -1.
func (l SelectionList) Index(key Key) int {
	i, found := slices.BinarySearchFunc(l, key, func(it Item, k Key) int {
		return ComparePaths(string(it.Key), string(k))
	})
	if !found {
		return -1
	}
	return i
}

// Keys returns the keys in order.
func (l SelectionList) Keys() []Key {
	keys := make([]Key, len(l))
	for i, it := range l {
		keys[i] = it.Key
	}
	return keys
}

// FirstFile returns the first non-directory key.
func (l SelectionList) FirstFile() (Key, bool) {
	for _, it := range l {
		if !it.IsDir {
			return it.Key, true
		}
	}
	return "", false
}

// WatchList ties a Cache to the SelectionList derived from it. The list is
// rebuilt wholesale whenever keys move.
type WatchList struct {
	cache *Cache
	list  SelectionList
}

// WatchListOptions configures NewWatchList.
type WatchListOptions struct {
	Cache  CacheOptions
	Ignore []string
}

// NewWatchList snapshots root, seeds the cache and selects the first file.
// Per-file load failures come back as warnings; only an unusable root is an
// error.
func NewWatchList(root string, opts WatchListOptions) (*WatchList, []error, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, &PathError{Op: ErrRootUnresolvable, Root: root, Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, nil, &PathError{Op: ErrRootUnresolvable, Root: root, Path: root, Err: errors.New("not a directory")}
	}
	snap := Snapshot(root, opts.Ignore...)
	cache, warnings := NewCache(root, "", snap, opts.Cache)
	wl := &WatchList{cache: cache}
	wl.Refresh()
	if first, ok := wl.list.FirstFile(); ok {
		cache.Select(first)
	}
	return wl, warnings, nil
}

// Cache returns the underlying cache.
func (w *WatchList) Cache() *Cache { return w.cache }

// Selection returns the current list.
func (w *WatchList) Selection() SelectionList { return w.list }

// Refresh rebuilds the list from the cache's key set.
func (w *WatchList) Refresh() {
	w.list = w.cache.Selection()
}
