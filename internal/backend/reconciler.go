package backend

import (
	"go.uber.org/zap"

	"github.com/olivoil/livewatch/internal/files"
)

// Policy decides the cases where an update does not match the cache.
type Policy struct {
	// AutoTrack inserts content for keys the cache does not know yet.
	// Otherwise such updates are logged and dropped.
	AutoTrack bool
	// RebindSelection makes the selection follow a rename of the selected
	// file or one of its parents.
	RebindSelection bool
}

// Reconciler applies pipeline updates to the WatchList. It is not safe for
// concurrent use; the UI goroutine owns it along with the list.
type Reconciler struct {
	list    *files.WatchList
	root    *WatchRoot
	updates <-chan Update
	sink    *LogSink
	log     *zap.Logger
	policy  Policy

	// set while a list for deferRoot is rebuilt
	deferring bool
	deferRoot string
	pending   []Update
}

// maxPending bounds the updates held while a list is rebuilt; older ones are
// dropped first.
const maxPending = 4096

// NewReconciler creates a reconciler. list may be nil until a root is opened.
func NewReconciler(list *files.WatchList, root *WatchRoot, updates <-chan Update, sink *LogSink, policy Policy) *Reconciler {
	return &Reconciler{
		list:    list,
		root:    root,
		updates: updates,
		sink:    sink,
		log:     sink.Logger().Named("reconciler"),
		policy:  policy,
	}
}

// WatchList returns the list updates are applied to.
func (r *Reconciler) WatchList() *files.WatchList { return r.list }

// SetWatchList swaps in a newly built list and replays whatever Defer held
// back, so edits made during the rebuild are not lost with the old list.
func (r *Reconciler) SetWatchList(list *files.WatchList) int {
	r.list = list
	return r.Flush()
}

// Defer holds updates back from the current list until the next SetWatchList
// or Flush. Use it while a list for the same root is being rebuilt.
func (r *Reconciler) Defer() {
	root, ok := r.root.Path()
	if !ok {
		return
	}
	r.deferring, r.deferRoot = true, root
}

// Flush stops deferring and applies the held updates to the current list.
// They are discarded when the list is for a different root than the one
// Defer saw.
func (r *Reconciler) Flush() int {
	if !r.deferring {
		return 0
	}
	pending := r.pending
	r.deferring, r.pending = false, nil
	if r.list == nil || r.list.Cache().Root() != r.deferRoot {
		r.log.Debug("root changed, discarded held updates", zap.Int("count", len(pending)))
		return 0
	}
	applied := 0
	for _, u := range pending {
		if r.apply(u) {
			applied++
		}
	}
	return applied
}

// Drain applies every update already queued and returns how many changed the
// cache. It never waits for more.
func (r *Reconciler) Drain() (int, error) {
	applied := 0
	for {
		select {
		case u, ok := <-r.updates:
			if !ok {
				return applied, ErrChannelClosed
			}
			if r.deferring {
				r.hold(u)
				continue
			}
			if r.apply(u) {
				applied++
			}
		default:
			return applied, nil
		}
	}
}

func (r *Reconciler) apply(u Update) bool {
	root, ok := r.root.Path()
	if !ok || r.list == nil {
		r.sink.Post(LogWarn, "no watch root, dropped %s", u)
		return false
	}
	cache := r.list.Cache()
	if cache.Root() != root {
		// The list for a new root is still being built.
		r.log.Debug("root changing, dropped", zap.Stringer("update", u))
		return false
	}

	switch u.Kind {
	case UpdateContent:
		key, ok := r.normalize(root, u.Path, u)
		if !ok {
			return false
		}
		if cache.ApplyContent(key, u.Content) {
			return true
		}
		if !r.policy.AutoTrack {
			r.log.Info("untracked, dropped", zap.Stringer("key", key))
			return false
		}
		cache.Insert(key, u.Content)
		r.list.Refresh()
		return true

	case UpdateRename:
		from, ok := r.normalize(root, u.From, u)
		if !ok {
			return false
		}
		to, ok := r.normalize(root, u.To, u)
		if !ok {
			return false
		}
		if !cache.ApplyRename(from, to, r.policy.RebindSelection) {
			r.log.Info("rename of untracked key", zap.Stringer("from", from), zap.Stringer("to", to))
			return false
		}
		r.list.Refresh()
		r.sink.Post(LogInfo, "renamed %s -> %s", from, to)
		return true

	case UpdateDelete:
		key, ok := r.normalize(root, u.Path, u)
		if !ok {
			return false
		}
		if !cache.ApplyDelete(key) {
			return false
		}
		r.list.Refresh()
		r.sink.Post(LogInfo, "removed %s", key)
		return true
	}

	r.sink.Post(LogWarn, "unknown update %s", u)
	return false
}

func (r *Reconciler) hold(u Update) {
	if len(r.pending) == maxPending {
		r.log.Warn("held updates full, dropped oldest", zap.Stringer("update", r.pending[0]))
		r.pending = r.pending[1:]
	}
	r.pending = append(r.pending, u)
}

func (r *Reconciler) normalize(root, path string, u Update) (files.Key, bool) {
	key, err := files.NormalizeUnder(root, path)
	if err != nil {
		r.sink.Post(LogWarn, "dropped %s: %v", u, err)
		return "", false
	}
	return key, true
}
