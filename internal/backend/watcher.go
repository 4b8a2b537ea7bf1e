package backend

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/olivoil/livewatch/internal/files"
)

// EventKind classifies a raw fsnotify event.
type EventKind int

const (
	EventModifyData EventKind = iota
	EventRenameFrom
	EventCreate
	EventRemove
	EventAccess
	EventOther
)

func (k EventKind) String() string {
	switch k {
	case EventModifyData:
		return "modify-data"
	case EventRenameFrom:
		return "rename-from"
	case EventCreate:
		return "create"
	case EventRemove:
		return "remove"
	case EventAccess:
		return "access"
	}
	return "other"
}

// Classify maps an fsnotify event to the kind the pipeline acts on. An event
// may carry several ops; the most disruptive one wins.
func Classify(ev fsnotify.Event) EventKind {
	switch {
	case ev.Has(fsnotify.Rename):
		return EventRenameFrom
	case ev.Has(fsnotify.Remove):
		return EventRemove
	case ev.Has(fsnotify.Create):
		return EventCreate
	case ev.Has(fsnotify.Write):
		return EventModifyData
	case ev.Has(fsnotify.Chmod):
		return EventAccess
	}
	return EventOther
}

// Spawner runs a task asynchronously. Spawn must not block the caller.
type Spawner interface {
	Spawn(task func())
}

// WorkerPool is a Spawner that bounds how many tasks run at once. Tasks
// beyond the limit wait in their own goroutine, never in Spawn.
type WorkerPool struct {
	sem chan struct{}
}

// NewWorkerPool creates a pool running at most size tasks at a time.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &WorkerPool{sem: make(chan struct{}, size)}
}

// Spawn implements Spawner.
func (w *WorkerPool) Spawn(task func()) {
	go func() {
		w.sem <- struct{}{}
		defer func() { <-w.sem }()
		task()
	}()
}

// PipelineConfig configures NewPipeline.
type PipelineConfig struct {
	// UpdateBuffer is the capacity of the update channel. Senders block
	// when it is full.
	UpdateBuffer int
	// Workers bounds concurrent loader tasks when Spawner is nil.
	Workers int
	// RenameWindow is how long a rename source waits for its destination.
	RenameWindow time.Duration
	// Ignore holds base-name globs for directories that are not watched.
	Ignore []string
	// Modes are the views built on reload. Empty means all.
	Modes []files.ViewMode
	// Spawner runs loader tasks. Defaults to a WorkerPool.
	Spawner Spawner
}

// Pipeline turns fsnotify events for the current watch root into Updates.
type Pipeline struct {
	fw      *fsnotify.Watcher
	cfg     PipelineConfig
	sink    *LogSink
	log     *zap.Logger
	spawner Spawner
	updates chan Update
	retry   *rate.Limiter
	renames renamePairer

	mu         sync.Mutex
	root       string
	subscribed bool

	wg        sync.WaitGroup // loop goroutines
	tasks     sync.WaitGroup // spawned tasks
	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewPipeline creates the OS watcher and the update channel. Nothing is
// watched until Start.
func NewPipeline(cfg PipelineConfig, sink *LogSink) (*Pipeline, error) {
	if cfg.UpdateBuffer <= 0 {
		cfg.UpdateBuffer = 2
	}
	if cfg.RenameWindow <= 0 {
		cfg.RenameWindow = 100 * time.Millisecond
	}
	if cfg.Spawner == nil {
		cfg.Spawner = NewWorkerPool(cfg.Workers)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &WatchError{Op: "init", Err: err}
	}

	return &Pipeline{
		fw:      fw,
		cfg:     cfg,
		sink:    sink,
		log:     sink.Logger().Named("pipeline"),
		spawner: cfg.Spawner,
		updates: make(chan Update, cfg.UpdateBuffer),
		retry:   rate.NewLimiter(rate.Every(time.Second), 1),
		renames: renamePairer{window: cfg.RenameWindow},
		done:    make(chan struct{}),
	}, nil
}

// Updates is the receive side of the update channel. It is closed by Close
// once every task has finished.
func (p *Pipeline) Updates() <-chan Update { return p.updates }

// Start subscribes to root's current path and begins following events and
// root changes.
func (p *Pipeline) Start(ctx context.Context, root *WatchRoot) {
	ctx, p.cancel = context.WithCancel(ctx)
	if initial, ok := root.Path(); ok {
		if err := p.subscribe(initial); err != nil {
			p.sink.Post(LogError, "%v", err)
		}
	}
	p.wg.Add(2)
	go p.loop(ctx)
	go p.followRoots(ctx, root.Changes())
}

// Close stops watching, waits for in-flight tasks and closes Updates.
func (p *Pipeline) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		if p.cancel != nil {
			p.cancel()
		}
		err = p.fw.Close()
		p.wg.Wait()
		p.tasks.Wait()
		close(p.updates)
	})
	return err
}

// Watching returns the root currently subscribed, if any.
func (p *Pipeline) Watching() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.root, p.subscribed
}

func (p *Pipeline) followRoots(ctx context.Context, roots <-chan string) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case root, ok := <-roots:
			if !ok {
				return
			}
			if err := p.subscribe(root); err != nil {
				p.sink.Post(LogError, "%v", err)
				continue
			}
			p.log.Info("watching", zap.String("root", root))
		}
	}
}

func (p *Pipeline) loop(ctx context.Context) {
	defer p.wg.Done()

	var timer *time.Timer
	var expire <-chan time.Time
	armTimer := func() {
		deadline, ok := p.renames.deadline()
		if !ok {
			expire = nil
			return
		}
		if timer == nil {
			timer = time.NewTimer(time.Until(deadline))
		} else {
			timer.Reset(time.Until(deadline))
		}
		expire = timer.C
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case ev, ok := <-p.fw.Events:
			if !ok {
				return
			}
			p.retrySubscribe()
			p.handle(ctx, ev, time.Now())
			armTimer()
		case err, ok := <-p.fw.Errors:
			if !ok {
				return
			}
			p.sink.Post(LogError, "%v", &WatchError{Op: "event", Err: err})
			p.retrySubscribe()
		case now := <-expire:
			p.expireRename(ctx, now)
			armTimer()
		}
	}
}

// handle runs on the event goroutine and never does file I/O on the event's
// path itself; loads and sends happen in spawned tasks.
func (p *Pipeline) handle(ctx context.Context, ev fsnotify.Event, now time.Time) {
	p.expireRename(ctx, now)

	if ignoredName(filepath.Base(ev.Name), p.cfg.Ignore) {
		return
	}

	kind := Classify(ev)
	p.log.Debug("event",
		zap.String("path", ev.Name),
		zap.Stringer("op", ev.Op),
		zap.Stringer("kind", kind))

	switch kind {
	case EventModifyData:
		p.spawnLoad(ctx, ev.Name)
	case EventRenameFrom:
		if p.renames.repeated(ev.Name, now) {
			// A moved directory reports its own Rename again after the pair.
			return
		}
		if prev, ok := p.renames.hold(ev.Name, now); ok {
			p.spawnEmit(ctx, Update{Kind: UpdateDelete, Path: prev})
		}
	case EventCreate:
		if from, ok := p.renames.pair(ev.Name, now); ok {
			p.spawnRename(ctx, from, ev.Name)
		} else {
			// Covers a save through an ignored temp file; the reconciler
			// drops the load if the path is not tracked.
			p.spawnLoad(ctx, ev.Name)
		}
		p.watchNewDir(ev.Name)
	case EventRemove:
		p.spawnEmit(ctx, Update{Kind: UpdateDelete, Path: ev.Name})
	}
}

// expireRename turns a rename source whose destination never showed up into
// a deletion: the path moved out of the watched tree.
func (p *Pipeline) expireRename(ctx context.Context, now time.Time) {
	if from, ok := p.renames.expire(now); ok {
		p.spawnEmit(ctx, Update{Kind: UpdateDelete, Path: from})
	}
}

func (p *Pipeline) spawn(task func()) {
	p.tasks.Add(1)
	p.spawner.Spawn(func() {
		defer p.tasks.Done()
		task()
	})
}

func (p *Pipeline) spawnEmit(ctx context.Context, u Update) {
	p.spawn(func() { _ = p.emit(ctx, u) })
}

func (p *Pipeline) spawnLoad(ctx context.Context, paths ...string) {
	p.spawn(func() {
		for _, path := range paths {
			p.load(ctx, path)
		}
	})
}

// spawnRename emits the rename, then reloads the destination so a save done
// as write-temp-then-rename refreshes the file's content too.
func (p *Pipeline) spawnRename(ctx context.Context, from, to string) {
	p.spawn(func() {
		if err := p.emit(ctx, Update{Kind: UpdateRename, From: from, To: to}); err != nil {
			return
		}
		p.load(ctx, to)
	})
}

func (p *Pipeline) load(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return
	}
	content, err := files.Load(path, p.cfg.Modes...)
	if err != nil {
		_ = p.sink.Log(ctx, LogError, "%v", err)
		return
	}
	_ = p.emit(ctx, Update{Kind: UpdateContent, Path: path, Content: content})
}

// emit blocks until the reconciler has room, the context ends, or the
// pipeline closes. Updates are never dropped while the pipeline runs.
func (p *Pipeline) emit(ctx context.Context, u Update) error {
	select {
	case p.updates <- u:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPipelineClosed
	}
}

// subscribe replaces the current subscription with root and every directory
// below it.
func (p *Pipeline) subscribe(root string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscribeLocked(root)
}

func (p *Pipeline) subscribeLocked(root string) error {
	for _, path := range p.fw.WatchList() {
		_ = p.fw.Remove(path)
	}
	p.root = root
	p.subscribed = false
	if root == "" {
		return nil
	}
	if err := p.fw.Add(root); err != nil {
		return &WatchError{Op: "subscribe", Path: root, Err: err}
	}
	p.subscribed = true
	p.addTreeLocked(root)
	return nil
}

// retrySubscribe re-attempts a failed subscription, at most once a second.
func (p *Pipeline) retrySubscribe() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subscribed || p.root == "" || !p.retry.Allow() {
		return
	}
	if err := p.subscribeLocked(p.root); err != nil {
		p.sink.Post(LogError, "%v", err)
	}
}

func (p *Pipeline) watchNewDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || ignoredName(filepath.Base(path), p.cfg.Ignore) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.subscribed {
		return
	}
	if err := p.fw.Add(path); err != nil {
		p.sink.Post(LogWarn, "%v", &WatchError{Op: "add", Path: path, Err: err})
		return
	}
	p.addTreeLocked(path)
}

// addTreeLocked adds every directory below dir; fsnotify watches are not
// recursive. Failures on a subdirectory are reported and skipped.
func (p *Pipeline) addTreeLocked(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == dir {
			return nil
		}
		if ignoredName(d.Name(), p.cfg.Ignore) {
			return filepath.SkipDir
		}
		if err := p.fw.Add(path); err != nil {
			p.sink.Post(LogWarn, "%v", &WatchError{Op: "add", Path: path, Err: err})
		}
		return nil
	})
}

func ignoredName(name string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := filepath.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// renamePairer joins the two halves of a rename. fsnotify reports the source
// as Rename and the destination as a following Create, with no shared cookie,
// so a source waits up to window for the next Create.
type renamePairer struct {
	window  time.Duration
	from    string
	expires time.Time
	holding bool

	// last paired source, for dropping a repeated Rename of it
	paired      string
	pairedUntil time.Time
}

// hold records a rename source. A source already waiting is returned, since
// it can no longer be paired.
func (r *renamePairer) hold(from string, now time.Time) (string, bool) {
	prev, had := r.from, r.holding
	r.from, r.expires, r.holding = from, now.Add(r.window), true
	return prev, had
}

// pair matches a Create against the waiting source.
func (r *renamePairer) pair(to string, now time.Time) (string, bool) {
	if !r.holding || now.After(r.expires) || r.from == to {
		return "", false
	}
	from := r.from
	r.from, r.holding = "", false
	r.paired, r.pairedUntil = from, now.Add(r.window)
	return from, true
}

// repeated reports whether from is a second Rename of a source that was just
// paired. It matches once.
func (r *renamePairer) repeated(from string, now time.Time) bool {
	if r.paired == "" || r.paired != from || now.After(r.pairedUntil) {
		return false
	}
	r.paired = ""
	return true
}

// expire releases a source whose window has passed.
func (r *renamePairer) expire(now time.Time) (string, bool) {
	if !r.holding || !now.After(r.expires) {
		return "", false
	}
	from := r.from
	r.from, r.holding = "", false
	return from, true
}

func (r *renamePairer) deadline() (time.Time, bool) {
	if !r.holding {
		return time.Time{}, false
	}
	return r.expires.Add(time.Millisecond), true
}
