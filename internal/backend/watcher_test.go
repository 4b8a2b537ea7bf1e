package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/olivoil/livewatch/internal/files"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		op   fsnotify.Op
		want EventKind
	}{
		{fsnotify.Write, EventModifyData},
		{fsnotify.Rename, EventRenameFrom},
		{fsnotify.Create, EventCreate},
		{fsnotify.Remove, EventRemove},
		{fsnotify.Chmod, EventAccess},
		{fsnotify.Create | fsnotify.Write, EventCreate},
		{fsnotify.Write | fsnotify.Rename, EventRenameFrom},
		{fsnotify.Remove | fsnotify.Chmod, EventRemove},
		{0, EventOther},
	}
	for _, c := range cases {
		if got := Classify(fsnotify.Event{Name: "f", Op: c.op}); got != c.want {
			t.Errorf("Classify(%v) = %v, want %v", c.op, got, c.want)
		}
	}
}

func TestRenamePairer(t *testing.T) {
	t0 := time.Unix(1000, 0)
	r := renamePairer{window: 100 * time.Millisecond}

	if _, ok := r.pair("/x", t0); ok {
		t.Fatal("paired with nothing held")
	}
	if _, ok := r.hold("/a", t0); ok {
		t.Fatal("hold returned a previous source")
	}
	if _, ok := r.expire(t0.Add(50 * time.Millisecond)); ok {
		t.Fatal("expired inside the window")
	}
	from, ok := r.pair("/b", t0.Add(50*time.Millisecond))
	if !ok || from != "/a" {
		t.Fatalf("pair = %q, %v", from, ok)
	}
	if _, ok := r.deadline(); ok {
		t.Fatal("deadline set after pairing")
	}

	r.hold("/c", t0)
	if prev, ok := r.hold("/d", t0); !ok || prev != "/c" {
		t.Fatalf("second hold = %q, %v", prev, ok)
	}
	if _, ok := r.pair("/e", t0.Add(time.Second)); ok {
		t.Fatal("paired after the window")
	}
	if from, ok := r.expire(t0.Add(time.Second)); !ok || from != "/d" {
		t.Fatalf("expire = %q, %v", from, ok)
	}
}

type countingSpawner struct {
	n atomic.Int64
}

func (s *countingSpawner) Spawn(task func()) {
	s.n.Add(1)
	go task()
}

func TestWorkerPoolSpawnDoesNotBlock(t *testing.T) {
	pool := NewWorkerPool(1)
	release := make(chan struct{})
	ran := make(chan int, 3)
	for i := range 3 {
		pool.Spawn(func() {
			<-release
			ran <- i
		})
	}
	close(release)
	for range 3 {
		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatal("task did not run")
		}
	}
}

func startPipeline(t *testing.T, dir string, spawner Spawner) (*Pipeline, *WatchRoot) {
	t.Helper()
	p, root, _ := startPipelineWith(t, dir, PipelineConfig{
		UpdateBuffer: 16,
		RenameWindow: 200 * time.Millisecond,
		Ignore:       []string{".git"},
		Spawner:      spawner,
	})
	return p, root
}

func startPipelineWith(t *testing.T, dir string, cfg PipelineConfig) (*Pipeline, *WatchRoot, *LogSink) {
	t.Helper()
	sink := NewLogSink(64, zap.NewNop())
	p, err := NewPipeline(cfg, sink)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	root, err := NewWatchRoot(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = p.Close()
	})
	p.Start(ctx, root)
	return p, root, sink
}

// waitFor reads updates until match accepts one or the timeout passes.
func waitFor(t *testing.T, p *Pipeline, what string, match func(Update) bool) Update {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-p.Updates():
			if !ok {
				t.Fatalf("updates closed waiting for %s", what)
			}
			if match(u) {
				return u
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func TestPipelineEmitsContent(t *testing.T) {
	dir := writeTree(t, filepath.Join(t.TempDir(), "root"), map[string]string{"sub/a.txt": "one"})
	spawner := &countingSpawner{}
	p, _ := startPipeline(t, dir, spawner)

	path := filepath.Join(dir, "sub", "a.txt")
	if err := os.WriteFile(path, []byte("two\n\nthree"), 0o644); err != nil {
		t.Fatal(err)
	}

	u := waitFor(t, p, "content update", func(u Update) bool {
		if u.Kind != UpdateContent || u.Path != path {
			return false
		}
		whole, _ := u.Content.View(files.ViewWhole)
		return slices.Equal(whole, []string{"two\n\nthree"})
	})
	if lines, _ := u.Content.View(files.ViewLines); !slices.Equal(lines, []string{"two\n", "three"}) {
		t.Fatalf("lines view = %q", lines)
	}
	if spawner.n.Load() == 0 {
		t.Fatal("load did not go through the spawner")
	}
}

func TestPipelinePairsRename(t *testing.T) {
	dir := writeTree(t, filepath.Join(t.TempDir(), "root"), map[string]string{"a.txt": "hello"})
	p, _ := startPipeline(t, dir, nil)

	from, to := filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt")
	if err := os.Rename(from, to); err != nil {
		t.Fatal(err)
	}

	waitFor(t, p, "rename update", func(u Update) bool {
		return u.Kind == UpdateRename && u.From == from && u.To == to
	})
	waitFor(t, p, "reload of rename target", func(u Update) bool {
		return u.Kind == UpdateContent && u.Path == to
	})
}

func TestPipelineRenameOutOfTreeIsDelete(t *testing.T) {
	base := t.TempDir()
	dir := writeTree(t, filepath.Join(base, "root"), map[string]string{"a.txt": "hello"})
	p, _ := startPipeline(t, dir, nil)

	from := filepath.Join(dir, "a.txt")
	if err := os.Rename(from, filepath.Join(base, "outside.txt")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, p, "delete after unpaired rename", func(u Update) bool {
		return u.Kind == UpdateDelete && u.Path == from
	})
}

func TestPipelineRemove(t *testing.T) {
	dir := writeTree(t, filepath.Join(t.TempDir(), "root"), map[string]string{"a.txt": "hello"})
	p, _ := startPipeline(t, dir, nil)

	path := filepath.Join(dir, "a.txt")
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, p, "delete update", func(u Update) bool {
		return u.Kind == UpdateDelete && u.Path == path
	})
}

func TestPipelineFollowsRootChange(t *testing.T) {
	base := t.TempDir()
	dirA := writeTree(t, filepath.Join(base, "A"), map[string]string{"a.txt": "a"})
	dirB := writeTree(t, filepath.Join(base, "B"), map[string]string{"b.txt": "b"})
	p, root := startPipeline(t, dirA, nil)

	if err := root.Set(dirB); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if cur, ok := p.Watching(); ok && cur == dirB {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("pipeline did not switch roots")
		}
		time.Sleep(10 * time.Millisecond)
	}

	path := filepath.Join(dirB, "b.txt")
	if err := os.WriteFile(path, []byte("b2"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, p, "update under new root", func(u Update) bool {
		return u.Kind == UpdateContent && u.Path == path
	})
}

func TestPipelineWatchesNewDirectories(t *testing.T) {
	dir := writeTree(t, filepath.Join(t.TempDir(), "root"), nil)
	p, _ := startPipeline(t, dir, nil)

	sub := filepath.Join(dir, "new")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(sub, "f.txt")
	// The directory watch is added when its Create is handled; keep writing
	// until an event from inside it arrives.
	timeout := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case u := <-p.Updates():
			if u.Kind == UpdateContent && u.Path == path {
				return
			}
		case <-tick.C:
			_ = os.WriteFile(path, []byte(time.Now().String()), 0o644)
		case <-timeout:
			t.Fatal("no update from new directory")
		}
	}
}

// collect reads updates for d.
func collect(p *Pipeline, d time.Duration) []Update {
	var out []Update
	timeout := time.After(d)
	for {
		select {
		case u, ok := <-p.Updates():
			if !ok {
				return out
			}
			out = append(out, u)
		case <-timeout:
			return out
		}
	}
}

func TestPipelineSkipsIgnoredNames(t *testing.T) {
	dir := writeTree(t, filepath.Join(t.TempDir(), "root"), map[string]string{"a.txt": "a"})
	p, _, sink := startPipelineWith(t, dir, PipelineConfig{
		UpdateBuffer: 16,
		RenameWindow: 200 * time.Millisecond,
		Ignore:       []string{".git", "*.swp"},
	})

	if err := os.WriteFile(filepath.Join(dir, ".a.txt.swp"), []byte{0x00, 0xff, 0xfe, 0x80}, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.swp"), []byte("plain"), 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("a2"), 0o644); err != nil {
		t.Fatal(err)
	}

	seen := collect(p, time.Second)
	var tracked bool
	for _, u := range seen {
		if filepath.Ext(u.Path) == ".swp" || filepath.Ext(u.To) == ".swp" {
			t.Fatalf("update for ignored file: %s", u)
		}
		tracked = tracked || (u.Kind == UpdateContent && u.Path == path)
	}
	if !tracked {
		t.Fatalf("no update for a.txt in %v", seen)
	}
	for _, l := range drainSink(sink) {
		if l.Kind == LogError {
			t.Fatalf("loglet for ignored file: %s", l.Message)
		}
	}
}

func drainSink(s *LogSink) []Loglet {
	var out []Loglet
	for {
		select {
		case l := <-s.Loglets():
			out = append(out, l)
		default:
			return out
		}
	}
}

func TestPipelineRenamesDirectoryOnce(t *testing.T) {
	dir := writeTree(t, filepath.Join(t.TempDir(), "root"), map[string]string{"d/f.txt": "f"})
	p, _ := startPipeline(t, dir, nil)

	from, to := filepath.Join(dir, "d"), filepath.Join(dir, "e")
	if err := os.Rename(from, to); err != nil {
		t.Fatal(err)
	}
	waitFor(t, p, "directory rename", func(u Update) bool {
		return u.Kind == UpdateRename && u.From == from && u.To == to
	})
	for _, u := range collect(p, 600*time.Millisecond) {
		if u.Kind == UpdateDelete && u.Path == from {
			t.Fatalf("renamed directory also reported deleted")
		}
	}
}

func TestRenamePairerDropsRepeatedSource(t *testing.T) {
	t0 := time.Unix(1000, 0)
	r := renamePairer{window: 100 * time.Millisecond}

	r.hold("/d", t0)
	if from, ok := r.pair("/e", t0); !ok || from != "/d" {
		t.Fatalf("pair = %q, %v", from, ok)
	}
	if r.repeated("/x", t0) {
		t.Fatal("unrelated source treated as repeated")
	}
	if !r.repeated("/d", t0.Add(10*time.Millisecond)) {
		t.Fatal("second rename of paired source not dropped")
	}
	if r.repeated("/d", t0.Add(20*time.Millisecond)) {
		t.Fatal("repeated matched twice")
	}

	r.hold("/a", t0)
	r.pair("/b", t0)
	if r.repeated("/a", t0.Add(time.Second)) {
		t.Fatal("repeated matched after the window")
	}
}

func TestPipelineCloseClosesUpdates(t *testing.T) {
	dir := writeTree(t, filepath.Join(t.TempDir(), "root"), nil)
	p, _ := startPipeline(t, dir, nil)

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case _, ok := <-p.Updates():
		if ok {
			t.Fatal("update after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("updates not closed")
	}
}

func TestPipelineEmitStopsOnClose(t *testing.T) {
	sink := NewLogSink(4, nil)
	p, err := NewPipeline(PipelineConfig{UpdateBuffer: 1}, sink)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.emit(context.Background(), Update{}); err != nil {
		t.Fatalf("first emit: %v", err)
	}
	errc := make(chan error, 1)
	p.tasks.Add(1)
	go func() {
		defer p.tasks.Done()
		errc <- p.emit(context.Background(), Update{})
	}()
	select {
	case err := <-errc:
		t.Fatalf("emit on a full channel returned %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := <-errc; !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("blocked emit = %v, want ErrPipelineClosed", err)
	}
}
