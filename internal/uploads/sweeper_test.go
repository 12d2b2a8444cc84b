package uploads

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeRemover struct {
	mu      sync.Mutex
	removed []string
	err     error
}

func (f *fakeRemover) Remove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return f.err
}

type fakeSweeperMetrics struct {
	sweeps    int
	reclaimed map[string]int
	errors    int
	active    int
}

func (m *fakeSweeperMetrics) IncSweeps() { m.sweeps++ }
func (m *fakeSweeperMetrics) AddSweepReclaimed(kind string, n int) {
	if m.reclaimed == nil {
		m.reclaimed = map[string]int{}
	}
	m.reclaimed[kind] += n
}
func (m *fakeSweeperMetrics) IncSweepError()              { m.errors++ }
func (m *fakeSweeperMetrics) ObserveSweepDuration(float64) {}
func (m *fakeSweeperMetrics) SetUploadsActive(n int)       { m.active = n }

// makeUpload creates an on-disk upload directory and registers it.
func makeUpload(t *testing.T, r *Registry, root, id string, at time.Time) string {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(id, dir, at); err != nil {
		t.Fatal(err)
	}
	if err := r.SetEntryPath(id, "index.html"); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestSweeper_ExpiresOldUploads(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry()
	clock := &fakeClock{now: t0}
	mirror := &fakeRemover{}
	metrics := &fakeSweeperMetrics{}

	oldDir := makeUpload(t, reg, root, "old", t0)
	newDir := makeUpload(t, reg, root, "new", t0.Add(50*time.Minute))

	s := NewSweeper(SweeperOptions{
		Registry:  reg,
		Root:      root,
		Retention: time.Hour,
		Now:       clock.Now,
		Mirror:    mirror,
		Metrics:   metrics,
	})

	clock.Advance(61 * time.Minute)
	res := s.Sweep(context.Background())

	if res.Expired != 1 || len(res.Errors) != 0 {
		t.Fatalf("result = %+v, want 1 expired", res)
	}
	if _, err := reg.Get("old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old still registered: %v", err)
	}
	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Fatalf("old dir still exists: %v", err)
	}
	if _, err := reg.Get("new"); err != nil {
		t.Fatalf("new should survive: %v", err)
	}
	if _, err := os.Stat(newDir); err != nil {
		t.Fatalf("new dir removed: %v", err)
	}
	if len(mirror.removed) != 1 || mirror.removed[0] != "old" {
		t.Fatalf("mirror removed = %v", mirror.removed)
	}
	if metrics.sweeps != 1 || metrics.reclaimed["expired"] != 1 || metrics.active != 1 {
		t.Fatalf("metrics = %+v", metrics)
	}
}

func TestSweeper_ExactRetentionIsKept(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry()
	clock := &fakeClock{now: t0.Add(time.Hour)}
	makeUpload(t, reg, root, "edge", t0)

	s := NewSweeper(SweeperOptions{Registry: reg, Root: root, Retention: time.Hour, Now: clock.Now})
	if res := s.Sweep(context.Background()); res.Expired != 0 {
		t.Fatalf("Expired = %d, want 0 at exactly the retention window", res.Expired)
	}
}

func TestSweeper_DirectoryAlreadyGone(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry()
	dir := makeUpload(t, reg, root, "gone", t0)
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}

	clock := &fakeClock{now: t0.Add(2 * time.Hour)}
	s := NewSweeper(SweeperOptions{Registry: reg, Root: root, Retention: time.Hour, Now: clock.Now})
	res := s.Sweep(context.Background())
	if res.Expired != 1 || len(res.Errors) != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestSweeper_MirrorFailureDoesNotFailSweep(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry()
	makeUpload(t, reg, root, "a", t0)
	makeUpload(t, reg, root, "b", t0)

	clock := &fakeClock{now: t0.Add(2 * time.Hour)}
	s := NewSweeper(SweeperOptions{
		Registry: reg, Root: root, Retention: time.Hour, Now: clock.Now,
		Mirror: &fakeRemover{err: errors.New("s3 down")},
	})
	res := s.Sweep(context.Background())
	if res.Expired != 2 || len(res.Errors) != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestSweeper_Orphans(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry()

	orphan := filepath.Join(root, "crashed")
	fresh := filepath.Join(root, "in-flight")
	for _, d := range []string{orphan, fresh} {
		if err := os.MkdirAll(filepath.Join(d, "partial"), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Chtimes(orphan, t0, t0); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(fresh, t0.Add(90*time.Minute), t0.Add(90*time.Minute)); err != nil {
		t.Fatal(err)
	}
	// stray files in the root are left alone
	if err := os.WriteFile(filepath.Join(root, "note.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	metrics := &fakeSweeperMetrics{}
	clock := &fakeClock{now: t0.Add(2 * time.Hour)}
	s := NewSweeper(SweeperOptions{Registry: reg, Root: root, Retention: time.Hour, Now: clock.Now, Metrics: metrics})
	res := s.Sweep(context.Background())

	if res.Orphans != 1 {
		t.Fatalf("Orphans = %d, want 1", res.Orphans)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Fatalf("orphan still present: %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh directory removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "note.txt")); err != nil {
		t.Fatalf("stray file removed: %v", err)
	}
	if metrics.reclaimed["orphan"] != 1 {
		t.Fatalf("orphan metric = %d", metrics.reclaimed["orphan"])
	}
}

func TestSweeper_RegisteredDirsAreNotOrphans(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry()
	dir := makeUpload(t, reg, root, "young", t0.Add(90*time.Minute))
	// directory mtime is old but the registry's creation time is what counts
	if err := os.Chtimes(dir, t0, t0); err != nil {
		t.Fatal(err)
	}

	clock := &fakeClock{now: t0.Add(2 * time.Hour)}
	s := NewSweeper(SweeperOptions{Registry: reg, Root: root, Retention: time.Hour, Now: clock.Now})
	res := s.Sweep(context.Background())
	if res.Expired != 0 || res.Orphans != 0 {
		t.Fatalf("result = %+v, want nothing reclaimed", res)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("dir removed: %v", err)
	}
}

func TestSweeper_MissingRoot(t *testing.T) {
	reg := NewRegistry()
	s := NewSweeper(SweeperOptions{Registry: reg, Root: filepath.Join(t.TempDir(), "nope")})
	if res := s.Sweep(context.Background()); len(res.Errors) != 0 {
		t.Fatalf("errors = %v", res.Errors)
	}
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	s := NewSweeper(SweeperOptions{Registry: NewRegistry(), Root: t.TempDir(), Interval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestSweeper_Defaults(t *testing.T) {
	s := NewSweeper(SweeperOptions{Registry: NewRegistry()})
	if s.Retention() != DefaultRetention || s.interval != DefaultSweepInterval {
		t.Fatalf("defaults = %v / %v", s.Retention(), s.interval)
	}
}

// run with -race: the ticker loop and manual sweeps share the sweep counter
func TestSweeper_RunAlongsideManualSweeps(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry()
	clock := &fakeClock{now: t0}
	s := NewSweeper(SweeperOptions{Registry: reg, Root: root, Retention: time.Hour, Interval: time.Millisecond, Now: clock.Now})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				s.Sweep(ctx)
			}
		}()
	}
	wg.Wait()
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if n := s.sweeps.Load(); n < 40 {
		t.Fatalf("sweeps = %d, want at least the 40 manual ones", n)
	}
}
