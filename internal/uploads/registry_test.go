package uploads

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func publish(t *testing.T, r *Registry, id string, at time.Time) {
	t.Helper()
	if err := r.Register(id, "/tmp/"+id, at); err != nil {
		t.Fatalf("Register(%s): %v", id, err)
	}
	if err := r.SetEntryPath(id, "index.html"); err != nil {
		t.Fatalf("SetEntryPath(%s): %v", id, err)
	}
}

func TestRegistry_HiddenUntilPublished(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("a", "/tmp/a", t0); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := r.Get("a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get before publish err = %v, want ErrNotFound", err)
	}
	if got := r.ListRecent(10); len(got) != 0 {
		t.Fatalf("ListRecent before publish = %d rows, want 0", len(got))
	}
	if !r.Has("a") {
		t.Fatal("Has should see unpublished rows")
	}

	if err := r.SetEntryPath("a", "sub/page.html"); err != nil {
		t.Fatalf("SetEntryPath: %v", err)
	}
	u, err := r.Get("a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if u.EntryPath != "sub/page.html" || u.State != StatePublished || !u.CreatedAt.Equal(t0) {
		t.Fatalf("Get = %+v", u)
	}
}

func TestRegistry_RegisterTwice(t *testing.T) {
	r := NewRegistry()
	publish(t, r, "a", t0)
	if err := r.Register("a", "/elsewhere", t0); !errors.Is(err, ErrExists) {
		t.Fatalf("err = %v, want ErrExists", err)
	}
}

func TestRegistry_SetEntryPathUnknown(t *testing.T) {
	r := NewRegistry()
	if err := r.SetEntryPath("nope", "index.html"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := r.SetDetails("nope", Details{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRegistry_ListRecentNewestFirst(t *testing.T) {
	r := NewRegistry()
	// registration order deliberately differs from creation order
	publish(t, r, "mid", t0.Add(time.Minute))
	publish(t, r, "old", t0)
	publish(t, r, "new", t0.Add(2*time.Minute))

	got := r.ListRecent(0)
	want := []string{"new", "mid", "old"}
	if len(got) != len(want) {
		t.Fatalf("ListRecent = %d rows, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("ListRecent[%d] = %s, want %s", i, got[i].ID, id)
		}
	}

	if got := r.ListRecent(2); len(got) != 2 || got[0].ID != "new" {
		t.Fatalf("ListRecent(2) = %+v", got)
	}
}

func TestRegistry_ListRecentTieBreak(t *testing.T) {
	r := NewRegistry()
	publish(t, r, "b", t0)
	publish(t, r, "a", t0)
	got := r.ListRecent(0)
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("tie order = %s,%s; want a,b", got[0].ID, got[1].ID)
	}
}

func TestRegistry_EvictIdempotent(t *testing.T) {
	r := NewRegistry()
	publish(t, r, "a", t0)

	if !r.Evict("a") {
		t.Fatal("first Evict should report removal")
	}
	if r.Evict("a") {
		t.Fatal("second Evict should be a no-op")
	}
	if r.Evict("never") {
		t.Fatal("Evict of unknown id should be a no-op")
	}
	if _, err := r.Get("a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after evict err = %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("Len = %d, want 0", r.Len())
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("u%02d", i)
			_ = r.Register(id, "/tmp/"+id, t0.Add(time.Duration(i)*time.Second))
			_ = r.SetEntryPath(id, "index.html")
			_ = r.ListRecent(5)
			if i%2 == 0 {
				r.Evict(id)
				r.Evict(id)
			}
		}(i)
	}
	wg.Wait()

	if r.Len() != 25 {
		t.Fatalf("Len = %d, want 25", r.Len())
	}
}
