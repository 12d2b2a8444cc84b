package uploads

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Registry maps upload ids to uploads. All methods are safe for concurrent
// use; the lock is never held across disk I/O.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Upload
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Upload)}
}

// Register records a freshly located upload. The row stays hidden from Get
// and ListRecent until SetEntryPath publishes it.
func (r *Registry) Register(id, rootDir string, createdAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; ok {
		return fmt.Errorf("%w: %s", ErrExists, id)
	}
	r.byID[id] = &Upload{
		ID:        id,
		RootDir:   rootDir,
		CreatedAt: createdAt,
		State:     StateLocated,
	}
	return nil
}

// SetEntryPath records the entry document and marks the upload Published.
func (r *Registry) SetEntryPath(id, relPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	u.EntryPath = relPath
	u.State = StatePublished
	return nil
}

// SetDetails attaches publish metadata to a registered upload.
func (r *Registry) SetDetails(id string, d Details) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	u.Details = d
	return nil
}

// Get returns a published upload.
func (r *Registry) Get(id string) (Upload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok || u.State != StatePublished {
		return Upload{}, ErrNotFound
	}
	return *u, nil
}

// ListRecent returns up to limit published uploads, newest first by recorded
// creation time. Ties are broken by id so the order is stable. limit <= 0
// returns all of them.
func (r *Registry) ListRecent(limit int) []Upload {
	r.mu.RLock()
	out := make([]Upload, 0, len(r.byID))
	for _, u := range r.byID {
		if u.State == StatePublished {
			out = append(out, *u)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Upload) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Evict removes id and reports whether it was present. Evicting an unknown
// id is a no-op.
func (r *Registry) Evict(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	return true
}

// All returns every registered upload regardless of state.
func (r *Registry) All() []Upload {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Upload, 0, len(r.byID))
	for _, u := range r.byID {
		out = append(out, *u)
	}
	return out
}

// Has reports whether id is registered in any state.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

// Len returns the number of published uploads.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, u := range r.byID {
		if u.State == StatePublished {
			n++
		}
	}
	return n
}
