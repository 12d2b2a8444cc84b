// internal/uploads/sweeper.go
//
// Sweeper reclaims uploads older than the retention window. Each sweep walks
// the registry first, then the upload root for directories the registry does
// not know about (left behind by a crash mid-publish). A failure on one
// candidate is logged and the sweep moves on.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keithlinneman/playdrop/internal/log"
)

const (
	// DefaultSweepInterval is how often Run sweeps when no interval is set.
	DefaultSweepInterval = 5 * time.Minute

	// DefaultRetention is the retention window when none is set.
	DefaultRetention = time.Hour
)

// Remover deletes any copy of an upload held outside the upload root.
type Remover interface {
	Remove(ctx context.Context, id string) error
}

// SweeperMetrics is implemented by the metrics package to observe sweeps.
type SweeperMetrics interface {
	IncSweeps()
	AddSweepReclaimed(kind string, n int)
	IncSweepError()
	ObserveSweepDuration(seconds float64)
	SetUploadsActive(n int)
}

// SweeperOptions configures a Sweeper.
type SweeperOptions struct {
	Logger    log.Logger
	Registry  *Registry
	Root      string
	Retention time.Duration
	Interval  time.Duration

	// Now defaults to time.Now; tests inject a fake clock.
	Now func() time.Time

	// Mirror, when set, also has expired uploads removed from it.
	Mirror  Remover
	Metrics SweeperMetrics
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Scanned  int
	Expired  int
	Orphans  int
	Errors   []error
	Duration time.Duration
}

// Sweeper deletes expired uploads on a fixed interval.
type Sweeper struct {
	logger    log.Logger
	registry  *Registry
	root      string
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	mirror    Remover
	metrics   SweeperMetrics

	// serializes sweeps from the ticker and from manual triggers
	mu sync.Mutex

	sweeps atomic.Int64
}

func NewSweeper(opts SweeperOptions) *Sweeper {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultSweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sweeper{
		logger:    opts.Logger,
		registry:  opts.Registry,
		root:      opts.Root,
		retention: opts.Retention,
		interval:  opts.Interval,
		now:       opts.Now,
		mirror:    opts.Mirror,
		metrics:   opts.Metrics,
	}
}

// Retention returns the configured retention window.
func (s *Sweeper) Retention() time.Duration { return s.retention }

// Run sweeps every interval until ctx is cancelled.
// Intended to be launched as: go sweeper.Run(ctx)
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info(ctx, "retention sweeper starting",
		"interval", s.interval.String(),
		"retention", s.retention.String(),
		"root", s.root,
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "retention sweeper stopping",
				"reason", ctx.Err(),
				"sweeps", s.sweeps.Load(),
			)
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one sweep cycle and never returns early on a per-candidate
// failure. Concurrent calls are serialized.
func (s *Sweeper) Sweep(ctx context.Context) SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	now := s.now()
	var res SweepResult

	s.sweeps.Add(1)
	if s.metrics != nil {
		s.metrics.IncSweeps()
	}

	for _, u := range s.registry.All() {
		res.Scanned++
		if u.Age(now) <= s.retention {
			continue
		}
		if err := s.expire(ctx, u); err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		res.Expired++
	}

	orphans, errs := s.sweepOrphans(ctx, now)
	res.Orphans = orphans
	res.Errors = append(res.Errors, errs...)
	res.Duration = time.Since(start)

	if s.metrics != nil {
		s.metrics.AddSweepReclaimed("expired", res.Expired)
		s.metrics.AddSweepReclaimed("orphan", res.Orphans)
		s.metrics.ObserveSweepDuration(res.Duration.Seconds())
		s.metrics.SetUploadsActive(s.registry.Len())
	}

	if res.Expired > 0 || res.Orphans > 0 || len(res.Errors) > 0 {
		s.logger.Info(ctx, "retention sweep complete",
			"scanned", res.Scanned,
			"expired", res.Expired,
			"orphans", res.Orphans,
			"errors", len(res.Errors),
			"duration_ms", res.Duration.Milliseconds(),
		)
	}
	return res
}

// expire evicts first so the upload stops being served, then deletes its
// directory. If the delete fails the directory is picked up by the orphan
// pass of a later sweep.
func (s *Sweeper) expire(ctx context.Context, u Upload) error {
	s.registry.Evict(u.ID)

	if err := os.RemoveAll(u.RootDir); err != nil {
		s.fail(ctx, err, "retention sweeper: failed to remove expired upload", "upload_id", u.ID)
		return fmt.Errorf("remove upload %s: %w", u.ID, err)
	}

	if s.mirror != nil {
		if err := s.mirror.Remove(ctx, u.ID); err != nil {
			// the local copy is gone; a stale mirror object is not worth failing the sweep over
			s.logger.Warn(ctx, "retention sweeper: failed to remove mirrored archive",
				"upload_id", u.ID,
				"error", err.Error(),
			)
		}
	}

	s.logger.Debug(ctx, "upload expired",
		"upload_id", u.ID,
		"age", u.Age(s.now()).Truncate(time.Second).String(),
	)
	return nil
}

func (s *Sweeper) sweepOrphans(ctx context.Context, now time.Time) (int, []error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		s.fail(ctx, err, "retention sweeper: failed to list upload root")
		return 0, []error{fmt.Errorf("list upload root: %w", err)}
	}

	var (
		reclaimed int
		errs      []error
	)
	for _, e := range entries {
		if !e.IsDir() || s.registry.Has(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			s.fail(ctx, err, "retention sweeper: failed to stat directory", "dir", e.Name())
			errs = append(errs, fmt.Errorf("stat %s: %w", e.Name(), err))
			continue
		}
		if now.Sub(info.ModTime()) <= s.retention {
			continue
		}

		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			s.fail(ctx, err, "retention sweeper: failed to remove orphan directory", "dir", e.Name())
			errs = append(errs, fmt.Errorf("remove orphan %s: %w", e.Name(), err))
			continue
		}
		reclaimed++
		s.logger.Info(ctx, "removed orphan upload directory", "dir", e.Name())
	}
	return reclaimed, errs
}

func (s *Sweeper) fail(ctx context.Context, err error, msg string, kv ...any) {
	s.logger.Error(ctx, err, msg, kv...)
	if s.metrics != nil {
		s.metrics.IncSweepError()
	}
}
