package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/playdrop/internal/httpmw"
)

const (
	defaultPerSecond   = 1
	defaultBurst       = 5
	defaultTTL         = 10 * time.Minute
	defaultMaxVisitors = 100000
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	// reported is cleared when the bucket is evicted, so a client that
	// returns after going idle is logged again
	reported bool
}

// IPLimiter holds one token bucket per client address.
type IPLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	perSecond   rate.Limit
	burst       int
	ttl         time.Duration
	maxVisitors int // 0 means unbounded
	full        bool

	// OnFirstDenied runs once per bucket lifetime, on its first rejection.
	OnFirstDenied func(ip string)
	// OnDenied runs on every rejection, including capacity rejections.
	OnDenied func(ip string)
	// OnCapacity runs when the map fills, and again only after it has drained.
	OnCapacity func()
}

type Option func(*IPLimiter)

// WithRate allows burst uploads at once, refilled at perSecond.
func WithRate(perSecond float64, burst int) Option {
	return func(l *IPLimiter) {
		l.perSecond = rate.Limit(perSecond)
		l.burst = burst
	}
}

func WithTTL(d time.Duration) Option {
	return func(l *IPLimiter) { l.ttl = d }
}

func WithMaxVisitors(n int) Option {
	return func(l *IPLimiter) { l.maxVisitors = n }
}

func WithOnFirstDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) { l.OnFirstDenied = fn }
}

func WithOnDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) { l.OnDenied = fn }
}

func WithOnCapacity(fn func()) Option {
	return func(l *IPLimiter) { l.OnCapacity = fn }
}

// New builds a limiter and starts evicting idle buckets until ctx is done.
func New(ctx context.Context, opts ...Option) *IPLimiter {
	l := &IPLimiter{
		buckets:     make(map[string]*bucket),
		perSecond:   defaultPerSecond,
		burst:       defaultBurst,
		ttl:         defaultTTL,
		maxVisitors: defaultMaxVisitors,
	}
	for _, o := range opts {
		o(l)
	}
	go l.evictLoop(ctx)
	return l
}

// allow takes a token for ip. Hooks run after the lock is released.
func (l *IPLimiter) allow(ip string) bool {
	var firstDenial, capacity bool

	l.mu.Lock()
	b, ok := l.buckets[ip]
	switch {
	case !ok && l.maxVisitors > 0 && len(l.buckets) >= l.maxVisitors:
		capacity = !l.full
		l.full = true
		l.mu.Unlock()
		if capacity && l.OnCapacity != nil {
			l.OnCapacity()
		}
		l.denied(ip, false)
		return false
	case !ok:
		b = &bucket{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	allowed := b.limiter.Allow()
	if !allowed && !b.reported {
		b.reported = true
		firstDenial = true
	}
	l.mu.Unlock()

	if !allowed {
		l.denied(ip, firstDenial)
	}
	return allowed
}

func (l *IPLimiter) denied(ip string, first bool) {
	if first && l.OnFirstDenied != nil {
		l.OnFirstDenied(ip)
	}
	if l.OnDenied != nil {
		l.OnDenied(ip)
	}
}

func (l *IPLimiter) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.evict(now)
		}
	}
}

func (l *IPLimiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.ttl {
			delete(l.buckets, ip)
		}
	}
	if l.maxVisitors == 0 || len(l.buckets) < l.maxVisitors {
		l.full = false
	}
}

func (l *IPLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// retryAfter is the whole seconds until one token refills, at least 1.
func (l *IPLimiter) retryAfter() string {
	if l.perSecond <= 0 || l.perSecond == rate.Inf {
		return "60"
	}
	return strconv.Itoa(int(math.Max(1, math.Ceil(1/float64(l.perSecond)))))
}

// Middleware answers 429 with the upload API's error body when the caller's
// bucket is empty. The address comes from httpmw.ClientIP.
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.allow(httpmw.ClientIPFromContext(r.Context())) {
			next.ServeHTTP(w, r)
			return
		}
		h := w.Header()
		h.Set("Content-Type", "application/json; charset=utf-8")
		h.Set("Cache-Control", "no-store")
		h.Set("Retry-After", l.retryAfter())
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"too many uploads, slow down","code":"rate_limited"}` + "\n"))
	})
}
