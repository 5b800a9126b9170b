package ratelimit

import (
	"sync"
	"time"

	"payment-webhook-service/internal/config"
	"payment-webhook-service/internal/ttlstore"
)

const (
	defaultLimit         = 100
	defaultWindowSeconds = 60
)

type window struct {
	mu       sync.Mutex
	count    int
	resetsAt time.Time
}

// Limiter is a fixed-window request limiter per source key, backed by an
// expiring store so idle sources are evicted.
type Limiter struct {
	store  *ttlstore.Store
	mu     sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewLimiter(cfg config.RateLimit, store *ttlstore.Store) *Limiter {
	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	windowSeconds := cfg.WindowSeconds
	if windowSeconds <= 0 {
		windowSeconds = defaultWindowSeconds
	}

	return &Limiter{
		store:  store,
		limit:  limit,
		window: time.Duration(windowSeconds) * time.Second,
		now:    time.Now,
	}
}

// Allow reports whether the key may proceed. When denied, retryAfter is the
// whole seconds until the window resets, never below one.
func (l *Limiter) Allow(key string) (bool, int) {
	w := l.currentWindow(key)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	if now.After(w.resetsAt) {
		w.count = 0
		w.resetsAt = now.Add(l.window)
	}

	if w.count >= l.limit {
		retryAfter := int(w.resetsAt.Sub(now).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		return false, retryAfter
	}

	w.count++
	return true, 0
}

func (l *Limiter) currentWindow(key string) *window {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.store.Get(key); ok {
		return v.(*window)
	}

	w := &window{resetsAt: l.now().Add(l.window)}
	l.store.Set(key, w, 2*l.window)
	return w
}
