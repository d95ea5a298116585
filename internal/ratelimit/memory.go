package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a process-local fixed-window limiter. Suitable for
// single-instance deployments; multi-instance setups want RedisLimiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewMemoryLimiter starts a limiter whose expired windows are swept
// every sweepInterval. A zero interval disables the sweeper.
func NewMemoryLimiter(sweepInterval time.Duration) *MemoryLimiter {
	l := &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go l.sweep(sweepInterval)
	}
	return l
}

func (l *MemoryLimiter) CheckAndConsume(_ context.Context, principal string, action Action, limit Limit) (Result, error) {
	key := principal + ":" + string(action)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(limit.Window)}
		l.windows[key] = w
	}

	if w.count >= limit.Max {
		return Result{Allowed: false, Remaining: 0, ResetAt: w.resetAt}, nil
	}

	w.count++
	return Result{
		Allowed:   true,
		Remaining: limit.Max - w.count,
		ResetAt:   w.resetAt,
	}, nil
}

// Stop terminates the background sweeper.
func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *MemoryLimiter) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			now := l.now()
			l.mu.Lock()
			for key, w := range l.windows {
				if !now.Before(w.resetAt) {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
