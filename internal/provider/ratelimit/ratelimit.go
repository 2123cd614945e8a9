// Package ratelimit gates calls to one upstream vendor with a concurrency cap
// and rolling per-minute and per-day request quotas.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned for tasks still queued when the limiter is closed and
// for tasks submitted afterwards.
var ErrClosed = errors.New("ratelimit: limiter closed")

const (
	minuteWindow = time.Minute
	dayWindow    = 24 * time.Hour

	// minRecheck bounds how often a quota-blocked queue is re-examined.
	minRecheck = time.Second

	defaultMaxConcurrent = 2
)

// Timer is the part of *time.Timer the limiter needs.
type Timer interface {
	Stop() bool
}

// Options configure a Limiter. Zero quotas mean unlimited.
type Options struct {
	RequestsPerMinute int
	RequestsPerDay    int
	// MaxConcurrent is clamped to at least 1; zero selects the default of 2.
	MaxConcurrent int

	// Now and AfterFunc replace the wall clock in tests.
	Now       func() time.Time
	AfterFunc func(d time.Duration, f func()) Timer
}

// Stats is a point-in-time view of limiter state.
type Stats struct {
	Active      int `json:"active"`
	Queued      int `json:"queued"`
	MinuteCount int `json:"minute_count"`
	DayCount    int `json:"day_count"`
}

type window struct {
	size  time.Duration
	limit int
	count int
	start time.Time
}

func (w *window) roll(now time.Time) {
	if now.Sub(w.start) >= w.size {
		w.start = now
		w.count = 0
	}
}

// wait returns how long until the window admits another request.
func (w *window) wait(now time.Time) time.Duration {
	if w.limit <= 0 || w.count < w.limit {
		return 0
	}
	return w.start.Add(w.size).Sub(now)
}

type waiter struct {
	ready chan struct{}
	err   error
}

// Limiter runs tasks in arrival order while keeping at most MaxConcurrent of
// them in flight and never starting more than the configured number per
// rolling minute or day. Tasks run on the caller's goroutine; the limiter
// only decides when each may start.
type Limiter struct {
	maxConcurrent int
	now           func() time.Time
	afterFunc     func(time.Duration, func()) Timer

	mu     sync.Mutex
	queue  []*waiter
	active int
	minute window
	day    window
	timer  Timer
	closed bool
}

func New(opts Options) *Limiter {
	maxC := opts.MaxConcurrent
	if maxC == 0 {
		maxC = defaultMaxConcurrent
	}
	if maxC < 1 {
		maxC = 1
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	after := opts.AfterFunc
	if after == nil {
		after = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	start := now()
	return &Limiter{
		maxConcurrent: maxC,
		now:           now,
		afterFunc:     after,
		minute:        window{size: minuteWindow, limit: opts.RequestsPerMinute, start: start},
		day:           window{size: dayWindow, limit: opts.RequestsPerDay, start: start},
	}
}

// Do waits for a slot and runs task. The task's error is returned unchanged.
// If ctx ends while the task is still queued it is removed and ctx.Err() is
// returned; a task that has started always runs to completion. A nil Limiter
// runs task immediately.
func (l *Limiter) Do(ctx context.Context, task func(context.Context) error) error {
	if l == nil {
		return task(ctx)
	}
	w := &waiter{ready: make(chan struct{})}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.queue = append(l.queue, w)
	l.drainLocked()
	l.mu.Unlock()

	select {
	case <-w.ready:
	case <-ctx.Done():
		l.mu.Lock()
		removed := l.removeLocked(w)
		l.mu.Unlock()
		if removed {
			return ctx.Err()
		}
		// Lost the race: the slot was already granted or the limiter closed.
		<-w.ready
	}
	if w.err != nil {
		return w.err
	}

	defer l.release()
	return task(ctx)
}

// Schedule is Do for tasks that produce a value.
func Schedule[T any](ctx context.Context, l *Limiter, task func(context.Context) (T, error)) (T, error) {
	var out T
	err := l.Do(ctx, func(ctx context.Context) error {
		v, err := task(ctx)
		out = v
		return err
	})
	return out, err
}

// Close fails every queued task with ErrClosed and stops the pending
// re-check timer. Tasks already running are unaffected.
func (l *Limiter) Close() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	for _, w := range l.queue {
		w.err = ErrClosed
		close(w.ready)
	}
	l.queue = nil
}

func (l *Limiter) Stats() Stats {
	if l == nil {
		return Stats{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.minute.roll(now)
	l.day.roll(now)
	return Stats{
		Active:      l.active,
		Queued:      len(l.queue),
		MinuteCount: l.minute.count,
		DayCount:    l.day.count,
	}
}

func (l *Limiter) release() {
	l.mu.Lock()
	l.active--
	if !l.closed {
		l.drainLocked()
	}
	l.mu.Unlock()
}

// drainLocked grants slots from the head of the queue until the concurrency
// cap is reached, the queue is empty, or a quota is exhausted. In the last
// case a single re-check is armed for when the blocking window resets.
func (l *Limiter) drainLocked() {
	for l.active < l.maxConcurrent && len(l.queue) > 0 {
		now := l.now()
		l.minute.roll(now)
		l.day.roll(now)
		if wait := max(l.minute.wait(now), l.day.wait(now)); wait > 0 {
			l.armLocked(wait)
			return
		}

		w := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.minute.count++
		l.day.count++
		l.active++
		close(w.ready)
	}
}

func (l *Limiter) armLocked(wait time.Duration) {
	if l.timer != nil {
		return
	}
	if wait < minRecheck {
		wait = minRecheck
	}
	l.timer = l.afterFunc(wait, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.timer = nil
		if !l.closed {
			l.drainLocked()
		}
	})
}

func (l *Limiter) removeLocked(w *waiter) bool {
	for i, q := range l.queue {
		if q == w {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return true
		}
	}
	return false
}
