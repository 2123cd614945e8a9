package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTimer struct {
	clock   *fakeClock
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// fakeClock is a manually advanced clock whose timers fire only on Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Armed() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped {
			out = append(out, t.d)
		}
	}
	return out
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	due := c.timers
	c.timers = nil
	c.mu.Unlock()
	for _, t := range due {
		t.clock.mu.Lock()
		fire := !t.stopped
		t.stopped = true
		t.clock.mu.Unlock()
		if fire {
			t.f()
		}
	}
}

func newTestLimiter(c *fakeClock, opts Options) *Limiter {
	opts.Now = c.Now
	opts.AfterFunc = c.AfterFunc
	return New(opts)
}

func TestDo_ReturnsTaskResult(t *testing.T) {
	t.Parallel()
	l := New(Options{})
	defer l.Close()
	boom := errors.New("boom")

	got, err := Schedule(t.Context(), l, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	require.Equal(t, 42, got)

	err = l.Do(t.Context(), func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestDo_NilLimiterRunsDirectly(t *testing.T) {
	t.Parallel()
	var l *Limiter

	got, err := Schedule(t.Context(), l, func(context.Context) (string, error) { return "ok", nil })

	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.Equal(t, Stats{}, l.Stats())
}

func TestDo_ConcurrencyBound(t *testing.T) {
	t.Parallel()

	// Arrange
	l := New(Options{MaxConcurrent: 2})
	defer l.Close()
	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup

	// Act
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do(context.Background(), func(context.Context) error {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				<-release
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	require.Eventually(t, func() bool {
		s := l.Stats()
		return s.Active == 2 && s.Queued == 4
	}, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	// Assert
	require.Equal(t, int32(2), peak.Load())
	require.Equal(t, 6, l.Stats().MinuteCount)
}

func TestNew_ClampsConcurrency(t *testing.T) {
	t.Parallel()
	require.Equal(t, 2, New(Options{}).maxConcurrent)
	require.Equal(t, 1, New(Options{MaxConcurrent: -3}).maxConcurrent)
	require.Equal(t, 5, New(Options{MaxConcurrent: 5}).maxConcurrent)
}

func TestDo_MinuteQuotaDefersUntilWindowReset(t *testing.T) {
	t.Parallel()

	// Arrange
	clock := newFakeClock()
	l := newTestLimiter(clock, Options{RequestsPerMinute: 3, MaxConcurrent: 5})
	defer l.Close()
	var done atomic.Int32
	var wg sync.WaitGroup

	// Act
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Do(context.Background(), func(context.Context) error {
				done.Add(1)
				return nil
			}))
		}()
	}

	// Assert: three run, two wait for the minute window.
	require.Eventually(t, func() bool {
		return done.Load() == 3 && l.Stats().Queued == 2
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []time.Duration{time.Minute}, clock.Armed())

	clock.Advance(time.Minute)
	wg.Wait()
	require.Equal(t, int32(5), done.Load())
	s := l.Stats()
	require.Equal(t, 2, s.MinuteCount)
	require.Equal(t, 5, s.DayCount)
	require.Empty(t, clock.Armed())
}

func TestDo_DayQuotaWaitsForDayWindow(t *testing.T) {
	t.Parallel()

	// Arrange
	clock := newFakeClock()
	l := newTestLimiter(clock, Options{RequestsPerDay: 2})
	defer l.Close()
	for i := 0; i < 2; i++ {
		require.NoError(t, l.Do(t.Context(), func(context.Context) error { return nil }))
	}
	clock.Advance(time.Hour)

	// Act
	errc := make(chan error, 1)
	go func() {
		errc <- l.Do(context.Background(), func(context.Context) error { return nil })
	}()

	// Assert
	require.Eventually(t, func() bool { return l.Stats().Queued == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []time.Duration{23 * time.Hour}, clock.Armed())
	clock.Advance(23 * time.Hour)
	require.NoError(t, <-errc)
	require.Equal(t, 1, l.Stats().DayCount)
}

func TestDo_RecheckIsAtLeastOneSecond(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := newTestLimiter(clock, Options{RequestsPerMinute: 1})
	defer l.Close()
	require.NoError(t, l.Do(t.Context(), func(context.Context) error { return nil }))
	clock.Advance(59*time.Second + 800*time.Millisecond)

	errc := make(chan error, 1)
	go func() { errc <- l.Do(context.Background(), func(context.Context) error { return nil }) }()

	require.Eventually(t, func() bool { return len(clock.Armed()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []time.Duration{time.Second}, clock.Armed())
	clock.Advance(time.Second)
	require.NoError(t, <-errc)
}

func TestDo_CancelWhileQueued(t *testing.T) {
	t.Parallel()

	// Arrange
	clock := newFakeClock()
	l := newTestLimiter(clock, Options{RequestsPerMinute: 1})
	defer l.Close()
	require.NoError(t, l.Do(t.Context(), func(context.Context) error { return nil }))
	ctx, cancel := context.WithCancel(t.Context())
	var ran atomic.Bool

	// Act
	errc := make(chan error, 1)
	go func() {
		errc <- l.Do(ctx, func(context.Context) error { ran.Store(true); return nil })
	}()
	require.Eventually(t, func() bool { return l.Stats().Queued == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	// Assert
	require.ErrorIs(t, <-errc, context.Canceled)
	require.Equal(t, 0, l.Stats().Queued)
	clock.Advance(time.Minute)
	require.False(t, ran.Load())
}

func TestClose_FailsQueuedAndStopsTimer(t *testing.T) {
	t.Parallel()

	// Arrange
	clock := newFakeClock()
	l := newTestLimiter(clock, Options{RequestsPerMinute: 1})
	require.NoError(t, l.Do(t.Context(), func(context.Context) error { return nil }))
	errc := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errc <- l.Do(context.Background(), func(context.Context) error { return nil }) }()
	}
	require.Eventually(t, func() bool { return l.Stats().Queued == 2 }, time.Second, 5*time.Millisecond)

	// Act
	l.Close()

	// Assert
	require.ErrorIs(t, <-errc, ErrClosed)
	require.ErrorIs(t, <-errc, ErrClosed)
	require.Empty(t, clock.Armed())
	require.ErrorIs(t, l.Do(t.Context(), func(context.Context) error { return nil }), ErrClosed)
	l.Close()
}

func TestDo_PanicReleasesSlot(t *testing.T) {
	t.Parallel()
	l := New(Options{MaxConcurrent: 1})
	defer l.Close()

	require.Panics(t, func() {
		_ = l.Do(t.Context(), func(context.Context) error { panic("vendor exploded") })
	})

	require.Equal(t, 0, l.Stats().Active)
	require.NoError(t, l.Do(t.Context(), func(context.Context) error { return nil }))
}
