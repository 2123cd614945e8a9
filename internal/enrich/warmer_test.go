package enrich

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"equitymetrics/internal/model"
)

type fakeEnricher struct {
	mu      sync.Mutex
	calls   []string
	block   chan struct{}
	started chan string
	fail    map[string]error
}

func (f *fakeEnricher) Enrich(ctx context.Context, id string, opts Options) (*model.Snapshot, error) {
	if f.started != nil {
		f.started <- id
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()
	if opts.Force {
		return nil, errors.New("warmer must not force")
	}
	return nil, f.fail[id]
}

func (f *fakeEnricher) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestWarmer_ProcessesAndReportsErrors(t *testing.T) {
	t.Parallel()

	// Arrange
	boom := errors.New("boom")
	e := &fakeEnricher{fail: map[string]error{"b": boom}}
	w := NewWarmer(e, 2, 8, nil)
	var (
		mu     sync.Mutex
		failed = map[string]error{}
	)
	w.ErrorSink = func(id string, err error) {
		mu.Lock()
		failed[id] = err
		mu.Unlock()
	}
	w.Start(t.Context())
	defer w.Stop()

	// Act
	require.True(t, w.Enqueue("a"))
	require.True(t, w.Enqueue("b"))
	require.True(t, w.Enqueue("c"))

	// Assert
	require.Eventually(t, func() bool { return len(e.called()) == 3 }, 2*time.Second, 5*time.Millisecond)
	require.ElementsMatch(t, []string{"a", "b", "c"}, e.called())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return errors.Is(failed["b"], boom)
	}, time.Second, 5*time.Millisecond)
}

func TestWarmer_DedupAndFullQueue(t *testing.T) {
	t.Parallel()

	// Arrange: one worker held inside the first enrichment
	e := &fakeEnricher{block: make(chan struct{}), started: make(chan string, 4)}
	w := NewWarmer(e, 1, 2, nil)
	w.Start(t.Context())
	defer w.Stop()
	require.True(t, w.Enqueue("first"))
	require.Equal(t, "first", <-e.started)

	// Act
	okX := w.Enqueue("x")
	okDup := w.Enqueue("x")
	okY := w.Enqueue("y")
	okZ := w.Enqueue("z")

	// Assert
	require.True(t, okX)
	require.True(t, okDup)
	require.True(t, okY)
	require.False(t, okZ, "queue of 2 is full")
	require.Equal(t, 2, w.Pending())

	close(e.block)
	require.Eventually(t, func() bool { return len(e.called()) == 3 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"first", "x", "y"}, e.called())
}

func TestWarmer_StopRejectsAndCancels(t *testing.T) {
	t.Parallel()
	e := &fakeEnricher{block: make(chan struct{}), started: make(chan string, 1)}
	w := NewWarmer(e, 1, 1, nil)
	w.Start(context.Background())
	require.True(t, w.Enqueue("slow"))
	<-e.started

	w.Stop()

	require.False(t, w.Enqueue("late"))
	require.Empty(t, e.called())
}

func TestWarmer_StopWithoutStart(t *testing.T) {
	t.Parallel()
	w := NewWarmer(&fakeEnricher{}, 0, 0, nil)

	w.Stop()

	require.False(t, w.Enqueue("a"))
}
