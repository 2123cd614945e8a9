package enrich

import (
	"context"
	"log/slog"
	"sync"

	"equitymetrics/internal/metrics"
	"equitymetrics/internal/model"
)

// Enricher is satisfied by *Orchestrator.
type Enricher interface {
	Enrich(ctx context.Context, instrumentID string, opts Options) (*model.Snapshot, error)
}

// Warmer refreshes instruments in the background through a bounded queue.
// An id already waiting in the queue is not queued twice.
type Warmer struct {
	enricher Enricher
	workers  int
	queue    chan string
	logger   *slog.Logger

	// ErrorSink receives every failed enrichment. Set before Start.
	ErrorSink func(instrumentID string, err error)

	mu      sync.Mutex
	pending map[string]struct{}
	stopped bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWarmer returns a stopped warmer with the given worker count and queue
// capacity, each at least 1.
func NewWarmer(e Enricher, workers, queueSize int, logger *slog.Logger) *Warmer {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Warmer{
		enricher: e,
		workers:  workers,
		queue:    make(chan string, queueSize),
		logger:   logger,
		pending:  make(map[string]struct{}),
	}
}

// Start launches the workers. They run until Stop or until ctx is done.
func (w *Warmer) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.run(ctx)
		}()
	}
	w.logger.Info("warmer started", "workers", w.workers, "queue_size", cap(w.queue))
}

// Enqueue schedules a non-forced refresh. It reports false when the queue is
// full or the warmer is stopped; an id that is already pending counts as
// accepted.
func (w *Warmer) Enqueue(instrumentID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	if _, ok := w.pending[instrumentID]; ok {
		return true
	}
	select {
	case w.queue <- instrumentID:
		w.pending[instrumentID] = struct{}{}
		return true
	default:
		metrics.WarmerDropped.Add(1)
		return false
	}
}

// Pending is the number of queued ids not yet picked up by a worker.
func (w *Warmer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Stop rejects new work, cancels in-flight enrichments and waits for the
// workers to exit. Queued ids are dropped.
func (w *Warmer) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Warmer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-w.queue:
			w.mu.Lock()
			delete(w.pending, id)
			w.mu.Unlock()
			if ctx.Err() != nil {
				return
			}
			if _, err := w.enricher.Enrich(ctx, id, Options{}); err != nil {
				w.logger.Warn("warm enrichment failed", "instrument_id", id, "error", err)
				if w.ErrorSink != nil {
					w.ErrorSink(id, err)
				}
			}
		}
	}
}
