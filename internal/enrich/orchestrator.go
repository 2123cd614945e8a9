// Package enrich refreshes one instrument's metrics: it decides whether the
// latest snapshot is still fresh, fans out to every vendor endpoint through
// the response cache, merges the results and appends a snapshot.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"equitymetrics/internal/merge"
	"equitymetrics/internal/metrics"
	"equitymetrics/internal/model"
	"equitymetrics/internal/provider"
	"equitymetrics/internal/provider/cache"
	"equitymetrics/internal/store"
)

// Store is the persistence the orchestrator needs.
type Store interface {
	store.InstrumentStore
	store.SnapshotStore
	store.CacheStore
}

// Options control a single enrichment.
type Options struct {
	// Force skips the freshness check and always fans out.
	Force bool
}

type Orchestrator struct {
	store      Store
	cache      *cache.ResponseCache
	adapters   []provider.Adapter
	priorities map[model.Field][]string
	quoteTTL   time.Duration
	timeout    time.Duration
	now        func() time.Time
	logger     *slog.Logger

	flight singleflight.Group
}

// Option is a configuration option for an Orchestrator.
type Option func(*Orchestrator)

// WithPriorities sets the per-field provider order used by the merge.
func WithPriorities(p map[model.Field][]string) Option {
	return func(o *Orchestrator) { o.priorities = p }
}

// WithQuoteTTL sets how long a snapshot counts as fresh.
func WithQuoteTTL(d time.Duration) Option {
	return func(o *Orchestrator) { o.quoteTTL = d }
}

// WithTimeout bounds one shared refresh. It runs detached from the callers'
// contexts, so a caller going away does not fail the others.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New returns an orchestrator over the given adapters. The default quote TTL
// is 15 minutes.
func New(s Store, adapters []provider.Adapter, options ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    s,
		adapters: adapters,
		quoteTTL: 15 * time.Minute,
		timeout:  2 * time.Minute,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, option := range options {
		option(o)
	}
	o.cache = cache.New(s)
	o.cache.Now = o.now
	return o
}

// Enrich returns the current snapshot for instrumentID, refreshing it when it
// is stale or opts.Force is set. It returns (nil, nil) for an unknown
// instrument and when no vendor contributed anything. Concurrent calls for
// the same instrument and Force value share one refresh, which runs on its
// own context bounded by the orchestrator timeout; a caller whose ctx ends
// gets ctx.Err() while the refresh continues for the rest. Callers must not
// modify the returned snapshot.
func (o *Orchestrator) Enrich(ctx context.Context, instrumentID string, opts Options) (*model.Snapshot, error) {
	key := instrumentID
	if opts.Force {
		key += "|force"
	}
	ch := o.flight.DoChan(key, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
		defer cancel()
		return o.enrich(sctx, instrumentID, opts)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.Snapshot), nil
	}
}

func (o *Orchestrator) enrich(ctx context.Context, instrumentID string, opts Options) (*model.Snapshot, error) {
	metrics.EnrichmentsTotal.Add(1)
	log := o.logger.With("instrument_id", instrumentID)

	inst, err := o.store.GetInstrument(ctx, instrumentID)
	if errors.Is(err, store.ErrNotFound) {
		log.Debug("unknown instrument")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load instrument %s: %w", instrumentID, err)
	}

	if !opts.Force {
		latest, err := o.store.LatestSnapshot(ctx, instrumentID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("latest snapshot %s: %w", instrumentID, err)
		case latest.Age(o.now()) < o.quoteTTL:
			metrics.EnrichmentsFresh.Add(1)
			log.Debug("snapshot fresh", "as_of", latest.AsOf)
			return latest, nil
		}
	}

	inputs := o.collect(ctx, inst)
	if len(inputs) == 0 {
		metrics.EnrichmentsEmpty.Add(1)
		log.Info("no provider data", "providers", len(o.adapters))
		return nil, nil
	}

	res := merge.MergeAt(inputs, o.priorities, o.now().UTC())
	snap := &model.Snapshot{
		InstrumentID: instrumentID,
		AsOf:         res.AsOf,
		Values:       res.Values,
		Sources:      res.Sources,
		CreatedAt:    o.now().UTC(),
	}
	if err := o.store.InsertSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("save snapshot %s: %w", instrumentID, err)
	}
	metrics.SnapshotsWritten.Add(1)
	log.Info("snapshot written", "contributions", len(inputs), "fields", len(snap.Values))
	return snap, nil
}

type task struct {
	adapter  provider.Adapter
	endpoint provider.Endpoint
}

// collect runs every supported (adapter, endpoint) pair concurrently and
// returns the contributions that succeeded. Failures are logged and dropped.
func (o *Orchestrator) collect(ctx context.Context, inst *model.Instrument) []merge.Input {
	var tasks []task
	for _, a := range o.adapters {
		for _, ep := range provider.Endpoints {
			if a.Supports(ep) {
				tasks = append(tasks, task{adapter: a, endpoint: ep})
			}
		}
	}

	results := make([]*merge.Input, len(tasks))
	var g errgroup.Group
	for i, t := range tasks {
		g.Go(func() error {
			results[i] = o.contribution(ctx, inst, t.adapter, t.endpoint)
			return nil
		})
	}
	_ = g.Wait()

	inputs := make([]merge.Input, 0, len(results))
	for _, r := range results {
		if r != nil {
			inputs = append(inputs, *r)
		}
	}
	return inputs
}

// contribution serves one pair from cache or a limiter-gated fetch and parses
// it. A cached payload that parses to nothing is not refetched.
func (o *Orchestrator) contribution(ctx context.Context, inst *model.Instrument, a provider.Adapter, ep provider.Endpoint) *merge.Input {
	name := a.Name()
	log := o.logger.With("instrument_id", inst.ID, "provider", name, "endpoint", string(ep))

	cached, err := o.cache.Get(ctx, inst.ID, name, string(ep))
	if err != nil {
		log.Warn("cache read failed", "error", err)
		return nil
	}

	var payload json.RawMessage
	if cached != nil {
		payload = cached.Payload
	} else {
		symbol := inst.SymbolFor(name)
		res, err := a.Fetch(ctx, ep, symbol)
		if err != nil {
			if errors.Is(err, provider.ErrPaymentRequired) || errors.Is(err, context.Canceled) {
				log.Debug("fetch skipped", "symbol", symbol, "error", err)
			} else {
				log.Warn("fetch failed", "symbol", symbol, "error", err)
			}
			return nil
		}
		if err := o.cache.Put(ctx, inst.ID, name, string(ep), res.Payload, res.TTL); err != nil {
			log.Warn("cache write failed", "error", err)
			return nil
		}
		payload = res.Payload
	}

	parsed, err := a.Parse(ep, payload)
	if err != nil {
		if !errors.Is(err, provider.ErrNoData) {
			metrics.ProviderParseErrors.Add(1)
		}
		log.Debug("no contribution", "cached", cached != nil, "error", err)
		return nil
	}
	return &merge.Input{Provider: name, AsOf: parsed.AsOf, Values: parsed.Values}
}
