package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"equitymetrics/internal/batch"
	"equitymetrics/internal/config"
	"equitymetrics/internal/enrich"
	"equitymetrics/internal/httpx"
	"equitymetrics/internal/logging"
	"equitymetrics/internal/metrics"
	"equitymetrics/internal/provider/registry"
	"equitymetrics/internal/store"
	"equitymetrics/internal/store/backend"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("dotenv", "error", err)
		os.Exit(1)
	}
	cfg, err := config.LoadAndValidate(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := backend.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	timeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second
	providers := registry.Build(cfg, httpx.New(timeout), logger)
	defer providers.Close()
	if len(providers.Names()) == 0 {
		logger.Warn("no provider has an API key; enrichments will return no data")
	}

	orch := enrich.New(st, providers.Adapters(),
		enrich.WithPriorities(cfg.Priority()),
		enrich.WithQuoteTTL(cfg.TTLFor("quote")),
		enrich.WithTimeout(timeout),
		enrich.WithLogger(logger),
	)

	a := &api{
		enricher: orch,
		batch:    batch.New(orch, st, logger),
		store:    st,
		stats:    providers.Stats,
		timeout:  timeout,
		logger:   logger,
		base:     ctx,
	}
	if cfg.Warmer.Workers > 0 {
		w := enrich.NewWarmer(orch, cfg.Warmer.Workers, cfg.Warmer.QueueSize, logger)
		w.Start(ctx)
		defer w.Stop()
		a.warmer = w
	}

	var bg sync.WaitGroup
	if cfg.Store.CacheRetentionHours > 0 {
		bg.Add(1)
		go func() {
			defer bg.Done()
			pruneLoop(ctx, st, time.Duration(cfg.Store.CacheRetentionHours)*time.Hour,
				time.Duration(cfg.Store.PruneIntervalMin)*time.Minute, logger)
		}()
	}

	var limiter *rate.Limiter
	if cfg.Server.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Server.RequestsPerSecond), max(cfg.Server.Burst, 1))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withJSONHeaders(withGzip(recoverPanic(logger, throttle(limiter, limitBody(a.routes()))))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      timeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port, "providers", providers.Names(), "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			return err
		}
	}
	stop()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	a.jobs.Wait()
	bg.Wait()
	return nil
}

// pruneLoop deletes cached payloads older than retention every interval
// until ctx is done.
func pruneLoop(ctx context.Context, st store.CacheStore, retention, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := st.PruneCachedPayloads(ctx, now.Add(-retention).UTC())
			if err != nil {
				logger.Warn("cache prune failed", "error", err)
				continue
			}
			metrics.CachePruned.Add(n)
			if n > 0 {
				logger.Info("cache pruned", "rows", n)
			}
		}
	}
}
