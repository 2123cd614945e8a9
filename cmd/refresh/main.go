// Command refresh runs one forced batch refresh and prints the job summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"equitymetrics/internal/batch"
	"equitymetrics/internal/config"
	"equitymetrics/internal/enrich"
	"equitymetrics/internal/httpx"
	"equitymetrics/internal/logging"
	"equitymetrics/internal/provider/registry"
	"equitymetrics/internal/store/backend"
)

func main() {
	var (
		configPath string
		idsCSV     string
		jobType    string
		seedPath   string
	)
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.yaml (optional)")
	flag.StringVar(&idsCSV, "ids", "", "comma-separated instrument ids (default: all active)")
	flag.StringVar(&jobType, "type", batch.DefaultJobType, "job type label")
	flag.StringVar(&seedPath, "seed", "", "YAML file of instruments to upsert before refreshing")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	// Logs go to stderr so stdout carries only the job JSON.
	logger := logging.NewWithWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if err := run(cfg, logger, splitCSV(idsCSV), jobType, seedPath); err != nil {
		logger.Error("refresh failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger, ids []string, jobType, seedPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := backend.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	if seedPath != "" {
		n, err := seedInstruments(ctx, st, seedPath, time.Now().UTC())
		if err != nil {
			return err
		}
		logger.Info("instruments seeded", "count", n)
	}

	if len(ids) == 0 {
		if ids, err = st.ListActiveInstrumentIDs(ctx); err != nil {
			return fmt.Errorf("list instruments: %w", err)
		}
	}

	providers := registry.Build(cfg, httpx.New(time.Duration(cfg.Server.RequestTimeoutSec)*time.Second), logger)
	defer providers.Close()
	if len(providers.Names()) == 0 {
		return fmt.Errorf("no providers configured; set an api_key in config.yaml or the *_API_KEY env vars")
	}

	orch := enrich.New(st, providers.Adapters(),
		enrich.WithPriorities(cfg.Priority()),
		enrich.WithQuoteTTL(cfg.TTLFor("quote")),
		enrich.WithLogger(logger),
	)
	jobID, err := batch.New(orch, st, logger).RefreshBatch(ctx, ids, jobType)
	if err != nil {
		return err
	}

	job, err := st.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	b, _ := json.MarshalIndent(job, "", "  ")
	fmt.Println(string(b))
	return nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
