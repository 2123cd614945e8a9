package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"equitymetrics/internal/model"
	"equitymetrics/internal/store"
)

func (s *Store) GetInstrument(ctx context.Context, id string) (*model.Instrument, error) {
	var in model.Instrument
	err := s.pool.QueryRow(ctx, `
		SELECT id, symbol, exchange_code, name, country, currency, sector, active, created_at
		FROM instruments WHERE id = $1
	`, id).Scan(&in.ID, &in.Symbol, &in.ExchangeCode, &in.Name, &in.Country, &in.Currency, &in.Sector, &in.Active, &in.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get instrument: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT provider, symbol, exchange_code FROM instrument_aliases
		WHERE instrument_id = $1
		ORDER BY provider, exchange_code
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query aliases: %w", err)
	}
	aliases, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Alias, error) {
		var a model.Alias
		err := row.Scan(&a.Provider, &a.Symbol, &a.ExchangeCode)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan aliases: %w", err)
	}
	if len(aliases) > 0 {
		in.Aliases = aliases
	}
	return &in, nil
}

func (s *Store) ListActiveInstrumentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM instruments WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query active instruments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan instrument id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) LatestCachedPayload(ctx context.Context, instrumentID, provider, endpoint string) (*model.CachedPayload, error) {
	p := model.CachedPayload{InstrumentID: instrumentID, Provider: provider, Endpoint: endpoint}
	var (
		payload string
		ttl     int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, payload, ttl_seconds, fetched_at FROM provider_cache
		WHERE instrument_id = $1 AND provider = $2 AND endpoint = $3
		ORDER BY fetched_at DESC, id DESC
		LIMIT 1
	`, instrumentID, provider, endpoint).Scan(&p.ID, &payload, &ttl, &p.FetchedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("latest cached payload: %w", err)
	}
	p.Payload = []byte(payload)
	p.TTL = time.Duration(ttl) * time.Second
	return &p, nil
}

func (s *Store) LatestSnapshot(ctx context.Context, instrumentID string) (*model.Snapshot, error) {
	snap := model.Snapshot{InstrumentID: instrumentID}
	dest := store.NewSnapshotDest()
	targets := append([]any{&snap.ID, &snap.AsOf, &snap.CreatedAt}, dest.Targets()...)
	err := s.pool.QueryRow(ctx, `
		SELECT id, as_of, created_at, `+strings.Join(store.SnapshotColumns(), ", ")+`
		FROM metric_snapshots WHERE instrument_id = $1
		ORDER BY as_of DESC, id DESC
		LIMIT 1
	`, instrumentID).Scan(targets...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	dest.Fill(&snap)
	return &snap, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var (
		j      model.Job
		status string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, type, status, started_at, finished_at FROM jobs WHERE id = $1
	`, id).Scan(&j.ID, &j.Type, &status, &j.StartedAt, &j.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	j.Status = model.Status(status)

	rows, err := s.pool.Query(ctx, `
		SELECT id, instrument_id, status, error, started_at, finished_at FROM job_runs
		WHERE job_id = $1
		ORDER BY started_at, id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query job runs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		r := model.JobRun{JobID: id}
		var rs string
		if err := rows.Scan(&r.ID, &r.InstrumentID, &rs, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan job run: %w", err)
		}
		r.Status = model.Status(rs)
		j.Runs = append(j.Runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows job run: %w", err)
	}
	return &j, nil
}
