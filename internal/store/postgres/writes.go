package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"equitymetrics/internal/model"
	"equitymetrics/internal/store"
)

// UpsertInstrument replaces the instrument row and its alias set in one
// transaction.
func (s *Store) UpsertInstrument(ctx context.Context, in *model.Instrument) error {
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO instruments (id, symbol, exchange_code, name, country, currency, sector, active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				symbol        = EXCLUDED.symbol,
				exchange_code = EXCLUDED.exchange_code,
				name          = EXCLUDED.name,
				country       = EXCLUDED.country,
				currency      = EXCLUDED.currency,
				sector        = EXCLUDED.sector,
				active        = EXCLUDED.active
		`, in.ID, in.Symbol, in.ExchangeCode, in.Name, in.Country, in.Currency, in.Sector, in.Active, in.CreatedAt); err != nil {
			return fmt.Errorf("upsert instrument: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM instrument_aliases WHERE instrument_id = $1`, in.ID); err != nil {
			return fmt.Errorf("clear aliases: %w", err)
		}
		batch := &pgx.Batch{}
		for _, a := range in.Aliases {
			batch.Queue(`INSERT INTO instrument_aliases (instrument_id, provider, symbol, exchange_code) VALUES ($1, $2, $3, $4)`,
				in.ID, a.Provider, a.Symbol, a.ExchangeCode)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert aliases: %w", err)
		}
		return nil
	})
}

func (s *Store) InsertCachedPayload(ctx context.Context, p *model.CachedPayload) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO provider_cache (instrument_id, provider, endpoint, payload, ttl_seconds, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, p.InstrumentID, p.Provider, p.Endpoint, string(p.Payload), int64(p.TTL/time.Second), p.FetchedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert cached payload: %w", err)
	}
	return nil
}

func (s *Store) PruneCachedPayloads(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM provider_cache WHERE fetched_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune cached payloads: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) InsertSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	args := append([]any{snap.InstrumentID, snap.AsOf, snap.CreatedAt}, store.SnapshotArgs(snap)...)
	q := `INSERT INTO metric_snapshots (instrument_id, as_of, created_at, ` +
		strings.Join(store.SnapshotColumns(), ", ") + `) VALUES (` + placeholders(len(args)) + `) RETURNING id`
	if err := s.pool.QueryRow(ctx, q, args...).Scan(&snap.ID); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (s *Store) CreateJob(ctx context.Context, j *model.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, type, status, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5)
	`, j.ID, j.Type, string(j.Status), j.StartedAt, j.FinishedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *Store) FinishJob(ctx context.Context, id string, status model.Status, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $1, finished_at = $2
		WHERE id = $3 AND status = $4
	`, string(status), at, id, string(model.StatusRunning))
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return affectedOne(tag, "job "+id)
}

func (s *Store) CreateJobRun(ctx context.Context, r *model.JobRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_runs (id, job_id, instrument_id, status, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.JobID, r.InstrumentID, string(r.Status), r.Error, r.StartedAt, r.FinishedAt)
	if err != nil {
		return fmt.Errorf("create job run: %w", err)
	}
	return nil
}

func (s *Store) FinishJobRun(ctx context.Context, id string, status model.Status, errMsg string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE job_runs SET status = $1, error = $2, finished_at = $3
		WHERE id = $4 AND status = $5
	`, string(status), errMsg, at, id, string(model.StatusRunning))
	if err != nil {
		return fmt.Errorf("finish job run: %w", err)
	}
	return affectedOne(tag, "job run "+id)
}

func affectedOne(tag pgconn.CommandTag, what string) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s not running: %w", what, store.ErrNotFound)
	}
	return nil
}

// placeholders renders "$1, $2, ..., $n".
func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(i+1)
	}
	return strings.Join(parts, ", ")
}
