// Package sqlite is the default store backend, a single-file database via
// the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"equitymetrics/internal/model"
	"equitymetrics/internal/store"
)

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "data/metrics.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS instruments (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			exchange_code TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT '',
			currency TEXT NOT NULL DEFAULT '',
			sector TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS instrument_aliases (
			instrument_id TEXT NOT NULL REFERENCES instruments(id) ON DELETE CASCADE,
			provider TEXT NOT NULL,
			symbol TEXT NOT NULL,
			exchange_code TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (instrument_id, provider, exchange_code)
		);`,
		`CREATE TABLE IF NOT EXISTS provider_cache (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			instrument_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			payload TEXT NOT NULL,
			ttl_seconds INTEGER NOT NULL,
			fetched_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_provider_cache_key ON provider_cache(instrument_id, provider, endpoint, fetched_at);`,
		`CREATE INDEX IF NOT EXISTS idx_provider_cache_fetched ON provider_cache(fetched_at);`,
		`CREATE TABLE IF NOT EXISTS metric_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			instrument_id TEXT NOT NULL,
			as_of INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			` + store.SnapshotColumnDDL("REAL", "TEXT") + `
		);`,
		`CREATE INDEX IF NOT EXISTS idx_metric_snapshots_latest ON metric_snapshots(instrument_id, as_of);`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS job_runs (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			instrument_id TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			finished_at INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_job_runs_job ON job_runs(job_id, started_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Times are stored as Unix milliseconds.
func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func (s *Store) GetInstrument(ctx context.Context, id string) (*model.Instrument, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, symbol, exchange_code, name, country, currency, sector, active, created_at
		FROM instruments WHERE id = ?`, id)
	var (
		in      model.Instrument
		active  int
		created int64
	)
	if err := row.Scan(&in.ID, &in.Symbol, &in.ExchangeCode, &in.Name, &in.Country, &in.Currency, &in.Sector, &active, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get instrument: %w", err)
	}
	in.Active = active != 0
	in.CreatedAt = fromMillis(created)

	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, symbol, exchange_code FROM instrument_aliases
		WHERE instrument_id = ? ORDER BY provider, exchange_code`, id)
	if err != nil {
		return nil, fmt.Errorf("query aliases: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a model.Alias
		if err := rows.Scan(&a.Provider, &a.Symbol, &a.ExchangeCode); err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		in.Aliases = append(in.Aliases, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows alias: %w", err)
	}
	return &in, nil
}

func (s *Store) UpsertInstrument(ctx context.Context, in *model.Instrument) error {
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert instrument: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	active := 0
	if in.Active {
		active = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO instruments (id, symbol, exchange_code, name, country, currency, sector, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			symbol = excluded.symbol,
			exchange_code = excluded.exchange_code,
			name = excluded.name,
			country = excluded.country,
			currency = excluded.currency,
			sector = excluded.sector,
			active = excluded.active`,
		in.ID, in.Symbol, in.ExchangeCode, in.Name, in.Country, in.Currency, in.Sector, active, toMillis(in.CreatedAt),
	); err != nil {
		return fmt.Errorf("upsert instrument: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM instrument_aliases WHERE instrument_id = ?`, in.ID); err != nil {
		return fmt.Errorf("clear aliases: %w", err)
	}
	for _, a := range in.Aliases {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO instrument_aliases (instrument_id, provider, symbol, exchange_code) VALUES (?, ?, ?, ?)`,
			in.ID, a.Provider, a.Symbol, a.ExchangeCode,
		); err != nil {
			return fmt.Errorf("insert alias: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert instrument: %w", err)
	}
	return nil
}

func (s *Store) ListActiveInstrumentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM instruments WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query active instruments: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan instrument id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows instrument id: %w", err)
	}
	return out, nil
}

func (s *Store) InsertCachedPayload(ctx context.Context, p *model.CachedPayload) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO provider_cache (instrument_id, provider, endpoint, payload, ttl_seconds, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.InstrumentID, p.Provider, p.Endpoint, string(p.Payload), int64(p.TTL/time.Second), toMillis(p.FetchedAt),
	)
	if err != nil {
		return fmt.Errorf("insert cached payload: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		p.ID = id
	}
	return nil
}

func (s *Store) LatestCachedPayload(ctx context.Context, instrumentID, provider, endpoint string) (*model.CachedPayload, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, payload, ttl_seconds, fetched_at FROM provider_cache
		WHERE instrument_id = ? AND provider = ? AND endpoint = ?
		ORDER BY fetched_at DESC, id DESC LIMIT 1`,
		instrumentID, provider, endpoint)
	p := model.CachedPayload{InstrumentID: instrumentID, Provider: provider, Endpoint: endpoint}
	var (
		payload string
		ttl     int64
		fetched int64
	)
	if err := row.Scan(&p.ID, &payload, &ttl, &fetched); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("latest cached payload: %w", err)
	}
	p.Payload = []byte(payload)
	p.TTL = time.Duration(ttl) * time.Second
	p.FetchedAt = fromMillis(fetched)
	return &p, nil
}

func (s *Store) PruneCachedPayloads(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM provider_cache WHERE fetched_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune cached payloads: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	return n, nil
}

func (s *Store) InsertSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	cols := store.SnapshotColumns()
	args := append([]any{snap.InstrumentID, toMillis(snap.AsOf), toMillis(snap.CreatedAt)}, store.SnapshotArgs(snap)...)
	q := `INSERT INTO metric_snapshots (instrument_id, as_of, created_at, ` + strings.Join(cols, ", ") +
		`) VALUES (` + strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ") + `)`
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		snap.ID = id
	}
	return nil
}

func (s *Store) LatestSnapshot(ctx context.Context, instrumentID string) (*model.Snapshot, error) {
	q := `SELECT id, as_of, created_at, ` + strings.Join(store.SnapshotColumns(), ", ") + `
		FROM metric_snapshots WHERE instrument_id = ?
		ORDER BY as_of DESC, id DESC LIMIT 1`
	snap := model.Snapshot{InstrumentID: instrumentID}
	dest := store.NewSnapshotDest()
	var asOf, created int64
	targets := append([]any{&snap.ID, &asOf, &created}, dest.Targets()...)
	if err := s.db.QueryRowContext(ctx, q, instrumentID).Scan(targets...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	snap.AsOf = fromMillis(asOf)
	snap.CreatedAt = fromMillis(created)
	dest.Fill(&snap)
	return &snap, nil
}

func (s *Store) CreateJob(ctx context.Context, j *model.Job) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, type, status, started_at, finished_at) VALUES (?, ?, ?, ?, ?)`,
		j.ID, j.Type, string(j.Status), toMillis(j.StartedAt), nullMillis(j.FinishedAt),
	); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *Store) FinishJob(ctx context.Context, id string, status model.Status, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, finished_at = ? WHERE id = ? AND status = ?`,
		string(status), toMillis(at), id, string(model.StatusRunning))
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return affectedOne(res, "job "+id)
}

func (s *Store) CreateJobRun(ctx context.Context, r *model.JobRun) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO job_runs (id, job_id, instrument_id, status, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.JobID, r.InstrumentID, string(r.Status), r.Error, toMillis(r.StartedAt), nullMillis(r.FinishedAt),
	); err != nil {
		return fmt.Errorf("create job run: %w", err)
	}
	return nil
}

func (s *Store) FinishJobRun(ctx context.Context, id string, status model.Status, errMsg string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_runs SET status = ?, error = ?, finished_at = ? WHERE id = ? AND status = ?`,
		string(status), errMsg, toMillis(at), id, string(model.StatusRunning))
	if err != nil {
		return fmt.Errorf("finish job run: %w", err)
	}
	return affectedOne(res, "job run "+id)
}

func (s *Store) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var (
		j        model.Job
		status   string
		started  int64
		finished sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, type, status, started_at, finished_at FROM jobs WHERE id = ?`, id,
	).Scan(&j.ID, &j.Type, &status, &started, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	j.Status = model.Status(status)
	j.StartedAt = fromMillis(started)
	j.FinishedAt = timePtr(finished)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, instrument_id, status, error, started_at, finished_at FROM job_runs
		WHERE job_id = ? ORDER BY started_at, rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("query job runs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		r := model.JobRun{JobID: id}
		var (
			rs  string
			st  int64
			fin sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.InstrumentID, &rs, &r.Error, &st, &fin); err != nil {
			return nil, fmt.Errorf("scan job run: %w", err)
		}
		r.Status = model.Status(rs)
		r.StartedAt = fromMillis(st)
		r.FinishedAt = timePtr(fin)
		j.Runs = append(j.Runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows job run: %w", err)
	}
	return &j, nil
}

func affectedOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s not running: %w", what, store.ErrNotFound)
	}
	return nil
}
