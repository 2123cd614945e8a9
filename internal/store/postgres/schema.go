// Package postgres implements the store contracts on Postgres through a
// pgx connection pool.
package postgres

import "equitymetrics/internal/store"

var schemaDDL = `
CREATE TABLE IF NOT EXISTS instruments (
    id            TEXT PRIMARY KEY,
    symbol        TEXT NOT NULL,
    exchange_code TEXT NOT NULL DEFAULT '',
    name          TEXT NOT NULL DEFAULT '',
    country       TEXT NOT NULL DEFAULT '',
    currency      TEXT NOT NULL DEFAULT '',
    sector        TEXT NOT NULL DEFAULT '',
    active        BOOLEAN NOT NULL DEFAULT TRUE,
    created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS instrument_aliases (
    instrument_id TEXT NOT NULL REFERENCES instruments(id) ON DELETE CASCADE,
    provider      TEXT NOT NULL,
    symbol        TEXT NOT NULL,
    exchange_code TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (instrument_id, provider, exchange_code)
);

CREATE TABLE IF NOT EXISTS provider_cache (
    id            BIGSERIAL PRIMARY KEY,
    instrument_id TEXT NOT NULL,
    provider      TEXT NOT NULL,
    endpoint      TEXT NOT NULL,
    payload       TEXT NOT NULL,
    ttl_seconds   INTEGER NOT NULL,
    fetched_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_provider_cache_key ON provider_cache (instrument_id, provider, endpoint, fetched_at DESC);
CREATE INDEX IF NOT EXISTS idx_provider_cache_fetched ON provider_cache (fetched_at);

CREATE TABLE IF NOT EXISTS metric_snapshots (
    id            BIGSERIAL PRIMARY KEY,
    instrument_id TEXT NOT NULL,
    as_of         TIMESTAMPTZ NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    ` + store.SnapshotColumnDDL("DOUBLE PRECISION", "TEXT") + `
);
CREATE INDEX IF NOT EXISTS idx_metric_snapshots_latest ON metric_snapshots (instrument_id, as_of DESC);

CREATE TABLE IF NOT EXISTS jobs (
    id          TEXT PRIMARY KEY,
    type        TEXT NOT NULL,
    status      TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS job_runs (
    id            TEXT PRIMARY KEY,
    job_id        TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
    instrument_id TEXT NOT NULL,
    status        TEXT NOT NULL,
    error         TEXT NOT NULL DEFAULT '',
    started_at    TIMESTAMPTZ NOT NULL,
    finished_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_job_runs_job ON job_runs (job_id, started_at);
`
