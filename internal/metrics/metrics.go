// Package metrics exposes enrichment counters via expvar.
package metrics

import "expvar"

var (
	EnrichmentsTotal    = expvar.NewInt("enrichments_total")
	EnrichmentsFresh    = expvar.NewInt("enrichments_fresh")
	EnrichmentsEmpty    = expvar.NewInt("enrichments_empty")
	SnapshotsWritten    = expvar.NewInt("snapshots_written")
	CacheHits           = expvar.NewInt("cache_hits")
	CacheMisses         = expvar.NewInt("cache_misses")
	CacheErrorEnvelopes = expvar.NewInt("cache_error_envelopes")
	ProviderFetches     = expvar.NewInt("provider_fetches")
	ProviderFetchErrors = expvar.NewInt("provider_fetch_errors")
	ProviderParseErrors = expvar.NewInt("provider_parse_errors")
	JobsStarted         = expvar.NewInt("jobs_started")
	JobRunsFailed       = expvar.NewInt("job_runs_failed")
	WarmerDropped       = expvar.NewInt("warmer_dropped")
	CachePruned         = expvar.NewInt("cache_rows_pruned")
)
