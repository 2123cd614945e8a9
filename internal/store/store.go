// Package store declares the persistence contracts of the aggregation engine.
// Backends live in the sqlite and postgres subpackages.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"equitymetrics/internal/model"
)

// ErrNotFound is returned when a requested row does not exist, or when a
// job or run to be finished is no longer running.
var ErrNotFound = errors.New("store: not found")

type InstrumentStore interface {
	// GetInstrument returns the instrument with its aliases.
	GetInstrument(ctx context.Context, id string) (*model.Instrument, error)
	// UpsertInstrument inserts or replaces the instrument and its aliases.
	UpsertInstrument(ctx context.Context, in *model.Instrument) error
	ListActiveInstrumentIDs(ctx context.Context) ([]string, error)
}

type CacheStore interface {
	InsertCachedPayload(ctx context.Context, p *model.CachedPayload) error
	// LatestCachedPayload returns the most recently fetched row for the key.
	LatestCachedPayload(ctx context.Context, instrumentID, provider, endpoint string) (*model.CachedPayload, error)
	// PruneCachedPayloads deletes rows fetched before cutoff and reports how
	// many were removed.
	PruneCachedPayloads(ctx context.Context, cutoff time.Time) (int64, error)
}

type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, s *model.Snapshot) error
	// LatestSnapshot returns the snapshot with the greatest AsOf.
	LatestSnapshot(ctx context.Context, instrumentID string) (*model.Snapshot, error)
}

type JobStore interface {
	CreateJob(ctx context.Context, j *model.Job) error
	FinishJob(ctx context.Context, id string, status model.Status, at time.Time) error
	CreateJobRun(ctx context.Context, r *model.JobRun) error
	FinishJobRun(ctx context.Context, id string, status model.Status, errMsg string, at time.Time) error
	// GetJob returns the job with its runs in start order.
	GetJob(ctx context.Context, id string) (*model.Job, error)
}

// Store is everything a backend provides.
type Store interface {
	InstrumentStore
	CacheStore
	SnapshotStore
	JobStore
	Close() error
}

// SnapshotColumns returns the per-metric value and source column names in
// storage order: price, price_source, open, open_source, ...
func SnapshotColumns() []string {
	out := make([]string, 0, 2*len(model.Fields))
	for _, f := range model.Fields {
		out = append(out, f.Column(), f.Column()+"_source")
	}
	return out
}

// SnapshotColumnDDL renders the per-metric column definitions for a CREATE
// TABLE statement using the backend's numeric and text types.
func SnapshotColumnDDL(numType, textType string) string {
	var b strings.Builder
	for i, f := range model.Fields {
		if i > 0 {
			b.WriteString(",\n\t\t\t")
		}
		b.WriteString(f.Column() + " " + numType + ",\n\t\t\t")
		b.WriteString(f.Column() + "_source " + textType)
	}
	return b.String()
}

// SnapshotArgs flattens s into values matching SnapshotColumns. Absent
// fields become nil for both value and source.
func SnapshotArgs(s *model.Snapshot) []any {
	out := make([]any, 0, 2*len(model.Fields))
	for _, f := range model.Fields {
		v, ok := s.Values.Get(f)
		src := s.Sources[f]
		if !ok || src == "" {
			out = append(out, nil, nil)
			continue
		}
		out = append(out, v, src)
	}
	return out
}

// SnapshotDest holds scan targets for the columns from SnapshotColumns.
type SnapshotDest struct {
	values  []*float64
	sources []*string
}

func NewSnapshotDest() *SnapshotDest {
	d := &SnapshotDest{
		values:  make([]*float64, len(model.Fields)),
		sources: make([]*string, len(model.Fields)),
	}
	return d
}

// Targets returns pointers suitable for rows.Scan in SnapshotColumns order.
func (d *SnapshotDest) Targets() []any {
	out := make([]any, 0, 2*len(model.Fields))
	for i := range model.Fields {
		out = append(out, &d.values[i], &d.sources[i])
	}
	return out
}

// Fill copies scanned values into s, keeping only fields that have both a
// value and a source.
func (d *SnapshotDest) Fill(s *model.Snapshot) {
	s.Values = model.Values{}
	s.Sources = map[model.Field]string{}
	for i, f := range model.Fields {
		if d.values[i] == nil || d.sources[i] == nil || *d.sources[i] == "" {
			continue
		}
		s.Values.Set(f, *d.values[i])
		if _, ok := s.Values[f]; ok {
			s.Sources[f] = *d.sources[i]
		}
	}
}
