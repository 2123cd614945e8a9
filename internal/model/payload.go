package model

import (
	"encoding/json"
	"time"
)

// CachedPayload is one raw provider response. Rows are append-only; the most
// recent row for (InstrumentID, Provider, Endpoint) is the current one.
type CachedPayload struct {
	ID           int64           `json:"id,omitempty"`
	InstrumentID string          `json:"instrument_id"`
	Provider     string          `json:"provider"`
	Endpoint     string          `json:"endpoint"`
	Payload      json.RawMessage `json:"payload"`
	FetchedAt    time.Time       `json:"fetched_at"`
	TTL          time.Duration   `json:"ttl"`
}

// ExpiresAt is the instant after which the payload is stale.
func (p *CachedPayload) ExpiresAt() time.Time {
	return p.FetchedAt.Add(p.TTL)
}
