// Package cache serves raw provider payloads from the persistent store while
// they are within their TTL.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"equitymetrics/internal/metrics"
	"equitymetrics/internal/model"
	"equitymetrics/internal/store"
)

// ResponseCache is an append-only TTL cache keyed by
// (instrument, provider, endpoint). Only the newest row for a key is
// consulted; older rows are history.
type ResponseCache struct {
	Store store.CacheStore
	// Now defaults to time.Now.
	Now func() time.Time
}

func New(s store.CacheStore) *ResponseCache {
	return &ResponseCache{Store: s, Now: time.Now}
}

func (c *ResponseCache) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Get returns the current payload for the key, or nil on a miss. Expired
// rows, undecodable JSON and vendor error envelopes are all misses.
func (c *ResponseCache) Get(ctx context.Context, instrumentID, provider, endpoint string) (*model.CachedPayload, error) {
	p, err := c.Store.LatestCachedPayload(ctx, instrumentID, provider, endpoint)
	if errors.Is(err, store.ErrNotFound) {
		metrics.CacheMisses.Add(1)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s/%s: %w", provider, endpoint, err)
	}
	if c.now().After(p.ExpiresAt()) || !json.Valid(p.Payload) {
		metrics.CacheMisses.Add(1)
		return nil, nil
	}
	if IsErrorEnvelope(p.Payload) {
		metrics.CacheErrorEnvelopes.Add(1)
		metrics.CacheMisses.Add(1)
		return nil, nil
	}
	metrics.CacheHits.Add(1)
	return p, nil
}

// Put appends a payload fetched now. An empty payload is stored as JSON null.
func (c *ResponseCache) Put(ctx context.Context, instrumentID, provider, endpoint string, payload json.RawMessage, ttl time.Duration) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = json.RawMessage("null")
	}
	p := &model.CachedPayload{
		InstrumentID: instrumentID,
		Provider:     provider,
		Endpoint:     endpoint,
		Payload:      payload,
		FetchedAt:    c.now().UTC(),
		TTL:          ttl,
	}
	if err := c.Store.InsertCachedPayload(ctx, p); err != nil {
		return fmt.Errorf("cache put %s/%s: %w", provider, endpoint, err)
	}
	return nil
}

// envelopeKeys are top-level members that only appear when a vendor reports
// a throttle, quota or request error instead of data.
var envelopeKeys = []string{"Information", "Note", "Error Message"}

// IsErrorEnvelope reports whether payload is a vendor error response rather
// than data: an object with an Alpha Vantage notice key, a non-empty "error"
// string, or "status": "error".
func IsErrorEnvelope(payload []byte) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return false
	}
	for _, k := range envelopeKeys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	if raw, ok := obj["error"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			return true
		}
	}
	if raw, ok := obj["status"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil && s == "error" {
			return true
		}
	}
	return false
}
