// Package provider defines the vendor adapter contract and the HTTP, quota
// and circuit-breaker machinery shared by every vendor package.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"equitymetrics/internal/model"
)

// Endpoint is a kind of vendor request. Each kind has its own cache TTL.
type Endpoint string

const (
	EndpointQuote      Endpoint = "quote"
	EndpointOverview   Endpoint = "overview"
	EndpointFinancials Endpoint = "financials"
)

// Endpoints lists every endpoint kind in fan-out order.
var Endpoints = []Endpoint{EndpointQuote, EndpointOverview, EndpointFinancials}

var (
	ErrUnsupportedEndpoint = errors.New("provider: unsupported endpoint")
	// ErrNoData means the vendor answered but the body held nothing usable.
	ErrNoData = errors.New("provider: no data")
	// ErrPaymentRequired is an HTTP 402: the plan does not cover the request.
	ErrPaymentRequired = errors.New("provider: payment required")
)

// Response is one raw vendor payload with its fetch metadata.
type Response struct {
	Payload   json.RawMessage
	FetchedAt time.Time
	TTL       time.Duration
}

// Parsed is the numeric contribution extracted from one payload.
type Parsed struct {
	AsOf   time.Time
	Values model.Values
}

// Adapter is one external data vendor.
//
//go:generate mockgen -package=providermock -destination=providermock/adapter.go -source=provider.go Adapter
type Adapter interface {
	// Name is the stable vendor key recorded as a snapshot source.
	Name() string
	Supports(ep Endpoint) bool
	// Fetch performs one quota-gated request for symbol.
	Fetch(ctx context.Context, ep Endpoint, symbol string) (*Response, error)
	// Parse extracts metrics from a payload previously returned by Fetch,
	// fresh or from cache. It returns ErrNoData when nothing is usable.
	Parse(ep Endpoint, payload json.RawMessage) (*Parsed, error)
}
