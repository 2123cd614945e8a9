// Package twelvedata adapts the Twelve Data quote endpoint.
package twelvedata

import (
	"encoding/json"
	"fmt"

	"equitymetrics/internal/model"
	"equitymetrics/internal/provider"
)

const (
	Name           = "twelvedata"
	DefaultBaseURL = "https://api.twelvedata.com"
)

type Adapter struct {
	*provider.Vendor
}

var _ provider.Adapter = (*Adapter)(nil)

// New returns a quote-only adapter.
func New(apiKey string, ttl provider.TTLs, options ...provider.Option) *Adapter {
	routes := map[provider.Endpoint]provider.Route{
		provider.EndpointQuote: {Path: "/quote", TTL: ttl.Quote},
	}
	return &Adapter{Vendor: provider.NewVendor(Name, DefaultBaseURL, "apikey", apiKey, routes, options...)}
}

type quote struct {
	Status string          `json:"status"`
	Open   provider.Number `json:"open"`
	High   provider.Number `json:"high"`
	Low    provider.Number `json:"low"`
	Close  provider.Number `json:"close"`
	Volume provider.Number `json:"volume"`
}

// Parse maps the latest close to both price and close; Twelve Data has no
// separate last-trade field on this endpoint.
func (a *Adapter) Parse(ep provider.Endpoint, payload json.RawMessage) (*provider.Parsed, error) {
	if ep != provider.EndpointQuote {
		return nil, fmt.Errorf("%s %s: %w", Name, ep, provider.ErrUnsupportedEndpoint)
	}
	var q quote
	if err := json.Unmarshal(payload, &q); err != nil {
		return nil, fmt.Errorf("%s: decoding quote: %w", Name, provider.ErrNoData)
	}
	if q.Status == "error" {
		return nil, provider.ErrNoData
	}
	v := model.Values{}
	v.SetPtr(model.FieldPrice, q.Close.NonZero())
	v.SetPtr(model.FieldOpen, q.Open.NonZero())
	v.SetPtr(model.FieldHigh, q.High.NonZero())
	v.SetPtr(model.FieldLow, q.Low.NonZero())
	v.SetPtr(model.FieldClose, q.Close.NonZero())
	v.SetPtr(model.FieldVolume, q.Volume.NonZero())
	return a.Parsed(v)
}
