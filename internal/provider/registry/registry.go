// Package registry builds the configured vendor adapters, each with its own
// limiter and circuit breaker.
package registry

import (
	"log/slog"
	"time"

	"equitymetrics/internal/config"
	"equitymetrics/internal/provider"
	"equitymetrics/internal/provider/alphavantage"
	"equitymetrics/internal/provider/finnhub"
	"equitymetrics/internal/provider/fmp"
	"equitymetrics/internal/provider/ratelimit"
	"equitymetrics/internal/provider/twelvedata"
)

type vendorAdapter interface {
	provider.Adapter
	Limiter() *ratelimit.Limiter
	Close()
}

type constructor func(apiKey string, ttl provider.TTLs, options ...provider.Option) vendorAdapter

// constructors is also the adapter order: fmp, alphavantage, finnhub,
// twelvedata.
var constructors = []struct {
	name string
	new  constructor
}{
	{config.FMP, func(k string, t provider.TTLs, o ...provider.Option) vendorAdapter { return fmp.New(k, t, o...) }},
	{config.AlphaVantage, func(k string, t provider.TTLs, o ...provider.Option) vendorAdapter { return alphavantage.New(k, t, o...) }},
	{config.Finnhub, func(k string, t provider.TTLs, o ...provider.Option) vendorAdapter { return finnhub.New(k, t, o...) }},
	{config.TwelveData, func(k string, t provider.TTLs, o ...provider.Option) vendorAdapter { return twelvedata.New(k, t, o...) }},
}

// Set is the adapter list for one process. Close it on shutdown.
type Set struct {
	adapters []vendorAdapter
}

// Build creates an adapter for every vendor with an API key. Vendors without a
// key are skipped silently.
func Build(cfg config.Config, client provider.HTTPClient, logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := provider.TTLs{
		Quote:      cfg.TTLFor(string(provider.EndpointQuote)),
		Overview:   cfg.TTLFor(string(provider.EndpointOverview)),
		Financials: cfg.TTLFor(string(provider.EndpointFinancials)),
	}
	s := &Set{}
	for _, c := range constructors {
		vc, _ := cfg.Providers.ByName(c.name)
		if !vc.Enabled() {
			continue
		}
		limiter := ratelimit.New(ratelimit.Options{
			RequestsPerMinute: vc.RequestsPerMinute,
			RequestsPerDay:    vc.RequestsPerDay,
			MaxConcurrent:     vc.MaxConcurrent,
		})
		opts := []provider.Option{
			provider.WithLimiter(limiter),
			provider.WithBreaker(vc.BreakerFailures, time.Duration(vc.BreakerCooldownSec)*time.Second),
			provider.WithLogger(logger),
			provider.WithBaseURL(vc.BaseURL),
		}
		if client != nil {
			opts = append(opts, provider.WithHTTPClient(client))
		}
		s.adapters = append(s.adapters, c.new(vc.APIKey, ttl, opts...))
		logger.Debug("provider enabled", "provider", c.name,
			"rpm", vc.RequestsPerMinute, "rpd", vc.RequestsPerDay, "max_concurrent", vc.MaxConcurrent)
	}
	return s
}

// Adapters returns the enabled adapters in build order.
func (s *Set) Adapters() []provider.Adapter {
	out := make([]provider.Adapter, len(s.adapters))
	for i, a := range s.adapters {
		out[i] = a
	}
	return out
}

func (s *Set) Names() []string {
	out := make([]string, len(s.adapters))
	for i, a := range s.adapters {
		out[i] = a.Name()
	}
	return out
}

// Stats reports each adapter's limiter state keyed by provider name.
func (s *Set) Stats() map[string]ratelimit.Stats {
	out := make(map[string]ratelimit.Stats, len(s.adapters))
	for _, a := range s.adapters {
		out[a.Name()] = a.Limiter().Stats()
	}
	return out
}

// Close fails queued requests on every limiter.
func (s *Set) Close() {
	for _, a := range s.adapters {
		a.Close()
	}
}
