package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"equitymetrics/internal/metrics"
	"equitymetrics/internal/model"
	"equitymetrics/internal/provider/ratelimit"
)

// maxBody caps how much of a vendor response is read.
const maxBody = 4 << 20

// Route describes how one endpoint kind maps onto a vendor URL.
type Route struct {
	// Path is appended to the base URL.
	Path string
	// Query holds fixed parameters such as function=OVERVIEW.
	Query url.Values
	// TTL is how long the payload may be served from cache.
	TTL time.Duration
}

// TTLs holds the cache lifetime of each endpoint kind.
type TTLs struct {
	Quote      time.Duration
	Overview   time.Duration
	Financials time.Duration
}

// For returns the TTL for ep.
func (t TTLs) For(ep Endpoint) time.Duration {
	switch ep {
	case EndpointQuote:
		return t.Quote
	case EndpointOverview:
		return t.Overview
	case EndpointFinancials:
		return t.Financials
	}
	return 0
}

// StatusError is a non-2xx vendor response.
type StatusError struct {
	Vendor string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status code %d: %s", e.Vendor, e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrPaymentRequired && e.Code == http.StatusPaymentRequired
}

// Vendor is the request side of an adapter: routing, credentials, quota and
// circuit breaking. Vendor packages embed it and add Parse.
type Vendor struct {
	name       string
	baseURL    string
	keyParam   string
	query      url.Values
	header     http.Header
	routes     map[Endpoint]Route
	httpClient HTTPClient
	limiter    *ratelimit.Limiter
	breaker    *gobreaker.CircuitBreaker
	now        func() time.Time
	logger     *slog.Logger

	breakerFailures uint32
	breakerCooldown time.Duration
}

// Option is a configuration option for a Vendor.
type Option func(*Vendor)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(v *Vendor) {
		if baseURL != "" {
			v.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(c HTTPClient) Option {
	return func(v *Vendor) {
		if c != nil {
			v.httpClient = c
		}
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(v *Vendor) {
		for key, values := range header {
			for _, value := range values {
				v.header.Add(key, value)
			}
		}
	}
}

// WithLimiter gates every request through l.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(v *Vendor) { v.limiter = l }
}

// WithBreaker opens the circuit after failures consecutive failed requests
// and probes again after cooldown. Zero failures disables the breaker.
func WithBreaker(failures int, cooldown time.Duration) Option {
	return func(v *Vendor) {
		if failures < 0 {
			failures = 0
		}
		v.breakerFailures = uint32(failures)
		v.breakerCooldown = cooldown
	}
}

// WithClock replaces time.Now for FetchedAt and AsOf stamps.
func WithClock(now func() time.Time) Option {
	return func(v *Vendor) {
		if now != nil {
			v.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(v *Vendor) {
		if l != nil {
			v.logger = l
		}
	}
}

// NewVendor builds the request machinery for one vendor. keyParam names the
// query parameter carrying apiKey.
func NewVendor(name, baseURL, keyParam, apiKey string, routes map[Endpoint]Route, options ...Option) *Vendor {
	v := &Vendor{
		name:            name,
		baseURL:         strings.TrimRight(baseURL, "/"),
		keyParam:        keyParam,
		query:           url.Values{},
		header:          http.Header{},
		routes:          routes,
		httpClient:      http.DefaultClient,
		now:             time.Now,
		logger:          slog.Default(),
		breakerFailures: 5,
		breakerCooldown: time.Minute,
	}
	if apiKey != "" {
		v.query.Set(keyParam, apiKey)
	}
	for _, option := range options {
		option(v)
	}
	v.logger = v.logger.With("provider", name)
	if v.breakerFailures > 0 {
		v.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     v.breakerCooldown,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= v.breakerFailures
			},
			IsSuccessful: countsAsSuccess,
			OnStateChange: func(name string, from, to gobreaker.State) {
				v.logger.Warn("circuit breaker state change", "from", from.String(), "to", to.String())
			},
		})
	}
	return v
}

// countsAsSuccess keeps caller-side outcomes from tripping the breaker: a
// cancelled request, a closed limiter or an unpaid endpoint says nothing
// about vendor health.
func countsAsSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ratelimit.ErrClosed) ||
		errors.Is(err, ErrPaymentRequired) ||
		errors.Is(err, ErrNoData)
}

func (v *Vendor) Name() string { return v.name }

func (v *Vendor) Supports(ep Endpoint) bool {
	_, ok := v.routes[ep]
	return ok
}

// Now is the vendor's clock.
func (v *Vendor) Now() time.Time { return v.now() }

func (v *Vendor) Logger() *slog.Logger { return v.logger }

// Limiter exposes the vendor's quota gate for stats.
func (v *Vendor) Limiter() *ratelimit.Limiter { return v.limiter }

// Close fails queued requests and releases the limiter timer.
func (v *Vendor) Close() { v.limiter.Close() }

// Fetch performs one request for symbol through the circuit breaker and the
// vendor's limiter. An open circuit fails without consuming quota.
func (v *Vendor) Fetch(ctx context.Context, ep Endpoint, symbol string) (*Response, error) {
	route, ok := v.routes[ep]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", v.name, ep, ErrUnsupportedEndpoint)
	}
	metrics.ProviderFetches.Add(1)

	// An open circuit fails before the limiter and spends no quota. The
	// breaker wraps only the HTTP call, so a half-open trial never waits on
	// quota.
	if v.breaker != nil && v.breaker.State() == gobreaker.StateOpen {
		metrics.ProviderFetchErrors.Add(1)
		return nil, fmt.Errorf("%s %s %s: %w", v.name, ep, symbol, gobreaker.ErrOpenState)
	}
	payload, err := ratelimit.Schedule(ctx, v.limiter, func(ctx context.Context) (json.RawMessage, error) {
		if v.breaker == nil {
			return v.get(ctx, route, symbol)
		}
		out, err := v.breaker.Execute(func() (interface{}, error) { return v.get(ctx, route, symbol) })
		if err != nil {
			return nil, err
		}
		return out.(json.RawMessage), nil
	})
	if err != nil {
		if !errors.Is(err, ErrPaymentRequired) {
			metrics.ProviderFetchErrors.Add(1)
		}
		return nil, fmt.Errorf("%s %s %s: %w", v.name, ep, symbol, err)
	}
	return &Response{Payload: payload, FetchedAt: v.now().UTC(), TTL: route.TTL}, nil
}

func (v *Vendor) get(ctx context.Context, route Route, symbol string) (json.RawMessage, error) {
	query := maps.Clone(v.query)
	for k, vals := range route.Query {
		query[k] = append([]string(nil), vals...)
	}
	query.Set("symbol", symbol)

	u := fmt.Sprintf("%s%s?%s", v.baseURL, route.Path, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", v.redact(err))
	}
	req.Header = v.header.Clone()
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	res, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", v.redact(err))
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{Vendor: v.name, Code: res.StatusCode, Body: truncate(string(body), 256)}
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrNoData
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("decoding response: %w", ErrNoData)
	}
	return json.RawMessage(body), nil
}

// Parsed wraps values stamped with the vendor clock. Empty values yield
// ErrNoData so a payload without a single usable figure contributes nothing.
func (v *Vendor) Parsed(values model.Values) (*Parsed, error) {
	if len(values) == 0 {
		return nil, ErrNoData
	}
	return &Parsed{AsOf: v.now().UTC(), Values: values}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// redact masks the API key in the URL carried by a *url.Error so request
// failures can be logged.
func (v *Vendor) redact(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	u, perr := url.Parse(urlErr.URL)
	if perr != nil {
		urlErr.URL = v.baseURL
		return err
	}
	q := u.Query()
	if q.Has(v.keyParam) {
		q.Set(v.keyParam, "REDACTED")
		u.RawQuery = q.Encode()
	}
	urlErr.URL = u.String()
	return err
}
