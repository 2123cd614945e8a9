// Package fmp adapts the Financial Modeling Prep stable API.
package fmp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"equitymetrics/internal/model"
	"equitymetrics/internal/provider"
)

const (
	Name           = "fmp"
	DefaultBaseURL = "https://financialmodelingprep.com/stable"
)

type Adapter struct {
	*provider.Vendor
}

var _ provider.Adapter = (*Adapter)(nil)

// New returns an adapter serving quote (/quote) and overview (/profile).
// A 402 on either is surfaced as provider.ErrPaymentRequired.
func New(apiKey string, ttl provider.TTLs, options ...provider.Option) *Adapter {
	routes := map[provider.Endpoint]provider.Route{
		provider.EndpointQuote:    {Path: "/quote", TTL: ttl.Quote},
		provider.EndpointOverview: {Path: "/profile", TTL: ttl.Overview},
	}
	return &Adapter{Vendor: provider.NewVendor(Name, DefaultBaseURL, "apikey", apiKey, routes, options...)}
}

type quote struct {
	Price     provider.Number `json:"price"`
	Volume    provider.Number `json:"volume"`
	MarketCap provider.Number `json:"marketCap"`
	MktCap    provider.Number `json:"mktCap"`
	PE        provider.Number `json:"pe"`
}

type profile struct {
	MktCap                provider.Number `json:"mktCap"`
	MarketCap             provider.Number `json:"marketCap"`
	PE                    provider.Number `json:"pe"`
	EPS                   provider.Number `json:"eps"`
	LastDiv               provider.Number `json:"lastDiv"`
	Beta                  provider.Number `json:"beta"`
	VolAvg                provider.Number `json:"volAvg"`
	SharesOutstanding     provider.Number `json:"sharesOutstanding"`
	Range                 string          `json:"range"`
	Revenue               provider.Number `json:"revenue"`
	NetIncome             provider.Number `json:"netIncome"`
	GrossProfitMargin     provider.Number `json:"grossProfitMargin"`
	OperatingProfitMargin provider.Number `json:"operatingProfitMargin"`
	NetProfitMargin       provider.Number `json:"netProfitMargin"`
}

func (a *Adapter) Parse(ep provider.Endpoint, payload json.RawMessage) (*provider.Parsed, error) {
	switch ep {
	case provider.EndpointQuote:
		q, err := first[quote](payload)
		if err != nil {
			return nil, err
		}
		v := model.Values{}
		v.SetPtr(model.FieldPrice, q.Price.Ptr())
		v.SetPtr(model.FieldVolume, q.Volume.Ptr())
		v.SetPtr(model.FieldMarketCap, provider.First(q.MarketCap, q.MktCap).Ptr())
		v.SetPtr(model.FieldPE, q.PE.Ptr())
		return a.Parsed(v)
	case provider.EndpointOverview:
		p, err := first[profile](payload)
		if err != nil {
			return nil, err
		}
		v := model.Values{}
		v.SetPtr(model.FieldMarketCap, provider.First(p.MktCap, p.MarketCap).Ptr())
		v.SetPtr(model.FieldPE, p.PE.Ptr())
		v.SetPtr(model.FieldEPS, p.EPS.Ptr())
		v.SetPtr(model.FieldDividendPerShare, p.LastDiv.Ptr())
		v.SetPtr(model.FieldBeta, p.Beta.Ptr())
		v.SetPtr(model.FieldAvgVolume, p.VolAvg.Ptr())
		v.SetPtr(model.FieldSharesOutstanding, p.SharesOutstanding.Ptr())
		if low, high, ok := parseRange(p.Range); ok {
			v.SetPtr(model.FieldWeek52Low, low)
			v.SetPtr(model.FieldWeek52High, high)
		}
		v.SetPtr(model.FieldRevenueTTM, p.Revenue.Ptr())
		v.SetPtr(model.FieldNetIncomeTTM, p.NetIncome.Ptr())
		v.SetPtr(model.FieldGrossMargin, p.GrossProfitMargin.Ptr())
		v.SetPtr(model.FieldOperatingMargin, p.OperatingProfitMargin.Ptr())
		v.SetPtr(model.FieldProfitMargin, p.NetProfitMargin.Ptr())
		return a.Parsed(v)
	}
	return nil, fmt.Errorf("%s %s: %w", Name, ep, provider.ErrUnsupportedEndpoint)
}

// first decodes the leading element of an FMP array response.
func first[T any](payload json.RawMessage) (*T, error) {
	var items []T
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("%s: decoding payload: %w", Name, provider.ErrNoData)
	}
	if len(items) == 0 {
		return nil, provider.ErrNoData
	}
	return &items[0], nil
}

// parseRange splits the profile's "low-high" 52-week range, e.g.
// "164.08-199.62". Either side may be unparseable on its own.
func parseRange(s string) (low, high *float64, ok bool) {
	l, h, found := strings.Cut(s, "-")
	if !found {
		return nil, nil, false
	}
	return parseSide(l), parseSide(h), true
}

func parseSide(s string) *float64 {
	x, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &x
}
