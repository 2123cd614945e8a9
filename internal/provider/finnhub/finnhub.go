// Package finnhub adapts the Finnhub v1 REST API.
package finnhub

import (
	"encoding/json"
	"fmt"
	"net/url"

	"equitymetrics/internal/model"
	"equitymetrics/internal/provider"
)

const (
	Name           = "finnhub"
	DefaultBaseURL = "https://finnhub.io/api/v1"
)

// Finnhub reports market capitalization in millions.
const millions = 1e6

type Adapter struct {
	*provider.Vendor
}

var _ provider.Adapter = (*Adapter)(nil)

// New returns an adapter for quote (/quote), overview (/stock/profile2) and
// financials (/stock/metric?metric=all). The key travels as "token".
func New(apiKey string, ttl provider.TTLs, options ...provider.Option) *Adapter {
	routes := map[provider.Endpoint]provider.Route{
		provider.EndpointQuote:    {Path: "/quote", TTL: ttl.Quote},
		provider.EndpointOverview: {Path: "/stock/profile2", TTL: ttl.Overview},
		provider.EndpointFinancials: {
			Path:  "/stock/metric",
			Query: url.Values{"metric": {"all"}},
			TTL:   ttl.Financials,
		},
	}
	return &Adapter{Vendor: provider.NewVendor(Name, DefaultBaseURL, "token", apiKey, routes, options...)}
}

type quote struct {
	Current       *provider.Number `json:"c"`
	Open          provider.Number  `json:"o"`
	High          provider.Number  `json:"h"`
	Low           provider.Number  `json:"l"`
	PreviousClose provider.Number  `json:"pc"`
}

type profile struct {
	Ticker               string          `json:"ticker"`
	MarketCapitalization provider.Number `json:"marketCapitalization"`
}

type basicFinancials struct {
	Error  string `json:"error"`
	Metric *struct {
		PETTM                        provider.Number `json:"peTTM"`
		EPSTTM                       provider.Number `json:"epsTTM"`
		DividendYieldIndicatedAnnual provider.Number `json:"dividendYieldIndicatedAnnual"`
		MarketCapitalization         provider.Number `json:"marketCapitalization"`
		Beta                         provider.Number `json:"beta"`
		SharesOutstanding            provider.Number `json:"sharesOutstanding"`
		WeekHigh52                   provider.Number `json:"52WeekHigh"`
		WeekLow52                    provider.Number `json:"52WeekLow"`
	} `json:"metric"`
}

func (a *Adapter) Parse(ep provider.Endpoint, payload json.RawMessage) (*provider.Parsed, error) {
	v := model.Values{}
	switch ep {
	case provider.EndpointQuote:
		var q quote
		if err := decode(payload, &q); err != nil {
			return nil, err
		}
		// Unknown symbols come back as an all-zero quote.
		if q.Current == nil || q.Current.NonZero() == nil {
			return nil, provider.ErrNoData
		}
		v.SetPtr(model.FieldPrice, q.Current.Ptr())
		v.SetPtr(model.FieldOpen, q.Open.Ptr())
		v.SetPtr(model.FieldHigh, q.High.Ptr())
		v.SetPtr(model.FieldLow, q.Low.Ptr())
		v.SetPtr(model.FieldClose, q.PreviousClose.Ptr())
	case provider.EndpointOverview:
		var p profile
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		if p.Ticker == "" {
			return nil, provider.ErrNoData
		}
		v.SetPtr(model.FieldMarketCap, p.MarketCapitalization.Scaled(millions))
	case provider.EndpointFinancials:
		var f basicFinancials
		if err := decode(payload, &f); err != nil {
			return nil, err
		}
		if f.Metric == nil || f.Error != "" {
			return nil, provider.ErrNoData
		}
		m := f.Metric
		v.SetPtr(model.FieldPE, m.PETTM.Ptr())
		v.SetPtr(model.FieldEPS, m.EPSTTM.Ptr())
		v.SetPtr(model.FieldDividendYield, m.DividendYieldIndicatedAnnual.Ptr())
		v.SetPtr(model.FieldMarketCap, m.MarketCapitalization.Scaled(millions))
		v.SetPtr(model.FieldBeta, m.Beta.Ptr())
		v.SetPtr(model.FieldSharesOutstanding, m.SharesOutstanding.Ptr())
		v.SetPtr(model.FieldWeek52High, m.WeekHigh52.Ptr())
		v.SetPtr(model.FieldWeek52Low, m.WeekLow52.Ptr())
	default:
		return nil, fmt.Errorf("%s %s: %w", Name, ep, provider.ErrUnsupportedEndpoint)
	}
	return a.Parsed(v)
}

func decode(payload json.RawMessage, dst any) error {
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("%s: decoding payload: %w", Name, provider.ErrNoData)
	}
	return nil
}
