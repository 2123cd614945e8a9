// Package alphavantage adapts the Alpha Vantage query API. Every figure
// arrives as a string and zero means "not reported".
package alphavantage

import (
	"encoding/json"
	"fmt"
	"net/url"

	"equitymetrics/internal/model"
	"equitymetrics/internal/provider"
)

const (
	Name           = "alphavantage"
	DefaultBaseURL = "https://www.alphavantage.co"
)

type Adapter struct {
	*provider.Vendor
}

var _ provider.Adapter = (*Adapter)(nil)

func New(apiKey string, ttl provider.TTLs, options ...provider.Option) *Adapter {
	routes := map[provider.Endpoint]provider.Route{
		provider.EndpointQuote: {
			Path:  "/query",
			Query: url.Values{"function": {"GLOBAL_QUOTE"}},
			TTL:   ttl.Quote,
		},
		provider.EndpointOverview: {
			Path:  "/query",
			Query: url.Values{"function": {"OVERVIEW"}},
			TTL:   ttl.Overview,
		},
	}
	return &Adapter{Vendor: provider.NewVendor(Name, DefaultBaseURL, "apikey", apiKey, routes, options...)}
}

type globalQuote struct {
	Quote *struct {
		Price         provider.Number `json:"05. price"`
		Open          provider.Number `json:"02. open"`
		High          provider.Number `json:"03. high"`
		Low           provider.Number `json:"04. low"`
		PreviousClose provider.Number `json:"08. previous close"`
		Volume        provider.Number `json:"06. volume"`
	} `json:"Global Quote"`
}

type overview struct {
	Symbol       *string `json:"Symbol"`
	Information  string  `json:"Information"`
	Note         string  `json:"Note"`
	ErrorMessage string  `json:"Error Message"`

	MarketCapitalization  provider.Number `json:"MarketCapitalization"`
	PERatio               provider.Number `json:"PERatio"`
	EPS                   provider.Number `json:"EPS"`
	DividendYield         provider.Number `json:"DividendYield"`
	DividendPerShare      provider.Number `json:"DividendPerShare"`
	DividendPayoutRatio   provider.Number `json:"DividendPayoutRatio"`
	RevenuePerShareTTM    provider.Number `json:"RevenuePerShareTTM"`
	DilutedEPSTTM         provider.Number `json:"DilutedEPSTTM"`
	SharesOutstanding     provider.Number `json:"SharesOutstanding"`
	Beta                  provider.Number `json:"Beta"`
	WeekHigh52            provider.Number `json:"52WeekHigh"`
	WeekLow52             provider.Number `json:"52WeekLow"`
	AverageVolume         provider.Number `json:"AverageVolume"`
	AverageVolume10Day    provider.Number `json:"AverageVolume10day"`
	EnterpriseValue       provider.Number `json:"EnterpriseValue"`
	EBITDA                provider.Number `json:"EBITDA"`
	FreeCashFlowTTM       provider.Number `json:"FreeCashFlowTTM"`
	OperatingCashflow     provider.Number `json:"OperatingCashflow"`
	GrossProfitTTM        provider.Number `json:"GrossProfitTTM"`
	TotalDebt             provider.Number `json:"TotalDebt"`
	TotalCash             provider.Number `json:"TotalCash"`
	DebtToEquity          provider.Number `json:"DebtToEquity"`
	CurrentRatio          provider.Number `json:"CurrentRatio"`
	QuickRatio            provider.Number `json:"QuickRatio"`
	PriceToBookRatio      provider.Number `json:"PriceToBookRatio"`
	PriceToSalesRatioTTM  provider.Number `json:"PriceToSalesRatioTTM"`
	PEGRatio              provider.Number `json:"PEGRatio"`
	EVToEBITDA            provider.Number `json:"EVToEBITDA"`
	EVToRevenue           provider.Number `json:"EVToRevenue"`
	BookValue             provider.Number `json:"BookValue"`
	ReturnOnAssetsTTM     provider.Number `json:"ReturnOnAssetsTTM"`
	ReturnOnEquityTTM     provider.Number `json:"ReturnOnEquityTTM"`
	ReturnOnInvestmentTTM provider.Number `json:"ReturnOnInvestmentTTM"`
	RevenueTTM            provider.Number `json:"RevenueTTM"`
	NetIncomeTTM          provider.Number `json:"NetIncomeTTM"`
	OperatingMarginTTM    provider.Number `json:"OperatingMarginTTM"`
	ProfitMargin          provider.Number `json:"ProfitMargin"`
}

func (a *Adapter) Parse(ep provider.Endpoint, payload json.RawMessage) (*provider.Parsed, error) {
	switch ep {
	case provider.EndpointQuote:
		return a.parseQuote(payload)
	case provider.EndpointOverview:
		return a.parseOverview(payload)
	}
	return nil, fmt.Errorf("%s %s: %w", Name, ep, provider.ErrUnsupportedEndpoint)
}

func (a *Adapter) parseQuote(payload json.RawMessage) (*provider.Parsed, error) {
	var gq globalQuote
	if err := json.Unmarshal(payload, &gq); err != nil {
		return nil, fmt.Errorf("%s: decoding quote: %w", Name, provider.ErrNoData)
	}
	if gq.Quote == nil {
		return nil, provider.ErrNoData
	}
	q := gq.Quote
	v := model.Values{}
	v.SetPtr(model.FieldPrice, q.Price.NonZero())
	v.SetPtr(model.FieldOpen, q.Open.NonZero())
	v.SetPtr(model.FieldHigh, q.High.NonZero())
	v.SetPtr(model.FieldLow, q.Low.NonZero())
	v.SetPtr(model.FieldClose, q.PreviousClose.NonZero())
	v.SetPtr(model.FieldVolume, q.Volume.NonZero())
	return a.Parsed(v)
}

func (a *Adapter) parseOverview(payload json.RawMessage) (*provider.Parsed, error) {
	var o overview
	if err := json.Unmarshal(payload, &o); err != nil {
		return nil, fmt.Errorf("%s: decoding overview: %w", Name, provider.ErrNoData)
	}
	if o.Symbol == nil || o.Information != "" || o.Note != "" || o.ErrorMessage != "" {
		return nil, provider.ErrNoData
	}
	v := model.Values{}
	for f, n := range map[model.Field]provider.Number{
		model.FieldMarketCap:            o.MarketCapitalization,
		model.FieldPE:                   o.PERatio,
		model.FieldEPS:                  o.EPS,
		model.FieldDividendYield:        o.DividendYield,
		model.FieldDividendPerShare:     o.DividendPerShare,
		model.FieldPayoutRatio:          o.DividendPayoutRatio,
		model.FieldRevenuePerShare:      o.RevenuePerShareTTM,
		model.FieldEPSDiluted:           o.DilutedEPSTTM,
		model.FieldSharesOutstanding:    o.SharesOutstanding,
		model.FieldBeta:                 o.Beta,
		model.FieldWeek52High:           o.WeekHigh52,
		model.FieldWeek52Low:            o.WeekLow52,
		model.FieldAvgVolume:            provider.First(o.AverageVolume, o.AverageVolume10Day),
		model.FieldEnterpriseValue:      o.EnterpriseValue,
		model.FieldEBITDATTM:            o.EBITDA,
		model.FieldFreeCashFlowTTM:      o.FreeCashFlowTTM,
		model.FieldOperatingCashFlowTTM: o.OperatingCashflow,
		model.FieldGrossProfitTTM:       o.GrossProfitTTM,
		model.FieldTotalDebt:            o.TotalDebt,
		model.FieldTotalCash:            o.TotalCash,
		model.FieldDebtToEquity:         o.DebtToEquity,
		model.FieldCurrentRatio:         o.CurrentRatio,
		model.FieldQuickRatio:           o.QuickRatio,
		model.FieldPriceToBook:          o.PriceToBookRatio,
		model.FieldPriceToSales:         o.PriceToSalesRatioTTM,
		model.FieldPEGRatio:             o.PEGRatio,
		model.FieldEVToEBITDA:           o.EVToEBITDA,
		model.FieldEVToRevenue:          o.EVToRevenue,
		model.FieldBookValuePerShare:    o.BookValue,
		model.FieldROA:                  o.ReturnOnAssetsTTM,
		model.FieldROE:                  o.ReturnOnEquityTTM,
		model.FieldROI:                  o.ReturnOnInvestmentTTM,
		model.FieldRevenueTTM:           o.RevenueTTM,
		model.FieldNetIncomeTTM:         o.NetIncomeTTM,
		model.FieldOperatingMargin:      o.OperatingMarginTTM,
		model.FieldProfitMargin:         o.ProfitMargin,
	} {
		v.SetPtr(f, n.NonZero())
	}
	return a.Parsed(v)
}
