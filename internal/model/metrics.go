package model

import (
	"math"
	"sort"
)

// Field names one tracked numeric metric.
type Field string

const (
	FieldPrice                Field = "price"
	FieldOpen                 Field = "open"
	FieldHigh                 Field = "high"
	FieldLow                  Field = "low"
	FieldClose                Field = "close"
	FieldVolume               Field = "volume"
	FieldMarketCap            Field = "marketCap"
	FieldPE                   Field = "pe"
	FieldEPS                  Field = "eps"
	FieldDividendYield        Field = "dividendYield"
	FieldDividendPerShare     Field = "dividendPerShare"
	FieldPayoutRatio          Field = "payoutRatio"
	FieldRevenuePerShare      Field = "revenuePerShare"
	FieldEPSDiluted           Field = "epsDiluted"
	FieldSharesOutstanding    Field = "sharesOutstanding"
	FieldFloatShares          Field = "floatShares"
	FieldBeta                 Field = "beta"
	FieldWeek52High           Field = "week52High"
	FieldWeek52Low            Field = "week52Low"
	FieldAvgVolume            Field = "avgVolume"
	FieldEnterpriseValue      Field = "enterpriseValue"
	FieldEBITDATTM            Field = "ebitdaTtm"
	FieldFreeCashFlowTTM      Field = "freeCashFlowTtm"
	FieldOperatingCashFlowTTM Field = "operatingCashFlowTtm"
	FieldGrossProfitTTM       Field = "grossProfitTtm"
	FieldTotalDebt            Field = "totalDebt"
	FieldTotalCash            Field = "totalCash"
	FieldDebtToEquity         Field = "debtToEquity"
	FieldCurrentRatio         Field = "currentRatio"
	FieldQuickRatio           Field = "quickRatio"
	FieldPriceToBook          Field = "priceToBook"
	FieldPriceToSales         Field = "priceToSales"
	FieldPEGRatio             Field = "pegRatio"
	FieldEVToEBITDA           Field = "evToEbitda"
	FieldEVToRevenue          Field = "evToRevenue"
	FieldBookValuePerShare    Field = "bookValuePerShare"
	FieldROA                  Field = "roa"
	FieldROE                  Field = "roe"
	FieldROI                  Field = "roi"
	FieldRevenueTTM           Field = "revenueTtm"
	FieldNetIncomeTTM         Field = "netIncomeTtm"
	FieldGrossMargin          Field = "grossMargin"
	FieldOperatingMargin      Field = "operatingMargin"
	FieldProfitMargin         Field = "profitMargin"
)

// Fields lists every tracked metric in storage order.
var Fields = []Field{
	FieldPrice, FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume,
	FieldMarketCap, FieldPE, FieldEPS, FieldDividendYield, FieldDividendPerShare,
	FieldPayoutRatio, FieldRevenuePerShare, FieldEPSDiluted, FieldSharesOutstanding,
	FieldFloatShares, FieldBeta, FieldWeek52High, FieldWeek52Low, FieldAvgVolume,
	FieldEnterpriseValue, FieldEBITDATTM, FieldFreeCashFlowTTM, FieldOperatingCashFlowTTM,
	FieldGrossProfitTTM, FieldTotalDebt, FieldTotalCash, FieldDebtToEquity,
	FieldCurrentRatio, FieldQuickRatio, FieldPriceToBook, FieldPriceToSales,
	FieldPEGRatio, FieldEVToEBITDA, FieldEVToRevenue, FieldBookValuePerShare,
	FieldROA, FieldROE, FieldROI, FieldRevenueTTM, FieldNetIncomeTTM,
	FieldGrossMargin, FieldOperatingMargin, FieldProfitMargin,
}

var columns = map[Field]string{
	FieldPrice:                "price",
	FieldOpen:                 "open",
	FieldHigh:                 "high",
	FieldLow:                  "low",
	FieldClose:                "close",
	FieldVolume:               "volume",
	FieldMarketCap:            "market_cap",
	FieldPE:                   "pe",
	FieldEPS:                  "eps",
	FieldDividendYield:        "dividend_yield",
	FieldDividendPerShare:     "dividend_per_share",
	FieldPayoutRatio:          "payout_ratio",
	FieldRevenuePerShare:      "revenue_per_share",
	FieldEPSDiluted:           "eps_diluted",
	FieldSharesOutstanding:    "shares_outstanding",
	FieldFloatShares:          "float_shares",
	FieldBeta:                 "beta",
	FieldWeek52High:           "week52_high",
	FieldWeek52Low:            "week52_low",
	FieldAvgVolume:            "avg_volume",
	FieldEnterpriseValue:      "enterprise_value",
	FieldEBITDATTM:            "ebitda_ttm",
	FieldFreeCashFlowTTM:      "free_cash_flow_ttm",
	FieldOperatingCashFlowTTM: "operating_cash_flow_ttm",
	FieldGrossProfitTTM:       "gross_profit_ttm",
	FieldTotalDebt:            "total_debt",
	FieldTotalCash:            "total_cash",
	FieldDebtToEquity:         "debt_to_equity",
	FieldCurrentRatio:         "current_ratio",
	FieldQuickRatio:           "quick_ratio",
	FieldPriceToBook:          "price_to_book",
	FieldPriceToSales:         "price_to_sales",
	FieldPEGRatio:             "peg_ratio",
	FieldEVToEBITDA:           "ev_to_ebitda",
	FieldEVToRevenue:          "ev_to_revenue",
	FieldBookValuePerShare:    "book_value_per_share",
	FieldROA:                  "roa",
	FieldROE:                  "roe",
	FieldROI:                  "roi",
	FieldRevenueTTM:           "revenue_ttm",
	FieldNetIncomeTTM:         "net_income_ttm",
	FieldGrossMargin:          "gross_margin",
	FieldOperatingMargin:      "operating_margin",
	FieldProfitMargin:         "profit_margin",
}

// Column returns the snapshot table column holding the field's value. The
// source column is Column() + "_source".
func (f Field) Column() string { return columns[f] }

// Valid reports whether f is a tracked metric.
func (f Field) Valid() bool {
	_, ok := columns[f]
	return ok
}

// ParseField looks a field up by its name ("marketCap") or column ("market_cap").
func ParseField(s string) (Field, bool) {
	if f := Field(s); f.Valid() {
		return f, true
	}
	for f, col := range columns {
		if col == s {
			return f, true
		}
	}
	return "", false
}

// Values is an optional-field numeric record: a missing key means null.
// Only finite numbers are ever stored.
type Values map[Field]float64

// Set stores v under f when it is finite.
func (v Values) Set(f Field, x float64) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return
	}
	v[f] = x
}

// SetPtr stores *p under f when p is non-nil and finite.
func (v Values) SetPtr(f Field, p *float64) {
	if p == nil {
		return
	}
	v.Set(f, *p)
}

// Get returns the value for f and whether it is present.
func (v Values) Get(f Field) (float64, bool) {
	x, ok := v[f]
	return x, ok
}

// Keys returns the present fields in name order.
func (v Values) Keys() []Field {
	out := make([]Field, 0, len(v))
	for f := range v {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
