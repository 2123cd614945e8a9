package fmp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equitymetrics/internal/model"
	"equitymetrics/internal/provider"
)

var testTTLs = provider.TTLs{Quote: 15 * time.Minute, Overview: 7 * 24 * time.Hour}

func TestFetchQuote(t *testing.T) {
	t.Parallel()

	// Arrange
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stable/quote", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "k", r.URL.Query().Get("apikey"))
		_, _ = w.Write([]byte(`[{"symbol":"AAPL","price":189.84,"volume":51234567,"marketCap":2950000000000,"pe":29.4}]`))
	}))
	defer srv.Close()
	a := New("k", testTTLs, provider.WithBaseURL(srv.URL+"/stable"), provider.WithHTTPClient(srv.Client()))

	// Act
	res, err := a.Fetch(t.Context(), provider.EndpointQuote, "AAPL")
	require.NoError(t, err)
	parsed, err := a.Parse(provider.EndpointQuote, res.Payload)

	// Assert
	require.NoError(t, err)
	require.Equal(t, 15*time.Minute, res.TTL)
	require.Equal(t, model.Values{
		model.FieldPrice:     189.84,
		model.FieldVolume:    51234567,
		model.FieldMarketCap: 2.95e12,
		model.FieldPE:        29.4,
	}, parsed.Values)
	require.False(t, a.Supports(provider.EndpointFinancials))
}

func TestFetch_PaymentRequired(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"Error Message":"Premium endpoint"}`))
	}))
	defer srv.Close()
	a := New("k", testTTLs, provider.WithBaseURL(srv.URL), provider.WithHTTPClient(srv.Client()))

	_, err := a.Fetch(t.Context(), provider.EndpointOverview, "ASML.AS")

	require.ErrorIs(t, err, provider.ErrPaymentRequired)
}

func TestParseOverview(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	a := New("k", testTTLs, provider.WithClock(func() time.Time { return now }))
	payload := json.RawMessage(`[{
		"symbol": "MSFT",
		"mktCap": 3100000000000,
		"beta": 0.9,
		"lastDiv": 3,
		"volAvg": 21000000,
		"range": "309.45-430.82",
		"revenue": 227583000000,
		"netIncome": 82541000000,
		"grossProfitMargin": 0.69,
		"operatingProfitMargin": 0.44,
		"netProfitMargin": 0.36
	}]`)

	parsed, err := a.Parse(provider.EndpointOverview, payload)

	require.NoError(t, err)
	require.Equal(t, now, parsed.AsOf)
	require.Equal(t, model.Values{
		model.FieldMarketCap:        3.1e12,
		model.FieldBeta:             0.9,
		model.FieldDividendPerShare: 3,
		model.FieldAvgVolume:        21000000,
		model.FieldWeek52Low:        309.45,
		model.FieldWeek52High:       430.82,
		model.FieldRevenueTTM:       227583000000,
		model.FieldNetIncomeTTM:     82541000000,
		model.FieldGrossMargin:      0.69,
		model.FieldOperatingMargin:  0.44,
		model.FieldProfitMargin:     0.36,
	}, parsed.Values)
}

func TestParse_NoData(t *testing.T) {
	t.Parallel()
	a := New("k", testTTLs)

	tests := []struct {
		name    string
		ep      provider.Endpoint
		payload string
	}{
		{"empty array", provider.EndpointQuote, `[]`},
		{"object instead of array", provider.EndpointQuote, `{"Error Message":"Invalid API KEY."}`},
		{"only unknown keys", provider.EndpointOverview, `[{"symbol":"X","companyName":"X Corp"}]`},
		{"null", provider.EndpointOverview, `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := a.Parse(tt.ep, json.RawMessage(tt.payload))

			require.ErrorIs(t, err, provider.ErrNoData)
		})
	}
}

func TestParseRange(t *testing.T) {
	t.Parallel()

	low, high, ok := parseRange("12.5-n/a")
	require.True(t, ok)
	require.Equal(t, 12.5, *low)
	require.Nil(t, high)

	_, _, ok = parseRange("164.08")
	require.False(t, ok)
}
