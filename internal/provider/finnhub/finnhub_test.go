package finnhub

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

func TestFetchFinancials(t *testing.T) {
	t.Parallel()

	// Arrange
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stock/metric", r.URL.Path)
		assert.Equal(t, "all", r.URL.Query().Get("metric"))
		assert.Equal(t, "tok", r.URL.Query().Get("token"))
		assert.Equal(t, "NVDA", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{
			"metric": {
				"peTTM": 64.2,
				"epsTTM": 1.71,
				"dividendYieldIndicatedAnnual": 0.03,
				"marketCapitalization": 2830000,
				"beta": 1.68,
				"52WeekHigh": 140.76,
				"52WeekLow": 39.23
			},
			"metricType": "all",
			"symbol": "NVDA"
		}`))
	}))
	defer srv.Close()
	ttl := provider.TTLs{Quote: time.Minute, Overview: time.Hour, Financials: 30 * 24 * time.Hour}
	a := New("tok", ttl, provider.WithBaseURL(srv.URL+"/api/v1"), provider.WithHTTPClient(srv.Client()))

	// Act
	res, err := a.Fetch(t.Context(), provider.EndpointFinancials, "NVDA")
	require.NoError(t, err)
	parsed, err := a.Parse(provider.EndpointFinancials, res.Payload)

	// Assert
	require.NoError(t, err)
	require.Equal(t, 30*24*time.Hour, res.TTL)
	require.Equal(t, model.Values{
		model.FieldPE:            64.2,
		model.FieldEPS:           1.71,
		model.FieldDividendYield: 0.03,
		model.FieldMarketCap:     2830000 * 1e6,
		model.FieldBeta:          1.68,
		model.FieldWeek52High:    140.76,
		model.FieldWeek52Low:     39.23,
	}, parsed.Values)
}

func TestParse(t *testing.T) {
	t.Parallel()
	a := New("tok", provider.TTLs{})

	tests := []struct {
		name    string
		ep      provider.Endpoint
		payload string
		want    model.Values
		wantErr error
	}{
		{
			name:    "quote",
			ep:      provider.EndpointQuote,
			payload: `{"c":261.74,"d":0.2,"dp":0.08,"h":263.31,"l":260.68,"o":261.07,"pc":261.54,"t":1582641000}`,
			want: model.Values{
				model.FieldPrice: 261.74,
				model.FieldOpen:  261.07,
				model.FieldHigh:  263.31,
				model.FieldLow:   260.68,
				model.FieldClose: 261.54,
			},
		},
		{
			name:    "unknown symbol quote",
			ep:      provider.EndpointQuote,
			payload: `{"c":0,"d":null,"dp":null,"h":0,"l":0,"o":0,"pc":0,"t":0}`,
			wantErr: provider.ErrNoData,
		},
		{
			name:    "profile in millions",
			ep:      provider.EndpointOverview,
			payload: `{"ticker":"AAPL","name":"Apple Inc","marketCapitalization":1415993}`,
			want:    model.Values{model.FieldMarketCap: 1415993 * 1e6},
		},
		{
			name:    "empty profile",
			ep:      provider.EndpointOverview,
			payload: `{}`,
			wantErr: provider.ErrNoData,
		},
		{
			name:    "metric access error",
			ep:      provider.EndpointFinancials,
			payload: `{"error":"You don't have access to this resource.","metric":{}}`,
			wantErr: provider.ErrNoData,
		},
		{
			name:    "metric missing",
			ep:      provider.EndpointFinancials,
			payload: `{"symbol":"AAPL"}`,
			wantErr: provider.ErrNoData,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			parsed, err := a.Parse(tt.ep, json.RawMessage(tt.payload))

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, parsed.Values)
		})
	}
}
