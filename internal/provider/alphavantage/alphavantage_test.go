package alphavantage

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"equitymetrics/internal/model"
	"equitymetrics/internal/provider"
	"equitymetrics/internal/provider/providermock"
)

const globalQuoteBody = `{
    "Global Quote": {
        "01. symbol": "IBM",
        "02. open": "168.2000",
        "03. high": "170.1000",
        "04. low": "167.9000",
        "05. price": "169.5500",
        "06. volume": "3504912",
        "07. latest trading day": "2024-05-31",
        "08. previous close": "168.0200",
        "09. change": "1.5300",
        "10. change percent": "0.9106%"
    }
}`

func TestFetchQuote(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)
	httpClient := providermock.NewMockHTTPClient(ctrl)

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "www.alphavantage.co", req.URL.Host)
			require.Equal(t, "/query", req.URL.Path)
			require.Equal(t, "GLOBAL_QUOTE", req.URL.Query().Get("function"))
			require.Equal(t, "IBM", req.URL.Query().Get("symbol"))
			require.Equal(t, "demo", req.URL.Query().Get("apikey"))
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(globalQuoteBody)),
			}, nil
		}).
		Times(1)

	a := New("demo", provider.TTLs{Quote: time.Minute}, provider.WithHTTPClient(httpClient))

	// Act
	res, err := a.Fetch(t.Context(), provider.EndpointQuote, "IBM")
	require.NoError(t, err)
	parsed, err := a.Parse(provider.EndpointQuote, res.Payload)

	// Assert
	require.NoError(t, err)
	require.Equal(t, model.Values{
		model.FieldPrice:  169.55,
		model.FieldOpen:   168.2,
		model.FieldHigh:   170.1,
		model.FieldLow:    167.9,
		model.FieldClose:  168.02,
		model.FieldVolume: 3504912,
	}, parsed.Values)
}

func TestParseOverview(t *testing.T) {
	t.Parallel()
	a := New("demo", provider.TTLs{})
	payload := json.RawMessage(`{
		"Symbol": "IBM",
		"MarketCapitalization": "155624538000",
		"PERatio": "19.06",
		"DividendYield": "0.0394",
		"Beta": "0.71",
		"52WeekHigh": "199.18",
		"52WeekLow": "135.87",
		"AverageVolume10day": "4100000",
		"EBITDA": "14625000000",
		"PEGRatio": "None",
		"TotalDebt": "0",
		"BookValue": "24.98",
		"ProfitMargin": "0.122"
	}`)

	parsed, err := a.Parse(provider.EndpointOverview, payload)

	require.NoError(t, err)
	require.Equal(t, model.Values{
		model.FieldMarketCap:         155624538000,
		model.FieldPE:                19.06,
		model.FieldDividendYield:     0.0394,
		model.FieldBeta:              0.71,
		model.FieldWeek52High:        199.18,
		model.FieldWeek52Low:         135.87,
		model.FieldAvgVolume:         4100000,
		model.FieldEBITDATTM:         14625000000,
		model.FieldBookValuePerShare: 24.98,
		model.FieldProfitMargin:      0.122,
	}, parsed.Values)
}

func TestParse_NoData(t *testing.T) {
	t.Parallel()
	a := New("demo", provider.TTLs{})

	tests := []struct {
		name    string
		ep      provider.Endpoint
		payload string
	}{
		{"quote without envelope key", provider.EndpointQuote, `{}`},
		{"unknown symbol quote", provider.EndpointQuote, `{"Global Quote":{}}`},
		{"all zero quote", provider.EndpointQuote, `{"Global Quote":{"05. price":"0.0000","06. volume":"0"}}`},
		{"rate limit note", provider.EndpointOverview, `{"Symbol":"IBM","Note":"Thank you for using Alpha Vantage!"}`},
		{"information", provider.EndpointOverview, `{"Information":"The **demo** API key is for demo purposes only."}`},
		{"overview without symbol", provider.EndpointOverview, `{"MarketCapitalization":"100"}`},
		{"array payload", provider.EndpointOverview, `[1,2,3]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := a.Parse(tt.ep, json.RawMessage(tt.payload))

			require.ErrorIs(t, err, provider.ErrNoData)
		})
	}
}

func TestParse_Unsupported(t *testing.T) {
	t.Parallel()
	a := New("demo", provider.TTLs{})

	_, err := a.Parse(provider.EndpointFinancials, json.RawMessage(`{}`))

	require.ErrorIs(t, err, provider.ErrUnsupportedEndpoint)
}
