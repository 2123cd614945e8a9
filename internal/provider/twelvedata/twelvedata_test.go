package twelvedata

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

func TestFetchQuote(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)
	httpClient := providermock.NewMockHTTPClient(ctrl)
	body := `{"symbol":"AAPL","exchange":"NASDAQ","open":"189.5","high":"191.0","low":"188.9","close":"190.3","volume":"48790000","is_market_open":false}`

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "https://api.twelvedata.com/quote?apikey=td&symbol=AAPL", req.URL.String())
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(body))}, nil
		}).
		Times(1)

	a := New("td", provider.TTLs{Quote: 15 * time.Minute}, provider.WithHTTPClient(httpClient))

	// Act
	res, err := a.Fetch(t.Context(), provider.EndpointQuote, "AAPL")
	require.NoError(t, err)
	parsed, err := a.Parse(provider.EndpointQuote, res.Payload)

	// Assert
	require.NoError(t, err)
	require.Equal(t, model.Values{
		model.FieldPrice:  190.3,
		model.FieldOpen:   189.5,
		model.FieldHigh:   191.0,
		model.FieldLow:    188.9,
		model.FieldClose:  190.3,
		model.FieldVolume: 48790000,
	}, parsed.Values)
	require.False(t, a.Supports(provider.EndpointOverview))
}

func TestParse_NoData(t *testing.T) {
	t.Parallel()
	a := New("td", provider.TTLs{})

	for _, payload := range []string{
		`{"code":400,"message":"**symbol** not found: XXXX","status":"error"}`,
		`{"symbol":"AAPL","volume":"0"}`,
		`"unexpected"`,
	} {
		_, err := a.Parse(provider.EndpointQuote, json.RawMessage(payload))
		require.ErrorIs(t, err, provider.ErrNoData, payload)
	}
}

func TestParse_Unsupported(t *testing.T) {
	t.Parallel()
	a := New("td", provider.TTLs{})

	_, err := a.Parse(provider.EndpointOverview, json.RawMessage(`{}`))

	require.ErrorIs(t, err, provider.ErrUnsupportedEndpoint)
}
