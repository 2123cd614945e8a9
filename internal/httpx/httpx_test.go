package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDo_SetsDefaultHeaders(t *testing.T) {
	t.Parallel()

	// Arrange
	var gotUA, gotAccept, gotCustom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		gotCustom = r.Header.Get("X-Custom")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	c := New(2 * time.Second)
	c.Headers["X-Custom"] = "from-client"

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL, http.NoBody)
	require.NoError(t, err)
	req.Header.Set("X-Custom", "from-request")

	// Act
	res, err := c.Do(req)

	// Assert
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	require.Equal(t, "equitymetrics/1.0", gotUA)
	require.Equal(t, "application/json", gotAccept)
	require.Equal(t, "from-request", gotCustom)
}
