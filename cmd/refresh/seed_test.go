package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"equitymetrics/internal/model"
	"equitymetrics/internal/store/sqlite"
)

const seedYAML = `
instruments:
  - id: inst-sap
    symbol: SAP
    exchange: XETRA
    currency: EUR
    aliases:
      - provider: finnhub
        symbol: SAP.DE
  - id: inst-old
    symbol: OLD
    inactive: true
`

func TestParseSeed(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	ins, err := parseSeed([]byte(seedYAML), now)

	require.NoError(t, err)
	require.Len(t, ins, 2)
	require.Equal(t, "SAP.DE", ins[0].SymbolFor("finnhub"))
	require.Equal(t, "SAP", ins[0].SymbolFor("fmp"))
	require.True(t, ins[0].Active)
	require.False(t, ins[1].Active)
	require.Equal(t, now, ins[1].CreatedAt)
}

func TestParseSeed_RequiresIDAndSymbol(t *testing.T) {
	t.Parallel()

	_, err := parseSeed([]byte("instruments:\n  - id: x\n"), time.Now())

	require.ErrorContains(t, err, "id and symbol are required")
}

func TestSeedInstruments(t *testing.T) {
	t.Parallel()

	// Arrange
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))
	st, err := sqlite.Open(filepath.Join(dir, "m.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	// Act
	n, err := seedInstruments(t.Context(), st, path, time.Now().UTC())

	// Assert
	require.NoError(t, err)
	require.Equal(t, 2, n)
	ids, err := st.ListActiveInstrumentIDs(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"inst-sap"}, ids)
	got, err := st.GetInstrument(t.Context(), "inst-sap")
	require.NoError(t, err)
	require.Equal(t, []model.Alias{{Provider: "finnhub", Symbol: "SAP.DE", ExchangeCode: "XETRA"}}, got.Aliases)
}

func TestSplitCSV(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a", "b"}, splitCSV(" a,, b ,"))
	require.Empty(t, splitCSV(""))
}
