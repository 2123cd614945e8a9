package merge

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"equitymetrics/internal/model"
)

var (
	t1 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 = t1.Add(time.Hour)
)

func TestMerge_PriorityWinsRegardlessOfInputOrder(t *testing.T) {
	t.Parallel()

	// Arrange
	a := Input{Provider: "a", AsOf: t2, Values: model.Values{model.FieldPrice: 10}}
	b := Input{Provider: "b", AsOf: t1, Values: model.Values{model.FieldPrice: 11}}
	prio := map[model.Field][]string{model.FieldPrice: {"b", "a"}}

	for _, inputs := range [][]Input{{a, b}, {b, a}} {
		// Act
		got := MergeAt(inputs, prio, t1)

		// Assert
		require.Equal(t, 11.0, got.Values[model.FieldPrice])
		require.Equal(t, "b", got.Sources[model.FieldPrice])
		require.Equal(t, t2, got.AsOf)
	}
}

func TestMerge_NoPriorityFallsBackToNewest(t *testing.T) {
	t.Parallel()
	inputs := []Input{
		{Provider: "a", AsOf: t1, Values: model.Values{model.FieldPE: 12}},
		{Provider: "b", AsOf: t2, Values: model.Values{model.FieldPE: 15}},
	}

	got := MergeAt(inputs, nil, t1)

	require.Equal(t, 15.0, got.Values[model.FieldPE])
	require.Equal(t, "b", got.Sources[model.FieldPE])
}

func TestMerge_UnlistedRankAfterListed(t *testing.T) {
	t.Parallel()
	inputs := []Input{
		{Provider: "newest", AsOf: t2, Values: model.Values{model.FieldEPS: 1}},
		{Provider: "older", AsOf: t1, Values: model.Values{model.FieldEPS: 2}},
		{Provider: "listed", AsOf: t1.Add(-time.Hour), Values: model.Values{model.FieldEPS: 3}},
	}
	prio := map[model.Field][]string{model.FieldEPS: {"listed", "listed", "absent"}}

	got := MergeAt(inputs, prio, t1)
	require.Equal(t, "listed", got.Sources[model.FieldEPS])

	got = MergeAt(inputs[:2], prio, t1)
	require.Equal(t, "newest", got.Sources[model.FieldEPS])
}

func TestMerge_EmptyInputs(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC)

	got := MergeAt(nil, map[model.Field][]string{model.FieldPrice: {"a"}}, now)

	require.Equal(t, now, got.AsOf)
	require.Empty(t, got.Values)
	require.Empty(t, got.Sources)
}

func TestMerge_SkipsNonFiniteAndKeepsSourcesAligned(t *testing.T) {
	t.Parallel()
	inputs := []Input{
		{Provider: "a", AsOf: t2, Values: model.Values{model.FieldBeta: math.NaN(), model.FieldROE: math.Inf(1)}},
		{Provider: "b", AsOf: t1, Values: model.Values{model.FieldBeta: 1.1}},
	}

	got := MergeAt(inputs, nil, t1)

	require.Equal(t, model.Values{model.FieldBeta: 1.1}, got.Values)
	require.Equal(t, map[model.Field]string{model.FieldBeta: "b"}, got.Sources)
	require.Equal(t, t2, got.AsOf)
}

func TestMerge_DeterministicUnderShuffle(t *testing.T) {
	t.Parallel()

	// Same AsOf and no priority: ties resolve by provider name then value.
	base := []Input{
		{Provider: "fmp", AsOf: t1, Values: model.Values{model.FieldPrice: 100, model.FieldVolume: 5}},
		{Provider: "finnhub", AsOf: t1, Values: model.Values{model.FieldPrice: 101}},
		{Provider: "finnhub", AsOf: t1, Values: model.Values{model.FieldPrice: 99}},
		{Provider: "alphavantage", AsOf: t1, Values: model.Values{model.FieldVolume: 7}},
	}
	want := MergeAt(base, nil, t1)
	require.Equal(t, "finnhub", want.Sources[model.FieldPrice])
	require.Equal(t, 99.0, want.Values[model.FieldPrice])
	require.Equal(t, "alphavantage", want.Sources[model.FieldVolume])

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		shuffled := append([]Input(nil), base...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		require.Equal(t, want, MergeAt(shuffled, nil, t1))
	}
}

func TestMerge_EndToEndScenario(t *testing.T) {
	t.Parallel()
	inputs := []Input{
		{Provider: "alphavantage", AsOf: t2, Values: model.Values{model.FieldMarketCap: 5000, model.FieldPE: 12, model.FieldPrice: 98}},
		{Provider: "fmp", AsOf: t1, Values: model.Values{model.FieldPrice: 100}},
	}
	prio := map[model.Field][]string{model.FieldPrice: {"fmp", "alphavantage"}}

	got := Merge(inputs, prio)

	require.Equal(t, model.Values{model.FieldPrice: 100, model.FieldMarketCap: 5000, model.FieldPE: 12}, got.Values)
	require.Equal(t, map[model.Field]string{
		model.FieldPrice:     "fmp",
		model.FieldMarketCap: "alphavantage",
		model.FieldPE:        "alphavantage",
	}, got.Sources)
}
