// Package merge resolves, per metric, which provider's value wins.
package merge

import (
	"math"
	"sort"
	"time"

	"equitymetrics/internal/model"
)

// Input is one provider's parsed contribution.
type Input struct {
	Provider string
	AsOf     time.Time
	Values   model.Values
}

// Result is the merged record. Sources names the provider behind every
// present value and has no other keys.
type Result struct {
	AsOf    time.Time
	Values  model.Values
	Sources map[model.Field]string
}

type candidate struct {
	provider string
	asOf     time.Time
	value    float64
	rank     int
}

// Merge is MergeAt with the wall clock.
func Merge(inputs []Input, priorities map[model.Field][]string) Result {
	return MergeAt(inputs, priorities, time.Now().UTC())
}

// MergeAt picks a winner for every tracked field. Candidates are ordered by
// position in the field's priority list (unlisted providers after listed
// ones), then by newest AsOf, then by provider name and value so that the
// order of inputs never changes the outcome. now is the result AsOf when
// inputs is empty.
func MergeAt(inputs []Input, priorities map[model.Field][]string, now time.Time) Result {
	res := Result{
		Values:  model.Values{},
		Sources: map[model.Field]string{},
	}
	for _, in := range inputs {
		if in.AsOf.After(res.AsOf) {
			res.AsOf = in.AsOf
		}
	}
	if len(inputs) == 0 {
		res.AsOf = now
	}

	cands := make([]candidate, 0, len(inputs))
	for _, f := range model.Fields {
		order := priorities[f]
		rank := ranks(order)
		cands = cands[:0]
		for _, in := range inputs {
			v, ok := in.Values.Get(f)
			if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			r, listed := rank[in.Provider]
			if !listed {
				r = len(order)
			}
			cands = append(cands, candidate{provider: in.Provider, asOf: in.AsOf, value: v, rank: r})
		}
		if len(cands) == 0 {
			continue
		}
		sort.Slice(cands, func(i, j int) bool { return less(cands[i], cands[j]) })
		res.Values[f] = cands[0].value
		res.Sources[f] = cands[0].provider
	}
	return res
}

func less(a, b candidate) bool {
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	if !a.asOf.Equal(b.asOf) {
		return a.asOf.After(b.asOf)
	}
	if a.provider != b.provider {
		return a.provider < b.provider
	}
	return a.value < b.value
}

// ranks maps provider name to list position. A provider listed twice keeps
// its first position.
func ranks(order []string) map[string]int {
	m := make(map[string]int, len(order))
	for i, p := range order {
		if _, dup := m[p]; !dup {
			m[p] = i
		}
	}
	return m
}
