package provider

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Number is an optional numeric field that vendors encode either as a JSON
// number or as a numeric string. Placeholders such as "None", "-" or "" and
// non-finite values decode as absent rather than failing the whole payload.
type Number struct {
	V     float64
	Valid bool
}

func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	var f float64
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil
		}
		f = x
	} else if err := json.Unmarshal(b, &f); err != nil {
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	*n = Number{V: f, Valid: true}
	return nil
}

// Ptr returns the value or nil when absent.
func (n Number) Ptr() *float64 {
	if !n.Valid {
		return nil
	}
	v := n.V
	return &v
}

// NonZero is Ptr with zero also treated as absent, for vendors that report
// missing figures as 0.
func (n Number) NonZero() *float64 {
	if !n.Valid || n.V == 0 {
		return nil
	}
	return n.Ptr()
}

// Scaled returns the value multiplied by k, or nil when absent.
func (n Number) Scaled(k float64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.V * k
	return &v
}

// First returns the first present number, for fields a vendor has renamed
// across API versions.
func First(ns ...Number) Number {
	for _, n := range ns {
		if n.Valid {
			return n
		}
	}
	return Number{}
}
