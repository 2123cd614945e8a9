package model

import "time"

// Snapshot is one persisted merge result. Values and Sources share their key
// set: a field present in Values always names its provider in Sources.
type Snapshot struct {
	ID           int64            `json:"id,omitempty"`
	InstrumentID string           `json:"instrument_id"`
	AsOf         time.Time        `json:"as_of"`
	Values       Values           `json:"metrics"`
	Sources      map[Field]string `json:"sources"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Age is how old the snapshot is relative to now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.AsOf)
}
