// Package model defines the records shared by the aggregation engine: instruments
// and their vendor aliases, raw cached provider payloads, merged metric snapshots,
// and batch job bookkeeping.
package model
