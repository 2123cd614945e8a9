package model

import "time"

// Status is the lifecycle state of a Job or JobRun.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Terminal reports whether s can no longer change.
func (s Status) Terminal() bool { return s == StatusDone || s == StatusError }

// Job is one batch refresh.
type Job struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Status     Status     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Runs       []JobRun   `json:"runs,omitempty"`
}

// JobRun records the forced enrichment of one instrument inside a Job.
type JobRun struct {
	ID           string     `json:"id"`
	JobID        string     `json:"job_id"`
	InstrumentID string     `json:"instrument_id"`
	Status       Status     `json:"status"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}
