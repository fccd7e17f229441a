package model

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
)

// RunStats accumulates per-run ingestion counters. Partial counts are
// recorded even when a run terminates with an error.
type RunStats struct {
	Fetched  int `json:"fetched"`
	Upserted int `json:"upserted"`
	Errors   int `json:"errors"`
}

// PollRun is one execution of one source's ingestion. A run is created in
// the running state before any network I/O and transitions exactly once to
// success or error.
type PollRun struct {
	ID         uuid.UUID  `db:"id"`
	Source     Source     `db:"source"`
	Status     RunStatus  `db:"status"`
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
	Stats      RunStats
	Error      *string `db:"error"`
}
