package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/civicpulse/poll-indexer/internal/domain/model"
	"github.com/google/uuid"
)

// TxBeginner abstracts the ability to begin a database transaction.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// PollFilter selects polls for the read path. Date bounds apply to the
// poll's end date: From is inclusive, Before exclusive.
type PollFilter struct {
	Subject          *string
	PollType         *string
	PollTypeContains *string // case-insensitive substring match
	From             *time.Time
	Before           *time.Time
	OrderAsc         bool
	Limit            int
}

// SubjectSummary aggregates persisted polls per subject.
type SubjectSummary struct {
	Subject       string
	Count         int
	PollTypes     []string
	LatestEndDate *time.Time
}

// PollRepository provides access to canonical poll records.
type PollRepository interface {
	// Upsert creates or wholesale-replaces the poll identified by
	// (source, source_poll_id), including its full answer set, atomically.
	Upsert(ctx context.Context, p *model.Poll) error
	List(ctx context.Context, filter PollFilter) ([]model.Poll, error)
	ListSubjects(ctx context.Context, limit int) ([]SubjectSummary, error)
}

// RunRepository provides access to ingestion run provenance.
type RunRepository interface {
	Create(ctx context.Context, source model.Source) (*model.PollRun, error)
	// Finish records the single terminal transition of a run. It fails if
	// the run is not in the running state.
	Finish(ctx context.Context, id uuid.UUID, status model.RunStatus, stats model.RunStats, errMsg *string) error
}
