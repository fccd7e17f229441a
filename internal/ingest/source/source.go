// Package source defines the contract implemented by each external poll
// source and the field coercion helpers the adapters share.
package source

import (
	"context"

	"github.com/civicpulse/poll-indexer/internal/domain/model"
)

// PollStore persists normalized polls. Implemented by the Postgres store;
// tests substitute an in-memory fake.
type PollStore interface {
	Upsert(ctx context.Context, p *model.Poll) error
}

// Adapter ingests one external source: fetch, validate, normalize, persist.
// Item-level failures are counted in the returned stats and skipped; a
// returned error is fatal for the source's run. Partial stats are meaningful
// even when err is non-nil.
type Adapter interface {
	Source() model.Source
	Ingest(ctx context.Context, store PollStore) (model.RunStats, error)
}
