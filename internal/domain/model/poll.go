package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Source string

const (
	SourceVoteHub  Source = "votehub"
	SourceCivicAPI Source = "civicapi"
)

func (s Source) String() string {
	return string(s)
}

// Poll is the canonical, source-agnostic poll record. Identity is the
// (Source, SourcePollID) pair: SourcePollID is the upstream identifier for
// sources that expose one, or a content fingerprint otherwise.
type Poll struct {
	ID           uuid.UUID       `db:"id"`
	Source       Source          `db:"source"`
	SourcePollID string          `db:"source_poll_id"`
	PollType     string          `db:"poll_type"`
	Subject      *string         `db:"subject"`
	Jurisdiction *string         `db:"jurisdiction"`
	Office       *string         `db:"office"`
	StartDate    *time.Time      `db:"start_date"`
	EndDate      *time.Time      `db:"end_date"`
	SampleSize   *int            `db:"sample_size"`
	Population   *string         `db:"population"`
	Pollster     *string         `db:"pollster"`
	Sponsor      *string         `db:"sponsor"`
	Methodology  *string         `db:"methodology"`
	URL          *string         `db:"url"`
	Internal     *bool           `db:"internal"`
	Partisan     *bool           `db:"partisan"`
	Hypothetical *bool           `db:"hypothetical"`
	Raw          json.RawMessage `db:"raw"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`

	// Answers are ordered as delivered by the source. On upsert the stored
	// set is replaced wholesale, never merged.
	Answers []Answer
}

type Answer struct {
	ID       uuid.UUID `db:"id"`
	PollID   uuid.UUID `db:"poll_id"`
	Position int       `db:"position"`
	Choice   string    `db:"choice"`
	Party    *string   `db:"party"`
	Percent  *float64  `db:"percent"`
}
