// Package votehub ingests the VoteHub poll API. VoteHub exposes stable
// native poll IDs, which pass through as the canonical source poll ID.
package votehub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/civicpulse/poll-indexer/internal/domain/model"
	"github.com/civicpulse/poll-indexer/internal/ingest/fetch"
	"github.com/civicpulse/poll-indexer/internal/ingest/ratelimit"
	"github.com/civicpulse/poll-indexer/internal/ingest/source"
	"github.com/civicpulse/poll-indexer/internal/metrics"
)

// VoteHub is a single-country source; every poll is normalized to this
// jurisdiction.
const defaultJurisdiction = "US"

// fallbackPollTypes is used when the discovery endpoint returns a payload we
// cannot interpret. Discovery is best-effort; only the listing envelope is
// load-bearing.
var fallbackPollTypes = []string{"approval", "favorability", "generic-ballot"}

type Adapter struct {
	baseURL    string
	ingestDays int
	client     *fetch.Client
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
	nowFunc    func() time.Time
}

func New(baseURL string, ingestDays int, client *fetch.Client, limiter *ratelimit.Limiter, logger *slog.Logger) *Adapter {
	if ingestDays < 1 {
		ingestDays = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		baseURL:    baseURL,
		ingestDays: ingestDays,
		client:     client,
		limiter:    limiter,
		logger:     logger.With("component", "adapter", "source", model.SourceVoteHub),
		nowFunc:    time.Now,
	}
}

func (a *Adapter) Source() model.Source {
	return model.SourceVoteHub
}

func (a *Adapter) Ingest(ctx context.Context, store source.PollStore) (model.RunStats, error) {
	var stats model.RunStats

	pollTypes, err := a.fetchPollTypes(ctx)
	if err != nil {
		return stats, err
	}

	to := a.nowFunc().UTC()
	from := to.AddDate(0, 0, -a.ingestDays)

	for _, pollType := range pollTypes {
		items, err := a.fetchWindow(ctx, pollType, from, to)
		if err != nil {
			return stats, err
		}

		for _, item := range items {
			stats.Fetched++
			metrics.PollsFetched.WithLabelValues(model.SourceVoteHub.String()).Inc()

			poll, ok := a.normalize(item)
			if !ok {
				stats.Errors++
				metrics.ItemErrors.WithLabelValues(model.SourceVoteHub.String()).Inc()
				continue
			}

			if err := store.Upsert(ctx, poll); err != nil {
				return stats, fmt.Errorf("upsert poll %s: %w", poll.SourcePollID, err)
			}
			stats.Upserted++
			metrics.PollsUpserted.WithLabelValues(model.SourceVoteHub.String()).Inc()
		}
	}

	return stats, nil
}

func (a *Adapter) fetchPollTypes(ctx context.Context) ([]string, error) {
	if err := a.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := a.client.GetJSON(ctx, a.baseURL+"/poll-types", &raw, fetch.Options{}); err != nil {
		return nil, fmt.Errorf("fetch poll types: %w", err)
	}

	types, ok := decodePollTypes(raw)
	if !ok {
		a.logger.Warn("poll type discovery returned an unexpected shape, using fallback list")
		return fallbackPollTypes, nil
	}
	return types, nil
}

// decodePollTypes accepts either a bare string array or an envelope with a
// poll_types field.
func decodePollTypes(raw json.RawMessage) ([]string, bool) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, true
	}

	var envelope struct {
		PollTypes *[]string `json:"poll_types"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.PollTypes != nil {
		return *envelope.PollTypes, true
	}
	return nil, false
}

func (a *Adapter) fetchWindow(ctx context.Context, pollType string, from, to time.Time) ([]json.RawMessage, error) {
	if err := a.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	u, err := url.Parse(a.baseURL + "/polls")
	if err != nil {
		return nil, fmt.Errorf("build polls url: %w", err)
	}
	q := u.Query()
	q.Set("poll_type", pollType)
	q.Set("from_date", from.Format("2006-01-02"))
	q.Set("to_date", to.Format("2006-01-02"))
	u.RawQuery = q.Encode()

	var raw json.RawMessage
	if err := a.client.GetJSON(ctx, u.String(), &raw, fetch.Options{}); err != nil {
		return nil, fmt.Errorf("fetch polls for type %q: %w", pollType, err)
	}

	items, ok := decodePollList(raw)
	if !ok {
		a.logger.Warn("poll listing is not an array, skipping type", "poll_type", pollType)
		return nil, nil
	}
	return items, nil
}

// decodePollList accepts a bare array of polls or a {polls: [...]} envelope.
func decodePollList(raw json.RawMessage) ([]json.RawMessage, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, true
	}

	var envelope struct {
		Polls *[]json.RawMessage `json:"polls"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Polls != nil {
		return *envelope.Polls, true
	}
	return nil, false
}

type votehubPoll struct {
	ID         flexibleID           `json:"id"`
	PollType   string               `json:"poll_type"`
	Subject    *source.LooseString  `json:"subject"`
	SampleSize *int                 `json:"sample_size"`
	Population *string              `json:"population"`
	URL        *string              `json:"url"`
	StartDate  *string              `json:"start_date"`
	EndDate    *string              `json:"end_date"`
	Pollster   *source.LooseString  `json:"pollster"`
	Answers    []json.RawMessage    `json:"answers"`
	Sponsors   []source.LooseString `json:"sponsors"`
	Internal   *bool                `json:"internal"`
	Partisan   *bool                `json:"partisan"`
}

type votehubAnswer struct {
	Choice  string   `json:"choice"`
	Party   *string  `json:"party"`
	Percent *float64 `json:"percent"`
}

// flexibleID accepts a string or numeric upstream identifier.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number")
	}
	*f = flexibleID(n.String())
	return nil
}

// normalize validates one raw poll item and maps it to the canonical record.
// The raw payload travels along for audit.
func (a *Adapter) normalize(item json.RawMessage) (*model.Poll, bool) {
	var p votehubPoll
	if err := json.Unmarshal(item, &p); err != nil {
		a.logger.Debug("skipping malformed poll item", "error", err)
		return nil, false
	}
	if p.ID == "" || p.PollType == "" {
		return nil, false
	}

	answers := make([]model.Answer, 0, len(p.Answers))
	for _, rawAnswer := range p.Answers {
		var ans votehubAnswer
		if err := json.Unmarshal(rawAnswer, &ans); err != nil || ans.Choice == "" {
			continue
		}
		answers = append(answers, model.Answer{
			Position: len(answers),
			Choice:   ans.Choice,
			Party:    ans.Party,
			Percent:  ans.Percent,
		})
	}

	var subject *string
	if s := p.Subject.Ptr(); s != nil {
		subject = source.HumanizeSubject(*s)
	}

	sampleSize := p.SampleSize
	if sampleSize != nil && *sampleSize < 0 {
		sampleSize = nil
	}

	jurisdiction := defaultJurisdiction
	return &model.Poll{
		Source:       model.SourceVoteHub,
		SourcePollID: string(p.ID),
		PollType:     p.PollType,
		Subject:      subject,
		Jurisdiction: &jurisdiction,
		StartDate:    source.ParseDate(p.StartDate),
		EndDate:      source.ParseDate(p.EndDate),
		SampleSize:   sampleSize,
		Population:   p.Population,
		Pollster:     p.Pollster.Ptr(),
		Sponsor:      joinSponsors(p.Sponsors),
		URL:          p.URL,
		Internal:     p.Internal,
		Partisan:     p.Partisan,
		Raw:          item,
		Answers:      answers,
	}, true
}

// joinSponsors joins sponsor names with ", ", yielding nil when no usable
// name remains.
func joinSponsors(sponsors []source.LooseString) *string {
	var names []string
	for i := range sponsors {
		if v := sponsors[i].Ptr(); v != nil {
			names = append(names, *v)
		}
	}
	if len(names) == 0 {
		return nil
	}
	joined := strings.Join(names, ", ")
	return &joined
}
