// Package civicapi ingests the CivicAPI latest-polls feed. CivicAPI does not
// expose stable poll IDs, so identity is a content fingerprint over the
// poll's defining attributes and its answer set. Re-ingesting unchanged
// upstream data is therefore a no-op, while an upstream edit mints a new
// identity; that churn is accepted behavior.
package civicapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/civicpulse/poll-indexer/internal/domain/model"
	"github.com/civicpulse/poll-indexer/internal/ingest/fetch"
	"github.com/civicpulse/poll-indexer/internal/ingest/identity"
	"github.com/civicpulse/poll-indexer/internal/ingest/ratelimit"
	"github.com/civicpulse/poll-indexer/internal/ingest/retry"
	"github.com/civicpulse/poll-indexer/internal/ingest/source"
	"github.com/civicpulse/poll-indexer/internal/metrics"
)

const (
	defaultJurisdiction = "US"
	defaultPollType     = "unknown"
)

type Adapter struct {
	latestURL string
	client    *fetch.Client
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
}

func New(latestURL string, client *fetch.Client, limiter *ratelimit.Limiter, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		latestURL: latestURL,
		client:    client,
		limiter:   limiter,
		logger:    logger.With("component", "adapter", "source", model.SourceCivicAPI),
	}
}

func (a *Adapter) Source() model.Source {
	return model.SourceCivicAPI
}

func (a *Adapter) Ingest(ctx context.Context, store source.PollStore) (model.RunStats, error) {
	var stats model.RunStats

	if err := a.limiter.Acquire(ctx); err != nil {
		return stats, err
	}

	var envelope struct {
		Count *int               `json:"count"`
		Polls *[]json.RawMessage `json:"polls"`
	}
	if err := a.client.GetJSON(ctx, a.latestURL, &envelope, fetch.Options{}); err != nil {
		return stats, fmt.Errorf("fetch latest polls: %w", err)
	}
	if envelope.Polls == nil {
		return stats, retry.Terminal(fmt.Errorf("unexpected response shape: missing polls array"))
	}

	for _, item := range *envelope.Polls {
		stats.Fetched++
		metrics.PollsFetched.WithLabelValues(model.SourceCivicAPI.String()).Inc()

		poll, ok := a.normalize(item)
		if !ok {
			stats.Errors++
			metrics.ItemErrors.WithLabelValues(model.SourceCivicAPI.String()).Inc()
			continue
		}

		if err := store.Upsert(ctx, poll); err != nil {
			return stats, fmt.Errorf("upsert poll %s: %w", poll.SourcePollID, err)
		}
		stats.Upserted++
		metrics.PollsUpserted.WithLabelValues(model.SourceCivicAPI.String()).Inc()
	}

	return stats, nil
}

type civicPoll struct {
	Title      *string           `json:"title"`
	Pollster   *string           `json:"pollster"`
	StartDate  *string           `json:"start_date"`
	EndDate    *string           `json:"end_date"`
	Sample     json.RawMessage   `json:"sample"`
	Population *string           `json:"population"`
	State      *string           `json:"state"`
	Politician *string           `json:"politician"`
	Type       *string           `json:"type"`
	Answers    []json.RawMessage `json:"answers"`
	URL        *string           `json:"url"`
}

type civicAnswer struct {
	Choice  string          `json:"choice"`
	Party   *string         `json:"party"`
	Percent json.RawMessage `json:"percent"`
}

func (a *Adapter) normalize(item json.RawMessage) (*model.Poll, bool) {
	var p civicPoll
	if err := json.Unmarshal(item, &p); err != nil {
		a.logger.Debug("skipping malformed poll item", "error", err)
		return nil, false
	}

	answers := make([]model.Answer, 0, len(p.Answers))
	for _, rawAnswer := range p.Answers {
		var ans civicAnswer
		if err := json.Unmarshal(rawAnswer, &ans); err != nil || ans.Choice == "" {
			continue
		}
		percent, ok := source.ParsePercent(ans.Percent)
		if !ok {
			continue
		}
		answers = append(answers, model.Answer{
			Position: len(answers),
			Choice:   ans.Choice,
			Party:    ans.Party,
			Percent:  percent,
		})
	}

	sampleSize := source.ParseSampleSize(p.Sample)
	if sampleSize != nil && *sampleSize < 0 {
		sampleSize = nil
	}

	sourcePollID := identity.Fingerprint(identity.PollKey{
		Pollster:     deref(p.Pollster),
		StartDate:    deref(p.StartDate),
		EndDate:      deref(p.EndDate),
		SampleSize:   intString(sampleSize),
		Population:   deref(p.Population),
		Jurisdiction: deref(p.State),
		Title:        deref(p.Title),
		Subject:      deref(p.Politician),
		PollType:     deref(p.Type),
	}, fingerprintAnswers(answers))

	subject := p.Politician
	if subject == nil {
		subject = p.Title
	}

	pollType := defaultPollType
	if p.Type != nil && *p.Type != "" {
		pollType = *p.Type
	}

	jurisdiction := defaultJurisdiction
	if p.State != nil && *p.State != "" {
		jurisdiction = strings.ToUpper(*p.State)
	}

	return &model.Poll{
		Source:       model.SourceCivicAPI,
		SourcePollID: sourcePollID,
		PollType:     pollType,
		Subject:      subject,
		Jurisdiction: &jurisdiction,
		StartDate:    source.ParseDate(p.StartDate),
		EndDate:      source.ParseDate(p.EndDate),
		SampleSize:   sampleSize,
		Population:   p.Population,
		Pollster:     p.Pollster,
		URL:          p.URL,
		Raw:          item,
		Answers:      answers,
	}, true
}

func fingerprintAnswers(answers []model.Answer) []identity.Answer {
	out := make([]identity.Answer, len(answers))
	for i, a := range answers {
		out[i] = identity.Answer{Choice: a.Choice, Party: a.Party, Percent: a.Percent}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intString(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}
