package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/civicpulse/poll-indexer/internal/domain/model"
	"github.com/civicpulse/poll-indexer/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePollRepo struct {
	polls      []model.Poll
	subjects   []store.SubjectSummary
	lastFilter store.PollFilter
	listErr    error
}

func (r *fakePollRepo) Upsert(ctx context.Context, p *model.Poll) error {
	return fmt.Errorf("read-only fake")
}

func (r *fakePollRepo) List(ctx context.Context, filter store.PollFilter) ([]model.Poll, error) {
	r.lastFilter = filter
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.polls, nil
}

func (r *fakePollRepo) ListSubjects(ctx context.Context, limit int) ([]store.SubjectSummary, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	if limit < len(r.subjects) {
		return r.subjects[:limit], nil
	}
	return r.subjects, nil
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func samplePoll() model.Poll {
	subject := "Jane Smith"
	jurisdiction := "US"
	approve, disapprove := 47.0, 49.5
	endDate := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)
	sample := 1200
	return model.Poll{
		ID:           uuid.New(),
		Source:       model.SourceVoteHub,
		SourcePollID: "101",
		PollType:     "approval",
		Subject:      &subject,
		Jurisdiction: &jurisdiction,
		EndDate:      &endDate,
		SampleSize:   &sample,
		Answers: []model.Answer{
			{Choice: "approve", Percent: &approve},
			{Choice: "disapprove", Percent: &disapprove},
		},
	}
}

func TestHealthz(t *testing.T) {
	s := NewServer(":0", &fakePollRepo{}, nil)

	rec := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestPolls_ReturnsSerializedPolls(t *testing.T) {
	repo := &fakePollRepo{polls: []model.Poll{samplePoll()}}
	s := NewServer(":0", repo, nil)

	rec := get(t, s.Handler(), "/api/polls?subject=Jane+Smith&pollType=approval")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Polls []struct {
			Source       string  `json:"source"`
			SourcePollID string  `json:"sourcePollId"`
			PollType     string  `json:"pollType"`
			Subject      *string `json:"subject"`
			EndDate      *string `json:"endDate"`
			SampleSize   *int    `json:"sampleSize"`
			Answers      []struct {
				Choice  string   `json:"choice"`
				Percent *float64 `json:"percent"`
			} `json:"answers"`
		} `json:"polls"`
	}
	decodeBody(t, rec, &body)

	require.Len(t, body.Polls, 1)
	p := body.Polls[0]
	assert.Equal(t, "votehub", p.Source)
	assert.Equal(t, "101", p.SourcePollID)
	require.NotNil(t, p.Subject)
	assert.Equal(t, "Jane Smith", *p.Subject)
	require.NotNil(t, p.EndDate)
	assert.Equal(t, "2025-06-03T00:00:00Z", *p.EndDate)
	require.Len(t, p.Answers, 2)

	require.NotNil(t, repo.lastFilter.Subject)
	assert.Equal(t, "Jane Smith", *repo.lastFilter.Subject)
	require.NotNil(t, repo.lastFilter.PollType)
	assert.Equal(t, "approval", *repo.lastFilter.PollType)
	assert.Equal(t, defaultPollLimit, repo.lastFilter.Limit)
}

func TestPolls_DateRangeUpperBoundExclusive(t *testing.T) {
	repo := &fakePollRepo{}
	s := NewServer(":0", repo, nil)

	rec := get(t, s.Handler(), "/api/polls?from=2025-06-01&to=2025-06-30")
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, repo.lastFilter.From)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), *repo.lastFilter.From)
	require.NotNil(t, repo.lastFilter.Before)
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), *repo.lastFilter.Before)
}

func TestPolls_BadDateRejected(t *testing.T) {
	s := NewServer(":0", &fakePollRepo{}, nil)

	for _, target := range []string{
		"/api/polls?from=June+1st",
		"/api/polls?to=2025-6-3",
		"/api/polls?from=20250603",
	} {
		rec := get(t, s.Handler(), target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestPolls_LimitBounds(t *testing.T) {
	repo := &fakePollRepo{}
	s := NewServer(":0", repo, nil)

	rec := get(t, s.Handler(), "/api/polls?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, repo.lastFilter.Limit)

	for _, target := range []string{
		"/api/polls?limit=0",
		"/api/polls?limit=-5",
		"/api/polls?limit=1001",
		"/api/polls?limit=ten",
	} {
		rec := get(t, s.Handler(), target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestPolls_RepositoryErrorIsOpaque(t *testing.T) {
	repo := &fakePollRepo{listErr: fmt.Errorf("pq: connection refused")}
	s := NewServer(":0", repo, nil)

	rec := get(t, s.Handler(), "/api/polls")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:", "driver errors must not leak")
}

func TestApprovalSeries_RequiresSubject(t *testing.T) {
	s := NewServer(":0", &fakePollRepo{}, nil)

	rec := get(t, s.Handler(), "/api/series/approval")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Contains(t, body["error"], "subject")
}

func TestApprovalSeries_FoldsPolls(t *testing.T) {
	repo := &fakePollRepo{polls: []model.Poll{samplePoll()}}
	s := NewServer(":0", repo, nil)

	rec := get(t, s.Handler(), "/api/series/approval?subject=Jane+Smith")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Subject string `json:"subject"`
		Series  []struct {
			Date string   `json:"date"`
			Net  *float64 `json:"net"`
			N    int      `json:"n"`
		} `json:"series"`
	}
	decodeBody(t, rec, &body)

	assert.Equal(t, "Jane Smith", body.Subject)
	require.Len(t, body.Series, 1)
	assert.Equal(t, "2025-06-03", body.Series[0].Date)
	require.NotNil(t, body.Series[0].Net)
	assert.InDelta(t, -2.5, *body.Series[0].Net, 1e-9)

	// The scan is approval-only, ascending, and bounded.
	require.NotNil(t, repo.lastFilter.PollTypeContains)
	assert.Equal(t, "approval", *repo.lastFilter.PollTypeContains)
	assert.True(t, repo.lastFilter.OrderAsc)
	assert.Equal(t, seriesScanLimit, repo.lastFilter.Limit)
}

func TestSubjects_IncludesSlugs(t *testing.T) {
	latest := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)
	repo := &fakePollRepo{subjects: []store.SubjectSummary{
		{Subject: "Jane Smith", Count: 12, PollTypes: []string{"approval"}, LatestEndDate: &latest},
		{Subject: "Generic Ballot 2026", Count: 4, PollTypes: []string{"generic-ballot"}},
	}}
	s := NewServer(":0", repo, nil)

	rec := get(t, s.Handler(), "/api/subjects")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Subjects []struct {
			Subject       string  `json:"subject"`
			Slug          string  `json:"slug"`
			Count         int     `json:"count"`
			LatestEndDate *string `json:"latestEndDate"`
		} `json:"subjects"`
	}
	decodeBody(t, rec, &body)

	require.Len(t, body.Subjects, 2)
	assert.Equal(t, "jane-smith", body.Subjects[0].Slug)
	assert.Equal(t, 12, body.Subjects[0].Count)
	require.NotNil(t, body.Subjects[0].LatestEndDate)
	assert.Equal(t, "2025-06-03T00:00:00Z", *body.Subjects[0].LatestEndDate)
	assert.Equal(t, "generic-ballot-2026", body.Subjects[1].Slug)
	assert.Nil(t, body.Subjects[1].LatestEndDate)
}

func TestSubjects_LimitValidated(t *testing.T) {
	s := NewServer(":0", &fakePollRepo{}, nil)

	rec := get(t, s.Handler(), "/api/subjects?limit=501")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := NewServer(":0", &fakePollRepo{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/polls", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRateLimit_BurstExhaustionReturns429(t *testing.T) {
	m := NewRateLimitMiddleware(nil)
	fixed := time.Unix(1_700_000_000, 0)
	m.nowFunc = func() time.Time { return fixed }

	h := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// With a frozen clock no tokens refill, so exactly the burst passes.
	for i := 0; i < clientBurst; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/polls", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "request %d within burst", i)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/polls", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// A different client has its own budget.
	req = httptest.NewRequest(http.MethodGet, "/api/polls", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_StaleLimitersEvicted(t *testing.T) {
	m := NewRateLimitMiddleware(nil)
	now := time.Unix(1_700_000_000, 0)
	m.nowFunc = func() time.Time { return now }

	require.True(t, m.allow("10.0.0.1"))
	require.True(t, m.allow("10.0.0.2"))
	assert.Len(t, m.limiters, 2)

	now = now.Add(staleLimiterTTL + time.Minute)
	require.True(t, m.allow("10.0.0.3"))
	assert.Len(t, m.limiters, 1, "idle limiters are swept")
}
