// Package api serves the read side: filtered poll listings, day-bucketed
// approval series and subject summaries over the canonical store.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/civicpulse/poll-indexer/internal/domain/model"
	"github.com/civicpulse/poll-indexer/internal/metrics"
	"github.com/civicpulse/poll-indexer/internal/series"
	"github.com/civicpulse/poll-indexer/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultPollLimit    = 250
	maxPollLimit        = 1000
	defaultSubjectLimit = 200
	maxSubjectLimit     = 500

	// seriesScanLimit bounds how many polls one series request folds over.
	seriesScanLimit = 2000

	readTimeout = 15 * time.Second
)

var ymdPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type Server struct {
	polls  store.PollRepository
	logger *slog.Logger
	http   *http.Server
}

func NewServer(addr string, polls store.PollRepository, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		polls:  polls,
		logger: logger.With("component", "api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/polls", s.handlePolls)
	mux.HandleFunc("GET /api/series/approval", s.handleApprovalSeries)
	mux.HandleFunc("GET /api/subjects", s.handleSubjects)

	limited := NewRateLimitMiddleware(logger).Wrap(mux)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           limited,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("read api listening", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

type pollResponse struct {
	ID           string           `json:"id"`
	Source       string           `json:"source"`
	SourcePollID string           `json:"sourcePollId"`
	PollType     string           `json:"pollType"`
	Subject      *string          `json:"subject"`
	Jurisdiction *string          `json:"jurisdiction"`
	Office       *string          `json:"office"`
	StartDate    *string          `json:"startDate"`
	EndDate      *string          `json:"endDate"`
	SampleSize   *int             `json:"sampleSize"`
	Population   *string          `json:"population"`
	Pollster     *string          `json:"pollster"`
	Sponsor      *string          `json:"sponsor"`
	Methodology  *string          `json:"methodology"`
	URL          *string          `json:"url"`
	Internal     *bool            `json:"internal"`
	Partisan     *bool            `json:"partisan"`
	Hypothetical *bool            `json:"hypothetical"`
	Answers      []answerResponse `json:"answers"`
}

type answerResponse struct {
	Choice  string   `json:"choice"`
	Party   *string  `json:"party"`
	Percent *float64 `json:"percent"`
}

func (s *Server) handlePolls(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.PollFilter{Limit: defaultPollLimit}
	if v := q.Get("subject"); v != "" {
		filter.Subject = &v
	}
	if v := q.Get("pollType"); v != "" {
		filter.PollType = &v
	}

	var err error
	filter.From, filter.Before, err = dateRange(q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Limit, err = limitParam(q.Get("limit"), defaultPollLimit, maxPollLimit); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	polls, err := s.polls.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list polls failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]pollResponse, len(polls))
	for i, p := range polls {
		out[i] = toPollResponse(p)
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"polls": out})
}

func (s *Server) handleApprovalSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	subject := q.Get("subject")
	if subject == "" {
		writeError(w, r, http.StatusBadRequest, "subject is required")
		return
	}

	from, before, err := dateRange(q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	approval := "approval"
	polls, err := s.polls.List(r.Context(), store.PollFilter{
		Subject:          &subject,
		PollTypeContains: &approval,
		From:             from,
		Before:           before,
		OrderAsc:         true,
		Limit:            seriesScanLimit,
	})
	if err != nil {
		s.logger.Error("list polls for series failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"subject": subject,
		"series":  series.Approval(polls),
	})
}

type subjectResponse struct {
	Subject       string   `json:"subject"`
	Slug          string   `json:"slug"`
	Count         int      `json:"count"`
	PollTypes     []string `json:"pollTypes"`
	LatestEndDate *string  `json:"latestEndDate"`
}

func (s *Server) handleSubjects(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r.URL.Query().Get("limit"), defaultSubjectLimit, maxSubjectLimit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	subjects, err := s.polls.ListSubjects(r.Context(), limit)
	if err != nil {
		s.logger.Error("list subjects failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]subjectResponse, len(subjects))
	for i, sub := range subjects {
		out[i] = subjectResponse{
			Subject:       sub.Subject,
			Slug:          SlugifySubject(sub.Subject),
			Count:         sub.Count,
			PollTypes:     sub.PollTypes,
			LatestEndDate: timeString(sub.LatestEndDate),
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"subjects": out})
}

// dateRange parses inclusive YYYY-MM-DD bounds over end_date. Dates are UTC
// midnight; the upper bound becomes exclusive by adding one day.
func dateRange(from, to string) (*time.Time, *time.Time, error) {
	var fromTime, beforeTime *time.Time
	if from != "" {
		t, err := parseYMD(from)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid from date %q", from)
		}
		fromTime = &t
	}
	if to != "" {
		t, err := parseYMD(to)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid to date %q", to)
		}
		exclusive := t.AddDate(0, 0, 1)
		beforeTime = &exclusive
	}
	return fromTime, beforeTime, nil
}

func parseYMD(s string) (time.Time, error) {
	if !ymdPattern.MatchString(s) {
		return time.Time{}, fmt.Errorf("not a YYYY-MM-DD date")
	}
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}

func limitParam(raw string, fallback, max int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		return 0, fmt.Errorf("limit must be an integer in [1, %d]", max)
	}
	return n, nil
}

func toPollResponse(p model.Poll) pollResponse {
	answers := make([]answerResponse, len(p.Answers))
	for i, a := range p.Answers {
		answers[i] = answerResponse{Choice: a.Choice, Party: a.Party, Percent: a.Percent}
	}
	return pollResponse{
		ID:           p.ID.String(),
		Source:       p.Source.String(),
		SourcePollID: p.SourcePollID,
		PollType:     p.PollType,
		Subject:      p.Subject,
		Jurisdiction: p.Jurisdiction,
		Office:       p.Office,
		StartDate:    timeString(p.StartDate),
		EndDate:      timeString(p.EndDate),
		SampleSize:   p.SampleSize,
		Population:   p.Population,
		Pollster:     p.Pollster,
		Sponsor:      p.Sponsor,
		Methodology:  p.Methodology,
		URL:          p.URL,
		Internal:     p.Internal,
		Partisan:     p.Partisan,
		Hypothetical: p.Hypothetical,
		Answers:      answers,
	}
}

func timeString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	metrics.HTTPRequests.WithLabelValues(r.URL.Path, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, r, code, map[string]string{"error": msg})
}
