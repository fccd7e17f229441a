// Package fetch provides the retrying JSON fetcher used by source adapters.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/civicpulse/poll-indexer/internal/ingest/retry"
	"github.com/civicpulse/poll-indexer/internal/metrics"
)

const (
	defaultRetries  = 4
	defaultTimeout  = 20 * time.Second
	defaultMinDelay = 350 * time.Millisecond
	defaultMaxDelay = 4 * time.Second

	maxJitter       = 250 * time.Millisecond
	maxErrorBodyLen = 400
)

// HTTPError is a non-2xx response. The body is truncated for diagnostics.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Status, e.Body)
}

// Options control one fetch call. Zero values fall back to the defaults.
type Options struct {
	Retries  int // extra attempts after the first; negative disables retries
	Timeout  time.Duration
	MinDelay time.Duration
	MaxDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Retries == 0 {
		o.Retries = defaultRetries
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MinDelay <= 0 {
		o.MinDelay = defaultMinDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = defaultMaxDelay
	}
	return o
}

// Client fetches JSON documents over HTTP with bounded retries and
// exponential backoff. It knows nothing about poll semantics.
type Client struct {
	httpClient *http.Client
	source     string
	logger     *slog.Logger

	sleepFn  func(ctx context.Context, d time.Duration) error
	jitterFn func() time.Duration
}

func NewClient(source string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		// Per-attempt deadlines come from the request context, not the
		// client, so a timed-out attempt can be retried.
		httpClient: &http.Client{},
		source:     source,
		logger:     logger.With("component", "fetch", "source", source),
		sleepFn:    sleepContext,
		jitterFn: func() time.Duration {
			return time.Duration(rand.Int63n(int64(maxJitter)))
		},
	}
}

// GetJSON fetches url and decodes the response body into out. Transport
// failures, per-attempt timeouts and non-2xx statuses are retried with
// exponential backoff plus jitter; a decode failure of a 2xx response is
// terminal. After exhausting retries the last observed error is returned.
func (c *Client) GetJSON(ctx context.Context, url string, out any, opts Options) error {
	opts = opts.withDefaults()

	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		metrics.FetchAttempts.WithLabelValues(c.source).Inc()

		err := c.getOnce(ctx, url, out, opts.Timeout)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retry.Classify(err).IsTransient() {
			metrics.FetchErrors.WithLabelValues(c.source).Inc()
			return err
		}
		if attempt >= opts.Retries {
			break
		}

		delay := backoffDelay(attempt, opts.MinDelay, opts.MaxDelay) + c.jitterFn()
		c.logger.Warn("fetch attempt failed, backing off",
			"url", url,
			"attempt", attempt+1,
			"delay", delay.String(),
			"error", err,
		)
		metrics.FetchRetries.WithLabelValues(c.source).Inc()
		if serr := c.sleepFn(ctx, delay); serr != nil {
			return serr
		}
	}

	metrics.FetchErrors.WithLabelValues(c.source).Inc()
	return fmt.Errorf("fetch %s after %d attempts: %w", url, opts.Retries+1, lastErr)
}

func (c *Client) getOnce(ctx context.Context, url string, out any, timeout time.Duration) error {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return retry.Terminal(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		wrapped := fmt.Errorf("http request: %w", err)
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return retry.Terminal(wrapped)
		}
		return retry.Transient(wrapped)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return retry.Transient(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return retry.Transient(&HTTPError{
			Status: resp.StatusCode,
			Body:   truncate(string(body), maxErrorBodyLen),
		})
	}

	if err := json.Unmarshal(body, out); err != nil {
		// A 2xx response that is not valid JSON means the source data is
		// malformed, not that the request was flaky.
		return retry.Terminal(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// backoffDelay returns min(maxDelay, minDelay * 2^attempt).
func backoffDelay(attempt int, minDelay, maxDelay time.Duration) time.Duration {
	d := minDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
