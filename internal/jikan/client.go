package jikan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/kitsudo/anime-dashboard/internal/config"
)

// hardPageCap bounds pagination for any single query regardless of job
// configuration, as a guard against runaway has_next_page loops.
const hardPageCap = 100

// sleepFunc waits for d or until ctx is cancelled. Injected so retry timing
// can be tested without real delays.
type sleepFunc func(ctx context.Context, d time.Duration) error

func realSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Client fetches paginated anime search results. Every network call,
// including each retry, first passes through the shared rate limiter.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *RateLimiter
	policy      backoffPolicy
	maxAttempts int
	sleep       sleepFunc
	onRetry     func()
	log         zerolog.Logger
}

// NewClient creates a Jikan API client. The limiter is required and must be
// the single process-wide instance so concurrent jobs share one ceiling.
func NewClient(cfg config.JikanConfig, limiter *RateLimiter, log zerolog.Logger) *Client {
	return &Client{
		baseURL:     cfg.BaseURL,
		httpClient:  &http.Client{Timeout: cfg.Timeout()},
		limiter:     limiter,
		policy:      backoffPolicy{base: cfg.BackoffBase(), max: 30 * time.Second},
		maxAttempts: cfg.MaxRetries,
		sleep:       realSleep,
		log:         log.With().Str("component", "jikan").Logger(),
	}
}

// FetchPage fetches one page of search results for the given query params.
// Transient failures (network errors, timeouts, 429, 5xx) are retried with
// exponential backoff; a 429 Retry-After header overrides the computed delay
// for that attempt. Other 4xx responses and malformed bodies fail
// immediately. After the attempt ceiling the error is a *FetchExhaustedError
// wrapping the last cause.
func (c *Client) FetchPage(ctx context.Context, params map[string]string, page int) (*SearchPage, error) {
	var lastErr error
	var hint time.Duration

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			if c.onRetry != nil {
				c.onRetry()
			}
			d := c.policy.delay(attempt-1, hint)
			c.log.Warn().Int("page", page).Int("attempt", attempt).
				Dur("wait", d).Err(lastErr).Msg("retrying page fetch")
			if err := c.sleep(ctx, d); err != nil {
				return nil, err
			}
		}
		hint = 0

		// Rate limit applies to retries too.
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}

		result, err := c.doSearch(ctx, params, page)
		if err == nil {
			return result, nil
		}

		if ctx.Err() != nil {
			return nil, err
		}

		if se, ok := err.(*StatusError); ok {
			if !se.Retryable() {
				return nil, se
			}
			if se.RetryAfter > 0 {
				hint = time.Duration(se.RetryAfter) * time.Second
			}
		} else if !isNetworkError(err) {
			// Malformed response shape or request construction failure.
			return nil, err
		}
		lastErr = err
	}

	return nil, &FetchExhaustedError{Page: page, Attempts: c.maxAttempts, Err: lastErr}
}

// OnRetry registers a callback fired once per retry attempt, before the
// backoff sleep. Used to count retries in the process metrics.
func (c *Client) OnRetry(fn func()) {
	c.onRetry = fn
}

// netErr marks errors from the transport layer so the retry loop can tell
// them apart from decode failures.
type netErr struct{ err error }

func (e *netErr) Error() string { return e.err.Error() }
func (e *netErr) Unwrap() error { return e.err }

func isNetworkError(err error) bool {
	_, ok := err.(*netErr)
	return ok
}

func (c *Client) doSearch(ctx context.Context, params map[string]string, page int) (*SearchPage, error) {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set("page", strconv.Itoa(page))
	fullURL := c.baseURL + "/anime?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "anime-dashboard-etl/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &netErr{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &netErr{err: err}
	}

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		if resp.StatusCode == http.StatusTooManyRequests {
			if ra, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				se.RetryAfter = ra
			}
		}
		return nil, se
	}

	var result SearchPage
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}
	return &result, nil
}

// FetchAll walks the query's pages in order until has_next_page is false,
// the job's maxPages (0 = unbounded), or the hard safety cap. On a fetch
// failure it returns the records collected so far together with the error,
// so partial results are never discarded. Duplicate entities across pages
// are passed through; the loader's keyed upsert collapses them.
func (c *Client) FetchAll(ctx context.Context, params map[string]string, maxPages int) ([]Anime, int, error) {
	limit := hardPageCap
	if maxPages > 0 && maxPages < limit {
		limit = maxPages
	}

	var all []Anime
	pages := 0

	for page := 1; page <= limit; page++ {
		if err := ctx.Err(); err != nil {
			return all, pages, err
		}

		result, err := c.FetchPage(ctx, params, page)
		if err != nil {
			return all, pages, err
		}
		pages++
		all = append(all, result.Data...)

		c.log.Info().Int("page", page).
			Int("page_records", len(result.Data)).
			Int("total_records", len(all)).
			Bool("has_next", result.Pagination.HasNextPage).
			Msg("fetched page")

		if !result.Pagination.HasNextPage {
			break
		}
	}

	return all, pages, nil
}
