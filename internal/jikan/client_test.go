package jikan

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitsudo/anime-dashboard/internal/config"
)

func testJikanConfig(baseURL string) config.JikanConfig {
	return config.JikanConfig{
		BaseURL:           baseURL,
		RateLimitInterval: 0.001,
		MaxRetries:        3,
		BackoffBaseMillis: 1,
		TimeoutSeconds:    5,
	}
}

// newTestClient builds a client against the test server with sleeps recorded
// instead of slept.
func newTestClient(server *httptest.Server, cfg config.JikanConfig) (*Client, *[]time.Duration) {
	client := NewClient(cfg, NewRateLimiter(time.Millisecond), zerolog.Nop())
	var slept []time.Duration
	client.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return client, &slept
}

func pageBody(t *testing.T, ids []int, hasNext bool) []byte {
	t.Helper()
	page := SearchPage{Pagination: Pagination{HasNextPage: hasNext}}
	for _, id := range ids {
		page.Data = append(page.Data, Anime{MalID: id, Title: "title"})
	}
	body, err := json.Marshal(page)
	require.NoError(t, err)
	return body
}

func TestFetchPageRetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(pageBody(t, []int{1, 2}, false))
	}))
	defer server.Close()

	client, slept := newTestClient(server, testJikanConfig(server.URL))
	var retries int
	client.OnRetry(func() { retries++ })

	page, err := client.FetchPage(context.Background(), nil, 1)
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Len(t, *slept, 2, "one backoff sleep per retry")
	assert.Equal(t, 2, retries, "retry callback fires once per attempt beyond the first")
}

func TestFetchPageHonorsRetryAfter(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(pageBody(t, []int{1}, false))
	}))
	defer server.Close()

	client, slept := newTestClient(server, testJikanConfig(server.URL))

	_, err := client.FetchPage(context.Background(), nil, 1)
	require.NoError(t, err)
	require.Len(t, *slept, 1)
	assert.Equal(t, 5*time.Second, (*slept)[0], "server hint overrides computed backoff")
}

func TestFetchPageNonRetryableStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	client, _ := newTestClient(server, testJikanConfig(server.URL))

	_, err := client.FetchPage(context.Background(), nil, 1)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "4xx other than 429 must not retry")
}

func TestFetchPageMalformedBodyFailsImmediately(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"data": "not a list"`))
	}))
	defer server.Close()

	client, _ := newTestClient(server, testJikanConfig(server.URL))

	_, err := client.FetchPage(context.Background(), nil, 1)
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestFetchPageExhaustsAttempts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, _ := newTestClient(server, testJikanConfig(server.URL))

	_, err := client.FetchPage(context.Background(), nil, 1)
	var exhausted *FetchExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)

	var se *StatusError
	assert.True(t, errors.As(exhausted.Err, &se), "exhaustion wraps the last cause")
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestFetchAllWalksPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			w.Write(pageBody(t, []int{1, 2, 3}, true))
		case "2":
			w.Write(pageBody(t, []int{4, 5}, false))
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))
	defer server.Close()

	client, _ := newTestClient(server, testJikanConfig(server.URL))

	records, pages, err := client.FetchAll(context.Background(), map[string]string{"order_by": "score"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
	assert.Len(t, records, 5)
}

func TestFetchAllStopsAtMaxPages(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write(pageBody(t, []int{1}, true))
	}))
	defer server.Close()

	client, _ := newTestClient(server, testJikanConfig(server.URL))

	records, pages, err := client.FetchAll(context.Background(), nil, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
	assert.Len(t, records, 2)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestFetchAllKeepsPartialResultsOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			w.Write(pageBody(t, []int{1, 2}, true))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, _ := newTestClient(server, testJikanConfig(server.URL))

	records, pages, err := client.FetchAll(context.Background(), nil, 0)
	var exhausted *FetchExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Page)
	assert.Equal(t, 1, pages)
	assert.Len(t, records, 2, "page one's records survive page two's failure")
}
