package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitsudo/anime-dashboard/internal/analytics"
)

func newTestRouter(t *testing.T) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cache := analytics.NewCache(nil, nil, zerolog.Nop())
	svc := analytics.NewService(db, cache, zerolog.Nop())
	h := NewHandlers(svc, db, nil, zerolog.Nop())
	return SetupRoutes(h, nil), mock
}

func doGet(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthDegradedWithoutCache(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doGet(t, router, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "up", body.Components["database"])
	assert.Equal(t, "disabled", body.Components["cache"])
}

func TestOverviewEndpoint(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count", "distinct", "types", "latest", "avg"}).
			AddRow(150, 80, 4, "2026-08-24", 7.9))

	rec := doGet(t, router, "/api/analytics/stats/overview")
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats analytics.OverviewStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 150, stats.TotalSnapshots)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOverviewEndpointQueryFailure(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("relation does not exist"))

	rec := doGet(t, router, "/api/analytics/stats/overview")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestTopRatedEndpoint(t *testing.T) {
	router, mock := newTestRouter(t)

	rows := sqlmock.NewRows([]string{"mal_id", "title", "score", "rank", "members", "type", "episodes"}).
		AddRow(9253, "Steins;Gate", 9.07, 1, 2500000, "TV", 24)
	mock.ExpectQuery("SELECT mal_id, title, score").
		WithArgs("seasonal_current", 5).
		WillReturnRows(rows)

	rec := doGet(t, router, "/api/analytics/anime/top-rated?type=seasonal_current&limit=5")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		SnapshotType string                    `json:"snapshot_type"`
		Count        int                       `json:"count"`
		Data         []analytics.TopRatedEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "seasonal_current", body.SnapshotType)
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Data, 1)
	assert.Equal(t, 9253, body.Data[0].MalID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopRatedEndpointRejectsBadParams(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doGet(t, router, "/api/analytics/anime/top-rated?type=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doGet(t, router, "/api/analytics/anime/top-rated?limit=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doGet(t, router, "/api/analytics/anime/top-rated?limit=half")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenreDistributionEndpoint(t *testing.T) {
	router, mock := newTestRouter(t)

	rows := sqlmock.NewRows([]string{"genre", "titles"}).AddRow("Action", 12)
	mock.ExpectQuery("jsonb_array_elements").WillReturnRows(rows)

	rec := doGet(t, router, "/api/analytics/anime/genre-distribution")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Action")
}

func TestSeasonalTrendsEndpoint(t *testing.T) {
	router, mock := newTestRouter(t)

	rows := sqlmock.NewRows([]string{"year", "season", "titles", "avg"}).
		AddRow(2026, "summer", 10, 7.2)
	mock.ExpectQuery("GROUP BY year, season").WillReturnRows(rows)

	rec := doGet(t, router, "/api/analytics/trends/seasonal")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "summer")
}

func TestUnknownRoute(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doGet(t, router, "/api/analytics/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
