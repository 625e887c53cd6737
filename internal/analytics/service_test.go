package analytics

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitsudo/anime-dashboard/internal/domain"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cache := NewCache(rdb, nil, zerolog.Nop())
	return NewService(db, cache, zerolog.Nop()), mock, mr
}

func TestOverviewQueriesAndCaches(t *testing.T) {
	svc, mock, mr := newTestService(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count", "distinct", "types", "latest", "avg"}).
			AddRow(200, 95, 4, "2026-08-24", 7.85))

	stats, err := svc.Overview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200, stats.TotalSnapshots)
	assert.Equal(t, 95, stats.DistinctAnime)
	require.NotNil(t, stats.LatestSnapshotDate)
	assert.Equal(t, "2026-08-24", *stats.LatestSnapshotDate)
	require.NotNil(t, stats.AverageScore)
	assert.InDelta(t, 7.85, *stats.AverageScore, 0.001)

	// Second call is served from cache; no second query expectation exists.
	cached, err := svc.Overview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stats.TotalSnapshots, cached.TotalSnapshots)
	assert.True(t, mr.Exists("analytics:overview"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOverviewEmptyStore(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count", "distinct", "types", "latest", "avg"}).
			AddRow(0, 0, 0, nil, nil))

	stats, err := svc.Overview(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalSnapshots)
	assert.Nil(t, stats.LatestSnapshotDate)
	assert.Nil(t, stats.AverageScore)
}

func TestTopRated(t *testing.T) {
	svc, mock, _ := newTestService(t)

	score := 9.07
	rows := sqlmock.NewRows([]string{"mal_id", "title", "score", "rank", "members", "type", "episodes"}).
		AddRow(9253, "Steins;Gate", score, 1, 2500000, "TV", 24).
		AddRow(5114, "Fullmetal Alchemist", 9.05, 2, 3100000, "TV", 64)
	mock.ExpectQuery("SELECT mal_id, title, score").
		WithArgs("top", 10).
		WillReturnRows(rows)

	entries, err := svc.TopRated(context.Background(), domain.SnapshotTop, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 9253, entries[0].MalID)
	assert.InDelta(t, 9.07, *entries[0].Score, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopRatedClampsLimit(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectQuery("SELECT mal_id, title, score").
		WithArgs("top", 25).
		WillReturnRows(sqlmock.NewRows([]string{"mal_id", "title", "score", "rank", "members", "type", "episodes"}))

	_, err := svc.TopRated(context.Background(), domain.SnapshotTop, -1)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenreDistribution(t *testing.T) {
	svc, mock, _ := newTestService(t)

	rows := sqlmock.NewRows([]string{"genre", "titles"}).
		AddRow("Action", 40).
		AddRow("Drama", 31)
	mock.ExpectQuery("jsonb_array_elements").WillReturnRows(rows)

	counts, err := svc.GenreDistribution(context.Background())
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, GenreCount{Genre: "Action", Count: 40}, counts[0])
}

func TestSeasonalTrends(t *testing.T) {
	svc, mock, _ := newTestService(t)

	rows := sqlmock.NewRows([]string{"year", "season", "titles", "avg"}).
		AddRow(2026, "summer", 18, 7.4).
		AddRow(2026, "spring", 22, 7.1)
	mock.ExpectQuery("GROUP BY year, season").WillReturnRows(rows)

	trends, err := svc.SeasonalTrends(context.Background())
	require.NoError(t, err)
	require.Len(t, trends, 2)
	assert.Equal(t, "summer", trends[0].Season)
	assert.Equal(t, 18, trends[0].TitleCount)
}

func TestCacheDegradesGracefully(t *testing.T) {
	svc, mock, mr := newTestService(t)

	// Kill Redis; every query should fall through to the database.
	mr.Close()

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count", "distinct", "types", "latest", "avg"}).
			AddRow(5, 5, 1, "2026-08-24", 8.0))

	stats, err := svc.Overview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalSnapshots)
	assert.NoError(t, mock.ExpectationsWereMet())
}
