package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kitsudo/anime-dashboard/internal/domain"
)

// Cache TTLs per query family. Overview moves fastest, genre distribution
// slowest.
const (
	overviewTTL = 5 * time.Minute
	topRatedTTL = 10 * time.Minute
	genresTTL   = 30 * time.Minute
	trendsTTL   = 15 * time.Minute
)

// OverviewStats summarizes the latest state of the snapshot store.
type OverviewStats struct {
	TotalSnapshots     int       `json:"total_snapshots"`
	DistinctAnime      int       `json:"distinct_anime"`
	SnapshotTypes      int       `json:"snapshot_types"`
	LatestSnapshotDate *string   `json:"latest_snapshot_date"`
	AverageScore       *float64  `json:"average_score"`
	GeneratedAt        time.Time `json:"generated_at"`
}

// TopRatedEntry is one row of the top-rated ranking.
type TopRatedEntry struct {
	MalID    int      `json:"mal_id"`
	Title    string   `json:"title"`
	Score    *float64 `json:"score"`
	Rank     *int     `json:"rank"`
	Members  *int     `json:"members"`
	Type     string   `json:"type,omitempty"`
	Episodes *int     `json:"episodes"`
}

// GenreCount is one genre with the number of distinct titles carrying it.
type GenreCount struct {
	Genre string `json:"genre"`
	Count int    `json:"count"`
}

// SeasonalTrend aggregates scores for one (year, season) bucket.
type SeasonalTrend struct {
	Year         int      `json:"year"`
	Season       string   `json:"season"`
	TitleCount   int      `json:"title_count"`
	AverageScore *float64 `json:"average_score"`
}

// Service answers aggregate queries over the snapshot store. Every query
// reads the most recent snapshot date for its category so dashboards always
// reflect the latest completed pipeline run.
type Service struct {
	db    *sql.DB
	cache *Cache
	log   zerolog.Logger
}

// NewService creates an analytics Service.
func NewService(db *sql.DB, cache *Cache, log zerolog.Logger) *Service {
	return &Service{
		db:    db,
		cache: cache,
		log:   log.With().Str("component", "analytics").Logger(),
	}
}

// Overview returns store-wide summary statistics.
func (s *Service) Overview(ctx context.Context) (*OverviewStats, error) {
	const key = "analytics:overview"
	var cached OverviewStats
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	stats := OverviewStats{GeneratedAt: time.Now().UTC()}
	var latest sql.NullString
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(DISTINCT mal_id),
		       COUNT(DISTINCT snapshot_type),
		       TO_CHAR(MAX(snapshot_date), 'YYYY-MM-DD'),
		       ROUND(AVG(score)::numeric, 2)
		FROM anime_snapshots`,
	).Scan(&stats.TotalSnapshots, &stats.DistinctAnime, &stats.SnapshotTypes, &latest, &avg)
	if err != nil {
		return nil, fmt.Errorf("overview stats: %w", err)
	}
	if latest.Valid {
		stats.LatestSnapshotDate = &latest.String
	}
	if avg.Valid {
		stats.AverageScore = &avg.Float64
	}

	s.cache.Set(ctx, key, &stats, overviewTTL)
	return &stats, nil
}

// TopRated returns the highest-scored titles from the most recent snapshot
// of the given category.
func (s *Service) TopRated(ctx context.Context, snapshotType domain.SnapshotType, limit int) ([]TopRatedEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	key := fmt.Sprintf("analytics:top_rated:%s:%d", snapshotType, limit)
	var cached []TopRatedEntry
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT mal_id, title, score, rank, members, COALESCE(type, ''), episodes
		FROM anime_snapshots
		WHERE snapshot_type = $1
		  AND snapshot_date = (
			SELECT MAX(snapshot_date) FROM anime_snapshots WHERE snapshot_type = $1
		  )
		  AND score IS NOT NULL
		ORDER BY score DESC, members DESC NULLS LAST
		LIMIT $2`,
		string(snapshotType), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top rated: %w", err)
	}
	defer rows.Close()

	entries := make([]TopRatedEntry, 0, limit)
	for rows.Next() {
		var e TopRatedEntry
		if err := rows.Scan(&e.MalID, &e.Title, &e.Score, &e.Rank, &e.Members, &e.Type, &e.Episodes); err != nil {
			return nil, fmt.Errorf("top rated scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top rated rows: %w", err)
	}

	s.cache.Set(ctx, key, entries, topRatedTTL)
	return entries, nil
}

// GenreDistribution counts distinct titles per genre across the most recent
// snapshot of each category.
func (s *Service) GenreDistribution(ctx context.Context) ([]GenreCount, error) {
	const key = "analytics:genre_distribution"
	var cached []GenreCount
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT g.value->>'name' AS genre, COUNT(DISTINCT s.mal_id) AS titles
		FROM anime_snapshots s
		CROSS JOIN LATERAL jsonb_array_elements(s.genres) AS g(value)
		WHERE s.snapshot_date = (SELECT MAX(snapshot_date) FROM anime_snapshots)
		  AND g.value->>'name' IS NOT NULL
		GROUP BY g.value->>'name'
		ORDER BY titles DESC, genre ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("genre distribution: %w", err)
	}
	defer rows.Close()

	var counts []GenreCount
	for rows.Next() {
		var gc GenreCount
		if err := rows.Scan(&gc.Genre, &gc.Count); err != nil {
			return nil, fmt.Errorf("genre distribution scan: %w", err)
		}
		counts = append(counts, gc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("genre distribution rows: %w", err)
	}

	s.cache.Set(ctx, key, counts, genresTTL)
	return counts, nil
}

// SeasonalTrends aggregates average scores by (year, season) over the most
// recent seasonal snapshots.
func (s *Service) SeasonalTrends(ctx context.Context) ([]SeasonalTrend, error) {
	const key = "analytics:seasonal_trends"
	var cached []SeasonalTrend
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT year, season, COUNT(DISTINCT mal_id), ROUND(AVG(score)::numeric, 2)
		FROM anime_snapshots
		WHERE year IS NOT NULL AND season IS NOT NULL AND season <> ''
		GROUP BY year, season
		ORDER BY year DESC,
		         CASE season
		           WHEN 'winter' THEN 1 WHEN 'spring' THEN 2
		           WHEN 'summer' THEN 3 WHEN 'fall' THEN 4 ELSE 5
		         END`,
	)
	if err != nil {
		return nil, fmt.Errorf("seasonal trends: %w", err)
	}
	defer rows.Close()

	var trends []SeasonalTrend
	for rows.Next() {
		var t SeasonalTrend
		if err := rows.Scan(&t.Year, &t.Season, &t.TitleCount, &t.AverageScore); err != nil {
			return nil, fmt.Errorf("seasonal trends scan: %w", err)
		}
		trends = append(trends, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("seasonal trends rows: %w", err)
	}

	s.cache.Set(ctx, key, trends, trendsTTL)
	return trends, nil
}
