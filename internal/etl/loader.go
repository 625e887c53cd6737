package etl

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kitsudo/anime-dashboard/internal/domain"
)

// Loader persists snapshots into the anime_snapshots table with idempotent
// upsert semantics against the (mal_id, snapshot_type, snapshot_date)
// uniqueness constraint.
type Loader struct {
	db        *sql.DB
	batchSize int
	log       zerolog.Logger
}

// NewLoader creates a Loader writing batches of batchSize records per
// transaction.
func NewLoader(db *sql.DB, batchSize int, log zerolog.Logger) *Loader {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Loader{
		db:        db,
		batchSize: batchSize,
		log:       log.With().Str("component", "loader").Logger(),
	}
}

// upsertSQL overwrites every data column on conflict: a snapshot row is
// replaced wholesale, never field-merged. The RETURNING clause yields the
// database's own insert-vs-update signal: a row whose xmax is zero was
// freshly inserted. Counting attempted writes instead of reading this
// signal is exactly the miscount this loader exists to prevent.
const upsertSQL = `
	INSERT INTO anime_snapshots (
		mal_id, url, title, title_english, title_japanese, title_synonyms, titles,
		type, source, episodes, status, airing, duration, rating,
		score, scored_by, rank, popularity, members, favorites, approved,
		season, year, aired, synopsis, background, images, trailer,
		genres, explicit_genres, themes, demographics, studios, producers, licensors,
		broadcast, snapshot_type, snapshot_date
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28,
		$29, $30, $31, $32, $33, $34, $35, $36, $37, $38
	)
	ON CONFLICT (mal_id, snapshot_type, snapshot_date)
	DO UPDATE SET
		url = EXCLUDED.url,
		title = EXCLUDED.title,
		title_english = EXCLUDED.title_english,
		title_japanese = EXCLUDED.title_japanese,
		title_synonyms = EXCLUDED.title_synonyms,
		titles = EXCLUDED.titles,
		type = EXCLUDED.type,
		source = EXCLUDED.source,
		episodes = EXCLUDED.episodes,
		status = EXCLUDED.status,
		airing = EXCLUDED.airing,
		duration = EXCLUDED.duration,
		rating = EXCLUDED.rating,
		score = EXCLUDED.score,
		scored_by = EXCLUDED.scored_by,
		rank = EXCLUDED.rank,
		popularity = EXCLUDED.popularity,
		members = EXCLUDED.members,
		favorites = EXCLUDED.favorites,
		approved = EXCLUDED.approved,
		season = EXCLUDED.season,
		year = EXCLUDED.year,
		aired = EXCLUDED.aired,
		synopsis = EXCLUDED.synopsis,
		background = EXCLUDED.background,
		images = EXCLUDED.images,
		trailer = EXCLUDED.trailer,
		genres = EXCLUDED.genres,
		explicit_genres = EXCLUDED.explicit_genres,
		themes = EXCLUDED.themes,
		demographics = EXCLUDED.demographics,
		studios = EXCLUDED.studios,
		producers = EXCLUDED.producers,
		licensors = EXCLUDED.licensors,
		broadcast = EXCLUDED.broadcast,
		updated_at = CURRENT_TIMESTAMP
	RETURNING (xmax = 0) AS inserted`

// Ping verifies database connectivity.
func (l *Loader) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// UpsertBatch persists the records in fixed-size batches, one transaction
// each. Per-record failures (constraint violations, bad data) are isolated
// with savepoints, counted as rejected, and never abort the rest of the
// batch. Cancellation between batches leaves committed batches intact.
func (l *Loader) UpsertBatch(ctx context.Context, records []domain.AnimeSnapshot) (domain.LoadStats, error) {
	var stats domain.LoadStats
	if len(records) == 0 {
		return stats, nil
	}

	for start := 0; start < len(records); start += l.batchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		end := start + l.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		batchStats := l.loadBatch(ctx, batch)
		stats.Add(batchStats)

		l.log.Info().Int("batch", start/l.batchSize+1).Int("size", len(batch)).
			Int("inserted", batchStats.Inserted).Int("updated", batchStats.Updated).
			Int("rejected", batchStats.Rejected).Msg("batch processed")
	}

	return stats, nil
}

func (l *Loader) loadBatch(ctx context.Context, batch []domain.AnimeSnapshot) domain.LoadStats {
	var stats domain.LoadStats

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		l.log.Error().Err(err).Msg("begin batch transaction failed")
		return rejectAll(batch, err)
	}

	for _, snap := range batch {
		if _, err := tx.ExecContext(ctx, "SAVEPOINT record_upsert"); err != nil {
			tx.Rollback()
			remaining := rejectAll(batch[stats.Inserted+stats.Updated+stats.Rejected:], err)
			stats.Add(remaining)
			return stats
		}

		var inserted bool
		err := tx.QueryRowContext(ctx, upsertSQL, upsertArgs(snap)...).Scan(&inserted)
		if err != nil {
			tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT record_upsert")
			stats.Rejected++
			stats.Errors = append(stats.Errors, domain.RecordError{
				MalID:  snap.MalID,
				Title:  snap.Title,
				Reason: err.Error(),
			})
			l.log.Warn().Int("mal_id", snap.MalID).Err(err).Msg("record upsert rejected")
			continue
		}
		tx.ExecContext(ctx, "RELEASE SAVEPOINT record_upsert")

		if inserted {
			stats.Inserted++
		} else {
			stats.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		l.log.Error().Err(err).Msg("batch commit failed")
		return rejectAll(batch, err)
	}
	return stats
}

func rejectAll(batch []domain.AnimeSnapshot, cause error) domain.LoadStats {
	stats := domain.LoadStats{Rejected: len(batch)}
	for _, snap := range batch {
		stats.Errors = append(stats.Errors, domain.RecordError{
			MalID:  snap.MalID,
			Title:  snap.Title,
			Reason: cause.Error(),
		})
	}
	return stats
}

func upsertArgs(s domain.AnimeSnapshot) []interface{} {
	return []interface{}{
		s.MalID,
		nullStr(s.URL),
		s.Title,
		nullStr(s.TitleEnglish),
		nullStr(s.TitleJapanese),
		jsonArg(marshalStrings(s.TitleSynonyms)),
		jsonArg(s.Titles),
		nullStr(s.Type),
		nullStr(s.Source),
		nullInt(s.Episodes),
		nullStr(s.Status),
		s.Airing,
		nullStr(s.Duration),
		nullStr(s.Rating),
		nullFloat(s.Score),
		nullInt(s.ScoredBy),
		nullInt(s.Rank),
		nullInt(s.Popularity),
		nullInt(s.Members),
		nullInt(s.Favorites),
		s.Approved,
		nullStr(s.Season),
		nullInt(s.Year),
		jsonArg(s.Aired),
		nullStr(s.Synopsis),
		nullStr(s.Background),
		jsonArg(s.Images),
		jsonArg(s.Trailer),
		jsonArg(s.Genres),
		jsonArg(s.ExplicitGenres),
		jsonArg(s.Themes),
		jsonArg(s.Demographics),
		jsonArg(s.Studios),
		jsonArg(s.Producers),
		jsonArg(s.Licensors),
		jsonArg(s.Broadcast),
		string(s.SnapshotType),
		s.SnapshotDate,
	}
}

func marshalStrings(ss []string) domain.Blob {
	if ss == nil {
		return nil
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return nil
	}
	return b
}

func jsonArg(b domain.Blob) interface{} {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// LatestSnapshotDate returns the most recent snapshot date stored for the
// given category, or the zero time when none exists.
func (l *Loader) LatestSnapshotDate(ctx context.Context, snapshotType domain.SnapshotType) (time.Time, error) {
	var latest sql.NullTime
	err := l.db.QueryRowContext(ctx,
		`SELECT MAX(snapshot_date) FROM anime_snapshots WHERE snapshot_type = $1`,
		string(snapshotType),
	).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("latest snapshot date: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return latest.Time, nil
}

// CleanupOldSnapshots deletes snapshots of the given category older than
// keepDays and returns the number of rows removed. The pipeline never calls
// this; retention is an operator decision.
func (l *Loader) CleanupOldSnapshots(ctx context.Context, snapshotType domain.SnapshotType, keepDays int) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM anime_snapshots
		 WHERE snapshot_type = $1 AND snapshot_date < CURRENT_DATE - $2 * INTERVAL '1 day'`,
		string(snapshotType), keepDays,
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup snapshots: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup snapshots: %w", err)
	}
	l.log.Info().Str("snapshot_type", string(snapshotType)).
		Int64("deleted", deleted).Msg("cleaned up old snapshots")
	return deleted, nil
}
