// Package etl implements the transform and load stages of the snapshot
// pipeline and the orchestrator that runs named jobs end to end.
package etl

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/kitsudo/anime-dashboard/internal/domain"
	"github.com/kitsudo/anime-dashboard/internal/jikan"
)

// maxTextLen caps synopsis/background length to keep snapshot rows bounded.
// Truncation is logged, never silent.
const maxTextLen = 5000

// ValidationError describes why a single raw record was rejected. Rejection
// is always local to the record; a batch never aborts because of one.
type ValidationError struct {
	MalID  int    `json:"mal_id"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record %d: field %s: %s", e.MalID, e.Field, e.Reason)
}

// Transformer converts raw API records into canonical snapshots.
type Transformer struct {
	log zerolog.Logger
}

// NewTransformer creates a Transformer.
func NewTransformer(log zerolog.Logger) *Transformer {
	return &Transformer{log: log.With().Str("component", "transformer").Logger()}
}

// Transform validates and normalizes one raw record. On success it returns
// the snapshot plus any field-level warnings (values coerced to null or
// cleaned); on failure it returns a ValidationError naming the offending
// field. Only missing identity fields (entity id, title) reject a record;
// bad optional values are coerced with a warning instead.
func (t *Transformer) Transform(raw jikan.Anime, snapshotType domain.SnapshotType, snapshotDate time.Time) (*domain.AnimeSnapshot, []string, *ValidationError) {
	if raw.MalID <= 0 {
		return nil, nil, &ValidationError{MalID: raw.MalID, Field: "mal_id", Reason: "missing or non-positive entity id"}
	}

	title := cleanText(raw.Title)
	if title == "" {
		return nil, nil, &ValidationError{MalID: raw.MalID, Field: "title", Reason: "missing or empty title"}
	}

	var warnings []string
	warn := func(format string, args ...interface{}) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	score := raw.Score
	if score != nil {
		if *score < 0 || *score > 10 {
			warn("score %v out of range [0,10], set to null", *score)
			score = nil
		} else {
			rounded := math.Round(*score*100) / 100
			score = &rounded
		}
	}

	snap := &domain.AnimeSnapshot{
		MalID:         raw.MalID,
		URL:           raw.URL,
		Title:         title,
		TitleEnglish:  cleanText(raw.TitleEnglish),
		TitleJapanese: cleanText(raw.TitleJapanese),
		TitleSynonyms: raw.TitleSynonyms,
		Type:          raw.Type,
		Source:        raw.Source,
		Episodes:      nonNegative(raw.Episodes, "episodes", warn),
		Status:        raw.Status,
		Airing:        raw.Airing,
		Duration:      raw.Duration,
		Rating:        raw.Rating,
		Score:         score,
		ScoredBy:      nonNegative(raw.ScoredBy, "scored_by", warn),
		Rank:          nonNegative(raw.Rank, "rank", warn),
		Popularity:    nonNegative(raw.Popularity, "popularity", warn),
		Members:       nonNegative(raw.Members, "members", warn),
		Favorites:     nonNegative(raw.Favorites, "favorites", warn),
		Approved:      raw.Approved,
		Season:        raw.Season,
		Year:          raw.Year,
		Synopsis:      truncate(cleanText(raw.Synopsis), warn, "synopsis"),
		Background:    truncate(cleanText(raw.Background), warn, "background"),

		Titles:         coerceList(raw.Titles, "titles", warn),
		Aired:          coerceObject(raw.Aired, "aired", warn),
		Images:         coerceObject(raw.Images, "images", warn),
		Trailer:        coerceObject(raw.Trailer, "trailer", warn),
		Broadcast:      coerceObject(raw.Broadcast, "broadcast", warn),
		Genres:         coerceList(raw.Genres, "genres", warn),
		ExplicitGenres: coerceList(raw.ExplicitGenres, "explicit_genres", warn),
		Themes:         coerceList(raw.Themes, "themes", warn),
		Demographics:   coerceList(raw.Demographics, "demographics", warn),
		Studios:        coerceList(raw.Studios, "studios", warn),
		Producers:      coerceList(raw.Producers, "producers", warn),
		Licensors:      coerceList(raw.Licensors, "licensors", warn),

		SnapshotType: snapshotType,
		SnapshotDate: snapshotDate,
	}

	return snap, warnings, nil
}

// TransformBatch processes raw records in order and splits them into
// accepted snapshots and per-record validation errors. One invalid record
// never aborts the batch.
func (t *Transformer) TransformBatch(records []jikan.Anime, snapshotType domain.SnapshotType, snapshotDate time.Time) ([]domain.AnimeSnapshot, []ValidationError) {
	snapshots := make([]domain.AnimeSnapshot, 0, len(records))
	var verrs []ValidationError

	for _, raw := range records {
		snap, warnings, verr := t.Transform(raw, snapshotType, snapshotDate)
		if verr != nil {
			verrs = append(verrs, *verr)
			t.log.Warn().Int("mal_id", verr.MalID).Str("field", verr.Field).
				Str("reason", verr.Reason).Msg("record rejected")
			continue
		}
		for _, w := range warnings {
			t.log.Warn().Int("mal_id", raw.MalID).Str("warning", w).Msg("field coerced")
		}
		snapshots = append(snapshots, *snap)
	}

	t.log.Info().Int("total", len(records)).Int("accepted", len(snapshots)).
		Int("rejected", len(verrs)).Str("snapshot_type", string(snapshotType)).
		Msg("transform completed")

	return snapshots, verrs
}

// nonNegative returns the value unless it is negative, in which case it is
// coerced to null with a warning.
func nonNegative(v *int, field string, warn func(string, ...interface{})) *int {
	if v != nil && *v < 0 {
		warn("%s %d is negative, set to null", field, *v)
		return nil
	}
	return v
}

// cleanText trims, collapses whitespace runs, and strips control characters.
// It never truncates.
func cleanText(s string) string {
	if s == "" {
		return ""
	}
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// truncate caps s at maxTextLen bytes, cutting on a rune boundary so
// multi-byte text never becomes invalid UTF-8.
func truncate(s string, warn func(string, ...interface{}), field string) string {
	if len(s) <= maxTextLen {
		return s
	}
	cut := maxTextLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	warn("%s truncated from %d to %d bytes", field, len(s), cut+3)
	return s[:cut] + "..."
}

// coerceList validates that a nested attribute is a well-formed JSON array
// of objects. Malformed data becomes an empty list with a warning; the
// record itself is kept. Contents are otherwise opaque.
func coerceList(raw json.RawMessage, field string, warn func(string, ...interface{})) domain.Blob {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var items []map[string]interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		warn("%s is not a well-formed object list, coerced to empty", field)
		return domain.Blob(`[]`)
	}
	return domain.Blob(raw)
}

// coerceObject validates that a nested attribute is a well-formed JSON
// object, coercing malformed data to null with a warning.
func coerceObject(raw json.RawMessage, field string, warn func(string, ...interface{})) domain.Blob {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		warn("%s is not a well-formed object, coerced to null", field)
		return nil
	}
	return domain.Blob(raw)
}
