package domain

import (
	"encoding/json"
	"time"
)

// SnapshotType identifies the category a snapshot row belongs to.
type SnapshotType string

const (
	SnapshotTop             SnapshotType = "top"
	SnapshotSeasonalCurrent SnapshotType = "seasonal_current"
	SnapshotUpcoming        SnapshotType = "upcoming"
	SnapshotPopularMovies   SnapshotType = "popular_movies"
)

// Valid reports whether t is one of the known snapshot categories.
func (t SnapshotType) Valid() bool {
	switch t {
	case SnapshotTop, SnapshotSeasonalCurrent, SnapshotUpcoming, SnapshotPopularMovies:
		return true
	}
	return false
}

// Blob is an opaque structured attribute (genres, studios, images, ...)
// carried through the pipeline as raw JSON. The transformer guarantees it is
// syntactically well formed; nothing downstream interprets its contents, so
// upstream schema additions pass through unchanged.
type Blob = json.RawMessage

// AnimeSnapshot is the canonical transformed record persisted by the loader.
// The tuple (MalID, SnapshotType, SnapshotDate) is unique in storage; an
// upsert on the same key overwrites the row entirely.
type AnimeSnapshot struct {
	MalID         int      `json:"mal_id"`
	URL           string   `json:"url,omitempty"`
	Title         string   `json:"title"`
	TitleEnglish  string   `json:"title_english,omitempty"`
	TitleJapanese string   `json:"title_japanese,omitempty"`
	TitleSynonyms []string `json:"title_synonyms,omitempty"`
	Titles        Blob     `json:"titles,omitempty"`

	Type     string `json:"type,omitempty"`
	Source   string `json:"source,omitempty"`
	Episodes *int   `json:"episodes,omitempty"`
	Status   string `json:"status,omitempty"`
	Airing   bool   `json:"airing"`
	Duration string `json:"duration,omitempty"`
	Rating   string `json:"rating,omitempty"`

	Score      *float64 `json:"score,omitempty"`
	ScoredBy   *int     `json:"scored_by,omitempty"`
	Rank       *int     `json:"rank,omitempty"`
	Popularity *int     `json:"popularity,omitempty"`
	Members    *int     `json:"members,omitempty"`
	Favorites  *int     `json:"favorites,omitempty"`
	Approved   bool     `json:"approved"`

	Season string `json:"season,omitempty"`
	Year   *int   `json:"year,omitempty"`
	Aired  Blob   `json:"aired,omitempty"`

	Synopsis   string `json:"synopsis,omitempty"`
	Background string `json:"background,omitempty"`

	Images         Blob `json:"images,omitempty"`
	Trailer        Blob `json:"trailer,omitempty"`
	Genres         Blob `json:"genres,omitempty"`
	ExplicitGenres Blob `json:"explicit_genres,omitempty"`
	Themes         Blob `json:"themes,omitempty"`
	Demographics   Blob `json:"demographics,omitempty"`
	Studios        Blob `json:"studios,omitempty"`
	Producers      Blob `json:"producers,omitempty"`
	Licensors      Blob `json:"licensors,omitempty"`
	Broadcast      Blob `json:"broadcast,omitempty"`

	SnapshotType SnapshotType `json:"snapshot_type"`
	SnapshotDate time.Time    `json:"snapshot_date"` // calendar date of the batch, not insert time
}

// Key returns the logical uniqueness key of the snapshot.
func (s AnimeSnapshot) Key() SnapshotKey {
	return SnapshotKey{
		MalID:        s.MalID,
		SnapshotType: s.SnapshotType,
		SnapshotDate: s.SnapshotDate.Format("2006-01-02"),
	}
}

// SnapshotKey is the (entity, category, date) identity of a snapshot row.
type SnapshotKey struct {
	MalID        int
	SnapshotType SnapshotType
	SnapshotDate string
}
