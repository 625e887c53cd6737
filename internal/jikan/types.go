// Package jikan is the extraction side of the ETL pipeline: a rate-limited,
// retrying client for the Jikan anime search API.
package jikan

import "encoding/json"

// Anime is one raw record from the Jikan search endpoint. Scalar fields are
// decoded; free-form nested attributes are kept as raw JSON so a malformed
// blob in one record cannot fail the whole page; the transformer validates
// their shape per record.
type Anime struct {
	MalID         int      `json:"mal_id"`
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	TitleEnglish  string   `json:"title_english"`
	TitleJapanese string   `json:"title_japanese"`
	TitleSynonyms []string `json:"title_synonyms"`

	Type     string `json:"type"`
	Source   string `json:"source"`
	Episodes *int   `json:"episodes"`
	Status   string `json:"status"`
	Airing   bool   `json:"airing"`
	Duration string `json:"duration"`
	Rating   string `json:"rating"`

	Score      *float64 `json:"score"`
	ScoredBy   *int     `json:"scored_by"`
	Rank       *int     `json:"rank"`
	Popularity *int     `json:"popularity"`
	Members    *int     `json:"members"`
	Favorites  *int     `json:"favorites"`
	Approved   bool     `json:"approved"`

	Season string `json:"season"`
	Year   *int   `json:"year"`

	Synopsis   string `json:"synopsis"`
	Background string `json:"background"`

	Titles         json.RawMessage `json:"titles"`
	Aired          json.RawMessage `json:"aired"`
	Images         json.RawMessage `json:"images"`
	Trailer        json.RawMessage `json:"trailer"`
	Broadcast      json.RawMessage `json:"broadcast"`
	Genres         json.RawMessage `json:"genres"`
	ExplicitGenres json.RawMessage `json:"explicit_genres"`
	Themes         json.RawMessage `json:"themes"`
	Demographics   json.RawMessage `json:"demographics"`
	Studios        json.RawMessage `json:"studios"`
	Producers      json.RawMessage `json:"producers"`
	Licensors      json.RawMessage `json:"licensors"`
}

// Pagination is the Jikan pagination envelope.
type Pagination struct {
	LastVisiblePage int             `json:"last_visible_page"`
	HasNextPage     bool            `json:"has_next_page"`
	CurrentPage     int             `json:"current_page"`
	Items           PaginationItems `json:"items"`
}

// PaginationItems carries per-page and total record counts.
type PaginationItems struct {
	Count   int `json:"count"`
	Total   int `json:"total"`
	PerPage int `json:"per_page"`
}

// SearchPage is one page of the search endpoint response.
type SearchPage struct {
	Data       []Anime    `json:"data"`
	Pagination Pagination `json:"pagination"`
}
