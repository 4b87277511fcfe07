/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"strings"
	"time"
)

// CatalogTrack is one candidate in the selection catalog. Feature columns are
// stored in native units (0..1 ratios, LUFS-style dB loudness, BPM tempo);
// slider-space conversion happens in the scaler.
type CatalogTrack struct {
	ID     string `gorm:"type:uuid;primaryKey"`
	Title  string `gorm:"uniqueIndex:idx_catalog_title_artist"`
	Artist string `gorm:"uniqueIndex:idx_catalog_title_artist"`
	Genre  string `gorm:"index"`

	Energy           float64 `gorm:"index"`
	Valence          float64 `gorm:"index"`
	LoudnessDB       float64
	Speechiness      float64
	Acousticness     float64
	Instrumentalness float64
	Liveness         float64
	TempoBPM         float64

	// ProbabilityFactor biases sampling; 1.0 is neutral. Weight overrides
	// multiply on top of it at query time.
	ProbabilityFactor float64 `gorm:"default:1"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OverrideScope enumerates weight override targets.
type OverrideScope string

const (
	ScopeGenre  OverrideScope = "genre"
	ScopeArtist OverrideScope = "artist"
	ScopeTrack  OverrideScope = "track"
)

// WeightOverride multiplies the sampling weight of every track it matches.
// Key is stored normalized (see NormalizeMatchText).
type WeightOverride struct {
	ID        string        `gorm:"type:uuid;primaryKey"`
	Scope     OverrideScope `gorm:"type:varchar(16);index:idx_override_scope_key"`
	Key       string        `gorm:"index:idx_override_scope_key"`
	Factor    float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PlayHistoryRecord tracks plays per normalized (title, artist) pair with
// rolling period counters. NormKey is the upsert key.
type PlayHistoryRecord struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	NormKey    string `gorm:"uniqueIndex"`
	NormArtist string `gorm:"index"`
	Title      string `gorm:"index"`
	Artist     string `gorm:"index"`

	// LastQuery is the search string last used to queue this track.
	LastQuery string

	FirstPlayedAt time.Time
	LastPlayedAt  time.Time `gorm:"index"`

	PlaysToday   int
	PlaysWeek    int
	PlaysMonth   int
	PlaysYear    int
	PlaysAllTime int

	// Period boundary bookkeeping: the start of the period each rolling
	// counter was last reset for.
	DayResetAt   time.Time
	WeekResetAt  time.Time
	MonthResetAt time.Time
	YearResetAt  time.Time

	// Targets in effect when the track was queued, for later analysis.
	LastTargets SliderTargets `gorm:"serializer:json"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatMessage is one line of operator/assistant chat the engine may react to.
type ChatMessage struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	Sender    string    `gorm:"index"`
	Content   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}

// SliderTargets is the 8-slider target vector, each value in [0,100].
type SliderTargets struct {
	Energy           int `json:"energy"`
	Valence          int `json:"valence"`
	Loudness         int `json:"loudness"`
	Speechiness      int `json:"speechiness"`
	Acousticness     int `json:"acousticness"`
	Instrumentalness int `json:"instrumentalness"`
	Liveness         int `json:"liveness"`
	Tempo            int `json:"tempo"`
}

// Clamped returns a copy with every slider forced into [0,100].
func (t SliderTargets) Clamped() SliderTargets {
	clamp := func(v int) int {
		if v < 0 {
			return 0
		}
		if v > 100 {
			return 100
		}
		return v
	}
	return SliderTargets{
		Energy:           clamp(t.Energy),
		Valence:          clamp(t.Valence),
		Loudness:         clamp(t.Loudness),
		Speechiness:      clamp(t.Speechiness),
		Acousticness:     clamp(t.Acousticness),
		Instrumentalness: clamp(t.Instrumentalness),
		Liveness:         clamp(t.Liveness),
		Tempo:            clamp(t.Tempo),
	}
}

// MusicFilters restrict the candidate pool before sampling.
type MusicFilters struct {
	IncludeGenres   []string `json:"include_genres,omitempty"`
	ExcludeGenres   []string `json:"exclude_genres,omitempty"`
	IncludeArtists  []string `json:"include_artists,omitempty"`
	ExcludeArtists  []string `json:"exclude_artists,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
	ExcludeKeywords []string `json:"exclude_keywords,omitempty"`
}

// Empty reports whether no filter terms are set.
func (f MusicFilters) Empty() bool {
	return len(f.IncludeGenres) == 0 && len(f.ExcludeGenres) == 0 &&
		len(f.IncludeArtists) == 0 && len(f.ExcludeArtists) == 0 &&
		len(f.Keywords) == 0 && len(f.ExcludeKeywords) == 0
}

var matchNormalizer = strings.NewReplacer(
	" ", "",
	".", "",
	"-", "",
	"_", "",
	"'", "",
	"\"", "",
	"/", "",
	"\\", "",
	"(", "",
	")", "",
	"[", "",
	"]", "",
	",", "",
	";", "",
	":", "",
)

// NormalizeMatchText collapses punctuation/case so "Daft Punk" and
// "daft-punk" compare equal.
func NormalizeMatchText(s string) string {
	return matchNormalizer.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// HistoryKey builds the upsert key for a play history record.
func HistoryKey(title, artist string) string {
	return NormalizeMatchText(title) + "|" + NormalizeMatchText(artist)
}

// SplitQuery parses a combined "Title - Artist" search string into its parts.
// Without a separator the whole string is treated as the title.
func SplitQuery(query string) (title, artist string) {
	parts := strings.SplitN(query, " - ", 2)
	title = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		artist = strings.TrimSpace(parts[1])
	}
	return title, artist
}
