/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog ranks candidate tracks against a slider-space target and
// draws weighted shortlist samples for the recommender oracle.
package catalog

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/muninn_dj/internal/models"
	"github.com/friendsincode/muninn_dj/internal/scaler"
)

// Distance weights for the weighted L1 distance in slider space. Energy and
// valence dominate the ranking; liveness barely matters.
const (
	weightEnergy           = 2.0
	weightValence          = 2.0
	weightInstrumentalness = 1.5
	weightSpeechiness      = 1.2
	weightAcousticness     = 1.2
	weightLoudness         = 1.0
	weightTempo            = 1.0
	weightLiveness         = 0.7
)

// Match is a ranked candidate with its slider projection.
type Match struct {
	Track    models.CatalogTrack
	Vector   scaler.Vector
	Distance float64
}

// Index produces a ranked shortlist for a target vector. Both backends
// satisfy the same contract; the ranged variant narrows in SQL first but
// re-ranks with the identical distance, so results agree.
type Index interface {
	Nearest(ctx context.Context, target models.SliderTargets, filters models.MusicFilters, limit int) ([]Match, error)
}

// Distance computes the weighted L1 distance between a target and a track
// position, both in slider space.
func Distance(target, track scaler.Vector) float64 {
	return weightEnergy*math.Abs(target.Energy-track.Energy) +
		weightValence*math.Abs(target.Valence-track.Valence) +
		weightLoudness*math.Abs(target.Loudness-track.Loudness) +
		weightSpeechiness*math.Abs(target.Speechiness-track.Speechiness) +
		weightAcousticness*math.Abs(target.Acousticness-track.Acousticness) +
		weightInstrumentalness*math.Abs(target.Instrumentalness-track.Instrumentalness) +
		weightLiveness*math.Abs(target.Liveness-track.Liveness) +
		weightTempo*math.Abs(target.Tempo-track.Tempo)
}

// FullScanIndex computes the exact distance across the whole catalog.
type FullScanIndex struct {
	db     *gorm.DB
	scaler *scaler.Scaler
}

// NewFullScanIndex creates the full-scan backend.
func NewFullScanIndex(database *gorm.DB, sc *scaler.Scaler) *FullScanIndex {
	return &FullScanIndex{db: database, scaler: sc}
}

// Nearest implements Index.
func (idx *FullScanIndex) Nearest(ctx context.Context, target models.SliderTargets, filters models.MusicFilters, limit int) ([]Match, error) {
	query := applySQLFilters(idx.db.WithContext(ctx).Model(&models.CatalogTrack{}), filters)

	var tracks []models.CatalogTrack
	if err := query.Find(&tracks).Error; err != nil {
		return nil, fmt.Errorf("catalog scan: %w", err)
	}

	return rank(idx.scaler, tracks, target, filters, limit), nil
}

// RangedIndex narrows by a cheap range predicate on the energy/valence
// columns plus the SQL-expressible filters, orders by a coarse two-feature
// distance, takes a bounded number of rows, then recomputes the full weighted
// distance in process and re-ranks exactly.
type RangedIndex struct {
	db     *gorm.DB
	scaler *scaler.Scaler

	// Window is the half width, in slider units, of the energy/valence
	// range predicate. RowLimit bounds how many narrowed rows are loaded.
	Window   float64
	RowLimit int
}

// NewRangedIndex creates the indexed backend.
func NewRangedIndex(database *gorm.DB, sc *scaler.Scaler, window float64, rowLimit int) *RangedIndex {
	if window <= 0 {
		window = 20
	}
	if rowLimit <= 0 {
		rowLimit = 400
	}
	return &RangedIndex{db: database, scaler: sc, Window: window, RowLimit: rowLimit}
}

// Nearest implements Index.
func (idx *RangedIndex) Nearest(ctx context.Context, target models.SliderTargets, filters models.MusicFilters, limit int) ([]Match, error) {
	target = target.Clamped()
	energyTarget := scaler.SliderToRatio(float64(target.Energy))
	valenceTarget := scaler.SliderToRatio(float64(target.Valence))
	window := idx.Window / 100

	query := idx.db.WithContext(ctx).Model(&models.CatalogTrack{}).
		Where("energy BETWEEN ? AND ?", energyTarget-window, energyTarget+window).
		Where("valence BETWEEN ? AND ?", valenceTarget-window, valenceTarget+window)
	query = applySQLFilters(query, filters)

	var tracks []models.CatalogTrack
	coarse := clause.OrderBy{Expression: clause.Expr{
		SQL:                "ABS(energy - ?) + ABS(valence - ?)",
		Vars:               []interface{}{energyTarget, valenceTarget},
		WithoutParentheses: true,
	}}
	err := query.
		Order(coarse).
		Limit(idx.RowLimit).
		Find(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("catalog range scan: %w", err)
	}

	return rank(idx.scaler, tracks, target, filters, limit), nil
}

// rank applies the exact in-memory filter predicate, computes the full
// weighted distance, and returns the top limit matches.
func rank(sc *scaler.Scaler, tracks []models.CatalogTrack, target models.SliderTargets, filters models.MusicFilters, limit int) []Match {
	targetVec := scaler.TargetsVector(target)
	seen := make(map[string]struct{}, len(tracks))

	matches := make([]Match, 0, len(tracks))
	for _, track := range tracks {
		if _, dup := seen[track.ID]; dup {
			continue
		}
		seen[track.ID] = struct{}{}

		if !matchesFilters(track, filters) {
			continue
		}

		vec := sc.TrackVector(track)
		matches = append(matches, Match{
			Track:    track,
			Vector:   vec,
			Distance: Distance(targetVec, vec),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// applySQLFilters pushes the cheap filter predicates into SQL. Artist and
// keyword matching need punctuation-insensitive normalization, so those are
// enforced in matchesFilters instead; SQL only narrows.
func applySQLFilters(query *gorm.DB, filters models.MusicFilters) *gorm.DB {
	if len(filters.IncludeGenres) > 0 {
		query = query.Where("LOWER(genre) IN ?", lowered(filters.IncludeGenres))
	}
	if len(filters.ExcludeGenres) > 0 {
		query = query.Where("LOWER(genre) NOT IN ?", lowered(filters.ExcludeGenres))
	}
	return query
}

// matchesFilters is the exact filter predicate, applied in memory after any
// SQL narrowing.
func matchesFilters(track models.CatalogTrack, filters models.MusicFilters) bool {
	if filters.Empty() {
		return true
	}

	if len(filters.IncludeGenres) > 0 && !containsFold(filters.IncludeGenres, track.Genre) {
		return false
	}
	if containsFold(filters.ExcludeGenres, track.Genre) {
		return false
	}
	if len(filters.IncludeArtists) > 0 && !containsNormalized(filters.IncludeArtists, track.Artist) {
		return false
	}
	if containsNormalized(filters.ExcludeArtists, track.Artist) {
		return false
	}

	haystack := strings.ToLower(track.Title + " " + track.Artist + " " + track.Genre)
	for _, keyword := range filters.Keywords {
		if !strings.Contains(haystack, strings.ToLower(strings.TrimSpace(keyword))) {
			return false
		}
	}
	for _, keyword := range filters.ExcludeKeywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(strings.TrimSpace(keyword))) {
			return false
		}
	}
	return true
}

func lowered(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func containsFold(values []string, candidate string) bool {
	for _, value := range values {
		if strings.EqualFold(strings.TrimSpace(value), strings.TrimSpace(candidate)) {
			return true
		}
	}
	return false
}

func containsNormalized(values []string, candidate string) bool {
	norm := models.NormalizeMatchText(candidate)
	for _, value := range values {
		if models.NormalizeMatchText(value) == norm {
			return true
		}
	}
	return false
}
