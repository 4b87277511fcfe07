/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_dj/internal/models"
	"github.com/friendsincode/muninn_dj/internal/scaler"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&models.CatalogTrack{}, &models.WeightOverride{}, &models.PlayHistoryRecord{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return database
}

func seedTrack(t *testing.T, database *gorm.DB, id, title, artist, genre string, energy, valence float64, factor float64) {
	t.Helper()
	track := models.CatalogTrack{
		ID:                id,
		Title:             title,
		Artist:            artist,
		Genre:             genre,
		Energy:            energy,
		Valence:           valence,
		LoudnessDB:        -14,
		Speechiness:       0.05,
		Acousticness:      0.3,
		Instrumentalness:  0.5,
		Liveness:          0.1,
		TempoBPM:          120,
		ProbabilityFactor: factor,
	}
	if err := database.Create(&track).Error; err != nil {
		t.Fatalf("seed track %s: %v", id, err)
	}
}

func testTargets() models.SliderTargets {
	return models.SliderTargets{
		Energy: 50, Valence: 50, Loudness: 50, Speechiness: 5,
		Acousticness: 30, Instrumentalness: 50, Liveness: 10, Tempo: 45,
	}
}

func TestBackendsAgree(t *testing.T) {
	database := openTestDB(t)
	sc := scaler.New(scaler.DefaultAnchors())

	// Energies chosen so no two tracks are equidistant from the target.
	for i := 0; i < 30; i++ {
		energy := 0.31 + float64(i)*0.013
		seedTrack(t, database, fmt.Sprintf("id-%02d", i), fmt.Sprintf("Track %02d", i), "Artist", "ambient", energy, 0.5, 1)
	}

	full := NewFullScanIndex(database, sc)
	ranged := NewRangedIndex(database, sc, 20, 400)

	target := testTargets()
	fullMatches, err := full.Nearest(context.Background(), target, models.MusicFilters{}, 10)
	if err != nil {
		t.Fatalf("full scan: %v", err)
	}
	rangedMatches, err := ranged.Nearest(context.Background(), target, models.MusicFilters{}, 10)
	if err != nil {
		t.Fatalf("ranged scan: %v", err)
	}

	if len(fullMatches) != len(rangedMatches) {
		t.Fatalf("backend result sizes differ: %d vs %d", len(fullMatches), len(rangedMatches))
	}
	for i := range fullMatches {
		if fullMatches[i].Track.ID != rangedMatches[i].Track.ID {
			t.Errorf("rank %d: full=%s ranged=%s", i, fullMatches[i].Track.ID, rangedMatches[i].Track.ID)
		}
	}
}

func TestNearestRanksClosestFirst(t *testing.T) {
	database := openTestDB(t)
	sc := scaler.New(scaler.DefaultAnchors())

	seedTrack(t, database, "far", "Far", "A", "rock", 0.95, 0.9, 1)
	seedTrack(t, database, "near", "Near", "B", "rock", 0.52, 0.5, 1)
	seedTrack(t, database, "mid", "Mid", "C", "rock", 0.7, 0.6, 1)

	matches, err := NewFullScanIndex(database, sc).Nearest(context.Background(), testTargets(), models.MusicFilters{}, 3)
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if len(matches) != 3 || matches[0].Track.ID != "near" || matches[2].Track.ID != "far" {
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.Track.ID
		}
		t.Errorf("unexpected ranking %v", ids)
	}
}

func TestFilters(t *testing.T) {
	database := openTestDB(t)
	sc := scaler.New(scaler.DefaultAnchors())

	seedTrack(t, database, "a", "Alpha", "Daft Punk", "electronic", 0.5, 0.5, 1)
	seedTrack(t, database, "b", "Beta", "Brian Eno", "ambient", 0.5, 0.5, 1)
	seedTrack(t, database, "c", "Gamma", "Slayer", "metal", 0.5, 0.5, 1)

	index := NewFullScanIndex(database, sc)
	ctx := context.Background()

	tests := []struct {
		name    string
		filters models.MusicFilters
		wantIDs map[string]bool
	}{
		{"include genre", models.MusicFilters{IncludeGenres: []string{"Ambient"}}, map[string]bool{"b": true}},
		{"exclude genre", models.MusicFilters{ExcludeGenres: []string{"metal"}}, map[string]bool{"a": true, "b": true}},
		{"exclude artist normalized", models.MusicFilters{ExcludeArtists: []string{"daft-punk"}}, map[string]bool{"b": true, "c": true}},
		{"keyword", models.MusicFilters{Keywords: []string{"eno"}}, map[string]bool{"b": true}},
		{"exclude keyword", models.MusicFilters{ExcludeKeywords: []string{"slayer"}}, map[string]bool{"a": true, "b": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := index.Nearest(ctx, testTargets(), tt.filters, 10)
			if err != nil {
				t.Fatalf("nearest: %v", err)
			}
			got := map[string]bool{}
			for _, m := range matches {
				got[m.Track.ID] = true
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got tracks %v, want %v", got, tt.wantIDs)
			}
			for id := range tt.wantIDs {
				if !got[id] {
					t.Errorf("missing expected track %s", id)
				}
			}
		})
	}
}

type staticRecent map[string]time.Time

func (r staticRecent) LastPlayedSince(context.Context, time.Time) (map[string]time.Time, error) {
	return r, nil
}

func newTestSampler(t *testing.T, database *gorm.DB, recent RecentPlays, seed int64) *Sampler {
	t.Helper()
	sc := scaler.New(scaler.DefaultAnchors())
	sampler := NewSampler(NewFullScanIndex(database, sc), database, recent, DefaultSampleOptions(), zerolog.Nop())
	sampler.rng = rand.New(rand.NewSource(seed))
	return sampler
}

func TestSampleForPromptEmptyPool(t *testing.T) {
	database := openTestDB(t)
	// Everything violates the hard energy delta.
	seedTrack(t, database, "x", "X", "A", "rock", 0.99, 0.5, 1)
	seedTrack(t, database, "y", "Y", "B", "rock", 0.01, 0.5, 1)

	sampler := newTestSampler(t, database, nil, 1)
	pool, sample, err := sampler.SampleForPrompt(context.Background(), testTargets(), models.MusicFilters{})
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(pool) != 0 || len(sample) != 0 {
		t.Errorf("expected empty pool and sample, got %d/%d", len(pool), len(sample))
	}
}

func TestSampleForPromptSmallPoolReturnedWhole(t *testing.T) {
	database := openTestDB(t)
	for i := 0; i < 4; i++ {
		seedTrack(t, database, fmt.Sprintf("t%d", i), fmt.Sprintf("T%d", i), "A", "rock", 0.5, 0.5, 1)
	}

	sampler := newTestSampler(t, database, nil, 1)
	pool, sample, err := sampler.SampleForPrompt(context.Background(), testTargets(), models.MusicFilters{})
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(pool) != 4 || len(sample) != 4 {
		t.Fatalf("expected whole pool back, got %d/%d", len(pool), len(sample))
	}
}

func TestSampleForPromptDistinctAndSized(t *testing.T) {
	database := openTestDB(t)
	for i := 0; i < 40; i++ {
		seedTrack(t, database, fmt.Sprintf("t%02d", i), fmt.Sprintf("T%02d", i), "A", "rock", 0.45+float64(i%10)*0.01, 0.5, 1)
	}

	sampler := newTestSampler(t, database, nil, 7)
	pool, sample, err := sampler.SampleForPrompt(context.Background(), testTargets(), models.MusicFilters{})
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(sample) != sampler.opts.SampleSize {
		t.Fatalf("sample size %d, want %d", len(sample), sampler.opts.SampleSize)
	}
	seen := map[string]bool{}
	for _, m := range sample {
		if seen[m.Track.ID] {
			t.Errorf("duplicate identity %s in sample", m.Track.ID)
		}
		seen[m.Track.ID] = true
	}
	if len(pool) > sampler.opts.PoolSize {
		t.Errorf("pool overshoots target size: %d", len(pool))
	}
}

func TestSampleRecentExclusion(t *testing.T) {
	database := openTestDB(t)
	seedTrack(t, database, "recent", "Played", "A", "rock", 0.5, 0.5, 1)
	seedTrack(t, database, "fresh", "Fresh", "B", "rock", 0.5, 0.5, 1)

	recent := staticRecent{models.HistoryKey("Played", "A"): time.Now().Add(-time.Hour)}
	sampler := newTestSampler(t, database, recent, 1)

	pool, _, err := sampler.SampleForPrompt(context.Background(), testTargets(), models.MusicFilters{})
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(pool) != 1 || pool[0].Track.ID != "fresh" {
		t.Errorf("recently played track should be excluded, pool=%v", pool)
	}
}

func TestWeightedSamplingFavorsHeavyWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	pool := make([]Match, 20)
	weights := make([]float64, 20)
	for i := range pool {
		pool[i] = Match{Track: models.CatalogTrack{ID: fmt.Sprintf("t%02d", i)}}
		weights[i] = 1
	}
	// One heavy item.
	weights[0] = 50

	hits := 0
	trials := 2000
	for i := 0; i < trials; i++ {
		picked := weightedSampleWithoutReplacement(rng, pool, weights, 5)
		if len(picked) != 5 {
			t.Fatalf("expected 5 picks, got %d", len(picked))
		}
		for _, m := range picked {
			if m.Track.ID == "t00" {
				hits++
			}
		}
	}

	// The heavy item carries ~72% of total weight; uniform would hit 25%.
	if float64(hits)/float64(trials) < 0.5 {
		t.Errorf("heavy item selected in only %d/%d trials", hits, trials)
	}
}

func TestWeightedSamplingUniformFallback(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	pool := make([]Match, 10)
	weights := make([]float64, 10)
	for i := range pool {
		pool[i] = Match{Track: models.CatalogTrack{ID: fmt.Sprintf("t%d", i)}}
	}

	picked := weightedSampleWithoutReplacement(rng, pool, weights, 4)
	if len(picked) != 4 {
		t.Fatalf("uniform fallback should still return 4, got %d", len(picked))
	}
	seen := map[string]bool{}
	for _, m := range picked {
		if seen[m.Track.ID] {
			t.Errorf("duplicate in uniform fallback: %s", m.Track.ID)
		}
		seen[m.Track.ID] = true
	}
}

func TestOverrideBoost(t *testing.T) {
	track := models.CatalogTrack{Title: "Song", Artist: "Daft Punk", Genre: "Electronic", ProbabilityFactor: 1}
	overrides := overrideSet{
		models.ScopeGenre:  {"electronic": 2.0},
		models.ScopeArtist: {"daftpunk": 0.5},
	}

	boost := overrideBoost(track, overrides)
	if boost != 1.0 {
		t.Errorf("genre 2.0 x artist 0.5 should compose to 1.0, got %v", boost)
	}

	weight := sampleWeight(Match{Track: track, Distance: 1}, overrides)
	if weight != 0.5 {
		t.Errorf("weight should be 1 x 1.0 / (1+1) = 0.5, got %v", weight)
	}
}
