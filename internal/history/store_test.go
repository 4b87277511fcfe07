/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package history

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/muninn_dj/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&models.PlayHistoryRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

func newTestStore(t *testing.T, now time.Time) (*Store, *time.Time) {
	t.Helper()
	clock := now
	s := NewStore(openTestDB(t), DefaultCooldown(), zerolog.Nop())
	s.now = func() time.Time { return clock }
	return s, &clock
}

// Tuesday noon, a plain mid-week anchor for rollover tests.
var testBase = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestRecordPlayThenStatsAndScore(t *testing.T) {
	s, _ := newTestStore(t, testBase)
	ctx := context.Background()

	if err := s.RecordPlay(ctx, "Song A", "Artist X", "Song A - Artist X", models.SliderTargets{Energy: 60}); err != nil {
		t.Fatalf("RecordPlay: %v", err)
	}

	stats, err := s.Stats(ctx, "Song A", "Artist X")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if !stats.Found {
		t.Fatal("expected record to be found")
	}
	if stats.PlaysToday != 1 || stats.PlaysAllTime != 1 {
		t.Errorf("counters = today %d, all-time %d, want 1, 1", stats.PlaysToday, stats.PlaysAllTime)
	}
	if stats.HoursSinceTrack > 0.001 {
		t.Errorf("HoursSinceTrack = %f, want ~0", stats.HoursSinceTrack)
	}

	// Just played: both components sit at their floors.
	score, err := s.ScoreCandidate(ctx, "Song A", "Artist X")
	if err != nil {
		t.Fatalf("ScoreCandidate: %v", err)
	}
	want := DefaultCooldown().TrackFloor * DefaultCooldown().ArtistFloor
	if math.Abs(score-want) > 1e-9 {
		t.Errorf("score = %f, want %f", score, want)
	}
}

func TestScoreRecoversOverDays(t *testing.T) {
	s, clock := newTestStore(t, testBase)
	ctx := context.Background()

	if err := s.RecordPlay(ctx, "Song A", "Artist X", "q", models.SliderTargets{}); err != nil {
		t.Fatalf("RecordPlay: %v", err)
	}

	var prev float64
	for _, days := range []float64{0, 1, 2, 5, 12} {
		*clock = testBase.Add(time.Duration(days * 24 * float64(time.Hour)))
		score, err := s.ScoreCandidate(ctx, "Song A", "Artist X")
		if err != nil {
			t.Fatalf("ScoreCandidate at %v days: %v", days, err)
		}
		if score < prev {
			t.Errorf("score at %v days = %f, below earlier %f; recovery must be monotonic", days, score, prev)
		}
		prev = score
	}

	// After 5 days the track component is 0.5 and the artist component has
	// fully recovered (5 * 0.25 capped at 1.0).
	*clock = testBase.Add(5 * 24 * time.Hour)
	score, err := s.ScoreCandidate(ctx, "Song A", "Artist X")
	if err != nil {
		t.Fatalf("ScoreCandidate: %v", err)
	}
	if math.Abs(score-0.5) > 1e-9 {
		t.Errorf("score after 5 days = %f, want 0.5", score)
	}
}

func TestArtistCooldownSpansTracks(t *testing.T) {
	s, _ := newTestStore(t, testBase)
	ctx := context.Background()

	if err := s.RecordPlay(ctx, "Song A", "Artist X", "q", models.SliderTargets{}); err != nil {
		t.Fatalf("RecordPlay: %v", err)
	}

	// A different track by the same artist: full track component, floored
	// artist component.
	score, err := s.ScoreCandidate(ctx, "Song B", "Artist X")
	if err != nil {
		t.Fatalf("ScoreCandidate: %v", err)
	}
	if math.Abs(score-DefaultCooldown().ArtistFloor) > 1e-9 {
		t.Errorf("cross-track score = %f, want %f", score, DefaultCooldown().ArtistFloor)
	}
}

func TestNeverPlayedScoresPerfect(t *testing.T) {
	s, _ := newTestStore(t, testBase)

	score, err := s.ScoreCandidate(context.Background(), "Unseen", "Nobody")
	if err != nil {
		t.Fatalf("ScoreCandidate: %v", err)
	}
	if score != 1.0 {
		t.Errorf("score = %f, want 1.0", score)
	}
}

func TestPeriodRollover(t *testing.T) {
	s, clock := newTestStore(t, testBase)
	ctx := context.Background()

	record := func() {
		if err := s.RecordPlay(ctx, "Song A", "Artist X", "q", models.SliderTargets{}); err != nil {
			t.Fatalf("RecordPlay: %v", err)
		}
	}
	statsAt := func(at time.Time) Stats {
		*clock = at
		stats, err := s.Stats(ctx, "Song A", "Artist X")
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		return stats
	}

	record()
	record()
	if got := statsAt(testBase); got.PlaysToday != 2 {
		t.Fatalf("PlaysToday = %d, want 2", got.PlaysToday)
	}

	// Next day, same week: daily counter resets, all-time does not.
	next := statsAt(testBase.AddDate(0, 0, 1))
	if next.PlaysToday != 0 {
		t.Errorf("PlaysToday after day boundary = %d, want 0", next.PlaysToday)
	}
	if next.PlaysAllTime != 2 {
		t.Errorf("PlaysAllTime after day boundary = %d, want 2", next.PlaysAllTime)
	}

	// A play on that next day lands in the fresh daily window.
	*clock = testBase.AddDate(0, 0, 1)
	record()
	if got := statsAt(testBase.AddDate(0, 0, 1)); got.PlaysToday != 1 || got.PlaysAllTime != 3 {
		t.Errorf("counters = today %d, all-time %d, want 1, 3", got.PlaysToday, got.PlaysAllTime)
	}
}

func TestWeekStartsMonday(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"tuesday", testBase, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)},
		{"monday itself", time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC), time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)},
		{"sunday rolls back", time.Date(2026, 3, 15, 23, 0, 0, 0, time.UTC), time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := startOfWeek(tt.at); !got.Equal(tt.want) {
				t.Errorf("startOfWeek(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestLastPlayedSince(t *testing.T) {
	s, clock := newTestStore(t, testBase)
	ctx := context.Background()

	if err := s.RecordPlay(ctx, "Old", "Artist X", "q", models.SliderTargets{}); err != nil {
		t.Fatalf("RecordPlay: %v", err)
	}
	*clock = testBase.Add(10 * time.Hour)
	if err := s.RecordPlay(ctx, "Fresh", "Artist Y", "q", models.SliderTargets{}); err != nil {
		t.Fatalf("RecordPlay: %v", err)
	}

	recent, err := s.LastPlayedSince(ctx, testBase.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("LastPlayedSince: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("got %d keys, want 1", len(recent))
	}
	if _, ok := recent[models.HistoryKey("Fresh", "Artist Y")]; !ok {
		t.Error("expected the fresh play in the window")
	}
}
