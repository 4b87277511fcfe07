/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package selector

import (
	"context"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/muninn_dj/internal/history"
	"github.com/friendsincode/muninn_dj/internal/models"
	"github.com/friendsincode/muninn_dj/internal/oracle"
)

func newTestSelector(t *testing.T) (*Selector, *history.Store) {
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
	store := history.NewStore(database, history.DefaultCooldown(), zerolog.Nop())
	s := New(store, zerolog.Nop())
	s.rng = rand.New(rand.NewSource(1))
	return s, store
}

func TestChooseDropsUnresolved(t *testing.T) {
	s, _ := newTestSelector(t)

	winner, err := s.Choose(context.Background(), []oracle.Candidate{
		{Rationale: "nothing to go on"},
		{Query: "   "},
	}, models.SliderTargets{})
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if winner != nil {
		t.Errorf("winner = %+v, want nil when no candidate resolves", winner)
	}
}

func TestChooseResolvesFromQuery(t *testing.T) {
	s, _ := newTestSelector(t)

	winner, err := s.Choose(context.Background(), []oracle.Candidate{
		{Query: "Harvest Moon - Neil Young", Rationale: "mellow"},
	}, models.SliderTargets{})
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if winner == nil {
		t.Fatal("expected a winner")
	}
	if winner.Title != "Harvest Moon" || winner.Artist != "Neil Young" {
		t.Errorf("resolved %q / %q, want split from query", winner.Title, winner.Artist)
	}
	if winner.Score != 1.0 {
		t.Errorf("never-played score = %f, want 1.0", winner.Score)
	}
}

func TestChooseBuildsSortedBackups(t *testing.T) {
	s, store := newTestSelector(t)
	ctx := context.Background()

	// "Stale" was just played, so it scores at the cooldown floor while the
	// others sit at 1.0.
	if err := store.RecordPlay(ctx, "Stale", "Artist S", "q", models.SliderTargets{}); err != nil {
		t.Fatalf("RecordPlay: %v", err)
	}

	winner, err := s.Choose(ctx, []oracle.Candidate{
		{Title: "Stale", Artist: "Artist S"},
		{Title: "Fresh A", Artist: "Artist A"},
		{Title: "Fresh B", Artist: "Artist B"},
	}, models.SliderTargets{Energy: 70})
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if winner == nil {
		t.Fatal("expected a winner")
	}
	if s.BackupCount() != 2 {
		t.Fatalf("BackupCount = %d, want 2", s.BackupCount())
	}
	if s.backups[0].Score < s.backups[1].Score {
		t.Errorf("backups not sorted by score desc: %f < %f", s.backups[0].Score, s.backups[1].Score)
	}

	var probTotal float64
	probTotal += winner.Probability
	for _, b := range s.backups {
		probTotal += b.Probability
	}
	if probTotal < 0.999 || probTotal > 1.001 {
		t.Errorf("probabilities sum to %f, want ~1", probTotal)
	}
}

func TestChooseFavorsHigherScores(t *testing.T) {
	s, store := newTestSelector(t)
	ctx := context.Background()

	if err := store.RecordPlay(ctx, "Stale", "Artist S", "q", models.SliderTargets{}); err != nil {
		t.Fatalf("RecordPlay: %v", err)
	}

	candidates := []oracle.Candidate{
		{Title: "Fresh", Artist: "Artist F"},
		{Title: "Stale", Artist: "Artist S"},
	}

	freshWins := 0
	const trials = 500
	for i := 0; i < trials; i++ {
		winner, err := s.Choose(ctx, candidates, models.SliderTargets{})
		if err != nil {
			t.Fatalf("Choose: %v", err)
		}
		if winner.Title == "Fresh" {
			freshWins++
		}
	}
	// Fresh carries ~99.9% of the weight; anything below 90% means the
	// weighting is broken rather than unlucky.
	if freshWins < trials*9/10 {
		t.Errorf("fresh candidate won %d/%d, want at least 90%%", freshWins, trials)
	}
}

func TestPickWeightedUniformWhenAllZero(t *testing.T) {
	s, _ := newTestSelector(t)

	scored := []ScoredCandidate{{Title: "A"}, {Title: "B"}, {Title: "C"}}
	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		idx := s.pickWeighted(scored)
		if idx < 0 || idx >= len(scored) {
			t.Fatalf("index %d out of range", idx)
		}
		seen[idx] = true
	}
	if len(seen) != len(scored) {
		t.Errorf("uniform fallback only hit %d/%d indices", len(seen), len(scored))
	}
}

func TestNextBackupPopsInOrderAndRecords(t *testing.T) {
	s, store := newTestSelector(t)
	ctx := context.Background()

	targets := models.SliderTargets{Energy: 80, Valence: 60}
	if _, err := s.Choose(ctx, []oracle.Candidate{
		{Title: "One", Artist: "A"},
		{Title: "Two", Artist: "B"},
		{Title: "Three", Artist: "C"},
	}, targets); err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if s.BackupCount() != 2 {
		t.Fatalf("BackupCount = %d, want 2", s.BackupCount())
	}

	first := s.NextBackup(ctx)
	if first == nil {
		t.Fatal("expected a backup")
	}
	stats, err := store.Stats(ctx, first.Title, first.Artist)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if !stats.Found || stats.PlaysToday != 1 {
		t.Errorf("backup consumption not recorded: found=%v today=%d", stats.Found, stats.PlaysToday)
	}

	if second := s.NextBackup(ctx); second == nil {
		t.Fatal("expected a second backup")
	}
	if last := s.NextBackup(ctx); last != nil {
		t.Errorf("empty queue returned %+v, want nil", last)
	}
}

func TestNextBackupSurvivesHistoryFailure(t *testing.T) {
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&models.PlayHistoryRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := New(history.NewStore(database, history.DefaultCooldown(), zerolog.Nop()), zerolog.Nop())
	s.rng = rand.New(rand.NewSource(1))
	ctx := context.Background()

	if _, err := s.Choose(ctx, []oracle.Candidate{
		{Title: "One", Artist: "A"},
		{Title: "Two", Artist: "B"},
	}, models.SliderTargets{}); err != nil {
		t.Fatalf("Choose: %v", err)
	}

	// Break the history table; recording must fail but the candidate still
	// comes off the queue and gets returned.
	if err := database.Migrator().DropTable(&models.PlayHistoryRecord{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	backup := s.NextBackup(ctx)
	if backup == nil {
		t.Fatal("expected the backup despite the history failure")
	}
	if s.BackupCount() != 0 {
		t.Errorf("BackupCount = %d, want 0", s.BackupCount())
	}
}

func TestClearBackups(t *testing.T) {
	s, _ := newTestSelector(t)

	if _, err := s.Choose(context.Background(), []oracle.Candidate{
		{Title: "One", Artist: "A"},
		{Title: "Two", Artist: "B"},
	}, models.SliderTargets{}); err != nil {
		t.Fatalf("Choose: %v", err)
	}
	s.ClearBackups()
	if s.BackupCount() != 0 {
		t.Errorf("BackupCount = %d after clear, want 0", s.BackupCount())
	}
}
