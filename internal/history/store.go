/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package history persists plays per normalized (title, artist) pair and
// derives the decay-recovered cooldown scores that penalize repetition.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_dj/internal/models"
)

// Cooldown holds the recovery heuristics. The per-day rates are inherited
// numbers; they are exposed here so operators can tune them, not because we
// can derive better ones.
type Cooldown struct {
	TrackRecoveryPerDay  float64
	ArtistRecoveryPerDay float64
	TrackFloor           float64
	ArtistFloor          float64
}

// DefaultCooldown returns the shipped recovery constants.
func DefaultCooldown() Cooldown {
	return Cooldown{
		TrackRecoveryPerDay:  0.10,
		ArtistRecoveryPerDay: 0.25,
		TrackFloor:           0.02,
		ArtistFloor:          0.05,
	}
}

// Stats is the per-track summary used by selection and status output.
type Stats struct {
	Found           bool
	PlaysToday      int
	PlaysAllTime    int
	HoursSinceTrack float64
	LastPlayedAt    time.Time
}

// Store is the play-history persistence layer. It is only touched from the
// coordinator's consumer loop during pick handling, so it carries no locking.
type Store struct {
	db       *gorm.DB
	cooldown Cooldown
	logger   zerolog.Logger
	now      func() time.Time
}

// NewStore creates a history store.
func NewStore(database *gorm.DB, cooldown Cooldown, logger zerolog.Logger) *Store {
	return &Store{
		db:       database,
		cooldown: cooldown,
		logger:   logger.With().Str("component", "history").Logger(),
		now:      time.Now,
	}
}

// RecordPlay upserts the record for (title, artist): rolling counters reset
// when a period boundary was crossed since the stored reset marker, then
// every counter increments. The all-time counter never resets.
func (s *Store) RecordPlay(ctx context.Context, title, artist, query string, targets models.SliderTargets) error {
	now := s.now()
	key := models.HistoryKey(title, artist)

	var record models.PlayHistoryRecord
	err := s.db.WithContext(ctx).Where("norm_key = ?", key).First(&record).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		record = models.PlayHistoryRecord{
			ID:            uuid.NewString(),
			NormKey:       key,
			NormArtist:    models.NormalizeMatchText(artist),
			Title:         title,
			Artist:        artist,
			FirstPlayedAt: now,
		}
		resetPeriods(&record, now)
	case err != nil:
		return fmt.Errorf("load history record: %w", err)
	default:
		rollover(&record, now)
	}

	record.LastQuery = query
	record.LastPlayedAt = now
	record.LastTargets = targets
	record.PlaysToday++
	record.PlaysWeek++
	record.PlaysMonth++
	record.PlaysYear++
	record.PlaysAllTime++

	if err := s.db.WithContext(ctx).Save(&record).Error; err != nil {
		return fmt.Errorf("save history record: %w", err)
	}

	s.logger.Debug().
		Str("title", title).
		Str("artist", artist).
		Int("plays_today", record.PlaysToday).
		Msg("play recorded")
	return nil
}

// Stats returns the current counters for (title, artist), with period
// rollovers applied in memory. A track never played returns Found=false.
func (s *Store) Stats(ctx context.Context, title, artist string) (Stats, error) {
	var record models.PlayHistoryRecord
	err := s.db.WithContext(ctx).Where("norm_key = ?", models.HistoryKey(title, artist)).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, fmt.Errorf("load history record: %w", err)
	}

	now := s.now()
	rollover(&record, now)
	return Stats{
		Found:           true,
		PlaysToday:      record.PlaysToday,
		PlaysAllTime:    record.PlaysAllTime,
		HoursSinceTrack: now.Sub(record.LastPlayedAt).Hours(),
		LastPlayedAt:    record.LastPlayedAt,
	}, nil
}

// Recent returns the newest limit records by last play.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.PlayHistoryRecord, error) {
	var records []models.PlayHistoryRecord
	err := s.db.WithContext(ctx).
		Order("last_played_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("load recent plays: %w", err)
	}
	return records, nil
}

// LastPlayedSince returns last-played timestamps per normalized history key
// for everything played since cutoff. Used by shortlist filtering.
func (s *Store) LastPlayedSince(ctx context.Context, cutoff time.Time) (map[string]time.Time, error) {
	var records []models.PlayHistoryRecord
	err := s.db.WithContext(ctx).
		Select("norm_key", "last_played_at").
		Where("last_played_at >= ?", cutoff).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("load recent keys: %w", err)
	}

	out := make(map[string]time.Time, len(records))
	for _, record := range records {
		out[record.NormKey] = record.LastPlayedAt
	}
	return out, nil
}

// ScoreCandidate computes the cooldown score for (title, artist): the track
// component recovers from its floor toward 1.0 since that exact pair last
// played, the artist component recovers faster since any track by the artist
// last played, and the two multiply. Never-played pairs score a perfect 1.0.
func (s *Store) ScoreCandidate(ctx context.Context, title, artist string) (float64, error) {
	now := s.now()

	var record models.PlayHistoryRecord
	err := s.db.WithContext(ctx).Where("norm_key = ?", models.HistoryKey(title, artist)).First(&record).Error
	trackComponent := 1.0
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// leave at 1.0
	case err != nil:
		return 0, fmt.Errorf("load history record: %w", err)
	default:
		days := now.Sub(record.LastPlayedAt).Hours() / 24
		trackComponent = recoveryScore(days, s.cooldown.TrackRecoveryPerDay, s.cooldown.TrackFloor)
	}

	artistComponent := 1.0
	lastArtist, played, err := s.artistLastPlayed(ctx, artist)
	if err != nil {
		return 0, err
	}
	if played {
		days := now.Sub(lastArtist).Hours() / 24
		artistComponent = recoveryScore(days, s.cooldown.ArtistRecoveryPerDay, s.cooldown.ArtistFloor)
	}

	return trackComponent * artistComponent, nil
}

func (s *Store) artistLastPlayed(ctx context.Context, artist string) (time.Time, bool, error) {
	var record models.PlayHistoryRecord
	err := s.db.WithContext(ctx).
		Where("norm_artist = ?", models.NormalizeMatchText(artist)).
		Order("last_played_at DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("load artist history: %w", err)
	}
	return record.LastPlayedAt, true, nil
}

// recoveryScore maps elapsed days to [floor, 1.0] at rate per day.
func recoveryScore(days, ratePerDay, floor float64) float64 {
	if days < 0 {
		days = 0
	}
	v := days * ratePerDay
	if v < floor {
		return floor
	}
	if v > 1 {
		return 1
	}
	return v
}

// Period boundary helpers. Weeks start Monday.

func rollover(record *models.PlayHistoryRecord, now time.Time) {
	if record.DayResetAt.Before(startOfDay(now)) {
		record.PlaysToday = 0
		record.DayResetAt = startOfDay(now)
	}
	if record.WeekResetAt.Before(startOfWeek(now)) {
		record.PlaysWeek = 0
		record.WeekResetAt = startOfWeek(now)
	}
	if record.MonthResetAt.Before(startOfMonth(now)) {
		record.PlaysMonth = 0
		record.MonthResetAt = startOfMonth(now)
	}
	if record.YearResetAt.Before(startOfYear(now)) {
		record.PlaysYear = 0
		record.YearResetAt = startOfYear(now)
	}
}

func resetPeriods(record *models.PlayHistoryRecord, now time.Time) {
	record.DayResetAt = startOfDay(now)
	record.WeekResetAt = startOfWeek(now)
	record.MonthResetAt = startOfMonth(now)
	record.YearResetAt = startOfYear(now)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func startOfYear(t time.Time) time.Time {
	return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location())
}
