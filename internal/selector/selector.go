/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package selector turns the recommender's candidate list into a single
// weighted-random winner plus an ordered backup queue. Scores come from the
// history store's cooldown model.
package selector

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_dj/internal/history"
	"github.com/friendsincode/muninn_dj/internal/models"
	"github.com/friendsincode/muninn_dj/internal/oracle"
	"github.com/friendsincode/muninn_dj/internal/telemetry"
)

// ScoredCandidate is a resolved, scored recommender pick. Probability is the
// normalized share of the round's total score, kept for log/status output
// only.
type ScoredCandidate struct {
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	Query       string  `json:"query"`
	Rationale   string  `json:"rationale,omitempty"`
	Score       float64 `json:"score"`
	Probability float64 `json:"probability"`
}

// Selector scores candidates and keeps the losers of the latest round as the
// backup queue. It is only touched from the coordinator's consumer loop, so
// it carries no locking.
type Selector struct {
	history *history.Store
	logger  zerolog.Logger
	rng     *rand.Rand

	backups       []ScoredCandidate
	backupTargets models.SliderTargets
}

// New creates a selector backed by the given history store.
func New(store *history.Store, logger zerolog.Logger) *Selector {
	return &Selector{
		history: store,
		logger:  logger.With().Str("component", "selector").Logger(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Choose scores the candidates, draws a weighted-random winner, and replaces
// the backup queue with the losers sorted by score descending. Candidates
// without a resolvable title are dropped. Returns nil when nothing survives
// resolution.
func (s *Selector) Choose(ctx context.Context, candidates []oracle.Candidate, targets models.SliderTargets) (*ScoredCandidate, error) {
	scored, err := s.score(ctx, candidates)
	if err != nil {
		return nil, err
	}
	if len(scored) == 0 {
		s.backups = nil
		return nil, nil
	}

	winnerIdx := s.pickWeighted(scored)
	winner := scored[winnerIdx]

	losers := make([]ScoredCandidate, 0, len(scored)-1)
	losers = append(losers, scored[:winnerIdx]...)
	losers = append(losers, scored[winnerIdx+1:]...)
	sort.SliceStable(losers, func(i, j int) bool { return losers[i].Score > losers[j].Score })
	s.backups = losers
	s.backupTargets = targets

	s.logger.Info().
		Str("title", winner.Title).
		Str("artist", winner.Artist).
		Float64("score", winner.Score).
		Float64("probability", winner.Probability).
		Int("backups", len(losers)).
		Msg("candidate chosen")
	return &winner, nil
}

// NextBackup pops the highest-scored remaining loser, records it to history,
// and returns it. Returns nil when the queue is empty. A history failure is
// logged, not fatal: the candidate is already off the queue and still gets
// played.
func (s *Selector) NextBackup(ctx context.Context) *ScoredCandidate {
	if len(s.backups) == 0 {
		return nil
	}
	next := s.backups[0]
	s.backups = s.backups[1:]

	if err := s.history.RecordPlay(ctx, next.Title, next.Artist, next.Query, s.backupTargets); err != nil {
		s.logger.Warn().Err(err).Str("title", next.Title).Msg("failed to record backup play")
	}
	telemetry.BackupConsumedTotal.Inc()

	s.logger.Info().
		Str("title", next.Title).
		Str("artist", next.Artist).
		Int("remaining", len(s.backups)).
		Msg("backup consumed")
	return &next
}

// BackupCount reports the remaining backup queue length.
func (s *Selector) BackupCount() int { return len(s.backups) }

// ClearBackups drops the queue, used when the coordinator is disabled.
func (s *Selector) ClearBackups() { s.backups = nil }

func (s *Selector) score(ctx context.Context, candidates []oracle.Candidate) ([]ScoredCandidate, error) {
	scored := make([]ScoredCandidate, 0, len(candidates))
	var total float64
	for _, cand := range candidates {
		title, artist, query := resolve(cand)
		if title == "" {
			s.logger.Debug().Str("query", cand.Query).Msg("dropping unresolved candidate")
			continue
		}
		score, err := s.history.ScoreCandidate(ctx, title, artist)
		if err != nil {
			return nil, fmt.Errorf("score candidate: %w", err)
		}
		scored = append(scored, ScoredCandidate{
			Title:     title,
			Artist:    artist,
			Query:     query,
			Rationale: cand.Rationale,
			Score:     score,
		})
		total += score
	}

	if total > 0 {
		for i := range scored {
			scored[i].Probability = scored[i].Score / total
		}
	}
	return scored, nil
}

// pickWeighted draws an index with probability proportional to score, or
// uniformly when every score is zero.
func (s *Selector) pickWeighted(scored []ScoredCandidate) int {
	var total float64
	for _, c := range scored {
		total += c.Score
	}
	if total <= 0 {
		return s.rng.Intn(len(scored))
	}
	r := s.rng.Float64() * total
	for i, c := range scored {
		r -= c.Score
		if r < 0 {
			return i
		}
	}
	return len(scored) - 1
}

// resolve fills missing title/artist from the combined search string and
// builds the search string when only the parts were given.
func resolve(cand oracle.Candidate) (title, artist, query string) {
	title, artist, query = cand.Title, cand.Artist, cand.Query
	if title == "" {
		title, artist = models.SplitQuery(query)
	}
	if query == "" && title != "" {
		query = title
		if artist != "" {
			query = title + " - " + artist
		}
	}
	return title, artist, query
}
