/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_dj/internal/models"
)

// RecentPlays exposes the history lookups the sampler needs: the last-played
// timestamp per normalized history key, for every play since the cutoff.
type RecentPlays interface {
	LastPlayedSince(ctx context.Context, cutoff time.Time) (map[string]time.Time, error)
}

// SampleOptions tunes shortlist construction.
type SampleOptions struct {
	PoolSize         int     // filtered pool target size
	SampleSize       int     // shortlist size handed to the oracle
	EnergyHardDelta  float64 // hard exclusion in slider units, tighter than the soft ranking weight
	ValenceHardDelta float64
	RecentHours      float64 // exclusion window besides "played today"
}

// DefaultSampleOptions returns the shipped pool sizing.
func DefaultSampleOptions() SampleOptions {
	return SampleOptions{
		PoolSize:         60,
		SampleSize:       10,
		EnergyHardDelta:  25,
		ValenceHardDelta: 30,
		RecentHours:      8,
	}
}

// Sampler builds the filtered candidate pool and draws the weighted sample
// the recommender oracle sees.
type Sampler struct {
	index   Index
	db      *gorm.DB
	history RecentPlays
	opts    SampleOptions
	rng     *rand.Rand
	logger  zerolog.Logger
	now     func() time.Time
}

// NewSampler creates a sampler over the given index backend.
func NewSampler(index Index, database *gorm.DB, history RecentPlays, opts SampleOptions, logger zerolog.Logger) *Sampler {
	if opts.PoolSize <= 0 {
		opts = DefaultSampleOptions()
	}
	return &Sampler{
		index:   index,
		db:      database,
		history: history,
		opts:    opts,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:  logger.With().Str("component", "catalog").Logger(),
		now:     time.Now,
	}
}

// SampleForPrompt returns the filtered pool and the weighted sample drawn
// from it. An empty filtered pool yields two empty slices without error; a
// pool no larger than the sample size is returned whole as both.
func (s *Sampler) SampleForPrompt(ctx context.Context, target models.SliderTargets, filters models.MusicFilters) (pool, sample []Match, err error) {
	target = target.Clamped()

	// Oversized base pool: hard filters below will thin it out.
	base, err := s.index.Nearest(ctx, target, filters, s.opts.PoolSize*3)
	if err != nil {
		return nil, nil, err
	}

	recent, err := s.recentExclusions(ctx)
	if err != nil {
		// Degrade rather than fail: history loss only weakens anti-repetition.
		s.logger.Warn().Err(err).Msg("recent-play lookup failed, sampling without exclusions")
		recent = nil
	}

	overrides, err := s.loadOverrides(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("weight override lookup failed, sampling without boosts")
		overrides = nil
	}

	pool = s.filterPool(base, target, recent)
	if len(pool) == 0 {
		return []Match{}, []Match{}, nil
	}
	if len(pool) <= s.opts.SampleSize {
		return pool, pool, nil
	}

	weights := make([]float64, len(pool))
	for i, match := range pool {
		weights[i] = sampleWeight(match, overrides)
	}

	sample = weightedSampleWithoutReplacement(s.rng, pool, weights, s.opts.SampleSize)
	return pool, sample, nil
}

// filterPool removes excluded, recently played, hard-delta-violating, and
// duplicate tracks, stopping once the pool target is reached.
func (s *Sampler) filterPool(base []Match, target models.SliderTargets, recent map[string]time.Time) []Match {
	now := s.now()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	windowCutoff := now.Add(-time.Duration(s.opts.RecentHours * float64(time.Hour)))

	seen := make(map[string]struct{}, len(base))
	pool := make([]Match, 0, s.opts.PoolSize)
	for _, match := range base {
		if len(pool) >= s.opts.PoolSize {
			break
		}
		if _, dup := seen[match.Track.ID]; dup {
			continue
		}
		seen[match.Track.ID] = struct{}{}

		if math.Abs(match.Vector.Energy-float64(target.Energy)) > s.opts.EnergyHardDelta {
			continue
		}
		if math.Abs(match.Vector.Valence-float64(target.Valence)) > s.opts.ValenceHardDelta {
			continue
		}

		if recent != nil {
			key := models.HistoryKey(match.Track.Title, match.Track.Artist)
			if last, played := recent[key]; played {
				if !last.Before(startOfToday) || last.After(windowCutoff) {
					continue
				}
			}
		}

		pool = append(pool, match)
	}
	return pool
}

func (s *Sampler) recentExclusions(ctx context.Context) (map[string]time.Time, error) {
	if s.history == nil {
		return nil, nil
	}
	now := s.now()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	cutoff := now.Add(-time.Duration(s.opts.RecentHours * float64(time.Hour)))
	if startOfToday.Before(cutoff) {
		cutoff = startOfToday
	}
	return s.history.LastPlayedSince(ctx, cutoff)
}

// overrideSet maps scope -> normalized key -> factor.
type overrideSet map[models.OverrideScope]map[string]float64

func (s *Sampler) loadOverrides(ctx context.Context) (overrideSet, error) {
	var rows []models.WeightOverride
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load weight overrides: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	set := make(overrideSet)
	for _, row := range rows {
		if row.Factor < 0 {
			continue
		}
		if set[row.Scope] == nil {
			set[row.Scope] = make(map[string]float64)
		}
		set[row.Scope][row.Key] = row.Factor
	}
	return set, nil
}

// sampleWeight is probabilityFactor x overrideBoost x 1/(1+distance).
func sampleWeight(match Match, overrides overrideSet) float64 {
	factor := match.Track.ProbabilityFactor
	if factor <= 0 {
		return 0
	}
	return factor * overrideBoost(match.Track, overrides) / (1 + match.Distance)
}

func overrideBoost(track models.CatalogTrack, overrides overrideSet) float64 {
	if overrides == nil {
		return 1
	}
	boost := 1.0
	if byGenre := overrides[models.ScopeGenre]; byGenre != nil {
		if factor, ok := byGenre[models.NormalizeMatchText(track.Genre)]; ok {
			boost *= factor
		}
	}
	if byArtist := overrides[models.ScopeArtist]; byArtist != nil {
		if factor, ok := byArtist[models.NormalizeMatchText(track.Artist)]; ok {
			boost *= factor
		}
	}
	if byTrack := overrides[models.ScopeTrack]; byTrack != nil {
		if factor, ok := byTrack[models.HistoryKey(track.Title, track.Artist)]; ok {
			boost *= factor
		}
	}
	return boost
}

// weightedSampleWithoutReplacement draws k items via the single-pass
// exponential-key reservoir (key = ln(u)/w, keep the largest keys). Items
// with non-positive or non-finite weight can't get a key; if fewer than k
// items hold positive weight, the remainder is filled uniformly.
func weightedSampleWithoutReplacement(rng *rand.Rand, pool []Match, weights []float64, k int) []Match {
	if k >= len(pool) {
		out := make([]Match, len(pool))
		copy(out, pool)
		return out
	}

	type keyed struct {
		idx int
		key float64
	}

	keyedItems := make([]keyed, 0, len(pool))
	var unkeyed []int
	for i, w := range weights {
		if w > 0 && !math.IsInf(w, 0) && !math.IsNaN(w) {
			u := rng.Float64()
			for u == 0 {
				u = rng.Float64()
			}
			keyedItems = append(keyedItems, keyed{idx: i, key: math.Log(u) / w})
		} else {
			unkeyed = append(unkeyed, i)
		}
	}

	sort.Slice(keyedItems, func(i, j int) bool { return keyedItems[i].key > keyedItems[j].key })
	if len(keyedItems) > k {
		keyedItems = keyedItems[:k]
	}

	picked := make([]Match, 0, k)
	for _, item := range keyedItems {
		picked = append(picked, pool[item.idx])
	}

	// Uniform fallback over the remaining pool when positive weights ran out.
	if len(picked) < k && len(unkeyed) > 0 {
		rng.Shuffle(len(unkeyed), func(i, j int) { unkeyed[i], unkeyed[j] = unkeyed[j], unkeyed[i] })
		for _, idx := range unkeyed {
			if len(picked) >= k {
				break
			}
			picked = append(picked, pool[idx])
		}
	}

	return picked
}
