/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning collects the selection heuristics. The defaults reproduce the
// behavior the engine shipped with; operators can override individual knobs
// from a YAML file without rebuilding.
type Tuning struct {
	// Cooldown recovery. A track score recovers linearly from its floor
	// toward 1.0 at TrackRecoveryPerDay; the artist component recovers
	// faster. The rates are inherited heuristics, kept as-is.
	TrackRecoveryPerDay  float64 `yaml:"track_recovery_per_day"`
	ArtistRecoveryPerDay float64 `yaml:"artist_recovery_per_day"`
	TrackScoreFloor      float64 `yaml:"track_score_floor"`
	ArtistScoreFloor     float64 `yaml:"artist_score_floor"`

	// Robust scaler anchors (5th/95th percentile of the reference corpus).
	LoudnessLowDB  float64 `yaml:"loudness_low_db"`
	LoudnessHighDB float64 `yaml:"loudness_high_db"`
	TempoLowBPM    float64 `yaml:"tempo_low_bpm"`
	TempoHighBPM   float64 `yaml:"tempo_high_bpm"`

	// Shortlist construction.
	NearestPoolSize    int     `yaml:"nearest_pool_size"`
	PromptSampleSize   int     `yaml:"prompt_sample_size"`
	EnergyHardDelta    float64 `yaml:"energy_hard_delta"`
	ValenceHardDelta   float64 `yaml:"valence_hard_delta"`
	RecentExcludeHours float64 `yaml:"recent_exclude_hours"`
	RangedWindow       float64 `yaml:"ranged_window"` // slider-unit half width for the SQL range predicate
	RangedRowLimit     int     `yaml:"ranged_row_limit"`

	// Oracle output contract.
	MaxFromShortlist int `yaml:"max_from_shortlist"`
	TotalCandidates  int `yaml:"total_candidates"`

	// Vibe planner.
	PlanRecheckMinutes   int `yaml:"plan_recheck_minutes"`
	OracleBackoffMinutes int `yaml:"oracle_backoff_minutes"`
}

// DefaultTuning returns the shipped heuristic values.
func DefaultTuning() Tuning {
	return Tuning{
		TrackRecoveryPerDay:  0.10,
		ArtistRecoveryPerDay: 0.25,
		TrackScoreFloor:      0.02,
		ArtistScoreFloor:     0.05,

		LoudnessLowDB:  -23.0,
		LoudnessHighDB: -5.0,
		TempoLowBPM:    70.0,
		TempoHighBPM:   180.0,

		NearestPoolSize:    60,
		PromptSampleSize:   10,
		EnergyHardDelta:    25.0,
		ValenceHardDelta:   30.0,
		RecentExcludeHours: 8.0,
		RangedWindow:       20.0,
		RangedRowLimit:     400,

		MaxFromShortlist: 5,
		TotalCandidates:  10,

		PlanRecheckMinutes:   10,
		OracleBackoffMinutes: 2,
	}
}

// LoadTuning merges a YAML tuning file over the defaults. An empty path
// returns the defaults unchanged.
func LoadTuning(path string) (Tuning, error) {
	tuning := DefaultTuning()
	if path == "" {
		return tuning, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return tuning, fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &tuning); err != nil {
		return tuning, fmt.Errorf("parse tuning file: %w", err)
	}

	if err := tuning.validate(); err != nil {
		return tuning, err
	}
	return tuning, nil
}

func (t Tuning) validate() error {
	if t.TrackRecoveryPerDay <= 0 || t.ArtistRecoveryPerDay <= 0 {
		return fmt.Errorf("cooldown recovery rates must be positive")
	}
	if t.TrackScoreFloor <= 0 || t.TrackScoreFloor > 1 || t.ArtistScoreFloor <= 0 || t.ArtistScoreFloor > 1 {
		return fmt.Errorf("cooldown floors must be in (0,1]")
	}
	if t.LoudnessHighDB <= t.LoudnessLowDB {
		return fmt.Errorf("loudness anchors inverted")
	}
	if t.TempoHighBPM <= t.TempoLowBPM {
		return fmt.Errorf("tempo anchors inverted")
	}
	if t.PromptSampleSize <= 0 || t.NearestPoolSize < t.PromptSampleSize {
		return fmt.Errorf("nearest pool must be at least the sample size")
	}
	if t.MaxFromShortlist <= 0 || t.MaxFromShortlist > 5 {
		return fmt.Errorf("max_from_shortlist must be in [1,5]")
	}
	if t.TotalCandidates < t.MaxFromShortlist {
		return fmt.Errorf("total_candidates must cover max_from_shortlist")
	}
	return nil
}
