/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scaler converts between the human-facing 0-100 slider scale and
// native audio feature units. Six features are plain ratios; loudness and
// tempo go through a robust linear scale anchored at reference-corpus
// percentiles so outliers don't compress the usable range.
package scaler

import (
	"math"

	"github.com/friendsincode/muninn_dj/internal/models"
)

// Anchors are the low/high reference points for the anchored scales
// (5th/95th percentile of the reference corpus).
type Anchors struct {
	LoudnessLowDB  float64
	LoudnessHighDB float64
	TempoLowBPM    float64
	TempoHighBPM   float64
}

// DefaultAnchors returns the shipped reference anchors.
func DefaultAnchors() Anchors {
	return Anchors{
		LoudnessLowDB:  -23.0,
		LoudnessHighDB: -5.0,
		TempoLowBPM:    70.0,
		TempoHighBPM:   180.0,
	}
}

// Scaler is a pure, stateless converter.
type Scaler struct {
	anchors Anchors
}

// New creates a scaler with the given anchors.
func New(anchors Anchors) *Scaler {
	return &Scaler{anchors: anchors}
}

// Vector is a track position in slider space, kept as floats so ranking
// doesn't lose precision to integer rounding.
type Vector struct {
	Energy           float64
	Valence          float64
	Loudness         float64
	Speechiness      float64
	Acousticness     float64
	Instrumentalness float64
	Liveness         float64
	Tempo            float64
}

// RatioToSlider maps a 0.0-1.0 ratio feature to 0-100.
func RatioToSlider(v float64) float64 {
	return clampSlider(v * 100)
}

// SliderToRatio maps a 0-100 slider to a 0.0-1.0 ratio.
func SliderToRatio(s float64) float64 {
	return clampSlider(s) / 100
}

// LoudnessToSlider maps dB loudness onto 0-100, clamping outside the anchors.
func (sc *Scaler) LoudnessToSlider(db float64) float64 {
	return anchoredToSlider(db, sc.anchors.LoudnessLowDB, sc.anchors.LoudnessHighDB)
}

// SliderToLoudness maps a 0-100 slider back to dB.
func (sc *Scaler) SliderToLoudness(s float64) float64 {
	return sliderToAnchored(s, sc.anchors.LoudnessLowDB, sc.anchors.LoudnessHighDB)
}

// TempoToSlider maps BPM onto 0-100, clamping outside the anchors.
func (sc *Scaler) TempoToSlider(bpm float64) float64 {
	return anchoredToSlider(bpm, sc.anchors.TempoLowBPM, sc.anchors.TempoHighBPM)
}

// SliderToTempo maps a 0-100 slider back to BPM.
func (sc *Scaler) SliderToTempo(s float64) float64 {
	return sliderToAnchored(s, sc.anchors.TempoLowBPM, sc.anchors.TempoHighBPM)
}

// TrackVector projects a catalog track into slider space.
func (sc *Scaler) TrackVector(track models.CatalogTrack) Vector {
	return Vector{
		Energy:           RatioToSlider(track.Energy),
		Valence:          RatioToSlider(track.Valence),
		Loudness:         sc.LoudnessToSlider(track.LoudnessDB),
		Speechiness:      RatioToSlider(track.Speechiness),
		Acousticness:     RatioToSlider(track.Acousticness),
		Instrumentalness: RatioToSlider(track.Instrumentalness),
		Liveness:         RatioToSlider(track.Liveness),
		Tempo:            sc.TempoToSlider(track.TempoBPM),
	}
}

// TargetsVector lifts integer slider targets into slider space.
func TargetsVector(targets models.SliderTargets) Vector {
	targets = targets.Clamped()
	return Vector{
		Energy:           float64(targets.Energy),
		Valence:          float64(targets.Valence),
		Loudness:         float64(targets.Loudness),
		Speechiness:      float64(targets.Speechiness),
		Acousticness:     float64(targets.Acousticness),
		Instrumentalness: float64(targets.Instrumentalness),
		Liveness:         float64(targets.Liveness),
		Tempo:            float64(targets.Tempo),
	}
}

func anchoredToSlider(v, low, high float64) float64 {
	if high <= low {
		return 0
	}
	return clampSlider((v - low) / (high - low) * 100)
}

func sliderToAnchored(s, low, high float64) float64 {
	return low + clampSlider(s)/100*(high-low)
}

func clampSlider(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
