/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package vibe maintains the current multi-phase target plan and interpolates
// slider targets within it.
package vibe

import (
	"time"

	"github.com/friendsincode/muninn_dj/internal/models"
	"github.com/friendsincode/muninn_dj/internal/oracle"
)

// Phase is one segment of a plan. End is nil for a hold phase; a gradient
// phase interpolates each slider linearly from Start to End.
type Phase struct {
	Duration time.Duration
	Start    models.SliderTargets
	End      *models.SliderTargets
	Note     string
}

// Plan is a time-bounded target description. Replaced wholesale on each
// recheck, cleared on disable.
type Plan struct {
	Description        string
	ContextLabel       string
	ContextEndsAt      time.Time
	Duration           time.Duration
	Phases             []Phase
	Filters            models.MusicFilters
	Mood               string
	EnergyLabel        string
	AnxietyLabel       string
	Continuation       bool
	ContinuationReason string
	Rationale          string
	CreatedAt          time.Time
}

// PlanFromPayload converts an oracle reply into a plan anchored at now.
func PlanFromPayload(payload *oracle.PlanPayload, now time.Time) *Plan {
	phases := make([]Phase, len(payload.Phases))
	for i, p := range payload.Phases {
		phases[i] = Phase{
			Duration: time.Duration(p.DurationMinutes) * time.Minute,
			Start:    p.Start.Clamped(),
			Note:     p.Note,
		}
		if p.End != nil {
			end := p.End.Clamped()
			phases[i].End = &end
		}
	}
	return &Plan{
		Description:        payload.Description,
		ContextLabel:       payload.ContextLabel,
		ContextEndsAt:      payload.ContextEndsAt,
		Duration:           time.Duration(payload.PlanDurationMinutes) * time.Minute,
		Phases:             phases,
		Filters:            payload.Filters,
		Mood:               payload.Mood,
		EnergyLabel:        payload.EnergyLabel,
		AnxietyLabel:       payload.AnxietyLabel,
		Continuation:       payload.Continuation,
		ContinuationReason: payload.ContinuationReason,
		Rationale:          payload.Rationale,
		CreatedAt:          now,
	}
}

// Payload converts the plan back to the wire shape, used as previous_state on
// the next oracle call.
func (p *Plan) Payload() *oracle.PlanPayload {
	phases := make([]oracle.PhasePayload, len(p.Phases))
	for i, phase := range p.Phases {
		phases[i] = oracle.PhasePayload{
			DurationMinutes: int(phase.Duration / time.Minute),
			Start:           phase.Start,
			End:             phase.End,
			Note:            phase.Note,
		}
	}
	return &oracle.PlanPayload{
		Description:         p.Description,
		ContextLabel:        p.ContextLabel,
		ContextEndsAt:       p.ContextEndsAt,
		PlanDurationMinutes: int(p.Duration / time.Minute),
		Phases:              phases,
		Filters:             p.Filters,
		Mood:                p.Mood,
		EnergyLabel:         p.EnergyLabel,
		AnxietyLabel:        p.AnxietyLabel,
		Continuation:        p.Continuation,
		ContinuationReason:  p.ContinuationReason,
		Rationale:           p.Rationale,
	}
}

// PhaseTotal is the sum of phase durations. It is trusted over the declared
// plan duration when the two disagree.
func (p *Plan) PhaseTotal() time.Duration {
	var total time.Duration
	for _, phase := range p.Phases {
		total += phase.Duration
	}
	return total
}

// Expired reports whether the plan has run out at now.
func (p *Plan) Expired(now time.Time) bool {
	return now.Sub(p.CreatedAt) >= p.PhaseTotal()
}

// TargetsAt interpolates the slider targets for the given instant. Elapsed
// time past the final phase pins to the final phase's end state.
func (p *Plan) TargetsAt(now time.Time) models.SliderTargets {
	if len(p.Phases) == 0 {
		return models.SliderTargets{}
	}

	elapsed := now.Sub(p.CreatedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	phase := p.Phases[len(p.Phases)-1]
	progress := 1.0
	var offset time.Duration
	for _, candidate := range p.Phases {
		if elapsed < offset+candidate.Duration {
			phase = candidate
			if candidate.Duration > 0 {
				progress = float64(elapsed-offset) / float64(candidate.Duration)
			} else {
				progress = 0
			}
			break
		}
		offset += candidate.Duration
	}

	if phase.End == nil {
		return phase.Start
	}
	return interpolate(phase.Start, *phase.End, progress)
}

func interpolate(start, end models.SliderTargets, progress float64) models.SliderTargets {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	lerp := func(a, b int) int {
		return int(float64(a) + progress*float64(b-a) + 0.5)
	}
	return models.SliderTargets{
		Energy:           lerp(start.Energy, end.Energy),
		Valence:          lerp(start.Valence, end.Valence),
		Loudness:         lerp(start.Loudness, end.Loudness),
		Speechiness:      lerp(start.Speechiness, end.Speechiness),
		Acousticness:     lerp(start.Acousticness, end.Acousticness),
		Instrumentalness: lerp(start.Instrumentalness, end.Instrumentalness),
		Liveness:         lerp(start.Liveness, end.Liveness),
		Tempo:            lerp(start.Tempo, end.Tempo),
	}.Clamped()
}

// Legacy scalar views kept byte-compatible with the previous generation of
// consumers.

// EnergyScale10 maps the 0-100 energy slider onto the legacy 1-10 scale.
func EnergyScale10(t models.SliderTargets) float64 {
	return 1 + 9*float64(t.Clamped().Energy)/100
}

// ValenceSigned maps the 0-100 valence slider onto the legacy -1..+1 scale.
func ValenceSigned(t models.SliderTargets) float64 {
	return (float64(t.Clamped().Valence) - 50) / 50
}

// VocalTolerance derives the legacy vocal tolerance from inverse
// instrumentalness.
func VocalTolerance(t models.SliderTargets) float64 {
	return (100 - float64(t.Clamped().Instrumentalness)) / 100
}
