/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package oracle defines the request/reply contracts for the two external
// reasoning services the engine consumes as black boxes: the vibe oracle,
// which produces a multi-phase target plan from context, and the recommender
// oracle, which turns a catalog shortlist into a ranked pick list.
package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/friendsincode/muninn_dj/internal/models"
)

// ErrUnavailable indicates the oracle could not be reached or timed out.
var ErrUnavailable = errors.New("oracle unavailable")

// ErrMalformed indicates the oracle replied with an unusable payload.
var ErrMalformed = errors.New("oracle response malformed")

// CalendarEvent is the minimal calendar context forwarded to the vibe oracle.
type CalendarEvent struct {
	Title    string    `json:"title"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// ChatLine is one line of recent chat forwarded as context.
type ChatLine struct {
	Sender  string    `json:"sender"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sent_at"`
}

// PhasePayload is one plan phase on the wire. End is nil for a hold phase.
type PhasePayload struct {
	DurationMinutes int                   `json:"duration_minutes"`
	Start           models.SliderTargets  `json:"start"`
	End             *models.SliderTargets `json:"end,omitempty"`
	Note            string                `json:"note,omitempty"`
}

// PlanPayload is the vibe oracle's full response plan.
type PlanPayload struct {
	Description         string               `json:"description"`
	ContextLabel        string               `json:"context_label,omitempty"`
	ContextEndsAt       time.Time            `json:"context_ends_at,omitempty"`
	PlanDurationMinutes int                  `json:"plan_duration_minutes"`
	Phases              []PhasePayload       `json:"phases"`
	Filters             models.MusicFilters  `json:"music_filters,omitempty"`
	Mood                string               `json:"mood,omitempty"`
	EnergyLabel         string               `json:"energy,omitempty"`
	AnxietyLabel        string               `json:"anxiety,omitempty"`
	Continuation        bool                 `json:"continuation,omitempty"`
	ContinuationReason  string               `json:"continuation_reason,omitempty"`
	Rationale           string               `json:"rationale,omitempty"`
}

// Validate enforces the vibe oracle contract bounds.
func (p *PlanPayload) Validate() error {
	if p.PlanDurationMinutes < 15 || p.PlanDurationMinutes > 60 {
		return ErrMalformed
	}
	if len(p.Phases) < 1 || len(p.Phases) > 3 {
		return ErrMalformed
	}
	for _, phase := range p.Phases {
		if phase.DurationMinutes < 5 || phase.DurationMinutes > 60 {
			return ErrMalformed
		}
	}
	return nil
}

// VibeRequest is the vibe oracle request envelope.
type VibeRequest struct {
	DayOfWeek      string          `json:"day_of_week"`
	CalendarEvents []CalendarEvent `json:"calendar_events"`
	RecentChat     []ChatLine      `json:"recent_chat"`
	PreviousState  *PlanPayload    `json:"previous_state,omitempty"`
}

// ProvidedSong is one shortlist entry handed to the recommender.
type ProvidedSong struct {
	TrackID string `json:"track_id"`
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	Genre   string `json:"genre,omitempty"`
}

// PlayedSong summarizes a recent play for the recommender.
type PlayedSong struct {
	Title    string    `json:"title"`
	Artist   string    `json:"artist"`
	PlayedAt time.Time `json:"played_at"`
}

// RecommendRequest is the recommender oracle request envelope.
type RecommendRequest struct {
	DayOfWeek      string               `json:"day_of_week"`
	VibeTargets    models.SliderTargets `json:"vibe_targets"`
	RecentlyPlayed []PlayedSong         `json:"recently_played"` // at most 10
	LastPlayed     *PlayedSong          `json:"last_played,omitempty"`
	ProvidedSongs  []ProvidedSong       `json:"provided_songs"` // at most 10
}

// Candidate is one recommender pick. Title/Artist may be empty when the
// oracle only supplies a combined search string.
type Candidate struct {
	Title     string `json:"title,omitempty"`
	Artist    string `json:"artist,omitempty"`
	Query     string `json:"query,omitempty"`
	Rationale string `json:"rationale,omitempty"`
}

// RecommendResponse is the recommender oracle reply.
type RecommendResponse struct {
	Candidates []Candidate `json:"candidates"`
	SkipMusic  bool        `json:"skip_music,omitempty"`
	SkipReason string      `json:"skip_reason,omitempty"`
}

// VibeOracle produces a target plan from context.
type VibeOracle interface {
	Plan(ctx context.Context, req VibeRequest) (*PlanPayload, error)
}

// RecommenderOracle turns a shortlist into a ranked pick list.
type RecommenderOracle interface {
	Recommend(ctx context.Context, req RecommendRequest) (*RecommendResponse, error)
}

// Calendar supplies upcoming events for vibe context. Integrations live
// outside the engine; NoCalendar is the default.
type Calendar interface {
	Upcoming(ctx context.Context, within time.Duration) ([]CalendarEvent, error)
}

// NoCalendar is a Calendar that always returns nothing.
type NoCalendar struct{}

// Upcoming implements Calendar.
func (NoCalendar) Upcoming(context.Context, time.Duration) ([]CalendarEvent, error) {
	return nil, nil
}
