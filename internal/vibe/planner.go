/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package vibe

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_dj/internal/chat"
	"github.com/friendsincode/muninn_dj/internal/models"
	"github.com/friendsincode/muninn_dj/internal/oracle"
)

// Planner owns the current plan and decides when to ask the vibe oracle for a
// new one. It is only ever touched from the coordinator's consumer loop, so
// it carries no locking.
type Planner struct {
	oracle   oracle.VibeOracle
	calendar oracle.Calendar
	logger   zerolog.Logger

	recheckInterval time.Duration
	failureBackoff  time.Duration

	plan          *Plan
	lastCheckAt   time.Time
	lastSignature string
	backoffUntil  time.Time
}

// PlannerOptions tunes recheck cadence.
type PlannerOptions struct {
	RecheckInterval time.Duration // periodic recheck even with no chat change
	FailureBackoff  time.Duration // suppression window after an oracle failure
}

// NewPlanner creates a planner.
func NewPlanner(vibeOracle oracle.VibeOracle, calendar oracle.Calendar, opts PlannerOptions, logger zerolog.Logger) *Planner {
	if calendar == nil {
		calendar = oracle.NoCalendar{}
	}
	if opts.RecheckInterval <= 0 {
		opts.RecheckInterval = 10 * time.Minute
	}
	if opts.FailureBackoff <= 0 {
		opts.FailureBackoff = 2 * time.Minute
	}
	return &Planner{
		oracle:          vibeOracle,
		calendar:        calendar,
		logger:          logger.With().Str("component", "vibe").Logger(),
		recheckInterval: opts.RecheckInterval,
		failureBackoff:  opts.FailureBackoff,
	}
}

// Current returns the active plan, or nil.
func (p *Planner) Current() *Plan {
	return p.plan
}

// Clear drops the active plan (used on disable).
func (p *Planner) Clear() {
	p.plan = nil
	p.lastSignature = ""
}

// NeedsRecheck reports whether a new oracle call is due: no plan yet, the
// plan has run out, the periodic interval elapsed, or the chat signature
// changed since the last check.
func (p *Planner) NeedsRecheck(now time.Time, recentChat []chat.Message) bool {
	if now.Before(p.backoffUntil) {
		return false
	}
	if p.plan == nil {
		return true
	}
	if p.plan.Expired(now) {
		return true
	}
	if now.Sub(p.lastCheckAt) >= p.recheckInterval {
		return true
	}
	if sig := chat.Signature(recentChat); sig != p.lastSignature {
		return true
	}
	return false
}

// RefreshIfNeeded asks the oracle for a fresh plan when a recheck is due and
// installs the result, reporting whether a new plan was installed. On oracle
// failure the old plan (possibly nil) stays, a backoff window suppresses
// repeat calls, and the chat signature still advances so a failing oracle
// doesn't cause call storms.
func (p *Planner) RefreshIfNeeded(ctx context.Context, now time.Time, recentChat []chat.Message) bool {
	if !p.NeedsRecheck(now, recentChat) {
		return false
	}

	p.lastCheckAt = now
	p.lastSignature = chat.Signature(recentChat)

	events, err := p.calendar.Upcoming(ctx, 2*time.Hour)
	if err != nil {
		p.logger.Debug().Err(err).Msg("calendar lookup failed, continuing without events")
		events = nil
	}

	req := oracle.VibeRequest{
		DayOfWeek:      now.Weekday().String(),
		CalendarEvents: events,
		RecentChat:     chatLines(recentChat),
	}
	if p.plan != nil {
		req.PreviousState = p.plan.Payload()
	}

	payload, err := p.oracle.Plan(ctx, req)
	if err != nil {
		p.backoffUntil = now.Add(p.failureBackoff)
		p.logger.Warn().Err(err).Time("backoff_until", p.backoffUntil).Msg("vibe oracle failed, keeping current plan")
		return false
	}

	plan := PlanFromPayload(payload, now)
	if declared := plan.Duration; declared != plan.PhaseTotal() {
		// Phases win; the declared total is advisory only.
		p.logger.Warn().
			Dur("declared", declared).
			Dur("phase_total", plan.PhaseTotal()).
			Msg("plan duration disagrees with phase sum")
	}

	p.plan = plan
	p.backoffUntil = time.Time{}
	p.logger.Info().
		Str("description", plan.Description).
		Int("phases", len(plan.Phases)).
		Dur("duration", plan.PhaseTotal()).
		Bool("continuation", plan.Continuation).
		Msg("vibe plan updated")
	return true
}

// TargetsAt returns the interpolated targets for now, and whether a plan is
// active at all.
func (p *Planner) TargetsAt(now time.Time) (models.SliderTargets, bool) {
	if p.plan == nil {
		return models.SliderTargets{}, false
	}
	return p.plan.TargetsAt(now), true
}

func chatLines(messages []chat.Message) []oracle.ChatLine {
	lines := make([]oracle.ChatLine, len(messages))
	for i, msg := range messages {
		lines[i] = oracle.ChatLine{Sender: msg.Sender, Content: msg.Content, SentAt: msg.SentAt}
	}
	return lines
}
