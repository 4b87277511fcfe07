/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package director owns all mutable session state of the selection engine.
// Every mutation flows through one ordered event queue drained by a single
// consumer goroutine, so no two picks can ever race and none of the stores
// the loop touches need locking.
package director

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_dj/internal/cache"
	"github.com/friendsincode/muninn_dj/internal/catalog"
	"github.com/friendsincode/muninn_dj/internal/chat"
	"github.com/friendsincode/muninn_dj/internal/events"
	"github.com/friendsincode/muninn_dj/internal/history"
	"github.com/friendsincode/muninn_dj/internal/models"
	"github.com/friendsincode/muninn_dj/internal/oracle"
	"github.com/friendsincode/muninn_dj/internal/player"
	"github.com/friendsincode/muninn_dj/internal/selector"
	"github.com/friendsincode/muninn_dj/internal/telemetry"
	"github.com/friendsincode/muninn_dj/internal/vibe"
)

const eventQueueSize = 64

// Playback is the outbound command surface of the remote player.
type Playback interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	SearchAndPlay(ctx context.Context, query string) error
	SetVolume(ctx context.Context, volume float64) error
	QueueNext(ctx context.Context, query string) error
}

// Shortlister produces the catalog shortlist for the recommender.
type Shortlister interface {
	SampleForPrompt(ctx context.Context, target models.SliderTargets, filters models.MusicFilters) (pool, sample []catalog.Match, err error)
}

// ChatSource feeds the poll loop and the planner's context window.
type ChatSource interface {
	Since(ctx context.Context, cursor time.Time) ([]chat.Message, time.Time, error)
	Recent(ctx context.Context, limit int) ([]chat.Message, error)
}

// PickResult is what a completed pick hands back.
type PickResult struct {
	Title       string               `json:"title"`
	Artist      string               `json:"artist"`
	Query       string               `json:"query"`
	Rationale   string               `json:"rationale,omitempty"`
	Score       float64              `json:"score"`
	Probability float64              `json:"probability"`
	Targets     models.SliderTargets `json:"targets"`
}

// Status is a point-in-time view of the session. Approximate snapshots may
// trail the loop by one event; StatusStrict round-trips the queue instead.
type Status struct {
	Enabled            bool                  `json:"enabled"`
	Continuous         bool                  `json:"continuous"`
	NextSongQueued     bool                  `json:"next_song_queued"`
	PickInProgress     bool                  `json:"pick_in_progress"`
	LastPickAt         time.Time             `json:"last_pick_at"`
	RetryCooldownUntil time.Time             `json:"retry_cooldown_until"`
	RetryReason        string                `json:"retry_reason,omitempty"`
	CurrentTrack       *player.TrackInfo     `json:"current_track,omitempty"`
	ChatCursor         time.Time             `json:"chat_cursor"`
	PlanDescription    string                `json:"plan_description,omitempty"`
	Targets            *models.SliderTargets `json:"targets,omitempty"`
	BackupCount        int                   `json:"backup_count"`
	Approximate        bool                  `json:"approximate"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// sessionState is owned exclusively by the consumer loop.
type sessionState struct {
	enabled        bool
	continuous     bool
	nextSongQueued bool
	pickInProgress bool
	lastPickAt     time.Time
	retryUntil     time.Time
	retryReason    string
	currentTrack   *player.TrackInfo
	chatCursor     time.Time
}

// Options carries the director timings.
type Options struct {
	ChatPollInterval time.Duration
	PickDebounce     time.Duration
	QueueRetryDelay  time.Duration
	SyncPickTimeout  time.Duration
	StopJoinTimeout  time.Duration
	MaxFromShortlist int
	TotalCandidates  int
}

// DefaultOptions returns the shipped director timings.
func DefaultOptions() Options {
	return Options{
		ChatPollInterval: 2 * time.Second,
		PickDebounce:     20 * time.Second,
		QueueRetryDelay:  90 * time.Second,
		SyncPickTimeout:  30 * time.Second,
		StopJoinTimeout:  5 * time.Second,
		MaxFromShortlist: 5,
		TotalCandidates:  10,
	}
}

func (o *Options) applyDefaults() {
	def := DefaultOptions()
	if o.ChatPollInterval <= 0 {
		o.ChatPollInterval = def.ChatPollInterval
	}
	if o.PickDebounce <= 0 {
		o.PickDebounce = def.PickDebounce
	}
	if o.QueueRetryDelay <= 0 {
		o.QueueRetryDelay = def.QueueRetryDelay
	}
	if o.SyncPickTimeout <= 0 {
		o.SyncPickTimeout = def.SyncPickTimeout
	}
	if o.StopJoinTimeout <= 0 {
		o.StopJoinTimeout = def.StopJoinTimeout
	}
	if o.MaxFromShortlist <= 0 {
		o.MaxFromShortlist = def.MaxFromShortlist
	}
	if o.TotalCandidates <= 0 {
		o.TotalCandidates = def.TotalCandidates
	}
}

// Deps are the collaborators the director coordinates.
type Deps struct {
	Planner     *vibe.Planner
	Shortlist   Shortlister
	History     *history.Store
	Selector    *selector.Selector
	Recommender oracle.RecommenderOracle
	Playback    Playback
	Chat        ChatSource
	Mirror      *cache.Cache
	Bus         *events.Bus
}

// Director is the single-writer coordinator.
type Director struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger
	now    func() time.Time

	queue   chan event
	stopped chan struct{}
	started sync.Once
	halted  sync.Once

	state  sessionState
	status atomic.Pointer[Status]
}

// New creates a director. Start must be called before any operation has an
// effect.
func New(deps Deps, opts Options, logger zerolog.Logger) *Director {
	opts.applyDefaults()
	if deps.Mirror == nil {
		deps.Mirror = cache.Disabled(logger)
	}
	if deps.Bus == nil {
		deps.Bus = events.NewBus()
	}
	return &Director{
		deps:    deps,
		opts:    opts,
		logger:  logger.With().Str("component", "director").Logger(),
		now:     time.Now,
		queue:   make(chan event, eventQueueSize),
		stopped: make(chan struct{}),
	}
}

// Start launches the consumer loop. The loop exits when ctx is cancelled or
// Stop is called.
func (d *Director) Start(ctx context.Context) {
	d.started.Do(func() {
		if cursor, ok := d.deps.Mirror.GetChatCursor(ctx); ok {
			d.state.chatCursor = cursor
		} else {
			d.state.chatCursor = d.now()
		}
		go d.run(ctx)
	})
}

// Stop enqueues a stop event and joins the loop with a bounded timeout.
func (d *Director) Stop() {
	d.enqueue(evStop{})
	select {
	case <-d.stopped:
	case <-time.After(d.opts.StopJoinTimeout):
		d.logger.Warn().Msg("consumer loop did not stop in time")
	}
}

func (d *Director) run(ctx context.Context) {
	defer d.halted.Do(func() { close(d.stopped) })

	ticker := time.NewTicker(d.opts.ChatPollInterval)
	defer ticker.Stop()

	d.publishStatus(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			if _, stop := ev.(evStop); stop {
				return
			}
			d.handle(ctx, ev)
		case <-ticker.C:
			d.safely("chat_poll", func() { d.pollChat(ctx) })
		}
		d.publishStatus(ctx)
	}
}

// handle dispatches one event inside a recover boundary so a poisoned event
// cannot stop the loop.
func (d *Director) handle(ctx context.Context, ev event) {
	d.safely(ev.eventName(), func() {
		switch ev := ev.(type) {
		case evEnable:
			d.handleEnable(ev.continuous)
		case evDisable:
			d.handleDisable(ctx)
		case evSetContinuous:
			d.state.continuous = ev.on
		case evTrackChanged:
			d.handleTrackChanged(ev.track)
		case evPickRequest:
			d.handlePickRequest(ctx, ev.reason)
		case evPickSync:
			result := d.runSyncPick(ctx, ev.reason, ev.ignoreDisabled)
			select {
			case ev.reply <- result:
			default:
			}
		case evBackupRequest:
			cand := d.handleBackupRequest(ctx)
			select {
			case ev.reply <- cand:
			default:
			}
		case evFrontendQueued:
			d.state.nextSongQueued = true
			d.clearRetry()
		case evStatus:
			select {
			case ev.reply <- d.snapshot(false):
			default:
			}
		}
	})
}

func (d *Director) safely(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Interface("panic", r).
				Str("event", name).
				Bytes("stack", debug.Stack()).
				Msg("event handler panicked")
		}
	}()
	fn()
}

// Public control surface. All of these only enqueue; the loop does the work.

// Enable turns the engine on, optionally in continuous mode.
func (d *Director) Enable(continuous bool) { d.enqueue(evEnable{continuous: continuous}) }

// Disable turns the engine off and clears pick state and the vibe plan.
func (d *Director) Disable() { d.enqueue(evDisable{}) }

// SetContinuous toggles continuous mode.
func (d *Director) SetContinuous(on bool) { d.enqueue(evSetContinuous{on: on}) }

// OnTrackChanged reports an externally observed track change. A nil track
// means playback stopped.
func (d *Director) OnTrackChanged(track *player.TrackInfo) {
	d.enqueue(evTrackChanged{track: track})
}

// RequestPickAndQueue asks the loop to pick a track and queue it downstream.
func (d *Director) RequestPickAndQueue(reason string) { d.enqueue(evPickRequest{reason: reason}) }

// OnFrontendQueued reports that the frontend accepted the queued track.
func (d *Director) OnFrontendQueued() { d.enqueue(evFrontendQueued{}) }

// PickSong performs a blocking pick. Returns nil on timeout, rejection, or
// debounce; those are not errors.
func (d *Director) PickSong(reason string, timeout time.Duration) *PickResult {
	return d.pickSync(reason, timeout, false)
}

// PickSongOnce is PickSong but usable while the engine is disabled.
func (d *Director) PickSongOnce(reason string, timeout time.Duration) *PickResult {
	return d.pickSync(reason, timeout, true)
}

func (d *Director) pickSync(reason string, timeout time.Duration, ignoreDisabled bool) *PickResult {
	if timeout <= 0 {
		timeout = d.opts.SyncPickTimeout
	}
	reply := make(chan *PickResult, 1)
	if !d.enqueue(evPickSync{reason: reason, ignoreDisabled: ignoreDisabled, reply: reply}) {
		return nil
	}
	select {
	case result := <-reply:
		return result
	case <-time.After(timeout):
		return nil
	}
}

// NextBackup pops the next backup candidate, queues it downstream, and
// returns it. Returns nil when the backup queue is empty.
func (d *Director) NextBackup(ctx context.Context) *selector.ScoredCandidate {
	reply := make(chan *selector.ScoredCandidate, 1)
	if !d.enqueue(evBackupRequest{reply: reply}) {
		return nil
	}
	select {
	case cand := <-reply:
		return cand
	case <-ctx.Done():
		return nil
	}
}

// Status returns the latest approximate snapshot. It may trail the loop by
// one event.
func (d *Director) Status() Status {
	if st := d.status.Load(); st != nil {
		return *st
	}
	return Status{Approximate: true}
}

// StatusStrict round-trips the event queue for a snapshot that reflects
// every event enqueued before the call.
func (d *Director) StatusStrict(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	if !d.enqueue(evStatus{reply: reply}) {
		return Status{}, errors.New("event queue full")
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Playback passthroughs. These carry no session state, so they go straight
// to the player.

func (d *Director) Play(ctx context.Context) error     { return d.deps.Playback.Play(ctx) }
func (d *Director) Pause(ctx context.Context) error    { return d.deps.Playback.Pause(ctx) }
func (d *Director) Next(ctx context.Context) error     { return d.deps.Playback.Next(ctx) }
func (d *Director) Previous(ctx context.Context) error { return d.deps.Playback.Previous(ctx) }

func (d *Director) SearchAndPlay(ctx context.Context, query string) error {
	return d.deps.Playback.SearchAndPlay(ctx, query)
}

func (d *Director) SetVolume(ctx context.Context, volume float64) error {
	return d.deps.Playback.SetVolume(ctx, volume)
}

// QueueNext queues a query downstream without a pick. NextSongQueued is not
// touched: the loop only trusts its own queueing.
func (d *Director) QueueNext(ctx context.Context, query string) error {
	return d.deps.Playback.QueueNext(ctx, query)
}

func (d *Director) enqueue(ev event) bool {
	select {
	case d.queue <- ev:
		return true
	default:
		d.logger.Warn().Str("event", ev.eventName()).Msg("event queue full, dropping")
		return false
	}
}

// Loop-side handlers.

func (d *Director) handleEnable(continuous bool) {
	d.state.enabled = true
	d.state.continuous = continuous
	if d.state.chatCursor.IsZero() {
		d.state.chatCursor = d.now()
	}
	d.deps.Bus.Publish(events.EventEnabled, events.Payload{"continuous": continuous})
	d.logger.Info().Bool("continuous", continuous).Msg("engine enabled")
}

func (d *Director) handleDisable(ctx context.Context) {
	d.state.enabled = false
	d.state.continuous = false
	d.state.nextSongQueued = false
	d.state.pickInProgress = false
	d.clearRetry()
	hadPlan := d.deps.Planner.Current() != nil
	d.deps.Planner.Clear()
	d.deps.Selector.ClearBackups()
	d.deps.Mirror.ClearPlan(ctx)
	if hadPlan {
		d.deps.Bus.Publish(events.EventPlanCleared, nil)
	}
	d.deps.Bus.Publish(events.EventDisabled, nil)
	d.logger.Info().Msg("engine disabled")
}

func (d *Director) handleTrackChanged(track *player.TrackInfo) {
	d.state.currentTrack = track
	d.state.nextSongQueued = false

	payload := events.Payload{}
	if track != nil {
		payload["title"] = track.Title
		payload["artist"] = track.Artist
	}
	d.deps.Bus.Publish(events.EventTrackChanged, payload)

	if d.state.enabled && d.state.continuous {
		d.enqueue(evPickRequest{reason: "track changed"})
	}
}

// handlePickRequest is the pick-and-queue path: pick, persist, dispatch
// queue_next, and schedule a retry cooldown on any downstream failure.
func (d *Director) handlePickRequest(ctx context.Context, reason string) {
	now := d.now()
	if now.Before(d.state.retryUntil) {
		d.logger.Debug().
			Time("until", d.state.retryUntil).
			Str("reason", d.state.retryReason).
			Msg("pick suppressed by retry cooldown")
		return
	}

	result, skip, err := d.doPick(ctx, reason, false)
	if err != nil {
		telemetry.PicksTotal.WithLabelValues("failed").Inc()
		d.scheduleRetry(err.Error())
		return
	}
	if skip != "" {
		telemetry.PicksTotal.WithLabelValues("skipped").Inc()
		d.deps.Bus.Publish(events.EventPickSkipped, events.Payload{"reason": skip})
		d.scheduleRetry(skip)
		return
	}
	if result == nil {
		return
	}

	if err := d.deps.History.RecordPlay(ctx, result.Title, result.Artist, result.Query, result.Targets); err != nil {
		d.logger.Warn().Err(err).Msg("failed to record pick to history")
	}

	if err := d.deps.Playback.QueueNext(ctx, result.Query); err != nil {
		telemetry.PicksTotal.WithLabelValues("failed").Inc()
		d.scheduleRetry(fmt.Sprintf("queue_next failed: %v", err))
		return
	}

	d.state.nextSongQueued = true
	d.clearRetry()
	telemetry.PicksTotal.WithLabelValues("queued").Inc()
	d.deps.Bus.Publish(events.EventPickCompleted, events.Payload{
		"title":  result.Title,
		"artist": result.Artist,
		"reason": reason,
	})
	d.logger.Info().
		Str("title", result.Title).
		Str("artist", result.Artist).
		Str("reason", reason).
		Msg("pick queued")
}

func (d *Director) runSyncPick(ctx context.Context, reason string, ignoreDisabled bool) *PickResult {
	result, skip, err := d.doPick(ctx, reason, ignoreDisabled)
	if err != nil {
		telemetry.PicksTotal.WithLabelValues("failed").Inc()
		d.logger.Warn().Err(err).Str("reason", reason).Msg("synchronous pick failed")
		return nil
	}
	if skip != "" {
		telemetry.PicksTotal.WithLabelValues("skipped").Inc()
		d.logger.Info().Str("skip_reason", skip).Msg("synchronous pick skipped")
		return nil
	}
	return result
}

// doPick is the synchronous pick algorithm. It returns a nil result without
// error when the pick is rejected or debounced, a skip reason when the
// oracle declined, and an error for infrastructure failures.
func (d *Director) doPick(ctx context.Context, reason string, ignoreDisabled bool) (result *PickResult, skipReason string, err error) {
	if !d.state.enabled && !ignoreDisabled {
		telemetry.PicksTotal.WithLabelValues("rejected").Inc()
		return nil, "", nil
	}
	if d.state.pickInProgress {
		telemetry.PicksTotal.WithLabelValues("rejected").Inc()
		return nil, "", nil
	}
	d.state.pickInProgress = true
	defer func() { d.state.pickInProgress = false }()

	now := d.now()
	if !d.state.lastPickAt.IsZero() && now.Sub(d.state.lastPickAt) < d.opts.PickDebounce {
		telemetry.PicksTotal.WithLabelValues("debounced").Inc()
		return nil, "", nil
	}

	ctx, span := telemetry.StartSpan(ctx, "director", "pick")
	defer span.End()
	start := time.Now()
	defer func() { telemetry.PickDuration.Observe(time.Since(start).Seconds()) }()

	recentChat, err := d.deps.Chat.Recent(ctx, 20)
	if err != nil {
		d.logger.Warn().Err(err).Msg("chat context unavailable for plan recheck")
		recentChat = nil
	}
	refreshed := d.deps.Planner.RefreshIfNeeded(ctx, now, recentChat)

	targets, ok := d.deps.Planner.TargetsAt(now)
	if !ok {
		return nil, "", errors.New("no vibe plan available")
	}
	var filters models.MusicFilters
	if plan := d.deps.Planner.Current(); plan != nil {
		filters = plan.Filters
		d.deps.Mirror.SetPlan(ctx, plan.Payload())
		if refreshed {
			d.deps.Bus.Publish(events.EventPlanUpdated, events.Payload{
				"description": plan.Description,
			})
		}
	}

	// Catalog failure degrades to an empty shortlist; the oracle can still
	// suggest on its own.
	_, sample, err := d.deps.Shortlist.SampleForPrompt(ctx, targets, filters)
	if err != nil {
		d.logger.Warn().Err(err).Msg("shortlist unavailable, proceeding degraded")
		sample = nil
	}
	telemetry.ShortlistSize.Observe(float64(len(sample)))

	provided := make([]oracle.ProvidedSong, 0, len(sample))
	for _, match := range sample {
		provided = append(provided, oracle.ProvidedSong{
			TrackID: match.Track.ID,
			Title:   match.Track.Title,
			Artist:  match.Track.Artist,
			Genre:   match.Track.Genre,
		})
	}

	recentPlays, err := d.deps.History.Recent(ctx, 10)
	if err != nil {
		d.logger.Warn().Err(err).Msg("recent history unavailable")
		recentPlays = nil
	}
	played := make([]oracle.PlayedSong, 0, len(recentPlays))
	for _, rec := range recentPlays {
		played = append(played, oracle.PlayedSong{
			Title:    rec.Title,
			Artist:   rec.Artist,
			PlayedAt: rec.LastPlayedAt,
		})
	}
	var last *oracle.PlayedSong
	switch {
	case d.state.currentTrack != nil:
		last = &oracle.PlayedSong{Title: d.state.currentTrack.Title, Artist: d.state.currentTrack.Artist}
	case len(played) > 0:
		last = &played[0]
	}

	resp, err := d.deps.Recommender.Recommend(ctx, oracle.RecommendRequest{
		DayOfWeek:      now.Weekday().String(),
		VibeTargets:    targets,
		RecentlyPlayed: played,
		LastPlayed:     last,
		ProvidedSongs:  provided,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, "", fmt.Errorf("recommender: %w", err)
	}
	if resp.SkipMusic {
		skip := resp.SkipReason
		if skip == "" {
			skip = "oracle requested skip"
		}
		return nil, skip, nil
	}

	candidates := oracle.ShapeCandidates(resp.Candidates, provided, d.opts.MaxFromShortlist, d.opts.TotalCandidates)
	winner, err := d.deps.Selector.Choose(ctx, candidates, targets)
	if err != nil {
		return nil, "", fmt.Errorf("select candidate: %w", err)
	}
	if winner == nil {
		return nil, "no viable candidates", nil
	}

	d.state.lastPickAt = now
	return &PickResult{
		Title:       winner.Title,
		Artist:      winner.Artist,
		Query:       winner.Query,
		Rationale:   winner.Rationale,
		Score:       winner.Score,
		Probability: winner.Probability,
		Targets:     targets,
	}, "", nil
}

func (d *Director) handleBackupRequest(ctx context.Context) *selector.ScoredCandidate {
	cand := d.deps.Selector.NextBackup(ctx)
	if cand == nil {
		return nil
	}

	if err := d.deps.Playback.QueueNext(ctx, cand.Query); err != nil {
		d.logger.Warn().Err(err).Str("query", cand.Query).Msg("failed to queue backup")
	} else {
		d.state.nextSongQueued = true
	}
	d.deps.Bus.Publish(events.EventBackupConsumed, events.Payload{
		"title":  cand.Title,
		"artist": cand.Artist,
	})
	return cand
}

// pollChat advances the chat cursor and debounces a pick request when new
// content shows up. Runs on the loop between queue reads.
func (d *Director) pollChat(ctx context.Context) {
	if !d.state.enabled {
		return
	}

	messages, cursor, err := d.deps.Chat.Since(ctx, d.state.chatCursor)
	if err != nil {
		d.logger.Debug().Err(err).Msg("chat poll failed")
		return
	}
	if len(messages) == 0 {
		return
	}

	d.state.chatCursor = cursor
	telemetry.ChatMessagesSeen.Add(float64(len(messages)))
	d.deps.Mirror.SetChatCursor(ctx, cursor)

	if d.now().Sub(d.state.lastPickAt) < d.opts.PickDebounce {
		return
	}
	d.enqueue(evPickRequest{reason: "chat activity"})
}

func (d *Director) scheduleRetry(reason string) {
	d.state.retryUntil = d.now().Add(d.opts.QueueRetryDelay)
	d.state.retryReason = reason
	d.logger.Warn().
		Str("reason", reason).
		Time("until", d.state.retryUntil).
		Msg("scheduling pick retry cooldown")
}

func (d *Director) clearRetry() {
	d.state.retryUntil = time.Time{}
	d.state.retryReason = ""
}

// snapshot builds a Status from loop-owned state. Only call on the loop.
func (d *Director) snapshot(approximate bool) Status {
	now := d.now()
	st := Status{
		Enabled:            d.state.enabled,
		Continuous:         d.state.continuous,
		NextSongQueued:     d.state.nextSongQueued,
		PickInProgress:     d.state.pickInProgress,
		LastPickAt:         d.state.lastPickAt,
		RetryCooldownUntil: d.state.retryUntil,
		RetryReason:        d.state.retryReason,
		CurrentTrack:       d.state.currentTrack,
		ChatCursor:         d.state.chatCursor,
		BackupCount:        d.deps.Selector.BackupCount(),
		Approximate:        approximate,
		UpdatedAt:          now,
	}
	if plan := d.deps.Planner.Current(); plan != nil {
		st.PlanDescription = plan.Description
		targets := plan.TargetsAt(now)
		st.Targets = &targets
	}
	return st
}

func (d *Director) publishStatus(ctx context.Context) {
	st := d.snapshot(true)
	d.status.Store(&st)
	d.deps.Mirror.SetStatus(ctx, st)
}
