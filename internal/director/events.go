/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package director

import (
	"github.com/friendsincode/muninn_dj/internal/player"
	"github.com/friendsincode/muninn_dj/internal/selector"
)

// event is the closed set of messages the consumer loop handles. Every state
// mutation goes through one of these; nothing else touches sessionState.
type event interface{ eventName() string }

type evEnable struct {
	continuous bool
}

type evDisable struct{}

type evSetContinuous struct {
	on bool
}

type evTrackChanged struct {
	track *player.TrackInfo
}

// evPickRequest is the asynchronous pick-and-queue trigger.
type evPickRequest struct {
	reason string
}

// evPickSync is a blocking pick. The reply channel has capacity 1 so the
// loop never blocks on a caller that gave up.
type evPickSync struct {
	reason         string
	ignoreDisabled bool
	reply          chan *PickResult
}

// evBackupRequest pops the next backup candidate and queues it downstream.
type evBackupRequest struct {
	reply chan *selector.ScoredCandidate
}

// evFrontendQueued reports that the frontend accepted the queued track.
type evFrontendQueued struct{}

// evStatus round-trips the queue for a strict snapshot.
type evStatus struct {
	reply chan Status
}

type evStop struct{}

func (evEnable) eventName() string         { return "enable" }
func (evDisable) eventName() string        { return "disable" }
func (evSetContinuous) eventName() string  { return "set_continuous" }
func (evTrackChanged) eventName() string   { return "track_changed" }
func (evPickRequest) eventName() string    { return "pick_request" }
func (evPickSync) eventName() string       { return "pick_sync" }
func (evBackupRequest) eventName() string  { return "backup_request" }
func (evFrontendQueued) eventName() string { return "frontend_queued" }
func (evStatus) eventName() string         { return "status" }
func (evStop) eventName() string           { return "stop" }
