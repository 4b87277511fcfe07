/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server exposes the engine's inbound control surface and ops
// endpoints over HTTP: health, status, metrics, and the director control
// operations.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_dj/internal/config"
	"github.com/friendsincode/muninn_dj/internal/director"
	"github.com/friendsincode/muninn_dj/internal/logbuffer"
	"github.com/friendsincode/muninn_dj/internal/player"
	"github.com/friendsincode/muninn_dj/internal/telemetry"
	"github.com/friendsincode/muninn_dj/internal/version"
)

// Server bundles the control HTTP listener and the metrics listener.
type Server struct {
	cfg      *config.Config
	logger   zerolog.Logger
	director *director.Director
	logs     *logbuffer.Buffer

	httpServer    *http.Server
	metricsServer *http.Server
}

// New builds the server and its routes. logs may be nil; the log endpoints
// then report empty results.
func New(cfg *config.Config, d *director.Director, logs *logbuffer.Buffer, logger zerolog.Logger) *Server {
	if logs == nil {
		logs = logbuffer.New(0)
	}
	s := &Server{
		cfg:      cfg,
		logger:   logger.With().Str("component", "server").Logger(),
		director: d,
		logs:     logs,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(telemetry.MetricsMiddleware)

	router.Get("/healthz", s.handleHealthz)
	router.Get("/status", s.handleStatus)
	router.Get("/logs", s.handleLogs)
	router.Get("/logs/stats", s.handleLogStats)

	router.Route("/v1", func(r chi.Router) {
		r.Post("/enable", s.handleEnable)
		r.Post("/disable", s.handleDisable)
		r.Post("/continuous", s.handleContinuous)
		r.Post("/pick", s.handlePick)
		r.Post("/pick/sync", s.handlePickSync)
		r.Post("/backup", s.handleBackup)
		r.Post("/track-changed", s.handleTrackChanged)
		r.Post("/frontend-queued", s.handleFrontendQueued)
		r.Post("/playback/{command}", s.handlePlayback)
	})

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", telemetry.Handler())
	s.metricsServer = &http.Server{
		Addr:              cfg.MetricsBind,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start begins serving on both listeners. Errors other than a clean close
// are logged, not returned; the process keeps running on the other surface.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("control server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("control server failed")
		}
	}()
	go func() {
		s.logger.Info().Str("addr", s.metricsServer.Addr).Msg("metrics server listening")
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// Shutdown stops both listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if merr := s.metricsServer.Shutdown(ctx); err == nil {
		err = merr
	}
	return err
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// handleStatus returns the approximate snapshot by default; ?strict=1
// round-trips the event queue.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("strict") == "1" {
		st, err := s.director.StatusStrict(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
		return
	}
	writeJSON(w, http.StatusOK, s.director.Status())
}

// handleLogs returns recent captured log lines, newest first.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := logbuffer.QueryParams{
		Level:      q.Get("level"),
		Component:  q.Get("component"),
		Search:     q.Get("search"),
		Limit:      100,
		Descending: true,
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		params.Limit = limit
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid since %q", raw))
			return
		}
		params.Since = since
	}
	writeJSON(w, http.StatusOK, s.logs.Query(params))
}

func (s *Server) handleLogStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.logs.Stats())
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Continuous bool `json:"continuous"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.director.Enable(body.Continuous)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	s.director.Disable()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleContinuous(w http.ResponseWriter, r *http.Request) {
	var body struct {
		On bool `json:"on"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.director.SetContinuous(body.On)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handlePick(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.Reason == "" {
		body.Reason = "api request"
	}
	s.director.RequestPickAndQueue(body.Reason)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handlePickSync(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
		Once   bool   `json:"once"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.Reason == "" {
		body.Reason = "api request"
	}

	var result *director.PickResult
	if body.Once {
		result = s.director.PickSongOnce(body.Reason, s.cfg.SyncPickTimeout)
	} else {
		result = s.director.PickSong(body.Reason, s.cfg.SyncPickTimeout)
	}
	if result == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	backup := s.director.NextBackup(r.Context())
	if backup == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, backup)
}

func (s *Server) handleTrackChanged(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Track *player.TrackInfo `json:"track"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.director.OnTrackChanged(body.Track)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleFrontendQueued(w http.ResponseWriter, r *http.Request) {
	s.director.OnFrontendQueued()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query  string  `json:"query"`
		Volume float64 `json:"volume"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	var err error
	switch command := chi.URLParam(r, "command"); command {
	case player.CommandPlay:
		err = s.director.Play(ctx)
	case player.CommandPause:
		err = s.director.Pause(ctx)
	case player.CommandNext:
		err = s.director.Next(ctx)
	case player.CommandPrevious:
		err = s.director.Previous(ctx)
	case player.CommandSearchAndPlay:
		err = s.director.SearchAndPlay(ctx, body.Query)
	case player.CommandSetVolume:
		err = s.director.SetVolume(ctx, body.Volume)
	case player.CommandQueueNext:
		err = s.director.QueueNext(ctx, body.Query)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown command %q", command))
		return
	}
	if errors.Is(err, player.ErrNoPlayer) {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// decodeBody tolerates an empty body so bare POSTs work.
func decodeBody(r *http.Request, dest any) error {
	err := json.NewDecoder(r.Body).Decode(dest)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("decode request: %w", err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
