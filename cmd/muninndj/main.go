/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_dj/internal/cache"
	"github.com/friendsincode/muninn_dj/internal/catalog"
	"github.com/friendsincode/muninn_dj/internal/chat"
	"github.com/friendsincode/muninn_dj/internal/config"
	"github.com/friendsincode/muninn_dj/internal/db"
	"github.com/friendsincode/muninn_dj/internal/director"
	"github.com/friendsincode/muninn_dj/internal/events"
	"github.com/friendsincode/muninn_dj/internal/history"
	"github.com/friendsincode/muninn_dj/internal/logbuffer"
	"github.com/friendsincode/muninn_dj/internal/logging"
	"github.com/friendsincode/muninn_dj/internal/oracle"
	"github.com/friendsincode/muninn_dj/internal/player"
	"github.com/friendsincode/muninn_dj/internal/scaler"
	"github.com/friendsincode/muninn_dj/internal/selector"
	"github.com/friendsincode/muninn_dj/internal/server"
	"github.com/friendsincode/muninn_dj/internal/telemetry"
	"github.com/friendsincode/muninn_dj/internal/version"
	"github.com/friendsincode/muninn_dj/internal/vibe"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
	tuning config.Tuning
	logBuf = logbuffer.New(2000)
)

var rootCmd = &cobra.Command{
	Use:   "muninndj",
	Short: "Muninn DJ - automated music selection and playback orchestration",
	Long:  "Muninn DJ decides what track to play next, when, and why, given a time-varying target vibe, a feature catalog, and play history.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the selection engine",
	Long:  "Start the consumer loop, the oracle clients, the player connection, and the control HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.SetupWithWriter(cfg.Environment, logbuffer.NewWriter(logBuf, nil))
	for _, warning := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warning)
	}

	tuning, err = config.LoadTuning(cfg.TuningPath)
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Msg("Muninn DJ starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "muninn-dj",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	var mirror *cache.Cache
	if cfg.RedisAddr != "" {
		mirrorCfg := cache.DefaultConfig()
		mirrorCfg.RedisAddr = cfg.RedisAddr
		mirrorCfg.RedisPassword = cfg.RedisPassword
		mirrorCfg.RedisDB = cfg.RedisDB
		mirror, err = cache.New(mirrorCfg, logger)
		if err != nil {
			return fmt.Errorf("initialize redis mirror: %w", err)
		}
	} else {
		mirror = cache.Disabled(logger)
	}
	defer mirror.Close()

	natsCfg := oracle.DefaultNATSConfig(cfg.NATSURL)
	natsCfg.VibeSubject = cfg.VibeSubject
	natsCfg.RecommendSubject = cfg.RecommendSubject
	natsCfg.Timeout = cfg.OracleTimeout
	oracles, err := oracle.NewNATSClient(natsCfg, logger)
	if err != nil {
		return fmt.Errorf("connect oracle transport: %w", err)
	}
	defer oracles.Close()

	sc := scaler.New(scaler.Anchors{
		LoudnessLowDB:  tuning.LoudnessLowDB,
		LoudnessHighDB: tuning.LoudnessHighDB,
		TempoLowBPM:    tuning.TempoLowBPM,
		TempoHighBPM:   tuning.TempoHighBPM,
	})

	var index catalog.Index
	switch cfg.CatalogBackendKind {
	case config.CatalogFullScan:
		index = catalog.NewFullScanIndex(database, sc)
	default:
		index = catalog.NewRangedIndex(database, sc, tuning.RangedWindow, tuning.RangedRowLimit)
	}

	store := history.NewStore(database, history.Cooldown{
		TrackRecoveryPerDay:  tuning.TrackRecoveryPerDay,
		ArtistRecoveryPerDay: tuning.ArtistRecoveryPerDay,
		TrackFloor:           tuning.TrackScoreFloor,
		ArtistFloor:          tuning.ArtistScoreFloor,
	}, logger)

	sampler := catalog.NewSampler(index, database, store, catalog.SampleOptions{
		PoolSize:         tuning.NearestPoolSize,
		SampleSize:       tuning.PromptSampleSize,
		EnergyHardDelta:  tuning.EnergyHardDelta,
		ValenceHardDelta: tuning.ValenceHardDelta,
		RecentHours:      tuning.RecentExcludeHours,
	}, logger)

	planner := vibe.NewPlanner(oracles, oracle.NoCalendar{}, vibe.PlannerOptions{
		RecheckInterval: time.Duration(tuning.PlanRecheckMinutes) * time.Minute,
		FailureBackoff:  time.Duration(tuning.OracleBackoffMinutes) * time.Minute,
	}, logger)

	playerClient := player.New(cfg.PlayerURL, cfg.PlayerReconnectDelay, logger)
	bus := events.NewBus()

	dir := director.New(director.Deps{
		Planner:     planner,
		Shortlist:   sampler,
		History:     store,
		Selector:    selector.New(store, logger),
		Recommender: oracles,
		Playback:    playerClient,
		Chat:        chat.NewSource(database),
		Mirror:      mirror,
		Bus:         bus,
	}, director.Options{
		ChatPollInterval: cfg.ChatPollInterval,
		PickDebounce:     cfg.PickDebounce,
		QueueRetryDelay:  cfg.QueueRetryDelay,
		SyncPickTimeout:  cfg.SyncPickTimeout,
		MaxFromShortlist: tuning.MaxFromShortlist,
		TotalCandidates:  tuning.TotalCandidates,
	}, logger)

	playerClient.OnTrackChange(func(track *player.TrackInfo) {
		dir.OnTrackChanged(track)
	})

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir.Start(runCtx)
	if cfg.PlayerURL != "" {
		playerClient.Start(runCtx)
	} else {
		logger.Warn().Msg("no player URL configured, playback commands will fail")
	}

	srv := server.New(cfg, dir, logBuf, logger)
	srv.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancelTimeout := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelTimeout()

	if err := srv.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	dir.Stop()
	playerClient.Close()

	if err := db.Close(database); err != nil {
		logger.Error().Err(err).Msg("database close failed")
	}

	logger.Info().Msg("Muninn DJ stopped")
	return nil
}

// initDatabase initializes the database connection (used by maintenance commands)
func initDatabase() (*gorm.DB, error) {
	database, err := db.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.RegisterCallbacks(database); err != nil {
		return nil, fmt.Errorf("register database callbacks: %w", err)
	}
	return database, nil
}
