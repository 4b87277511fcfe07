/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Selection engine metrics.
var (
	PicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_picks_total",
		Help: "Pick attempts by outcome (queued, skipped, failed, rejected, debounced).",
	}, []string{"result"})

	PickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "muninn_pick_duration_seconds",
		Help:    "Wall time of a full synchronous pick (oracle latency included).",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	OracleRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_oracle_requests_total",
		Help: "Oracle round trips by oracle name and outcome.",
	}, []string{"oracle", "result"})

	OracleRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "muninn_oracle_request_duration_seconds",
		Help:    "Oracle round trip latency.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"oracle"})

	ShortlistSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "muninn_shortlist_size",
		Help:    "Number of catalog tracks handed to the recommender oracle.",
		Buckets: prometheus.LinearBuckets(0, 2, 11),
	})

	BackupConsumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muninn_backup_consumed_total",
		Help: "Backup-queue entries promoted after a downstream queue failure.",
	})

	PlayerCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_player_commands_total",
		Help: "Playback commands sent to the remote player by command and outcome.",
	}, []string{"command", "result"})

	ChatMessagesSeen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muninn_chat_messages_seen_total",
		Help: "Chat messages observed by the poll loop.",
	})
)

// Infrastructure metrics.
var (
	DBQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "muninn_db_query_duration_seconds",
		Help:    "GORM operation latency by operation kind and outcome.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"operation", "result"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_api_requests_total",
		Help: "Ops HTTP requests by method, endpoint, and status.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "muninn_api_request_duration_seconds",
		Help:    "Ops HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "muninn_api_active_connections",
		Help: "In-flight ops HTTP requests.",
	})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
