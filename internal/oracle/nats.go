/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_dj/internal/telemetry"
)

// NATSConfig contains oracle transport configuration.
type NATSConfig struct {
	URL              string
	VibeSubject      string
	RecommendSubject string
	Timeout          time.Duration

	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns sensible connection defaults.
func DefaultNATSConfig(url string) NATSConfig {
	return NATSConfig{
		URL:              url,
		VibeSubject:      "muninn.oracle.vibe",
		RecommendSubject: "muninn.oracle.recommend",
		Timeout:          60 * time.Second,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
	}
}

// NATSClient implements both oracle interfaces over NATS request/reply with
// JSON payloads. The oracle services subscribe on the configured subjects.
type NATSClient struct {
	conn   *nats.Conn
	cfg    NATSConfig
	logger zerolog.Logger
}

// NewNATSClient connects to NATS and returns a client for both oracles.
func NewNATSClient(cfg NATSConfig, logger zerolog.Logger) (*NATSClient, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("oracle transport disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("oracle transport reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect oracle transport: %w", err)
	}

	return &NATSClient{
		conn:   conn,
		cfg:    cfg,
		logger: logger.With().Str("component", "oracle").Logger(),
	}, nil
}

// Close drains the connection.
func (c *NATSClient) Close() error {
	return c.conn.Drain()
}

// Plan implements VibeOracle.
func (c *NATSClient) Plan(ctx context.Context, req VibeRequest) (*PlanPayload, error) {
	var plan PlanPayload
	if err := c.roundTrip(ctx, "vibe", c.cfg.VibeSubject, req, &plan); err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		telemetry.OracleRequestsTotal.WithLabelValues("vibe", "malformed").Inc()
		return nil, fmt.Errorf("vibe plan out of contract: %w", err)
	}
	return &plan, nil
}

// Recommend implements RecommenderOracle.
func (c *NATSClient) Recommend(ctx context.Context, req RecommendRequest) (*RecommendResponse, error) {
	var resp RecommendResponse
	if err := c.roundTrip(ctx, "recommend", c.cfg.RecommendSubject, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 && !resp.SkipMusic {
		telemetry.OracleRequestsTotal.WithLabelValues("recommend", "malformed").Inc()
		return nil, fmt.Errorf("recommender returned no candidates: %w", ErrMalformed)
	}
	return &resp, nil
}

func (c *NATSClient) roundTrip(ctx context.Context, name, subject string, req, resp any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", name, err)
	}

	callCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	msg, err := c.conn.RequestWithContext(callCtx, subject, payload)
	telemetry.OracleRequestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.OracleRequestsTotal.WithLabelValues(name, "unavailable").Inc()
		c.logger.Warn().Err(err).Str("oracle", name).Msg("oracle request failed")
		return fmt.Errorf("%s request: %w", name, ErrUnavailable)
	}

	if err := json.Unmarshal(msg.Data, resp); err != nil {
		telemetry.OracleRequestsTotal.WithLabelValues(name, "malformed").Inc()
		return fmt.Errorf("decode %s response: %w", name, ErrMalformed)
	}

	telemetry.OracleRequestsTotal.WithLabelValues(name, "ok").Inc()
	return nil
}
