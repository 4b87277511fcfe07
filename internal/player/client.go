/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package player maintains the websocket connection to the remote playback
// frontend and speaks its command envelope. The engine never touches audio;
// it only tells the player what to do next.
package player

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/muninn_dj/internal/telemetry"
)

// ErrNoPlayer indicates no remote player is currently connected.
var ErrNoPlayer = errors.New("no player connected")

// Command names understood by the remote player.
const (
	CommandPlay          = "play"
	CommandPause         = "pause"
	CommandNext          = "next"
	CommandPrevious      = "previous"
	CommandSearchAndPlay = "search_and_play"
	CommandSetVolume     = "set_volume"
	CommandQueueNext     = "queue_next"
)

type envelope struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TrackInfo identifies the track the player reports as current.
type TrackInfo struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// inbound is what the player pushes back over the same connection.
type inbound struct {
	Event string     `json:"event"`
	Track *TrackInfo `json:"track,omitempty"`
}

// Client holds one connection to the remote player, reconnecting with a
// fixed backoff when it drops. Commands fail fast with ErrNoPlayer while
// disconnected.
type Client struct {
	url            string
	reconnectDelay time.Duration
	logger         zerolog.Logger

	mu   sync.Mutex
	conn *ws.Conn

	onTrackChange func(*TrackInfo)
}

// New creates a player client for the given websocket URL.
func New(url string, reconnectDelay time.Duration, logger zerolog.Logger) *Client {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	return &Client{
		url:            url,
		reconnectDelay: reconnectDelay,
		logger:         logger.With().Str("component", "player").Logger(),
	}
}

// OnTrackChange registers the callback invoked when the player reports a
// track change. Must be set before Start.
func (c *Client) OnTrackChange(fn func(*TrackInfo)) {
	c.onTrackChange = fn
}

// Start runs the connect/read loop until ctx is cancelled.
func (c *Client) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Client) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := ws.Dial(ctx, c.url, nil)
		if err != nil {
			c.logger.Warn().Err(err).Str("url", c.url).Msg("player dial failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.reconnectDelay):
				continue
			}
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.logger.Info().Str("url", c.url).Msg("player connected")

		c.readLoop(ctx, conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close(ws.StatusNormalClosure, "")

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

// readLoop surfaces track-change notifications pushed by the player. Returns
// when the connection dies.
func (c *Client) readLoop(ctx context.Context, conn *ws.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ws.CloseStatus(err) != ws.StatusNormalClosure && ctx.Err() == nil {
				c.logger.Debug().Err(err).Msg("player read error")
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("invalid player message")
			continue
		}
		if msg.Event == "track_changed" && c.onTrackChange != nil {
			c.onTrackChange(msg.Track)
		}
	}
}

// Close drops the current connection, if any.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close(ws.StatusNormalClosure, "shutting down")
	}
}

// Connected reports whether a player connection is currently held.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Play resumes playback.
func (c *Client) Play(ctx context.Context) error { return c.send(ctx, CommandPlay, nil) }

// Pause pauses playback.
func (c *Client) Pause(ctx context.Context) error { return c.send(ctx, CommandPause, nil) }

// Next skips forward.
func (c *Client) Next(ctx context.Context) error { return c.send(ctx, CommandNext, nil) }

// Previous skips backward.
func (c *Client) Previous(ctx context.Context) error { return c.send(ctx, CommandPrevious, nil) }

// SearchAndPlay asks the player to find and immediately play a query.
func (c *Client) SearchAndPlay(ctx context.Context, query string) error {
	return c.send(ctx, CommandSearchAndPlay, map[string]string{"query": query})
}

// QueueNext asks the player to queue a query after the current track.
func (c *Client) QueueNext(ctx context.Context, query string) error {
	return c.send(ctx, CommandQueueNext, map[string]string{"query": query})
}

// SetVolume sets playback volume in [0,1].
func (c *Client) SetVolume(ctx context.Context, volume float64) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("volume %f out of range [0,1]", volume)
	}
	return c.send(ctx, CommandSetVolume, map[string]float64{"volume": volume})
}

func (c *Client) send(ctx context.Context, command string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		telemetry.PlayerCommandsTotal.WithLabelValues(command, "no_player").Inc()
		return ErrNoPlayer
	}

	env := envelope{Command: command}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", command, err)
		}
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", command, err)
	}

	if err := conn.Write(ctx, ws.MessageText, data); err != nil {
		telemetry.PlayerCommandsTotal.WithLabelValues(command, "error").Inc()
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		return fmt.Errorf("send %s: %w", command, err)
	}

	telemetry.PlayerCommandsTotal.WithLabelValues(command, "ok").Inc()
	c.logger.Debug().Str("command", command).Msg("player command sent")
	return nil
}
