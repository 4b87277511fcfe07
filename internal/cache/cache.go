/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache mirrors small pieces of engine state to Redis on a best
// effort basis: the latest status snapshot for external dashboards and the
// chat poll cursor so a restart resumes where it left off. Redis being down
// never fails an operation.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Default TTL values.
const (
	DefaultStatusTTL = 5 * time.Minute
	DefaultCursorTTL = 7 * 24 * time.Hour
	DefaultPlanTTL   = 2 * time.Hour
)

// Key names.
const (
	KeyStatus     = "muninn:cache:status"
	KeyChatCursor = "muninn:cache:chat_cursor"
	KeyPlan       = "muninn:cache:plan"
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	StatusTTL time.Duration
	CursorTTL time.Duration
	PlanTTL   time.Duration

	// If true, disable caching on Redis errors
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		StatusTTL:      DefaultStatusTTL,
		CursorTTL:      DefaultCursorTTL,
		PlanTTL:        DefaultPlanTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed mirroring with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance. A Redis that cannot be reached at init
// yields a disabled cache, not an error.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, running without state mirror")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis state mirror initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Disabled returns a cache that never touches Redis. Used when no Redis
// address is configured.
func Disabled(logger zerolog.Logger) *Cache {
	return &Cache{
		logger:   logger.With().Str("component", "cache").Logger(),
		disabled: true,
	}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling state mirror due to Redis error")
	}
}

func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}

	return true, nil
}

func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}

	return nil
}

// SetStatus mirrors the latest status snapshot. Errors are swallowed after
// the circuit breaker has seen them.
func (c *Cache) SetStatus(ctx context.Context, status any) {
	_ = c.set(ctx, KeyStatus, status, c.config.StatusTTL)
}

// SetChatCursor mirrors the chat poll cursor.
func (c *Cache) SetChatCursor(ctx context.Context, cursor time.Time) {
	_ = c.set(ctx, KeyChatCursor, cursor, c.config.CursorTTL)
}

// GetChatCursor restores the mirrored chat cursor, if any.
func (c *Cache) GetChatCursor(ctx context.Context) (time.Time, bool) {
	var cursor time.Time
	found, err := c.get(ctx, KeyChatCursor, &cursor)
	if err != nil || !found {
		return time.Time{}, false
	}
	return cursor, true
}

// SetPlan mirrors the active vibe plan payload for dashboards.
func (c *Cache) SetPlan(ctx context.Context, plan any) {
	_ = c.set(ctx, KeyPlan, plan, c.config.PlanTTL)
}

// ClearPlan removes the mirrored plan, used on disable.
func (c *Cache) ClearPlan(ctx context.Context) {
	_ = c.delete(ctx, KeyPlan)
}
