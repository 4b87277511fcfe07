/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestUnreachableRedisDegradesSilently(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RedisAddr = "127.0.0.1:1" // nothing listens here

	c, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New must not fail on unreachable Redis: %v", err)
	}
	if c.IsAvailable() {
		t.Error("cache reports available without Redis")
	}

	ctx := context.Background()
	c.SetStatus(ctx, map[string]any{"enabled": true})
	c.SetChatCursor(ctx, time.Now())
	if _, found := c.GetChatCursor(ctx); found {
		t.Error("GetChatCursor found a value without Redis")
	}
	c.ClearPlan(ctx)
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestDisabledCacheNoops(t *testing.T) {
	c := Disabled(zerolog.Nop())
	if c.IsAvailable() {
		t.Error("disabled cache reports available")
	}
	c.SetStatus(context.Background(), "anything")
}
