package main

import (
	"context"
	"fmt"
	"time"
)

// pollLoop queries the account's own presence until the running flag is
// cleared. Query failures are logged and never stop the loop.
func (b *presenceBot) pollLoop(ctx context.Context) {
	for b.isRunning() {
		b.pollOnce(ctx)
		if !b.isRunning() || !sleepCtx(ctx, b.pollInterval) {
			return
		}
	}
}

func (b *presenceBot) pollOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("presence poll panic", "op", "poll", "error", r)
		}
	}()
	// In-flight collaborator calls run to completion; only the loop itself
	// observes cancellation.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), collaboratorCallTimeout)
	defer cancel()
	reading, err := b.session.SelfPresence(callCtx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn("presence check failed", "op", "get_self_presence", "error", fmt.Errorf("%w: %w", errPresenceQuery, err))
		return
	}
	next, ok := classifyPresence(reading)
	if !ok {
		logger.Debug("presence reading ignored", "reading", reading)
		return
	}
	if err := b.applyPresence(callCtx, next); err != nil {
		return
	}
	// Retries a base-name refresh that failed after a config reload.
	_ = b.refreshDisplayName(callCtx)
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
