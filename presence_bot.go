package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// presencePollInterval is how long the poller sleeps between presence
// queries, independent of how long the query took.
const presencePollInterval = 30 * time.Second

// botSettings is the read-only configuration snapshot the core consults at
// decision points. It is swapped wholesale on config reload.
type botSettings struct {
	BaseName         string
	AutoReplyMessage string
}

// presenceBot owns the presence state and reply ledger shared by the poller
// and the message handlers. mu is the only lock guarding them.
type presenceBot struct {
	session      messengerSession
	settings     atomic.Pointer[botSettings]
	pollInterval time.Duration
	onChange     func()

	mu            sync.Mutex
	presence      presenceState
	presenceSince time.Time
	pushedName    string
	ledger        *replyLedger
	running       bool
}

func newPresenceBot(session messengerSession, settings botSettings) *presenceBot {
	b := &presenceBot{
		session:      session,
		pollInterval: presencePollInterval,
		ledger:       newReplyLedger(),
	}
	b.settings.Store(&settings)
	return b
}

func (b *presenceBot) currentSettings() botSettings {
	if s := b.settings.Load(); s != nil {
		return *s
	}
	return botSettings{}
}

func (b *presenceBot) setRunning(running bool) {
	b.mu.Lock()
	b.running = running
	b.mu.Unlock()
}

func (b *presenceBot) isRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *presenceBot) currentPresence() presenceState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.presence
}

func (b *presenceBot) changed() {
	if b.onChange != nil {
		b.onChange()
	}
}

// applyPresence reacts to a freshly classified presence. Repeated identical
// input is a no-op, so the display name is pushed at most once per actual
// transition. The lock is held across ledger clear, name update and commit:
// a handler never sees a presence whose ledger clear has not happened yet.
// On update failure the state is not committed and the next tick retries.
func (b *presenceBot) applyPresence(ctx context.Context, next presenceState) error {
	if next == presenceUnknown {
		return nil
	}
	b.mu.Lock()
	if next == b.presence {
		b.mu.Unlock()
		return nil
	}
	prev := b.presence
	prevSince := b.presenceSince
	name := displayName(b.currentSettings().BaseName, next)

	cleared := -1
	if next == presenceOnline {
		cleared = b.ledger.clear()
	}
	streak := b.ledger.streakID

	if err := b.session.UpdateDisplayName(ctx, name); err != nil {
		b.mu.Unlock()
		err = fmt.Errorf("%w: update display name: %w", errSend, err)
		logger.Error("update display name failed", "op", "update_display_name", "target", name, "from", prev, "to", next, "error", err)
		if cleared > 0 {
			b.changed()
		}
		return err
	}
	now := time.Now()
	b.presence = next
	b.presenceSince = now
	b.pushedName = name
	b.mu.Unlock()

	attrs := []any{"from", prev, "to", next, "display_name", name, "streak", streak}
	if prev != presenceUnknown && !prevSince.IsZero() {
		attrs = append(attrs, "previous_for", formatLongDuration(now.Sub(prevSince)))
	}
	if cleared >= 0 {
		attrs = append(attrs, "replies_cleared", cleared)
	}
	logger.Info("presence changed", attrs...)
	b.changed()
	return nil
}

// refreshDisplayName re-pushes the display name after the base name changed
// so the pushed name keeps matching the committed presence.
func (b *presenceBot) refreshDisplayName(ctx context.Context) error {
	b.mu.Lock()
	if b.presence == presenceUnknown {
		b.mu.Unlock()
		return nil
	}
	name := displayName(b.currentSettings().BaseName, b.presence)
	prevName := b.pushedName
	if name == prevName {
		b.mu.Unlock()
		return nil
	}
	if err := b.session.UpdateDisplayName(ctx, name); err != nil {
		b.mu.Unlock()
		err = fmt.Errorf("%w: update display name: %w", errSend, err)
		logger.Error("refresh display name failed", "op", "update_display_name", "target", name, "error", err)
		return err
	}
	b.pushedName = name
	b.mu.Unlock()

	logger.Info("display name refreshed", "display_name", name, "previous", prevName)
	b.changed()
	return nil
}

// updateSettings swaps in a new settings snapshot and reports whether the
// base name changed.
func (b *presenceBot) updateSettings(next botSettings) bool {
	next.BaseName = strings.TrimSpace(next.BaseName)
	prev := b.settings.Swap(&next)
	return prev == nil || prev.BaseName != next.BaseName
}
