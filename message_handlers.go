package main

import (
	"context"
	"fmt"
	"strings"
)

// handleOutgoing clears the reply ledger on every self-sent message. A sent
// message means the operator is active, whatever the polled presence says.
func (b *presenceBot) handleOutgoing(_ context.Context, ev messageEvent) {
	if ev.Kind != eventOutgoing {
		return
	}
	b.mu.Lock()
	cleared := b.ledger.clear()
	streak := b.ledger.streakID
	b.mu.Unlock()

	logger.Info("outgoing message detected, auto-reply list cleared", "chat", ev.ChatID, "replies_cleared", cleared, "streak", streak)
	b.changed()
}

// handleIncoming sends the auto-reply to a private sender at most once per
// offline streak. The sender is reserved under the lock, the send runs
// unlocked, and the outcome is recorded only if the ledger was not cleared
// meanwhile. A failed send releases the reservation.
func (b *presenceBot) handleIncoming(ctx context.Context, ev messageEvent) {
	if ev.Kind != eventIncomingPrivate || !ev.Private {
		return
	}
	sender := strings.TrimSpace(ev.SenderID)
	if sender == "" {
		return
	}

	b.mu.Lock()
	if b.presence != presenceOffline {
		b.mu.Unlock()
		return
	}
	gen, ok := b.ledger.reserve(sender)
	streak := b.ledger.streakID
	b.mu.Unlock()
	if !ok {
		logger.Debug("auto-reply already sent this streak", "user", sender, "streak", streak)
		return
	}

	text := b.currentSettings().AutoReplyMessage
	err := b.session.SendMessage(ctx, sender, text)

	b.mu.Lock()
	recorded := false
	if err != nil {
		b.ledger.release(sender, gen)
	} else {
		recorded = b.ledger.confirm(sender, gen)
	}
	b.mu.Unlock()

	if err != nil {
		logger.Error("auto-reply failed", "op", "send_message", "user", sender, "streak", streak, "error", fmt.Errorf("%w: %w", errSend, err))
		return
	}
	logger.Info("sent auto-reply", "user", sender, "streak", streak, "recorded", recorded)
	b.changed()
}
