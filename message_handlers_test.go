package main

import (
	"context"
	"sync"
	"testing"
)

func offlineBot(t *testing.T) (*presenceBot, *fakeSession) {
	t.Helper()
	fs := newFakeSession()
	b := newPresenceBot(fs, testSettings())
	if err := b.applyPresence(context.Background(), presenceOffline); err != nil {
		t.Fatalf("applyPresence offline: %v", err)
	}
	return b, fs
}

func TestHandleIncomingOnlyWhileOffline(t *testing.T) {
	fs := newFakeSession()
	b := newPresenceBot(fs, testSettings())
	ctx := context.Background()

	b.handleIncoming(ctx, incomingFrom("42"))
	if err := b.applyPresence(ctx, presenceOnline); err != nil {
		t.Fatalf("applyPresence: %v", err)
	}
	b.handleIncoming(ctx, incomingFrom("42"))
	if n := len(fs.messagesSent()); n != 0 {
		t.Fatalf("sent %d replies while not offline", n)
	}
}

func TestHandleIncomingIgnoresGroupsAndOutgoing(t *testing.T) {
	b, fs := offlineBot(t)
	ctx := context.Background()

	group := incomingFrom("42")
	group.Private = false
	b.handleIncoming(ctx, group)
	b.handleIncoming(ctx, outgoing())
	empty := incomingFrom("")
	b.handleIncoming(ctx, empty)
	if n := len(fs.messagesSent()); n != 0 {
		t.Fatalf("unexpected sends: %d", n)
	}
}

func TestOutgoingClearsLedgerWhileOffline(t *testing.T) {
	b, fs := offlineBot(t)
	ctx := context.Background()

	b.handleIncoming(ctx, incomingFrom("42"))
	b.handleOutgoing(ctx, outgoing())
	b.handleIncoming(ctx, incomingFrom("42"))

	sent := fs.messagesSent()
	if len(sent) != 2 {
		t.Fatalf("expected a fresh reply after outgoing message, sent=%+v", sent)
	}
	if b.currentPresence() != presenceOffline {
		t.Fatalf("outgoing message must not change presence")
	}
	if n := len(fs.namesPushed()); n != 1 {
		t.Fatalf("outgoing message pushed a name: %d updates", n)
	}
}

func TestFailedSendIsRetriedOnNextMessage(t *testing.T) {
	b, fs := offlineBot(t)
	ctx := context.Background()

	fs.mu.Lock()
	fs.sendErr = errFakeNetwork
	fs.mu.Unlock()
	b.handleIncoming(ctx, incomingFrom("42"))
	b.mu.Lock()
	present := b.ledger.contains("42")
	b.mu.Unlock()
	if present {
		t.Fatalf("failed send left sender in ledger")
	}

	fs.mu.Lock()
	fs.sendErr = nil
	fs.mu.Unlock()
	b.handleIncoming(ctx, incomingFrom("42"))
	if n := len(fs.messagesSent()); n != 1 {
		t.Fatalf("retry sent %d messages, want 1", n)
	}
}

func TestConcurrentIncomingSendsAtMostOnce(t *testing.T) {
	b, fs := offlineBot(t)
	gate := make(chan struct{})
	fs.mu.Lock()
	fs.sendGate = gate
	fs.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.handleIncoming(context.Background(), incomingFrom("42"))
		}()
	}
	close(gate)
	wg.Wait()
	if n := len(fs.messagesSent()); n != 1 {
		t.Fatalf("concurrent messages produced %d sends, want 1", n)
	}
}

func TestClearDuringInFlightSendDoesNotRecord(t *testing.T) {
	b, fs := offlineBot(t)
	gate := make(chan struct{})
	fs.mu.Lock()
	fs.sendGate = gate
	fs.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.handleIncoming(context.Background(), incomingFrom("42"))
		close(done)
	}()
	for {
		b.mu.Lock()
		reserved := b.ledger.contains("42")
		b.mu.Unlock()
		if reserved {
			break
		}
	}
	b.handleOutgoing(context.Background(), outgoing())
	close(gate)
	<-done

	b.mu.Lock()
	present := b.ledger.contains("42")
	b.mu.Unlock()
	if present {
		t.Fatalf("send completing after a clear was recorded in the new streak")
	}
	if n := len(fs.messagesSent()); n != 1 {
		t.Fatalf("sent %d, want 1", n)
	}
}
