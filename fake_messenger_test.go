package main

import (
	"context"
	"errors"
	"sync"
)

type sentMessage struct {
	To   string
	Text string
}

// fakeSession records collaborator calls and lets tests script presence
// readings and failures.
type fakeSession struct {
	handlers handlerSet

	mu           sync.Mutex
	presence     nativePresence
	presenceErr  error
	updateErr    error
	sendErr      error
	names        []string
	sent         []sentMessage
	sendGate     chan struct{}
	polled       chan struct{}
	closeCalls   int
	disconnected chan struct{}
	disconnOnce  sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		presence:     nativeOther,
		disconnected: make(chan struct{}),
		polled:       make(chan struct{}, 64),
	}
}

func (f *fakeSession) Self() accountInfo {
	return accountInfo{ID: "1", DisplayName: "Hashir", Username: "hashir"}
}

func (f *fakeSession) setPresence(p nativePresence, err error) {
	f.mu.Lock()
	f.presence = p
	f.presenceErr = err
	f.mu.Unlock()
}

func (f *fakeSession) SelfPresence(ctx context.Context) (nativePresence, error) {
	f.mu.Lock()
	p, err := f.presence, f.presenceErr
	f.mu.Unlock()
	select {
	case f.polled <- struct{}{}:
	default:
	}
	return p, err
}

func (f *fakeSession) UpdateDisplayName(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.names = append(f.names, name)
	return nil
}

func (f *fakeSession) SendMessage(ctx context.Context, recipientID, text string) error {
	f.mu.Lock()
	gate := f.sendGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{To: recipientID, Text: text})
	return nil
}

func (f *fakeSession) Subscribe(kind eventKind, h messageHandler) {
	f.handlers.add(kind, h)
}

func (f *fakeSession) emit(ev messageEvent) {
	f.handlers.dispatch(context.Background(), ev)
}

func (f *fakeSession) disconnect() {
	f.disconnOnce.Do(func() { close(f.disconnected) })
}

func (f *fakeSession) RunUntilDisconnected(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.disconnected:
		return nil
	}
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	f.closeCalls++
	f.mu.Unlock()
	f.disconnect()
	return nil
}

func (f *fakeSession) namesPushed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

func (f *fakeSession) messagesSent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeMessenger struct {
	session    *fakeSession
	connectErr error
}

func (m *fakeMessenger) Name() string { return "fake" }

func (m *fakeMessenger) Connect(ctx context.Context) (messengerSession, error) {
	if m.connectErr != nil {
		return nil, m.connectErr
	}
	return m.session, nil
}

var errFakeNetwork = errors.New("network down")

func testSettings() botSettings {
	return botSettings{BaseName: "Hashir", AutoReplyMessage: "I'm away right now."}
}

func incomingFrom(sender string) messageEvent {
	return messageEvent{Kind: eventIncomingPrivate, SenderID: sender, ChatID: "user:" + sender, Private: true, Text: "hi"}
}

func outgoing() messageEvent {
	return messageEvent{Kind: eventOutgoing, SenderID: "1", ChatID: "user:7", Private: true, Text: "back"}
}
