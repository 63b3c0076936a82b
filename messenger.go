package main

import (
	"context"
	"sync"
	"time"
)

type eventKind int

const (
	eventOutgoing eventKind = iota + 1
	eventIncomingPrivate
)

func (k eventKind) String() string {
	switch k {
	case eventOutgoing:
		return "outgoing"
	case eventIncomingPrivate:
		return "incoming_private"
	default:
		return "unknown"
	}
}

// messageEvent is a transport-neutral view of one delivered message.
type messageEvent struct {
	Kind     eventKind
	SenderID string // counterparty for incoming, the account itself for outgoing
	ChatID   string
	Private  bool
	Text     string
	At       time.Time
}

type messageHandler func(ctx context.Context, ev messageEvent)

type accountInfo struct {
	ID          string
	DisplayName string
	Username    string
}

// messenger establishes sessions on a messaging network.
type messenger interface {
	Name() string
	Connect(ctx context.Context) (messengerSession, error)
}

// messengerSession is everything the bot needs from a connected account.
// Handlers may be invoked from transport goroutines.
type messengerSession interface {
	Self() accountInfo
	SelfPresence(ctx context.Context) (nativePresence, error)
	UpdateDisplayName(ctx context.Context, name string) error
	SendMessage(ctx context.Context, recipientID, text string) error
	Subscribe(kind eventKind, h messageHandler)
	// RunUntilDisconnected blocks until the transport session ends or ctx
	// is cancelled.
	RunUntilDisconnected(ctx context.Context) error
	Close() error
}

// handlerSet is the subscription table shared by the backends.
type handlerSet struct {
	mu     sync.RWMutex
	byKind map[eventKind][]messageHandler
}

func (h *handlerSet) add(kind eventKind, fn messageHandler) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byKind == nil {
		h.byKind = make(map[eventKind][]messageHandler, 2)
	}
	h.byKind[kind] = append(h.byKind[kind], fn)
}

func (h *handlerSet) dispatch(ctx context.Context, ev messageEvent) {
	h.mu.RLock()
	fns := h.byKind[ev.Kind]
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(ctx, ev)
	}
}
