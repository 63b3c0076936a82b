package main

import (
	"context"
	"sync"
	"time"

	"github.com/remeh/sizedwaitgroup"
)

const (
	// maxConcurrentHandlers bounds how many message handlers run at once.
	maxConcurrentHandlers = 16
	// collaboratorCallTimeout bounds a single send, update or query so no
	// operation blocks indefinitely.
	collaboratorCallTimeout = 30 * time.Second
)

// eventWorkers runs message handlers off the transport's delivery goroutine.
// close waits for every in-flight handler.
type eventWorkers struct {
	swg    sizedwaitgroup.SizedWaitGroup
	mu     sync.RWMutex
	closed bool
}

func newEventWorkers(limit int) *eventWorkers {
	if limit <= 0 {
		limit = 1
	}
	return &eventWorkers{swg: sizedwaitgroup.New(limit)}
}

// wrap returns a handler that dispatches ev onto the worker group. In-flight
// handlers are not cancelled by ctx; they run until the call timeout.
func (w *eventWorkers) wrap(name string, h messageHandler) messageHandler {
	return func(ctx context.Context, ev messageEvent) {
		w.mu.RLock()
		defer w.mu.RUnlock()
		if w.closed {
			return
		}
		if err := w.swg.AddWithContext(ctx); err != nil {
			logger.Warn("message handler dropped", "handler", name, "kind", ev.Kind, "error", err)
			return
		}
		base := context.WithoutCancel(ctx)
		go func() {
			defer w.swg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Error("message handler panic", "handler", name, "kind", ev.Kind, "error", r)
				}
			}()
			callCtx, cancel := context.WithTimeout(base, collaboratorCallTimeout)
			defer cancel()
			h(callCtx, ev)
		}()
	}
}

// close stops accepting events and waits for running handlers.
func (w *eventWorkers) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.swg.Wait()
}
