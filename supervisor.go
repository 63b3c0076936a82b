package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type supervisorPhase int32

const (
	phaseStarting supervisorPhase = iota
	phaseRunning
	phaseStopping
	phaseStopped
)

func (p supervisorPhase) String() string {
	switch p {
	case phaseStarting:
		return "starting"
	case phaseRunning:
		return "running"
	case phaseStopping:
		return "stopping"
	case phaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// supervisorTask runs next to the poller for the lifetime of the session,
// e.g. the config watcher. Returning a non-nil error stops the bot.
type supervisorTask func(ctx context.Context, bot *presenceBot) error

// supervisor owns the bot lifecycle: Starting -> Running -> Stopping ->
// Stopped.
type supervisor struct {
	backend      messenger
	settings     botSettings
	pollInterval time.Duration
	status       *statusFileWriter
	tasks        []supervisorTask

	phase atomic.Int32

	mu      sync.Mutex
	session messengerSession
	bot     *presenceBot
}

func newSupervisor(backend messenger, settings botSettings) *supervisor {
	return &supervisor{
		backend:      backend,
		settings:     settings,
		pollInterval: presencePollInterval,
	}
}

func (s *supervisor) currentPhase() supervisorPhase {
	return supervisorPhase(s.phase.Load())
}

func (s *supervisor) setPhase(p supervisorPhase) {
	prev := supervisorPhase(s.phase.Swap(int32(p)))
	if prev != p {
		logger.Debug("supervisor phase", "from", prev, "to", p)
	}
	s.publishStatus()
}

// run connects, starts the poller and handlers, and blocks until the session
// disconnects or ctx is cancelled. Connect failures are returned as-is so
// the caller can treat credential errors as fatal.
func (s *supervisor) run(ctx context.Context) error {
	s.setPhase(phaseStarting)
	logger.Info("starting presence bot", "backend", s.backend.Name())

	session, err := s.backend.Connect(ctx)
	if err != nil {
		s.setPhase(phaseStopped)
		return fmt.Errorf("connect %s: %w", s.backend.Name(), err)
	}
	self := session.Self()
	logger.Info("logged in", "backend", s.backend.Name(), "name", self.DisplayName, "username", self.Username, "id", self.ID)

	bot := newPresenceBot(session, s.settings)
	if s.pollInterval > 0 {
		bot.pollInterval = s.pollInterval
	}
	bot.onChange = s.publishStatus
	s.mu.Lock()
	s.session = session
	s.bot = bot
	s.mu.Unlock()

	workers := newEventWorkers(maxConcurrentHandlers)
	session.Subscribe(eventOutgoing, workers.wrap("outgoing", bot.handleOutgoing))
	session.Subscribe(eventIncomingPrivate, workers.wrap("incoming", bot.handleIncoming))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	bot.setRunning(true)
	s.setPhase(phaseRunning)
	logger.Info("bot is running", "poll_interval", bot.pollInterval)

	g.Go(func() error {
		bot.pollLoop(gctx)
		return nil
	})
	for _, task := range s.tasks {
		g.Go(func() error {
			return task(gctx, bot)
		})
	}
	g.Go(func() error {
		defer cancel()
		err := session.RunUntilDisconnected(gctx)
		if ctx.Err() != nil {
			logger.Info("interrupt received, stopping")
		} else {
			logger.Info("session disconnected, stopping", "error", err)
		}
		s.stopping(bot)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	err = g.Wait()
	s.stopping(bot)
	workers.close()
	if cerr := session.Close(); cerr != nil {
		logger.Warn("session close failed", "error", cerr)
	}
	s.setPhase(phaseStopped)
	logger.Info("presence bot stopped")
	return err
}

func (s *supervisor) stopping(bot *presenceBot) {
	if s.currentPhase() == phaseRunning {
		s.setPhase(phaseStopping)
	}
	bot.setRunning(false)
}

func (s *supervisor) currentBot() *presenceBot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bot
}

func (s *supervisor) snapshot() statusSnapshot {
	snap := statusSnapshot{
		Backend:   s.backend.Name(),
		Phase:     s.currentPhase().String(),
		Presence:  presenceUnknown.String(),
		UpdatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	session, bot := s.session, s.bot
	s.mu.Unlock()
	if session != nil {
		self := session.Self()
		snap.Account = self.Username
		if snap.Account == "" {
			snap.Account = self.ID
		}
	}
	if bot != nil {
		bot.fillStatus(&snap)
	}
	return snap
}

func (s *supervisor) publishStatus() {
	if s.status == nil {
		return
	}
	s.status.publish(s.snapshot)
}
