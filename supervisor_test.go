package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSupervisorLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	fs := newFakeSession()
	fs.setPresence(nativeOffline, nil)
	statusPath := filepath.Join(t.TempDir(), "status.json")
	sup := newSupervisor(&fakeMessenger{session: fs}, testSettings())
	sup.pollInterval = 10 * time.Millisecond
	sup.status = newStatusFileWriter(statusPath)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.run(ctx) }()

	waitFor(t, "offline name", func() bool {
		names := fs.namesPushed()
		return len(names) == 1 && names[0] == "Hashir ( Offline )"
	})
	if sup.currentPhase() != phaseRunning {
		t.Fatalf("phase = %v, want running", sup.currentPhase())
	}

	fs.emit(incomingFrom("42"))
	waitFor(t, "auto-reply", func() bool { return len(fs.messagesSent()) == 1 })

	snap, err := readStatusFile(statusPath)
	if err != nil {
		t.Fatalf("readStatusFile: %v", err)
	}
	if snap.Presence != "offline" || snap.Backend != "fake" || snap.Account != "hashir" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("supervisor did not stop")
	}
	if sup.currentPhase() != phaseStopped {
		t.Fatalf("phase = %v, want stopped", sup.currentPhase())
	}
	if fs.closeCalls != 1 {
		t.Fatalf("session closed %d times", fs.closeCalls)
	}
	snap, err = readStatusFile(statusPath)
	if err != nil || snap.Phase != "stopped" {
		t.Fatalf("final snapshot phase=%q err=%v", snap.Phase, err)
	}
}

func TestSupervisorStopsOnDisconnect(t *testing.T) {
	defer goleak.VerifyNone(t)

	fs := newFakeSession()
	sup := newSupervisor(&fakeMessenger{session: fs}, testSettings())
	sup.pollInterval = 10 * time.Millisecond
	taskDone := make(chan struct{})
	sup.tasks = append(sup.tasks, func(ctx context.Context, bot *presenceBot) error {
		<-ctx.Done()
		close(taskDone)
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- sup.run(context.Background()) }()
	<-fs.polled
	fs.disconnect()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("supervisor did not stop after disconnect")
	}
	<-taskDone
	if bot := sup.currentBot(); bot == nil || bot.isRunning() {
		t.Fatalf("bot still running after disconnect")
	}
}

func TestSupervisorConnectFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	sup := newSupervisor(&fakeMessenger{connectErr: errSessionCredential}, testSettings())
	err := sup.run(context.Background())
	if !errors.Is(err, errSessionCredential) || !isFatalStartupError(err) {
		t.Fatalf("expected fatal credential error, got %v", err)
	}
	if sup.currentPhase() != phaseStopped {
		t.Fatalf("phase = %v, want stopped", sup.currentPhase())
	}
}

func TestSupervisorPhaseString(t *testing.T) {
	want := map[supervisorPhase]string{
		phaseStarting: "starting",
		phaseRunning:  "running",
		phaseStopping: "stopping",
		phaseStopped:  "stopped",
	}
	for p, s := range want {
		if p.String() != s {
			t.Fatalf("%d.String() = %q want %q", p, p.String(), s)
		}
	}
}
