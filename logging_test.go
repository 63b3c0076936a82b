package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAppLoggerWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "goPresence.log")
	l := newAppLogger()
	if err := l.configure(path, false, "json"); err != nil {
		t.Fatalf("configure: %v", err)
	}
	l.Debug("hidden debug line")
	l.Info("presence changed", "from", presenceUnknown, "to", presenceOffline)
	l.setDebug(true)
	l.Debug("visible debug line")
	l.Stop()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "hidden debug line") {
		t.Fatalf("debug line logged at info level:\n%s", out)
	}
	for _, want := range []string{`"msg":"presence changed"`, `"to":"offline"`, "visible debug line"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %q:\n%s", want, out)
		}
	}
}

func TestRollingFileWriterReopensRemovedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	w := newRollingFileWriter(path)
	defer w.Close()

	if _, err := w.Write([]byte("first\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Rename(path, path+".1"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := w.Write([]byte("second\n")); err != nil {
		t.Fatalf("write after rotate: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read reopened log: %v", err)
	}
	if string(data) != "second\n" {
		t.Fatalf("reopened log = %q", data)
	}
}
