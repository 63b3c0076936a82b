package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// statusSnapshot is what the running bot exposes for `goPresence status`.
type statusSnapshot struct {
	Backend       string    `json:"backend"`
	Account       string    `json:"account,omitempty"`
	Phase         string    `json:"phase"`
	Presence      string    `json:"presence"`
	DisplayName   string    `json:"display_name,omitempty"`
	StreakID      string    `json:"streak_id,omitempty"`
	RepliedCount  int       `json:"replied_count"`
	PresenceSince time.Time `json:"presence_since,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (b *presenceBot) fillStatus(snap *statusSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap.Presence = b.presence.String()
	snap.DisplayName = b.pushedName
	snap.StreakID = b.ledger.streakID
	snap.RepliedCount = b.ledger.sentCount()
	if !b.presenceSince.IsZero() {
		snap.PresenceSince = b.presenceSince.UTC()
	}
}

type statusFileWriter struct {
	path string
	mu   sync.Mutex
}

func newStatusFileWriter(path string) *statusFileWriter {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return &statusFileWriter{path: path}
}

// publish takes the snapshot under the writer lock so concurrent publishers
// never overwrite a newer snapshot with an older one.
func (w *statusFileWriter) publish(snapshot func() statusSnapshot) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := writeStatusFile(w.path, snapshot()); err != nil {
		logger.Warn("write status file failed", "path", w.path, "error", err)
	}
}

func writeStatusFile(path string, snap statusSnapshot) error {
	data, err := fastJSONMarshalIndent(snap)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'), 0o644)
}

func readStatusFile(path string) (statusSnapshot, error) {
	var snap statusSnapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, fmt.Errorf("read %s: %w", path, err)
	}
	if err := fastJSONUnmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("parse %s: %w", path, err)
	}
	return snap, nil
}

// formatStatus renders a snapshot for humans relative to now.
func formatStatus(snap statusSnapshot, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "backend:       %s\n", snap.Backend)
	if snap.Account != "" {
		fmt.Fprintf(&b, "account:       %s\n", snap.Account)
	}
	fmt.Fprintf(&b, "phase:         %s\n", snap.Phase)
	presence := snap.Presence
	if !snap.PresenceSince.IsZero() {
		presence += " for " + formatLongDuration(now.Sub(snap.PresenceSince))
	}
	fmt.Fprintf(&b, "presence:      %s\n", presence)
	if snap.DisplayName != "" {
		fmt.Fprintf(&b, "display name:  %s\n", snap.DisplayName)
	}
	fmt.Fprintf(&b, "auto-replied:  %d\n", snap.RepliedCount)
	if !snap.UpdatedAt.IsZero() {
		age := humanShortDuration(now.Sub(snap.UpdatedAt))
		if age != "just now" {
			age += " ago"
		}
		fmt.Fprintf(&b, "updated:       %s\n", age)
	}
	return b.String()
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmpFile.Name()
	removeTemp := true
	defer func() {
		if tmpFile != nil {
			_ = tmpFile.Close()
		}
		if removeTemp {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	tmpFile = nil

	if err := os.Chmod(tmpName, perm); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmpName, path, err)
	}
	removeTemp = false
	return nil
}
