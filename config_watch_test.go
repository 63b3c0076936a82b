package main

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

const watchTestConfig = `
[bot]
backend = "telegram"
base_name = "%s"
auto_reply_message = "%s"

[telegram]
api_id = 1

[logging]
format = "%s"
`

func writeWatchConfig(t *testing.T, path, base, reply, format string) {
	t.Helper()
	writeTestFile(t, path, fmt.Sprintf(watchTestConfig, base, reply, format))
}

func newWatchFixture(t *testing.T) (*configWatcher, *presenceBot, *fakeSession, string) {
	t.Helper()
	clearPresenceEnv(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	secretsPath := filepath.Join(dir, "secrets.toml")
	writeWatchConfig(t, configPath, "Hashir", "away", "console")
	writeTestFile(t, secretsPath, "telegram_api_hash = \"hash\"\n")

	loaded, err := loadConfigLayers(configPath, secretsPath, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	fs := newFakeSession()
	bot := newPresenceBot(fs, loaded.botSettings())
	if err := bot.applyPresence(context.Background(), presenceOnline); err != nil {
		t.Fatalf("applyPresence: %v", err)
	}
	cw := newConfigWatcher(configPath, secretsPath, runtimeOverrides{}, loaded)
	cw.debounce = 10 * time.Millisecond
	return cw, bot, fs, configPath
}

func TestConfigReloadAppliesSettings(t *testing.T) {
	cw, bot, fs, configPath := newWatchFixture(t)

	writeWatchConfig(t, configPath, "Ali", "brb", "console")
	cw.reload(context.Background(), bot)

	if got := bot.currentSettings(); got.BaseName != "Ali" || got.AutoReplyMessage != "brb" {
		t.Fatalf("settings not reloaded: %+v", got)
	}
	names := fs.namesPushed()
	if len(names) != 2 || names[1] != "Ali ( Online )" {
		t.Fatalf("display name not refreshed: %v", names)
	}
}

func TestConfigReloadRejectsInvalid(t *testing.T) {
	cw, bot, fs, configPath := newWatchFixture(t)

	writeWatchConfig(t, configPath, "Ali", "brb", "xml")
	cw.reload(context.Background(), bot)

	if got := bot.currentSettings(); got.BaseName != "Hashir" {
		t.Fatalf("invalid config applied: %+v", got)
	}
	if n := len(fs.namesPushed()); n != 1 {
		t.Fatalf("invalid config pushed a name")
	}
}

func TestConfigWatcherTaskReloadsOnWrite(t *testing.T) {
	cw, bot, _, configPath := newWatchFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cw.task()(ctx, bot) }()

	deadline := time.Now().Add(5 * time.Second)
	for bot.currentSettings().BaseName != "Ali" {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("watcher did not reload config")
		}
		// Rewrite until the watcher has registered the directory.
		writeWatchConfig(t, configPath, "Ali", "brb", "console")
		time.Sleep(50 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("task returned %v", err)
	}
}
