package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml"
)

var secretsConfigExample = []byte(`# Credentials kept out of config.toml. Environment variables
# (API_HASH, SESSION_SECRET, DISCORD_BOT_TOKEN) override these values.

telegram_api_hash = ""

# Telethon StringSession for the account to automate.
session_secret = ""

discord_bot_token = ""
`)

func ensureExampleFiles(dataDir string) ([]string, error) {
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	examplesDir := filepath.Join(dataDir, "config", "examples")
	if err := os.MkdirAll(examplesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create examples directory %s: %w", examplesDir, err)
	}

	configBytes, err := exampleConfigBytes()
	if err != nil {
		return nil, err
	}
	written := make([]string, 0, 2)
	for path, contents := range map[string][]byte{
		filepath.Join(examplesDir, "config.toml.example"):  configBytes,
		filepath.Join(examplesDir, "secrets.toml.example"): secretsConfigExample,
	} {
		if err := os.WriteFile(path, contents, 0o644); err != nil {
			return written, fmt.Errorf("write example %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func exampleHeader(text string) []byte {
	return []byte(fmt.Sprintf("# Generated %s example (copy to a real config and edit as needed)\n\n", text))
}

func exampleConfigBytes() ([]byte, error) {
	cfg := defaultConfig()
	cfg.TelegramAPIID = 123456
	cfg.DiscordGuildID = "YOUR_GUILD_ID"
	cfg.DiscordOwnerID = "YOUR_DISCORD_USER_ID"
	data, err := toml.Marshal(buildFileConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("encode config example: %w", err)
	}
	return append(exampleHeader("base config"), data...), nil
}

func rewriteConfigFile(path string, cfg Config) error {
	data, err := toml.Marshal(buildFileConfig(cfg))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return writeFileAtomic(path, data, 0o644)
}
