package main

import (
	"fmt"
	"path/filepath"
	"strings"
)

// runtimeOverrides carries CLI flag values that win over every config layer.
type runtimeOverrides struct {
	backend    string
	dataDir    string
	logPath    string
	statusFile string
	debug      bool
}

func applyRuntimeOverrides(cfg *Config, overrides runtimeOverrides) error {
	if v := strings.ToLower(strings.TrimSpace(overrides.backend)); v != "" {
		switch v {
		case backendTelegram, backendDiscord:
			cfg.Backend = v
		default:
			return fmt.Errorf("%w: --backend must be %s or %s", errInvalidConfig, backendTelegram, backendDiscord)
		}
	}
	if v := strings.TrimSpace(overrides.dataDir); v != "" {
		prev := cfg.DataDir
		cfg.DataDir = v
		// Paths still pointing at the old data dir follow it.
		cfg.LogPath = rebaseDataPath(cfg.LogPath, prev, v)
		cfg.StatusFile = rebaseDataPath(cfg.StatusFile, prev, v)
	}
	if v := strings.TrimSpace(overrides.logPath); v != "" {
		cfg.LogPath = v
	}
	if v := strings.TrimSpace(overrides.statusFile); v != "" {
		if strings.EqualFold(v, "off") {
			v = ""
		}
		cfg.StatusFile = v
	}
	if overrides.debug {
		cfg.LogDebug = true
	}
	return nil
}

func rebaseDataPath(path, oldDir, newDir string) string {
	if path == "" || oldDir == "" {
		return path
	}
	rel, err := filepath.Rel(oldDir, path)
	if err != nil || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return path
	}
	return filepath.Join(newDir, rel)
}
