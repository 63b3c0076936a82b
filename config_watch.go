package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const configReloadDebounce = 500 * time.Millisecond

// configWatcher reloads config.toml / secrets.toml on change and pushes the
// new settings snapshot into the running bot.
type configWatcher struct {
	configPath  string
	secretsPath string
	overrides   runtimeOverrides
	loaded      Config
	debounce    time.Duration
}

func newConfigWatcher(configPath, secretsPath string, overrides runtimeOverrides, loaded Config) *configWatcher {
	return &configWatcher{
		configPath:  filepath.Clean(configPath),
		secretsPath: filepath.Clean(secretsPath),
		overrides:   overrides,
		loaded:      loaded,
		debounce:    configReloadDebounce,
	}
}

// task adapts the watcher to the supervisor. Watch setup failures only
// disable live reload.
func (cw *configWatcher) task() supervisorTask {
	return func(ctx context.Context, bot *presenceBot) error {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			logger.Warn("config watch disabled", "error", err)
			return nil
		}
		defer w.Close()

		// Watch directories so editors that replace files by rename keep
		// being observed.
		dirs := map[string]struct{}{filepath.Dir(cw.configPath): {}, filepath.Dir(cw.secretsPath): {}}
		for dir := range dirs {
			if err := w.Add(dir); err != nil {
				logger.Warn("config watch failed", "dir", dir, "error", err)
			}
		}
		logger.Debug("watching config", "config", cw.configPath, "secrets", cw.secretsPath)

		var reload <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					return nil
				}
				name := filepath.Clean(ev.Name)
				if name != cw.configPath && name != cw.secretsPath {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
					reload = time.After(cw.debounce)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return nil
				}
				logger.Warn("config watch error", "error", err)
			case <-reload:
				reload = nil
				cw.reload(ctx, bot)
			}
		}
	}
}

func (cw *configWatcher) reload(ctx context.Context, bot *presenceBot) {
	cfg, err := loadConfigLayers(cw.configPath, cw.secretsPath, false)
	if err == nil {
		err = applyRuntimeOverrides(&cfg, cw.overrides)
	}
	if err == nil {
		err = validateConfig(cfg)
	}
	if err != nil {
		logger.Warn("config reload rejected, keeping current settings", "path", cw.configPath, "error", err)
		return
	}

	if cfg.Backend != cw.loaded.Backend ||
		cfg.TelegramAPIID != cw.loaded.TelegramAPIID ||
		cfg.TelegramAPIHash != cw.loaded.TelegramAPIHash ||
		cfg.SessionSecret != cw.loaded.SessionSecret ||
		cfg.DiscordBotToken != cw.loaded.DiscordBotToken ||
		cfg.DiscordGuildID != cw.loaded.DiscordGuildID ||
		cfg.DiscordOwnerID != cw.loaded.DiscordOwnerID {
		logger.Warn("backend or credential change detected; restart to apply")
	}

	settings := cfg.botSettings()
	baseChanged := bot.updateSettings(settings)
	logger.Info("config reloaded", "base_name", settings.BaseName, "auto_reply_message", settings.AutoReplyMessage)
	if baseChanged {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), collaboratorCallTimeout)
		defer cancel()
		_ = bot.refreshDisplayName(callCtx)
	}
}
