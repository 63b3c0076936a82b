package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml"
)

const (
	defaultDataDir          = "data"
	defaultBaseName         = "Hashir"
	defaultAutoReplyMessage = "I'll respond when I get online"

	backendTelegram = "telegram"
	backendDiscord  = "discord"
)

type Config struct {
	Backend          string
	BaseName         string
	AutoReplyMessage string
	DataDir          string

	// Telegram user account. The API hash and session string are secrets.
	TelegramAPIID   int
	TelegramAPIHash string
	SessionSecret   string

	// Discord bot acting for DiscordOwnerID inside DiscordGuildID.
	DiscordBotToken string
	DiscordGuildID  string
	DiscordOwnerID  string

	LogPath   string
	LogDebug  bool
	LogFormat string

	// StatusFile is where the status snapshot is written. Empty disables it
	// ("off" in config.toml).
	StatusFile string
}

// EffectiveConfig is the redacted view printed by `config print`.
type EffectiveConfig struct {
	Backend          string `json:"backend"`
	BaseName         string `json:"base_name"`
	AutoReplyMessage string `json:"auto_reply_message"`
	DataDir          string `json:"data_dir"`
	TelegramAPIID    int    `json:"telegram_api_id,omitempty"`
	TelegramHashSet  bool   `json:"telegram_api_hash_set"`
	SessionSecretSet bool   `json:"session_secret_set"`
	DiscordTokenSet  bool   `json:"discord_bot_token_set"`
	DiscordGuildID   string `json:"discord_guild_id,omitempty"`
	DiscordOwnerID   string `json:"discord_owner_user_id,omitempty"`
	LogPath          string `json:"log_path"`
	LogDebug         bool   `json:"log_debug"`
	LogFormat        string `json:"log_format"`
	StatusFile       string `json:"status_file,omitempty"`
}

type fileConfig struct {
	Bot      botFileConfig      `toml:"bot"`
	Telegram telegramFileConfig `toml:"telegram"`
	Discord  discordFileConfig  `toml:"discord"`
	Logging  loggingFileConfig  `toml:"logging"`
	Status   statusFileConfig   `toml:"status"`
}

type botFileConfig struct {
	Backend          string `toml:"backend" comment:"telegram or discord"`
	BaseName         string `toml:"base_name" comment:"display name without the ( Online ) / ( Offline ) suffix"`
	AutoReplyMessage string `toml:"auto_reply_message" comment:"sent once per sender while offline"`
	DataDir          string `toml:"data_dir"`
}

type telegramFileConfig struct {
	APIID int `toml:"api_id" comment:"from my.telegram.org; the api hash lives in secrets.toml"`
}

type discordFileConfig struct {
	GuildID     string `toml:"guild_id"`
	OwnerUserID string `toml:"owner_user_id" comment:"the account whose presence and nickname are managed"`
}

type loggingFileConfig struct {
	Path   string `toml:"path"`
	Debug  bool   `toml:"debug"`
	Format string `toml:"format" comment:"console or json"`
}

type statusFileConfig struct {
	File string `toml:"file" comment:"status snapshot read by 'goPresence status'; \"off\" disables"`
}

// secretsConfig holds credentials kept out of config.toml. Values override
// config.toml; environment variables override both.
type secretsConfig struct {
	TelegramAPIHash string `toml:"telegram_api_hash"`
	SessionSecret   string `toml:"session_secret" comment:"Telethon StringSession"`
	DiscordBotToken string `toml:"discord_bot_token"`
}

// defaultConfig returns the built-in defaults used for loading and for
// example generation.
func defaultConfig() Config {
	return Config{
		Backend:          backendTelegram,
		BaseName:         defaultBaseName,
		AutoReplyMessage: defaultAutoReplyMessage,
		DataDir:          defaultDataDir,
		LogPath:          filepath.Join(defaultDataDir, "logs", "goPresence.log"),
		LogFormat:        "console",
		StatusFile:       filepath.Join(defaultDataDir, "state", "status.json"),
	}
}

func defaultConfigPath(dataDir string) string {
	if strings.TrimSpace(dataDir) == "" {
		dataDir = defaultDataDir
	}
	return filepath.Join(dataDir, "config.toml")
}

func defaultSecretsPath(dataDir string) string {
	if strings.TrimSpace(dataDir) == "" {
		dataDir = defaultDataDir
	}
	return filepath.Join(dataDir, "secrets.toml")
}

// loadConfig layers defaults, config.toml, secrets.toml and the environment.
// A missing config file is created with defaults.
func loadConfig(configPath, secretsPath string) (Config, error) {
	return loadConfigLayers(configPath, secretsPath, true)
}

func loadConfigLayers(configPath, secretsPath string, createMissing bool) (Config, error) {
	cfg := defaultConfig()
	if configPath == "" {
		configPath = defaultConfigPath(cfg.DataDir)
	}

	if fc, ok, err := loadConfigFile(configPath); err != nil {
		return cfg, err
	} else if ok {
		applyFileConfig(&cfg, *fc)
	} else if !createMissing {
		return cfg, fmt.Errorf("read %s: %w", configPath, os.ErrNotExist)
	} else {
		if err := rewriteConfigFile(configPath, cfg); err != nil {
			return cfg, fmt.Errorf("write default config: %w", err)
		}
		logger.Info("created default config file", "path", configPath)
	}

	if secretsPath == "" {
		secretsPath = defaultSecretsPath(cfg.DataDir)
	}
	if sc, ok, err := loadSecretsFile(secretsPath); err != nil {
		return cfg, err
	} else if ok {
		applySecretsConfig(&cfg, *sc)
	}

	if err := applyEnvConfig(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadConfigFile(path string) (*fileConfig, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return nil, true, fmt.Errorf("parse %s: %w", path, err)
	}
	return &fc, true, nil
}

func loadSecretsFile(path string) (*secretsConfig, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}

	var sc secretsConfig
	if err := toml.Unmarshal(data, &sc); err != nil {
		return nil, true, fmt.Errorf("parse %s: %w", path, err)
	}
	return &sc, true, nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if v := strings.TrimSpace(fc.Bot.Backend); v != "" {
		cfg.Backend = strings.ToLower(v)
	}
	if v := strings.TrimSpace(fc.Bot.BaseName); v != "" {
		cfg.BaseName = v
	}
	if v := strings.TrimSpace(fc.Bot.AutoReplyMessage); v != "" {
		cfg.AutoReplyMessage = v
	}
	if v := strings.TrimSpace(fc.Bot.DataDir); v != "" {
		cfg.DataDir = v
	}
	if fc.Telegram.APIID != 0 {
		cfg.TelegramAPIID = fc.Telegram.APIID
	}
	if v := strings.TrimSpace(fc.Discord.GuildID); v != "" {
		cfg.DiscordGuildID = v
	}
	if v := strings.TrimSpace(fc.Discord.OwnerUserID); v != "" {
		cfg.DiscordOwnerID = v
	}
	if v := strings.TrimSpace(fc.Logging.Path); v != "" {
		cfg.LogPath = v
	}
	cfg.LogDebug = fc.Logging.Debug
	if v := strings.TrimSpace(fc.Logging.Format); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
	switch v := strings.TrimSpace(fc.Status.File); v {
	case "":
	case "off":
		cfg.StatusFile = ""
	default:
		cfg.StatusFile = v
	}
}

func applySecretsConfig(cfg *Config, sc secretsConfig) {
	if v := strings.TrimSpace(sc.TelegramAPIHash); v != "" {
		cfg.TelegramAPIHash = v
	}
	if v := strings.TrimSpace(sc.SessionSecret); v != "" {
		cfg.SessionSecret = v
	}
	if v := strings.TrimSpace(sc.DiscordBotToken); v != "" {
		cfg.DiscordBotToken = v
	}
}

// applyEnvConfig applies the environment variable names used by existing
// deployments of the userbot.
func applyEnvConfig(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get("API_ID"); ok {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: API_ID must be a valid integer", errInvalidConfig)
		}
		cfg.TelegramAPIID = id
	}
	if v, ok := get("API_HASH"); ok {
		cfg.TelegramAPIHash = v
	}
	if v, ok := get("SESSION_SECRET"); ok {
		cfg.SessionSecret = v
	}
	if v, ok := get("BASE_NAME"); ok {
		cfg.BaseName = v
	}
	if v, ok := get("AUTO_REPLY_MESSAGE"); ok {
		cfg.AutoReplyMessage = v
	}
	if v, ok := get("DISCORD_BOT_TOKEN"); ok {
		cfg.DiscordBotToken = v
	}
	return nil
}

func buildFileConfig(cfg Config) fileConfig {
	return fileConfig{
		Bot: botFileConfig{
			Backend:          cfg.Backend,
			BaseName:         cfg.BaseName,
			AutoReplyMessage: cfg.AutoReplyMessage,
			DataDir:          cfg.DataDir,
		},
		Telegram: telegramFileConfig{APIID: cfg.TelegramAPIID},
		Discord: discordFileConfig{
			GuildID:     cfg.DiscordGuildID,
			OwnerUserID: cfg.DiscordOwnerID,
		},
		Logging: loggingFileConfig{
			Path:   cfg.LogPath,
			Debug:  cfg.LogDebug,
			Format: cfg.LogFormat,
		},
		Status: statusFileConfig{File: cfg.StatusFile},
	}
}

func (cfg Config) Effective() EffectiveConfig {
	return EffectiveConfig{
		Backend:          cfg.Backend,
		BaseName:         cfg.BaseName,
		AutoReplyMessage: cfg.AutoReplyMessage,
		DataDir:          cfg.DataDir,
		TelegramAPIID:    cfg.TelegramAPIID,
		TelegramHashSet:  cfg.TelegramAPIHash != "",
		SessionSecretSet: cfg.SessionSecret != "",
		DiscordTokenSet:  cfg.DiscordBotToken != "",
		DiscordGuildID:   cfg.DiscordGuildID,
		DiscordOwnerID:   cfg.DiscordOwnerID,
		LogPath:          cfg.LogPath,
		LogDebug:         cfg.LogDebug,
		LogFormat:        cfg.LogFormat,
		StatusFile:       cfg.StatusFile,
	}
}

func (cfg Config) botSettings() botSettings {
	return botSettings{
		BaseName:         strings.TrimSpace(cfg.BaseName),
		AutoReplyMessage: strings.TrimSpace(cfg.AutoReplyMessage),
	}
}

// validateConfig checks everything that can be checked without talking to
// the network. The session credential itself is verified on connect.
func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.BaseName) == "" {
		return fmt.Errorf("%w: base_name is required", errInvalidConfig)
	}
	if strings.TrimSpace(cfg.AutoReplyMessage) == "" {
		return fmt.Errorf("%w: auto_reply_message is required", errInvalidConfig)
	}
	switch cfg.LogFormat {
	case "", "console", "json":
	default:
		return fmt.Errorf("%w: logging.format must be console or json, got %q", errInvalidConfig, cfg.LogFormat)
	}
	switch cfg.Backend {
	case backendTelegram:
		if cfg.TelegramAPIID <= 0 || strings.TrimSpace(cfg.TelegramAPIHash) == "" {
			return fmt.Errorf("%w: API_ID and API_HASH must be set for the telegram backend", errInvalidConfig)
		}
	case backendDiscord:
		if strings.TrimSpace(cfg.DiscordGuildID) == "" || strings.TrimSpace(cfg.DiscordOwnerID) == "" {
			return fmt.Errorf("%w: discord.guild_id and discord.owner_user_id are required for the discord backend", errInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", errInvalidConfig, cfg.Backend)
	}
	return nil
}
