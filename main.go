package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	debugpkg "runtime/debug"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildTime    = ""
)

// cliFlags holds the flag values shared by every subcommand.
type cliFlags struct {
	configPath  string
	secretsPath string
	dataDir     string
	backend     string
	logPath     string
	statusFile  string
	stdout      bool
	debug       bool
	noWatch     bool
}

func (f *cliFlags) overrides() runtimeOverrides {
	return runtimeOverrides{
		backend:    f.backend,
		dataDir:    f.dataDir,
		logPath:    f.logPath,
		statusFile: f.statusFile,
		debug:      f.debug,
	}
}

func (f *cliFlags) paths() (string, string) {
	configPath, secretsPath := f.configPath, f.secretsPath
	if configPath == "" {
		configPath = defaultConfigPath(f.dataDir)
	}
	if secretsPath == "" {
		secretsPath = defaultSecretsPath(f.dataDir)
	}
	return configPath, secretsPath
}

// load resolves every config layer plus the CLI overrides.
func (f *cliFlags) load(createMissing bool) (Config, error) {
	configPath, secretsPath := f.paths()
	cfg, err := loadConfigLayers(configPath, secretsPath, createMissing)
	if err != nil {
		return cfg, err
	}
	if err := applyRuntimeOverrides(&cfg, f.overrides()); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func main() {
	// Top-level panic handler: ensure any unexpected panic is captured to
	// panic.log with a stack trace so operators can inspect it.
	defer func() {
		if r := recover(); r != nil {
			path := "panic.log"
			if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				defer f.Close()
				ts := time.Now().UTC().Format(time.RFC3339)
				fmt.Fprintf(f, "[%s] panic: %v\nbuild_time=%s\n%s\n\n",
					ts, r, buildTime, debugpkg.Stack())
			}
			panic(r)
		}
	}()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &cliFlags{}
	cmd := &cobra.Command{
		Use:           "goPresence",
		Short:         "Mirror account presence into the display name and auto-reply while away",
		Version:       buildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), flags)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to config.toml (default <data-dir>/config.toml)")
	pf.StringVar(&flags.secretsPath, "secrets", "", "path to secrets.toml (default <data-dir>/secrets.toml)")
	pf.StringVar(&flags.dataDir, "data-dir", "", "override data directory")
	pf.StringVar(&flags.backend, "backend", "", "override backend: telegram or discord")
	pf.StringVar(&flags.logPath, "log-file", "", "override log file path")
	pf.StringVar(&flags.statusFile, "status-file", "", "override status snapshot path (\"off\" disables)")
	pf.BoolVar(&flags.stdout, "stdout", false, "mirror logs to stdout")
	pf.BoolVar(&flags.debug, "debug", false, "enable debug logging")
	cmd.Flags().BoolVar(&flags.noWatch, "no-watch", false, "disable live config reload")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the presence bot (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), flags)
		},
	}
	runCmd.Flags().BoolVar(&flags.noWatch, "no-watch", false, "disable live config reload")

	cmd.AddCommand(runCmd)
	cmd.AddCommand(newConfigCmd(flags))
	cmd.AddCommand(newStatusCmd(flags))
	return cmd
}

func runBot(parent context.Context, flags *cliFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := flags.load(true)
	if err != nil {
		fatal("config", err)
	}
	if err := validateConfig(cfg); err != nil {
		fatal("config", err)
	}
	logger.setDebug(cfg.LogDebug)
	if err := logger.configure(cfg.LogPath, flags.stdout, cfg.LogFormat); err != nil {
		fatal("logging", err)
	}
	defer logger.Stop()

	if written, err := ensureExampleFiles(cfg.DataDir); err != nil {
		logger.Warn("write example configs failed", "error", err)
	} else if len(written) > 0 {
		logger.Debug("wrote example configs", "files", written)
	}

	logger.Info("goPresence starting",
		"version", buildVersion,
		"backend", cfg.Backend,
		"base_name", cfg.BaseName,
		"data_dir", cfg.DataDir,
	)

	sup := newSupervisor(newMessenger(cfg), cfg.botSettings())
	sup.status = newStatusFileWriter(cfg.StatusFile)
	if !flags.noWatch {
		configPath, secretsPath := flags.paths()
		sup.tasks = append(sup.tasks, newConfigWatcher(configPath, secretsPath, flags.overrides(), cfg).task())
	}

	err = sup.run(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return nil
	case isFatalStartupError(err):
		fatal("startup", err, "backend", cfg.Backend)
	default:
		logger.Error("presence bot exited", "error", err)
	}
	return err
}

func newMessenger(cfg Config) messenger {
	if cfg.Backend == backendDiscord {
		return newDiscordMessenger(cfg)
	}
	return newTelegramMessenger(cfg)
}

func newConfigCmd(flags *cliFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or scaffold configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "example",
		Short: "Write example config files into <data-dir>/config/examples",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dataDir := flags.dataDir
			if dataDir == "" {
				dataDir = defaultDataDir
			}
			written, err := ensureExampleFiles(dataDir)
			if err != nil {
				return err
			}
			for _, path := range written {
				fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load(false)
			if err != nil {
				return err
			}
			out, err := fastJSONMarshalIndent(cfg.Effective())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if err := validateConfig(cfg); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", err)
			}
			return nil
		},
	})
	return cmd
}

func newStatusCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last status snapshot written by a running bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load(false)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if cfg.StatusFile == "" {
				return fmt.Errorf("status file is disabled")
			}
			snap, err := readStatusFile(cfg.StatusFile)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatStatus(snap, time.Now()))
			return nil
		},
	}
}
