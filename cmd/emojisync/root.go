package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/nvr-ai/emojisync/config"
	"github.com/spf13/cobra"
)

// Version is the application version.
const Version = "0.1.0"

// DefaultConfigFile is loaded from the working directory when --config is not given.
const DefaultConfigFile = "emojisync.yaml"

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	runID  string
}

type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	// Ctrl+C and SIGTERM cancel the command context.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := rootCmd()
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func rootCmd() *cobra.Command {
	var (
		flags rootFlags
		a     = &app{}
	)

	cmd := &cobra.Command{
		Use:           "emojisync",
		Short:         "Show your facial emotion as an emoji, live",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, os.Getenv)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.runID = uuid.NewString()
			a.logger, err = newLogger(cfg.Log, cmd.ErrOrStderr(), a.runID)
			if err != nil {
				return err
			}
			slog.SetDefault(a.logger)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML, default ./"+DefaultConfigFile+" if present)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Log format (text, json)")

	cmd.AddCommand(runCmd(a), previewCmd(a), classifyCmd(a), announceCmd(a), configCmd(), versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "emojisync version %s\n", Version)
		},
	}
}

// loadConfig layers defaults, the config file, EMOJISYNC_* variables and flags.
func loadConfig(flags rootFlags, getenv func(string) string) (*config.Config, error) {
	path := flags.configPath
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}

	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}
	return cfg, nil
}

// newLogger builds the process logger. Every record carries the run id.
func newLogger(cfg config.LogConfig, w io.Writer, runID string) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("log.format must be text or json, got %q", cfg.Format)
	}
	return slog.New(handler).With(slog.String("run_id", runID)), nil
}
