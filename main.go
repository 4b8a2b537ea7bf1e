package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/olivoil/livewatch/internal/app"
	"github.com/olivoil/livewatch/internal/backend"
	"github.com/olivoil/livewatch/internal/files"
)

var version = "dev"

type flags struct {
	config   string
	logFile  string
	logLevel string
	mode     string
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   backend.AppName + " [DIR]",
		Short: "Watch a directory tree and view its files as they change",
		Long: `livewatch keeps every text file under DIR loaded in memory and follows
edits, renames and deletions as they happen. Without DIR, open one from
inside the viewer with "o".`,
		Args:          cobra.MaximumNArgs(1),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			var root string
			if len(args) == 1 {
				root = args[0]
			}

			logger, err := backend.NewLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx, app.Options{Config: cfg, Root: root, Logger: logger})
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.config, "config", backend.DefaultConfigPath(), "config file")
	fl.StringVar(&f.logFile, "log-file", "", "structured log file (default from config)")
	fl.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fl.StringVar(&f.mode, "mode", "", "initial view mode: whole, lines, all-lines")
	return cmd
}

// loadConfig reads the config file and lays explicitly set flags over it.
func loadConfig(cmd *cobra.Command, f flags) (backend.Config, error) {
	cfg, err := backend.ReadConfigFile(f.config)
	if err != nil {
		return cfg, err
	}
	fl := cmd.Flags()
	if fl.Changed("log-file") {
		cfg.Log.File = f.logFile
	}
	if fl.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if fl.Changed("mode") {
		mode, err := files.ParseViewMode(f.mode)
		if err != nil {
			return cfg, err
		}
		cfg.View.Mode = mode
	}
	return cfg, nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
