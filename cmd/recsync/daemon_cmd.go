// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuGH/recsync/internal/config"
	"github.com/ManuGH/recsync/internal/daemon"
	"github.com/ManuGH/recsync/internal/log"
	"github.com/ManuGH/recsync/internal/version"
)

func newDaemonCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the sync daemon",
		Long: `Runs the download worker, device watcher and HTTP API until
interrupted. Configuration comes from --config (YAML) and RECSYNC_*
environment variables; SIGHUP reloads the file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	return cmd
}

func runDaemon(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: "recsync",
		Version: version.Version,
	})
	logger := log.WithComponent("daemon")
	logger.Info().
		Str("version", version.Version).
		Str("config", configPath).
		Str("data_dir", cfg.DataDir).
		Str("device_root", cfg.Device.Root).
		Msg("starting recsync")

	app, err := daemon.Build(ctx, config.NewHolder(cfg, loader), daemon.Options{})
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		return err
	}
	logger.Info().Msg("recsync stopped")
	return nil
}
