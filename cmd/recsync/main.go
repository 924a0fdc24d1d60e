// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command recsync syncs recordings from an attached recorder to local disk.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ManuGH/recsync/internal/log"
	"github.com/ManuGH/recsync/internal/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "recsync",
		Short:         "Sync recordings from a USB recorder",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.String(),
	}
	root.AddCommand(
		newDaemonCmd(),
		newCatalogCmd(),
		newRegistryCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	log.Configure(log.Config{
		Level:   "info",
		Service: "recsync",
		Version: version.Version,
	})

	if err := newRootCmd().Execute(); err != nil {
		log.L().Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
