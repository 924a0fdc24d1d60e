// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ManuGH/recsync/internal/config"
	"github.com/ManuGH/recsync/internal/persistence/sqlite"
	"github.com/ManuGH/recsync/internal/registry"
	"github.com/ManuGH/recsync/internal/version"
)

// errIntegrity marks a registry that failed its integrity pragma.
var errIntegrity = errors.New("registry integrity check failed")

func newRegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Maintain the synced-files registry",
	}
	cmd.AddCommand(newRegistryVerifyCmd())
	return cmd
}

func newRegistryVerifyCmd() *cobra.Command {
	var (
		configPath string
		dbPath     string
		mode       string
		prune      bool
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check registry integrity and find records whose file is gone",
		Long: `Runs SQLite's integrity pragma on the registry, then lists records
whose local file no longer exists. With --prune those records are removed
so the recordings download again on the next sync.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dbPath == "" {
				cfg, err := config.NewLoader(configPath, version.Version).Load()
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				dbPath = filepath.Join(cfg.DataDir, registry.DBFileName)
			}
			if _, err := os.Stat(dbPath); err != nil {
				return fmt.Errorf("registry database: %w", err)
			}

			out := cmd.OutOrStdout()
			problems, err := sqlite.VerifyIntegrity(dbPath, mode)
			if err != nil {
				return err
			}
			if len(problems) > 0 {
				fmt.Fprintf(out, "integrity: FAILED\n  %s\n", strings.Join(problems, "\n  "))
				return errIntegrity
			}
			fmt.Fprintln(out, "integrity: ok")

			store, err := registry.NewSqliteStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := registry.PruneMissing(cmd.Context(), store, !prune)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "records: %d checked, %d missing, %d removed\n", res.Checked, len(res.Missing), res.Removed)
			for _, name := range res.Missing {
				fmt.Fprintf(out, "  missing: %s\n", name)
			}
			if len(res.Missing) > 0 && !prune {
				fmt.Fprintln(out, "run with --prune to remove them")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	cmd.Flags().StringVar(&dbPath, "db", "", "registry database (default <data_dir>/registry.sqlite)")
	cmd.Flags().StringVar(&mode, "mode", "quick", "integrity check: quick or full")
	cmd.Flags().BoolVar(&prune, "prune", false, "remove records whose file is missing")
	return cmd
}
