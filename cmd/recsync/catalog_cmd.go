// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/recsync/internal/model"
	"github.com/ManuGH/recsync/internal/protocol"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect device catalog buffers",
	}
	cmd.AddCommand(newCatalogDecodeCmd())
	return cmd
}

func newCatalogDecodeCmd() *cobra.Command {
	var (
		asJSON    bool
		modelName string
		bps       int
	)
	cmd := &cobra.Command{
		Use:   "decode <file>",
		Short: "Decode a raw catalog buffer captured from a device",
		Long: `Decodes a raw file-listing buffer. On a truncated buffer the
records decoded before the damage are printed and the command fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// #nosec G304 -- operator-supplied path
			buf, err := os.ReadFile(filepath.Clean(args[0]))
			if err != nil {
				return err
			}
			recs, decErr := protocol.NewDecoder(protocol.LookupProfile(modelName, bps)).Decode(buf)

			out := cmd.OutOrStdout()
			if asJSON {
				err = writeCatalogJSON(out, recs)
			} else {
				err = writeCatalogTable(out, recs)
			}
			if err != nil {
				return err
			}
			if decErr != nil {
				return fmt.Errorf("catalog truncated after %d records: %w", len(recs), decErr)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.Flags().StringVar(&modelName, "model", "legacy", "device model profile for duration estimates")
	cmd.Flags().IntVar(&bps, "bytes-per-second", 0, "override the model byte rate")
	return cmd
}

func writeCatalogJSON(w io.Writer, recs []model.Recording) error {
	if recs == nil {
		recs = []model.Recording{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

func writeCatalogTable(w io.Writer, recs []model.Recording) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILENAME\tSIZE\tDURATION\tRECORDED\tVERSION")
	for _, r := range recs {
		recorded := "-"
		if r.RecordedAt != nil {
			recorded = r.RecordedAt.Format(time.DateTime)
		}
		dur := (time.Duration(r.DurationSeconds) * time.Second).String()
		if r.DurationApproximate {
			dur = "~" + dur
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\n", r.Filename, r.SizeBytes, dur, recorded, r.FileVersion)
	}
	return tw.Flush()
}
