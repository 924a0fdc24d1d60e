// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package registry

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/ManuGH/recsync/internal/log"
)

// PruneResult summarises a PruneMissing sweep.
type PruneResult struct {
	Checked int      `json:"checked"`
	Missing []string `json:"missing"`
	Removed int      `json:"removed"`
}

// PruneMissing finds records whose file_path no longer exists on disk and,
// unless dryRun, removes them so the files become eligible for download
// again.
func PruneMissing(ctx context.Context, reg Registry, dryRun bool) (PruneResult, error) {
	logger := log.WithComponent("registry")

	recs, err := reg.List(ctx)
	if err != nil {
		return PruneResult{}, err
	}

	var res PruneResult
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++
		if _, err := os.Stat(rec.FilePath); err == nil || !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		res.Missing = append(res.Missing, rec.OriginalFilename)
		if dryRun {
			continue
		}
		if err := reg.Remove(ctx, rec.OriginalFilename); err != nil && !errors.Is(err, ErrNotFound) {
			return res, err
		}
		res.Removed++
		logger.Info().
			Str(log.FieldFilename, rec.OriginalFilename).
			Str(log.FieldPath, rec.FilePath).
			Msg("pruned registry record for missing local file")
	}
	return res, nil
}
