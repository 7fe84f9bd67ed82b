package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"filebox/internal/config"
	"filebox/internal/transfer"
)

func newAdminCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands that work on the local database",
	}

	cmd.AddCommand(newAdminSweepCmd(cfg, jsonOutput))
	cmd.AddCommand(newAdminInfoCmd(cfg, jsonOutput))
	return cmd
}

func newAdminSweepCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		apply       bool
		gracePeriod time.Duration
		batchSize   int
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Find and delete blobs that no file references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("grace-period") {
				gracePeriod = cfg.Sweep.GracePeriod
			}
			if batchSize <= 0 {
				batchSize = cfg.Sweep.BatchSize
			}

			logger := slog.Default().With("component", "sweep")
			rt, err := openRuntime(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close(cmd.Context())

			result, err := rt.files.Sweep(cmd.Context(), transfer.SweepOptions{
				GracePeriod: gracePeriod,
				BatchSize:   batchSize,
				Apply:       apply,
			})
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(result)
			}
			return writeSweepResult(result, verbose)
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "delete unreferenced blobs (default is a dry run)")
	cmd.Flags().DurationVar(&gracePeriod, "grace-period", config.DefaultSweepGracePeriod, "skip blobs younger than this")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "blobs inspected per page (default: sweep.batch_size)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list candidate blob ids")
	return cmd
}

func writeSweepResult(result transfer.SweepResult, verbose bool) error {
	mode := "dry run"
	if !result.DryRun {
		mode = "applied"
	}
	if err := writePlain("%s: scanned=%d candidates=%d deleted=%d failed=%d reclaimed=%s\n",
		mode, result.ScannedCount, result.CandidateCount, result.DeletedCount, result.FailedCount, formatBytes(result.ReclaimedBytes)); err != nil {
		return err
	}
	if !verbose {
		return nil
	}
	for _, id := range result.Candidates {
		if err := writePlain("  %s\n", id); err != nil {
			return err
		}
	}
	return nil
}

func newAdminInfoCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show database and storage statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), cfg, slog.Default().With("component", "admin"))
			if err != nil {
				return err
			}
			defer rt.Close(cmd.Context())

			info, err := rt.store.StoreInfo(cmd.Context())
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(map[string]any{
					"db_path":     cfg.DBPath,
					"backend":     cfg.StorageBackend(),
					"compression": cfg.Storage.Compression,
					"chunk_size":  cfg.Storage.ChunkSizeBytes,
					"store":       info,
				})
			}

			lines := []struct {
				key   string
				value any
			}{
				{"db_path", cfg.DBPath},
				{"backend", cfg.StorageBackend()},
				{"compression", cfg.Storage.Compression},
				{"chunk_size", formatBytes(int64(cfg.Storage.ChunkSizeBytes))},
				{"schema_version", info.SchemaVersion},
				{"users", info.Users},
				{"files", info.Files},
				{"bundles", info.Bundles},
				{"committed_blobs", info.CommittedBlobs},
				{"pending_blobs", info.PendingBlobs},
				{"chunks", info.ChunkCount},
				{"stored_bytes", formatBytes(info.StoredBytes)},
			}
			for _, line := range lines {
				if err := writePlain("%s: %v\n", line.key, line.value); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
