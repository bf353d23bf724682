package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jamaly87/codebase-semantic-search/internal/pipeline"
)

func newBatchCmd() *cobra.Command {
	var stateFile string
	var concurrency int
	var continueOnError bool

	cmd := &cobra.Command{
		Use:   "batch [path]",
		Short: "Index a repository with a resumable JSONL checkpoint",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoPath, err := resolveRepoPath(args)
			if err != nil {
				return err
			}

			ctx, cancel := withContext()
			defer cancel()

			o, err := buildOrchestrator(ctx, repoPath)
			if err != nil {
				return err
			}
			defer o.Close()

			path := stateFile
			if path == "" {
				dir, err := stateDir()
				if err != nil {
					return err
				}
				path = filepath.Join(dir, "batch-checkpoint.jsonl")
			}

			stats, err := o.IndexBatch(ctx, pipeline.BatchOptions{
				StateFilePath:   path,
				Concurrency:     concurrency,
				ContinueOnError: continueOnError,
				OnProgress:      renderProgress(),
			})
			if err != nil {
				return fmt.Errorf("batch index %s: %w", repoPath, err)
			}

			fmt.Printf("indexed %d/%d files (%d skipped, %d chunks, %d failed) in %s\n",
				stats.FilesIndexed, stats.FilesTotal, stats.FilesSkipped, stats.ChunksIndexed, len(stats.FailedFiles), stats.Duration)
			return nil
		},
	}

	cmd.Flags().StringVar(&stateFile, "state-file", "", "checkpoint JSONL path (default: <state-dir>/batch-checkpoint.jsonl)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "per-file concurrency (default: the resolved config's parallel_workers)")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", true, "keep processing remaining files after a failure")
	return cmd
}
