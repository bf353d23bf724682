package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jamaly87/codebase-semantic-search/internal/pipeline"
)

func newSyncCmd() *cobra.Command {
	var force bool
	var watch bool

	cmd := &cobra.Command{
		Use:   "sync [path]",
		Short: "Index a repository, or only what changed since the last run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoPath, err := resolveRepoPath(args)
			if err != nil {
				return err
			}

			ctx, cancel := withContext()
			defer cancel()
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigChan
				logger.Info("received shutdown signal")
				cancel()
			}()

			o, err := buildOrchestrator(ctx, repoPath)
			if err != nil {
				return err
			}
			defer o.Close()

			if watch {
				logger.Info("watching for changes", "repo", repoPath)
				return o.Watch(ctx, pipeline.WatchOptions{
					OnProgress: renderProgress(),
					OnError: func(err error) {
						logger.Error("watch-triggered index failed", "error", err)
					},
				})
			}

			stats, err := o.Index(ctx, pipeline.IndexOptions{
				Incremental: !force,
				OnProgress:  renderProgress(),
			})
			if err != nil {
				return fmt.Errorf("index %s: %w", repoPath, err)
			}

			fmt.Printf("indexed %d/%d files (%d chunks, %d failed) in %s\n",
				stats.FilesIndexed, stats.FilesTotal, stats.ChunksIndexed, len(stats.FailedFiles), stats.Duration)
			for _, f := range stats.FailedFiles {
				fmt.Printf("  failed: %s\n", f)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "full reindex instead of incremental")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and reindex automatically on file changes")
	return cmd
}

// renderProgress builds a fresh progress bar for one sync/watch-triggered run.
func renderProgress() pipeline.OnProgress {
	var bar *progressbar.ProgressBar
	return func(ev pipeline.ProgressEvent) {
		if bar == nil && ev.FilesTotal > 0 {
			bar = progressbar.NewOptions(ev.FilesTotal,
				progressbar.OptionSetDescription("indexing"),
				progressbar.OptionShowCount(),
			)
		}
		if bar == nil {
			return
		}
		switch ev.Stage {
		case pipeline.StageIndexing, pipeline.StageFailed:
			_ = bar.Set(ev.FilesDone)
		}
	}
}
