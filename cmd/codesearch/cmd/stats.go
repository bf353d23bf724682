package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var repoPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics for a repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := repoPath
			if repo == "" {
				var err error
				repo, err = os.Getwd()
				if err != nil {
					return err
				}
			}

			ctx, cancel := withContext()
			defer cancel()

			o, err := buildOrchestrator(ctx, repo)
			if err != nil {
				return err
			}
			defer o.Close()

			s, err := o.RepoStats(ctx)
			if err != nil {
				return fmt.Errorf("stats %s: %w", repo, err)
			}

			fmt.Printf("repo:         %s\n", repo)
			fmt.Printf("indexed:      %v\n", o.IsIndexed())
			fmt.Printf("documents:    %d\n", s.TotalDocuments)
			fmt.Printf("chunks:       %d\n", s.TotalChunks)
			if s.StorageSizeBytes >= 0 {
				fmt.Printf("storage:      %d bytes\n", s.StorageSizeBytes)
			} else {
				fmt.Printf("storage:      unavailable for this backend\n")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", "", "repository to inspect (default: current directory)")
	return cmd
}
