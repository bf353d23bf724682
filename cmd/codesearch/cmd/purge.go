package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newPurgeCmd() *cobra.Command {
	var repoPath string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every indexed chunk and the change-detection snapshot for a repository",
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

			if err := o.ClearCache(ctx); err != nil {
				return fmt.Errorf("purge %s: %w", repo, err)
			}
			fmt.Printf("purged %s\n", repo)
			return nil
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", "", "repository to purge (default: current directory)")
	return cmd
}
