package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamaly87/codebase-semantic-search/internal/models"
	"github.com/jamaly87/codebase-semantic-search/internal/pipeline"
)

func newSearchCmd() *cobra.Command {
	var repoPath string
	var limit int
	var fileFilter string
	var language string
	var hybrid bool
	var rerank bool
	var hybridSet, rerankSet bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search an indexed repository with a natural-language query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := args[0]
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

			opts := pipeline.QueryOptions{
				MaxResults:     limit,
				FileFilter:     fileFilter,
				LanguageFilter: language,
			}
			if hybridSet {
				opts.HybridSearch = &hybrid
			}
			if rerankSet {
				opts.Reranking = &rerank
			}

			results, err := o.Search(ctx, query, opts)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			printResults(results)
			return nil
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", "", "repository to search (default: current directory)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (default: the resolved config's default)")
	cmd.Flags().StringVar(&fileFilter, "file-filter", "", "restrict to file paths containing this substring")
	cmd.Flags().StringVar(&language, "language", "", "restrict to a single language")
	cmd.Flags().Func("hybrid", "override hybrid_search (true|false)", func(v string) error {
		b, err := parseBool(v)
		if err != nil {
			return err
		}
		hybrid, hybridSet = b, true
		return nil
	})
	cmd.Flags().Func("rerank", "override reranking on/off (true|false)", func(v string) error {
		b, err := parseBool(v)
		if err != nil {
			return err
		}
		rerank, rerankSet = b, true
		return nil
	})
	return cmd
}

func parseBool(v string) (bool, error) {
	switch v {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", v)
	}
}

func printResults(results []models.SearchResult) {
	if len(results) == 0 {
		fmt.Println("no results found")
		return
	}
	for i, r := range results {
		doc := r.Document
		location := fmt.Sprintf("%s:%d-%d", doc.FilePath, doc.StartLine, doc.EndLine)
		if doc.FunctionName != "" {
			location += fmt.Sprintf(" (in %s)", doc.FunctionName)
		} else if doc.ClassName != "" {
			location += fmt.Sprintf(" (in %s)", doc.ClassName)
		}
		fmt.Printf("%d. %s  score=%.3f  lang=%s\n", i+1, location, r.Score, doc.Language)
	}
}
