package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jamaly87/codebase-semantic-search/internal/models"
	"github.com/jamaly87/codebase-semantic-search/internal/pipeline"
)

// Tool definitions for the MCP server.
func (s *Server) getTools() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "semantic_search",
			Description: "Search for code in a repository using natural language queries. Use this tool when the user asks questions like 'where is...', 'find...', 'show me...', 'how do we...', or any question about locating specific code, functions, classes, or logic in the codebase. Returns ranked code matches with exact file locations, line numbers, and relevance scores. Works with semantic understanding (e.g., 'authentication logic' finds auth-related code even without exact keyword matches).",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Natural language search query describing what code to find. Examples: 'JWT token validation', 'CSV file parsing', 'database connection setup', 'user authentication logic', 'error handling for API requests'. Can be short phrases or questions.",
					},
					"repo_path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the repository to search",
					},
					"limit": map[string]interface{}{
						"type":        "number",
						"description": "Maximum number of results to return (default: 10)",
						"default":     10,
					},
					"language": map[string]interface{}{
						"type":        "string",
						"description": "Restrict results to a single language (optional)",
					},
					"file_filter": map[string]interface{}{
						"type":        "string",
						"description": "Restrict results to file paths containing this substring (optional)",
					},
				},
				Required: []string{"query", "repo_path"},
			},
		},
		{
			Name:        "index_codebase",
			Description: "Index a code repository to enable semantic search. Use this tool when: (1) First time working with a new repository, (2) User explicitly asks to 'index', 'scan', or 'prepare' a codebase, (3) Before the first search query on a repository. This scans all code files, breaks them into chunks, generates embeddings using the local LLM, and stores them in the vector database. Supports incremental indexing (only reprocesses changed files). Required before semantic_search can work on a repository.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"repo_path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the repository to index",
					},
					"force_reindex": map[string]interface{}{
						"type":        "boolean",
						"description": "Force a full reindex even if the repository is already indexed (default: false)",
						"default":     false,
					},
				},
				Required: []string{"repo_path"},
			},
		},
		{
			Name:        "clear_cache",
			Description: "Clear the index cache for a repository. Use this tool when: (1) User reports incorrect or stale search results, (2) Repository structure has changed significantly (files moved/renamed), (3) User explicitly asks to 'clear cache', 'reset index', or 'start fresh', (4) Debugging indexing issues. After clearing cache, the repository must be reindexed using index_codebase.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"repo_path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the repository whose cache should be cleared",
					},
				},
				Required: []string{"repo_path"},
			},
		},
		{
			Name:        "get_index_status",
			Description: "Get indexing status and statistics for a repository. Use this tool when: (1) User asks if a repository is indexed or 'is this repo ready?', (2) User asks 'how many files are indexed?', (3) Checking if indexing is needed before a search. Returns: total documents indexed, total code chunks, storage size, and whether the repository has completed at least one index run.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"repo_path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the repository",
					},
				},
				Required: []string{"repo_path"},
			},
		},
	}
}

// Tool handlers

func (s *Server) handleSemanticSearch(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return errorResult("query is required and must be a string"), nil
	}
	repoPath, ok := args["repo_path"].(string)
	if !ok || repoPath == "" {
		return errorResult("repo_path is required and must be a string"), nil
	}

	o, err := s.orchestratorFor(ctx, repoPath)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to open repository: %v", err)), nil
	}

	opts := pipeline.QueryOptions{
		LanguageFilter: stringArg(args, "language"),
		FileFilter:     stringArg(args, "file_filter"),
	}
	if limit, ok := args["limit"].(float64); ok {
		opts.MaxResults = int(limit)
	}

	results, err := o.Search(ctx, query, opts)
	if err != nil {
		return errorResult(fmt.Sprintf("search failed: %v", err)), nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: formatSearchResults(results)},
		},
	}, nil
}

func (s *Server) handleIndexCodebase(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	repoPath, ok := args["repo_path"].(string)
	if !ok || repoPath == "" {
		return errorResult("repo_path is required and must be a string"), nil
	}
	forceReindex, _ := args["force_reindex"].(bool)

	o, err := s.orchestratorFor(ctx, repoPath)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to open repository: %v", err)), nil
	}

	stats, err := o.Index(ctx, pipeline.IndexOptions{Incremental: !forceReindex})
	if err != nil {
		errorMsg := fmt.Sprintf(`Indexing failed: %v

Files scanned: %d/%d
Chunks indexed: %d

Troubleshooting:
1. Check the embedding/completion endpoint is reachable.
2. Check the vector store backend is reachable (SQLite file writable, or Qdrant up).
3. Retry with force_reindex=true for a clean full reindex.`,
			err, stats.FilesIndexed, stats.FilesTotal, stats.ChunksIndexed)
		return errorResult(errorMsg), nil
	}

	successMsg := fmt.Sprintf(`Indexing completed successfully

Files indexed: %d/%d
Code chunks: %d
Failed files: %d
Duration: %.1fs

You can now search this codebase with semantic queries.`,
		stats.FilesIndexed, stats.FilesTotal, stats.ChunksIndexed, len(stats.FailedFiles), stats.Duration.Seconds())

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: successMsg},
		},
	}, nil
}

func (s *Server) handleClearCache(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	repoPath, ok := args["repo_path"].(string)
	if !ok || repoPath == "" {
		return errorResult("repo_path is required and must be a string"), nil
	}

	o, err := s.orchestratorFor(ctx, repoPath)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to open repository: %v", err)), nil
	}
	if err := o.ClearCache(ctx); err != nil {
		return errorResult(fmt.Sprintf("failed to clear cache: %v", err)), nil
	}

	return successResult(map[string]interface{}{
		"message": "cache cleared successfully",
		"repo":    repoPath,
	}), nil
}

func (s *Server) handleGetIndexStatus(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	repoPath, ok := args["repo_path"].(string)
	if !ok || repoPath == "" {
		return errorResult("repo_path is required and must be a string"), nil
	}

	o, err := s.orchestratorFor(ctx, repoPath)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to open repository: %v", err)), nil
	}

	stats, err := o.RepoStats(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to get index status: %v", err)), nil
	}

	return successResult(map[string]interface{}{
		"repo":               repoPath,
		"indexed":            o.IsIndexed(),
		"total_documents":    stats.TotalDocuments,
		"total_chunks":       stats.TotalChunks,
		"storage_size_bytes": stats.StorageSizeBytes,
	}), nil
}

// Helper functions

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

func successResult(data interface{}) *mcp.CallToolResult {
	jsonData, _ := json.MarshalIndent(data, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: string(jsonData)},
		},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: fmt.Sprintf("Error: %s", message)},
		},
		IsError: true,
	}
}

func formatSearchResults(results []models.SearchResult) string {
	if len(results) == 0 {
		return "No results found."
	}

	var output strings.Builder
	output.WriteString(fmt.Sprintf("Found %d results:\n\n", len(results)))

	for i, result := range results {
		doc := result.Document

		location := fmt.Sprintf("%s:%d-%d", doc.FilePath, doc.StartLine, doc.EndLine)
		if doc.FunctionName != "" {
			location += fmt.Sprintf(" (in %s)", doc.FunctionName)
		} else if doc.ClassName != "" {
			location += fmt.Sprintf(" (in %s)", doc.ClassName)
		}

		scoreInfo := fmt.Sprintf("score: %.3f", result.Score)

		output.WriteString(fmt.Sprintf("%d. %s\n", i+1, location))
		output.WriteString(fmt.Sprintf("   %s\n", scoreInfo))
		output.WriteString(fmt.Sprintf("   Language: %s\n", doc.Language))

		lines := strings.Split(doc.OriginalCode, "\n")
		previewLines := 3
		if len(lines) < previewLines {
			previewLines = len(lines)
		}

		output.WriteString("   Preview:\n")
		for j := 0; j < previewLines; j++ {
			line := strings.TrimSpace(lines[j])
			if len(line) > 80 {
				line = line[:80] + "..."
			}
			output.WriteString(fmt.Sprintf("   | %s\n", line))
		}
		if len(lines) > previewLines {
			output.WriteString(fmt.Sprintf("   | ... (%d more lines)\n", len(lines)-previewLines))
		}

		output.WriteString("\n")
	}

	return output.String()
}
