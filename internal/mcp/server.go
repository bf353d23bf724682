package mcp

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jamaly87/codebase-semantic-search/internal/config"
	"github.com/jamaly87/codebase-semantic-search/internal/metrics"
	"github.com/jamaly87/codebase-semantic-search/internal/pipeline"
)

// Server represents the MCP server. Unlike the CLI, which owns a single
// repository for its whole process lifetime, the server fields tool calls
// against whatever repo_path the caller names, so it keeps one Orchestrator
// per repository root and builds new ones lazily.
type Server struct {
	stateDir  string
	metrics   *metrics.Registry
	mcpServer *server.MCPServer

	mu            sync.Mutex
	orchestrators map[string]*pipeline.Orchestrator
}

// NewServer creates a new MCP server instance. metricsReg may be nil to run
// without Prometheus instrumentation.
func NewServer(name, version string, metricsReg *metrics.Registry) (*Server, error) {
	stateDir, err := config.StateDir()
	if err != nil {
		return nil, fmt.Errorf("resolve state directory: %w", err)
	}

	s := &Server{
		stateDir:      stateDir,
		metrics:       metricsReg,
		orchestrators: make(map[string]*pipeline.Orchestrator),
	}

	mcpServer := server.NewMCPServer(name, version)

	tools := s.getTools()
	for _, tool := range tools {
		mcpServer.AddTool(tool, s.createToolHandler(tool.Name))
	}
	s.mcpServer = mcpServer

	log.Printf("MCP server initialized: %s v%s", name, version)
	log.Printf("Registered %d tools", len(tools))

	return s, nil
}

// orchestratorFor returns the cached Orchestrator for repoPath, building one
// on first use.
func (s *Server) orchestratorFor(ctx context.Context, repoPath string) (*pipeline.Orchestrator, error) {
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("resolve repo path %q: %w", repoPath, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if o, ok := s.orchestrators[abs]; ok {
		return o, nil
	}

	o, err := pipeline.New(ctx, abs, s.stateDir, nil, s.metrics)
	if err != nil {
		return nil, err
	}
	s.orchestrators[abs] = o
	return o, nil
}

// createToolHandler creates a handler function for a given tool name.
func (s *Server) createToolHandler(toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log.Printf("Handling tool call: %s", toolName)

		var args map[string]interface{}
		if request.Params.Arguments != nil {
			var ok bool
			args, ok = request.Params.Arguments.(map[string]interface{})
			if !ok {
				return errorResult("invalid arguments format"), nil
			}
		} else {
			args = make(map[string]interface{})
		}

		switch toolName {
		case "semantic_search":
			return s.handleSemanticSearch(ctx, args)
		case "index_codebase":
			return s.handleIndexCodebase(ctx, args)
		case "clear_cache":
			return s.handleClearCache(ctx, args)
		case "get_index_status":
			return s.handleGetIndexStatus(ctx, args)
		default:
			return errorResult(fmt.Sprintf("unknown tool: %s", toolName)), nil
		}
	}
}

// Start starts the MCP server with stdio transport.
func (s *Server) Start(ctx context.Context) error {
	log.Printf("Starting MCP server on stdio transport...")
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Close releases every cached Orchestrator's resources.
func (s *Server) Close() error {
	log.Printf("Shutting down MCP server...")
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for repo, o := range s.orchestrators {
		if err := o.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close orchestrator for %s: %w", repo, err)
		}
	}
	return firstErr
}
