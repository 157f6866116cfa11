// Package mcp exposes vectorizer status and processing as Model Context
// Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/helixml/vectorizer/infrastructure/embedding"
)

// Executor processes one queue batch of a vectorizer.
type Executor interface {
	Execute(ctx context.Context, id int64) (embedding.Result, error)
}

// StatusReader reports vectorizers and their backlog.
type StatusReader interface {
	List(ctx context.Context) ([]vectorizer.Status, error)
	Pending(ctx context.Context, id int64, exact bool) (int64, error)
}

// Server wraps the MCP server with vectorizer tools.
type Server struct {
	mcpServer *server.MCPServer
	executor  Executor
	status    StatusReader
	version   string
	logger    *slog.Logger
}

// NewServer creates a new MCP server with the given dependencies.
func NewServer(executor Executor, status StatusReader, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		executor: executor,
		status:   status,
		version:  version,
		logger:   logger.With("component", "mcp"),
	}

	mcpServer := server.NewMCPServer(
		"vectorizer",
		version,
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("get_version",
		mcp.WithDescription("Get the vectorizer server version"),
	), s.handleVersion)

	mcpServer.AddTool(mcp.NewTool("list_vectorizers",
		mcp.WithDescription("List every vectorizer with its source, target table, view and bounded queue backlog"),
	), s.handleList)

	mcpServer.AddTool(mcp.NewTool("queue_pending",
		mcp.WithDescription("Count the rows waiting in a vectorizer's queue. Bounded counts above the cap report the sentinel value"),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("The vectorizer ID"),
		),
		mcp.WithBoolean("exact",
			mcp.Description("Count every row instead of stopping at the cap (default: false)"),
		),
	), s.handlePending)

	mcpServer.AddTool(mcp.NewTool("execute_vectorizer",
		mcp.WithDescription("Embed one batch from a vectorizer's queue now"),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("The vectorizer ID"),
		),
	), s.handleExecute)
}

func (s *Server) handleVersion(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.version), nil
}

func (s *Server) handleList(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, err := s.status.List(ctx)
	if err != nil {
		s.logger.Error("list vectorizers failed", slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("list vectorizers failed: %v", err)), nil
	}

	type statusResult struct {
		ID           int64  `json:"id"`
		Source       string `json:"source"`
		Target       string `json:"target"`
		View         string `json:"view"`
		PendingItems *int64 `json:"pending_items"`
	}

	results := make([]statusResult, len(rows))
	for i, r := range rows {
		results[i] = statusResult{
			ID:           r.ID,
			Source:       r.Source.String(),
			Target:       r.Target.String(),
			View:         r.View.String(),
			PendingItems: r.PendingItems,
		}
	}
	return jsonResult(results)
}

func (s *Server) handlePending(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int64(request.GetInt("id", 0))
	if id <= 0 {
		return mcp.NewToolResultError("id is required"), nil
	}
	exact := request.GetBool("exact", false)

	n, err := s.status.Pending(ctx, id, exact)
	if err != nil {
		s.logger.Error("queue pending failed", slog.Int64("vectorizer_id", id), slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("queue pending failed: %v", err)), nil
	}

	return jsonResult(struct {
		ID           int64 `json:"id"`
		PendingItems int64 `json:"pending_items"`
		Exact        bool  `json:"exact"`
	}{id, n, exact})
}

func (s *Server) handleExecute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int64(request.GetInt("id", 0))
	if id <= 0 {
		return mcp.NewToolResultError("id is required"), nil
	}

	res, err := s.executor.Execute(ctx, id)
	if err != nil {
		s.logger.Error("execute vectorizer failed", slog.Int64("vectorizer_id", id), slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("execute failed: %v", err)), nil
	}

	return jsonResult(struct {
		ID          int64 `json:"id"`
		Items       int   `json:"items"`
		Chunks      int   `json:"chunks"`
		TotalTokens int   `json:"total_tokens"`
		DurationMS  int64 `json:"duration_ms"`
	}{id, res.Items, res.Chunks, res.Usage.TotalTokens(), res.Duration.Milliseconds()})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the MCP server on stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
