// Package mcpserver exposes query runs as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/randalmurphal/queryflow/internal/service"
	"github.com/randalmurphal/queryflow/pkg/queryflow"
)

// Tool names.
const (
	ToolQueryData      = "query_data"
	ToolDistinctValues = "distinct_values"
)

// MaxRetriesLimit is the largest retry budget a tool call may ask for.
const MaxRetriesLimit = 10

// Runner runs queries and lists column values. *service.Runner implements it.
type Runner interface {
	Run(ctx context.Context, req service.Request) (*queryflow.Result, error)
	DistinctValues(ctx context.Context, table, column string) ([]any, error)
}

// Server is the MCP tool surface.
type Server struct {
	mcpServer *server.MCPServer
	runner    Runner
	logger    *slog.Logger
}

// NewServer creates the MCP server and registers its tools.
func NewServer(runner Runner, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcpServer: server.NewMCPServer(
			"queryflow",
			version,
			server.WithToolCapabilities(true),
		),
		runner: runner,
		logger: logger,
	}

	s.registerTools()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves MCP over stdin and stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			ToolQueryData,
			mcp.WithDescription("Answer a business question in natural language. Generates SQL, runs it against the data store, retries with a diagnosis when the store rejects the query, and returns the result rows with an interpretation."),
			mcp.WithString("prompt", mcp.Required(), mcp.Description("The question in natural language")),
			mcp.WithNumber("max_retries",
				mcp.Description("Retry budget for rejected queries; the configured default when omitted"),
				mcp.Min(0), mcp.Max(MaxRetriesLimit)),
		),
		s.handleQueryData,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			ToolDistinctValues,
			mcp.WithDescription("List the distinct values of a column, to resolve filters on categorical data"),
			mcp.WithString("table", mcp.Required(), mcp.Description("Table name")),
			mcp.WithString("column", mcp.Required(), mcp.Description("Column name")),
		),
		s.handleDistinctValues,
	)
}

func (s *Server) handleQueryData(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := request.RequireString("prompt")
	if err != nil || prompt == "" {
		return mcp.NewToolResultError("Missing required parameter: prompt"), nil
	}
	maxRetries := request.GetInt("max_retries", 0)
	if maxRetries < 0 || maxRetries > MaxRetriesLimit {
		return mcp.NewToolResultError(fmt.Sprintf("max_retries must be between 0 and %d", MaxRetriesLimit)), nil
	}

	res, err := s.runner.Run(ctx, service.Request{Prompt: prompt, MaxRetries: maxRetries})
	if err != nil {
		s.logger.Error("query_data failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Query failed (%d): %v", queryflow.StatusCode(err), err)), nil
	}

	out, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) handleDistinctValues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	table, err := request.RequireString("table")
	if err != nil || table == "" {
		return mcp.NewToolResultError("Missing required parameter: table"), nil
	}
	column, err := request.RequireString("column")
	if err != nil || column == "" {
		return mcp.NewToolResultError("Missing required parameter: column"), nil
	}

	values, err := s.runner.DistinctValues(ctx, table, column)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list values: %v", err)), nil
	}

	out, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encode values: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}
