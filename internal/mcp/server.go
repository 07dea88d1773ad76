package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/guardrace/internal/gate"
	"github.com/ppiankov/guardrace/internal/runstore"
)

// Version is reported to MCP clients.
var Version = "dev"

// Server exposes a gate as MCP tools.
type Server struct {
	mcpServer *mcpsdk.Server
	gate      *gate.Gate
	store     *runstore.Store
}

// New creates an MCP server over g. store may be nil, in which case the
// history tool reports that no history is kept.
func New(g *gate.Gate, store *runstore.Store) *Server {
	s := &Server{gate: g, store: store}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "guardrace",
			Version: Version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all guardrace tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "guardrace_generate",
		Description: "Generate a response while a content guard evaluates the prompt in parallel. Rejected prompts return an error result with the reason and no content.",
	}, s.handleGenerate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "guardrace_check",
		Description: "Check whether a prompt would pass the content guard without generating anything (dry-run).",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "guardrace_history",
		Description: "List recent guarded generations with their outcome kind, reason and timing.",
	}, s.handleHistory)
}
