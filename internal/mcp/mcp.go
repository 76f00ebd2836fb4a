// Package mcp implements the Model Context Protocol server for Tsuzuri.
//
// The MCP server exposes the notes controller through MCP tools, resources
// and prompts. Writes go through the same moderation gate as the HTTP API.
package mcp

import (
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/tsuzuri/internal/service/notes"
	"github.com/ashita-ai/tsuzuri/internal/storage"
)

// Server wraps the MCP server with Tsuzuri's notes controller.
type Server struct {
	mcpServer *mcpserver.MCPServer
	store     storage.Store
	gate      notes.Checker
	session   *notes.Session
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources, tools and
// prompts. The server owns one controller session; call Close to release it.
func New(store storage.Store, gate notes.Checker, logger *slog.Logger, version string) *Server {
	s := &Server{
		store:   store,
		gate:    gate,
		session: notes.NewSession(store, gate, logger.With("transport", "mcp")),
		logger:  logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"tsuzuri",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithRecovery(),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Close releases the controller session.
func (s *Server) Close() {
	s.session.Close()
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("failed to encode result: " + err.Error())
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
