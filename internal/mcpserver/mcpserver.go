// Package mcpserver exposes the daemon's operations as MCP tools over stdio.
// Arguments are bound into typed request structs and validated here before
// anything reaches the registry or the session.
package mcpserver

import (
	"log/slog"

	"github.com/loykin/inspectr/internal/registry"
	"github.com/loykin/inspectr/internal/session"
	"github.com/mark3labs/mcp-go/server"
)

// Server wires the registry and the debug session into an MCP server.
type Server struct {
	reg *registry.Registry
	ses *session.Session
	mcp *server.MCPServer
	log *slog.Logger
}

// New constructs the MCP server with all tools and resources registered.
func New(reg *registry.Registry, ses *session.Session, version string) *Server {
	s := &Server{
		reg: reg,
		ses: ses,
		log: slog.Default(),
	}
	s.mcp = server.NewMCPServer(
		"inspectr",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio runs the server over stdin/stdout until the transport closes.
// Stdout belongs to the MCP framing; logs must go elsewhere.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer exposes the underlying server for embedding in other transports.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }
