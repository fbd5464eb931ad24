package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	sessionResourceURI   = "inspectr://session"
	processesResourceURI = "inspectr://processes"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(mcp.NewResource(
		sessionResourceURI,
		"Debug session",
		mcp.WithResourceDescription("Current debug session state: connection, pause flag, breakpoints, call stack"),
		mcp.WithMIMEType("application/json"),
	), s.readSession)

	s.mcp.AddResource(mcp.NewResource(
		processesResourceURI,
		"Managed processes",
		mcp.WithResourceDescription("All managed debuggee processes with pids and debug ports"),
		mcp.WithMIMEType("application/json"),
	), s.readProcesses)
}

func (s *Server) readSession(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(sessionResourceURI, s.ses.View())
}

func (s *Server) readProcesses(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(processesResourceURI, s.reg.List())
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
