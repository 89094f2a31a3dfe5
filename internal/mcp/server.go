// Package mcp exposes the simulation engine as Model Context Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"mcs-engine/internal/runner"
)

const (
	serverName    = "mcs-engine"
	serverVersion = "0.1.0"
)

// Server holds the state for the MCP server.
type Server struct {
	runner    *runner.Runner
	mcpServer *sdk.Server
}

// NewServer creates a new MCP server with every tool registered.
func NewServer(r *runner.Runner) *Server {
	s := &Server{
		runner:    r,
		mcpServer: sdk.NewServer(&sdk.Implementation{Name: serverName, Version: serverVersion}, nil),
	}
	s.registerTools()
	return s
}

// Serve runs the server over stdio until the client disconnects or ctx is
// cancelled.
func (s *Server) Serve(ctx context.Context) error {
	log.Info().Str("version", serverVersion).Msg("MCP server listening on stdio")
	return s.serveWithTransport(ctx, &sdk.StdioTransport{})
}

func (s *Server) serveWithTransport(ctx context.Context, transport sdk.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}
