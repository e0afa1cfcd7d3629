// Package mcp exposes lens conversion to MCP clients over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/zot/lensconv/internal/convert"
)

// Server wires a converter into an MCP server.
type Server struct {
	conv         *convert.Converter
	reportFormat string
	log          *zap.Logger
	srv          *server.MCPServer
}

// NewServer creates the server and registers the lens tools and resources.
// reportFormat is used when batch_convert writes its report.
func NewServer(conv *convert.Converter, reportFormat, version string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		conv:         conv,
		reportFormat: reportFormat,
		log:          log,
		srv: server.NewMCPServer("lensconv", version,
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
			server.WithRecovery(),
		),
	}
	RegisterStandardTools(s)
	RegisterStandardResources(s)
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.srv
}

// Serve reads requests from in and writes responses to out until ctx ends
// or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.srv)
	stdio.SetErrorLogger(zap.NewStdLog(s.log))
	s.log.Info("serving MCP on stdio")
	return stdio.Listen(ctx, in, out)
}

// jsonResult renders v as an indented JSON text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
