package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/zot/lensconv/internal/convert"
)

// ConvertLensTool converts one archive.
func ConvertLensTool() mcp.Tool {
	return mcp.NewTool("convert_lens",
		mcp.WithDescription("Convert a Snap lens archive (.lns or .zip) into OBS filter assets"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the lens archive")),
	)
}

// BatchConvertTool converts every archive in a directory.
func BatchConvertTool() mcp.Tool {
	return mcp.NewTool("batch_convert",
		mcp.WithDescription("Convert every lens archive in a directory and return the conversion report"),
		mcp.WithString("dir", mcp.Required(), mcp.Description("Directory containing lens archives")),
		mcp.WithBoolean("write_report", mcp.Description("Also write the report into the output directory (default: true)")),
	)
}

// InspectLensTool describes an archive or converted directory.
func InspectLensTool() mcp.Tool {
	return mcp.NewTool("inspect_lens",
		mcp.WithDescription("Show the metadata, entries and shader uniforms of a lens archive or converted lens directory"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Archive path or converted lens directory")),
	)
}

// RegisterStandardTools adds the lens tools to a server.
func RegisterStandardTools(s *Server) {
	s.srv.AddTool(ConvertLensTool(), s.handleConvert)
	s.srv.AddTool(BatchConvertTool(), s.handleBatch)
	s.srv.AddTool(InspectLensTool(), s.handleInspect)
}

// resultView is the JSON shape of a single conversion.
type resultView struct {
	File      string   `json:"file"`
	Success   bool     `json:"success"`
	Name      *string  `json:"name"`
	OutputDir string   `json:"outputDir,omitempty"`
	Assets    []string `json:"assets,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func (s *Server) handleConvert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	r := s.conv.Convert(ctx, path)
	view := resultView{File: r.File, Success: r.Success, Assets: r.Assets}
	if r.Metadata != nil {
		view.Name = &r.Metadata.Name
		view.OutputDir = r.OutputDir(s.conv.OutputDir)
	}
	if r.Err != nil {
		view.Error = r.Err.Error()
	}

	result, err := jsonResult(view)
	if err != nil {
		return nil, err
	}
	result.IsError = !r.Success
	return result, nil
}

func (s *Server) handleBatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := req.RequireString("dir")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report, err := s.conv.Batch(ctx, dir)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if req.GetBool("write_report", true) {
		path, err := convert.WriteReport(report, s.conv.OutputDir, s.reportFormat)
		if err != nil {
			s.log.Warn("failed to write report", zap.Error(err))
		} else {
			s.log.Info("wrote report", zap.String("path", path))
		}
	}
	return jsonResult(report)
}

func (s *Server) handleInspect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	in, err := convert.Inspect(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(in)
}
