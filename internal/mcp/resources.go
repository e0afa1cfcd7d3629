package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/zot/lensconv/internal/history"
)

const (
	// DialectURI serves the shader rewrite table.
	DialectURI = "lensconv://dialect"
	// HistoryURI serves recent conversions when history is enabled.
	HistoryURI = "lensconv://history"

	historyLimit = 50
)

// DialectResource describes the rewrite table in use.
func DialectResource() mcp.Resource {
	return mcp.NewResource(DialectURI, "Shader Dialect",
		mcp.WithResourceDescription("Ordered GLSL to OBS HLSL rewrite rules applied to lens shaders"),
		mcp.WithMIMEType("application/json"),
	)
}

// HistoryResource lists recent conversions.
func HistoryResource() mcp.Resource {
	return mcp.NewResource(HistoryURI, "Conversion History",
		mcp.WithResourceDescription("Most recent lens conversions, newest first"),
		mcp.WithMIMEType("application/json"),
	)
}

// RegisterStandardResources adds the dialect resource, and the history
// resource when the converter has a history backend.
func RegisterStandardResources(s *Server) {
	s.srv.AddResource(DialectResource(), s.readDialect)
	if s.conv.History != nil {
		s.srv.AddResource(HistoryResource(), s.readHistory)
	}
}

type ruleView struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (s *Server) readDialect(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	d := s.conv.Shaders.Dialect
	rules := make([]ruleView, 0, len(d.Rules))
	for _, r := range d.Rules {
		rules = append(rules, ruleView{From: r.From, To: r.To})
	}
	return jsonContents(DialectURI, map[string]any{
		"name":      d.Name,
		"sourceExt": d.SourceExt,
		"targetExt": d.TargetExt,
		"rules":     rules,
	})
}

func (s *Server) readHistory(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	records, err := s.conv.History.List(history.Query{Limit: historyLimit})
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*history.Record{}
	}
	return jsonContents(HistoryURI, records)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(data)},
	}, nil
}
