package mcp

import (
	"archive/zip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zot/lensconv/internal/config"
	"github.com/zot/lensconv/internal/convert"
	"github.com/zot/lensconv/internal/history"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Output.Dir = filepath.Join(t.TempDir(), "out")
	conv, err := convert.New(cfg, nil)
	require.NoError(t, err)
	conv.History = history.NewMemoryHistory()
	t.Cleanup(func() { conv.Close() })
	return NewServer(conv, "json", "test", nil)
}

func writeLens(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, r)
	require.Len(t, r.Content, 1)
	text, ok := r.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T", r.Content[0])
	return text.Text
}

func TestConvertLens(t *testing.T) {
	s := newTestServer(t)
	path := filepath.Join(t.TempDir(), "glow.lns")
	writeLens(t, path, map[string]string{"lens.json": `{"name":"Glow"}`})

	r, err := s.handleConvert(context.Background(), callRequest("convert_lens", map[string]any{"path": path}))
	require.NoError(t, err)
	assert.False(t, r.IsError)

	var view resultView
	require.NoError(t, json.Unmarshal([]byte(resultText(t, r)), &view))
	assert.True(t, view.Success)
	require.NotNil(t, view.Name)
	assert.Equal(t, "Glow", *view.Name)
	assert.Equal(t, filepath.Join(s.conv.OutputDir, "glow", "obs_assets"), view.OutputDir)
}

func TestConvertLens_Failure(t *testing.T) {
	s := newTestServer(t)
	r, err := s.handleConvert(context.Background(), callRequest("convert_lens", map[string]any{"path": "/nope/x.lns"}))
	require.NoError(t, err)
	assert.True(t, r.IsError)
	assert.Contains(t, resultText(t, r), `"name": null`)

	r, err = s.handleConvert(context.Background(), callRequest("convert_lens", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, r.IsError, "missing path argument")
}

func TestBatchConvert(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()
	writeLens(t, filepath.Join(dir, "a.lns"), map[string]string{"lens.json": `{"name":"A"}`})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.zip"), []byte("bad"), 0644))

	r, err := s.handleBatch(context.Background(), callRequest("batch_convert", map[string]any{"dir": dir}))
	require.NoError(t, err)

	var report convert.Report
	require.NoError(t, json.Unmarshal([]byte(resultText(t, r)), &report))
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Successful)
	assert.Equal(t, 1, report.Failed)
	assert.FileExists(t, filepath.Join(s.conv.OutputDir, "conversion_report.json"))
}

func TestBatchConvert_NoReport(t *testing.T) {
	s := newTestServer(t)
	r, err := s.handleBatch(context.Background(), callRequest("batch_convert", map[string]any{
		"dir":          t.TempDir(),
		"write_report": false,
	}))
	require.NoError(t, err)
	assert.False(t, r.IsError)
	assert.NoFileExists(t, filepath.Join(s.conv.OutputDir, "conversion_report.json"))

	r, err = s.handleBatch(context.Background(), callRequest("batch_convert", map[string]any{"dir": "/does/not/exist"}))
	require.NoError(t, err)
	assert.True(t, r.IsError)
}

func TestInspectLens(t *testing.T) {
	s := newTestServer(t)
	path := filepath.Join(t.TempDir(), "glow.zip")
	writeLens(t, path, map[string]string{
		"lens.json":         `{"name":"Glow"}`,
		"shaders/main.glsl": "uniform float amount;\nvoid main() { gl_FragColor = vec4(amount); }",
	})

	r, err := s.handleInspect(context.Background(), callRequest("inspect_lens", map[string]any{"path": path}))
	require.NoError(t, err)
	var in convert.Inspection
	require.NoError(t, json.Unmarshal([]byte(resultText(t, r)), &in))
	assert.Equal(t, "Glow", in.Metadata.Name)
	require.Len(t, in.Shaders, 1)
	assert.Equal(t, "amount", in.Shaders[0].Uniforms[0].Name)
}

func TestResources(t *testing.T) {
	s := newTestServer(t)

	contents, err := s.readDialect(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text := contents[0].(mcp.TextResourceContents).Text
	assert.Contains(t, text, `"from": "gl_FragColor"`)

	require.NoError(t, s.conv.History.Store(&history.Record{File: "x.lns", Success: true}))
	contents, err = s.readHistory(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	var records []history.Record
	require.NoError(t, json.Unmarshal([]byte(contents[0].(mcp.TextResourceContents).Text), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "x.lns", records[0].File)
}

func TestToolsList(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	s.MCPServer().HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"0"}}}`))
	resp := s.MCPServer().HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	var decoded struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	var names []string
	for _, tool := range decoded.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"convert_lens", "batch_convert", "inspect_lens"}, names)
}
